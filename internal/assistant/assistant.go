package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/pippoperasional-svg/LBHNUSANTARASEPAKAT/internal/models"
)

const systemInstruction = `
Anda adalah Asisten Virtual Cerdas untuk POSBAKUM (Pos Bantuan Hukum) pada Pengadilan Negeri Kelas 1 B Bangkinang, yang dikelola oleh Lembaga Bantuan Hukum (LBH) Nusantara Sepakat.
Tujuan Anda adalah membantu masyarakat memahami persyaratan layanan hukum, prosedur antrian, dan dokumen yang diperlukan.

Panduan Menjawab:
1. Gunakan Bahasa Indonesia yang sopan, formal, namun mudah dimengerti.
2. Identitas Anda: Sebutkan diri Anda sebagai asisten dari POSBAKUM PN Bangkinang atau LBH Nusantara Sepakat jika ditanya.
3. Fokus pada persyaratan administratif (KTP, SKTM, Kronologi) untuk layanan gratis.
4. Jangan memberikan nasihat hukum spesifik mengenai hasil perkara (menang/kalah).
5. Jika ditanya tentang antrian, jelaskan bahwa aplikasi ini memudahkan pendaftaran dari rumah.
6. Jawaban harus singkat dan padat (maksimal 150 kata per chat).
7. Lokasi layanan adalah di Pengadilan Negeri Bangkinang, Jl. Letnan Boyak No. 77.
`

// FallbackReply covers upstream outages so the widget always answers.
const FallbackReply = "Maaf, sistem AI sedang sibuk atau mengalami gangguan koneksi. Silakan coba lagi nanti."

const emptyReply = "Maaf, saya tidak dapat memproses permintaan Anda saat ini."

// Provider generates a reply from the conversation history plus the new
// visitor message.
type Provider interface {
	Reply(ctx context.Context, history []models.ChatMessage, message string) (string, error)
}

// New selects a provider by kind: "gemini" talks to the Gemini REST API,
// "log"/"stub" echo to the server log, "noop" returns the fallback text,
// "fail" always errors (for tests).
func New(kind, apiKey, model string) Provider {
	switch kind {
	case "gemini":
		if apiKey == "" {
			log.Printf("assistant: gemini selected but no API key, using log provider")
			return logProvider{}
		}
		return &geminiProvider{
			apiKey:  apiKey,
			model:   model,
			baseURL: "https://generativelanguage.googleapis.com",
			client:  &http.Client{Timeout: 20 * time.Second},
		}
	case "noop":
		return noopProvider{}
	case "fail":
		return failProvider{}
	default:
		return logProvider{}
	}
}

type logProvider struct{}

func (logProvider) Reply(ctx context.Context, history []models.ChatMessage, message string) (string, error) {
	log.Printf("assistant message: %s", message)
	return "Halo! Saya asisten virtual POSBAKUM. Ada yang bisa saya bantu mengenai syarat atau prosedur layanan?", nil
}

type noopProvider struct{}

func (noopProvider) Reply(ctx context.Context, history []models.ChatMessage, message string) (string, error) {
	return FallbackReply, nil
}

type failProvider struct{}

func (failProvider) Reply(ctx context.Context, history []models.ChatMessage, message string) (string, error) {
	return FallbackReply, errors.New("provider failure")
}

type geminiProvider struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiRequest struct {
	Contents          []geminiContent `json:"contents"`
	SystemInstruction *geminiContent  `json:"systemInstruction,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

func (p *geminiProvider) Reply(ctx context.Context, history []models.ChatMessage, message string) (string, error) {
	contents := make([]geminiContent, 0, len(history)+1)
	for _, msg := range history {
		role := msg.Role
		if role != "user" && role != "model" {
			continue
		}
		contents = append(contents, geminiContent{Role: role, Parts: []geminiPart{{Text: msg.Text}}})
	}
	contents = append(contents, geminiContent{Role: "user", Parts: []geminiPart{{Text: message}}})

	body, err := json.Marshal(geminiRequest{
		Contents:          contents,
		SystemInstruction: &geminiContent{Parts: []geminiPart{{Text: strings.TrimSpace(systemInstruction)}}},
	})
	if err != nil {
		return FallbackReply, err
	}

	model := p.model
	if model == "" {
		model = "gemini-2.5-flash"
	}
	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent", p.baseURL, model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return FallbackReply, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		log.Printf("gemini request error: %v", err)
		return FallbackReply, nil
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		log.Printf("gemini status %d", resp.StatusCode)
		return FallbackReply, nil
	}

	var parsed geminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		log.Printf("gemini decode error: %v", err)
		return FallbackReply, nil
	}

	text := extractText(parsed)
	if text == "" {
		return emptyReply, nil
	}
	return text, nil
}

func extractText(resp geminiResponse) string {
	if len(resp.Candidates) == 0 {
		return ""
	}
	var builder strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		builder.WriteString(part.Text)
	}
	return strings.TrimSpace(builder.String())
}
