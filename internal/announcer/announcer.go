package announcer

import (
	"context"
	"encoding/json"
	"log"
	"strings"
	"time"

	"github.com/pippoperasional-svg/LBHNUSANTARASEPAKAT/internal/hub"
	"github.com/pippoperasional-svg/LBHNUSANTARASEPAKAT/internal/store"
)

// Announcer tails the outbox and pushes events to connected displays. Call
// and recall events carry the Indonesian speech text the display reads out
// loud.
type Announcer struct {
	store     store.TicketStore
	hub       *hub.Hub
	interval  time.Duration
	batchSize int
}

type envelope struct {
	Type       string          `json:"type"`
	Payload    json.RawMessage `json:"payload"`
	SpeechText string          `json:"speech_text,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

func New(st store.TicketStore, h *hub.Hub, interval time.Duration, batchSize int) *Announcer {
	if interval <= 0 {
		interval = time.Second
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Announcer{store: st, hub: h, interval: interval, batchSize: batchSize}
}

// Run polls until the context is cancelled. The cursor starts at the launch
// time so restarts do not replay stale calls over the speakers.
func (a *Announcer) Run(ctx context.Context) {
	after := time.Now().UTC()
	afterID := ""

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		pollCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		events, err := a.store.ListOutboxEvents(pollCtx, after, afterID, a.batchSize)
		cancel()
		if err != nil {
			log.Printf("announcer poll error: %v", err)
			continue
		}

		for _, event := range events {
			after = event.CreatedAt
			afterID = event.EventID
			a.broadcast(event)
		}
	}
}

func (a *Announcer) broadcast(event store.OutboxEvent) {
	env := envelope{Type: event.Type, Payload: event.Payload, CreatedAt: event.CreatedAt}

	var fields struct {
		QueueNumber string `json:"queue_number"`
		ServiceType string `json:"service_type"`
	}
	_ = json.Unmarshal(event.Payload, &fields)

	if event.Type == "ticket.called" || event.Type == "ticket.recalled" {
		env.SpeechText = SpeechText(fields.QueueNumber)
	}

	payload, err := json.Marshal(env)
	if err != nil {
		log.Printf("announcer marshal error: %v", err)
		return
	}
	a.hub.Broadcast(payload, hub.Subscription{ServiceType: fields.ServiceType})
}

// SpeechText renders the announcement read out by waiting-room displays,
// e.g. "Nomor Antrian... A... 5... Silakan menuju loket satu" for A-005.
func SpeechText(queueNumber string) string {
	prefix := queueNumber
	digits := ""
	if idx := strings.Index(queueNumber, "-"); idx >= 0 {
		prefix = queueNumber[:idx]
		digits = queueNumber[idx+1:]
	}
	digits = strings.TrimLeft(digits, "0")
	if digits == "" {
		digits = "0"
	}
	return "Nomor Antrian... " + prefix + "... " + digits + "... Silakan menuju loket satu"
}
