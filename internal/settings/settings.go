package settings

import (
	"context"
	"encoding/json"
	"log"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/pippoperasional-svg/LBHNUSANTARASEPAKAT/internal/models"
	"github.com/pippoperasional-svg/LBHNUSANTARASEPAKAT/internal/store"

	"github.com/redis/go-redis/v9"
)

const cacheKey = "posbakum:settings"

// Defaults returned when no app_settings row exists or a field is blank.
var defaults = models.AppSettings{
	LogoURL:      "https://upload.wikimedia.org/wikipedia/commons/e/e0/Logo_Pengadilan_Negeri_-_Mahkamah_Agung_RI.png",
	CourtLogoURL: "https://drive.google.com/file/d/1IbJtyAL5lX7v28DE8yXp_iY-Qg4Sqza1/view?usp=sharing",
	LBHName:      "LBH NUSANTARA SEPAKAT",
	CourtName:    "PENGADILAN NEGERI KELAS 1 B BANGKINANG",
	PosbakumName: "POSBAKUM PADA PENGADILAN NEGERI KELAS 1 B BANGKINANG",
}

// Provider serves branding settings with a Redis cache in front of the
// database row. A nil Redis client disables caching; cache errors never fail
// a read.
type Provider struct {
	store store.SettingsStore
	redis *redis.Client
	ttl   time.Duration
}

func NewProvider(st store.SettingsStore, client *redis.Client, ttl time.Duration) *Provider {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Provider{store: st, redis: client, ttl: ttl}
}

func (p *Provider) Get(ctx context.Context) (models.AppSettings, error) {
	if p.redis != nil {
		cached, err := p.redis.Get(ctx, cacheKey).Bytes()
		if err == nil {
			var settings models.AppSettings
			if err := json.Unmarshal(cached, &settings); err == nil {
				return settings, nil
			}
		} else if err != redis.Nil {
			log.Printf("settings cache read error: %v", err)
		}
	}

	row, err := p.store.GetSettings(ctx)
	if err != nil {
		return models.AppSettings{}, err
	}
	settings := applyDefaults(row)

	if p.redis != nil {
		payload, _ := json.Marshal(settings)
		if err := p.redis.Set(ctx, cacheKey, payload, p.ttl).Err(); err != nil {
			log.Printf("settings cache write error: %v", err)
		}
	}

	return settings, nil
}

// Invalidate drops the cached copy so the next read hits the database.
func (p *Provider) Invalidate(ctx context.Context) {
	if p.redis == nil {
		return
	}
	if err := p.redis.Del(ctx, cacheKey).Err(); err != nil {
		log.Printf("settings cache invalidate error: %v", err)
	}
}

func applyDefaults(row models.AppSettings) models.AppSettings {
	settings := models.AppSettings{
		LogoURL:      orDefault(ConvertDriveLink(row.LogoURL), ConvertDriveLink(defaults.LogoURL)),
		CourtLogoURL: orDefault(ConvertDriveLink(row.CourtLogoURL), ConvertDriveLink(defaults.CourtLogoURL)),
		LBHName:      orDefault(row.LBHName, defaults.LBHName),
		CourtName:    orDefault(row.CourtName, defaults.CourtName),
		PosbakumName: orDefault(row.PosbakumName, defaults.PosbakumName),
	}
	return settings
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

var driveIDPattern = regexp.MustCompile(`/d/([a-zA-Z0-9_-]+)`)

// ConvertDriveLink rewrites a Google Drive sharing link to the thumbnail
// endpoint, which serves directly in img tags. Non-Drive URLs pass through
// unchanged.
func ConvertDriveLink(raw string) string {
	if raw == "" {
		return raw
	}
	if !strings.Contains(raw, "drive.google.com") && !strings.Contains(raw, "docs.google.com") {
		return raw
	}

	id := ""
	if matches := driveIDPattern.FindStringSubmatch(raw); len(matches) == 2 {
		id = matches[1]
	}
	if id == "" {
		if parsed, err := url.Parse(raw); err == nil {
			id = parsed.Query().Get("id")
		}
	}
	if id == "" {
		return raw
	}
	return "https://drive.google.com/thumbnail?id=" + id + "&sz=w1000"
}
