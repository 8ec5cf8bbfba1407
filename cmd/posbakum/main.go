package main

import (
	"context"
	"expvar"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pippoperasional-svg/LBHNUSANTARASEPAKAT/internal/announcer"
	"github.com/pippoperasional-svg/LBHNUSANTARASEPAKAT/internal/assistant"
	"github.com/pippoperasional-svg/LBHNUSANTARASEPAKAT/internal/config"
	"github.com/pippoperasional-svg/LBHNUSANTARASEPAKAT/internal/httpapi"
	"github.com/pippoperasional-svg/LBHNUSANTARASEPAKAT/internal/hub"
	"github.com/pippoperasional-svg/LBHNUSANTARASEPAKAT/internal/settings"
	"github.com/pippoperasional-svg/LBHNUSANTARASEPAKAT/internal/store/postgres"
	"github.com/pippoperasional-svg/LBHNUSANTARASEPAKAT/internal/telemetry"

	"github.com/google/uuid"
	"github.com/igm/sockjs-go/sockjs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	cfg := config.Load()
	shutdownTelemetry := telemetry.Setup("posbakum-queue")
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTelemetry(ctx)
	}()

	location, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		log.Fatalf("load timezone %q: %v", cfg.Timezone, err)
	}

	pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}
	defer pool.Close()

	st := postgres.NewStore(pool, postgres.Options{
		Location:        location,
		MaxIssueRetries: cfg.IssueRetries,
		SessionTTL:      cfg.SessionTTL,
	})

	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer redisClient.Close()
	}
	settingsProvider := settings.NewProvider(st, redisClient, cfg.SettingsCacheTTL)

	chatAssistant := assistant.New(cfg.ChatProvider, cfg.GeminiAPIKey, cfg.GeminiModel)

	handler := httpapi.NewHandler(httpapi.Options{
		Tickets:      st,
		Auth:         st,
		Settings:     settingsProvider,
		Chat:         st,
		Assistant:    chatAssistant,
		PendingLimit: cfg.PendingListLimit,
	})

	announceHub := hub.New()

	mux := http.NewServeMux()
	mux.Handle("/metrics", expvar.Handler())
	mux.Handle("/announcements/", newAnnouncementHandler(announceHub))
	mux.Handle("/", httpapi.AuthMiddleware(st, handler.Routes()))

	limiter := httpapi.NewRateLimiter(httpapi.RateLimitConfig{
		IPPerMinute:      cfg.RateLimitPerMinute,
		IPBurst:          cfg.RateLimitBurst,
		SessionPerMinute: cfg.SessionRateLimitPerMinute,
		SessionBurst:     cfg.SessionRateLimitBurst,
	})

	otelHandler := otelhttp.NewHandler(httpapi.LoggingMiddleware(limiter.Middleware(mux)), "posbakum-queue")
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      otelHandler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	pollCtx, stopPoller := context.WithCancel(context.Background())
	defer stopPoller()
	go announcer.New(st, announceHub, cfg.AnnouncePollInterval, cfg.AnnounceBatchSize).Run(pollCtx)

	go func() {
		log.Printf("posbakum-queue listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	stopPoller()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}

// newAnnouncementHandler exposes the hub over SockJS. Displays are public,
// so no session check; clients narrow what they hear with a subscribe
// message.
func newAnnouncementHandler(h *hub.Hub) http.Handler {
	return sockjs.NewHandler("/announcements", sockjs.DefaultOptions, func(session sockjs.Session) {
		client := &hub.Client{ID: uuid.NewString(), Send: make(chan []byte, 16)}
		h.Register(client)
		defer h.Unregister(client)

		go func() {
			for msg := range client.Send {
				_ = session.Send(string(msg))
			}
		}()

		for {
			msg, err := session.Recv()
			if err != nil {
				return
			}
			parsed, ok := hub.ParseSubscribe([]byte(msg))
			if !ok {
				continue
			}
			if parsed.Action == "unsubscribe" {
				h.UpdateSubscription(client, hub.Subscription{})
				continue
			}
			h.UpdateSubscription(client, hub.Subscription{ServiceType: parsed.ServiceType})
		}
	})
}
