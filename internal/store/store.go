package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pippoperasional-svg/LBHNUSANTARASEPAKAT/internal/models"
)

type CreateTicketInput struct {
	SessionID   string
	Name        string
	Phone       string
	CaseNumber  string
	ServiceType string
	CreatedAt   time.Time
}

type TicketActionInput struct {
	TicketID   string
	SessionID  string
	Scope      string
	OccurredAt time.Time
}

type QueueStatus struct {
	CurrentNumber string          `json:"current_number"`
	Pending       []models.Ticket `json:"pending"`
}

type AdminQueue struct {
	Active  *models.Ticket  `json:"active"`
	Waiting []models.Ticket `json:"waiting"`
}

type TicketStore interface {
	CreateTicket(ctx context.Context, input CreateTicketInput) (models.Ticket, error)
	GetTicket(ctx context.Context, ticketID string) (models.Ticket, error)
	ActiveTicketBySession(ctx context.Context, sessionID string) (models.Ticket, bool, error)
	CancelTicket(ctx context.Context, input TicketActionInput) (models.Ticket, error)
	CallTicket(ctx context.Context, input TicketActionInput) (models.Ticket, error)
	CompleteTicket(ctx context.Context, input TicketActionInput) (models.Ticket, error)
	RecallActive(ctx context.Context, scope string) (models.Ticket, error)
	QueueStatus(ctx context.Context, limit int) (QueueStatus, error)
	AdminQueue(ctx context.Context, scope string) (AdminQueue, error)
	DailyStats(ctx context.Context) (models.DailyStats, error)
	ListOutboxEvents(ctx context.Context, after time.Time, afterID string, limit int) ([]OutboxEvent, error)
}

type AuthStore interface {
	Login(ctx context.Context, username, password string) (models.AdminSession, error)
	GetSession(ctx context.Context, sessionID string) (models.AdminSession, error)
	DeleteSession(ctx context.Context, sessionID string) error
}

type SettingsStore interface {
	GetSettings(ctx context.Context) (models.AppSettings, error)
}

type ChatStore interface {
	ChatHistory(ctx context.Context, sessionID string) ([]models.ChatMessage, error)
	SaveChatMessage(ctx context.Context, message models.ChatMessage) error
	ClearChatHistory(ctx context.Context, sessionID string) error
}

type OutboxEvent struct {
	EventID   string          `json:"event_id"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}
