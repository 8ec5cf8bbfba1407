package postgres

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/pippoperasional-svg/LBHNUSANTARASEPAKAT/internal/models"
)

func insertOutboxEvent(ctx context.Context, tx pgx.Tx, eventType string, ticket models.Ticket) error {
	payload := map[string]interface{}{
		"id":           ticket.ID,
		"queue_number": ticket.QueueNumber,
		"service_type": ticket.ServiceType,
		"service_name": models.ServiceName(ticket.ServiceType),
		"status":       ticket.Status,
		"timestamp":    ticket.Timestamp,
	}
	if ticket.CalledAt != nil {
		payload["called_at"] = ticket.CalledAt
	}
	if ticket.CompletedAt != nil {
		payload["completed_at"] = ticket.CompletedAt
	}

	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO outbox_events (event_id, type, payload_json, created_at)
		VALUES ($1, $2, $3, $4)
	`, uuid.NewString(), eventType, payloadJSON, time.Now().UTC())
	return err
}
