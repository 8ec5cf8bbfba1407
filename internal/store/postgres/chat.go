package postgres

import (
	"context"

	"github.com/pippoperasional-svg/LBHNUSANTARASEPAKAT/internal/models"
)

func (s *Store) ChatHistory(ctx context.Context, sessionID string) ([]models.ChatMessage, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, session_id, role, text, timestamp
		FROM chat_messages
		WHERE session_id = $1
		ORDER BY timestamp ASC
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []models.ChatMessage
	for rows.Next() {
		var msg models.ChatMessage
		if err := rows.Scan(&msg.ID, &msg.SessionID, &msg.Role, &msg.Text, &msg.Timestamp); err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return messages, nil
}

func (s *Store) SaveChatMessage(ctx context.Context, message models.ChatMessage) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO chat_messages (id, session_id, role, text, timestamp)
		VALUES ($1, $2, $3, $4, $5)
	`, message.ID, message.SessionID, message.Role, message.Text, message.Timestamp)
	return err
}

func (s *Store) ClearChatHistory(ctx context.Context, sessionID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM chat_messages WHERE session_id = $1`, sessionID)
	return err
}
