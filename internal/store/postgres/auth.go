package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/pippoperasional-svg/LBHNUSANTARASEPAKAT/internal/models"
	"github.com/pippoperasional-svg/LBHNUSANTARASEPAKAT/internal/store"
)

func (s *Store) Login(ctx context.Context, username, password string) (models.AdminSession, error) {
	var name, scope, passwordHash string
	row := s.pool.QueryRow(ctx, `
		SELECT name, scope, password_hash
		FROM admins
		WHERE username = $1
	`, username)
	if err := row.Scan(&name, &scope, &passwordHash); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.AdminSession{}, store.ErrLoginFailed
		}
		return models.AdminSession{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(passwordHash), []byte(password)); err != nil {
		return models.AdminSession{}, store.ErrLoginFailed
	}

	session := models.AdminSession{
		SessionID: uuid.NewString(),
		Username:  username,
		Name:      name,
		Scope:     scope,
		ExpiresAt: time.Now().UTC().Add(s.sessionTTL),
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO admin_sessions (session_id, username, expires_at)
		VALUES ($1, $2, $3)
	`, session.SessionID, session.Username, session.ExpiresAt)
	if err != nil {
		return models.AdminSession{}, err
	}
	return session, nil
}

func (s *Store) GetSession(ctx context.Context, sessionID string) (models.AdminSession, error) {
	var session models.AdminSession
	row := s.pool.QueryRow(ctx, `
		SELECT s.session_id, s.username, a.name, a.scope, s.expires_at
		FROM admin_sessions s
		JOIN admins a ON a.username = s.username
		WHERE s.session_id = $1
	`, sessionID)
	if err := row.Scan(&session.SessionID, &session.Username, &session.Name, &session.Scope, &session.ExpiresAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.AdminSession{}, store.ErrSessionNotFound
		}
		return models.AdminSession{}, err
	}
	if time.Now().After(session.ExpiresAt) {
		_, _ = s.pool.Exec(ctx, `DELETE FROM admin_sessions WHERE session_id = $1`, sessionID)
		return models.AdminSession{}, store.ErrSessionNotFound
	}
	return session, nil
}

func (s *Store) DeleteSession(ctx context.Context, sessionID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM admin_sessions WHERE session_id = $1`, sessionID)
	return err
}
