package postgres

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pippoperasional-svg/LBHNUSANTARASEPAKAT/internal/models"
	"github.com/pippoperasional-svg/LBHNUSANTARASEPAKAT/internal/store"
)

const (
	queueNumberPad     = 3
	baseServiceMinutes = 15
)

type Store struct {
	pool            *pgxpool.Pool
	loc             *time.Location
	maxIssueRetries int
	sessionTTL      time.Duration
}

type Options struct {
	// Location fixes the local-midnight day boundary for sequences and stats.
	Location        *time.Location
	MaxIssueRetries int
	SessionTTL      time.Duration
}

func NewStore(pool *pgxpool.Pool, options Options) *Store {
	loc := options.Location
	if loc == nil {
		loc = time.Local
	}
	retries := options.MaxIssueRetries
	if retries <= 0 {
		retries = 3
	}
	ttl := options.SessionTTL
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &Store{
		pool:            pool,
		loc:             loc,
		maxIssueRetries: retries,
		sessionTTL:      ttl,
	}
}

func (s *Store) CreateTicket(ctx context.Context, input store.CreateTicketInput) (models.Ticket, error) {
	if !models.ValidService(input.ServiceType) {
		return models.Ticket{}, store.ErrServiceNotFound
	}

	createdAt := input.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	var lastErr error
	for attempt := 0; attempt < s.maxIssueRetries; attempt++ {
		ticket, retryable, err := s.createTicketOnce(ctx, input, createdAt, 0)
		if err == nil {
			return ticket, nil
		}
		if !retryable {
			return models.Ticket{}, err
		}
		lastErr = err
	}

	// Degraded mode: a randomized suffix keeps registration available when
	// the sequence row stays contended or unreachable. It can collide, so
	// it is flagged and logged.
	suffix := 1 + rand.IntN(999)
	ticket, _, err := s.createTicketOnce(ctx, input, createdAt, suffix)
	if err != nil {
		if lastErr != nil {
			return models.Ticket{}, lastErr
		}
		return models.Ticket{}, err
	}
	log.Printf("degraded queue number issued number=%s service=%s", ticket.QueueNumber, ticket.ServiceType)
	return ticket, nil
}

// createTicketOnce runs one issuance attempt in a single transaction. When
// fallbackSeq is non-zero it is used verbatim instead of advancing the
// sequence row. The second return value reports whether the caller may retry.
func (s *Store) createTicketOnce(ctx context.Context, input store.CreateTicketInput, createdAt time.Time, fallbackSeq int) (models.Ticket, bool, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Ticket{}, true, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	// Serializes registrations from the same device so the single-active-
	// ticket check cannot race with a concurrent insert.
	if _, err = tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, input.SessionID); err != nil {
		return models.Ticket{}, true, err
	}

	var hasActive bool
	row := tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM tickets
			WHERE session_id = $1 AND status IN ('waiting', 'called')
		)
	`, input.SessionID)
	if err = row.Scan(&hasActive); err != nil {
		return models.Ticket{}, true, err
	}
	if hasActive {
		err = store.ErrActiveTicket
		return models.Ticket{}, false, err
	}

	day := dayOf(createdAt, s.loc)
	var seq int64
	if fallbackSeq > 0 {
		seq = int64(fallbackSeq)
	} else {
		seq, err = nextQueueNumber(ctx, tx, input.ServiceType, day)
		if err != nil {
			return models.Ticket{}, true, err
		}
	}

	prefix := models.ServicePrefix(input.ServiceType)
	formattedNumber := fmt.Sprintf("%s-%0*d", prefix, queueNumberPad, seq)

	// The estimate reflects the whole office queue, not just this category,
	// since any desk may be the visitor's bottleneck.
	var waiting int
	row = tx.QueryRow(ctx, `
		SELECT COUNT(*) FROM tickets
		WHERE status = 'waiting' AND timestamp >= $1
	`, startOfDayMillis(createdAt, s.loc))
	if err = row.Scan(&waiting); err != nil {
		return models.Ticket{}, true, err
	}
	estimated := (waiting + 1) * baseServiceMinutes

	ticket := models.Ticket{
		ID:               uuid.NewString(),
		QueueNumber:      formattedNumber,
		Name:             input.Name,
		CaseNumber:       input.CaseNumber,
		ServiceType:      input.ServiceType,
		Status:           models.StatusWaiting,
		EstimatedMinutes: estimated,
		Timestamp:        createdAt.UnixMilli(),
		SessionID:        input.SessionID,
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO tickets (
			id, queue_number, name, case_number, service_type, status,
			estimated_time, timestamp, session_id, phone_hash, degraded
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`, ticket.ID, ticket.QueueNumber, ticket.Name, nullIfEmpty(ticket.CaseNumber), ticket.ServiceType,
		ticket.Status, ticket.EstimatedMinutes, ticket.Timestamp, ticket.SessionID,
		hashPhone(input.Phone), fallbackSeq > 0)
	if err != nil {
		return models.Ticket{}, true, err
	}

	if err = insertOutboxEvent(ctx, tx, "ticket.created", ticket); err != nil {
		return models.Ticket{}, true, err
	}

	if err = tx.Commit(ctx); err != nil {
		return models.Ticket{}, true, err
	}
	return ticket, false, nil
}

func (s *Store) GetTicket(ctx context.Context, ticketID string) (models.Ticket, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+ticketColumns+`
		FROM tickets
		WHERE id = $1
	`, ticketID)
	ticket, err := scanTicket(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Ticket{}, store.ErrTicketNotFound
		}
		return models.Ticket{}, err
	}
	return ticket, nil
}

func (s *Store) ActiveTicketBySession(ctx context.Context, sessionID string) (models.Ticket, bool, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+ticketColumns+`
		FROM tickets
		WHERE session_id = $1 AND status IN ('waiting', 'called')
		ORDER BY timestamp DESC
		LIMIT 1
	`, sessionID)
	ticket, err := scanTicket(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Ticket{}, false, nil
		}
		return models.Ticket{}, false, err
	}
	return ticket, true, nil
}

func (s *Store) CancelTicket(ctx context.Context, input store.TicketActionInput) (models.Ticket, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Ticket{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	query := `
		UPDATE tickets
		SET status = 'cancelled'
		WHERE id = $1 AND status = 'waiting'
	`
	args := []interface{}{input.TicketID}
	if input.SessionID != "" {
		args = append(args, input.SessionID)
		query += fmt.Sprintf(" AND session_id = $%d", len(args))
	}
	if input.Scope != "" && input.Scope != models.ScopeAll {
		args = append(args, input.Scope)
		query += fmt.Sprintf(" AND service_type = $%d", len(args))
	}
	query += " RETURNING " + ticketColumns

	ticket, err := scanTicket(tx.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = s.diagnoseFailedUpdate(ctx, tx, input, "cancel")
			return models.Ticket{}, err
		}
		return models.Ticket{}, err
	}

	if err = insertOutboxEvent(ctx, tx, "ticket.cancelled", ticket); err != nil {
		return models.Ticket{}, err
	}
	if err = tx.Commit(ctx); err != nil {
		return models.Ticket{}, err
	}
	return ticket, nil
}

func (s *Store) CallTicket(ctx context.Context, input store.TicketActionInput) (models.Ticket, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Ticket{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	// Scopes overlap (ALL spans every category), so calls from concurrent
	// consoles are serialized globally to keep one called ticket per scope.
	if _, err = tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext('tickets:call'))`); err != nil {
		return models.Ticket{}, err
	}

	var status, serviceType string
	row := tx.QueryRow(ctx, `
		SELECT status, service_type
		FROM tickets
		WHERE id = $1
		FOR UPDATE
	`, input.TicketID)
	if err = row.Scan(&status, &serviceType); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = store.ErrTicketNotFound
		}
		return models.Ticket{}, err
	}
	if !models.InScope(input.Scope, serviceType) {
		err = store.ErrScopeDenied
		return models.Ticket{}, err
	}
	if !store.ValidTransition("call", status) {
		err = store.ErrInvalidState
		return models.Ticket{}, err
	}

	occurredAt := input.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now()
	}

	// A counter serves one visitor at a time: whatever is currently called
	// within the admin's scope is closed out before the new call.
	if err = s.completeCalledInScope(ctx, tx, input.Scope, input.TicketID, occurredAt); err != nil {
		return models.Ticket{}, err
	}

	ticket, err := scanTicket(tx.QueryRow(ctx, `
		UPDATE tickets
		SET status = 'called', called_at = $2
		WHERE id = $1 AND status = 'waiting'
		RETURNING `+ticketColumns, input.TicketID, occurredAt))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = store.ErrInvalidState
		}
		return models.Ticket{}, err
	}

	if err = insertOutboxEvent(ctx, tx, "ticket.called", ticket); err != nil {
		return models.Ticket{}, err
	}
	if err = tx.Commit(ctx); err != nil {
		return models.Ticket{}, err
	}
	return ticket, nil
}

func (s *Store) completeCalledInScope(ctx context.Context, tx pgx.Tx, scope, exceptTicketID string, occurredAt time.Time) error {
	query := `
		UPDATE tickets
		SET status = 'completed', completed_at = $2
		WHERE status = 'called' AND id <> $1
	`
	args := []interface{}{exceptTicketID, occurredAt}
	if scope != models.ScopeAll {
		query += " AND service_type = $3"
		args = append(args, scope)
	}
	query += " RETURNING " + ticketColumns

	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	var completed []models.Ticket
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return err
		}
		completed = append(completed, ticket)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	for _, ticket := range completed {
		if err := insertOutboxEvent(ctx, tx, "ticket.completed", ticket); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) CompleteTicket(ctx context.Context, input store.TicketActionInput) (models.Ticket, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Ticket{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	occurredAt := input.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now()
	}

	query := `
		UPDATE tickets
		SET status = 'completed', completed_at = $2
		WHERE id = $1 AND status = 'called'
	`
	args := []interface{}{input.TicketID, occurredAt}
	if input.Scope != "" && input.Scope != models.ScopeAll {
		query += " AND service_type = $3"
		args = append(args, input.Scope)
	}
	query += " RETURNING " + ticketColumns

	ticket, err := scanTicket(tx.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = s.diagnoseFailedUpdate(ctx, tx, input, "complete")
			return models.Ticket{}, err
		}
		return models.Ticket{}, err
	}

	if err = insertOutboxEvent(ctx, tx, "ticket.completed", ticket); err != nil {
		return models.Ticket{}, err
	}
	if err = tx.Commit(ctx); err != nil {
		return models.Ticket{}, err
	}
	return ticket, nil
}

func (s *Store) RecallActive(ctx context.Context, scope string) (models.Ticket, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Ticket{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	query := `
		SELECT ` + ticketColumns + `
		FROM tickets
		WHERE status = 'called'
	`
	args := []interface{}{}
	if scope != models.ScopeAll {
		query += " AND service_type = $1"
		args = append(args, scope)
	}
	query += " ORDER BY called_at DESC LIMIT 1"

	ticket, err := scanTicket(tx.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = store.ErrNoActiveTicket
		}
		return models.Ticket{}, err
	}

	// Recall re-announces without touching status.
	if err = insertOutboxEvent(ctx, tx, "ticket.recalled", ticket); err != nil {
		return models.Ticket{}, err
	}
	if err = tx.Commit(ctx); err != nil {
		return models.Ticket{}, err
	}
	return ticket, nil
}

func (s *Store) QueueStatus(ctx context.Context, limit int) (store.QueueStatus, error) {
	if limit <= 0 {
		limit = 10
	}

	status := store.QueueStatus{CurrentNumber: "-", Pending: []models.Ticket{}}

	var current string
	row := s.pool.QueryRow(ctx, `
		SELECT queue_number
		FROM tickets
		WHERE status = 'called'
		ORDER BY called_at DESC
		LIMIT 1
	`)
	if err := row.Scan(&current); err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return store.QueueStatus{}, err
		}
	} else {
		status.CurrentNumber = current
	}

	rows, err := s.pool.Query(ctx, `
		SELECT `+ticketColumns+`
		FROM tickets
		WHERE status = 'waiting'
		ORDER BY timestamp ASC
		LIMIT $1
	`, limit)
	if err != nil {
		return store.QueueStatus{}, err
	}
	defer rows.Close()

	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return store.QueueStatus{}, err
		}
		status.Pending = append(status.Pending, ticket)
	}
	if err := rows.Err(); err != nil {
		return store.QueueStatus{}, err
	}
	return status, nil
}

func (s *Store) AdminQueue(ctx context.Context, scope string) (store.AdminQueue, error) {
	result := store.AdminQueue{Waiting: []models.Ticket{}}

	activeQuery := `
		SELECT ` + ticketColumns + `
		FROM tickets
		WHERE status = 'called'
	`
	activeArgs := []interface{}{}
	if scope != models.ScopeAll {
		activeQuery += " AND service_type = $1"
		activeArgs = append(activeArgs, scope)
	}
	activeQuery += " ORDER BY called_at DESC LIMIT 1"

	ticket, err := scanTicket(s.pool.QueryRow(ctx, activeQuery, activeArgs...))
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return store.AdminQueue{}, err
		}
	} else {
		result.Active = &ticket
	}

	waitingQuery := `
		SELECT ` + ticketColumns + `
		FROM tickets
		WHERE status = 'waiting'
	`
	waitingArgs := []interface{}{}
	if scope != models.ScopeAll {
		waitingQuery += " AND service_type = $1"
		waitingArgs = append(waitingArgs, scope)
	}
	waitingQuery += " ORDER BY timestamp ASC"

	rows, err := s.pool.Query(ctx, waitingQuery, waitingArgs...)
	if err != nil {
		return store.AdminQueue{}, err
	}
	defer rows.Close()

	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return store.AdminQueue{}, err
		}
		result.Waiting = append(result.Waiting, ticket)
	}
	if err := rows.Err(); err != nil {
		return store.AdminQueue{}, err
	}
	return result, nil
}

func (s *Store) DailyStats(ctx context.Context) (models.DailyStats, error) {
	stats := models.DailyStats{ByService: map[string]int{}}
	for _, svc := range models.Services() {
		stats.ByService[svc.Code] = 0
	}

	since := startOfDayMillis(time.Now(), s.loc)
	rows, err := s.pool.Query(ctx, `
		SELECT service_type, status
		FROM tickets
		WHERE timestamp >= $1
	`, since)
	if err != nil {
		return models.DailyStats{}, err
	}
	defer rows.Close()

	for rows.Next() {
		var serviceType, status string
		if err := rows.Scan(&serviceType, &status); err != nil {
			return models.DailyStats{}, err
		}
		stats.Total++
		switch status {
		case models.StatusCompleted:
			stats.Completed++
		case models.StatusCancelled:
			stats.Cancelled++
		}
		if _, ok := stats.ByService[serviceType]; ok {
			stats.ByService[serviceType]++
		}
	}
	if err := rows.Err(); err != nil {
		return models.DailyStats{}, err
	}
	return stats, nil
}

func (s *Store) ListOutboxEvents(ctx context.Context, after time.Time, afterID string, limit int) ([]store.OutboxEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	if afterID == "" {
		afterID = "00000000-0000-0000-0000-000000000000"
	}

	rows, err := s.pool.Query(ctx, `
		SELECT event_id, type, payload_json, created_at
		FROM outbox_events
		WHERE created_at > $1 OR (created_at = $1 AND event_id > $2)
		ORDER BY created_at ASC, event_id ASC
		LIMIT $3
	`, after, afterID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []store.OutboxEvent
	for rows.Next() {
		var event store.OutboxEvent
		if err := rows.Scan(&event.EventID, &event.Type, &event.Payload, &event.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

// diagnoseFailedUpdate distinguishes a missing ticket from one in the wrong
// state after a conditional update matched no rows.
func (s *Store) diagnoseFailedUpdate(ctx context.Context, tx pgx.Tx, input store.TicketActionInput, action string) error {
	var status, serviceType, sessionID string
	row := tx.QueryRow(ctx, `
		SELECT status, service_type, session_id
		FROM tickets
		WHERE id = $1
	`, input.TicketID)
	if err := row.Scan(&status, &serviceType, &sessionID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.ErrTicketNotFound
		}
		return err
	}
	if input.SessionID != "" && sessionID != input.SessionID {
		return store.ErrTicketNotFound
	}
	if input.Scope != "" && !models.InScope(input.Scope, serviceType) {
		return store.ErrScopeDenied
	}
	if !store.ValidTransition(action, status) {
		return store.ErrInvalidState
	}
	return store.ErrInvalidState
}

func nextQueueNumber(ctx context.Context, tx pgx.Tx, serviceType string, day time.Time) (int64, error) {
	var next int64
	row := tx.QueryRow(ctx, `
		INSERT INTO ticket_sequences (service_type, day, last_issued)
		VALUES ($1, $2, 1)
		ON CONFLICT (service_type, day)
		DO UPDATE SET last_issued = ticket_sequences.last_issued + 1
		RETURNING last_issued
	`, serviceType, day)
	if err := row.Scan(&next); err != nil {
		return 0, err
	}
	return next, nil
}

const ticketColumns = "id, queue_number, name, case_number, service_type, status, estimated_time, timestamp, session_id, called_at, completed_at"

func scanTicket(row pgx.Row) (models.Ticket, error) {
	var ticket models.Ticket
	var caseNumberNull sql.NullString
	var calledAtNull sql.NullTime
	var completedAtNull sql.NullTime
	if err := row.Scan(&ticket.ID, &ticket.QueueNumber, &ticket.Name, &caseNumberNull, &ticket.ServiceType,
		&ticket.Status, &ticket.EstimatedMinutes, &ticket.Timestamp, &ticket.SessionID,
		&calledAtNull, &completedAtNull); err != nil {
		return models.Ticket{}, err
	}
	if caseNumberNull.Valid {
		ticket.CaseNumber = caseNumberNull.String
	}
	ticket.CalledAt = nullTimePtr(calledAtNull)
	ticket.CompletedAt = nullTimePtr(completedAtNull)
	return ticket, nil
}

func dayOf(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)
}

func startOfDayMillis(t time.Time, loc *time.Location) int64 {
	local := t.In(loc)
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	return midnight.UnixMilli()
}

func nullIfEmpty(value string) interface{} {
	if value == "" {
		return nil
	}
	return value
}

func hashPhone(phone string) interface{} {
	trimmed := strings.TrimSpace(phone)
	if trimmed == "" {
		return nil
	}
	sum := sha256.Sum256([]byte(trimmed))
	return fmt.Sprintf("%x", sum)
}

func nullTimePtr(value sql.NullTime) *time.Time {
	if !value.Valid {
		return nil
	}
	return &value.Time
}
