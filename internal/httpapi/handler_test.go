package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pippoperasional-svg/LBHNUSANTARASEPAKAT/internal/models"
	"github.com/pippoperasional-svg/LBHNUSANTARASEPAKAT/internal/store"
)

type fakeStore struct {
	createFn   func(ctx context.Context, input store.CreateTicketInput) (models.Ticket, error)
	getFn      func(ctx context.Context, ticketID string) (models.Ticket, error)
	activeFn   func(ctx context.Context, sessionID string) (models.Ticket, bool, error)
	cancelFn   func(ctx context.Context, input store.TicketActionInput) (models.Ticket, error)
	callFn     func(ctx context.Context, input store.TicketActionInput) (models.Ticket, error)
	completeFn func(ctx context.Context, input store.TicketActionInput) (models.Ticket, error)
	recallFn   func(ctx context.Context, scope string) (models.Ticket, error)
	statusFn   func(ctx context.Context, limit int) (store.QueueStatus, error)
	adminFn    func(ctx context.Context, scope string) (store.AdminQueue, error)
	statsFn    func(ctx context.Context) (models.DailyStats, error)
	outboxFn   func(ctx context.Context, after time.Time, afterID string, limit int) ([]store.OutboxEvent, error)
}

func (f fakeStore) CreateTicket(ctx context.Context, input store.CreateTicketInput) (models.Ticket, error) {
	if f.createFn == nil {
		return models.Ticket{}, nil
	}
	return f.createFn(ctx, input)
}

func (f fakeStore) GetTicket(ctx context.Context, ticketID string) (models.Ticket, error) {
	if f.getFn == nil {
		return models.Ticket{}, store.ErrTicketNotFound
	}
	return f.getFn(ctx, ticketID)
}

func (f fakeStore) ActiveTicketBySession(ctx context.Context, sessionID string) (models.Ticket, bool, error) {
	if f.activeFn == nil {
		return models.Ticket{}, false, nil
	}
	return f.activeFn(ctx, sessionID)
}

func (f fakeStore) CancelTicket(ctx context.Context, input store.TicketActionInput) (models.Ticket, error) {
	if f.cancelFn == nil {
		return models.Ticket{}, nil
	}
	return f.cancelFn(ctx, input)
}

func (f fakeStore) CallTicket(ctx context.Context, input store.TicketActionInput) (models.Ticket, error) {
	if f.callFn == nil {
		return models.Ticket{}, nil
	}
	return f.callFn(ctx, input)
}

func (f fakeStore) CompleteTicket(ctx context.Context, input store.TicketActionInput) (models.Ticket, error) {
	if f.completeFn == nil {
		return models.Ticket{}, nil
	}
	return f.completeFn(ctx, input)
}

func (f fakeStore) RecallActive(ctx context.Context, scope string) (models.Ticket, error) {
	if f.recallFn == nil {
		return models.Ticket{}, store.ErrNoActiveTicket
	}
	return f.recallFn(ctx, scope)
}

func (f fakeStore) QueueStatus(ctx context.Context, limit int) (store.QueueStatus, error) {
	if f.statusFn == nil {
		return store.QueueStatus{CurrentNumber: "-"}, nil
	}
	return f.statusFn(ctx, limit)
}

func (f fakeStore) AdminQueue(ctx context.Context, scope string) (store.AdminQueue, error) {
	if f.adminFn == nil {
		return store.AdminQueue{}, nil
	}
	return f.adminFn(ctx, scope)
}

func (f fakeStore) DailyStats(ctx context.Context) (models.DailyStats, error) {
	if f.statsFn == nil {
		return models.DailyStats{}, nil
	}
	return f.statsFn(ctx)
}

func (f fakeStore) ListOutboxEvents(ctx context.Context, after time.Time, afterID string, limit int) ([]store.OutboxEvent, error) {
	if f.outboxFn == nil {
		return nil, nil
	}
	return f.outboxFn(ctx, after, afterID, limit)
}

type fakeAuth struct {
	loginFn   func(ctx context.Context, username, password string) (models.AdminSession, error)
	sessionFn func(ctx context.Context, sessionID string) (models.AdminSession, error)
	deleteFn  func(ctx context.Context, sessionID string) error
}

func (f fakeAuth) Login(ctx context.Context, username, password string) (models.AdminSession, error) {
	if f.loginFn == nil {
		return models.AdminSession{}, store.ErrLoginFailed
	}
	return f.loginFn(ctx, username, password)
}

func (f fakeAuth) GetSession(ctx context.Context, sessionID string) (models.AdminSession, error) {
	if f.sessionFn == nil {
		return models.AdminSession{}, store.ErrSessionNotFound
	}
	return f.sessionFn(ctx, sessionID)
}

func (f fakeAuth) DeleteSession(ctx context.Context, sessionID string) error {
	if f.deleteFn == nil {
		return nil
	}
	return f.deleteFn(ctx, sessionID)
}

type fakeChat struct {
	historyFn func(ctx context.Context, sessionID string) ([]models.ChatMessage, error)
	saveFn    func(ctx context.Context, message models.ChatMessage) error
	clearFn   func(ctx context.Context, sessionID string) error
}

func (f fakeChat) ChatHistory(ctx context.Context, sessionID string) ([]models.ChatMessage, error) {
	if f.historyFn == nil {
		return nil, nil
	}
	return f.historyFn(ctx, sessionID)
}

func (f fakeChat) SaveChatMessage(ctx context.Context, message models.ChatMessage) error {
	if f.saveFn == nil {
		return nil
	}
	return f.saveFn(ctx, message)
}

func (f fakeChat) ClearChatHistory(ctx context.Context, sessionID string) error {
	if f.clearFn == nil {
		return nil
	}
	return f.clearFn(ctx, sessionID)
}

type fakeSettings struct {
	getFn func(ctx context.Context) (models.AppSettings, error)
}

func (f fakeSettings) Get(ctx context.Context) (models.AppSettings, error) {
	if f.getFn == nil {
		return models.AppSettings{}, nil
	}
	return f.getFn(ctx)
}

type fakeAssistant struct {
	replyFn func(ctx context.Context, history []models.ChatMessage, message string) (string, error)
}

func (f fakeAssistant) Reply(ctx context.Context, history []models.ChatMessage, message string) (string, error) {
	if f.replyFn == nil {
		return "ok", nil
	}
	return f.replyFn(ctx, history, message)
}

const testTicketID = "aaaaaaaa-aaaa-aaaa-aaaa-aaaaaaaaaaaa"

func newTestHandler(tickets fakeStore) http.Handler {
	h := NewHandler(Options{
		Tickets:   tickets,
		Auth:      fakeAuth{},
		Settings:  fakeSettings{},
		Chat:      fakeChat{},
		Assistant: fakeAssistant{},
	})
	return h.Routes()
}

func newAdminHandler(tickets fakeStore, auth fakeAuth) http.Handler {
	h := NewHandler(Options{
		Tickets:   tickets,
		Auth:      auth,
		Settings:  fakeSettings{},
		Chat:      fakeChat{},
		Assistant: fakeAssistant{},
	})
	return AuthMiddleware(auth, h.Routes())
}

func TestCreateTicketSuccess(t *testing.T) {
	st := fakeStore{
		createFn: func(ctx context.Context, input store.CreateTicketInput) (models.Ticket, error) {
			if input.ServiceType != models.ServiceConsultation {
				t.Fatalf("unexpected service type %q", input.ServiceType)
			}
			return models.Ticket{
				ID:          testTicketID,
				QueueNumber: "A-001",
				Status:      models.StatusWaiting,
				ServiceType: input.ServiceType,
				SessionID:   input.SessionID,
			}, nil
		},
	}

	payload := map[string]string{
		"session_id":   "visitor-1",
		"name":         "Budi",
		"service_type": "consultation",
	}
	body, _ := json.Marshal(payload)
	req := httptest.NewRequest(http.MethodPost, "/api/tickets", bytes.NewReader(body))
	resp := httptest.NewRecorder()

	newTestHandler(st).ServeHTTP(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d", resp.Code)
	}

	var ticket models.Ticket
	if err := json.NewDecoder(resp.Body).Decode(&ticket); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if ticket.QueueNumber != "A-001" || ticket.Status != models.StatusWaiting {
		t.Fatalf("unexpected ticket response: %+v", ticket)
	}
}

func TestCreateTicketUnknownService(t *testing.T) {
	payload := map[string]string{
		"session_id":   "visitor-1",
		"name":         "Budi",
		"service_type": "notary",
	}
	body, _ := json.Marshal(payload)
	req := httptest.NewRequest(http.MethodPost, "/api/tickets", bytes.NewReader(body))
	resp := httptest.NewRecorder()

	newTestHandler(fakeStore{}).ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", resp.Code)
	}
}

func TestCreateTicketActiveConflict(t *testing.T) {
	st := fakeStore{
		createFn: func(ctx context.Context, input store.CreateTicketInput) (models.Ticket, error) {
			return models.Ticket{}, store.ErrActiveTicket
		},
	}

	payload := map[string]string{
		"session_id":   "visitor-1",
		"name":         "Budi",
		"service_type": "criminal",
	}
	body, _ := json.Marshal(payload)
	req := httptest.NewRequest(http.MethodPost, "/api/tickets", bytes.NewReader(body))
	resp := httptest.NewRecorder()

	newTestHandler(st).ServeHTTP(resp, req)

	if resp.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", resp.Code)
	}

	var envelope errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Error.Code != "active_ticket_exists" {
		t.Fatalf("unexpected error code %q", envelope.Error.Code)
	}
}

func TestActiveTicketNoContent(t *testing.T) {
	st := fakeStore{
		activeFn: func(ctx context.Context, sessionID string) (models.Ticket, bool, error) {
			return models.Ticket{}, false, nil
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/api/tickets/active?session_id=visitor-1", nil)
	resp := httptest.NewRecorder()

	newTestHandler(st).ServeHTTP(resp, req)

	if resp.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d", resp.Code)
	}
}

func TestCancelTicketInvalidState(t *testing.T) {
	st := fakeStore{
		cancelFn: func(ctx context.Context, input store.TicketActionInput) (models.Ticket, error) {
			if input.SessionID != "visitor-1" {
				t.Fatalf("unexpected session %q", input.SessionID)
			}
			return models.Ticket{}, store.ErrInvalidState
		},
	}

	body, _ := json.Marshal(map[string]string{"session_id": "visitor-1"})
	req := httptest.NewRequest(http.MethodPost, "/api/tickets/"+testTicketID+"/cancel", bytes.NewReader(body))
	resp := httptest.NewRecorder()

	newTestHandler(st).ServeHTTP(resp, req)

	if resp.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", resp.Code)
	}
}

func TestQueueStatusDegradesOnStoreError(t *testing.T) {
	st := fakeStore{
		statusFn: func(ctx context.Context, limit int) (store.QueueStatus, error) {
			return store.QueueStatus{}, errors.New("connection refused")
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/api/queue/status", nil)
	resp := httptest.NewRecorder()

	newTestHandler(st).ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}

	var status store.QueueStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if status.CurrentNumber != "-" || len(status.Pending) != 0 {
		t.Fatalf("expected degraded empty board, got %+v", status)
	}
}

func TestDailyStats(t *testing.T) {
	st := fakeStore{
		statsFn: func(ctx context.Context) (models.DailyStats, error) {
			return models.DailyStats{
				Total:     5,
				Completed: 3,
				Cancelled: 1,
				ByService: map[string]int{"consultation": 4, "criminal": 1},
			}, nil
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/api/stats/daily", nil)
	resp := httptest.NewRecorder()

	newTestHandler(st).ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}

	var stats models.DailyStats
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if stats.Total != 5 || stats.ByService["consultation"] != 4 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestAdminEndpointsRequireSession(t *testing.T) {
	handler := newAdminHandler(fakeStore{}, fakeAuth{})

	req := httptest.NewRequest(http.MethodGet, "/api/admin/queue", nil)
	resp := httptest.NewRecorder()

	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", resp.Code)
	}
}

func TestAdminCallTicketScoped(t *testing.T) {
	var gotScope string
	st := fakeStore{
		callFn: func(ctx context.Context, input store.TicketActionInput) (models.Ticket, error) {
			gotScope = input.Scope
			return models.Ticket{ID: input.TicketID, Status: models.StatusCalled}, nil
		},
	}
	auth := fakeAuth{
		sessionFn: func(ctx context.Context, sessionID string) (models.AdminSession, error) {
			if sessionID != "admin-session" {
				return models.AdminSession{}, store.ErrSessionNotFound
			}
			return models.AdminSession{SessionID: sessionID, Username: "petugas", Scope: models.ServiceCriminal}, nil
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/api/admin/tickets/"+testTicketID+"/call", bytes.NewReader([]byte("{}")))
	req.Header.Set("Authorization", "Bearer admin-session")
	resp := httptest.NewRecorder()

	newAdminHandler(st, auth).ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
	if gotScope != models.ServiceCriminal {
		t.Fatalf("expected scope %q, got %q", models.ServiceCriminal, gotScope)
	}
}

func TestAdminCallTicketScopeDenied(t *testing.T) {
	st := fakeStore{
		callFn: func(ctx context.Context, input store.TicketActionInput) (models.Ticket, error) {
			return models.Ticket{}, store.ErrScopeDenied
		},
	}
	auth := fakeAuth{
		sessionFn: func(ctx context.Context, sessionID string) (models.AdminSession, error) {
			return models.AdminSession{SessionID: sessionID, Scope: models.ServiceCivil}, nil
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/api/admin/tickets/"+testTicketID+"/call", bytes.NewReader([]byte("{}")))
	req.Header.Set("X-Session-ID", "admin-session")
	resp := httptest.NewRecorder()

	newAdminHandler(st, auth).ServeHTTP(resp, req)

	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected status 403, got %d", resp.Code)
	}
}

func TestAdminRecallNoActiveTicket(t *testing.T) {
	st := fakeStore{
		recallFn: func(ctx context.Context, scope string) (models.Ticket, error) {
			return models.Ticket{}, store.ErrNoActiveTicket
		},
	}
	auth := fakeAuth{
		sessionFn: func(ctx context.Context, sessionID string) (models.AdminSession, error) {
			return models.AdminSession{SessionID: sessionID, Scope: models.ScopeAll}, nil
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/api/admin/recall", nil)
	req.Header.Set("X-Session-ID", "admin-session")
	resp := httptest.NewRecorder()

	newAdminHandler(st, auth).ServeHTTP(resp, req)

	if resp.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", resp.Code)
	}
}

func TestAdminQueueScopeOverrideDenied(t *testing.T) {
	auth := fakeAuth{
		sessionFn: func(ctx context.Context, sessionID string) (models.AdminSession, error) {
			return models.AdminSession{SessionID: sessionID, Scope: models.ServiceCriminal}, nil
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/api/admin/queue?scope=civil", nil)
	req.Header.Set("X-Session-ID", "admin-session")
	resp := httptest.NewRecorder()

	newAdminHandler(fakeStore{}, auth).ServeHTTP(resp, req)

	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected status 403, got %d", resp.Code)
	}
}

func TestLoginFailed(t *testing.T) {
	auth := fakeAuth{
		loginFn: func(ctx context.Context, username, password string) (models.AdminSession, error) {
			return models.AdminSession{}, store.ErrLoginFailed
		},
	}

	body, _ := json.Marshal(map[string]string{"username": "petugas", "password": "wrong"})
	req := httptest.NewRequest(http.MethodPost, "/api/admin/login", bytes.NewReader(body))
	resp := httptest.NewRecorder()

	newAdminHandler(fakeStore{}, auth).ServeHTTP(resp, req)

	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", resp.Code)
	}
}

func TestChatPersistsBothMessages(t *testing.T) {
	var saved []models.ChatMessage
	chat := fakeChat{
		saveFn: func(ctx context.Context, message models.ChatMessage) error {
			saved = append(saved, message)
			return nil
		},
	}
	assistant := fakeAssistant{
		replyFn: func(ctx context.Context, history []models.ChatMessage, message string) (string, error) {
			return "Silakan datang ke loket POSBAKUM.", nil
		},
	}
	h := NewHandler(Options{
		Tickets:   fakeStore{},
		Auth:      fakeAuth{},
		Settings:  fakeSettings{},
		Chat:      chat,
		Assistant: assistant,
	})

	body, _ := json.Marshal(map[string]string{"session_id": "visitor-1", "message": "Bagaimana cara mendaftar?"})
	req := httptest.NewRequest(http.MethodPost, "/api/chat", bytes.NewReader(body))
	resp := httptest.NewRecorder()

	h.Routes().ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
	if len(saved) != 2 || saved[0].Role != "user" || saved[1].Role != "model" {
		t.Fatalf("expected user+model messages saved, got %+v", saved)
	}

	var reply models.ChatMessage
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if reply.Text != "Silakan datang ke loket POSBAKUM." {
		t.Fatalf("unexpected reply %q", reply.Text)
	}
}

func TestSettingsEndpoint(t *testing.T) {
	h := NewHandler(Options{
		Tickets: fakeStore{},
		Auth:    fakeAuth{},
		Settings: fakeSettings{
			getFn: func(ctx context.Context) (models.AppSettings, error) {
				return models.AppSettings{LBHName: "LBH NUSANTARA SEPAKAT"}, nil
			},
		},
		Chat:      fakeChat{},
		Assistant: fakeAssistant{},
	})

	req := httptest.NewRequest(http.MethodGet, "/api/settings", nil)
	resp := httptest.NewRecorder()

	h.Routes().ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}

	var settings models.AppSettings
	if err := json.NewDecoder(resp.Body).Decode(&settings); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if settings.LBHName != "LBH NUSANTARA SEPAKAT" {
		t.Fatalf("unexpected settings: %+v", settings)
	}
}

func TestRateLimiterBlocksAfterBurst(t *testing.T) {
	limiter := NewRateLimiter(RateLimitConfig{IPPerMinute: 1, IPBurst: 2})
	handler := limiter.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	var last int
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/queue/status", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, req)
		last = resp.Code
	}

	if last != http.StatusTooManyRequests {
		t.Fatalf("expected status 429 after burst, got %d", last)
	}
}
