package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/pippoperasional-svg/LBHNUSANTARASEPAKAT/internal/models"
	"github.com/pippoperasional-svg/LBHNUSANTARASEPAKAT/internal/store"

	"github.com/google/uuid"
)

// SettingsProvider serves branding settings, typically through a cache.
type SettingsProvider interface {
	Get(ctx context.Context) (models.AppSettings, error)
}

// Assistant produces a reply for a visitor chat message given the prior
// conversation. Implementations must not panic on upstream failure.
type Assistant interface {
	Reply(ctx context.Context, history []models.ChatMessage, message string) (string, error)
}

type Handler struct {
	tickets      store.TicketStore
	auth         store.AuthStore
	settings     SettingsProvider
	chat         store.ChatStore
	assistant    Assistant
	pendingLimit int
}

type Options struct {
	Tickets      store.TicketStore
	Auth         store.AuthStore
	Settings     SettingsProvider
	Chat         store.ChatStore
	Assistant    Assistant
	PendingLimit int
}

func NewHandler(options Options) *Handler {
	limit := options.PendingLimit
	if limit <= 0 {
		limit = 10
	}
	return &Handler{
		tickets:      options.Tickets,
		auth:         options.Auth,
		settings:     options.Settings,
		chat:         options.Chat,
		assistant:    options.Assistant,
		pendingLimit: limit,
	}
}

type createTicketRequest struct {
	RequestID   string `json:"request_id"`
	SessionID   string `json:"session_id"`
	Name        string `json:"name"`
	Phone       string `json:"phone"`
	CaseNumber  string `json:"case_number"`
	ServiceType string `json:"service_type"`
}

type cancelTicketRequest struct {
	RequestID string `json:"request_id"`
	SessionID string `json:"session_id"`
}

type loginRequest struct {
	RequestID string `json:"request_id"`
	Username  string `json:"username"`
	Password  string `json:"password"`
}

type chatRequest struct {
	RequestID string `json:"request_id"`
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

type errorResponse struct {
	RequestID string        `json:"request_id"`
	Error     responseError `json:"error"`
}

type responseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", h.handleHealth)
	mux.HandleFunc("/api/services", h.handleServices)
	mux.HandleFunc("/api/tickets", h.handleTickets)
	mux.HandleFunc("/api/tickets/active", h.handleActiveTicket)
	mux.HandleFunc("/api/tickets/", h.handleTicketByID)
	mux.HandleFunc("/api/queue/status", h.handleQueueStatus)
	mux.HandleFunc("/api/stats/daily", h.handleDailyStats)
	mux.HandleFunc("/api/settings", h.handleSettings)
	mux.HandleFunc("/api/chat", h.handleChat)
	mux.HandleFunc("/api/chat/history", h.handleChatHistory)
	mux.HandleFunc("/api/admin/login", h.handleLogin)
	mux.HandleFunc("/api/admin/logout", h.handleLogout)
	mux.HandleFunc("/api/admin/me", h.handleMe)
	mux.HandleFunc("/api/admin/queue", h.handleAdminQueue)
	mux.HandleFunc("/api/admin/recall", h.handleRecall)
	mux.HandleFunc("/api/admin/tickets/", h.handleAdminTicketActions)
	return mux
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) handleServices(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, models.Services())
}

func (h *Handler) handleTickets(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req createTicketRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, req.RequestID, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}

	req.RequestID = strings.TrimSpace(req.RequestID)
	req.SessionID = strings.TrimSpace(req.SessionID)
	req.Name = strings.TrimSpace(req.Name)
	req.Phone = strings.TrimSpace(req.Phone)
	req.CaseNumber = strings.TrimSpace(req.CaseNumber)
	req.ServiceType = strings.TrimSpace(req.ServiceType)

	if req.SessionID == "" || req.Name == "" || req.ServiceType == "" {
		writeError(w, req.RequestID, http.StatusBadRequest, "invalid_request", "session_id, name, and service_type are required")
		return
	}
	if !models.ValidService(req.ServiceType) {
		writeError(w, req.RequestID, http.StatusBadRequest, "invalid_service", "unknown service_type")
		return
	}
	if req.Phone != "" && !isValidPhone(req.Phone) {
		writeError(w, req.RequestID, http.StatusBadRequest, "invalid_request", "phone must be 8-16 digits")
		return
	}

	ticket, err := h.tickets.CreateTicket(r.Context(), store.CreateTicketInput{
		SessionID:   req.SessionID,
		Name:        req.Name,
		Phone:       req.Phone,
		CaseNumber:  req.CaseNumber,
		ServiceType: req.ServiceType,
		CreatedAt:   time.Now().UTC(),
	})
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, req.RequestID, status, code, msg)
		return
	}

	writeJSON(w, http.StatusCreated, ticket)
}

func (h *Handler) handleActiveTicket(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	sessionID := strings.TrimSpace(r.URL.Query().Get("session_id"))
	if sessionID == "" {
		writeError(w, "", http.StatusBadRequest, "invalid_request", "session_id is required")
		return
	}

	ticket, found, err := h.tickets.ActiveTicketBySession(r.Context(), sessionID)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, "", status, code, msg)
		return
	}
	if !found {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	writeJSON(w, http.StatusOK, ticket)
}

// handleTicketByID serves GET /api/tickets/{id} (QR lookup) and
// POST /api/tickets/{id}/cancel (visitor cancels own waiting ticket).
func (h *Handler) handleTicketByID(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/tickets/")
	parts := strings.Split(strings.Trim(path, "/"), "/")

	switch {
	case len(parts) == 1 && r.Method == http.MethodGet:
		h.handleGetTicket(w, r, parts[0])
	case len(parts) == 2 && parts[1] == "cancel" && r.Method == http.MethodPost:
		h.handleCancelTicket(w, r, parts[0])
	case len(parts) == 1 || (len(parts) == 2 && parts[1] == "cancel"):
		w.WriteHeader(http.StatusMethodNotAllowed)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *Handler) handleGetTicket(w http.ResponseWriter, r *http.Request, ticketID string) {
	if !isValidUUID(ticketID) {
		writeError(w, "", http.StatusBadRequest, "invalid_request", "ticket id must be a UUID")
		return
	}
	ticket, err := h.tickets.GetTicket(r.Context(), ticketID)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, "", status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, ticket)
}

func (h *Handler) handleCancelTicket(w http.ResponseWriter, r *http.Request, ticketID string) {
	if !isValidUUID(ticketID) {
		writeError(w, "", http.StatusBadRequest, "invalid_request", "ticket id must be a UUID")
		return
	}

	var req cancelTicketRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, req.RequestID, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}
	req.RequestID = strings.TrimSpace(req.RequestID)
	req.SessionID = strings.TrimSpace(req.SessionID)
	if req.SessionID == "" {
		writeError(w, req.RequestID, http.StatusBadRequest, "invalid_request", "session_id is required")
		return
	}

	ticket, err := h.tickets.CancelTicket(r.Context(), store.TicketActionInput{
		TicketID:   ticketID,
		SessionID:  req.SessionID,
		OccurredAt: time.Now().UTC(),
	})
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, req.RequestID, status, code, msg)
		return
	}

	writeJSON(w, http.StatusOK, ticket)
}

func (h *Handler) handleQueueStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	status, err := h.tickets.QueueStatus(r.Context(), h.pendingLimit)
	if err != nil {
		// Public displays keep polling; an empty board beats an error page.
		log.Printf("queue status degraded: %v", err)
		writeJSON(w, http.StatusOK, store.QueueStatus{CurrentNumber: "-", Pending: []models.Ticket{}})
		return
	}

	writeJSON(w, http.StatusOK, status)
}

func (h *Handler) handleDailyStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	stats, err := h.tickets.DailyStats(r.Context())
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, "", status, code, msg)
		return
	}

	writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) handleSettings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	settings, err := h.settings.Get(r.Context())
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, "", status, code, msg)
		return
	}

	writeJSON(w, http.StatusOK, settings)
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req loginRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, req.RequestID, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}
	req.RequestID = strings.TrimSpace(req.RequestID)
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		writeError(w, req.RequestID, http.StatusBadRequest, "invalid_request", "username and password are required")
		return
	}

	session, err := h.auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, req.RequestID, status, code, msg)
		return
	}

	writeJSON(w, http.StatusOK, session)
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	session, ok := adminFromContext(r.Context())
	if !ok {
		writeError(w, requestIDFromRequest(r), http.StatusUnauthorized, "unauthorized", "missing session")
		return
	}
	if err := h.auth.DeleteSession(r.Context(), session.SessionID); err != nil {
		status, code, msg := mapError(err)
		writeError(w, requestIDFromRequest(r), status, code, msg)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	session, ok := adminFromContext(r.Context())
	if !ok {
		writeError(w, requestIDFromRequest(r), http.StatusUnauthorized, "unauthorized", "missing session")
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (h *Handler) handleAdminQueue(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	session, ok := adminFromContext(r.Context())
	if !ok {
		writeError(w, requestIDFromRequest(r), http.StatusUnauthorized, "unauthorized", "missing session")
		return
	}

	scope := session.Scope
	if requested := strings.TrimSpace(r.URL.Query().Get("scope")); requested != "" {
		if !models.ValidScope(requested) {
			writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "unknown scope")
			return
		}
		if !models.InScope(session.Scope, requested) && requested != session.Scope {
			writeError(w, requestIDFromRequest(r), http.StatusForbidden, "scope_denied", "scope outside session access")
			return
		}
		scope = requested
	}

	queue, err := h.tickets.AdminQueue(r.Context(), scope)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, requestIDFromRequest(r), status, code, msg)
		return
	}

	writeJSON(w, http.StatusOK, queue)
}

func (h *Handler) handleRecall(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	session, ok := adminFromContext(r.Context())
	if !ok {
		writeError(w, requestIDFromRequest(r), http.StatusUnauthorized, "unauthorized", "missing session")
		return
	}

	ticket, err := h.tickets.RecallActive(r.Context(), session.Scope)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, requestIDFromRequest(r), status, code, msg)
		return
	}

	writeJSON(w, http.StatusOK, ticket)
}

func (h *Handler) handleAdminTicketActions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	session, ok := adminFromContext(r.Context())
	if !ok {
		writeError(w, requestIDFromRequest(r), http.StatusUnauthorized, "unauthorized", "missing session")
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/api/admin/tickets/")
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) != 2 {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	ticketID := parts[0]
	if !isValidUUID(ticketID) {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "ticket id must be a UUID")
		return
	}

	input := store.TicketActionInput{
		TicketID:   ticketID,
		Scope:      session.Scope,
		OccurredAt: time.Now().UTC(),
	}

	var ticket models.Ticket
	var err error
	switch parts[1] {
	case "call":
		ticket, err = h.tickets.CallTicket(r.Context(), input)
	case "complete":
		ticket, err = h.tickets.CompleteTicket(r.Context(), input)
	case "cancel":
		ticket, err = h.tickets.CancelTicket(r.Context(), input)
	default:
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, requestIDFromRequest(r), status, code, msg)
		return
	}

	writeJSON(w, http.StatusOK, ticket)
}

func (h *Handler) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req chatRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, req.RequestID, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}
	req.RequestID = strings.TrimSpace(req.RequestID)
	req.SessionID = strings.TrimSpace(req.SessionID)
	req.Message = strings.TrimSpace(req.Message)
	if req.SessionID == "" || req.Message == "" {
		writeError(w, req.RequestID, http.StatusBadRequest, "invalid_request", "session_id and message are required")
		return
	}

	history, err := h.chat.ChatHistory(r.Context(), req.SessionID)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, req.RequestID, status, code, msg)
		return
	}

	now := time.Now()
	userMessage := models.ChatMessage{
		ID:        uuid.NewString(),
		SessionID: req.SessionID,
		Role:      "user",
		Text:      req.Message,
		Timestamp: now.UnixMilli(),
	}
	if err := h.chat.SaveChatMessage(r.Context(), userMessage); err != nil {
		status, code, msg := mapError(err)
		writeError(w, req.RequestID, status, code, msg)
		return
	}

	reply, err := h.assistant.Reply(r.Context(), history, req.Message)
	if err != nil {
		// The assistant already substitutes its fallback text; anything
		// surfacing here is unexpected but must not break the widget.
		log.Printf("assistant reply failed: %v", err)
	}

	assistantMessage := models.ChatMessage{
		ID:        uuid.NewString(),
		SessionID: req.SessionID,
		Role:      "model",
		Text:      reply,
		Timestamp: time.Now().UnixMilli(),
	}
	if err := h.chat.SaveChatMessage(r.Context(), assistantMessage); err != nil {
		log.Printf("chat message save failed: %v", err)
	}

	writeJSON(w, http.StatusOK, assistantMessage)
}

func (h *Handler) handleChatHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimSpace(r.URL.Query().Get("session_id"))
	if sessionID == "" {
		writeError(w, "", http.StatusBadRequest, "invalid_request", "session_id is required")
		return
	}

	switch r.Method {
	case http.MethodGet:
		history, err := h.chat.ChatHistory(r.Context(), sessionID)
		if err != nil {
			status, code, msg := mapError(err)
			writeError(w, "", status, code, msg)
			return
		}
		if history == nil {
			history = []models.ChatMessage{}
		}
		writeJSON(w, http.StatusOK, history)
	case http.MethodDelete:
		if err := h.chat.ClearChatHistory(r.Context(), sessionID); err != nil {
			status, code, msg := mapError(err)
			writeError(w, "", status, code, msg)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func isValidUUID(value string) bool {
	_, err := uuid.Parse(value)
	return err == nil
}

func isValidPhone(value string) bool {
	if len(value) < 8 || len(value) > 16 {
		return false
	}
	for _, r := range value {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func mapError(err error) (int, string, string) {
	switch {
	case errors.Is(err, store.ErrServiceNotFound):
		return http.StatusBadRequest, "invalid_service", "unknown service category"
	case errors.Is(err, store.ErrTicketNotFound):
		return http.StatusNotFound, "ticket_not_found", "ticket not found"
	case errors.Is(err, store.ErrInvalidState):
		return http.StatusConflict, "invalid_state", "ticket state does not allow this action"
	case errors.Is(err, store.ErrActiveTicket):
		return http.StatusConflict, "active_ticket_exists", "session already has an active ticket"
	case errors.Is(err, store.ErrNoActiveTicket):
		return http.StatusConflict, "no_active_ticket", "no ticket is currently called"
	case errors.Is(err, store.ErrScopeDenied):
		return http.StatusForbidden, "scope_denied", "ticket outside session scope"
	case errors.Is(err, store.ErrSessionNotFound):
		return http.StatusUnauthorized, "unauthorized", "invalid session"
	case errors.Is(err, store.ErrLoginFailed):
		return http.StatusUnauthorized, "login_failed", "invalid username or password"
	case errors.Is(err, io.EOF):
		return http.StatusBadRequest, "invalid_json", "empty request body"
	default:
		return http.StatusInternalServerError, "internal_error", "internal server error"
	}
}

func writeError(w http.ResponseWriter, requestID string, status int, code, message string) {
	writeJSON(w, status, errorResponse{
		RequestID: requestID,
		Error: responseError{
			Code:    code,
			Message: message,
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}
