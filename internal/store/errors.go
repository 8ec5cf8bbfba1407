package store

import "errors"

var (
	ErrServiceNotFound = errors.New("service not found")
	ErrTicketNotFound  = errors.New("ticket not found")
	ErrInvalidState    = errors.New("invalid ticket state")
	ErrActiveTicket    = errors.New("session already has an active ticket")
	ErrNoActiveTicket  = errors.New("no ticket is currently called")
	ErrScopeDenied     = errors.New("ticket outside admin scope")
	ErrSessionNotFound = errors.New("session not found")
	ErrLoginFailed     = errors.New("invalid username or password")
)
