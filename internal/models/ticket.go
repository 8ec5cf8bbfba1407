package models

import "time"

type Ticket struct {
	ID               string     `json:"id"`
	QueueNumber      string     `json:"queue_number"`
	Name             string     `json:"name"`
	CaseNumber       string     `json:"case_number,omitempty"`
	ServiceType      string     `json:"service_type"`
	Status           string     `json:"status"`
	EstimatedMinutes int        `json:"estimated_time"`
	Timestamp        int64      `json:"timestamp"`
	SessionID        string     `json:"session_id,omitempty"`
	Phone            string     `json:"phone,omitempty"`
	CalledAt         *time.Time `json:"called_at,omitempty"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
}

const (
	StatusWaiting   = "waiting"
	StatusCalled    = "called"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
)

type DailyStats struct {
	Total     int            `json:"total"`
	Completed int            `json:"completed"`
	Cancelled int            `json:"cancelled"`
	ByService map[string]int `json:"by_service"`
}
