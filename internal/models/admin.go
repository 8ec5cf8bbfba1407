package models

import "time"

type AdminSession struct {
	SessionID string    `json:"session_id"`
	Username  string    `json:"username"`
	Name      string    `json:"name"`
	Scope     string    `json:"scope"`
	ExpiresAt time.Time `json:"expires_at"`
}

type AppSettings struct {
	LogoURL      string `json:"logo_url"`
	CourtLogoURL string `json:"court_logo_url"`
	LBHName      string `json:"lbh_name"`
	CourtName    string `json:"court_name"`
	PosbakumName string `json:"posbakum_name"`
}

type ChatMessage struct {
	ID        string `json:"id"`
	SessionID string `json:"session_id,omitempty"`
	Role      string `json:"role"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"`
}
