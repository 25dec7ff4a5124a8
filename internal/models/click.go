package models

import (
	"time"

	"github.com/google/uuid"
)

type Click struct {
	ID        int64      `json:"id"`
	LinkID    uuid.UUID  `json:"link_id"`
	IPHash    *string    `json:"ip_hash,omitempty"` // только солёный хэш, сырой IP не храним
	UserAgent *string    `json:"user_agent,omitempty"`
	Referer   *string    `json:"referer,omitempty"`
	Country   *string    `json:"country,omitempty"`
	Device    *string    `json:"device,omitempty"`
	Browser   *string    `json:"browser,omitempty"`
	OS        *string    `json:"os,omitempty"`
	ClickedAt time.Time  `json:"clicked_at"`
}

// ClickEvent сырые сигналы клика до обогащения
type ClickEvent struct {
	ShortCode string
	IP        string
	UserAgent string
	Referer   string
	Consent   bool // согласие на аналитику; счётчик пишется всегда, consent гейтит только измерения
}
