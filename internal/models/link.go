package models

import (
	"time"

	"github.com/google/uuid"
)

type Link struct {
	ID          uuid.UUID  `json:"id"`
	ShortCode   string     `json:"short_code"`
	OriginalURL string     `json:"original_url"`
	CustomAlias *string    `json:"custom_alias,omitempty"`
	Title       *string    `json:"title,omitempty"`
	Description *string    `json:"description,omitempty"`
	IsActive    bool       `json:"is_active"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	UserID      *string    `json:"user_id,omitempty"` // nil для анонимных ссылок
	ClickCount  int64      `json:"click_count"`
}

type CreateLinkInput struct {
	OriginalURL string  `json:"original_url" binding:"required"`
	CustomAlias *string `json:"custom_alias,omitempty"`
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	ExpiresIn   *int    `json:"expires_in,omitempty"` // минуты
	UserID      *string `json:"-"`
}
