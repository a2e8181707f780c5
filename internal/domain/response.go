package domain

import (
	"context"
	"time"
)

// ResponseBinding maps one or more keywords to a reply body.
type ResponseBinding struct {
	ID        int64     `json:"id" yaml:"-"`
	Keywords  []string  `json:"keywords" yaml:"keywords"`
	Body      string    `json:"body" yaml:"body"`
	CreatedAt time.Time `json:"created_at" yaml:"-"`
	UpdatedAt time.Time `json:"updated_at" yaml:"-"`
}

// ResponseStore looks up auto-replies by keyword, case-insensitively.
type ResponseStore interface {
	Lookup(ctx context.Context, keyword string) (body string, found bool, err error)
}
