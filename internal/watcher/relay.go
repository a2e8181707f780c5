package watcher

import (
	"context"
	"sync"

	"oden/internal/domain"
	"oden/internal/signal"
)

// Relay forwards sends and attachment fetches to whichever connection is
// current, so components built once keep working across reconnects.
type Relay struct {
	mu   sync.RWMutex
	conn Conn
}

var (
	_ domain.MessageSender     = (*Relay)(nil)
	_ domain.AttachmentFetcher = (*Relay)(nil)
)

func (r *Relay) set(c Conn) {
	r.mu.Lock()
	r.conn = c
	r.mu.Unlock()
}

func (r *Relay) clear(c Conn) {
	r.mu.Lock()
	if r.conn == c {
		r.conn = nil
	}
	r.mu.Unlock()
}

func (r *Relay) current() (Conn, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.conn == nil {
		return nil, signal.ErrClosed
	}
	return r.conn, nil
}

func (r *Relay) SendGroupMessage(ctx context.Context, groupID, text string) error {
	c, err := r.current()
	if err != nil {
		return err
	}
	return c.SendGroupMessage(ctx, groupID, text)
}

func (r *Relay) SendDirectMessage(ctx context.Context, recipient, text string) error {
	c, err := r.current()
	if err != nil {
		return err
	}
	return c.SendDirectMessage(ctx, recipient, text)
}

func (r *Relay) FetchAttachment(ctx context.Context, id, groupID string) (string, error) {
	c, err := r.current()
	if err != nil {
		return "", err
	}
	return c.FetchAttachment(ctx, id, groupID)
}
