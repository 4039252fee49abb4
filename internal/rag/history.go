package rag

import (
	"context"
	"sync"

	"github.com/signalworks/siterag/provider"
)

// History stores per-session conversation turns bounded to a fixed number of
// messages; the oldest are dropped first.
type History interface {
	Append(ctx context.Context, sessionID string, messages ...provider.Message) error
	Get(ctx context.Context, sessionID string) ([]provider.Message, error)
	Clear(ctx context.Context, sessionID string) error
}

// MemoryHistory keeps sessions in process memory.
type MemoryHistory struct {
	limit int

	mu       sync.Mutex
	sessions map[string][]provider.Message
}

func NewMemoryHistory(limit int) *MemoryHistory {
	if limit <= 0 {
		limit = 20
	}
	return &MemoryHistory{limit: limit, sessions: map[string][]provider.Message{}}
}

func (h *MemoryHistory) Append(ctx context.Context, sessionID string, messages ...provider.Message) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	msgs := append(h.sessions[sessionID], messages...)
	if len(msgs) > h.limit {
		msgs = msgs[len(msgs)-h.limit:]
	}
	h.sessions[sessionID] = msgs
	return nil
}

func (h *MemoryHistory) Get(ctx context.Context, sessionID string) ([]provider.Message, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	msgs := h.sessions[sessionID]
	out := make([]provider.Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

func (h *MemoryHistory) Clear(ctx context.Context, sessionID string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.sessions, sessionID)
	return nil
}
