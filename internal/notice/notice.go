// Package notice delivers user-visible notices (validation problems, failed
// remote calls, upload progress) to the user's open connections.
package notice

import (
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/p-n-ai/pai-school/internal/platform/apperr"
)

// Kind tells the client how to render a notice.
type Kind string

const (
	KindValidation Kind = "validation"
	KindExternal   Kind = "external"
	KindProgress   Kind = "progress"
	KindInfo       Kind = "info"
)

// Notice is one message for a user. Retry marks remote failures the user can
// retry without editing anything.
type Notice struct {
	Kind    Kind      `json:"kind"`
	Message string    `json:"message"`
	Field   string    `json:"field,omitempty"`
	Service string    `json:"service,omitempty"`
	Retry   bool      `json:"retry,omitempty"`
	File    string    `json:"file,omitempty"`
	Sent    int64     `json:"sent,omitempty"`
	Total   int64     `json:"total,omitempty"`
	At      time.Time `json:"at"`
}

// Publisher sends notices to a user.
type Publisher interface {
	Publish(userID string, n Notice)
}

// FromError converts err into notices: one per field for validation errors,
// one retryable notice for remote failures, and a plain info notice
// otherwise.
func FromError(err error) []Notice {
	if err == nil {
		return nil
	}
	now := time.Now()
	if ve, ok := apperr.IsValidation(err); ok {
		fields := make([]string, 0, len(ve.Fields))
		for f := range ve.Fields {
			fields = append(fields, f)
		}
		sort.Strings(fields)
		out := make([]Notice, 0, len(fields))
		for _, f := range fields {
			out = append(out, Notice{Kind: KindValidation, Field: f, Message: ve.Fields[f], At: now})
		}
		return out
	}
	if ee, ok := apperr.IsExternal(err); ok {
		return []Notice{{
			Kind:    KindExternal,
			Service: ee.Service,
			Message: ee.Error(),
			Retry:   ee.Retryable(),
			At:      now,
		}}
	}
	return []Notice{{Kind: KindInfo, Message: err.Error(), At: now}}
}

// Progress builds an upload progress notice.
func Progress(file string, sent, total int64) Notice {
	return Notice{Kind: KindProgress, File: file, Sent: sent, Total: total, At: time.Now()}
}

type subscriber struct {
	ch chan Notice
}

// Hub fans notices out to every subscription of a user. Publishing never
// blocks: a subscriber whose buffer is full misses the notice.
type Hub struct {
	mu      sync.RWMutex
	subs    map[string]map[*subscriber]struct{}
	buffer  int
	origins []string

	dropped atomic.Int64
}

// HubConfig configures a Hub.
type HubConfig struct {
	// Buffer is the per-subscriber queue length.
	Buffer int
	// OriginPatterns lists the extra origins allowed to open a websocket.
	OriginPatterns []string
}

// NewHub creates a Hub.
func NewHub(cfg HubConfig) *Hub {
	if cfg.Buffer <= 0 {
		cfg.Buffer = 32
	}
	return &Hub{
		subs:    make(map[string]map[*subscriber]struct{}),
		buffer:  cfg.Buffer,
		origins: cfg.OriginPatterns,
	}
}

// Subscribe registers a subscription for userID. The returned function
// removes it and closes the channel; it is safe to call more than once.
func (h *Hub) Subscribe(userID string) (<-chan Notice, func()) {
	sub := &subscriber{ch: make(chan Notice, h.buffer)}

	h.mu.Lock()
	if h.subs[userID] == nil {
		h.subs[userID] = make(map[*subscriber]struct{})
	}
	h.subs[userID][sub] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return sub.ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(h.subs[userID], sub)
			if len(h.subs[userID]) == 0 {
				delete(h.subs, userID)
			}
			close(sub.ch)
		})
	}
}

// Publish delivers n to every subscription of userID.
func (h *Hub) Publish(userID string, n Notice) {
	if n.At.IsZero() {
		n.At = time.Now()
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.subs[userID] {
		select {
		case sub.ch <- n:
		default:
			h.dropped.Add(1)
			slog.Debug("notice dropped", "user_id", userID, "kind", n.Kind)
		}
	}
}

// Subscribers returns how many subscriptions userID has.
func (h *Hub) Subscribers(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[userID])
}

// Dropped returns how many notices were dropped on full buffers.
func (h *Hub) Dropped() int64 {
	return h.dropped.Load()
}

// Discard is a Publisher that drops everything.
type Discard struct{}

func (Discard) Publish(string, Notice) {}
