package audit

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"
)

// Kind names the token lifecycle step an Event records.
type Kind string

const (
	KindTokenIssued      Kind = "token_issued"
	KindTokenIssueFailed Kind = "token_issue_failed"
	KindTokenRejected    Kind = "token_rejected"
	KindRefreshIssued    Kind = "refresh_issued"
	KindRefreshRedeemed  Kind = "refresh_redeemed"
	KindRefreshFailed    Kind = "refresh_failed"
	KindFloodBlocked     Kind = "flood_blocked"
	KindKeysReloaded     Kind = "keys_reloaded"
	KindKeysReloadFailed Kind = "keys_reload_failed"

	// KindOther collects drop counts for kinds not listed in Kinds.
	KindOther Kind = "other"
)

// Kinds lists every kind the engine emits.
var Kinds = []Kind{
	KindTokenIssued,
	KindTokenIssueFailed,
	KindTokenRejected,
	KindRefreshIssued,
	KindRefreshRedeemed,
	KindRefreshFailed,
	KindFloodBlocked,
	KindKeysReloaded,
	KindKeysReloadFailed,
}

// Event is one audit record. It never carries token or key material.
type Event struct {
	ID          string            `json:"id"`
	Timestamp   time.Time         `json:"timestamp"`
	Kind        Kind              `json:"kind"`
	PrincipalID string            `json:"principal_id,omitempty"`
	IP          string            `json:"ip,omitempty"`
	Success     bool              `json:"success"`
	Error       string            `json:"error,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// Sink receives emitted audit events.
type Sink interface {
	Emit(ctx context.Context, event Event)
}

// NoOpSink drops audit events.
type NoOpSink struct{}

func (NoOpSink) Emit(context.Context, Event) {}

// ChannelSink hands events to a reader through a buffered channel.
type ChannelSink struct {
	events chan Event
}

func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{events: make(chan Event, buffer)}
}

func (s *ChannelSink) Emit(ctx context.Context, event Event) {
	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}

func (s *ChannelSink) Events() <-chan Event {
	return s.events
}

// JSONWriterSink writes one JSON object per line.
type JSONWriterSink struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	if w == nil {
		return &JSONWriterSink{}
	}
	return &JSONWriterSink{enc: json.NewEncoder(w)}
}

func (s *JSONWriterSink) Emit(_ context.Context, event Event) {
	if s == nil || s.enc == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.enc.Encode(event)
}
