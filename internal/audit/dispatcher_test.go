package audit

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// heldSink blocks on every event until release is closed and reports the
// first delivery on started.
type heldSink struct {
	started chan struct{}
	release chan struct{}
	first   bool
}

func newHeldSink() *heldSink {
	return &heldSink{started: make(chan struct{}), release: make(chan struct{})}
}

func (s *heldSink) Emit(context.Context, Event) {
	if !s.first {
		s.first = true
		close(s.started)
	}
	<-s.release
}

func TestDispatcherCountsDropsByKind(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	sink := newHeldSink()
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1, DropIfFull: true, Logger: zap.New(core)}, sink)

	ctx := context.Background()
	d.Emit(ctx, Event{Kind: KindTokenIssued})
	<-sink.started

	d.Emit(ctx, Event{Kind: KindRefreshFailed})
	d.Emit(ctx, Event{Kind: KindFloodBlocked})
	d.Emit(ctx, Event{Kind: KindFloodBlocked})
	d.Emit(ctx, Event{Kind: "custom"})

	drops := d.DroppedByKind()
	if len(drops) != 2 || drops[KindFloodBlocked] != 2 || drops[KindOther] != 1 {
		t.Fatalf("unexpected drops %v", drops)
	}
	if d.Dropped() != 3 {
		t.Fatalf("expected 3 drops, got %d", d.Dropped())
	}

	close(sink.release)
	d.Close()
	if logs.FilterMessage("audit events dropped").Len() != 1 {
		t.Fatal("expected a drop summary on close")
	}
}

type panickySink struct {
	got chan Kind
}

func (s *panickySink) Emit(_ context.Context, ev Event) {
	if ev.Kind == KindTokenRejected {
		panic("sink failure")
	}
	s.got <- ev.Kind
}

func TestDispatcherSurvivesSinkPanic(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	sink := &panickySink{got: make(chan Kind, 1)}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 4, Logger: zap.New(core)}, sink)
	defer d.Close()

	d.Emit(context.Background(), Event{Kind: KindTokenRejected})
	d.Emit(context.Background(), Event{Kind: KindRefreshRedeemed})

	select {
	case k := <-sink.got:
		if k != KindRefreshRedeemed {
			t.Fatalf("unexpected kind %s", k)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("delivery stopped after a sink panic")
	}
	if logs.FilterMessage("audit sink panicked").Len() != 1 {
		t.Fatal("expected the panic to be logged")
	}
}

func TestDispatcherCloseDeliversQueued(t *testing.T) {
	sink := NewChannelSink(8)
	d := NewDispatcher(Config{Enabled: true, BufferSize: 8}, sink)
	for _, k := range Kinds[:3] {
		d.Emit(context.Background(), Event{Kind: k})
	}
	d.Close()

	if got := len(sink.Events()); got != 3 {
		t.Fatalf("expected 3 delivered events, got %d", got)
	}
}

func TestNilDispatcher(t *testing.T) {
	d := NewDispatcher(Config{}, nil)
	if d != nil {
		t.Fatal("expected nil dispatcher when disabled")
	}
	d.Emit(context.Background(), Event{Kind: KindTokenIssued})
	d.Close()
	if d.Dropped() != 0 || len(d.DroppedByKind()) != 0 {
		t.Fatal("nil dispatcher must report no drops")
	}
}

func TestJSONWriterSinkWritesKind(t *testing.T) {
	var buf bytes.Buffer
	NewJSONWriterSink(&buf).Emit(context.Background(), Event{Kind: KindKeysReloaded, Success: true})
	if !strings.Contains(buf.String(), `"kind":"keys_reloaded"`) || !strings.HasSuffix(buf.String(), "\n") {
		t.Fatalf("unexpected line %q", buf.String())
	}
}
