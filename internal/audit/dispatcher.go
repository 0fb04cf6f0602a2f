package audit

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// Config controls dispatcher buffering.
type Config struct {
	Enabled    bool
	BufferSize int
	// DropIfFull makes Emit drop instead of wait when the queue is full.
	DropIfFull bool
	// Logger reports sink panics and, on Close, drops per kind.
	Logger *zap.Logger
}

// Dispatcher relays events to a sink from one background goroutine, so the
// sink sees events in emit order.
type Dispatcher struct {
	sink       Sink
	logger     *zap.Logger
	dropIfFull bool

	queue   chan Event
	stop    chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
	once    sync.Once

	// dropped has one counter per entry of Kinds plus KindOther.
	dropped []atomic.Uint64
	index   map[Kind]int
}

// NewDispatcher starts a dispatcher. It returns nil when cfg is disabled;
// every method is safe on a nil Dispatcher.
func NewDispatcher(cfg Config, sink Sink) *Dispatcher {
	if !cfg.Enabled {
		return nil
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}
	if sink == nil {
		sink = NoOpSink{}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	index := make(map[Kind]int, len(Kinds))
	for i, k := range Kinds {
		index[k] = i
	}
	d := &Dispatcher{
		sink:       sink,
		logger:     cfg.Logger,
		dropIfFull: cfg.DropIfFull,
		queue:      make(chan Event, cfg.BufferSize),
		stop:       make(chan struct{}),
		stopped:    make(chan struct{}),
		dropped:    make([]atomic.Uint64, len(Kinds)+1),
		index:      index,
	}
	go d.run()
	return d
}

func (d *Dispatcher) run() {
	defer close(d.stopped)
	for {
		select {
		case ev := <-d.queue:
			d.deliver(ev)
		case <-d.stop:
			for {
				select {
				case ev := <-d.queue:
					d.deliver(ev)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) deliver(ev Event) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("audit sink panicked", zap.String("kind", string(ev.Kind)), zap.Any("panic", r))
		}
	}()
	d.sink.Emit(context.Background(), ev)
}

// Emit queues ev. With DropIfFull a full queue counts a drop for ev.Kind;
// otherwise Emit waits for space, ctx or Close.
func (d *Dispatcher) Emit(ctx context.Context, ev Event) {
	if d == nil || d.closed.Load() {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if d.dropIfFull {
		select {
		case d.queue <- ev:
		case <-d.stop:
		default:
			d.dropped[d.slot(ev.Kind)].Add(1)
		}
		return
	}

	select {
	case d.queue <- ev:
	case <-ctx.Done():
	case <-d.stop:
	}
}

func (d *Dispatcher) slot(k Kind) int {
	if i, ok := d.index[k]; ok {
		return i
	}
	return len(Kinds)
}

// Close delivers what is queued and stops the dispatcher. Later calls and
// later Emits are no-ops.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.once.Do(func() {
		d.closed.Store(true)
		close(d.stop)
		<-d.stopped

		if drops := d.DroppedByKind(); len(drops) > 0 {
			fields := make([]zap.Field, 0, len(drops))
			for k, n := range drops {
				fields = append(fields, zap.Uint64(string(k), n))
			}
			d.logger.Warn("audit events dropped", zap.Dict("dropped", fields...))
		}
	})
}

// Dropped returns the total number of dropped events.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	var total uint64
	for i := range d.dropped {
		total += d.dropped[i].Load()
	}
	return total
}

// DroppedByKind returns the non-zero drop counts keyed by kind. Kinds not in
// Kinds are reported under KindOther.
func (d *Dispatcher) DroppedByKind() map[Kind]uint64 {
	out := map[Kind]uint64{}
	if d == nil {
		return out
	}
	for i := range d.dropped {
		n := d.dropped[i].Load()
		if n == 0 {
			continue
		}
		k := KindOther
		if i < len(Kinds) {
			k = Kinds[i]
		}
		out[k] = n
	}
	return out
}
