package events

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"
)

type (
	// GenerateHandler adds or removes claims on a token being issued.
	GenerateHandler func(ctx context.Context, e *GenerateEvent)
	// ValidateHandler asserts properties of verified claims and calls
	// Invalidate on failure. It must not have side effects that assume the
	// token is accepted.
	ValidateHandler func(ctx context.Context, e *ValidateEvent)
	// ValidHandler resolves the principal of an accepted token.
	ValidHandler func(ctx context.Context, e *ValidEvent)
)

// Subscriber registers one or more handlers on a dispatcher.
type Subscriber interface {
	Subscribe(d *Dispatcher)
}

// SubscriberFunc adapts a function to Subscriber.
type SubscriberFunc func(d *Dispatcher)

// Subscribe calls f.
func (f SubscriberFunc) Subscribe(d *Dispatcher) { f(d) }

type entry[F any] struct {
	name     string
	priority int
	fn       F
}

// Dispatcher runs handlers for each stage in descending priority. Handlers
// with equal priority run in registration order.
//
// Registration is safe for concurrent use with dispatch. A dispatch works
// on the handler list as it was when the dispatch started.
type Dispatcher struct {
	mu       sync.RWMutex
	generate []entry[GenerateHandler]
	validate []entry[ValidateHandler]
	valid    []entry[ValidHandler]
	logger   *zap.Logger
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the logger used for debug traces of rejections.
func WithLogger(l *zap.Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}

// NewDispatcher returns a dispatcher with no handlers.
func NewDispatcher(opts ...Option) *Dispatcher {
	d := &Dispatcher{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// OnGenerate registers fn for the GENERATE stage.
func (d *Dispatcher) OnGenerate(name string, priority int, fn GenerateHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.generate = insert(d.generate, entry[GenerateHandler]{name: name, priority: priority, fn: fn})
}

// OnValidate registers fn for the VALIDATE stage.
func (d *Dispatcher) OnValidate(name string, priority int, fn ValidateHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.validate = insert(d.validate, entry[ValidateHandler]{name: name, priority: priority, fn: fn})
}

// OnValid registers fn for the VALID stage.
func (d *Dispatcher) OnValid(name string, priority int, fn ValidHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.valid = insert(d.valid, entry[ValidHandler]{name: name, priority: priority, fn: fn})
}

// AddSubscriber lets each subscriber register its handlers.
func (d *Dispatcher) AddSubscriber(subs ...Subscriber) {
	for _, s := range subs {
		s.Subscribe(d)
	}
}

// Generate runs every GENERATE handler. Generation cannot be aborted.
func (d *Dispatcher) Generate(ctx context.Context, e *GenerateEvent) {
	d.mu.RLock()
	handlers := d.generate
	d.mu.RUnlock()
	for _, h := range handlers {
		h.fn(ctx, e)
	}
}

// Validate runs VALIDATE handlers until one invalidates the token.
func (d *Dispatcher) Validate(ctx context.Context, e *ValidateEvent) {
	d.mu.RLock()
	handlers := d.validate
	d.mu.RUnlock()
	for _, h := range handlers {
		h.fn(ctx, e)
		if !e.IsValid() {
			e.invalidatedBy = h.name
			d.logger.Debug("token invalidated",
				zap.String("subscriber", h.name),
				zap.String("reason", e.Reason()),
			)
			return
		}
	}
}

// Valid runs every VALID handler. Callers must only dispatch tokens that
// passed Validate.
func (d *Dispatcher) Valid(ctx context.Context, e *ValidEvent) {
	d.mu.RLock()
	handlers := d.valid
	d.mu.RUnlock()
	for _, h := range handlers {
		h.fn(ctx, e)
	}
}

// Subscribers returns handler names for stage in execution order.
func (d *Dispatcher) Subscribers(stage Stage) []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	switch stage {
	case StageGenerate:
		return names(d.generate)
	case StageValidate:
		return names(d.validate)
	case StageValid:
		return names(d.valid)
	}
	return nil
}

// insert returns a new sorted slice so that snapshots taken by running
// dispatches are never modified.
func insert[F any](list []entry[F], e entry[F]) []entry[F] {
	out := make([]entry[F], 0, len(list)+1)
	out = append(out, list...)
	out = append(out, e)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].priority > out[j].priority
	})
	return out
}

func names[F any](list []entry[F]) []string {
	out := make([]string, len(list))
	for i, e := range list {
		out[i] = e.name
	}
	return out
}
