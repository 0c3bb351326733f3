package triggers

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"pulse/internal/docstore"
)

// HandlerFunc reacts to one event.
type HandlerFunc func(ctx context.Context, e *Event) error

type route struct {
	name    string
	pattern pattern
	kinds   map[Kind]bool
	fn      HandlerFunc
}

// Dispatcher routes events to the handlers registered for their path and
// kind. Every matching handler runs in its own goroutine, detached from the
// caller's cancellation, the way a function platform runs one invocation
// per trigger. Handler errors are logged, never returned.
type Dispatcher struct {
	mu     sync.RWMutex
	routes []route
	dedupe Deduper
	wg     sync.WaitGroup
}

func NewDispatcher(dedupe Deduper) *Dispatcher {
	return &Dispatcher{dedupe: dedupe}
}

// Handle registers fn for documents matching pat. With no kinds given the
// handler receives every document kind.
func (d *Dispatcher) Handle(pat, name string, fn HandlerFunc, kinds ...Kind) {
	p, err := compilePattern(pat)
	if err != nil {
		panic(err)
	}
	if len(kinds) == 0 {
		kinds = DocumentKinds
	}
	d.add(route{name: name, pattern: p, kinds: kindSet(kinds), fn: fn})
}

// HandleAccount registers fn for an account lifecycle kind.
func (d *Dispatcher) HandleAccount(kind Kind, name string, fn HandlerFunc) {
	if !kind.account() {
		panic(fmt.Sprintf("triggers: %q is not an account event kind", kind))
	}
	d.add(route{name: name, kinds: kindSet([]Kind{kind}), fn: fn})
}

func (d *Dispatcher) add(r route) {
	d.mu.Lock()
	d.routes = append(d.routes, r)
	d.mu.Unlock()
}

func kindSet(kinds []Kind) map[Kind]bool {
	m := make(map[Kind]bool, len(kinds))
	for _, k := range kinds {
		m[k] = true
	}
	return m
}

// Dispatch validates e, drops it when its id was already seen and starts the
// matching handlers. It returns how many were started.
func (d *Dispatcher) Dispatch(ctx context.Context, e Event) (int, error) {
	if err := e.Validate(); err != nil {
		return 0, err
	}
	if d.dedupe != nil {
		seen, err := d.dedupe.Seen(ctx, e.ID)
		if err != nil {
			slog.Warn("event dedupe unavailable, dispatching anyway", "event_id", e.ID, "err", err)
		} else if seen {
			slog.Info("dropping duplicate event", "event_id", e.ID, "kind", e.Kind, "path", e.Path)
			return 0, nil
		}
	}

	d.mu.RLock()
	routes := d.routes
	d.mu.RUnlock()

	ctx = context.WithoutCancel(ctx)
	started := 0
	for _, r := range routes {
		if !r.kinds[e.Kind] {
			continue
		}
		ev := e
		if !e.Kind.account() {
			params, ok := r.pattern.match(e.Path)
			if !ok {
				continue
			}
			ev.Params = params
		}
		started++
		d.wg.Add(1)
		go d.run(ctx, r, &ev)
	}
	if started == 0 {
		slog.Debug("no handler for event", "event_id", e.ID, "kind", e.Kind, "path", e.Path)
	}
	return started, nil
}

func (d *Dispatcher) run(ctx context.Context, r route, e *Event) {
	defer d.wg.Done()
	defer func() {
		if p := recover(); p != nil {
			slog.Error("handler panicked", "handler", r.name, "event_id", e.ID, "path", e.Path, "panic", p)
		}
	}()
	if err := r.fn(ctx, e); err != nil {
		slog.Error("handler failed", "handler", r.name, "event_id", e.ID, "kind", e.Kind, "path", e.Path, "err", err)
		return
	}
	slog.Debug("handler finished", "handler", r.name, "event_id", e.ID, "path", e.Path)
}

// Wait blocks until every started handler, including the ones started by
// handlers, has returned.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Attach feeds every write committed to store into d, standing in for the
// hosted trigger platform during local runs and tests.
func Attach(store *docstore.Memory, d *Dispatcher) {
	store.OnChange(func(c docstore.Change) {
		if _, err := d.Dispatch(context.Background(), FromChange(c)); err != nil {
			slog.Error("failed to dispatch store change", "path", c.Path, "err", err)
		}
	})
}
