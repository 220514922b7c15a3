package reconcile

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/19niel/Ultra-MIS-Ticketing-System/internal/events"
)

// Resync reasons passed to EngineOptions.OnResync.
const (
	ReasonConnect = "connect"
	ReasonGap     = "gap"
	ReasonServer  = "server"
)

// EngineOptions configures an Engine.
type EngineOptions struct {
	// Fetcher reloads mounted views on resync. Without one, views are only
	// marked stale.
	Fetcher Fetcher
	// OnResync runs after the mounted views were reloaded.
	OnResync func(ctx context.Context, reason string)
	Logger   *zap.Logger
}

type mount struct {
	view View
	subs []*events.Subscription
}

// Engine routes pushed events to the mounted views and tracks continuity
// of the sequence stream. Views are scoped: each Mount returns the unmount
// func that must run when the view closes.
type Engine struct {
	bus    *events.Bus
	opts   EngineOptions
	logger *zap.Logger

	mu sync.Mutex
	// anchored is set once a hello, resync or first event fixed lastSeq;
	// a zero lastSeq from a fresh server is still a valid anchor.
	anchored bool
	lastSeq  uint64
	nextID   uint64
	mounts   map[uint64]*mount
	closed   bool
}

// NewEngine creates an engine with no mounted views.
func NewEngine(opts EngineOptions) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "reconcile_engine"))
	return &Engine{
		bus:    events.NewBus(events.BusOptions{Logger: logger, ReplaySize: 1, Origin: "client"}),
		opts:   opts,
		logger: logger,
		mounts: make(map[uint64]*mount),
	}
}

// Mount registers view for its event types. The returned func unmounts it
// and is safe to call more than once.
func (e *Engine) Mount(view View) func() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return func() {}
	}

	m := &mount{view: view}
	for _, eventType := range view.EventTypes() {
		m.subs = append(m.subs, e.bus.Subscribe(eventType, view.Apply))
	}
	e.nextID++
	id := e.nextID
	e.mounts[id] = m

	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Lock()
			delete(e.mounts, id)
			e.mu.Unlock()
			for _, sub := range m.subs {
				sub.Unsubscribe()
			}
		})
	}
}

// MountAndLoad mounts view and seeds it from the fetcher. Events that
// arrive during the fetch are buffered by the view and merged on seed.
func (e *Engine) MountAndLoad(ctx context.Context, view View) (func(), error) {
	unmount := e.Mount(view)
	loader, ok := view.(Loader)
	if !ok || e.opts.Fetcher == nil {
		return unmount, nil
	}
	if err := loader.Load(ctx, e.opts.Fetcher); err != nil {
		unmount()
		return func() {}, err
	}
	return unmount, nil
}

// MountedCount returns the number of mounted views.
func (e *Engine) MountedCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.mounts)
}

// LastSeq is the highest sequence applied, used to resume after reconnect.
func (e *Engine) LastSeq() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastSeq
}

// Apply routes one pushed event to the mounted views. A hole in the
// sequence reloads every view after the event is applied. Duplicates and
// stale sequences are still delivered; views apply them idempotently.
func (e *Engine) Apply(ctx context.Context, event events.Event) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	gap := false
	if event.Seq > 0 {
		gap = e.anchored && event.Seq > e.lastSeq+1
		e.anchored = true
		if event.Seq > e.lastSeq {
			e.lastSeq = event.Seq
		}
	}
	e.mu.Unlock()

	e.bus.Deliver(ctx, event)
	if gap {
		e.logger.Info("event sequence gap", zap.Uint64("seq", event.Seq))
		e.resync(ctx, ReasonGap)
	}
}

// Hello handles a fresh connection without replay. Anything may have
// happened since the views were loaded, so they are reloaded.
func (e *Engine) Hello(ctx context.Context, seq uint64) {
	e.setBaseline(seq)
	e.resync(ctx, ReasonConnect)
}

// ResyncFrom handles a server request to re-fetch, sent when the replay
// buffer could not cover the resume point.
func (e *Engine) ResyncFrom(ctx context.Context, seq uint64) {
	e.setBaseline(seq)
	e.resync(ctx, ReasonServer)
}

func (e *Engine) setBaseline(seq uint64) {
	e.mu.Lock()
	e.lastSeq = seq
	e.anchored = true
	e.mu.Unlock()
}

func (e *Engine) resync(ctx context.Context, reason string) {
	e.mu.Lock()
	views := make([]View, 0, len(e.mounts))
	for _, m := range e.mounts {
		views = append(views, m.view)
	}
	e.mu.Unlock()

	for _, view := range views {
		if staler, ok := view.(Staler); ok {
			staler.MarkStale()
		}
		loader, ok := view.(Loader)
		if !ok || e.opts.Fetcher == nil {
			continue
		}
		if err := loader.Load(ctx, e.opts.Fetcher); err != nil {
			e.logger.Warn("view reload failed", zap.String("reason", reason), zap.Error(err))
		}
	}
	if e.opts.OnResync != nil {
		e.opts.OnResync(ctx, reason)
	}
}

// Close unmounts every view; later events are dropped.
func (e *Engine) Close() {
	e.mu.Lock()
	e.closed = true
	mounts := e.mounts
	e.mounts = make(map[uint64]*mount)
	e.mu.Unlock()

	for _, m := range mounts {
		for _, sub := range m.subs {
			sub.Unsubscribe()
		}
	}
	e.bus.Close()
}
