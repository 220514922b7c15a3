package events

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// EventHandler handles a published event.
type EventHandler func(context.Context, Event) error

// ErrReplayGap is returned by Since when the replay buffer no longer holds
// every event after the requested sequence. Callers must re-fetch.
var ErrReplayGap = errors.New("events: replay buffer does not cover requested sequence")

// Dispatcher interface allows event publication/subscription.
type Dispatcher interface {
	Publish(ctx context.Context, event Event) error
	Subscribe(eventType EventType, handler EventHandler) *Subscription
	SubscribeAll(handler EventHandler) *Subscription
}

// Observer is notified of every dispatched event and of handler failures.
type Observer interface {
	RecordEvent(eventType string)
	RecordHandlerFailure(eventType string)
}

// BusOptions configures a Bus. Zero values pick defaults.
type BusOptions struct {
	Logger     *zap.Logger
	Sequencer  Sequencer
	ReplaySize int
	Origin     string
	Observer   Observer
}

const defaultReplaySize = 1024

type subscriber struct {
	id      uint64
	handler EventHandler
}

// Bus is a process-wide in-memory dispatcher. Publish dispatches
// synchronously and in sequence order, so handlers must not block and must
// not publish; slow work belongs on a worker.
type Bus struct {
	pubMu sync.Mutex

	mu        sync.RWMutex
	nextID    uint64
	listeners map[EventType][]subscriber
	wildcard  []subscriber
	closed    bool

	sequencer Sequencer
	replay    *replayRing
	origin    string
	logger    *zap.Logger
	observer  Observer
}

var _ Dispatcher = (*Bus)(nil)

// NewBus creates a bus instance.
func NewBus(opts BusOptions) *Bus {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Sequencer == nil {
		opts.Sequencer = NewMemorySequencer(0)
	}
	if opts.ReplaySize <= 0 {
		opts.ReplaySize = defaultReplaySize
	}
	if opts.Origin == "" {
		opts.Origin = uuid.NewString()
	}
	return &Bus{
		listeners: make(map[EventType][]subscriber),
		sequencer: opts.Sequencer,
		replay:    newReplayRing(opts.ReplaySize),
		origin:    opts.Origin,
		logger:    opts.Logger.With(zap.String("component", "event_bus")),
		observer:  opts.Observer,
	}
}

// NewInMemoryDispatcher creates a bus with default options.
func NewInMemoryDispatcher() *Bus {
	return NewBus(BusOptions{})
}

// Origin identifies events published by this bus instance.
func (b *Bus) Origin() string {
	return b.origin
}

// Publish stamps and dispatches a locally produced event. It never fails the
// caller: sequencing problems are logged and the event goes out unsequenced.
func (b *Bus) Publish(ctx context.Context, event Event) error {
	b.pubMu.Lock()
	defer b.pubMu.Unlock()

	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	event.Origin = b.origin
	if event.Seq == 0 {
		seq, err := b.sequencer.Next(ctx)
		if err != nil {
			b.logger.Warn("event sequence unavailable", zap.String("type", string(event.Type)), zap.Error(err))
		}
		event.Seq = seq
	}
	b.deliver(ctx, event)
	return nil
}

// Deliver dispatches an already stamped event, e.g. one relayed from another
// instance. The event is recorded for replay but not re-sequenced.
func (b *Bus) Deliver(ctx context.Context, event Event) {
	b.pubMu.Lock()
	defer b.pubMu.Unlock()
	b.deliver(ctx, event)
}

func (b *Bus) deliver(ctx context.Context, event Event) {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return
	}
	handlers := make([]subscriber, 0, len(b.listeners[event.Type])+len(b.wildcard))
	handlers = append(handlers, b.listeners[event.Type]...)
	handlers = append(handlers, b.wildcard...)
	b.mu.RUnlock()

	if event.Seq > 0 {
		b.replay.add(event)
	}
	if b.observer != nil {
		b.observer.RecordEvent(string(event.Type))
	}

	sort.Slice(handlers, func(i, j int) bool { return handlers[i].id < handlers[j].id })
	for _, sub := range handlers {
		b.invoke(ctx, sub.handler, event)
	}
}

// invoke runs one handler, isolating its error or panic from the others.
func (b *Bus) invoke(ctx context.Context, handler EventHandler, event Event) {
	defer func() {
		if r := recover(); r != nil {
			b.handlerFailed(event, fmt.Errorf("panic: %v", r))
		}
	}()
	if err := handler(ctx, event); err != nil {
		b.handlerFailed(event, err)
	}
}

func (b *Bus) handlerFailed(event Event, err error) {
	b.logger.Error("event handler failed",
		zap.String("type", string(event.Type)),
		zap.Uint64("seq", event.Seq),
		zap.Int64("ticket_id", event.TicketID),
		zap.Error(err))
	if b.observer != nil {
		b.observer.RecordHandlerFailure(string(event.Type))
	}
}

// Subscribe registers a handler for the given event type.
func (b *Bus) Subscribe(eventType EventType, handler EventHandler) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.listeners[eventType] = append(b.listeners[eventType], subscriber{id: id, handler: handler})
	return &Subscription{unsubscribe: func() { b.remove(eventType, id, false) }}
}

// SubscribeAll registers a handler for every event type.
func (b *Bus) SubscribeAll(handler EventHandler) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.wildcard = append(b.wildcard, subscriber{id: id, handler: handler})
	return &Subscription{unsubscribe: func() { b.remove("", id, true) }}
}

func (b *Bus) remove(eventType EventType, id uint64, wildcard bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if wildcard {
		b.wildcard = without(b.wildcard, id)
		return
	}
	remaining := without(b.listeners[eventType], id)
	if len(remaining) == 0 {
		delete(b.listeners, eventType)
		return
	}
	b.listeners[eventType] = remaining
}

func without(subs []subscriber, id uint64) []subscriber {
	out := make([]subscriber, 0, len(subs))
	for _, s := range subs {
		if s.id != id {
			out = append(out, s)
		}
	}
	return out
}

// SubscriberCount returns the number of registered handlers.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	n := len(b.wildcard)
	for _, subs := range b.listeners {
		n += len(subs)
	}
	return n
}

// Since returns the buffered events with a sequence greater than seq.
func (b *Bus) Since(seq uint64) ([]Event, error) {
	return b.replay.since(seq)
}

// Cursor describes where a new subscription starts relative to the
// sequence stream.
type Cursor struct {
	// Backlog holds the buffered events the subscriber missed, in sequence
	// order. It is empty when the subscriber is already current.
	Backlog []Event
	// LastSeq is the highest sequence dispatched before the subscription
	// went live.
	LastSeq uint64
}

// SubscribeAllFrom subscribes handler to every event and returns the buffered
// events after seq. Nothing is dispatched between taking the backlog and
// registering the handler, so backlog followed by live events has no holes
// and no repeats. When the buffer no longer covers seq the subscription is
// still returned together with ErrReplayGap and an empty backlog.
func (b *Bus) SubscribeAllFrom(seq uint64, handler EventHandler) (*Subscription, Cursor, error) {
	b.pubMu.Lock()
	defer b.pubMu.Unlock()

	cursor := Cursor{LastSeq: b.replay.last()}
	backlog, err := b.replay.since(seq)
	if err == nil {
		cursor.Backlog = backlog
	}
	return b.SubscribeAll(handler), cursor, err
}

// LastSeq returns the highest sequence seen by this bus.
func (b *Bus) LastSeq() uint64 {
	return b.replay.last()
}

// Close drops all subscriptions; later publishes are ignored.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.listeners = make(map[EventType][]subscriber)
	b.wildcard = nil
}

// Subscription is a handle returned by Subscribe.
type Subscription struct {
	once        sync.Once
	unsubscribe func()
}

// Unsubscribe deregisters the handler. Safe to call more than once.
func (s *Subscription) Unsubscribe() {
	if s == nil {
		return
	}
	s.once.Do(s.unsubscribe)
}
