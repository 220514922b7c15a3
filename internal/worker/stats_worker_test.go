package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/19niel/Ultra-MIS-Ticketing-System/internal/domain"
	"github.com/19niel/Ultra-MIS-Ticketing-System/internal/events"
)

type countingSource struct {
	calls atomic.Int64
	err   error
}

func (s *countingSource) Snapshot(context.Context) (domain.Stats, error) {
	n := s.calls.Add(1)
	if s.err != nil {
		return domain.Stats{}, s.err
	}
	return domain.Stats{TotalCreated: n}, nil
}

type statsRecorder struct {
	mu    sync.Mutex
	stats []domain.Stats
}

func (r *statsRecorder) handle(_ context.Context, e events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stats = append(r.stats, e.Payload.(events.StatsChangedPayload).Stats)
	return nil
}

func (r *statsRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.stats)
}

func TestStatsWorker_CoalescesBursts(t *testing.T) {
	bus := events.NewInMemoryDispatcher()
	source := &countingSource{}
	recorder := &statsRecorder{}
	bus.Subscribe(events.EventStatsChanged, recorder.handle)

	worker := NewStatsWorker(bus, source, 50*time.Millisecond, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go worker.Run(ctx)

	for i := 0; i < 10; i++ {
		_ = bus.Publish(ctx, events.Event{Type: events.EventTicketCreated, TicketID: int64(i + 1)})
	}

	require.Eventually(t, func() bool { return recorder.count() == 1 }, time.Second, 10*time.Millisecond)
	require.Never(t, func() bool { return recorder.count() > 1 }, 150*time.Millisecond, 10*time.Millisecond)
	require.Equal(t, int64(1), source.calls.Load())
}

func TestStatsWorker_IgnoresForeignAndMessageEvents(t *testing.T) {
	bus := events.NewInMemoryDispatcher()
	source := &countingSource{}
	worker := NewStatsWorker(bus, source, 0, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go worker.Run(ctx)

	bus.Deliver(ctx, events.Event{Type: events.EventTicketStatusChanged, Origin: "other-instance", Seq: 4})
	_ = bus.Publish(ctx, events.Event{Type: events.EventTicketMessageAppended, TicketID: 1})

	require.Never(t, func() bool { return source.calls.Load() > 0 }, 100*time.Millisecond, 10*time.Millisecond)
}

func TestStatsWorker_SnapshotErrorPublishesNothing(t *testing.T) {
	bus := events.NewInMemoryDispatcher()
	source := &countingSource{err: errors.New("db down")}
	recorder := &statsRecorder{}
	bus.Subscribe(events.EventStatsChanged, recorder.handle)

	worker := NewStatsWorker(bus, source, 0, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go worker.Run(ctx)

	_ = bus.Publish(ctx, events.Event{Type: events.EventTicketPriorityChanged, TicketID: 1})
	require.Eventually(t, func() bool { return source.calls.Load() == 1 }, time.Second, 10*time.Millisecond)
	require.Zero(t, recorder.count())
}

func TestStatsWorker_StopsOnCancel(t *testing.T) {
	bus := events.NewInMemoryDispatcher()
	worker := NewStatsWorker(bus, &countingSource{}, 0, nil)
	before := bus.SubscriberCount()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		worker.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
	require.Equal(t, before-len(events.TicketMutationTypes), bus.SubscriberCount())
}
