package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/19niel/Ultra-MIS-Ticketing-System/internal/domain"
)

func TestBus_PublishStampsAndDispatches(t *testing.T) {
	bus := NewInMemoryDispatcher()

	var got []Event
	bus.Subscribe(EventTicketStatusChanged, func(_ context.Context, e Event) error {
		got = append(got, e)
		return nil
	})

	require.NoError(t, bus.Publish(context.Background(), Event{Type: EventTicketStatusChanged, TicketID: 5}))
	require.NoError(t, bus.Publish(context.Background(), Event{Type: EventTicketPriorityChanged, TicketID: 5}))

	require.Len(t, got, 1)
	require.NotEmpty(t, got[0].ID)
	require.Equal(t, uint64(1), got[0].Seq)
	require.Equal(t, bus.Origin(), got[0].Origin)
	require.False(t, got[0].Timestamp.IsZero())
	require.Equal(t, uint64(2), bus.LastSeq())
}

func TestBus_UnsubscribeStopsDelivery(t *testing.T) {
	bus := NewInMemoryDispatcher()

	calls := 0
	sub := bus.Subscribe(EventTicketCreated, func(context.Context, Event) error {
		calls++
		return nil
	})
	all := bus.SubscribeAll(func(context.Context, Event) error {
		calls++
		return nil
	})
	require.Equal(t, 2, bus.SubscriberCount())

	_ = bus.Publish(context.Background(), Event{Type: EventTicketCreated})
	require.Equal(t, 2, calls)

	sub.Unsubscribe()
	sub.Unsubscribe()
	all.Unsubscribe()
	require.Equal(t, 0, bus.SubscriberCount())

	_ = bus.Publish(context.Background(), Event{Type: EventTicketCreated})
	require.Equal(t, 2, calls)
}

func TestBus_HandlerFailuresAreIsolated(t *testing.T) {
	bus := NewInMemoryDispatcher()

	var order []string
	bus.Subscribe(EventTicketCreated, func(context.Context, Event) error {
		order = append(order, "panics")
		panic("boom")
	})
	bus.Subscribe(EventTicketCreated, func(context.Context, Event) error {
		order = append(order, "errors")
		return errors.New("listener failed")
	})
	bus.Subscribe(EventTicketCreated, func(context.Context, Event) error {
		order = append(order, "ok")
		return nil
	})

	require.NotPanics(t, func() {
		require.NoError(t, bus.Publish(context.Background(), Event{Type: EventTicketCreated}))
	})
	require.Equal(t, []string{"panics", "errors", "ok"}, order)
}

func TestBus_NoSubscribersIsNoop(t *testing.T) {
	bus := NewInMemoryDispatcher()
	require.NoError(t, bus.Publish(context.Background(), Event{Type: EventTicketMessageAppended, TicketID: 99}))
}

type failingSequencer struct{}

func (failingSequencer) Next(context.Context) (uint64, error) {
	return 0, errors.New("redis down")
}

func TestBus_SequencerFailureStillDelivers(t *testing.T) {
	bus := NewBus(BusOptions{Sequencer: failingSequencer{}})
	delivered := false
	bus.SubscribeAll(func(_ context.Context, e Event) error {
		delivered = true
		require.Zero(t, e.Seq)
		return nil
	})
	require.NoError(t, bus.Publish(context.Background(), Event{Type: EventStatsChanged}))
	require.True(t, delivered)
}

func TestBus_SinceReplaysAndDetectsGaps(t *testing.T) {
	bus := NewBus(BusOptions{ReplaySize: 3})
	for i := 0; i < 5; i++ {
		_ = bus.Publish(context.Background(), Event{Type: EventTicketCreated, TicketID: int64(i + 1)})
	}

	replayed, err := bus.Since(2)
	require.NoError(t, err)
	require.Len(t, replayed, 3)
	require.Equal(t, uint64(3), replayed[0].Seq)
	require.Equal(t, uint64(5), replayed[2].Seq)

	_, err = bus.Since(1)
	require.ErrorIs(t, err, ErrReplayGap)

	upToDate, err := bus.Since(5)
	require.NoError(t, err)
	require.Empty(t, upToDate)
}

func TestBus_ConcurrentPublishAssignsUniqueSeq(t *testing.T) {
	bus := NewInMemoryDispatcher()
	var mu sync.Mutex
	seen := map[uint64]bool{}
	bus.SubscribeAll(func(_ context.Context, e Event) error {
		mu.Lock()
		defer mu.Unlock()
		seen[e.Seq] = true
		return nil
	})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = bus.Publish(context.Background(), Event{Type: EventTicketCreated})
		}()
	}
	wg.Wait()
	require.Len(t, seen, 50)
}

func TestBus_CloseIgnoresLaterPublishes(t *testing.T) {
	bus := NewInMemoryDispatcher()
	calls := 0
	bus.SubscribeAll(func(context.Context, Event) error {
		calls++
		return nil
	})
	bus.Close()
	_ = bus.Publish(context.Background(), Event{Type: EventTicketCreated})
	require.Zero(t, calls)
}

func TestEvent_JSONRoundTripRestoresPayloadType(t *testing.T) {
	closedAt := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	original := Event{
		ID:       "evt-1",
		Seq:      7,
		Type:     EventTicketStatusChanged,
		TicketID: 5,
		Payload: TicketStatusChangedPayload{
			OldStatus: domain.TicketStatusOpen,
			Status:    domain.TicketStatusClosed,
			ClosedAt:  &closedAt,
			UpdatedAt: closedAt,
		},
	}
	data, err := json.Marshal(original)
	require.NoError(t, err)
	require.Contains(t, string(data), `"type":"ticket.statusChanged"`)

	var decoded Event
	require.NoError(t, json.Unmarshal(data, &decoded))
	payload, ok := decoded.Payload.(TicketStatusChangedPayload)
	require.True(t, ok)
	require.Equal(t, domain.TicketStatusClosed, payload.Status)
	require.True(t, closedAt.Equal(*payload.ClosedAt))
	require.Equal(t, uint64(7), decoded.Seq)
}

func TestEvent_UnmarshalRejectsUnknownType(t *testing.T) {
	var decoded Event
	err := json.Unmarshal([]byte(`{"type":"ticket.deleted","payload":{}}`), &decoded)
	require.Error(t, err)
}

func TestBus_SubscribeAllFromReturnsBacklogThenStreams(t *testing.T) {
	bus := NewBus(BusOptions{ReplaySize: 8})
	for i := 0; i < 3; i++ {
		_ = bus.Publish(context.Background(), Event{Type: EventTicketCreated})
	}

	var live []uint64
	sub, cursor, err := bus.SubscribeAllFrom(1, func(_ context.Context, e Event) error {
		live = append(live, e.Seq)
		return nil
	})
	require.NoError(t, err)
	defer sub.Unsubscribe()
	require.Equal(t, uint64(3), cursor.LastSeq)
	require.Len(t, cursor.Backlog, 2)
	require.Equal(t, uint64(2), cursor.Backlog[0].Seq)
	require.Equal(t, uint64(3), cursor.Backlog[1].Seq)

	_ = bus.Publish(context.Background(), Event{Type: EventTicketCreated})
	require.Equal(t, []uint64{4}, live)
}

func TestBus_SubscribeAllFromCurrentHasEmptyBacklog(t *testing.T) {
	bus := NewBus(BusOptions{ReplaySize: 8})
	_ = bus.Publish(context.Background(), Event{Type: EventTicketCreated})

	sub, cursor, err := bus.SubscribeAllFrom(bus.LastSeq(), func(context.Context, Event) error { return nil })
	require.NoError(t, err)
	defer sub.Unsubscribe()
	require.Empty(t, cursor.Backlog)
	require.Equal(t, uint64(1), cursor.LastSeq)
}

func TestBus_SubscribeAllFromReportsGap(t *testing.T) {
	bus := NewBus(BusOptions{ReplaySize: 2})
	for i := 0; i < 5; i++ {
		_ = bus.Publish(context.Background(), Event{Type: EventTicketCreated})
	}

	sub, cursor, err := bus.SubscribeAllFrom(1, func(context.Context, Event) error { return nil })
	require.ErrorIs(t, err, ErrReplayGap)
	require.Empty(t, cursor.Backlog)
	require.Equal(t, uint64(5), cursor.LastSeq)
	require.Equal(t, 1, bus.SubscriberCount())
	sub.Unsubscribe()
	require.Zero(t, bus.SubscriberCount())
}
