package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/19niel/Ultra-MIS-Ticketing-System/internal/domain"
	"github.com/19niel/Ultra-MIS-Ticketing-System/internal/events"
)

// StatsSource computes the dashboard aggregate.
type StatsSource interface {
	Snapshot(ctx context.Context) (domain.Stats, error)
}

// StatsWorker recomputes dashboard stats after ticket mutations and
// publishes them as stats.changed. Bursts of mutations collapse into one
// recomputation per debounce window.
type StatsWorker struct {
	bus      *events.Bus
	source   StatsSource
	debounce time.Duration
	logger   *zap.Logger

	trigger chan struct{}
	subs    []*events.Subscription
}

// NewStatsWorker subscribes to ticket mutations on bus.
func NewStatsWorker(bus *events.Bus, source StatsSource, debounce time.Duration, logger *zap.Logger) *StatsWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	w := &StatsWorker{
		bus:      bus,
		source:   source,
		debounce: debounce,
		logger:   logger.With(zap.String("component", "stats_worker")),
		trigger:  make(chan struct{}, 1),
	}
	for _, t := range events.TicketMutationTypes {
		w.subs = append(w.subs, bus.Subscribe(t, w.onMutation))
	}
	return w
}

// onMutation runs on the publish path and never blocks. Events relayed from
// other instances are ignored; their origin publishes the snapshot.
func (w *StatsWorker) onMutation(_ context.Context, event events.Event) error {
	if event.Origin != "" && event.Origin != w.bus.Origin() {
		return nil
	}
	w.Notify()
	return nil
}

// Notify marks the aggregate dirty.
func (w *StatsWorker) Notify() {
	select {
	case w.trigger <- struct{}{}:
	default:
	}
}

// Run processes triggers until ctx is cancelled.
func (w *StatsWorker) Run(ctx context.Context) {
	defer w.stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.trigger:
		}

		if w.debounce > 0 {
			timer := time.NewTimer(w.debounce)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}
			// triggers that arrived during the window are covered by this run
			select {
			case <-w.trigger:
			default:
			}
		}
		w.publish(ctx)
	}
}

func (w *StatsWorker) publish(ctx context.Context) {
	stats, err := w.source.Snapshot(ctx)
	if err != nil {
		w.logger.Warn("stats snapshot failed", zap.Error(err))
		return
	}
	_ = w.bus.Publish(ctx, events.Event{
		Type:    events.EventStatsChanged,
		Actor:   events.ActorFromPrincipal(domain.SystemPrincipal),
		Payload: events.StatsChangedPayload{Stats: stats},
	})
}

func (w *StatsWorker) stop() {
	for _, sub := range w.subs {
		sub.Unsubscribe()
	}
}
