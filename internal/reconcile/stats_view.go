package reconcile

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/19niel/Ultra-MIS-Ticketing-System/internal/domain"
	"github.com/19niel/Ultra-MIS-Ticketing-System/internal/events"
)

// StatsFunc re-reads the dashboard aggregate.
type StatsFunc func(ctx context.Context) (domain.Stats, error)

// StatsView holds the dashboard aggregate. A pushed stats.changed snapshot
// is applied directly; any other ticket mutation triggers a re-fetch when
// a refetch function is configured. Re-fetches run off the event path and
// bursts collapse into one trailing request.
type StatsView struct {
	mu      sync.Mutex
	stats   domain.Stats
	seeded  bool
	stale   bool
	refetch StatsFunc
	logger  *zap.Logger

	running bool
	again   bool
	wg      sync.WaitGroup
}

// NewStatsView creates the view. refetch may be nil when the server pushes
// snapshots.
func NewStatsView(refetch StatsFunc, logger *zap.Logger) *StatsView {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StatsView{refetch: refetch, logger: logger}
}

func (v *StatsView) EventTypes() []events.EventType {
	return append([]events.EventType{events.EventStatsChanged}, events.TicketMutationTypes...)
}

func (v *StatsView) Load(ctx context.Context, fetcher Fetcher) error {
	stats, err := fetcher.Stats(ctx)
	if err != nil {
		return err
	}
	v.Seed(stats)
	return nil
}

func (v *StatsView) Seed(stats domain.Stats) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.stats = stats
	v.seeded = true
	v.stale = false
}

func (v *StatsView) Apply(ctx context.Context, event events.Event) error {
	if p, ok := event.Payload.(events.StatsChangedPayload); ok {
		v.Seed(p.Stats)
		return nil
	}
	if v.refetch == nil {
		return nil
	}
	v.trigger(ctx)
	return nil
}

func (v *StatsView) trigger(ctx context.Context) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.running {
		v.again = true
		return
	}
	v.running = true
	v.wg.Add(1)
	go v.refetchLoop(ctx)
}

func (v *StatsView) refetchLoop(ctx context.Context) {
	defer v.wg.Done()
	for {
		stats, err := v.refetch(ctx)

		v.mu.Lock()
		if err != nil {
			v.stale = true
			v.logger.Warn("stats refetch failed", zap.Error(err))
		} else {
			v.stats = stats
			v.seeded = true
			v.stale = false
		}
		if !v.again || ctx.Err() != nil {
			v.running = false
			v.again = false
			v.mu.Unlock()
			return
		}
		v.again = false
		v.mu.Unlock()
	}
}

// Wait blocks until in-flight re-fetches finish.
func (v *StatsView) Wait() {
	v.wg.Wait()
}

// Stats returns the current aggregate and whether it was ever loaded.
func (v *StatsView) Stats() (domain.Stats, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.stats, v.seeded
}

func (v *StatsView) MarkStale() {
	v.mu.Lock()
	v.stale = true
	v.mu.Unlock()
}

func (v *StatsView) Stale() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.stale
}
