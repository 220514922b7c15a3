package service

import (
	"context"
	"time"

	"github.com/19niel/Ultra-MIS-Ticketing-System/internal/domain"
	"github.com/19niel/Ultra-MIS-Ticketing-System/internal/repository"
	apperrors "github.com/19niel/Ultra-MIS-Ticketing-System/pkg/util/errorutil"
)

// StatsService computes the dashboard aggregate.
type StatsService struct {
	tickets repository.TicketRepository
	now     func() time.Time
}

// NewStatsService constructs the service. A nil clock uses local wall time,
// which decides where "today" starts.
func NewStatsService(tickets repository.TicketRepository, clock func() time.Time) *StatsService {
	if clock == nil {
		clock = time.Now
	}
	return &StatsService{tickets: tickets, now: clock}
}

// Snapshot returns the current aggregate.
func (s *StatsService) Snapshot(ctx context.Context) (domain.Stats, error) {
	stats, err := s.tickets.Stats(ctx, s.now())
	if err != nil {
		return domain.Stats{}, apperrors.NewInternalError(err)
	}
	return stats, nil
}
