package reconcile

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/19niel/Ultra-MIS-Ticketing-System/internal/domain"
	"github.com/19niel/Ultra-MIS-Ticketing-System/internal/events"
)

var base = time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)

func row(id int64) Row {
	return Row{
		ID:           id,
		Number:       domain.FormatTicketNumber(id),
		Subject:      fmt.Sprintf("ticket %d", id),
		Category:     domain.TicketCategoryHardware,
		Priority:     domain.TicketPriorityMedium,
		Status:       domain.TicketStatusOpen,
		CreatedBy:    10,
		AssigneeName: domain.UnassignedLabel,
		CreatedAt:    base.Add(time.Duration(id) * time.Minute),
		UpdatedAt:    base.Add(time.Duration(id) * time.Minute),
	}
}

func created(id int64) events.Event {
	return events.Event{Type: events.EventTicketCreated, TicketID: id,
		Payload: events.TicketCreatedPayload{Ticket: row(id)}}
}

func statusChanged(id int64, status domain.TicketStatus, at time.Time) events.Event {
	return events.Event{Type: events.EventTicketStatusChanged, TicketID: id,
		Payload: events.TicketStatusChangedPayload{Status: status, UpdatedAt: at}}
}

func seededList(t *testing.T, page int, ids ...int64) *ListView {
	t.Helper()
	v := NewListView(ListQuery{Page: page, PageSize: 3})
	rows := make([]Row, 0, len(ids))
	for _, id := range ids {
		rows = append(rows, row(id))
	}
	v.Seed(rows, int64(len(ids)))
	return v
}

func ids(rows []Row) []int64 {
	out := make([]int64, len(rows))
	for i, r := range rows {
		out[i] = r.ID
	}
	return out
}

func TestListView_CreatedPrependsOnFirstPage(t *testing.T) {
	v := seededList(t, 1, 3, 2, 1)
	require.NoError(t, v.Apply(context.Background(), created(4)))

	require.Equal(t, []int64{4, 3, 2}, ids(v.Rows()))
	require.Equal(t, int64(4), v.Total())

	require.NoError(t, v.Apply(context.Background(), created(4)))
	require.Equal(t, []int64{4, 3, 2}, ids(v.Rows()))
	require.Equal(t, int64(4), v.Total())
}

func TestListView_CreatedIgnoredOnLaterPages(t *testing.T) {
	v := seededList(t, 2, 3, 2, 1)
	before := v.Rows()
	require.NoError(t, v.Apply(context.Background(), created(9)))
	require.Equal(t, before, v.Rows())
	require.Equal(t, int64(3), v.Total())
}

func TestListView_CreatedRespectsFilter(t *testing.T) {
	v := NewListView(ListQuery{Page: 1, PageSize: 5, Statuses: []domain.TicketStatus{domain.TicketStatusClosed}})
	v.Seed(nil, 0)
	require.NoError(t, v.Apply(context.Background(), created(1)))
	require.Empty(t, v.Rows())

	mine := NewListView(ListQuery{Page: 1, PageSize: 5, AssignedToMe: true})
	mine.Seed(nil, 0)
	require.NoError(t, mine.Apply(context.Background(), created(2)))
	require.Empty(t, mine.Rows())
}

func TestListView_EmployeeListSkipsOtherOwners(t *testing.T) {
	employee := domain.Principal{UserID: 10, Role: domain.UserRoleEmployee}
	v := NewListView(ListQuery{Page: 1, PageSize: 5}.ForPrincipal(employee))
	v.Seed([]Row{row(1)}, 1)
	ctx := context.Background()

	foreign := created(2)
	foreignRow := row(2)
	foreignRow.CreatedBy = 11
	foreign.Payload = events.TicketCreatedPayload{Ticket: foreignRow}
	require.NoError(t, v.Apply(ctx, foreign))
	require.Equal(t, []int64{1}, ids(v.Rows()))
	require.Equal(t, int64(1), v.Total())

	require.NoError(t, v.Apply(ctx, created(3)))
	require.Equal(t, []int64{3, 1}, ids(v.Rows()))

	support := NewListView(ListQuery{Page: 1, PageSize: 5}.ForPrincipal(domain.Principal{UserID: 20, Role: domain.UserRoleTechSupport}))
	support.Seed(nil, 0)
	require.NoError(t, support.Apply(ctx, foreign))
	require.Equal(t, []int64{2}, ids(support.Rows()))
}

func TestListQuery_AssignedToMeComparesCaller(t *testing.T) {
	query := ListQuery{AssignedToMe: true}.ForPrincipal(domain.Principal{UserID: 20, Role: domain.UserRoleTechSupport})
	require.Nil(t, query.CreatedBy)

	r := row(1)
	require.False(t, query.Matches(r))

	other := int64(21)
	r.AssigneeID = &other
	require.False(t, query.Matches(r))

	me := int64(20)
	r.AssigneeID = &me
	require.True(t, query.Matches(r))
}

func TestListView_StatusPatchTouchesOnlyTarget(t *testing.T) {
	v := seededList(t, 1, 3, 2, 1)
	before := v.Rows()
	at := base.Add(time.Hour)

	require.NoError(t, v.Apply(context.Background(), statusChanged(2, domain.TicketStatusClosed, at)))
	after := v.Rows()

	for i := range before {
		if before[i].ID == 2 {
			require.Equal(t, domain.TicketStatusClosed, after[i].Status)
			require.Equal(t, at, after[i].UpdatedAt)
			expected := before[i]
			expected.Status = domain.TicketStatusClosed
			expected.UpdatedAt = at
			require.Equal(t, mustJSON(t, expected), mustJSON(t, after[i]))
			continue
		}
		require.Equal(t, mustJSON(t, before[i]), mustJSON(t, after[i]))
	}
}

func TestListView_PatchForAbsentTicketIsNoop(t *testing.T) {
	v := seededList(t, 1, 3, 2, 1)
	before := mustJSON(t, v.Rows())
	require.NoError(t, v.Apply(context.Background(), statusChanged(42, domain.TicketStatusFailed, base.Add(time.Hour))))
	require.Equal(t, before, mustJSON(t, v.Rows()))
}

func TestListView_PatchesAreIdempotentAndIgnoreOlderStamps(t *testing.T) {
	v := seededList(t, 1, 1)
	later := base.Add(time.Hour)
	ctx := context.Background()

	require.NoError(t, v.Apply(ctx, statusChanged(1, domain.TicketStatusInProgress, later)))
	once := mustJSON(t, v.Rows())
	require.NoError(t, v.Apply(ctx, statusChanged(1, domain.TicketStatusInProgress, later)))
	require.Equal(t, once, mustJSON(t, v.Rows()))

	require.NoError(t, v.Apply(ctx, statusChanged(1, domain.TicketStatusOnHold, base)))
	require.Equal(t, domain.TicketStatusInProgress, v.Rows()[0].Status)
}

func TestListView_PriorityAndAssigneePatches(t *testing.T) {
	v := seededList(t, 1, 1)
	ctx := context.Background()
	at := base.Add(time.Hour)
	assignee := int64(20)

	require.NoError(t, v.Apply(ctx, events.Event{Type: events.EventTicketPriorityChanged, TicketID: 1,
		Payload: events.TicketPriorityChangedPayload{Priority: domain.TicketPriorityUrgent, UpdatedAt: at}}))
	require.NoError(t, v.Apply(ctx, events.Event{Type: events.EventTicketAssigneeChanged, TicketID: 1,
		Payload: events.TicketAssigneeChangedPayload{AssigneeID: &assignee, AssigneeName: "Sam Support", UpdatedAt: at}}))

	got := v.Rows()[0]
	require.Equal(t, domain.TicketPriorityUrgent, got.Priority)
	require.Equal(t, int64(20), *got.AssigneeID)
	require.Equal(t, "Sam Support", got.AssigneeName)
	require.Equal(t, domain.TicketStatusOpen, got.Status)
}

func TestListView_BuffersUntilSeeded(t *testing.T) {
	v := NewListView(ListQuery{Page: 1, PageSize: 3})
	ctx := context.Background()
	require.NoError(t, v.Apply(ctx, created(3)))
	require.NoError(t, v.Apply(ctx, statusChanged(1, domain.TicketStatusResolved, base.Add(time.Hour))))
	require.Empty(t, v.Rows())

	v.Seed([]Row{row(3), row(2), row(1)}, 3)
	rows := v.Rows()
	require.Equal(t, []int64{3, 2, 1}, ids(rows))
	require.Equal(t, domain.TicketStatusResolved, rows[2].Status)
}

func TestListView_PatchLeavesOtherRowsByteIdentical(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(1, 8).Draw(rt, "rows")
		v := NewListView(ListQuery{Page: 1, PageSize: n})
		seed := make([]Row, 0, n)
		for i := n; i >= 1; i-- {
			seed = append(seed, row(int64(i)))
		}
		v.Seed(seed, int64(n))
		before := v.Rows()

		target := rapid.Int64Range(1, int64(n)+2).Draw(rt, "target")
		status := rapid.SampledFrom(domain.TicketStatuses).Draw(rt, "status")
		at := base.Add(time.Duration(rapid.IntRange(0, 1000).Draw(rt, "minutes")) * time.Minute)
		_ = v.Apply(context.Background(), statusChanged(target, status, at))

		after := v.Rows()
		if len(after) != len(before) {
			rt.Fatalf("row count changed: %d -> %d", len(before), len(after))
		}
		for i := range before {
			if before[i].ID == target {
				if after[i].Subject != before[i].Subject || after[i].Priority != before[i].Priority {
					rt.Fatalf("unrelated field of target changed")
				}
				continue
			}
			if string(mustJSONRapid(rt, before[i])) != string(mustJSONRapid(rt, after[i])) {
				rt.Fatalf("row %d changed", before[i].ID)
			}
		}
	})
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return string(data)
}

func mustJSONRapid(rt *rapid.T, v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		rt.Fatalf("marshal: %v", err)
	}
	return data
}
