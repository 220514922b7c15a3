package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/19niel/Ultra-MIS-Ticketing-System/internal/api/dto"
	"github.com/19niel/Ultra-MIS-Ticketing-System/internal/domain"
)

func writeData(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func TestRESTFetcher_DecodesEnvelopes(t *testing.T) {
	var gotAuth string
	var gotQuery map[string][]string

	mux := http.NewServeMux()
	mux.HandleFunc("/api/tickets", func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotQuery = r.URL.Query()
		writeData(w, http.StatusOK, map[string]any{"data": dto.TicketListResponse{
			Items: []dto.TicketRow{row(2), row(1)}, Total: 12, Page: 1, PageSize: 2, TotalPages: 6,
		}})
	})
	mux.HandleFunc("/api/tickets/7", func(w http.ResponseWriter, _ *http.Request) {
		ticket := domain.Ticket{ID: 7, Number: "TKT-0000007", Status: domain.TicketStatusOnHold}
		writeData(w, http.StatusOK, map[string]any{"data": dto.TicketDetailFromDomain(&ticket)})
	})
	mux.HandleFunc("/api/tickets/7/messages", func(w http.ResponseWriter, _ *http.Request) {
		writeData(w, http.StatusOK, map[string]any{"data": dto.MessagesFromDomain([]domain.TicketMessage{
			message(7, 1, "A", base), message(7, 2, "B", base.Add(time.Second)),
		})})
	})
	mux.HandleFunc("/api/tickets/8", func(w http.ResponseWriter, _ *http.Request) {
		writeData(w, http.StatusNotFound, map[string]any{"error": map[string]any{
			"code": "NOT_FOUND", "message": "ticket not found",
		}})
	})
	mux.HandleFunc("/api/tickets/stats/summary", func(w http.ResponseWriter, _ *http.Request) {
		writeData(w, http.StatusOK, map[string]any{"data": domain.Stats{TotalCreated: 12, Open: 4}})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	fetcher := NewRESTFetcher(srv.URL+"/", "tok", time.Second)
	ctx := context.Background()

	page, err := fetcher.ListTickets(ctx, ListQuery{PageSize: 2,
		Statuses: []domain.TicketStatus{domain.TicketStatusOpen, domain.TicketStatusOnHold}, Search: "printer"})
	require.NoError(t, err)
	require.Equal(t, int64(12), page.Total)
	require.Equal(t, []int64{2, 1}, ids(page.Rows))
	require.Equal(t, "Bearer tok", gotAuth)
	require.Equal(t, []string{"Open", "On Hold"}, gotQuery["status"])
	require.Equal(t, []string{"1"}, gotQuery["page"])
	require.Equal(t, []string{"printer"}, gotQuery["search"])

	ticket, err := fetcher.GetTicket(ctx, 7)
	require.NoError(t, err)
	require.Equal(t, domain.TicketStatusOnHold, ticket.Status)
	require.Equal(t, domain.UnassignedLabel, ticket.AssigneeName)

	msgs, err := fetcher.ListMessages(ctx, 7)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	require.Equal(t, "Erin Employee", msgs[0].AuthorName)

	stats, err := fetcher.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(4), stats.Open)

	_, err = fetcher.GetTicket(ctx, 8)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, http.StatusNotFound, apiErr.Status)
	require.Equal(t, "NOT_FOUND", apiErr.Code)
}

func TestRESTFetcher_CancelledContext(t *testing.T) {
	fetcher := NewRESTFetcher("http://127.0.0.1:1", "", time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := fetcher.Stats(ctx)
	require.ErrorIs(t, err, context.Canceled)
}
