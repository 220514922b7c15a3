package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/19niel/Ultra-MIS-Ticketing-System/internal/auth"
	"github.com/19niel/Ultra-MIS-Ticketing-System/internal/domain"
	"github.com/19niel/Ultra-MIS-Ticketing-System/internal/events"
	"github.com/19niel/Ultra-MIS-Ticketing-System/internal/reconcile"
)

var (
	watchTicket       int64
	watchPageSize     int
	watchStatuses     []string
	watchSearch       string
	watchAssignedToMe bool
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow the live event stream and keep ticket views in sync",
	Long: `Connect to the realtime gateway, print every event and keep a ticket
list, the dashboard stats and optionally one ticket thread reconciled.
After each resync the reloaded views are summarized.

Examples:
  helpdeskctl watch --status Open --status "In Progress"
  helpdeskctl watch --ticket 42`,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().Int64Var(&watchTicket, "ticket", 0, "also follow this ticket's detail and thread")
	watchCmd.Flags().IntVar(&watchPageSize, "page-size", 10, "rows in the list view")
	watchCmd.Flags().StringArrayVar(&watchStatuses, "status", nil, "filter the list by status (repeatable)")
	watchCmd.Flags().StringVar(&watchSearch, "search", "", "filter the list by subject or ticket number")
	watchCmd.Flags().BoolVar(&watchAssignedToMe, "assigned-to-me", false, "only tickets assigned to the caller")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, _ []string) error {
	logger := newLogger()
	defer logger.Sync() //nolint:errcheck
	out := cmd.OutOrStdout()

	query := reconcile.ListQuery{
		Page:         1,
		PageSize:     watchPageSize,
		Search:       watchSearch,
		AssignedToMe: watchAssignedToMe,
	}
	for _, raw := range watchStatuses {
		status, ok := domain.ParseTicketStatus(raw)
		if !ok {
			return fmt.Errorf("unknown status %q", raw)
		}
		query.Statuses = append(query.Statuses, status)
	}
	if token != "" {
		caller, err := auth.PrincipalFromToken(token)
		if err != nil {
			return fmt.Errorf("read token: %w", err)
		}
		query = query.ForPrincipal(caller)
	}

	fetcher := reconcile.NewRESTFetcher(apiURL, token, 10*time.Second)
	views := &watchedViews{
		list:  reconcile.NewListView(query),
		stats: reconcile.NewStatsView(fetcher.Stats, logger),
	}
	if watchTicket > 0 {
		views.detail = reconcile.NewDetailView(watchTicket)
		views.thread = reconcile.NewThreadView(watchTicket)
	}

	engine := reconcile.NewEngine(reconcile.EngineOptions{
		Fetcher: fetcher,
		Logger:  logger,
		OnResync: func(_ context.Context, reason string) {
			views.summarize(out, reason)
		},
	})
	defer engine.Close()
	engine.Mount(eventPrinter{out: out})
	for _, v := range views.all() {
		engine.Mount(v)
	}

	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	client := reconcile.NewClient(wsURL, engine, reconcile.ClientOptions{Header: header, Logger: logger})
	logger.Info("watching", zap.String("gateway", wsURL), zap.String("api", apiURL))
	if err := client.Run(cmd.Context()); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

type watchedViews struct {
	list   *reconcile.ListView
	stats  *reconcile.StatsView
	detail *reconcile.DetailView
	thread *reconcile.ThreadView
}

func (w *watchedViews) all() []reconcile.View {
	views := []reconcile.View{w.list, w.stats}
	if w.detail != nil {
		views = append(views, w.detail, w.thread)
	}
	return views
}

func (w *watchedViews) summarize(out io.Writer, reason string) {
	fmt.Fprintf(out, "-- resync (%s)\n", reason)
	if w.list.Stale() {
		fmt.Fprintln(out, "   list: stale")
	} else {
		fmt.Fprintf(out, "   list: %d of %d\n", len(w.list.Rows()), w.list.Total())
		for _, row := range w.list.Rows() {
			fmt.Fprintf(out, "   %s  %-11s %-6s %s\n", row.Number, row.Status, row.Priority, row.Subject)
		}
	}
	if stats, ok := w.stats.Stats(); ok {
		fmt.Fprintf(out, "   stats: created=%d open=%d resolved=%d failed=%d\n",
			stats.TotalCreated, stats.Open, stats.TotalResolved, stats.TotalFailed)
	}
	if w.detail == nil {
		return
	}
	if ticket, ok := w.detail.Ticket(); ok {
		fmt.Fprintf(out, "   ticket %s: %s, %s, %s\n", ticket.Number, ticket.Status, ticket.Priority, ticket.AssigneeName)
	}
	fmt.Fprintf(out, "   thread: %d message(s)\n", len(w.thread.Messages()))
}

// eventPrinter is a view that only echoes what it receives.
type eventPrinter struct {
	out io.Writer
}

func (p eventPrinter) EventTypes() []events.EventType {
	return events.AllEventTypes
}

func (p eventPrinter) Apply(_ context.Context, event events.Event) error {
	_, err := fmt.Fprintf(p.out, "#%d %s ticket=%d actor=%q\n", event.Seq, event.Type, event.TicketID, event.Actor.Name)
	return err
}
