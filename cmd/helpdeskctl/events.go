package main

import (
	"encoding/json"
	"time"

	"github.com/spf13/cobra"

	"github.com/19niel/Ultra-MIS-Ticketing-System/internal/reconcile"
)

var eventsSince uint64

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Print buffered events newer than --since as JSON lines",
	RunE: func(cmd *cobra.Command, _ []string) error {
		fetcher := reconcile.NewRESTFetcher(apiURL, token, 10*time.Second)
		resp, err := fetcher.EventsSince(cmd.Context(), eventsSince)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		for _, event := range resp.Events {
			if err := enc.Encode(event); err != nil {
				return err
			}
		}
		cmd.PrintErrf("last_seq=%d\n", resp.LastSeq)
		return nil
	},
}

func init() {
	eventsCmd.Flags().Uint64Var(&eventsSince, "since", 0, "last sequence already seen")
	rootCmd.AddCommand(eventsCmd)
}
