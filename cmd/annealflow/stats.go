package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/quantumflow/annealflow/internal/models"
	"github.com/quantumflow/annealflow/internal/store"
)

func statsCmd() *cobra.Command {
	var (
		agentRef string
		since    time.Duration
		failed   bool
		limit    int
	)

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Summarize agent performance",
		Long: `Print per-agent performance metrics. With the sqlite backend the full
result log is also queried, including results of deleted agents.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			profiles := a.orchestrator.ListAgents()
			var filterID *string
			if agentRef != "" {
				p, err := a.orchestrator.FindAgent(agentRef)
				if err != nil {
					return err
				}
				profiles = []*models.AgentProfile{p}
				filterID = &p.ID
			}

			var total, successful int
			var quality float64
			for _, p := range profiles {
				total += p.Metrics.TotalTasks
				successful += p.Metrics.SuccessfulTasks
				quality += p.Metrics.AverageQuality * float64(p.Metrics.TotalTasks)
			}
			fmt.Printf("\nAgents: %d | Tasks: %d | Successful: %d", len(profiles), total, successful)
			if total > 0 {
				fmt.Printf(" | Avg quality: %.2f", quality/float64(total))
			}
			fmt.Println()

			sqlite, ok := a.store.(*store.SQLiteStore)
			if !ok {
				fmt.Println()
				return nil
			}

			filter := &store.ResultFilter{AgentID: filterID, Limit: limit}
			if since > 0 {
				start := time.Now().Add(-since)
				filter.StartTime = &start
			}
			if failed {
				f := false
				filter.Success = &f
			}

			results, err := sqlite.QueryResults(cmd.Context(), filter)
			if err != nil {
				return err
			}
			if len(results) == 0 {
				fmt.Printf("\nNo results in the log\n\n")
				return nil
			}

			fmt.Println("\n=== Result log ===")
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "TIME\tAGENT\tQUALITY\tITER\tOK\tTASK")
			for _, r := range results {
				ok := "✓"
				if !r.Success {
					ok = "✗"
				}
				fmt.Fprintf(w, "%s\t%s\t%.2f\t%d\t%s\t%s\n",
					r.Timestamp.Format("01-02 15:04"), shortID(r.AgentID),
					r.Quality, r.Iterations, ok, truncate(r.Task, 50))
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&agentRef, "agent", "", "only this agent")
	cmd.Flags().DurationVar(&since, "since", 0, "only results newer than this (sqlite)")
	cmd.Flags().BoolVar(&failed, "failed", false, "only failed results (sqlite)")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum results to list (sqlite)")
	return cmd
}
