package cli

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"github.com/swstarter/core/internal/app"
	"github.com/swstarter/core/internal/pkg/taskqueue"
)

// NewQueueCmd creates the 'queue' command group for inspecting the job lanes.
func NewQueueCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and maintain the job lanes",
	}
	cmd.AddCommand(newQueueCountsCmd(configPath))
	cmd.AddCommand(newQueueListCmd(configPath))
	cmd.AddCommand(newQueueRetryCmd(configPath))
	cmd.AddCommand(newQueueCleanCmd(configPath))
	return cmd
}

func newQueueCountsCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "counts",
		Short: "Show job counts per state for every lane",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, log, err := openApp(*configPath, false)
			if err != nil {
				return err
			}
			defer closeApp(a, log)

			out := make(map[string]taskqueue.Counts)
			for name, q := range a.Analytics().Queues() {
				counts, err := q.Counts(cmd.Context())
				if err != nil {
					return fmt.Errorf("count %s: %w", name, err)
				}
				out[name] = counts
			}
			return writeJSON(cmd.OutOrStdout(), out)
		},
	}
}

func newQueueListCmd(configPath *string) *cobra.Command {
	var (
		state string
		limit int64
	)
	cmd := &cobra.Command{
		Use:     "list <lane>",
		Short:   "List jobs of a lane in one state",
		Example: `  swstarter queue list query-queue --state failed --limit 20`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := taskqueue.ParseState(state)
			if err != nil {
				return err
			}
			if limit < 1 {
				return fmt.Errorf("--limit must be positive")
			}
			a, log, err := openApp(*configPath, false)
			if err != nil {
				return err
			}
			defer closeApp(a, log)

			q, err := lane(a, args[0])
			if err != nil {
				return err
			}
			jobs, err := q.ListJobs(cmd.Context(), st, 0, limit-1)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), jobs)
		},
	}
	cmd.Flags().StringVar(&state, "state", string(taskqueue.StateWaiting), "Job state: waiting, delayed, active, completed or failed")
	cmd.Flags().Int64Var(&limit, "limit", 20, "Maximum number of jobs to print")
	return cmd
}

func newQueueRetryCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "retry <lane> <job-id>",
		Short: "Move a failed job back to waiting",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, log, err := openApp(*configPath, false)
			if err != nil {
				return err
			}
			defer closeApp(a, log)

			q, err := lane(a, args[0])
			if err != nil {
				return err
			}
			job, err := q.Retry(cmd.Context(), args[1])
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), job)
		},
	}
}

func newQueueCleanCmd(configPath *string) *cobra.Command {
	var state string
	cmd := &cobra.Command{
		Use:   "clean <lane>",
		Short: "Remove every job of a lane in one state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := taskqueue.ParseState(state)
			if err != nil {
				return err
			}
			a, log, err := openApp(*configPath, false)
			if err != nil {
				return err
			}
			defer closeApp(a, log)

			q, err := lane(a, args[0])
			if err != nil {
				return err
			}
			n, err := q.Clean(cmd.Context(), st)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), map[string]int{"removed": n})
		},
	}
	cmd.Flags().StringVar(&state, "state", string(taskqueue.StateCompleted), "Finished state to remove: completed or failed")
	return cmd
}

func lane(a *app.App, name string) (*taskqueue.Queue, error) {
	queues := a.Analytics().Queues()
	if q, ok := queues[name]; ok {
		return q, nil
	}
	names := make([]string, 0, len(queues))
	for n := range queues {
		names = append(names, n)
	}
	sort.Strings(names)
	return nil, fmt.Errorf("unknown lane %q (want %s)", name, strings.Join(names, " or "))
}
