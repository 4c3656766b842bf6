package main

import (
	"context"
	"fmt"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/joshu-sajeev/queuectl/internal/app"
	"github.com/joshu-sajeev/queuectl/internal/config"
	"github.com/joshu-sajeev/queuectl/internal/job"
	"github.com/spf13/cobra"
)

type usageError struct{ err error }

func (e *usageError) Error() string { return e.err.Error() }
func (e *usageError) Unwrap() error { return e.err }

func exactArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := cobra.ExactArgs(n)(cmd, args); err != nil {
			return &usageError{err}
		}
		return nil
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "queuectl",
		Short:         "A persistent background job queue for shell commands",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &usageError{err}
	})

	root.AddCommand(
		enqueueCmd(),
		startWorkersCmd(),
		statusCmd(),
		listCmd(),
		dlqListCmd(),
		dlqRetryCmd(),
		configSetCmd(),
		configShowCmd(),
		serveCmd(),
		migrateCmd(),
	)
	return root
}

// withApp bootstraps the application for one command and closes it after.
func withApp(fn func(cmd *cobra.Command, a *app.App, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := app.Bootstrap(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()
		return fn(cmd, a, args)
	}
}

func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
}

func enqueueCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "enqueue <json-payload>",
		Short:   "Add a job to the queue",
		Example: `  queuectl enqueue '{"id":"job1","command":"sleep 2","max_retries":3}'`,
		Args:    exactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, a *app.App, args []string) error {
			req, err := job.ParseEnqueue([]byte(args[0]))
			if err != nil {
				return err
			}
			resp, err := a.Service.Enqueue(cmd.Context(), req)
			if err != nil {
				return err
			}
			cmd.Printf("Enqueued job %s: %s\n", resp.ID, resp.Command)
			return nil
		}),
	}
}

func startWorkersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start-workers <count>",
		Short: "Run a pool of workers until interrupted",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := strconv.Atoi(args[0])
			if err != nil || n < 1 {
				return &usageError{fmt.Errorf("worker count must be a positive integer, got %q", args[0])}
			}
			return withApp(func(cmd *cobra.Command, a *app.App, _ []string) error {
				ctx, stop := signalContext(cmd)
				defer stop()

				cmd.Printf("Started %d worker(s). Press Ctrl+C to stop.\n", n)
				if err := a.RunWorkers(ctx, n); err != nil {
					return err
				}
				cmd.Println("All workers stopped.")
				return nil
			})(cmd, args)
		},
	}
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the number of jobs in each state",
		Args:  exactArgs(0),
		RunE: withApp(func(cmd *cobra.Command, a *app.App, _ []string) error {
			status, err := a.Service.Status(cmd.Context())
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, s := range config.AllJobStates {
				fmt.Fprintf(tw, "%s\t%d\n", s, status.Jobs[s])
			}
			fmt.Fprintf(tw, "DLQ\t%d\n", status.DeadLettered)
			return tw.Flush()
		}),
	}
}

func listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list <state>",
		Short: "List jobs in a state (pending, processing, completed, failed, dead)",
		Args:  exactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, a *app.App, args []string) error {
			jobs, err := a.Service.ListByState(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if len(jobs) == 0 {
				cmd.Printf("No jobs found in state %s\n", strings.ToUpper(args[0]))
				return nil
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tCOMMAND\tATTEMPTS\tMAX_RETRIES\tUPDATED")
			for _, j := range jobs {
				fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\n",
					j.ID, j.Command, j.Attempts, j.MaxRetries, j.UpdatedAt.Format(time.RFC3339))
			}
			return tw.Flush()
		}),
	}
}

func dlqListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dlq-list",
		Short: "List jobs in the dead letter queue",
		Args:  exactArgs(0),
		RunE: withApp(func(cmd *cobra.Command, a *app.App, _ []string) error {
			entries, err := a.Service.ListDLQ(cmd.Context())
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				cmd.Println("Dead letter queue is empty")
				return nil
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tCOMMAND\tREASON\tFAILED_AT")
			for _, e := range entries {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", e.ID, e.Command, e.Reason, e.FailedAt.Format(time.RFC3339))
			}
			return tw.Flush()
		}),
	}
}

func dlqRetryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dlq-retry <id>",
		Short: "Move a dead-lettered job back to the queue with its attempts reset",
		Args:  exactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, a *app.App, args []string) error {
			resp, err := a.Service.RetryDLQ(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			cmd.Printf("Job %s moved back to the queue\n", resp.ID)
			return nil
		}),
	}
}

func configSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config-set <key> <value>",
		Short: "Change a setting; it applies to processes started afterwards",
		Args:  exactArgs(2),
		RunE: withApp(func(cmd *cobra.Command, a *app.App, args []string) error {
			if err := a.Service.SetConfig(cmd.Context(), args[0], args[1]); err != nil {
				return err
			}
			v, _ := a.Config.Get(args[0])
			cmd.Printf("Set %s = %s\n", args[0], v)
			return nil
		}),
	}
}

func configShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config-show",
		Short: "Print the effective settings",
		Args:  exactArgs(0),
		RunE: withApp(func(cmd *cobra.Command, a *app.App, _ []string) error {
			values := a.Service.ShowConfig(cmd.Context())
			keys := make([]string, 0, len(values))
			for k := range values {
				keys = append(keys, k)
			}
			sort.Strings(keys)

			for _, k := range keys {
				cmd.Printf("%s=%s\n", k, values[k])
			}
			return nil
		}),
	}
}

func serveCmd() *cobra.Command {
	var (
		addr    string
		workers int
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		Args:  exactArgs(0),
		RunE: withApp(func(cmd *cobra.Command, a *app.App, _ []string) error {
			ctx, stop := signalContext(cmd)
			defer stop()

			if addr == "" {
				addr = a.Config.ListenAddr
			}
			return a.Serve(ctx, addr, workers)
		}),
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default QUEUECTL_LISTEN_ADDR)")
	cmd.Flags().IntVar(&workers, "workers", 0, "run this many workers in the same process")
	return cmd
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		Args:  exactArgs(0),
		RunE: withApp(func(cmd *cobra.Command, _ *app.App, _ []string) error {
			// Bootstrap has already migrated.
			cmd.Println("Migrations applied")
			return nil
		}),
	}
}
