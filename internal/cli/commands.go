package cli

import (
	"context"
	"fmt"
	"net"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ironsheep/creek-ocr/internal/mcp"
	"github.com/ironsheep/creek-ocr/internal/server"
)

func newCaptureCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "capture",
		Short: "Fetch the live display and store its record",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			every, err := cmd.Flags().GetDuration("every")
			if err != nil {
				return err
			}

			rt, err := e.open(cmd.Context(), needs{records: true, source: true})
			if err != nil {
				return err
			}
			defer rt.Close()

			if every > 0 {
				return rt.svc.CaptureEvery(cmd.Context(), every)
			}

			rec, err := rt.svc.CaptureAndProcess(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), rec)
		},
	}
	cmd.Flags().Duration("every", 0, "Repeat the capture at this interval until interrupted")
	return cmd
}

func newStageCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "stage",
		Short: "Fetch the live display and store it unprocessed",
		Long: `stage writes the fetched image under a time-stamped key. When NATS_URL is
set the key is published for a worker to process.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := e.open(cmd.Context(), needs{source: true, publisher: true})
			if err != nil {
				return err
			}
			defer rt.Close()

			key, err := rt.svc.Stage(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{
				"key":       key,
				"published": rt.queue != nil,
			})
		},
	}
}

func newProcessCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "process <key>",
		Short: "Process a capture already in the object store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := e.open(cmd.Context(), needs{records: true})
			if err != nil {
				return err
			}
			defer rt.Close()

			rec, err := rt.svc.ProcessStoredKey(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), rec)
		},
	}
}

func newBackfillCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "backfill",
		Short: "Reprocess every stored capture",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := e.open(cmd.Context(), needs{records: true})
			if err != nil {
				return err
			}
			defer rt.Close()

			report, err := rt.svc.Backfill(cmd.Context())
			if perr := printJSON(cmd.OutOrStdout(), map[string]int{
				"processed": report.Processed,
				"failed":    report.Failed,
			}); perr != nil {
				return perr
			}
			return err
		},
	}
}

func newPurgeCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "purge",
		Short: "Delete staged and error captures from the object store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := e.open(cmd.Context(), needs{})
			if err != nil {
				return err
			}
			defer rt.Close()

			deleted, err := rt.svc.PurgeStaging(cmd.Context())
			if perr := printJSON(cmd.OutOrStdout(), map[string]any{
				"deleted": deleted,
				"count":   len(deleted),
			}); perr != nil {
				return perr
			}
			return err
		},
	}
}

func newQueryCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "query <YYYY-MM-DD>",
		Short: "Print the records captured on a UTC date",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := e.open(cmd.Context(), needs{records: true})
			if err != nil {
				return err
			}
			defer rt.Close()

			recs, err := rt.svc.Query(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), server.RecordsResponse{
				Date:  args[0],
				Count: len(recs),
				Items: recs,
			})
		},
	}
}

func newServeCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			schedule, err := cmd.Flags().GetBool("schedule")
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			rt, err := e.open(ctx, needs{records: true, source: true})
			if err != nil {
				return err
			}
			defer rt.Close()

			api := server.New(rt.svc,
				server.WithMetrics(rt.metrics.Handler()),
				server.WithLogger(e.logger),
			)

			g, ctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				return api.ListenAndServe(ctx, net.JoinHostPort("", e.cfg.HTTPPort))
			})
			if schedule {
				g.Go(func() error {
					return rt.svc.CaptureEvery(ctx, e.cfg.CaptureInterval)
				})
			}
			return g.Wait()
		},
	}
	cmd.Flags().Bool("schedule", false, "Also capture the live display every CAPTURE_INTERVAL")
	return cmd
}

func newWorkerCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Process captures announced on NATS",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := e.openQueue()
			if err != nil {
				return err
			}
			defer q.Close()

			rt, err := e.open(cmd.Context(), needs{records: true})
			if err != nil {
				return err
			}
			defer rt.Close()

			e.logger.Info("worker started", "subject", e.cfg.NATSSubject)
			return rt.svc.Work(cmd.Context(), q)
		},
	}
}

func newSchemaCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Manage the record table",
	}

	withStore := func(run func(ctx context.Context, rt *runtime) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			rt, err := e.open(cmd.Context(), needs{records: true})
			if err != nil {
				return err
			}
			defer rt.Close()
			return run(cmd.Context(), rt)
		}
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "create",
			Short: "Create the record table if it does not exist",
			Args:  cobra.NoArgs,
			RunE: withStore(func(ctx context.Context, rt *runtime) error {
				// open already ensured the schema.
				e.logger.Info("schema ready")
				return nil
			}),
		},
		&cobra.Command{
			Use:   "drop",
			Short: "Drop the record table",
			Args:  cobra.NoArgs,
			RunE: withStore(func(ctx context.Context, rt *runtime) error {
				if err := rt.records.DropSchema(ctx); err != nil {
					return fmt.Errorf("drop schema: %w", err)
				}
				e.logger.Info("schema dropped")
				return nil
			}),
		},
	)
	return cmd
}

func newMCPCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the pipeline as MCP tools over stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := e.open(cmd.Context(), needs{records: true, source: true})
			if err != nil {
				return err
			}
			defer rt.Close()

			srv := mcp.New(mcp.Config{
				Pipeline: rt.svc,
				Objects:  rt.objects,
				Catalog:  rt.catalog,
				Reader:   rt.reader,
				Version:  e.info.Version,
				Logger:   e.logger,
			})
			return srv.Run(cmd.Context())
		},
	}
}

func newVersionCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:         "version",
		Short:       "Print build information",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{skipConfigValidation: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "creek-ocr %s\n", e.info.Version)
			fmt.Fprintf(out, "  Build time: %s\n", e.info.BuildTime)
			fmt.Fprintf(out, "  Git commit: %s\n", e.info.GitCommit)
			return nil
		},
	}
}
