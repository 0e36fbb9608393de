package cli

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ironsheep/creek-ocr/internal/queue"
	"github.com/ironsheep/creek-ocr/internal/source"
	"github.com/ironsheep/creek-ocr/internal/storage/postgres"
)

type check struct {
	Name   string
	OK     bool
	Detail string
}

func newDoctorCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:         "doctor",
		Short:       "Check configuration and every collaborator",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{skipConfigValidation: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			fetch, _ := cmd.Flags().GetBool("fetch")
			checks := e.diagnose(cmd.Context(), fetch)

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			failed := 0
			for _, c := range checks {
				status := "ok"
				if !c.OK {
					status = "FAIL"
					failed++
				}
				fmt.Fprintf(w, "%s\t%s\t%s\n", c.Name, status, c.Detail)
			}
			if err := w.Flush(); err != nil {
				return err
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d checks failed", failed, len(checks))
			}
			return nil
		},
	}
	cmd.Flags().Bool("fetch", false, "Also fetch the live display")
	return cmd
}

func (e *env) diagnose(ctx context.Context, fetch bool) []check {
	var checks []check
	add := func(name, ok string, err error) {
		if err != nil {
			checks = append(checks, check{Name: name, Detail: err.Error()})
			return
		}
		checks = append(checks, check{Name: name, OK: true, Detail: ok})
	}

	add("config", "valid", e.cfg.Validate())

	info := e.newReader().Info()
	if info.Available {
		add("tesseract", fmt.Sprintf("%s (%s)", info.Version, info.Language), nil)
	} else {
		add("tesseract", "", errors.New(info.Error))
	}

	if cat, err := e.loadCatalog(); err != nil {
		add("catalog", "", err)
	} else {
		add("catalog", fmt.Sprintf("%d regions, primary %s", cat.Len(), cat.Primary().ID), nil)
	}

	if objects, closeObjects, err := e.openObjects(ctx); err != nil {
		add("object store", "", err)
	} else {
		_, err := objects.Exists(ctx, "doctor")
		add("object store", e.cfg.ObjectStore, err)
		_ = closeObjects()
	}

	if db, err := postgres.OpenDB(e.cfg.PostgresDSN); err != nil {
		add("postgres", "", err)
	} else {
		add("postgres", "reachable", db.PingContext(ctx))
		_ = db.Close()
	}

	noRetry := false
	if e.cfg.NATSURL == "" {
		checks = append(checks, check{Name: "nats", OK: true, Detail: "disabled"})
	} else if q, err := queue.NewWithOptions(e.cfg.NATSURL, e.cfg.NATSSubject, queue.Options{
		Name:                 serviceName,
		RetryOnFailedConnect: &noRetry,
		Logger:               e.logger,
	}); err != nil {
		add("nats", "", err)
	} else {
		add("nats", e.cfg.NATSSubject, nil)
		q.Close()
	}

	if fetch {
		src := source.NewHTTP(e.cfg.SourceURL, source.Options{Timeout: e.cfg.SourceTimeout, Logger: e.logger})
		data, err := src.Fetch(ctx)
		add("source", fmt.Sprintf("%d bytes", len(data)), err)
	}
	return checks
}
