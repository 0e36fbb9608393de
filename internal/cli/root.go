// Package cli is the creek-ocr command tree.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/ironsheep/creek-ocr/internal/config"
	"github.com/ironsheep/creek-ocr/internal/logging"
)

const serviceName = "creek-ocr"

// BuildInfo is set by ldflags in main.
type BuildInfo struct {
	Version   string
	BuildTime string
	GitCommit string
}

// skipConfigValidation marks commands that run without valid service config.
const skipConfigValidation = "skip-config-validation"

// env is shared by every command once the root pre-run has loaded config.
type env struct {
	info   BuildInfo
	cfg    config.Config
	logger *slog.Logger
	stderr io.Writer
}

// NewRootCmd builds the command tree. Config is loaded in the root pre-run.
func NewRootCmd(info BuildInfo) *cobra.Command {
	e := &env{info: info, stderr: os.Stderr}

	root := &cobra.Command{
		Use:   "creek-ocr",
		Short: "Caspar Creek telemetry display OCR",
		Long: `creek-ocr captures the Caspar Creek telemetry display image, reads its
fields with Tesseract and stores one record per capture.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			e.cfg = config.Load()

			level, err := cmd.Flags().GetString("log-level")
			if err != nil {
				return err
			}
			e.logger = logging.New(e.stderr, serviceName, e.cfg.LogFormat, level)
			slog.SetDefault(e.logger)

			if cmd.Annotations[skipConfigValidation] == "" {
				if err := e.cfg.Validate(); err != nil {
					return fmt.Errorf("invalid configuration: %w", err)
				}
			}
			return nil
		},
	}

	ll := os.Getenv("LOG_LEVEL")
	if ll == "" {
		ll = "info"
	}
	root.PersistentFlags().String("log-level", ll, "The logging level: debug, info, warn, error")

	root.AddCommand(
		newCaptureCmd(e),
		newStageCmd(e),
		newProcessCmd(e),
		newBackfillCmd(e),
		newPurgeCmd(e),
		newQueryCmd(e),
		newServeCmd(e),
		newWorkerCmd(e),
		newSchemaCmd(e),
		newMCPCmd(e),
		newCalibrateCmd(e),
		newDoctorCmd(e),
		newVersionCmd(e),
	)
	return root
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
