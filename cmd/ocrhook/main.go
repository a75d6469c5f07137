// ocrhook is a document pre-consume hook that makes scanned documents
// searchable using Azure AI Document Intelligence.
//
// The hook takes one image or PDF. PDFs that already carry text are left
// alone. Anything else is sent to the OCR service, the recognized text is laid
// over the page images as an invisible layer, empty pages are dropped and the
// input is replaced. The path of the resulting PDF is the only thing printed
// on stdout; diagnostics go to the log file.
//
// Usage:
//
//	ocrhook [flags] <input-file>
//
// Flags:
//
//	--config string     YAML configuration file
//	--mode string       "text" (overlay locally) or "pdf" (use the service's searchable PDF)
//	--cutoff int        Maximum number of recognized characters kept (0 = unlimited)
//	--marker string     Provenance token written invisibly on the first page
//	--log-dir string    Directory of paperless.log
//	--log-level string  trace, debug, info, warn or error
//	--debug             Draw the text layer in red
//
// Environment:
//
//	AZURE_FORM_RECOGNIZER_ENDPOINT  OCR endpoint (required)
//	AZURE_FORM_RECOGNIZER_KEY       OCR key (required)
//	OCR_CHAR_CUTOFF                 same as --cutoff
//	OCR_LOG_DIR                     same as --log-dir
//
// Exit status is 0 on success, 1 when the run fails and 2 on usage errors.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/gardar/ocrhook/pkg/azureocr"
	"github.com/gardar/ocrhook/pkg/config"
	"github.com/gardar/ocrhook/pkg/logging"
	"github.com/gardar/ocrhook/pkg/pdfocr"
	"github.com/gardar/ocrhook/pkg/pipeline"
)

var version = "dev"

const (
	exitFailure = 1
	exitUsage   = 2
)

// usageError marks command line mistakes so they exit with exitUsage.
type usageError struct{ err error }

func (e usageError) Error() string { return e.err.Error() }
func (e usageError) Unwrap() error { return e.err }

type flags struct {
	configPath string
	mode       string
	cutoff     int
	marker     string
	logDir     string
	logLevel   string
	debug      bool
}

func main() {
	cmd := newRootCmd()
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		var usage usageError
		if errors.As(err, &usage) {
			os.Exit(exitUsage)
		}
		os.Exit(exitFailure)
	}
}

func newRootCmd() *cobra.Command {
	var f flags

	cmd := &cobra.Command{
		Use:   "ocrhook [flags] <input-file>",
		Short: "Make a scanned document searchable with Azure OCR",
		Long: `ocrhook turns one image or PDF into a text-searchable PDF.

PDFs that already contain text are returned unchanged. Other documents are
sent to Azure AI Document Intelligence, the recognized text is written onto
the pages as an invisible layer, empty pages are removed and the input file
is replaced. The final path is printed on stdout.`,
		Version: version,
		Args: func(cmd *cobra.Command, args []string) error {
			if err := cobra.ExactArgs(1)(cmd, args); err != nil {
				return usageError{err}
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			// Failures past this point are logged; usage text would only add noise.
			cmd.SilenceUsage = true
			cmd.SilenceErrors = true
			return run(cmd, f, args[0])
		},
	}
	cmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return usageError{err}
	})

	cmd.Flags().StringVar(&f.configPath, "config", "", "YAML configuration file")
	cmd.Flags().StringVar(&f.mode, "mode", "", `OCR mode: "text" or "pdf"`)
	cmd.Flags().IntVar(&f.cutoff, "cutoff", 0, "maximum number of recognized characters kept (0 = unlimited)")
	cmd.Flags().StringVar(&f.marker, "marker", "", "provenance token written invisibly on the first page")
	cmd.Flags().StringVar(&f.logDir, "log-dir", "", "directory of "+logging.DefaultFileName)
	cmd.Flags().StringVar(&f.logLevel, "log-level", "", "log level (trace, debug, info, warn, error)")
	cmd.Flags().BoolVar(&f.debug, "debug", false, "draw the text layer visibly in red")

	return cmd
}

func run(cmd *cobra.Command, f flags, inputPath string) error {
	cfg, loadErr := config.Load(f.configPath)
	applyFlags(cmd, cfg, f)

	logger, closer := logging.Setup(cfg.LoggingConfig())
	defer closer.Close()
	log := logging.WithComponent(logger, "cmd")

	if loadErr != nil {
		log.Error().Err(loadErr).Msg("Cannot load configuration")
		return loadErr
	}
	if err := cfg.Validate(); err != nil {
		log.Error().Err(err).Msg("Invalid configuration")
		return err
	}

	client, err := azureocr.New(cfg.OCRConfig(), azureocr.WithLogger(logging.WithComponent(logger, "azureocr")))
	if err != nil {
		log.Error().Err(err).Msg("Cannot create OCR client")
		return err
	}

	opts := pipeline.DefaultOptions()
	opts.CharCutoff = cfg.CharCutoff
	opts.Overlay.Marker = cfg.Marker
	opts.Overlay.Debug = f.debug
	opts.Prune.Threshold = cfg.EmptyThreshold
	runner := pipeline.New(client, opts, logging.WithComponent(logger, "pipeline"))

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Debug().
		Str("version", version).
		Str("mode", string(cfg.Mode)).
		Int("cutoff", cfg.CharCutoff).
		Str("layer", pdfocr.DefaultOverlayConfig().LayerName).
		Msg("Configuration loaded")

	outputPath, err := runner.Run(ctx, inputPath)
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), outputPath)
	return nil
}

// applyFlags lets explicitly set flags override file and environment values.
func applyFlags(cmd *cobra.Command, cfg *config.Config, f flags) {
	changed := cmd.Flags().Changed
	if changed("mode") {
		cfg.Mode = azureocr.Mode(f.mode)
	}
	if changed("cutoff") {
		cfg.CharCutoff = f.cutoff
	}
	if changed("marker") {
		cfg.Marker = f.marker
	}
	if changed("log-dir") {
		cfg.LogDir = f.logDir
	}
	if changed("log-level") {
		cfg.LogLevel = f.logLevel
	}
}
