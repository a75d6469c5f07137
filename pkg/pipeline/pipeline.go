// Package pipeline drives one document through classification, OCR, text
// overlay and empty-page pruning, and replaces the input with the result.
//
// All intermediate files live in a private temporary directory. The input is
// only touched by the final rename, so a failed run leaves it as it was.
package pipeline

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/gardar/ocrhook/pkg/azureocr"
	"github.com/gardar/ocrhook/pkg/hookerr"
	"github.com/gardar/ocrhook/pkg/pdfocr"
)

// Recognizer returns the text of a PDF, one string per page.
type Recognizer interface {
	Recognize(ctx context.Context, pdfPath string, cutoff int) (*azureocr.Result, error)
}

// Stage names a step of a run.
type Stage string

// Stages in the order a run passes them.
const (
	StageClassify  Stage = "classify"
	StageNormalize Stage = "normalize"
	StageOCR       Stage = "ocr"
	StageOverlay   Stage = "overlay"
	StagePrune     Stage = "prune"
	StageFinalize  Stage = "finalize"
)

// Options configures a Runner.
type Options struct {
	CharCutoff int                  // total recognized characters kept; 0 keeps all
	Overlay    pdfocr.OverlayConfig // text layer settings
	Prune      pdfocr.PruneOptions  // empty-page heuristic
	TempDir    string               // parent of the working directory; "" uses os.TempDir
}

// DefaultOptions returns the options the hook runs with.
func DefaultOptions() Options {
	return Options{
		Overlay: pdfocr.DefaultOverlayConfig(),
		Prune:   pdfocr.DefaultPruneOptions(),
	}
}

// Runner processes documents. It holds no per-run state.
type Runner struct {
	ocr    Recognizer
	opts   Options
	logger zerolog.Logger
}

// New creates a Runner that recognizes text with ocr.
func New(ocr Recognizer, opts Options, logger zerolog.Logger) *Runner {
	opts.Overlay.Logger = logger.With().Str("component", "overlay").Logger()
	opts.Prune.Logger = logger.With().Str("component", "prune").Logger()
	opts.Prune.Marker = opts.Overlay.Marker
	return &Runner{ocr: ocr, opts: opts, logger: logger}
}

// run carries the state of one invocation.
type run struct {
	*Runner
	input   string
	output  string
	workDir string
	logger  zerolog.Logger
}

// Run processes the document at inputPath and returns the path of the
// searchable PDF. A searchable PDF input is returned as is. An image input
// yields a PDF next to it with the extension replaced by .pdf; a PDF input is
// replaced in place.
func (r *Runner) Run(ctx context.Context, inputPath string) (string, error) {
	start := time.Now()
	logger := r.logger.With().Str("input", inputPath).Logger()
	logger.Info().Msgf("Start OCR for: %s", inputPath)

	classified, err := pdfocr.Inspect(inputPath, pdfocr.ClassifyOptions{
		LayerName: r.opts.Overlay.LayerName,
		Marker:    r.opts.Overlay.Marker,
	})
	if err != nil {
		return "", failed(logger, StageClassify, err)
	}
	logger.Debug().
		Stringer("classification", classified.Classification).
		Int("pages", classified.Pages).
		Int("text_page", classified.TextPage).
		Bool("ocr_layer", classified.HasOCRLayer).
		Bool("marker", classified.HasMarker).
		Str("reader", classified.Reader).
		Msg("Input classified")

	if classified.Classification == pdfocr.AlreadySearchable {
		logger.Info().Msg("Document already has text, skipping OCR")
		return inputPath, nil
	}

	output := inputPath
	if classified.Classification == pdfocr.NotAPDF {
		output = strings.TrimSuffix(inputPath, filepath.Ext(inputPath)) + ".pdf"
		if err := checkFree(output); err != nil {
			return "", failed(logger, StageClassify, err)
		}
	}

	workDir, err := os.MkdirTemp(r.opts.TempDir, "ocrhook-*")
	if err != nil {
		return "", failed(logger, StageClassify, hookerr.Wrap("pipeline.Run", hookerr.ErrIO, err, "create working directory"))
	}
	defer os.RemoveAll(workDir)

	state := &run{Runner: r, input: inputPath, output: output, workDir: workDir, logger: logger}

	var working string
	if classified.Classification == pdfocr.NotAPDF {
		if working, err = state.normalize(); err != nil {
			return "", failed(logger, StageNormalize, err)
		}
	} else {
		working = filepath.Join(workDir, "input.pdf")
		if err := copyFile(inputPath, working); err != nil {
			return "", failed(logger, StageClassify, hookerr.Wrap("pipeline.Run", hookerr.ErrIO, err, "copy input"))
		}
	}

	result, err := r.ocr.Recognize(ctx, working, r.opts.CharCutoff)
	if err != nil {
		return "", failed(logger, StageOCR, err)
	}
	logger.Info().Msg("OCR request successful")

	overlaid, err := state.overlay(working, result)
	if err != nil {
		return "", failed(logger, StageOverlay, err)
	}

	final, err := state.prune(overlaid, result.Pages)
	if err != nil {
		return "", failed(logger, StagePrune, err)
	}

	if state.output != state.input {
		// The name may have been taken while the OCR service was working.
		if err := checkFree(state.output); err != nil {
			return "", failed(logger, StageFinalize, err)
		}
	}
	if err := replaceFile(final, state.output); err != nil {
		return "", failed(logger, StageFinalize, err)
	}

	logger.Info().
		Str("output", state.output).
		Dur("duration", time.Since(start)).
		Msgf("Original file replaced with searchable PDF: %s", state.output)
	return state.output, nil
}

// normalize converts the image input into a one-page PDF in the work dir.
func (s *run) normalize() (string, error) {
	pdfPath := filepath.Join(s.workDir, "image.pdf")
	if err := pdfocr.ImageToPDF(s.input, pdfPath); err != nil {
		return "", err
	}
	pages, err := pdfocr.PageCount(pdfPath)
	if err != nil {
		s.logger.Debug().Err(err).Msg("Cannot count pages of converted image")
	}
	s.logger.Debug().Str("pdf", pdfPath).Int("pages", pages).Msg("Image converted to PDF")
	return pdfPath, nil
}

// overlay produces the searchable PDF: the service's rendering when it
// returned one, otherwise the working PDF with the recognized text laid over.
func (s *run) overlay(working string, result *azureocr.Result) (string, error) {
	out := filepath.Join(s.workDir, "ocr.pdf")

	if result.SearchablePDF != nil {
		if err := os.WriteFile(out, result.SearchablePDF, 0o644); err != nil {
			return "", hookerr.Wrap("pipeline.overlay", hookerr.ErrIO, err, "write service PDF")
		}
		s.logger.Debug().Int("bytes", len(result.SearchablePDF)).Msg("Using searchable PDF from OCR service")
		return out, nil
	}

	if err := pdfocr.ApplyText(working, out, result.Pages, s.opts.Overlay); err != nil {
		return "", err
	}
	return out, nil
}

// prune removes empty pages. A document whose every page looks empty is
// kept whole.
func (s *run) prune(overlaid string, texts []string) (string, error) {
	out := filepath.Join(s.workDir, "pruned.pdf")

	result, err := pdfocr.PruneEmptyPages(overlaid, out, texts, s.opts.Prune)
	if err != nil {
		return "", err
	}
	if result.Remaining == 0 {
		s.logger.Warn().Int("pages", result.Removed).Msg("Every page looks empty; keeping the document unpruned")
		return overlaid, nil
	}
	return out, nil
}

// checkFree fails when path already exists; an image input must not
// replace an unrelated PDF of the same name.
func checkFree(path string) error {
	const op = "pipeline.checkFree"

	_, err := os.Lstat(path)
	switch {
	case err == nil:
		return hookerr.New(op, hookerr.ErrIO, path+" already exists")
	case !os.IsNotExist(err):
		return hookerr.Wrap(op, hookerr.ErrIO, err, "check "+path)
	}
	return nil
}

func failed(logger zerolog.Logger, stage Stage, err error) error {
	logger.Error().Err(err).Str("stage", string(stage)).Msg("OCR run failed")
	return err
}

// replaceFile atomically replaces dst with the contents of src. The data is
// staged in a temporary file next to dst, synced, and renamed over dst so
// readers see either the old or the new file.
func replaceFile(src, dst string) error {
	const op = "pipeline.replaceFile"

	mode := os.FileMode(0o644)
	if info, err := os.Stat(dst); err == nil {
		mode = info.Mode().Perm()
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".ocrhook-*")
	if err != nil {
		return hookerr.Wrap(op, hookerr.ErrIO, err, "create temporary file")
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			tmp.Close()
			os.Remove(tmpName)
		}
	}()

	in, err := os.Open(src)
	if err != nil {
		return hookerr.Wrap(op, hookerr.ErrIO, err, "open result")
	}
	defer in.Close()

	if _, err := io.Copy(tmp, in); err != nil {
		return hookerr.Wrap(op, hookerr.ErrIO, err, "copy result")
	}
	if err := tmp.Sync(); err != nil {
		return hookerr.Wrap(op, hookerr.ErrIO, err, "sync")
	}
	if err := tmp.Chmod(mode); err != nil {
		return hookerr.Wrap(op, hookerr.ErrIO, err, "chmod")
	}
	if err := tmp.Close(); err != nil {
		return hookerr.Wrap(op, hookerr.ErrIO, err, "close")
	}
	if err := os.Rename(tmpName, dst); err != nil {
		os.Remove(tmpName)
		committed = true
		return hookerr.Wrap(op, hookerr.ErrIO, err, "rename over "+dst)
	}
	committed = true
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
