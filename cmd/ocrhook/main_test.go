package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"codeberg.org/go-pdf/fpdf"

	"github.com/gardar/ocrhook/pkg/azureocr"
	"github.com/gardar/ocrhook/pkg/config"
	"github.com/gardar/ocrhook/pkg/hookerr"
)

// isolate clears the hook's environment and runs the test in an empty
// directory so no .env file is picked up.
func isolate(t *testing.T) string {
	t.Helper()
	for _, key := range []string{
		config.EnvEndpoint, config.EnvKey, config.EnvCharCutoff, config.EnvLogDir,
		config.EnvMode, config.EnvMarker, config.EnvLogLevel, config.EnvLogFormat,
	} {
		t.Setenv(key, "")
	}
	dir := t.TempDir()
	t.Chdir(dir)
	return dir
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), err
}

func TestUsageErrors(t *testing.T) {
	isolate(t)

	tests := []struct {
		name string
		args []string
	}{
		{"no input", nil},
		{"two inputs", []string{"a.pdf", "b.pdf"}},
		{"unknown flag", []string{"--nope", "a.pdf"}},
		{"bad cutoff", []string{"--cutoff", "many", "a.pdf"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, tt.args...)
			var usage usageError
			if !errors.As(err, &usage) {
				t.Fatalf("err = %v, want a usage error", err)
			}
		})
	}
}

func TestMissingCredentials(t *testing.T) {
	dir := isolate(t)
	input := filepath.Join(dir, "scan.pdf")
	pdf := fpdf.New("P", "pt", "A4", "")
	pdf.AddPage()
	if err := pdf.OutputFileAndClose(input); err != nil {
		t.Fatal(err)
	}
	before, _ := os.ReadFile(input)

	stdout, err := execute(t, "--log-dir", dir, input)
	if !errors.Is(err, hookerr.ErrConfiguration) {
		t.Fatalf("err = %v, want ErrConfiguration", err)
	}
	var usage usageError
	if errors.As(err, &usage) {
		t.Error("configuration failure reported as usage error")
	}
	if stdout != "" {
		t.Errorf("stdout = %q, want nothing", stdout)
	}
	after, _ := os.ReadFile(input)
	if !bytes.Equal(before, after) {
		t.Error("input modified")
	}

	logData, err := os.ReadFile(filepath.Join(dir, "paperless.log"))
	if err != nil {
		t.Fatalf("log file: %v", err)
	}
	if !strings.Contains(string(logData), config.EnvEndpoint) {
		t.Errorf("log does not name the missing setting:\n%s", logData)
	}
}

func TestSearchableInputPrintsPath(t *testing.T) {
	dir := isolate(t)
	t.Setenv(config.EnvEndpoint, "http://127.0.0.1:1")
	t.Setenv(config.EnvKey, "key")

	input := filepath.Join(dir, "letter.pdf")
	pdf := fpdf.New("P", "pt", "A4", "")
	pdf.AddPage()
	pdf.SetFont("Helvetica", "", 12)
	pdf.Text(72, 72, "Already searchable text")
	if err := pdf.OutputFileAndClose(input); err != nil {
		t.Fatal(err)
	}

	stdout, err := execute(t, "--log-dir", dir, input)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if stdout != input+"\n" {
		t.Errorf("stdout = %q, want the input path only", stdout)
	}
}

func TestApplyFlags(t *testing.T) {
	isolate(t)
	cmd := newRootCmd()
	if err := cmd.ParseFlags([]string{"--mode", "pdf", "--cutoff", "500", "--log-level", "warn"}); err != nil {
		t.Fatal(err)
	}

	cfg := config.Default()
	cfg.LogDir = "/from/env"
	f := flags{mode: "pdf", cutoff: 500, logLevel: "warn"}
	applyFlags(cmd, cfg, f)

	if cfg.Mode != azureocr.ModePDF || cfg.CharCutoff != 500 || cfg.LogLevel != "warn" {
		t.Errorf("flags not applied: %+v", cfg)
	}
	if cfg.LogDir != "/from/env" {
		t.Errorf("unset flag overrode LogDir: %q", cfg.LogDir)
	}
}
