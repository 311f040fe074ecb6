package extraction

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"
)

// Runner lets tests stub external commands.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)
}

type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	start := time.Now()

	cmd := exec.CommandContext(ctx, name, args...)
	var out, errb bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errb

	err := cmd.Run()
	if err != nil {
		slog.ErrorContext(ctx, "exec failed",
			"cmd", name,
			"duration_ms", time.Since(start).Milliseconds(),
			"error", err,
			"stderr", truncate(errb.String(), 8<<10),
		)
	} else {
		slog.DebugContext(ctx, "exec ok",
			"cmd", name,
			"duration_ms", time.Since(start).Milliseconds(),
			"stdout_bytes", out.Len(),
		)
	}
	return out.Bytes(), errb.Bytes(), err
}

// PDFStrategy reads the embedded text layer with pdftotext. It never leaves
// the host.
type PDFStrategy struct {
	runner Runner
	binary string
}

func NewPDFStrategy(r Runner) *PDFStrategy {
	if r == nil {
		r = ExecRunner{}
	}
	return &PDFStrategy{runner: r, binary: "pdftotext"}
}

func (s *PDFStrategy) Supports(fileType string) bool {
	ft := mediaType(fileType)
	return ft == "application/pdf" || ft == "pdf"
}

func (s *PDFStrategy) ExtractText(ctx context.Context, data []byte, fileName, _ string) (string, error) {
	tmp, err := os.CreateTemp("", "extractify-*.pdf")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close temp file: %w", err)
	}

	// pdftotext -layout -enc UTF-8 -eol unix <path> -
	out, errb, err := s.runner.Run(ctx, s.binary, "-layout", "-enc", "UTF-8", "-eol", "unix", tmp.Name(), "-")
	if err != nil {
		return "", fmt.Errorf("pdftotext %s: %w: %s", fileName, err, truncate(string(errb), 512))
	}

	// pages are separated by form feeds
	text := strings.ReplaceAll(string(out), "\f", "\n\n")
	return strings.TrimSpace(text), nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "...(truncated)"
}
