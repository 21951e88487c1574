// internal/reporting/reporter.go
package reporting

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/comet-monkey/api/schemas"
)

const (
	ToolName    = "comet-monkey"
	ToolInfoURI = "https://github.com/xkilldash9x/comet-monkey"
)

// Reporter defines the interface for writing page reports to an output.
type Reporter interface {
	// Write buffers a single page report.
	Write(report *schemas.PageReport) error
	// Close finalizes the report and closes any underlying resources (e.g., file handles).
	Close() error
}

// nopWriteCloser wraps an io.Writer and provides a no-op Close method.
type nopWriteCloser struct {
	io.Writer
}

func (nwc *nopWriteCloser) Close() error {
	return nil
}

// New creates a reporter for the given format. An empty path or "stdout"
// writes to standard output.
func New(format, outputPath, toolVersion string, logger *zap.Logger) (Reporter, error) {
	if outputPath == "" || outputPath == "stdout" {
		return NewForWriter(format, os.Stdout, toolVersion, logger)
	}
	factory, err := reporterFactory(format, toolVersion, logger)
	if err != nil {
		return nil, err
	}
	if dir := filepath.Dir(outputPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create output directory %s: %w", dir, err)
		}
	}
	f, err := os.Create(outputPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create output file %s: %w", outputPath, err)
	}
	// The reporter takes ownership of the file.
	return factory(f), nil
}

// NewForWriter creates a reporter that writes to w without ever closing it.
func NewForWriter(format string, w io.Writer, toolVersion string, logger *zap.Logger) (Reporter, error) {
	factory, err := reporterFactory(format, toolVersion, logger)
	if err != nil {
		return nil, err
	}
	return factory(&nopWriteCloser{w}), nil
}

func reporterFactory(format, toolVersion string, logger *zap.Logger) (func(io.WriteCloser) Reporter, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	switch strings.ToLower(format) {
	case "sarif":
		return func(w io.WriteCloser) Reporter { return NewSARIFReporter(w, toolVersion, logger) }, nil
	case "json":
		return func(w io.WriteCloser) Reporter { return NewJSONReporter(w, toolVersion, logger) }, nil
	default:
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}
}

// WriteAll writes every report and closes the reporter. The first error wins,
// but Close is always attempted.
func WriteAll(r Reporter, reports []*schemas.PageReport) error {
	var firstErr error
	for _, report := range reports {
		if err := r.Write(report); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := r.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
