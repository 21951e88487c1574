// internal/reporting/json_reporter.go
package reporting

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/comet-monkey/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Document is the top-level JSON report.
type Document struct {
	Tool        string                `json:"tool"`
	Version     string                `json:"version"`
	GeneratedAt time.Time             `json:"generated_at"`
	Summary     Summary               `json:"summary"`
	Pages       []*schemas.PageReport `json:"pages"`
}

// JSONReporter buffers page reports and writes them as one indented document
// on Close. It is safe for concurrent use.
type JSONReporter struct {
	writer  io.WriteCloser
	logger  *zap.Logger
	version string
	now     func() time.Time

	mu     sync.Mutex
	pages  []*schemas.PageReport
	closed bool
}

func NewJSONReporter(writer io.WriteCloser, toolVersion string, logger *zap.Logger) *JSONReporter {
	return &JSONReporter{
		writer:  writer,
		logger:  logger.Named("json_reporter"),
		version: toolVersion,
		now:     time.Now,
		pages:   []*schemas.PageReport{},
	}
}

func (r *JSONReporter) Write(report *schemas.PageReport) error {
	if report == nil {
		return errors.New("cannot write a nil page report")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return errors.New("reporter is closed")
	}
	r.pages = append(r.pages, report)
	return nil
}

func (r *JSONReporter) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true

	doc := Document{
		Tool:        ToolName,
		Version:     r.version,
		GeneratedAt: r.now().UTC(),
		Summary:     Summarize(r.pages),
		Pages:       r.pages,
	}

	encoder := json.NewEncoder(r.writer)
	encoder.SetIndent("", "  ")
	encodeErr := encoder.Encode(doc)
	closeErr := r.writer.Close()

	if encodeErr != nil {
		r.logger.Error("Failed to encode JSON report.", zap.Error(encodeErr))
		return fmt.Errorf("failed to encode JSON output: %w", encodeErr)
	}
	if closeErr != nil {
		r.logger.Error("Failed to close output writer.", zap.Error(closeErr))
		return fmt.Errorf("failed to close output writer: %w", closeErr)
	}
	r.logger.Debug("Wrote JSON report.", zap.Int("pages", len(r.pages)))
	return nil
}
