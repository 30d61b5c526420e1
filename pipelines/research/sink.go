package research

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Report is what SaveSummary hands to a sink.
type Report struct {
	RunID     string
	Query     string
	Topic     string
	Summary   string
	CreatedAt time.Time
}

// ReportSink persists a report and returns where it went.
type ReportSink interface {
	Save(ctx context.Context, report Report) (string, error)
}

// FileSink writes plain-text reports into a directory.
type FileSink struct {
	Dir string
	now func() time.Time
}

// NewFileSink creates a sink writing under dir. The directory is created on
// first save.
func NewFileSink(dir string) *FileSink {
	return &FileSink{Dir: dir, now: time.Now}
}

// Save writes summary_<run id>.txt and returns its path.
func (f *FileSink) Save(ctx context.Context, report Report) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if strings.TrimSpace(report.Summary) == "" {
		return "", fmt.Errorf("empty summary")
	}
	if report.CreatedAt.IsZero() {
		now := f.now
		if now == nil {
			now = time.Now
		}
		report.CreatedAt = now()
	}
	if err := os.MkdirAll(f.Dir, 0o755); err != nil {
		return "", fmt.Errorf("create report dir: %w", err)
	}

	name := "summary_" + fileSafe(report.RunID, report.CreatedAt) + ".txt"
	path := filepath.Join(f.Dir, name)
	if err := os.WriteFile(path, []byte(renderReport(report)), 0o644); err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}
	return path, nil
}

func fileSafe(runID string, at time.Time) string {
	if runID == "" {
		return at.UTC().Format("20060102T150405")
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, runID)
}

func renderReport(r Report) string {
	var b strings.Builder
	b.WriteString("Research Summary\n")
	b.WriteString("================\n\n")
	fmt.Fprintf(&b, "Question: %s\n", r.Query)
	fmt.Fprintf(&b, "Topic:    %s\n", r.Topic)
	fmt.Fprintf(&b, "Created:  %s\n\n", r.CreatedAt.UTC().Format(time.RFC3339))
	b.WriteString(r.Summary)
	b.WriteString("\n")
	return b.String()
}

// MemorySink keeps reports in memory.
type MemorySink struct {
	mu      sync.Mutex
	reports []Report
}

// Save records the report and returns a memory:// location.
func (m *MemorySink) Save(ctx context.Context, report Report) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reports = append(m.reports, report)
	return fmt.Sprintf("memory://%d", len(m.reports)), nil
}

// Reports returns a copy of the saved reports.
func (m *MemorySink) Reports() []Report {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Report(nil), m.reports...)
}
