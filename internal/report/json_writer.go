package report

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/chrissamuel/smatch/internal/core"
)

// JSONReport is the machine-readable report envelope.
type JSONReport struct {
	GeneratedAt time.Time      `json:"generated_at"`
	Tool        ToolInfo       `json:"tool"`
	Summary     Summary        `json:"summary"`
	Findings    []core.Finding `json:"findings"`
	Statistics  map[string]any `json:"statistics,omitempty"`
}

// ToolInfo identifies the scanner.
type ToolInfo struct {
	Name        string `json:"name"`
	Version     string `json:"version"`
	Description string `json:"description"`
}

// Summary counts findings by severity and check.
type Summary struct {
	Total        int            `json:"total"`
	BySeverity   map[string]int `json:"by_severity"`
	ByCheck      map[string]int `json:"by_check"`
	FilesScanned int            `json:"files_scanned,omitempty"`
}

// JSONWriter renders a result as one JSON document.
type JSONWriter struct {
	w      io.Writer
	pretty bool
}

// JSONOption configures a JSONWriter.
type JSONOption func(*JSONWriter)

// WithPrettyJSON enables indented output.
func WithPrettyJSON() JSONOption {
	return func(w *JSONWriter) { w.pretty = true }
}

func NewJSONWriter(w io.Writer, options ...JSONOption) *JSONWriter {
	jw := &JSONWriter{w: w}
	for _, opt := range options {
		opt(jw)
	}
	return jw
}

func (w *JSONWriter) Write(result *ScanResult) error {
	report := w.buildReport(result)

	var data []byte
	var err error
	if w.pretty {
		data, err = json.MarshalIndent(report, "", "  ")
	} else {
		data, err = json.Marshal(report)
	}
	if err != nil {
		return fmt.Errorf("marshal JSON report: %w", err)
	}
	_, err = w.w.Write(data)
	return err
}

var severityOrder = map[string]int{
	core.SeverityCritical: 0,
	core.SeverityHigh:     1,
	core.SeverityMedium:   2,
	core.SeverityLow:      3,
}

func (w *JSONWriter) buildReport(result *ScanResult) *JSONReport {
	findings := make([]core.Finding, len(result.Findings))
	copy(findings, result.Findings)
	sort.SliceStable(findings, func(i, j int) bool {
		si, sj := severityOrder[findings[i].Severity], severityOrder[findings[j].Severity]
		if si != sj {
			return si < sj
		}
		if findings[i].File != findings[j].File {
			return findings[i].File < findings[j].File
		}
		return findings[i].Line < findings[j].Line
	})

	report := &JSONReport{
		GeneratedAt: time.Now(),
		Tool: ToolInfo{
			Name:        "smatch",
			Version:     "1.0.0",
			Description: "symbolic buffer-size analysis for C/C++",
		},
		Summary: Summary{
			Total:        len(findings),
			BySeverity:   result.BySeverity(),
			ByCheck:      result.ByCheck(),
			FilesScanned: result.FilesScanned,
		},
		Findings:   findings,
		Statistics: map[string]any{},
	}
	report.Statistics["scan_duration"] = result.Duration.String()
	report.Statistics["files_scanned"] = result.FilesScanned
	if len(result.Errors) > 0 {
		report.Statistics["errors"] = result.Errors
	}
	return report
}
