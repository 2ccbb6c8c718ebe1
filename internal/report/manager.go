// Package report renders scan results as text, JSON or SARIF.
package report

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/chrissamuel/smatch/internal/core"
)

// Format selects the output renderer.
type Format string

const (
	FormatJSON  Format = "json"
	FormatText  Format = "text"
	FormatSARIF Format = "sarif"
	FormatAll   Format = "all"
)

// ScanResult aggregates one run.
type ScanResult struct {
	Findings     []core.Finding
	FilesScanned int
	Duration     time.Duration
	Errors       []string
}

// BySeverity counts findings per severity level.
func (r *ScanResult) BySeverity() map[string]int {
	out := make(map[string]int)
	for _, f := range r.Findings {
		out[f.Severity]++
	}
	return out
}

// ByCheck counts findings per check name.
func (r *ScanResult) ByCheck() map[string]int {
	out := make(map[string]int)
	for _, f := range r.Findings {
		out[f.Check]++
	}
	return out
}

// Writer renders a result to its configured destination.
type Writer interface {
	Write(result *ScanResult) error
}

// Manager turns results into one or more report files (or stdout).
type Manager struct {
	format    Format
	outputDir string
	filename  string
	timestamp bool
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

func WithFormat(format Format) ManagerOption {
	return func(m *Manager) { m.format = format }
}

func WithOutputDir(dir string) ManagerOption {
	return func(m *Manager) { m.outputDir = dir }
}

func WithFilename(filename string) ManagerOption {
	return func(m *Manager) { m.filename = filename }
}

// WithTimestamp adds a timestamp to generated file names.
func WithTimestamp() ManagerOption {
	return func(m *Manager) { m.timestamp = true }
}

func NewManager(options ...ManagerOption) *Manager {
	m := &Manager{
		format:    FormatText,
		outputDir: ".",
	}
	for _, opt := range options {
		opt(m)
	}
	return m
}

// CreateWriter builds the writer for one format.
func (m *Manager) CreateWriter(format Format, w io.Writer) (Writer, error) {
	switch format {
	case FormatJSON:
		return NewJSONWriter(w), nil
	case FormatText:
		return NewTextWriter(w), nil
	case FormatSARIF:
		return NewSARIFWriter(w), nil
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
}

// Generate writes the result in the configured format(s). With no filename
// configured the single-format case goes to stdout and returns no paths.
func (m *Manager) Generate(result *ScanResult) ([]string, error) {
	formats := []Format{m.format}
	if m.format == FormatAll {
		formats = []Format{FormatText, FormatJSON, FormatSARIF}
	}

	if m.filename == "" && m.format != FormatAll {
		w, err := m.CreateWriter(m.format, os.Stdout)
		if err != nil {
			return nil, err
		}
		return nil, w.Write(result)
	}

	var outputs []string
	for _, format := range formats {
		path := m.outputPath(format)
		f, err := os.Create(path)
		if err != nil {
			return nil, fmt.Errorf("create report %s: %w", path, err)
		}
		w, err := m.CreateWriter(format, f)
		if err != nil {
			f.Close()
			return nil, err
		}
		if err := w.Write(result); err != nil {
			f.Close()
			return nil, err
		}
		if err := f.Close(); err != nil {
			return nil, err
		}
		outputs = append(outputs, path)
	}
	return outputs, nil
}

func (m *Manager) outputPath(format Format) string {
	name := m.filename
	if name == "" {
		name = "smatch-report"
	}
	if m.timestamp {
		name += "-" + time.Now().Format("20060102-150405")
	}
	ext := map[Format]string{
		FormatText:  ".txt",
		FormatJSON:  ".json",
		FormatSARIF: ".sarif",
	}[format]
	if filepath.Ext(name) == "" {
		name += ext
	}
	return filepath.Join(m.outputDir, name)
}
