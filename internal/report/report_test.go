package report_test

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chrissamuel/smatch/internal/core"
	"github.com/chrissamuel/smatch/internal/report"
)

func sampleResult() *report.ScanResult {
	return &report.ScanResult{
		Findings: []core.Finding{
			{
				Check: "buf_size", CWE: "CWE-193",
				Message: "potentially one past the end of array 'p[n]'",
				File:    "b.c", Line: 12, Column: 3,
				Severity: "medium", Confidence: "medium",
			},
			{
				Check: "buf_size", CWE: "CWE-193",
				Message: "potential off by one 'items[]' limit 'count'",
				File:    "a.c", Line: 4, Column: 9,
				Severity: "low", Confidence: "low",
			},
		},
		FilesScanned: 2,
		Duration:     1500 * time.Millisecond,
	}
}

func TestScanResultCounters(t *testing.T) {
	r := sampleResult()
	assert.Equal(t, map[string]int{"medium": 1, "low": 1}, r.BySeverity())
	assert.Equal(t, map[string]int{"buf_size": 2}, r.ByCheck())
}

func TestTextWriter(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, report.NewTextWriter(&buf).Write(sampleResult()))

	out := buf.String()
	assert.Contains(t, out, "2 file(s), 2 finding(s)")
	assert.Contains(t, out, "a.c")
	assert.Contains(t, out, "b.c")
	assert.Contains(t, out, "potentially one past the end of array 'p[n]'")
	assert.Contains(t, out, "medium: 1")
}

func TestTextWriterEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, report.NewTextWriter(&buf).Write(&report.ScanResult{}))
	assert.Contains(t, buf.String(), "no issues found")
}

func TestJSONWriter(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, report.NewJSONWriter(&buf).Write(sampleResult()))

	var doc report.JSONReport
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))
	assert.Equal(t, "smatch", doc.Tool.Name)
	assert.Equal(t, 2, doc.Summary.Total)
	require.Len(t, doc.Findings, 2)
	// sorted by severity, medium before low
	assert.Equal(t, "medium", doc.Findings[0].Severity)
	assert.Equal(t, "low", doc.Findings[1].Severity)
}

func TestSARIFWriter(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, report.NewSARIFWriter(&buf).Write(sampleResult()))

	var doc struct {
		Version string `json:"version"`
		Runs    []struct {
			Tool struct {
				Driver struct {
					Name  string `json:"name"`
					Rules []struct {
						ID string `json:"id"`
					} `json:"rules"`
				} `json:"driver"`
			} `json:"tool"`
			Results []struct {
				RuleID string `json:"ruleId"`
				Level  string `json:"level"`
			} `json:"results"`
		} `json:"runs"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))

	assert.Equal(t, "2.1.0", doc.Version)
	require.Len(t, doc.Runs, 1)
	assert.Equal(t, "smatch", doc.Runs[0].Tool.Driver.Name)
	require.Len(t, doc.Runs[0].Tool.Driver.Rules, 1)
	assert.Equal(t, "CWE-193", doc.Runs[0].Tool.Driver.Rules[0].ID)
	require.Len(t, doc.Runs[0].Results, 2)
	assert.Equal(t, "warning", doc.Runs[0].Results[0].Level)
	assert.Equal(t, "note", doc.Runs[0].Results[1].Level)
}

func TestManagerWritesFiles(t *testing.T) {
	dir := t.TempDir()
	m := report.NewManager(
		report.WithFormat(report.FormatJSON),
		report.WithOutputDir(dir),
		report.WithFilename("scan"),
	)

	paths, err := m.Generate(sampleResult())
	require.NoError(t, err)
	require.Len(t, paths, 1)
	assert.Equal(t, filepath.Join(dir, "scan.json"), paths[0])

	data, err := os.ReadFile(paths[0])
	require.NoError(t, err)
	assert.True(t, json.Valid(data))
}

func TestManagerAllFormats(t *testing.T) {
	dir := t.TempDir()
	m := report.NewManager(
		report.WithFormat(report.FormatAll),
		report.WithOutputDir(dir),
		report.WithFilename("scan"),
	)

	paths, err := m.Generate(sampleResult())
	require.NoError(t, err)
	require.Len(t, paths, 3)
	for _, p := range paths {
		_, err := os.Stat(p)
		assert.NoError(t, err)
	}
}

func TestManagerUnsupportedFormat(t *testing.T) {
	m := report.NewManager()
	_, err := m.CreateWriter(report.Format("xml"), &bytes.Buffer{})
	assert.Error(t, err)
}
