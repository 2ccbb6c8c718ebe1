package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/chrissamuel/smatch/internal/core"
)

// SARIFWriter renders a result as a SARIF 2.1.0 document.
type SARIFWriter struct {
	w      io.Writer
	pretty bool
}

// SARIFOption configures a SARIFWriter.
type SARIFOption func(*SARIFWriter)

// WithPrettySARIF enables indented output.
func WithPrettySARIF() SARIFOption {
	return func(w *SARIFWriter) { w.pretty = true }
}

func NewSARIFWriter(w io.Writer, options ...SARIFOption) *SARIFWriter {
	sw := &SARIFWriter{w: w}
	for _, opt := range options {
		opt(sw)
	}
	return sw
}

func (w *SARIFWriter) Write(result *ScanResult) error {
	doc := w.buildDocument(result)

	var data []byte
	var err error
	if w.pretty {
		data, err = json.MarshalIndent(doc, "", "  ")
	} else {
		data, err = json.Marshal(doc)
	}
	if err != nil {
		return fmt.Errorf("marshal SARIF report: %w", err)
	}
	_, err = w.w.Write(data)
	return err
}

func (w *SARIFWriter) buildDocument(result *ScanResult) *sarifDocument {
	rules, ruleIndex := w.buildRules(result)
	return &sarifDocument{
		Version: "2.1.0",
		Schema:  "https://json.schemastore.org/sarif-2.1.0.json",
		Runs: []sarifRun{
			{
				Tool: sarifTool{
					Driver: sarifDriver{
						Name:           "smatch",
						Version:        "1.0.0",
						InformationURI: "https://github.com/chrissamuel/smatch",
						Rules:          rules,
					},
				},
				Results: w.buildResults(result, ruleIndex),
			},
		},
	}
}

// buildRules emits one rule per distinct CWE (or per check when no CWE is
// attached) in first-seen order.
func (w *SARIFWriter) buildRules(result *ScanResult) ([]sarifRule, map[string]int) {
	index := make(map[string]int)
	var rules []sarifRule

	for _, f := range result.Findings {
		id := ruleID(f)
		if _, ok := index[id]; ok {
			continue
		}
		rule := sarifRule{
			ID:               id,
			Name:             f.Check,
			ShortDescription: sarifText{Text: f.Message},
			FullDescription:  sarifText{Text: fmt.Sprintf("Finding reported by the %s check", f.Check)},
		}
		if strings.HasPrefix(id, "CWE-") {
			rule.HelpURI = fmt.Sprintf("https://cwe.mitre.org/data/definitions/%s.html",
				strings.TrimPrefix(id, "CWE-"))
		}
		index[id] = len(rules)
		rules = append(rules, rule)
	}
	return rules, index
}

func (w *SARIFWriter) buildResults(result *ScanResult, ruleIndex map[string]int) []sarifResult {
	results := make([]sarifResult, 0, len(result.Findings))
	for _, f := range result.Findings {
		id := ruleID(f)
		results = append(results, sarifResult{
			RuleID:    id,
			RuleIndex: ruleIndex[id],
			Level:     sarifLevel(f.Severity),
			Message:   sarifText{Text: f.Message},
			Locations: []sarifLocation{
				{
					PhysicalLocation: sarifPhysicalLocation{
						ArtifactLocation: sarifArtifactLocation{URI: f.File},
						Region: sarifRegion{
							StartLine:   f.Line,
							StartColumn: f.Column,
						},
					},
				},
			},
			Properties: map[string]any{
				"confidence": f.Confidence,
				"check":      f.Check,
			},
		})
	}
	return results
}

func ruleID(f core.Finding) string {
	if f.CWE != "" {
		return f.CWE
	}
	return f.Check
}

func sarifLevel(severity string) string {
	switch severity {
	case core.SeverityCritical, core.SeverityHigh:
		return "error"
	case core.SeverityMedium:
		return "warning"
	case core.SeverityLow:
		return "note"
	default:
		return "warning"
	}
}

type sarifDocument struct {
	Version string     `json:"version"`
	Schema  string     `json:"$schema"`
	Runs    []sarifRun `json:"runs"`
}

type sarifRun struct {
	Tool    sarifTool     `json:"tool"`
	Results []sarifResult `json:"results"`
}

type sarifTool struct {
	Driver sarifDriver `json:"driver"`
}

type sarifDriver struct {
	Name           string      `json:"name"`
	Version        string      `json:"version"`
	InformationURI string      `json:"informationUri,omitempty"`
	Rules          []sarifRule `json:"rules,omitempty"`
}

type sarifRule struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	ShortDescription sarifText `json:"shortDescription"`
	FullDescription  sarifText `json:"fullDescription"`
	HelpURI          string    `json:"helpUri,omitempty"`
}

type sarifText struct {
	Text string `json:"text"`
}

type sarifResult struct {
	RuleID     string          `json:"ruleId"`
	RuleIndex  int             `json:"ruleIndex"`
	Level      string          `json:"level"`
	Message    sarifText       `json:"message"`
	Locations  []sarifLocation `json:"locations,omitempty"`
	Properties map[string]any  `json:"properties,omitempty"`
}

type sarifLocation struct {
	PhysicalLocation sarifPhysicalLocation `json:"physicalLocation"`
}

type sarifPhysicalLocation struct {
	ArtifactLocation sarifArtifactLocation `json:"artifactLocation"`
	Region           sarifRegion           `json:"region"`
}

type sarifArtifactLocation struct {
	URI string `json:"uri"`
}

type sarifRegion struct {
	StartLine   int `json:"startLine"`
	StartColumn int `json:"startColumn,omitempty"`
}
