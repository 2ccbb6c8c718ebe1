package report

import (
	"fmt"
	"io"
	"sort"
	"text/tabwriter"
	"time"
)

// TextWriter renders a human-readable summary grouped by file.
type TextWriter struct {
	w io.Writer
}

func NewTextWriter(w io.Writer) *TextWriter {
	return &TextWriter{w: w}
}

func (t *TextWriter) Write(result *ScanResult) error {
	fmt.Fprintf(t.w, "smatch scan: %d file(s), %d finding(s), %s\n",
		result.FilesScanned, len(result.Findings), result.Duration.Round(time.Millisecond))

	if len(result.Errors) > 0 {
		fmt.Fprintf(t.w, "%d file(s) failed to analyze\n", len(result.Errors))
	}
	if len(result.Findings) == 0 {
		fmt.Fprintln(t.w, "no issues found")
		return nil
	}

	byFile := make(map[string][]int)
	var files []string
	for i, f := range result.Findings {
		if _, seen := byFile[f.File]; !seen {
			files = append(files, f.File)
		}
		byFile[f.File] = append(byFile[f.File], i)
	}
	sort.Strings(files)

	tw := tabwriter.NewWriter(t.w, 2, 4, 2, ' ', 0)
	for _, file := range files {
		fmt.Fprintf(tw, "\n%s\n", file)
		idx := byFile[file]
		sort.Slice(idx, func(a, b int) bool {
			fa, fb := result.Findings[idx[a]], result.Findings[idx[b]]
			if fa.Line != fb.Line {
				return fa.Line < fb.Line
			}
			return fa.Column < fb.Column
		})
		for _, i := range idx {
			f := result.Findings[i]
			fmt.Fprintf(tw, "  %d:%d\t%s\t%s\t%s\n", f.Line, f.Column, f.Severity, f.Check, f.Message)
		}
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintln(t.w)
	sev := result.BySeverity()
	var levels []string
	for level := range sev {
		levels = append(levels, level)
	}
	sort.Strings(levels)
	for _, level := range levels {
		fmt.Fprintf(t.w, "%s: %d\n", level, sev[level])
	}
	return nil
}
