// Command smatch scans C/C++ sources for buffer-size mismatches. It tracks
// symbolic buffer capacities through allocations, assignments and calls, and
// flags array subscripts that can land one past the end.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/chrissamuel/smatch/internal/bufsize"
	"github.com/chrissamuel/smatch/internal/core"
	"github.com/chrissamuel/smatch/internal/factdb"
	"github.com/chrissamuel/smatch/internal/report"
)

var sourceExtensions = map[string]bool{
	".c": true, ".h": true,
	".cc": true, ".cpp": true, ".cxx": true, ".hpp": true,
}

type options struct {
	format    string
	output    string
	filename  string
	dbPath    string
	config    string
	passes    int
	jobs      int
	kernel    bool
	verbose   bool
	timestamp bool
}

func main() {
	opts := &options{}
	hadFindings := false

	root := &cobra.Command{
		Use:   "smatch [paths...]",
		Short: "symbolic buffer-size analysis for C/C++",
		Long: "smatch tracks which variables hold the capacity of which buffers and\n" +
			"warns about array accesses that can reach one past the end.",
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			hadFindings, err = run(cmd.Context(), opts, args)
			return err
		},
	}

	root.Flags().StringVar(&opts.format, "format", "text", "report format: text, json, sarif or all")
	root.Flags().StringVar(&opts.output, "output", ".", "directory for report files")
	root.Flags().StringVar(&opts.filename, "filename", "", "report file name (default: stdout for a single format)")
	root.Flags().StringVar(&opts.dbPath, "db", ":memory:", "path of the cross-function fact store")
	root.Flags().StringVar(&opts.config, "config", "", "YAML config overriding allocator and copy tables")
	root.Flags().IntVar(&opts.passes, "passes", 2, "number of analysis passes over the whole tree")
	root.Flags().IntVar(&opts.jobs, "jobs", runtime.NumCPU(), "parallel file analyses")
	root.Flags().BoolVar(&opts.kernel, "kernel", false, "enable the Linux kernel allocator and copy_from_user tables")
	root.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "debug logging")
	root.Flags().BoolVar(&opts.timestamp, "timestamp", false, "timestamp report file names")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "smatch:", err)
		os.Exit(2)
	}
	if hadFindings {
		os.Exit(1)
	}
}

func run(ctx context.Context, opts *options, paths []string) (bool, error) {
	log, err := buildLogger(opts.verbose)
	if err != nil {
		return false, err
	}
	defer log.Sync()

	if opts.passes < 1 {
		return false, fmt.Errorf("--passes must be at least 1, got %d", opts.passes)
	}
	if opts.jobs < 1 {
		opts.jobs = 1
	}

	fs := afero.NewOsFs()
	cfg, err := bufsize.LoadConfig(fs, opts.config, opts.kernel)
	if err != nil {
		return false, err
	}

	db, err := factdb.Open(opts.dbPath)
	if err != nil {
		return false, err
	}
	defer db.Close()

	files, err := collectFiles(fs, paths)
	if err != nil {
		return false, err
	}
	if len(files) == 0 {
		return false, fmt.Errorf("no C/C++ sources under %s", strings.Join(paths, ", "))
	}
	log.Info("scan starting",
		zap.Int("files", len(files)),
		zap.Int("passes", opts.passes),
		zap.Int("jobs", opts.jobs))

	start := time.Now()
	result := &report.ScanResult{FilesScanned: len(files)}

	// Earlier passes only populate the fact store; the final pass reads the
	// completed summaries and is the one whose findings we keep.
	for pass := 1; pass <= opts.passes; pass++ {
		findings, errs := scanOnce(ctx, fs, files, cfg, db, log, opts.jobs)
		if pass == opts.passes {
			result.Findings = findings
			result.Errors = errs
		}
		log.Debug("pass complete", zap.Int("pass", pass), zap.Int("findings", len(findings)))
	}
	result.Duration = time.Since(start)

	manager := buildManager(opts)
	outputs, err := manager.Generate(result)
	if err != nil {
		return false, err
	}
	for _, path := range outputs {
		log.Info("report written", zap.String("path", path))
	}
	return len(result.Findings) > 0, nil
}

func buildLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	return cfg.Build()
}

func buildManager(opts *options) *report.Manager {
	mo := []report.ManagerOption{
		report.WithFormat(report.Format(opts.format)),
		report.WithOutputDir(opts.output),
		report.WithFilename(opts.filename),
	}
	if opts.timestamp {
		mo = append(mo, report.WithTimestamp())
	}
	return report.NewManager(mo...)
}

// collectFiles expands the argument paths into the sorted list of source
// files, deduplicated across overlapping arguments.
func collectFiles(fs afero.Fs, paths []string) ([]string, error) {
	seen := make(map[string]bool)
	var files []string
	add := func(path string) {
		if !seen[path] {
			seen[path] = true
			files = append(files, path)
		}
	}

	for _, root := range paths {
		info, err := fs.Stat(root)
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", root, err)
		}
		if !info.IsDir() {
			if sourceExtensions[strings.ToLower(filepath.Ext(root))] {
				add(root)
			}
			continue
		}
		err = afero.Walk(fs, root, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if info.IsDir() {
				return nil
			}
			if sourceExtensions[strings.ToLower(filepath.Ext(path))] {
				add(path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walk %s: %w", root, err)
		}
	}
	sort.Strings(files)
	return files, nil
}

// scanOnce analyzes every file with up to jobs workers. Per-file failures are
// collected, not fatal. Findings come back in file order.
func scanOnce(ctx context.Context, fs afero.Fs, files []string, cfg *bufsize.Config,
	db *factdb.DB, log *zap.Logger, jobs int) ([]core.Finding, []string) {

	perFile := make([][]core.Finding, len(files))
	var mu sync.Mutex
	var errs []string

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(jobs)
	for i, path := range files {
		i, path := i, path
		g.Go(func() error {
			unit, err := core.ParseFile(ctx, fs, path)
			if err != nil {
				mu.Lock()
				errs = append(errs, fmt.Sprintf("%s: %v", path, err))
				mu.Unlock()
				log.Warn("parse failed", zap.String("file", path), zap.Error(err))
				return nil
			}
			check := bufsize.New(cfg, db, log)
			findings, err := check.Run(core.NewAnalysisContext(unit))
			if err != nil {
				mu.Lock()
				errs = append(errs, fmt.Sprintf("%s: %v", path, err))
				mu.Unlock()
				log.Warn("analysis failed", zap.String("file", path), zap.Error(err))
				return nil
			}
			perFile[i] = findings
			return nil
		})
	}
	// Workers never return errors; Wait only propagates context cancellation.
	if err := g.Wait(); err != nil {
		errs = append(errs, err.Error())
	}

	var findings []core.Finding
	for _, list := range perFile {
		findings = append(findings, list...)
	}
	return findings, errs
}
