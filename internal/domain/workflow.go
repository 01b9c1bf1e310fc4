package domain

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strings"

	"optipy.dev/pkg/optipy/internal/adapter"
	"optipy.dev/pkg/optipy/internal/controller"
	m "optipy.dev/pkg/optipy/internal/model"
	"optipy.dev/pkg/optipy/pkg"
)

// OptimizeArgs carries the user-facing arguments of one run.
type OptimizeArgs struct {
	// Paths are files or directories to scan.
	Paths []m.Path

	// Recursive descends into subdirectories of directory paths.
	Recursive bool

	// Exclude holds regular expressions matched against full paths.
	Exclude []string

	// Reports is the directory the outcome report is written to; empty
	// disables persistence.
	Reports m.Path
}

// Workflow is the top-level use-case layer behind the CLI commands.
type Workflow interface {
	// Optimize runs the full pipeline over the matched scripts, streams
	// progress to the UI and persists the outcome report.
	Optimize(ctx context.Context, args OptimizeArgs) error

	// Findings analyzes the matched scripts without transforming or running
	// anything.
	Findings(ctx context.Context, args OptimizeArgs) error

	// Report re-displays a previously persisted outcome report.
	Report(ctx context.Context, reports m.Path) error
}

type workflow struct {
	adapter.SourceFSAdapter
	adapter.ReportStore
	controller.UI

	pipeline *Pipeline
	threads  int
}

// NewWorkflow wires a Workflow from its dependencies.
func NewWorkflow(
	fsAdapter adapter.SourceFSAdapter,
	reportStore adapter.ReportStore,
	ui controller.UI,
	pipeline *Pipeline,
	threads int,
) Workflow {
	if threads < 1 {
		threads = 1
	}

	return &workflow{
		SourceFSAdapter: fsAdapter,
		ReportStore:     reportStore,
		UI:              ui,
		pipeline:        pipeline,
		threads:         threads,
	}
}

func (w *workflow) Optimize(ctx context.Context, args OptimizeArgs) error {
	scripts, err := w.discover(args)
	if err != nil {
		return err
	}

	if err := w.Start(ctx, controller.WithOptimizeMode(len(scripts))); err != nil {
		return fmt.Errorf("start ui: %w", err)
	}

	defer w.Close(ctx)

	w.DisplayRunInfo(ctx, len(scripts), w.threads)

	outcomes, err := w.runPipeline(ctx, scripts)
	if err != nil {
		return err
	}

	if args.Reports != "" {
		if err := w.SaveOutcomes(args.Reports, outcomes); err != nil {
			return fmt.Errorf("save report: %w", err)
		}

		slog.Info("saved outcome report", "dir", args.Reports, "files", len(outcomes))
	}

	return w.DisplaySummary(ctx, outcomes)
}

func (w *workflow) Findings(ctx context.Context, args OptimizeArgs) error {
	scripts, err := w.discover(args)
	if err != nil {
		return err
	}

	if err := w.Start(ctx, controller.WithFindingsMode()); err != nil {
		return fmt.Errorf("start ui: %w", err)
	}

	defer w.Close(ctx)

	outcomes := make([]m.Outcome, 0, len(scripts))

	for _, script := range scripts {
		outcome := w.pipeline.AnalyzeFile(ctx, script)
		outcomes = append(outcomes, outcome)
		w.DisplayFileOutcome(ctx, outcome)
	}

	return w.DisplayFindings(ctx, outcomes, nil)
}

func (w *workflow) Report(ctx context.Context, reports m.Path) error {
	outcomes, err := w.LoadOutcomes(reports)
	if err != nil {
		return fmt.Errorf("load report: %w", err)
	}

	if err := w.Start(ctx); err != nil {
		return fmt.Errorf("start ui: %w", err)
	}

	defer w.Close(ctx)

	return w.DisplaySummary(ctx, outcomes)
}

// runPipeline executes the pipeline over the scripts, spilling outcomes to
// disk as they arrive so very large runs stay memory-flat.
func (w *workflow) runPipeline(ctx context.Context, scripts []m.Path) ([]m.Outcome, error) {
	spill, err := pkg.NewFileSpill[m.Outcome]()
	if err != nil {
		return nil, fmt.Errorf("create outcome buffer: %w", err)
	}

	defer func() {
		_ = spill.Close()
	}()

	_, err = w.pipeline.Process(ctx, scripts, func(outcome m.Outcome) {
		if spillErr := spill.Append(outcome); spillErr != nil {
			slog.Error("failed to buffer outcome", "file", outcome.Source.ShortPath, "error", spillErr)
		}

		w.DisplayFileOutcome(ctx, outcome)
	})
	if err != nil {
		return nil, fmt.Errorf("process scripts: %w", err)
	}

	outcomes := make([]m.Outcome, 0, spill.Len())

	err = spill.Range(func(_ uint64, outcome m.Outcome) error {
		outcomes = append(outcomes, outcome)

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("collect outcomes: %w", err)
	}

	return outcomes, nil
}

// discover expands the argument paths into the list of Python scripts to
// process. Generated *_optimized.py files are always skipped so repeated
// runs never optimize their own output.
func (w *workflow) discover(args OptimizeArgs) ([]m.Path, error) {
	excludes, err := compileExcludes(args.Exclude)
	if err != nil {
		return nil, err
	}

	scripts := make([]m.Path, 0)
	seen := make(map[string]bool)

	for _, root := range args.Paths {
		info, err := w.FileInfo(root)
		if err != nil {
			return nil, fmt.Errorf("path error: %w", err)
		}

		if !info.IsDir() {
			if isCandidateScript(string(root), excludes) && !seen[string(root)] {
				seen[string(root)] = true
				scripts = append(scripts, root)
			}

			continue
		}

		err = w.Walk(root, args.Recursive, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}

			if info.IsDir() || !isCandidateScript(path, excludes) || seen[path] {
				return nil
			}

			seen[path] = true
			scripts = append(scripts, m.Path(path))

			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", root, err)
		}
	}

	if len(scripts) == 0 {
		return nil, fmt.Errorf("no python scripts found under %v", args.Paths)
	}

	return scripts, nil
}

func compileExcludes(patterns []string) ([]*regexp.Regexp, error) {
	excludes := make([]*regexp.Regexp, 0, len(patterns))

	for _, pattern := range patterns {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid exclude pattern %q: %w", pattern, err)
		}

		excludes = append(excludes, re)
	}

	return excludes, nil
}

func isCandidateScript(path string, excludes []*regexp.Regexp) bool {
	if !strings.HasSuffix(path, ".py") || strings.HasSuffix(path, "_optimized.py") {
		return false
	}

	for _, re := range excludes {
		if re.MatchString(path) {
			return false
		}
	}

	return true
}
