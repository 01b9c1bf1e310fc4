package domain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"optipy.dev/pkg/optipy/internal/adapter"
	"optipy.dev/pkg/optipy/internal/domain/rules"
	m "optipy.dev/pkg/optipy/internal/model"
)

// Config carries the tunables of one optimization run.
type Config struct {
	// HighIterationThreshold is the trip count above which a counted loop is
	// reported.
	HighIterationThreshold int64

	// ImprovementThreshold is the minimum relative runtime improvement
	// (0.05 = 5%) a candidate must show to be accepted.
	ImprovementThreshold float64

	// CandidateTimeout bounds each script execution.
	CandidateTimeout time.Duration

	// EnabledRules restricts which finding kinds may produce patches; nil
	// enables all.
	EnabledRules []m.FindingKind

	// Threads caps concurrent file pipelines; values below 1 mean sequential.
	Threads int

	// PythonBin is the interpreter used for validation runs.
	PythonBin string

	// OptimizedDir, when set, receives <stem>_optimized.py for every file
	// with at least one accepted patch.
	OptimizedDir m.Path
}

// Pipeline runs the detect, transform and validate stages for Python files.
// Files are independent: a failure in one is recorded in its Outcome and the
// batch continues.
type Pipeline struct {
	cfg       Config
	parser    adapter.PythonFileAdapter
	fs        adapter.SourceFSAdapter
	analyzer  Analyzer
	engine    Engine
	validator Validator
}

// NewPipeline wires a Pipeline from its adapters and config.
func NewPipeline(cfg Config, parser adapter.PythonFileAdapter, fs adapter.SourceFSAdapter, runner adapter.ScriptRunnerAdapter) *Pipeline {
	if cfg.Threads < 1 {
		cfg.Threads = 1
	}

	return &Pipeline{
		cfg:       cfg,
		parser:    parser,
		fs:        fs,
		analyzer:  NewAnalyzer(cfg.HighIterationThreshold),
		engine:    NewEngine(parser, rules.DefaultRules(), cfg.EnabledRules),
		validator: NewValidator(runner, fs, cfg.CandidateTimeout, cfg.ImprovementThreshold),
	}
}

// Process runs ProcessFile for every path with bounded parallelism, invoking
// onOutcome as each file finishes. The returned slice preserves the input
// order. Only infrastructure faults abort the batch; per-file analysis and
// validation failures land in the outcome instead.
func (p *Pipeline) Process(ctx context.Context, paths []m.Path, onOutcome func(m.Outcome)) ([]m.Outcome, error) {
	outcomes := make([]m.Outcome, len(paths))

	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Threads)

	for i, path := range paths {
		g.Go(func() error {
			outcome := p.ProcessFile(gctx, path)

			mu.Lock()
			outcomes[i] = outcome
			mu.Unlock()

			if onOutcome != nil {
				onOutcome(outcome)
			}

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return outcomes, err
	}

	return outcomes, nil
}

// AnalyzeFile runs only the detection stage: parse, analyze, report. No
// patches are planned and nothing is executed.
func (p *Pipeline) AnalyzeFile(ctx context.Context, path m.Path) m.Outcome {
	source, err := p.loadSource(path)
	if err != nil {
		return m.Outcome{Source: source, Status: m.StatusFailed, Err: err.Error()}
	}

	tree, err := p.parser.Parse(ctx, string(path), []byte(source.Text))
	if err != nil {
		return m.Outcome{Source: source, Status: failureStatus(ctx), Err: err.Error()}
	}

	return m.Outcome{
		Source:   source,
		Status:   m.StatusComplete,
		Findings: p.analyzer.Analyze(tree),
	}
}

// ProcessFile runs the full pipeline for one file and always returns an
// Outcome, using the status field to report partial progress.
func (p *Pipeline) ProcessFile(ctx context.Context, path m.Path) m.Outcome {
	source, err := p.loadSource(path)
	if err != nil {
		return m.Outcome{Source: source, Status: m.StatusFailed, Err: err.Error()}
	}

	outcome := m.Outcome{Source: source}

	tree, err := p.parser.Parse(ctx, string(path), []byte(source.Text))
	if err != nil {
		if errors.Is(err, adapter.ErrParse) {
			slog.Warn("skipping unparseable file", "file", source.ShortPath)
		}

		outcome.Status = failureStatus(ctx)
		outcome.Err = err.Error()

		return outcome
	}

	outcome.Findings = p.analyzer.Analyze(tree)
	if len(outcome.Findings) == 0 {
		outcome.Status = m.StatusComplete

		return outcome
	}

	applied, superseded, err := p.engine.Plan(tree, outcome.Findings)
	if err != nil {
		outcome.Status = m.StatusFailed
		outcome.Err = err.Error()

		return outcome
	}

	outcome.Applied = applied
	outcome.Superseded = superseded

	results, accepted, text, err := p.validator.Validate(ctx, source, applied, func(subset []m.Patch) (string, error) {
		return p.engine.Render(tree, subset)
	})
	if err != nil {
		outcome.Status = failureStatus(ctx)
		outcome.Err = err.Error()

		return outcome
	}

	outcome.Results = results

	if len(accepted) > 0 {
		outcome.Optimized = text

		if err := p.writeOptimized(source, text); err != nil {
			outcome.Status = m.StatusFailed
			outcome.Err = err.Error()

			return outcome
		}
	}

	outcome.Status = m.StatusComplete

	return outcome
}

// writeOptimized emits <stem>_optimized.py next to the configured output
// directory. The original file is never touched.
func (p *Pipeline) writeOptimized(source m.SourceUnit, text string) error {
	if p.cfg.OptimizedDir == "" {
		return nil
	}

	if err := p.fs.MkdirAll(p.cfg.OptimizedDir); err != nil {
		return fmt.Errorf("create optimized dir: %w", err)
	}

	dst := p.fs.OptimizedPath(p.cfg.OptimizedDir, source.Origin)
	if err := p.fs.WriteFile(dst, []byte(text), os.FileMode(0o644)); err != nil {
		return fmt.Errorf("write optimized script: %w", err)
	}

	slog.Info("wrote optimized script", "file", source.ShortPath, "dst", dst)

	return nil
}

func (p *Pipeline) loadSource(path m.Path) (m.SourceUnit, error) {
	content, err := p.fs.ReadFile(path)
	if err != nil {
		return m.SourceUnit{Origin: path, ShortPath: path}, fmt.Errorf("read %s: %w", path, err)
	}

	hash, err := p.fs.HashFile(path)
	if err != nil {
		return m.SourceUnit{Origin: path, ShortPath: path}, fmt.Errorf("hash %s: %w", path, err)
	}

	return m.SourceUnit{
		Origin:    path,
		ShortPath: path,
		Hash:      hash,
		Text:      string(content),
	}, nil
}

// failureStatus distinguishes a cancelled run from a genuinely failed file.
func failureStatus(ctx context.Context) m.OutcomeStatus {
	if ctx.Err() != nil {
		return m.StatusIncomplete
	}

	return m.StatusFailed
}
