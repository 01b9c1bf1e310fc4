package domain

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"optipy.dev/pkg/optipy/internal/adapter"
	"optipy.dev/pkg/optipy/internal/domain/rules"
	m "optipy.dev/pkg/optipy/internal/model"
)

// RenderFunc regenerates transformed text for a subset of the planned
// patches. The validator calls it repeatedly while narrowing down a culprit.
type RenderFunc func(patches []m.Patch) (string, error)

// Validator executes the original and transformed scripts in isolation and
// decides, per patch, whether the rewrite is kept. A rewrite survives only
// when it runs to completion, reproduces the baseline's stdout byte for byte
// and beats the baseline runtime or peak memory by the configured margin.
// Proven patches are exempt from the output comparison; their equivalence
// argument is structural, so the run only feeds the profile.
type Validator interface {
	// Validate runs the baseline plus candidates and returns one result per
	// planned patch, the accepted subset, and the final transformed text
	// (empty when nothing was accepted).
	Validate(ctx context.Context, source m.SourceUnit, patches []m.Patch, render RenderFunc) ([]m.ValidationResult, []m.Patch, string, error)
}

type validator struct {
	runner adapter.ScriptRunnerAdapter
	fs     adapter.SourceFSAdapter

	timeout   time.Duration
	threshold float64
}

// NewValidator constructs a Validator. timeout bounds each candidate run;
// threshold is the minimum relative runtime improvement (0.05 means 5%)
// required to accept.
func NewValidator(runner adapter.ScriptRunnerAdapter, fs adapter.SourceFSAdapter, timeout time.Duration, threshold float64) Validator {
	return &validator{runner: runner, fs: fs, timeout: timeout, threshold: threshold}
}

func (v *validator) Validate(ctx context.Context, source m.SourceUnit, patches []m.Patch, render RenderFunc) ([]m.ValidationResult, []m.Patch, string, error) {
	if len(patches) == 0 {
		return nil, nil, "", nil
	}

	workDir, err := v.fs.CreateTempDir("optipy-validate-")
	if err != nil {
		return nil, nil, "", fmt.Errorf("create validation dir: %w", err)
	}

	defer func() {
		_ = v.fs.RemoveAll(workDir)
	}()

	baseline, err := v.runVariant(ctx, workDir, "baseline.py", source.Text)
	if err != nil {
		return nil, nil, "", err
	}

	if !baseline.Succeeded() {
		slog.Warn("baseline run failed, rejecting all patches",
			"file", source.ShortPath, "stderr", baseline.Stderr)

		return rejectAll(patches, toMeasurement(baseline), m.VerdictRejectedExecutionFailed, m.CauseBaseline), nil, "", nil
	}

	base := toMeasurement(baseline)
	resultByID := make(map[string]m.ValidationResult, len(patches))
	active := append([]m.Patch(nil), patches...)

	for attempt := 0; len(active) > 0; attempt++ {
		text, err := render(active)
		if err != nil {
			return nil, nil, "", fmt.Errorf("render candidate: %w", err)
		}

		run, err := v.runVariant(ctx, workDir, fmt.Sprintf("candidate_%d.py", attempt), text)
		if err != nil {
			return nil, nil, "", err
		}

		cand := toMeasurement(run)

		switch {
		case !run.Succeeded():
			cause := m.CauseExit
			if run.TimedOut {
				cause = m.CauseTimeout
			}

			active = v.rollback(active, base, cand, m.VerdictRejectedExecutionFailed, cause, resultByID)

		case run.Output != baseline.Output && blameIndex(active) >= 0:
			active = v.rollback(active, base, cand, m.VerdictRejectedUnsafe, "", resultByID)

		default:
			// Reaching here with mismatching output means only Proven patches
			// remain; they skip the comparison.
			outputsMatch := run.Output == baseline.Output

			verdict := m.VerdictAccepted
			if improvement(base.Runtime, cand.Runtime) < v.threshold &&
				memImprovement(base.PeakMemoryKB, cand.PeakMemoryKB) < v.threshold {
				verdict = m.VerdictRejectedNoBenefit
			}

			for _, patch := range active {
				resultByID[patch.ID] = m.ValidationResult{
					PatchID:      patch.ID,
					Executed:     true,
					OutputsMatch: outputsMatch,
					Baseline:     base,
					Candidate:    cand,
					Verdict:      verdict,
				}
			}

			if verdict == m.VerdictAccepted {
				return collect(patches, resultByID), active, text, nil
			}

			active = nil
		}
	}

	return collect(patches, resultByID), nil, "", nil
}

// rollback attributes a failed or unsafe combined run to one patch and
// removes it from the active set. Heuristic patches take the blame first, in
// reverse priority order (Cache before Vectorize), since a Proven patch
// carries a structural equivalence argument. When a candidate made of only
// Proven patches fails to execute, no rewrite can be kept and the whole set
// is rejected.
func (v *validator) rollback(active []m.Patch, base, cand m.Measurement, verdict m.Verdict, cause string, resultByID map[string]m.ValidationResult) []m.Patch {
	culprit := blameIndex(active)
	if culprit < 0 {
		for _, patch := range active {
			resultByID[patch.ID] = m.ValidationResult{
				PatchID:   patch.ID,
				Executed:  true,
				Baseline:  base,
				Candidate: cand,
				Verdict:   verdict,
				Cause:     cause,
			}
		}

		return nil
	}

	patch := active[culprit]
	slog.Debug("rolling back patch", "patch", patch.ID, "verdict", verdict, "cause", cause)

	resultByID[patch.ID] = m.ValidationResult{
		PatchID:   patch.ID,
		Executed:  true,
		Baseline:  base,
		Candidate: cand,
		Verdict:   verdict,
		Cause:     cause,
	}

	return append(active[:culprit:culprit], active[culprit+1:]...)
}

// blameIndex picks the heuristic patch most likely at fault, or -1 when all
// remaining patches are Proven.
func blameIndex(active []m.Patch) int {
	best := -1

	for i, patch := range active {
		if patch.Safety != m.SafetyHeuristic {
			continue
		}

		if best < 0 || rulePriority(patch.Kind) > rulePriority(active[best].Kind) {
			best = i
		}
	}

	return best
}

func rulePriority(kind m.FindingKind) int {
	switch kind {
	case m.FindingNestedLoop:
		return rules.PriorityFlatten
	case m.FindingVectorizableLoop:
		return rules.PriorityVectorize
	default:
		return rules.PriorityCache
	}
}

func (v *validator) runVariant(ctx context.Context, workDir m.Path, name, text string) (adapter.RunResult, error) {
	path := v.fs.JoinPath(string(workDir), name)
	if err := v.fs.WriteFile(path, []byte(text), os.FileMode(0o600)); err != nil {
		return adapter.RunResult{}, fmt.Errorf("write %s: %w", name, err)
	}

	result, err := v.runner.RunScript(ctx, string(workDir), string(path), v.timeout)
	if err != nil {
		return adapter.RunResult{}, fmt.Errorf("run %s: %w", name, err)
	}

	return result, nil
}

func toMeasurement(run adapter.RunResult) m.Measurement {
	return m.Measurement{
		Runtime:      run.Runtime,
		PeakMemoryKB: run.PeakMemoryKB,
		Output:       run.Output,
	}
}

func improvement(baseline, candidate time.Duration) float64 {
	if baseline <= 0 {
		return 0
	}

	return float64(baseline-candidate) / float64(baseline)
}

func memImprovement(baseline, candidate int64) float64 {
	if baseline <= 0 {
		return 0
	}

	return float64(baseline-candidate) / float64(baseline)
}

func rejectAll(patches []m.Patch, base m.Measurement, verdict m.Verdict, cause string) []m.ValidationResult {
	results := make([]m.ValidationResult, 0, len(patches))

	for _, patch := range patches {
		results = append(results, m.ValidationResult{
			PatchID:  patch.ID,
			Baseline: base,
			Verdict:  verdict,
			Cause:    cause,
		})
	}

	return results
}

func collect(patches []m.Patch, resultByID map[string]m.ValidationResult) []m.ValidationResult {
	results := make([]m.ValidationResult, 0, len(patches))

	for _, patch := range patches {
		if result, ok := resultByID[patch.ID]; ok {
			results = append(results, result)
		}
	}

	return results
}
