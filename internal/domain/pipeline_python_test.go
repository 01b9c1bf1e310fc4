package domain

import (
	"context"
	"os/exec"
	"strings"
	"testing"
	"time"

	"optipy.dev/pkg/optipy/internal/adapter"
	m "optipy.dev/pkg/optipy/internal/model"
)

func requirePython(t *testing.T) {
	t.Helper()

	if _, err := exec.LookPath("python3"); err != nil {
		t.Skip("python3 not available")
	}
}

func requireNumPy(t *testing.T) {
	t.Helper()
	requirePython(t)

	if err := exec.Command("python3", "-c", "import numpy").Run(); err != nil {
		t.Skip("numpy not available")
	}
}

func newPythonPipeline(t *testing.T) *Pipeline {
	t.Helper()

	cfg := testConfig(m.Path(t.TempDir()))
	cfg.CandidateTimeout = 30 * time.Second

	return NewPipeline(
		cfg,
		adapter.NewLocalPythonFileAdapter(),
		adapter.NewLocalSourceFSAdapter(),
		adapter.NewLocalScriptRunnerAdapter(""),
	)
}

// requireRan fails unless the patch result comes from a real execution that
// did not crash or diverge.
func requireRan(t *testing.T, result m.ValidationResult) {
	t.Helper()

	if !result.Executed {
		t.Fatalf("patch %s was never executed", result.PatchID)
	}

	if result.Verdict == m.VerdictRejectedUnsafe || result.Verdict == m.VerdictRejectedExecutionFailed {
		t.Fatalf("patch %s rejected: %v %s", result.PatchID, result.Verdict, result.Cause)
	}
}

func TestPipeline_ProcessFile_Python_ImpureCacheRejected(t *testing.T) {
	requirePython(t)

	pipeline := newPythonPipeline(t)

	outcome := pipeline.ProcessFile(context.Background(), fixturePath(t, "impure"))

	if outcome.Status != m.StatusComplete {
		t.Fatalf("ProcessFile() status = %v, err = %s", outcome.Status, outcome.Err)
	}

	cacheResults := 0

	for _, result := range outcome.Results {
		if !strings.HasPrefix(result.PatchID, "CACHE_") {
			continue
		}

		cacheResults++

		if result.Verdict != m.VerdictRejectedUnsafe {
			t.Fatalf("caching a counter-mutating function got verdict %v, want %v",
				result.Verdict, m.VerdictRejectedUnsafe)
		}
	}

	if cacheResults == 0 {
		t.Fatalf("no cache patch planned, results = %+v", outcome.Results)
	}

	if outcome.AcceptedCount() != 0 || outcome.Optimized != "" {
		t.Fatalf("ProcessFile() kept a rewrite that changes observable output")
	}
}

func TestPipeline_ProcessFile_Python_FlattenEquivalence(t *testing.T) {
	requirePython(t)

	pipeline := newPythonPipeline(t)

	outcome := pipeline.ProcessFile(context.Background(), fixturePath(t, "nested"))

	if outcome.Status != m.StatusComplete {
		t.Fatalf("ProcessFile() status = %v, err = %s", outcome.Status, outcome.Err)
	}

	if len(outcome.Results) != 1 {
		t.Fatalf("ProcessFile() results = %+v", outcome.Results)
	}

	result := outcome.Results[0]
	requireRan(t, result)

	if result.Baseline.Output != "100\n" {
		t.Fatalf("baseline output = %q, want 100", result.Baseline.Output)
	}

	if result.Candidate.Output != result.Baseline.Output {
		t.Fatalf("flattened nest output = %q, baseline = %q", result.Candidate.Output, result.Baseline.Output)
	}
}

func TestPipeline_ProcessFile_Python_PureCachePreservesOutput(t *testing.T) {
	requirePython(t)

	pipeline := newPythonPipeline(t)

	outcome := pipeline.ProcessFile(context.Background(), fixturePath(t, "repeated"))

	if outcome.Status != m.StatusComplete {
		t.Fatalf("ProcessFile() status = %v, err = %s", outcome.Status, outcome.Err)
	}

	found := false

	for _, result := range outcome.Results {
		if !strings.HasPrefix(result.PatchID, "CACHE_") {
			continue
		}

		found = true
		requireRan(t, result)

		if result.Baseline.Output != "288\n" || result.Candidate.Output != "288\n" {
			t.Fatalf("outputs = %q / %q, want 288", result.Baseline.Output, result.Candidate.Output)
		}
	}

	if !found {
		t.Fatalf("no cache patch planned, results = %+v", outcome.Results)
	}
}

func TestPipeline_ProcessFile_Python_PartialVectorize(t *testing.T) {
	requireNumPy(t)

	pipeline := newPythonPipeline(t)

	outcome := pipeline.ProcessFile(context.Background(), fixturePath(t, "partial"))

	if outcome.Status != m.StatusComplete {
		t.Fatalf("ProcessFile() status = %v, err = %s", outcome.Status, outcome.Err)
	}

	found := false

	for _, result := range outcome.Results {
		if !strings.HasPrefix(result.PatchID, "VECTORIZE_") {
			continue
		}

		found = true
		requireRan(t, result)

		if result.Baseline.Output != "[3, 5, 7, 9]\n4\n" {
			t.Fatalf("baseline output = %q", result.Baseline.Output)
		}

		if result.Candidate.Output != result.Baseline.Output {
			t.Fatalf("hoisted loop output = %q, baseline = %q", result.Candidate.Output, result.Baseline.Output)
		}
	}

	if !found {
		t.Fatalf("no vectorize patch planned, results = %+v", outcome.Results)
	}
}

func TestPipeline_ProcessFile_Python_MixedWorkload(t *testing.T) {
	requireNumPy(t)

	pipeline := newPythonPipeline(t)

	outcome := pipeline.ProcessFile(context.Background(), fixturePath(t, "mixed"))

	if outcome.Status != m.StatusComplete {
		t.Fatalf("ProcessFile() status = %v, err = %s", outcome.Status, outcome.Err)
	}

	// Flatten, vectorize and cache all find a target in this fixture.
	if len(outcome.Applied) != 3 {
		t.Fatalf("ProcessFile() planned %d patches: %+v", len(outcome.Applied), outcome.Applied)
	}

	for _, result := range outcome.Results {
		requireRan(t, result)

		if !result.OutputsMatch {
			t.Fatalf("patch %s changed output: %q vs %q",
				result.PatchID, result.Candidate.Output, result.Baseline.Output)
		}
	}
}
