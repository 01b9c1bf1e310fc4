package domain

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"optipy.dev/pkg/optipy/internal/adapter"
	m "optipy.dev/pkg/optipy/internal/model"
)

func fixturePath(t *testing.T, name string) m.Path {
	t.Helper()

	return m.Path(filepath.Join("..", "..", "examples", name, name+".py"))
}

func testConfig(optimizedDir m.Path) Config {
	return Config{
		HighIterationThreshold: 1000,
		ImprovementThreshold:   0.05,
		CandidateTimeout:       time.Second,
		Threads:                2,
		OptimizedDir:           optimizedDir,
	}
}

func newTestPipeline(runner adapter.ScriptRunnerAdapter, optimizedDir m.Path) *Pipeline {
	return NewPipeline(
		testConfig(optimizedDir),
		adapter.NewLocalPythonFileAdapter(),
		adapter.NewLocalSourceFSAdapter(),
		runner,
	)
}

func TestPipeline_ProcessFile_Accepted(t *testing.T) {
	runner := &scriptedRunner{
		baseline:   ok("[11, 12, 13, 14, 15]\n", 100*time.Millisecond),
		candidates: []adapter.RunResult{ok("[11, 12, 13, 14, 15]\n", 20*time.Millisecond)},
	}

	optimizedDir := m.Path(t.TempDir())
	pipeline := newTestPipeline(runner, optimizedDir)

	outcome := pipeline.ProcessFile(context.Background(), fixturePath(t, "vectorize"))

	if outcome.Status != m.StatusComplete {
		t.Fatalf("ProcessFile() status = %v, err = %s", outcome.Status, outcome.Err)
	}

	if outcome.AcceptedCount() != 1 {
		t.Fatalf("ProcessFile() accepted = %d, results = %+v", outcome.AcceptedCount(), outcome.Results)
	}

	if !strings.Contains(outcome.Optimized, "np.asarray(arr)") {
		t.Fatalf("ProcessFile() optimized text:\n%s", outcome.Optimized)
	}

	written, err := os.ReadFile(filepath.Join(string(optimizedDir), "vectorize_optimized.py"))
	if err != nil {
		t.Fatalf("optimized file not written: %v", err)
	}

	if string(written) != outcome.Optimized {
		t.Fatalf("optimized file content differs from outcome")
	}
}

func TestPipeline_ProcessFile_NoBenefitKeepsOriginal(t *testing.T) {
	runner := &scriptedRunner{
		baseline:   ok("[11, 12, 13, 14, 15]\n", 100*time.Millisecond),
		candidates: []adapter.RunResult{ok("[11, 12, 13, 14, 15]\n", 98*time.Millisecond)},
	}

	optimizedDir := m.Path(t.TempDir())
	pipeline := newTestPipeline(runner, optimizedDir)

	outcome := pipeline.ProcessFile(context.Background(), fixturePath(t, "vectorize"))

	if outcome.Status != m.StatusComplete || outcome.AcceptedCount() != 0 {
		t.Fatalf("ProcessFile() = %v/%d", outcome.Status, outcome.AcceptedCount())
	}

	if outcome.Optimized != "" {
		t.Fatalf("ProcessFile() produced optimized text for a rejected patch")
	}

	if _, err := os.Stat(filepath.Join(string(optimizedDir), "vectorize_optimized.py")); !os.IsNotExist(err) {
		t.Fatalf("optimized file written despite rejection")
	}
}

func TestPipeline_ProcessFile_ParseError(t *testing.T) {
	pipeline := newTestPipeline(&scriptedRunner{}, "")

	outcome := pipeline.ProcessFile(context.Background(), fixturePath(t, "invalid"))

	if outcome.Status != m.StatusFailed || outcome.Err == "" {
		t.Fatalf("ProcessFile() = %v, err = %q", outcome.Status, outcome.Err)
	}
}

func TestPipeline_ProcessFile_MissingFile(t *testing.T) {
	pipeline := newTestPipeline(&scriptedRunner{}, "")

	outcome := pipeline.ProcessFile(context.Background(), "no/such/file.py")

	if outcome.Status != m.StatusFailed {
		t.Fatalf("ProcessFile() status = %v", outcome.Status)
	}
}

func TestPipeline_ProcessFile_CleanSource(t *testing.T) {
	pipeline := newTestPipeline(&scriptedRunner{}, "")

	outcome := pipeline.ProcessFile(context.Background(), fixturePath(t, "clean"))

	if outcome.Status != m.StatusComplete || len(outcome.Findings) != 0 || len(outcome.Results) != 0 {
		t.Fatalf("ProcessFile() = %+v", outcome)
	}
}

func TestPipeline_AnalyzeFile(t *testing.T) {
	pipeline := newTestPipeline(&scriptedRunner{}, "")

	outcome := pipeline.AnalyzeFile(context.Background(), fixturePath(t, "nested"))

	if outcome.Status != m.StatusComplete || len(outcome.Findings) == 0 {
		t.Fatalf("AnalyzeFile() = %v with %d findings", outcome.Status, len(outcome.Findings))
	}

	if len(outcome.Applied) != 0 || len(outcome.Results) != 0 {
		t.Fatalf("AnalyzeFile() planned or executed patches")
	}

	wantHash, err := adapter.NewLocalSourceFSAdapter().HashFile(fixturePath(t, "nested"))
	if err != nil {
		t.Fatalf("HashFile() error = %v", err)
	}

	if outcome.Source.Hash != wantHash {
		t.Fatalf("AnalyzeFile() hash = %q, want %q", outcome.Source.Hash, wantHash)
	}
}

func TestPipeline_Process_PreservesOrder(t *testing.T) {
	pipeline := newTestPipeline(&scriptedRunner{}, "")

	paths := []m.Path{fixturePath(t, "clean"), fixturePath(t, "invalid"), fixturePath(t, "highiter")}

	seen := 0

	outcomes, err := pipeline.Process(context.Background(), paths, func(m.Outcome) { seen++ })
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	if len(outcomes) != 3 || seen != 3 {
		t.Fatalf("Process() outcomes = %d, callbacks = %d", len(outcomes), seen)
	}

	for i, path := range paths {
		if outcomes[i].Source.Origin != path {
			t.Fatalf("Process() outcome %d = %s, want %s", i, outcomes[i].Source.Origin, path)
		}
	}

	if outcomes[1].Status != m.StatusFailed {
		t.Fatalf("Process() invalid file status = %v", outcomes[1].Status)
	}
}
