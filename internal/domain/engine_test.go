package domain

import (
	"strings"
	"testing"

	"optipy.dev/pkg/optipy/internal/adapter"
	"optipy.dev/pkg/optipy/internal/domain/rules"
	m "optipy.dev/pkg/optipy/internal/model"
)

func newTestEngine(enabled []m.FindingKind) Engine {
	return NewEngine(adapter.NewLocalPythonFileAdapter(), rules.DefaultRules(), enabled)
}

func TestEngine_PlanAndRender(t *testing.T) {
	src := "arr = [1, 2, 3]\nfor i in range(len(arr)):\n    arr[i] += 2\nprint(arr)\n"
	tree := parseSource(t, src)
	findings := NewAnalyzer(1000).Analyze(tree)

	engine := newTestEngine(nil)

	applied, superseded, err := engine.Plan(tree, findings)
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}

	if len(applied) != 1 || len(superseded) != 0 {
		t.Fatalf("Plan() = %d applied, %d superseded", len(applied), len(superseded))
	}

	out, err := engine.Render(tree, applied)
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}

	if !strings.Contains(out, "arr = (np.asarray(arr) + 2).tolist()") {
		t.Fatalf("Render() output:\n%s", out)
	}

	if !strings.HasPrefix(out, "import numpy as np\n") {
		t.Fatalf("Render() missing import:\n%s", out)
	}
}

func TestEngine_RenderIdempotent(t *testing.T) {
	// Re-analyzing rendered output must not rediscover the rewritten loops.
	src := "total = 0\nfor i in range(5):\n    for j in range(6):\n        total += i * j\nprint(total)\n"
	tree := parseSource(t, src)
	findings := NewAnalyzer(1000).Analyze(tree)

	engine := newTestEngine(nil)

	applied, _, err := engine.Plan(tree, findings)
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}

	if len(applied) != 1 {
		t.Fatalf("Plan() = %d applied, want 1", len(applied))
	}

	out, err := engine.Render(tree, applied)
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}

	for _, finding := range NewAnalyzer(1000).Analyze(parseSource(t, out)) {
		if finding.Kind == m.FindingNestedLoop || finding.Kind == m.FindingVectorizableLoop {
			t.Fatalf("re-analysis found %s in rendered output:\n%s", finding.Kind, out)
		}
	}
}

func TestEngine_OverlapSupersedes(t *testing.T) {
	// Two repeated-computation groups against the same callee produce two
	// identically anchored cache patches; only one survives.
	src := "def f(n):\n    return n\n\na = f(1)\nb = f(1)\nc = f(2)\nd = f(2)\n"
	tree := parseSource(t, src)
	findings := NewAnalyzer(1000).Analyze(tree)

	repeated := 0
	for _, finding := range findings {
		if finding.Kind == m.FindingRepeatedComputation {
			repeated++
		}
	}

	if repeated != 2 {
		t.Fatalf("fixture produced %d repeated-computation findings, want 2", repeated)
	}

	engine := newTestEngine(nil)

	applied, superseded, err := engine.Plan(tree, findings)
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}

	if len(applied) != 1 || len(superseded) != 1 {
		t.Fatalf("Plan() = %d applied, %d superseded, want 1/1", len(applied), len(superseded))
	}

	if applied[0].Kind != m.FindingRepeatedComputation {
		t.Fatalf("applied patch kind = %v", applied[0].Kind)
	}
}

func TestEngine_DisabledKind(t *testing.T) {
	src := "arr = [1, 2, 3]\nfor i in range(len(arr)):\n    arr[i] += 2\n"
	tree := parseSource(t, src)
	findings := NewAnalyzer(1000).Analyze(tree)

	engine := newTestEngine([]m.FindingKind{m.FindingNestedLoop})

	applied, superseded, err := engine.Plan(tree, findings)
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}

	if len(applied) != 0 || len(superseded) != 0 {
		t.Fatalf("Plan() produced patches for a disabled kind")
	}
}

func TestEngine_ReportOnlyKindsProduceNoPatch(t *testing.T) {
	src := "for i in range(5000):\n    pass\n"
	tree := parseSource(t, src)
	findings := NewAnalyzer(1000).Analyze(tree)

	if len(findings) != 1 {
		t.Fatalf("fixture produced %d findings, want 1", len(findings))
	}

	engine := newTestEngine(nil)

	applied, _, err := engine.Plan(tree, findings)
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}

	if len(applied) != 0 {
		t.Fatalf("Plan() produced a patch for a report-only finding")
	}
}
