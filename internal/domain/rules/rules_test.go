package rules

import (
	"context"
	"strings"
	"testing"

	sitter "github.com/smacker/go-tree-sitter"

	"optipy.dev/pkg/optipy/internal/adapter"
	m "optipy.dev/pkg/optipy/internal/model"
)

func parseSource(t *testing.T, src string) *adapter.ParseTree {
	t.Helper()

	tree, err := adapter.NewLocalPythonFileAdapter().Parse(context.Background(), "test.py", []byte(src))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	return tree
}

func findingFor(t *testing.T, tree *adapter.ParseTree, nodeType string, kind m.FindingKind) m.Finding {
	t.Helper()

	var finding m.Finding

	tree.Walk(func(n *sitter.Node, id m.NodeID) bool {
		if finding.Anchor.Node == "" && n.Type() == nodeType {
			finding = m.Finding{ID: "F_1", Kind: kind, Anchor: tree.AnchorOf(n, id)}
		}

		return finding.Anchor.Node == ""
	})

	if finding.Anchor.Node == "" {
		t.Fatalf("no %s in fixture", nodeType)
	}

	return finding
}

func TestFlattenRule_Apply(t *testing.T) {
	tree := parseSource(t, "total = 0\nfor i in range(5):\n    for j in range(6):\n        total += i * j\nprint(total)\n")
	finding := findingFor(t, tree, "for_statement", m.FindingNestedLoop)

	patch, err := NewFlattenRule().Apply(tree, finding)
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	if patch == nil {
		t.Fatalf("Apply() declined a pure nest")
	}

	if patch.Safety != m.SafetyProven {
		t.Fatalf("Apply() safety = %v, want proven", patch.Safety)
	}

	want := "for i, j in itertools.product(range(5), range(6)):\n    total += i * j"
	if patch.Replacement != want {
		t.Fatalf("Apply() replacement:\n%s\nwant:\n%s", patch.Replacement, want)
	}

	if len(patch.Imports) != 1 || patch.Imports[0] != "import itertools" {
		t.Fatalf("Apply() imports = %v", patch.Imports)
	}
}

func TestFlattenRule_DeclinesImpureNest(t *testing.T) {
	tree := parseSource(t, "total = 0\nfor i in range(5):\n    total += 1\n    for j in range(6):\n        total += i * j\n")
	finding := findingFor(t, tree, "for_statement", m.FindingNestedLoop)

	patch, err := NewFlattenRule().Apply(tree, finding)
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	if patch != nil {
		t.Fatalf("Apply() rewrote a nest with extra outer statements")
	}
}

func TestFlattenRule_DeclinesBreak(t *testing.T) {
	tree := parseSource(t, "for i in range(5):\n    for j in range(6):\n        break\n")
	finding := findingFor(t, tree, "for_statement", m.FindingNestedLoop)

	patch, err := NewFlattenRule().Apply(tree, finding)
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	if patch != nil {
		t.Fatalf("Apply() rewrote a nest with a break")
	}
}

func TestFlattenRule_DeclinesForElse(t *testing.T) {
	tree := parseSource(t, "total = 0\nfor i in range(3):\n    for j in range(2):\n        total += 1\n    else:\n        total += 10\nprint(total)\n")
	finding := findingFor(t, tree, "for_statement", m.FindingNestedLoop)

	patch, err := NewFlattenRule().Apply(tree, finding)
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	if patch != nil {
		t.Fatalf("Apply() dropped an inner else clause:\n%s", patch.Replacement)
	}
}

func TestVectorizeRule_Apply(t *testing.T) {
	tree := parseSource(t, "arr = [1, 2, 3, 4, 5]\nc = 10\nfor i in range(len(arr)):\n    arr[i] = arr[i] + c\nprint(arr)\n")
	finding := findingFor(t, tree, "for_statement", m.FindingVectorizableLoop)

	patch, err := NewVectorizeRule().Apply(tree, finding)
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	if patch == nil {
		t.Fatalf("Apply() declined a vectorizable loop")
	}

	want := "arr = (np.asarray(arr) + c).tolist()"
	if patch.Replacement != want {
		t.Fatalf("Apply() replacement = %q, want %q", patch.Replacement, want)
	}

	if len(patch.Imports) != 1 || patch.Imports[0] != "import numpy as np" {
		t.Fatalf("Apply() imports = %v", patch.Imports)
	}
}

func TestVectorizeRule_AugmentedProven(t *testing.T) {
	tree := parseSource(t, "arr = [1, 2, 3]\nfor i in range(len(arr)):\n    arr[i] += 2\nprint(arr)\n")
	finding := findingFor(t, tree, "for_statement", m.FindingVectorizableLoop)

	patch, err := NewVectorizeRule().Apply(tree, finding)
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	if patch == nil {
		t.Fatalf("Apply() declined")
	}

	if patch.Replacement != "arr = (np.asarray(arr) + 2).tolist()" {
		t.Fatalf("Apply() replacement = %q", patch.Replacement)
	}

	if patch.Safety != m.SafetyProven {
		t.Fatalf("Apply() safety = %v, want proven for a static numeric list", patch.Safety)
	}
}

func TestVectorizeRule_HeuristicWhenScalarUnknown(t *testing.T) {
	tree := parseSource(t, "arr = [1, 2, 3, 4, 5]\nc = 10\nfor i in range(len(arr)):\n    arr[i] = arr[i] + c\n")
	finding := findingFor(t, tree, "for_statement", m.FindingVectorizableLoop)

	patch, err := NewVectorizeRule().Apply(tree, finding)
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	if patch.Safety != m.SafetyHeuristic {
		t.Fatalf("Apply() safety = %v, want heuristic when an operand name cannot be proven numeric", patch.Safety)
	}
}

func TestVectorizeRule_UnequalLengthHeuristic(t *testing.T) {
	tree := parseSource(t, "arr = [1, 2]\nbrr = [1, 2, 3]\nfor i in range(len(arr)):\n    arr[i] = brr[i] + 1\nprint(arr)\n")
	finding := findingFor(t, tree, "for_statement", m.FindingVectorizableLoop)

	patch, err := NewVectorizeRule().Apply(tree, finding)
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	if patch == nil {
		t.Fatalf("Apply() declined")
	}

	if patch.Safety != m.SafetyHeuristic {
		t.Fatalf("Apply() safety = %v, want heuristic when container lengths differ", patch.Safety)
	}
}

func TestVectorizeRule_EqualLengthContainersProven(t *testing.T) {
	tree := parseSource(t, "arr = [1, 2]\nbrr = [3, 4]\nfor i in range(len(arr)):\n    arr[i] = brr[i] + 1\nprint(arr)\n")
	finding := findingFor(t, tree, "for_statement", m.FindingVectorizableLoop)

	patch, err := NewVectorizeRule().Apply(tree, finding)
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	if patch == nil || patch.Safety != m.SafetyProven {
		t.Fatalf("Apply() = %+v, want proven for equal-length numeric lists", patch)
	}
}

func TestVectorizeRule_PartialPrefix(t *testing.T) {
	tree := parseSource(t, "arr = [2, 4, 6, 8]\ntotal = 0\nfor i in range(len(arr)):\n    arr[i] += 1\n    total += 1\nprint(arr)\n")
	finding := findingFor(t, tree, "for_statement", m.FindingVectorizableLoop)

	patch, err := NewVectorizeRule().Apply(tree, finding)
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	if patch == nil {
		t.Fatalf("Apply() declined a vectorizable prefix")
	}

	if !strings.Contains(patch.Replacement, "arr = (np.asarray(arr) + 1).tolist()") {
		t.Fatalf("Apply() missing hoisted statement:\n%s", patch.Replacement)
	}

	if !strings.Contains(patch.Replacement, "for i in range(len(arr)):") {
		t.Fatalf("Apply() dropped the retained loop:\n%s", patch.Replacement)
	}

	if !strings.Contains(patch.Replacement, "total += 1") {
		t.Fatalf("Apply() dropped the scalar suffix:\n%s", patch.Replacement)
	}
}

func TestVectorizeRule_DeclinesInterleaved(t *testing.T) {
	tree := parseSource(t, "arr = [2, 4]\ntotal = 0\nfor i in range(len(arr)):\n    total += 1\n    arr[i] += 1\n")
	finding := findingFor(t, tree, "for_statement", m.FindingVectorizableLoop)

	patch, err := NewVectorizeRule().Apply(tree, finding)
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	if patch != nil {
		t.Fatalf("Apply() hoisted a statement past a preceding scalar statement")
	}
}

func TestCacheRule_Apply(t *testing.T) {
	tree := parseSource(t, "def slow(n):\n    return n * n\n\na = slow(12)\nb = slow(12)\n")

	var finding m.Finding

	tree.Walk(func(n *sitter.Node, id m.NodeID) bool {
		if finding.Anchor.Node == "" && n.Type() == "call" {
			finding = m.Finding{
				ID:     "REPEAT_1",
				Kind:   m.FindingRepeatedComputation,
				Anchor: tree.AnchorOf(n, id),
				Evidence: m.Evidence{
					Callee:    "slow",
					Args:      []string{"12"},
					CallSites: []m.Span{tree.SpanOf(n), tree.SpanOf(n)},
				},
			}
		}

		return finding.Anchor.Node == ""
	})

	patch, err := NewCacheRule().Apply(tree, finding)
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	if patch == nil {
		t.Fatalf("Apply() declined a module-level def")
	}

	if !strings.HasPrefix(patch.Replacement, "@functools.lru_cache(maxsize=None)\ndef slow(n):") {
		t.Fatalf("Apply() replacement:\n%s", patch.Replacement)
	}

	if patch.Safety != m.SafetyHeuristic {
		t.Fatalf("Apply() safety = %v, want heuristic", patch.Safety)
	}

	if len(patch.Imports) != 1 || patch.Imports[0] != "import functools" {
		t.Fatalf("Apply() imports = %v", patch.Imports)
	}
}

func TestCacheRule_DeclinesBuiltin(t *testing.T) {
	tree := parseSource(t, "a = max(1, 2)\nb = max(1, 2)\n")

	finding := m.Finding{
		ID:       "REPEAT_1",
		Kind:     m.FindingRepeatedComputation,
		Evidence: m.Evidence{Callee: "max", Args: []string{"1", "2"}},
	}

	patch, err := NewCacheRule().Apply(tree, finding)
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	if patch != nil {
		t.Fatalf("Apply() decorated a callee with no module-level def")
	}
}

func TestAnchoredNode_StaleFinding(t *testing.T) {
	tree := parseSource(t, "for i in range(5):\n    pass\n")
	finding := findingFor(t, tree, "for_statement", m.FindingNestedLoop)
	finding.Anchor.Span.EndByte++

	if node := anchoredNode(tree, finding, "for_statement"); node != nil {
		t.Fatalf("anchoredNode() resolved a stale anchor")
	}
}
