package rules

import (
	"fmt"
	"strings"

	"optipy.dev/pkg/optipy/internal/adapter"
	"optipy.dev/pkg/optipy/internal/domain/patterns"
	m "optipy.dev/pkg/optipy/internal/model"
)

// FlattenRule rewrites a pure two-level counted nest into a single loop over
// itertools.product. The rewrite is a plain iteration-order equivalence, so
// its safety is Proven — which is exactly why the guards are strict: any
// early exit in the inner body, or any outer-body statement besides the
// inner loop, declines.
type FlattenRule struct{}

// NewFlattenRule constructs a FlattenRule.
func NewFlattenRule() *FlattenRule {
	return &FlattenRule{}
}

// Kind implements Rule.
func (r *FlattenRule) Kind() m.FindingKind {
	return m.FindingNestedLoop
}

// Priority implements Rule.
func (r *FlattenRule) Priority() int {
	return PriorityFlatten
}

// Apply implements Rule.
func (r *FlattenRule) Apply(tree *adapter.ParseTree, finding m.Finding) (*m.Patch, error) {
	node := anchoredNode(tree, finding, "for_statement")
	if node == nil {
		return nil, nil
	}

	pair, ok := patterns.AsNestedPair(tree, node)
	if !ok || !pair.PureNest {
		return nil, nil
	}

	// break would exit only the inner level of the original; return inside
	// a nest is likewise order-sensitive. Both void the structural proof.
	if patterns.ContainsAny(pair.Inner.Body, "break_statement", "return_statement") {
		return nil, nil
	}

	header := fmt.Sprintf("for %s, %s in itertools.product(%s, %s):",
		pair.Outer.Var, pair.Inner.Var,
		tree.Content(pair.Outer.Range), tree.Content(pair.Inner.Range),
	)

	outerIndent := patterns.LineIndent(tree.Source, finding.Anchor.Span.StartByte)
	body := reindentBlock(tree, pair.Inner.Body, outerIndent+"    ")

	return &m.Patch{
		ID:          "FLATTEN_" + finding.ID,
		FindingID:   finding.ID,
		Kind:        finding.Kind,
		Anchor:      finding.Anchor,
		Replacement: header + "\n" + body,
		Imports:     []string{"import itertools"},
		Rationale: fmt.Sprintf("flattened the %s/%s nest into one cartesian-product loop",
			pair.Outer.Var, pair.Inner.Var),
		Safety: m.SafetyProven,
	}, nil
}

// reindentBlock re-emits a block's source text at a new indentation level,
// preserving relative indentation of nested lines.
func reindentBlock(tree *adapter.ParseTree, body interface {
	StartByte() uint32
	EndByte() uint32
}, newIndent string) string {
	start := int(body.StartByte())
	lineStart := start

	for lineStart > 0 && tree.Source[lineStart-1] != '\n' {
		lineStart--
	}

	oldIndent := patterns.LineIndent(tree.Source, start)
	lines := strings.Split(string(tree.Source[lineStart:int(body.EndByte())]), "\n")

	for i, line := range lines {
		switch {
		case strings.TrimSpace(line) == "":
			lines[i] = line
		case strings.HasPrefix(line, oldIndent):
			lines[i] = newIndent + strings.TrimPrefix(line, oldIndent)
		}
	}

	return strings.Join(lines, "\n")
}
