package patterns

import (
	sitter "github.com/smacker/go-tree-sitter"

	"optipy.dev/pkg/optipy/internal/adapter"
	m "optipy.dev/pkg/optipy/internal/model"
)

// NestedPair is a two-level counted nest eligible for cartesian-product
// flattening.
type NestedPair struct {
	Outer CountedLoop
	Inner CountedLoop
	// PureNest is true when the outer body consists of the inner loop alone;
	// only that shape flattens with a structural equivalence proof.
	PureNest bool
}

// AsNestedPair matches an outer counted loop holding exactly one inner
// counted loop whose bound does not depend on state the outer level mutates.
func AsNestedPair(t *adapter.ParseTree, n *sitter.Node) (NestedPair, bool) {
	outer, ok := AsCountedLoop(t, n)
	if !ok {
		return NestedPair{}, false
	}

	stmts := BodyStatements(outer.Body)

	var innerNode *sitter.Node

	for _, stmt := range stmts {
		if stmt.Type() == nodeForStatement {
			if innerNode != nil {
				return NestedPair{}, false
			}

			innerNode = stmt
		}
	}

	if innerNode == nil {
		return NestedPair{}, false
	}

	inner, ok := AsCountedLoop(t, innerNode)
	if !ok {
		return NestedPair{}, false
	}

	// The inner bound must be iteration-invariant: it may not read the outer
	// index nor any name the outer body assigns.
	mutated := map[string]struct{}{outer.Var: {}}

	for _, stmt := range stmts {
		if stmt != innerNode {
			AssignedNames(t, stmt, mutated)
		}
	}

	boundRefs := make(map[string]struct{})
	ReferencedNames(t, inner.Range, boundRefs)

	for name := range boundRefs {
		if _, hit := mutated[name]; hit {
			return NestedPair{}, false
		}
	}

	return NestedPair{
		Outer:    outer,
		Inner:    inner,
		PureNest: len(stmts) == 1,
	}, true
}

// DetectNestedLoop reports a flattenable two-level nest. Loops whose inner
// level vectorizes are skipped here; the vectorize family covers them.
func DetectNestedLoop(t *adapter.ParseTree, n *sitter.Node, id m.NodeID) []m.Finding {
	pair, ok := AsNestedPair(t, n)
	if !ok {
		return nil
	}

	if _, vectorizes := ClassifyVectorLoop(t, pair.Inner.Node); vectorizes {
		return nil
	}

	return []m.Finding{{
		Kind:   m.FindingNestedLoop,
		Anchor: t.AnchorOf(n, id),
		Evidence: m.Evidence{
			LoopVars:  []string{pair.Outer.Var, pair.Inner.Var},
			InnerSpan: t.SpanOf(pair.Inner.Node),
		},
	}}
}
