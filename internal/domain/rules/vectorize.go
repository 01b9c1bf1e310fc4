package rules

import (
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"optipy.dev/pkg/optipy/internal/adapter"
	"optipy.dev/pkg/optipy/internal/domain/patterns"
	m "optipy.dev/pkg/optipy/internal/model"
)

// VectorizeRule rewrites an elementwise loop into whole-array NumPy
// expressions. When every body statement vectorizes the loop disappears;
// when a vectorizable prefix is followed by scalar statements, the prefix is
// hoisted above a retained loop (partial vectorization).
//
// The array expressions go through `.tolist()` so the transformed script's
// printed output stays byte-identical to the list-based original.
type VectorizeRule struct{}

// NewVectorizeRule constructs a VectorizeRule.
func NewVectorizeRule() *VectorizeRule {
	return &VectorizeRule{}
}

// Kind implements Rule.
func (r *VectorizeRule) Kind() m.FindingKind {
	return m.FindingVectorizableLoop
}

// Priority implements Rule.
func (r *VectorizeRule) Priority() int {
	return PriorityVectorize
}

// Apply implements Rule.
func (r *VectorizeRule) Apply(tree *adapter.ParseTree, finding m.Finding) (*m.Patch, error) {
	node := anchoredNode(tree, finding, "for_statement")
	if node == nil {
		return nil, nil
	}

	vl, ok := patterns.ClassifyVectorLoop(tree, node)
	if !ok {
		return nil, nil
	}

	split := vectorizablePrefixLen(vl.Stmts)
	full := split == len(vl.Stmts)

	// Partial vectorization is only sound when the vectorizable statements
	// form a prefix: hoisting then preserves each element's value at the
	// point the retained statements read it.
	if !full && split == 0 {
		return nil, nil
	}

	indent := patterns.LineIndent(tree.Source, finding.Anchor.Span.StartByte)
	lines := make([]string, 0, split)

	for _, stmt := range vl.Stmts[:split] {
		lines = append(lines, emitArrayStatement(tree, vl.Loop.Var, stmt))
	}

	replacement := strings.Join(lines, "\n"+indent)
	rationale := fmt.Sprintf("replaced the elementwise loop over %s with whole-array operations", vl.Loop.RangeOf)

	if !full {
		replacement += "\n" + indent + retainedLoop(tree, vl, split)
		rationale = fmt.Sprintf("hoisted %d elementwise statement(s) over %s out of the loop as whole-array operations", split, vl.Loop.RangeOf)
	}

	return &m.Patch{
		ID:          "VECTORIZE_" + finding.ID,
		FindingID:   finding.ID,
		Kind:        finding.Kind,
		Anchor:      finding.Anchor,
		Replacement: replacement,
		Imports:     []string{"import numpy as np"},
		Rationale:   rationale,
		Safety:      vectorizeSafety(tree, vl, split),
	}, nil
}

func vectorizablePrefixLen(stmts []patterns.VectorStmt) int {
	split := 0
	for split < len(stmts) && stmts[split].Vectorizable {
		split++
	}

	for _, stmt := range stmts[split:] {
		if stmt.Vectorizable {
			return 0
		}
	}

	return split
}

// emitArrayStatement renders one vectorizable statement as a whole-array
// assignment, e.g. `arr[i] += c` -> `arr = (np.asarray(arr) + c).tolist()`.
func emitArrayStatement(tree *adapter.ParseTree, loopVar string, stmt patterns.VectorStmt) string {
	rhs := emitArrayExpr(tree, loopVar, stmt.RHS)

	if stmt.Op == "=" {
		return fmt.Sprintf("%s = (%s).tolist()", stmt.Target, rhs)
	}

	return fmt.Sprintf("%s = (np.asarray(%s) %s %s).tolist()", stmt.Target, stmt.Target, stmt.Op, rhs)
}

// emitArrayExpr re-emits an elementwise expression with every loop-indexed
// subscript widened to the whole container.
func emitArrayExpr(tree *adapter.ParseTree, loopVar string, n *sitter.Node) string {
	switch n.Type() {
	case "subscript":
		return "np.asarray(" + tree.Content(n.ChildByFieldName("value")) + ")"

	case "binary_operator":
		return emitArrayExpr(tree, loopVar, n.ChildByFieldName("left")) +
			" " + tree.Content(n.ChildByFieldName("operator")) + " " +
			emitArrayExpr(tree, loopVar, n.ChildByFieldName("right"))

	case "unary_operator":
		return tree.Content(n.ChildByFieldName("operator")) + emitArrayExpr(tree, loopVar, n.ChildByFieldName("argument"))

	case "parenthesized_expression":
		return "(" + emitArrayExpr(tree, loopVar, n.NamedChild(0)) + ")"

	default:
		return tree.Content(n)
	}
}

// retainedLoop re-emits the loop header plus the non-vectorizable suffix
// with its original indentation.
func retainedLoop(tree *adapter.ParseTree, vl patterns.VectorLoop, split int) string {
	header := fmt.Sprintf("for %s in range(len(%s)):", vl.Loop.Var, vl.Loop.RangeOf)

	first := vl.Stmts[split].Node
	last := vl.Stmts[len(vl.Stmts)-1].Node

	lineStart := int(first.StartByte())
	for lineStart > 0 && tree.Source[lineStart-1] != '\n' {
		lineStart--
	}

	return header + "\n" + string(tree.Source[lineStart:int(last.EndByte())])
}

// vectorizeSafety grades the patch: Proven only when every operand is known
// numeric, meaning every container is a module-level numeric list literal of
// the same length as the range container and no free scalar names appear.
// The whole-array rewrite resizes a container of a different length, so a
// length mismatch stays Heuristic. Anything else is Heuristic too and left
// for validation to confirm or veto.
func vectorizeSafety(tree *adapter.ParseTree, vl patterns.VectorLoop, split int) m.SafetyLevel {
	rangeList := moduleNumericList(tree, vl.Loop.RangeOf)
	if rangeList == nil {
		return m.SafetyHeuristic
	}

	want := int(rangeList.NamedChildCount())

	for _, stmt := range vl.Stmts[:split] {
		if !numericOperands(tree, stmt.RHS, want) {
			return m.SafetyHeuristic
		}

		target := moduleNumericList(tree, stmt.Target)
		if target == nil || int(target.NamedChildCount()) != want {
			return m.SafetyHeuristic
		}
	}

	return m.SafetyProven
}

func numericOperands(tree *adapter.ParseTree, n *sitter.Node, want int) bool {
	if n == nil {
		return false
	}

	switch n.Type() {
	case "integer", "float":
		return true

	case "subscript":
		value := n.ChildByFieldName("value")
		if value == nil {
			return false
		}

		list := moduleNumericList(tree, tree.Content(value))

		return list != nil && int(list.NamedChildCount()) == want

	case "parenthesized_expression":
		return n.NamedChildCount() == 1 && numericOperands(tree, n.NamedChild(0), want)

	case "unary_operator":
		return numericOperands(tree, n.ChildByFieldName("argument"), want)

	case "binary_operator":
		return numericOperands(tree, n.ChildByFieldName("left"), want) &&
			numericOperands(tree, n.ChildByFieldName("right"), want)
	}

	return false
}

// moduleNumericList returns the list literal assigned to name at module
// level when every element is a numeric literal, or nil.
func moduleNumericList(tree *adapter.ParseTree, name string) *sitter.Node {
	root := tree.Root()

	for i := 0; i < int(root.NamedChildCount()); i++ {
		stmt := root.NamedChild(i)
		if stmt.Type() != "expression_statement" || stmt.NamedChildCount() != 1 {
			continue
		}

		assign := stmt.NamedChild(0)
		if assign.Type() != "assignment" {
			continue
		}

		left := assign.ChildByFieldName("left")
		right := assign.ChildByFieldName("right")

		if left == nil || right == nil || left.Type() != "identifier" || tree.Content(left) != name {
			continue
		}

		if right.Type() == "list" && allNumericElements(tree, right) {
			return right
		}
	}

	return nil
}

func allNumericElements(tree *adapter.ParseTree, list *sitter.Node) bool {
	for i := 0; i < int(list.NamedChildCount()); i++ {
		elem := list.NamedChild(i)

		for elem.Type() == "unary_operator" {
			elem = elem.ChildByFieldName("argument")
			if elem == nil {
				return false
			}
		}

		if elem.Type() != "integer" && elem.Type() != "float" {
			return false
		}
	}

	return true
}
