package patterns

import (
	sitter "github.com/smacker/go-tree-sitter"

	"optipy.dev/pkg/optipy/internal/adapter"
	m "optipy.dev/pkg/optipy/internal/model"
)

// VectorStmt is one classified body statement of a candidate loop.
type VectorStmt struct {
	Node         *sitter.Node
	Vectorizable bool
	// For vectorizable statements: the container written, the operator
	// ("=" for a plain assignment, the bare arithmetic operator for an
	// augmented one) and the right-hand side expression.
	Target string
	Op     string
	RHS    *sitter.Node
}

// VectorLoop is a loop whose body is elementwise read-modify-write over
// containers indexed by the loop variable.
type VectorLoop struct {
	Loop  CountedLoop
	Stmts []VectorStmt
}

var vectorOps = map[string]struct{}{
	"+": {}, "-": {}, "*": {}, "/": {}, "//": {}, "%": {}, "**": {},
}

// ClassifyVectorLoop matches `for i in range(len(arr))` whose body holds only
// simple (augmented) assignments, at least one of them elementwise. The
// guards are deliberately conservative:
//   - every subscript index must be the bare loop variable — an offset or
//     negative index declines the whole loop rather than guessing a
//     truncation semantic;
//   - no calls anywhere in the body (unknown side effects);
//   - no break/continue/return;
//   - an elementwise statement may not read a scalar the body also writes,
//     since that would carry state across iterations.
func ClassifyVectorLoop(t *adapter.ParseTree, n *sitter.Node) (VectorLoop, bool) {
	loop, ok := AsCountedLoop(t, n)
	if !ok || loop.RangeOf == "" {
		return VectorLoop{}, false
	}

	stmts := BodyStatements(loop.Body)
	if len(stmts) == 0 {
		return VectorLoop{}, false
	}

	if ContainsAny(loop.Body, nodeCall, nodeBreakStatement, nodeReturnStatement, "continue_statement", nodeForStatement, "while_statement", "if_statement") {
		return VectorLoop{}, false
	}

	if !subscriptsUseIndex(t, loop.Body, loop.Var) {
		return VectorLoop{}, false
	}

	bodyWritten := make(map[string]struct{})
	AssignedNames(t, loop.Body, bodyWritten)

	classified := make([]VectorStmt, 0, len(stmts))
	vectorizable := 0

	for _, stmt := range stmts {
		vs, ok := classifyStatement(t, stmt, loop.Var)
		if !ok {
			return VectorLoop{}, false
		}

		if vs.Vectorizable {
			if readsWrittenScalar(t, vs.RHS, loop.Var, bodyWritten) {
				return VectorLoop{}, false
			}

			vectorizable++
		}

		classified = append(classified, vs)
	}

	if vectorizable == 0 {
		return VectorLoop{}, false
	}

	return VectorLoop{Loop: loop, Stmts: classified}, true
}

// classifyStatement accepts only single (augmented) assignments: elementwise
// ones targeting container[i], scalar ones targeting a plain name. Anything
// else fails the whole loop.
func classifyStatement(t *adapter.ParseTree, stmt *sitter.Node, loopVar string) (VectorStmt, bool) {
	if stmt.Type() != nodeExpressionStmt || stmt.NamedChildCount() != 1 {
		return VectorStmt{}, false
	}

	inner := stmt.NamedChild(0)

	var target, rhs *sitter.Node

	op := "="

	switch inner.Type() {
	case nodeAssignment:
		target = inner.ChildByFieldName("left")
		rhs = inner.ChildByFieldName("right")

	case nodeAugAssignment:
		target = inner.ChildByFieldName("left")
		rhs = inner.ChildByFieldName("right")

		opNode := inner.ChildByFieldName("operator")
		if opNode == nil {
			return VectorStmt{}, false
		}

		op = trimAssign(t.Content(opNode))

	default:
		return VectorStmt{}, false
	}

	if target == nil || rhs == nil {
		return VectorStmt{}, false
	}

	if target.Type() == nodeIdentifier {
		// Scalar accumulator; stays inside a retained loop.
		return VectorStmt{Node: stmt, Vectorizable: false}, true
	}

	container, ok := subscriptContainer(t, target, loopVar)
	if !ok {
		return VectorStmt{}, false
	}

	if !isElementwiseExpr(t, rhs, loopVar) {
		return VectorStmt{Node: stmt, Vectorizable: false}, true
	}

	// A plain assignment must read at least one element, otherwise the
	// replacement would broadcast a scalar; declined rather than guessed.
	if op == "=" && !ContainsAny(rhs, nodeSubscript) {
		return VectorStmt{Node: stmt, Vectorizable: false}, true
	}

	return VectorStmt{
		Node:         stmt,
		Vectorizable: true,
		Target:       container,
		Op:           op,
		RHS:          rhs,
	}, true
}

func trimAssign(op string) string {
	if len(op) > 0 && op[len(op)-1] == '=' {
		return op[:len(op)-1]
	}

	return op
}

// subscriptContainer matches name[loopVar] and returns the container name.
func subscriptContainer(t *adapter.ParseTree, n *sitter.Node, loopVar string) (string, bool) {
	if n == nil || n.Type() != nodeSubscript {
		return "", false
	}

	value := n.ChildByFieldName("value")
	index := n.ChildByFieldName("subscript")

	if value == nil || index == nil {
		return "", false
	}

	if value.Type() != nodeIdentifier || index.Type() != nodeIdentifier || t.Content(index) != loopVar {
		return "", false
	}

	return t.Content(value), true
}

// subscriptsUseIndex verifies every subscript under n indexes with exactly
// the loop variable.
func subscriptsUseIndex(t *adapter.ParseTree, n *sitter.Node, loopVar string) bool {
	if n == nil {
		return true
	}

	if n.Type() == nodeSubscript {
		if _, ok := subscriptContainer(t, n, loopVar); !ok {
			return false
		}
	}

	for i := 0; i < int(n.NamedChildCount()); i++ {
		if !subscriptsUseIndex(t, n.NamedChild(i), loopVar) {
			return false
		}
	}

	return true
}

// isElementwiseExpr accepts arithmetic over literals, scalar names and
// loop-indexed subscripts.
func isElementwiseExpr(t *adapter.ParseTree, n *sitter.Node, loopVar string) bool {
	if n == nil {
		return false
	}

	switch n.Type() {
	case nodeInteger, nodeFloat, nodeIdentifier:
		return true

	case nodeSubscript:
		_, ok := subscriptContainer(t, n, loopVar)
		return ok

	case nodeParenthesized:
		return n.NamedChildCount() == 1 && isElementwiseExpr(t, n.NamedChild(0), loopVar)

	case nodeUnaryOperator:
		return isElementwiseExpr(t, n.ChildByFieldName("argument"), loopVar)

	case nodeBinaryOperator:
		op := n.ChildByFieldName("operator")
		if op == nil {
			return false
		}

		if _, ok := vectorOps[t.Content(op)]; !ok {
			return false
		}

		return isElementwiseExpr(t, n.ChildByFieldName("left"), loopVar) &&
			isElementwiseExpr(t, n.ChildByFieldName("right"), loopVar)
	}

	return false
}

// readsWrittenScalar reports whether the expression reads a plain name the
// loop body also writes (loop-carried state).
func readsWrittenScalar(t *adapter.ParseTree, rhs *sitter.Node, loopVar string, written map[string]struct{}) bool {
	if rhs == nil {
		return false
	}

	if rhs.Type() == nodeSubscript {
		// Container reads are elementwise; only the index identifier below
		// would be a name read, and it is the loop variable by construction.
		return false
	}

	if rhs.Type() == nodeIdentifier {
		name := t.Content(rhs)
		if name == loopVar {
			return false
		}

		_, hit := written[name]

		return hit
	}

	for i := 0; i < int(rhs.NamedChildCount()); i++ {
		if readsWrittenScalar(t, rhs.NamedChild(i), loopVar, written) {
			return true
		}
	}

	return false
}

// DetectVectorizableLoop reports an elementwise loop with no cross-iteration
// dependency.
func DetectVectorizableLoop(t *adapter.ParseTree, n *sitter.Node, id m.NodeID) []m.Finding {
	vl, ok := ClassifyVectorLoop(t, n)
	if !ok {
		return nil
	}

	indexes := make([]int, 0, len(vl.Stmts))

	for i, stmt := range vl.Stmts {
		if stmt.Vectorizable {
			indexes = append(indexes, i)
		}
	}

	return []m.Finding{{
		Kind:   m.FindingVectorizableLoop,
		Anchor: t.AnchorOf(n, id),
		Evidence: m.Evidence{
			LoopVars:         []string{vl.Loop.Var},
			Container:        vl.Loop.RangeOf,
			VectorizableStmt: indexes,
			Confidence:       1,
		},
	}}
}
