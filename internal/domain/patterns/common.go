// Package patterns holds one detector per inefficiency pattern kind plus the
// shared syntax helpers they are built from. Detectors are pure functions of
// the tree; an unclassifiable shape simply produces no finding.
package patterns

import (
	"strconv"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"optipy.dev/pkg/optipy/internal/adapter"
)

// Python grammar node types the detectors care about.
const (
	nodeForStatement    = "for_statement"
	nodeBlock           = "block"
	nodeCall            = "call"
	nodeIdentifier      = "identifier"
	nodeInteger         = "integer"
	nodeFloat           = "float"
	nodeString          = "string"
	nodeTrue            = "true"
	nodeFalse           = "false"
	nodeNone            = "none"
	nodeBinaryOperator  = "binary_operator"
	nodeUnaryOperator   = "unary_operator"
	nodeParenthesized   = "parenthesized_expression"
	nodeSubscript       = "subscript"
	nodeAssignment      = "assignment"
	nodeAugAssignment   = "augmented_assignment"
	nodeExpressionStmt  = "expression_statement"
	nodeBreakStatement  = "break_statement"
	nodeReturnStatement = "return_statement"
	nodeFunctionDef     = "function_definition"
	nodeDecoratedDef    = "decorated_definition"
	nodeAttribute       = "attribute"
	nodeList            = "list"
)

// CountedLoop describes a `for <var> in range(...)` statement.
type CountedLoop struct {
	Node    *sitter.Node
	Var     string
	Range   *sitter.Node // the range(...) call
	Body    *sitter.Node // the block node
	RangeOf string       // container name when the bound is range(len(name))
}

// AsCountedLoop matches a for statement over a plain identifier and a
// range(...) call. A loop carrying an else clause never matches.
func AsCountedLoop(t *adapter.ParseTree, n *sitter.Node) (CountedLoop, bool) {
	if n == nil || n.Type() != nodeForStatement {
		return CountedLoop{}, false
	}

	target := n.ChildByFieldName("left")
	iter := n.ChildByFieldName("right")
	body := n.ChildByFieldName("body")

	if target == nil || iter == nil || body == nil {
		return CountedLoop{}, false
	}

	// A for/else runs its else block once the loop completes; no rewrite
	// preserves that, so the whole loop family declines.
	if n.ChildByFieldName("alternative") != nil {
		return CountedLoop{}, false
	}

	if target.Type() != nodeIdentifier || !isCallTo(t, iter, "range") {
		return CountedLoop{}, false
	}

	loop := CountedLoop{
		Node:  n,
		Var:   t.Content(target),
		Range: iter,
		Body:  body,
	}

	if args := CallArgs(iter); len(args) == 1 && isCallTo(t, args[0], "len") {
		if lenArgs := CallArgs(args[0]); len(lenArgs) == 1 && lenArgs[0].Type() == nodeIdentifier {
			loop.RangeOf = t.Content(lenArgs[0])
		}
	}

	return loop, true
}

func isCallTo(t *adapter.ParseTree, n *sitter.Node, callee string) bool {
	if n == nil || n.Type() != nodeCall {
		return false
	}

	fn := n.ChildByFieldName("function")

	return fn != nil && fn.Type() == nodeIdentifier && t.Content(fn) == callee
}

// CallArgs returns the named argument nodes of a call.
func CallArgs(call *sitter.Node) []*sitter.Node {
	argList := call.ChildByFieldName("arguments")
	if argList == nil {
		return nil
	}

	args := make([]*sitter.Node, 0, argList.NamedChildCount())
	for i := 0; i < int(argList.NamedChildCount()); i++ {
		args = append(args, argList.NamedChild(i))
	}

	return args
}

// StaticInt folds integer literals and simple arithmetic on them. Anything
// else (floats, names, calls) declines.
func StaticInt(t *adapter.ParseTree, n *sitter.Node) (int64, bool) {
	if n == nil {
		return 0, false
	}

	switch n.Type() {
	case nodeInteger:
		text := strings.ReplaceAll(t.Content(n), "_", "")

		v, err := strconv.ParseInt(text, 0, 64)
		if err != nil {
			return 0, false
		}

		return v, true

	case nodeParenthesized:
		if n.NamedChildCount() != 1 {
			return 0, false
		}

		return StaticInt(t, n.NamedChild(0))

	case nodeUnaryOperator:
		op := n.ChildByFieldName("operator")
		arg := n.ChildByFieldName("argument")

		v, ok := StaticInt(t, arg)
		if !ok || op == nil {
			return 0, false
		}

		switch t.Content(op) {
		case "-":
			return -v, true
		case "+":
			return v, true
		}

		return 0, false

	case nodeBinaryOperator:
		left, lok := StaticInt(t, n.ChildByFieldName("left"))
		right, rok := StaticInt(t, n.ChildByFieldName("right"))
		op := n.ChildByFieldName("operator")

		if !lok || !rok || op == nil {
			return 0, false
		}

		switch t.Content(op) {
		case "+":
			return left + right, true
		case "-":
			return left - right, true
		case "*":
			return left * right, true
		case "//":
			if right == 0 {
				return 0, false
			}

			return left / right, true
		case "%":
			if right == 0 {
				return 0, false
			}

			return left % right, true
		}
	}

	return 0, false
}

// RangeTripCount evaluates the trip count of a range(...) call when all
// bounds are static.
func RangeTripCount(t *adapter.ParseTree, call *sitter.Node) (int64, bool) {
	args := CallArgs(call)

	var start, stop, step int64 = 0, 0, 1

	switch len(args) {
	case 1:
		v, ok := StaticInt(t, args[0])
		if !ok {
			return 0, false
		}

		stop = v

	case 2, 3:
		a, aok := StaticInt(t, args[0])
		b, bok := StaticInt(t, args[1])

		if !aok || !bok {
			return 0, false
		}

		start, stop = a, b

		if len(args) == 3 {
			c, cok := StaticInt(t, args[2])
			if !cok || c == 0 {
				return 0, false
			}

			step = c
		}

	default:
		return 0, false
	}

	span := stop - start
	if (span > 0) != (step > 0) || span == 0 {
		return 0, true
	}

	count := span / step
	if span%step != 0 {
		count++
	}

	return count, true
}

// ContainsAny reports whether the subtree holds a node of any given type.
// The search does not descend into nested function definitions: a break or
// return inside a closure does not exit the surrounding loop.
func ContainsAny(n *sitter.Node, types ...string) bool {
	if n == nil {
		return false
	}

	for _, ty := range types {
		if n.Type() == ty {
			return true
		}
	}

	if n.Type() == nodeFunctionDef {
		return false
	}

	for i := 0; i < int(n.NamedChildCount()); i++ {
		if ContainsAny(n.NamedChild(i), types...) {
			return true
		}
	}

	return false
}

// AssignedNames collects every name the subtree writes to: plain assignment
// and augmented assignment targets, subscript container names, and loop
// variables.
func AssignedNames(t *adapter.ParseTree, n *sitter.Node, into map[string]struct{}) {
	if n == nil {
		return
	}

	switch n.Type() {
	case nodeAssignment, nodeAugAssignment:
		recordTarget(t, n.ChildByFieldName("left"), into)
	case nodeForStatement:
		recordTarget(t, n.ChildByFieldName("left"), into)
	}

	for i := 0; i < int(n.NamedChildCount()); i++ {
		AssignedNames(t, n.NamedChild(i), into)
	}
}

func recordTarget(t *adapter.ParseTree, target *sitter.Node, into map[string]struct{}) {
	if target == nil {
		return
	}

	switch target.Type() {
	case nodeIdentifier:
		into[t.Content(target)] = struct{}{}
	case nodeSubscript:
		if value := target.ChildByFieldName("value"); value != nil && value.Type() == nodeIdentifier {
			into[t.Content(value)] = struct{}{}
		}
	default:
		// Tuple targets and the like: record every identifier inside.
		for i := 0; i < int(target.NamedChildCount()); i++ {
			recordTarget(t, target.NamedChild(i), into)
		}
	}
}

// ReferencedNames collects every identifier read anywhere in the subtree.
func ReferencedNames(t *adapter.ParseTree, n *sitter.Node, into map[string]struct{}) {
	if n == nil {
		return
	}

	if n.Type() == nodeIdentifier {
		into[t.Content(n)] = struct{}{}
		return
	}

	for i := 0; i < int(n.NamedChildCount()); i++ {
		ReferencedNames(t, n.NamedChild(i), into)
	}
}

// BodyStatements returns the named statement children of a block.
func BodyStatements(body *sitter.Node) []*sitter.Node {
	if body == nil {
		return nil
	}

	stmts := make([]*sitter.Node, 0, body.NamedChildCount())
	for i := 0; i < int(body.NamedChildCount()); i++ {
		stmts = append(stmts, body.NamedChild(i))
	}

	return stmts
}

// LineIndent returns the whitespace prefix of the line containing byte
// offset pos.
func LineIndent(src []byte, pos int) string {
	start := pos
	for start > 0 && src[start-1] != '\n' {
		start--
	}

	end := start
	for end < len(src) && (src[end] == ' ' || src[end] == '\t') {
		end++
	}

	return string(src[start:end])
}
