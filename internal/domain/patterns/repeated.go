package patterns

import (
	"sort"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"optipy.dev/pkg/optipy/internal/adapter"
	m "optipy.dev/pkg/optipy/internal/model"
)

// impureBuiltins are callables that are never worth memoizing: their value
// depends on external state or their point is the side effect.
var impureBuiltins = map[string]struct{}{
	"print": {}, "input": {}, "open": {}, "exec": {}, "eval": {},
	"next": {}, "iter": {}, "id": {}, "vars": {}, "globals": {}, "locals": {},
	"range": {}, "len": {}, "enumerate": {}, "zip": {},
}

type callSite struct {
	node *sitter.Node
	id   m.NodeID
}

type callGroup struct {
	callee string
	args   []string
	names  map[string]struct{}
	sites  []callSite
}

// DetectRepeatedComputations scans the whole module for calls with a fixed
// plain-identifier callee and an identical literal/identifier argument tuple
// at two or more sites, with no reassignment of the callee or any argument
// name between the first and last site.
func DetectRepeatedComputations(t *adapter.ParseTree) []m.Finding {
	groups := make(map[string]*callGroup)
	order := make([]string, 0)

	t.Walk(func(n *sitter.Node, id m.NodeID) bool {
		if n.Type() != nodeCall {
			return true
		}

		callee, args, names, ok := stableCall(t, n)
		if !ok {
			return true
		}

		key := callee + "(" + strings.Join(args, ", ") + ")"

		group, seen := groups[key]
		if !seen {
			group = &callGroup{callee: callee, args: args, names: names}
			groups[key] = group
			order = append(order, key)
		}

		group.sites = append(group.sites, callSite{node: n, id: id})

		return true
	})

	assignments := collectAssignments(t)
	findings := make([]m.Finding, 0)

	for _, key := range order {
		group := groups[key]
		if len(group.sites) < 2 {
			continue
		}

		first := group.sites[0]
		last := group.sites[len(group.sites)-1]

		if reassignedBetween(assignments, group.names, int(first.node.StartByte()), int(last.node.EndByte())) {
			continue
		}

		spans := make([]m.Span, 0, len(group.sites))
		for _, site := range group.sites {
			spans = append(spans, t.SpanOf(site.node))
		}

		findings = append(findings, m.Finding{
			Kind:   m.FindingRepeatedComputation,
			Anchor: t.AnchorOf(first.node, first.id),
			Evidence: m.Evidence{
				Callee:    group.callee,
				Args:      group.args,
				CallSites: spans,
			},
		})
	}

	sort.SliceStable(findings, func(i, j int) bool {
		return findings[i].Anchor.Span.StartByte < findings[j].Anchor.Span.StartByte
	})

	return findings
}

// stableCall matches a call whose callee is a plain identifier and whose
// arguments are all literals or identifiers, so two textually identical
// sites are guaranteed to compute the same argument tuple.
func stableCall(t *adapter.ParseTree, call *sitter.Node) (string, []string, map[string]struct{}, bool) {
	fn := call.ChildByFieldName("function")
	if fn == nil || fn.Type() != nodeIdentifier {
		return "", nil, nil, false
	}

	callee := t.Content(fn)
	if _, impure := impureBuiltins[callee]; impure {
		return "", nil, nil, false
	}

	names := map[string]struct{}{callee: {}}
	args := make([]string, 0)

	for _, arg := range CallArgs(call) {
		switch arg.Type() {
		case nodeInteger, nodeFloat, nodeString, nodeTrue, nodeFalse, nodeNone:
		case nodeIdentifier:
			names[t.Content(arg)] = struct{}{}
		default:
			return "", nil, nil, false
		}

		args = append(args, t.Content(arg))
	}

	return callee, args, names, true
}

type assignment struct {
	name string
	pos  int
}

func collectAssignments(t *adapter.ParseTree) []assignment {
	var assignments []assignment

	t.Walk(func(n *sitter.Node, _ m.NodeID) bool {
		switch n.Type() {
		case nodeAssignment, nodeAugAssignment, nodeForStatement:
			targets := make(map[string]struct{})
			recordTarget(t, n.ChildByFieldName("left"), targets)

			for name := range targets {
				assignments = append(assignments, assignment{name: name, pos: int(n.StartByte())})
			}
		}

		return true
	})

	return assignments
}

// reassignedBetween is a conservative positional approximation of
// reachability: any write to a relevant name located between the first and
// last call site disqualifies the group.
func reassignedBetween(assignments []assignment, names map[string]struct{}, start, end int) bool {
	for _, a := range assignments {
		if a.pos <= start || a.pos >= end {
			continue
		}

		if _, hit := names[a.name]; hit {
			return true
		}
	}

	return false
}
