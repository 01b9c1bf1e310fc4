package rules

import (
	"fmt"
	"strconv"

	sitter "github.com/smacker/go-tree-sitter"

	"optipy.dev/pkg/optipy/internal/adapter"
	"optipy.dev/pkg/optipy/internal/domain/patterns"
	m "optipy.dev/pkg/optipy/internal/model"
)

// CacheRule memoizes a repeatedly-computed callee by prepending
// functools.lru_cache to its module-level definition. Purity cannot be
// proven statically, so the patch is always Heuristic: an impure callee is
// expected to be caught and vetoed by validation, and that unsoundness is a
// permanent, documented property of this rule.
type CacheRule struct{}

// NewCacheRule constructs a CacheRule.
func NewCacheRule() *CacheRule {
	return &CacheRule{}
}

// Kind implements Rule.
func (r *CacheRule) Kind() m.FindingKind {
	return m.FindingRepeatedComputation
}

// Priority implements Rule.
func (r *CacheRule) Priority() int {
	return PriorityCache
}

// Apply implements Rule. It declines when the callee has no module-level
// definition to decorate (builtins, imports) or is already decorated.
// Several findings against the same callee produce identically-anchored
// patches, which the engine collapses to one.
func (r *CacheRule) Apply(tree *adapter.ParseTree, finding m.Finding) (*m.Patch, error) {
	callee := finding.Evidence.Callee
	if callee == "" {
		return nil, nil
	}

	def, id := moduleFunctionDef(tree, callee)
	if def == nil {
		return nil, nil
	}

	indent := patterns.LineIndent(tree.Source, int(def.StartByte()))

	return &m.Patch{
		ID:          "CACHE_" + finding.ID,
		FindingID:   finding.ID,
		Kind:        finding.Kind,
		Anchor:      tree.AnchorOf(def, id),
		Replacement: "@functools.lru_cache(maxsize=None)\n" + indent + tree.Content(def),
		Imports:     []string{"import functools"},
		Rationale: fmt.Sprintf("memoized %s(%s), called at %d sites with identical arguments",
			callee, joinArgs(finding.Evidence.Args), len(finding.Evidence.CallSites)),
		Safety: m.SafetyHeuristic,
	}, nil
}

// moduleFunctionDef finds an undecorated module-level def of the callee.
func moduleFunctionDef(tree *adapter.ParseTree, callee string) (*sitter.Node, m.NodeID) {
	root := tree.Root()

	for i := 0; i < int(root.NamedChildCount()); i++ {
		stmt := root.NamedChild(i)
		if stmt.Type() != "function_definition" {
			continue
		}

		name := stmt.ChildByFieldName("name")
		if name != nil && tree.Content(name) == callee {
			return stmt, m.NodeID("0." + strconv.Itoa(i))
		}
	}

	return nil, ""
}

func joinArgs(args []string) string {
	out := ""

	for i, arg := range args {
		if i > 0 {
			out += ", "
		}

		out += arg
	}

	return out
}
