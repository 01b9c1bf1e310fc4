// Package rules holds the transformation rule set: one pure rule per finding
// kind, each returning a patch or declining. Declining is a normal outcome,
// not a fault.
package rules

import (
	sitter "github.com/smacker/go-tree-sitter"

	"optipy.dev/pkg/optipy/internal/adapter"
	m "optipy.dev/pkg/optipy/internal/model"
)

// Rule priority order; when two candidate patches overlap, the lower number
// wins and the other is recorded as superseded.
const (
	PriorityFlatten = iota
	PriorityVectorize
	PriorityCache
)

// Rule turns one finding kind into patches.
type Rule interface {
	Kind() m.FindingKind
	Priority() int
	// Apply returns nil when the finding does not match the rule's guards.
	Apply(tree *adapter.ParseTree, finding m.Finding) (*m.Patch, error)
}

// DefaultRules returns the full rule set in priority order.
func DefaultRules() []Rule {
	return []Rule{
		NewFlattenRule(),
		NewVectorizeRule(),
		NewCacheRule(),
	}
}

// anchoredNode resolves a finding's anchor and verifies it still points at
// the node it was minted for.
func anchoredNode(tree *adapter.ParseTree, finding m.Finding, nodeType string) *sitter.Node {
	node := tree.NodeByID(finding.Anchor.Node)
	if node == nil || node.Type() != nodeType {
		return nil
	}

	if tree.SpanOf(node) != finding.Anchor.Span {
		return nil
	}

	return node
}
