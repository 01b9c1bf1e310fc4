package patterns

import (
	sitter "github.com/smacker/go-tree-sitter"

	"optipy.dev/pkg/optipy/internal/adapter"
	m "optipy.dev/pkg/optipy/internal/model"
)

// Confidence assigned to high-iteration findings: bounds folded from
// literals are near-certain, unbounded ranges are a weak hint.
const (
	staticBoundConfidence  = 0.9
	unknownBoundConfidence = 0.4
)

// DetectHighIterationLoop reports a counted loop whose static trip count
// exceeds threshold, or whose range bound cannot be folded at all.
func DetectHighIterationLoop(t *adapter.ParseTree, n *sitter.Node, id m.NodeID, threshold int64) []m.Finding {
	loop, ok := AsCountedLoop(t, n)
	if !ok {
		return nil
	}

	evidence := m.Evidence{LoopVars: []string{loop.Var}}

	if trips, static := RangeTripCount(t, loop.Range); static {
		if trips <= threshold {
			return nil
		}

		evidence.Iterations = trips
		evidence.Bounded = true
		evidence.Confidence = staticBoundConfidence
	} else {
		evidence.Bounded = false
		evidence.Confidence = unknownBoundConfidence
	}

	return []m.Finding{{
		Kind:     m.FindingHighIterationLoop,
		Anchor:   t.AnchorOf(n, id),
		Evidence: evidence,
	}}
}
