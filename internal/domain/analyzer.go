// Package domain contains the core detect → transform → validate pipeline.
package domain

import (
	"fmt"
	"sort"

	sitter "github.com/smacker/go-tree-sitter"

	"optipy.dev/pkg/optipy/internal/adapter"
	"optipy.dev/pkg/optipy/internal/domain/patterns"
	m "optipy.dev/pkg/optipy/internal/model"
)

// Analyzer walks a parsed tree and emits a finite, deterministic,
// source-ordered sequence of findings. Pure function of the tree; a shape no
// detector classifies simply yields nothing.
type Analyzer interface {
	Analyze(tree *adapter.ParseTree) []m.Finding
}

type analyzer struct {
	highIterationThreshold int64
}

// NewAnalyzer constructs an Analyzer. threshold is the trip count above
// which a counted loop is reported as high-iteration.
func NewAnalyzer(highIterationThreshold int64) Analyzer {
	return &analyzer{highIterationThreshold: highIterationThreshold}
}

// Finding ID prefixes, one per kind.
var findingPrefixes = map[m.FindingKind]string{
	m.FindingHighIterationLoop:   "HILOOP",
	m.FindingNestedLoop:          "NEST",
	m.FindingRepeatedComputation: "REPEAT",
	m.FindingVectorizableLoop:    "VECT",
}

func (a *analyzer) Analyze(tree *adapter.ParseTree) []m.Finding {
	findings := make([]m.Finding, 0)

	// Node-local detectors, dispatched per loop during one walk. Tie rule:
	// DetectNestedLoop defers to the vectorize family when the inner level
	// vectorizes, so a nest never produces both findings.
	tree.Walk(func(n *sitter.Node, id m.NodeID) bool {
		findings = append(findings, patterns.DetectHighIterationLoop(tree, n, id, a.highIterationThreshold)...)
		findings = append(findings, patterns.DetectNestedLoop(tree, n, id)...)
		findings = append(findings, patterns.DetectVectorizableLoop(tree, n, id)...)

		return true
	})

	// Module-global detector.
	findings = append(findings, patterns.DetectRepeatedComputations(tree)...)

	sort.SliceStable(findings, func(i, j int) bool {
		left, right := findings[i].Anchor.Span, findings[j].Anchor.Span
		if left.StartByte != right.StartByte {
			return left.StartByte < right.StartByte
		}

		return findings[i].Kind < findings[j].Kind
	})

	source := m.Path(tree.Filename)
	counters := make(map[m.FindingKind]int)

	for i := range findings {
		counters[findings[i].Kind]++
		findings[i].ID = fmt.Sprintf("%s_%d", findingPrefixes[findings[i].Kind], counters[findings[i].Kind])
		findings[i].Source = source
	}

	return findings
}
