// Package model defines the data structures shared across the optimization
// pipeline: findings, patches, validation results and per-file outcomes.
package model

// FindingKind classifies an inefficiency pattern.
type FindingKind string

const (
	// FindingHighIterationLoop is a counted loop whose trip count exceeds the
	// configured threshold, or cannot be bounded statically.
	FindingHighIterationLoop FindingKind = "high_iteration_loop"
	// FindingNestedLoop is a counted loop holding exactly one inner counted
	// loop with no data dependency between the levels.
	FindingNestedLoop FindingKind = "nested_loop"
	// FindingRepeatedComputation is a call with identical arguments observed
	// at two or more sites without intervening reassignment.
	FindingRepeatedComputation FindingKind = "repeated_computation"
	// FindingVectorizableLoop is an elementwise loop with no cross-iteration
	// dependency.
	FindingVectorizableLoop FindingKind = "vectorizable_loop"
)

// AllFindingKinds lists every kind the analyzer can emit, in rule priority
// order where a rule exists.
var AllFindingKinds = []FindingKind{
	FindingNestedLoop,
	FindingVectorizableLoop,
	FindingRepeatedComputation,
	FindingHighIterationLoop,
}

// ParseFindingKind maps a config/CLI string to a FindingKind.
func ParseFindingKind(s string) (FindingKind, bool) {
	switch FindingKind(s) {
	case FindingHighIterationLoop, FindingNestedLoop, FindingRepeatedComputation, FindingVectorizableLoop:
		return FindingKind(s), true
	}

	return "", false
}

// Evidence carries kind-specific metadata for a Finding. The pattern grammar
// is fixed, so this is a closed flat record rather than an open interface;
// detectors fill only the fields their kind defines.
type Evidence struct {
	// High-iteration loops.
	Iterations int64
	Bounded    bool
	Confidence float64

	// Loop variables, outer first.
	LoopVars []string

	// Vectorizable loops: container driving the range(len(...)) bound and
	// the body statement indexes that vectorize.
	Container        string
	VectorizableStmt []int

	// Nested loops: span of the inner loop.
	InnerSpan Span

	// Repeated computations.
	Callee    string
	Args      []string
	CallSites []Span
}

// Finding is a located, classified instance of an inefficiency pattern.
// Findings are produced in source order and are immutable once created.
type Finding struct {
	ID       string
	Kind     FindingKind
	Source   Path
	Anchor   Anchor
	Evidence Evidence
}
