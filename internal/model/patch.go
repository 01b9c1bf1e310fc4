package model

// SafetyLevel states how a patch's equivalence is guaranteed.
type SafetyLevel string

const (
	// SafetyProven marks patches whose equivalence is structural.
	SafetyProven SafetyLevel = "proven"
	// SafetyHeuristic marks patches that are only probabilistically safe and
	// must survive empirical validation.
	SafetyHeuristic SafetyLevel = "heuristic"
)

// Patch is a proposed, anchored replacement implementing one Finding's fix.
// Two patches whose anchors overlap are mutually exclusive.
type Patch struct {
	ID          string
	FindingID   string
	Kind        FindingKind
	Anchor      Anchor
	Replacement string
	// Imports lists module-level import statements the replacement relies on
	// ("import itertools", "import numpy as np", ...). The parser adapter
	// injects the ones the source is missing.
	Imports   []string
	Rationale string
	Safety    SafetyLevel
}
