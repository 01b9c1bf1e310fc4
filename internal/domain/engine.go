package domain

import (
	"fmt"
	"log/slog"
	"sort"

	"optipy.dev/pkg/optipy/internal/adapter"
	"optipy.dev/pkg/optipy/internal/domain/rules"
	m "optipy.dev/pkg/optipy/internal/model"
)

// Engine orchestrates rule application and regeneration of transformed
// source. Conflicts between candidate patches resolve by anchor overlap:
// the earlier rule in the priority order {Flatten, Vectorize, Cache} wins
// and the loser is recorded as superseded, which is a normal outcome.
type Engine interface {
	// Plan runs the rule set over the findings and returns the conflict-free
	// patch plan plus the superseded candidates.
	Plan(tree *adapter.ParseTree, findings []m.Finding) (applied, superseded []m.Patch, err error)

	// Render regenerates transformed text for any subset of planned patches.
	// Rendering always starts from the pristine original, which keeps every
	// anchor valid and makes per-patch rollback cheap.
	Render(tree *adapter.ParseTree, patches []m.Patch) (string, error)
}

type engine struct {
	parser  adapter.PythonFileAdapter
	rules   map[m.FindingKind]rules.Rule
	enabled map[m.FindingKind]bool
}

// NewEngine constructs an Engine over the given rule set; enabledKinds
// restricts which finding kinds may produce patches (nil enables all).
func NewEngine(parser adapter.PythonFileAdapter, ruleSet []rules.Rule, enabledKinds []m.FindingKind) Engine {
	byKind := make(map[m.FindingKind]rules.Rule, len(ruleSet))
	for _, rule := range ruleSet {
		byKind[rule.Kind()] = rule
	}

	var enabled map[m.FindingKind]bool

	if enabledKinds != nil {
		enabled = make(map[m.FindingKind]bool, len(enabledKinds))
		for _, kind := range enabledKinds {
			enabled[kind] = true
		}
	}

	return &engine{parser: parser, rules: byKind, enabled: enabled}
}

type candidate struct {
	patch    m.Patch
	priority int
}

func (e *engine) Plan(tree *adapter.ParseTree, findings []m.Finding) ([]m.Patch, []m.Patch, error) {
	candidates := make([]candidate, 0, len(findings))

	for _, finding := range findings {
		rule, ok := e.rules[finding.Kind]
		if !ok || !e.kindEnabled(finding.Kind) {
			continue
		}

		patch, err := rule.Apply(tree, finding)
		if err != nil {
			return nil, nil, fmt.Errorf("apply %s to %s: %w", finding.Kind, finding.ID, err)
		}

		if patch == nil {
			continue
		}

		candidates = append(candidates, candidate{patch: *patch, priority: rule.Priority()})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].priority != candidates[j].priority {
			return candidates[i].priority < candidates[j].priority
		}

		return candidates[i].patch.Anchor.Span.StartByte < candidates[j].patch.Anchor.Span.StartByte
	})

	applied := make([]m.Patch, 0, len(candidates))
	superseded := make([]m.Patch, 0)

	for _, cand := range candidates {
		if winner := overlapping(applied, cand.patch); winner != "" {
			slog.Debug("patch superseded by overlap",
				"patch", cand.patch.ID, "winner", winner)
			superseded = append(superseded, cand.patch)

			continue
		}

		applied = append(applied, cand.patch)
	}

	sort.Slice(applied, func(i, j int) bool {
		return applied[i].Anchor.Span.StartByte < applied[j].Anchor.Span.StartByte
	})

	return applied, superseded, nil
}

func (e *engine) kindEnabled(kind m.FindingKind) bool {
	if e.enabled == nil {
		return true
	}

	return e.enabled[kind]
}

func overlapping(kept []m.Patch, patch m.Patch) string {
	for _, existing := range kept {
		if existing.Anchor.Span.Overlaps(patch.Anchor.Span) {
			return existing.ID
		}
	}

	return ""
}

func (e *engine) Render(tree *adapter.ParseTree, patches []m.Patch) (string, error) {
	return e.parser.Splice(tree, patches)
}
