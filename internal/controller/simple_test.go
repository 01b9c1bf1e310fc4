package controller

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"

	m "optipy.dev/pkg/optipy/internal/model"
)

func newBufferedUI() (*SimpleUI, *bytes.Buffer) {
	out := &bytes.Buffer{}
	cmd := &cobra.Command{}
	cmd.SetOut(out)

	return NewSimpleUI(cmd), out
}

func sampleOutcomes() []m.Outcome {
	return []m.Outcome{
		{
			Source: m.SourceUnit{Origin: "b.py", ShortPath: "b.py"},
			Status: m.StatusComplete,
			Findings: []m.Finding{{
				ID:       "NEST_1",
				Kind:     m.FindingNestedLoop,
				Anchor:   m.Anchor{Span: m.Span{StartLine: 3, EndLine: 5}},
				Evidence: m.Evidence{Confidence: 1},
			}},
			Applied: []m.Patch{{ID: "FLATTEN_NEST_1", Kind: m.FindingNestedLoop}},
			Results: []m.ValidationResult{{
				PatchID:      "FLATTEN_NEST_1",
				Executed:     true,
				OutputsMatch: true,
				Baseline:     m.Measurement{Runtime: 200 * time.Millisecond},
				Candidate:    m.Measurement{Runtime: 50 * time.Millisecond},
				Verdict:      m.VerdictAccepted,
			}},
		},
		{
			Source: m.SourceUnit{Origin: "a.py", ShortPath: "a.py"},
			Status: m.StatusFailed,
			Err:    "python parse error",
		},
	}
}

func TestSimpleUI_DisplayFindings(t *testing.T) {
	ui, out := newBufferedUI()

	if err := ui.DisplayFindings(context.Background(), sampleOutcomes(), nil); err != nil {
		t.Fatalf("DisplayFindings() error = %v", err)
	}

	output := out.String()

	for _, want := range []string{"b.py", "nested_loop", "NEST_1", "Total", "1"} {
		if !strings.Contains(output, want) {
			t.Fatalf("DisplayFindings() missing %q:\n%s", want, output)
		}
	}
}

func TestSimpleUI_DisplaySummary(t *testing.T) {
	ui, out := newBufferedUI()

	if err := ui.DisplaySummary(context.Background(), sampleOutcomes()); err != nil {
		t.Fatalf("DisplaySummary() error = %v", err)
	}

	output := out.String()

	for _, want := range []string{"b.py", "4.00x", "accepted", "failed", "FLATTEN_NEST_1"} {
		if !strings.Contains(output, want) {
			t.Fatalf("DisplaySummary() missing %q:\n%s", want, output)
		}
	}

	// Paths render in sorted order regardless of outcome order.
	if strings.Index(output, "a.py") > strings.Index(output, "b.py") {
		t.Fatalf("DisplaySummary() not sorted by path:\n%s", output)
	}
}

func TestSimpleUI_DisplayFileOutcome(t *testing.T) {
	ui, out := newBufferedUI()

	ui.DisplayFileOutcome(context.Background(), sampleOutcomes()[1])

	if !strings.Contains(out.String(), "skipped (python parse error)") {
		t.Fatalf("DisplayFileOutcome() output:\n%s", out.String())
	}
}

func TestSimpleUI_StartClosedContext(t *testing.T) {
	ui, _ := newBufferedUI()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := ui.Start(ctx); err == nil {
		t.Fatalf("Start() expected an error for a cancelled context")
	}
}
