package controller

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	m "optipy.dev/pkg/optipy/internal/model"
)

// SimpleUI implements UI using cobra Command's Println.
type SimpleUI struct {
	cmd *cobra.Command
}

// NewSimpleUI creates a new SimpleUI.
func NewSimpleUI(cmd *cobra.Command) *SimpleUI {
	return &SimpleUI{cmd: cmd}
}

// Start initializes the UI.
func (s *SimpleUI) Start(ctx context.Context, _ ...StartOption) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return nil
}

// Close finalizes the UI.
func (s *SimpleUI) Close(ctx context.Context) {
	if err := ctx.Err(); err != nil {
		return
	}
}

// Wait blocks until the UI is closed (no-op for SimpleUI).
func (s *SimpleUI) Wait(ctx context.Context) {
	if err := ctx.Err(); err != nil {
		return
	}
	// SimpleUI doesn't block - it just prints and continues
}

// DisplayRunInfo prints the run configuration.
func (s *SimpleUI) DisplayRunInfo(ctx context.Context, files int, threads int) {
	if err := ctx.Err(); err != nil {
		return
	}

	s.printf("Optimizing %d file(s) with %d worker(s)\n", files, threads)
}

// DisplayFileOutcome prints a one-line progress report for a finished file.
func (s *SimpleUI) DisplayFileOutcome(ctx context.Context, outcome m.Outcome) {
	if err := ctx.Err(); err != nil {
		return
	}

	switch outcome.Status {
	case m.StatusFailed:
		s.printf("  %s: skipped (%s)\n", outcome.Source.ShortPath, outcome.Err)
	case m.StatusIncomplete:
		s.printf("  %s: cancelled\n", outcome.Source.ShortPath)
	default:
		s.printf("  %s: %d finding(s), %d accepted\n",
			outcome.Source.ShortPath, len(outcome.Findings), outcome.AcceptedCount())
	}
}

// DisplayFindings prints the analysis results or error.
func (s *SimpleUI) DisplayFindings(ctx context.Context, outcomes []m.Outcome, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}

	if err != nil {
		s.printf("analysis error: %v\n", err)
		return err
	}

	s.printf("\n%s", renderFindingsTable(outcomes))

	return nil
}

// DisplaySummary prints the per-file optimization summary table plus verdict
// lines for every validated patch.
func (s *SimpleUI) DisplaySummary(ctx context.Context, outcomes []m.Outcome) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.printf("\n%s", renderSummaryTable(outcomes))

	for _, outcome := range sortedByPath(outcomes) {
		for _, result := range outcome.Results {
			s.printf("%s\n", verdictLine(outcome, result))
		}
	}

	return nil
}

func (s *SimpleUI) printf(format string, args ...any) {
	s.cmd.Printf(format, args...)
}

func sortedByPath(outcomes []m.Outcome) []m.Outcome {
	ordered := make([]m.Outcome, len(outcomes))
	copy(ordered, outcomes)
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].Source.ShortPath < ordered[j].Source.ShortPath
	})

	return ordered
}

func renderFindingsTable(outcomes []m.Outcome) string {
	var buf bytes.Buffer

	table := tablewriter.NewWriter(&buf)
	table.SetHeader([]string{"Path", "Line", "Kind", "Confidence", "Finding"})
	table.SetBorder(false)
	table.SetCenterSeparator("")
	table.SetColumnAlignment([]int{
		tablewriter.ALIGN_LEFT, tablewriter.ALIGN_CENTER, tablewriter.ALIGN_LEFT,
		tablewriter.ALIGN_CENTER, tablewriter.ALIGN_LEFT,
	})

	total := 0

	for _, outcome := range sortedByPath(outcomes) {
		for _, finding := range outcome.Findings {
			table.Append([]string{
				string(outcome.Source.ShortPath),
				fmt.Sprintf("%d", finding.Anchor.Span.StartLine),
				string(finding.Kind),
				fmt.Sprintf("%.2f", finding.Evidence.Confidence),
				finding.ID,
			})

			total++
		}
	}

	table.SetFooter([]string{"", "", "", "Total", fmt.Sprintf("%d", total)})
	table.Render()

	return buf.String()
}

func renderSummaryTable(outcomes []m.Outcome) string {
	var buf bytes.Buffer

	table := tablewriter.NewWriter(&buf)
	table.SetHeader([]string{"Path", "Findings", "Planned", "Accepted", "Speedup", "Status"})
	table.SetBorder(false)
	table.SetCenterSeparator("")

	accepted := 0

	for _, outcome := range sortedByPath(outcomes) {
		accepted += outcome.AcceptedCount()

		table.Append([]string{
			string(outcome.Source.ShortPath),
			fmt.Sprintf("%d", len(outcome.Findings)),
			fmt.Sprintf("%d", len(outcome.Applied)),
			fmt.Sprintf("%d", outcome.AcceptedCount()),
			speedupCell(outcome),
			string(outcome.Status),
		})
	}

	table.SetFooter([]string{
		fmt.Sprintf("Total Files %d", len(outcomes)), "", "",
		fmt.Sprintf("%d", accepted), "", "",
	})
	table.Render()

	return buf.String()
}

func speedupCell(outcome m.Outcome) string {
	if speedup := outcome.Speedup(); speedup > 0 {
		return fmt.Sprintf("%.2fx", speedup)
	}

	return "-"
}

func verdictLine(outcome m.Outcome, result m.ValidationResult) string {
	line := fmt.Sprintf("%s %s: %s", outcome.Source.ShortPath, result.PatchID, result.Verdict)

	if result.Cause != "" {
		line += fmt.Sprintf(" (%s)", result.Cause)
	}

	if result.Verdict == m.VerdictAccepted || result.Verdict == m.VerdictRejectedNoBenefit {
		line += fmt.Sprintf(" [baseline %s, candidate %s]",
			result.Baseline.Runtime.Round(time.Millisecond),
			result.Candidate.Runtime.Round(time.Millisecond))
	}

	return line
}
