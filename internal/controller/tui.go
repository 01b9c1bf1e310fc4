package controller

import (
	"context"
	"fmt"
	"io"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	m "optipy.dev/pkg/optipy/internal/model"
)

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	pathStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	acceptedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	rejectedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	dimStyle      = lipgloss.NewStyle().Faint(true)
)

// TUI implements UI with an interactive Bubble Tea progress display. Tables
// are printed after the program exits so they survive in the scrollback.
type TUI struct {
	output  io.Writer
	program *tea.Program
	done    chan struct{}
}

// NewTUI creates a new TUI writing to output.
func NewTUI(output io.Writer) *TUI {
	return &TUI{output: output}
}

// Start launches the Bubble Tea program in the background.
func (t *TUI) Start(ctx context.Context, options ...StartOption) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	cfg := StartConfig{}
	for _, opt := range options {
		opt(&cfg)
	}

	model := newRunModel(cfg)
	t.program = tea.NewProgram(model, tea.WithOutput(t.output), tea.WithContext(ctx))
	t.done = make(chan struct{})

	go func() {
		defer close(t.done)

		_, _ = t.program.Run()
	}()

	return nil
}

// Close stops the program.
func (t *TUI) Close(ctx context.Context) {
	if t.program == nil {
		return
	}

	t.program.Quit()
	t.Wait(ctx)
}

// Wait blocks until the program has exited.
func (t *TUI) Wait(ctx context.Context) {
	if t.done == nil {
		return
	}

	select {
	case <-ctx.Done():
	case <-t.done:
	}
}

// DisplayRunInfo feeds the run configuration into the progress view.
func (t *TUI) DisplayRunInfo(ctx context.Context, files int, threads int) {
	if ctx.Err() != nil || t.program == nil {
		return
	}

	t.program.Send(runInfoMsg{files: files, threads: threads})
}

// DisplayFileOutcome advances the progress bar and logs the file line.
func (t *TUI) DisplayFileOutcome(ctx context.Context, outcome m.Outcome) {
	if ctx.Err() != nil || t.program == nil {
		return
	}

	t.program.Send(outcomeMsg{outcome: outcome})
}

// DisplayFindings shuts the live view down and prints the findings table.
func (t *TUI) DisplayFindings(ctx context.Context, outcomes []m.Outcome, err error) error {
	t.Close(ctx)

	if err != nil {
		fmt.Fprintf(t.output, "analysis error: %v\n", err)
		return err
	}

	fmt.Fprintf(t.output, "\n%s", renderFindingsTable(outcomes))

	return nil
}

// DisplaySummary shuts the live view down and prints the summary table plus
// per-patch verdict lines.
func (t *TUI) DisplaySummary(ctx context.Context, outcomes []m.Outcome) error {
	t.Close(ctx)

	fmt.Fprintf(t.output, "\n%s", renderSummaryTable(outcomes))

	for _, outcome := range sortedByPath(outcomes) {
		for _, result := range outcome.Results {
			style := rejectedStyle
			if result.Verdict == m.VerdictAccepted {
				style = acceptedStyle
			}

			fmt.Fprintln(t.output, style.Render(verdictLine(outcome, result)))
		}
	}

	return nil
}

type runInfoMsg struct {
	files   int
	threads int
}

type outcomeMsg struct {
	outcome m.Outcome
}

// runModel is the Bubble Tea model for the live optimization view.
type runModel struct {
	spinner  spinner.Model
	progress progress.Model

	mode     StartMode
	total    int
	finished int
	accepted int
	lines    []string
	quitting bool
}

func newRunModel(cfg StartConfig) runModel {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = titleStyle

	return runModel{
		spinner:  sp,
		progress: progress.New(progress.WithDefaultGradient()),
		mode:     cfg.mode,
		total:    cfg.total,
	}
}

func (rm runModel) Init() tea.Cmd {
	return rm.spinner.Tick
}

func (rm runModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "q" || msg.String() == "ctrl+c" {
			rm.quitting = true
			return rm, tea.Quit
		}

	case runInfoMsg:
		rm.total = msg.files
		rm.lines = append(rm.lines,
			dimStyle.Render(fmt.Sprintf("optimizing %d file(s) with %d worker(s)", msg.files, msg.threads)))

	case outcomeMsg:
		rm.finished++
		rm.accepted += msg.outcome.AcceptedCount()
		rm.lines = append(rm.lines, outcomeLine(msg.outcome))

		if rm.total > 0 && rm.finished >= rm.total {
			rm.quitting = true
			return rm, tea.Quit
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		rm.spinner, cmd = rm.spinner.Update(msg)

		return rm, cmd

	case progress.FrameMsg:
		model, cmd := rm.progress.Update(msg)
		if p, ok := model.(progress.Model); ok {
			rm.progress = p
		}

		return rm, cmd
	}

	return rm, nil
}

func (rm runModel) View() string {
	header := titleStyle.Render("optipy")
	if rm.mode == ModeFindings {
		header += dimStyle.Render("  analysis")
	}

	view := header + "\n"

	for _, line := range rm.lines {
		view += line + "\n"
	}

	if rm.quitting {
		return view
	}

	ratio := 0.0
	if rm.total > 0 {
		ratio = float64(rm.finished) / float64(rm.total)
	}

	view += fmt.Sprintf("%s %d/%d files, %d patch(es) accepted\n%s\n",
		rm.spinner.View(), rm.finished, rm.total, rm.accepted, rm.progress.ViewAs(ratio))

	return view
}

func outcomeLine(outcome m.Outcome) string {
	path := pathStyle.Render(string(outcome.Source.ShortPath))

	switch outcome.Status {
	case m.StatusFailed:
		return fmt.Sprintf("%s %s", path, rejectedStyle.Render("skipped: "+outcome.Err))
	case m.StatusIncomplete:
		return fmt.Sprintf("%s %s", path, dimStyle.Render("cancelled"))
	default:
		return fmt.Sprintf("%s %d finding(s), %s", path, len(outcome.Findings),
			acceptedStyle.Render(fmt.Sprintf("%d accepted", outcome.AcceptedCount())))
	}
}
