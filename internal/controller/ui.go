// Package controller provides output adapters for displaying analysis and
// optimization results.
package controller

import (
	"context"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	m "optipy.dev/pkg/optipy/internal/model"
)

// StartMode defines the mode of operation for the UI.
type StartMode int

// Available StartMode values.
const (
	ModeFindings StartMode = iota
	ModeOptimize
)

// StartOption is a functional option for Start method.
type StartOption func(*StartConfig)

// StartConfig holds configuration for starting the UI.
type StartConfig struct {
	mode  StartMode
	total int
}

// WithFindingsMode sets the UI to analysis-only mode.
func WithFindingsMode() StartOption {
	return func(c *StartConfig) {
		c.mode = ModeFindings
	}
}

// WithOptimizeMode sets the UI to full optimization mode over total files.
func WithOptimizeMode(total int) StartOption {
	return func(c *StartConfig) {
		c.mode = ModeOptimize
		c.total = total
	}
}

// UI defines the interface for displaying per-file outcomes.
// Implementations can use different output methods (simple text, TUI, etc).
type UI interface {
	Start(ctx context.Context, options ...StartOption) error
	Close(ctx context.Context)
	Wait(ctx context.Context) // Wait for UI to finish (user closes it)
	DisplayRunInfo(ctx context.Context, files int, threads int)
	DisplayFileOutcome(ctx context.Context, outcome m.Outcome)
	DisplayFindings(ctx context.Context, outcomes []m.Outcome, err error) error
	DisplaySummary(ctx context.Context, outcomes []m.Outcome) error
}

// NewUI picks the interactive TUI when stdout is a terminal and plain output
// was not forced, falling back to SimpleUI otherwise.
func NewUI(cmd *cobra.Command, forceSimple bool) UI {
	if !forceSimple && IsTTY() {
		return NewTUI(os.Stdout)
	}

	return NewSimpleUI(cmd)
}

// IsTTY reports whether stdout is attached to a terminal.
func IsTTY() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}
