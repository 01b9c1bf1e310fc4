package adapter

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"time"
)

// RunResult captures the observable output and cost of one isolated script
// execution.
type RunResult struct {
	Output       string
	Stderr       string
	ExitErr      string
	TimedOut     bool
	Runtime      time.Duration
	PeakMemoryKB int64
}

// Succeeded reports whether the script ran to completion with exit code 0.
func (r RunResult) Succeeded() bool {
	return r.ExitErr == "" && !r.TimedOut
}

// ScriptRunnerAdapter abstracts isolated execution of candidate scripts so
// the validator never blocks on anything but a bounded child process.
type ScriptRunnerAdapter interface {
	// RunScript executes the interpreter on scriptPath inside workDir with a
	// hard wall-clock timeout. A timeout or non-zero exit is reported in the
	// RunResult, not as an error; the error return is reserved for failures
	// to launch at all.
	RunScript(ctx context.Context, workDir, scriptPath string, timeout time.Duration) (RunResult, error)
}

// LocalScriptRunnerAdapter runs scripts with a local Python interpreter via
// os/exec.
type LocalScriptRunnerAdapter struct {
	interpreter string
}

// NewLocalScriptRunnerAdapter constructs a runner for the given interpreter
// binary ("python3" when empty).
func NewLocalScriptRunnerAdapter(interpreter string) *LocalScriptRunnerAdapter {
	if interpreter == "" {
		interpreter = "python3"
	}

	return &LocalScriptRunnerAdapter{interpreter: interpreter}
}

// RunScript executes the script, capturing stdout for output comparison and
// metering wall-clock runtime plus the child's peak resident set size.
func (a *LocalScriptRunnerAdapter) RunScript(ctx context.Context, workDir, scriptPath string, timeout time.Duration) (RunResult, error) {
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, a.interpreter, scriptPath)
	cmd.Dir = workDir

	var stdout, stderr bytes.Buffer

	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	elapsed := time.Since(start)

	result := RunResult{
		Output:  stdout.String(),
		Stderr:  stderr.String(),
		Runtime: elapsed,
	}

	if cmd.ProcessState != nil {
		result.PeakMemoryKB = peakRSSKB(cmd.ProcessState)
	}

	if err != nil {
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			result.TimedOut = true
			result.ExitErr = context.DeadlineExceeded.Error()
		} else {
			result.ExitErr = err.Error()
		}
	}

	return result, nil
}
