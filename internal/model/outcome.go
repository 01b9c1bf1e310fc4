package model

import "time"

// Verdict is the validation decision for one patch.
type Verdict string

const (
	// VerdictAccepted means the patch executed, preserved output and paid off.
	VerdictAccepted Verdict = "accepted"
	// VerdictRejectedUnsafe means observable outputs differed.
	VerdictRejectedUnsafe Verdict = "rejected_unsafe"
	// VerdictRejectedNoBenefit means outputs matched but the improvement was
	// below threshold; the patch stays in the report as a suggestion only.
	VerdictRejectedNoBenefit Verdict = "rejected_no_benefit"
	// VerdictRejectedExecutionFailed means the candidate raised, timed out or
	// exited abnormally while the baseline succeeded.
	VerdictRejectedExecutionFailed Verdict = "rejected_execution_failed"
)

// Cause tags for RejectedExecutionFailed, distinguishing resource exhaustion
// from plain crashes.
const (
	CauseTimeout  = "timeout"
	CauseExit     = "exit"
	CauseBaseline = "baseline"
)

// Measurement holds the observable output and cost of one isolated run.
type Measurement struct {
	Runtime      time.Duration
	PeakMemoryKB int64
	Output       string
}

// ValidationResult records the empirical comparison for one patch.
type ValidationResult struct {
	PatchID      string
	Executed     bool
	OutputsMatch bool
	Baseline     Measurement
	Candidate    Measurement
	Verdict      Verdict
	Cause        string
}

// OutcomeStatus describes how far a file's pipeline got.
type OutcomeStatus string

const (
	// StatusComplete means every stage ran.
	StatusComplete OutcomeStatus = "complete"
	// StatusFailed means the file was skipped (e.g. a parse error); the batch
	// continues.
	StatusFailed OutcomeStatus = "failed"
	// StatusIncomplete means processing was cancelled mid-file.
	StatusIncomplete OutcomeStatus = "incomplete"
)

// Outcome is the per-file result handed read-only to report consumers.
type Outcome struct {
	Source     SourceUnit
	Status     OutcomeStatus
	Err        string
	Findings   []Finding
	Applied    []Patch
	Superseded []Patch
	Results    []ValidationResult
	// Optimized is the final transformed text; empty when no patch was
	// accepted (such files are never rewritten on disk).
	Optimized string
}

// AcceptedCount returns how many patches were accepted for this file.
func (o Outcome) AcceptedCount() int {
	count := 0

	for _, result := range o.Results {
		if result.Verdict == VerdictAccepted {
			count++
		}
	}

	return count
}

// Speedup returns the baseline/candidate runtime ratio of the accepted run,
// or 0 when nothing was accepted or measured.
func (o Outcome) Speedup() float64 {
	for _, result := range o.Results {
		if result.Verdict == VerdictAccepted && result.Candidate.Runtime > 0 {
			return float64(result.Baseline.Runtime) / float64(result.Candidate.Runtime)
		}
	}

	return 0
}
