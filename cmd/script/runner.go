package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/google/uuid"
)

// CheckResult is the outcome of one check.
type CheckResult struct {
	ID       string
	Title    string
	Passed   bool
	Error    string
	Duration time.Duration
}

type ResultStats struct {
	Total     int
	Passed    int
	Failed    int
	StartTime time.Time
	EndTime   time.Time
}

// RunResult is the outcome of one full run, checks kept in execution order.
type RunResult struct {
	RunID    string
	Target   string
	Results  []CheckResult
	Stats    ResultStats
	Duration time.Duration
}

// Passed reports whether every check passed.
func (r *RunResult) Passed() bool {
	return r.Stats.Failed == 0
}

// Outcomes maps check IDs to their pass/fail result.
func (r *RunResult) Outcomes() map[string]bool {
	out := make(map[string]bool, len(r.Results))
	for _, res := range r.Results {
		out[res.ID] = res.Passed
	}
	return out
}

func (r *RunResult) String() string {
	return fmt.Sprintf("Run %s: %d/%d checks passed in %s", r.RunID, r.Stats.Passed, r.Stats.Total, formatDuration(r.Duration))
}

// Runner executes checks in order. A failing check never stops the run.
type Runner struct {
	log    log.Logger
	target string
	out    io.Writer
}

func NewRunner(logger log.Logger, target string, out io.Writer) *Runner {
	if out == nil {
		out = io.Discard
	}
	return &Runner{log: logger, target: target, out: out}
}

func (r *Runner) Run(ctx context.Context, checks []Check) *RunResult {
	result := &RunResult{
		RunID:   uuid.New().String(),
		Target:  r.target,
		Results: make([]CheckResult, 0, len(checks)),
	}
	result.Stats.StartTime = time.Now()
	logger := r.log.New("run_id", result.RunID)

	fmt.Fprintf(r.out, "Starting API tests for: %s\n", r.target)
	fmt.Fprintln(r.out, "============================================================")

	for _, c := range checks {
		fmt.Fprintf(r.out, "\n=== Testing %s ===\n", c.Title)
		res := r.runCheck(ctx, logger, c)
		if res.Passed {
			fmt.Fprintf(r.out, "✓ %s passed (%s)\n", c.Title, formatDuration(res.Duration))
			result.Stats.Passed++
		} else {
			fmt.Fprintf(r.out, "✗ %s failed: %s\n", c.Title, res.Error)
			result.Stats.Failed++
		}
		result.Stats.Total++
		result.Results = append(result.Results, res)
		RecordCheckResult(res.ID, res.Passed, res.Duration)
	}

	result.Stats.EndTime = time.Now()
	result.Duration = result.Stats.EndTime.Sub(result.Stats.StartTime)
	RecordRun(result)
	logger.Info("Run finished", "passed", result.Stats.Passed, "failed", result.Stats.Failed, "duration", result.Duration)
	return result
}

// runCheck runs c and turns a panic into a failed result.
func (r *Runner) runCheck(ctx context.Context, logger log.Logger, c Check) (res CheckResult) {
	res = CheckResult{ID: c.ID, Title: c.Title}
	logger = logger.New("check", c.ID)
	start := time.Now()
	defer func() {
		res.Duration = time.Since(start)
		if p := recover(); p != nil {
			res.Passed = false
			res.Error = fmt.Sprintf("panic: %v", p)
			logger.Error("Check panicked", "panic", p)
		}
	}()

	if c.Fn == nil {
		res.Error = "check function is nil"
		return res
	}
	if err := ctx.Err(); err != nil {
		res.Error = err.Error()
		return res
	}

	logger.Debug("Running check")
	passed, err := c.Fn(ctx, logger)
	res.Passed = passed && err == nil
	if err != nil {
		res.Error = err.Error()
	} else if !passed {
		res.Error = "check failed"
	}
	logger.Info("Check finished", "result", strconv.FormatBool(res.Passed), "error", err)
	return res
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}
