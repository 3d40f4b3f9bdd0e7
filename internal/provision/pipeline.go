// Package provision sequences the provisioning steps and applies the
// three-tier failure policy: required failures abort the run, optional
// failures downgrade to warnings, and verification failures are only
// recorded in the summary.
package provision

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Status classifies a step outcome.
type Status int

const (
	StatusOK Status = iota
	StatusWarn
	StatusFail
	StatusSkipped
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusWarn:
		return "warning"
	case StatusFail:
		return "failed"
	case StatusSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// Symbol is the one-character marker used in the run summary.
func (s Status) Symbol() string {
	switch s {
	case StatusOK:
		return "✓"
	case StatusWarn:
		return "⚠"
	case StatusFail:
		return "✗"
	case StatusSkipped:
		return "-"
	default:
		return "?"
	}
}

// StepFunc does the work of one step. The returned note is shown in the
// summary; warnings are extra notes that downgrade nothing by themselves.
type StepFunc func(ctx context.Context) (note string, warnings []string, err error)

type step struct {
	name     string
	required bool
	fn       StepFunc
}

// StepResult is the record of one executed step.
type StepResult struct {
	Name     string
	Status   Status
	Note     string
	Warnings []string
	Err      error
	Elapsed  time.Duration
}

// Pipeline runs steps in order.
type Pipeline struct {
	RunID string
	Log   *zap.Logger
	Out   io.Writer

	steps []step
}

// NewPipeline allocates a pipeline with a fresh run ID.
func NewPipeline(log *zap.Logger, out io.Writer) *Pipeline {
	if log == nil {
		log = zap.NewNop()
	}
	if out == nil {
		out = io.Discard
	}
	return &Pipeline{RunID: uuid.NewString(), Log: log, Out: out}
}

// Add appends a step. Failures of non-required steps are downgraded to
// warnings.
func (p *Pipeline) Add(name string, required bool, fn StepFunc) {
	p.steps = append(p.steps, step{name: name, required: required, fn: fn})
}

// Names lists the registered step names, for dry-run plans.
func (p *Pipeline) Names() []string {
	names := make([]string, len(p.steps))
	for i, s := range p.steps {
		names[i] = s.name
	}
	return names
}

// Execute runs every step. On a required-step failure the remaining steps
// are recorded as skipped and an error is returned; the results always
// cover every registered step.
func (p *Pipeline) Execute(ctx context.Context) ([]StepResult, error) {
	results := make([]StepResult, 0, len(p.steps))
	var failed *StepResult

	for _, s := range p.steps {
		if failed != nil {
			results = append(results, StepResult{Name: s.name, Status: StatusSkipped})
			continue
		}

		fmt.Fprintf(p.Out, "[pideploy] %s...\n", s.name)
		p.Log.Info("step start", zap.String("run", p.RunID), zap.String("step", s.name))
		start := time.Now()
		note, warnings, err := s.fn(ctx)
		res := StepResult{
			Name:     s.name,
			Note:     note,
			Warnings: warnings,
			Err:      err,
			Elapsed:  time.Since(start),
		}

		switch {
		case err != nil && s.required:
			res.Status = StatusFail
			p.Log.Error("step failed", zap.String("step", s.name), zap.Error(err))
		case err != nil:
			res.Status = StatusWarn
			p.Log.Warn("optional step failed", zap.String("step", s.name), zap.Error(err))
		case len(warnings) > 0:
			res.Status = StatusWarn
		default:
			res.Status = StatusOK
		}

		results = append(results, res)
		if res.Status == StatusFail {
			failed = &results[len(results)-1]
		}
	}

	if failed != nil {
		return results, fmt.Errorf("step %q failed: %w", failed.Name, failed.Err)
	}
	return results, nil
}

// Summarize prints the per-step outcome table.
func Summarize(w io.Writer, runID string, results []StepResult) {
	fmt.Fprintf(w, "\nprovisioning summary (run %s)\n", runID)
	for _, r := range results {
		line := fmt.Sprintf("%s %-28s %s", r.Status.Symbol(), r.Name, r.Status)
		if r.Note != "" {
			line += " - " + r.Note
		}
		fmt.Fprintln(w, line)
		for _, warning := range r.Warnings {
			fmt.Fprintf(w, "    ⚠ %s\n", warning)
		}
		if r.Err != nil {
			fmt.Fprintf(w, "    %v\n", r.Err)
		}
	}
}
