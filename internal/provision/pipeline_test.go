package provision

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
)

func TestPipelineRequiredFailureAborts(t *testing.T) {
	var out bytes.Buffer
	p := NewPipeline(nil, &out)
	var ran []string

	p.Add("first", true, func(ctx context.Context) (string, []string, error) {
		ran = append(ran, "first")
		return "ok", nil, nil
	})
	p.Add("second", true, func(ctx context.Context) (string, []string, error) {
		ran = append(ran, "second")
		return "", nil, errors.New("boom")
	})
	p.Add("third", true, func(ctx context.Context) (string, []string, error) {
		ran = append(ran, "third")
		return "", nil, nil
	})

	results, err := p.Execute(context.Background())
	if err == nil {
		t.Fatalf("expected error from the failed step")
	}
	if len(ran) != 2 {
		t.Fatalf("expected the third step to be skipped, ran %v", ran)
	}
	if len(results) != 3 {
		t.Fatalf("expected a result per registered step, got %d", len(results))
	}
	if results[0].Status != StatusOK || results[1].Status != StatusFail || results[2].Status != StatusSkipped {
		t.Fatalf("unexpected statuses: %v %v %v", results[0].Status, results[1].Status, results[2].Status)
	}
}

func TestPipelineOptionalFailureContinues(t *testing.T) {
	p := NewPipeline(nil, nil)
	var ran []string

	p.Add("soft", false, func(ctx context.Context) (string, []string, error) {
		ran = append(ran, "soft")
		return "", nil, errors.New("no such package")
	})
	p.Add("after", true, func(ctx context.Context) (string, []string, error) {
		ran = append(ran, "after")
		return "done", nil, nil
	})

	results, err := p.Execute(context.Background())
	if err != nil {
		t.Fatalf("optional failure must not abort: %v", err)
	}
	if len(ran) != 2 {
		t.Fatalf("expected both steps to run, ran %v", ran)
	}
	if results[0].Status != StatusWarn {
		t.Fatalf("expected warning status, got %v", results[0].Status)
	}
}

func TestPipelineWarningsDowngradeStatus(t *testing.T) {
	p := NewPipeline(nil, nil)
	p.Add("warny", true, func(ctx context.Context) (string, []string, error) {
		return "mostly fine", []string{"optional package not installed: git"}, nil
	})
	results, err := p.Execute(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if results[0].Status != StatusWarn {
		t.Fatalf("expected warning status, got %v", results[0].Status)
	}
}

func TestSummarize(t *testing.T) {
	var out bytes.Buffer
	Summarize(&out, "run-123", []StepResult{
		{Name: "preflight", Status: StatusOK, Note: "DietPi (aarch64)"},
		{Name: "install OS packages", Status: StatusWarn, Warnings: []string{"optional package not installed: git"}},
		{Name: "activate services", Status: StatusFail, Err: errors.New("unit is failed")},
		{Name: "later", Status: StatusSkipped},
	})
	s := out.String()
	for _, want := range []string{"run-123", "✓ preflight", "ok - DietPi (aarch64)", "⚠ install OS packages", "✗ activate services", "- later", "optional package not installed: git", "unit is failed"} {
		if !strings.Contains(s, want) {
			t.Fatalf("summary missing %q:\n%s", want, s)
		}
	}
}
