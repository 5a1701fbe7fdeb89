package progress

import (
	"strings"
	"sync"
	"testing"
)

// recorder captures callback invocations.
type recorder struct {
	mu        sync.Mutex
	updates   []Info
	completes []string
	errors    []string
}

func (r *recorder) Update(info Info) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, info)
}

func (r *recorder) Complete(message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completes = append(r.completes, message)
}

func (r *recorder) Error(message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors = append(r.errors, message)
}

func TestInfoPercentage(t *testing.T) {
	tests := []struct {
		name string
		info Info
		want float64
	}{
		{"zero total", Info{Current: 5, Total: 0}, 0},
		{"halfway", Info{Current: 5, Total: 10}, 50},
		{"complete", Info{Current: 10, Total: 10}, 100},
		{"clamped", Info{Current: 15, Total: 10}, 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.info.Percentage(); got != tt.want {
				t.Errorf("Percentage() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestInfoString(t *testing.T) {
	withMsg := Info{Current: 1, Total: 4, Message: "converting"}
	if got := withMsg.String(); got != "25.0% - converting" {
		t.Errorf("String() = %q", got)
	}

	noMsg := Info{Current: 1, Total: 4}
	if got := noMsg.String(); got != "25.0% (1/4)" {
		t.Errorf("String() = %q", got)
	}
}

func TestTrackerUpdates(t *testing.T) {
	rec := &recorder{}
	tr := NewTracker(3, rec, "starting")

	tr.Update(1, "first")
	tr.Update(1, "")
	tr.Set(3, "done soon")
	tr.Complete("all done")

	if len(rec.updates) != 3 {
		t.Fatalf("updates = %d, want 3", len(rec.updates))
	}
	if rec.updates[0].Current != 1 || rec.updates[0].Message != "first" {
		t.Errorf("first update = %+v", rec.updates[0])
	}
	// Empty message keeps the previous one.
	if rec.updates[1].Message != "first" {
		t.Errorf("second update message = %q, want retained %q", rec.updates[1].Message, "first")
	}
	if !rec.updates[2].IsComplete() {
		t.Error("third update should be complete")
	}
	if len(rec.completes) != 1 || rec.completes[0] != "all done" {
		t.Errorf("completes = %v", rec.completes)
	}
	if !tr.IsComplete() {
		t.Error("tracker should be complete")
	}
}

func TestTrackerClampsProgress(t *testing.T) {
	rec := &recorder{}
	tr := NewTracker(2, rec, "")

	tr.Update(5, "")
	if got := rec.updates[0].Current; got != 2 {
		t.Errorf("current = %d, want clamped 2", got)
	}

	tr.Set(-1, "")
	if got := rec.updates[1].Current; got != 0 {
		t.Errorf("current = %d, want clamped 0", got)
	}
}

func TestTrackerCancel(t *testing.T) {
	rec := &recorder{}
	tr := NewTracker(5, rec, "")

	tr.Cancel()
	tr.Update(1, "ignored")
	tr.Complete("ignored")

	if len(rec.updates) != 0 || len(rec.completes) != 0 {
		t.Errorf("cancelled tracker still notified: %d updates, %d completes",
			len(rec.updates), len(rec.completes))
	}
	if !tr.IsCancelled() {
		t.Error("IsCancelled() = false after Cancel")
	}
	// Errors still propagate after cancellation.
	tr.Error("boom")
	if len(rec.errors) != 1 {
		t.Errorf("errors = %d, want 1", len(rec.errors))
	}
}

func TestMultiStepTracker(t *testing.T) {
	rec := &recorder{}
	m := NewMultiStepTracker(map[string]int{"download": 60, "convert": 30, "author": 10}, rec)

	if err := m.StartStep("download", "downloading"); err != nil {
		t.Fatalf("StartStep() error = %v", err)
	}
	m.UpdateStep(30, "half the videos")
	m.CompleteStep("downloaded")

	last := rec.updates[len(rec.updates)-1]
	if last.Current != 60 || last.Total != 100 {
		t.Errorf("after download: %d/%d, want 60/100", last.Current, last.Total)
	}

	if err := m.StartStep("publish", ""); err == nil {
		t.Error("expected error for unknown step")
	}

	// Step progress is clamped to the step weight.
	if err := m.StartStep("convert", ""); err != nil {
		t.Fatal(err)
	}
	m.UpdateStep(500, "")
	last = rec.updates[len(rec.updates)-1]
	if last.Current != 90 {
		t.Errorf("after clamped convert: %d, want 90", last.Current)
	}

	m.Complete("pipeline finished")
	if len(rec.completes) != 1 {
		t.Fatalf("completes = %d, want 1", len(rec.completes))
	}
}

func TestBarOutput(t *testing.T) {
	var sb strings.Builder
	bar := NewBar(&sb, 10)

	bar.Update(Info{Current: 1, Total: 2, Message: "working"})
	out := sb.String()
	if !strings.Contains(out, "50.0%") || !strings.Contains(out, "working") {
		t.Errorf("bar output = %q", out)
	}
	if !strings.Contains(out, "█████░░░░░") {
		t.Errorf("bar output missing fill: %q", out)
	}

	bar.Complete("done")
	if !strings.Contains(sb.String(), "✓ done\n") {
		t.Errorf("complete output = %q", sb.String())
	}

	sb.Reset()
	bar.Error("broken pipe")
	if !strings.Contains(sb.String(), "✗ Error: broken pipe\n") {
		t.Errorf("error output = %q", sb.String())
	}
}
