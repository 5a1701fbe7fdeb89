package progress

import (
	"fmt"
	"io"
	"strings"
	"sync"
)

// Info is a snapshot of an operation's progress.
type Info struct {
	Current int
	Total   int
	Message string
}

// Percentage returns progress as 0-100.
func (i Info) Percentage() float64 {
	if i.Total <= 0 {
		return 0
	}
	pct := float64(i.Current) / float64(i.Total) * 100
	if pct > 100 {
		return 100
	}
	return pct
}

// IsComplete reports whether the operation has finished.
func (i Info) IsComplete() bool {
	return i.Current >= i.Total
}

// String renders the snapshot for display.
func (i Info) String() string {
	if i.Message != "" {
		return fmt.Sprintf("%.1f%% - %s", i.Percentage(), i.Message)
	}
	return fmt.Sprintf("%.1f%% (%d/%d)", i.Percentage(), i.Current, i.Total)
}

// Callback receives progress notifications from a tracker.
type Callback interface {
	Update(info Info)
	Complete(message string)
	Error(message string)
}

// Silent is a Callback that discards everything. Useful in tests and
// for operations run without user-facing progress.
type Silent struct{}

func (Silent) Update(Info)     {}
func (Silent) Complete(string) {}
func (Silent) Error(string)    {}

// Bar renders an in-place text progress bar to a writer.
type Bar struct {
	W     io.Writer
	Width int

	mu       sync.Mutex
	lastLine int
}

// NewBar returns a Bar of the given width writing to w.
func NewBar(w io.Writer, width int) *Bar {
	return &Bar{W: w, Width: width}
}

// Update redraws the progress line.
func (b *Bar) Update(info Info) {
	b.mu.Lock()
	defer b.mu.Unlock()

	filled := int(info.Percentage() / 100 * float64(b.Width))
	bar := strings.Repeat("█", filled) + strings.Repeat("░", b.Width-filled)

	line := fmt.Sprintf("[%s] %5.1f%% (%d/%d)", bar, info.Percentage(), info.Current, info.Total)
	if info.Message != "" {
		line += " - " + info.Message
	}

	b.clearLine()
	fmt.Fprint(b.W, line)
	b.lastLine = len(line)
}

// Complete clears the bar and prints a completion mark.
func (b *Bar) Complete(message string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.clearLine()
	if message == "" {
		message = "Complete"
	}
	fmt.Fprintf(b.W, "✓ %s\n", message)
	b.lastLine = 0
}

// Error clears the bar and prints an error mark.
func (b *Bar) Error(message string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.clearLine()
	fmt.Fprintf(b.W, "✗ Error: %s\n", message)
	b.lastLine = 0
}

func (b *Bar) clearLine() {
	if b.lastLine > 0 {
		fmt.Fprint(b.W, "\r"+strings.Repeat(" ", b.lastLine)+"\r")
	}
}

// Tracker tracks a single operation and forwards snapshots to a
// callback. It is safe for concurrent use and supports cancellation.
type Tracker struct {
	mu        sync.Mutex
	current   int
	total     int
	message   string
	callback  Callback
	cancelled bool
}

// NewTracker returns a tracker for total units of work. A nil callback
// is replaced with Silent.
func NewTracker(total int, callback Callback, initialMessage string) *Tracker {
	if callback == nil {
		callback = Silent{}
	}
	return &Tracker{total: total, callback: callback, message: initialMessage}
}

// Update advances progress by increment and optionally replaces the
// message.
func (t *Tracker) Update(increment int, message string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancelled {
		return
	}

	t.current += increment
	if t.current > t.total {
		t.current = t.total
	}
	if message != "" {
		t.message = message
	}
	t.callback.Update(Info{Current: t.current, Total: t.total, Message: t.message})
}

// Set sets absolute progress.
func (t *Tracker) Set(current int, message string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancelled {
		return
	}

	if current < 0 {
		current = 0
	}
	if current > t.total {
		current = t.total
	}
	t.current = current
	if message != "" {
		t.message = message
	}
	t.callback.Update(Info{Current: t.current, Total: t.total, Message: t.message})
}

// Complete marks the operation finished.
func (t *Tracker) Complete(message string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancelled {
		return
	}

	t.current = t.total
	t.callback.Complete(message)
}

// Error reports a failure through the callback.
func (t *Tracker) Error(message string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.callback.Error(message)
}

// Cancel stops further updates from reaching the callback.
func (t *Tracker) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cancelled = true
}

// IsCancelled reports whether Cancel was called.
func (t *Tracker) IsCancelled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancelled
}

// IsComplete reports whether all units are done.
func (t *Tracker) IsComplete() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current >= t.total
}

// MultiStepTracker aggregates progress across named, weighted steps.
type MultiStepTracker struct {
	mu       sync.Mutex
	weights  map[string]int
	progress map[string]int
	current  string
	total    int
	callback Callback
}

// NewMultiStepTracker returns a tracker over the given step weights.
func NewMultiStepTracker(steps map[string]int, callback Callback) *MultiStepTracker {
	if callback == nil {
		callback = Silent{}
	}
	total := 0
	progress := make(map[string]int, len(steps))
	for name, w := range steps {
		total += w
		progress[name] = 0
	}
	return &MultiStepTracker{
		weights:  steps,
		progress: progress,
		total:    total,
		callback: callback,
	}
}

// StartStep begins a named step.
func (m *MultiStepTracker) StartStep(name, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.weights[name]; !ok {
		return fmt.Errorf("unknown step: %s", name)
	}
	m.current = name
	m.notify(message)
	return nil
}

// UpdateStep sets progress within the current step, clamped to the
// step weight.
func (m *MultiStepTracker) UpdateStep(progress int, message string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == "" {
		return
	}

	w := m.weights[m.current]
	if progress < 0 {
		progress = 0
	}
	if progress > w {
		progress = w
	}
	m.progress[m.current] = progress
	m.notify(message)
}

// CompleteStep finishes the current step.
func (m *MultiStepTracker) CompleteStep(message string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == "" {
		return
	}

	m.progress[m.current] = m.weights[m.current]
	m.notify(message)
}

// Complete finishes every step.
func (m *MultiStepTracker) Complete(message string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for name, w := range m.weights {
		m.progress[name] = w
	}
	m.callback.Complete(message)
}

// Error reports a failure through the callback.
func (m *MultiStepTracker) Error(message string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callback.Error(message)
}

func (m *MultiStepTracker) notify(message string) {
	current := 0
	for _, p := range m.progress {
		current += p
	}
	m.callback.Update(Info{Current: current, Total: m.total, Message: message})
}
