package progress

import (
	"time"

	"github.com/briandowns/spinner"
)

// Spinner is a Callback backed by an animated terminal spinner. It is
// meant for long-running single operations (tool downloads, ffmpeg
// runs) where a counted progress bar adds no information.
type Spinner struct {
	s *spinner.Spinner
}

// NewSpinner starts a cyan spinner with the given message as suffix.
func NewSpinner(message string) *Spinner {
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	s.Suffix = " " + message
	// Continue uncolored if the terminal rejects the color.
	_ = s.Color("cyan")
	s.Start()
	return &Spinner{s: s}
}

// Update replaces the spinner suffix with the latest progress snapshot.
func (sp *Spinner) Update(info Info) {
	sp.s.Suffix = " " + info.String()
}

// Complete stops the spinner and prints a final success line.
func (sp *Spinner) Complete(message string) {
	if message == "" {
		message = "Complete"
	}
	sp.s.FinalMSG = ensureNewline("✓ " + message)
	sp.s.Stop()
}

// Error stops the spinner and prints a final error line.
func (sp *Spinner) Error(message string) {
	sp.s.FinalMSG = ensureNewline("✗ " + message)
	sp.s.Stop()
}

// ensureNewline ensures the string ends with a newline character.
func ensureNewline(s string) string {
	if len(s) == 0 || s[len(s)-1] != '\n' {
		return s + "\n"
	}
	return s
}

// Suffix returns the current spinner suffix, exposed for tests.
func (sp *Spinner) Suffix() string {
	return sp.s.Suffix
}
