package console

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"

	"golang.org/x/term"
)

// ANSI escape sequences for console output.
const (
	Red       = "\033[91m"
	Green     = "\033[92m"
	Yellow    = "\033[93m"
	Blue      = "\033[94m"
	Magenta   = "\033[95m"
	Cyan      = "\033[96m"
	White     = "\033[97m"
	Bold      = "\033[1m"
	Underline = "\033[4m"
	Reset     = "\033[0m"
)

// Stream identifies one of the two process-wide output streams.
type Stream int

const (
	// Stdout is the primary output stream (success and info messages).
	Stdout Stream = iota
	// Stderr is the error stream (error and warning messages).
	Stderr
)

// Environment exposes the live process state consulted when deciding
// whether a stream accepts ANSI escape sequences. Tests substitute a
// fake instead of manipulating real terminal or environment state.
type Environment interface {
	// IsInteractive reports whether the given stream is attached to a
	// terminal rather than redirected to a file or pipe.
	IsInteractive(s Stream) bool
	// Getenv returns the value of an environment variable, "" if unset.
	Getenv(name string) string
	// LookupEnv reports whether an environment variable is present.
	LookupEnv(name string) (string, bool)
	// OS returns the host platform identifier (runtime.GOOS values).
	OS() string
}

// osEnvironment is the production Environment backed by the real
// process: stdout/stderr file descriptors and os environment variables.
type osEnvironment struct{}

func (osEnvironment) IsInteractive(s Stream) bool {
	f := os.Stdout
	if s == Stderr {
		f = os.Stderr
	}
	return term.IsTerminal(int(f.Fd()))
}

func (osEnvironment) Getenv(name string) string { return os.Getenv(name) }

func (osEnvironment) LookupEnv(name string) (string, bool) { return os.LookupEnv(name) }

func (osEnvironment) OS() string { return runtime.GOOS }

// Printer routes severity-tagged messages to a pair of output streams,
// colorizing them when the environment supports it.
//
// A Printer does no internal locking: when invoked from multiple
// goroutines, interleaving of whole messages is the caller's
// responsibility.
type Printer struct {
	out io.Writer
	err io.Writer
	env Environment
}

// NewPrinter returns a Printer writing success/info messages to out and
// error/warning messages to errOut. A nil env selects the real process
// environment.
func NewPrinter(out, errOut io.Writer, env Environment) *Printer {
	if env == nil {
		env = osEnvironment{}
	}
	return &Printer{out: out, err: errOut, env: env}
}

// std is the package-level printer bound to os.Stdout and os.Stderr.
var std = NewPrinter(os.Stdout, os.Stderr, osEnvironment{})

// SupportsColor reports whether output should include ANSI color codes.
// The check is re-evaluated on every call so that redirection changes
// during the process lifetime are picked up.
//
// Interactivity is always judged against the primary output stream,
// even for messages bound for the error stream. This matches the
// behavior the rest of the pipeline was built against; see DESIGN.md.
func (p *Printer) SupportsColor() bool {
	if !p.env.IsInteractive(Stdout) {
		return false
	}

	if p.env.OS() == "windows" {
		switch strings.ToLower(p.env.Getenv("TERM")) {
		case "xterm", "xterm-256color":
			return true
		}
		_, ok := p.env.LookupEnv("ANSICON")
		return ok
	}

	// Unix-like systems: an interactive terminal is assumed to render
	// escape sequences.
	return true
}

// Error prints an error message in red to the error stream.
// At most one title is used; further values are ignored.
func (p *Printer) Error(message string, title ...string) {
	p.print(p.err, Red, message, title)
}

// Warning prints a warning message in yellow to the error stream.
func (p *Printer) Warning(message string, title ...string) {
	p.print(p.err, Yellow, message, title)
}

// Success prints a success message in green to the output stream.
func (p *Printer) Success(message string, title ...string) {
	p.print(p.out, Green, message, title)
}

// Info prints an informational message in blue to the output stream.
func (p *Printer) Info(message string, title ...string) {
	p.print(p.out, Blue, message, title)
}

func (p *Printer) print(w io.Writer, clr, message string, title []string) {
	colored := p.SupportsColor()

	var formatted string
	switch {
	case colored && len(title) > 0:
		formatted = clr + Bold + title[0] + ":" + Reset + " " + clr + message + Reset
	case colored:
		formatted = clr + message + Reset
	case len(title) > 0:
		formatted = title[0] + ": " + message
	default:
		formatted = message
	}

	fmt.Fprintln(w, formatted)
	flush(w)
}

// flush forces buffered writers out immediately so messages interleave
// correctly with other output in the hosting process. Writes to
// *os.File are unbuffered and need no flushing.
func flush(w io.Writer) {
	if f, ok := w.(interface{ Flush() error }); ok {
		_ = f.Flush()
	}
}

// SupportsColor reports whether the process output supports ANSI color.
func SupportsColor() bool { return std.SupportsColor() }

// PrintError prints an error message in red to standard error.
func PrintError(message string, title ...string) { std.Error(message, title...) }

// PrintWarning prints a warning message in yellow to standard error.
func PrintWarning(message string, title ...string) { std.Warning(message, title...) }

// PrintSuccess prints a success message in green to standard output.
func PrintSuccess(message string, title ...string) { std.Success(message, title...) }

// PrintInfo prints an informational message in blue to standard output.
func PrintInfo(message string, title ...string) { std.Info(message, title...) }
