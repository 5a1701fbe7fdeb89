package logger

import (
	"fmt"
	"os"

	"github.com/dvdmaker/dvdmaker/internal/ui"
)

type Logger struct {
	Verbose bool
	Debug   bool
	Quiet   bool
}

func (l Logger) Tracef(msg string, args ...any) {
	if l.Debug {
		fmt.Fprintf(os.Stdout, ui.Trace.Sprint("[trace] ")+ui.EnsureNewline(msg), args...)
	}
}

func (l Logger) Debugf(msg string, args ...any) {
	if l.Debug {
		fmt.Fprintf(os.Stdout, ui.Debug.Sprint("[debug] ")+ui.EnsureNewline(msg), args...)
	}
}

func (l Logger) Infof(msg string, args ...any) {
	if (l.Verbose || l.Debug) && !l.Quiet {
		fmt.Fprintf(os.Stdout, ui.Success.Sprint("[info] ")+ui.EnsureNewline(msg), args...)
	}
}

func (l Logger) Warnf(msg string, args ...any) {
	if !l.Quiet {
		fmt.Fprintf(os.Stderr, ui.Warning.Sprint("[warn] ")+ui.EnsureNewline(msg), args...)
	}
}

func (l Logger) Errorf(msg string, args ...any) {
	fmt.Fprintf(os.Stderr, ui.Error.Sprint("[error] ")+ui.EnsureNewline(msg), args...)
}
