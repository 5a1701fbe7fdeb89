package progress

import (
	"strings"
	"testing"
)

func TestSpinnerLifecycle(t *testing.T) {
	sp := NewSpinner("starting download")
	if !strings.Contains(sp.Suffix(), "starting download") {
		t.Errorf("initial suffix = %q, want it to contain the message", sp.Suffix())
	}

	sp.Update(Info{Current: 2, Total: 4, Message: "converting video 2"})
	if !strings.Contains(sp.Suffix(), "converting video 2") {
		t.Errorf("suffix after Update = %q, want it to contain the message", sp.Suffix())
	}
	if !strings.Contains(sp.Suffix(), "50.0%") {
		t.Errorf("suffix after Update = %q, want it to contain the percentage", sp.Suffix())
	}

	sp.Complete("conversion finished")
	if sp.s.FinalMSG != "✓ conversion finished\n" {
		t.Errorf("final message = %q, want %q", sp.s.FinalMSG, "✓ conversion finished\n")
	}
}

func TestSpinnerCompleteDefaultMessage(t *testing.T) {
	sp := NewSpinner("working")
	sp.Complete("")
	if sp.s.FinalMSG != "✓ Complete\n" {
		t.Errorf("final message = %q, want %q", sp.s.FinalMSG, "✓ Complete\n")
	}
}

func TestSpinnerError(t *testing.T) {
	sp := NewSpinner("downloading ffmpeg")
	sp.Error("download failed")
	if sp.s.FinalMSG != "✗ download failed\n" {
		t.Errorf("final message = %q, want %q", sp.s.FinalMSG, "✗ download failed\n")
	}
}
