package utils

import "testing"

func TestDetectOS(t *testing.T) {
	tests := []struct {
		goos string
		want OperatingSystem
	}{
		{"linux", OSLinux},
		{"darwin", OSMacOS},
		{"windows", OSWindows},
		{"plan9", OSUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.goos, func(t *testing.T) {
			if got := detectOS(tt.goos); got != tt.want {
				t.Errorf("detectOS(%q) = %v, want %v", tt.goos, got, tt.want)
			}
		})
	}
}

func TestDetectArchitecture(t *testing.T) {
	tests := []struct {
		goarch string
		want   Architecture
	}{
		{"amd64", ArchX64},
		{"arm64", ArchARM64},
		{"386", ArchUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.goarch, func(t *testing.T) {
			if got := detectArchitecture(tt.goarch); got != tt.want {
				t.Errorf("detectArchitecture(%q) = %v, want %v", tt.goarch, got, tt.want)
			}
		})
	}
}

func TestDownloadURLUnsupportedTool(t *testing.T) {
	if _, err := DownloadURL("dvdauthor"); err == nil {
		t.Error("expected error for a tool without download URLs")
	}
}

func TestDVDAuthorInstallInstructionsNotEmpty(t *testing.T) {
	if DVDAuthorInstallInstructions() == "" {
		t.Error("install instructions should never be empty")
	}
}
