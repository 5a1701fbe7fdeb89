package models

import "testing"

func testPlaylist() *Playlist {
	metadata := PlaylistMetadata{
		PlaylistID: "PLtest123",
		Title:      "Test Playlist",
		VideoCount: 3,
	}
	videos := []VideoMetadata{
		{VideoID: "vid00000001", Title: "One", Duration: 100, URL: "https://example.com/1"},
		{VideoID: "vid00000002", Title: "Two", Duration: 200, URL: "https://example.com/2"},
		{VideoID: "vid00000003", Title: "Three", Duration: 300, URL: "https://example.com/3"},
	}
	return NewPlaylist(metadata, videos)
}

func TestPlaylistMetadataValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*PlaylistMetadata)
		wantErr bool
	}{
		{"valid", nil, false},
		{"missing id", func(m *PlaylistMetadata) { m.PlaylistID = "" }, true},
		{"missing title", func(m *PlaylistMetadata) { m.Title = "" }, true},
		{"negative count", func(m *PlaylistMetadata) { m.VideoCount = -1 }, true},
		{"negative estimate", func(m *PlaylistMetadata) { m.TotalSizeEstimate = -1 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := PlaylistMetadata{PlaylistID: "PL1", Title: "T", VideoCount: 1}
			if tt.mutate != nil {
				tt.mutate(&m)
			}
			if err := m.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestNewPlaylistDefaultsToAvailable(t *testing.T) {
	p := testPlaylist()
	if got := len(p.AvailableVideos()); got != 3 {
		t.Errorf("AvailableVideos() = %d, want 3", got)
	}
	if got := len(p.FailedVideos()); got != 0 {
		t.Errorf("FailedVideos() = %d, want 0", got)
	}
}

func TestPlaylistUpdateStatus(t *testing.T) {
	p := testPlaylist()

	if err := p.UpdateStatus("vid00000002", StatusPrivate); err != nil {
		t.Fatalf("UpdateStatus() error = %v", err)
	}
	if err := p.UpdateStatus("nonexistent0", StatusFailed); err == nil {
		t.Error("UpdateStatus() for unknown video succeeded, want error")
	}

	available := p.AvailableVideos()
	if len(available) != 2 {
		t.Fatalf("AvailableVideos() = %d, want 2", len(available))
	}
	// Playlist order is preserved.
	if available[0].VideoID != "vid00000001" || available[1].VideoID != "vid00000003" {
		t.Errorf("AvailableVideos() order = %s, %s", available[0].VideoID, available[1].VideoID)
	}

	failed := p.FailedVideos()
	if len(failed) != 1 || failed[0].VideoID != "vid00000002" {
		t.Errorf("FailedVideos() = %v", failed)
	}
}

func TestPlaylistSuccessRate(t *testing.T) {
	p := testPlaylist()
	if got := p.SuccessRate(); got != 100 {
		t.Errorf("SuccessRate() = %v, want 100", got)
	}

	_ = p.UpdateStatus("vid00000001", StatusMissing)
	want := float64(2) / 3 * 100
	if got := p.SuccessRate(); got != want {
		t.Errorf("SuccessRate() = %v, want %v", got, want)
	}

	empty := NewPlaylist(PlaylistMetadata{PlaylistID: "PL", Title: "T"}, nil)
	if got := empty.SuccessRate(); got != 0 {
		t.Errorf("empty playlist SuccessRate() = %v, want 0", got)
	}
}

func TestPlaylistFitsOnDVD(t *testing.T) {
	p := testPlaylist()

	// No estimate assumes it fits.
	if !p.FitsOnDVD(4.7) {
		t.Error("FitsOnDVD() = false with no size estimate")
	}

	p.Metadata.TotalSizeEstimate = 4 * 1024 * 1024 * 1024
	if !p.FitsOnDVD(4.7) {
		t.Error("FitsOnDVD(4.7) = false for 4GB")
	}

	p.Metadata.TotalSizeEstimate = 5 * 1024 * 1024 * 1024
	if p.FitsOnDVD(4.7) {
		t.Error("FitsOnDVD(4.7) = true for 5GB")
	}
}

func TestPlaylistDuration(t *testing.T) {
	p := testPlaylist()
	if got := p.TotalDuration(); got != 600 {
		t.Errorf("TotalDuration() = %d, want 600", got)
	}
	if got := p.TotalDurationHuman(); got != "10m" {
		t.Errorf("TotalDurationHuman() = %q, want 10m", got)
	}
}
