package urls

import "testing"

func TestIsVideo(t *testing.T) {
	cases := []struct {
		name     string
		filename string
		mime     string
		want     bool
	}{
		{"mp4 extension", "movie.mp4", "application/octet-stream", true},
		{"mime prefix", "blob", "video/mp4", true},
		{"pdf", "doc.pdf", "application/pdf", false},
		{"mkv upper case", "MOVIE.MKV", "", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsVideo(tc.filename, tc.mime); got != tc.want {
				t.Errorf("IsVideo(%q, %q) = %v, want %v", tc.filename, tc.mime, got, tc.want)
			}
		})
	}
}

func TestBuildPublicURLs(t *testing.T) {
	out := BuildPublicURLs("https://example.com/", "abc123", "movie.mp4", 42, true, "https://watch.example.com/")
	if out.DownloadURL != "https://example.com/dl/abc123" {
		t.Errorf("DownloadURL = %q", out.DownloadURL)
	}
	if out.StreamURL != "https://example.com/stream/abc123" {
		t.Errorf("StreamURL = %q", out.StreamURL)
	}
	if out.PlayerURL != "https://watch.example.com/watch/abc123" {
		t.Errorf("PlayerURL = %q", out.PlayerURL)
	}
}

func TestBuildPublicURLsNoPlayer(t *testing.T) {
	out := BuildPublicURLs("https://example.com", "abc123", "doc.pdf", 42, false, "")
	if out.PlayerURL != "" {
		t.Errorf("PlayerURL = %q, want empty", out.PlayerURL)
	}
}
