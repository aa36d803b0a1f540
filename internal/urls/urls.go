// Package urls builds the public download/stream/player URLs handed back to
// the chat command surface, and defines the narrow Shortener hook that
// surface may use before presenting a link to a user. The streaming core
// never shortens a URL itself (spec.md §6).
package urls

import (
	"context"
	"fmt"
	"path"
	"strings"
)

// PublicURLs is the set of links the command surface hands to a user after
// an upload.
type PublicURLs struct {
	DownloadURL string
	StreamURL   string
	PlayerURL   string
}

// Shortener is satisfied by whatever external service the deployment wires
// up for links above shorten_threshold_bytes. The core only calls it
// through this interface and never depends on a concrete provider.
type Shortener interface {
	Shorten(ctx context.Context, longURL string) (string, error)
}

// IsVideo classifies a file by extension and MIME type, a pure predicate the
// command surface uses to decide whether to populate PlayerURL. It has no
// bearing on how the streaming core serves bytes.
func IsVideo(filename, mimeType string) bool {
	if strings.HasPrefix(mimeType, "video/") {
		return true
	}
	switch strings.ToLower(path.Ext(filename)) {
	case ".mp4", ".mkv", ".mov", ".avi", ".webm", ".m4v", ".ts":
		return true
	default:
		return false
	}
}

// BuildPublicURLs implements spec.md §6's build_public_urls: a pure function
// from a reference id and file metadata to the set of URLs the command
// surface exposes to the user. playerBaseURL is empty when the deployment
// has no video front-end configured.
func BuildPublicURLs(baseURL, referenceID, filename string, size int64, isVideo bool, playerBaseURL string) PublicURLs {
	out := PublicURLs{
		DownloadURL: fmt.Sprintf("%s/dl/%s", trimSlash(baseURL), referenceID),
		StreamURL:   fmt.Sprintf("%s/stream/%s", trimSlash(baseURL), referenceID),
	}
	if isVideo && playerBaseURL != "" {
		out.PlayerURL = fmt.Sprintf("%s/watch/%s", trimSlash(playerBaseURL), referenceID)
	}
	return out
}

func trimSlash(s string) string {
	return strings.TrimRight(s, "/")
}
