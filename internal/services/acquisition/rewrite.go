package acquisition

import (
	"net/url"
	"regexp"
	"strings"
)

var (
	drivePathID  = regexp.MustCompile(`/d/([A-Za-z0-9_-]+)`)
	driveQueryID = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
)

// RewriteDriveURL turns a Google Drive share link into a direct download
// link. It reports false when raw is not a recognizable Drive file link.
func RewriteDriveURL(raw string) (string, bool) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || !isDriveHost(u.Hostname()) {
		return "", false
	}

	id := ""
	if m := drivePathID.FindStringSubmatch(u.Path); m != nil {
		id = m[1]
	} else if q := u.Query().Get("id"); driveQueryID.MatchString(q) {
		id = q
	}
	if id == "" {
		return "", false
	}

	return "https://drive.google.com/uc?export=download&id=" + id + "&confirm=t", true
}

func isDriveHost(host string) bool {
	host = strings.ToLower(host)
	return host == "drive.google.com" || host == "docs.google.com"
}

// RewriteDropboxURL switches a Dropbox share link to its direct content
// host with dl=1. It reports false for non-Dropbox links.
func RewriteDropboxURL(raw string) (string, bool) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", false
	}

	switch strings.ToLower(u.Hostname()) {
	case "dropbox.com", "www.dropbox.com", "dl.dropboxusercontent.com":
	default:
		return "", false
	}

	u.Host = "dl.dropboxusercontent.com"
	q := u.Query()
	q.Set("dl", "1")
	u.RawQuery = q.Encode()

	return u.String(), true
}

// normalizeRemoteURL applies whichever provider rewrite matches
func normalizeRemoteURL(raw string) string {
	if rewritten, ok := RewriteDriveURL(raw); ok {
		return rewritten
	}
	if rewritten, ok := RewriteDropboxURL(raw); ok {
		return rewritten
	}
	return strings.TrimSpace(raw)
}
