package fetcher

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

var progressRe = regexp.MustCompile(`\[download\]\s+(\d+(?:\.\d+)?)%`)

// ParseProgress extracts the percentage from a downloader progress line.
func ParseProgress(line string) (float64, bool) {
	m := progressRe.FindStringSubmatch(line)
	if m == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// NormalizeSourceURL canonicalizes a source reference so the same item
// always maps to the same string. YouTube watch/short/embed/youtu.be forms
// collapse to https://www.youtube.com/watch?v=ID; other URLs only lose
// their fragment.
func NormalizeSourceURL(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}
	u, err := url.Parse(s)
	if err != nil || u.Scheme == "" {
		return s
	}
	host := strings.ToLower(u.Host)
	if strings.Contains(host, "youtube.com") || strings.Contains(host, "youtu.be") {
		if id := youtubeVideoID(u, host); id != "" {
			return "https://www.youtube.com/watch?v=" + id
		}
	}
	u.Fragment = ""
	return u.String()
}

func youtubeVideoID(u *url.URL, host string) string {
	if strings.Contains(host, "youtu.be") {
		if parts := pathParts(u.Path); len(parts) > 0 {
			return parts[0]
		}
	}
	if strings.HasPrefix(u.Path, "/watch") {
		return u.Query().Get("v")
	}
	for _, prefix := range []string{"/shorts/", "/embed/"} {
		if strings.HasPrefix(u.Path, prefix) {
			if parts := pathParts(u.Path); len(parts) >= 2 {
				return parts[1]
			}
		}
	}
	return ""
}

func pathParts(path string) []string {
	var parts []string
	for _, p := range strings.Split(path, "/") {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return parts
}

// ClassifyRef inspects a reference and reports whether it structurally
// denotes a single item or a collection. known is false when the URL shape
// alone cannot tell and resolution has to decide.
func ClassifyRef(raw string) (collection bool, known bool) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Scheme == "" {
		return false, false
	}
	host := strings.ToLower(u.Host)
	switch {
	case strings.Contains(host, "youtube.com") || strings.Contains(host, "youtu.be"):
		q := u.Query()
		// A v= parameter wins even when list= is also present.
		if q.Get("v") != "" || strings.Contains(host, "youtu.be") {
			return false, true
		}
		if strings.Contains(u.Path, "/playlist") || q.Get("list") != "" {
			return true, true
		}
	case strings.Contains(host, "soundcloud.com"):
		return strings.Contains(u.Path, "/sets/"), true
	}
	return false, false
}

// entrySourceURL extracts a usable URL from a flat-playlist entry, building
// a watch URL from the bare id when the extractor only reported an id.
func entrySourceURL(entry map[string]any) string {
	for _, key := range []string{"webpage_url", "original_url", "url"} {
		if s, ok := entry[key].(string); ok && s != "" {
			if strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://") {
				return s
			}
			ieKey, _ := entry["ie_key"].(string)
			switch strings.ToLower(ieKey) {
			case "youtube", "youtubeweb":
				return "https://www.youtube.com/watch?v=" + s
			}
			return s
		}
	}
	return ""
}
