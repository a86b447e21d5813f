package fetcher

import "testing"

func TestParseProgress(t *testing.T) {
	tests := []struct {
		line string
		want float64
		ok   bool
	}{
		{"[download]  42.3% of 4.12MiB at 1.20MiB/s ETA 00:02", 42.3, true},
		{"[download] 100% of 4.12MiB in 00:03", 100, true},
		{"[download]   0.0% of ~3.50MiB at Unknown B/s", 0, true},
		{"[info] Downloading video thumbnail", 0, false},
		{"Deleting original file", 0, false},
	}
	for _, tc := range tests {
		got, ok := ParseProgress(tc.line)
		if ok != tc.ok || got != tc.want {
			t.Errorf("ParseProgress(%q) = %v, %v; want %v, %v", tc.line, got, ok, tc.want, tc.ok)
		}
	}
}

func TestNormalizeSourceURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"https://www.youtube.com/watch?v=dQw4w9WgXcQ", "https://www.youtube.com/watch?v=dQw4w9WgXcQ"},
		{"https://www.youtube.com/watch?v=dQw4w9WgXcQ&list=PL123&index=4", "https://www.youtube.com/watch?v=dQw4w9WgXcQ"},
		{"https://youtu.be/dQw4w9WgXcQ?t=42", "https://www.youtube.com/watch?v=dQw4w9WgXcQ"},
		{"https://www.youtube.com/shorts/dQw4w9WgXcQ", "https://www.youtube.com/watch?v=dQw4w9WgXcQ"},
		{"https://www.youtube.com/embed/dQw4w9WgXcQ", "https://www.youtube.com/watch?v=dQw4w9WgXcQ"},
		{"https://music.youtube.com/watch?v=dQw4w9WgXcQ", "https://www.youtube.com/watch?v=dQw4w9WgXcQ"},
		{"https://soundcloud.com/artist/song#t=10", "https://soundcloud.com/artist/song"},
		{"  https://example.com/a  ", "https://example.com/a"},
		{"", ""},
		{"not a url", "not a url"},
	}
	for _, tc := range tests {
		if got := NormalizeSourceURL(tc.in); got != tc.want {
			t.Errorf("NormalizeSourceURL(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestClassifyRef(t *testing.T) {
	tests := []struct {
		in         string
		collection bool
		known      bool
	}{
		{"https://www.youtube.com/watch?v=abc", false, true},
		{"https://www.youtube.com/watch?v=abc&list=PL123", false, true},
		{"https://youtu.be/abc", false, true},
		{"https://www.youtube.com/playlist?list=PL123", true, true},
		{"https://www.youtube.com/watch?list=PL123", true, true},
		{"https://soundcloud.com/artist/sets/my-set", true, true},
		{"https://soundcloud.com/artist/song", false, true},
		{"https://example.com/whatever", false, false},
		{"nonsense", false, false},
	}
	for _, tc := range tests {
		collection, known := ClassifyRef(tc.in)
		if collection != tc.collection || known != tc.known {
			t.Errorf("ClassifyRef(%q) = %v, %v; want %v, %v", tc.in, collection, known, tc.collection, tc.known)
		}
	}
}

func TestEntrySourceURL(t *testing.T) {
	tests := []struct {
		name  string
		entry map[string]any
		want  string
	}{
		{"full url", map[string]any{"url": "https://www.youtube.com/watch?v=abc"}, "https://www.youtube.com/watch?v=abc"},
		{"webpage url wins", map[string]any{"webpage_url": "https://youtu.be/abc", "url": "abc"}, "https://youtu.be/abc"},
		{"bare youtube id", map[string]any{"url": "abc", "ie_key": "Youtube"}, "https://www.youtube.com/watch?v=abc"},
		{"bare non-youtube id", map[string]any{"url": "abc", "ie_key": "Soundcloud"}, "abc"},
		{"empty", map[string]any{}, ""},
	}
	for _, tc := range tests {
		if got := entrySourceURL(tc.entry); got != tc.want {
			t.Errorf("%s: entrySourceURL = %q, want %q", tc.name, got, tc.want)
		}
	}
}
