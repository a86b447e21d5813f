package fetcher

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/squashterm/api/internal/model"
)

const defaultCover = "/static/images/cover-default.svg"

// coverExtensions are the thumbnail formats yt-dlp writes, in preference
// order.
var coverExtensions = []string{".webp", ".jpg", ".jpeg", ".png", ".avif"}

// YTDLP fetches media through a yt-dlp compatible binary.
type YTDLP struct {
	binary   string
	mediaDir string
	timeout  time.Duration
	limiter  *rate.Limiter
}

// NewYTDLP builds a fetcher that downloads into mediaDir. ratePerSec bounds
// how often the binary may be launched so a large batch cannot hammer the
// remote source.
func NewYTDLP(binary, mediaDir string, timeout time.Duration, ratePerSec float64) *YTDLP {
	if binary == "" {
		binary = "yt-dlp"
	}
	if ratePerSec <= 0 {
		ratePerSec = 2
	}
	return &YTDLP{
		binary:   binary,
		mediaDir: mediaDir,
		timeout:  timeout,
		limiter:  rate.NewLimiter(rate.Limit(ratePerSec), 1),
	}
}

// Resolve enumerates a reference with a flat-playlist probe. No media is
// downloaded.
func (y *YTDLP) Resolve(ctx context.Context, ref string) (*Resolution, error) {
	if err := y.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	ctx, cancel := y.withTimeout(ctx)
	defer cancel()

	cmd := exec.CommandContext(ctx, y.binary, "--flat-playlist", "--print-json", "--no-warnings", ref)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("resolve %q: %s", ref, commandError(out, err))
	}

	var entries []Entry
	for _, info := range parseJSONLines(out) {
		src := NormalizeSourceURL(entrySourceURL(info))
		if src == "" {
			continue
		}
		id, _ := info["id"].(string)
		title, _ := info["title"].(string)
		entries = append(entries, Entry{ID: id, Title: title, SourceURL: src})
	}
	if len(entries) == 0 {
		return nil, errors.New("source reference resolved to no items")
	}

	collection, known := ClassifyRef(ref)
	if !known {
		collection = len(entries) > 1
	}
	return &Resolution{Collection: collection, Entries: entries}, nil
}

// Fetch downloads one item, audio plus thumbnail, and returns the parsed
// tracks with combined command output as the log.
func (y *YTDLP) Fetch(ctx context.Context, ref string) (*Result, error) {
	if err := y.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	ctx, cancel := y.withTimeout(ctx)
	defer cancel()

	cmd := exec.CommandContext(ctx, y.binary, y.fetchArgs(ref)...)
	out, err := cmd.CombinedOutput()
	logText := strings.TrimSpace(string(out))
	if err != nil {
		return nil, fmt.Errorf("fetch %q: %s", ref, commandError(out, err))
	}
	tracks := y.parseTracks(parseJSONLines(out), ref)
	if len(tracks) == 0 {
		return nil, errors.New("downloader returned no metadata")
	}
	return &Result{Tracks: tracks, Log: logText}, nil
}

// FetchStream downloads one item while forwarding non-JSON output lines to
// onLine as they appear.
func (y *YTDLP) FetchStream(ctx context.Context, ref string, onLine func(line string)) (*Result, error) {
	if err := y.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	ctx, cancel := y.withTimeout(ctx)
	defer cancel()

	args := append([]string{"--newline", "--progress"}, y.fetchArgs(ref)...)
	cmd := exec.CommandContext(ctx, y.binary, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	cmd.Stderr = cmd.Stdout
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start downloader: %w", err)
	}

	var (
		infos    []map[string]any
		logLines []string
	)
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "{") {
			var info map[string]any
			if err := json.Unmarshal([]byte(line), &info); err == nil {
				infos = append(infos, info)
				continue
			}
		}
		logLines = append(logLines, line)
		if onLine != nil {
			onLine(line)
		}
	}
	if err := cmd.Wait(); err != nil {
		tail := logLines
		if len(tail) > 8 {
			tail = tail[len(tail)-8:]
		}
		msg := strings.Join(tail, "\n")
		if msg == "" {
			msg = err.Error()
		}
		return nil, fmt.Errorf("fetch %q: %s", ref, msg)
	}
	tracks := y.parseTracks(infos, ref)
	if len(tracks) == 0 {
		return nil, errors.New("downloader returned no metadata")
	}
	return &Result{Tracks: tracks, Log: strings.Join(logLines, "\n")}, nil
}

func (y *YTDLP) fetchArgs(ref string) []string {
	return []string{
		"--no-playlist",
		"--print-json",
		"--write-thumbnail",
		"-x", "--audio-format", "mp3",
		"-o", filepath.Join(y.mediaDir, "%(id)s.%(ext)s"),
		ref,
	}
}

func (y *YTDLP) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if y.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, y.timeout)
}

func (y *YTDLP) parseTracks(infos []map[string]any, ref string) []model.Track {
	tracks := make([]model.Track, 0, len(infos))
	for _, info := range infos {
		tracks = append(tracks, y.trackFromInfo(info, ref))
	}
	return tracks
}

// trackFromInfo maps a yt-dlp info dict onto a Track, preferring music
// metadata fields over the generic video ones.
func (y *YTDLP) trackFromInfo(info map[string]any, sourceRef string) model.Track {
	id, _ := info["id"].(string)
	if id == "" {
		id = uuid.New().String()
	}
	source := NormalizeSourceURL(sourceRef)
	if source == "" {
		source = NormalizeSourceURL(entrySourceURL(info))
	}
	filePath := filepath.Join(y.mediaDir, id+".mp3")

	track := model.Track{
		ID:        "yt_" + id,
		Title:     firstString(info, "track", "title"),
		Artist:    firstString(info, "artist", "uploader"),
		Album:     firstString(info, "album"),
		Genre:     firstString(info, "genre"),
		Year:      parseYear(info),
		BPM:       intValue(info["bpm"]),
		Duration:  FormatDuration(intValue(info["duration"])),
		Cover:     y.resolveCover(id),
		FilePath:  filePath,
		FileURL:   "/media/" + filepath.Base(filePath),
		SourceURL: source,
	}
	if track.Title == "" {
		track.Title = "Unknown Title"
	}
	if track.Artist == "" {
		track.Artist = "Unknown Artist"
	}
	if track.Album == "" {
		track.Album = "Unknown Album"
	}
	if track.Genre == "" {
		track.Genre = "Unknown"
	}
	return track
}

// resolveCover looks for the thumbnail yt-dlp wrote next to the audio file.
func (y *YTDLP) resolveCover(id string) string {
	for _, ext := range coverExtensions {
		candidate := filepath.Join(y.mediaDir, id+ext)
		if _, err := os.Stat(candidate); err == nil {
			return "/media/" + filepath.Base(candidate)
		}
	}
	return defaultCover
}

/// FormatDuration renders seconds as M:SS, or "--" when unknown.
func FormatDuration(seconds int) string {
	if seconds <= 0 {
		return "--"
	}
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}

func parseYear(info map[string]any) int {
	for _, key := range []string{"release_year", "year"} {
		if v := intValue(info[key]); v > 0 {
			return v
		}
	}
	if s, ok := info["upload_date"].(string); ok && len(s) >= 4 {
		if v, err := strconv.Atoi(s[:4]); err == nil {
			return v
		}
	}
	return 0
}

func intValue(v any) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	case string:
		if i, err := strconv.Atoi(n); err == nil {
			return i
		}
	}
	return 0
}

func firstString(info map[string]any, keys ...string) string {
	for _, key := range keys {
		if s, ok := info[key].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func parseJSONLines(out []byte) []map[string]any {
	var infos []map[string]any
	scanner := bufio.NewScanner(strings.NewReader(string(out)))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "{") {
			continue
		}
		var info map[string]any
		if err := json.Unmarshal([]byte(line), &info); err == nil {
			infos = append(infos, info)
		}
	}
	return infos
}

func commandError(out []byte, err error) string {
	if msg := strings.TrimSpace(string(out)); msg != "" {
		lines := strings.Split(msg, "\n")
		if len(lines) > 8 {
			lines = lines[len(lines)-8:]
		}
		return strings.Join(lines, "\n")
	}
	return err.Error()
}
