package e2e

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/squashterm/api/internal/config"
	"github.com/squashterm/api/internal/fetcher"
	"github.com/squashterm/api/internal/handler"
	"github.com/squashterm/api/internal/importer"
	"github.com/squashterm/api/internal/middleware"
	"github.com/squashterm/api/internal/model"
	"github.com/squashterm/api/internal/store"
	"github.com/squashterm/api/internal/stream"
	"github.com/squashterm/api/internal/syncer"
)

// fakeFetcher synthesizes one track per reference so imports run without a
// downloader binary or network access.
type fakeFetcher struct {
	mu         sync.Mutex
	entries    []fetcher.Entry
	failRefs   map[string]bool
	resolveErr error
}

func (f *fakeFetcher) Resolve(ctx context.Context, ref string) (*fetcher.Resolution, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.resolveErr != nil {
		return nil, f.resolveErr
	}
	if len(f.entries) > 0 {
		return &fetcher.Resolution{Collection: true, Entries: append([]fetcher.Entry(nil), f.entries...)}, nil
	}
	return &fetcher.Resolution{
		Collection: false,
		Entries:    []fetcher.Entry{{ID: refID(ref), SourceURL: ref}},
	}, nil
}

func (f *fakeFetcher) Fetch(ctx context.Context, ref string) (*fetcher.Result, error) {
	f.mu.Lock()
	fail := f.failRefs[ref]
	f.mu.Unlock()
	if fail {
		return nil, errors.New("download failed")
	}
	id := refID(ref)
	return &fetcher.Result{
		Tracks: []model.Track{{
			ID:        "yt_" + id,
			Title:     "Track " + id,
			Artist:    "Artist",
			Album:     "Album",
			Duration:  "3:05",
			SourceURL: ref,
		}},
		Log: "[download] 100% of 3.0MiB",
	}, nil
}

func (f *fakeFetcher) FetchStream(ctx context.Context, ref string, onLine func(string)) (*fetcher.Result, error) {
	if onLine != nil {
		onLine("[download]  50.0% of 3.0MiB")
		onLine("[download] 100% of 3.0MiB")
	}
	return f.Fetch(ctx, ref)
}

func refID(ref string) string {
	if i := strings.LastIndex(ref, "="); i >= 0 {
		return ref[i+1:]
	}
	return ref[strings.LastIndex(ref, "/")+1:]
}

// testApp holds all components needed for testing
type testApp struct {
	app      *fiber.App
	store    *store.Store
	fetch    *fakeFetcher
	coord    *importer.Coordinator
	mediaDir string
}

// setupApp creates a Fiber app wired the same way as main.go, with the
// in-process queue, a temp-dir library document, and the fake fetcher.
func setupApp(t *testing.T, authSecret string) *testApp {
	t.Helper()

	cfg := &config.Config{
		Server: config.ServerConfig{Port: "0", Env: "test"},
		Data: config.DataConfig{
			Dir:         t.TempDir(),
			LibraryFile: "library.json",
		},
		Import: config.ImportConfig{
			DefaultConcurrency: 3,
			MaxConcurrency:     5,
		},
		AutoSync: config.AutoSyncConfig{PollSeconds: 3600, MinIntervalMinutes: 1},
		Auth:     config.AuthConfig{Secret: authSecret},
	}

	mediaDir := filepath.Join(cfg.Data.Dir, "media")
	if err := os.MkdirAll(mediaDir, 0o755); err != nil {
		t.Fatalf("failed to create media dir: %v", err)
	}

	st, err := store.Open(filepath.Join(cfg.Data.Dir, cfg.Data.LibraryFile))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(st.Close)

	validate := validator.New()
	hub := stream.NewHub()
	fetch := &fakeFetcher{}

	coord := importer.NewCoordinator(st, fetch, hub, importer.Config{
		DefaultConcurrency: cfg.Import.DefaultConcurrency,
		MaxConcurrency:     cfg.Import.MaxConcurrency,
	}, nil)

	sched := syncer.New(st, coord, fetch,
		time.Duration(cfg.AutoSync.PollSeconds)*time.Second,
		time.Duration(cfg.AutoSync.MinIntervalMinutes)*time.Minute,
	)

	libraryHandler := handler.NewLibraryHandler(st, coord, hub, mediaDir, validate)
	playlistHandler := handler.NewPlaylistHandler(st, sched, validate)
	favoritesHandler := handler.NewFavoritesHandler(st, validate)
	jobHandler := handler.NewJobHandler(coord)
	systemHandler := handler.NewSystemHandler(st, cfg)

	authMiddleware := middleware.NewAuthMiddleware(cfg.Auth.Secret)

	app := fiber.New()

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api", authMiddleware.Authenticate())

	api.Get("/library", libraryHandler.List)
	api.Put("/library/:trackId", libraryHandler.UpdateTrack)
	api.Delete("/library/:trackId", libraryHandler.DeleteTrack)
	api.Post("/library/import", libraryHandler.Import)
	api.Post("/library/import/stream", libraryHandler.ImportStream)
	api.Post("/library/import/playlist-batch", libraryHandler.ImportPlaylistBatch)

	api.Get("/playlists", playlistHandler.List)
	api.Post("/playlists", playlistHandler.Create)
	api.Put("/playlists/:id", playlistHandler.Update)
	api.Delete("/playlists/:id", playlistHandler.Delete)
	api.Post("/playlists/:id/sync", playlistHandler.Sync)

	api.Get("/favorites", favoritesHandler.Get)
	api.Put("/favorites", favoritesHandler.Put)

	api.Get("/jobs/:jobId", jobHandler.Get)

	api.Get("/status", systemHandler.Status)
	api.Get("/settings", systemHandler.Settings)
	api.Get("/system", systemHandler.System)

	return &testApp{app: app, store: st, fetch: fetch, coord: coord, mediaDir: mediaDir}
}

// doRequest is a helper to perform HTTP requests against the test app.
func doRequest(app *fiber.App, method, path string, body string, headers map[string]string) (*http.Response, error) {
	var bodyReader io.Reader
	if body != "" {
		bodyReader = strings.NewReader(body)
	}

	req, err := http.NewRequest(method, path, bodyReader)
	if err != nil {
		return nil, err
	}

	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return app.Test(req, -1)
}

// readBody reads and returns the response body as a string.
func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	return string(b)
}

// parseJSON parses response body into a map.
func parseJSON(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	body := readBody(t, resp)
	var result map[string]interface{}
	if err := json.Unmarshal([]byte(body), &result); err != nil {
		t.Fatalf("failed to parse JSON: %v\nbody: %s", err, body)
	}
	return result
}

// parseSSE splits an SSE body into its decoded event payloads.
func parseSSE(t *testing.T, body string) []map[string]interface{} {
	t.Helper()
	var events []map[string]interface{}
	for _, frame := range strings.Split(body, "\n\n") {
		frame = strings.TrimSpace(frame)
		if !strings.HasPrefix(frame, "data: ") {
			continue
		}
		var ev map[string]interface{}
		payload := strings.TrimPrefix(frame, "data: ")
		if err := json.Unmarshal([]byte(payload), &ev); err != nil {
			t.Fatalf("bad SSE payload: %v\npayload: %s", err, payload)
		}
		events = append(events, ev)
	}
	return events
}

// assertStatus checks the HTTP status code.
func assertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("expected status %d, got %d", expected, resp.StatusCode)
	}
}
