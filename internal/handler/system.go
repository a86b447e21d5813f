package handler

import (
	"runtime"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/squashterm/api/internal/config"
	"github.com/squashterm/api/internal/store"
	"github.com/squashterm/api/pkg/response"
)

type SystemHandler struct {
	store   *store.Store
	cfg     *config.Config
	started time.Time
}

func NewSystemHandler(st *store.Store, cfg *config.Config) *SystemHandler {
	return &SystemHandler{store: st, cfg: cfg, started: time.Now()}
}

// Status handles GET /api/status
func (h *SystemHandler) Status(c *fiber.Ctx) error {
	doc := h.store.Snapshot()
	return response.OK(c, fiber.Map{
		"status":         "ok",
		"uptime_seconds": int(time.Since(h.started).Seconds()),
		"tracks":         len(doc.Tracks),
		"playlists":      len(doc.Playlists),
		"favorites":      len(doc.Favorites),
	})
}

// Settings handles GET /api/settings. Reports the effective runtime
// configuration, secrets excluded.
func (h *SystemHandler) Settings(c *fiber.Ctx) error {
	return response.OK(c, fiber.Map{
		"import": fiber.Map{
			"default_concurrency":   h.cfg.Import.DefaultConcurrency,
			"max_concurrency":       h.cfg.Import.MaxConcurrency,
			"fetch_timeout_minutes": h.cfg.Import.FetchTimeoutMinutes,
			"fetcher_binary":        h.cfg.Import.FetcherBinary,
		},
		"autosync": fiber.Map{
			"poll_seconds":         h.cfg.AutoSync.PollSeconds,
			"min_interval_minutes": h.cfg.AutoSync.MinIntervalMinutes,
		},
		"queue_backend": queueBackend(h.cfg),
		"auth_enabled":  h.cfg.Auth.Secret != "",
	})
}

// System handles GET /api/system
func (h *SystemHandler) System(c *fiber.Ctx) error {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	return response.OK(c, fiber.Map{
		"go_version":   runtime.Version(),
		"goroutines":   runtime.NumGoroutine(),
		"alloc_bytes":  mem.Alloc,
		"num_cpu":      runtime.NumCPU(),
		"data_dir":     h.cfg.Data.Dir,
		"media_dir":    h.cfg.Data.MediaDir,
		"library_file": h.cfg.Data.LibraryFile,
		"env":          h.cfg.Server.Env,
	})
}

func queueBackend(cfg *config.Config) string {
	if cfg.Redis.Addr != "" {
		return "asynq"
	}
	return "pool"
}
