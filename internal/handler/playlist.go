package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/squashterm/api/internal/importer"
	"github.com/squashterm/api/internal/model"
	"github.com/squashterm/api/internal/store"
	"github.com/squashterm/api/internal/syncer"
	"github.com/squashterm/api/pkg/response"
)

type PlaylistHandler struct {
	store     *store.Store
	sync      *syncer.Scheduler
	validator *validator.Validate
}

func NewPlaylistHandler(st *store.Store, sync *syncer.Scheduler, v *validator.Validate) *PlaylistHandler {
	return &PlaylistHandler{
		store:     st,
		sync:      sync,
		validator: v,
	}
}

// List handles GET /api/playlists
func (h *PlaylistHandler) List(c *fiber.Ctx) error {
	doc := h.store.Snapshot()
	return response.OK(c, doc.Playlists)
}

// Create handles POST /api/playlists
func (h *PlaylistHandler) Create(c *fiber.Ctx) error {
	var req model.PlaylistCreateRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	playlist, err := h.store.CreatePlaylist(req.Name, req.TrackIDs, model.PlaylistSettingsPatch{
		AutoSyncURL:             req.AutoSyncURL,
		AutoSyncIntervalMinutes: req.AutoSyncIntervalMinutes,
		AutoSyncEnabled:         req.AutoSyncEnabled,
	})
	if err != nil {
		return response.ServiceError(c, err.Error())
	}

	return response.Created(c, playlist)
}

// Update handles PUT /api/playlists/:id. Any combination of name, explicit
// track order, and auto-sync settings may be changed in one call.
func (h *PlaylistHandler) Update(c *fiber.Ctx) error {
	playlistID := c.Params("id")
	if playlistID == "" {
		return response.ValidationError(c, "Playlist ID is required", nil)
	}

	var req model.PlaylistUpdateRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	if req.TrackIDs != nil {
		if _, err := h.store.ReplacePlaylistTracks(playlistID, *req.TrackIDs); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return response.NotFound(c, "Playlist not found")
			}
			return response.ServiceError(c, err.Error())
		}
	}

	playlist, err := h.store.UpdatePlaylistSettings(playlistID, model.PlaylistSettingsPatch{
		Name:                    req.Name,
		AutoSyncURL:             req.AutoSyncURL,
		AutoSyncIntervalMinutes: req.AutoSyncIntervalMinutes,
		AutoSyncEnabled:         req.AutoSyncEnabled,
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return response.NotFound(c, "Playlist not found")
		}
		return response.ServiceError(c, err.Error())
	}

	return response.OK(c, playlist)
}

// Delete handles DELETE /api/playlists/:id. Tracks stay in the library.
func (h *PlaylistHandler) Delete(c *fiber.Ctx) error {
	playlistID := c.Params("id")
	if playlistID == "" {
		return response.ValidationError(c, "Playlist ID is required", nil)
	}

	if err := h.store.DeletePlaylist(playlistID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return response.NotFound(c, "Playlist not found")
		}
		return response.ServiceError(c, err.Error())
	}

	return response.NoContent(c)
}

// Sync handles POST /api/playlists/:id/sync. Starts a manual sync run and
// returns the job id, or 409 when one is already running.
func (h *PlaylistHandler) Sync(c *fiber.Ctx) error {
	playlistID := c.Params("id")
	if playlistID == "" {
		return response.ValidationError(c, "Playlist ID is required", nil)
	}

	jobID, err := h.sync.TriggerSync(c.Context(), playlistID)
	if err != nil {
		switch {
		case errors.Is(err, syncer.ErrSyncInProgress):
			return response.Conflict(c, "Sync already in progress")
		case errors.Is(err, syncer.ErrSyncNotConfigured):
			return response.ValidationError(c, err.Error(), nil)
		case errors.Is(err, store.ErrNotFound):
			return response.NotFound(c, "Playlist not found")
		case errors.Is(err, importer.ErrResolutionFailure):
			return response.ValidationError(c, err.Error(), nil)
		default:
			return response.ServiceError(c, err.Error())
		}
	}

	if jobID == "" {
		return response.OK(c, fiber.Map{"status": "up_to_date"})
	}
	return response.Accepted(c, fiber.Map{"status": "started", "job_id": jobID})
}
