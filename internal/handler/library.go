package handler

import (
	"bufio"
	"errors"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/valyala/fasthttp"

	"github.com/squashterm/api/internal/importer"
	"github.com/squashterm/api/internal/model"
	"github.com/squashterm/api/internal/store"
	"github.com/squashterm/api/internal/stream"
	"github.com/squashterm/api/pkg/response"
)

type LibraryHandler struct {
	store     *store.Store
	coord     *importer.Coordinator
	hub       *stream.Hub
	mediaDir  string
	validator *validator.Validate
}

func NewLibraryHandler(st *store.Store, coord *importer.Coordinator, hub *stream.Hub, mediaDir string, v *validator.Validate) *LibraryHandler {
	return &LibraryHandler{
		store:     st,
		coord:     coord,
		hub:       hub,
		mediaDir:  mediaDir,
		validator: v,
	}
}

// List handles GET /api/library
func (h *LibraryHandler) List(c *fiber.Ctx) error {
	return response.OK(c, h.store.Snapshot())
}

// UpdateTrack handles PUT /api/library/:trackId
func (h *LibraryHandler) UpdateTrack(c *fiber.Ctx) error {
	trackID := c.Params("trackId")
	if trackID == "" {
		return response.ValidationError(c, "Track ID is required", nil)
	}

	var req model.TrackUpdateRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	track, err := h.store.UpdateTrack(trackID, model.TrackPatch{
		Title:     req.Title,
		Artist:    req.Artist,
		Album:     req.Album,
		Genre:     req.Genre,
		SourceURL: req.SourceURL,
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return response.NotFound(c, "Track not found")
		}
		return response.ServiceError(c, err.Error())
	}

	return response.OK(c, track)
}

// DeleteTrack handles DELETE /api/library/:trackId
func (h *LibraryHandler) DeleteTrack(c *fiber.Ctx) error {
	trackID := c.Params("trackId")
	if trackID == "" {
		return response.ValidationError(c, "Track ID is required", nil)
	}

	track, err := h.store.DeleteTrack(trackID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return response.NotFound(c, "Track not found")
		}
		return response.ServiceError(c, err.Error())
	}

	h.removeMediaAssets(track)

	return response.OK(c, fiber.Map{"deleted": track.ID})
}

// removeMediaAssets deletes the stored audio file and cover image for a
// track that is no longer in the library. Missing files are not an error.
func (h *LibraryHandler) removeMediaAssets(track model.Track) {
	if track.FilePath != "" {
		if err := os.Remove(track.FilePath); err != nil && !os.IsNotExist(err) {
			log.Printf("Failed to remove media file %s: %v", track.FilePath, err)
		}
	}
	if strings.HasPrefix(track.Cover, "/media/") {
		cover := filepath.Join(h.mediaDir, filepath.Base(track.Cover))
		if err := os.Remove(cover); err != nil && !os.IsNotExist(err) {
			log.Printf("Failed to remove cover %s: %v", cover, err)
		}
	}
}

// Import handles POST /api/library/import. It blocks until the download
// finishes and returns the stored tracks plus the fetch log.
func (h *LibraryHandler) Import(c *fiber.Ctx) error {
	var req model.ImportRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	jobID, err := h.coord.SubmitSingle(c.Context(), req)
	if err != nil {
		return importError(c, err)
	}

	job, err := h.coord.Wait(jobID)
	if err != nil {
		return response.ServiceError(c, err.Error())
	}

	tracks, fetchLog, err := h.coord.Result(jobID)
	if err != nil {
		return response.ServiceError(c, err.Error())
	}

	if job.Completed == 0 {
		msg := "Import failed"
		if len(job.Items) > 0 && job.Items[0].Error != "" {
			msg = job.Items[0].Error
		}
		return response.Error(c, fiber.StatusBadGateway, response.CodeJobFailed, msg, fiber.Map{"log": fetchLog})
	}

	return response.OK(c, fiber.Map{
		"tracks": tracks,
		"log":    fetchLog,
	})
}

// ImportStream handles POST /api/library/import/stream. The job's events
// are pushed as SSE frames until the terminal event.
func (h *LibraryHandler) ImportStream(c *fiber.Ctx) error {
	var req model.ImportRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	jobID, err := h.coord.SubmitSingle(c.Context(), req)
	if err != nil {
		return importError(c, err)
	}

	return h.streamJob(c, jobID)
}

// ImportPlaylistBatch handles POST /api/library/import/playlist-batch.
// The reference may be a single item or a whole collection; the job
// resolves it and announces the total with a playlist_info event.
func (h *LibraryHandler) ImportPlaylistBatch(c *fiber.Ctx) error {
	var req model.BatchImportRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	jobID, err := h.coord.SubmitBatch(c.Context(), req)
	if err != nil {
		return importError(c, err)
	}

	return h.streamJob(c, jobID)
}

// streamJob relays a job's event stream to the client as SSE frames. The
// job keeps running if the client disconnects.
func (h *LibraryHandler) streamJob(c *fiber.Ctx, jobID string) error {
	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("X-Job-Id", jobID)

	hub := h.hub
	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		sub, err := hub.Subscribe(jobID)
		if err != nil {
			return
		}
		defer hub.Unsubscribe(sub)
		stream.Relay(w, sub)
	}))
	return nil
}

func importError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, importer.ErrInvalidRequest):
		return response.ValidationError(c, err.Error(), nil)
	default:
		return response.ServiceError(c, err.Error())
	}
}
