package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/squashterm/api/internal/importer"
	"github.com/squashterm/api/pkg/response"
)

type JobHandler struct {
	coord *importer.Coordinator
}

func NewJobHandler(coord *importer.Coordinator) *JobHandler {
	return &JobHandler{coord: coord}
}

// Get handles GET /api/jobs/:jobId. Polling fallback for clients that
// lost their event stream.
func (h *JobHandler) Get(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	job, err := h.coord.GetJob(jobID)
	if err != nil {
		if errors.Is(err, importer.ErrJobNotFound) {
			return response.NotFound(c, "Job not found")
		}
		return response.ServiceError(c, err.Error())
	}

	return response.OK(c, fiber.Map{
		"job":        job,
		"percentage": job.Percentage(),
	})
}
