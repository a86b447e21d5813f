package handler

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/squashterm/api/internal/model"
	"github.com/squashterm/api/internal/store"
	"github.com/squashterm/api/pkg/response"
)

type FavoritesHandler struct {
	store     *store.Store
	validator *validator.Validate
}

func NewFavoritesHandler(st *store.Store, v *validator.Validate) *FavoritesHandler {
	return &FavoritesHandler{store: st, validator: v}
}

// Get handles GET /api/favorites
func (h *FavoritesHandler) Get(c *fiber.Ctx) error {
	doc := h.store.Snapshot()
	favorites := doc.Favorites
	if favorites == nil {
		favorites = []string{}
	}
	return response.OK(c, fiber.Map{"track_ids": favorites})
}

// Put handles PUT /api/favorites. The whole sequence is replaced; unknown
// track ids are dropped.
func (h *FavoritesHandler) Put(c *fiber.Ctx) error {
	var req model.FavoritesUpdateRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	favorites, err := h.store.ReplaceFavorites(req.TrackIDs)
	if err != nil {
		return response.ServiceError(c, err.Error())
	}
	if favorites == nil {
		favorites = []string{}
	}

	return response.OK(c, fiber.Map{"track_ids": favorites})
}
