package server

import (
	"github.com/gofiber/fiber/v2"

	"heartline/internal/models"
	"heartline/internal/service"
)

// Pagination holds parsed limit/offset query parameters.
type Pagination struct {
	Limit  int
	Offset int
}

func parsePagination(c *fiber.Ctx, defaultLimit int) Pagination {
	limit := c.QueryInt("limit", defaultLimit)
	if limit <= 0 {
		limit = defaultLimit
	}
	limit = min(limit, service.MaxFeedLimit)

	return Pagination{
		Limit:  limit,
		Offset: max(c.QueryInt("offset", 0), 0),
	}
}

// parseID extracts a positive uint route parameter. On failure it has already
// written a 400 response; callers return nil.
func parseID(c *fiber.Ctx, param string) (uint, bool) {
	id, err := c.ParamsInt(param)
	if err != nil || id <= 0 {
		_ = models.RespondWithError(c, fiber.StatusBadRequest, models.NewValidationError("Invalid ID"))
		return 0, false
	}
	return uint(id), true
}
