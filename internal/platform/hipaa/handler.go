package hipaa

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/openclinical/ccda-analyst/internal/platform/auth"
	"github.com/openclinical/ccda-analyst/pkg/pagination"
)

// Lister reads the access history of a record.
type Lister interface {
	ListByRecord(ctx context.Context, recordID uuid.UUID, limit, offset int) ([]*AccessEntry, int, error)
}

type Handler struct {
	lister Lister
}

func NewHandler(lister Lister) *Handler {
	return &Handler{lister: lister}
}

// RegisterRoutes registers the admin-only access log endpoint.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	admin := api.Group("", auth.RequireRole(auth.RoleAdmin))
	admin.GET("/records/:id/access", h.ListAccess)
}

// ListAccess handles GET /api/v1/records/:id/access.
func (h *Handler) ListAccess(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	pg := pagination.FromContext(c)
	entries, total, err := h.lister.ListByRecord(c.Request().Context(), id, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if entries == nil {
		entries = []*AccessEntry{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(entries, total, pg).WithLinks(c.Request().URL))
}
