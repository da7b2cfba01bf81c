package ccda

import (
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
)

// Handler exposes the flattener and the identity extractor over HTTP for
// documents that are not (yet) stored.
type Handler struct {
	flattener *Flattener
}

// NewHandler creates a new C-CDA handler.
func NewHandler(flattener *Flattener) *Handler {
	return &Handler{flattener: flattener}
}

// RegisterRoutes registers C-CDA endpoints on the provided route group.
//
//	POST /api/v1/ccda/flatten   - Render the clinical sections as text
//	POST /api/v1/ccda/sections  - Return the clinical sections as JSON
//	POST /api/v1/ccda/identity  - Extract the patient identity
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.POST("/ccda/flatten", h.Flatten)
	g.POST("/ccda/sections", h.Sections)
	g.POST("/ccda/identity", h.Identity)
}

// Flatten handles POST /api/v1/ccda/flatten. Malformed documents still get
// a 200 with the diagnostic text, the same string a chat prompt would see.
func (h *Handler) Flatten(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "failed to read request body",
		})
	}
	return c.String(http.StatusOK, h.flattener.Flatten(Markup(body)))
}

// Sections handles POST /api/v1/ccda/sections.
func (h *Handler) Sections(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "failed to read request body",
		})
	}

	sections, err := h.flattener.Sections(Markup(body))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
	}
	if sections == nil {
		sections = []ClinicalSection{}
	}
	return c.JSON(http.StatusOK, sections)
}

// Identity handles POST /api/v1/ccda/identity.
func (h *Handler) Identity(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "failed to read request body",
		})
	}

	identity, err := ExtractIdentityFromBytes(body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "failed to parse C-CDA: " + err.Error(),
		})
	}
	return c.JSON(http.StatusOK, identity)
}
