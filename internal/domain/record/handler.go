package record

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/openclinical/ccda-analyst/internal/platform/assistant"
	"github.com/openclinical/ccda-analyst/internal/platform/auth"
	"github.com/openclinical/ccda-analyst/internal/platform/ccda"
	"github.com/openclinical/ccda-analyst/pkg/pagination"
)

// Assistant answers questions about a record and keeps its chat history.
type Assistant interface {
	Ask(ctx context.Context, key, summary, question string, onChunk func(string)) (assistant.Answer, error)
	History(key string) []assistant.Message
	Reset(key string)
}

type Handler struct {
	svc       *Service
	assistant Assistant
}

func NewHandler(svc *Service, a Assistant) *Handler {
	return &Handler{svc: svc, assistant: a}
}

// RegisterRoutes registers record endpoints. askMiddleware wraps only the
// ask endpoint.
func (h *Handler) RegisterRoutes(api *echo.Group, askMiddleware ...echo.MiddlewareFunc) {
	read := api.Group("", auth.RequireRole(auth.RoleReader, auth.RoleClinician))
	read.GET("/records", h.List)
	read.GET("/records/:id", h.Get)
	read.GET("/records/:id/summary", h.Summary)
	read.GET("/records/:id/sections", h.Sections)

	chat := api.Group("", auth.RequireRole(auth.RoleClinician))
	chat.POST("/records/:id/ask", h.Ask, askMiddleware...)
	chat.GET("/records/:id/chat", h.History)
	chat.DELETE("/records/:id/chat", h.ResetChat)

	write := api.Group("", auth.RequireRole(auth.RoleIngestor))
	write.POST("/records", h.Create)
}

func (h *Handler) List(c echo.Context) error {
	pg := pagination.FromContext(c)
	recs, total, err := h.svc.List(c.Request().Context(), c.QueryParam("q"), pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(newSummaries(recs), total, pg).WithLinks(c.Request().URL))
}

func (h *Handler) Get(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	rec, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return lookupError(err)
	}
	return c.JSON(http.StatusOK, Summary{Record: rec, Label: rec.Label()})
}

// Create handles POST /api/v1/records. The document is either the raw
// request body (name in ?filename=) or the "file" part of a multipart form.
func (h *Handler) Create(c echo.Context) error {
	filename, data, err := readUpload(c)
	if err != nil {
		return err
	}
	if filename == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "filename is required")
	}

	rec, err := h.svc.Ingest(c.Request().Context(), filename, data)
	if err != nil {
		if errors.Is(err, ErrInvalidDocument) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusCreated, Summary{Record: rec, Label: rec.Label()})
}

func readUpload(c echo.Context) (string, []byte, error) {
	if strings.HasPrefix(c.Request().Header.Get(echo.HeaderContentType), echo.MIMEMultipartForm) {
		fh, err := c.FormFile("file")
		if err != nil {
			return "", nil, echo.NewHTTPError(http.StatusBadRequest, "missing file part")
		}
		f, err := fh.Open()
		if err != nil {
			return "", nil, echo.NewHTTPError(http.StatusBadRequest, "failed to open upload")
		}
		defer f.Close()
		data, err := io.ReadAll(f)
		if err != nil {
			return "", nil, echo.NewHTTPError(http.StatusBadRequest, "failed to read upload")
		}
		return filepath.Base(fh.Filename), data, nil
	}

	data, err := io.ReadAll(c.Request().Body)
	if err != nil {
		var httpErr *echo.HTTPError
		if errors.As(err, &httpErr) {
			return "", nil, httpErr
		}
		return "", nil, echo.NewHTTPError(http.StatusBadRequest, "failed to read request body")
	}
	name := c.QueryParam("filename")
	if name != "" {
		name = filepath.Base(name)
	}
	return name, data, nil
}

// Summary handles GET /api/v1/records/:id/summary.
func (h *Handler) Summary(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	text, _, err := h.svc.Summary(c.Request().Context(), id)
	if err != nil {
		return lookupError(err)
	}
	return c.String(http.StatusOK, text)
}

// Sections handles GET /api/v1/records/:id/sections.
func (h *Handler) Sections(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	sections, err := h.svc.Sections(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return lookupError(err)
		}
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}
	if sections == nil {
		sections = []ccda.ClinicalSection{}
	}
	return c.JSON(http.StatusOK, sections)
}

type askRequest struct {
	Question string `json:"question"`
}

// Ask handles POST /api/v1/records/:id/ask. With ?stream=true the answer is
// written as plain text while it is generated.
func (h *Handler) Ask(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req askRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	req.Question = strings.TrimSpace(req.Question)
	if req.Question == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "question is required")
	}

	ctx := c.Request().Context()
	summary, _, err := h.svc.Summary(ctx, id)
	if err != nil {
		return lookupError(err)
	}

	if stream, _ := strconv.ParseBool(c.QueryParam("stream")); stream {
		return h.askStream(c, id, summary, req.Question)
	}

	answer, err := h.assistant.Ask(ctx, id.String(), summary, req.Question, nil)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}
	return c.JSON(http.StatusOK, answer)
}

func (h *Handler) askStream(c echo.Context, id uuid.UUID, summary, question string) error {
	res := c.Response()
	res.Header().Set(echo.HeaderContentType, echo.MIMETextPlainCharsetUTF8)
	res.Header().Set("Cache-Control", "no-cache")
	res.WriteHeader(http.StatusOK)

	_, err := h.assistant.Ask(c.Request().Context(), id.String(), summary, question, func(chunk string) {
		_, _ = io.WriteString(res, chunk)
		res.Flush()
	})
	if err != nil {
		// Headers are gone; the failure is reported in-band.
		_, _ = fmt.Fprintf(res, "\n\n%s", err.Error())
		res.Flush()
	}
	return nil
}

// History handles GET /api/v1/records/:id/chat.
func (h *Handler) History(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, h.assistant.History(id.String()))
}

// ResetChat handles DELETE /api/v1/records/:id/chat.
func (h *Handler) ResetChat(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	h.assistant.Reset(id.String())
	return c.NoContent(http.StatusNoContent)
}

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

func lookupError(err error) error {
	if errors.Is(err, ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "record not found")
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}
