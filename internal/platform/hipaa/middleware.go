package hipaa

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/openclinical/ccda-analyst/internal/platform/auth"
)

// AccessAudit records every request to a route carrying a record :id,
// including denied and failed ones. A failed write is logged and does not
// change the response.
func AccessAudit(rec Recorder, logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			err := next(c)

			recordID, parseErr := uuid.Parse(c.Param("id"))
			if parseErr != nil {
				return err
			}

			req := c.Request()
			reqID, _ := c.Get("request_id").(string)
			entry := &AccessEntry{
				RecordID:  recordID,
				UserID:    auth.UserIDFromContext(req.Context()),
				Roles:     auth.RolesFromContext(req.Context()),
				Action:    ActionFor(req.Method, c.Path()),
				Route:     c.Path(),
				Status:    statusOf(c, err),
				IPAddress: c.RealIP(),
				UserAgent: req.UserAgent(),
				RequestID: reqID,
			}

			// The entry outlives a client that hangs up mid-request.
			if recErr := rec.Record(context.WithoutCancel(req.Context()), entry); recErr != nil {
				logger.Error().Err(recErr).
					Str("request_id", reqID).
					Str("record_id", recordID.String()).
					Msg("failed to record phi access")
			}
			return err
		}
	}
}

func statusOf(c echo.Context, err error) int {
	if err == nil {
		return c.Response().Status
	}
	if he, ok := err.(*echo.HTTPError); ok {
		return he.Code
	}
	return http.StatusInternalServerError
}
