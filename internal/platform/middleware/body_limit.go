package middleware

import (
	"fmt"
	"io"
	"mime"
	"net/http"

	"github.com/labstack/echo/v4"
)

// BodyLimit caps request bodies. Requests that carry a document (XML or a
// multipart upload) may use up to documentLimit bytes; every other body is
// held to defaultLimit.
//
// An oversized Content-Length is rejected with 413 before the handler runs.
// Bodies without a trustworthy length are cut off while being read and the
// read fails with a 413 echo.HTTPError.
func BodyLimit(defaultLimit, documentLimit int64) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if req.Body == nil || req.Body == http.NoBody {
				return next(c)
			}

			limit := defaultLimit
			if isDocument(req.Header.Get(echo.HeaderContentType)) {
				limit = documentLimit
			}

			if req.ContentLength > limit {
				return payloadTooLargeError(c, limit)
			}

			req.Body = &limitedReadCloser{
				ReadCloser: req.Body,
				remaining:  limit,
			}
			return next(c)
		}
	}
}

func isDocument(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	switch mediaType {
	case echo.MIMEApplicationXML, echo.MIMETextXML, echo.MIMEMultipartForm, "application/hl7-v3+xml":
		return true
	}
	return false
}

// limitedReadCloser fails every read once more than remaining bytes have
// been consumed.
type limitedReadCloser struct {
	io.ReadCloser
	remaining int64
	exceeded  bool
}

func (r *limitedReadCloser) Read(p []byte) (n int, err error) {
	if r.exceeded {
		return 0, echo.NewHTTPError(http.StatusRequestEntityTooLarge, "request body too large")
	}

	// One extra byte detects overflow.
	toRead := int64(len(p))
	if toRead > r.remaining+1 {
		toRead = r.remaining + 1
	}

	n, err = r.ReadCloser.Read(p[:toRead])
	r.remaining -= int64(n)

	if r.remaining < 0 {
		r.exceeded = true
		return 0, echo.NewHTTPError(http.StatusRequestEntityTooLarge, "request body too large")
	}
	return n, err
}

func payloadTooLargeError(c echo.Context, limit int64) error {
	return c.JSON(http.StatusRequestEntityTooLarge, map[string]string{
		"error": fmt.Sprintf("request body exceeds maximum allowed size of %d bytes", limit),
	})
}
