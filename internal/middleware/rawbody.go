package middleware

import (
	"bytes"
	"errors"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
)

const rawBodyKey = "raw_body"

// RawBody reads the request body once and keeps the exact bytes on the
// context. Signatures are computed over these bytes, so handlers must use
// RawBodyFrom rather than re-encoding a bound struct.
func RawBody() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if req.Body == nil {
				c.Set(rawBodyKey, []byte{})
				return next(c)
			}

			body, err := io.ReadAll(req.Body)
			if err != nil {
				var httpErr *echo.HTTPError
				if errors.As(err, &httpErr) {
					return httpErr
				}
				return echo.NewHTTPError(http.StatusBadRequest, "unreadable request body")
			}
			_ = req.Body.Close()

			req.Body = io.NopCloser(bytes.NewReader(body))
			c.Set(rawBodyKey, body)
			return next(c)
		}
	}
}

// RawBodyFrom returns the bytes captured by RawBody, or nil when the
// middleware did not run.
func RawBodyFrom(c echo.Context) []byte {
	body, _ := c.Get(rawBodyKey).([]byte)
	return body
}
