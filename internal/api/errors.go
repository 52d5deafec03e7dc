package api

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/skinscan/skinscan/internal/errors"
	"github.com/skinscan/skinscan/internal/logger"
)

// ErrorResponse is the only error shape the API returns.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Messages for failures the handlers produce themselves.
const (
	msgHistoryDisabled = "Scan history is disabled"
	msgRecordNotFound  = "Scan record not found"
	msgStoreFailure    = "Scan history is unavailable"
	msgTooManyRequests = "Too many requests, please wait before trying again"
	msgInvalidQuery    = "Invalid query parameter"
)

func errorJSON(c echo.Context, status int, message string) error {
	return c.JSON(status, ErrorResponse{Error: message})
}

// httpErrorHandler renders every unhandled error as {"error": ...} and
// never leaks internal detail for 5xx responses.
func (s *Server) httpErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status := http.StatusInternalServerError
	message := http.StatusText(status)

	var he *echo.HTTPError
	if errors.As(err, &he) {
		status = he.Code
		switch {
		case status == http.StatusRequestEntityTooLarge:
			message = s.uploadTooLargeMessage()
		case status < http.StatusInternalServerError:
			message = fmt.Sprint(he.Message)
		default:
			message = http.StatusText(status)
		}
	}

	if status >= http.StatusInternalServerError {
		err = httpFailure(err, c)
		GetLogger().WithContext(c.Request().Context()).Error("Unhandled request error",
			logger.String("path", c.Path()),
			logger.Error(err))
	}

	if c.Request().Method == http.MethodHead {
		err = c.NoContent(status)
	} else {
		err = errorJSON(c, status, message)
	}
	if err != nil {
		GetLogger().Warn("Failed to write error response", logger.Error(err))
	}
}

// httpFailure tags an unhandled 5xx so it reaches telemetry grouped by route.
func httpFailure(err error, c echo.Context) error {
	return errors.New(err).
		Component("api").
		Category(errors.CategoryHTTP).
		Context("method", c.Request().Method).
		Context("route", c.Path()).
		Build()
}

func (s *Server) uploadTooLargeMessage() string {
	return fmt.Sprintf("Image exceeds the maximum upload size of %d bytes", s.settings.Decoder.MaxUploadBytes)
}
