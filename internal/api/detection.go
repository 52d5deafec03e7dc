package api

import (
	"context"
	"io"
	"net/http"
	"unicode/utf8"

	"github.com/labstack/echo/v4"

	"github.com/skinscan/skinscan/internal/errors"
	"github.com/skinscan/skinscan/internal/events"
	"github.com/skinscan/skinscan/internal/history"
	"github.com/skinscan/skinscan/internal/inference"
	"github.com/skinscan/skinscan/internal/logger"
)

const (
	formFieldImage = "image"
	formFieldOwner = "owner"
	maxOwnerLength = 128
)

// DetectDisease handles POST /disease-detection. The body is a multipart
// form with the image in field "image".
func (s *Server) DetectDisease(c echo.Context) error {
	ctx := c.Request().Context()
	log := GetLogger().WithContext(ctx)

	data, err := s.readUpload(c)
	if err != nil {
		if errors.Is(err, echo.ErrStatusRequestEntityTooLarge) {
			return errorJSON(c, http.StatusRequestEntityTooLarge, s.uploadTooLargeMessage())
		}
		log.Debug("Upload rejected", logger.Error(err))
		return errorJSON(c, http.StatusBadRequest, inference.MsgNoImage)
	}

	if timeout := s.settings.WebServer.RequestTimeout; timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	outcome, err := s.service.ClassifyContext(ctx, data)
	if err != nil {
		return s.classificationError(c, err)
	}

	s.afterClassification(c, outcome)
	return c.JSON(http.StatusOK, outcome.Result)
}

func (s *Server) readUpload(c echo.Context) ([]byte, error) {
	fh, err := c.FormFile(formFieldImage)
	if err != nil {
		return nil, err
	}

	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := f.Close(); err != nil {
			GetLogger().Debug("Failed to close upload", logger.Error(err))
		}
	}()

	limit := s.service.MaxUploadBytes()
	if limit <= 0 {
		return io.ReadAll(f)
	}
	// One extra byte lets the service see and reject an oversize part.
	return io.ReadAll(io.LimitReader(f, limit+1))
}

func (s *Server) classificationError(c echo.Context, err error) error {
	log := GetLogger().WithContext(c.Request().Context())

	var inputErr *inference.InputError
	switch {
	case errors.Is(err, inference.ErrTimeout):
		return errorJSON(c, http.StatusServiceUnavailable, inference.MsgTimeout)
	case errors.As(err, &inputErr):
		return errorJSON(c, http.StatusBadRequest, inputErr.Message)
	default:
		log.Error("Image classification failed",
			logger.String("correlation_id", c.Response().Header().Get(HeaderCorrelationID)),
			logger.Error(err))
		return errorJSON(c, http.StatusInternalServerError, inference.MsgInternalFailure)
	}
}

// afterClassification records history and publishes the event. Neither can
// change the response.
func (s *Server) afterClassification(c echo.Context, outcome *inference.Outcome) {
	var recordID string

	if s.store != nil {
		record := history.NewRecord(ownerFrom(c), outcome)
		ctx, cancel := context.WithTimeout(context.WithoutCancel(c.Request().Context()), historySaveBudget)
		err := s.store.Save(ctx, record)
		cancel()
		if err != nil {
			GetLogger().WithContext(c.Request().Context()).Warn("Failed to save scan record", logger.Error(err))
		} else {
			recordID = record.ID
			s.listCache.invalidate()
		}
	}

	if s.events != nil {
		s.events.Enqueue(events.NewEvent(recordID, outcome))
	}
}

func ownerFrom(c echo.Context) string {
	return truncateOwner(c.FormValue(formFieldOwner))
}

// truncateOwner caps owner at maxOwnerLength bytes without splitting a
// multi-byte rune.
func truncateOwner(owner string) string {
	if len(owner) <= maxOwnerLength {
		return owner
	}
	cut := maxOwnerLength
	for cut > 0 && !utf8.RuneStart(owner[cut]) {
		cut--
	}
	return owner[:cut]
}
