package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/skinscan/skinscan/internal/errors"
	"github.com/skinscan/skinscan/internal/history"
	"github.com/skinscan/skinscan/internal/logger"
)

// ListHistory handles GET /api/v1/history. Pages are cached until the next
// write or until history.cachettl passes.
func (s *Server) ListHistory(c echo.Context) error {
	if s.store == nil {
		return errorJSON(c, http.StatusNotFound, msgHistoryDisabled)
	}

	limit, err := queryInt(c, "limit", history.DefaultListLimit)
	if err != nil {
		return errorJSON(c, http.StatusBadRequest, err.Error())
	}
	offset, err := queryInt(c, "offset", 0)
	if err != nil {
		return errorJSON(c, http.StatusBadRequest, err.Error())
	}
	opts := history.ListOptions{
		Owner:  c.QueryParam("owner"),
		Limit:  limit,
		Offset: offset,
	}

	key := listCacheKey(opts)
	if cached, found := s.listCache.get(key); found {
		s.recordCacheLookup(true)
		return c.JSON(http.StatusOK, cached)
	}
	s.recordCacheLookup(false)

	generation := s.listCache.begin()
	page, err := s.store.List(c.Request().Context(), opts)
	if err != nil {
		return s.storeError(c, err)
	}
	s.listCache.store(generation, key, page)
	return c.JSON(http.StatusOK, page)
}

// GetHistory handles GET /api/v1/history/:id.
func (s *Server) GetHistory(c echo.Context) error {
	if s.store == nil {
		return errorJSON(c, http.StatusNotFound, msgHistoryDisabled)
	}

	record, err := s.store.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return s.storeError(c, err)
	}
	return c.JSON(http.StatusOK, record)
}

// DeleteHistory handles DELETE /api/v1/history/:id.
func (s *Server) DeleteHistory(c echo.Context) error {
	if s.store == nil {
		return errorJSON(c, http.StatusNotFound, msgHistoryDisabled)
	}

	if err := s.store.Delete(c.Request().Context(), c.Param("id")); err != nil {
		return s.storeError(c, err)
	}
	s.listCache.invalidate()
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) storeError(c echo.Context, err error) error {
	if errors.Is(err, history.ErrNotFound) {
		return errorJSON(c, http.StatusNotFound, msgRecordNotFound)
	}
	GetLogger().WithContext(c.Request().Context()).Error("Scan history query failed",
		logger.String("path", c.Path()),
		logger.Error(err))
	return errorJSON(c, http.StatusInternalServerError, msgStoreFailure)
}

func (s *Server) recordCacheLookup(hit bool) {
	if s.metrics != nil {
		s.metrics.History.RecordCacheLookup(hit)
	}
}

func queryInt(c echo.Context, name string, fallback int) (int, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("%s: %s must be a non-negative integer", msgInvalidQuery, name)
	}
	return v, nil
}

func listCacheKey(opts history.ListOptions) string {
	return fmt.Sprintf("history:%s:%d:%d", opts.Owner, opts.Limit, opts.Offset)
}
