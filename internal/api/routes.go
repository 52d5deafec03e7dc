package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/skinscan/skinscan/internal/diagnosis"
)

const apiPrefix = "/api/v1"

func (s *Server) setupRoutes() {
	upload := []echo.MiddlewareFunc{s.rateLimit(), s.uploadLimit()}

	// Original path kept for existing clients.
	s.echo.POST("/disease-detection", s.DetectDisease, upload...)

	v1 := s.echo.Group(apiPrefix)
	v1.POST("/disease-detection", s.DetectDisease, upload...)
	v1.GET("/health", s.Health)
	v1.GET("/labels", s.Labels)

	v1.GET("/history", s.ListHistory)
	v1.GET("/history/:id", s.GetHistory)
	v1.DELETE("/history/:id", s.DeleteHistory)
}

// Labels returns the label table in model output order.
func (s *Server) Labels(c echo.Context) error {
	return c.JSON(http.StatusOK, diagnosis.Table())
}
