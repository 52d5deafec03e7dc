package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	"github.com/skinscan/skinscan/internal/logger"
)

// HeaderCorrelationID carries the per-request ID used in logs and error reports.
const HeaderCorrelationID = "X-Correlation-ID"

const (
	defaultCORSOrigin  = "http://localhost:3000"
	rateLimiterExpires = 3 * time.Minute
)

func (s *Server) setupMiddleware() {
	s.echo.Use(middleware.Recover())
	s.echo.Use(correlationID())
	s.echo.Use(s.httpMetrics())
	s.echo.Use(accessLog())
	s.echo.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:  s.corsOrigins(),
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowHeaders:  []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, HeaderCorrelationID},
		ExposeHeaders: []string{HeaderCorrelationID},
	}))
}

func (s *Server) corsOrigins() []string {
	if len(s.settings.WebServer.CORSOrigins) == 0 {
		return []string{defaultCORSOrigin}
	}
	return s.settings.WebServer.CORSOrigins
}

// correlationID reuses a client supplied X-Correlation-ID or generates one,
// and stores it in the request context as the log trace ID.
func correlationID() echo.MiddlewareFunc {
	return middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator:    uuid.NewString,
		TargetHeader: HeaderCorrelationID,
		RequestIDHandler: func(c echo.Context, id string) {
			req := c.Request()
			c.SetRequest(req.WithContext(logger.WithTraceID(req.Context(), id)))
		},
	})
}

func accessLog() echo.MiddlewareFunc {
	log := GetLogger().Module("access")
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:   true,
		LogURI:      true,
		LogMethod:   true,
		LogLatency:  true,
		LogRemoteIP: true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			fields := []logger.Field{
				logger.String("method", v.Method),
				logger.String("uri", v.URI),
				logger.Int("status", v.Status),
				logger.String("ip", v.RemoteIP),
				logger.Duration("latency", v.Latency),
			}
			if v.Error != nil {
				fields = append(fields, logger.Error(v.Error))
			}
			log.WithContext(c.Request().Context()).Info("request", fields...)
			return nil
		},
	})
}

// httpMetrics records request count, latency and in-flight gauge per route.
func (s *Server) httpMetrics() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if s.metrics == nil {
				return next(c)
			}

			s.metrics.HTTP.RequestStarted()
			start := time.Now()
			err := next(c)
			if err != nil && !c.Response().Committed {
				c.Error(err)
			}

			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			s.metrics.HTTP.RecordHTTPRequest(c.Request().Method, route, c.Response().Status, time.Since(start).Seconds())
			return nil
		}
	}
}

// uploadLimit caps the request body of upload routes at the configured size.
func (s *Server) uploadLimit() echo.MiddlewareFunc {
	limit := s.settings.Decoder.MaxUploadBytes
	if limit <= 0 {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	return middleware.BodyLimit(strconv.FormatInt(limit, 10) + "B")
}

// rateLimit throttles upload routes per client IP.
func (s *Server) rateLimit() echo.MiddlewareFunc {
	cfg := s.settings.WebServer.RateLimit
	if !cfg.Enabled || cfg.RequestsPerSecond <= 0 {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}

	store := middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
		Rate:      rate.Limit(cfg.RequestsPerSecond),
		Burst:     cfg.Burst,
		ExpiresIn: rateLimiterExpires,
	})

	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Store: store,
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		ErrorHandler: func(c echo.Context, err error) error {
			return errorJSON(c, http.StatusForbidden, http.StatusText(http.StatusForbidden))
		},
		DenyHandler: func(c echo.Context, identifier string, err error) error {
			GetLogger().WithContext(c.Request().Context()).Debug("Rate limit exceeded",
				logger.String("client", identifier))
			return errorJSON(c, http.StatusTooManyRequests, msgTooManyRequests)
		},
	})
}
