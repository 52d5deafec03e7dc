package observability

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/skinscan/skinscan/internal/conf"
	"github.com/skinscan/skinscan/internal/logger"
	metricspkg "github.com/skinscan/skinscan/internal/observability/metrics"
)

const readHeaderTimeout = 5 * time.Second

// Endpoint serves the Prometheus metrics on a dedicated listener so that
// scraping never competes with the classification API.
type Endpoint struct {
	server        *http.Server
	listenAddress string
	metrics       *Metrics
}

// NewEndpoint returns an error when telemetry is disabled in settings.
func NewEndpoint(settings *conf.Settings, metrics *Metrics) (*Endpoint, error) {
	if !settings.Telemetry.Enabled {
		return nil, fmt.Errorf("telemetry not enabled in settings")
	}
	if metrics == nil {
		return nil, fmt.Errorf("metrics cannot be nil")
	}

	mux := http.NewServeMux()
	metrics.RegisterHandlers(mux)

	return &Endpoint{
		listenAddress: settings.Telemetry.Listen,
		metrics:       metrics,
		server: &http.Server{
			Addr:              settings.Telemetry.Listen,
			Handler:           mux,
			ReadHeaderTimeout: readHeaderTimeout,
		},
	}, nil
}

// Run serves until ctx is cancelled, then shuts down within
// metrics.ShutdownTimeout. It is meant to run inside an errgroup.
func (e *Endpoint) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", e.listenAddress)
	if err != nil {
		return fmt.Errorf("telemetry endpoint listen on %s: %w", e.listenAddress, err)
	}
	return e.Serve(ctx, ln)
}

// Serve is Run with a caller supplied listener.
func (e *Endpoint) Serve(ctx context.Context, ln net.Listener) error {
	log := GetLogger()
	log.Info("Telemetry endpoint starting", logger.String("address", ln.Addr().String()))

	errCh := make(chan error, 1)
	go func() {
		if err := e.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			log.Error("Telemetry HTTP server error", logger.Error(err))
		}
		return err
	case <-ctx.Done():
	}

	log.Info("Stopping telemetry server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), metricspkg.ShutdownTimeout)
	defer cancel()
	if err := e.server.Shutdown(shutdownCtx); err != nil {
		log.Error("Telemetry server shutdown error", logger.Error(err))
		return err
	}
	<-errCh
	return nil
}

// GetMetrics returns the Metrics instance associated with this Endpoint.
func (e *Endpoint) GetMetrics() *Metrics {
	return e.metrics
}
