// Package serve implements the long-running HTTP service command.
package serve

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/skinscan/skinscan/internal/api"
	"github.com/skinscan/skinscan/internal/buildinfo"
	"github.com/skinscan/skinscan/internal/classifier"
	"github.com/skinscan/skinscan/internal/conf"
	"github.com/skinscan/skinscan/internal/events"
	"github.com/skinscan/skinscan/internal/history"
	"github.com/skinscan/skinscan/internal/inference"
	"github.com/skinscan/skinscan/internal/logger"
	"github.com/skinscan/skinscan/internal/observability"
	"github.com/skinscan/skinscan/internal/observability/metrics"
	"github.com/skinscan/skinscan/internal/telemetry"
)

const mqttConnectBudget = 45 * time.Second

// Command creates the serve command.
func Command(settings *conf.Settings, build *buildinfo.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the classification API",
		Long:  "Load the model and serve POST /disease-detection until interrupted.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return Run(ctx, settings, build)
		},
	}

	setupFlags(cmd, settings)
	return cmd
}

func setupFlags(cmd *cobra.Command, settings *conf.Settings) {
	cmd.Flags().StringVar(&settings.WebServer.Host, "host", viper.GetString("webserver.host"), "Listen host")
	cmd.Flags().StringVarP(&settings.WebServer.Port, "port", "p", viper.GetString("webserver.port"), "Listen port")
	cmd.Flags().BoolVar(&settings.Telemetry.Enabled, "telemetry", viper.GetBool("telemetry.enabled"), "Enable Prometheus telemetry endpoint")
	cmd.Flags().StringVar(&settings.Telemetry.Listen, "listen", viper.GetString("telemetry.listen"), "Listen address and port of telemetry endpoint")
}

// Run wires every component and blocks until ctx is cancelled or a
// component fails. A model that cannot be loaded aborts before anything
// listens.
func Run(ctx context.Context, settings *conf.Settings, build *buildinfo.Context) error {
	log := GetLogger()

	if err := telemetry.InitSentry(settings, build.GetVersion()); err != nil {
		log.Warn("Sentry initialization failed, continuing without error reporting", logger.Error(err))
	}
	defer telemetry.Flush()

	m, err := observability.NewMetrics()
	if err != nil {
		return fmt.Errorf("failed to initialize metrics: %w", err)
	}

	model, err := loadModel(settings, m)
	if err != nil {
		return err
	}
	defer func() {
		if err := model.Close(); err != nil {
			log.Warn("Failed to release model", logger.Error(err))
		}
	}()

	opts := inference.OptionsFromSettings(settings)
	opts.Metrics = m.Inference
	service, err := inference.NewService(model, opts)
	if err != nil {
		return err
	}

	serverOpts := []api.ServerOption{api.WithMetrics(m), api.WithBuildInfo(build)}

	if store := history.New(settings, m.History); store != nil {
		if err := store.Open(); err != nil {
			return fmt.Errorf("failed to open scan history: %w", err)
		}
		defer func() {
			if err := store.Close(); err != nil {
				log.Warn("Failed to close scan history", logger.Error(err))
			}
		}()
		serverOpts = append(serverOpts, api.WithHistory(store))
	}

	c, err := buildComponents(settings, service, m, connectEvents(ctx, settings, m), serverOpts...)
	if err != nil {
		return err
	}

	log.Info("SkinScan started",
		logger.String("version", build.GetVersion()),
		logger.String("address", settings.WebServer.Address()),
		logger.String("model", service.ModelInfo().Name))

	err = c.run(ctx)
	log.Info("SkinScan stopped")
	return err
}

// components are the long-running parts of serve. All of them are built
// before any goroutine starts, so a failed constructor leaves nothing
// running.
type components struct {
	server     *api.Server
	endpoint   *observability.Endpoint
	dispatcher *events.Dispatcher
}

// buildComponents takes ownership of dispatcher and closes it on failure.
func buildComponents(settings *conf.Settings, service *inference.Service, m *observability.Metrics,
	dispatcher *events.Dispatcher, serverOpts ...api.ServerOption,
) (c *components, err error) {
	defer func() {
		if err != nil && dispatcher != nil {
			dispatcher.Close()
		}
	}()

	c = &components{dispatcher: dispatcher}
	if dispatcher != nil {
		serverOpts = append(serverOpts, api.WithEvents(dispatcher))
	}

	if settings.Telemetry.Enabled {
		if c.endpoint, err = observability.NewEndpoint(settings, m); err != nil {
			return nil, err
		}
	}

	if c.server, err = api.New(settings, service, serverOpts...); err != nil {
		return nil, err
	}
	return c, nil
}

// run blocks until ctx is cancelled or one component fails.
func (c *components) run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	if c.dispatcher != nil {
		g.Go(func() error { return c.dispatcher.Run(gctx) })
	}
	if c.endpoint != nil {
		g.Go(func() error { return c.endpoint.Run(gctx) })
	}
	g.Go(func() error { return c.server.Run(gctx) })
	return g.Wait()
}

func loadModel(settings *conf.Settings, m *observability.Metrics) (classifier.Model, error) {
	start := time.Now()
	model, err := inference.LoadModel(&settings.Model)
	if err != nil {
		m.Inference.RecordOperation(metrics.OpModelLoad, metrics.StatusError)
		m.Inference.SetModelLoaded(false)
		return nil, err
	}
	m.Inference.RecordOperation(metrics.OpModelLoad, metrics.StatusSuccess)
	m.Inference.SetModelLoaded(true)

	info := model.Info()
	GetLogger().Info("Model loaded",
		logger.String("name", info.Name),
		logger.String("runtime", info.Runtime),
		logger.Int("threads", info.Threads),
		logger.Duration("elapsed", time.Since(start)))
	return model, nil
}

// connectEvents returns nil when MQTT is disabled or unreachable. Events
// are best effort, so a broker outage never blocks startup.
func connectEvents(ctx context.Context, settings *conf.Settings, m *observability.Metrics) *events.Dispatcher {
	if !settings.MQTT.Enabled {
		return nil
	}

	publisher, err := events.NewMQTTPublisher(&settings.MQTT, m.MQTT)
	if err != nil {
		GetLogger().Warn("MQTT disabled by invalid settings", logger.Error(err))
		return nil
	}

	connectCtx, cancel := context.WithTimeout(ctx, mqttConnectBudget)
	defer cancel()
	if err := publisher.Connect(connectCtx); err != nil {
		GetLogger().Warn("MQTT broker unreachable, classification events disabled", logger.Error(err))
		publisher.Close()
		return nil
	}
	return events.NewDispatcher(publisher, events.DefaultQueueSize)
}
