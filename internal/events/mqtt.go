package events

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/url"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/skinscan/skinscan/internal/conf"
	"github.com/skinscan/skinscan/internal/errors"
	"github.com/skinscan/skinscan/internal/logger"
	"github.com/skinscan/skinscan/internal/observability/metrics"
	"github.com/skinscan/skinscan/internal/privacy"
)

// Timeouts for broker interaction.
const (
	ConnectTimeout    = 30 * time.Second
	PublishTimeout    = 10 * time.Second
	disconnectQuiesce = 250 // milliseconds
	maxReconnectDelay = 5 * time.Minute
)

// MQTTPublisher publishes events to one topic. paho handles reconnection;
// the publisher only mirrors connection state into metrics.
type MQTTPublisher struct {
	settings conf.MQTTSettings
	metrics  *metrics.MQTTMetrics
	log      logger.Logger

	mu     sync.Mutex
	client mqtt.Client
}

// NewMQTTPublisher prepares a publisher. Connect must be called before
// Publish.
func NewMQTTPublisher(settings *conf.MQTTSettings, m *metrics.MQTTMetrics) (*MQTTPublisher, error) {
	if settings.Broker == "" {
		return nil, errors.ValidationError("mqtt broker must be set")
	}
	if settings.Topic == "" {
		return nil, errors.ValidationError("mqtt topic must be set")
	}
	if settings.QoS > 2 {
		return nil, errors.ValidationError(fmt.Sprintf("mqtt qos must be 0, 1 or 2, got %d", settings.QoS))
	}
	return &MQTTPublisher{
		settings: *settings,
		metrics:  m,
		log:      GetLogger().With(logger.String("broker", privacy.SanitizeURL(settings.Broker))),
	}, nil
}

func (p *MQTTPublisher) clientOptions() *mqtt.ClientOptions {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(p.settings.Broker)
	opts.SetClientID(p.settings.ClientID)
	opts.SetUsername(p.settings.Username)
	opts.SetPassword(p.settings.Password)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(false)
	opts.SetMaxReconnectInterval(maxReconnectDelay)
	opts.SetConnectTimeout(ConnectTimeout)
	opts.SetOnConnectHandler(p.onConnect)
	opts.SetConnectionLostHandler(p.onConnectionLost)
	opts.SetReconnectingHandler(p.onReconnecting)
	return opts
}

// Connect resolves the broker host and connects.
func (p *MQTTPublisher) Connect(ctx context.Context) error {
	if err := resolveBroker(ctx, p.settings.Broker); err != nil {
		p.countError()
		return err
	}
	return p.connectWith(mqtt.NewClient(p.clientOptions()))
}

func (p *MQTTPublisher) connectWith(client mqtt.Client) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	token := client.Connect()
	if !token.WaitTimeout(ConnectTimeout) {
		p.countError()
		return messagingError(fmt.Errorf("connection to %s timed out", p.settings.Broker), "connect")
	}
	if err := token.Error(); err != nil {
		p.countError()
		return messagingError(fmt.Errorf("connection error: %w", err), "connect")
	}

	p.client = client
	if p.metrics != nil {
		p.metrics.UpdateConnectionStatus(true)
	}
	return nil
}

func resolveBroker(ctx context.Context, broker string) error {
	u, err := url.Parse(broker)
	if err != nil {
		return messagingError(fmt.Errorf("invalid broker URL: %w", err), "resolve")
	}
	host := u.Hostname()
	if host == "" || net.ParseIP(host) != nil {
		return nil
	}
	if _, err := net.DefaultResolver.LookupHost(ctx, host); err != nil {
		return messagingError(fmt.Errorf("failed to resolve hostname %s: %w", host, err), "resolve")
	}
	return nil
}

// IsConnected reports the broker connection state.
func (p *MQTTPublisher) IsConnected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.client != nil && p.client.IsConnected()
}

// Publish sends event as JSON and waits for the broker acknowledgement.
func (p *MQTTPublisher) Publish(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return messagingError(fmt.Errorf("failed to marshal event: %w", err), "marshal")
	}

	p.mu.Lock()
	client := p.client
	p.mu.Unlock()

	if client == nil || !client.IsConnected() {
		p.countError()
		return messagingError(fmt.Errorf("not connected to MQTT broker"), "publish")
	}

	var timer *metrics.PublishTimer
	if p.metrics != nil {
		timer = p.metrics.StartPublishTimer()
	}

	token := client.Publish(p.settings.Topic, p.settings.QoS, p.settings.Retain, payload)
	select {
	case <-token.Done():
	case <-ctx.Done():
		p.countError()
		return messagingError(fmt.Errorf("publish to %s cancelled: %w", p.settings.Topic, ctx.Err()), "publish")
	case <-time.After(PublishTimeout):
		p.countError()
		return messagingError(fmt.Errorf("publish to %s timed out", p.settings.Topic), "publish")
	}
	if err := token.Error(); err != nil {
		p.countError()
		return messagingError(fmt.Errorf("publish to %s failed: %w", p.settings.Topic, err), "publish")
	}

	if p.metrics != nil {
		timer.ObserveDuration()
		p.metrics.IncrementMessagesDelivered()
		p.metrics.ObserveMessageSize(len(payload))
	}
	p.log.Debug("Event published",
		logger.String("topic", p.settings.Topic),
		logger.String("label", event.PredictedCondition),
		logger.Int("bytes", len(payload)))
	return nil
}

// Close disconnects from the broker.
func (p *MQTTPublisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.client != nil {
		p.client.Disconnect(disconnectQuiesce)
		p.client = nil
	}
	if p.metrics != nil {
		p.metrics.UpdateConnectionStatus(false)
	}
}

func (p *MQTTPublisher) onConnect(mqtt.Client) {
	p.log.Info("Connected to MQTT broker")
	if p.metrics != nil {
		p.metrics.UpdateConnectionStatus(true)
	}
}

func (p *MQTTPublisher) onConnectionLost(_ mqtt.Client, err error) {
	p.log.Warn("Connection to MQTT broker lost", logger.Error(err))
	if p.metrics != nil {
		p.metrics.UpdateConnectionStatus(false)
	}
	p.countError()
}

func (p *MQTTPublisher) onReconnecting(mqtt.Client, *mqtt.ClientOptions) {
	p.log.Debug("Reconnecting to MQTT broker")
	if p.metrics != nil {
		p.metrics.IncrementReconnectAttempts()
	}
}

func (p *MQTTPublisher) countError() {
	if p.metrics != nil {
		p.metrics.IncrementErrors()
	}
}

func messagingError(err error, operation string) error {
	return errors.New(err).
		Component("events").
		Category(errors.CategoryMessaging).
		Context("operation", operation).
		Build()
}

var _ Publisher = (*MQTTPublisher)(nil)
