package report

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/url"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/pagd-project/pagd-go/internal/conf"
	"github.com/pagd-project/pagd-go/internal/errors"
	"github.com/pagd-project/pagd-go/internal/logger"
	"github.com/pagd-project/pagd-go/internal/observability/metrics"
	"github.com/pagd-project/pagd-go/internal/privacy"
)

// MQTTConfig holds the broker connection settings.
type MQTTConfig struct {
	Broker   string
	Topic    string
	ClientID string
	Username string
	Password string
	Retain   bool

	ConnectTimeout    time.Duration
	PublishTimeout    time.Duration
	DisconnectTimeout time.Duration
}

// MQTTConfigFromSettings maps settings onto MQTTConfig with default timeouts.
func MQTTConfigFromSettings(s conf.MQTTSettings, node string) MQTTConfig {
	cfg := DefaultMQTTConfig()
	cfg.Broker = s.Broker
	cfg.Topic = s.Topic
	cfg.ClientID = s.ClientID
	if cfg.ClientID == "" {
		cfg.ClientID = node
	}
	cfg.Username = s.Username
	cfg.Password = s.Password
	cfg.Retain = s.Retain
	return cfg
}

// DefaultMQTTConfig returns a config with reasonable timeouts.
func DefaultMQTTConfig() MQTTConfig {
	return MQTTConfig{
		ConnectTimeout:    30 * time.Second,
		PublishTimeout:    10 * time.Second,
		DisconnectTimeout: 250 * time.Millisecond,
	}
}

// mqttClient is the part of mqtt.Client the publisher uses.
type mqttClient interface {
	Connect() mqtt.Token
	IsConnected() bool
	Publish(topic string, qos byte, retained bool, payload any) mqtt.Token
	Disconnect(quiesce uint)
}

var newMQTTClient = func(opts *mqtt.ClientOptions) mqttClient {
	return mqtt.NewClient(opts)
}

// MQTTPublisher is a Sink publishing each report as JSON, QoS 0.
type MQTTPublisher struct {
	cfg     MQTTConfig
	metrics *metrics.ReportMetrics
	log     logger.Logger

	mu     sync.Mutex
	client mqttClient
}

// NewMQTTPublisher returns an unconnected publisher.
func NewMQTTPublisher(cfg MQTTConfig, m *metrics.ReportMetrics) *MQTTPublisher {
	return &MQTTPublisher{
		cfg:     cfg,
		metrics: m,
		log:     GetLogger().With(logger.String("broker", privacy.SanitizeURL(cfg.Broker))),
	}
}

// Name implements Sink.
func (p *MQTTPublisher) Name() string { return "mqtt" }

// Connect resolves the broker and connects. The client keeps retrying in
// the background after a failed or lost connection.
func (p *MQTTPublisher) Connect(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	u, err := url.Parse(p.cfg.Broker)
	if err != nil {
		return connectionError(fmt.Errorf("invalid broker URL: %w", err), p.cfg.Broker)
	}
	if u.Hostname() == "" {
		return connectionError(fmt.Errorf("broker URL %q has no host", p.cfg.Broker), p.cfg.Broker)
	}

	host := u.Hostname()
	if net.ParseIP(host) == nil {
		if _, err := net.DefaultResolver.LookupHost(ctx, host); err != nil {
			return connectionError(fmt.Errorf("failed to resolve hostname %s: %w", host, err), p.cfg.Broker)
		}
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(p.cfg.Broker)
	opts.SetClientID(p.cfg.ClientID)
	opts.SetUsername(p.cfg.Username)
	opts.SetPassword(p.cfg.Password)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetOnConnectHandler(p.onConnect)
	opts.SetConnectionLostHandler(p.onConnectionLost)
	opts.SetReconnectingHandler(p.onReconnecting)

	p.client = newMQTTClient(opts)

	if err := waitToken(ctx, p.client.Connect(), p.cfg.ConnectTimeout); err != nil {
		p.metrics.IncrementErrors()
		return connectionError(err, p.cfg.Broker)
	}

	p.metrics.UpdateConnectionStatus(true)
	return nil
}

// Publish implements Sink.
func (p *MQTTPublisher) Publish(ctx context.Context, r Report) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.client == nil || !p.client.IsConnected() {
		p.metrics.IncrementErrors()
		return connectionError(fmt.Errorf("not connected to MQTT broker"), p.cfg.Broker)
	}

	payload, err := json.Marshal(r)
	if err != nil {
		return errors.New(err).
			Component("report").
			Category(errors.CategoryMQTTPublish).
			Build()
	}

	start := time.Now()
	if err := waitToken(ctx, p.client.Publish(p.cfg.Topic, 0, p.cfg.Retain, payload), p.cfg.PublishTimeout); err != nil {
		p.metrics.IncrementErrors()
		return errors.New(fmt.Errorf("publish to %s: %w", p.cfg.Topic, err)).
			Component("report").
			Category(errors.CategoryMQTTPublish).
			Context("topic", p.cfg.Topic).
			Build()
	}

	p.metrics.ObservePublishLatency(time.Since(start))
	p.metrics.ObserveMessageSize(len(payload))
	p.metrics.IncrementMessagesDelivered()
	p.log.Debug("report published",
		logger.String("topic", p.cfg.Topic),
		logger.String("report_id", r.ID.String()))
	return nil
}

// IsConnected reports whether the broker connection is up.
func (p *MQTTPublisher) IsConnected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.client != nil && p.client.IsConnected()
}

// Close disconnects from the broker.
func (p *MQTTPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.client != nil {
		p.client.Disconnect(uint(p.cfg.DisconnectTimeout.Milliseconds()))
		p.client = nil
		p.metrics.UpdateConnectionStatus(false)
	}
	return nil
}

func (p *MQTTPublisher) onConnect(mqtt.Client) {
	p.log.Info("connected to MQTT broker")
	p.metrics.UpdateConnectionStatus(true)
}

func (p *MQTTPublisher) onConnectionLost(_ mqtt.Client, err error) {
	p.log.Warn("connection to MQTT broker lost", logger.Error(err))
	p.metrics.UpdateConnectionStatus(false)
	p.metrics.IncrementErrors()
}

func (p *MQTTPublisher) onReconnecting(mqtt.Client, *mqtt.ClientOptions) {
	p.metrics.IncrementReconnectAttempts()
}

func waitToken(ctx context.Context, t mqtt.Token, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-t.Done():
		return t.Error()
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return fmt.Errorf("timeout after %v", timeout)
	}
}

func connectionError(err error, broker string) error {
	return errors.New(err).
		Component("report").
		Category(errors.CategoryMQTTConnection).
		Context("broker", privacy.SanitizeURL(broker)).
		Build()
}
