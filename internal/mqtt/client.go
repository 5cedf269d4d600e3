package mqtt

import (
	"context"
	"net"
	"net/url"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/tphakala/evalsync/internal/errors"
	"github.com/tphakala/evalsync/internal/logger"
)

const (
	component = "mqtt"

	// qosAtLeastOnce is used for every publish.
	qosAtLeastOnce byte = 1
)

// Metrics receives connection and publish measurements.
// *metrics.MQTTMetrics implements it.
type Metrics interface {
	SetConnected(connected bool)
	ObservePublish(size int, latency time.Duration)
	IncrementErrors()
}

type noopMetrics struct{}

func (noopMetrics) SetConnected(bool) {}
func (noopMetrics) ObservePublish(int, time.Duration) {}
func (noopMetrics) IncrementErrors() {}

// client implements Client on top of paho. Reconnection is left to paho's
// auto-reconnect.
type client struct {
	config  Config
	metrics Metrics
	log     logger.Logger

	mu       sync.Mutex
	internal paho.Client
}

// NewClient creates an unconnected client. m may be nil.
func NewClient(cfg Config, m Metrics, log logger.Logger) (Client, error) {
	if cfg.Broker == "" {
		return nil, errors.Newf("mqtt broker is not set").
			Component(component).
			Category(errors.CategoryConfiguration).
			Build()
	}
	if _, err := url.Parse(cfg.Broker); err != nil {
		return nil, errors.New(err).
			Component(component).
			Category(errors.CategoryConfiguration).
			Context("operation", "parse_broker_url").
			Build()
	}
	if m == nil {
		m = noopMetrics{}
	}
	if log == nil {
		log = logger.Global().Module(component)
	}
	return &client{config: cfg, metrics: m, log: log}, nil
}

// Connect resolves the broker host and connects, waiting at most
// ConnectTimeout.
func (c *client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	u, err := url.Parse(c.config.Broker)
	if err != nil {
		return c.connError(err, "parse_broker_url")
	}
	if host := u.Hostname(); host != "" && net.ParseIP(host) == nil {
		if _, err := net.DefaultResolver.LookupHost(ctx, host); err != nil {
			return c.connError(err, "resolve_broker")
		}
	}

	opts := paho.NewClientOptions()
	opts.AddBroker(c.config.Broker)
	opts.SetClientID(c.config.ClientID)
	opts.SetUsername(c.config.Username)
	opts.SetPassword(c.config.Password)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectTimeout(c.config.ConnectTimeout)
	opts.SetOnConnectHandler(c.onConnect)
	opts.SetConnectionLostHandler(c.onConnectionLost)

	c.internal = paho.NewClient(opts)
	token := c.internal.Connect()

	select {
	case <-token.Done():
	case <-ctx.Done():
		return c.connError(ctx.Err(), "connect")
	case <-time.After(c.config.ConnectTimeout):
		return c.connError(errors.NewStd("connection timeout"), "connect")
	}
	if err := token.Error(); err != nil {
		return c.connError(err, "connect")
	}

	c.metrics.SetConnected(true)
	return nil
}

func (c *client) connError(err error, operation string) error {
	c.metrics.IncrementErrors()
	return errors.New(err).
		Component(component).
		Category(errors.CategoryMQTTConnection).
		NetworkContext(c.config.Broker, c.config.ConnectTimeout).
		Context("operation", operation).
		Build()
}

// Publish sends payload with QoS 1, not retained.
func (c *client) Publish(ctx context.Context, topic string, payload []byte) error {
	c.mu.Lock()
	internal := c.internal
	c.mu.Unlock()

	if internal == nil || !internal.IsConnected() {
		return c.publishError(errors.NewStd("not connected to MQTT broker"), topic)
	}

	start := time.Now()
	token := internal.Publish(topic, qosAtLeastOnce, false, payload)
	select {
	case <-token.Done():
	case <-ctx.Done():
		return c.publishError(ctx.Err(), topic)
	case <-time.After(c.config.PublishTimeout):
		return c.publishError(errors.NewStd("publish timeout"), topic)
	}
	if err := token.Error(); err != nil {
		return c.publishError(err, topic)
	}

	c.metrics.ObservePublish(len(payload), time.Since(start))
	return nil
}

func (c *client) publishError(err error, topic string) error {
	c.metrics.IncrementErrors()
	return errors.New(err).
		Component(component).
		Category(errors.CategoryMQTTPublish).
		Context("topic", topic).
		Build()
}

// IsConnected returns true if the client is currently connected to the MQTT broker.
func (c *client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.internal != nil && c.internal.IsConnected()
}

// Disconnect closes the connection to the MQTT broker.
func (c *client) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.internal != nil && c.internal.IsConnected() {
		c.internal.Disconnect(uint(c.config.DisconnectTimeout.Milliseconds()))
		c.metrics.SetConnected(false)
	}
}

func (c *client) onConnect(paho.Client) {
	c.log.Info("connected to MQTT broker", logger.String("broker", c.config.Broker))
	c.metrics.SetConnected(true)
}

func (c *client) onConnectionLost(_ paho.Client, err error) {
	c.log.Warn("connection to MQTT broker lost",
		logger.String("broker", c.config.Broker),
		logger.Error(err))
	c.metrics.SetConnected(false)
	c.metrics.IncrementErrors()
}
