// Package app assembles the long-lived components from the process
// configuration: metrics, record store, push client, retry coordinator and
// the optional MQTT status publisher.
package app

import (
	"context"
	"time"

	"github.com/tphakala/evalsync/internal/buildinfo"
	"github.com/tphakala/evalsync/internal/conf"
	"github.com/tphakala/evalsync/internal/coordinator"
	"github.com/tphakala/evalsync/internal/datastore"
	"github.com/tphakala/evalsync/internal/errors"
	"github.com/tphakala/evalsync/internal/logger"
	"github.com/tphakala/evalsync/internal/mqtt"
	"github.com/tphakala/evalsync/internal/observability"
	"github.com/tphakala/evalsync/internal/syncclient"
)

// App owns the assembled components. Close releases them in reverse order.
type App struct {
	Settings    *conf.Settings
	Build       *buildinfo.Context
	Metrics     *observability.Metrics
	Store       datastore.Interface
	Coordinator *coordinator.Coordinator

	log        logger.Logger
	mqttClient mqtt.Client
	publisher  *mqtt.StatusPublisher
}

// Option adjusts how New assembles the App.
type Option func(*options)

type options struct {
	store  datastore.Interface
	pusher coordinator.Pusher
	mqtt   mqtt.Client
}

// WithStore uses an already opened store instead of datastore.Open.
func WithStore(s datastore.Interface) Option {
	return func(o *options) { o.store = s }
}

// WithPusher replaces the HTTP push client.
func WithPusher(p coordinator.Pusher) Option {
	return func(o *options) { o.pusher = p }
}

// WithMQTTClient replaces the paho client used when mqtt is enabled.
func WithMQTTClient(c mqtt.Client) Option {
	return func(o *options) { o.mqtt = c }
}

// New builds the App and loads the push target from stored settings.
func New(ctx context.Context, settings *conf.Settings, opts ...Option) (*App, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	a := &App{
		Settings: settings,
		Build:    buildinfo.Current(),
		log:      logger.Global().Module("app"),
	}

	m, err := observability.NewMetrics()
	if err != nil {
		return nil, errors.New(err).Component("app").Category(errors.CategoryConfiguration).Build()
	}
	a.Metrics = m

	a.Store = o.store
	if a.Store == nil {
		a.Store, err = datastore.Open(settings, datastore.WithMetrics(m.Datastore))
		if err != nil {
			return nil, err
		}
	}

	pusher := o.pusher
	if pusher == nil {
		ua := settings.Sync.UserAgent
		if ua == "" || ua == "evalsync" {
			ua = a.Build.UserAgent()
		}
		pusher = syncclient.NewDefault(settings.Sync.HTTPTimeout, ua, logger.Global().Module("syncclient"), m.Sync)
	}

	coordOpts := []coordinator.Option{
		coordinator.WithBackoff(coordinator.ExponentialBackoff(settings.Sync.InitialBackoff)),
		coordinator.WithMaxAttempts(settings.Sync.MaxAttempts),
		coordinator.WithConcurrency(settings.Sync.Concurrency),
		coordinator.WithMetrics(m.Sync),
		coordinator.WithSerializedPushes(),
	}

	if settings.MQTT.Enabled {
		if err := a.startPublisher(ctx, o.mqtt); err != nil {
			_ = a.Close()
			return nil, err
		}
		coordOpts = append(coordOpts, coordinator.WithNotifier(a.publisher))
	}

	a.Coordinator = coordinator.New(a.Store, pusher, coordOpts...)
	if err := a.Coordinator.Reload(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}

	a.log.Info("application ready",
		logger.String("version", a.Build.GetVersion()),
		logger.String("storage_driver", settings.Storage.Driver),
		logger.Bool("registry_configured", a.Coordinator.Target().Configured()),
		logger.Bool("mqtt", settings.MQTT.Enabled))
	return a, nil
}

// startPublisher connects the broker and starts the status publisher. A
// broker that is down at startup is not fatal; paho keeps reconnecting.
func (a *App) startPublisher(ctx context.Context, client mqtt.Client) error {
	cfg := mqtt.ConfigFromSettings(&a.Settings.MQTT)
	if client == nil {
		var err error
		client, err = mqtt.NewClient(cfg, a.Metrics.MQTT, logger.Global().Module("mqtt"))
		if err != nil {
			return err
		}
	}
	a.mqttClient = client

	connectCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()
	if err := client.Connect(connectCtx); err != nil {
		a.log.Warn("MQTT broker not reachable, status messages will be dropped until it is",
			logger.String("broker", cfg.Broker),
			logger.Error(err))
	}

	a.publisher = mqtt.NewStatusPublisher(client, cfg, logger.Global().Module("mqtt"))
	return nil
}

// Close stops the publisher, disconnects the broker and closes the store.
func (a *App) Close() error {
	if a.publisher != nil {
		a.publisher.Stop()
	}
	if a.mqttClient != nil {
		a.mqttClient.Disconnect()
	}
	if a.Store != nil {
		return a.Store.Close()
	}
	return nil
}

// PushContext returns a context for a one-shot CLI push bounded by the worst
// case of the retry schedule plus per-attempt timeouts. attempts below 1 use
// sync.max_attempts; batches is the number of rounds of records pushed one
// after another, at least 1.
func (a *App) PushContext(parent context.Context, attempts, batches int) (context.Context, context.CancelFunc) {
	s := a.Settings.Sync
	if attempts < 1 {
		attempts = s.MaxAttempts
	}
	batches = max(batches, 1)
	perRecord := time.Duration(attempts)*s.HTTPTimeout + coordinator.ExponentialBackoff(s.InitialBackoff)(attempts)*2
	return context.WithTimeout(parent, perRecord*time.Duration(batches))
}
