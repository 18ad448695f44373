// Package daemon assembles the voxflux process: the action store with its
// middleware chain, the voice adapter, durable preferences and the HTTP API.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/nupi-ai/voxflux/internal/action"
	"github.com/nupi-ai/voxflux/internal/config"
	configstore "github.com/nupi-ai/voxflux/internal/config/store"
	"github.com/nupi-ai/voxflux/internal/eventbus"
	"github.com/nupi-ai/voxflux/internal/flux"
	"github.com/nupi-ai/voxflux/internal/observability"
	"github.com/nupi-ai/voxflux/internal/phone"
	"github.com/nupi-ai/voxflux/internal/prefs"
	"github.com/nupi-ai/voxflux/internal/server"
	"github.com/nupi-ai/voxflux/internal/status"
	"github.com/nupi-ai/voxflux/internal/voice"
)

const (
	// shutdownTimeout bounds the graceful HTTP shutdown.
	shutdownTimeout   = 5 * time.Second
	readHeaderTimeout = 10 * time.Second
)

// ErrNoGateway is returned by the phone factory when no gateway is configured.
var ErrNoGateway = errors.New("daemon: no gateway configured")

// Options groups dependencies required to construct a Daemon.
type Options struct {
	Config config.Config
	Logger zerolog.Logger

	// Store holds durable audio device preferences. Optional.
	Store *configstore.Store

	// PhoneFactory overrides the websocket client built from Config.Gateway.
	PhoneFactory phone.Factory
}

// Daemon represents the running process.
type Daemon struct {
	cfg     config.Config
	logger  zerolog.Logger
	bus     *eventbus.Bus
	store   *flux.Store[status.State]
	adapter *voice.Adapter
	metrics *observability.Metrics
	http    *http.Server

	mu       sync.Mutex
	listener net.Listener
	serveErr error
	stopped  bool
}

// New validates the configuration and builds every component. Nothing is
// started until Start.
func New(opts Options) (*Daemon, error) {
	cfg := opts.Config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := opts.Logger

	factory := opts.PhoneFactory
	if factory == nil {
		factory = gatewayFactory(cfg.Gateway, logger)
	}

	var durable prefs.Storage
	if opts.Store != nil {
		durable = prefs.NewDurable(opts.Store)
	}

	bus := eventbus.New(eventbus.WithLogger(logger.With().Str("component", "eventbus").Logger()))
	adapter := voice.New(factory, durable, &prefs.Session{},
		voice.WithActionFactory(action.NewFactory(cfg.Voice.Prefix)),
		voice.WithStoreAudioDevices(cfg.Voice.StoreAudioDevices),
		voice.WithConnectOnIncoming(cfg.Voice.ConnectOnIncoming),
		voice.WithLogger(logger),
	)
	prefix := adapter.Prefix()
	metrics := observability.NewMetrics(prefix, bus)
	metrics.TrackDevices(adapter)

	store := flux.New(status.Publisher(bus, status.Reducer(prefix)), status.State{},
		flux.WithBus(bus),
		flux.WithMiddleware(
			observability.Logging(logger),
			metrics.Middleware(),
			adapter.Middleware(),
		),
	)

	api := server.New(store, adapter.Actions(),
		server.WithLogger(logger),
		server.WithMetrics(metrics.Handler()),
		server.WithDevices(adapter),
		server.WithOriginCheck(cfg.OriginAllowed),
	)

	return &Daemon{
		cfg:     cfg,
		logger:  logger,
		bus:     bus,
		store:   store,
		adapter: adapter,
		metrics: metrics,
		http: &http.Server{
			Handler:           api.Router(),
			ReadHeaderTimeout: readHeaderTimeout,
		},
	}, nil
}

func gatewayFactory(gateway string, logger zerolog.Logger) phone.Factory {
	if gateway == "" {
		return func() (phone.Client, error) { return nil, ErrNoGateway }
	}
	return phone.NewWSFactory(gateway, phone.WithLogger(logger))
}

// Start binds the listen address, serves the API in the background and
// dispatches setup for every configured device.
func (d *Daemon) Start() error {
	ln, err := net.Listen("tcp", d.cfg.Listen)
	if err != nil {
		return fmt.Errorf("daemon: listen on %s: %w", d.cfg.Listen, err)
	}

	d.mu.Lock()
	d.listener = ln
	d.mu.Unlock()

	go func() {
		if err := d.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			d.logger.Error().Err(err).Msg("HTTP server stopped")
			d.mu.Lock()
			d.serveErr = err
			d.mu.Unlock()
		}
	}()

	d.logger.Info().Str("addr", ln.Addr().String()).Str("prefix", d.adapter.Prefix()).Msg("voxflux listening")

	actions := d.adapter.Actions()
	for _, dev := range d.cfg.Devices {
		d.store.Dispatch(actions.Setup(dev.Token, dev.Options.PhoneOptions(), dev.ID))
		d.logger.Info().Str("device_id", dev.ID).Msg("Configured device set up")
	}
	return nil
}

// Run starts the daemon and blocks until ctx is cancelled, then shuts down.
func (d *Daemon) Run(ctx context.Context) error {
	if err := d.Start(); err != nil {
		return err
	}
	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return errors.Join(d.Shutdown(stopCtx), d.runError())
}

// Shutdown stops the HTTP server, destroys every client and closes the bus.
// Calling it more than once is a no-op.
func (d *Daemon) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return nil
	}
	d.stopped = true
	d.mu.Unlock()

	var errs []error
	if err := d.http.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("daemon: http shutdown: %w", err))
	}
	if err := d.adapter.Close(); err != nil {
		errs = append(errs, err)
	}
	d.bus.Shutdown()
	d.logger.Info().Msg("voxflux stopped")
	return errors.Join(errs...)
}

func (d *Daemon) runError() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.serveErr
}

// Addr returns the bound address, or nil before Start.
func (d *Daemon) Addr() net.Addr {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.listener == nil {
		return nil
	}
	return d.listener.Addr()
}

// Store returns the action store.
func (d *Daemon) Store() *flux.Store[status.State] {
	return d.store
}

// Adapter returns the voice middleware.
func (d *Daemon) Adapter() *voice.Adapter {
	return d.adapter
}

// Metrics returns the Prometheus metrics fed by the store.
func (d *Daemon) Metrics() *observability.Metrics {
	return d.metrics
}
