// Package voice connects phone clients to a flux store. The Adapter's
// middleware turns namespaced command actions into client calls and feeds
// client events back into the store as notification actions.
package voice

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/nupi-ai/voxflux/internal/action"
	"github.com/nupi-ai/voxflux/internal/flux"
	"github.com/nupi-ai/voxflux/internal/phone"
	"github.com/nupi-ai/voxflux/internal/prefs"
)

// ErrInvalidPayload is returned when a command carries a payload of the
// wrong type.
var ErrInvalidPayload = errors.New("voice: invalid payload")

const defaultStorageTimeout = 5 * time.Second

// Option customises an Adapter.
type Option func(*Adapter)

// WithStoreAudioDevices persists device selections in durable storage
// instead of session storage.
func WithStoreAudioDevices(enabled bool) Option {
	return func(a *Adapter) {
		a.storeAudioDevices = enabled
	}
}

// WithConnectOnIncoming accepts every incoming call as soon as it rings.
func WithConnectOnIncoming(enabled bool) Option {
	return func(a *Adapter) {
		a.connectOnIncoming = enabled
	}
}

// WithPrefix changes the action namespace. Empty means action.DefaultPrefix.
func WithPrefix(prefix string) Option {
	return func(a *Adapter) {
		a.actions = action.NewFactory(prefix)
	}
}

// WithActionFactory builds actions with f instead of a prefix-only factory.
func WithActionFactory(f *action.Factory) Option {
	return func(a *Adapter) {
		if f != nil {
			a.actions = f
		}
	}
}

// WithLogger sets the logger used for diagnostics.
func WithLogger(logger zerolog.Logger) Option {
	return func(a *Adapter) {
		a.logger = logger.With().Str("component", "voice").Logger()
	}
}

// Adapter owns the registry of phone clients keyed by device identifier.
type Adapter struct {
	factory phone.Factory
	durable prefs.Storage
	session prefs.Storage
	actions *action.Factory
	logger  zerolog.Logger
	timeout time.Duration
	mu      sync.Mutex
	devices map[string]*entry

	storeAudioDevices bool
	connectOnIncoming bool
}

type entry struct {
	client    phone.Client
	listening bool
}

// New builds an adapter. durable may be nil, in which case every preference
// lives in session storage. A nil session gets an in-memory one.
func New(factory phone.Factory, durable, session prefs.Storage, opts ...Option) *Adapter {
	if session == nil {
		session = &prefs.Session{}
	}
	a := &Adapter{
		factory: factory,
		durable: durable,
		session: session,
		actions: action.Default,
		logger:  zerolog.Nop(),
		timeout: defaultStorageTimeout,
		devices: make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Prefix returns the namespace the adapter reacts to.
func (a *Adapter) Prefix() string {
	return a.actions.Prefix()
}

// Actions returns the factory the adapter builds notifications with.
func (a *Adapter) Actions() *action.Factory {
	return a.actions
}

// Middleware returns the store middleware. Every action is forwarded to next
// unchanged, whether or not a handler ran and whether or not it failed.
func (a *Adapter) Middleware() flux.Middleware {
	return func(api flux.API) func(flux.Next) flux.Next {
		return func(next flux.Next) flux.Next {
			return func(act action.Action) action.Action {
				base, ok := action.Base(a.actions.Prefix(), act.Type)
				if !ok {
					return next(act)
				}
				if cmd, known := action.ParseCommand(base); known {
					a.run(api, cmd, act)
				}
				return next(act)
			}
		}
	}
}

// DeviceIDs lists the registered devices in lexical order.
func (a *Adapter) DeviceIDs() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	ids := make([]string, 0, len(a.devices))
	for id := range a.devices {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Close destroys every registered client and empties the registry.
func (a *Adapter) Close() error {
	a.mu.Lock()
	devices := a.devices
	a.devices = make(map[string]*entry)
	a.mu.Unlock()

	var errs []error
	for id, e := range devices {
		if err := e.client.Destroy(); err != nil {
			errs = append(errs, fmt.Errorf("voice: destroy %s: %w", id, err))
		}
	}
	return errors.Join(errs...)
}

// run executes the handler for cmd. Failures and panics become a single
// unhandled-error action wrapping act.
func (a *Adapter) run(api flux.API, cmd action.Command, act action.Action) {
	defer func() {
		if r := recover(); r != nil {
			a.fail(api, &act, panicError(r), string(debug.Stack()))
		}
	}()

	var err error
	switch cmd {
	case action.CommandSetup:
		err = a.setup(api, act)
	case action.CommandDestroy:
		err = a.destroy(act)
	case action.CommandSetInputDevice:
		err = a.setAudioDevice(cmd, prefs.KeyInputDevice, act)
	case action.CommandSetOutputDevice:
		err = a.setAudioDevice(cmd, prefs.KeyOutputDevice, act)
	case action.CommandTestOutputDevice:
		err = a.testOutputDevice(act)
	}
	if err != nil {
		a.fail(api, &act, err, string(debug.Stack()))
	}
}

func (a *Adapter) fail(api flux.API, original *action.Action, err error, stack string) {
	a.logger.Error().
		Err(err).
		Str("action", actionType(original)).
		Msg("Voice handler failed")
	api.Dispatch(a.actions.ErrorWithStack(original, err, stack))
}

func (a *Adapter) setup(api flux.API, act action.Action) error {
	payload, err := decode[action.SetupPayload](action.CommandSetup, act.Payload)
	if err != nil {
		return err
	}
	id := deviceID(payload.DeviceID)

	e, err := a.register(id)
	if err != nil {
		return err
	}

	// Listeners go on before Setup: a client may emit ready as soon as it
	// connects, before Setup returns.
	a.mu.Lock()
	register := !e.listening
	e.listening = true
	a.mu.Unlock()

	if register {
		a.listen(api, id, e.client)
	}
	return e.client.Setup(payload.Token, payload.Options)
}

// register returns the entry for id, creating the client on first use.
func (a *Adapter) register(id string) (*entry, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if e, ok := a.devices[id]; ok {
		return e, nil
	}
	client, err := a.factory()
	if err != nil {
		return nil, err
	}
	e := &entry{client: client}
	a.devices[id] = e
	a.logger.Debug().Str("device_id", id).Msg("Registered client")
	return e, nil
}

func (a *Adapter) destroy(act action.Action) error {
	payload, err := decode[action.DevicePayload](action.CommandDestroy, act.Payload)
	if err != nil {
		return err
	}
	id := deviceID(payload.DeviceID)

	a.mu.Lock()
	e, ok := a.devices[id]
	delete(a.devices, id)
	a.mu.Unlock()

	if !ok {
		a.logger.Warn().Str("device_id", id).Msg("Destroy requested for unknown device")
		return nil
	}
	return e.client.Destroy()
}

func (a *Adapter) setAudioDevice(cmd action.Command, key string, act action.Action) error {
	payload, err := decode[action.AudioDevicePayload](cmd, act.Payload)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
	defer cancel()
	return a.preferences().Set(ctx, key, payload.AudioDeviceID)
}

func (a *Adapter) testOutputDevice(act action.Action) error {
	payload, err := decode[action.DevicePayload](action.CommandTestOutputDevice, act.Payload)
	if err != nil {
		return err
	}
	id := deviceID(payload.DeviceID)

	client, ok := a.client(id)
	if !ok {
		a.logger.Warn().Str("device_id", id).Msg("Output test requested for unknown device")
		return nil
	}
	return client.TestOutputDevice()
}

func (a *Adapter) client(id string) (phone.Client, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	e, ok := a.devices[id]
	if !ok {
		return nil, false
	}
	return e.client, true
}

// preferences picks the storage device selections are written to and read from.
func (a *Adapter) preferences() prefs.Storage {
	if a.storeAudioDevices && a.durable != nil {
		return a.durable
	}
	return a.session
}

func (a *Adapter) preference(key string) (string, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
	defer cancel()

	v, ok, err := a.preferences().Get(ctx, key)
	if err != nil {
		a.logger.Warn().Err(err).Str("key", key).Msg("Failed to read audio preference")
		return "", false
	}
	return v, ok && v != ""
}

func decode[T any](cmd action.Command, payload any) (T, error) {
	var zero T
	switch p := payload.(type) {
	case T:
		return p, nil
	case *T:
		if p != nil {
			return *p, nil
		}
	}
	return zero, fmt.Errorf("%w: %s wants %T, got %T", ErrInvalidPayload, cmd, zero, payload)
}

func deviceID(id string) string {
	if id == "" {
		return action.DefaultDeviceID
	}
	return id
}

func actionType(a *action.Action) string {
	if a == nil {
		return ""
	}
	return a.Type
}

func panicError(r any) error {
	if err, ok := r.(error); ok {
		return err
	}
	return fmt.Errorf("%v", r)
}
