// Package flux is a small unidirectional-data-flow store: actions go through
// a middleware chain, a reducer folds them into state, and every reduced
// action is published on the event bus.
package flux

import (
	"context"
	"sync"

	"github.com/nupi-ai/voxflux/internal/action"
	"github.com/nupi-ai/voxflux/internal/eventbus"
)

// API is what middleware sees of the store.
type API interface {
	Dispatch(a action.Action) action.Action
	State() any
}

// Next passes an action further down the chain.
type Next func(a action.Action) action.Action

// Middleware wraps dispatch. It must call next exactly once per action unless
// it intends to swallow it.
type Middleware func(api API) func(next Next) Next

// Reducer folds an action into state. It must not mutate the state it receives.
type Reducer[S any] func(state S, a action.Action) S

// Option customises a store.
type Option func(*options)

type options struct {
	middleware []Middleware
	bus        *eventbus.Bus
}

// WithMiddleware appends middleware. The first one added sees actions first.
func WithMiddleware(mw ...Middleware) Option {
	return func(o *options) {
		for _, m := range mw {
			if m != nil {
				o.middleware = append(o.middleware, m)
			}
		}
	}
}

// WithBus publishes reduced actions on bus instead of a private one.
func WithBus(bus *eventbus.Bus) Option {
	return func(o *options) {
		if bus != nil {
			o.bus = bus
		}
	}
}

// Store holds state of type S.
type Store[S any] struct {
	mu       sync.RWMutex
	state    S
	reducer  Reducer[S]
	dispatch Next
	bus      *eventbus.Bus
}

// New builds a store. A nil reducer keeps the initial state forever.
func New[S any](reducer Reducer[S], initial S, opts ...Option) *Store[S] {
	cfg := options{}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.bus == nil {
		cfg.bus = eventbus.New()
	}
	if reducer == nil {
		reducer = func(state S, _ action.Action) S { return state }
	}

	s := &Store[S]{
		state:   initial,
		reducer: reducer,
		bus:     cfg.bus,
	}

	var built Next
	api := storeAPI[S]{store: s, dispatch: func(a action.Action) action.Action {
		return built(a)
	}}

	next := Next(s.reduce)
	for i := len(cfg.middleware) - 1; i >= 0; i-- {
		next = cfg.middleware[i](api)(next)
	}
	built = next
	s.dispatch = built

	return s
}

// Dispatch runs a through the middleware chain and the reducer. It may be
// called from any goroutine, including from inside middleware.
func (s *Store[S]) Dispatch(a action.Action) action.Action {
	return s.dispatch(a)
}

// State returns the current state.
func (s *Store[S]) State() S {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Bus returns the bus reduced actions are published on.
func (s *Store[S]) Bus() *eventbus.Bus {
	return s.bus
}

// Subscribe streams every reduced action.
func (s *Store[S]) Subscribe(opts ...eventbus.SubscriptionOption) *eventbus.TypedSubscription[action.Action] {
	return eventbus.SubscribeTo(s.bus, eventbus.Actions, opts...)
}

func (s *Store[S]) reduce(a action.Action) action.Action {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state = s.reducer(s.state, a)
	// Publish never blocks, so doing it under the lock keeps bus order equal
	// to reduction order.
	eventbus.Publish(context.Background(), s.bus, eventbus.Actions, eventbus.SourceStore, a)
	return a
}

type storeAPI[S any] struct {
	store    *Store[S]
	dispatch Next
}

func (api storeAPI[S]) Dispatch(a action.Action) action.Action {
	return api.dispatch(a)
}

func (api storeAPI[S]) State() any {
	return api.store.State()
}
