// Package phonetest provides an in-memory phone.Client for tests.
package phonetest

import (
	"sync"

	"github.com/nupi-ai/voxflux/internal/phone"
)

// Fake records every call made on it and lets tests emit client events.
type Fake struct {
	mu        sync.Mutex
	tokens    []string
	options   []phone.Options
	listeners map[phone.Event][]phone.Listener
	accepted  []phone.AudioConstraints
	outputs   []string
	tests     int
	destroyed bool

	SetupErr   error
	AcceptErr  error
	TestErr    error
	DestroyErr error

	// OnSetup runs after a successful Setup, before it returns, the way a
	// real client may emit events while still connecting.
	OnSetup func(*Fake)
}

// NewFake returns an unconfigured fake client.
func NewFake() *Fake {
	return &Fake{listeners: make(map[phone.Event][]phone.Listener)}
}

func (f *Fake) Setup(token string, opts phone.Options) error {
	f.mu.Lock()
	if f.SetupErr != nil {
		f.mu.Unlock()
		return f.SetupErr
	}
	f.tokens = append(f.tokens, token)
	f.options = append(f.options, opts)
	hook := f.OnSetup
	f.mu.Unlock()

	if hook != nil {
		hook(f)
	}
	return nil
}

func (f *Fake) On(event phone.Event, fn phone.Listener) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listeners[event] = append(f.listeners[event], fn)
}

func (f *Fake) AcceptIncoming(constraints phone.AudioConstraints) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.AcceptErr != nil {
		return f.AcceptErr
	}
	f.accepted = append(f.accepted, constraints)
	return nil
}

func (f *Fake) Destroy() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.DestroyErr != nil {
		return f.DestroyErr
	}
	f.destroyed = true
	return nil
}

func (f *Fake) SelectOutputDevice(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outputs = append(f.outputs, id)
	return nil
}

func (f *Fake) TestOutputDevice() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.TestErr != nil {
		return f.TestErr
	}
	f.tests++
	return nil
}

// Emit invokes every listener registered for event, synchronously.
func (f *Fake) Emit(event phone.Event, data phone.EventData) {
	f.mu.Lock()
	listeners := append([]phone.Listener(nil), f.listeners[event]...)
	f.mu.Unlock()
	for _, fn := range listeners {
		fn(data)
	}
}

// ListenerCount reports how many listeners are registered for event.
func (f *Fake) ListenerCount(event phone.Event) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.listeners[event])
}

// Tokens returns the tokens passed to Setup, in order.
func (f *Fake) Tokens() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.tokens...)
}

// Options returns the options passed to Setup, in order.
func (f *Fake) Options() []phone.Options {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]phone.Options(nil), f.options...)
}

// Accepted returns the constraints of every accepted call.
func (f *Fake) Accepted() []phone.AudioConstraints {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]phone.AudioConstraints(nil), f.accepted...)
}

// Outputs returns the selected output device ids, in order.
func (f *Fake) Outputs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.outputs...)
}

// Tests returns the number of output tests run.
func (f *Fake) Tests() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tests
}

// Destroyed reports whether Destroy succeeded.
func (f *Fake) Destroyed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.destroyed
}

// Pool hands out fakes through a phone.Factory and remembers them.
type Pool struct {
	mu      sync.Mutex
	clients []*Fake
	// Err, when set, makes the factory fail.
	Err error
	// Prepare runs on each new fake before it is returned.
	Prepare func(*Fake)
}

// Factory returns a phone.Factory backed by the pool.
func (p *Pool) Factory() phone.Factory {
	return func() (phone.Client, error) {
		p.mu.Lock()
		defer p.mu.Unlock()
		if p.Err != nil {
			return nil, p.Err
		}
		f := NewFake()
		if p.Prepare != nil {
			p.Prepare(f)
		}
		p.clients = append(p.clients, f)
		return f, nil
	}
}

// Clients returns every fake created so far.
func (p *Pool) Clients() []*Fake {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*Fake(nil), p.clients...)
}

// Last returns the most recently created fake, or nil.
func (p *Pool) Last() *Fake {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.clients) == 0 {
		return nil
	}
	return p.clients[len(p.clients)-1]
}
