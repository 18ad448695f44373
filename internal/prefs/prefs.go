// Package prefs stores the last selected audio devices, either for the
// lifetime of the process or durably in the configuration database.
package prefs

import (
	"context"
	"fmt"
	"sync"

	configstore "github.com/nupi-ai/voxflux/internal/config/store"
)

const (
	KeyInputDevice  = configstore.KeyInputDevice
	KeyOutputDevice = configstore.KeyOutputDevice
)

// Storage is a string key/value store. Get reports false for missing keys.
type Storage interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}

// Session keeps values in memory. The zero value is ready to use.
type Session struct {
	mu     sync.RWMutex
	values map[string]string
}

func (s *Session) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok, nil
}

func (s *Session) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.values == nil {
		s.values = make(map[string]string)
	}
	s.values[key] = value
	return nil
}

// Durable persists values in the settings table of a config store.
type Durable struct {
	store *configstore.Store
}

// NewDurable wraps store.
func NewDurable(store *configstore.Store) *Durable {
	return &Durable{store: store}
}

func (d *Durable) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := d.store.Setting(ctx, key)
	if configstore.IsNotFound(err) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("prefs: get %s: %w", key, err)
	}
	return v, true, nil
}

func (d *Durable) Set(ctx context.Context, key, value string) error {
	if err := d.store.SaveSettings(ctx, map[string]string{key: value}); err != nil {
		return fmt.Errorf("prefs: set %s: %w", key, err)
	}
	return nil
}
