package testutil

import (
	"path/filepath"
	"testing"

	configstore "github.com/nupi-ai/voxflux/internal/config/store"
)

// OpenStore creates a temporary config store closed when the test ends.
func OpenStore(t *testing.T) *configstore.Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "config.db")
	store, err := configstore.Open(configstore.Options{DBPath: dbPath})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}
