package testsupport

import (
	"testing"

	"tunesmith/internal/config"
	"tunesmith/internal/queue"
)

// MustOpenStore opens the jobs ledger for cfg and closes it on cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *queue.Store {
	t.Helper()
	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}
