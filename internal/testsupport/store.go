package testsupport

import (
	"context"
	"testing"
	"time"

	"murmur/internal/config"
	"murmur/internal/store"
)

// MustOpenStore opens a store.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *store.Store {
	t.Helper()

	st, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() {
		st.Close()
	})
	return st
}

// NewTask creates a task watching the given keywords using the provided store.
func NewTask(t testing.TB, st *store.Store, accountID string, keywords ...string) *store.Task {
	t.Helper()

	task, err := st.CreateTask(context.Background(), store.TaskSpec{
		Name:         "watch " + accountID,
		AccountID:    accountID,
		Keywords:     keywords,
		PollInterval: time.Second,
		FilterSpam:   true,
	})
	if err != nil {
		t.Fatalf("store.CreateTask: %v", err)
	}
	return task
}
