package channel

import (
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"agrisaarthi/internal/bus"
	"agrisaarthi/internal/chat"
	"agrisaarthi/internal/memory"
	"agrisaarthi/internal/provider"
)

var fixedNow = time.Date(2025, 1, 2, 15, 4, 0, 0, time.UTC)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// newTestHub builds a hub over a zero-latency mock backend and an in-memory store.
func newTestHub(t *testing.T) *chat.Hub {
	t.Helper()
	logger := testLogger()
	mock, err := provider.NewMock(provider.MockConfig{
		Picker: provider.FixedPicker(0),
		Now:    func() time.Time { return fixedNow },
		Logger: logger,
	})
	if err != nil {
		t.Fatal(err)
	}
	store, err := memory.NewSQLiteStore(":memory:", logger)
	if err != nil {
		t.Fatal(err)
	}
	var n atomic.Int64
	hub := chat.NewHub(chat.HubConfig{
		Services: mock,
		Store:    store,
		Events:   bus.NewEventBus(logger),
		Weather:  mock,
		Logger:   logger,
		Now:      func() time.Time { return fixedNow },
		NewID:    func() string { return fmt.Sprintf("msg-%d", n.Add(1)) },
	})
	t.Cleanup(func() {
		hub.Close()
		store.Close()
	})
	return hub
}
