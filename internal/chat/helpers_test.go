package chat

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"agrisaarthi/internal/bus"
	"agrisaarthi/internal/domain"
	"agrisaarthi/internal/memory"
	"agrisaarthi/internal/provider"
)

var fixedNow = time.Date(2025, 1, 2, 15, 4, 0, 0, time.UTC)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// stubServices wraps the canned backend with a gate and injected failures.
type stubServices struct {
	*provider.Mock
	adviceErr error
	ttsErr    error
	entered   chan struct{}
	gate      chan struct{}
}

func (s *stubServices) GenerateAdvice(ctx context.Context, input string, role domain.Role) (string, error) {
	if s.entered != nil {
		s.entered <- struct{}{}
	}
	if s.gate != nil {
		<-s.gate
	}
	if s.adviceErr != nil {
		return "", s.adviceErr
	}
	return s.Mock.GenerateAdvice(ctx, input, role)
}

func (s *stubServices) TextToSpeech(ctx context.Context, text string) (string, error) {
	if s.ttsErr != nil {
		return "", s.ttsErr
	}
	return s.Mock.TextToSpeech(ctx, text)
}

func newStub(t *testing.T) *stubServices {
	t.Helper()
	m, err := provider.NewMock(provider.MockConfig{
		Picker: provider.FixedPicker(0),
		Now:    func() time.Time { return fixedNow },
		Logger: testLogger(),
	})
	if err != nil {
		t.Fatal(err)
	}
	return &stubServices{Mock: m}
}

func newStore(t *testing.T) *memory.SQLiteStore {
	t.Helper()
	s, err := memory.NewSQLiteStore(":memory:", testLogger())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func sequentialIDs() func() string {
	var n atomic.Int64
	return func() string { return fmt.Sprintf("id-%d", n.Add(1)) }
}

func newTestHub(t *testing.T, svc domain.Services) *Hub {
	t.Helper()
	var weather WeatherSource
	if m, ok := svc.(*stubServices); ok {
		weather = m.Mock
	}
	return NewHub(HubConfig{
		Services: svc,
		Store:    newStore(t),
		Events:   bus.NewEventBus(testLogger()),
		Weather:  weather,
		Logger:   testLogger(),
		Now:      func() time.Time { return fixedNow },
		NewID:    sequentialIDs(),
	})
}

func newTestScreen(t *testing.T, svc domain.Services, role domain.Role) (*Screen, *bus.EventBus) {
	t.Helper()
	events := bus.NewEventBus(testLogger())
	s, err := NewScreen(context.Background(), ScreenConfig{
		ChatID:   "chat-1",
		Role:     role,
		Services: svc,
		Store:    newStore(t),
		Events:   events,
		Logger:   testLogger(),
		Now:      func() time.Time { return fixedNow },
		NewID:    sequentialIDs(),
	})
	if err != nil {
		t.Fatalf("new screen: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s, events
}

func mustMessages(t *testing.T, s *Screen) []domain.Message {
	t.Helper()
	msgs, err := s.Messages(context.Background())
	if err != nil {
		t.Fatalf("messages: %v", err)
	}
	return msgs
}
