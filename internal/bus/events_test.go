package bus

import (
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"testing"

	"agrisaarthi/internal/domain"
)

func testEBLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestEventBus_EmitAndReceive(t *testing.T) {
	eb := NewEventBus(testEBLogger())

	var got Event
	eb.On(EventMessageAppended, func(e Event) { got = e })

	m := &domain.Message{ID: "m1", Sender: domain.SenderAI, Text: "hi"}
	eb.Emit(Event{Type: EventMessageAppended, ChatID: "chat-1", Message: m})

	if got.Message == nil || got.Message.ID != "m1" {
		t.Fatalf("handler did not receive the message: %+v", got)
	}
	if got.Timestamp.IsZero() {
		t.Fatal("expected timestamp to be filled in")
	}
}

func TestEventBus_WildcardHandler(t *testing.T) {
	eb := NewEventBus(testEBLogger())

	var count int32
	eb.On("*", func(Event) { atomic.AddInt32(&count, 1) })

	eb.Emit(Event{Type: EventScreenState, State: "pending"})
	eb.Emit(Event{Type: EventRoleChanged, Role: domain.RoleFarmer})

	if atomic.LoadInt32(&count) != 2 {
		t.Errorf("expected 2, got %d", count)
	}
}

func TestEventBus_Off(t *testing.T) {
	eb := NewEventBus(testEBLogger())

	var count int32
	id := eb.On(EventScreenState, func(Event) { atomic.AddInt32(&count, 1) })

	eb.Emit(Event{Type: EventScreenState})
	eb.Off(EventScreenState, id)
	eb.Emit(Event{Type: EventScreenState})

	if atomic.LoadInt32(&count) != 1 {
		t.Errorf("expected 1 after unsubscribe, got %d", count)
	}
}

func TestEventBus_IDsStayUniqueAfterOff(t *testing.T) {
	eb := NewEventBus(testEBLogger())

	var a, b int32
	first := eb.On(EventScreenState, func(Event) { atomic.AddInt32(&a, 1) })
	eb.On(EventScreenState, func(Event) { atomic.AddInt32(&b, 1) })
	eb.Off(EventScreenState, first)
	third := eb.On(EventScreenState, func(Event) {})

	if third == first {
		t.Fatal("handler id reused")
	}
	eb.Off(EventScreenState, third)
	eb.Emit(Event{Type: EventScreenState})
	if a != 0 || b != 1 {
		t.Fatalf("wrong handlers ran: a=%d b=%d", a, b)
	}
}

func TestEventBus_ReplayFiltersByTypeAndChat(t *testing.T) {
	eb := NewEventBus(testEBLogger())

	eb.Emit(Event{Type: EventMessageAppended, ChatID: "a"})
	eb.Emit(Event{Type: EventScreenState, ChatID: "a"})
	eb.Emit(Event{Type: EventMessageAppended, ChatID: "b"})

	if n := len(eb.Replay(EventMessageAppended, "")); n != 2 {
		t.Errorf("expected 2 message events, got %d", n)
	}
	if n := len(eb.Replay("*", "a")); n != 2 {
		t.Errorf("expected 2 events for chat a, got %d", n)
	}
	if n := len(eb.Replay(EventMessageAppended, "b")); n != 1 {
		t.Errorf("expected 1 message event for chat b, got %d", n)
	}
}

func TestEventBus_HistoryBounded(t *testing.T) {
	eb := NewEventBus(testEBLogger())
	eb.maxHistory = 3
	for i := 0; i < 10; i++ {
		eb.Emit(Event{Type: EventScreenState})
	}
	if eb.HistoryLen() != 3 {
		t.Errorf("expected history capped at 3, got %d", eb.HistoryLen())
	}
}

func TestEventBus_PanicRecovery(t *testing.T) {
	eb := NewEventBus(testEBLogger())

	var called int32
	eb.On(EventRoleChanged, func(Event) { panic("boom") })
	eb.On(EventRoleChanged, func(Event) { atomic.AddInt32(&called, 1) })

	eb.Emit(Event{Type: EventRoleChanged})
	if atomic.LoadInt32(&called) != 1 {
		t.Error("second handler should run after the first panicked")
	}
}

func TestEventBus_ConcurrentEmit(t *testing.T) {
	eb := NewEventBus(testEBLogger())

	var count int64
	eb.On(EventMessageAppended, func(Event) { atomic.AddInt64(&count, 1) })

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			eb.Emit(Event{Type: EventMessageAppended})
		}()
	}
	wg.Wait()
	if atomic.LoadInt64(&count) != 50 {
		t.Errorf("expected 50, got %d", count)
	}
}
