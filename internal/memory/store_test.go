package memory

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"agrisaarthi/internal/domain"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(":memory:", testLogger())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func msg(id string, sender domain.Sender, text string, at time.Time) domain.Message {
	return domain.Message{ID: id, Sender: sender, Text: text, Timestamp: at}
}

func TestSQLiteStore_AppendKeepsOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if err := s.CreateConversation(ctx, "c1", domain.RoleFarmer); err != nil {
		t.Fatal(err)
	}

	base := time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		// Identical timestamps must not reorder messages.
		m := msg(fmt.Sprintf("m%d", i), domain.SenderFarmer, fmt.Sprintf("q%d", i), base)
		if err := s.AppendMessage(ctx, "c1", m); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	got, err := s.Messages(ctx, "c1")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 5 {
		t.Fatalf("expected 5 messages, got %d", len(got))
	}
	for i, m := range got {
		if m.ID != fmt.Sprintf("m%d", i) {
			t.Fatalf("position %d holds %s", i, m.ID)
		}
		if !m.Timestamp.Equal(base) {
			t.Fatalf("timestamp changed: %v", m.Timestamp)
		}
	}
}

func TestSQLiteStore_RoundTripsFields(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	s.CreateConversation(ctx, "c1", domain.RoleFarmer)

	in := domain.Message{
		ID:        "ai-1",
		Sender:    domain.SenderAI,
		Text:      "Use drip irrigation.",
		AudioURL:  "https://mock-tts-service.com/audio/1.mp3",
		Timestamp: time.Unix(0, 1700000000123456789),
		Type:      domain.TypeVoice,
	}
	if err := s.AppendMessage(ctx, "c1", in); err != nil {
		t.Fatal(err)
	}
	got, _ := s.Messages(ctx, "c1")
	if len(got) != 1 {
		t.Fatalf("expected 1 message, got %d", len(got))
	}
	out := got[0]
	if out.ID != in.ID || out.Sender != in.Sender || out.Text != in.Text ||
		out.AudioURL != in.AudioURL || out.Type != in.Type || !out.Timestamp.Equal(in.Timestamp) {
		t.Fatalf("round trip mismatch:\n in %+v\nout %+v", in, out)
	}
}

func TestSQLiteStore_ConversationsAreIsolated(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	s.CreateConversation(ctx, "a", domain.RoleFarmer)
	s.CreateConversation(ctx, "b", domain.RoleGardener)

	s.AppendMessage(ctx, "a", msg("1", domain.SenderFarmer, "x", time.Now()))
	s.AppendMessage(ctx, "b", msg("2", domain.SenderGardener, "y", time.Now()))
	s.AppendMessage(ctx, "b", msg("3", domain.SenderAI, "z", time.Now()))

	if n, _ := s.CountMessages(ctx, "a"); n != 1 {
		t.Fatalf("expected 1 message in a, got %d", n)
	}
	if n, _ := s.CountMessages(ctx, "b"); n != 2 {
		t.Fatalf("expected 2 messages in b, got %d", n)
	}
}

func TestSQLiteStore_DiscardRemovesEverything(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	s.CreateConversation(ctx, "c1", domain.RoleGardener)
	s.AppendMessage(ctx, "c1", msg("1", domain.SenderAI, "hello", time.Now()))

	if err := s.DiscardConversation(ctx, "c1"); err != nil {
		t.Fatal(err)
	}
	got, err := s.Messages(ctx, "c1")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty transcript, got %d messages", len(got))
	}

	err = s.AppendMessage(ctx, "c1", msg("2", domain.SenderAI, "late reply", time.Now()))
	if !errors.Is(err, domain.ErrClosed) {
		t.Fatalf("append after discard: expected ErrClosed, got %v", err)
	}
}

func TestSQLiteStore_DiscardUnknownIsNoop(t *testing.T) {
	if err := newTestStore(t).DiscardConversation(context.Background(), "missing"); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
}

func TestSQLiteStore_RejectsUnsetRole(t *testing.T) {
	err := newTestStore(t).CreateConversation(context.Background(), "c1", domain.RoleUnset)
	if !errors.Is(err, domain.ErrInvalidRole) {
		t.Fatalf("expected ErrInvalidRole, got %v", err)
	}
}

func TestSQLiteStore_DuplicateMessageID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	s.CreateConversation(ctx, "c1", domain.RoleFarmer)
	if err := s.AppendMessage(ctx, "c1", msg("dup", domain.SenderFarmer, "a", time.Now())); err != nil {
		t.Fatal(err)
	}
	if err := s.AppendMessage(ctx, "c1", msg("dup", domain.SenderFarmer, "b", time.Now())); err == nil {
		t.Fatal("expected unique constraint error")
	}
}

func TestSQLiteStore_FileBacked(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "chat.db")
	s, err := NewSQLiteStore(path, testLogger())
	if err != nil {
		t.Fatalf("open file store: %v", err)
	}
	defer s.Close()
	ctx := context.Background()
	if err := s.CreateConversation(ctx, "c1", domain.RoleFarmer); err != nil {
		t.Fatal(err)
	}
	if err := s.AppendMessage(ctx, "c1", msg("1", domain.SenderFarmer, "hi", time.Now())); err != nil {
		t.Fatal(err)
	}
	if n, _ := s.CountMessages(ctx, "c1"); n != 1 {
		t.Fatalf("expected 1 message, got %d", n)
	}
}
