package chat

import (
	"context"
	"errors"
	"strings"
	"testing"

	"agrisaarthi/internal/bus"
	"agrisaarthi/internal/domain"
)

func TestRouter_StartsUnset(t *testing.T) {
	r := newTestHub(t, newStub(t)).Router("c1")
	if r.Role() != domain.RoleUnset {
		t.Fatalf("expected unset role, got %q", r.Role())
	}
	if _, err := r.Screen(); !errors.Is(err, domain.ErrNoRole) {
		t.Fatalf("expected ErrNoRole, got %v", err)
	}
}

func TestRouter_SelectTwiceFails(t *testing.T) {
	r := newTestHub(t, newStub(t)).Router("c1")
	ctx := context.Background()
	if _, err := r.Select(ctx, domain.RoleFarmer); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Select(ctx, domain.RoleGardener); !errors.Is(err, domain.ErrRoleSet) {
		t.Fatalf("expected ErrRoleSet, got %v", err)
	}
	if r.Role() != domain.RoleFarmer {
		t.Fatalf("role changed to %s", r.Role())
	}
}

func TestRouter_SelectInvalidRole(t *testing.T) {
	r := newTestHub(t, newStub(t)).Router("c1")
	if _, err := r.Select(context.Background(), domain.Role("fisher")); !errors.Is(err, domain.ErrInvalidRole) {
		t.Fatalf("expected ErrInvalidRole, got %v", err)
	}
}

func TestRouter_BackThenOtherRoleStartsFresh(t *testing.T) {
	for _, pair := range [][2]domain.Role{
		{domain.RoleFarmer, domain.RoleGardener},
		{domain.RoleGardener, domain.RoleFarmer},
	} {
		r := newTestHub(t, newStub(t)).Router("c1")
		ctx := context.Background()

		first, err := r.Select(ctx, pair[0])
		if err != nil {
			t.Fatal(err)
		}
		if err := first.SubmitText(ctx, "water and soil", domain.TypeText); err != nil {
			t.Fatal(err)
		}
		if err := r.Back(); err != nil {
			t.Fatal(err)
		}
		if r.Role() != domain.RoleUnset {
			t.Fatalf("back should reset the role, got %s", r.Role())
		}
		if _, err := first.Messages(ctx); !errors.Is(err, domain.ErrClosed) {
			t.Fatalf("old screen should be closed, got %v", err)
		}

		second, err := r.Select(ctx, pair[1])
		if err != nil {
			t.Fatal(err)
		}
		msgs := mustMessages(t, second)
		if len(msgs) != 1 {
			t.Fatalf("%s after %s: expected one greeting, got %d messages", pair[1], pair[0], len(msgs))
		}
		if msgs[0].Sender != domain.SenderAI || msgs[0].Text != Greeting(pair[1]) {
			t.Fatalf("unexpected greeting %+v", msgs[0])
		}
	}
}

func TestRouter_BackWithoutRoleIsNoop(t *testing.T) {
	r := newTestHub(t, newStub(t)).Router("c1")
	if err := r.Back(); err != nil {
		t.Fatal(err)
	}
}

func TestRouter_EmitsRoleChanged(t *testing.T) {
	hub := newTestHub(t, newStub(t))
	var roles []string
	hub.Events().On(bus.EventRoleChanged, func(e bus.Event) {
		roles = append(roles, e.ChatID+":"+string(e.Role))
	})

	r := hub.Router("c1")
	r.Select(context.Background(), domain.RoleGardener)
	r.Back()

	if got := strings.Join(roles, ","); got != "c1:gardener,c1:" {
		t.Fatalf("unexpected role events %q", got)
	}
}

func TestHub_RouterPerChat(t *testing.T) {
	hub := newTestHub(t, newStub(t))
	a := hub.Router("a")
	if hub.Router("a") != a {
		t.Fatal("expected the same router for the same chat")
	}
	b := hub.Router("b")
	ctx := context.Background()
	a.Select(ctx, domain.RoleFarmer)
	b.Select(ctx, domain.RoleGardener)

	sa, _ := a.Screen()
	sb, _ := b.Screen()
	sa.SubmitText(ctx, "corn", domain.TypeText)

	if n := len(mustMessages(t, sa)); n != 3 {
		t.Fatalf("chat a: expected 3 messages, got %d", n)
	}
	if n := len(mustMessages(t, sb)); n != 1 {
		t.Fatalf("chat b should be untouched, got %d messages", n)
	}
	if got := strings.Join(hub.ChatIDs(), ","); got != "a,b" {
		t.Fatalf("chat ids = %s", got)
	}
}

func TestHub_DropClosesScreen(t *testing.T) {
	hub := newTestHub(t, newStub(t))
	r := hub.Router("a")
	s, _ := r.Select(context.Background(), domain.RoleFarmer)

	if err := hub.Drop("a"); err != nil {
		t.Fatal(err)
	}
	if s.State() != StateClosed {
		t.Fatalf("expected closed screen, got %s", s.State())
	}
	if _, ok := hub.Lookup("a"); ok {
		t.Fatal("router should be forgotten")
	}
}

func TestHub_TipAndWeather(t *testing.T) {
	hub := newTestHub(t, newStub(t))
	if tip := hub.Tip(domain.RoleFarmer); !strings.HasPrefix(tip, "Here's a helpful tip while offline: ") {
		t.Fatalf("unexpected tip %q", tip)
	}
	w, tip, ok := hub.Weather()
	if !ok {
		t.Fatal("expected weather")
	}
	if w.City != "Coimbatore" || tip != "Weather is favorable for most crops." {
		t.Fatalf("unexpected weather %+v / %q", w, tip)
	}
}
