package chat

import (
	"context"
	"fmt"
	"sync"

	"agrisaarthi/internal/bus"
	"agrisaarthi/internal/domain"
)

// Router owns the role of one chat and the screen that goes with it.
// With no role set there is no screen; the front-end shows the role choice.
type Router struct {
	base ScreenConfig

	mu     sync.Mutex
	role   domain.Role
	screen *Screen
}

// NewRouter starts with no role. base.Role is ignored.
func NewRouter(base ScreenConfig) *Router {
	return &Router{base: base}
}

func (r *Router) ChatID() string { return r.base.ChatID }

func (r *Router) Role() domain.Role {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.role
}

// Select opens a fresh screen for role. It fails with domain.ErrRoleSet while
// another role is active; go Back first.
func (r *Router) Select(ctx context.Context, role domain.Role) (*Screen, error) {
	if !role.Valid() {
		return nil, fmt.Errorf("select %q: %w", role, domain.ErrInvalidRole)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.role != domain.RoleUnset {
		return nil, fmt.Errorf("select %s: %w", role, domain.ErrRoleSet)
	}

	cfg := r.base
	cfg.Role = role
	screen, err := NewScreen(ctx, cfg)
	if err != nil {
		return nil, err
	}
	r.role = role
	r.screen = screen
	r.emitRole(role)
	return screen, nil
}

// Screen returns the active screen, or domain.ErrNoRole.
func (r *Router) Screen() (*Screen, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.screen == nil {
		return nil, domain.ErrNoRole
	}
	return r.screen, nil
}

// Back closes the active screen, discarding its conversation, and clears
// the role. It is a no-op when no role is set.
func (r *Router) Back() error {
	r.mu.Lock()
	screen := r.screen
	r.screen = nil
	r.role = domain.RoleUnset
	r.mu.Unlock()

	if screen == nil {
		return nil
	}
	err := screen.Close()
	r.emitRole(domain.RoleUnset)
	return err
}

func (r *Router) emitRole(role domain.Role) {
	if r.base.Events != nil {
		r.base.Events.Emit(bus.Event{Type: bus.EventRoleChanged, ChatID: r.base.ChatID, Role: role})
	}
}
