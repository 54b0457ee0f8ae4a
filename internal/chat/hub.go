package chat

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"agrisaarthi/internal/bus"
	"agrisaarthi/internal/domain"
	"agrisaarthi/internal/provider"
)

// WeatherSource supplies the local weather reading for climate tips.
type WeatherSource interface {
	WeatherSnapshot() provider.Weather
}

// HubConfig holds what every chat shares.
type HubConfig struct {
	Services domain.Services
	Store    domain.ConversationStore
	Events   *bus.EventBus
	Weather  WeatherSource
	Logger   *slog.Logger
	Now      func() time.Time
	NewID    func() string
}

// Hub hands out one Router per front-end chat ID.
type Hub struct {
	cfg HubConfig

	mu      sync.Mutex
	routers map[string]*Router
}

func NewHub(cfg HubConfig) *Hub {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Events == nil {
		cfg.Events = bus.NewEventBus(cfg.Logger)
	}
	return &Hub{cfg: cfg, routers: make(map[string]*Router)}
}

func (h *Hub) Events() *bus.EventBus { return h.cfg.Events }

// Router returns the router for chatID, creating it on first use.
func (h *Hub) Router(chatID string) *Router {
	h.mu.Lock()
	defer h.mu.Unlock()
	if r, ok := h.routers[chatID]; ok {
		return r
	}
	r := NewRouter(ScreenConfig{
		ChatID:   chatID,
		Services: h.cfg.Services,
		Store:    h.cfg.Store,
		Events:   h.cfg.Events,
		Logger:   h.cfg.Logger,
		Now:      h.cfg.Now,
		NewID:    h.cfg.NewID,
	})
	h.routers[chatID] = r
	return r
}

// Lookup returns the router for chatID without creating one.
func (h *Hub) Lookup(chatID string) (*Router, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, ok := h.routers[chatID]
	return r, ok
}

// ChatIDs lists known chats in sorted order.
func (h *Hub) ChatIDs() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	ids := make([]string, 0, len(h.routers))
	for id := range h.routers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Drop leaves the chat's screen and forgets the router.
func (h *Hub) Drop(chatID string) error {
	h.mu.Lock()
	r, ok := h.routers[chatID]
	delete(h.routers, chatID)
	h.mu.Unlock()
	if !ok {
		return nil
	}
	return r.Back()
}

// Tip returns an offline tip for role.
func (h *Hub) Tip(role domain.Role) string {
	return h.cfg.Services.LocalFallbackTip(role)
}

// Weather returns the current reading and its climate tip. ok is false when
// no weather source is configured.
func (h *Hub) Weather() (w provider.Weather, tip string, ok bool) {
	if h.cfg.Weather == nil {
		return provider.Weather{}, "", false
	}
	w = h.cfg.Weather.WeatherSnapshot()
	return w, provider.ClimateTip(w), true
}

// Close leaves every open screen.
func (h *Hub) Close() {
	for _, id := range h.ChatIDs() {
		if err := h.Drop(id); err != nil {
			h.cfg.Logger.Warn("close chat", "chat", id, "err", err)
		}
	}
}
