package channel

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"agrisaarthi/internal/chat"
	"agrisaarthi/internal/domain"
	"agrisaarthi/internal/render"

	"github.com/google/uuid"
)

const (
	maxBodySize       = 64 << 10
	maxImageSize      = 10 << 20
	sessionCookieName = "agrisaarthi_session"
	sessionMaxAge     = 86400
	chatIDHeader      = "X-Chat-ID"
	webChatPrefix     = "web_"
)

var chatIDPlaceholder = []byte("{{chat_id}}")

//go:embed web_static/index.html
var staticFS embed.FS

// Web serves the chat page and its JSON API. Every page load is a new chat:
// the page carries its chat ID in the X-Chat-ID header. Clients without the
// header are tracked by a session cookie.
type Web struct {
	host        string
	port        int
	hub         *chat.Hub
	logger      *slog.Logger
	version     string
	metrics     http.Handler
	metricsPath string
	ws          *WebSocketChannel
	limiter     *RateLimiter
	server      *http.Server
	mux         *http.ServeMux
}

type WebConfig struct {
	Host    string
	Port    int
	Hub     *chat.Hub
	Logger  *slog.Logger
	Version string
	// Metrics is mounted at MetricsPath when set.
	Metrics     http.Handler
	MetricsPath string
	// WebSocket is mounted at /ws when set.
	WebSocket *WebSocketChannel
	// Limiter throttles sends per session; nil disables throttling.
	Limiter *RateLimiter
}

func NewWeb(cfg WebConfig) *Web {
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = "/metrics"
	}
	w := &Web{
		host:        cfg.Host,
		port:        cfg.Port,
		hub:         cfg.Hub,
		logger:      cfg.Logger,
		version:     cfg.Version,
		metrics:     cfg.Metrics,
		metricsPath: cfg.MetricsPath,
		ws:          cfg.WebSocket,
		limiter:     cfg.Limiter,
	}
	w.mux = w.routes()
	return w
}

func (w *Web) Name() string { return "web" }

// Handler exposes the routes without starting a listener.
func (w *Web) Handler() http.Handler { return w.mux }

func (w *Web) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", w.handleIndex)
	mux.HandleFunc("GET /status", w.handleStatus)
	if w.metrics != nil {
		mux.Handle("GET "+w.metricsPath, w.metrics)
	}
	if w.ws != nil {
		mux.HandleFunc("GET /ws", w.handleWS)
	}

	mux.HandleFunc("POST /api/role", w.handleSelectRole)
	mux.HandleFunc("DELETE /api/role", w.handleBack)
	mux.HandleFunc("GET /api/messages", w.handleMessages)
	mux.HandleFunc("POST /api/messages", w.handleSend)
	mux.HandleFunc("POST /api/voice", w.handleVoice)
	mux.HandleFunc("POST /api/image", w.handleImage)
	mux.HandleFunc("GET /api/tip", w.handleTip)
	mux.HandleFunc("GET /api/weather", w.handleWeather)
	return mux
}

func (w *Web) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", w.host, w.port)
	w.server = &http.Server{
		Addr:              addr,
		Handler:           w.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	w.logger.Info("web UI started", "addr", "http://"+addr, "websocket", w.ws != nil)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		w.server.Shutdown(shutdownCtx)
	}()

	if err := w.server.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (w *Web) Stop() error {
	if w.ws != nil {
		w.ws.Close()
	}
	if w.server != nil {
		return w.server.Close()
	}
	return nil
}

func newWebChatID() string { return webChatPrefix + uuid.NewString() }

// validWebChatID keeps web clients out of other front-ends' chats.
func validWebChatID(id string) bool {
	raw, ok := strings.CutPrefix(id, webChatPrefix)
	if !ok {
		return false
	}
	_, err := uuid.Parse(raw)
	return err == nil
}

// session returns the page's chat ID, or the one stored in the session
// cookie, issuing a cookie if needed.
func (w *Web) session(rw http.ResponseWriter, r *http.Request) string {
	if id := r.Header.Get(chatIDHeader); validWebChatID(id) {
		return id
	}
	if cookie, err := r.Cookie(sessionCookieName); err == nil && validWebChatID(cookie.Value) {
		return cookie.Value
	}
	id := newWebChatID()
	http.SetCookie(rw, &http.Cookie{
		Name:     sessionCookieName,
		Value:    id,
		Path:     "/",
		MaxAge:   sessionMaxAge,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	w.logger.Debug("new web session", "session", id)
	return id
}

type chatView struct {
	ChatID   string          `json:"chat_id"`
	Role     domain.Role     `json:"role"`
	State    chat.State      `json:"state,omitempty"`
	Messages []render.Bubble `json:"messages"`
}

// screen returns the chat's open screen without creating a router.
func (w *Web) screen(chatID string) (*chat.Screen, error) {
	router, ok := w.hub.Lookup(chatID)
	if !ok {
		return nil, domain.ErrNoRole
	}
	return router.Screen()
}

func (w *Web) view(ctx context.Context, chatID string) (chatView, error) {
	v := chatView{ChatID: chatID, Messages: []render.Bubble{}}
	screen, err := w.screen(chatID)
	if err != nil {
		return v, err
	}
	msgs, err := screen.Messages(ctx)
	if err != nil {
		return v, err
	}
	v.Role = screen.Role()
	v.State = screen.State()
	v.Messages = render.RenderAll(msgs)
	return v, nil
}

func (w *Web) handleIndex(rw http.ResponseWriter, r *http.Request) {
	page, err := staticFS.ReadFile("web_static/index.html")
	if err != nil {
		w.logger.Error("index page", "err", err)
		http.Error(rw, "page unavailable", http.StatusInternalServerError)
		return
	}
	id := newWebChatID()
	w.logger.Debug("new web page", "chat", id)
	rw.Header().Set("Content-Type", "text/html; charset=utf-8")
	rw.Header().Set("Cache-Control", "no-store")
	rw.Write(bytes.ReplaceAll(page, chatIDPlaceholder, []byte(id)))
}

func (w *Web) handleStatus(rw http.ResponseWriter, r *http.Request) {
	writeJSON(rw, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": w.version,
		"chats":   len(w.hub.ChatIDs()),
		"time":    time.Now().Format(time.RFC3339),
	})
}

func (w *Web) handleSelectRole(rw http.ResponseWriter, r *http.Request) {
	chatID := w.session(rw, r)
	var req struct {
		Role string `json:"role"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(rw, http.StatusBadRequest, err.Error())
		return
	}
	role, err := domain.ParseRole(req.Role)
	if err != nil {
		w.fail(rw, err)
		return
	}
	if _, err := w.hub.Router(chatID).Select(r.Context(), role); err != nil {
		w.fail(rw, err)
		return
	}
	v, err := w.view(r.Context(), chatID)
	if err != nil {
		w.fail(rw, err)
		return
	}
	writeJSON(rw, http.StatusCreated, v)
}

func (w *Web) handleBack(rw http.ResponseWriter, r *http.Request) {
	chatID := w.session(rw, r)
	w.limiter.Forget(chatID)
	if err := w.hub.Drop(chatID); err != nil {
		w.logger.Warn("back", "chat", chatID, "err", err)
	}
	writeJSON(rw, http.StatusOK, chatView{ChatID: chatID, Messages: []render.Bubble{}})
}

func (w *Web) handleMessages(rw http.ResponseWriter, r *http.Request) {
	v, err := w.view(r.Context(), w.session(rw, r))
	if err != nil {
		w.fail(rw, err)
		return
	}
	writeJSON(rw, http.StatusOK, v)
}

func (w *Web) handleSend(rw http.ResponseWriter, r *http.Request) {
	chatID := w.session(rw, r)
	var req struct {
		Text string `json:"text"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(rw, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeError(rw, http.StatusBadRequest, "empty message")
		return
	}
	w.withScreen(rw, r, chatID, func(s *chat.Screen) error {
		return s.SubmitText(r.Context(), req.Text, domain.TypeText)
	})
}

func (w *Web) handleVoice(rw http.ResponseWriter, r *http.Request) {
	chatID := w.session(rw, r)
	w.withScreen(rw, r, chatID, func(s *chat.Screen) error {
		return s.SubmitVoice(r.Context())
	})
}

func (w *Web) handleImage(rw http.ResponseWriter, r *http.Request) {
	chatID := w.session(rw, r)
	r.Body = http.MaxBytesReader(rw, r.Body, maxImageSize)
	file, header, err := r.FormFile("image")
	if err != nil {
		writeError(rw, http.StatusBadRequest, "missing image: "+err.Error())
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		writeError(rw, http.StatusBadRequest, "read image: "+err.Error())
		return
	}
	img, err := domain.NewImageFile(header.Filename, data)
	if err != nil {
		w.fail(rw, err)
		return
	}
	w.withScreen(rw, r, chatID, func(s *chat.Screen) error {
		if err := s.Attach(img); err != nil {
			return err
		}
		return s.SubmitImage(r.Context())
	})
}

func (w *Web) handleTip(rw http.ResponseWriter, r *http.Request) {
	role := domain.RoleUnset
	if router, ok := w.hub.Lookup(w.session(rw, r)); ok {
		role = router.Role()
	}
	if q := r.URL.Query().Get("role"); q != "" {
		parsed, err := domain.ParseRole(q)
		if err != nil {
			w.fail(rw, err)
			return
		}
		role = parsed
	}
	if role == domain.RoleUnset {
		w.fail(rw, domain.ErrNoRole)
		return
	}
	writeJSON(rw, http.StatusOK, map[string]string{"role": string(role), "tip": w.hub.Tip(role)})
}

func (w *Web) handleWeather(rw http.ResponseWriter, r *http.Request) {
	weather, tip, ok := w.hub.Weather()
	if !ok {
		writeError(rw, http.StatusNotFound, "weather not available")
		return
	}
	writeJSON(rw, http.StatusOK, map[string]any{"weather": weather, "tip": tip})
}

func (w *Web) handleWS(rw http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	switch id := q.Get("chat_id"); {
	case id == "":
		q.Set("chat_id", w.session(rw, r))
		r.URL.RawQuery = q.Encode()
	case !validWebChatID(id):
		writeError(rw, http.StatusBadRequest, "invalid chat_id")
		return
	}
	w.ws.ServeHTTP(rw, r)
}

// withScreen runs fn on the session's screen and answers with the updated view.
func (w *Web) withScreen(rw http.ResponseWriter, r *http.Request, chatID string, fn func(*chat.Screen) error) {
	screen, err := w.screen(chatID)
	if err != nil {
		w.fail(rw, err)
		return
	}
	if !w.limiter.Allow(chatID) {
		writeError(rw, http.StatusTooManyRequests, slowDown)
		return
	}
	if err := fn(screen); err != nil {
		w.fail(rw, err)
		return
	}
	v, err := w.view(r.Context(), chatID)
	if err != nil {
		w.fail(rw, err)
		return
	}
	writeJSON(rw, http.StatusOK, v)
}

func (w *Web) fail(rw http.ResponseWriter, err error) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		w.logger.Error("web request failed", "err", err)
	}
	writeError(rw, code, chat.Notice(err))
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrBusy), errors.Is(err, domain.ErrRoleSet):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInvalidRole), errors.Is(err, domain.ErrUnsupported), errors.Is(err, domain.ErrNotImage):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNoRole):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrClosed):
		return http.StatusGone
	default:
		return http.StatusInternalServerError
	}
}

func decodeBody(r *http.Request, v any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return nil
}

func writeJSON(rw http.ResponseWriter, code int, v any) {
	rw.Header().Set("Content-Type", "application/json; charset=utf-8")
	rw.WriteHeader(code)
	json.NewEncoder(rw).Encode(v)
}

func writeError(rw http.ResponseWriter, code int, msg string) {
	writeJSON(rw, code, map[string]string{"error": msg})
}
