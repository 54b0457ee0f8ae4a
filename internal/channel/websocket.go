package channel

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"agrisaarthi/internal/bus"
	"agrisaarthi/internal/chat"
	"agrisaarthi/internal/domain"
	"agrisaarthi/internal/metrics"
	"agrisaarthi/internal/render"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const wsWriteTimeout = 5 * time.Second

// WSMessage is the JSON frame exchanged over /ws.
//
// Server → client: "message" (Bubble set), "status" (Content is the screen
// state or "connected"), "role" (Content is the role, empty when unset),
// "error" (Content is a notice).
// Client → server: "message" (Content is the text), "voice".
type WSMessage struct {
	Type    string         `json:"type"`
	Content string         `json:"content,omitempty"`
	ChatID  string         `json:"chat_id,omitempty"`
	Bubble  *render.Bubble `json:"bubble,omitempty"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WebSocketChannel pushes chat events to connected browsers and accepts
// messages from them.
type WebSocketChannel struct {
	hub     *chat.Hub
	logger  *slog.Logger
	limiter *RateLimiter
	subs    []subscription

	mu      sync.RWMutex
	clients map[string]*wsClient
}

type wsClient struct {
	conn   *websocket.Conn
	chatID string
	mu     sync.Mutex
}

type WSConfig struct {
	Hub     *chat.Hub
	Limiter *RateLimiter
	Logger  *slog.Logger
}

// NewWebSocketChannel subscribes to the hub's events; call Close to detach.
func NewWebSocketChannel(cfg WSConfig) *WebSocketChannel {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	ws := &WebSocketChannel{
		hub:     cfg.Hub,
		logger:  cfg.Logger,
		limiter: cfg.Limiter,
		clients: make(map[string]*wsClient),
	}
	events := cfg.Hub.Events()
	ws.subs = []subscription{
		{bus.EventMessageAppended, events.On(bus.EventMessageAppended, ws.onMessage)},
		{bus.EventScreenState, events.On(bus.EventScreenState, ws.onState)},
		{bus.EventRoleChanged, events.On(bus.EventRoleChanged, ws.onRole)},
	}
	return ws
}

func (ws *WebSocketChannel) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		ws.logger.Error("websocket upgrade failed", "err", err)
		return
	}

	chatID := r.URL.Query().Get("chat_id")
	if chatID == "" {
		chatID = "ws_" + uuid.NewString()
	}
	client := &wsClient{conn: conn, chatID: chatID}
	clientID := chatID + "-" + uuid.NewString()

	ws.mu.Lock()
	ws.clients[clientID] = client
	ws.mu.Unlock()
	metrics.WSConnections.Inc()
	ws.logger.Info("websocket client connected", "client_id", clientID, "chat_id", chatID)

	client.send(WSMessage{Type: "status", Content: "connected", ChatID: chatID})

	defer func() {
		ws.mu.Lock()
		delete(ws.clients, clientID)
		ws.mu.Unlock()
		metrics.WSConnections.Dec()
		conn.Close()
		ws.logger.Info("websocket client disconnected", "client_id", clientID)
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				ws.logger.Warn("websocket read error", "err", err)
			}
			return
		}
		var msg WSMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			ws.logger.Warn("invalid websocket message", "err", err)
			continue
		}
		// Replies arrive as events; the read loop must keep draining.
		go ws.handle(client, msg)
	}
}

func (ws *WebSocketChannel) handle(client *wsClient, msg WSMessage) {
	screen, err := ws.hub.Router(client.chatID).Screen()
	if err != nil {
		client.send(WSMessage{Type: "error", Content: chat.Notice(err), ChatID: client.chatID})
		return
	}
	if !ws.limiter.Allow(client.chatID) {
		client.send(WSMessage{Type: "error", Content: slowDown, ChatID: client.chatID})
		return
	}
	ctx := context.Background()
	switch msg.Type {
	case "message":
		err = screen.SubmitText(ctx, msg.Content, domain.TypeText)
	case "voice":
		err = screen.SubmitVoice(ctx)
	default:
		ws.logger.Debug("ignored websocket frame", "type", msg.Type)
		return
	}
	if err != nil {
		client.send(WSMessage{Type: "error", Content: chat.Notice(err), ChatID: client.chatID})
	}
}

func (ws *WebSocketChannel) onMessage(e bus.Event) {
	if e.Message == nil {
		return
	}
	b := render.Render(*e.Message)
	ws.broadcastToChat(e.ChatID, WSMessage{Type: "message", ChatID: e.ChatID, Bubble: &b})
}

func (ws *WebSocketChannel) onState(e bus.Event) {
	ws.broadcastToChat(e.ChatID, WSMessage{Type: "status", Content: e.State, ChatID: e.ChatID})
}

func (ws *WebSocketChannel) onRole(e bus.Event) {
	ws.broadcastToChat(e.ChatID, WSMessage{Type: "role", Content: string(e.Role), ChatID: e.ChatID})
}

func (ws *WebSocketChannel) broadcastToChat(chatID string, msg WSMessage) {
	ws.mu.RLock()
	targets := make([]*wsClient, 0, len(ws.clients))
	for _, c := range ws.clients {
		if c.chatID == chatID {
			targets = append(targets, c)
		}
	}
	ws.mu.RUnlock()

	for _, c := range targets {
		c.send(msg)
	}
}

// Clients returns the number of open connections.
func (ws *WebSocketChannel) Clients() int {
	ws.mu.RLock()
	defer ws.mu.RUnlock()
	return len(ws.clients)
}

// Close detaches from the hub and drops every connection.
func (ws *WebSocketChannel) Close() {
	events := ws.hub.Events()
	for _, s := range ws.subs {
		events.Off(s.event, s.id)
	}
	ws.subs = nil

	ws.mu.Lock()
	defer ws.mu.Unlock()
	for id, c := range ws.clients {
		c.conn.Close()
		delete(ws.clients, id)
	}
}

func (c *wsClient) send(msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	c.conn.WriteMessage(websocket.TextMessage, data)
}
