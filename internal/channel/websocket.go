package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"slices"
	"strconv"
	"sync"
	"time"

	"tripbot/internal/domain"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const wsChannel = "websocket"

// Client frame types.
const (
	WSTextInput       = "text-input"
	WSInterruptSignal = "interrupt-signal"
	WSFetchHistory    = "fetch-and-set-history"
	WSFullText        = "full-text"
	WSError           = "error"
)

// WSConfig configures the WebSocket channel.
type WSConfig struct {
	Host           string
	Port           int
	Path           string   // endpoint path (default: /client-ws)
	AllowedOrigins []string // empty allows every origin
	Logger         *slog.Logger
}

// WebSocketChannel serves the JSON frame protocol used by browser and
// desktop front-ends. Every connection is its own conversation.
type WebSocketChannel struct {
	addr     string
	path     string
	bus      domain.MessageBus
	logger   *slog.Logger
	server   *http.Server
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[string]*wsClient
}

type wsClient struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

// WSMessage is a single protocol frame in either direction.
type WSMessage struct {
	Type       string   `json:"type"`
	Text       string   `json:"text,omitempty"`
	Name       string   `json:"name,omitempty"`
	Images     []string `json:"images,omitempty"`
	ConfUID    string   `json:"conf_uid,omitempty"`
	HistoryUID string   `json:"history_uid,omitempty"`
}

// NewWebSocketChannel creates a new WebSocket channel.
func NewWebSocketChannel(cfg WSConfig) *WebSocketChannel {
	if cfg.Path == "" {
		cfg.Path = "/client-ws"
	}
	if cfg.Port == 0 {
		cfg.Port = 12393
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	ws := &WebSocketChannel{
		addr:    net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		path:    cfg.Path,
		logger:  cfg.Logger,
		clients: make(map[string]*wsClient),
	}
	origins := cfg.AllowedOrigins
	ws.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return len(origins) == 0 || origin == "" || slices.Contains(origins, origin)
		},
	}
	return ws
}

func (ws *WebSocketChannel) Name() string { return wsChannel }

// Handler returns the upgrade endpoint so it can be mounted on a shared mux.
func (ws *WebSocketChannel) Handler(bus domain.MessageBus) http.Handler {
	ws.bus = bus
	bus.OnOutbound(wsChannel, func(msg domain.OutboundMessage) {
		if err := ws.Send(context.Background(), msg); err != nil {
			ws.logger.Debug("websocket outbound dropped", "chat_id", msg.ChatID, "err", err)
		}
	})
	return http.HandlerFunc(ws.handleUpgrade)
}

// Start begins the WebSocket server and blocks until ctx is cancelled.
func (ws *WebSocketChannel) Start(ctx context.Context, bus domain.MessageBus) error {
	mux := http.NewServeMux()
	mux.Handle(ws.path, ws.Handler(bus))

	ws.server = &http.Server{
		Addr:              ws.addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ws.logger.Info("websocket server starting", "addr", ws.addr, "path", ws.path)

	errCh := make(chan error, 1)
	go func() {
		if err := ws.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		ws.closeAllClients()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return ws.server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// Stop closes every open connection.
func (ws *WebSocketChannel) Stop() error {
	ws.closeAllClients()
	return nil
}

// Send writes a reply frame to the connection identified by msg.ChatID.
func (ws *WebSocketChannel) Send(_ context.Context, msg domain.OutboundMessage) error {
	ws.mu.RLock()
	client, ok := ws.clients[msg.ChatID]
	ws.mu.RUnlock()
	if !ok {
		return fmt.Errorf("websocket client %q not connected", msg.ChatID)
	}

	frame := WSMessage{Type: WSFullText, Text: msg.Content, Name: msg.Name}
	if msg.IsError {
		frame = WSMessage{Type: WSError, Text: msg.Content}
	}
	return client.send(frame)
}

// ClientCount reports the number of open connections.
func (ws *WebSocketChannel) ClientCount() int {
	ws.mu.RLock()
	defer ws.mu.RUnlock()
	return len(ws.clients)
}

func (ws *WebSocketChannel) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	conn, err := ws.upgrader.Upgrade(w, r, nil)
	if err != nil {
		ws.logger.Error("websocket upgrade failed", "err", err)
		return
	}

	clientID := uuid.NewString()
	client := &wsClient{conn: conn}
	ws.mu.Lock()
	ws.clients[clientID] = client
	ws.mu.Unlock()

	ws.logger.Info("websocket client connected", "client_id", clientID, "remote", r.RemoteAddr)

	defer func() {
		ws.mu.Lock()
		delete(ws.clients, clientID)
		ws.mu.Unlock()
		conn.Close()
		ws.logger.Info("websocket client disconnected", "client_id", clientID)
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				ws.logger.Error("websocket read error", "err", err)
			}
			return
		}

		var frame WSMessage
		if err := json.Unmarshal(data, &frame); err != nil {
			ws.logger.Warn("invalid websocket frame", "client_id", clientID, "err", err)
			_ = client.send(WSMessage{Type: WSError, Text: "invalid JSON frame"})
			continue
		}

		msg, ok := ws.inbound(clientID, frame)
		if !ok {
			ws.logger.Debug("ignoring websocket frame", "client_id", clientID, "type", frame.Type)
			continue
		}
		ws.bus.Publish(msg)
	}
}

func (ws *WebSocketChannel) inbound(clientID string, frame WSMessage) (domain.InboundMessage, bool) {
	msg := domain.InboundMessage{
		Channel:   wsChannel,
		ChatID:    clientID,
		Timestamp: time.Now(),
	}
	switch frame.Type {
	case WSTextInput:
		msg.Kind = domain.InboundText
		msg.Content = frame.Text
		msg.Images = frame.Images
	case WSInterruptSignal:
		msg.Kind = domain.InboundInterrupt
		msg.Content = frame.Text
	case WSFetchHistory:
		msg.Kind = domain.InboundHistory
		msg.ConfUID = frame.ConfUID
		msg.HistoryUID = frame.HistoryUID
	default:
		return msg, false
	}
	return msg, true
}

func (c *wsClient) send(msg WSMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (ws *WebSocketChannel) closeAllClients() {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	for id, client := range ws.clients {
		client.conn.Close()
		delete(ws.clients, id)
	}
}
