package channel

import (
	"context"
	"log/slog"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"tripbot/internal/bus"
	"tripbot/internal/domain"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func dialWS(t *testing.T, ws *WebSocketChannel, b domain.MessageBus) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(ws.Handler(b))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func receive(t *testing.T, b *bus.InMemoryBus) domain.InboundMessage {
	t.Helper()
	select {
	case msg := <-b.Subscribe():
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("no inbound message")
		return domain.InboundMessage{}
	}
}

func TestWebSocket_InboundFrames(t *testing.T) {
	b := bus.New(bus.Config{Logger: testLogger()})
	ws := NewWebSocketChannel(WSConfig{Logger: testLogger()})
	conn := dialWS(t, ws, b)

	require.NoError(t, conn.WriteJSON(WSMessage{Type: WSTextInput, Text: "北京今天天气怎么样", Images: []string{"aGk="}}))
	text := receive(t, b)
	assert.Equal(t, domain.InboundText, text.Kind)
	assert.Equal(t, "websocket", text.Channel)
	assert.Equal(t, "北京今天天气怎么样", text.Content)
	assert.Equal(t, []string{"aGk="}, text.Images)
	assert.NotEmpty(t, text.ChatID)

	require.NoError(t, conn.WriteJSON(WSMessage{Type: WSInterruptSignal, Text: "Hello wo"}))
	interrupt := receive(t, b)
	assert.Equal(t, domain.InboundInterrupt, interrupt.Kind)
	assert.Equal(t, "Hello wo", interrupt.Content)
	assert.Equal(t, text.ChatID, interrupt.ChatID)

	require.NoError(t, conn.WriteJSON(WSMessage{Type: WSFetchHistory, ConfUID: "conf", HistoryUID: "h1"}))
	history := receive(t, b)
	assert.Equal(t, domain.InboundHistory, history.Kind)
	assert.Equal(t, "conf", history.ConfUID)
	assert.Equal(t, "h1", history.HistoryUID)
}

func TestWebSocket_UnknownAndInvalidFrames(t *testing.T) {
	b := bus.New(bus.Config{Logger: testLogger()})
	ws := NewWebSocketChannel(WSConfig{Logger: testLogger()})
	conn := dialWS(t, ws, b)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	var frame WSMessage
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&frame))
	assert.Equal(t, WSError, frame.Type)

	require.NoError(t, conn.WriteJSON(WSMessage{Type: "mic-audio-data"}))
	require.NoError(t, conn.WriteJSON(WSMessage{Type: WSTextInput, Text: "你好"}))
	msg := receive(t, b)
	assert.Equal(t, "你好", msg.Content)
}

func TestWebSocket_OutboundFrames(t *testing.T) {
	b := bus.New(bus.Config{Logger: testLogger()})
	ws := NewWebSocketChannel(WSConfig{Logger: testLogger()})
	conn := dialWS(t, ws, b)

	require.NoError(t, conn.WriteJSON(WSMessage{Type: WSTextInput, Text: "你好"}))
	in := receive(t, b)

	b.SendOutbound(domain.OutboundMessage{Channel: "websocket", ChatID: in.ChatID, Name: "旅行助手", Content: "你好！"})
	b.SendOutbound(domain.OutboundMessage{Channel: "websocket", ChatID: in.ChatID, Content: "出错了", IsError: true})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var reply WSMessage
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Equal(t, WSMessage{Type: WSFullText, Text: "你好！", Name: "旅行助手"}, reply)

	var errFrame WSMessage
	require.NoError(t, conn.ReadJSON(&errFrame))
	assert.Equal(t, WSMessage{Type: WSError, Text: "出错了"}, errFrame)
}

func TestWebSocket_SendUnknownClient(t *testing.T) {
	ws := NewWebSocketChannel(WSConfig{Logger: testLogger()})
	err := ws.Send(context.Background(), domain.OutboundMessage{Channel: "websocket", ChatID: "gone"})
	assert.ErrorContains(t, err, "not connected")
}

func TestWebSocket_OriginCheck(t *testing.T) {
	b := bus.New(bus.Config{Logger: testLogger()})
	ws := NewWebSocketChannel(WSConfig{AllowedOrigins: []string{"http://allowed.example"}, Logger: testLogger()})
	srv := httptest.NewServer(ws.Handler(b))
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	_, resp, err := websocket.DefaultDialer.Dial(url, map[string][]string{"Origin": {"http://evil.example"}})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, 403, resp.StatusCode)

	conn, _, err := websocket.DefaultDialer.Dial(url, map[string][]string{"Origin": {"http://allowed.example"}})
	require.NoError(t, err)
	conn.Close()
}
