package services

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticIdentity map[string]uint

func (s staticIdentity) ParseToken(token string) (uint, error) {
	switch token {
	case "":
		return 0, ErrNoToken
	case "anonymous":
		return 0, ErrNoSubject
	}
	if id, ok := s[token]; ok {
		return id, nil
	}
	return 0, ErrInvalidToken
}

func newPushTestServer(t *testing.T, registry *Registry) string {
	t.Helper()
	gin.SetMode(gin.TestMode)
	push := NewPushServer(registry, staticIdentity{"good": 21}, time.Second, 2*time.Second)
	r := gin.New()
	r.GET("/ws", push.HandleWebSocket)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func readCloseCode(t *testing.T, conn *websocket.Conn) int {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	var ce *websocket.CloseError
	require.ErrorAs(t, err, &ce)
	return ce.Code
}

func TestPushHandshakeCloseCodes(t *testing.T) {
	registry := NewRegistry(nil)
	defer registry.Close()
	url := newPushTestServer(t, registry)

	tests := []struct {
		query string
		code  int
	}{
		{"", CloseNoToken},
		{"?token=anonymous", CloseNoSubject},
		{"?token=forged", CloseInvalidToken},
	}
	for _, tt := range tests {
		conn, _, err := websocket.DefaultDialer.Dial(url+tt.query, nil)
		require.NoError(t, err, "upgrade happens before authentication")
		assert.Equal(t, tt.code, readCloseCode(t, conn), "query %q", tt.query)
		_ = conn.Close()
	}
	assert.Zero(t, registry.Len())
}

func TestPushDeliversAndReplaces(t *testing.T) {
	registry := NewRegistry(nil)
	defer registry.Close()
	url := newPushTestServer(t, registry)

	first, _, err := websocket.DefaultDialer.Dial(url+"?token=good", nil)
	require.NoError(t, err)
	defer first.Close()
	require.Eventually(t, func() bool { return registry.Online(21) }, time.Second, 5*time.Millisecond)

	require.True(t, registry.Send(21, Event{Type: EventIncomingCall, Payload: map[string]int{"callId": 5}}))
	var got struct {
		Type    string         `json:"type"`
		Payload map[string]int `json:"payload"`
	}
	_ = first.SetReadDeadline(time.Now().Add(2 * time.Second))
	require.NoError(t, first.ReadJSON(&got))
	assert.Equal(t, EventIncomingCall, got.Type)
	assert.Equal(t, 5, got.Payload["callId"])

	second, _, err := websocket.DefaultDialer.Dial(url+"?token=good", nil)
	require.NoError(t, err)
	defer second.Close()

	assert.Equal(t, CloseReplaced, readCloseCode(t, first))
	assert.True(t, registry.Online(21))

	require.NoError(t, second.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	require.Eventually(t, func() bool { return !registry.Online(21) }, 2*time.Second, 10*time.Millisecond)
}
