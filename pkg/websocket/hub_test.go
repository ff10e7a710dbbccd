package websocket

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"ridechat/internal/config"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingHandler struct {
	mu          sync.Mutex
	events      []string
	disconnects []string
	clients     chan *Client
}

func (r *recordingHandler) HandleEvent(client *Client, event string, data json.RawMessage) {
	r.mu.Lock()
	r.events = append(r.events, event)
	r.mu.Unlock()
	if event == "join" {
		r.clients <- client
	}
}

func (r *recordingHandler) HandleDisconnect(client *Client) {
	r.mu.Lock()
	r.disconnects = append(r.disconnects, client.ID)
	r.mu.Unlock()
}

func (r *recordingHandler) disconnectCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.disconnects)
}

func newTestServer(t *testing.T) (*Hub, *recordingHandler, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	hub := NewHub(nil)
	rec := &recordingHandler{clients: make(chan *Client, 8)}
	hub.SetHandler(rec)

	stop := make(chan struct{})
	go hub.Run(stop)

	cfg := &config.WebSocketConfig{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		MaxMessageSize:  4096,
		SendBufferSize:  16,
		PingInterval:    time.Minute,
		PongTimeout:     time.Minute,
		WriteTimeout:    time.Second,
		AllowedOrigins:  []string{"*"},
	}
	router := gin.New()
	router.GET("/ws", NewHandler(hub, cfg, false).HandleWebSocket)

	srv := httptest.NewServer(router)
	t.Cleanup(func() {
		close(stop)
		srv.Close()
	})

	return hub, rec, "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) Envelope {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var env Envelope
	require.NoError(t, conn.ReadJSON(&env))
	return env
}

func joinClient(t *testing.T, conn *websocket.Conn, rec *recordingHandler) *Client {
	t.Helper()
	require.NoError(t, conn.WriteJSON(map[string]interface{}{"event": "join", "data": map[string]string{}}))
	select {
	case c := <-rec.clients:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("join event not routed")
		return nil
	}
}

func TestHub_BroadcastExcludesSender(t *testing.T) {
	hub, rec, url := newTestServer(t)

	a := dial(t, url)
	b := dial(t, url)
	ca := joinClient(t, a, rec)
	cb := joinClient(t, b, rec)

	hub.Join(ca.ID, "room:ride-1")
	hub.Join(cb.ID, "room:ride-1")
	assert.Equal(t, 2, hub.GroupSize("room:ride-1"))

	hub.Broadcast("room:ride-1", "typing:active", map[string]string{"userId": "u1"}, ca.ID)

	env := readEnvelope(t, b)
	assert.Equal(t, "typing:active", env.Event)
	assert.JSONEq(t, `{"userId":"u1"}`, string(env.Data))

	hub.SendTo(ca.ID, "message:sent", map[string]string{"messageId": "m1"})
	env = readEnvelope(t, a)
	assert.Equal(t, "message:sent", env.Event)
}

func TestHub_InvalidFrameGetsError(t *testing.T) {
	_, _, url := newTestServer(t)
	conn := dial(t, url)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	env := readEnvelope(t, conn)
	assert.Equal(t, "error", env.Event)
	assert.Contains(t, string(env.Data), "Invalid message format")
}

func TestHub_DisconnectNotifiesOnceAndLeavesGroups(t *testing.T) {
	hub, rec, url := newTestServer(t)

	conn := dial(t, url)
	client := joinClient(t, conn, rec)
	hub.Join(client.ID, "room:ride-2")
	require.True(t, hub.IsConnected(client.ID))

	conn.Close()

	require.Eventually(t, func() bool { return rec.disconnectCount() == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.False(t, hub.IsConnected(client.ID))
	assert.Equal(t, 0, hub.GroupSize("room:ride-2"))

	hub.SendTo(client.ID, "message:sent", nil)
	hub.Broadcast("room:ride-2", "user:left", nil, "")
	assert.Equal(t, 1, rec.disconnectCount())
}

func TestHub_ReleaseAfterStopDoesNotBlock(t *testing.T) {
	hub := NewHub(nil)
	stop := make(chan struct{})
	stopped := make(chan struct{})
	go func() {
		hub.Run(stop)
		close(stopped)
	}()
	close(stop)
	<-stopped

	// More finished clients than the unregister buffer holds.
	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			hub.release(&Client{ID: fmt.Sprintf("c-%d", i)})
		}(i)
	}

	released := make(chan struct{})
	go func() {
		wg.Wait()
		close(released)
	}()

	select {
	case <-released:
	case <-time.After(2 * time.Second):
		t.Fatal("release blocked after the hub stopped")
	}
}

func TestCheckOrigin(t *testing.T) {
	check := checkOrigin([]string{"https://app.example.com"})

	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	assert.True(t, check(req))

	req.Header.Set("Origin", "https://app.example.com")
	assert.True(t, check(req))

	req.Header.Set("Origin", "https://evil.example.com")
	assert.False(t, check(req))
}
