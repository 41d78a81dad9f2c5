package ws

import (
	"bufio"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wadesk-backend/internal/domain"
	"wadesk-backend/internal/hub"
	"wadesk-backend/internal/middleware"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var agent = domain.ParticipantRef{Kind: domain.ParticipantUser, ID: "user-agent00001"}

func withParticipant(ref *domain.ParticipantRef) gin.HandlerFunc {
	return func(c *gin.Context) {
		if ref != nil {
			c.Set(middleware.ContextParticipant, *ref)
		}
		c.Next()
	}
}

func newServer(t *testing.T, h *hub.Hub, ref *domain.ParticipantRef) *httptest.Server {
	router := gin.New()
	router.Use(withParticipant(ref))
	router.GET("/v1/ws", NewPushHandler(h, nil).ServeWS)
	router.GET("/v1/events", NewStreamHandler(h).ServeSSE)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv
}

func TestServeWS_DeliversPush(t *testing.T) {
	h := hub.New(nil)
	srv := newServer(t, h, &agent)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/v1/ws", nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return h.IsConnected(agent.ID) }, time.Second, 10*time.Millisecond)

	delivered := h.PushEvent([]string{agent.ID}, domain.EventMessage, &domain.MessageView{Message: &domain.Message{ID: "message-1"}}, false, "")
	assert.Equal(t, 1, delivered)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := conn.ReadMessage()
	require.NoError(t, err)

	var ev domain.PushEvent
	require.NoError(t, json.Unmarshal(payload, &ev))
	assert.Equal(t, domain.EventMessage, ev.Event)
	assert.Equal(t, "message-1", ev.Message.ID)
}

func TestServeWS_UnregistersOnClose(t *testing.T) {
	h := hub.New(nil)
	srv := newServer(t, h, &agent)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/v1/ws", nil)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return h.Count() == 1 }, time.Second, 10*time.Millisecond)

	conn.Close()
	assert.Eventually(t, func() bool { return h.Count() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestServeWS_CloseAllEndsSession(t *testing.T) {
	h := hub.New(nil)
	srv := newServer(t, h, &agent)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/v1/ws", nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return h.Count() == 1 }, time.Second, 10*time.Millisecond)

	h.CloseAll()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage()
	assert.Error(t, err)
	assert.Equal(t, 0, h.Count())
}

func TestServeWS_Unauthenticated(t *testing.T) {
	srv := newServer(t, hub.New(nil), nil)

	_, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/v1/ws", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestOriginChecker(t *testing.T) {
	check := originChecker([]string{"https://desk.example.com/"})

	req := httptest.NewRequest(http.MethodGet, "/v1/ws", nil)
	assert.True(t, check(req), "no origin header")

	req.Header.Set("Origin", "https://desk.example.com")
	assert.True(t, check(req))

	req.Header.Set("Origin", "https://evil.example.com")
	assert.False(t, check(req))

	assert.True(t, originChecker([]string{"*"})(req))
}

func TestServeSSE_StreamsPush(t *testing.T) {
	h := hub.New(nil)
	srv := newServer(t, h, &agent)

	resp, err := http.Get(srv.URL + "/v1/events")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	require.Eventually(t, func() bool { return h.IsConnected(agent.ID) }, time.Second, 10*time.Millisecond)
	h.PushEvent([]string{agent.ID}, domain.EventAck, &domain.MessageView{Message: &domain.Message{ID: "message-2"}}, false, "")

	reader := bufio.NewReader(resp.Body)
	var event, data string
	for event == "" || data == "" {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		switch {
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data = strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		}
	}

	assert.Equal(t, domain.EventAck, event)
	assert.Contains(t, data, `"message-2"`)
}

func TestEventName(t *testing.T) {
	assert.Equal(t, domain.EventAck, eventName([]byte(`{"event":"ack","message":null}`)))
	assert.Equal(t, domain.EventMessage, eventName([]byte(`{"event":"message"}`)))
	assert.Equal(t, domain.EventMessage, eventName([]byte(`not json`)))
}
