package api

import (
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kalam-backend/internal/api/routes"
	v1 "kalam-backend/internal/api/routes/v1"
	"kalam-backend/internal/auth"
	"kalam-backend/internal/libraries"
	"kalam-backend/internal/repo"
)

type harness struct {
	addr  string
	authn *auth.Authenticator
	chats *repo.MemoryChatRepo
	relay *libraries.Relay
}

func startServer(t *testing.T) *harness {
	t.Helper()
	authn, err := auth.NewAuthenticator("integration-secret")
	require.NoError(t, err)
	chats := repo.NewMemoryChatRepository()
	persister := libraries.NewPersister(chats, 16, time.Second)
	relay := libraries.NewRelay(libraries.NewRegistry(), libraries.WithPersister(persister))

	app := NewServer()
	routes.Register(app, v1.Deps{
		Auth:      authn,
		Relay:     relay,
		Rooms:     repo.NewMemoryRoomRepository(),
		Chats:     chats,
		Snapshots: libraries.DirSnapshotStore{Dir: t.TempDir()},
	})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = app.Listener(ln) }()
	t.Cleanup(func() {
		_ = app.Shutdown()
		persister.Close()
	})
	return &harness{addr: ln.Addr().String(), authn: authn, chats: chats, relay: relay}
}

func (h *harness) dial(t *testing.T, user string) *websocket.Conn {
	t.Helper()
	tok, err := h.authn.Issue(user, time.Hour)
	require.NoError(t, err)
	conn, _, err := websocket.DefaultDialer.Dial("ws://"+h.addr+"/api/v1/ws?token="+tok, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, frame string) {
	t.Helper()
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(frame)))
}

func read(t *testing.T, conn *websocket.Conn) string {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	return string(data)
}

func TestHealth(t *testing.T) {
	h := startServer(t)
	resp, err := http.Get("http://" + h.addr + "/api/v1/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok"}`, string(body))
}

func TestHandshakeRejectedWithoutValidToken(t *testing.T) {
	h := startServer(t)
	for _, url := range []string{
		"ws://" + h.addr + "/api/v1/ws",
		"ws://" + h.addr + "/api/v1/ws?token=garbage",
	} {
		_, resp, err := websocket.DefaultDialer.Dial(url, nil)
		require.Error(t, err)
		require.NotNil(t, resp)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	}
	assert.Zero(t, h.relay.Registry().Len())
}

func TestPlainGetOnRelayNeedsUpgrade(t *testing.T) {
	h := startServer(t)
	resp, err := http.Get("http://" + h.addr + "/api/v1/ws")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, fiber.StatusUpgradeRequired, resp.StatusCode)
}

func TestRelayFanOutOverSockets(t *testing.T) {
	h := startServer(t)
	a := h.dial(t, "alice")
	b := h.dial(t, "bob")
	c := h.dial(t, "carol")

	send(t, a, `{"type":"join_room","roomId":7}`)
	send(t, b, `{"type":"join_room","roomId":7}`)
	send(t, c, `{"type":"join_room","roomId":9}`)
	require.Eventually(t, func() bool {
		return len(h.relay.Registry().MembersOf("7")) == 2 && len(h.relay.Registry().MembersOf("9")) == 1
	}, 2*time.Second, 10*time.Millisecond)

	send(t, a, `{"type":"dance"}`)
	send(t, a, `{"type":"chat","roomId":7,"message":"{\"shape\":{\"type\":\"rect\",\"x\":1,\"y\":2,\"width\":3,\"height\":4}}"}`)

	want := `{"type":"chat","message":"{\"shape\":{\"type\":\"rect\",\"x\":1,\"y\":2,\"width\":3,\"height\":4}}","roomId":7}`
	assert.JSONEq(t, want, read(t, b))
	assert.JSONEq(t, want, read(t, a), "malformed frame before it did not close the socket")

	require.NoError(t, c.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	_, _, err := c.ReadMessage()
	var netErr net.Error
	require.ErrorAs(t, err, &netErr)
	assert.True(t, netErr.Timeout(), "room 9 receives nothing")

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + h.addr + "/api/v1/chats/7")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		var body struct {
			Messages []struct {
				UserID string `json:"userId"`
			} `json:"messages"`
		}
		return json.NewDecoder(resp.Body).Decode(&body) == nil && len(body.Messages) == 1 && body.Messages[0].UserID == "alice"
	}, 2*time.Second, 20*time.Millisecond)
}

func TestDisconnectUnregisters(t *testing.T) {
	h := startServer(t)
	a := h.dial(t, "alice")
	send(t, a, `{"type":"join_room","roomId":"lobby"}`)
	require.Eventually(t, func() bool { return h.relay.Registry().Len() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, a.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	require.Eventually(t, func() bool {
		return h.relay.Registry().Len() == 0 && len(h.relay.Registry().MembersOf("lobby")) == 0
	}, 2*time.Second, 10*time.Millisecond)
}
