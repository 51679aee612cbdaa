package realtime_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jrsteele09/go-fleet-portal/realtime"
	"github.com/stretchr/testify/require"
)

type hubRequest struct {
	Token         string
	Authorization string
	Handshake     string
	Invocation    map[string]any
}

// setupHub starts a SignalR hub that completes the handshake, answers one
// invocation, pushes a VehicleUpdated event and then closes with an error.
// With reject set the handshake is refused instead.
func setupHub(t *testing.T, reject bool) (*httptest.Server, chan hubRequest) {
	t.Helper()
	seen := make(chan hubRequest, 1)
	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		req := hubRequest{
			Token:         r.URL.Query().Get("access_token"),
			Authorization: r.Header.Get("Authorization"),
		}
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		req.Handshake = string(data)

		if reject {
			_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"protocol not supported"}`+"\x1e"))
			seen <- req
			return
		}
		_ = conn.WriteMessage(websocket.TextMessage, []byte("{}\x1e"))

		_, data, err = conn.ReadMessage()
		if err != nil {
			return
		}
		_ = json.Unmarshal([]byte(strings.TrimRight(string(data), "\x1e")), &req.Invocation)
		seen <- req

		id, _ := req.Invocation["invocationId"].(string)
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":3,"invocationId":"`+id+`"}`+"\x1e"+`{"type":6}`+"\x1e"))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":1,"target":"VehicleUpdated","arguments":[{"id":"v1","status":2}]}`+"\x1e"))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":7,"error":"server shutting down"}`+"\x1e"))

		// hold the socket until the client goes away
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(server.Close)
	return server, seen
}

func TestSignalRChannel(t *testing.T) {
	server, seen := setupHub(t, false)
	factory := realtime.NewSignalRFactory(server.URL, map[realtime.Topic]string{
		realtime.TopicVehicleEvents: "/hub/vehicles",
	}, realtime.WithKeepAlive(0))

	ch, err := factory(realtime.TopicVehicleEvents, "token-1")
	require.NoError(t, err)

	received := make(chan []json.RawMessage, 1)
	ch.On("VehicleUpdated", func(args []json.RawMessage) { received <- args })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, ch.Start(ctx))
	require.NoError(t, ch.Invoke(ctx, "JoinFleetGroup", "fleet-1"))

	req := <-seen
	require.Equal(t, "token-1", req.Token)
	require.Equal(t, "Bearer token-1", req.Authorization)
	require.Equal(t, `{"protocol":"json","version":1}`+"\x1e", req.Handshake)
	require.Equal(t, float64(1), req.Invocation["type"])
	require.Equal(t, "JoinFleetGroup", req.Invocation["target"])
	require.Equal(t, []any{"fleet-1"}, req.Invocation["arguments"])

	select {
	case args := <-received:
		require.Len(t, args, 1)
		require.JSONEq(t, `{"id":"v1","status":2}`, string(args[0]))
	case <-ctx.Done():
		t.Fatal("no VehicleUpdated delivered")
	}

	select {
	case err := <-ch.Closed():
		require.ErrorContains(t, err, "server shutting down")
	case <-ctx.Done():
		t.Fatal("channel did not report the server close")
	}
}

func TestSignalRHandshakeRejected(t *testing.T) {
	server, _ := setupHub(t, true)
	factory := realtime.NewSignalRFactory(server.URL, map[realtime.Topic]string{
		realtime.TopicFleetEvents: "/hub/fleets",
	}, realtime.WithKeepAlive(0))

	ch, err := factory(realtime.TopicFleetEvents, "token-1")
	require.NoError(t, err)
	require.ErrorContains(t, ch.Start(context.Background()), "protocol not supported")
}

func TestSignalRLocalCloseReportsNil(t *testing.T) {
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
		_ = conn.WriteMessage(websocket.TextMessage, []byte("{}\x1e"))
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(server.Close)

	factory := realtime.NewSignalRFactory(server.URL, map[realtime.Topic]string{
		realtime.TopicFleetEvents: "/hub/fleets",
	}, realtime.WithKeepAlive(0))
	ch, err := factory(realtime.TopicFleetEvents, "token-1")
	require.NoError(t, err)
	require.NoError(t, ch.Start(context.Background()))

	require.NoError(t, ch.Close())
	select {
	case err := <-ch.Closed():
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("channel did not close")
	}
}

func TestSignalRHandshakeFrameCarriesMessages(t *testing.T) {
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
		_ = conn.WriteMessage(websocket.TextMessage, []byte("{}\x1e"+
			`{"type":1,"target":"FleetCreated","arguments":[{"id":"f1"}]}`+"\x1e"))
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(server.Close)

	factory := realtime.NewSignalRFactory(server.URL, map[realtime.Topic]string{
		realtime.TopicFleetEvents: "/hub/fleets",
	}, realtime.WithKeepAlive(0))
	ch, err := factory(realtime.TopicFleetEvents, "token-1")
	require.NoError(t, err)

	received := make(chan []json.RawMessage, 1)
	ch.On("FleetCreated", func(args []json.RawMessage) { received <- args })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, ch.Start(ctx))
	defer ch.Close()

	select {
	case args := <-received:
		require.JSONEq(t, `{"id":"f1"}`, string(args[0]))
	case <-ctx.Done():
		t.Fatal("message packed with the handshake was not delivered")
	}
}

func TestSignalRFactoryUnknownTopic(t *testing.T) {
	factory := realtime.NewSignalRFactory("http://localhost", map[realtime.Topic]string{})
	_, err := factory(realtime.TopicFleetEvents, "token-1")
	require.Error(t, err)
}
