package server_test

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"

	"github.com/vigilhq/vigil/pkg/api"
)

type testWebSocketEnv struct {
	Env    *testServerEnv
	Server *httptest.Server
	Conn   *websocket.Conn
}

const wsReadTimeout = 500 * time.Millisecond

func (e *testWebSocketEnv) Cleanup() {
	if e.Conn != nil {
		_ = e.Conn.Close()
	}
	if e.Server != nil {
		e.Server.Close()
	}
}

func testWebSocket(t *testing.T) *testWebSocketEnv {
	env := testServer(nil)
	srv := httptest.NewServer(env.Server.SetupRoutes())

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	assert.NoError(t, err)

	return &testWebSocketEnv{
		Env:    env,
		Server: srv,
		Conn:   conn,
	}
}

func readEvent(t *testing.T, conn *websocket.Conn) *api.Event {
	_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))

	var ev api.Event
	assert.NoError(t, conn.ReadJSON(&ev))
	return &ev
}

func waitForSubscriber(t *testing.T, env *testServerEnv) {
	deadline := time.Now().Add(wsReadTimeout)
	for time.Now().Before(deadline) {
		if env.Hub.SubscriberCount() > 0 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("no hub subscriber registered")
}

func TestSocketIdle(t *testing.T) {
	env := testWebSocket(t)
	defer env.Cleanup()

	_ = env.Conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	_, _, err := env.Conn.ReadMessage()
	assert.Error(t, err)
}

func TestClientReceivesEvent(t *testing.T) {
	env := testWebSocket(t)
	defer env.Cleanup()
	waitForSubscriber(t, env.Env)

	env.Env.Hub.Publish(api.NewEvent(
		api.EventRunStarted, "f-1", &api.RunStartedEvent{
			FlowID:   "f-1",
			FlowName: "checkout",
		},
	))

	ev := readEvent(t, env.Conn)
	assert.Equal(t, api.EventRunStarted, ev.Type)
	assert.Equal(t, api.FlowID("f-1"), ev.FlowID)
}

func TestClientFlowFilter(t *testing.T) {
	env := testWebSocket(t)
	defer env.Cleanup()
	waitForSubscriber(t, env.Env)

	err := env.Conn.WriteJSON(api.SubscribeRequest{
		Type:    "subscribe",
		FlowIDs: []api.FlowID{"f-2"},
	})
	assert.NoError(t, err)

	// the filter applies asynchronously; give the reader a moment
	time.Sleep(50 * time.Millisecond)

	env.Env.Hub.Publish(api.NewEvent(api.EventRunStarted, "f-1", nil))
	env.Env.Hub.Publish(api.NewEvent(api.EventRunStarted, "f-2", nil))

	ev := readEvent(t, env.Conn)
	assert.Equal(t, api.FlowID("f-2"), ev.FlowID)
}

func TestClientReceivesStatsThroughFilter(t *testing.T) {
	env := testWebSocket(t)
	defer env.Cleanup()
	waitForSubscriber(t, env.Env)

	err := env.Conn.WriteJSON(api.SubscribeRequest{
		Type:    "subscribe",
		FlowIDs: []api.FlowID{"f-2"},
	})
	assert.NoError(t, err)
	time.Sleep(50 * time.Millisecond)

	env.Env.Hub.Publish(api.NewEvent(
		api.EventStatsUpdated, "", &api.StatsUpdatedEvent{
			TotalFlows: 3,
		},
	))

	ev := readEvent(t, env.Conn)
	assert.Equal(t, api.EventStatsUpdated, ev.Type)
}

func TestCloseWebSockets(t *testing.T) {
	env := testWebSocket(t)
	defer env.Cleanup()
	waitForSubscriber(t, env.Env)

	env.Env.Server.CloseWebSockets()

	_ = env.Conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	_, _, err := env.Conn.ReadMessage()
	assert.Error(t, err)
}
