package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
)

func TestReaderStopsWhenEventLoopGone(t *testing.T) {
	serverConns := make(chan *websocket.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			conn, err := upgrader.Upgrade(w, r, nil)
			assert.NoError(t, err)
			serverConns <- conn
		}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	dial, _, err := websocket.DefaultDialer.Dial(url, nil)
	assert.NoError(t, err)
	defer func() { _ = dial.Close() }()

	client := &Client{
		conn: <-serverConns,
		done: make(chan struct{}),
	}
	defer client.Close()

	// Nobody drains this buffer, standing in for an event loop that
	// already returned
	incoming := make(chan []byte, 1)
	finished := make(chan struct{})
	go func() {
		client.readMessages(incoming)
		close(finished)
	}()

	for i := 0; i < 4; i++ {
		err := dial.WriteMessage(websocket.TextMessage, []byte("{}"))
		assert.NoError(t, err)
	}

	close(client.done)
	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("reader still blocked after the event loop quit")
	}
}
