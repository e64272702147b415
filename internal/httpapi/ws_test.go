package httpapi

import (
	"encoding/json"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type wsEvent struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func dialWS(t *testing.T, f *fixture) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) wsEvent {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	var evt wsEvent
	require.NoError(t, json.Unmarshal(msg, &evt))
	return evt
}

func readUntil(t *testing.T, conn *websocket.Conn, name string) wsEvent {
	t.Helper()
	for i := 0; i < 16; i++ {
		evt := readEvent(t, conn)
		if evt.Event == name {
			return evt
		}
	}
	t.Fatalf("event %q never arrived", name)
	return wsEvent{}
}

func sendEvent(t *testing.T, conn *websocket.Conn, name string, payload any) {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(wsEvent{Event: name, Data: data}))
}

// The concrete end-to-end flow over real websockets: B sees A's update, A
// never hears its own echo.
func TestWebsocketUpdateFlow(t *testing.T) {
	f := newFixture(t)

	b := dialWS(t, f)
	readUntil(t, b, "snapshots:init")

	a := dialWS(t, f)
	init := readEvent(t, a)
	require.Equal(t, "init", init.Event)
	var initData struct {
		Code string `json:"code"`
	}
	require.NoError(t, json.Unmarshal(init.Data, &initData))
	assert.Equal(t, "", initData.Code)
	readUntil(t, a, "user:connected")

	sendEvent(t, a, "code:update", map[string]string{"code": "hello"})

	evt := readUntil(t, b, "code:broadcast")
	var got struct {
		Code string `json:"code"`
	}
	require.NoError(t, json.Unmarshal(evt.Data, &got))
	assert.Equal(t, "hello", got.Code)

	// The sender gets no echo of its own update.
	require.NoError(t, a.SetReadDeadline(time.Now().Add(300*time.Millisecond)))
	_, _, err := a.ReadMessage()
	var nerr net.Error
	require.ErrorAs(t, err, &nerr)
	assert.True(t, nerr.Timeout())
}

func TestWebsocketInitCarriesCurrentDocument(t *testing.T) {
	f := newFixture(t)

	a := dialWS(t, f)
	readUntil(t, a, "snapshots:init")
	sendEvent(t, a, "code:update", map[string]string{"code": "state before join"})
	require.Eventually(t, func() bool {
		return f.doc.Document() == "state before join"
	}, time.Second, 10*time.Millisecond)

	// A later joiner receives the latest accepted update in full.
	b := dialWS(t, f)
	init := readEvent(t, b)
	require.Equal(t, "init", init.Event)
	var initData struct {
		Code string `json:"code"`
	}
	require.NoError(t, json.Unmarshal(init.Data, &initData))
	assert.Equal(t, "state before join", initData.Code)
}
