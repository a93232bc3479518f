package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	wshandler "github.com/windfall/shadowing/internal/handler/ws"
	"github.com/windfall/shadowing/internal/player"
	"github.com/windfall/shadowing/internal/session"
	"github.com/windfall/shadowing/internal/view"
)

type wsMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func dialSession(t *testing.T, app *testApp, sessionID string) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(app.router)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?session=" + sessionID
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })

	require.Eventually(t, func() bool { return app.hub.ClientCount() == 1 }, 2*time.Second, 5*time.Millisecond)
	return conn
}

func waitPlayerReady(t *testing.T, app *testApp, sessionID string) {
	t.Helper()
	s, err := app.sessions.Get(sessionID)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		p := s.View().Player()
		return p != nil && p.State() == player.StateReady
	}, 2*time.Second, 5*time.Millisecond)
}

func send(t *testing.T, conn *websocket.Conn, msgType string, payload interface{}) {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(WebSocketMessage{Type: msgType, Payload: raw}))
}

// waitFor reads messages until one of the given type arrives.
func waitFor(t *testing.T, conn *websocket.Conn, msgType string) wsMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		var msg wsMessage
		require.NoError(t, conn.ReadJSON(&msg), "waiting for %s", msgType)
		if msg.Type == msgType {
			return msg
		}
	}
}

func TestWebSocketUnknownSession(t *testing.T) {
	app := newTestApp(t)
	srv := httptest.NewServer(app.router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?session=nope"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestWebSocketPing(t *testing.T) {
	app := newTestApp(t)
	s := createSession(t, app, 1)
	conn := dialSession(t, app, s.SessionID)

	send(t, conn, wshandler.TypePing, nil)
	msg := waitFor(t, conn, wshandler.TypePong)
	assert.Contains(t, string(msg.Payload), "pong")

	send(t, conn, "bogus", nil)
	msg = waitFor(t, conn, wshandler.TypeError)
	assert.Contains(t, string(msg.Payload), "VALIDATION_ERROR")
}

func TestWebSocketPlayerControls(t *testing.T) {
	app := newTestApp(t)
	s := createSession(t, app, 1)
	conn := dialSession(t, app, s.SessionID)
	waitPlayerReady(t, app, s.SessionID)

	send(t, conn, wshandler.TypePlayerSeek, wshandler.SeekPayload{Offset: 2})
	msg := waitFor(t, conn, wshandler.TypePlayerSnapshot)
	assert.Contains(t, string(msg.Payload), `"current_time":2`)

	send(t, conn, wshandler.TypePlayerPlay, nil)
	waitFor(t, conn, session.EventPlayerState)
}

func TestWebSocketRecordingFlow(t *testing.T) {
	app := newTestApp(t)
	s := createSession(t, app, 1)
	conn := dialSession(t, app, s.SessionID)

	send(t, conn, wshandler.TypeRecorderStart, nil)
	waitFor(t, conn, session.EventRecorderState)

	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, []byte("chunk-1|")))
	send(t, conn, wshandler.TypeRecorderChunk, wshandler.ChunkPayload{Data: []byte("chunk-2")})
	send(t, conn, wshandler.TypeRecorderStop, nil)

	msg := waitFor(t, conn, session.EventEvaluation)
	var result view.EvaluationView
	require.NoError(t, json.Unmarshal(msg.Payload, &result))
	assert.Equal(t, int64(501), result.PracticeID)
	assert.Equal(t, view.BucketWarn, result.Bucket)
	assert.Equal(t, []byte("chunk-1|chunk-2"), app.backend.upload(501))
}

func TestWebSocketAnswersWhileEvaluating(t *testing.T) {
	app := newTestApp(t)
	release := app.backend.holdEvaluations(t)
	s := createSession(t, app, 1)
	conn := dialSession(t, app, s.SessionID)

	send(t, conn, wshandler.TypeRecorderStart, nil)
	waitFor(t, conn, session.EventRecorderState)
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, []byte("take")))
	send(t, conn, wshandler.TypeRecorderStop, nil)

	require.Eventually(t, func() bool {
		return app.backend.count("POST /api/practice/501/evaluate") == 1
	}, 2*time.Second, 5*time.Millisecond)

	// The evaluation is still pending; the connection keeps serving.
	send(t, conn, wshandler.TypePing, nil)
	waitFor(t, conn, wshandler.TypePong)

	release()
	msg := waitFor(t, conn, session.EventEvaluation)
	var result view.EvaluationView
	require.NoError(t, json.Unmarshal(msg.Payload, &result))
	assert.Equal(t, int64(501), result.PracticeID)
}

func TestWebSocketStopWithoutRecordingReplies(t *testing.T) {
	app := newTestApp(t)
	s := createSession(t, app, 1)
	conn := dialSession(t, app, s.SessionID)

	send(t, conn, wshandler.TypeRecorderStop, nil)
	msg := waitFor(t, conn, wshandler.TypeError)
	assert.Contains(t, string(msg.Payload), "CONFLICT")
	assert.Equal(t, 0, app.backend.count("POST /api/segments/10/practice"))
}

func TestOriginChecker(t *testing.T) {
	check := originChecker([]string{"https://app.example.com"})

	r := httptest.NewRequest(http.MethodGet, "/ws", nil)
	assert.True(t, check(r))

	r.Header.Set("Origin", "https://app.example.com")
	assert.True(t, check(r))

	r.Header.Set("Origin", "https://evil.example.com")
	assert.False(t, check(r))

	assert.True(t, originChecker([]string{"*"})(r))
}
