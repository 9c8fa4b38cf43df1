package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schsync/internal/fault"
	"schsync/internal/host"
)

type incoming struct {
	Type   string          `json:"type"`
	ID     string          `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

type handlerFunc func(method string, params json.RawMessage) (any, *RemoteError)

var noReply = &RemoteError{Code: "no-reply"}

func startServer(t *testing.T, opts ...Option) (*Server, string) {
	t.Helper()
	base := []Option{WithKeepAlive(0), WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))}
	srv := NewServer(append(base, opts...)...)
	ts := httptest.NewServer(srv)
	t.Cleanup(func() {
		srv.Close()
		ts.Close()
	})
	return srv, "ws" + strings.TrimPrefix(ts.URL, "http")
}

// connectHost dials the bridge as a CAD extension. With a nil handler no
// reader is started and the caller owns the connection's reads.
func connectHost(t *testing.T, srv *Server, url, app string, handle handlerFunc) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "hello", "app": map[string]string{"name": app}}))
	require.Eventually(t, func() bool {
		st := srv.Status()
		return st.Connected && st.Client.App.Name == app
	}, 2*time.Second, 10*time.Millisecond)

	if handle == nil {
		return conn
	}
	go func() {
		for {
			var req incoming
			if err := conn.ReadJSON(&req); err != nil {
				return
			}
			result, rerr := handle(req.Method, req.Params)
			if rerr == noReply {
				continue
			}
			resp := map[string]any{"type": "response", "id": req.ID}
			if rerr != nil {
				resp["error"] = rerr
			} else {
				resp["result"] = result
			}
			if err := conn.WriteJSON(resp); err != nil {
				return
			}
		}
	}()
	return conn
}

func TestCallWithoutHost(t *testing.T) {
	srv, _ := startServer(t)
	err := srv.Call(context.Background(), "ping", nil, nil)
	assert.Equal(t, fault.BridgeDisconnected, fault.CodeOf(err))
	assert.False(t, srv.Connected())
}

func TestCallRoundTrip(t *testing.T) {
	srv, url := startServer(t)
	connectHost(t, srv, url, "pro", func(method string, params json.RawMessage) (any, *RemoteError) {
		if method != "echo" {
			return nil, &RemoteError{Code: "METHOD_NOT_FOUND", Message: "Unknown method: " + method}
		}
		return json.RawMessage(params), nil
	})

	var out struct {
		Value int `json:"value"`
	}
	require.NoError(t, srv.Call(context.Background(), "echo", map[string]int{"value": 7}, &out))
	assert.Equal(t, 7, out.Value)

	st := srv.Status()
	require.NotNil(t, st.Client)
	assert.Equal(t, "pro", st.Client.App.Name)
	assert.False(t, st.Client.ConnectedAt.IsZero())
}

func TestRemoteErrorBecomesFault(t *testing.T) {
	srv, url := startServer(t)
	connectHost(t, srv, url, "pro", func(string, json.RawMessage) (any, *RemoteError) {
		return nil, &RemoteError{Code: fault.PinNotFound, Message: "no pin 9", Data: json.RawMessage(`{"pin":"9"}`)}
	})

	err := srv.Call(context.Background(), "schematic.getComponentPins", nil, nil)
	var f *fault.Fault
	require.ErrorAs(t, err, &f)
	assert.Equal(t, fault.PinNotFound, f.Code)
	assert.Equal(t, "no pin 9", f.Message)
	assert.JSONEq(t, `{"pin":"9"}`, string(f.Details.(json.RawMessage)))
}

func TestCallTimeout(t *testing.T) {
	srv, url := startServer(t, WithTimeout(50*time.Millisecond))
	connectHost(t, srv, url, "pro", func(string, json.RawMessage) (any, *RemoteError) {
		return nil, noReply
	})

	err := srv.Call(context.Background(), "schematic.getNetlist", nil, nil)
	assert.Equal(t, fault.Timeout, fault.CodeOf(err))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDisconnectFailsPendingCall(t *testing.T) {
	srv, url := startServer(t)
	received := make(chan struct{})
	conn := connectHost(t, srv, url, "pro", func(string, json.RawMessage) (any, *RemoteError) {
		close(received)
		return nil, noReply
	})

	errs := make(chan error, 1)
	go func() { errs <- srv.Call(context.Background(), "schematic.save", nil, nil) }()
	<-received
	require.NoError(t, conn.Close())

	select {
	case err := <-errs:
		assert.Equal(t, fault.BridgeDisconnected, fault.CodeOf(err))
	case <-time.After(2 * time.Second):
		t.Fatal("pending call was not released on disconnect")
	}
	require.Eventually(t, func() bool { return !srv.Connected() }, 2*time.Second, 10*time.Millisecond)
}

func TestNewerHostReplacesOlder(t *testing.T) {
	srv, url := startServer(t)
	old := connectHost(t, srv, url, "old", nil)
	connectHost(t, srv, url, "new", func(string, json.RawMessage) (any, *RemoteError) {
		return map[string]string{"from": "new"}, nil
	})

	_, _, err := old.ReadMessage()
	var ce *websocket.CloseError
	require.True(t, errors.As(err, &ce), "err = %v", err)
	assert.Equal(t, closeReplaced, ce.Code)

	var out map[string]string
	require.NoError(t, srv.Call(context.Background(), "ping", nil, &out))
	assert.Equal(t, "new", out["from"])
}

func TestInvalidHelloIsRejected(t *testing.T) {
	srv, url := startServer(t)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "request"}))
	_, _, err = conn.ReadMessage()
	var ce *websocket.CloseError
	require.True(t, errors.As(err, &ce), "err = %v", err)
	assert.Equal(t, closeInvalidHello, ce.Code)
	assert.False(t, srv.Connected())
}

func TestKeepAlivePingsHost(t *testing.T) {
	srv, url := startServer(t, WithKeepAlive(20*time.Millisecond))
	pings := make(chan struct{}, 8)
	connectHost(t, srv, url, "pro", func(method string, _ json.RawMessage) (any, *RemoteError) {
		if method == "ping" {
			select {
			case pings <- struct{}{}:
			default:
			}
		}
		return map[string]bool{"pong": true}, nil
	})

	for i := 0; i < 2; i++ {
		select {
		case <-pings:
		case <-time.After(2 * time.Second):
			t.Fatalf("ping %d not received", i+1)
		}
	}
}

func TestHostOverServer(t *testing.T) {
	srv, url := startServer(t)
	connectHost(t, srv, url, "pro", func(method string, params json.RawMessage) (any, *RemoteError) {
		switch method {
		case "getCurrentDocumentInfo":
			return map[string]any{"documentType": 1, "uuid": "page-1", "tabId": "tab-1"}, nil
		case "getDocumentSource":
			var p struct {
				DocumentID string `json:"documentId"`
				MaxChars   int    `json:"maxChars"`
			}
			_ = json.Unmarshal(params, &p)
			return map[string]any{"source": p.DocumentID, "truncated": false, "totalChars": p.MaxChars}, nil
		}
		return nil, &RemoteError{Code: "METHOD_NOT_FOUND", Message: method}
	})

	h := NewHost(srv)
	page, err := h.CurrentPage(context.Background())
	require.NoError(t, err)
	assert.Equal(t, host.Page{DocumentID: "page-1", TabID: "tab-1"}, page)

	src, err := h.DocumentSource(context.Background(), page, 1234)
	require.NoError(t, err)
	assert.Equal(t, "page-1", src.Text)
	assert.Equal(t, 1234, src.TotalChars)
}
