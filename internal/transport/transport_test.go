package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"nhooyr.io/websocket"
)

type events struct {
	mu      sync.Mutex
	opens   int
	closes  int
	frames  [][]byte
	closeCh chan struct{}
}

func newEvents() *events {
	return &events{closeCh: make(chan struct{}, 4)}
}

func (e *events) handlers() Handlers {
	return Handlers{
		OnOpen: func() {
			e.mu.Lock()
			e.opens++
			e.mu.Unlock()
		},
		OnMessage: func(data []byte) {
			e.mu.Lock()
			e.frames = append(e.frames, append([]byte(nil), data...))
			e.mu.Unlock()
		},
		OnClose: func(error) {
			e.mu.Lock()
			e.closes++
			e.mu.Unlock()
			select {
			case e.closeCh <- struct{}{}:
			default:
			}
		},
	}
}

func (e *events) counts() (opens, closes, frames int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.opens, e.closes, len(e.frames)
}

func (e *events) lastFrame() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.frames) == 0 {
		return ""
	}
	return string(e.frames[len(e.frames)-1])
}

// echoServer accepts one websocket, pushes greeting, echoes every frame
// back and exits when told to.
func echoServer(t *testing.T, ctx context.Context, quit <-chan struct{}) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			t.Errorf("accept ws: %v", err)
			return
		}
		defer func() { _ = conn.Close(websocket.StatusNormalClosure, "") }()
		if err := conn.Write(ctx, websocket.MessageText, []byte(`{"type":"heartbeat"}`)); err != nil {
			return
		}
		readCh := make(chan []byte, 4)
		go func() {
			for {
				_, data, err := conn.Read(ctx)
				if err != nil {
					close(readCh)
					return
				}
				readCh <- data
			}
		}()
		for {
			select {
			case <-quit:
				return
			case data, ok := <-readCh:
				if !ok {
					return
				}
				if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
					return
				}
			}
		}
	}))
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestDialSendReceiveClose(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	quit := make(chan struct{})
	defer close(quit)
	server := echoServer(t, ctx, quit)
	defer server.Close()

	ev := newEvents()
	sock := New(wsURL(server), nil)
	sock.SetHandlers(ev.handlers())

	if sock.Open() {
		t.Fatalf("socket should not report open before dial")
	}
	if err := sock.Send(ctx, []byte("x")); err == nil {
		t.Fatalf("send before dial should fail")
	}

	if err := sock.Dial(ctx); err != nil {
		t.Fatalf("dial: %v", err)
	}
	if !sock.Open() {
		t.Fatalf("socket should report open after dial")
	}
	opens, _, _ := ev.counts()
	if opens != 1 {
		t.Fatalf("expected 1 open event, got %d", opens)
	}

	// Greeting pushed by the server arrives through OnMessage.
	waitFor(t, "server greeting", func() bool {
		_, _, frames := ev.counts()
		return frames >= 1
	})

	if err := sock.Send(ctx, []byte(`{"type":"pong"}`)); err != nil {
		t.Fatalf("send: %v", err)
	}
	waitFor(t, "echoed frame", func() bool {
		return ev.lastFrame() == `{"type":"pong"}`
	})

	if err := sock.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if sock.Open() {
		t.Fatalf("socket should not report open after close")
	}
	waitFor(t, "close event", func() bool {
		_, closes, _ := ev.counts()
		return closes == 1
	})
	// Closing again is a no-op.
	if err := sock.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}

func TestDialIsNoOpWhenConnected(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	quit := make(chan struct{})
	defer close(quit)
	server := echoServer(t, ctx, quit)
	defer server.Close()

	ev := newEvents()
	sock := New(wsURL(server), nil)
	sock.SetHandlers(ev.handlers())

	if err := sock.Dial(ctx); err != nil {
		t.Fatalf("dial: %v", err)
	}
	if err := sock.Dial(ctx); err != nil {
		t.Fatalf("second dial: %v", err)
	}
	opens, _, _ := ev.counts()
	if opens != 1 {
		t.Fatalf("expected a single open event, got %d", opens)
	}
	_ = sock.Close()
}

func TestServerCloseFiresOnClose(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	quit := make(chan struct{})
	server := echoServer(t, ctx, quit)
	defer server.Close()

	ev := newEvents()
	sock := New(wsURL(server), nil)
	sock.SetHandlers(ev.handlers())

	if err := sock.Dial(ctx); err != nil {
		t.Fatalf("dial: %v", err)
	}
	close(quit)

	select {
	case <-ev.closeCh:
	case <-ctx.Done():
		t.Fatalf("timed out waiting for close event")
	}
	waitFor(t, "socket to report closed", func() bool {
		return !sock.Open()
	})
}

func TestDialFailureReturnsError(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	sock := New("ws://127.0.0.1:1/ws", nil)
	sock.SetHandlers(Handlers{})
	if err := sock.Dial(ctx); err == nil {
		t.Fatalf("expected dial to a dead endpoint to fail")
	}
	if sock.Open() {
		t.Fatalf("failed dial must not leave the socket open")
	}
}
