// Package transport is a thin wrapper over a websocket connection. It
// dials, sends, closes and forwards events; reconnect policy lives in
// the session that drives it.
package transport

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

// Handlers are the event callbacks one consumer registers before
// dialing. OnMessage and OnClose fire from the read loop goroutine.
type Handlers struct {
	OnOpen    func()
	OnMessage func(data []byte)
	OnClose   func(err error)
}

type Socket struct {
	url string
	log *zap.Logger

	mu sync.Mutex
	h  Handlers

	conn     *websocket.Conn
	readStop context.CancelFunc
}

func New(url string, log *zap.Logger) *Socket {
	if log == nil {
		log = zap.NewNop()
	}
	return &Socket{url: url, log: log}
}

// SetHandlers registers the event callbacks. Must be called before
// Dial.
func (s *Socket) SetHandlers(h Handlers) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.h = h
}

// Dial opens the connection and starts the read loop. It is a no-op
// when already connected.
func (s *Socket) Dial(ctx context.Context) error {
	s.mu.Lock()
	if s.conn != nil {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	conn, _, err := websocket.Dial(ctx, s.url, nil)
	if err != nil {
		return err
	}

	readCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.mu.Lock()
	if s.conn != nil {
		s.mu.Unlock()
		cancel()
		_ = conn.Close(websocket.StatusNormalClosure, "duplicate dial")
		return nil
	}
	s.conn = conn
	s.readStop = cancel
	onOpen := s.h.OnOpen
	s.mu.Unlock()

	if onOpen != nil {
		onOpen()
	}
	go s.readLoop(readCtx, conn)
	return nil
}

// Open reports whether a connection is currently established.
func (s *Socket) Open() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn != nil
}

// Send writes one text frame.
func (s *Socket) Send(ctx context.Context, data []byte) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return errors.New("transport not connected")
	}
	return conn.Write(ctx, websocket.MessageText, data)
}

// Close tears the connection down. The read loop exits and fires
// OnClose. Safe to call when already closed.
func (s *Socket) Close() error {
	s.mu.Lock()
	conn := s.conn
	stop := s.readStop
	s.conn = nil
	s.readStop = nil
	s.mu.Unlock()
	if conn == nil {
		return nil
	}
	if stop != nil {
		stop()
	}
	return conn.Close(websocket.StatusNormalClosure, "client closing")
}

func (s *Socket) readLoop(ctx context.Context, conn *websocket.Conn) {
	var readErr error
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			readErr = err
			break
		}
		s.mu.Lock()
		onMessage := s.h.OnMessage
		s.mu.Unlock()
		if onMessage != nil {
			onMessage(data)
		}
	}

	s.mu.Lock()
	stillCurrent := s.conn == conn
	if stillCurrent {
		s.conn = nil
		s.readStop = nil
	}
	onClose := s.h.OnClose
	s.mu.Unlock()

	if status := websocket.CloseStatus(readErr); status == websocket.StatusNormalClosure {
		s.log.Info("read loop ended", zap.Error(readErr))
	} else {
		s.log.Warn("read loop ended", zap.Error(readErr))
	}
	_ = conn.Close(websocket.StatusNormalClosure, "read loop done")
	if onClose != nil {
		onClose(readErr)
	}
}
