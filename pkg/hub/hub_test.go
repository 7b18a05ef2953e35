package hub

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-ecotrack/internal/log"
)

// fakeConn is an in-memory Conn. Reads block until Close.
type fakeConn struct {
	writes chan fakeWrite
	closed chan struct{}
	once   sync.Once
}

type fakeWrite struct {
	kind int
	data []byte
}

func newFakeConn() *fakeConn {
	return &fakeConn{writes: make(chan fakeWrite, 16), closed: make(chan struct{})}
}

func (f *fakeConn) SetReadLimit(int64) {}
func (f *fakeConn) SetReadDeadline(time.Time) error { return nil }
func (f *fakeConn) SetWriteDeadline(time.Time) error { return nil }
func (f *fakeConn) SetPongHandler(func(string) error) {}

func (f *fakeConn) Close() error {
	f.once.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeConn) ReadMessage() (int, []byte, error) {
	<-f.closed
	return 0, nil, errors.New("closed")
}

func (f *fakeConn) WriteMessage(kind int, data []byte) error {
	select {
	case <-f.closed:
		return errors.New("closed")
	case f.writes <- fakeWrite{kind, data}:
		return nil
	}
}

func (f *fakeConn) next(t *testing.T) fakeWrite {
	t.Helper()
	select {
	case w := <-f.writes:
		return w
	case <-time.After(time.Second):
		t.Fatal("no message written")
		return fakeWrite{}
	}
}

func startHub(t *testing.T, opts ...Option) *Hub {
	t.Helper()
	h := New("test", append([]Option{WithLogger(log.Discard())}, opts...)...)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go h.Run(ctx)
	return h
}

func connect(t *testing.T, h *Hub) (*Client, *fakeConn) {
	t.Helper()
	conn := newFakeConn()
	c := NewClient(h, conn)
	go c.Run()
	t.Cleanup(func() { conn.Close() })
	return c, conn
}

func waitClients(t *testing.T, h *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for h.ClientCount() != n {
		if time.Now().After(deadline) {
			t.Fatalf("ClientCount = %d, want %d", h.ClientCount(), n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHub_BroadcastJSON(t *testing.T) {
	h := startHub(t)
	_, a := connect(t, h)
	_, b := connect(t, h)
	waitClients(t, h, 2)

	if err := h.BroadcastJSON(map[string]bool{"listening": true}); err != nil {
		t.Fatal(err)
	}
	for _, conn := range []*fakeConn{a, b} {
		w := conn.next(t)
		if w.kind != websocket.TextMessage {
			t.Errorf("kind = %d, want text", w.kind)
		}
		if string(w.data) != `{"listening":true}` {
			t.Errorf("data = %s", w.data)
		}
	}
}

func TestHub_BroadcastBinary(t *testing.T) {
	h := startHub(t)
	_, conn := connect(t, h)
	waitClients(t, h, 1)

	h.BroadcastBinary([]byte{0x89, 'P', 'N', 'G'})
	if w := conn.next(t); w.kind != websocket.BinaryMessage || len(w.data) != 4 {
		t.Errorf("got kind %d len %d", w.kind, len(w.data))
	}
}

func TestHub_KeepLast(t *testing.T) {
	h := startHub(t, KeepLast())
	_, first := connect(t, h)
	waitClients(t, h, 1)
	h.BroadcastJSON("one")
	first.next(t)

	_, late := connect(t, h)
	if w := late.next(t); string(w.data) != `"one"` {
		t.Errorf("late client got %s, want the last message", w.data)
	}
}

func TestHub_Disconnect(t *testing.T) {
	h := startHub(t)
	_, conn := connect(t, h)
	waitClients(t, h, 1)

	conn.Close()
	waitClients(t, h, 0)
}

func TestHub_RunStops(t *testing.T) {
	h := New("stop", WithLogger(log.Discard()))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(done)
	}()
	_, conn := connect(t, h)
	waitClients(t, h, 1)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return")
	}
	if h.IsRunning() || h.ClientCount() != 0 {
		t.Error("hub still running with clients")
	}
	if w := conn.next(t); w.kind != websocket.CloseMessage {
		t.Errorf("kind = %d, want close frame", w.kind)
	}
}

func TestHub_ConnectAfterStop(t *testing.T) {
	h := New("late", WithLogger(log.Discard()))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	h.Run(ctx)

	conn := newFakeConn()
	done := make(chan struct{})
	go func() {
		NewClient(h, conn).Run()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("client blocked on a stopped hub")
	}
	if w := conn.next(t); w.kind != websocket.CloseMessage {
		t.Errorf("kind = %d, want close frame", w.kind)
	}
	if h.ClientCount() != 0 {
		t.Errorf("ClientCount = %d, want 0", h.ClientCount())
	}
}
