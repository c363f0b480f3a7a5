// Package wstest provides test doubles for the notification stream: an
// in-memory dialer whose connections are driven by the test, a real
// WebSocket server that speaks the stream protocol, and a generator of
// plausible task events.
package wstest

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/large-farva/task-tracker/internal/protocol"
	"github.com/large-farva/task-tracker/internal/wsclient"
)

// ErrDialRefused is the default error returned by a failing FakeDialer.
var ErrDialRefused = errors.New("connection refused")

// FakeDialer hands out FakeConns. Every Dial is recorded.
type FakeDialer struct {
	mu       sync.Mutex
	fail     error
	failNext int
	autoAuth bool
	hang     bool
	urls     []string
	conns    []*FakeConn
}

// NewFakeDialer returns a dialer whose dials succeed.
func NewFakeDialer() *FakeDialer {
	return &FakeDialer{}
}

// FailWith makes later dials fail with err. A nil err restores success.
func (d *FakeDialer) FailWith(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fail = err
}

// FailNext makes the next n dials fail with ErrDialRefused, then
// restores the previous behaviour.
func (d *FakeDialer) FailNext(n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failNext = n
}

// AutoAuth makes every later connection start with an authenticated
// connection message queued.
func (d *FakeDialer) AutoAuth(on bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.autoAuth = on
}

// Hang makes later dials block until their context is cancelled.
func (d *FakeDialer) Hang(on bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.hang = on
}

func (d *FakeDialer) Dial(ctx context.Context, url string) (wsclient.Conn, error) {
	d.mu.Lock()
	d.urls = append(d.urls, url)
	fail, hang, auto := d.fail, d.hang, d.autoAuth
	if d.failNext > 0 {
		d.failNext--
		fail = ErrDialRefused
	}
	d.mu.Unlock()

	if hang {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if fail != nil {
		return nil, fail
	}

	c := NewFakeConn()
	if auto {
		c.Authenticate()
	}
	d.mu.Lock()
	d.conns = append(d.conns, c)
	d.mu.Unlock()
	return c, nil
}

// Dials returns how many times Dial has been called.
func (d *FakeDialer) Dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.urls)
}

// URLs returns every dialed URL in order.
func (d *FakeDialer) URLs() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.urls...)
}

// Conns returns the connections handed out so far.
func (d *FakeDialer) Conns() []*FakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*FakeConn(nil), d.conns...)
}

// Last returns the most recent connection, or nil.
func (d *FakeDialer) Last() *FakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.conns) == 0 {
		return nil
	}
	return d.conns[len(d.conns)-1]
}

// FakeConn is an in-memory connection. The test plays the server side with
// Emit, Drop and Fail.
type FakeConn struct {
	in     chan []byte
	closed chan struct{}
	once   sync.Once

	mu          sync.Mutex
	readErr     error
	written     [][]byte
	closeCode   int
	closeReason string
	localClose  bool
}

func NewFakeConn() *FakeConn {
	return &FakeConn{
		in:     make(chan []byte, 128),
		closed: make(chan struct{}),
	}
}

func (c *FakeConn) ReadMessage() ([]byte, error) {
	// Queued frames are delivered before the close.
	select {
	case b := <-c.in:
		return b, nil
	default:
	}
	select {
	case b := <-c.in:
		return b, nil
	case <-c.closed:
		c.mu.Lock()
		defer c.mu.Unlock()
		return nil, c.readErr
	}
}

func (c *FakeConn) WriteMessage(data []byte) error {
	select {
	case <-c.closed:
		return errors.New("write on closed connection")
	default:
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.written = append(c.written, append([]byte(nil), data...))
	return nil
}

func (c *FakeConn) Close(code int, reason string) error {
	c.mu.Lock()
	if !c.isClosed() {
		c.localClose = true
		c.closeCode = code
		c.closeReason = reason
	}
	c.mu.Unlock()
	c.shut(&wsclient.CloseError{Code: code, Reason: reason})
	return nil
}

// EmitRaw queues one frame for the client to read.
func (c *FakeConn) EmitRaw(frame []byte) {
	c.in <- frame
}

// Emit queues a message envelope with the given type and data.
func (c *FakeConn) Emit(typ protocol.Type, data any) {
	b, err := json.Marshal(map[string]any{
		"type":      typ,
		"timestamp": protocol.NowTS(),
		"data":      data,
	})
	if err != nil {
		panic(err)
	}
	c.EmitRaw(b)
}

// Authenticate queues an authenticated connection message.
func (c *FakeConn) Authenticate() {
	c.Emit(protocol.TypeConnection, protocol.Connection{
		Status:  protocol.ConnectionAuthenticated,
		Message: "Authenticated",
		UserID:  "user-1",
	})
}

// RejectAuth queues a connection message with status error.
func (c *FakeConn) RejectAuth(message string) {
	c.Emit(protocol.TypeConnection, protocol.Connection{
		Status:  protocol.ConnectionError,
		Message: message,
	})
}

// Drop simulates the server closing with code.
func (c *FakeConn) Drop(code int) {
	c.shut(&wsclient.CloseError{Code: code})
}

// Fail simulates a transport failure with err.
func (c *FakeConn) Fail(err error) {
	c.shut(err)
}

// Written returns every frame the client sent.
func (c *FakeConn) Written() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.written))
	copy(out, c.written)
	return out
}

// ClosedByClient reports whether the client closed the connection, and
// with which code and reason.
func (c *FakeConn) ClosedByClient() (bool, int, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.localClose, c.closeCode, c.closeReason
}

// Closed reports whether either side has closed the connection.
func (c *FakeConn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.isClosed()
}

func (c *FakeConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

func (c *FakeConn) shut(err error) {
	c.once.Do(func() {
		c.mu.Lock()
		c.readErr = err
		c.mu.Unlock()
		close(c.closed)
	})
}
