package dbusmsg

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"net"
	"sync"
	"time"

	"github.com/creachadair/mds/mapset"
	"github.com/creachadair/mds/queue"
	"github.com/danderson/dbusmsg/transport"
	"go.uber.org/zap"
)

// DefaultCallTimeout is how long [Conn.SendWithReply] waits for a
// reply when its context has no deadline.
const DefaultCallTimeout = 25 * time.Second

// SystemBus connects to the system bus.
//
// The bus address is taken from $DBUS_SYSTEM_BUS_ADDRESS if set, and
// is otherwise the well-known system bus socket.
func SystemBus(ctx context.Context) (*Conn, error) {
	path, err := systemBusPath()
	if err != nil {
		return nil, err
	}
	return Dial(ctx, path)
}

// SessionBus connects to the current user's session bus, as
// advertised by $DBUS_SESSION_BUS_ADDRESS.
func SessionBus(ctx context.Context) (*Conn, error) {
	path, err := sessionBusPath()
	if err != nil {
		return nil, err
	}
	return Dial(ctx, path)
}

// Dial connects to the message bus listening on the unix socket at
// path, and registers with the bus.
func Dial(ctx context.Context, path string) (*Conn, error) {
	t, err := transport.DialUnix(ctx, path, Logger())
	if err != nil {
		return nil, err
	}
	ret := NewConn(t)
	if err := ret.Hello(ctx); err != nil {
		ret.Close()
		return nil, fmt.Errorf("getting DBus client ID: %w", err)
	}
	return ret, nil
}

// NewConn returns a connection that exchanges messages over t.
//
// NewConn does not register with a message bus. Connections to a bus
// must call [Conn.Hello] before doing anything else.
func NewConn(t transport.Transport) *Conn {
	ret := &Conn{
		t:        t,
		calls:    map[uint32]*pendingCall{},
		paths:    mapset.New[ObjectPath](),
		inbox:    queue.New[*Message](),
		wake:     make(chan struct{}, 1),
		readDone: make(chan struct{}),
		events:   queue.New[Event](),
	}
	go ret.readLoop()
	return ret
}

// Conn is a DBus connection.
type Conn struct {
	t          transport.Transport
	uniqueName string

	writeMu sync.Mutex

	mu         sync.Mutex
	closed     bool
	calls      map[uint32]*pendingCall
	lastSerial uint32
	filters    []*filter
	paths      mapset.Set[ObjectPath]
	// inbox holds received messages that await dispatch.
	inbox    *queue.Queue[*Message]
	wake     chan struct{}
	readDone chan struct{}

	// dispatchMu serializes dispatching of inbox messages.
	dispatchMu sync.Mutex

	eventsMu sync.Mutex
	events   *queue.Queue[Event]
}

type pendingCall struct {
	notify chan struct{}
	resp   *Message
	err    error
}

// Hello registers the connection with the message bus, and records
// the unique bus name that the bus assigns.
func (c *Conn) Hello(ctx context.Context) error {
	m, err := NewMethodCall(busName, busPath, busInterface, "Hello")
	if err != nil {
		return err
	}
	resp, err := c.SendWithReply(ctx, m)
	if err != nil {
		return err
	}
	items, err := resp.Items()
	if err != nil {
		return err
	}
	if len(items) != 1 || items[0].Tag() != TagString {
		return fmt.Errorf("unexpected Hello response %v", items)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.uniqueName = string(items[0].(Str))
	return nil
}

// UniqueName returns the connection's unique bus name, or "" if the
// connection has not registered with a bus.
func (c *Conn) UniqueName() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.uniqueName
}

// Close closes the DBus connection.
//
// Events already queued remain available from [Conn.Events].
// Received messages that were not yet dispatched are discarded.
func (c *Conn) Close() error {
	err := c.shutdown()
	<-c.readDone

	c.mu.Lock()
	defer c.mu.Unlock()
	for c.inbox.Len() > 0 {
		m, _ := c.inbox.Pop()
		m.Close()
	}
	return err
}

// shutdown marks the connection as closed, fails all pending calls
// and closes the transport.
func (c *Conn) shutdown() error {
	var pend map[uint32]*pendingCall
	{
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return nil
		}
		c.closed = true
		pend, c.calls = c.calls, nil
		c.mu.Unlock()
	}
	for p := range maps.Values(pend) {
		p.err = net.ErrClosed
		close(p.notify)
	}
	return c.t.Close()
}

func (c *Conn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// nextSerial allocates a serial number for an outgoing message. If
// pending is non-nil, it is registered to receive the reply to that
// serial.
func (c *Conn) nextSerial(pending *pendingCall) (uint32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0, net.ErrClosed
	}
	c.lastSerial++
	if c.lastSerial == 0 {
		c.lastSerial++
	}
	if pending != nil {
		c.calls[c.lastSerial] = pending
	}
	return c.lastSerial, nil
}

func (c *Conn) writeMsg(m *Message, serial uint32) error {
	bs, err := m.encode(serial)
	if err != nil {
		return err
	}
	m.hdr.Serial = serial

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if _, err := c.t.Write(bs); err != nil {
		return err
	}
	return nil
}

// Send queues m for delivery and returns the serial number assigned
// to it.
//
// Method calls sent with Send are flagged as not expecting a reply.
// Use [Conn.SendWithReply] to call methods that return values.
func (c *Conn) Send(m *Message) (uint32, error) {
	if m.hdr.Type == MsgMethodCall {
		m.hdr.Flags |= flagNoReplyExpected
	}
	serial, err := c.nextSerial(nil)
	if err != nil {
		return 0, err
	}
	if err := c.writeMsg(m, serial); err != nil {
		return 0, err
	}
	return serial, nil
}

// SendWithReply sends the method call m and waits for the reply.
//
// If the peer replies with an error, SendWithReply returns a
// [CallError] describing it. If no reply arrives before ctx's
// deadline, or within [DefaultCallTimeout] if ctx has no deadline,
// SendWithReply returns a CallError with the name
// org.freedesktop.DBus.Error.NoReply.
func (c *Conn) SendWithReply(ctx context.Context, m *Message) (*Message, error) {
	if m.hdr.Type != MsgMethodCall {
		return nil, fmt.Errorf("cannot wait for reply to %s message", m.hdr.Type)
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultCallTimeout)
		defer cancel()
	}

	pending := &pendingCall{
		notify: make(chan struct{}),
	}
	serial, err := c.nextSerial(pending)
	if err != nil {
		return nil, err
	}
	defer func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.calls[serial] == pending {
			delete(c.calls, serial)
		}
	}()

	m.hdr.Flags &^= flagNoReplyExpected
	if err := c.writeMsg(m, serial); err != nil {
		return nil, err
	}

	select {
	case <-pending.notify:
		if pending.err != nil {
			return nil, pending.err
		}
		return pending.resp.AsResult()
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, CallError{
				Name:   errNameNoReply,
				Detail: fmt.Sprintf("no reply to %s.%s within timeout", m.hdr.Interface, m.hdr.Member),
			}
		}
		return nil, ctx.Err()
	}
}

func (c *Conn) readLoop() {
	defer close(c.readDone)
	defer c.notify()
	for {
		m, err := c.readMsg()
		if err != nil {
			if !c.isClosed() {
				if errors.Is(err, io.EOF) {
					Logger().Info("dbus connection closed by peer")
				} else {
					// Errors that bubble out here represent a failure
					// to conform to the DBus protocol, and are fatal
					// to the Conn.
					Logger().Error("dbus read failed", zap.Error(err))
				}
				c.shutdown()
			}
			return
		}
		if c.deliverReply(m) {
			continue
		}
		c.mu.Lock()
		c.inbox.Add(m)
		c.mu.Unlock()
		c.notify()
	}
}

// notify wakes up a dispatcher waiting for inbox activity.
func (c *Conn) notify() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// readMsg reads one complete DBus message from c.t. Must not be
// called concurrently (Conn.readLoop ensures this).
func (c *Conn) readMsg() (*Message, error) {
	m, err := decodeMessage(c.t)
	if err != nil {
		return nil, err
	}
	m.files, err = c.t.TakeFiles(int(m.hdr.NumFDs))
	if err != nil {
		return nil, err
	}
	if err := m.hdr.Valid(); err != nil {
		m.Close()
		return nil, fmt.Errorf("received invalid header: %w", err)
	}
	return m, nil
}

// deliverReply hands m to the caller waiting for it, if m is a reply
// to a pending call.
func (c *Conn) deliverReply(m *Message) bool {
	if m.hdr.Type != MsgMethodReturn && m.hdr.Type != MsgError {
		return false
	}
	pending := func() *pendingCall {
		c.mu.Lock()
		defer c.mu.Unlock()
		ret := c.calls[m.hdr.ReplySerial]
		delete(c.calls, m.hdr.ReplySerial)
		return ret
	}()
	if pending == nil {
		// Response to a canceled call, or a call made with Send.
		return false
	}
	pending.resp = m
	close(pending.notify)
	return true
}
