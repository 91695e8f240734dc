package dbusmsg

import (
	"errors"
	"io/fs"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// A Filter inspects received messages before the connection's own
// dispatching. It returns true if it handled the message, in which
// case no further processing happens and the filter takes ownership
// of the message.
type Filter func(*Message) bool

type filter struct {
	fn Filter
}

// AddFilter adds fn to the connection's filters. Filters run in the
// order they were added, before signals and method calls are queued
// as events.
//
// The returned function removes the filter.
func (c *Conn) AddFilter(fn Filter) (remove func()) {
	f := &filter{fn}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.filters = append(c.filters, f)
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.filters = slices.DeleteFunc(c.filters, func(o *filter) bool { return o == f })
	}
}

// RegisterObjectPath registers path as an object served by this
// connection. Method calls to registered objects are delivered as
// [EventMethodCall] events. Method calls to other objects are
// answered with an UnknownMethod error.
//
// RegisterObjectPath returns an error if path is already registered.
func (c *Conn) RegisterObjectPath(path ObjectPath) error {
	if err := path.valid(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.paths.Has(path) {
		return errors.New("object path " + string(path) + " is already registered")
	}
	c.paths.Add(path)
	return nil
}

// UnregisterObjectPath removes a registration made by
// RegisterObjectPath.
func (c *Conn) UnregisterObjectPath(path ObjectPath) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.paths, path)
}

// readWriteDispatch dispatches one received message, waiting up to
// timeout for one to arrive. A zero or negative timeout waits
// forever.
//
// readWriteDispatch returns false if the connection is closed and no
// received messages remain.
func (c *Conn) readWriteDispatch(timeout time.Duration) bool {
	c.dispatchMu.Lock()
	defer c.dispatchMu.Unlock()

	var expired <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		expired = t.C
	}

	for {
		m, alive := c.popInbox()
		if m != nil {
			c.dispatch(m)
			return true
		}
		if !alive {
			return false
		}
		select {
		case <-c.wake:
		case <-c.readDone:
		case <-expired:
			return true
		}
	}
}

func (c *Conn) popInbox() (m *Message, alive bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, _ = c.inbox.Pop()
	select {
	case <-c.readDone:
		return m, false
	default:
		return m, true
	}
}

// dispatch routes a received message to its handler.
func (c *Conn) dispatch(m *Message) {
	if c.handlePeer(m) {
		m.Close()
		return
	}

	c.mu.Lock()
	filters := slices.Clone(c.filters)
	c.mu.Unlock()
	for _, f := range filters {
		if f.fn(m) {
			return
		}
	}

	if c.classify(m) {
		return
	}

	if m.hdr.WantReply() {
		c.replyError(m, errNameUnknownMethod, "no such method "+m.hdr.Interface+"."+m.hdr.Member+" on "+string(m.hdr.Path))
	} else {
		Logger().Debug("dropping unhandled message", zap.Stringer("msg", m))
	}
	m.Close()
}

// classify queues signals, and method calls to registered objects,
// as events.
func (c *Conn) classify(m *Message) bool {
	var kind EventKind
	switch m.hdr.Type {
	case MsgSignal:
		kind = EventSignal
	case MsgMethodCall:
		c.mu.Lock()
		registered := c.paths.Has(m.hdr.Path)
		c.mu.Unlock()
		if !registered {
			return false
		}
		kind = EventMethodCall
	default:
		// Replies are correlated to their calls by the read loop. The
		// ones that make it here belong to nobody.
		return false
	}
	c.eventsMu.Lock()
	defer c.eventsMu.Unlock()
	c.events.Add(Event{Kind: kind, Message: m})
	return true
}

func (c *Conn) replyError(call *Message, name, text string) {
	resp, err := NewErrorReply(call, name, text)
	if err != nil {
		Logger().Error("constructing error reply", zap.Stringer("call", call), zap.Error(err))
		return
	}
	if _, err := c.Send(resp); err != nil {
		Logger().Warn("sending error reply", zap.Stringer("call", call), zap.Error(err))
	}
}

const ifacePeer = "org.freedesktop.DBus.Peer"

var machineID = sync.OnceValues(func() (string, error) {
	bs, err := os.ReadFile("/etc/machine-id")
	if errors.Is(err, fs.ErrNotExist) {
		bs, err = os.ReadFile("/var/lib/dbus/machine-id")
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(bs)), nil
})

// handlePeer implements the org.freedesktop.DBus.Peer interface on
// all objects.
func (c *Conn) handlePeer(m *Message) bool {
	if m.hdr.Type != MsgMethodCall || m.hdr.Interface != ifacePeer {
		return false
	}
	var body []Item
	switch m.hdr.Member {
	case "Ping":
	case "GetMachineId":
		id, err := machineID()
		if err != nil {
			c.replyError(m, errNameFailed, err.Error())
			return true
		}
		body = append(body, Str(id))
	default:
		return false
	}
	if !m.hdr.WantReply() {
		return true
	}
	resp, err := NewMethodReturn(m)
	if err == nil {
		err = resp.AppendItems(body...)
	}
	if err == nil {
		_, err = c.Send(resp)
	}
	if err != nil {
		Logger().Warn("answering peer call", zap.Stringer("call", m), zap.Error(err))
	}
	return true
}
