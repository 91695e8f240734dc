package dbusmsg

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/danderson/dbusmsg/transport"
	"github.com/google/go-cmp/cmp"
)

// fakePeer is the remote end of a Conn, speaking raw messages.
type fakePeer struct {
	t      *testing.T
	conn   net.Conn
	recv   chan *Message
	serial uint32
}

func newTestConn(t *testing.T) (*Conn, *fakePeer) {
	t.Helper()
	a, b := net.Pipe()
	c := NewConn(transport.NewStream(a))
	p := &fakePeer{
		t:    t,
		conn: b,
		recv: make(chan *Message, 16),
	}
	go p.readLoop()
	t.Cleanup(func() {
		c.Close()
		b.Close()
	})
	return c, p
}

func (p *fakePeer) readLoop() {
	defer close(p.recv)
	for {
		m, err := decodeMessage(p.conn)
		if err != nil {
			return
		}
		p.recv <- m
	}
}

// send writes m to the Conn and returns its serial.
func (p *fakePeer) send(m *Message) uint32 {
	p.t.Helper()
	p.serial++
	bs, err := m.encode(p.serial)
	if err != nil {
		p.t.Fatalf("encoding %s: %v", m, err)
	}
	if _, err := p.conn.Write(bs); err != nil {
		p.t.Fatalf("writing %s: %v", m, err)
	}
	m.hdr.Serial = p.serial
	return p.serial
}

func (p *fakePeer) next() *Message {
	p.t.Helper()
	select {
	case m, ok := <-p.recv:
		if !ok {
			p.t.Fatal("connection closed while waiting for message")
		}
		return m
	case <-time.After(5 * time.Second):
		p.t.Fatal("timed out waiting for message")
	}
	return nil
}

func (p *fakePeer) signal(member string, items ...Item) uint32 {
	p.t.Helper()
	m, err := NewSignal("/test", "org.test.Iface", member)
	if err != nil {
		p.t.Fatal(err)
	}
	if err := m.AppendItems(items...); err != nil {
		p.t.Fatal(err)
	}
	return p.send(m)
}

func (p *fakePeer) call(path ObjectPath, iface, member string, items ...Item) uint32 {
	p.t.Helper()
	m, err := NewMethodCall("", path, iface, member)
	if err != nil {
		p.t.Fatal(err)
	}
	if err := m.AppendItems(items...); err != nil {
		p.t.Fatal(err)
	}
	return p.send(m)
}

// nextEvent returns the next event that isn't EventNothing.
func nextEvent(t *testing.T, it *EventIter) Event {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		ev, ok := it.Next()
		if !ok {
			t.Fatal("event iterator exhausted")
		}
		if ev.Kind != EventNothing {
			return ev
		}
	}
	t.Fatal("timed out waiting for event")
	return Event{}
}

// pump runs the event loop until fn returns true.
func pump(t *testing.T, c *Conn, fn func() bool) {
	t.Helper()
	it := c.Events(10 * time.Millisecond)
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		if _, ok := it.Next(); !ok {
			t.Fatal("event iterator exhausted")
		}
	}
	t.Fatal("timed out pumping events")
}

type eventSummary struct {
	Kind   EventKind
	Member string
	Items  []Item
}

func summarize(t *testing.T, ev Event) eventSummary {
	t.Helper()
	items, err := ev.Message.Items()
	if err != nil {
		t.Fatalf("decoding event body: %v", err)
	}
	return eventSummary{ev.Kind, ev.Message.Member().Get(), items}
}

func TestEventOrder(t *testing.T) {
	c, p := newTestConn(t)
	if err := c.RegisterObjectPath("/obj"); err != nil {
		t.Fatal(err)
	}

	p.signal("First", Uint32(1))
	p.call("/obj", "org.test.Iface", "Do", Str("x"))
	orphan, err := NewMethodReturn(&Message{hdr: header{Serial: 999}})
	if err != nil {
		t.Fatal(err)
	}
	p.send(orphan)
	p.signal("Second")
	orphanErr, err := NewErrorReply(&Message{hdr: header{Serial: 998}}, "org.test.Error.Failed", "nobody asked")
	if err != nil {
		t.Fatal(err)
	}
	p.send(orphanErr)
	p.call("/obj", "org.test.Iface", "Again")

	it := c.Events(time.Second)
	var got []eventSummary
	for range 4 {
		got = append(got, summarize(t, nextEvent(t, it)))
	}
	want := []eventSummary{
		{EventSignal, "First", []Item{Uint32(1)}},
		{EventMethodCall, "Do", []Item{Str("x")}},
		{EventSignal, "Second", nil},
		{EventMethodCall, "Again", nil},
	}
	if diff := cmp.Diff(got, want); diff != "" {
		t.Errorf("wrong events (-got+want):\n%s", diff)
	}
}

func TestEventsNothing(t *testing.T) {
	c, _ := newTestConn(t)

	start := time.Now()
	ev, ok := c.Events(50 * time.Millisecond).Next()
	if !ok {
		t.Fatal("Next() reported exhaustion on open connection")
	}
	if ev.Kind != EventNothing {
		t.Errorf("got %s event, want nothing", ev.Kind)
	}
	if d := time.Since(start); d < 40*time.Millisecond {
		t.Errorf("Next() returned after %v, want at least the timeout", d)
	}

	ev, ok = c.Events(time.Millisecond).Next()
	if !ok || ev.Kind != EventNothing {
		t.Errorf("second Next() = %v, %v, want nothing event", ev.Kind, ok)
	}
}

func TestEventsExhausted(t *testing.T) {
	c, p := newTestConn(t)
	p.signal("Last")
	p.conn.Close()

	it := c.Events(0)
	var kinds []EventKind
	for ev := range it.All() {
		kinds = append(kinds, ev.Kind)
	}
	if diff := cmp.Diff(kinds, []EventKind{EventSignal}); diff != "" {
		t.Errorf("wrong events before exhaustion (-got+want):\n%s", diff)
	}
	if _, ok := it.Next(); ok {
		t.Error("Next() succeeded after exhaustion")
	}
	if _, ok := c.Events(0).Next(); ok {
		t.Error("new iterator on dead connection is not exhausted")
	}
}

func TestEventsAfterClose(t *testing.T) {
	c, p := newTestConn(t)
	p.signal("Queued")
	ev := nextEvent(t, c.Events(time.Second))
	if ev.Kind != EventSignal {
		t.Fatalf("got %s event, want signal", ev.Kind)
	}

	if err := c.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if _, ok := c.Events(time.Second).Next(); ok {
		t.Error("Next() on closed connection succeeded")
	}
	if _, err := c.Send(orDie(t)(NewSignal("/x", "org.test.Iface", "S"))); !errors.Is(err, net.ErrClosed) {
		t.Errorf("Send on closed connection returned %v, want net.ErrClosed", err)
	}
}

func orDie(t *testing.T) func(*Message, error) *Message {
	return func(m *Message, err error) *Message {
		t.Helper()
		if err != nil {
			t.Fatal(err)
		}
		return m
	}
}

func TestUnknownMethod(t *testing.T) {
	c, p := newTestConn(t)
	serial := p.call("/nothing/here", "org.test.Iface", "Do")

	var resp *Message
	pump(t, c, func() bool {
		select {
		case resp = <-p.recv:
			return true
		default:
			return false
		}
	})
	if resp.Type() != MsgError {
		t.Fatalf("got %s reply, want error", resp.Type())
	}
	if got := resp.ErrorName().Get(); got != errNameUnknownMethod {
		t.Errorf("error name %q, want %q", got, errNameUnknownMethod)
	}
	if got := resp.ReplySerial().Get(); got != serial {
		t.Errorf("reply serial %d, want %d", got, serial)
	}
}

func TestPeerInterface(t *testing.T) {
	c, p := newTestConn(t)
	serial := p.call("/any/path", ifacePeer, "Ping")

	var resp *Message
	pump(t, c, func() bool {
		select {
		case resp = <-p.recv:
			return true
		default:
			return false
		}
	})
	if resp.Type() != MsgMethodReturn {
		t.Fatalf("got %s reply to Ping, want method return", resp.Type())
	}
	if got := resp.ReplySerial().Get(); got != serial {
		t.Errorf("reply serial %d, want %d", got, serial)
	}
	if c.hasEvents() {
		t.Error("Ping was queued as an event")
	}
}

func TestServeMethodCall(t *testing.T) {
	c, p := newTestConn(t)
	if err := c.RegisterObjectPath("/obj"); err != nil {
		t.Fatal(err)
	}
	if err := c.RegisterObjectPath("/obj"); err == nil {
		t.Error("registering the same path twice succeeded")
	}
	serial := p.call("/obj", "org.test.Iface", "Add", Uint32(2), Uint32(3))

	ev := nextEvent(t, c.Events(time.Second))
	if ev.Kind != EventMethodCall {
		t.Fatalf("got %s event, want method call", ev.Kind)
	}
	args, err := ev.Message.Items()
	if err != nil {
		t.Fatal(err)
	}
	sum := args[0].(Uint32) + args[1].(Uint32)
	resp, err := NewMethodReturn(ev.Message)
	if err != nil {
		t.Fatal(err)
	}
	if err := resp.AppendItems(sum); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Send(resp); err != nil {
		t.Fatal(err)
	}

	got := p.next()
	if got.ReplySerial().Get() != serial {
		t.Errorf("reply serial %d, want %d", got.ReplySerial().Get(), serial)
	}
	items, err := got.Items()
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(items, []Item{Uint32(5)}); diff != "" {
		t.Errorf("wrong reply (-got+want):\n%s", diff)
	}

	c.UnregisterObjectPath("/obj")
	p.call("/obj", "org.test.Iface", "Add", Uint32(2), Uint32(3))
	var errResp *Message
	pump(t, c, func() bool {
		select {
		case errResp = <-p.recv:
			return true
		default:
			return false
		}
	})
	if errResp.Type() != MsgError {
		t.Errorf("call to unregistered path got %s, want error", errResp.Type())
	}
}

func TestFilters(t *testing.T) {
	c, p := newTestConn(t)
	var eaten []string
	remove := c.AddFilter(func(m *Message) bool {
		if m.Member().Get() == "Eaten" {
			eaten = append(eaten, m.Member().Get())
			return true
		}
		return false
	})

	p.signal("Eaten")
	p.signal("Kept")
	it := c.Events(time.Second)
	if ev := nextEvent(t, it); ev.Message.Member().Get() != "Kept" {
		t.Errorf("got event for %s, want Kept", ev.Message.Member().Get())
	}
	if diff := cmp.Diff(eaten, []string{"Eaten"}); diff != "" {
		t.Errorf("filter saw wrong messages (-got+want):\n%s", diff)
	}

	remove()
	p.signal("Eaten")
	if ev := nextEvent(t, it); ev.Message.Member().Get() != "Eaten" {
		t.Errorf("got event for %s after removing filter, want Eaten", ev.Message.Member().Get())
	}
}

func TestCall(t *testing.T) {
	c, p := newTestConn(t)
	go func() {
		m, ok := <-p.recv
		if !ok {
			return
		}
		resp, err := NewMethodReturn(m)
		if err != nil {
			return
		}
		items, _ := m.Items()
		resp.AppendItems(items...)
		resp.AppendItems(Str(m.Member().Get()))
		p.send(resp)
	}()

	ctx := context.Background()
	got, err := c.Peer("org.test.Echo").Object("/echo").Interface("org.test.Echo").Call(ctx, "Echo", Str("hi"), Int64(-3))
	if err != nil {
		t.Fatalf("Call failed: %v", err)
	}
	if diff := cmp.Diff(got, []Item{Str("hi"), Int64(-3), Str("Echo")}); diff != "" {
		t.Errorf("wrong reply (-got+want):\n%s", diff)
	}
}

func TestCallError(t *testing.T) {
	c, p := newTestConn(t)
	go func() {
		m, ok := <-p.recv
		if !ok {
			return
		}
		resp, err := NewErrorReply(m, "org.test.Error.Nope", "nope")
		if err != nil {
			return
		}
		p.send(resp)
	}()

	_, err := c.Peer("org.test.Echo").Object("/echo").Interface("org.test.Echo").Call(context.Background(), "Fail")
	var ce CallError
	if !errors.As(err, &ce) {
		t.Fatalf("Call returned %v, want CallError", err)
	}
	want := CallError{Name: "org.test.Error.Nope", Detail: "nope"}
	if diff := cmp.Diff(ce, want); diff != "" {
		t.Errorf("wrong error (-got+want):\n%s", diff)
	}
}

func TestCallTimeout(t *testing.T) {
	c, p := newTestConn(t)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.Peer("org.test.Slow").Object("/").Interface("org.test.Slow").Call(ctx, "Wait")
	var ce CallError
	if !errors.As(err, &ce) || ce.Name != errNameNoReply {
		t.Fatalf("Call returned %v, want NoReply error", err)
	}

	// The late reply belongs to nobody, and is dropped.
	call := p.next()
	resp, err := NewMethodReturn(call)
	if err != nil {
		t.Fatal(err)
	}
	p.send(resp)
	p.signal("After")
	if ev := nextEvent(t, c.Events(time.Second)); ev.Message.Member().Get() != "After" {
		t.Errorf("got event for %s, want After", ev.Message.Member().Get())
	}
}

func TestCloseFailsPendingCalls(t *testing.T) {
	c, p := newTestConn(t)
	errc := make(chan error, 1)
	go func() {
		_, err := c.Peer("org.test.Slow").Object("/").Interface("org.test.Slow").Call(context.Background(), "Wait")
		errc <- err
	}()
	p.next()
	c.Close()
	select {
	case err := <-errc:
		if !errors.Is(err, net.ErrClosed) {
			t.Errorf("pending call returned %v, want net.ErrClosed", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("pending call did not fail on Close")
	}
}

func TestOneWay(t *testing.T) {
	c, p := newTestConn(t)
	if err := c.Peer("org.test.Sink").Object("/sink").Interface("org.test.Sink").OneWay("Drop", Byte(1)); err != nil {
		t.Fatal(err)
	}
	m := p.next()
	if !m.NoReplyExpected() {
		t.Error("one-way call does not have NoReplyExpected set")
	}
	if m.Member().Get() != "Drop" {
		t.Errorf("got call to %s, want Drop", m.Member().Get())
	}
}

func TestSendSerials(t *testing.T) {
	c, p := newTestConn(t)
	var serials []uint32
	for range 3 {
		m := orDie(t)(NewSignal("/x", "org.test.Iface", "S"))
		s, err := c.Send(m)
		if err != nil {
			t.Fatal(err)
		}
		if got := p.next().Serial(); got != s {
			t.Errorf("peer got serial %d, Send returned %d", got, s)
		}
		serials = append(serials, s)
	}
	if diff := cmp.Diff(serials, []uint32{1, 2, 3}); diff != "" {
		t.Errorf("wrong serials (-got+want):\n%s", diff)
	}
}

func TestHello(t *testing.T) {
	c, p := newTestConn(t)
	go func() {
		m, ok := <-p.recv
		if !ok || m.Member().Get() != "Hello" {
			return
		}
		resp, _ := NewMethodReturn(m)
		resp.AppendItems(Str(":1.42"))
		p.send(resp)
	}()
	if err := c.Hello(context.Background()); err != nil {
		t.Fatalf("Hello failed: %v", err)
	}
	if got := c.UniqueName(); got != ":1.42" {
		t.Errorf("UniqueName() = %q, want :1.42", got)
	}
}
