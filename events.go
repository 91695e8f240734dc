package dbusmsg

import (
	"fmt"
	"iter"
	"time"
)

// EventKind is the kind of an [Event].
type EventKind int

const (
	// EventNothing reports that nothing happened before the
	// iterator's timeout expired.
	EventNothing EventKind = iota
	// EventMethodCall is a method call to an object registered with
	// [Conn.RegisterObjectPath].
	EventMethodCall
	// EventSignal is a signal received from the bus.
	EventSignal
)

func (k EventKind) String() string {
	switch k {
	case EventNothing:
		return "nothing"
	case EventMethodCall:
		return "method call"
	case EventSignal:
		return "signal"
	}
	return fmt.Sprintf("EventKind(%d)", int(k))
}

// Event is an inbound method call or signal, or a report that
// nothing happened.
type Event struct {
	Kind EventKind
	// Message is the received message. It is nil for EventNothing.
	Message *Message
}

// EventIter is a pull iterator over a connection's inbound events.
type EventIter struct {
	c       *Conn
	timeout time.Duration
	done    bool
}

// Events returns an iterator over the connection's inbound method
// calls and signals.
//
// When no events are waiting, the iterator waits up to timeout for
// one to arrive, and yields an [EventNothing] event if none
// does. A zero or negative timeout waits forever.
//
// Events are delivered in the order they were received. All
// iterators of a connection share the same sequence of events, and
// iteration may be stopped and restarted freely.
func (c *Conn) Events(timeout time.Duration) *EventIter {
	return &EventIter{
		c:       c,
		timeout: timeout,
	}
}

// Next returns the next event. It returns false once the connection
// is closed and all received events have been returned.
func (it *EventIter) Next() (Event, bool) {
	if it.done {
		return Event{}, false
	}
	for {
		if ev, ok := it.c.popEvent(); ok {
			return ev, true
		}
		alive := it.c.readWriteDispatch(it.timeout)
		if it.c.hasEvents() {
			continue
		}
		if !alive {
			it.done = true
			return Event{}, false
		}
		return Event{Kind: EventNothing}, true
	}
}

// All returns an iterator that yields the results of calling Next
// until it returns false.
func (it *EventIter) All() iter.Seq[Event] {
	return func(yield func(Event) bool) {
		for {
			ev, ok := it.Next()
			if !ok || !yield(ev) {
				return
			}
		}
	}
}

func (c *Conn) popEvent() (Event, bool) {
	c.eventsMu.Lock()
	defer c.eventsMu.Unlock()
	return c.events.Pop()
}

func (c *Conn) hasEvents() bool {
	c.eventsMu.Lock()
	defer c.eventsMu.Unlock()
	return c.events.Len() > 0
}
