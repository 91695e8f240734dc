package dbusmsg

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/creachadair/mds/value"
)

// Match is a message filter, in the form the message bus accepts for
// [Conn.AddMatch].
type Match struct {
	typ          value.Maybe[MessageType]
	sender       value.Maybe[string]
	iface        value.Maybe[string]
	member       value.Maybe[string]
	destination  value.Maybe[string]
	object       value.Maybe[ObjectPath]
	objectPrefix value.Maybe[ObjectPath]
	argStr       map[int]string
	argPath      map[int]ObjectPath
	arg0NS       value.Maybe[string]
}

// MatchAllSignals returns a Match for all signals.
func MatchAllSignals() *Match {
	return &Match{typ: value.Just(MsgSignal)}
}

// MatchSignal returns a Match for the signal member of iface.
func MatchSignal(iface, member string) *Match {
	return MatchAllSignals().Interface(iface).Member(member)
}

// MatchType returns a Match for all messages of type t.
func MatchType(t MessageType) *Match {
	return &Match{typ: value.Just(t)}
}

// String returns the match in the string format that the bus wants
// for the AddMatch and RemoveMatch methods.
func (m *Match) String() string {
	var ms []string
	kv := func(k string, v string) {
		ms = append(ms, fmt.Sprintf("%s=%s", k, escapeMatchArg(v)))
	}

	if t, ok := m.typ.GetOK(); ok {
		kv("type", matchTypeName(t))
	}
	if s, ok := m.sender.GetOK(); ok {
		kv("sender", s)
	}
	if s, ok := m.iface.GetOK(); ok {
		kv("interface", s)
	}
	if s, ok := m.member.GetOK(); ok {
		kv("member", s)
	}
	if o, ok := m.object.GetOK(); ok {
		kv("path", o.String())
	}
	if p, ok := m.objectPrefix.GetOK(); ok {
		kv("path_namespace", p.String())
	}
	if s, ok := m.destination.GetOK(); ok {
		kv("destination", s)
	}
	for _, i := range slices.Sorted(maps.Keys(m.argStr)) {
		kv(fmt.Sprintf("arg%d", i), m.argStr[i])
	}
	for _, i := range slices.Sorted(maps.Keys(m.argPath)) {
		kv(fmt.Sprintf("arg%dpath", i), m.argPath[i].String())
	}
	if n, ok := m.arg0NS.GetOK(); ok {
		kv("arg0namespace", n)
	}

	return strings.Join(ms, ",")
}

func matchTypeName(t MessageType) string {
	switch t {
	case MsgMethodCall:
		return "method_call"
	case MsgMethodReturn:
		return "method_return"
	case MsgError:
		return "error"
	case MsgSignal:
		return "signal"
	}
	return t.String()
}

// Matches reports whether msg matches the filter, using the same
// match logic that the bus applies to the match's String().
//
// A connection receives a single stream of messages, the union of
// all the matches it registered, so receivers use Matches to pick
// out the messages they asked for.
func (m *Match) Matches(msg *Message) bool {
	hdr := &msg.hdr
	if t, ok := m.typ.GetOK(); ok && hdr.Type != t {
		return false
	}
	if s, ok := m.sender.GetOK(); ok && hdr.Sender != s {
		return false
	}
	if s, ok := m.iface.GetOK(); ok && hdr.Interface != s {
		return false
	}
	if s, ok := m.member.GetOK(); ok && hdr.Member != s {
		return false
	}
	if s, ok := m.destination.GetOK(); ok && hdr.Destination != s {
		return false
	}
	if o, ok := m.object.GetOK(); ok && hdr.Path != o {
		return false
	}
	if p, ok := m.objectPrefix.GetOK(); ok && hdr.Path != p && !hdr.Path.IsChildOf(p) {
		return false
	}

	if len(m.argStr) == 0 && len(m.argPath) == 0 && !m.arg0NS.Present() {
		return true
	}
	args, err := msg.Items()
	if err != nil {
		return false
	}
	arg := func(i int) (string, bool) {
		if i >= len(args) {
			return "", false
		}
		s, ok := args[i].(Str)
		return string(s), ok
	}
	for i, want := range m.argStr {
		if got, ok := arg(i); !ok || got != want {
			return false
		}
	}
	for i, want := range m.argPath {
		got, ok := arg(i)
		if !ok || !pathArgMatches(got, string(want)) {
			return false
		}
	}
	if n, ok := m.arg0NS.GetOK(); ok {
		if got, ok := arg(0); !ok || (got != n && !strings.HasPrefix(got, n+".")) {
			return false
		}
	}
	return true
}

// pathArgMatches implements the bus's argNpath rule: the two match
// if they are equal, or if the one ending in '/' is a prefix of the
// other.
func pathArgMatches(got, want string) bool {
	switch {
	case got == want:
		return true
	case strings.HasSuffix(want, "/") && strings.HasPrefix(got, want):
		return true
	case strings.HasSuffix(got, "/") && strings.HasPrefix(want, got):
		return true
	}
	return false
}

// Peer restricts the match to a single source Peer.
func (m *Match) Peer(p Peer) *Match {
	return m.Sender(p.Name())
}

// Sender restricts the match to messages sent by the named peer.
func (m *Match) Sender(name string) *Match {
	m.sender = value.Just(name)
	return m
}

// Interface restricts the match to messages for the given interface.
func (m *Match) Interface(name string) *Match {
	m.iface = value.Just(name)
	return m
}

// Member restricts the match to messages for the given method or
// signal name.
func (m *Match) Member(name string) *Match {
	m.member = value.Just(name)
	return m
}

// Destination restricts the match to messages addressed to the given
// unique name.
func (m *Match) Destination(name string) *Match {
	m.destination = value.Just(name)
	return m
}

// Object restricts the match to a single source path.
func (m *Match) Object(o ObjectPath) *Match {
	m.objectPrefix = value.Absent[ObjectPath]()
	m.object = value.Just(o.Clean())
	return m
}

// ObjectPrefix restricts the match to Objects rooted at the given
// path prefix.
//
// For example, ObjectPrefix("/mascots/gopher") matches messages for
// /mascots/gopher and /mascots/gopher/plushie, but not
// /mascots/glenda.
func (m *Match) ObjectPrefix(o ObjectPath) *Match {
	m.object = value.Absent[ObjectPath]()
	if o == "/" {
		// workaround for dbus-broker bug: / means the same as not
		// specifying a path match anyway, so don't include it.
		m.objectPrefix = value.Absent[ObjectPath]()
	} else {
		m.objectPrefix = value.Just(o.Clean())
	}
	return m
}

// ArgStr restricts the match to messages whose i-th body value is a
// string equal to val.
func (m *Match) ArgStr(i int, val string) *Match {
	if i < 0 || i > 63 {
		panic(fmt.Errorf("invalid ArgStr index %d, must be in [0,63]", i))
	}
	if m.argStr == nil {
		m.argStr = map[int]string{}
	}
	m.argStr[i] = val
	return m
}

// ArgPathPrefix restricts the match to messages whose i-th body
// value is a string path matching val.
func (m *Match) ArgPathPrefix(i int, val ObjectPath) *Match {
	if i < 0 || i > 63 {
		panic(fmt.Errorf("invalid ArgPathPrefix index %d, must be in [0,63]", i))
	}
	if m.argPath == nil {
		m.argPath = map[int]ObjectPath{}
	}
	m.argPath[i] = val
	return m
}

// Arg0Namespace restricts the match to messages whose first body
// value is a peer or interface name with the given dot-separated
// prefix.
func (m *Match) Arg0Namespace(val string) *Match {
	m.arg0NS = value.Just(val)
	return m
}

func escapeMatchArg(s string) string {
	s = strings.ReplaceAll(s, "'", "'\\''")
	return "'" + s + "'"
}
