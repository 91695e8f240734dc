package dbusmsg

import (
	"testing"
)

func TestMatch(t *testing.T) {
	type msgMatch struct {
		m    *Message
		want bool
	}
	type testCase struct {
		name    string
		m       *Match
		filter  string
		matches []msgMatch
	}

	msg := func(typ MessageType, sender, path, iface, member string, args ...Item) *Message {
		ret := newMessage(typ)
		ret.hdr.Sender = sender
		ret.hdr.Path = ObjectPath(path)
		ret.hdr.Interface = iface
		ret.hdr.Member = member
		if err := ret.AppendItems(args...); err != nil {
			t.Fatalf("building test message: %v", err)
		}
		return ret
	}
	sig := func(want bool, sender, path, iface, member string, args ...Item) msgMatch {
		return msgMatch{msg(MsgSignal, sender, path, iface, member, args...), want}
	}
	call := func(want bool, sender, path, iface, member string, args ...Item) msgMatch {
		return msgMatch{msg(MsgMethodCall, sender, path, iface, member, args...), want}
	}

	tests := []testCase{
		{
			name:   "all signals",
			m:      MatchAllSignals(),
			filter: `type='signal'`,
			matches: []msgMatch{
				sig(true, "test", "/test", "org.test", "Signal"),
				sig(true, "test2", "/test2", "org.test2", "Signal2", Uint32(1)),
				call(false, "test", "/test", "org.test", "Signal"),
			},
		},

		{
			name:   "signal",
			m:      MatchSignal("org.test", "Signal"),
			filter: `type='signal',interface='org.test',member='Signal'`,
			matches: []msgMatch{
				sig(true, "test", "/test", "org.test", "Signal"),
				sig(false, "test", "/test", "org.test", "Signal2"),
				sig(false, "test2", "/test2", "org.test2", "Signal"),
				call(false, "test", "/test", "org.test", "Signal"),
			},
		},

		{
			name:   "method calls",
			m:      MatchType(MsgMethodCall).Interface("org.test"),
			filter: `type='method_call',interface='org.test'`,
			matches: []msgMatch{
				call(true, "test", "/test", "org.test", "Meth"),
				sig(false, "test", "/test", "org.test", "Meth"),
			},
		},

		{
			name:   "signal sender",
			m:      MatchSignal("org.test", "Signal").Sender("test"),
			filter: `type='signal',sender='test',interface='org.test',member='Signal'`,
			matches: []msgMatch{
				sig(true, "test", "/test", "org.test", "Signal"),
				sig(true, "test", "/test2", "org.test", "Signal"),
				sig(false, "test2", "/test", "org.test", "Signal"),
			},
		},

		{
			name:   "signal object",
			m:      MatchSignal("org.test", "Signal").Object("/test"),
			filter: `type='signal',interface='org.test',member='Signal',path='/test'`,
			matches: []msgMatch{
				sig(true, "test", "/test", "org.test", "Signal"),
				sig(false, "test", "/test2", "org.test", "Signal"),
				sig(false, "test", "/test/sub", "org.test", "Signal"),
				sig(true, "test2", "/test", "org.test", "Signal"),
			},
		},

		{
			name:   "signal object prefix",
			m:      MatchSignal("org.test", "Signal").ObjectPrefix("/test"),
			filter: `type='signal',interface='org.test',member='Signal',path_namespace='/test'`,
			matches: []msgMatch{
				sig(true, "test", "/test", "org.test", "Signal"),
				sig(true, "test", "/test/foo", "org.test", "Signal"),
				sig(true, "test", "/test/bar/baz", "org.test", "Signal"),
				sig(false, "test", "/testf", "org.test", "Signal"),
				sig(false, "test", "/qux", "org.test", "Signal"),
			},
		},

		{
			name:   "root object prefix",
			m:      MatchAllSignals().ObjectPrefix("/"),
			filter: `type='signal'`,
			matches: []msgMatch{
				sig(true, "test", "/test", "org.test", "Signal"),
			},
		},

		{
			name:   "object then prefix",
			m:      MatchAllSignals().Object("/a").ObjectPrefix("/b"),
			filter: `type='signal',path_namespace='/b'`,
			matches: []msgMatch{
				sig(false, "test", "/a", "org.test", "Signal"),
				sig(true, "test", "/b/c", "org.test", "Signal"),
			},
		},

		{
			name:   "arg strings",
			m:      MatchSignal("org.test", "Signal").ArgStr(0, "foo").ArgStr(2, "bar"),
			filter: `type='signal',interface='org.test',member='Signal',arg0='foo',arg2='bar'`,
			matches: []msgMatch{
				sig(true, "test", "/test", "org.test", "Signal", Str("foo"), Uint32(1), Str("bar")),
				sig(true, "test", "/test", "org.test", "Signal", Str("foo"), Str("x"), Str("bar"), Str("extra")),
				sig(false, "test", "/test", "org.test", "Signal", Str("foo"), Uint32(1), Str("zot")),
				sig(false, "test", "/test", "org.test", "Signal", Str("no"), Uint32(1), Str("bar")),
				sig(false, "test", "/test", "org.test", "Signal", Str("foo")),
				sig(false, "test", "/test", "org.test", "Signal", Uint32(0), Uint32(1), Str("bar")),
				sig(false, "test", "/test", "org.test", "Signal"),
			},
		},

		{
			name:   "arg path",
			m:      MatchAllSignals().ArgPathPrefix(0, "/foo/").ArgPathPrefix(1, "/bar"),
			filter: `type='signal',arg0path='/foo/',arg1path='/bar'`,
			matches: []msgMatch{
				sig(true, "test", "/test", "org.test", "Signal", Str("/foo/x"), Str("/bar")),
				sig(true, "test", "/test", "org.test", "Signal", Str("/foo/"), Str("/")),
				sig(true, "test", "/test", "org.test", "Signal", Str("/"), Str("/bar")),
				sig(false, "test", "/test", "org.test", "Signal", Str("/foox"), Str("/bar")),
				sig(false, "test", "/test", "org.test", "Signal", Str("/foo/x"), Str("/bar/x")),
			},
		},

		{
			name:   "arg0 namespace",
			m:      MatchAllSignals().Arg0Namespace("org.test"),
			filter: `type='signal',arg0namespace='org.test'`,
			matches: []msgMatch{
				sig(true, "test", "/test", "org.test", "Signal", Str("org.test")),
				sig(true, "test", "/test", "org.test", "Signal", Str("org.test.Sub")),
				sig(false, "test", "/test", "org.test", "Signal", Str("org.testing")),
				sig(false, "test", "/test", "org.test", "Signal", Byte(1)),
			},
		},

		{
			name:   "quoting",
			m:      MatchAllSignals().ArgStr(0, "it's"),
			filter: `type='signal',arg0='it'\''s'`,
			matches: []msgMatch{
				sig(true, "test", "/test", "org.test", "Signal", Str("it's")),
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.m.String(); got != tc.filter {
				t.Errorf("wrong filter string:\n  got: %s\n want: %s", got, tc.filter)
			}
			for _, mm := range tc.matches {
				if got := tc.m.Matches(mm.m); got != mm.want {
					t.Errorf("Matches(%s) = %v, want %v", mm.m, got, mm.want)
				}
			}
		})
	}
}
