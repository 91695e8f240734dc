package dbusmsg

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

const testIntrospection = `<!DOCTYPE node PUBLIC "-//freedesktop//DTD D-BUS Object Introspection 1.0//EN"
 "http://www.freedesktop.org/standards/dbus/1.0/introspect.dtd">
<node>
  <interface name="org.test.Gopher">
    <method name="Dig">
      <arg name="depth" type="u" direction="in"/>
      <arg name="found-items" type="as" direction="out"/>
      <annotation name="org.freedesktop.DBus.Deprecated" value="true"/>
    </method>
    <method name="Nap">
      <arg type="x"/>
      <annotation name="org.freedesktop.DBus.Method.NoReply" value="true"/>
    </method>
    <signal name="Burrowed">
      <arg name="where" type="o"/>
    </signal>
    <property name="Name" type="s" access="readwrite"/>
    <property name="Species" type="s" access="read">
      <annotation name="org.freedesktop.DBus.Property.EmitsChangedSignal" value="const"/>
    </property>
    <property name="Mood" type="a{sv}" access="read">
      <annotation name="org.freedesktop.DBus.Property.EmitsChangedSignal" value="invalidates"/>
    </property>
  </interface>
  <node name="burrow"/>
  <node name="den/deep"/>
</node>`

func TestParseIntrospection(t *testing.T) {
	got, err := ParseIntrospection(testIntrospection)
	if err != nil {
		t.Fatalf("ParseIntrospection failed: %v", err)
	}

	want := &ObjectDescription{
		Interfaces: map[string]*InterfaceDescription{
			"org.test.Gopher": {
				Name: "org.test.Gopher",
				Methods: []*MethodDescription{
					{
						Name:       "Dig",
						In:         []ArgumentDescription{{"depth", "u"}},
						Out:        []ArgumentDescription{{"found-items", "as"}},
						Deprecated: true,
					},
					{
						Name:    "Nap",
						In:      []ArgumentDescription{{"", "x"}},
						NoReply: true,
					},
				},
				Signals: []*SignalDescription{
					{Name: "Burrowed", Args: []ArgumentDescription{{"where", "o"}}},
				},
				Properties: []*PropertyDescription{
					{Name: "Name", Type: "s", Readable: true, Writable: true, EmitsSignal: true, SignalIncludesValue: true},
					{Name: "Species", Type: "s", Readable: true, Constant: true},
					{Name: "Mood", Type: "a{sv}", Readable: true, EmitsSignal: true},
				},
			},
		},
		Children: []string{"burrow", "den/deep"},
	}
	if diff := cmp.Diff(got, want); diff != "" {
		t.Errorf("wrong description (-got+want):\n%s", diff)
	}

	wantStr := `interface org.test.Gopher {
  func Dig(depth u) (found_items as) [deprecated]
  func Nap(x) [noreply]
  signal Burrowed(where o)
  property Mood a{sv} [readonly,invalidates]
  property Name s [readwrite,signals]
  property Species s [const]
}`
	if diff := cmp.Diff(got.Interfaces["org.test.Gopher"].String(), wantStr); diff != "" {
		t.Errorf("wrong interface rendering (-got+want):\n%s", diff)
	}
}

func TestParseIntrospectionErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"not xml", "gopher"},
		{"bad arg type", `<node><interface name="a.b"><method name="M"><arg type="a{" /></method></interface></node>`},
		{"bad property access", `<node><interface name="a.b"><property name="P" type="s" access="sometimes"/></interface></node>`},
		{"bad property type", `<node><interface name="a.b"><property name="P" type="zz" access="read"/></interface></node>`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got, err := ParseIntrospection(tc.doc); err == nil {
				t.Errorf("ParseIntrospection succeeded with %+v, want error", got)
			}
		})
	}
}
