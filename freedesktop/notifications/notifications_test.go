package notifications

import (
	"testing"

	"github.com/danderson/dbusmsg"
	"github.com/google/go-cmp/cmp"
)

func TestParseCapabilities(t *testing.T) {
	got := parseCapabilities([]string{"actions", "body", "icon-multi", "x-kde-urls", "x-frobnicate"})
	want := Capabilities{
		Actions:       true,
		Body:          true,
		Icon:          true,
		IconAnimation: true,
		ContextURLs:   true,
		Unknown:       []string{"x-frobnicate"},
	}
	if diff := cmp.Diff(got, want); diff != "" {
		t.Errorf("wrong capabilities (-got+want):\n%s", diff)
	}
}

func TestHintDict(t *testing.T) {
	got := hintDict(
		map[string]dbusmsg.Item{"urgency": dbusmsg.Byte(2), "category": dbusmsg.Str("im")},
		map[string]dbusmsg.Item{"urgency": dbusmsg.Byte(1)},
	)
	want := dbusmsg.Array{
		Elem: dbusmsg.TagDictEntry,
		Items: []dbusmsg.Item{
			dbusmsg.DictEntry{Key: dbusmsg.Str("category"), Value: dbusmsg.Variant{Value: dbusmsg.Str("im")}},
			dbusmsg.DictEntry{Key: dbusmsg.Str("urgency"), Value: dbusmsg.Variant{Value: dbusmsg.Byte(2)}},
		},
	}
	if diff := cmp.Diff(got, want); diff != "" {
		t.Errorf("wrong hints (-got+want):\n%s", diff)
	}
	if sig, err := dbusmsg.SignatureOf(got); err != nil || sig != "a{sv}" {
		t.Errorf("hints have signature %q (err %v), want a{sv}", sig, err)
	}
}

func TestParseSignal(t *testing.T) {
	tests := []struct {
		member string
		args   []dbusmsg.Item
		want   any
	}{
		{"ActionInvoked", []dbusmsg.Item{dbusmsg.Uint32(3), dbusmsg.Str("default")}, ActionInvoked{3, "default"}},
		{"ActivationToken", []dbusmsg.Item{dbusmsg.Uint32(3), dbusmsg.Str("tok")}, ActivationToken{3, "tok"}},
		{"NotificationClosed", []dbusmsg.Item{dbusmsg.Uint32(3), dbusmsg.Uint32(2)}, NotificationClosed{3, 2}},
		{"NotificationReplied", []dbusmsg.Item{dbusmsg.Uint32(3), dbusmsg.Str("hi")}, NotificationReplied{3, "hi"}},
		{"NotificationClosed", []dbusmsg.Item{dbusmsg.Uint32(3), dbusmsg.Str("hi")}, nil},
		{"ActionInvoked", []dbusmsg.Item{dbusmsg.Uint32(3)}, nil},
		{"Frobnicated", []dbusmsg.Item{dbusmsg.Uint32(3), dbusmsg.Str("hi")}, nil},
	}
	for _, tc := range tests {
		m, err := dbusmsg.NewSignal(Path, Interface, tc.member)
		if err != nil {
			t.Fatal(err)
		}
		if err := m.AppendItems(tc.args...); err != nil {
			t.Fatal(err)
		}
		got, err := ParseSignal(m)
		if tc.want == nil {
			if err == nil {
				t.Errorf("ParseSignal(%s%v) = %v, want error", tc.member, tc.args, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseSignal(%s%v): %v", tc.member, tc.args, err)
			continue
		}
		if diff := cmp.Diff(got, tc.want); diff != "" {
			t.Errorf("ParseSignal(%s%v) wrong result (-got+want):\n%s", tc.member, tc.args, diff)
		}
	}
}
