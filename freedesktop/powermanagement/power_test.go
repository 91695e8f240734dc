package powermanagement_test

import (
	"testing"

	"github.com/danderson/dbusmsg"
	"github.com/danderson/dbusmsg/freedesktop/powermanagement"
)

func TestParseChange(t *testing.T) {
	tests := []struct {
		iface, member string
		want          powermanagement.Setting
	}{
		{powermanagement.Interface, "CanSuspendChanged", powermanagement.SettingCanSuspend},
		{powermanagement.Interface, "PowerSaveStatusChanged", powermanagement.SettingShouldSavePower},
		{powermanagement.InhibitInterface, "HasInhibitChanged", powermanagement.SettingHasInhibit},
	}
	for _, tc := range tests {
		sig, err := dbusmsg.NewSignal(powermanagement.Path, tc.iface, tc.member)
		if err != nil {
			t.Fatal(err)
		}
		if err := sig.AppendItems(dbusmsg.Bool(true)); err != nil {
			t.Fatal(err)
		}
		got, err := powermanagement.ParseChange(sig)
		if err != nil {
			t.Errorf("ParseChange(%s.%s): %v", tc.iface, tc.member, err)
			continue
		}
		if want := (powermanagement.Change{Setting: tc.want, Value: true}); got != want {
			t.Errorf("ParseChange(%s.%s) = %v, want %v", tc.iface, tc.member, got, want)
		}
		if !tc.want.Match().Matches(sig) {
			t.Errorf("%s.Match() does not match its own signal", tc.want)
		}
	}
}

func TestParseChangeErrors(t *testing.T) {
	wrongIface, err := dbusmsg.NewSignal(powermanagement.Path, powermanagement.InhibitInterface, "CanSuspendChanged")
	if err != nil {
		t.Fatal(err)
	}
	wrongIface.AppendItems(dbusmsg.Bool(true))
	if _, err := powermanagement.ParseChange(wrongIface); err == nil {
		t.Error("ParseChange accepted signal on the wrong interface")
	}

	wrongBody, err := dbusmsg.NewSignal(powermanagement.Path, powermanagement.Interface, "CanSuspendChanged")
	if err != nil {
		t.Fatal(err)
	}
	wrongBody.AppendItems(dbusmsg.Str("yes"))
	if _, err := powermanagement.ParseChange(wrongBody); err == nil {
		t.Error("ParseChange accepted a non-bool body")
	}
}
