package dbusmsg

import "testing"

func TestParseAddress(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"unix:path=/run/user/1000/bus", "/run/user/1000/bus"},
		{"unix:abstract=/tmp/dbus-XYZ,guid=1234", "@/tmp/dbus-XYZ"},
		{"unix:guid=1234,path=/tmp/bus", "/tmp/bus"},
		{"tcp:host=localhost,port=1234;unix:path=/tmp/bus", "/tmp/bus"},
		{"unix:path=/tmp/with%20space", "/tmp/with space"},

		{"", ""},
		{"tcp:host=localhost,port=1234", ""},
		{"unix:tmpdir=/tmp", ""},
		{"unix:path=/tmp/%zz", ""},
	}
	for _, tc := range tests {
		got, err := ParseAddress(tc.in)
		if tc.want == "" {
			if err == nil {
				t.Errorf("ParseAddress(%q) = %q, want error", tc.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseAddress(%q) failed: %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseAddress(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestBusPaths(t *testing.T) {
	t.Setenv("DBUS_SYSTEM_BUS_ADDRESS", "")
	if got, err := systemBusPath(); err != nil || got != defaultSystemBusPath {
		t.Errorf("systemBusPath() = %q, %v, want %q", got, err, defaultSystemBusPath)
	}
	t.Setenv("DBUS_SYSTEM_BUS_ADDRESS", "unix:path=/tmp/system")
	if got, err := systemBusPath(); err != nil || got != "/tmp/system" {
		t.Errorf("systemBusPath() = %q, %v, want /tmp/system", got, err)
	}

	t.Setenv("DBUS_SESSION_BUS_ADDRESS", "")
	if got, err := sessionBusPath(); err == nil {
		t.Errorf("sessionBusPath() = %q with no session bus, want error", got)
	}
	t.Setenv("DBUS_SESSION_BUS_ADDRESS", "unix:abstract=sess")
	if got, err := sessionBusPath(); err != nil || got != "@sess" {
		t.Errorf("sessionBusPath() = %q, %v, want @sess", got, err)
	}
}
