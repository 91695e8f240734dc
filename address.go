package dbusmsg

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
)

const defaultSystemBusPath = "/run/dbus/system_bus_socket"

// ParseAddress returns the unix socket path to connect to for the
// given DBus server address.
//
// addr may list several addresses separated by semicolons, in which
// case the first usable one is returned. Only unix:path= and
// unix:abstract= addresses are supported. Abstract socket paths are
// returned with a leading '@'.
func ParseAddress(addr string) (string, error) {
	if addr == "" {
		return "", errors.New("empty bus address")
	}
	for _, uri := range strings.Split(addr, ";") {
		rest, ok := strings.CutPrefix(uri, "unix:")
		if !ok {
			continue
		}
		for _, kv := range strings.Split(rest, ",") {
			k, v, ok := strings.Cut(kv, "=")
			if !ok {
				continue
			}
			v, err := url.PathUnescape(v)
			if err != nil {
				return "", fmt.Errorf("invalid bus address %q: %w", uri, err)
			}
			switch k {
			case "path":
				return v, nil
			case "abstract":
				return "@" + v, nil
			}
		}
	}
	return "", fmt.Errorf("could not find usable address in %q", addr)
}

// sessionBusPath returns the socket path of the current user's
// session bus.
func sessionBusPath() (string, error) {
	addr := os.Getenv("DBUS_SESSION_BUS_ADDRESS")
	if addr == "" {
		return "", errors.New("session bus not available")
	}
	return ParseAddress(addr)
}

// systemBusPath returns the socket path of the system bus.
func systemBusPath() (string, error) {
	addr := os.Getenv("DBUS_SYSTEM_BUS_ADDRESS")
	if addr == "" {
		return defaultSystemBusPath, nil
	}
	return ParseAddress(addr)
}
