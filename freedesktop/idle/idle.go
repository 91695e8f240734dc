// Package idle provides an interface to the Freedesktop session
// idleness management and locking DBus API.
//
// For historical reasons, the DBus interface for this API is called
// org.freedesktop.ScreenSaver, which is a bit of a misnomer: the API
// is primarily concerned with managing the locking of a session due
// to idleness, although it also provides a method to explicitly lock
// the session immediately as well.
//
// The API also provides a way for applications to temporarily inhibit
// idleness-based session locking, for example so that movie playback
// isn't disrupted.
package idle

import (
	"context"
	"fmt"
	"time"

	"github.com/danderson/dbusmsg"
)

const (
	Name      = "org.freedesktop.ScreenSaver"
	Path      = dbusmsg.ObjectPath("/org/freedesktop/ScreenSaver")
	Interface = "org.freedesktop.ScreenSaver"
)

// Idle is a client of the session locking management service.
type Idle struct{ iface dbusmsg.Interface }

// New returns an interface to the session locking management service.
func New(conn *dbusmsg.Conn) Idle {
	return OnObject(conn.Peer(Name).Object(Path))
}

// OnObject returns a session locking management interface on the
// given object.
func OnObject(obj dbusmsg.Object) Idle {
	return Idle{
		iface: obj.Interface(Interface),
	}
}

// Locked reports whether the session is currently locked.
func (iface Idle) Locked(ctx context.Context) (bool, error) {
	ret, err := dbusmsg.Single[dbusmsg.Bool](iface.iface.Call(ctx, "GetActive"))
	return bool(ret), err
}

// LockedTime reports the amount of time the session has been locked,
// or 0 if the session is not locked.
func (iface Idle) LockedTime(ctx context.Context) (time.Duration, error) {
	secs, err := dbusmsg.Single[dbusmsg.Uint32](iface.iface.Call(ctx, "GetActiveTime"))
	return time.Duration(secs) * time.Second, err
}

// IdleTime reports the amount of time the session has been idle.
//
// A session may be idle with or without being locked. Idleness has no
// precise definition, but usually translates to a lack of
// keyboard/mouse inputs.
func (iface Idle) IdleTime(ctx context.Context) (time.Duration, error) {
	secs, err := dbusmsg.Single[dbusmsg.Uint32](iface.iface.Call(ctx, "GetSessionIdleTime"))
	return time.Duration(secs) * time.Second, err
}

// Inhibit prevents the session from locking due to being idle.
//
// application and reason are human-readable strings that should
// explain what is preventing idle session from locking, and why.
//
// The returned cancellation function should be called when the idle
// lock inhibition should be lifted.
func (iface Idle) Inhibit(ctx context.Context, application string, reason string) (cancel func(context.Context) error, err error) {
	cookie, err := dbusmsg.Single[dbusmsg.Uint32](iface.iface.Call(ctx, "Inhibit", dbusmsg.Str(application), dbusmsg.Str(reason)))
	if err != nil {
		return nil, err
	}
	cancel = func(ctx context.Context) error {
		_, err := iface.iface.Call(ctx, "UnInhibit", cookie)
		return err
	}
	return cancel, nil
}

// Lock asks the session to lock immediately.
func (iface Idle) Lock(ctx context.Context) error {
	_, err := iface.iface.Call(ctx, "Lock")
	return err
}

// MatchStateChanged returns a match for the signal that reports the
// session becoming locked or unlocked.
func MatchStateChanged() *dbusmsg.Match {
	return dbusmsg.MatchSignal(Interface, "ActiveChanged").Object(Path)
}

// ParseStateChanged decodes an ActiveChanged signal, and reports
// whether the session is now locked.
func ParseStateChanged(m *dbusmsg.Message) (locked bool, err error) {
	if !MatchStateChanged().Matches(m) {
		return false, fmt.Errorf("%s is not a %s.ActiveChanged signal", m, Interface)
	}
	items, err := m.Items()
	if err != nil {
		return false, err
	}
	if len(items) != 1 || items[0].Tag() != dbusmsg.TagBoolean {
		return false, fmt.Errorf("unexpected ActiveChanged body %v", items)
	}
	return bool(items[0].(dbusmsg.Bool)), nil
}
