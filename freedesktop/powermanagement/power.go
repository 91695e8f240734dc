// Package powermanagement provides an interface to the Freedesktop
// power management API, which reports and controls system sleep.
package powermanagement

import (
	"context"
	"fmt"

	"github.com/danderson/dbusmsg"
)

const (
	Name             = "org.freedesktop.PowerManagement"
	Path             = dbusmsg.ObjectPath("/org/freedesktop/PowerManagement")
	Interface        = "org.freedesktop.PowerManagement"
	InhibitInterface = "org.freedesktop.PowerManagement.Inhibit"
)

// PowerManagement is a client of the power management service.
type PowerManagement struct {
	main    dbusmsg.Interface
	inhibit dbusmsg.Interface
}

// New returns an interface to the power management service.
func New(conn *dbusmsg.Conn) PowerManagement {
	return OnObject(conn.Peer(Name).Object(Path))
}

// OnObject returns a power management interface on the given object.
func OnObject(obj dbusmsg.Object) PowerManagement {
	return PowerManagement{
		main:    obj.Interface(Interface),
		inhibit: obj.Interface(InhibitInterface),
	}
}

func (iface PowerManagement) boolCall(ctx context.Context, method string) (bool, error) {
	ret, err := dbusmsg.Single[dbusmsg.Bool](iface.main.Call(ctx, method))
	return bool(ret), err
}

// CanHibernate reports whether the system is capable of hibernating.
//
// Hibernation, also known as "suspend to disk", saves the system
// state to durable storage and powers the computer off entirely.
func (iface PowerManagement) CanHibernate(ctx context.Context) (bool, error) {
	return iface.boolCall(ctx, "CanHibernate")
}

// CanHybridSuspend reports whether the system is capable of entering
// hybrid sleep.
//
// Hybrid sleep saves the system state to durable storage, but then
// does a regular suspend instead of powering off entirely.
func (iface PowerManagement) CanHybridSuspend(ctx context.Context) (bool, error) {
	return iface.boolCall(ctx, "CanHybridSuspend")
}

// CanSuspend reports whether the system is capable of suspending to
// RAM.
func (iface PowerManagement) CanSuspend(ctx context.Context) (bool, error) {
	return iface.boolCall(ctx, "CanSuspend")
}

// CanSuspendThenHibernate reports whether the system is capable of
// suspending, then hibernating when the battery reaches critical
// levels.
func (iface PowerManagement) CanSuspendThenHibernate(ctx context.Context) (bool, error) {
	return iface.boolCall(ctx, "CanSuspendThenHibernate")
}

// ShouldSavePower reports whether the caller should try to lower its
// power consumption.
//
// The value reflects the system's power usage policy. It does not
// necessarily mean that the system is running on battery power.
func (iface PowerManagement) ShouldSavePower(ctx context.Context) (bool, error) {
	return iface.boolCall(ctx, "GetPowerSaveStatus")
}

// Hibernate asks the system to hibernate.
func (iface PowerManagement) Hibernate(ctx context.Context) error {
	_, err := iface.main.Call(ctx, "Hibernate")
	return err
}

// Suspend asks the system to suspend to RAM.
func (iface PowerManagement) Suspend(ctx context.Context) error {
	_, err := iface.main.Call(ctx, "Suspend")
	return err
}

// HasInhibit reports whether an application is currently preventing
// the system from sleeping.
func (iface PowerManagement) HasInhibit(ctx context.Context) (bool, error) {
	ret, err := dbusmsg.Single[dbusmsg.Bool](iface.inhibit.Call(ctx, "HasInhibit"))
	return bool(ret), err
}

// InhibitSleep prevents the system from going to sleep.
//
// application and reason are human-readable strings that should
// explain what is preventing the system from sleeping, and why. For
// example, a background system update might use the application name
// "System" and the reason "Installing updates".
//
// The returned cancellation function should be called when the sleep
// inhibition should be lifted.
func (iface PowerManagement) InhibitSleep(ctx context.Context, application string, reason string) (cancel func(context.Context) error, err error) {
	cookie, err := dbusmsg.Single[dbusmsg.Uint32](iface.inhibit.Call(ctx, "Inhibit", dbusmsg.Str(application), dbusmsg.Str(reason)))
	if err != nil {
		return nil, err
	}
	cancel = func(ctx context.Context) error {
		_, err := iface.inhibit.Call(ctx, "UnInhibit", cookie)
		return err
	}
	return cancel, nil
}

// Setting is a power management setting that the service announces
// changes to.
type Setting int

const (
	SettingCanHibernate Setting = iota
	SettingCanHybridSuspend
	SettingCanSuspend
	SettingCanSuspendThenHibernate
	SettingShouldSavePower
	SettingHasInhibit
)

type settingSignal struct {
	iface, member string
}

var settingSignals = map[Setting]settingSignal{
	SettingCanHibernate:            {Interface, "CanHibernateChanged"},
	SettingCanHybridSuspend:        {Interface, "CanHybridSuspendChanged"},
	SettingCanSuspend:              {Interface, "CanSuspendChanged"},
	SettingCanSuspendThenHibernate: {Interface, "CanSuspendThenHibernateChanged"},
	SettingShouldSavePower:         {Interface, "PowerSaveStatusChanged"},
	SettingHasInhibit:              {InhibitInterface, "HasInhibitChanged"},
}

func (s Setting) String() string {
	if sig, ok := settingSignals[s]; ok {
		return sig.member
	}
	return fmt.Sprintf("Setting(%d)", int(s))
}

// Match returns a match for the signal that announces changes to s.
func (s Setting) Match() *dbusmsg.Match {
	sig := settingSignals[s]
	return dbusmsg.MatchSignal(sig.iface, sig.member).Object(Path)
}

// Change is a new value for a power management setting.
type Change struct {
	Setting Setting
	Value   bool
}

// ParseChange decodes a setting change signal.
func ParseChange(m *dbusmsg.Message) (Change, error) {
	for s := range settingSignals {
		if !s.Match().Matches(m) {
			continue
		}
		items, err := m.Items()
		if err != nil {
			return Change{}, err
		}
		if len(items) != 1 || items[0].Tag() != dbusmsg.TagBoolean {
			return Change{}, fmt.Errorf("unexpected %s body %v", s, items)
		}
		return Change{s, bool(items[0].(dbusmsg.Bool))}, nil
	}
	return Change{}, fmt.Errorf("%s is not a power management signal", m)
}
