// Package background provides an interface to the Freedesktop Flatpak
// background applications monitor.
//
// This corresponds to the org.freedesktop.background.Monitor service
// on the session bus, which provides a way to find out what Flatpak
// applications are running with no visible GUI.
package background

import (
	"context"
	"fmt"

	"github.com/danderson/dbusmsg"
)

const (
	Name      = "org.freedesktop.background.Monitor"
	Path      = dbusmsg.ObjectPath("/org/freedesktop/background/monitor")
	Interface = "org.freedesktop.background.Monitor"
)

// Monitor is a client of the background applications monitor.
type Monitor struct{ iface dbusmsg.Interface }

// New returns an interface to the Flatpak background applications
// monitor.
func New(conn *dbusmsg.Conn) Monitor {
	return OnObject(conn.Peer(Name).Object(Path))
}

// OnObject returns a Monitor on the given object.
func OnObject(obj dbusmsg.Object) Monitor {
	return Monitor{
		iface: obj.Interface(Interface),
	}
}

// App is a Flatpak application running in the background.
type App struct {
	// ID is the application's Flatpak ID.
	ID string
	// Instance is the application instance's ID.
	Instance string
	// Status is a status message provided by the application.
	Status string

	// Unknown collects any new application attributes that are not
	// yet understood by this package.
	Unknown map[string]dbusmsg.Item
}

// BackgroundApps returns a list of Flatpak applications running in
// the background.
func (iface Monitor) BackgroundApps(ctx context.Context) ([]App, error) {
	v, err := iface.iface.GetProperty(ctx, "BackgroundApps")
	if err != nil {
		return nil, err
	}
	return ParseApps(v)
}

// ParseApps decodes a list of applications, in the aa{sv} form that
// the BackgroundApps property and its change notifications use.
func ParseApps(v dbusmsg.Item) ([]App, error) {
	apps, ok := v.(dbusmsg.Array)
	if !ok {
		return nil, fmt.Errorf("BackgroundApps is %s, want an array", v)
	}
	ret := make([]App, 0, len(apps.Items))
	for _, it := range apps.Items {
		attrs, ok := it.(dbusmsg.Array)
		if !ok {
			return nil, fmt.Errorf("background app is %s, want an array", it)
		}
		app, err := parseApp(attrs)
		if err != nil {
			return nil, err
		}
		ret = append(ret, app)
	}
	return ret, nil
}

func parseApp(attrs dbusmsg.Array) (App, error) {
	var ret App
	for _, it := range attrs.Items {
		ent, ok := it.(dbusmsg.DictEntry)
		if !ok {
			return App{}, fmt.Errorf("app attribute is %s, want a dict entry", it)
		}
		k, ok1 := ent.Key.(dbusmsg.Str)
		v, ok2 := ent.Value.(dbusmsg.Variant)
		if !ok1 || !ok2 {
			return App{}, fmt.Errorf("app attribute is %s, want {sv}", ent)
		}
		var field *string
		switch k {
		case "app_id":
			field = &ret.ID
		case "instance":
			field = &ret.Instance
		case "message":
			field = &ret.Status
		default:
			if ret.Unknown == nil {
				ret.Unknown = map[string]dbusmsg.Item{}
			}
			ret.Unknown[string(k)] = v.Value
			continue
		}
		s, ok := v.Value.(dbusmsg.Str)
		if !ok {
			return App{}, fmt.Errorf("app attribute %s is %s, want a string", k, v.Value)
		}
		*field = string(s)
	}
	return ret, nil
}
