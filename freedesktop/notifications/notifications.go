// Package notifications provides an interface to the Freedesktop
// notifications API.
//
// This corresponds to the org.freedesktop.Notifications service on
// the session bus.
package notifications

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/danderson/dbusmsg"
)

const (
	Name      = "org.freedesktop.Notifications"
	Path      = dbusmsg.ObjectPath("/org/freedesktop/Notifications")
	Interface = "org.freedesktop.Notifications"
)

// Notifications is a client of the session's notification service.
type Notifications struct{ iface dbusmsg.Interface }

// New returns an interface to the session's notification service.
func New(conn *dbusmsg.Conn) Notifications {
	return OnObject(conn.Peer(Name).Object(Path))
}

// OnObject returns a Notifications on the given object.
func OnObject(obj dbusmsg.Object) Notifications {
	return Notifications{
		iface: obj.Interface(Interface),
	}
}

// Capabilities are the optional features that a notification server
// supports.
//
// The set varies by desktop environment. For example, GNOME offers
// actions, body, body-markup, icon-static, persistence and sound. KDE
// adds body-hyperlinks, body-images, inhibitions, inline-reply and
// several x-kde extensions.
type Capabilities struct {
	Actions       bool
	ActionIcons   bool
	Body          bool
	BodyLinks     bool
	BodyImages    bool
	BodyMarkup    bool
	Icon          bool
	IconAnimation bool
	Persistence   bool
	Sound         bool

	Inhibitions       bool
	InlineReply       bool
	ContextURLs       bool
	DisplayAppName    bool
	DisplayOriginName bool

	Unknown []string
}

func parseCapabilities(cs []string) Capabilities {
	var caps Capabilities
	flags := map[string][]*bool{
		"actions":               {&caps.Actions},
		"action-icons":          {&caps.ActionIcons},
		"body":                  {&caps.Body},
		"body-hyperlinks":       {&caps.BodyLinks},
		"body-images":           {&caps.BodyImages},
		"body-markup":           {&caps.BodyMarkup},
		"icon-static":           {&caps.Icon},
		"icon-multi":            {&caps.Icon, &caps.IconAnimation},
		"persistence":           {&caps.Persistence},
		"sound":                 {&caps.Sound},
		"inhibitions":           {&caps.Inhibitions},
		"inline-reply":          {&caps.InlineReply},
		"x-kde-display-appname": {&caps.DisplayAppName},
		"x-kde-origin-name":     {&caps.DisplayOriginName},
		"x-kde-urls":            {&caps.ContextURLs},
	}
	for _, c := range cs {
		fs, ok := flags[c]
		if !ok {
			caps.Unknown = append(caps.Unknown, c)
			continue
		}
		for _, f := range fs {
			*f = true
		}
	}
	return caps
}

// Capabilities returns the features that the server supports.
func (n Notifications) Capabilities(ctx context.Context) (Capabilities, error) {
	arr, err := dbusmsg.Single[dbusmsg.Array](n.iface.Call(ctx, "GetCapabilities"))
	if err != nil {
		return Capabilities{}, err
	}
	cs := make([]string, 0, len(arr.Items))
	for _, it := range arr.Items {
		s, ok := it.(dbusmsg.Str)
		if !ok {
			return Capabilities{}, fmt.Errorf("unexpected capability %s", it)
		}
		cs = append(cs, string(s))
	}
	return parseCapabilities(cs), nil
}

// ServerInfo describes a notification server.
type ServerInfo struct {
	Name        string
	Vendor      string
	Version     string
	SpecVersion string
}

// ServerInformation returns information about the notification
// server.
func (n Notifications) ServerInformation(ctx context.Context) (ServerInfo, error) {
	resp, err := n.iface.Call(ctx, "GetServerInformation")
	if err != nil {
		return ServerInfo{}, err
	}
	var strs [4]string
	if len(resp) != len(strs) {
		return ServerInfo{}, fmt.Errorf("GetServerInformation returned %d values, want %d", len(resp), len(strs))
	}
	for i, it := range resp {
		s, ok := it.(dbusmsg.Str)
		if !ok {
			return ServerInfo{}, fmt.Errorf("GetServerInformation returned %s, want a string", it)
		}
		strs[i] = string(s)
	}
	return ServerInfo{strs[0], strs[1], strs[2], strs[3]}, nil
}

// Urgency is the importance of a notification.
type Urgency byte

const (
	UrgencyLow Urgency = iota
	UrgencyNormal
	UrgencyCritical
)

// Notification is a notification to display.
type Notification struct {
	AppName string
	// ReplacesID is the ID of an earlier notification to replace,
	// or zero.
	ReplacesID uint32
	AppIcon    string
	Summary    string
	Body       string
	// Actions is a list of action keys and their labels, alternating.
	Actions []string
	Urgency Urgency
	// Hints are additional server-specific hints. The "urgency" hint
	// is set from Urgency.
	Hints map[string]dbusmsg.Item
	// Timeout is the display timeout in milliseconds. Zero never
	// expires, -1 lets the server decide.
	Timeout int32
}

// hintDict returns hints as an a{sv} dictionary, with extra hints
// added. extra must not be empty, so that the dictionary's type can
// be inferred.
func hintDict(hints map[string]dbusmsg.Item, extra map[string]dbusmsg.Item) dbusmsg.Array {
	all := maps.Clone(extra)
	maps.Copy(all, hints)
	ret := dbusmsg.Array{Elem: dbusmsg.TagDictEntry}
	for _, k := range slices.Sorted(maps.Keys(all)) {
		ret.Items = append(ret.Items, dbusmsg.DictEntry{
			Key:   dbusmsg.Str(k),
			Value: dbusmsg.Variant{Value: all[k]},
		})
	}
	return ret
}

func strArray(ss []string) dbusmsg.Array {
	ret := dbusmsg.Array{Elem: dbusmsg.TagString}
	for _, s := range ss {
		ret.Items = append(ret.Items, dbusmsg.Str(s))
	}
	return ret
}

// Notify displays a notification, and returns its ID.
func (n Notifications) Notify(ctx context.Context, req Notification) (uint32, error) {
	hints := hintDict(req.Hints, map[string]dbusmsg.Item{
		"urgency": dbusmsg.Byte(req.Urgency),
	})
	id, err := dbusmsg.Single[dbusmsg.Uint32](n.iface.Call(ctx, "Notify",
		dbusmsg.Str(req.AppName),
		dbusmsg.Uint32(req.ReplacesID),
		dbusmsg.Str(req.AppIcon),
		dbusmsg.Str(req.Summary),
		dbusmsg.Str(req.Body),
		strArray(req.Actions),
		hints,
		dbusmsg.Int32(req.Timeout)))
	return uint32(id), err
}

// CloseNotification removes a notification from the screen.
func (n Notifications) CloseNotification(ctx context.Context, id uint32) error {
	_, err := n.iface.Call(ctx, "CloseNotification", dbusmsg.Uint32(id))
	return err
}

// Inhibit asks the server to stop displaying notifications, and
// returns a cookie for [Notifications.UnInhibit]. It is a KDE
// extension.
func (n Notifications) Inhibit(ctx context.Context, desktopEntry string, reason string, hints map[string]dbusmsg.Item) (uint32, error) {
	all := hintDict(hints, map[string]dbusmsg.Item{
		"desktop-entry": dbusmsg.Str(desktopEntry),
	})
	cookie, err := dbusmsg.Single[dbusmsg.Uint32](n.iface.Call(ctx, "Inhibit", dbusmsg.Str(desktopEntry), dbusmsg.Str(reason), all))
	return uint32(cookie), err
}

// UnInhibit lifts an inhibition created by [Notifications.Inhibit].
func (n Notifications) UnInhibit(ctx context.Context, cookie uint32) error {
	_, err := n.iface.Call(ctx, "UnInhibit", dbusmsg.Uint32(cookie))
	return err
}

// Inhibited reports whether notifications are currently inhibited.
func (n Notifications) Inhibited(ctx context.Context) (bool, error) {
	v, err := n.iface.GetProperty(ctx, "Inhibited")
	if err != nil {
		return false, err
	}
	b, ok := v.(dbusmsg.Bool)
	if !ok {
		return false, fmt.Errorf("Inhibited property is %s, want a bool", v)
	}
	return bool(b), nil
}

// ActionInvoked reports that the user invoked an action of a
// notification.
type ActionInvoked struct {
	ID        uint32
	ActionKey string
}

// ActivationToken carries the activation token for an action about
// to be reported by [ActionInvoked].
type ActivationToken struct {
	ID    uint32
	Token string
}

// NotificationClosed reports that a notification was closed.
type NotificationClosed struct {
	ID     uint32
	Reason uint32
}

// NotificationReplied carries the user's reply to a notification
// with an inline reply field.
type NotificationReplied struct {
	ID   uint32
	Text string
}

// MatchSignals returns a match for all notification signals.
func MatchSignals() *dbusmsg.Match {
	return dbusmsg.MatchAllSignals().Interface(Interface).Object(Path)
}

// ParseSignal decodes a notification signal. It returns one of
// [ActionInvoked], [ActivationToken], [NotificationClosed] or
// [NotificationReplied].
func ParseSignal(m *dbusmsg.Message) (any, error) {
	if !MatchSignals().Matches(m) {
		return nil, fmt.Errorf("%s is not a notification signal", m)
	}
	items, err := m.Items()
	if err != nil {
		return nil, err
	}
	member := m.Member().Get()
	if len(items) != 2 {
		return nil, fmt.Errorf("unexpected %s body %v", member, items)
	}
	id, ok := items[0].(dbusmsg.Uint32)
	if !ok {
		return nil, fmt.Errorf("unexpected %s body %v", member, items)
	}
	if member == "NotificationClosed" {
		reason, ok := items[1].(dbusmsg.Uint32)
		if !ok {
			return nil, fmt.Errorf("unexpected %s body %v", member, items)
		}
		return NotificationClosed{uint32(id), uint32(reason)}, nil
	}

	s, ok := items[1].(dbusmsg.Str)
	if !ok {
		return nil, fmt.Errorf("unexpected %s body %v", member, items)
	}
	switch member {
	case "ActionInvoked":
		return ActionInvoked{uint32(id), string(s)}, nil
	case "ActivationToken":
		return ActivationToken{uint32(id), string(s)}, nil
	case "NotificationReplied":
		return NotificationReplied{uint32(id), string(s)}, nil
	}
	return nil, fmt.Errorf("unknown notification signal %s", member)
}
