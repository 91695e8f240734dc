package dbusmsg

import (
	"context"
	"fmt"
)

const (
	busName      = "org.freedesktop.DBus"
	busPath      = ObjectPath("/org/freedesktop/DBus")
	busInterface = "org.freedesktop.DBus"
)

func (c *Conn) bus() Interface {
	return c.Peer(busName).Object(busPath).Interface(busInterface)
}

// NameFlag modifies the behavior of [Conn.RequestName].
type NameFlag uint32

const (
	// NameFlagAllowReplacement allows another connection that
	// requests the name with NameFlagReplaceExisting to take it over.
	NameFlagAllowReplacement NameFlag = 1 << iota
	// NameFlagReplaceExisting tries to replace the current owner of
	// the name, if it allowed replacement.
	NameFlagReplaceExisting
	// NameFlagDoNotQueue fails the request rather than waiting in
	// line for the name.
	NameFlagDoNotQueue
)

// RequestNameReply is the outcome of [Conn.RequestName].
type RequestNameReply uint32

const (
	RequestNamePrimaryOwner RequestNameReply = iota + 1
	RequestNameInQueue
	RequestNameExists
	RequestNameAlreadyOwner
)

func (r RequestNameReply) String() string {
	switch r {
	case RequestNamePrimaryOwner:
		return "primary owner"
	case RequestNameInQueue:
		return "in queue"
	case RequestNameExists:
		return "exists"
	case RequestNameAlreadyOwner:
		return "already owner"
	}
	return fmt.Sprintf("RequestNameReply(%d)", uint32(r))
}

// ReleaseNameReply is the outcome of [Conn.ReleaseName].
type ReleaseNameReply uint32

const (
	ReleaseNameReleased ReleaseNameReply = iota + 1
	ReleaseNameNonExistent
	ReleaseNameNotOwner
)

func (r ReleaseNameReply) String() string {
	switch r {
	case ReleaseNameReleased:
		return "released"
	case ReleaseNameNonExistent:
		return "non-existent"
	case ReleaseNameNotOwner:
		return "not owner"
	}
	return fmt.Sprintf("ReleaseNameReply(%d)", uint32(r))
}

// RequestName asks the bus to assign name to this connection.
func (c *Conn) RequestName(ctx context.Context, name string, flags NameFlag) (RequestNameReply, error) {
	resp, err := c.bus().Call(ctx, "RequestName", Str(name), Uint32(flags))
	if err != nil {
		return 0, err
	}
	r, err := one[Uint32](resp)
	if err != nil {
		return 0, err
	}
	switch ret := RequestNameReply(r); ret {
	case RequestNamePrimaryOwner, RequestNameInQueue, RequestNameExists, RequestNameAlreadyOwner:
		return ret, nil
	default:
		return 0, fmt.Errorf("unknown response code %d to RequestName", r)
	}
}

// ReleaseName gives up this connection's claim to name.
func (c *Conn) ReleaseName(ctx context.Context, name string) (ReleaseNameReply, error) {
	resp, err := c.bus().Call(ctx, "ReleaseName", Str(name))
	if err != nil {
		return 0, err
	}
	r, err := one[Uint32](resp)
	if err != nil {
		return 0, err
	}
	switch ret := ReleaseNameReply(r); ret {
	case ReleaseNameReleased, ReleaseNameNonExistent, ReleaseNameNotOwner:
		return ret, nil
	default:
		return 0, fmt.Errorf("unknown response code %d to ReleaseName", r)
	}
}

// AddMatch asks the bus to deliver messages matching rule to this
// connection. See [Match] for a way to construct rules.
func (c *Conn) AddMatch(ctx context.Context, rule string) error {
	_, err := c.bus().Call(ctx, "AddMatch", Str(rule))
	return err
}

// RemoveMatch removes a rule previously added with AddMatch.
func (c *Conn) RemoveMatch(ctx context.Context, rule string) error {
	_, err := c.bus().Call(ctx, "RemoveMatch", Str(rule))
	return err
}

// NameHasOwner reports whether name currently has an owner on the
// bus.
func (c *Conn) NameHasOwner(ctx context.Context, name string) (bool, error) {
	resp, err := c.bus().Call(ctx, "NameHasOwner", Str(name))
	if err != nil {
		return false, err
	}
	ret, err := one[Bool](resp)
	return bool(ret), err
}

// GetNameOwner returns the unique name of the owner of name.
func (c *Conn) GetNameOwner(ctx context.Context, name string) (string, error) {
	resp, err := c.bus().Call(ctx, "GetNameOwner", Str(name))
	if err != nil {
		return "", err
	}
	ret, err := one[Str](resp)
	return string(ret), err
}

// ListNames returns the names currently owned on the bus.
func (c *Conn) ListNames(ctx context.Context) ([]string, error) {
	return c.busStrings(ctx, "ListNames")
}

// ListActivatableNames returns the names that the bus can start
// services for on demand.
func (c *Conn) ListActivatableNames(ctx context.Context) ([]string, error) {
	return c.busStrings(ctx, "ListActivatableNames")
}

// ListQueuedOwners returns the unique names of the connections
// waiting to own name, starting with its current owner.
func (c *Conn) ListQueuedOwners(ctx context.Context, name string) ([]string, error) {
	return c.busStrings(ctx, "ListQueuedOwners", Str(name))
}

func (c *Conn) busStrings(ctx context.Context, method string, args ...Item) ([]string, error) {
	resp, err := c.bus().Call(ctx, method, args...)
	if err != nil {
		return nil, err
	}
	arr, err := one[Array](resp)
	if err != nil {
		return nil, err
	}
	return strs(arr)
}

// GetBusID returns the message bus's unique identifier.
func (c *Conn) GetBusID(ctx context.Context) (string, error) {
	resp, err := c.bus().Call(ctx, "GetId")
	if err != nil {
		return "", err
	}
	ret, err := one[Str](resp)
	return string(ret), err
}

// Ping checks that the message bus is responsive.
func (c *Conn) Ping(ctx context.Context) error {
	return c.Peer(busName).Ping(ctx)
}
