package dbusmsg

import (
	"context"
)

// Peer is a bus participant, identified by a bus name.
type Peer struct {
	c    *Conn
	name string
}

// Peer returns a Peer for the given bus name.
//
// The returned value is a purely local handle. It does not indicate
// that the requested peer exists, or that it is currently reachable.
func (c *Conn) Peer(name string) Peer {
	return Peer{
		c:    c,
		name: name,
	}
}

func (p Peer) Conn() *Conn  { return p.c }
func (p Peer) Name() string { return p.name }

func (p Peer) String() string {
	if p.c == nil {
		return "<no peer>"
	}
	return p.name
}

// Ping checks that the peer is reachable and responsive.
func (p Peer) Ping(ctx context.Context) error {
	_, err := p.Object("/").Interface(ifacePeer).Call(ctx, "Ping")
	return err
}

// MachineID returns the identifier of the machine the peer runs on.
func (p Peer) MachineID(ctx context.Context) (string, error) {
	resp, err := p.Object("/").Interface(ifacePeer).Call(ctx, "GetMachineId")
	if err != nil {
		return "", err
	}
	ret, err := one[Str](resp)
	return string(ret), err
}

// Object returns a handle to the object at path offered by the peer.
func (p Peer) Object(path ObjectPath) Object {
	return Object{
		p:    p,
		path: path,
	}
}
