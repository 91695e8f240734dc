package dbusmsg

import (
	"context"
	"fmt"
)

// Object is an object offered by a [Peer].
type Object struct {
	p    Peer
	path ObjectPath
}

func (o Object) Conn() *Conn      { return o.p.Conn() }
func (o Object) Peer() Peer       { return o.p }
func (o Object) Path() ObjectPath { return o.path }

func (o Object) String() string {
	return fmt.Sprintf("%s:%s", o.p, o.path)
}

// Child returns the object at the path rel, relative to o.
func (o Object) Child(rel string) Object {
	return o.p.Object(o.path.Child(rel))
}

// Interface returns a handle to the named interface on the object.
func (o Object) Interface(name string) Interface {
	return Interface{
		o:    o,
		name: name,
	}
}

const ifaceIntrospectable = "org.freedesktop.DBus.Introspectable"

// IntrospectXML returns the raw introspection document of the object.
func (o Object) IntrospectXML(ctx context.Context) (string, error) {
	resp, err := o.Interface(ifaceIntrospectable).Call(ctx, "Introspect")
	if err != nil {
		return "", err
	}
	ret, err := one[Str](resp)
	return string(ret), err
}

// Introspect returns a description of the object's interfaces and
// child objects.
func (o Object) Introspect(ctx context.Context) (*ObjectDescription, error) {
	doc, err := o.IntrospectXML(ctx)
	if err != nil {
		return nil, err
	}
	return ParseIntrospection(doc)
}

// Children returns the object's immediate child objects, as reported
// by introspection.
func (o Object) Children(ctx context.Context) ([]Object, error) {
	desc, err := o.Introspect(ctx)
	if err != nil {
		return nil, err
	}
	ret := make([]Object, 0, len(desc.Children))
	for _, c := range desc.Children {
		ret = append(ret, o.Child(c))
	}
	return ret, nil
}
