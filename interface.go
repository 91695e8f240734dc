package dbusmsg

import (
	"context"
	"fmt"
)

// Interface is a set of methods, properties and signals offered by an
// [Object].
type Interface struct {
	o    Object
	name string
}

// Conn returns the DBus connection associated with the interface.
func (f Interface) Conn() *Conn { return f.o.Conn() }

// Peer returns the Peer that is offering the interface.
func (f Interface) Peer() Peer { return f.o.Peer() }

// Object returns the Object that implements the interface.
func (f Interface) Object() Object { return f.o }

// Name returns the name of the interface.
func (f Interface) Name() string { return f.name }

func (f Interface) String() string {
	if f.name == "" {
		return fmt.Sprintf("%s:<no interface>", f.Object())
	}
	return fmt.Sprintf("%s:%s", f.Object(), f.name)
}

// Call calls method on the interface with the given arguments, and
// returns the values in the reply.
//
// It is the caller's responsibility to match the arguments to the
// signature of the method being invoked.
func (f Interface) Call(ctx context.Context, method string, args ...Item) ([]Item, error) {
	m, err := f.newCall(method, args)
	if err != nil {
		return nil, err
	}
	resp, err := f.Conn().SendWithReply(ctx, m)
	if err != nil {
		return nil, err
	}
	defer resp.Close()
	return resp.Items()
}

// OneWay calls method on the interface with the given arguments, and
// tells the peer not to send a reply.
//
// OneWay returns after the method call is successfully sent. Since
// the response is suppressed at the bus level, there is no way to
// know whether the call was delivered to anyone, or acted upon.
func (f Interface) OneWay(method string, args ...Item) error {
	m, err := f.newCall(method, args)
	if err != nil {
		return err
	}
	_, err = f.Conn().Send(m)
	return err
}

func (f Interface) newCall(method string, args []Item) (*Message, error) {
	m, err := NewMethodCall(f.Peer().Name(), f.Object().Path(), f.name, method)
	if err != nil {
		return nil, err
	}
	if err := m.AppendItems(args...); err != nil {
		return nil, err
	}
	return m, nil
}

const ifaceProps = "org.freedesktop.DBus.Properties"

// GetProperty returns the value of the named property.
func (f Interface) GetProperty(ctx context.Context, name string) (Item, error) {
	resp, err := f.Object().Interface(ifaceProps).Call(ctx, "Get", Str(f.name), Str(name))
	if err != nil {
		return nil, err
	}
	v, err := one[Variant](resp)
	if err != nil {
		return nil, err
	}
	return v.Value, nil
}

// SetProperty sets the named property to value.
//
// It is the caller's responsibility to match the value's type to the
// type offered by the interface.
func (f Interface) SetProperty(ctx context.Context, name string, value Item) error {
	_, err := f.Object().Interface(ifaceProps).Call(ctx, "Set", Str(f.name), Str(name), Variant{value})
	return err
}

// GetAllProperties returns all the properties exported by the
// interface.
func (f Interface) GetAllProperties(ctx context.Context) (map[string]Item, error) {
	resp, err := f.Object().Interface(ifaceProps).Call(ctx, "GetAll", Str(f.name))
	if err != nil {
		return nil, err
	}
	dict, err := one[Array](resp)
	if err != nil {
		return nil, err
	}
	ret := make(map[string]Item, len(dict.Items))
	for _, it := range dict.Items {
		ent, ok := it.(DictEntry)
		if !ok {
			return nil, fmt.Errorf("unexpected property list element %s", it)
		}
		k, ok := ent.Key.(Str)
		if !ok {
			return nil, fmt.Errorf("unexpected property name %s", ent.Key)
		}
		v, ok := ent.Value.(Variant)
		if !ok {
			return nil, fmt.Errorf("unexpected property value %s", ent.Value)
		}
		ret[string(k)] = v.Value
	}
	return ret, nil
}

// Single returns the only value of a method reply, which must be of
// type T. It wraps the results of [Interface.Call]:
//
//	locked, err := dbusmsg.Single[dbusmsg.Bool](iface.Call(ctx, "GetActive"))
func Single[T Item](items []Item, err error) (T, error) {
	if err != nil {
		var zero T
		return zero, err
	}
	return one[T](items)
}

// one returns the single value in items, which must be of type T.
func one[T Item](items []Item) (T, error) {
	var zero T
	if len(items) != 1 {
		return zero, fmt.Errorf("got %d values in reply, want 1 %s", len(items), zero.Tag())
	}
	ret, ok := items[0].(T)
	if !ok {
		return zero, fmt.Errorf("got %s in reply, want %s", items[0], zero.Tag())
	}
	return ret, nil
}

// strs returns the strings in an array of strings.
func strs(arr Array) ([]string, error) {
	ret := make([]string, 0, len(arr.Items))
	for _, it := range arr.Items {
		s, ok := it.(Str)
		if !ok {
			return nil, fmt.Errorf("got %s in string array", it)
		}
		ret = append(ret, string(s))
	}
	return ret, nil
}
