package dbusmsg

import (
	"errors"
	"fmt"
)

// TypeError is the error returned when an Item cannot be represented
// in the DBus wire format, usually because an [Array] contains
// elements of more than one type.
type TypeError struct {
	// Item is a rendering of the item that caused the error.
	Item string
	// Reason is an explanation of why the item isn't representable by
	// DBus.
	Reason error
}

func (e TypeError) Error() string {
	return fmt.Sprintf("dbus cannot represent %s: %s", e.Item, e.Reason)
}

func (e TypeError) Unwrap() error {
	return e.Reason
}

func typeErr(it Item, reason string, args ...any) error {
	return TypeError{itemString(it), fmt.Errorf(reason, args...)}
}

var (
	// ErrMalformedDictEntry is reported when a received dict entry
	// does not contain exactly one key and one value.
	ErrMalformedDictEntry = errors.New("malformed dict entry")
	// ErrMalformedVariant is reported when a received variant does
	// not contain exactly one value.
	ErrMalformedVariant = errors.New("malformed variant")
	// ErrUnsupportedType is reported when a received message
	// contains a type that has no corresponding [Item].
	ErrUnsupportedType = errors.New("unsupported wire type")
	// ErrConstruct is reported when a [Message] cannot be
	// constructed from the provided arguments.
	ErrConstruct = errors.New("message construction failed")
)

// FormatError is the error returned when a received message body
// is not a valid encoding of a sequence of Items.
type FormatError struct {
	// Offset is the position in the message body at which the
	// problem was found.
	Offset int
	// Reason is an explanation of what is wrong.
	Reason error
}

func (e FormatError) Error() string {
	return fmt.Sprintf("malformed message body at offset %d: %s", e.Offset, e.Reason)
}

func (e FormatError) Unwrap() error {
	return e.Reason
}

// Well-known error names.
const (
	errNameFailed        = "org.freedesktop.DBus.Error.Failed"
	errNameNoReply       = "org.freedesktop.DBus.Error.NoReply"
	errNameUnknownMethod = "org.freedesktop.DBus.Error.UnknownMethod"
)

// CallError is the error returned from failed DBus method calls.
type CallError struct {
	// Name is the error name provided by the remote peer.
	Name string
	// Detail is the human-readable explanation of what went wrong.
	Detail string
}

func (e CallError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("call error %s", e.Name)
	}
	return fmt.Sprintf("call error %s: %s", e.Name, e.Detail)
}
