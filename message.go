package dbusmsg

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/creachadair/mds/value"
	"github.com/danderson/dbusmsg/fragments"
)

// Message is a DBus message: a header identifying the message's
// purpose and routing, and a body of [Item] values.
type Message struct {
	hdr   header
	order fragments.ByteOrder
	body  []byte
	files []*os.File
}

func newMessage(t MessageType) *Message {
	return &Message{
		hdr: header{
			Type:    t,
			Version: protocolVersion,
		},
		order: fragments.NativeEndian,
	}
}

func constructErr(err error) error {
	return fmt.Errorf("%w: %w", ErrConstruct, err)
}

// NewMethodCall returns a message that calls method on the given
// interface of the object at path, offered by the bus peer dest.
//
// dest may be empty when calling a peer directly rather than through
// a bus. iface may be empty, in which case the receiving peer picks
// the first interface that has a matching method.
func NewMethodCall(dest string, path ObjectPath, iface, method string) (*Message, error) {
	if dest != "" {
		if err := validBusName(dest); err != nil {
			return nil, constructErr(err)
		}
	}
	if err := path.valid(); err != nil {
		return nil, constructErr(err)
	}
	if iface != "" {
		if err := validInterface(iface); err != nil {
			return nil, constructErr(err)
		}
	}
	if err := validMember(method); err != nil {
		return nil, constructErr(err)
	}
	ret := newMessage(MsgMethodCall)
	ret.hdr.Destination = dest
	ret.hdr.Path = path
	ret.hdr.Interface = iface
	ret.hdr.Member = method
	return ret, nil
}

// NewSignal returns a signal message named member on iface, emitted
// by the object at path.
func NewSignal(path ObjectPath, iface, member string) (*Message, error) {
	if err := path.valid(); err != nil {
		return nil, constructErr(err)
	}
	if err := validInterface(iface); err != nil {
		return nil, constructErr(err)
	}
	if err := validMember(member); err != nil {
		return nil, constructErr(err)
	}
	ret := newMessage(MsgSignal)
	ret.hdr.Path = path
	ret.hdr.Interface = iface
	ret.hdr.Member = member
	return ret, nil
}

// NewMethodReturn returns a successful reply to call.
func NewMethodReturn(call *Message) (*Message, error) {
	if call == nil || call.hdr.Serial == 0 {
		return nil, constructErr(errors.New("cannot reply to a message that was never sent"))
	}
	ret := newMessage(MsgMethodReturn)
	ret.hdr.ReplySerial = call.hdr.Serial
	ret.hdr.Destination = call.hdr.Sender
	return ret, nil
}

// NewErrorReply returns an error reply to call, with the given error
// name and human-readable explanation.
func NewErrorReply(call *Message, name, text string) (*Message, error) {
	if call == nil || call.hdr.Serial == 0 {
		return nil, constructErr(errors.New("cannot reply to a message that was never sent"))
	}
	if err := validInterface(name); err != nil {
		return nil, constructErr(fmt.Errorf("invalid error name: %w", err))
	}
	ret := newMessage(MsgError)
	ret.hdr.ReplySerial = call.hdr.Serial
	ret.hdr.Destination = call.hdr.Sender
	ret.hdr.ErrName = name
	if err := ret.AppendItems(Str(text)); err != nil {
		return nil, constructErr(err)
	}
	return ret, nil
}

// Type returns the message's type.
func (m *Message) Type() MessageType { return m.hdr.Type }

// Serial returns the message's serial number, or 0 if the message
// has not been sent.
func (m *Message) Serial() uint32 { return m.hdr.Serial }

// ReplySerial returns the serial number of the message that m is a
// reply to.
func (m *Message) ReplySerial() value.Maybe[uint32] {
	return maybe(m.hdr.ReplySerial)
}

// Path returns the object path that a method call is sent to, or
// that a signal is emitted from.
func (m *Message) Path() value.Maybe[ObjectPath] { return maybe(m.hdr.Path) }

// Interface returns the interface of a method call or signal.
func (m *Message) Interface() value.Maybe[string] { return maybe(m.hdr.Interface) }

// Member returns the method name of a call, or the name of a signal.
func (m *Message) Member() value.Maybe[string] { return maybe(m.hdr.Member) }

// Sender returns the unique bus name of the message's sender.
func (m *Message) Sender() value.Maybe[string] { return maybe(m.hdr.Sender) }

// Destination returns the bus name that the message is addressed to.
func (m *Message) Destination() value.Maybe[string] { return maybe(m.hdr.Destination) }

// ErrorName returns the name of the error carried by an error reply.
func (m *Message) ErrorName() value.Maybe[string] { return maybe(m.hdr.ErrName) }

// Signature returns the type signature of the message body.
func (m *Message) Signature() string { return m.hdr.Signature }

// NoReplyExpected reports whether the sender of a method call does
// not want a reply.
func (m *Message) NoReplyExpected() bool { return m.hdr.Flags&flagNoReplyExpected != 0 }

// SetNoAutoStart sets whether the bus should refrain from starting
// the destination service of a method call, if it isn't running.
func (m *Message) SetNoAutoStart(noAutoStart bool) {
	if noAutoStart {
		m.hdr.Flags |= flagNoAutoStart
	} else {
		m.hdr.Flags &^= flagNoAutoStart
	}
}

// Files returns the file descriptors that were received along with
// the message. The files are owned by the message, and are closed by
// [Message.Close].
func (m *Message) Files() []*os.File { return m.files }

func maybe[T comparable](v T) value.Maybe[T] {
	var zero T
	if v == zero {
		return value.Absent[T]()
	}
	return value.Just(v)
}

// Items decodes and returns the values in the message body.
//
// A message with no body has no items, and Items returns a nil
// slice and no error.
func (m *Message) Items() ([]Item, error) {
	if len(m.body) == 0 && m.hdr.Signature == "" {
		return nil, nil
	}
	dec := &fragments.Decoder{
		Order: m.order,
		In:    bytes.NewReader(m.body),
	}
	ret, err := readItems(newReadCursor(dec, m.hdr.Signature))
	if err != nil {
		return nil, err
	}
	if dec.Offset() != len(m.body) {
		return nil, FormatError{dec.Offset(), fmt.Errorf("%d trailing bytes after message values", len(m.body)-dec.Offset())}
	}
	return ret, nil
}

// AppendItems appends items to the message body.
//
// If any of the items cannot be encoded, AppendItems returns an error
// and the message body is left unchanged.
func (m *Message) AppendItems(items ...Item) error {
	enc := &fragments.Encoder{
		Order: m.order,
		Out:   m.body,
	}
	c := newAppendCursor(enc)
	c.sig = m.hdr.Signature
	for _, it := range items {
		if err := appendItem(c, it); err != nil {
			var te TypeError
			if !errors.As(err, &te) {
				err = TypeError{itemString(it), err}
			}
			return err
		}
	}
	if len(enc.Out) > maxMessageSize {
		return fmt.Errorf("message body of %d bytes exceeds maximum message size", len(enc.Out))
	}
	m.body = enc.Out
	m.hdr.Signature = c.sig
	m.hdr.Length = uint32(len(m.body))
	return nil
}

// AsResult returns m if it is not an error reply, or a [CallError]
// describing the error otherwise.
func (m *Message) AsResult() (*Message, error) {
	if m.hdr.Type != MsgError {
		return m, nil
	}
	ret := CallError{Name: m.hdr.ErrName}
	if strings.HasPrefix(m.hdr.Signature, "s") {
		dec := &fragments.Decoder{
			Order: m.order,
			In:    bytes.NewReader(m.body),
		}
		c := newReadCursor(dec, m.hdr.Signature)
		if s, err := c.str(); err == nil {
			ret.Detail = s
		}
	}
	return nil, ret
}

// Close releases the file descriptors attached to the message.
func (m *Message) Close() error {
	var errs []error
	for _, f := range m.files {
		errs = append(errs, f.Close())
	}
	m.files = nil
	return errors.Join(errs...)
}

func (m *Message) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s serial=%d", m.hdr.Type, m.hdr.Serial)
	kv := func(k, v string) {
		if v != "" {
			fmt.Fprintf(&b, " %s=%s", k, v)
		}
	}
	if m.hdr.ReplySerial != 0 {
		fmt.Fprintf(&b, " reply_serial=%d", m.hdr.ReplySerial)
	}
	kv("sender", m.hdr.Sender)
	kv("destination", m.hdr.Destination)
	kv("path", string(m.hdr.Path))
	kv("interface", m.hdr.Interface)
	kv("member", m.hdr.Member)
	kv("error_name", m.hdr.ErrName)
	kv("signature", m.hdr.Signature)
	return b.String()
}

// encode returns the wire encoding of m with the given serial number.
func (m *Message) encode(serial uint32) ([]byte, error) {
	hdr := m.hdr
	hdr.Serial = serial
	hdr.Length = uint32(len(m.body))
	if err := hdr.Valid(); err != nil {
		return nil, err
	}
	enc := &fragments.Encoder{Order: m.order}
	if err := hdr.encode(enc); err != nil {
		return nil, err
	}
	if len(enc.Out)+len(m.body) > maxMessageSize {
		return nil, errors.New("message exceeds maximum message size")
	}
	enc.Write(m.body)
	return enc.Out, nil
}

// decodeMessage reads one message from r. File descriptors announced
// by the header are not collected.
func decodeMessage(r io.Reader) (*Message, error) {
	dec := &fragments.Decoder{
		Order: fragments.NativeEndian,
		In:    r,
	}
	ret := &Message{}
	if err := ret.hdr.decode(dec); err != nil {
		return nil, err
	}
	ret.order = dec.Order
	ret.body = make([]byte, ret.hdr.Length)
	if _, err := io.ReadFull(r, ret.body); err != nil {
		return nil, err
	}
	return ret, nil
}
