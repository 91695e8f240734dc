package dbusmsg

import (
	"errors"
	"fmt"

	"github.com/danderson/dbusmsg/fragments"
)

// MessageType is the type of a DBus message.
type MessageType byte

const (
	MsgMethodCall MessageType = iota + 1
	MsgMethodReturn
	MsgError
	MsgSignal
)

func (t MessageType) String() string {
	switch t {
	case MsgMethodCall:
		return "method_call"
	case MsgMethodReturn:
		return "method_return"
	case MsgError:
		return "error"
	case MsgSignal:
		return "signal"
	}
	return fmt.Sprintf("MessageType(%d)", byte(t))
}

// Message flags.
const (
	flagNoReplyExpected = 0x1
	flagNoAutoStart     = 0x2
)

const (
	protocolVersion = 1
	// maxMessageSize is the largest message, header and body
	// together, that DBus allows.
	maxMessageSize = 1 << 27
)

// Header field codes.
const (
	fieldPath        = 1
	fieldInterface   = 2
	fieldMember      = 3
	fieldErrName     = 4
	fieldReplySerial = 5
	fieldDestination = 6
	fieldSender      = 7
	fieldSignature   = 8
	fieldNumFDs      = 9
)

// header is a DBus message header
type header struct {
	// Type is the message's type.
	Type MessageType
	// Flags is the message's flag byte.
	Flags byte
	// Version is the DBus protocol version
	Version uint8
	// Length is the length of the message body, not including the
	// header or padding between header and body.
	Length uint32
	// Serial is the serial for this message. It must be non-zero.
	Serial uint32

	// Path is the target object for a call, or the source object
	// for a signal. Required for MsgMethodCall and MsgSignal.
	Path ObjectPath
	// Interface is the interface to target for a call, or the
	// source interface for a signal. Required for MsgSignal.
	Interface string
	// Member is the method name for a call, or signal name for a
	// signal. Required for MsgMethodCall and MsgSignal.
	Member string
	// ErrName is the name of the error that occurred. Required
	// for MsgError.
	ErrName string
	// ReplySerial is the message serial to which this message is
	// replying. Required for MsgMethodReturn and MsgError.
	ReplySerial uint32
	// Destination is the target for a message.
	Destination string
	// Sender is the client ID of the message sender. The message
	// bus populates this value itself, any sent value is ignored
	// and removed.
	Sender string
	// Signature is the type signature of the message body. Required
	// if a message body is present.
	Signature string
	// NumFDs is the number of file descriptors attached to this
	// message. Required if file descriptors are attached to the
	// message.
	NumFDs uint32
}

// Valid checks that the message header is valid for its message type.
func (h *header) Valid() error {
	if h.Serial == 0 {
		return errors.New("invalid message with zero Serial")
	}
	if h.Version != protocolVersion {
		return fmt.Errorf("unsupported protocol version %d", h.Version)
	}
	switch h.Type {
	case 0:
		return errors.New("invalid message with Type 0")
	case MsgMethodCall:
		if h.Path == "" {
			return errors.New("missing required header field Path")
		}
		if h.Member == "" {
			return errors.New("missing required header field Member")
		}
	case MsgMethodReturn:
		if h.ReplySerial == 0 {
			return errors.New("missing required header field ReplySerial")
		}
	case MsgError:
		if h.ReplySerial == 0 {
			return errors.New("missing required header field ReplySerial")
		}
		if h.ErrName == "" {
			return errors.New("missing required header field ErrName")
		}
	case MsgSignal:
		if h.Path == "" {
			return errors.New("missing required header field Path")
		}
		if h.Interface == "" {
			return errors.New("missing required header field Interface")
		}
		if h.Member == "" {
			return errors.New("missing required header field Member")
		}
	default:
		// Unknown message types are suspect, but the protocol requires
		// us to gracefully allow them.
	}
	if h.Path != "" {
		if err := h.Path.valid(); err != nil {
			return err
		}
	}
	if h.Interface != "" {
		if err := validInterface(h.Interface); err != nil {
			return err
		}
	}
	if h.Member != "" {
		if err := validMember(h.Member); err != nil {
			return err
		}
	}
	if h.ErrName != "" {
		if err := validInterface(h.ErrName); err != nil {
			return fmt.Errorf("invalid error name: %w", err)
		}
	}
	return nil
}

// WantReply reports whether this message requires a response.
func (h *header) WantReply() bool {
	return h.Type == MsgMethodCall && h.Flags&flagNoReplyExpected == 0
}

// encode writes the header to e, including the trailing padding that
// precedes the message body.
func (h *header) encode(e *fragments.Encoder) error {
	e.ByteOrderFlag()
	e.Uint8(uint8(h.Type))
	e.Uint8(h.Flags)
	e.Uint8(h.Version)
	e.Uint32(h.Length)
	e.Uint32(h.Serial)

	str := func(code uint8, sig string, v string) error {
		if v == "" {
			return nil
		}
		return e.Struct(func() error {
			e.Uint8(code)
			if err := e.Signature(sig); err != nil {
				return err
			}
			if sig == "g" {
				return e.Signature(v)
			}
			e.String(v)
			return nil
		})
	}
	u32 := func(code uint8, v uint32) error {
		if v == 0 {
			return nil
		}
		return e.Struct(func() error {
			e.Uint8(code)
			if err := e.Signature("u"); err != nil {
				return err
			}
			e.Uint32(v)
			return nil
		})
	}

	err := e.Array(8, func() error {
		return errors.Join(
			str(fieldPath, "o", string(h.Path)),
			str(fieldInterface, "s", h.Interface),
			str(fieldMember, "s", h.Member),
			str(fieldErrName, "s", h.ErrName),
			u32(fieldReplySerial, h.ReplySerial),
			str(fieldDestination, "s", h.Destination),
			str(fieldSender, "s", h.Sender),
			str(fieldSignature, "g", h.Signature),
			u32(fieldNumFDs, h.NumFDs),
		)
	})
	if err != nil {
		return err
	}
	e.Pad(8)
	return nil
}

// decode reads a header from d, including the trailing padding that
// precedes the message body. d.Order is set to the message's byte
// order.
func (h *header) decode(d *fragments.Decoder) error {
	if err := d.ByteOrderFlag(); err != nil {
		return err
	}
	typ, err := d.Uint8()
	if err != nil {
		return err
	}
	h.Type = MessageType(typ)
	if h.Flags, err = d.Uint8(); err != nil {
		return err
	}
	if h.Version, err = d.Uint8(); err != nil {
		return err
	}
	if h.Version != protocolVersion {
		return fmt.Errorf("unsupported protocol version %d", h.Version)
	}
	if h.Length, err = d.Uint32(); err != nil {
		return err
	}
	if h.Length > maxMessageSize {
		return fmt.Errorf("message body length %d exceeds maximum message size", h.Length)
	}
	if h.Serial, err = d.Uint32(); err != nil {
		return err
	}

	_, err = d.Array(8, func(int) error {
		return d.Struct(func() error {
			code, err := d.Uint8()
			if err != nil {
				return err
			}
			sig, err := d.Signature()
			if err != nil {
				return err
			}
			if err := validType(sig); err != nil {
				return fmt.Errorf("header field %d: %w", code, err)
			}
			want := ""
			switch code {
			case fieldPath:
				want = "o"
			case fieldInterface, fieldMember, fieldErrName, fieldDestination, fieldSender:
				want = "s"
			case fieldReplySerial, fieldNumFDs:
				want = "u"
			case fieldSignature:
				want = "g"
			default:
				// Unknown header fields must be ignored.
				return skipValue(d, sig)
			}
			if sig != want {
				return fmt.Errorf("header field %d has type %q, want %q", code, sig, want)
			}
			switch code {
			case fieldPath:
				var s string
				s, err = d.String()
				h.Path = ObjectPath(s)
			case fieldInterface:
				h.Interface, err = d.String()
			case fieldMember:
				h.Member, err = d.String()
			case fieldErrName:
				h.ErrName, err = d.String()
			case fieldDestination:
				h.Destination, err = d.String()
			case fieldSender:
				h.Sender, err = d.String()
			case fieldReplySerial:
				h.ReplySerial, err = d.Uint32()
			case fieldNumFDs:
				h.NumFDs, err = d.Uint32()
			case fieldSignature:
				h.Signature, err = d.Signature()
			}
			return err
		})
	})
	if err != nil {
		return err
	}
	if err := d.Pad(8); err != nil {
		return err
	}
	if d.Offset()+int(h.Length) > maxMessageSize {
		return errors.New("message exceeds maximum message size")
	}
	if h.Signature != "" {
		if err := wellFormedSignature(h.Signature); err != nil {
			return err
		}
	} else if h.Length > 0 {
		return errors.New("message has a body but no signature")
	}
	return nil
}

// wellFormedSignature checks that sig is a sequence of well-bracketed
// types. Stricter checks are left to body decoding, which reports
// them as malformed values.
func wellFormedSignature(sig string) error {
	if len(sig) > 255 {
		return fmt.Errorf("signature %q exceeds maximum length of 255", sig)
	}
	for sig != "" {
		_, rest, err := splitType(sig)
		if err != nil {
			return err
		}
		sig = rest
	}
	return nil
}
