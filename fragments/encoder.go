package fragments

import (
	"fmt"
)

// MaxArrayLen is the maximum length in bytes of a DBus array's
// contents.
const MaxArrayLen = 1 << 26

// An Encoder appends DBus wire format values to a byte slice.
//
// Values are preceded by the zero padding their alignment requires,
// except for bytes passed to [Encoder.Write]. Alignment is relative
// to the start of Out, so Out must begin at the start of a message or
// at an offset that is a multiple of 8.
type Encoder struct {
	// Order is the byte order of multi-byte values.
	Order ByteOrder
	// Out is the encoded output.
	Out []byte
}

var zeros [8]byte

// Pad appends zero bytes until the length of Out is a multiple of
// align.
func (e *Encoder) Pad(align int) {
	if n := (align - len(e.Out)%align) % align; n > 0 {
		e.Out = append(e.Out, zeros[:n]...)
	}
}

// Write appends bs to the output without padding or framing.
func (e *Encoder) Write(bs []byte) {
	e.Out = append(e.Out, bs...)
}

// String appends a DBus string or object path.
func (e *Encoder) String(s string) {
	e.Uint32(uint32(len(s)))
	e.Out = append(append(e.Out, s...), 0)
}

// Signature appends the type signature sig. Signatures longer than
// 255 bytes cannot be represented, and nothing is written.
func (e *Encoder) Signature(sig string) error {
	if len(sig) > 255 {
		return fmt.Errorf("signature %q exceeds maximum length of 255", sig)
	}
	e.Out = append(append(append(e.Out, byte(len(sig))), sig...), 0)
	return nil
}

// Uint8 appends a uint8.
func (e *Encoder) Uint8(v uint8) {
	e.Out = append(e.Out, v)
}

// Uint16 appends a uint16.
func (e *Encoder) Uint16(v uint16) {
	e.Pad(2)
	e.Out = e.Order.AppendUint16(e.Out, v)
}

// Uint32 appends a uint32.
func (e *Encoder) Uint32(v uint32) {
	e.Pad(4)
	e.Out = e.Order.AppendUint32(e.Out, v)
}

// Uint64 appends a uint64.
func (e *Encoder) Uint64(v uint64) {
	e.Pad(8)
	e.Out = e.Order.AppendUint64(e.Out, v)
}

// ArrayStart records where an array opened by [Encoder.OpenArray]
// begins.
type ArrayStart struct {
	lenOffset int
	start     int
}

// OpenArray appends an array header with a placeholder length,
// followed by the padding for elements aligned to elemAlign. The
// padding is written even if the array ends up empty. The elements
// follow, and [Encoder.CloseArray] fills in the length.
func (e *Encoder) OpenArray(elemAlign int) ArrayStart {
	e.Uint32(0)
	lenOffset := len(e.Out) - 4
	e.Pad(elemAlign)
	return ArrayStart{lenOffset, len(e.Out)}
}

// CloseArray records the length of the array started at a.
func (e *Encoder) CloseArray(a ArrayStart) error {
	n := len(e.Out) - a.start
	if n > MaxArrayLen {
		return fmt.Errorf("array length %d exceeds maximum of %d", n, MaxArrayLen)
	}
	e.Order.PutUint32(e.Out[a.lenOffset:], uint32(n))
	return nil
}

// Array appends an array whose elements are written by
// elements. Each element must pad itself to its alignment.
func (e *Encoder) Array(elemAlign int, elements func() error) error {
	a := e.OpenArray(elemAlign)
	if err := elements(); err != nil {
		return err
	}
	return e.CloseArray(a)
}

// Struct pads to a struct boundary, then calls fields to write the
// struct's contents.
func (e *Encoder) Struct(fields func() error) error {
	e.Pad(8)
	return fields()
}

// ByteOrderFlag appends the message byte order flag for
// [Encoder.Order].
func (e *Encoder) ByteOrderFlag() {
	e.Out = append(e.Out, e.Order.Flag())
}
