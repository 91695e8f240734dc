package fragments

import (
	"fmt"
	"io"
)

// A Decoder reads DBus wire format values from a byte stream.
//
// Reads skip the alignment padding that precedes each value, and
// padding must be zero. Alignment is relative to the start of In, so
// a Decoder must be positioned at the start of a message.
type Decoder struct {
	// Order is the byte order of multi-byte values.
	Order ByteOrder
	// In is the input stream.
	In io.Reader

	// offset is the number of bytes consumed from In.
	offset  int
	scratch [8]byte
}

// Offset returns the number of bytes consumed from In so far.
func (d *Decoder) Offset() int {
	return d.offset
}

// Discard consumes and throws away the next n bytes.
func (d *Decoder) Discard(n int) error {
	if n <= 0 {
		return nil
	}
	got, err := io.CopyN(io.Discard, d.In, int64(n))
	d.offset += int(got)
	return err
}

// Pad consumes the zero bytes that precede a value aligned to align
// bytes.
func (d *Decoder) Pad(align int) error {
	n := (align - d.offset%align) % align
	if n == 0 {
		return nil
	}
	pad, err := d.fill(n)
	if err != nil {
		return err
	}
	for _, b := range pad {
		if b != 0 {
			return fmt.Errorf("non-zero padding byte at offset %d", d.offset-n)
		}
	}
	return nil
}

// fill reads exactly n <= 8 bytes into the scratch buffer.
func (d *Decoder) fill(n int) ([]byte, error) {
	bs := d.scratch[:n]
	if _, err := io.ReadFull(d.In, bs); err != nil {
		return nil, err
	}
	d.offset += n
	return bs, nil
}

// fixed reads a size-byte value, after its alignment padding.
func (d *Decoder) fixed(size int) ([]byte, error) {
	if err := d.Pad(size); err != nil {
		return nil, err
	}
	return d.fill(size)
}

// text reads n bytes of string data and its nul terminator.
func (d *Decoder) text(n int, what string) (string, error) {
	if n < 0 || n > MaxArrayLen {
		return "", fmt.Errorf("%s length %d exceeds maximum of %d", what, n, MaxArrayLen)
	}
	bs := make([]byte, n+1)
	if _, err := io.ReadFull(d.In, bs); err != nil {
		return "", err
	}
	d.offset += len(bs)
	if bs[n] != 0 {
		return "", fmt.Errorf("%s is missing nul terminator", what)
	}
	return string(bs[:n]), nil
}

// String reads a DBus string or object path.
func (d *Decoder) String() (string, error) {
	n, err := d.Uint32()
	if err != nil {
		return "", err
	}
	return d.text(int(n), "string")
}

// Signature reads a DBus type signature.
func (d *Decoder) Signature() (string, error) {
	n, err := d.Uint8()
	if err != nil {
		return "", err
	}
	return d.text(int(n), "signature")
}

// Uint8 reads a uint8.
func (d *Decoder) Uint8() (uint8, error) {
	bs, err := d.fill(1)
	if err != nil {
		return 0, err
	}
	return bs[0], nil
}

// Uint16 reads a uint16.
func (d *Decoder) Uint16() (uint16, error) {
	bs, err := d.fixed(2)
	if err != nil {
		return 0, err
	}
	return d.Order.Uint16(bs), nil
}

// Uint32 reads a uint32.
func (d *Decoder) Uint32() (uint32, error) {
	bs, err := d.fixed(4)
	if err != nil {
		return 0, err
	}
	return d.Order.Uint32(bs), nil
}

// Uint64 reads a uint64.
func (d *Decoder) Uint64() (uint64, error) {
	bs, err := d.fixed(8)
	if err != nil {
		return 0, err
	}
	return d.Order.Uint64(bs), nil
}

// OpenArray reads an array header and the padding before its first
// element, and returns the offset at which the array's contents
// end. Elements remain while [Decoder.Offset] is less than end.
//
// elemAlign is the alignment of the element type. The padding is
// present even when the array is empty.
func (d *Decoder) OpenArray(elemAlign int) (end int, err error) {
	n, err := d.Uint32()
	if err != nil {
		return 0, err
	}
	if n > MaxArrayLen {
		return 0, fmt.Errorf("array length %d exceeds maximum of %d", n, MaxArrayLen)
	}
	if err := d.Pad(elemAlign); err != nil {
		return 0, err
	}
	return d.offset + int(n), nil
}

// Array reads an array, calling readElement with the index of each
// element until the array's contents are consumed. It returns the
// number of elements read.
func (d *Decoder) Array(elemAlign int, readElement func(int) error) (int, error) {
	end, err := d.OpenArray(elemAlign)
	if err != nil {
		return 0, err
	}
	n := 0
	for ; d.offset < end; n++ {
		if err := readElement(n); err != nil {
			return n, err
		}
	}
	if d.offset > end {
		return n, fmt.Errorf("array elements overran array end by %d bytes", d.offset-end)
	}
	return n, nil
}

// Struct skips the padding before a struct, then calls fields to read
// its contents.
func (d *Decoder) Struct(fields func() error) error {
	if err := d.Pad(8); err != nil {
		return err
	}
	return fields()
}

// ByteOrderFlag reads a message's byte order flag, and sets
// [Decoder.Order] to match. On error, Order is unchanged.
func (d *Decoder) ByteOrderFlag() error {
	v, err := d.Uint8()
	if err != nil {
		return err
	}
	o, err := OrderForFlag(v)
	if err != nil {
		return err
	}
	d.Order = o
	return nil
}
