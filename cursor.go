package dbusmsg

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/danderson/dbusmsg/fragments"
)

// appendCursor writes values into a message body, checking that the
// values written match the signature of the container being filled.
//
// A cursor with an open child container must not be written to until
// the child is closed with closeContainer.
type appendCursor struct {
	enc *fragments.Encoder
	// kind is the type of container being written, or TagInvalid for
	// the top level of a message body.
	kind TypeTag
	// sig is the accumulated signature at the top level of a message
	// body, the element signature of an array, or the signature of
	// the values still to be written for other containers.
	sig   string
	arr   fragments.ArrayStart
	child *appendCursor
}

func newAppendCursor(enc *fragments.Encoder) *appendCursor {
	return &appendCursor{enc: enc}
}

// expected returns the signature of the next value the cursor
// accepts, or "" if any value is acceptable or none is.
func (c *appendCursor) expected() string {
	switch c.kind {
	case TagInvalid:
		return ""
	case TagArray:
		return c.sig
	}
	first, _, err := splitType(c.sig)
	if err != nil {
		return ""
	}
	return first
}

// expect checks that a value of type sig can be written next, and
// records that it was written.
func (c *appendCursor) expect(sig string) error {
	if c.child != nil {
		return errors.New("cannot write to container while a nested container is open")
	}
	switch c.kind {
	case TagInvalid:
		if len(c.sig)+len(sig) > 255 {
			return fmt.Errorf("message signature %q exceeds maximum length of 255", c.sig+sig)
		}
		c.sig += sig
	case TagArray:
		if sig != c.sig {
			return fmt.Errorf("cannot write %q to array of %q", sig, c.sig)
		}
	default:
		if c.sig == "" {
			return fmt.Errorf("cannot write %q to %s, container is full", sig, c.kind)
		}
		first, rest, err := splitType(c.sig)
		if err != nil {
			return err
		}
		if first != sig {
			return fmt.Errorf("cannot write %q to %s, want %q", sig, c.kind, first)
		}
		c.sig = rest
	}
	return nil
}

// appendFixed writes the fixed-width basic value v of type tag,
// truncated to the width of tag.
func (c *appendCursor) appendFixed(tag TypeTag, v uint64) error {
	sz := tag.fixedSize()
	if sz == 0 {
		return fmt.Errorf("%s is not a fixed-width type", tag)
	}
	if err := c.expect(string(rune(tag))); err != nil {
		return err
	}
	switch sz {
	case 1:
		c.enc.Uint8(uint8(v))
	case 2:
		c.enc.Uint16(uint16(v))
	case 4:
		c.enc.Uint32(uint32(v))
	case 8:
		c.enc.Uint64(v)
	}
	return nil
}

// appendString writes the string-like basic value s of type tag.
func (c *appendCursor) appendString(tag TypeTag, s string) error {
	switch tag {
	case TagString:
		if !utf8.ValidString(s) {
			return fmt.Errorf("string %q is not valid UTF-8", s)
		}
		if strings.IndexByte(s, 0) >= 0 {
			return fmt.Errorf("string %q contains a nul byte", s)
		}
	case TagObjectPath:
		if err := ObjectPath(s).valid(); err != nil {
			return err
		}
	case TagSignature:
		if err := validSignature(s); err != nil {
			return err
		}
	default:
		return fmt.Errorf("%s is not a string type", tag)
	}
	if err := c.expect(string(rune(tag))); err != nil {
		return err
	}
	if tag == TagSignature {
		return c.enc.Signature(s)
	}
	c.enc.String(s)
	return nil
}

// openContainer starts a nested container of type tag, and returns a
// cursor that writes the container's contents.
//
// sig is the element signature for arrays, the contained value's
// signature for variants, and the field signature for structs. It is
// ignored for dict entries, whose signature comes from the enclosing
// array.
func (c *appendCursor) openContainer(tag TypeTag, sig string) (*appendCursor, error) {
	child := &appendCursor{enc: c.enc, kind: tag}
	switch tag {
	case TagArray:
		if err := validType("a" + sig); err != nil {
			return nil, err
		}
		if err := c.expect("a" + sig); err != nil {
			return nil, err
		}
		child.sig = sig
		child.arr = c.enc.OpenArray(sigAlign(sig))
	case TagVariant:
		if err := validType(sig); err != nil {
			return nil, err
		}
		if err := c.expect("v"); err != nil {
			return nil, err
		}
		if err := c.enc.Signature(sig); err != nil {
			return nil, err
		}
		child.sig = sig
	case TagDictEntry:
		if c.kind != TagArray || !strings.HasPrefix(c.sig, "{") {
			return nil, errors.New("dict entries can only be written to dictionary arrays")
		}
		if err := c.expect(c.sig); err != nil {
			return nil, err
		}
		c.enc.Pad(8)
		child.sig = c.sig[1 : len(c.sig)-1]
	case TagStruct:
		if err := validType("(" + sig + ")"); err != nil {
			return nil, err
		}
		if err := c.expect("(" + sig + ")"); err != nil {
			return nil, err
		}
		c.enc.Pad(8)
		child.sig = sig
	default:
		return nil, fmt.Errorf("%s is not a container type", tag)
	}
	c.child = child
	return child, nil
}

// closeContainer finishes writing child, which must be the container
// most recently opened on c.
func (c *appendCursor) closeContainer(child *appendCursor) error {
	if c.child != child {
		return errors.New("closing container that is not open")
	}
	if child.child != nil {
		return fmt.Errorf("closing %s with a nested container still open", child.kind)
	}
	if child.kind == TagArray {
		if err := c.enc.CloseArray(child.arr); err != nil {
			return err
		}
	} else if child.sig != "" {
		return fmt.Errorf("closing incomplete %s, missing values %q", child.kind, child.sig)
	}
	c.child = nil
	return nil
}

// readCursor reads values out of a message body.
//
// Reading a value advances the cursor to the next one. A cursor
// returned by recurse must be finished with before its parent is used
// again, and any values left unread in the child are skipped when the
// parent resumes.
//
// The first error encountered is sticky, and is reported by err and
// by every subsequent read.
type readCursor struct {
	dec *fragments.Decoder
	// kind is the type of container being read, or TagInvalid for the
	// top level of a message body.
	kind TypeTag
	// sig is the element signature of an array, or the signature of
	// the values still to be read for other containers.
	sig string
	// end is the offset at which an array's contents end.
	end   int
	child *readCursor
	e     error
}

func newReadCursor(dec *fragments.Decoder, sig string) *readCursor {
	return &readCursor{dec: dec, sig: sig}
}

func (c *readCursor) fail(err error) error {
	if c.e == nil {
		var fe FormatError
		if errors.As(err, &fe) {
			c.e = err
		} else {
			c.e = FormatError{c.dec.Offset(), err}
		}
	}
	return c.e
}

func (c *readCursor) err() error {
	return c.e
}

// settle finishes reading the child container, if any.
func (c *readCursor) settle() error {
	if c.e != nil {
		return c.e
	}
	if c.child == nil {
		return nil
	}
	child := c.child
	c.child = nil
	if err := child.drain(); err != nil {
		c.e = err
		return err
	}
	return c.advance()
}

// drain skips all remaining values in c.
func (c *readCursor) drain() error {
	if err := c.settle(); err != nil {
		return err
	}
	if c.kind == TagArray {
		if err := c.dec.Discard(c.end - c.dec.Offset()); err != nil {
			return c.fail(err)
		}
		return nil
	}
	for c.sig != "" {
		if err := c.next(); err != nil {
			return err
		}
	}
	return nil
}

// advance moves past the value just read.
func (c *readCursor) advance() error {
	if c.kind == TagArray {
		if off := c.dec.Offset(); off > c.end {
			return c.fail(fmt.Errorf("array element overran array end by %d bytes", off-c.end))
		}
		return nil
	}
	_, rest, err := splitType(c.sig)
	if err != nil {
		return c.fail(err)
	}
	c.sig = rest
	return nil
}

// current returns the signature of the value at the cursor, or "" if
// there are no more values.
func (c *readCursor) current() (string, error) {
	if err := c.settle(); err != nil {
		return "", err
	}
	if c.kind == TagArray {
		if c.dec.Offset() >= c.end {
			return "", nil
		}
		return c.sig, nil
	}
	if c.sig == "" {
		return "", nil
	}
	first, _, err := splitType(c.sig)
	if err != nil {
		return "", c.fail(err)
	}
	return first, nil
}

// typ returns the type of the value at the cursor, or TagInvalid if
// there are no more values or the cursor has failed.
func (c *readCursor) typ() TypeTag {
	sig, err := c.current()
	if err != nil || sig == "" {
		return TagInvalid
	}
	return tagOf(sig[0])
}

// fixed reads a fixed-width basic value.
func (c *readCursor) fixed() (uint64, error) {
	sig, err := c.current()
	if err != nil {
		return 0, err
	}
	if sig == "" {
		return 0, c.fail(errors.New("read past end of container"))
	}
	var ret uint64
	switch tagOf(sig[0]).fixedSize() {
	case 1:
		var v uint8
		v, err = c.dec.Uint8()
		ret = uint64(v)
	case 2:
		var v uint16
		v, err = c.dec.Uint16()
		ret = uint64(v)
	case 4:
		var v uint32
		v, err = c.dec.Uint32()
		ret = uint64(v)
	case 8:
		ret, err = c.dec.Uint64()
	default:
		return 0, c.fail(fmt.Errorf("%q is not a fixed-width type", sig))
	}
	if err != nil {
		return 0, c.fail(err)
	}
	return ret, c.advance()
}

// str reads a string, object path or signature.
func (c *readCursor) str() (string, error) {
	sig, err := c.current()
	if err != nil {
		return "", err
	}
	var ret string
	switch sig {
	case "s", "o":
		ret, err = c.dec.String()
	case "g":
		ret, err = c.dec.Signature()
	default:
		return "", c.fail(fmt.Errorf("%q is not a string type", sig))
	}
	if err != nil {
		return "", c.fail(err)
	}
	return ret, c.advance()
}

// recurse enters the container at the cursor.
func (c *readCursor) recurse() (*readCursor, error) {
	sig, err := c.current()
	if err != nil {
		return nil, err
	}
	if sig == "" {
		return nil, c.fail(errors.New("read past end of container"))
	}
	child := &readCursor{dec: c.dec, kind: tagOf(sig[0])}
	switch child.kind {
	case TagArray:
		child.sig = sig[1:]
		child.end, err = c.dec.OpenArray(sigAlign(child.sig))
	case TagVariant:
		child.sig, err = c.dec.Signature()
		if err == nil {
			err = validSignature(child.sig)
		}
	case TagStruct, TagDictEntry:
		child.sig = sig[1 : len(sig)-1]
		err = c.dec.Pad(8)
	default:
		return nil, c.fail(fmt.Errorf("%q is not a container type", sig))
	}
	if err != nil {
		return nil, c.fail(err)
	}
	c.child = child
	return child, nil
}

// next skips over the value at the cursor.
func (c *readCursor) next() error {
	sig, err := c.current()
	if err != nil {
		return err
	}
	if sig == "" {
		return nil
	}
	if err := skipValue(c.dec, sig); err != nil {
		return c.fail(err)
	}
	return c.advance()
}

// skipValue consumes one value of type sig from dec.
func skipValue(dec *fragments.Decoder, sig string) error {
	t := tagOf(sig[0])
	if sz := t.fixedSize(); sz > 0 {
		if err := dec.Pad(sz); err != nil {
			return err
		}
		return dec.Discard(sz)
	}
	switch t {
	case TagString, TagObjectPath:
		_, err := dec.String()
		return err
	case TagSignature:
		_, err := dec.Signature()
		return err
	case TagArray:
		end, err := dec.OpenArray(sigAlign(sig[1:]))
		if err != nil {
			return err
		}
		return dec.Discard(end - dec.Offset())
	case TagVariant:
		inner, err := dec.Signature()
		if err != nil {
			return err
		}
		if err := validSignature(inner); err != nil {
			return err
		}
		return skipValues(dec, inner)
	case TagStruct, TagDictEntry:
		if err := dec.Pad(8); err != nil {
			return err
		}
		return skipValues(dec, sig[1:len(sig)-1])
	}
	return fmt.Errorf("cannot skip unknown type %q", sig)
}

// skipValues consumes a sequence of values described by sig.
func skipValues(dec *fragments.Decoder, sig string) error {
	for sig != "" {
		first, rest, err := splitType(sig)
		if err != nil {
			return err
		}
		if err := skipValue(dec, first); err != nil {
			return err
		}
		sig = rest
	}
	return nil
}
