package dbusmsg

import (
	"errors"
	"fmt"
	"strings"
)

// appendItem writes it to c.
func appendItem(c *appendCursor, it Item) error {
	switch v := it.(type) {
	case nil:
		return typeErr(it, "nil Item")
	case Str:
		return c.appendString(TagString, string(v))
	case Bool:
		var u uint64
		if v {
			u = 1
		}
		return c.appendFixed(TagBoolean, u)
	case Byte:
		return c.appendFixed(TagByte, uint64(v))
	case Int16:
		return c.appendFixed(TagInt16, uint64(v))
	case Int32:
		return c.appendFixed(TagInt32, uint64(v))
	case Int64:
		return c.appendFixed(TagInt64, uint64(v))
	case Uint16:
		return c.appendFixed(TagUint16, uint64(v))
	case Uint32:
		return c.appendFixed(TagUint32, uint64(v))
	case Uint64:
		return c.appendFixed(TagUint64, uint64(v))
	case Array:
		return appendArray(c, v)
	case Variant:
		sig, err := SignatureOf(v.Value)
		if err != nil {
			return err
		}
		child, err := c.openContainer(TagVariant, sig)
		if err != nil {
			return typeErr(v, "%w", err)
		}
		if err := appendItem(child, v.Value); err != nil {
			return err
		}
		return c.closeContainer(child)
	case DictEntry:
		child, err := c.openContainer(TagDictEntry, "")
		if err != nil {
			return typeErr(v, "%w", err)
		}
		if err := appendItem(child, v.Key); err != nil {
			return err
		}
		if err := appendItem(child, v.Value); err != nil {
			return err
		}
		if err := c.closeContainer(child); err != nil {
			return typeErr(v, "%w", err)
		}
		return nil
	}
	panic(fmt.Sprintf("unknown Item type %T", it))
}

func appendArray(c *appendCursor, a Array) error {
	sig, err := arrayElemSignature(a)
	if err != nil {
		// An empty array's element type can't be inferred from its
		// contents, but the enclosing container may dictate it.
		exp := c.expected()
		if len(a.Items) > 0 || !strings.HasPrefix(exp, "a") || (a.Elem != TagInvalid && tagOf(exp[1]) != a.Elem) {
			return err
		}
		sig = exp[1:]
	}
	elem := a.Elem
	if elem == TagInvalid && len(a.Items) > 0 && a.Items[0] != nil {
		elem = a.Items[0].Tag()
	}
	child, err := c.openContainer(TagArray, sig)
	if err != nil {
		return typeErr(a, "%w", err)
	}
	for i, it := range a.Items {
		if it == nil {
			return typeErr(a, "nil element %d", i)
		}
		if it.Tag() != elem {
			return typeErr(a, "element %d has type %s, want %s", i, it.Tag(), elem)
		}
		if err := appendItem(child, it); err != nil {
			var te TypeError
			if errors.As(err, &te) {
				return err
			}
			return typeErr(a, "element %d: %w", i, err)
		}
	}
	return c.closeContainer(child)
}

// readItems reads all the remaining values in c.
func readItems(c *readCursor) ([]Item, error) {
	var ret []Item
	for c.typ() != TagInvalid {
		it, err := readItem(c)
		if err != nil {
			return nil, err
		}
		ret = append(ret, it)
	}
	if err := c.err(); err != nil {
		return nil, err
	}
	return ret, nil
}

// readItem reads the value at c.
func readItem(c *readCursor) (Item, error) {
	switch t := c.typ(); t {
	case TagByte, TagBoolean, TagInt16, TagInt32, TagInt64, TagUint16, TagUint32, TagUint64:
		v, err := c.fixed()
		if err != nil {
			return nil, err
		}
		switch t {
		case TagByte:
			return Byte(v), nil
		case TagBoolean:
			return Bool(v != 0), nil
		case TagInt16:
			return Int16(v), nil
		case TagInt32:
			return Int32(v), nil
		case TagInt64:
			return Int64(v), nil
		case TagUint16:
			return Uint16(v), nil
		case TagUint32:
			return Uint32(v), nil
		default:
			return Uint64(v), nil
		}
	case TagString:
		s, err := c.str()
		if err != nil {
			return nil, err
		}
		return Str(s), nil
	case TagArray:
		child, err := c.recurse()
		if err != nil {
			return nil, err
		}
		items, err := readItems(child)
		if err != nil {
			return nil, err
		}
		ret := Array{Items: items}
		if len(items) > 0 {
			ret.Elem = items[0].Tag()
		}
		return ret, nil
	case TagVariant:
		off := c.dec.Offset()
		child, err := c.recurse()
		if err != nil {
			return nil, err
		}
		items, err := readItems(child)
		if err != nil {
			return nil, err
		}
		if len(items) != 1 {
			return nil, c.fail(FormatError{off, fmt.Errorf("%w: found %d values", ErrMalformedVariant, len(items))})
		}
		return Variant{items[0]}, nil
	case TagDictEntry:
		off := c.dec.Offset()
		child, err := c.recurse()
		if err != nil {
			return nil, err
		}
		items, err := readItems(child)
		if err != nil {
			return nil, err
		}
		if len(items) != 2 {
			return nil, c.fail(FormatError{off, fmt.Errorf("%w: found %d values", ErrMalformedDictEntry, len(items))})
		}
		return DictEntry{items[0], items[1]}, nil
	case TagInvalid:
		if err := c.err(); err != nil {
			return nil, err
		}
		return nil, errors.New("no value to read")
	default:
		return nil, c.fail(fmt.Errorf("%w %s", ErrUnsupportedType, t))
	}
}
