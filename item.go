package dbusmsg

import (
	"cmp"
	"fmt"
	"strings"
)

// An Item is a value that can be carried in a DBus message body.
//
// The set of Items is closed: [Array], [Variant], [DictEntry], [Str],
// [Bool], [Byte], [Int16], [Int32], [Int64], [Uint16], [Uint32] and
// [Uint64].
type Item interface {
	// Tag returns the wire type code of the item.
	Tag() TypeTag
	String() string

	isItem()
}

// Array is a DBus array.
//
// All elements of an array must have the same wire type. Elem is the
// type of the elements, or TagInvalid to infer it from the first
// element.
type Array struct {
	Items []Item
	Elem  TypeTag
}

// Variant is a DBus variant, a value that carries its own type.
type Variant struct {
	Value Item
}

// DictEntry is a key/value pair. Arrays of DictEntry are DBus
// dictionaries, and in a well-formed dictionary Key is a basic type.
type DictEntry struct {
	Key   Item
	Value Item
}

type (
	Str    string
	Bool   bool
	Byte   uint8
	Int16  int16
	Int32  int32
	Int64  int64
	Uint16 uint16
	Uint32 uint32
	Uint64 uint64
)

func (Array) Tag() TypeTag     { return TagArray }
func (Variant) Tag() TypeTag   { return TagVariant }
func (DictEntry) Tag() TypeTag { return TagDictEntry }
func (Str) Tag() TypeTag       { return TagString }
func (Bool) Tag() TypeTag      { return TagBoolean }
func (Byte) Tag() TypeTag      { return TagByte }
func (Int16) Tag() TypeTag     { return TagInt16 }
func (Int32) Tag() TypeTag     { return TagInt32 }
func (Int64) Tag() TypeTag     { return TagInt64 }
func (Uint16) Tag() TypeTag    { return TagUint16 }
func (Uint32) Tag() TypeTag    { return TagUint32 }
func (Uint64) Tag() TypeTag    { return TagUint64 }

func (Array) isItem()     {}
func (Variant) isItem()   {}
func (DictEntry) isItem() {}
func (Str) isItem()       {}
func (Bool) isItem()      {}
func (Byte) isItem()      {}
func (Int16) isItem()     {}
func (Int32) isItem()     {}
func (Int64) isItem()     {}
func (Uint16) isItem()    {}
func (Uint32) isItem()    {}
func (Uint64) isItem()    {}

func (a Array) String() string {
	var b strings.Builder
	b.WriteString("Array([")
	for i, it := range a.Items {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(itemString(it))
	}
	b.WriteString("], ")
	b.WriteString(a.Elem.String())
	b.WriteString(")")
	return b.String()
}

func (v Variant) String() string { return "Variant(" + itemString(v.Value) + ")" }
func (d DictEntry) String() string {
	return "DictEntry(" + itemString(d.Key) + ", " + itemString(d.Value) + ")"
}
func (s Str) String() string    { return fmt.Sprintf("Str(%q)", string(s)) }
func (b Bool) String() string   { return fmt.Sprintf("Bool(%v)", bool(b)) }
func (b Byte) String() string   { return fmt.Sprintf("Byte(%d)", uint8(b)) }
func (i Int16) String() string  { return fmt.Sprintf("Int16(%d)", int16(i)) }
func (i Int32) String() string  { return fmt.Sprintf("Int32(%d)", int32(i)) }
func (i Int64) String() string  { return fmt.Sprintf("Int64(%d)", int64(i)) }
func (u Uint16) String() string { return fmt.Sprintf("Uint16(%d)", uint16(u)) }
func (u Uint32) String() string { return fmt.Sprintf("Uint32(%d)", uint32(u)) }
func (u Uint64) String() string { return fmt.Sprintf("Uint64(%d)", uint64(u)) }

func itemString(it Item) string {
	if it == nil {
		return "<nil>"
	}
	return it.String()
}

// rank orders the kinds of Item for Compare.
func rank(it Item) int {
	switch it.(type) {
	case nil:
		return 0
	case Array:
		return 1
	case Variant:
		return 2
	case DictEntry:
		return 3
	case Str:
		return 4
	case Bool:
		return 5
	case Byte:
		return 6
	case Int16:
		return 7
	case Int32:
		return 8
	case Int64:
		return 9
	case Uint16:
		return 10
	case Uint32:
		return 11
	case Uint64:
		return 12
	}
	panic(fmt.Sprintf("unknown Item type %T", it))
}

// Compare returns an integer comparing two items structurally. Items
// of different kinds order by kind, in the order they are listed in
// the [Item] documentation. Items of the same kind compare by value,
// recursively for containers. A nil Item sorts before everything
// else.
func Compare(a, b Item) int {
	if c := cmp.Compare(rank(a), rank(b)); c != 0 {
		return c
	}
	switch a := a.(type) {
	case nil:
		return 0
	case Array:
		b := b.(Array)
		if c := compareItems(a.Items, b.Items); c != 0 {
			return c
		}
		return cmp.Compare(a.Elem, b.Elem)
	case Variant:
		return Compare(a.Value, b.(Variant).Value)
	case DictEntry:
		b := b.(DictEntry)
		if c := Compare(a.Key, b.Key); c != 0 {
			return c
		}
		return Compare(a.Value, b.Value)
	case Str:
		return cmp.Compare(a, b.(Str))
	case Bool:
		return compareBool(bool(a), bool(b.(Bool)))
	case Byte:
		return cmp.Compare(a, b.(Byte))
	case Int16:
		return cmp.Compare(a, b.(Int16))
	case Int32:
		return cmp.Compare(a, b.(Int32))
	case Int64:
		return cmp.Compare(a, b.(Int64))
	case Uint16:
		return cmp.Compare(a, b.(Uint16))
	case Uint32:
		return cmp.Compare(a, b.(Uint32))
	case Uint64:
		return cmp.Compare(a, b.(Uint64))
	}
	panic("unreachable")
}

// Equal reports whether a and b are structurally equal.
func Equal(a, b Item) bool {
	return Compare(a, b) == 0
}

func compareItems(a, b []Item) int {
	for i := range min(len(a), len(b)) {
		if c := Compare(a[i], b[i]); c != 0 {
			return c
		}
	}
	return cmp.Compare(len(a), len(b))
}

func compareBool(a, b bool) int {
	switch {
	case a == b:
		return 0
	case !a:
		return -1
	default:
		return 1
	}
}
