package dbusmsg

import "fmt"

// A TypeTag is the one-character DBus wire code for a type.
type TypeTag byte

const (
	// TagInvalid marks the end of a cursor's values. As the element
	// type of an [Array], it means the element type is unspecified
	// and should be inferred from the array's first element.
	TagInvalid TypeTag = 0

	TagByte       TypeTag = 'y'
	TagBoolean    TypeTag = 'b'
	TagInt16      TypeTag = 'n'
	TagUint16     TypeTag = 'q'
	TagInt32      TypeTag = 'i'
	TagUint32     TypeTag = 'u'
	TagInt64      TypeTag = 'x'
	TagUint64     TypeTag = 't'
	TagDouble     TypeTag = 'd'
	TagString     TypeTag = 's'
	TagObjectPath TypeTag = 'o'
	TagSignature  TypeTag = 'g'
	TagUnixFD     TypeTag = 'h'
	TagArray      TypeTag = 'a'
	TagVariant    TypeTag = 'v'
	TagStruct     TypeTag = 'r'
	TagDictEntry  TypeTag = 'e'
)

// tagOf returns the TypeTag of the type that starts with the
// signature character c, or TagInvalid if c doesn't start a type.
func tagOf(c byte) TypeTag {
	switch c {
	case '(':
		return TagStruct
	case '{':
		return TagDictEntry
	}
	t := TypeTag(c)
	if t.valid() && t != TagStruct && t != TagDictEntry {
		return t
	}
	return TagInvalid
}

func (t TypeTag) valid() bool {
	switch t {
	case TagByte, TagBoolean, TagInt16, TagUint16, TagInt32, TagUint32,
		TagInt64, TagUint64, TagDouble, TagString, TagObjectPath,
		TagSignature, TagUnixFD, TagArray, TagVariant, TagStruct,
		TagDictEntry:
		return true
	}
	return false
}

// IsBasic reports whether t is a DBus basic type, i.e. not a
// container.
func (t TypeTag) IsBasic() bool {
	switch t {
	case TagArray, TagVariant, TagStruct, TagDictEntry, TagInvalid:
		return false
	}
	return t.valid()
}

// fixedSize returns the encoded size of a fixed-width basic type, or
// 0 for other types.
func (t TypeTag) fixedSize() int {
	switch t {
	case TagByte:
		return 1
	case TagInt16, TagUint16:
		return 2
	case TagBoolean, TagInt32, TagUint32, TagUnixFD:
		return 4
	case TagInt64, TagUint64, TagDouble:
		return 8
	}
	return 0
}

// align returns the wire alignment of values of type t.
func (t TypeTag) align() int {
	switch t {
	case TagString, TagObjectPath, TagArray:
		return 4
	case TagSignature, TagVariant:
		return 1
	case TagStruct, TagDictEntry:
		return 8
	}
	if n := t.fixedSize(); n > 0 {
		return n
	}
	return 1
}

func (t TypeTag) String() string {
	switch t {
	case TagInvalid:
		return "invalid"
	case TagStruct:
		return "struct"
	case TagDictEntry:
		return "dict entry"
	}
	if t.valid() {
		return string(rune(t))
	}
	return fmt.Sprintf("TypeTag(%d)", byte(t))
}
