package fragments

import (
	"encoding/binary"
	"fmt"

	"golang.org/x/sys/cpu"
)

type byteOrder interface {
	binary.ByteOrder
	binary.AppendByteOrder
}

// ByteOrder is one of the two byte orders a DBus message can be
// written in, identified in the message header by a flag byte.
type ByteOrder struct {
	byteOrder
	flag byte
}

var (
	BigEndian    = ByteOrder{binary.BigEndian, 'B'}
	LittleEndian = ByteOrder{binary.LittleEndian, 'l'}
	// NativeEndian is whichever of BigEndian and LittleEndian the
	// host CPU uses.
	NativeEndian = nativeEndian()
)

func nativeEndian() ByteOrder {
	if cpu.IsBigEndian {
		return BigEndian
	}
	return LittleEndian
}

// Flag returns the header flag byte that identifies o.
func (o ByteOrder) Flag() byte { return o.flag }

func (o ByteOrder) String() string {
	switch o.flag {
	case 'B':
		return "big-endian"
	case 'l':
		return "little-endian"
	}
	return "invalid byte order"
}

// OrderForFlag returns the ByteOrder identified by the header flag
// byte flag.
func OrderForFlag(flag byte) (ByteOrder, error) {
	switch flag {
	case BigEndian.flag:
		return BigEndian, nil
	case LittleEndian.flag:
		return LittleEndian, nil
	}
	return ByteOrder{}, fmt.Errorf("unknown byte order flag %q", flag)
}
