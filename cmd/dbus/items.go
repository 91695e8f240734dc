package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/danderson/dbusmsg"
)

func parseItems(args []string) ([]dbusmsg.Item, error) {
	ret := make([]dbusmsg.Item, 0, len(args))
	for _, a := range args {
		it, err := parseItem(a)
		if err != nil {
			return nil, fmt.Errorf("argument %q: %w", a, err)
		}
		ret = append(ret, it)
	}
	return ret, nil
}

// parseItem parses a command line argument of the form type:value.
func parseItem(s string) (dbusmsg.Item, error) {
	sig, val, ok := strings.Cut(s, ":")
	if !ok {
		return nil, fmt.Errorf("missing type prefix, want type:value")
	}
	return parseValue(sig, val)
}

func parseValue(sig, val string) (dbusmsg.Item, error) {
	if sig == "" {
		return nil, fmt.Errorf("empty type")
	}
	switch dbusmsg.TypeTag(sig[0]) {
	case dbusmsg.TagVariant:
		if sig != "v" {
			break
		}
		inner, err := parseItem(val)
		if err != nil {
			return nil, err
		}
		return dbusmsg.Variant{Value: inner}, nil
	case dbusmsg.TagArray:
		return parseArray(sig[1:], val)
	}
	if len(sig) != 1 {
		return nil, fmt.Errorf("unsupported type %q", sig)
	}
	return parseBasic(dbusmsg.TypeTag(sig[0]), val)
}

func parseArray(elem, val string) (dbusmsg.Item, error) {
	var parts []string
	if val != "" {
		parts = strings.Split(val, ",")
	}

	if strings.HasPrefix(elem, "{") {
		if len(elem) != 4 || elem[3] != '}' {
			return nil, fmt.Errorf("unsupported dict type a%s, key and value must be basic types", elem)
		}
		kt, vt := dbusmsg.TypeTag(elem[1]), dbusmsg.TypeTag(elem[2])
		ret := dbusmsg.Array{Elem: dbusmsg.TagDictEntry}
		for _, p := range parts {
			ks, vs, ok := strings.Cut(p, "=")
			if !ok {
				return nil, fmt.Errorf("dict entry %q is not key=value", p)
			}
			k, err := parseBasic(kt, ks)
			if err != nil {
				return nil, err
			}
			v, err := parseBasic(vt, vs)
			if err != nil {
				return nil, err
			}
			ret.Items = append(ret.Items, dbusmsg.DictEntry{Key: k, Value: v})
		}
		return ret, nil
	}

	if len(elem) != 1 {
		return nil, fmt.Errorf("unsupported array type a%s, elements must be a basic type", elem)
	}
	ret := dbusmsg.Array{Elem: dbusmsg.TypeTag(elem[0])}
	for _, p := range parts {
		it, err := parseBasic(ret.Elem, p)
		if err != nil {
			return nil, err
		}
		ret.Items = append(ret.Items, it)
	}
	return ret, nil
}

func parseBasic(t dbusmsg.TypeTag, s string) (dbusmsg.Item, error) {
	switch t {
	case dbusmsg.TagString:
		return dbusmsg.Str(s), nil
	case dbusmsg.TagBoolean:
		v, err := strconv.ParseBool(s)
		return dbusmsg.Bool(v), err
	case dbusmsg.TagByte:
		v, err := strconv.ParseUint(s, 0, 8)
		return dbusmsg.Byte(v), err
	case dbusmsg.TagInt16:
		v, err := strconv.ParseInt(s, 0, 16)
		return dbusmsg.Int16(v), err
	case dbusmsg.TagUint16:
		v, err := strconv.ParseUint(s, 0, 16)
		return dbusmsg.Uint16(v), err
	case dbusmsg.TagInt32:
		v, err := strconv.ParseInt(s, 0, 32)
		return dbusmsg.Int32(v), err
	case dbusmsg.TagUint32:
		v, err := strconv.ParseUint(s, 0, 32)
		return dbusmsg.Uint32(v), err
	case dbusmsg.TagInt64:
		v, err := strconv.ParseInt(s, 0, 64)
		return dbusmsg.Int64(v), err
	case dbusmsg.TagUint64:
		v, err := strconv.ParseUint(s, 0, 64)
		return dbusmsg.Uint64(v), err
	}
	return nil, fmt.Errorf("unsupported type %q", string(rune(t)))
}
