package dbusmsg

import (
	"errors"
	"fmt"
)

// Maximum container nesting allowed by the DBus protocol.
const (
	maxArrayDepth  = 32
	maxStructDepth = 32
)

// SignatureOf returns the DBus type signature of it.
//
// The signature of an [Array] whose Elem is a container type, or is
// unspecified, is derived from the array's first element. As a
// result, the signatures of arrays of arrays and of dictionaries
// only describe the first element correctly, and SignatureOf returns
// an error for such arrays when they are empty.
func SignatureOf(it Item) (string, error) {
	switch v := it.(type) {
	case nil:
		return "", TypeError{"<nil>", errors.New("nil Item")}
	case Array:
		elem, err := arrayElemSignature(v)
		if err != nil {
			return "", err
		}
		return "a" + elem, nil
	case Variant:
		return "v", nil
	case DictEntry:
		k, err := SignatureOf(v.Key)
		if err != nil {
			return "", err
		}
		val, err := SignatureOf(v.Value)
		if err != nil {
			return "", err
		}
		return "{" + k + val + "}", nil
	default:
		return string(rune(it.Tag())), nil
	}
}

// arrayElemSignature returns the signature of a's elements.
func arrayElemSignature(a Array) (string, error) {
	if a.Elem.IsBasic() || a.Elem == TagVariant {
		return string(rune(a.Elem)), nil
	}
	if a.Elem != TagInvalid && a.Elem != TagArray && a.Elem != TagDictEntry {
		return "", typeErr(a, "unsupported array element type %s", a.Elem)
	}
	if len(a.Items) == 0 {
		if a.Elem == TagInvalid {
			return "", typeErr(a, "cannot infer element type of empty array")
		}
		return "", typeErr(a, "cannot infer element signature of empty array of %s", a.Elem)
	}
	first := a.Items[0]
	if first == nil {
		return "", typeErr(a, "nil array element")
	}
	if a.Elem != TagInvalid && first.Tag() != a.Elem {
		return "", typeErr(a, "element 0 has type %s, want %s", first.Tag(), a.Elem)
	}
	// Only the first element is consulted. For dictionaries this
	// means the key and value types come from the first entry alone.
	return SignatureOf(first)
}

// splitType splits the first complete type off the front of sig.
//
// splitType checks only that sig is well-bracketed and made of known
// type codes. In particular it does not check the number of types in
// a dict entry, so that message decoding can report malformed dict
// entries itself.
func splitType(sig string) (first, rest string, err error) {
	if sig == "" {
		return "", "", errors.New("empty signature")
	}
	n, err := typeLen(sig, 0, 0)
	if err != nil {
		return "", "", fmt.Errorf("invalid signature %q: %w", sig, err)
	}
	return sig[:n], sig[n:], nil
}

func typeLen(sig string, arrays, structs int) (int, error) {
	if sig == "" {
		return 0, errors.New("missing type")
	}
	switch c := sig[0]; c {
	case 'a':
		if arrays+1 > maxArrayDepth {
			return 0, errors.New("arrays nested too deeply")
		}
		n, err := typeLen(sig[1:], arrays+1, structs)
		if err != nil {
			return 0, err
		}
		return n + 1, nil
	case '(', '{':
		if structs+1 > maxStructDepth {
			return 0, errors.New("structs nested too deeply")
		}
		end := byte(')')
		if c == '{' {
			end = '}'
		}
		i := 1
		for i < len(sig) && sig[i] != end {
			n, err := typeLen(sig[i:], arrays, structs+1)
			if err != nil {
				return 0, err
			}
			i += n
		}
		if i == len(sig) {
			return 0, fmt.Errorf("missing closing %q", end)
		}
		return i + 1, nil
	default:
		if t := tagOf(c); t == TagInvalid || !t.IsBasic() && t != TagVariant {
			return 0, fmt.Errorf("unknown type code %q", c)
		}
		return 1, nil
	}
}

// validType reports whether sig is exactly one complete type that
// follows all the rules of the DBus wire protocol.
func validType(sig string) error {
	first, rest, err := splitType(sig)
	if err != nil {
		return err
	}
	if rest != "" {
		return fmt.Errorf("signature %q is more than one complete type", sig)
	}
	return checkType(first, false)
}

// validSignature reports whether sig is a valid sequence of complete
// types.
func validSignature(sig string) error {
	if len(sig) > 255 {
		return fmt.Errorf("signature %q exceeds maximum length of 255", sig)
	}
	for rest := sig; rest != ""; {
		var (
			first string
			err   error
		)
		first, rest, err = splitType(rest)
		if err != nil {
			return err
		}
		if err := checkType(first, false); err != nil {
			return fmt.Errorf("invalid signature %q: %w", sig, err)
		}
	}
	return nil
}

// checkType applies the rules that splitType doesn't to the single
// complete type t.
func checkType(t string, inArray bool) error {
	switch t[0] {
	case 'a':
		return checkType(t[1:], true)
	case '(':
		inner := t[1 : len(t)-1]
		if inner == "" {
			return errors.New("empty struct")
		}
		for inner != "" {
			var f string
			f, inner, _ = splitType(inner)
			if err := checkType(f, false); err != nil {
				return err
			}
		}
	case '{':
		if !inArray {
			return errors.New("dict entry found outside array")
		}
		inner := t[1 : len(t)-1]
		if inner == "" {
			return errors.New("empty dict entry")
		}
		k, v, _ := splitType(inner)
		if !tagOf(k[0]).IsBasic() {
			return fmt.Errorf("invalid dict entry key type %q, must be a basic type", k)
		}
		if v == "" {
			return errors.New("dict entry has no value type")
		}
		val, extra, _ := splitType(v)
		if extra != "" {
			return fmt.Errorf("dict entry has extra types %q", extra)
		}
		return checkType(val, false)
	}
	return nil
}

// sigAlign returns the alignment of the first type in sig.
func sigAlign(sig string) int {
	if sig == "" {
		return 1
	}
	return tagOf(sig[0]).align()
}
