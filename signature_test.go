package dbusmsg

import (
	"errors"
	"testing"
)

func TestSignatureOf(t *testing.T) {
	tests := []struct {
		in   Item
		want string
	}{
		{Byte(0), "y"},
		{Bool(false), "b"},
		{Int16(0), "n"},
		{Uint16(0), "q"},
		{Int32(0), "i"},
		{Uint32(0), "u"},
		{Int64(0), "x"},
		{Uint64(0), "t"},
		{Str(""), "s"},
		{Variant{Uint32(1)}, "v"},
		{Array{Elem: TagString}, "as"},
		{Array{Elem: TagVariant}, "av"},
		{Array{Items: []Item{Byte(1)}}, "ay"},
		{Array{Items: []Item{Array{Elem: TagString}}}, "aas"},
		{Array{Items: []Item{Array{Elem: TagString}}, Elem: TagArray}, "aas"},
		{Array{Items: []Item{DictEntry{Str("a"), Int64(1)}}}, "a{sx}"},
		{Array{Items: []Item{DictEntry{Byte(1), Variant{Str("x")}}}, Elem: TagDictEntry}, "a{yv}"},
		{Array{Items: []Item{DictEntry{Str("a"), Array{Items: []Item{DictEntry{Str("b"), Bool(true)}}}}}}, "a{sa{sb}}"},
		{DictEntry{Str("a"), Uint16(2)}, "{sq}"},

		{nil, ""},
		{Array{}, ""},
		{Array{Elem: TagArray}, ""},
		{Array{Elem: TagDictEntry}, ""},
		{Array{Items: []Item{Str("a")}, Elem: TagArray}, ""},
		{Array{Items: []Item{nil}}, ""},
	}

	for _, tc := range tests {
		got, err := SignatureOf(tc.in)
		if tc.want == "" {
			if err == nil {
				t.Errorf("SignatureOf(%s) = %q, want error", itemString(tc.in), got)
			} else if te := (TypeError{}); !errors.As(err, &te) {
				t.Errorf("SignatureOf(%s) error %v is not a TypeError", itemString(tc.in), err)
			}
			continue
		}
		if err != nil {
			t.Errorf("SignatureOf(%s) failed: %v", itemString(tc.in), err)
			continue
		}
		if got != tc.want {
			t.Errorf("SignatureOf(%s) = %q, want %q", itemString(tc.in), got, tc.want)
		}
	}
}

func TestValidSignature(t *testing.T) {
	tests := []struct {
		in string
		ok bool
	}{
		{"", true},
		{"y", true},
		{"ybnqiuxtdsogh", true},
		{"as", true},
		{"a{sv}", true},
		{"a{sa{sv}}", true},
		{"(ii)", true},
		{"a(sa{sv})v", true},
		{"aaaaai", true},

		{"a", false},
		{"z", false},
		{"(", false},
		{"(i", false},
		{"i)", false},
		{"()", false},
		{"{sv}", false},
		{"a{vs}", false},
		{"a{s}", false},
		{"a{sss}", false},
		{"a{}", false},
		{"r", false},
		{"e", false},
		{"a{sv", false},
		{"ai}", false},
	}
	for _, tc := range tests {
		err := validSignature(tc.in)
		if got := err == nil; got != tc.ok {
			t.Errorf("validSignature(%q) = %v, want ok=%v", tc.in, err, tc.ok)
		}
	}
}

func TestNestingLimits(t *testing.T) {
	deep := func(open, close string, n int) string {
		var ret string
		for range n {
			ret = open + ret + close
		}
		return ret
	}
	if err := validSignature(deep("a", "", 32) + "y"); err != nil {
		t.Errorf("32 nested arrays rejected: %v", err)
	}
	if err := validSignature(deep("a", "", 33) + "y"); err == nil {
		t.Error("33 nested arrays accepted")
	}
	if err := validSignature(deep("(y", ")", 32)); err != nil {
		t.Errorf("32 nested structs rejected: %v", err)
	}
	if err := validSignature(deep("(y", ")", 33)); err == nil {
		t.Error("33 nested structs accepted")
	}
}

func TestSplitType(t *testing.T) {
	tests := []struct {
		in, first, rest string
	}{
		{"i", "i", ""},
		{"is", "i", "s"},
		{"a{sv}u", "a{sv}", "u"},
		{"(ia{sv})", "(ia{sv})", ""},
		{"aasi", "aas", "i"},
		// Dict arity is left for body decoding to report.
		{"a{u}y", "a{u}", "y"},
		{"a{uub}", "a{uub}", ""},
	}
	for _, tc := range tests {
		first, rest, err := splitType(tc.in)
		if err != nil {
			t.Errorf("splitType(%q) failed: %v", tc.in, err)
			continue
		}
		if first != tc.first || rest != tc.rest {
			t.Errorf("splitType(%q) = %q, %q, want %q, %q", tc.in, first, rest, tc.first, tc.rest)
		}
	}
}
