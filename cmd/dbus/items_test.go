package main

import (
	"testing"

	"github.com/danderson/dbusmsg"
	"github.com/google/go-cmp/cmp"
)

func TestParseItem(t *testing.T) {
	tests := []struct {
		in   string
		want dbusmsg.Item
	}{
		{"s:hello", dbusmsg.Str("hello")},
		{"s:", dbusmsg.Str("")},
		{"s:a:b", dbusmsg.Str("a:b")},
		{"b:true", dbusmsg.Bool(true)},
		{"y:0x2a", dbusmsg.Byte(42)},
		{"n:-3", dbusmsg.Int16(-3)},
		{"q:2000", dbusmsg.Uint16(2000)},
		{"i:-70000", dbusmsg.Int32(-70000)},
		{"u:70000", dbusmsg.Uint32(70000)},
		{"x:-1", dbusmsg.Int64(-1)},
		{"t:18446744073709551615", dbusmsg.Uint64(18446744073709551615)},
		{"ay:1,2,3", dbusmsg.Array{Elem: dbusmsg.TagByte, Items: []dbusmsg.Item{dbusmsg.Byte(1), dbusmsg.Byte(2), dbusmsg.Byte(3)}}},
		{"as:", dbusmsg.Array{Elem: dbusmsg.TagString}},
		{"a{sq}:a=1,b=2", dbusmsg.Array{
			Elem: dbusmsg.TagDictEntry,
			Items: []dbusmsg.Item{
				dbusmsg.DictEntry{Key: dbusmsg.Str("a"), Value: dbusmsg.Uint16(1)},
				dbusmsg.DictEntry{Key: dbusmsg.Str("b"), Value: dbusmsg.Uint16(2)},
			},
		}},
		{"v:s:hello", dbusmsg.Variant{Value: dbusmsg.Str("hello")}},
		{"v:v:b:false", dbusmsg.Variant{Value: dbusmsg.Variant{Value: dbusmsg.Bool(false)}}},
	}

	for _, tc := range tests {
		got, err := parseItem(tc.in)
		if err != nil {
			t.Errorf("parseItem(%q) failed: %v", tc.in, err)
			continue
		}
		if diff := cmp.Diff(got, tc.want); diff != "" {
			t.Errorf("parseItem(%q) wrong result (-got+want):\n%s", tc.in, diff)
		}
	}
}

func TestParseItemErrors(t *testing.T) {
	tests := []string{
		"hello",
		":x",
		"q:70000",
		"y:-1",
		"b:maybe",
		"d:1.5",
		"o:/foo",
		"aay:1",
		"a{sv}:a=1",
		"a{sq}:a",
		"a{sq}:a=x",
		"vs:foo",
		"v:hello",
	}
	for _, in := range tests {
		if got, err := parseItem(in); err == nil {
			t.Errorf("parseItem(%q) = %v, want error", in, got)
		}
	}
}

func TestParsedItemsEncode(t *testing.T) {
	items, err := parseItems([]string{"q:2000", "s:hello", "ay:1,2", "a{sb}:x=true", "v:i:7"})
	if err != nil {
		t.Fatal(err)
	}
	var sig string
	for _, it := range items {
		s, err := dbusmsg.SignatureOf(it)
		if err != nil {
			t.Fatalf("SignatureOf(%v): %v", it, err)
		}
		sig += s
	}
	if want := "qsaya{sb}v"; sig != want {
		t.Errorf("parsed items have signature %q, want %q", sig, want)
	}
}
