package dbusmsg

import (
	"cmp"
	"encoding/xml"
	"fmt"
	"slices"
	"strings"
)

// ObjectDescription describes a DBus object's exported interfaces and
// child objects.
//
// Descriptions are provided by the DBus peer hosting the object, and
// may not accurately reflect the actual exposed API or object
// structure.
type ObjectDescription struct {
	// Interfaces maps an interface name to a description of its API.
	Interfaces map[string]*InterfaceDescription
	// Children is the relative paths to child objects under this
	// object.
	Children []string
}

// ParseIntrospection parses an org.freedesktop.DBus.Introspectable
// XML document.
func ParseIntrospection(doc string) (*ObjectDescription, error) {
	var ret ObjectDescription
	if err := xml.Unmarshal([]byte(doc), &ret); err != nil {
		return nil, fmt.Errorf("parsing introspection data: %w", err)
	}
	return &ret, nil
}

func (o *ObjectDescription) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	var raw struct {
		Interfaces []*InterfaceDescription `xml:"interface"`
		Children   []struct {
			Name string `xml:"name,attr"`
		} `xml:"node"`
	}
	if err := d.DecodeElement(&raw, &start); err != nil {
		return err
	}
	o.Interfaces = make(map[string]*InterfaceDescription, len(raw.Interfaces))
	for _, iface := range raw.Interfaces {
		o.Interfaces[iface.Name] = iface
	}
	o.Children = make([]string, 0, len(raw.Children))
	for _, v := range raw.Children {
		o.Children = append(o.Children, v.Name)
	}
	return nil
}

// InterfaceDescription describes a DBus interface.
type InterfaceDescription struct {
	Name       string                 `xml:"name,attr"`
	Methods    []*MethodDescription   `xml:"method"`
	Signals    []*SignalDescription   `xml:"signal"`
	Properties []*PropertyDescription `xml:"property"`
}

func (d InterfaceDescription) String() string {
	var ret strings.Builder
	fmt.Fprintf(&ret, "interface %s {\n", d.Name)
	for _, m := range sortedByName(d.Methods, func(m *MethodDescription) string { return m.Name }) {
		fmt.Fprintf(&ret, "  %s\n", m)
	}
	for _, s := range sortedByName(d.Signals, func(s *SignalDescription) string { return s.Name }) {
		fmt.Fprintf(&ret, "  %s\n", s)
	}
	for _, p := range sortedByName(d.Properties, func(p *PropertyDescription) string { return p.Name }) {
		fmt.Fprintf(&ret, "  %s\n", p)
	}
	ret.WriteString("}")
	return ret.String()
}

func sortedByName[T any](vs []T, name func(T) string) []T {
	return slices.SortedFunc(slices.Values(vs), func(a, b T) int {
		return cmp.Compare(name(a), name(b))
	})
}

type annotation struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

type rawArg struct {
	Name      string `xml:"name,attr"`
	Type      string `xml:"type,attr"`
	Direction string `xml:"direction,attr"`
}

func (a rawArg) parse() (ArgumentDescription, error) {
	if err := validType(a.Type); err != nil {
		return ArgumentDescription{}, fmt.Errorf("invalid signature %q for arg %s: %w", a.Type, a.Name, err)
	}
	return ArgumentDescription{Name: a.Name, Type: a.Type}, nil
}

const annotDeprecated = "org.freedesktop.DBus.Deprecated"

// MethodDescription describes a DBus method.
type MethodDescription struct {
	Name string
	In   []ArgumentDescription
	Out  []ArgumentDescription
	// Deprecated, if true, indicates that the method should be
	// avoided in new code.
	Deprecated bool
	// If true, NoReply indicates that the caller is expected to use
	// Interface.OneWay to invoke this method, not Interface.Call.
	NoReply bool
}

func (m MethodDescription) String() string {
	var ret strings.Builder
	fmt.Fprintf(&ret, "func %s(%s)", m.Name, joinArgs(m.In))
	if len(m.Out) > 0 {
		fmt.Fprintf(&ret, " (%s)", joinArgs(m.Out))
	}
	switch {
	case m.Deprecated && m.NoReply:
		ret.WriteString(" [deprecated,noreply]")
	case m.Deprecated:
		ret.WriteString(" [deprecated]")
	case m.NoReply:
		ret.WriteString(" [noreply]")
	}
	return ret.String()
}

func (m *MethodDescription) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	var raw struct {
		Name string       `xml:"name,attr"`
		Args []rawArg     `xml:"arg"`
		Meta []annotation `xml:"annotation"`
	}
	if err := d.DecodeElement(&raw, &start); err != nil {
		return err
	}
	*m = MethodDescription{Name: raw.Name}
	for _, arg := range raw.Args {
		ad, err := arg.parse()
		if err != nil {
			return err
		}
		// Method arguments are inputs unless stated otherwise.
		if arg.Direction == "out" {
			m.Out = append(m.Out, ad)
		} else {
			m.In = append(m.In, ad)
		}
	}
	for _, attr := range raw.Meta {
		switch attr.Name {
		case annotDeprecated:
			m.Deprecated = attr.Value == "true"
		case "org.freedesktop.DBus.Method.NoReply":
			m.NoReply = attr.Value == "true"
		}
	}
	return nil
}

// SignalDescription describes a DBus signal.
type SignalDescription struct {
	Name string
	Args []ArgumentDescription
	// Deprecated, if true, indicates that the signal should be
	// avoided in new code.
	Deprecated bool
}

func (s SignalDescription) String() string {
	ret := fmt.Sprintf("signal %s(%s)", s.Name, joinArgs(s.Args))
	if s.Deprecated {
		ret += " [deprecated]"
	}
	return ret
}

func (s *SignalDescription) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	var raw struct {
		Name string       `xml:"name,attr"`
		Args []rawArg     `xml:"arg"`
		Meta []annotation `xml:"annotation"`
	}
	if err := d.DecodeElement(&raw, &start); err != nil {
		return err
	}
	*s = SignalDescription{Name: raw.Name}
	for _, arg := range raw.Args {
		ad, err := arg.parse()
		if err != nil {
			return err
		}
		s.Args = append(s.Args, ad)
	}
	for _, attr := range raw.Meta {
		if attr.Name == annotDeprecated && attr.Value == "true" {
			s.Deprecated = true
		}
	}
	return nil
}

// PropertyDescription describes a DBus property.
type PropertyDescription struct {
	Name string
	Type string

	// If true, Constant indicates that the property's value never
	// changes.
	Constant bool
	Readable bool
	Writable bool

	// EmitsSignal is whether the property emits a PropertiesChanged
	// signal when updated.
	EmitsSignal bool
	// SignalIncludesValue is whether the PropertiesChanged signal
	// includes the new value, rather than merely invalidating it.
	SignalIncludesValue bool

	Deprecated bool
}

func (p PropertyDescription) String() string {
	var ret strings.Builder
	fmt.Fprintf(&ret, "property %s %s [", p.Name, p.Type)
	switch {
	case p.Readable && !p.Writable && p.Constant:
		ret.WriteString("const")
	case p.Readable && p.Writable:
		ret.WriteString("readwrite")
	case p.Readable:
		ret.WriteString("readonly")
	case p.Writable:
		ret.WriteString("writeonly")
	}
	if p.Deprecated {
		ret.WriteString(",deprecated")
	}
	if p.EmitsSignal && p.SignalIncludesValue {
		ret.WriteString(",signals")
	} else if p.EmitsSignal {
		ret.WriteString(",invalidates")
	}
	ret.WriteByte(']')
	return ret.String()
}

func (p *PropertyDescription) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	var raw struct {
		Name   string       `xml:"name,attr"`
		Type   string       `xml:"type,attr"`
		Access string       `xml:"access,attr"`
		Meta   []annotation `xml:"annotation"`
	}
	if err := d.DecodeElement(&raw, &start); err != nil {
		return err
	}
	if err := validType(raw.Type); err != nil {
		return fmt.Errorf("invalid signature %q for property %s: %w", raw.Type, raw.Name, err)
	}
	*p = PropertyDescription{
		Name:                raw.Name,
		Type:                raw.Type,
		EmitsSignal:         true,
		SignalIncludesValue: true,
	}
	switch raw.Access {
	case "read":
		p.Readable = true
	case "write":
		p.Writable = true
	case "readwrite":
		p.Readable, p.Writable = true, true
	default:
		return fmt.Errorf("unknown property access value %q", raw.Access)
	}
	for _, attr := range raw.Meta {
		switch attr.Name {
		case annotDeprecated:
			p.Deprecated = attr.Value == "true"
		case "org.freedesktop.DBus.Property.EmitsChangedSignal":
			switch attr.Value {
			case "false":
				p.EmitsSignal, p.SignalIncludesValue = false, false
			case "invalidates":
				p.SignalIncludesValue = false
			case "const":
				p.Constant = true
				p.EmitsSignal, p.SignalIncludesValue = false, false
			}
		}
	}
	return nil
}

// ArgumentDescription describes a method's input or output, or a
// signal's argument.
type ArgumentDescription struct {
	Name string // optional
	Type string
}

func (a ArgumentDescription) String() string {
	if a.Name == "" {
		return a.Type
	}
	// Older interfaces use arg-name style naming.
	return strings.ReplaceAll(a.Name, "-", "_") + " " + a.Type
}

func joinArgs(args []ArgumentDescription) string {
	ss := make([]string, 0, len(args))
	for _, a := range args {
		ss = append(ss, a.String())
	}
	return strings.Join(ss, ", ")
}
