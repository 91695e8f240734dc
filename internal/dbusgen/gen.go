// Package dbusgen generates Go clients for DBus interfaces from their
// introspection data.
package dbusgen

import (
	"bytes"
	"cmp"
	"errors"
	"fmt"
	"go/format"
	"go/token"
	"slices"
	"strings"
	"unicode"

	"github.com/danderson/dbusmsg"
)

type generator struct {
	out   bytes.Buffer
	iface *dbusmsg.InterfaceDescription
	typ   string
	used  map[string]bool

	usesFmt     bool
	usesContext bool
}

// File returns the source of a Go file in package pkg that contains
// a client for iface.
//
// Methods, properties and signals whose types cannot be represented
// as [dbusmsg.Item] values are left out of the client, with a comment
// noting the omission.
func File(pkg string, iface *dbusmsg.InterfaceDescription) (string, error) {
	if iface == nil {
		return "", errors.New("no interface provided")
	}
	g := generator{
		iface: iface,
		typ:   publicIdentifier(iface.Name),
		used:  map[string]bool{},
	}
	g.client()

	var ret bytes.Buffer
	fmt.Fprintf(&ret, "// Code generated by dbus generate. DO NOT EDIT.\n\npackage %s\n\nimport (\n", pkg)
	if g.usesContext {
		ret.WriteString("\t\"context\"\n")
	}
	if g.usesFmt {
		ret.WriteString("\t\"fmt\"\n")
	}
	ret.WriteString("\n\t\"github.com/danderson/dbusmsg\"\n)\n")
	ret.Write(g.out.Bytes())

	src, err := format.Source(ret.Bytes())
	if err != nil {
		return ret.String(), err
	}
	return string(src), nil
}

func (g *generator) s(s string) {
	g.out.WriteString(s)
}

func (g *generator) f(msg string, args ...any) {
	fmt.Fprintf(&g.out, msg, args...)
}

// name reserves a top-level or method name, and returns name with
// suffix appended if it was already taken.
func (g *generator) name(name, suffix string) string {
	for g.used[name] {
		name += suffix
	}
	g.used[name] = true
	return name
}

func (g *generator) client() {
	iface := g.iface
	g.used[g.typ] = true
	g.f(`
// %[1]s is a client for the %[2]s interface.
type %[1]s struct{ iface dbusmsg.Interface }

// New%[1]s returns a %[1]s on the given object.
func New%[1]s(obj dbusmsg.Object) %[1]s {
	return %[1]s{
		iface: obj.Interface(%[2]q),
	}
}
`, g.typ, iface.Name)

	methods := slices.SortedFunc(slices.Values(iface.Methods), func(a, b *dbusmsg.MethodDescription) int {
		return cmp.Compare(a.Name, b.Name)
	})
	props := slices.SortedFunc(slices.Values(iface.Properties), func(a, b *dbusmsg.PropertyDescription) int {
		return cmp.Compare(a.Name, b.Name)
	})
	signals := slices.SortedFunc(slices.Values(iface.Signals), func(a, b *dbusmsg.SignalDescription) int {
		return cmp.Compare(a.Name, b.Name)
	})

	for _, m := range methods {
		g.method(m)
	}
	for _, p := range props {
		g.property(p)
	}
	for _, s := range signals {
		g.signal(s)
	}
}

type param struct {
	name string
	sig  string
	typ  string
}

// params returns Go parameters for args. It reports false if any of
// the arguments' types cannot be represented.
func params(args []dbusmsg.ArgumentDescription, prefix string, taken map[string]bool) ([]param, bool) {
	ret := make([]param, 0, len(args))
	for i, a := range args {
		typ, ok := itemType(a.Type)
		if !ok {
			return nil, false
		}
		name := a.Name
		if name == "" {
			name = fmt.Sprintf("%s%d", prefix, i)
		}
		name = identifier(name)
		if token.IsKeyword(name) {
			name += "_"
		}
		for taken[name] {
			name += "_"
		}
		taken[name] = true
		ret = append(ret, param{name, a.Type, typ})
	}
	return ret, true
}

// itemType returns the Item type that holds values of the single
// complete type sig.
func itemType(sig string) (string, bool) {
	if len(sig) == 1 {
		switch dbusmsg.TypeTag(sig[0]) {
		case dbusmsg.TagByte:
			return "dbusmsg.Byte", true
		case dbusmsg.TagBoolean:
			return "dbusmsg.Bool", true
		case dbusmsg.TagInt16:
			return "dbusmsg.Int16", true
		case dbusmsg.TagUint16:
			return "dbusmsg.Uint16", true
		case dbusmsg.TagInt32:
			return "dbusmsg.Int32", true
		case dbusmsg.TagUint32:
			return "dbusmsg.Uint32", true
		case dbusmsg.TagInt64:
			return "dbusmsg.Int64", true
		case dbusmsg.TagUint64:
			return "dbusmsg.Uint64", true
		case dbusmsg.TagString:
			return "dbusmsg.Str", true
		case dbusmsg.TagVariant:
			return "dbusmsg.Variant", true
		}
		return "", false
	}
	if sig[0] != 'a' {
		return "", false
	}
	elem := sig[1:]
	if strings.HasPrefix(elem, "{") && strings.HasSuffix(elem, "}") && len(elem) > 3 {
		if _, ok := itemType(elem[1:2]); !ok {
			return "", false
		}
		if _, ok := itemType(elem[2 : len(elem)-1]); !ok {
			return "", false
		}
		return "dbusmsg.Array", true
	}
	if _, ok := itemType(elem); !ok {
		return "", false
	}
	return "dbusmsg.Array", true
}

// reserved are the local variable names used by generated method
// bodies.
var reserved = []string{"ctx", "iface", "resp", "err", "ok"}

func reservedNames() map[string]bool {
	ret := map[string]bool{}
	for _, n := range reserved {
		ret[n] = true
	}
	return ret
}

func (g *generator) method(m *dbusmsg.MethodDescription) {
	taken := reservedNames()
	ins, okIn := params(m.In, "arg", taken)
	outs, okOut := params(m.Out, "ret", taken)
	if !okIn || !okOut {
		g.f("\n// Method %s.%s is omitted: its arguments include types that cannot be represented.\n", g.iface.Name, m.Name)
		return
	}
	name := g.name(publicIdentifier(m.Name), "Method")
	g.usesContext = true

	g.f("\n// %s calls the method %s.%s.\n", name, g.iface.Name, m.Name)
	if m.Deprecated {
		g.s("//\n// Deprecated: the interface marks this method as deprecated.\n")
	}
	g.f("func (iface %s) %s(ctx context.Context", g.typ, name)
	var callArgs strings.Builder
	for _, p := range ins {
		g.f(", %s %s", p.name, p.typ)
		callArgs.WriteString(", " + p.name)
	}
	g.s(") ")

	switch {
	case m.NoReply:
		g.f("error {\n\treturn iface.iface.OneWay(%q%s)\n}\n", m.Name, callArgs.String())
		return
	case len(outs) == 0:
		g.f("error {\n\t_, err := iface.iface.Call(ctx, %q%s)\n\treturn err\n}\n", m.Name, callArgs.String())
		return
	}

	g.s("(")
	for _, p := range outs {
		g.f("%s %s, ", p.name, p.typ)
	}
	g.s("err error) {\n")
	g.f("\tresp, err := iface.iface.Call(ctx, %q%s)\n\tif err != nil {\n\t\treturn\n\t}\n", m.Name, callArgs.String())
	g.unpack("resp", m.Name, outs, func(p param) string { return p.name })
	g.s("\treturn\n}\n")
}

// unpack writes code that checks and assigns the items in the
// variable src to the targets of ps.
func (g *generator) unpack(src, what string, ps []param, target func(param) string) {
	g.usesFmt = true
	g.f("\tif len(%[1]s) != %[2]d {\n\t\terr = fmt.Errorf(\"%[3]s has %%d values, want %[2]d\", len(%[1]s))\n\t\treturn\n\t}\n", src, len(ps), what)
	if len(ps) > 0 {
		g.s("\tvar ok bool\n")
	}
	for i, p := range ps {
		g.f("\tif %[1]s, ok = %[2]s[%[3]d].(%[4]s); !ok {\n\t\terr = fmt.Errorf(\"%[5]s value %[3]d is %%s, want %[6]s\", %[2]s[%[3]d])\n\t\treturn\n\t}\n",
			target(p), src, i, p.typ, what, p.sig)
	}
}

func (g *generator) property(p *dbusmsg.PropertyDescription) {
	typ, ok := itemType(p.Type)
	if !ok {
		g.f("\n// Property %s.%s is omitted: its type %s cannot be represented.\n", g.iface.Name, p.Name, p.Type)
		return
	}
	name := publicIdentifier(p.Name)
	g.usesContext = true

	if p.Constant || p.Readable {
		g.usesFmt = true
		getter := g.name(name, "Property")
		g.f(`
// %[2]s returns the value of the property %[4]q.
func (iface %[1]s) %[2]s(ctx context.Context) (%[3]s, error) {
	var ret %[3]s
	v, err := iface.iface.GetProperty(ctx, %[4]q)
	if err != nil {
		return ret, err
	}
	ret, ok := v.(%[3]s)
	if !ok {
		return ret, fmt.Errorf("property %[4]s is %%s, want %[5]s", v)
	}
	return ret, nil
}
`, g.typ, getter, typ, p.Name, p.Type)
	}

	if p.Writable {
		setter := g.name("Set"+name, "Property")
		g.f(`
// %[2]s sets the value of the property %[4]q to val.
func (iface %[1]s) %[2]s(ctx context.Context, val %[3]s) error {
	return iface.iface.SetProperty(ctx, %[4]q, val)
}
`, g.typ, setter, typ, p.Name)
	}
}

func (g *generator) signal(s *dbusmsg.SignalDescription) {
	fields, ok := params(s.Args, "arg", map[string]bool{})
	if !ok {
		g.f("\n// Signal %s.%s is omitted: its arguments include types that cannot be represented.\n", g.iface.Name, s.Name)
		return
	}
	name := g.name(publicIdentifier(s.Name), "Signal")
	match := g.name("Match"+name, "Signal")
	parse := g.name("Parse"+name, "Signal")
	g.usesFmt = true

	g.f("\n// %s is the signal %s.%s.\ntype %s struct {\n", name, g.iface.Name, s.Name, name)
	for _, f := range fields {
		g.f("\t%s %s\n", publicIdentifier(f.name), f.typ)
	}
	g.s("}\n")

	g.f(`
// %[1]s returns a match for the %[4]s signal.
func %[1]s() *dbusmsg.Match {
	return dbusmsg.MatchSignal(%[3]q, %[4]q)
}

// %[2]s decodes a %[4]s signal.
func %[2]s(m *dbusmsg.Message) (ret %[5]s, err error) {
	if !%[1]s().Matches(m) {
		err = fmt.Errorf("%%s is not a %[3]s.%[4]s signal", m)
		return
	}
	items, err := m.Items()
	if err != nil {
		return
	}
`, match, parse, g.iface.Name, s.Name, name)
	g.unpack("items", s.Name, fields, func(p param) string { return "ret." + publicIdentifier(p.name) })
	g.s("\treturn\n}\n")
}

func identifier(s string) string {
	if i := strings.LastIndexByte(s, '.'); i >= 0 {
		s = s[i+1:]
	}
	fs := strings.FieldsFunc(s, func(r rune) bool {
		return r == '_' || r == '-'
	})
	for i, f := range fs {
		switch {
		case i == 0:
			fs[i] = lowerFirst(f)
		case f == "id":
			fs[i] = "ID"
		case f == "fd":
			fs[i] = "FD"
		default:
			fs[i] = upperFirst(f)
		}
	}
	ret := strings.Join(fs, "")
	if ret == "" {
		return "x"
	}
	return ret
}

func publicIdentifier(s string) string {
	return upperFirst(identifier(s))
}

func upperFirst(s string) string {
	if s == "" {
		return s
	}
	r := []rune(s)
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	r := []rune(s)
	r[0] = unicode.ToLower(r[0])
	return string(r)
}
