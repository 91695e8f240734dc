package dbusmsg

import (
	"errors"
	"fmt"
	"path"
	"strings"
)

// ObjectPath is the path of an object exported by a bus peer.
type ObjectPath string

func (p ObjectPath) String() string { return string(p) }

// valid reports whether p is a syntactically valid object path.
func (p ObjectPath) valid() error {
	s := string(p)
	if s == "" {
		return errors.New("empty object path")
	}
	if s[0] != '/' {
		return fmt.Errorf("object path %q is not absolute", s)
	}
	if s == "/" {
		return nil
	}
	if strings.HasSuffix(s, "/") {
		return fmt.Errorf("object path %q has a trailing slash", s)
	}
	for _, elt := range strings.Split(s[1:], "/") {
		if elt == "" {
			return fmt.Errorf("object path %q has an empty element", s)
		}
		for _, c := range elt {
			if !isNameChar(c) {
				return fmt.Errorf("object path %q contains invalid character %q", s, c)
			}
		}
	}
	return nil
}

// Clean returns the shortest path equivalent to p.
func (p ObjectPath) Clean() ObjectPath {
	return ObjectPath(path.Clean("/" + string(p)))
}

// IsChildOf reports whether p is a descendant of parent.
func (p ObjectPath) IsChildOf(parent ObjectPath) bool {
	if parent == "/" {
		return p != "/" && strings.HasPrefix(string(p), "/")
	}
	return strings.HasPrefix(string(p), string(parent)+"/")
}

// Child returns the path of the child named rel relative to p.
func (p ObjectPath) Child(rel string) ObjectPath {
	return ObjectPath(path.Join(string(p), rel)).Clean()
}

func isNameChar(c rune) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '_'
}

// validMember reports whether s is a valid method or signal name.
func validMember(s string) error {
	if s == "" {
		return errors.New("empty member name")
	}
	if len(s) > 255 {
		return fmt.Errorf("member name %q is too long", s)
	}
	if s[0] >= '0' && s[0] <= '9' {
		return fmt.Errorf("member name %q starts with a digit", s)
	}
	for _, c := range s {
		if !isNameChar(c) {
			return fmt.Errorf("member name %q contains invalid character %q", s, c)
		}
	}
	return nil
}

// validInterface reports whether s is a valid interface name. Error
// names follow the same rules.
func validInterface(s string) error {
	if len(s) > 255 {
		return fmt.Errorf("interface name %q is too long", s)
	}
	elts := strings.Split(s, ".")
	if len(elts) < 2 {
		return fmt.Errorf("interface name %q must have at least two elements", s)
	}
	for _, elt := range elts {
		if err := validMember(elt); err != nil {
			return fmt.Errorf("invalid interface name %q: %w", s, err)
		}
	}
	return nil
}

// validBusName reports whether s is a valid unique or well-known bus
// name.
func validBusName(s string) error {
	if len(s) > 255 {
		return fmt.Errorf("bus name %q is too long", s)
	}
	unique := strings.HasPrefix(s, ":")
	elts := strings.Split(strings.TrimPrefix(s, ":"), ".")
	if len(elts) < 2 {
		return fmt.Errorf("bus name %q must have at least two elements", s)
	}
	for _, elt := range elts {
		if elt == "" {
			return fmt.Errorf("bus name %q has an empty element", s)
		}
		if !unique && elt[0] >= '0' && elt[0] <= '9' {
			return fmt.Errorf("bus name %q has an element starting with a digit", s)
		}
		for _, c := range elt {
			if !isNameChar(c) && c != '-' {
				return fmt.Errorf("bus name %q contains invalid character %q", s, c)
			}
		}
	}
	return nil
}
