package main

import (
	"bytes"
	"cmp"
	"context"
	"fmt"
	"io"
	"iter"
	"os"
	"strings"

	"github.com/creachadair/mds/heapq"
	"github.com/danderson/dbusmsg"
)

// indenter writes lines to stdout with a configurable indent.
type indenter struct {
	prefix  string
	midLine bool
}

func (i *indenter) v(v any) {
	fmt.Fprintf(i, "%v\n", v)
}

func (i *indenter) Write(bs []byte) (int, error) {
	ret := 0
	for len(bs) > 0 {
		if !i.midLine {
			if _, err := io.WriteString(os.Stdout, i.prefix); err != nil {
				return ret, err
			}
		}
		line := bs
		if idx := bytes.IndexByte(bs, '\n'); idx >= 0 {
			line = bs[:idx+1]
		}
		bs = bs[len(line):]
		i.midLine = line[len(line)-1] != '\n'

		n, err := os.Stdout.Write(line)
		ret += n
		if err != nil {
			return ret, err
		}
	}
	return ret, nil
}

func (i *indenter) indent(n int) {
	i.prefix = strings.Repeat("  ", n)
}

var standardInterfaces = []string{
	"org.freedesktop.DBus.Peer",
	"org.freedesktop.DBus.Properties",
	"org.freedesktop.DBus.Introspectable",
}

func isStandardInterface(name string) bool {
	for _, s := range standardInterfaces {
		if name == s {
			return true
		}
	}
	return false
}

type describedObject struct {
	dbusmsg.Object
	desc *dbusmsg.ObjectDescription
}

// walkObjects introspects root and all of its descendants, in path
// order.
func walkObjects(ctx context.Context, root dbusmsg.Object) iter.Seq2[describedObject, error] {
	return func(yield func(describedObject, error) bool) {
		objs := heapq.New(func(a, b dbusmsg.Object) int {
			return cmp.Compare(a.Path(), b.Path())
		})
		objs.Add(root)
		for !objs.IsEmpty() {
			obj, _ := objs.Pop()
			desc, err := obj.Introspect(ctx)
			if err != nil {
				if !yield(describedObject{}, fmt.Errorf("introspecting %s: %w", obj, err)) {
					return
				}
				continue
			}
			for _, child := range desc.Children {
				objs.Add(obj.Child(child))
			}
			if !yield(describedObject{obj, desc}, nil) {
				return
			}
		}
	}
}
