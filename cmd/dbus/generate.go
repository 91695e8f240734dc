package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/creachadair/command"
	"github.com/danderson/dbusmsg"
	"github.com/danderson/dbusmsg/internal/dbusgen"
)

var generateArgs struct {
	PackageName string `flag:"package,default=client,Package name to output"`
	OutFile     string `flag:"out,default=gen.go,Output file path"`
}

// findInterface searches the objects under root for one that
// implements wantName, and returns its description.
func findInterface(ctx context.Context, root dbusmsg.Object, wantName string) (*dbusmsg.InterfaceDescription, error) {
	var errs []error
	for obj, err := range walkObjects(ctx, root) {
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if iface, ok := obj.desc.Interfaces[wantName]; ok {
			fmt.Printf("Found definition of %s at %s\n", wantName, obj)
			return iface, nil
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return nil, fmt.Errorf("%s has no object that implements %s", root.Peer(), wantName)
}

func runGenerate(env *command.Env) error {
	var peer, iface string
	root := dbusmsg.ObjectPath("/")
	switch len(env.Args) {
	case 3:
		root = dbusmsg.ObjectPath(env.Args[2])
		fallthrough
	case 2:
		peer, iface = env.Args[0], env.Args[1]
	default:
		return env.Usagef("generate takes a peer, an interface and an optional object")
	}

	conn, err := busConn(env.Context())
	if err != nil {
		return err
	}
	defer conn.Close()

	ctx, cancel := callContext(env)
	defer cancel()
	desc, err := findInterface(ctx, conn.Peer(peer).Object(root), iface)
	if err != nil {
		return err
	}

	code, err := dbusgen.File(generateArgs.PackageName, desc)
	if err != nil {
		return fmt.Errorf("generating interface %s: %w", desc.Name, err)
	}
	if err := os.WriteFile(generateArgs.OutFile, []byte(code), 0o644); err != nil {
		return fmt.Errorf("writing generated code: %w", err)
	}
	fmt.Printf("Wrote generated package to %s\n", generateArgs.OutFile)
	return nil
}
