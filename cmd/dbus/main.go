package main

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/creachadair/command"
	"github.com/creachadair/flax"
	"github.com/danderson/dbusmsg"
	"github.com/kr/pretty"
	"go.uber.org/zap"
)

var globalArgs struct {
	UseSessionBus bool          `flag:"session,Connect to session bus instead of system bus"`
	Names         string        `flag:"names,Comma-separated list of bus names to claim"`
	Timeout       time.Duration `flag:"timeout,Timeout for method calls (default 30s)"`
	Verbose       bool          `flag:"verbose,Log connection activity to stderr"`
	Config        string        `flag:"config,Path to a TOML file of default settings"`
}

var listenArgs struct {
	Sender    string `flag:"sender,Only show signals sent by this bus name"`
	Interface string `flag:"interface,Only show signals of this interface"`
	Member    string `flag:"member,Only show signals with this name"`
	Path      string `flag:"path,Only show signals emitted by objects under this path"`
	Arg0      string `flag:"arg0,Only show signals whose first argument is this string"`
}

func busConn(ctx context.Context) (*dbusmsg.Conn, error) {
	if err := loadSettings(); err != nil {
		return nil, err
	}

	var mk func(context.Context) (*dbusmsg.Conn, error)
	if globalArgs.UseSessionBus {
		mk = dbusmsg.SessionBus
	} else {
		mk = dbusmsg.SystemBus
	}
	conn, err := mk(ctx)
	if err != nil {
		return nil, fmt.Errorf("connecting to bus: %w", err)
	}

	if globalArgs.Names == "" {
		return conn, nil
	}

	for _, n := range strings.Split(globalArgs.Names, ",") {
		ret, err := conn.RequestName(ctx, n, dbusmsg.NameFlagDoNotQueue)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("claiming name %q: %w", n, err)
		}
		switch ret {
		case dbusmsg.RequestNamePrimaryOwner, dbusmsg.RequestNameAlreadyOwner:
			fmt.Printf("acquired name %s\n", n)
		default:
			conn.Close()
			return nil, fmt.Errorf("claiming name %q: %s", n, ret)
		}
	}

	return conn, nil
}

// loadSettings applies the config file and installs a logger. Flags
// given on the command line take precedence over the file.
func loadSettings() error {
	cfg, err := readConfig(globalArgs.Config)
	if err != nil {
		return err
	}
	if !globalArgs.UseSessionBus {
		globalArgs.UseSessionBus = cfg.Session
	}
	if globalArgs.Names == "" {
		globalArgs.Names = strings.Join(cfg.Names, ",")
	}
	if globalArgs.Timeout == 0 {
		globalArgs.Timeout = cfg.timeout
	}
	if globalArgs.Timeout == 0 {
		globalArgs.Timeout = 30 * time.Second
	}
	if globalArgs.Verbose || cfg.Verbose {
		log, err := zap.NewDevelopment()
		if err != nil {
			return fmt.Errorf("creating logger: %w", err)
		}
		dbusmsg.SetLogger(log)
	}
	return nil
}

func main() {
	root := &command.C{
		Name:     "dbus",
		Usage:    "command args...",
		SetFlags: command.Flags(flax.MustBind, &globalArgs),
		Help: `Send and receive DBus messages.

Method and signal arguments are written as type:value, where type is
a DBus type signature. Arrays are comma-separated, dict entries are
key=value, and variants wrap another argument:

  q:2000  s:hello  b:true  ay:1,2,3  a{sq}:a=1,b=2  v:s:hello
`,
		Commands: []*command.C{
			{
				Name:  "call",
				Usage: "call peer object interface method [args...]",
				Help:  "Call a method and print the reply.",
				Run:   command.Adapt(runCall),
			},
			{
				Name:  "emit",
				Usage: "emit object interface signal [args...]",
				Help:  "Emit a signal.",
				Run:   command.Adapt(runEmit),
			},
			{
				Name:     "listen",
				Usage:    "listen",
				Help:     "Listen to bus signals.",
				SetFlags: command.Flags(flax.MustBind, &listenArgs),
				Run:      command.Adapt(runListen),
			},
			{
				Name:  "serve",
				Usage: "serve object",
				Help: `Serve an object that echoes back the arguments of every method call.

For best results, combine with --names to register a service name on the bus that other tools can target.`,
				Run: command.Adapt(runServe),
			},
			{
				Name:  "ping",
				Usage: "ping peer",
				Help:  "Ping a peer.",
				Run:   command.Adapt(runPing),
			},
			{
				Name:  "names",
				Usage: "names",
				Help:  "List names on the bus, with their owners.",
				Run:   command.Adapt(runNames),
			},
			{
				Name:  "props",
				Usage: "props peer object interface",
				Help:  "List the properties of an interface.",
				Run:   command.Adapt(runProps),
			},
			{
				Name:  "introspect",
				Usage: "introspect peer [object]",
				Help: `Describe a peer's objects and their interfaces.

The peer's object tree is walked starting at the given object, or / if
none is given.`,
				Run: runIntrospect,
			},
			{
				Name:     "generate",
				Usage:    "generate peer interface [object]",
				Help:     "Generate a Go client for an interface from a peer's introspection data.",
				SetFlags: command.Flags(flax.MustBind, &generateArgs),
				Run:      runGenerate,
			},
			{
				Name:  "freedesktop",
				Usage: "freedesktop args...",
				Commands: []*command.C{
					{
						Name:  "background",
						Usage: "background",
						Help:  "List flatpak apps that are running in the background.",
						Run:   command.Adapt(runFdoBackground),
					},
					{
						Name:  "idle",
						Usage: "idle",
						Help:  "Show the session's idle and lock state.",
						Run:   command.Adapt(runFdoIdle),
					},
					{
						Name:  "power",
						Usage: "power",
						Help:  "Show the system's sleep capabilities.",
						Run:   command.Adapt(runFdoPower),
					},
					{
						Name:  "notify",
						Usage: "notify summary [body]",
						Help:  "Display a desktop notification.",
						Run:   runFdoNotify,
					},
				},
			},
			command.HelpCommand(nil),
			command.VersionCommand(),
		},
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	env := root.NewEnv(nil).SetContext(ctx)
	command.RunOrFail(env, os.Args[1:])
}

func callContext(env *command.Env) (context.Context, context.CancelFunc) {
	return context.WithTimeout(env.Context(), globalArgs.Timeout)
}

func runCall(env *command.Env, peer, object, iface, method string, rawArgs ...string) error {
	args, err := parseItems(rawArgs)
	if err != nil {
		return env.Usagef("%v", err)
	}

	conn, err := busConn(env.Context())
	if err != nil {
		return err
	}
	defer conn.Close()

	ctx, cancel := callContext(env)
	defer cancel()
	ret, err := conn.Peer(peer).Object(dbusmsg.ObjectPath(object)).Interface(iface).Call(ctx, method, args...)
	if err != nil {
		return fmt.Errorf("calling %s.%s: %w", iface, method, err)
	}
	for _, it := range ret {
		fmt.Printf("%# v\n", pretty.Formatter(it))
	}
	return nil
}

func runEmit(env *command.Env, object, iface, member string, rawArgs ...string) error {
	args, err := parseItems(rawArgs)
	if err != nil {
		return env.Usagef("%v", err)
	}
	m, err := dbusmsg.NewSignal(dbusmsg.ObjectPath(object), iface, member)
	if err != nil {
		return env.Usagef("%v", err)
	}
	if err := m.AppendItems(args...); err != nil {
		return fmt.Errorf("encoding signal: %w", err)
	}

	conn, err := busConn(env.Context())
	if err != nil {
		return err
	}
	defer conn.Close()

	serial, err := conn.Send(m)
	if err != nil {
		return fmt.Errorf("sending signal: %w", err)
	}
	if globalArgs.Verbose {
		fmt.Printf("sent %s.%s with serial %d\n", iface, member, serial)
	}
	return nil
}

func listenMatch() *dbusmsg.Match {
	ret := dbusmsg.MatchAllSignals()
	if listenArgs.Sender != "" {
		ret.Sender(listenArgs.Sender)
	}
	if listenArgs.Interface != "" {
		ret.Interface(listenArgs.Interface)
	}
	if listenArgs.Member != "" {
		ret.Member(listenArgs.Member)
	}
	if listenArgs.Path != "" {
		ret.ObjectPrefix(dbusmsg.ObjectPath(listenArgs.Path))
	}
	if listenArgs.Arg0 != "" {
		ret.ArgStr(0, listenArgs.Arg0)
	}
	return ret
}

func runListen(env *command.Env) error {
	conn, err := busConn(env.Context())
	if err != nil {
		return err
	}
	defer conn.Close()

	m := listenMatch()
	ctx, cancel := callContext(env)
	err = conn.AddMatch(ctx, m.String())
	cancel()
	if err != nil {
		return fmt.Errorf("adding match %s: %w", m, err)
	}

	fmt.Println("Listening for signals...")
	events := conn.Events(time.Second)
	for env.Context().Err() == nil {
		ev, ok := events.Next()
		if !ok {
			return errors.New("connection closed")
		}
		if ev.Kind != dbusmsg.EventSignal {
			continue
		}
		// The bus delivers everything this connection subscribed to,
		// including NameAcquired and friends.
		if m.Matches(ev.Message) {
			printSignal(ev.Message)
		}
		ev.Message.Close()
	}
	return nil
}

func printSignal(m *dbusmsg.Message) {
	items, err := m.Items()
	fmt.Printf("Signal %s.%s from %s on object %s:\n", m.Interface().Get(), m.Member().Get(), m.Sender().Get(), m.Path().Get())
	if err != nil {
		fmt.Printf("  undecodable body: %v\n\n", err)
		return
	}
	fmt.Printf("  %# v\n\n", pretty.Formatter(items))
}

func runServe(env *command.Env, object string) error {
	conn, err := busConn(env.Context())
	if err != nil {
		return err
	}
	defer conn.Close()

	path := dbusmsg.ObjectPath(object)
	if err := conn.RegisterObjectPath(path); err != nil {
		return fmt.Errorf("registering %s: %w", path, err)
	}
	fmt.Printf("Serving %s on %s\n", path, conn.UniqueName())

	events := conn.Events(time.Second)
	for env.Context().Err() == nil {
		ev, ok := events.Next()
		if !ok {
			return errors.New("connection closed")
		}
		if ev.Kind != dbusmsg.EventMethodCall {
			continue
		}
		if err := echo(conn, ev.Message); err != nil {
			fmt.Printf("replying to %s: %v\n", ev.Message, err)
		}
		ev.Message.Close()
	}
	fmt.Println("shutdown")
	return nil
}

// echo replies to call with a copy of its arguments.
func echo(conn *dbusmsg.Conn, call *dbusmsg.Message) error {
	fmt.Printf("Got call %s.%s on %s from %s\n", call.Interface().Get(), call.Member().Get(), call.Path().Get(), call.Sender().Get())
	args, err := call.Items()
	var reply *dbusmsg.Message
	if err != nil {
		reply, err = dbusmsg.NewErrorReply(call, "org.freedesktop.DBus.Error.InvalidArgs", err.Error())
	} else {
		reply, err = dbusmsg.NewMethodReturn(call)
		if err == nil {
			err = reply.AppendItems(args...)
		}
	}
	if err != nil {
		return err
	}
	if call.NoReplyExpected() {
		return nil
	}
	_, err = conn.Send(reply)
	return err
}

func runPing(env *command.Env, peer string) error {
	conn, err := busConn(env.Context())
	if err != nil {
		return err
	}
	defer conn.Close()

	ctx, cancel := callContext(env)
	defer cancel()
	start := time.Now()
	if err := conn.Peer(peer).Ping(ctx); err != nil {
		return fmt.Errorf("pinging %s: %w", peer, err)
	}
	fmt.Printf("reply from %s in %v\n", peer, time.Since(start).Round(time.Microsecond))
	return nil
}

func runNames(env *command.Env) error {
	conn, err := busConn(env.Context())
	if err != nil {
		return err
	}
	defer conn.Close()

	ctx, cancel := callContext(env)
	defer cancel()
	names, err := conn.ListNames(ctx)
	if err != nil {
		return fmt.Errorf("listing bus names: %w", err)
	}
	slices.Sort(names)

	aliases := map[string][]string{}
	for _, n := range names {
		if strings.HasPrefix(n, ":") {
			continue
		}
		owner, err := conn.GetNameOwner(ctx, n)
		if err != nil {
			fmt.Printf("Getting owner of %s: %v\n", n, err)
			continue
		}
		aliases[owner] = append(aliases[owner], n)
		aliases[n] = []string{owner}
	}

	for _, n := range names {
		if alias := aliases[n]; len(alias) > 0 {
			fmt.Printf("%s (%s)\n", n, strings.Join(alias, ", "))
		} else {
			fmt.Println(n)
		}
	}
	return nil
}

func runProps(env *command.Env, peer, object, iface string) error {
	conn, err := busConn(env.Context())
	if err != nil {
		return err
	}
	defer conn.Close()

	ctx, cancel := callContext(env)
	defer cancel()
	props, err := conn.Peer(peer).Object(dbusmsg.ObjectPath(object)).Interface(iface).GetAllProperties(ctx)
	if err != nil {
		return fmt.Errorf("listing properties of %s: %w", iface, err)
	}
	for _, k := range slices.Sorted(maps.Keys(props)) {
		fmt.Printf("%s: %v\n", k, props[k])
	}
	return nil
}

func runIntrospect(env *command.Env) error {
	var peer, object string
	switch len(env.Args) {
	case 1:
		peer, object = env.Args[0], "/"
	case 2:
		peer, object = env.Args[0], env.Args[1]
	default:
		return env.Usagef("introspect takes a peer and an optional object")
	}

	conn, err := busConn(env.Context())
	if err != nil {
		return err
	}
	defer conn.Close()

	ctx, cancel := callContext(env)
	defer cancel()

	var out indenter
	for obj, err := range walkObjects(ctx, conn.Peer(peer).Object(dbusmsg.ObjectPath(object))) {
		out.indent(0)
		if err != nil {
			out.v(err)
			continue
		}
		if len(obj.desc.Interfaces) == 0 {
			continue
		}
		out.v(obj.Path())
		out.indent(1)
		for _, name := range slices.Sorted(maps.Keys(obj.desc.Interfaces)) {
			if isStandardInterface(name) {
				continue
			}
			out.v(obj.desc.Interfaces[name])
		}
	}
	return nil
}
