// Package dbustest runs a private message bus for tests.
package dbustest

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/danderson/dbusmsg"
)

//go:embed dbus.config
var configTemplate string

// Available reports whether dbus-daemon is installed. Monitoring
// additionally needs dbus-monitor, see [New].
func Available() bool {
	_, err := exec.LookPath("dbus-daemon")
	return err == nil
}

// Bus is a private dbus-daemon that lives for the duration of one
// test.
type Bus struct {
	sock string
	// ServiceDir is the bus's service activation directory. Tests
	// may drop .service files in it before connecting.
	ServiceDir string

	lw *logWriter

	mu    sync.Mutex
	stop  bool
	procs []*proc
}

type proc struct {
	name string
	cmd  *exec.Cmd
	done chan struct{}
}

// New starts a bus for the calling test, and shuts it down when the
// test completes. It calls t.Skip if [Available] is false.
//
// If monitor is true and dbus-monitor is installed, all traffic on
// the bus is logged with t.Log.
func New(t *testing.T, monitor bool) *Bus {
	t.Helper()
	if !Available() {
		t.Skip("dbus-daemon not installed, skipping test")
	}

	dir := t.TempDir()
	ret := &Bus{
		sock:       filepath.Join(dir, "bus.sock"),
		ServiceDir: filepath.Join(dir, "services"),
	}
	if err := os.Mkdir(ret.ServiceDir, 0o700); err != nil {
		t.Fatalf("creating service dir: %v", err)
	}
	cfg := filepath.Join(dir, "bus.config")
	body := strings.ReplaceAll(configTemplate, "__SERVICEDIR__", ret.ServiceDir)
	if err := os.WriteFile(cfg, []byte(body), 0o600); err != nil {
		t.Fatalf("writing bus config: %v", err)
	}
	t.Cleanup(ret.shutdown)

	daemon := exec.Command("dbus-daemon", "--config-file="+cfg, "--nofork", "--nopidfile", "--nosyslog", "--address=unix:path="+ret.sock)
	daemon.Stdout = os.Stdout
	daemon.Stderr = os.Stderr
	if err := ret.start("dbus-daemon", daemon); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := waitForSocket(ctx, ret.sock); err != nil {
		t.Fatalf("bus failed to start: %v", err)
	}

	if !monitor {
		return ret
	}
	if _, err := exec.LookPath("dbus-monitor"); err != nil {
		t.Log("dbus-monitor not installed, bus traffic will not be logged")
		return ret
	}
	lw := &logWriter{t: t, first: make(chan struct{})}
	mon := exec.Command("dbus-monitor", "--address", "unix:path="+ret.sock)
	mon.Stdout = lw
	mon.Stderr = lw
	if err := ret.start("dbus-monitor", mon); err != nil {
		t.Fatal(err)
	}
	select {
	case <-lw.first:
	case <-ctx.Done():
		t.Fatalf("waiting for dbus-monitor: %v", ctx.Err())
	}
	ret.lw = lw

	return ret
}

func (b *Bus) start(name string, cmd *exec.Cmd) error {
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting %s: %w", name, err)
	}
	p := &proc{name, cmd, make(chan struct{})}
	b.mu.Lock()
	b.procs = append(b.procs, p)
	b.mu.Unlock()

	go func() {
		defer close(p.done)
		err := cmd.Wait()
		b.mu.Lock()
		defer b.mu.Unlock()
		if !b.stop {
			panic(fmt.Errorf("%s exited prematurely: %w", name, err))
		}
	}()
	return nil
}

func (b *Bus) shutdown() {
	b.mu.Lock()
	b.stop = true
	procs := b.procs
	b.mu.Unlock()

	// Stop in reverse order, so the monitor sees the bus go away
	// last.
	timeout := time.After(10 * time.Second)
	for i := len(procs) - 1; i >= 0; i-- {
		p := procs[i]
		p.cmd.Process.Kill()
		select {
		case <-p.done:
		case <-timeout:
			fmt.Fprintf(os.Stderr, "dbustest: timed out waiting for %s to exit\n", p.name)
		}
	}
	if b.lw != nil {
		b.lw.flush()
	}
}

func waitForSocket(ctx context.Context, path string) error {
	tick := time.NewTicker(10 * time.Millisecond)
	defer tick.Stop()
	for {
		_, err := os.Stat(path)
		if err == nil {
			return nil
		} else if !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		select {
		case <-tick.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Socket returns the path to the bus's unix socket.
func (b *Bus) Socket() string {
	return b.sock
}

// MustConn returns a new connection to the bus, which is closed when
// the test completes. It calls t.Fatal if the connection fails.
func (b *Bus) MustConn(t *testing.T) *dbusmsg.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	ret, err := dbusmsg.Dial(ctx, b.sock)
	if err != nil {
		t.Fatalf("connecting to test bus: %v", err)
	}
	t.Cleanup(func() { ret.Close() })
	return ret
}

// logWriter logs dbus-monitor output, one bus message per log call.
type logWriter struct {
	t     *testing.T
	first chan struct{}

	mu      sync.Mutex
	buf     bytes.Buffer
	started bool
}

// isMessageStart reports whether line begins a new message in
// dbus-monitor's output.
func isMessageStart(line []byte) bool {
	for _, p := range []string{"method ", "signal ", "error "} {
		if bytes.HasPrefix(line, []byte(p)) {
			return true
		}
	}
	return false
}

func (l *logWriter) Write(bs []byte) (int, error) {
	n := len(bs)
	l.mu.Lock()
	defer l.mu.Unlock()
	for len(bs) > 0 {
		line := bs
		if i := bytes.IndexByte(bs, '\n'); i >= 0 {
			line = bs[:i+1]
		}
		bs = bs[len(line):]
		if isMessageStart(line) {
			l.emit()
		}
		l.buf.Write(line)
	}
	return n, nil
}

func (l *logWriter) emit() {
	if l.buf.Len() > 0 {
		l.t.Log(strings.TrimRight(l.buf.String(), "\n"))
		l.buf.Reset()
	}
	if !l.started {
		l.started = true
		close(l.first)
	}
}

func (l *logWriter) flush() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.buf.Len() > 0 {
		l.t.Log(strings.TrimRight(l.buf.String(), "\n"))
		l.buf.Reset()
	}
}
