package transport

import (
	"bufio"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/creachadair/mds/queue"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// Transport is a raw DBus connection.
type Transport interface {
	io.ReadWriteCloser

	// TakeFiles claims the n files that arrived with the message
	// most recently read. Files that arrived with the bytes of that
	// message or earlier ones, and are not claimed, are closed.
	TakeFiles(n int) ([]*os.File, error)
}

// DialUnix connects to the bus at the given path, and performs the
// DBus authentication handshake. Handshake and socket errors are
// reported to log, which may be nil.
//
// A path starting with '@' names a socket in the Linux abstract
// socket namespace.
func DialUnix(ctx context.Context, path string, log *zap.Logger) (Transport, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.With(zap.String("socket", path))

	var d net.Dialer
	c, err := d.DialContext(ctx, "unix", path)
	if err != nil {
		return nil, err
	}
	ret := &unixTransport{
		conn:  c.(*net.UnixConn),
		log:   log,
		files: queue.New[arrival](),
	}
	ret.in = bufio.NewReader(funcReader(ret.recv))

	deadline, _ := ctx.Deadline()
	if err := ret.handshake(deadline); err != nil {
		log.Warn("dbus handshake failed", zap.Error(err))
		ret.Close()
		return nil, err
	}
	return ret, nil
}

// arrival is a file received as ancillary data, with the stream
// offset of the first byte that carried it.
type arrival struct {
	at int64
	f  *os.File
}

// unixTransport is a Transport that runs over a Unix domain socket.
type unixTransport struct {
	conn *net.UnixConn
	log  *zap.Logger
	in   *bufio.Reader
	ctrl [512]byte

	// received counts the bytes read from conn so far. Only the
	// reading goroutine touches it.
	received int64

	mu     sync.Mutex
	files  *queue.Queue[arrival]
	closed bool
}

func (u *unixTransport) Read(bs []byte) (int, error) {
	return u.in.Read(bs)
}

func (u *unixTransport) Write(bs []byte) (int, error) {
	return u.conn.Write(bs)
}

func (u *unixTransport) Close() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.closed = true
	u.dropFiles(func(arrival) bool { return true })
	return u.conn.Close()
}

// consumed returns the stream offset of the next byte Read returns.
func (u *unixTransport) consumed() int64 {
	return u.received - int64(u.in.Buffered())
}

func (u *unixTransport) TakeFiles(n int) ([]*os.File, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	end := u.consumed()
	ret := make([]*os.File, 0, n)
	for range n {
		a, ok := u.files.Peek(0)
		if !ok || a.at >= end {
			for _, f := range ret {
				f.Close()
			}
			return nil, fmt.Errorf("message wants %d files, only %d received", n, len(ret))
		}
		u.files.Pop()
		ret = append(ret, a.f)
	}
	if stray := u.dropFiles(func(a arrival) bool { return a.at < end }); stray > 0 {
		u.log.Warn("closed unclaimed files", zap.Int("count", stray))
	}
	return ret, nil
}

// dropFiles closes and discards queued files from the front of the
// queue while match reports true, and returns how many it closed.
// u.mu must be held.
func (u *unixTransport) dropFiles(match func(arrival) bool) int {
	n := 0
	for {
		a, ok := u.files.Peek(0)
		if !ok || !match(a) {
			return n
		}
		u.files.Pop()
		a.f.Close()
		n++
	}
}

// handshake runs the EXTERNAL authentication exchange.
//
// Busses on unix sockets authenticate clients from the socket's peer
// credentials, so the whole exchange is sent at once and only the
// replies are checked.
func (u *unixTransport) handshake(deadline time.Time) error {
	if err := u.conn.SetDeadline(deadline); err != nil {
		return err
	}
	uid := hex.EncodeToString([]byte(strconv.Itoa(os.Getuid())))
	req := "\x00AUTH EXTERNAL " + uid + "\r\nNEGOTIATE_UNIX_FD\r\nBEGIN\r\n"
	if _, err := io.WriteString(u.conn, req); err != nil {
		return fmt.Errorf("sending auth request: %w", err)
	}
	guid, err := u.authReply("OK", "AUTH EXTERNAL")
	if err != nil {
		return err
	}
	if _, err := u.authReply("AGREE_UNIX_FD", "NEGOTIATE_UNIX_FD"); err != nil {
		return err
	}
	u.log.Debug("dbus handshake complete", zap.String("server_guid", guid))
	return u.conn.SetDeadline(time.Time{})
}

// authReply reads one line of the handshake, which must start with
// the command want, and returns the rest of the line.
func (u *unixTransport) authReply(want, step string) (string, error) {
	line, err := u.in.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("reading reply to %s: %w", step, err)
	}
	line = strings.TrimRight(line, "\r\n")
	cmd, arg, _ := strings.Cut(line, " ")
	if cmd != want {
		return "", fmt.Errorf("%s failed, server said %q", step, line)
	}
	return arg, nil
}

// recv reads from the socket into bs, queueing any files that
// arrive alongside the data.
func (u *unixTransport) recv(bs []byte) (int, error) {
	n, ctrln, flags, _, err := u.conn.ReadMsgUnix(bs, u.ctrl[:])
	at := u.received
	u.received += int64(n)
	if ctrln > 0 {
		if ferr := u.queueFiles(at, u.ctrl[:ctrln]); ferr != nil {
			err = errors.Join(err, ferr)
		}
	}
	if err == nil && flags&unix.MSG_CTRUNC != 0 {
		err = errors.New("control message truncated, files were lost")
	}
	if err != nil {
		if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
			u.log.Error("dbus socket read failed", zap.Error(err))
		}
		u.Close()
		return 0, err
	}
	return n, nil
}

// queueFiles extracts the files in the control message ctrl. Every
// file is queued even if some fail to parse, so that Close can
// release them all.
func (u *unixTransport) queueFiles(at int64, ctrl []byte) error {
	msgs, err := unix.ParseSocketControlMessage(ctrl)
	if err != nil {
		return err
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	var errs []error
	for _, msg := range msgs {
		if msg.Header.Level != unix.SOL_SOCKET || msg.Header.Type != unix.SCM_RIGHTS {
			continue
		}
		fds, err := unix.ParseUnixRights(&msg)
		if err != nil {
			errs = append(errs, fmt.Errorf("parsing unix rights: %w", err))
			continue
		}
		for _, fd := range fds {
			if u.closed {
				unix.Close(fd)
				continue
			}
			f := os.NewFile(uintptr(fd), "dbus-fd")
			if f == nil {
				errs = append(errs, fmt.Errorf("invalid file descriptor %d received on dbus socket", fd))
				continue
			}
			u.files.Add(arrival{at, f})
		}
	}
	return errors.Join(errs...)
}

type funcReader func([]byte) (int, error)

func (f funcReader) Read(bs []byte) (int, error) {
	return f(bs)
}
