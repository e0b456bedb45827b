// Package transport adapts the raw-fd, raw-syscall device style used for
// the exerciser's host-facing transport: instead of a TUN/TAP Ethernet
// device, beats cross a Unix domain socket as small length-prefixed
// frames. It is exercised only by cmd/exerciser — the core package itself
// is transport-agnostic (it trades in tlp.RequestBeat/tlp.CompletionBeat
// values, not bytes).
package transport

import (
	"encoding/binary"
	"fmt"

	"golang.org/x/sys/unix"
)

// maxFrame bounds one beat's wire encoding: a handful of header DWORDs
// plus at most a max-payload-size's worth of data DWORDs.
const maxFrame = 4096

// Link is the host-facing half-duplex beat channel cmd/exerciser drives.
type Link interface {
	ReadFrame() ([]byte, error)
	WriteFrame(payload []byte) error
	Close() error
}

// SocketLink implements Link over a Unix domain socket, holding the raw
// connection fd directly (mirroring the TAP device's fd-based ownership).
type SocketLink struct {
	listenFd int
	connFd   int
	path     string
}

// Listen creates and binds a Unix domain socket at path, ready to accept
// the single peer connection Accept waits for.
func Listen(path string) (*SocketLink, error) {
	fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		return nil, fmt.Errorf("transport: socket: %w", err)
	}
	_ = unix.Unlink(path)
	addr := &unix.SockaddrUnix{Name: path}
	if err := unix.Bind(fd, addr); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("transport: bind %s: %w", path, err)
	}
	if err := unix.Listen(fd, 1); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("transport: listen %s: %w", path, err)
	}
	return &SocketLink{listenFd: fd, connFd: -1, path: path}, nil
}

// Dial connects to an already-listening SocketLink as the peer side (used
// by test harnesses and standalone host-model clients).
func Dial(path string) (*SocketLink, error) {
	fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		return nil, fmt.Errorf("transport: socket: %w", err)
	}
	addr := &unix.SockaddrUnix{Name: path}
	if err := unix.Connect(fd, addr); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("transport: connect %s: %w", path, err)
	}
	return &SocketLink{listenFd: -1, connFd: fd, path: ""}, nil
}

// Accept blocks for the one peer connection this exerciser instance
// serves (spec.md's core is single-session: no connection multiplexing).
func (l *SocketLink) Accept() error {
	connFd, _, err := unix.Accept(l.listenFd)
	if err != nil {
		return fmt.Errorf("transport: accept: %w", err)
	}
	l.connFd = connFd
	return nil
}

// ReadFrame reads one length-prefixed frame: a 4-byte little-endian
// length followed by that many payload bytes.
func (l *SocketLink) ReadFrame() ([]byte, error) {
	var lenBuf [4]byte
	if err := l.readFull(lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.LittleEndian.Uint32(lenBuf[:])
	if n == 0 || n > maxFrame {
		return nil, fmt.Errorf("transport: implausible frame length %d", n)
	}
	payload := make([]byte, n)
	if err := l.readFull(payload); err != nil {
		return nil, err
	}
	return payload, nil
}

func (l *SocketLink) readFull(buf []byte) error {
	for off := 0; off < len(buf); {
		n, err := unix.Read(l.connFd, buf[off:])
		if err != nil {
			return fmt.Errorf("transport: read: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("transport: peer closed mid-frame")
		}
		off += n
	}
	return nil
}

// WriteFrame writes one length-prefixed frame.
func (l *SocketLink) WriteFrame(payload []byte) error {
	if len(payload) > maxFrame {
		return fmt.Errorf("transport: frame too large: %d bytes", len(payload))
	}
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	if err := l.writeFull(lenBuf[:]); err != nil {
		return err
	}
	return l.writeFull(payload)
}

func (l *SocketLink) writeFull(buf []byte) error {
	for off := 0; off < len(buf); {
		n, err := unix.Write(l.connFd, buf[off:])
		if err != nil {
			return fmt.Errorf("transport: write: %w", err)
		}
		off += n
	}
	return nil
}

// Close releases the connection and listening fds.
func (l *SocketLink) Close() error {
	if l.connFd >= 0 {
		unix.Close(l.connFd)
		l.connFd = -1
	}
	if l.listenFd >= 0 {
		unix.Close(l.listenFd)
		l.listenFd = -1
	}
	_ = unix.Unlink(l.path)
	return nil
}
