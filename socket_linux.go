//go:build linux

package sserelay

import (
	"fmt"
	"io"
	"net"
	"strconv"

	"golang.org/x/sys/unix"
)

// fdStream is a non-blocking socket used directly through its descriptor.
// Reads and writes never block, unix.EAGAIN is returned instead.
type fdStream int

func (s fdStream) Read(p []byte) (int, error) {
	n, err := unix.Read(int(s), p)
	if err != nil {
		return 0, err
	}
	if n == 0 && len(p) > 0 {
		return 0, io.EOF
	}
	return n, nil
}

func (s fdStream) Write(p []byte) (int, error) {
	n, err := unix.Write(int(s), p)
	if err != nil {
		return 0, err
	}
	return n, nil
}

func (s fdStream) Close() error {
	return unix.Close(int(s))
}

// tcpListener is a non-blocking listening socket.
type tcpListener struct {
	fd   int
	addr *net.TCPAddr
}

// listenTCP opens, binds and listens on address:port. Host names are resolved
// to their first address.
func listenTCP(address string, port, backlog int) (*tcpListener, error) {
	addr, err := net.ResolveTCPAddr("tcp", net.JoinHostPort(address, strconv.Itoa(port)))
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", address, err)
	}

	family := unix.AF_INET
	var sa unix.Sockaddr
	if ip4 := addr.IP.To4(); ip4 != nil || addr.IP == nil {
		sa4 := &unix.SockaddrInet4{Port: addr.Port}
		copy(sa4.Addr[:], ip4)
		sa = sa4
	} else {
		family = unix.AF_INET6
		sa6 := &unix.SockaddrInet6{Port: addr.Port}
		copy(sa6.Addr[:], addr.IP.To16())
		sa = sa6
	}

	fd, err := unix.Socket(family, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("socket: %w", err)
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("setsockopt SO_REUSEADDR: %w", err)
	}
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("bind %s: %w", addr, err)
	}
	if backlog <= 0 {
		backlog = unix.SOMAXCONN
	}
	if err := unix.Listen(fd, backlog); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}

	bound, err := unix.Getsockname(fd)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("getsockname: %w", err)
	}
	return &tcpListener{fd: fd, addr: sockaddrToTCP(bound)}, nil
}

func (l *tcpListener) FD() int { return l.fd }

func (l *tcpListener) Addr() net.Addr { return l.addr }

// Accept takes one pending connection. It returns unix.EAGAIN when there is
// nothing to accept.
func (l *tcpListener) Accept() (int, io.ReadWriteCloser, string, error) {
	fd, sa, err := unix.Accept4(l.fd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
	if err != nil {
		return -1, nil, "", err
	}
	remote := ""
	if addr := sockaddrToTCP(sa); addr != nil {
		remote = addr.String()
	}
	return fd, fdStream(fd), remote, nil
}

func (l *tcpListener) Close() error {
	return unix.Close(l.fd)
}

func sockaddrToTCP(sa unix.Sockaddr) *net.TCPAddr {
	switch sa := sa.(type) {
	case *unix.SockaddrInet4:
		return &net.TCPAddr{IP: net.IP(append([]byte(nil), sa.Addr[:]...)), Port: sa.Port}
	case *unix.SockaddrInet6:
		return &net.TCPAddr{IP: net.IP(append([]byte(nil), sa.Addr[:]...)), Port: sa.Port}
	}
	return nil
}
