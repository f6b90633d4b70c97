//go:build linux

package sserelay

import (
	"bytes"
	"errors"
	"os"

	"golang.org/x/sys/unix"
)

// ErrBridgeClosed is returned by Relay.Run when the write end of the bridge
// pipe was closed while the event loop was still running.
var ErrBridgeClosed = errors.New("sserelay: bridge closed")

// bridge is a pipe that carries queue values from the worker goroutine into
// the event loop. The read end is non-blocking and watched by the
// multiplexer, the write end stays blocking so a stalled loop applies
// backpressure to the worker.
type bridge struct {
	rfd int
	w   *os.File
	buf [4096]byte
}

func newBridge() (*bridge, error) {
	var fds [2]int
	if err := unix.Pipe2(fds[:], unix.O_CLOEXEC); err != nil {
		return nil, err
	}
	if err := unix.SetNonblock(fds[0], true); err != nil {
		unix.Close(fds[0])
		unix.Close(fds[1])
		return nil, err
	}
	return &bridge{
		rfd: fds[0],
		w:   os.NewFile(uintptr(fds[1]), "sserelay-bridge"),
	}, nil
}

// drain reads until the pipe is empty and returns everything read as one
// value, a single readiness notification may cover several worker writes.
// ErrBridgeClosed is returned together with any bytes read before the end of
// file.
func (b *bridge) drain() ([]byte, error) {
	var out bytes.Buffer
	for {
		n, err := unix.Read(b.rfd, b.buf[:])
		switch {
		case err == unix.EINTR:
			continue
		case err == unix.EAGAIN:
			return out.Bytes(), nil
		case err != nil:
			return out.Bytes(), err
		case n == 0:
			return out.Bytes(), ErrBridgeClosed
		}
		out.Write(b.buf[:n])
	}
}

// closeReader closes the read end. A worker blocked writing into a full pipe
// gets EPIPE and returns.
func (b *bridge) closeReader() error {
	if b.rfd < 0 {
		return nil
	}
	err := unix.Close(b.rfd)
	b.rfd = -1
	return err
}

func (b *bridge) closeWriter() error {
	return b.w.Close()
}
