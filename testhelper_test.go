//go:build linux

package sserelay

import (
	"bytes"
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

// fakeMux is a multiplexer that only records interest. Tests feed events to
// Relay.dispatch directly.
type fakeMux struct {
	interest  map[int]IOEvents
	modifyErr map[int]error
	modifies  int
}

func newFakeMux() *fakeMux {
	return &fakeMux{
		interest:  make(map[int]IOEvents),
		modifyErr: make(map[int]error),
	}
}

func (m *fakeMux) Register(fd int, interest IOEvents) error {
	if _, ok := m.interest[fd]; ok {
		return ErrFDAlreadyRegistered
	}
	m.interest[fd] = interest
	return nil
}

func (m *fakeMux) Modify(fd int, interest IOEvents) error {
	m.modifies++
	if err := m.modifyErr[fd]; err != nil {
		return err
	}
	if _, ok := m.interest[fd]; !ok {
		return ErrFDNotRegistered
	}
	m.interest[fd] = interest
	return nil
}

func (m *fakeMux) Deregister(fd int) error {
	if _, ok := m.interest[fd]; !ok {
		return ErrFDNotRegistered
	}
	delete(m.interest, fd)
	return nil
}

func (m *fakeMux) Poll(timeout time.Duration) ([]Event, error) {
	time.Sleep(timeout)
	return nil, nil
}

func (m *fakeMux) Close() error { return nil }

// fakeStream is a client socket. Reads return queued data, then io.EOF if
// eof is set, otherwise unix.EAGAIN.
type fakeStream struct {
	reads    int
	closes   int
	incoming [][]byte
	eof      bool
	readErr  error
	limit    int // bytes accepted per write, zero is unlimited
	writeErr error
	written  bytes.Buffer
}

func (s *fakeStream) Read(p []byte) (int, error) {
	s.reads++
	if s.readErr != nil {
		return 0, s.readErr
	}
	if len(s.incoming) > 0 {
		n := copy(p, s.incoming[0])
		s.incoming = s.incoming[1:]
		return n, nil
	}
	if s.eof {
		return 0, io.EOF
	}
	return 0, unix.EAGAIN
}

func (s *fakeStream) Write(p []byte) (int, error) {
	if s.writeErr != nil {
		return 0, s.writeErr
	}
	n := len(p)
	if s.limit > 0 && n > s.limit {
		n = s.limit
	}
	s.written.Write(p[:n])
	return n, nil
}

func (s *fakeStream) Close() error {
	s.closes++
	return nil
}

type fakeAccept struct {
	fd     int
	stream *fakeStream
	err    error
}

type fakeListener struct {
	fd      int
	pending []fakeAccept
}

func (l *fakeListener) FD() int { return l.fd }

func (l *fakeListener) Addr() net.Addr {
	return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 1234}
}

func (l *fakeListener) Accept() (int, io.ReadWriteCloser, string, error) {
	if len(l.pending) == 0 {
		return -1, nil, "", unix.EAGAIN
	}
	a := l.pending[0]
	l.pending = l.pending[1:]
	if a.err != nil {
		return -1, nil, "", a.err
	}
	return a.fd, a.stream, "127.0.0.1:40000", nil
}

func (l *fakeListener) Close() error { return nil }

const listenerFD = 900

type testRelay struct {
	*Relay
	mux    *fakeMux
	ln     *fakeListener
	bridge *bridge
	logs   *test.Hook
}

func testConfig() Config {
	cfg := DefaultConfig
	cfg.Port = 0
	cfg.PollTimeout = 10 * time.Millisecond
	cfg.RetryMin = time.Millisecond
	cfg.RetryMax = 10 * time.Millisecond
	return cfg
}

// newTestRelay creates a relay over a fake multiplexer and listener and a
// real bridge pipe.
func newTestRelay(t *testing.T, cfg Config) *testRelay {
	t.Helper()

	br, err := newBridge()
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = br.closeReader()
		_ = br.closeWriter()
	})

	log, hook := test.NewNullLogger()
	log.SetLevel(logrus.DebugLevel)

	mux := newFakeMux()
	ln := &fakeListener{fd: listenerFD}
	r, err := newRelay(cfg, nopQueue{}, mux, ln, br, WithLogger(log))
	require.NoError(t, err)

	return &testRelay{Relay: r, mux: mux, ln: ln, bridge: br, logs: hook}
}

// connect accepts a fake client on fd.
func (tr *testRelay) connect(t *testing.T, fd int) *fakeStream {
	t.Helper()
	s := &fakeStream{}
	tr.ln.pending = append(tr.ln.pending, fakeAccept{fd: fd, stream: s})
	require.NoError(t, tr.dispatch(Event{FD: listenerFD, Events: EventRead}))
	require.NotNil(t, tr.conns.get(fd))
	return s
}

// publish writes every chunk into the bridge before the loop drains it once.
func (tr *testRelay) publish(t *testing.T, chunks ...string) {
	t.Helper()
	for _, c := range chunks {
		_, err := tr.bridge.w.Write([]byte(c))
		require.NoError(t, err)
	}
	require.NoError(t, tr.dispatch(Event{FD: tr.bridge.rfd, Events: EventRead}))
}

// flushAll delivers writable events to fd until it is demoted to read only.
func (tr *testRelay) flushAll(t *testing.T, fd int) {
	t.Helper()
	for i := 0; tr.mux.interest[fd]&EventWrite != 0; i++ {
		require.Less(t, i, 1000, "connection never finished writing")
		require.NoError(t, tr.dispatch(Event{FD: fd, Events: EventWrite}))
	}
}

// body returns what was written after the preamble.
func (tr *testRelay) body(s *fakeStream) string {
	return string(bytes.TrimPrefix(s.written.Bytes(), tr.preamble))
}

type nopQueue struct{}

func (nopQueue) Pop(ctx context.Context) ([]byte, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

// chanQueue pops values sent on the channel.
type chanQueue chan []byte

func (q chanQueue) Pop(ctx context.Context) ([]byte, error) {
	select {
	case b := <-q:
		return b, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
