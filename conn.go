package sserelay

import (
	"io"
	"time"

	"github.com/eapache/queue"
)

// conn is a single accepted client. All fields are owned by the event loop.
type conn struct {
	fd       int
	rw       io.ReadWriteCloser
	remote   string
	created  time.Time
	interest IOEvents

	out     []byte       // unwritten remainder of the payload in flight
	seen    uint64       // sequence of the last broadcast taken, PolicyLatest
	backlog *queue.Queue // payloads not yet taken, PolicyQueue

	msgsSent  uint64
	bytesSent uint64
}

func (c *conn) status() ConnectionStatus {
	return ConnectionStatus{
		FD:        c.fd,
		Remote:    c.remote,
		Created:   c.created.Unix(),
		MsgsSent:  c.msgsSent,
		BytesSent: c.bytesSent,
	}
}

// registry maps descriptors to live connections. It is the only owner of
// accepted sockets.
type registry struct {
	conns map[int]*conn
}

func newRegistry() *registry {
	return &registry{conns: make(map[int]*conn)}
}

func (r *registry) add(c *conn) {
	r.conns[c.fd] = c
}

func (r *registry) get(fd int) *conn {
	return r.conns[fd]
}

// remove deletes fd and returns the connection it held, or nil if fd was not
// registered.
func (r *registry) remove(fd int) *conn {
	c, ok := r.conns[fd]
	if !ok {
		return nil
	}
	delete(r.conns, fd)
	return c
}

func (r *registry) len() int {
	return len(r.conns)
}
