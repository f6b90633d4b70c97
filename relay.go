//go:build linux

package sserelay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"
)

var (
	// ErrRelayStarted is returned by Run if the relay was already run or
	// closed. A relay can not be restarted.
	ErrRelayStarted = errors.New("sserelay: relay already started")

	// ErrListenerFailed is returned by Run when the listening socket
	// reports an error condition.
	ErrListenerFailed = errors.New("sserelay: listening socket failed")
)

// listener accepts client connections without blocking.
type listener interface {
	FD() int
	Addr() net.Addr
	// Accept returns unix.EAGAIN when no connection is pending.
	Accept() (fd int, rw io.ReadWriteCloser, remote string, err error)
	Close() error
}

// Option customizes a relay created with New.
type Option func(r *Relay)

// WithLogger sets the logger, logrus.StandardLogger() is used by default.
func WithLogger(log logrus.FieldLogger) Option {
	return func(r *Relay) {
		r.log = log
	}
}

// WithRegistry registers relay metrics in reg instead of a private registry.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(r *Relay) {
		r.registry = reg
	}
}

// Relay fans out queue values to event-stream clients. Create it with New and
// start it with Run.
type Relay struct {
	cfg      Config
	log      logrus.FieldLogger
	registry *prometheus.Registry
	metrics  *metrics
	tracker  *tracker
	delivery delivery
	preamble []byte

	mux    multiplexer
	ln     listener
	bridge *bridge
	worker *worker

	// owned by the event loop goroutine
	conns   *registry
	pending broadcast
	scratch [1024]byte

	started    atomic.Bool
	broadcasts atomic.Uint64
	startup    time.Time
	closeOnce  sync.Once
	closeErr   error
}

// New binds the listening socket and prepares the relay. Values are read from
// queue once Run is called.
func New(cfg Config, queue Queue, opts ...Option) (*Relay, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	mux, err := newEpoller(cfg.MaxEvents)
	if err != nil {
		return nil, fmt.Errorf("epoll create: %w", err)
	}
	ln, err := listenTCP(cfg.Address, cfg.Port, cfg.Backlog)
	if err != nil {
		mux.Close()
		return nil, err
	}
	br, err := newBridge()
	if err != nil {
		mux.Close()
		ln.Close()
		return nil, fmt.Errorf("bridge pipe: %w", err)
	}

	r, err := newRelay(cfg, queue, mux, ln, br, opts...)
	if err != nil {
		mux.Close()
		ln.Close()
		br.closeReader()
		br.closeWriter()
		return nil, err
	}
	return r, nil
}

func newRelay(cfg Config, queue Queue, mux multiplexer, ln listener, br *bridge, opts ...Option) (*Relay, error) {
	r := &Relay{
		cfg:      cfg,
		log:      logrus.StandardLogger(),
		tracker:  newTracker(cfg.HistoryTTL),
		delivery: newDelivery(cfg),
		preamble: preamble(cfg.Reconnect),
		mux:      mux,
		ln:       ln,
		bridge:   br,
		conns:    newRegistry(),
		startup:  time.Now(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.registry == nil {
		r.registry = prometheus.NewRegistry()
	}
	r.metrics = newMetrics(r.registry)
	r.worker = &worker{
		queue:    queue,
		sink:     br.w,
		log:      r.log.WithField("component", "worker"),
		retryMin: cfg.RetryMin,
		retryMax: cfg.RetryMax,
	}

	// Listening socket and bridge stay registered for the relay lifetime
	if err := mux.Register(ln.FD(), EventRead); err != nil {
		return nil, fmt.Errorf("register listener: %w", err)
	}
	if err := mux.Register(br.rfd, EventRead); err != nil {
		return nil, fmt.Errorf("register bridge: %w", err)
	}
	return r, nil
}

// Addr returns the address the relay listens on.
func (r *Relay) Addr() net.Addr {
	return r.ln.Addr()
}

// Run starts the queue worker and runs the event loop until ctx is cancelled
// or a fatal error occurs. All connections and sockets are closed before Run
// returns. Run returns nil after a cancellation.
func (r *Relay) Run(ctx context.Context) error {
	if !r.started.CompareAndSwap(false, true) {
		return ErrRelayStarted
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer r.bridge.closeWriter()
		return r.worker.run(ctx)
	})
	g.Go(func() error {
		err := r.loop(ctx)
		return multierr.Append(err, r.shutdown())
	})
	return g.Wait()
}

// Close releases the resources of a relay that was never run. It is a no-op
// once Run was called, Run cleans up after itself.
func (r *Relay) Close() error {
	if !r.started.CompareAndSwap(false, true) {
		return nil
	}
	return multierr.Append(r.shutdown(), r.bridge.closeWriter())
}

func (r *Relay) loop(ctx context.Context) error {
	r.log.WithField("addr", r.Addr()).Info("relay listening")
	for ctx.Err() == nil {
		events, err := r.mux.Poll(r.cfg.PollTimeout)
		if err != nil {
			return fmt.Errorf("poll: %w", err)
		}
		for _, ev := range events {
			if err := r.dispatch(ev); err != nil {
				if ctx.Err() != nil {
					// the worker closes the bridge once cancelled
					return nil
				}
				return err
			}
		}
		runtime.Gosched()
	}
	return nil
}

// dispatch handles one readiness event. Event bits are checked independently,
// a hang-up or error ends handling of a client connection.
func (r *Relay) dispatch(ev Event) error {
	switch ev.FD {
	case r.ln.FD():
		if ev.Events&(EventHangup|EventError) != 0 {
			return ErrListenerFailed
		}
		if ev.Events&EventRead != 0 {
			r.acceptNew()
		}
		return nil
	case r.bridge.rfd:
		// a hang-up on the bridge still leaves data to drain
		return r.receive()
	}

	c := r.conns.get(ev.FD)
	if c == nil {
		// stale event for a connection closed earlier in this batch
		return nil
	}
	if ev.Events&(EventHangup|EventError) != 0 {
		r.close(c.fd, "hangup")
		return nil
	}
	if ev.Events&EventRead != 0 && !r.consume(c) {
		return nil
	}
	if ev.Events&EventWrite != 0 {
		r.flush(c)
	}
	return nil
}

// acceptNew accepts exactly one pending connection. If more are pending the
// listener stays readable and the next poll reports it again.
func (r *Relay) acceptNew() {
	fd, rw, remote, err := r.ln.Accept()
	if err != nil {
		if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EINTR) {
			return
		}
		r.metrics.acceptErrors.Inc()
		r.log.WithError(err).Warn("accept failed")
		return
	}

	log := r.log.WithFields(logrus.Fields{"fd": fd, "remote": remote})
	if err := r.mux.Register(fd, EventRead); err != nil {
		r.metrics.acceptErrors.Inc()
		log.WithError(err).Warn("register connection failed")
		if err := rw.Close(); err != nil {
			log.WithError(err).Debug("close failed")
		}
		return
	}

	c := &conn{
		fd:       fd,
		rw:       rw,
		remote:   remote,
		created:  time.Now(),
		interest: EventRead,
		seen:     r.pending.seq, // only broadcasts arriving from now on
	}
	r.conns.add(c)
	r.tracker.update(c)
	r.metrics.accepted.Inc()
	r.metrics.open.Inc()
	log.Info("client connected")

	n, err := rw.Write(r.preamble)
	if err != nil && !errors.Is(err, unix.EAGAIN) {
		log.WithError(err).Debug("write preamble failed")
		r.close(fd, "write")
		return
	}
	if n < len(r.preamble) {
		c.out = r.preamble[n:]
		r.setInterest(c, EventRead|EventWrite)
	}
}

// close removes fd from the registry and the multiplexer and closes its
// stream. Closing an unknown fd is a no-op.
func (r *Relay) close(fd int, reason string) {
	c := r.conns.remove(fd)
	if c == nil {
		return
	}
	log := r.log.WithFields(logrus.Fields{"fd": fd, "remote": c.remote, "reason": reason})
	if err := r.mux.Deregister(fd); err != nil {
		log.WithError(err).Debug("deregister failed")
	}
	if err := c.rw.Close(); err != nil {
		log.WithError(err).Debug("close failed")
	}
	r.tracker.remove(c, reason)
	r.metrics.closed.WithLabelValues(reason).Inc()
	r.metrics.open.Dec()
	log.Info("client disconnected")
}

// consume reads whatever the client sent and discards it. It reports false
// if the connection was closed.
func (r *Relay) consume(c *conn) bool {
	n, err := c.rw.Read(r.scratch[:])
	switch {
	case err == nil:
		r.log.WithFields(logrus.Fields{"fd": c.fd, "bytes": n}).Debug("ignoring client data")
		return true
	case errors.Is(err, unix.EAGAIN), errors.Is(err, unix.EINTR):
		return true
	case errors.Is(err, io.EOF):
		r.close(c.fd, "eof")
	default:
		r.log.WithError(err).WithField("fd", c.fd).Debug("read failed")
		r.close(c.fd, "read")
	}
	return false
}

// receive drains the bridge into the pending broadcast and arms every
// connection for writing.
func (r *Relay) receive() error {
	data, err := r.bridge.drain()
	if len(data) > 0 {
		r.pending.set(data)
		r.broadcasts.Add(1)
		r.metrics.broadcasts.Inc()
		r.metrics.bridgeBytes.Add(float64(len(data)))
		r.log.WithFields(logrus.Fields{"bytes": len(data), "clients": r.conns.len()}).Debug("broadcast received")
		r.armForWrite()
	}
	if err != nil {
		if errors.Is(err, ErrBridgeClosed) {
			return err
		}
		return fmt.Errorf("read bridge: %w", err)
	}
	return nil
}

// armForWrite offers the pending broadcast to every connection and enables
// writable interest on those not armed yet.
func (r *Relay) armForWrite() {
	for fd, c := range r.conns.conns {
		if !r.delivery.offer(c, &r.pending) {
			r.close(fd, "slow")
			continue
		}
		r.setInterest(c, EventRead|EventWrite)
	}
}

// flush writes the connection's next chunk. The connection stays writable
// armed until everything it has to deliver was accepted by the socket.
func (r *Relay) flush(c *conn) {
	if len(c.out) == 0 {
		if c.out = r.delivery.next(c, &r.pending); c.out != nil {
			c.msgsSent++
		}
	}
	if len(c.out) == 0 {
		r.setInterest(c, EventRead)
		return
	}

	r.metrics.writes.Inc()
	n, err := c.rw.Write(c.out)
	if err != nil {
		if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EINTR) {
			return
		}
		r.log.WithError(err).WithField("fd", c.fd).Debug("write failed")
		r.close(c.fd, "write")
		return
	}
	r.metrics.bytesWritten.Add(float64(n))
	c.bytesSent += uint64(n)
	if n < len(c.out) {
		r.metrics.shortWrites.Inc()
		r.log.WithFields(logrus.Fields{"fd": c.fd, "bytes": n, "len": len(c.out)}).Debug("short write")
		c.out = c.out[n:]
		return
	}
	c.out = nil
	r.tracker.update(c)

	if c.out = r.delivery.next(c, &r.pending); c.out != nil {
		c.msgsSent++
		return
	}
	r.setInterest(c, EventRead)
}

// setInterest updates the connection's interest mask. A failure means the
// descriptor was invalidated underneath us and the connection is closed.
func (r *Relay) setInterest(c *conn, interest IOEvents) bool {
	if c.interest == interest {
		return true
	}
	if err := r.mux.Modify(c.fd, interest); err != nil {
		r.log.WithError(err).WithField("fd", c.fd).Debug("modify interest failed")
		r.close(c.fd, "modify")
		return false
	}
	c.interest = interest
	return true
}

// shutdown closes every connection and the relay's own descriptors.
func (r *Relay) shutdown() error {
	r.closeOnce.Do(func() {
		for fd := range r.conns.conns {
			r.close(fd, "shutdown")
		}
		r.closeErr = multierr.Combine(
			r.mux.Close(),
			r.ln.Close(),
			r.bridge.closeReader(),
		)
		r.log.Info("relay stopped")
	})
	return r.closeErr
}
