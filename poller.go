package sserelay

import (
	"errors"
	"time"
)

// IOEvents is a bitmask of readiness conditions. A single poll result may
// carry several bits at once.
type IOEvents uint32

const (
	// EventRead indicates the file descriptor is ready for reading.
	EventRead IOEvents = 1 << iota
	// EventWrite indicates the file descriptor is ready for writing.
	EventWrite
	// EventError indicates an error condition on the file descriptor.
	EventError
	// EventHangup indicates the peer closed its end of the connection.
	EventHangup
)

// Event is a single readiness notification.
type Event struct {
	FD     int
	Events IOEvents
}

var (
	ErrFDAlreadyRegistered = errors.New("sserelay: fd already registered")
	ErrFDNotRegistered     = errors.New("sserelay: fd not registered")
	ErrPollerClosed        = errors.New("sserelay: poller closed")
)

// multiplexer watches file descriptors for readiness. Implementations must be
// level-triggered: a condition is reported on every poll for as long as it
// holds. Only the event loop goroutine may call it.
type multiplexer interface {
	Register(fd int, interest IOEvents) error
	Modify(fd int, interest IOEvents) error
	Deregister(fd int) error
	// Poll waits up to timeout for events. The returned slice is reused by
	// the next call.
	Poll(timeout time.Duration) ([]Event, error)
	Close() error
}
