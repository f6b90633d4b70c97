//go:build linux

package sserelay

import (
	"time"

	"golang.org/x/sys/unix"
)

// epoller is a level-triggered multiplexer backed by epoll.
type epoller struct {
	epfd     int
	interest map[int]IOEvents
	eventBuf []unix.EpollEvent
	events   []Event
	closed   bool
}

func newEpoller(maxEvents int) (*epoller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	return &epoller{
		epfd:     epfd,
		interest: make(map[int]IOEvents),
		eventBuf: make([]unix.EpollEvent, maxEvents),
		events:   make([]Event, 0, maxEvents),
	}, nil
}

func (p *epoller) Register(fd int, interest IOEvents) error {
	if p.closed {
		return ErrPollerClosed
	}
	if _, ok := p.interest[fd]; ok {
		return ErrFDAlreadyRegistered
	}
	ev := &unix.EpollEvent{Events: eventsToEpoll(interest), Fd: int32(fd)}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, ev); err != nil {
		return err
	}
	p.interest[fd] = interest
	return nil
}

func (p *epoller) Modify(fd int, interest IOEvents) error {
	if p.closed {
		return ErrPollerClosed
	}
	if _, ok := p.interest[fd]; !ok {
		return ErrFDNotRegistered
	}
	ev := &unix.EpollEvent{Events: eventsToEpoll(interest), Fd: int32(fd)}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_MOD, fd, ev); err != nil {
		return err
	}
	p.interest[fd] = interest
	return nil
}

// Deregister forgets fd even when the kernel refuses the removal, the caller
// is about to close the descriptor anyway.
func (p *epoller) Deregister(fd int) error {
	if p.closed {
		return ErrPollerClosed
	}
	if _, ok := p.interest[fd]; !ok {
		return ErrFDNotRegistered
	}
	delete(p.interest, fd)
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil)
}

func (p *epoller) Poll(timeout time.Duration) ([]Event, error) {
	if p.closed {
		return nil, ErrPollerClosed
	}
	n, err := unix.EpollWait(p.epfd, p.eventBuf, int(timeout/time.Millisecond))
	if err != nil {
		if err == unix.EINTR {
			return p.events[:0], nil
		}
		return nil, err
	}
	p.events = p.events[:0]
	for i := 0; i < n; i++ {
		p.events = append(p.events, Event{
			FD:     int(p.eventBuf[i].Fd),
			Events: epollToEvents(p.eventBuf[i].Events),
		})
	}
	return p.events, nil
}

func (p *epoller) Close() error {
	if p.closed {
		return nil
	}
	p.closed = true
	return unix.Close(p.epfd)
}

// eventsToEpoll converts IOEvents to epoll event flags. Read interest also
// asks for EPOLLRDHUP so a peer shutdown is reported as a hang-up.
func eventsToEpoll(events IOEvents) uint32 {
	var epollEvents uint32
	if events&EventRead != 0 {
		epollEvents |= unix.EPOLLIN | unix.EPOLLRDHUP
	}
	if events&EventWrite != 0 {
		epollEvents |= unix.EPOLLOUT
	}
	return epollEvents
}

// epollToEvents converts epoll event flags to IOEvents.
func epollToEvents(epollEvents uint32) IOEvents {
	var events IOEvents
	if epollEvents&unix.EPOLLIN != 0 {
		events |= EventRead
	}
	if epollEvents&unix.EPOLLOUT != 0 {
		events |= EventWrite
	}
	if epollEvents&unix.EPOLLERR != 0 {
		events |= EventError
	}
	if epollEvents&(unix.EPOLLHUP|unix.EPOLLRDHUP) != 0 {
		events |= EventHangup
	}
	return events
}
