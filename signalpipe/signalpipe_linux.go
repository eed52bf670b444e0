//go:build linux

package signalpipe

import (
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// New creates a signal pipe. edgeTriggered controls how Clear drains
// the kernel buffer and how RegisterEpoll arms EPOLLET.
func New(edgeTriggered bool, log *zap.Logger) (*Pipe, error) {
	if log == nil {
		log = zap.NewNop()
	}
	readFD, writeFD, err := newPipeFDs()
	if err != nil {
		return nil, err
	}
	return &Pipe{readFD: readFD, writeFD: writeFD, edgeTriggered: edgeTriggered, log: log}, nil
}

func newPipeFDs() (readFD, writeFD int, err error) {
	var fds [2]int
	if err := unix.Pipe2(fds[:], unix.O_NONBLOCK|unix.O_CLOEXEC); err == nil {
		return fds[0], fds[1], nil
	}
	return newPipeFallback()
}

// RegisterEpoll adds the pipe's read end to epfd, watching for
// readability (EPOLLIN), optionally edge-triggered (EPOLLET) if the
// pipe was constructed with edgeTriggered set.
func (p *Pipe) RegisterEpoll(epfd int) error {
	events := uint32(unix.EPOLLIN)
	if p.edgeTriggered {
		events |= unix.EPOLLET
	}
	ev := unix.EpollEvent{Events: events, Fd: int32(p.readFD)}
	return unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, p.readFD, &ev)
}
