//go:build darwin || freebsd || netbsd || openbsd

package signalpipe

import (
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// New creates a signal pipe. edgeTriggered controls how Clear drains
// the kernel buffer and how RegisterKqueue arms EV_CLEAR.
func New(edgeTriggered bool, log *zap.Logger) (*Pipe, error) {
	if log == nil {
		log = zap.NewNop()
	}
	readFD, writeFD, err := newPipeFallback()
	if err != nil {
		return nil, err
	}
	return &Pipe{readFD: readFD, writeFD: writeFD, edgeTriggered: edgeTriggered, log: log}, nil
}

// RegisterKqueue adds the pipe's read end to the kqueue kq, watching
// EVFILT_READ, optionally edge-triggered (EV_CLEAR) if the pipe was
// constructed with edgeTriggered set.
func (p *Pipe) RegisterKqueue(kq int) error {
	flags := uint16(unix.EV_ADD | unix.EV_ENABLE)
	if p.edgeTriggered {
		flags |= unix.EV_CLEAR
	}
	change := unix.Kevent_t{
		Ident:  uint64(p.readFD),
		Filter: unix.EVFILT_READ,
		Flags:  flags,
	}
	_, err := unix.Kevent(kq, []unix.Kevent_t{change}, nil, nil)
	return err
}
