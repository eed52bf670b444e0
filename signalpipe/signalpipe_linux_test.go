//go:build linux

package signalpipe

import (
	"testing"

	"golang.org/x/sys/unix"
)

func TestRegisterEpoll_AcceptsSignalPipe(t *testing.T) {
	p := newTestPipe(t)
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		t.Fatalf("EpollCreate1: %v", err)
	}
	defer unix.Close(epfd)

	if err := p.RegisterEpoll(epfd); err != nil {
		t.Fatalf("RegisterEpoll: %v", err)
	}

	p.Signal()
	events := make([]unix.EpollEvent, 1)
	n, err := unix.EpollWait(epfd, events, 1000)
	if err != nil {
		t.Fatalf("EpollWait: %v", err)
	}
	if n != 1 {
		t.Fatalf("EpollWait returned %d events, want 1", n)
	}
	if events[0].Fd != int32(p.FD()) {
		t.Fatalf("event fd = %d, want %d", events[0].Fd, p.FD())
	}
}
