//go:build linux || darwin || freebsd || netbsd || openbsd

package signalpipe

import "golang.org/x/sys/unix"

func (p *Pipe) writeOneByte() error {
	var b [1]byte
	_, err := unix.Write(p.writeFD, b[:])
	if err == unix.EAGAIN {
		// Write end is non-blocking and the pipe buffer happens to be
		// full; another signal is already in flight for the reactor to
		// observe, so there is nothing to retry here.
		return nil
	}
	return err
}

func (p *Pipe) drainOne() {
	var b [1]byte
	for {
		_, err := unix.Read(p.readFD, b[:])
		if err == unix.EINTR {
			continue
		}
		return
	}
}

func (p *Pipe) drainUntilEmpty() {
	var b [64]byte
	for {
		_, err := unix.Read(p.readFD, b[:])
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			// EAGAIN (nothing left) or any other error both mean stop.
			return
		}
	}
}

func (p *Pipe) closeFDs() error {
	err1 := unix.Close(p.readFD)
	err2 := unix.Close(p.writeFD)
	if err1 != nil {
		return err1
	}
	return err2
}

// newPipeFallback creates a pipe with plain Pipe + fcntl(O_NONBLOCK),
// the fallback path for platforms without an atomic pipe2 syscall
// (spec §4.5 "otherwise it falls back to plain pipe plus fcntl to set
// O_NONBLOCK").
func newPipeFallback() (readFD, writeFD int, err error) {
	var fds [2]int
	if err := unix.Pipe(fds[:]); err != nil {
		return 0, 0, err
	}
	for _, fd := range fds {
		if err := unix.SetNonblock(fd, true); err != nil {
			unix.Close(fds[0])
			unix.Close(fds[1])
			return 0, 0, err
		}
	}
	return fds[0], fds[1], nil
}
