// Package signalpipe implements the event-coalescing readiness
// primitive an external epoll/kqueue reactor polls to learn that the
// TLS data plane has output ready or input buffered (spec §4.5).
//
// Grounded on the syscall-wrapper idiom in
// MiraiMindz-watt/shockwave/pkg/shockwave/socket/tuning_linux.go
// (build-tagged golang.org/x/sys/unix socket-option calls) and
// keploy-keploy/pkg/core/hooks/conn/socket.go (nonblocking-fd setup).
// No example repo runs its own epoll/kqueue reactor loop, so the state
// machine itself is built directly from spec §4.5's transition table.
package signalpipe

import (
	"sync/atomic"

	"go.uber.org/zap"
)

// state values for the signal pipe's atomic word (spec §4.5).
const (
	stateIdle uint32 = iota
	statePending
	stateSent
)

// Pipe is a coalescing wake primitive: any number of concurrent
// signal() calls while a signal is already pending or sent collapse
// into a single byte written to the kernel pipe, so a reactor woken by
// readability never sees more than one logical "armed" state to drain.
type Pipe struct {
	readFD  int
	writeFD int
	state   atomic.Uint32
	log     *zap.Logger

	edgeTriggered bool
}

// FD returns the read end a reactor registers for readability.
func (p *Pipe) FD() int { return p.readFD }

// EdgeTriggered reports whether this pipe was registered edge-triggered
// (EPOLLET / EV_CLEAR), which changes how Clear drains the pipe.
func (p *Pipe) EdgeTriggered() bool { return p.edgeTriggered }

// Signal arms the pipe, per spec §4.5's transition table: IDLE→PENDING
// writes one byte and stores SENT; any other starting state is a no-op
// coalesce. Returns true if this call was the one that actually wrote.
func (p *Pipe) Signal() bool {
	if !p.state.CompareAndSwap(stateIdle, statePending) {
		return false
	}
	if err := p.writeOneByte(); err != nil {
		p.log.Debug("signalpipe: write failed", zap.Error(err))
	}
	p.state.Store(stateSent)
	return true
}

// Clear transitions the pipe back to IDLE, draining the kernel pipe
// buffer only if a byte was actually written (state was SENT).
func (p *Pipe) Clear() {
	prev := p.state.Swap(stateIdle)
	if prev != stateSent {
		return
	}
	if p.edgeTriggered {
		p.drainUntilEmpty()
	} else {
		p.drainOne()
	}
}

// IsPending reports whether the pipe currently carries an unconsumed
// signal (state != IDLE), via an acquire-ordered load.
func (p *Pipe) IsPending() bool {
	return p.state.Load() != stateIdle
}

// Close releases both descriptors. Safe to call once; not idempotent.
func (p *Pipe) Close() error {
	return p.closeFDs()
}
