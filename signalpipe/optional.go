package signalpipe

// OptionalSignalPipe wraps a *Pipe that may or may not exist, collapsing
// to a zero-cost no-op when disabled (spec §4.5 "OptionalSignalPipe").
// Constructing one with a nil pipe never touches the OS: FD reports
// -1 and every other call is a no-op, so callers that don't need a
// reactor integration pay nothing for the option.
type OptionalSignalPipe struct {
	pipe *Pipe
}

// NewOptional wraps an existing pipe, or returns a disabled instance if
// pipe is nil.
func NewOptional(pipe *Pipe) OptionalSignalPipe {
	return OptionalSignalPipe{pipe: pipe}
}

// Enabled reports whether this instance wraps a live pipe.
func (o OptionalSignalPipe) Enabled() bool { return o.pipe != nil }

// FD returns the wrapped pipe's read FD, or -1 when disabled.
func (o OptionalSignalPipe) FD() int {
	if o.pipe == nil {
		return -1
	}
	return o.pipe.FD()
}

// Signal forwards to the wrapped pipe; a no-op when disabled.
func (o OptionalSignalPipe) Signal() bool {
	if o.pipe == nil {
		return false
	}
	return o.pipe.Signal()
}

// Clear forwards to the wrapped pipe; a no-op when disabled.
func (o OptionalSignalPipe) Clear() {
	if o.pipe == nil {
		return
	}
	o.pipe.Clear()
}

// IsPending forwards to the wrapped pipe; always false when disabled.
func (o OptionalSignalPipe) IsPending() bool {
	if o.pipe == nil {
		return false
	}
	return o.pipe.IsPending()
}
