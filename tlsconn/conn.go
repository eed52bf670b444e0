// Package tlsconn wires record.Connection, bufpool, and signalpipe into
// a net.Conn-shaped wrapper around an underlying stream (spec §6):
// Client and Server constructors (transport, negotiated cipher, TLS 1.3
// flag, options), plus Read/Write/Close.
//
// Grounded on the net.Conn method shapes and close sequencing in the
// mint conn.go forks under other_examples (caddy-vendored and
// grittygrease) — mutex-guarded in/out directions, a buffered-remainder
// Read loop, and Close sending close_notify before the transport closes.
package tlsconn

import (
	"io"
	"net"
	"sync"
	"time"

	"github.com/heliotls/heliotls/bufpool"
	"github.com/heliotls/heliotls/config"
	"github.com/heliotls/heliotls/record"
	"github.com/heliotls/heliotls/signalpipe"
)

// Conn adapts a record.Connection to net.Conn, acquiring scratch and
// sink buffers from a shared bufpool.BufferPool instead of allocating
// per call.
type Conn struct {
	transport net.Conn
	rc        *record.Connection
	pool      *bufpool.BufferPool
	signal    signalpipe.OptionalSignalPipe

	inMu       sync.Mutex
	readBuffer []byte

	outMu sync.Mutex
}

// Client wraps transport as the client side of a TLS connection already
// negotiated by the handshake layer, which hands in cipher and isTLS13.
func Client(transport net.Conn, cipher *record.Cipher, isTLS13 bool, opts config.Options) (*Conn, error) {
	return newConn(transport, cipher, isTLS13, opts)
}

// Server wraps transport as the server side of a TLS connection already
// negotiated by the handshake layer.
func Server(transport net.Conn, cipher *record.Cipher, isTLS13 bool, opts config.Options) (*Conn, error) {
	return newConn(transport, cipher, isTLS13, opts)
}

func newConn(transport net.Conn, cipher *record.Cipher, isTLS13 bool, opts config.Options) (*Conn, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return &Conn{
		transport: transport,
		rc:        record.NewConnection(cipher, isTLS13),
		pool:      opts.BufferPool,
		signal:    opts.SignalPipe,
	}, nil
}

// Read returns buffered application data, reading and decrypting
// further records from the transport as needed (spec §6 read(buf) → n).
// Handshake records are not expected on an already-established
// Connection and are treated as Unexpected; alert records other than
// close_notify propagate as errors.
func (c *Conn) Read(buf []byte) (int, error) {
	c.inMu.Lock()
	defer c.inMu.Unlock()

	for len(c.readBuffer) == 0 {
		if _, err := c.fillReadBuffer(); err != nil {
			return 0, err
		}
	}

	n := copy(buf, c.readBuffer)
	c.readBuffer = c.readBuffer[n:]
	return n, nil
}

// fillReadBuffer reads and decrypts exactly one record, appending
// application data to readBuffer. It returns io.EOF on close_notify and
// propagates any other decrypt error.
func (c *Conn) fillReadBuffer() (int, error) {
	scratch := c.pool.Acquire()
	defer c.pool.Release(scratch)
	sink := c.pool.Acquire()
	defer c.pool.Release(sink)

	rec, err := c.rc.ReadRecordFrom(c.transport, scratch.Data)
	if err != nil {
		return 0, err
	}
	ct, plaintext, err := c.rc.Decrypt(rec, sink.Data)
	if err != nil {
		return 0, err
	}
	c.signal.Signal()

	switch ct {
	case record.ContentTypeApplicationData:
		c.readBuffer = append(c.readBuffer, plaintext...)
		return len(plaintext), nil
	case record.ContentTypeAlert:
		if c.rc.Closed() {
			return 0, io.EOF
		}
		return 0, &record.Error{Op: "read", Err: record.ErrUnexpected}
	default:
		return 0, &record.Error{Op: "read", Err: record.ErrUnexpected}
	}
}

// Write encrypts and sends buf as one or more application-data records
// (spec §6 write(buf) → n). record.Connection.Encrypt already fragments
// at MaxPlaintextRecordLen, so there is no per-record loop here.
func (c *Conn) Write(buf []byte) (int, error) {
	c.outMu.Lock()
	defer c.outMu.Unlock()

	n, err := c.rc.Encrypt(buf, c.transport)
	if err == nil {
		c.signal.Signal()
	}
	return n, err
}

// Close sends a best-effort close_notify alert and closes the
// underlying transport (spec §6 close()).
func (c *Conn) Close() error {
	c.outMu.Lock()
	c.rc.Close(c.transport)
	c.outMu.Unlock()
	return c.transport.Close()
}

// LocalAddr, RemoteAddr, and the deadline setters forward to the
// underlying transport, matching crypto/tls.Conn and the mint forks.
func (c *Conn) LocalAddr() net.Addr  { return c.transport.LocalAddr() }
func (c *Conn) RemoteAddr() net.Addr { return c.transport.RemoteAddr() }

func (c *Conn) SetDeadline(t time.Time) error      { return c.transport.SetDeadline(t) }
func (c *Conn) SetReadDeadline(t time.Time) error  { return c.transport.SetReadDeadline(t) }
func (c *Conn) SetWriteDeadline(t time.Time) error { return c.transport.SetWriteDeadline(t) }

// SignalFD returns the reactor-visible signal pipe's read descriptor, or
// -1 if this Conn was not configured with one (spec §6 "Signal pipe
// descriptors obtainable by the reactor").
func (c *Conn) SignalFD() int { return c.signal.FD() }
