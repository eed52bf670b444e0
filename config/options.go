// Package config defines the options a caller passes to client/server
// connection constructors: root-CA source, SNI host name, and the pool
// back-references a pool-aware Connection binds to (spec §6).
//
// Grounded on the builder/options shape in
// MiraiMindz-watt/capacitor/pkg/capacitor/config.go (validation method
// alongside a fluent WithX builder), adapted from a generic-over-K,V
// multi-layer cache config to this package's fixed TLS connection
// options.
package config

import (
	"crypto/x509"
	"fmt"

	"github.com/heliotls/heliotls/arena"
	"github.com/heliotls/heliotls/bufpool"
	"github.com/heliotls/heliotls/signalpipe"
)

// Options configures a client or server Connection.
type Options struct {
	// RootCAs is the trust store used to verify a peer's certificate
	// chain. Certificate validation itself belongs to the handshake
	// layer (out of scope here); this field only carries the source
	// through to that external collaborator.
	RootCAs *x509.CertPool

	// ServerName is the SNI host name a client presents during the
	// handshake.
	ServerName string

	// BufferPool, if set, is shared by every Connection constructed
	// with these Options for record-sized buffer acquisition.
	BufferPool *bufpool.BufferPool

	// ArenaPool, if set, is handed to the handshake layer for
	// transient allocations; the data plane itself never holds arena
	// memory across a record boundary.
	ArenaPool *arena.Pool

	// SignalPipe, if set, is armed on every successful encrypt/decrypt
	// so an external reactor can learn the connection has output ready
	// or input buffered.
	SignalPipe signalpipe.OptionalSignalPipe
}

// Option mutates an Options value being built up by New.
type Option func(*Options)

// New builds Options from zero or more Option functions.
func New(opts ...Option) Options {
	var o Options
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithRootCAs sets the trust store used for peer certificate
// verification.
func WithRootCAs(pool *x509.CertPool) Option {
	return func(o *Options) { o.RootCAs = pool }
}

// WithServerName sets the SNI host name.
func WithServerName(name string) Option {
	return func(o *Options) { o.ServerName = name }
}

// WithBufferPool binds a shared record-buffer pool.
func WithBufferPool(p *bufpool.BufferPool) Option {
	return func(o *Options) { o.BufferPool = p }
}

// WithArenaPool binds a shared handshake-scratch arena pool.
func WithArenaPool(p *arena.Pool) Option {
	return func(o *Options) { o.ArenaPool = p }
}

// WithSignalPipe arms a reactor-visible signal pipe on this connection.
func WithSignalPipe(p signalpipe.OptionalSignalPipe) Option {
	return func(o *Options) { o.SignalPipe = p }
}

// Validate checks that a client or server configuration is minimally
// usable.
// Client-side validation of ServerName is left to the handshake layer,
// since an empty SNI host is legal when connecting by IP literal.
func (o Options) Validate() error {
	if o.BufferPool == nil {
		return fmt.Errorf("tlsconn config: a BufferPool is required")
	}
	return nil
}
