package record

import (
	"io"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// State is the data-plane connection state machine (spec §4.1).
type State uint8

const (
	StateIdle State = iota
	StateEncryptInProgress
	StateDecryptInProgress
	StateClosed
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateEncryptInProgress:
		return "encrypt_in_progress"
	case StateDecryptInProgress:
		return "decrypt_in_progress"
	case StateClosed:
		return "closed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Connection is the data-plane half of a TLS connection: one Cipher plus
// the framing and state-machine logic that turns application bytes into
// records and back. Handshake negotiation, certificate validation, and
// extension policy are out of scope (spec §1) — a Connection is always
// constructed from a Cipher the handshake layer already produced.
//
// encrypt and decrypt may be called concurrently from two different
// goroutines (spec §5): they share no mutable state but the Cipher's two
// independent sequence counters, so state is tracked per-direction with
// its own atomic rather than a single mutex guarding both paths.
type Connection struct {
	cipher *Cipher
	isTLS13 bool

	writeState atomic.Uint32 // State, write/encrypt direction
	readState  atomic.Uint32 // State, read/decrypt direction

	// closeMu guards the observed-close_notify / local-close transition
	// to StateClosed, which both directions must agree on.
	closeMu sync.Mutex
	closed  bool
	failed  bool

	onKeyUpdate func(write bool)

	log *zap.Logger
}

// Option configures a Connection at construction time.
type Option func(*Connection)

// WithLogger attaches a zap logger; the default is a no-op logger so the
// hot path never pays for disabled log calls (SPEC_FULL.md §11).
func WithLogger(l *zap.Logger) Option {
	return func(c *Connection) { c.log = l }
}

// WithKeyUpdateHandler registers the supplemented key-update callback
// (SPEC_FULL.md §13), invoked from the cold path with write=false for
// every handshake-type record decrypted on read. The handshake message
// type is not inspected, so the callback also fires for post-handshake
// messages other than key_update.
func WithKeyUpdateHandler(fn func(write bool)) Option {
	return func(c *Connection) { c.onKeyUpdate = fn }
}

// NewConnection builds a Connection around a negotiated Cipher. isTLS13
// selects TLS 1.3 inner-content-type framing (trailing content-type byte,
// outward type always application_data) versus TLS 1.2 framing.
func NewConnection(cipher *Cipher, isTLS13 bool, opts ...Option) *Connection {
	c := &Connection{cipher: cipher, isTLS13: isTLS13, log: zap.NewNop()}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Connection) setWriteState(s State) { c.writeState.Store(uint32(s)) }
func (c *Connection) setReadState(s State)  { c.readState.Store(uint32(s)) }

// WriteState and ReadState report the current per-direction state.
func (c *Connection) WriteState() State { return State(c.writeState.Load()) }
func (c *Connection) ReadState() State  { return State(c.readState.Load()) }

func (c *Connection) failWrite(err error) error {
	c.setWriteState(StateFailed)
	c.markFailed()
	return err
}

func (c *Connection) failRead(err error) error {
	c.setReadState(StateFailed)
	c.markFailed()
	return err
}

func (c *Connection) markFailed() {
	c.closeMu.Lock()
	c.failed = true
	c.closeMu.Unlock()
}

// Failed reports whether either direction has transitioned to Failed.
func (c *Connection) Failed() bool {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()
	return c.failed
}

// Closed reports whether the connection observed close_notify or a local
// close.
func (c *Connection) Closed() bool {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()
	return c.closed
}

// Encrypt fragments cleartext into records of up to MaxPlaintextRecordLen
// bytes and writes each one, fully framed and encrypted, to sink.
// Returns the number of bytes written to sink. (spec §4.1 encrypt)
func (c *Connection) Encrypt(cleartext []byte, sink io.Writer) (int, error) {
	if c.Failed() {
		return 0, wrapErr("encrypt", ErrUnexpected)
	}
	c.setWriteState(StateEncryptInProgress)
	defer func() {
		if c.WriteState() != StateFailed {
			c.setWriteState(StateIdle)
		}
	}()

	total := 0
	for len(cleartext) > 0 {
		n := len(cleartext)
		if n > MaxPlaintextRecordLen {
			n = MaxPlaintextRecordLen
		}
		fragment := cleartext[:n]
		cleartext = cleartext[n:]

		written, err := c.encryptFragment(fragment, sink, ContentTypeApplicationData)
		if err != nil {
			return total, c.failWrite(err)
		}
		total += written
	}
	return total, nil
}

// encryptFragment seals one fragment as realType: the TLS 1.3 inner
// content type (the byte appended before the tag), and also the outward
// wire content type for TLS 1.2 / CBC-HMAC records, which carry no inner
// type and so use realType directly as the header's content type.
func (c *Connection) encryptFragment(fragment []byte, sink io.Writer, realType ContentType) (int, error) {
	switch c.cipher.Suite {
	case SuiteCBCHMACSHA256:
		return c.encryptCBC(fragment, sink, realType)
	default:
		return c.encryptAEAD(fragment, sink, realType)
	}
}

// encryptAEAD is the hot path: application-data records through an AEAD
// suite are the common case and this is the single predictable branch
// spec §4.1's "Hot path policy" calls for. The TLS 1.3 inner content
// type is appended to the fragment before sealing (spec §4.1 step 1).
func (c *Connection) encryptAEAD(fragment []byte, sink io.Writer, realType ContentType) (int, error) {
	seq, err := c.cipher.aeadWrite.counter.next()
	if err != nil {
		return 0, err
	}

	innerLen := len(fragment)
	if c.isTLS13 {
		innerLen++ // trailing real content-type byte
	}
	ciphertextLen := innerLen + c.cipher.aeadWrite.aead.Overhead()

	outward := realType
	if c.isTLS13 {
		// TLS 1.3 always presents application_data outward; the real
		// type travels as the trailing plaintext byte instead (spec
		// §4.1 step 1).
		outward = ContentTypeApplicationData
	}
	buf := make([]byte, HeaderLen+ciphertextLen)
	encodeHeader(buf, outward, legacyVersionTLS12, ciphertextLen)

	plaintext := buf[HeaderLen : HeaderLen+innerLen]
	copy(plaintext, fragment)
	if c.isTLS13 {
		plaintext[len(fragment)] = byte(realType)
	}

	nonce := c.cipher.aeadWrite.nonceFor(seq)
	sealed := c.cipher.aeadWrite.aead.Seal(buf[HeaderLen:HeaderLen], nonce, plaintext, buf[:HeaderLen])
	patchLength(buf, len(sealed))

	c.log.Debug("encrypted record", zap.Uint64("seq", seq), zap.Int("ciphertext_len", len(sealed)))

	n, err := sink.Write(buf)
	if err != nil {
		return n, wrapErr("encrypt", err)
	}
	return n, nil
}

func (c *Connection) encryptCBC(fragment []byte, sink io.Writer, realType ContentType) (int, error) {
	seq, err := c.cipher.cbcWrite.counter.next()
	if err != nil {
		return 0, err
	}
	// CBC-HMAC is a TLS 1.2 construction with no inner content type: the
	// wire header's content type is always the real one.
	header := make([]byte, HeaderLen)
	encodeHeader(header, realType, legacyVersionTLS12, len(fragment))

	out, err := c.cipher.cbcWrite.seal(nil, seq, header, fragment)
	if err != nil {
		return 0, wrapErr("encrypt", err)
	}
	patchLength(header, len(out))

	n1, err := sink.Write(header)
	if err != nil {
		return n1, wrapErr("encrypt", err)
	}
	n2, err := sink.Write(out)
	if err != nil {
		return n1 + n2, wrapErr("encrypt", err)
	}
	return n1 + n2, nil
}

// ReadRecordFrom reads exactly one framed record from stream into scratch,
// retrying short reads until a full record is available or EOF (spec
// §4.1 read_record_from).
func (c *Connection) ReadRecordFrom(stream io.Reader, scratch []byte) (Record, error) {
	var hdr [HeaderLen]byte
	if _, err := io.ReadFull(stream, hdr[:]); err != nil {
		return Record{}, wrapErr("read_record", err)
	}
	ct, version, length, err := decodeHeader(hdr[:])
	if err != nil {
		return Record{}, err
	}
	if length > len(scratch) {
		return Record{}, wrapErr("read_record", ErrBufferTooSmall)
	}
	payload := scratch[:length]
	if _, err := io.ReadFull(stream, payload); err != nil {
		return Record{}, wrapErr("read_record", err)
	}
	return Record{ContentType: ct, LegacyVersion: version, Payload: payload}, nil
}

// Decrypt consumes a single framed record and returns its real content
// type and plaintext. On success it strips TLS 1.3 trailing zero padding
// and the content-type byte. It advances the read sequence counter by
// exactly one. (spec §4.1 decrypt)
//
// sink must hold the whole decrypted inner plaintext: for TLS 1.3 that
// includes the trailing content-type byte and any zero padding, so a
// full-size record needs MaxPlaintextRecordLen+1 bytes. A shorter sink
// fails with ErrBufferTooSmall.
func (c *Connection) Decrypt(rec Record, sink []byte) (ContentType, []byte, error) {
	if c.Failed() {
		return 0, nil, wrapErr("decrypt", ErrUnexpected)
	}
	c.setReadState(StateDecryptInProgress)
	defer func() {
		if c.ReadState() != StateFailed {
			c.setReadState(StateIdle)
		}
	}()

	if len(rec.Payload) > MaxCiphertextRecordLen {
		return 0, nil, c.failRead(wrapErr("decrypt", ErrDecode))
	}

	var ct ContentType
	var plaintext []byte
	var err error
	switch c.cipher.Suite {
	case SuiteCBCHMACSHA256:
		ct, plaintext, err = c.decryptCBC(rec, sink)
	default:
		ct, plaintext, err = c.decryptAEAD(rec, sink)
	}
	if err != nil {
		return 0, nil, c.failRead(err)
	}

	c.checkKeyUpdate(ct)
	c.checkCloseNotify(ct, plaintext)
	return ct, plaintext, nil
}

func (c *Connection) decryptAEAD(rec Record, sink []byte) (ContentType, []byte, error) {
	seq, err := c.cipher.aeadRead.counter.next()
	if err != nil {
		return 0, nil, err
	}
	header := make([]byte, HeaderLen)
	encodeHeader(header, rec.ContentType, rec.LegacyVersion, len(rec.Payload))

	nonce := c.cipher.aeadRead.nonceFor(seq)
	plainLen := len(rec.Payload) - c.cipher.aeadRead.aead.Overhead()
	if plainLen < 0 {
		return 0, nil, wrapErr("decrypt", ErrDecode)
	}
	if plainLen > len(sink) {
		return 0, nil, wrapErr("decrypt", ErrBufferTooSmall)
	}

	opened, err := c.cipher.aeadRead.aead.Open(sink[:0], nonce, rec.Payload, header)
	if err != nil {
		return 0, nil, wrapErr("decrypt", ErrBadRecordMac)
	}

	c.log.Debug("decrypted record", zap.Uint64("seq", seq), zap.Int("plaintext_len", len(opened)))

	if !c.isTLS13 {
		return rec.ContentType, opened, nil
	}
	return stripTLS13Padding(opened)
}

func (c *Connection) decryptCBC(rec Record, sink []byte) (ContentType, []byte, error) {
	seq, err := c.cipher.cbcRead.counter.next()
	if err != nil {
		return 0, nil, err
	}
	plaintext, err := c.cipher.cbcRead.open(seq, rec.ContentType, rec.LegacyVersion, rec.Payload)
	if err != nil {
		return 0, nil, err
	}
	if len(plaintext) > len(sink) {
		return 0, nil, wrapErr("decrypt", ErrBufferTooSmall)
	}
	n := copy(sink, plaintext)
	return rec.ContentType, sink[:n], nil
}

// stripTLS13Padding scans trailing zero bytes from the end of a decrypted
// TLS 1.3 inner plaintext to locate the real content-type byte (spec
// §3: "plaintext content type is the final non-zero byte").
func stripTLS13Padding(inner []byte) (ContentType, []byte, error) {
	i := len(inner) - 1
	for i >= 0 && inner[i] == 0 {
		i--
	}
	if i < 0 {
		return 0, nil, wrapErr("decrypt", ErrDecode)
	}
	return ContentType(inner[i]), inner[:i], nil
}

// checkKeyUpdate is the auxiliary, cold-path check performed after every
// successful decrypt (spec §4.1) for the supplemented key-update hook
// (SPEC_FULL.md §13). It does not sit on the hot path: a single content
// type comparison, never a handshake-message parse.
func (c *Connection) checkKeyUpdate(ct ContentType) {
	if ct != ContentTypeHandshake || c.onKeyUpdate == nil {
		return
	}
	c.onKeyUpdate(false)
}

func (c *Connection) checkCloseNotify(ct ContentType, plaintext []byte) {
	if ct != ContentTypeAlert || len(plaintext) < 2 {
		return
	}
	if Alert(plaintext[1]) == AlertCloseNotify {
		c.closeMu.Lock()
		c.closed = true
		c.closeMu.Unlock()
	}
}

// PeekContentType reports a record's outer content type, the field
// ReadRecordFrom already decodes from the wire header before decryption.
// A TLS 1.3 record's outer type is always application_data (the real
// type travels inside the ciphertext, spec §3), so this only lets a
// cold-path caller branch on the TLS 1.2 wire type without a full
// Decrypt; it is not a read-ahead or caching mechanism — unlike
// record-layer.go's DefaultRecordLayer.PeekRecordType, it never reads a
// further record off the stream.
func (c *Connection) PeekContentType(rec Record) ContentType {
	return rec.ContentType
}

// Close marks the connection Closed and, on a best-effort basis, writes a
// close_notify alert to sink before the caller closes the underlying
// descriptor. Alert send failures are swallowed per spec §7.
func (c *Connection) Close(sink io.Writer) {
	c.closeMu.Lock()
	alreadyClosed := c.closed
	c.closed = true
	c.closeMu.Unlock()
	if alreadyClosed || sink == nil {
		return
	}
	alertBody := []byte{byte(AlertLevelWarning), byte(AlertCloseNotify)}
	_, _ = c.encryptFragment(alertBody, sink, ContentTypeAlert)
}
