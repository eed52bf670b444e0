package record

// ReadOpener adapts one direction's AEAD state to the shape the
// zerocopy package's AEADOpener interface expects (Suite, Open), so the
// zero-copy engine can drive this package's cipher state without either
// package importing the other's internals — Go interfaces are satisfied
// structurally, so zerocopy never needs to import record's unexported
// aeadState.
type ReadOpener struct {
	cipher *Cipher
	seq    uint64
}

// NextReadOpener advances the read sequence counter and returns an
// opener bound to that sequence number's nonce. Callers that want the
// zero-copy engine to own the AEAD Open call use this instead of
// Connection.Decrypt.
func (c *Cipher) NextReadOpener() (ReadOpener, error) {
	seq, err := c.aeadRead.counter.next()
	if err != nil {
		return ReadOpener{}, err
	}
	return ReadOpener{cipher: c, seq: seq}, nil
}

// Suite reports the cipher suite this opener decrypts with.
func (o ReadOpener) Suite() Suite { return o.cipher.Suite }

// Open verifies and decrypts ciphertext (including its trailing tag)
// into dst, using header as associated data. dst and ciphertext may
// alias the same backing array; the AEAD implementations this package
// wires (stdlib crypto/cipher GCM, golang.org/x/crypto/chacha20poly1305)
// both document support for in-place Open (spec §9).
func (o ReadOpener) Open(dst, ciphertext, header []byte) ([]byte, error) {
	nonce := o.cipher.aeadRead.nonceFor(o.seq)
	return o.cipher.aeadRead.aead.Open(dst, nonce, ciphertext, header)
}
