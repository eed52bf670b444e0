// Package zerocopy implements the in-place AEAD decryption engine (spec
// §4.2): given a ciphertext buffer and an output buffer, it decides
// whether the AEAD primitive can decrypt directly into the ciphertext's
// own storage, and falls back to a normal copy when it cannot.
package zerocopy

import (
	"sync/atomic"
	"unsafe"

	"github.com/heliotls/heliotls/record"
)

// AlignDefault is the default pointer-alignment requirement the safety
// predicate enforces when the caller hasn't configured one (spec §4.2
// rule 3).
const AlignDefault = 16

// Engine runs the zero-copy decryption decision and statistics for one
// connection. It is not safe for concurrent use from multiple goroutines
// (§4.2 "Statistics" — single-producer assumption), matching one Engine
// per record.Connection.
type Engine struct {
	align int

	inPlaceDecrypts atomic.Uint64
	copyDecrypts    atomic.Uint64
	totalBytesSaved atomic.Uint64
}

// NewEngine constructs an Engine with the given pointer-alignment
// requirement; pass 0 to use AlignDefault.
func NewEngine(align int) *Engine {
	if align <= 0 {
		align = AlignDefault
	}
	return &Engine{align: align}
}

// Stats is a point-in-time snapshot of the engine's counters.
type Stats struct {
	InPlaceDecrypts uint64
	CopyDecrypts    uint64
	TotalBytesSaved uint64
}

// Stats returns a snapshot of the engine's lock-free counters.
func (e *Engine) Stats() Stats {
	return Stats{
		InPlaceDecrypts: e.inPlaceDecrypts.Load(),
		CopyDecrypts:    e.copyDecrypts.Load(),
		TotalBytesSaved: e.totalBytesSaved.Load(),
	}
}

// canDecryptInPlace implements spec §4.2's safety predicate. suite must
// be an approved 16-byte-tag AEAD suite (rule 1); ciphertext and output
// must either be the same slice, or output must start at or after
// ciphertext with a forward offset no larger than record.TagLen (rule
// 2). Rule 3's alignment requirement applies only to that forward-offset
// case — an exact same-pointer decrypt needs no alignment, since nothing
// shifts between the read and the write.
func canDecryptInPlace(suite record.Suite, ciphertext, output []byte, align int) bool {
	if !suite.IsAEAD() || suite == record.SuiteAEGIS128L {
		// AEGIS-128L is approved by the predicate's suite list in spec
		// §4.2 rule 1, but this build has no AEGIS implementation
		// (record.ErrSuiteUnavailable) — there is never a real AEAD to
		// decrypt in place with, so the predicate treats it as unsafe
		// rather than claim a capability the cipher layer can't back.
		return false
	}
	cp := uintptr(unsafe.Pointer(&ciphertext[0]))
	op := uintptr(unsafe.Pointer(&output[0]))

	if cp == op {
		// Exact same buffer: decrypt reads and writes the identical
		// bytes in the identical order, so there is no shifted region
		// that an unaligned write could corrupt. Rule 3's alignment
		// requirement only guards the forward-offset case below.
		return true
	}
	if op <= cp || op-cp > record.TagLen {
		// not a forward overlap within the tag-size window
		return false
	}
	if align > 0 && (cp%uintptr(align) != 0 || op%uintptr(align) != 0) {
		return false
	}
	return true
}

// overlaps reports whether a and b's backing storage shares any byte,
// regardless of direction or offset. Used only to pick a safe decrypt
// destination when canDecryptInPlace has already said no.
func overlaps(a, b []byte) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	aStart := uintptr(unsafe.Pointer(&a[0]))
	aEnd := aStart + uintptr(len(a))
	bStart := uintptr(unsafe.Pointer(&b[0]))
	bEnd := bStart + uintptr(len(b))
	return aStart < bEnd && bStart < aEnd
}

// DecryptResult carries the outcome of DecryptRecord.
type DecryptResult struct {
	ContentType record.ContentType
	Plaintext   []byte
	InPlace     bool
}

// AEADOpener is the subset of record's per-direction AEAD state the
// engine needs; record.Cipher.NextReadOpener returns a value satisfying
// this interface so this package never reaches into record's unexported
// fields.
type AEADOpener interface {
	// Open verifies and decrypts ciphertext (which includes the trailing
	// tag) into dst[:0], using header as associated data, the way
	// crypto/cipher.AEAD.Open does. It must support dst and ciphertext
	// aliasing the same backing array for the suites canDecryptInPlace
	// approves (spec §9 "In-place AEAD under aliasing").
	Open(dst, ciphertext, header []byte) ([]byte, error)
	Suite() record.Suite
}

// DecryptRecord decides whether the record ciphertext in ciphertextBuf
// can be decrypted in place, or must be copied into outputBuf, and runs
// the appropriate path. ciphertextBuf and outputBuf may be the same
// slice (explicit in-place request) or disjoint.
func (e *Engine) DecryptRecord(opener AEADOpener, header []byte, ciphertextBuf, outputBuf []byte) (DecryptResult, error) {
	inPlace := len(ciphertextBuf) > 0 && len(outputBuf) > 0 &&
		canDecryptInPlace(opener.Suite(), ciphertextBuf, outputBuf, e.align)

	dst := outputBuf[:0]
	usedScratch := false
	// A disjoint outputBuf is the normal "copy" case: Open writes
	// straight into it, no extra memcpy needed. But if the predicate
	// rejected an overlap that nonetheless exists in memory (spec §4.2
	// rule 2's negative-offset case), writing through outputBuf would
	// read-after-write across the shifted regions and corrupt the
	// result. Route that one pathological case through a disjoint
	// scratch buffer instead.
	if !inPlace && overlaps(ciphertextBuf, outputBuf) {
		dst = make([]byte, 0, len(ciphertextBuf))
		usedScratch = true
	}

	opened, err := opener.Open(dst, ciphertextBuf, header)
	if err != nil {
		return DecryptResult{}, &record.Error{Op: "zerocopy_decrypt", Err: record.ErrBadRecordMac}
	}
	if usedScratch {
		n := copy(outputBuf, opened)
		opened = outputBuf[:n]
	}

	ct, plaintext, err := stripTLS13(opened)
	if err != nil {
		return DecryptResult{}, err
	}

	// totalBytesSaved counts the real plaintext the caller gets back, not
	// the inner TLS 1.3 form that still carries the trailing content-type
	// byte (spec §8 S3).
	if inPlace {
		e.inPlaceDecrypts.Add(1)
		e.totalBytesSaved.Add(uint64(len(plaintext)))
	} else {
		e.copyDecrypts.Add(1)
	}

	return DecryptResult{ContentType: ct, Plaintext: plaintext, InPlace: inPlace}, nil
}

// stripTLS13 scans trailing zero bytes from the end to locate the
// content-type byte, mirroring record.stripTLS13Padding (duplicated here
// rather than exported across the package boundary, since the two
// packages' decrypt paths must each be able to evolve independently —
// the data plane's copy path does not go through this engine at all).
func stripTLS13(inner []byte) (record.ContentType, []byte, error) {
	i := len(inner) - 1
	for i >= 0 && inner[i] == 0 {
		i--
	}
	if i < 0 {
		return 0, nil, &record.Error{Op: "zerocopy_decrypt", Err: record.ErrDecode}
	}
	return record.ContentType(inner[i]), inner[:i], nil
}
