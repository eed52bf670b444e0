package zerocopy

import (
	"bytes"
	"testing"

	"github.com/heliotls/heliotls/record"
)

func sealSample(t *testing.T, key, iv []byte, plaintext string) (header []byte, ciphertext []byte, cipher *record.Cipher) {
	t.Helper()
	c, err := record.NewAEADCipher(record.SuiteAES128GCM, key, iv, key, iv)
	if err != nil {
		t.Fatalf("NewAEADCipher: %v", err)
	}
	conn := record.NewConnection(c, true)
	var wire bytes.Buffer
	if _, err := conn.Encrypt([]byte(plaintext), &wire); err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	buf := wire.Bytes()
	return buf[:record.HeaderLen], buf[record.HeaderLen:], c
}

// S3 — in-place decryption: ciphertext and output share the same
// backing array at the same offset.
func TestS3_InPlaceDecryption(t *testing.T) {
	key := bytes.Repeat([]byte{0x01}, 16)
	iv := bytes.Repeat([]byte{0x02}, 12)
	header, ciphertext, c := sealSample(t, key, iv, "hello")

	engine := NewEngine(0)
	opener, err := c.NextReadOpener()
	if err != nil {
		t.Fatalf("NextReadOpener: %v", err)
	}

	result, err := engine.DecryptRecord(opener, header, ciphertext, ciphertext)
	if err != nil {
		t.Fatalf("DecryptRecord: %v", err)
	}
	if !result.InPlace {
		t.Fatal("expected in-place decryption")
	}
	if string(result.Plaintext) != "hello" {
		t.Fatalf("plaintext = %q, want %q", result.Plaintext, "hello")
	}
	stats := engine.Stats()
	if stats.InPlaceDecrypts != 1 {
		t.Fatalf("InPlaceDecrypts = %d, want 1", stats.InPlaceDecrypts)
	}
	if stats.TotalBytesSaved != 5 {
		t.Fatalf("TotalBytesSaved = %d, want 5", stats.TotalBytesSaved)
	}
	if stats.CopyDecrypts != 0 {
		t.Fatalf("CopyDecrypts = %d, want 0", stats.CopyDecrypts)
	}
}

// S4 — overlap rejection: output points one byte before ciphertext,
// which is never a safe forward offset, so the engine copies.
func TestS4_OverlapRejection(t *testing.T) {
	key := bytes.Repeat([]byte{0x03}, 16)
	iv := bytes.Repeat([]byte{0x04}, 12)
	header, ciphertext, c := sealSample(t, key, iv, "hello")

	// Build a backing array where output starts one byte *before*
	// ciphertext — negative offset, never safe per spec §4.2 rule 2.
	backing := make([]byte, 1+len(ciphertext))
	copy(backing[1:], ciphertext)
	negativeOffsetOutput := backing[0:]
	aliasedCiphertext := backing[1:]

	engine := NewEngine(0)
	opener, err := c.NextReadOpener()
	if err != nil {
		t.Fatalf("NextReadOpener: %v", err)
	}

	result, err := engine.DecryptRecord(opener, header, aliasedCiphertext, negativeOffsetOutput[:len(ciphertext)])
	if err != nil {
		t.Fatalf("DecryptRecord: %v", err)
	}
	if result.InPlace {
		t.Fatal("expected copy path, got in-place")
	}
	if string(result.Plaintext) != "hello" {
		t.Fatalf("plaintext = %q, want %q", result.Plaintext, "hello")
	}
	stats := engine.Stats()
	if stats.CopyDecrypts != 1 {
		t.Fatalf("CopyDecrypts = %d, want 1", stats.CopyDecrypts)
	}
	if stats.InPlaceDecrypts != 0 {
		t.Fatalf("InPlaceDecrypts = %d, want 0", stats.InPlaceDecrypts)
	}
}

// Invariant 3: canDecryptInPlace is true only for approved AEAD suites
// and offsets within [0, TagLen] forward.
func TestCanDecryptInPlace_OffsetBoundary(t *testing.T) {
	backing := make([]byte, 64)
	ciphertext := backing[:32]

	cases := []struct {
		name   string
		output []byte
		suite  record.Suite
		want   bool
	}{
		{"same pointer", backing[:32], record.SuiteAES128GCM, true},
		{"forward at tag boundary", backing[record.TagLen:32+record.TagLen], record.SuiteAES128GCM, true},
		{"forward past tag boundary", backing[record.TagLen+1 : 33+record.TagLen], record.SuiteAES128GCM, false},
		{"cbc suite never safe", backing[:32], record.SuiteCBCHMACSHA256, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := canDecryptInPlace(tc.suite, ciphertext, tc.output, 0)
			if got != tc.want {
				t.Fatalf("canDecryptInPlace(%s) = %v, want %v", tc.name, got, tc.want)
			}
		})
	}
}

func TestCanDecryptInPlace_AlignmentRequired(t *testing.T) {
	backing := make([]byte, 64)
	ciphertext := backing[:32]
	// The same-pointer case never needs alignment (nothing shifts), so
	// alignment only matters for a forward-offset decrypt. Force a
	// misaligned result by requiring an absurdly large alignment no real
	// allocation will satisfy.
	output := backing[record.TagLen : 32+record.TagLen]
	got := canDecryptInPlace(record.SuiteAES128GCM, ciphertext, output, 1<<20)
	if got {
		t.Fatal("expected alignment requirement to reject a forward-offset case at an unsatisfiable alignment")
	}
}
