package tlsconn

import (
	"bytes"
	"io"
	"net"
	"testing"

	"github.com/heliotls/heliotls/bufpool"
	"github.com/heliotls/heliotls/config"
	"github.com/heliotls/heliotls/record"
)

func pipePair(t *testing.T) (net.Conn, net.Conn) {
	t.Helper()
	a, b := net.Pipe()
	t.Cleanup(func() { a.Close(); b.Close() })
	return a, b
}

func newCipherPair(t *testing.T) (*record.Cipher, *record.Cipher) {
	t.Helper()
	key := bytes.Repeat([]byte{0x21}, 16)
	iv := bytes.Repeat([]byte{0x22}, 12)
	client, err := record.NewAEADCipher(record.SuiteAES128GCM, key, iv, key, iv)
	if err != nil {
		t.Fatalf("NewAEADCipher (client): %v", err)
	}
	server, err := record.NewAEADCipher(record.SuiteAES128GCM, key, iv, key, iv)
	if err != nil {
		t.Fatalf("NewAEADCipher (server): %v", err)
	}
	return client, server
}

func TestConn_ReadWriteRoundTrip(t *testing.T) {
	clientTransport, serverTransport := pipePair(t)
	clientCipher, serverCipher := newCipherPair(t)

	pool := bufpool.New(record.MaxCiphertextRecordLen, nil)
	opts := config.New(config.WithBufferPool(pool))

	client, err := Client(clientTransport, clientCipher, true, opts)
	if err != nil {
		t.Fatalf("Client: %v", err)
	}
	server, err := Server(serverTransport, serverCipher, true, opts)
	if err != nil {
		t.Fatalf("Server: %v", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		buf := make([]byte, 64)
		n, err := server.Read(buf)
		if err != nil {
			t.Errorf("server Read: %v", err)
			return
		}
		if string(buf[:n]) != "ping" {
			t.Errorf("server read %q, want %q", buf[:n], "ping")
		}
	}()

	if _, err := client.Write([]byte("ping")); err != nil {
		t.Fatalf("client Write: %v", err)
	}
	<-done
}

func TestConn_CloseSendsCloseNotify(t *testing.T) {
	clientTransport, serverTransport := pipePair(t)
	clientCipher, serverCipher := newCipherPair(t)

	pool := bufpool.New(record.MaxCiphertextRecordLen, nil)
	opts := config.New(config.WithBufferPool(pool))

	client, err := Client(clientTransport, clientCipher, true, opts)
	if err != nil {
		t.Fatalf("Client: %v", err)
	}
	server, err := Server(serverTransport, serverCipher, true, opts)
	if err != nil {
		t.Fatalf("Server: %v", err)
	}

	done := make(chan error)
	go func() {
		buf := make([]byte, 64)
		_, err := server.Read(buf)
		done <- err
	}()

	if err := client.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := <-done; err != io.EOF {
		t.Fatalf("server Read after close_notify = %v, want io.EOF", err)
	}
}

func TestConn_ValidateRejectsMissingBufferPool(t *testing.T) {
	clientTransport, _ := pipePair(t)
	clientCipher, _ := newCipherPair(t)

	if _, err := Client(clientTransport, clientCipher, true, config.New()); err == nil {
		t.Fatal("expected error when BufferPool is unset")
	}
}
