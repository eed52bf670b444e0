// Command heliotls-echo is a demonstration CLI wiring the data plane
// end to end over a real TCP socket. It takes pre-shared keys on the
// command line rather than negotiating them, since handshake and
// certificate validation are out of this module's scope (spec §1) —
// the keys stand in for what a handshake layer would otherwise produce.
//
// Grounded on the cobra root-command-plus-subcommands shape in
// keploy-keploy/cmd/root.go and cmd/keploy-cli/main.go.
package main

import (
	"encoding/hex"
	"fmt"
	"net"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/heliotls/heliotls/bufpool"
	"github.com/heliotls/heliotls/config"
	"github.com/heliotls/heliotls/record"
	"github.com/heliotls/heliotls/signalpipe"
	"github.com/heliotls/heliotls/tlsconn"
)

var (
	keyHex     string
	ivHex      string
	listenAddr string
	dialAddr   string
)

func main() {
	if err := rootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

func rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "heliotls-echo",
		Short: "Demonstration echo server/client over the heliotls data plane",
	}
	root.PersistentFlags().StringVar(&keyHex, "key", "", "32 hex chars: AES-128-GCM key")
	root.PersistentFlags().StringVar(&ivHex, "iv", "", "24 hex chars: AEAD static IV")
	root.AddCommand(serveCommand(), dialCommand())
	return root
}

func cipherFromFlags() (*record.Cipher, error) {
	key, err := hex.DecodeString(keyHex)
	if err != nil {
		return nil, fmt.Errorf("--key: %w", err)
	}
	iv, err := hex.DecodeString(ivHex)
	if err != nil {
		return nil, fmt.Errorf("--iv: %w", err)
	}
	return record.NewAEADCipher(record.SuiteAES128GCM, key, iv, key, iv)
}

func sharedOptions(log *zap.Logger) config.Options {
	pool := bufpool.New(record.MaxCiphertextRecordLen, log)
	pipe, err := signalpipe.New(false, log)
	var opt signalpipe.OptionalSignalPipe
	if err != nil {
		log.Warn("signal pipe unavailable, continuing without reactor wakeups", zap.Error(err))
		opt = signalpipe.NewOptional(nil)
	} else {
		opt = signalpipe.NewOptional(pipe)
	}
	return config.New(
		config.WithBufferPool(pool),
		config.WithSignalPipe(opt),
	)
}

func serveCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Accept one connection and echo application data back",
		RunE: func(cmd *cobra.Command, args []string) error {
			log, _ := zap.NewDevelopment()
			defer log.Sync()

			cipher, err := cipherFromFlags()
			if err != nil {
				return err
			}
			ln, err := net.Listen("tcp", listenAddr)
			if err != nil {
				return err
			}
			defer ln.Close()
			log.Info("listening", zap.String("addr", ln.Addr().String()))

			transport, err := ln.Accept()
			if err != nil {
				return err
			}
			conn, err := tlsconn.Server(transport, cipher, true, sharedOptions(log))
			if err != nil {
				return err
			}
			defer conn.Close()

			buf := make([]byte, record.MaxPlaintextRecordLen)
			for {
				n, err := conn.Read(buf)
				if err != nil {
					log.Info("connection closed", zap.Error(err))
					return nil
				}
				if _, err := conn.Write(buf[:n]); err != nil {
					return err
				}
			}
		},
	}
	cmd.Flags().StringVar(&listenAddr, "addr", "127.0.0.1:8443", "address to listen on")
	return cmd
}

func dialCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dial",
		Short: "Connect and send one line of application data",
		RunE: func(cmd *cobra.Command, args []string) error {
			log, _ := zap.NewDevelopment()
			defer log.Sync()

			cipher, err := cipherFromFlags()
			if err != nil {
				return err
			}
			transport, err := net.Dial("tcp", dialAddr)
			if err != nil {
				return err
			}
			conn, err := tlsconn.Client(transport, cipher, true, sharedOptions(log))
			if err != nil {
				return err
			}
			defer conn.Close()

			message := "hello from heliotls-echo"
			if len(args) > 0 {
				message = args[0]
			}
			if _, err := conn.Write([]byte(message)); err != nil {
				return err
			}
			buf := make([]byte, record.MaxPlaintextRecordLen)
			n, err := conn.Read(buf)
			if err != nil {
				return err
			}
			fmt.Println(string(buf[:n]))
			return nil
		},
	}
	cmd.Flags().StringVar(&dialAddr, "addr", "127.0.0.1:8443", "server address to dial")
	return cmd
}
