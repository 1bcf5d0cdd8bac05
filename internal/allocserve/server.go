// Package allocserve exposes an allocator.Allocator's diagnostic Stats()
// snapshot to remote clients over QUIC.
//
// The allocator is single-threaded and must never be touched
// concurrently, so this package serves one stream to completion at a
// time rather than one goroutine per connection: Server.Serve accepts
// and fully drains a stream before accepting the next, which keeps the
// wrapped Allocator reachable only from the Serve goroutine no matter
// how many clients are connected.
package allocserve

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"io"
	"math/big"

	quic "github.com/quic-go/quic-go"

	"github.com/orizon-lang/orizon-alloc/internal/allocator"
)

// StatsSource is the subset of allocator.Allocator this server depends on.
type StatsSource interface {
	Stats() string
}

// Server accepts QUIC connections and, for the first stream a client opens
// on each connection, writes one Stats() snapshot and closes the stream.
// Further streams on the same connection are not accepted.
type Server struct {
	alloc    StatsSource
	listener *quic.Listener
}

// Listen binds addr (e.g. "127.0.0.1:0") and returns a Server ready to
// Serve. A self-signed certificate is generated for the session; this is a
// diagnostic endpoint, not a production-facing one.
func Listen(addr string, alloc *allocator.Allocator) (*Server, error) {
	tlsConf, err := selfSignedTLSConfig()
	if err != nil {
		return nil, fmt.Errorf("allocserve: generating TLS config: %w", err)
	}

	ln, err := quic.ListenAddr(addr, tlsConf, &quic.Config{})
	if err != nil {
		return nil, fmt.Errorf("allocserve: listening on %s: %w", addr, err)
	}

	return &Server{alloc: alloc, listener: ln}, nil
}

// Addr returns the bound local address.
func (s *Server) Addr() string { return s.listener.Addr().String() }

// Serve accepts connections until ctx is cancelled, serving one stream to
// completion at a time. It does not spawn goroutines per connection: the
// wrapped allocator is only ever accessed from the calling goroutine.
func (s *Server) Serve(ctx context.Context) error {
	for {
		conn, err := s.listener.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}

			return fmt.Errorf("allocserve: accept: %w", err)
		}

		if err := s.serveConn(ctx, conn); err != nil {
			continue // a single bad connection does not stop the server.
		}
	}
}

func (s *Server) serveConn(ctx context.Context, conn quic.Connection) error {
	stream, err := conn.AcceptStream(ctx)
	if err != nil {
		return fmt.Errorf("allocserve: accept stream: %w", err)
	}

	defer stream.Close()

	_, _ = io.ReadAll(stream) // drain any request payload; protocol is request-less.
	_, err = stream.Write([]byte(s.alloc.Stats()))

	return err
}

// Close shuts the listener down.
func (s *Server) Close() error {
	return s.listener.Close()
}

func selfSignedTLSConfig() (*tls.Config, error) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, fmt.Errorf("generating key: %w", err)
	}

	serial, err := rand.Int(rand.Reader, big.NewInt(1<<62))
	if err != nil {
		return nil, fmt.Errorf("generating serial number: %w", err)
	}

	template := &x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{CommonName: "orizon-alloc-stats"},
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		return nil, fmt.Errorf("creating certificate: %w", err)
	}

	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})

	cert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return nil, fmt.Errorf("assembling key pair: %w", err)
	}

	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		NextProtos:   []string{"orizon-alloc-stats"},
	}, nil
}
