package allocserve

import (
	"context"
	"crypto/tls"
	"io"
	"testing"
	"time"

	quic "github.com/quic-go/quic-go"

	"github.com/orizon-lang/orizon-alloc/internal/allocator"
)

func TestServeWritesStatsSnapshot(t *testing.T) {
	a, err := allocator.Construct(1024, 8, allocator.WithStats(true))
	if err != nil {
		t.Fatalf("construct: %v", err)
	}

	srv, err := Listen("127.0.0.1:0", a)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go srv.Serve(ctx)

	conn, err := quic.DialAddr(ctx, srv.Addr(), &tls.Config{
		InsecureSkipVerify: true,
		NextProtos:         []string{"orizon-alloc-stats"},
	}, &quic.Config{})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.CloseWithError(0, "")

	stream, err := conn.OpenStreamSync(ctx)
	if err != nil {
		t.Fatalf("open stream: %v", err)
	}

	stream.Close()

	stream.SetReadDeadline(time.Now().Add(2 * time.Second))

	body, err := io.ReadAll(stream)
	if err != nil {
		t.Fatalf("read stats: %v", err)
	}

	if len(body) == 0 {
		t.Fatal("expected a non-empty stats snapshot")
	}
}
