// Command orizon-alloc-server exposes a running allocator's Stats()
// snapshot to remote clients over QUIC, via internal/allocserve.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/orizon-lang/orizon-alloc/internal/allocator"
	"github.com/orizon-lang/orizon-alloc/internal/allocserve"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:0", "address to listen on")
	baseSize := flag.Uint64("base-size", 1<<20, "initial pool size in bytes")
	flag.Parse()

	a, err := allocator.Construct(uintptr(*baseSize), 1024, allocator.WithStats(true))
	if err != nil {
		log.Fatalf("construct: %v", err)
	}

	srv, err := allocserve.Listen(*addr, a)
	if err != nil {
		log.Fatalf("listen: %v", err)
	}
	defer srv.Close()

	log.Printf("serving allocator stats on %s", srv.Addr())

	ctx, cancel := context.WithCancel(context.Background())

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sig
		cancel()
	}()

	if err := srv.Serve(ctx); err != nil {
		log.Fatalf("serve: %v", err)
	}
}
