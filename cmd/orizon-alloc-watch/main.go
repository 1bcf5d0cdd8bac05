// Command orizon-alloc-watch runs a long-lived allocator and resizes it
// whenever a JSON tuning file is written, via internal/allocwatch.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/orizon-lang/orizon-alloc/internal/allocator"
	"github.com/orizon-lang/orizon-alloc/internal/allocwatch"
)

func main() {
	configPath := flag.String("config", "", "path to a JSON file with {\"target_size\": N}")
	baseSize := flag.Uint64("base-size", 1<<20, "initial pool size in bytes")
	flag.Parse()

	if *configPath == "" {
		log.Fatal("-config is required")
	}

	a, err := allocator.Construct(uintptr(*baseSize), 1024)
	if err != nil {
		log.Fatalf("construct: %v", err)
	}

	w, err := allocwatch.New(a, *configPath)
	if err != nil {
		log.Fatalf("watch: %v", err)
	}
	defer w.Close()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	for {
		select {
		case err := <-w.Errors():
			fmt.Fprintln(os.Stderr, "allocwatch:", err)
		case <-sig:
			fmt.Printf("shutting down: total=%d free=%d\n", a.TotalSize(), a.FreeSize())
			return
		}
	}
}
