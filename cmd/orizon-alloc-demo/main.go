// Command orizon-alloc-demo drives the free-list allocator through a
// small allocate/free workload and prints its Stats() snapshot.
package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/orizon-lang/orizon-alloc/internal/allocator"
)

func main() {
	baseSize := flag.Uint64("base-size", 1<<20, "initial pool size in bytes")
	flag.Parse()

	a, err := allocator.Construct(uintptr(*baseSize), 1024, allocator.WithStats(true))
	if err != nil {
		log.Fatalf("construct: %v", err)
	}

	var held []uintptr

	for _, size := range []uintptr{128, 4096, 65536, 256} {
		addr, err := a.Allocate(size)
		if err != nil {
			log.Fatalf("allocate(%d): %v", size, err)
		}

		held = append(held, addr)
	}

	fmt.Println(a.Stats())

	for _, addr := range held {
		if !a.Free(addr) {
			log.Fatalf("free(%#x): address not recognised", addr)
		}
	}

	fmt.Printf("after freeing everything: total=%d free=%d occupied=%d\n",
		a.TotalSize(), a.FreeSize(), a.OccupiedSize())
}
