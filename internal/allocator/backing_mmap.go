//go:build linux || darwin

package allocator

import (
	"fmt"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"
)

// MmapBacking acquires pages directly from the OS via mmap/munmap
// instead of routing through the Go heap: a real system-memory backing
// rather than Go-heap memory dressed up as one. Every request is
// rounded up to a whole number of OS pages, matching mmap's own page
// granularity.
type MmapBacking struct {
	mu      sync.Mutex
	regions map[uintptr][]byte
}

// NewMmapBacking constructs an mmap-backed Backing implementation.
func NewMmapBacking() *MmapBacking {
	return &MmapBacking{regions: make(map[uintptr][]byte)}
}

func roundUpToPage(n uintptr) uintptr {
	pageSize := uintptr(unix.Getpagesize())
	return (n + pageSize - 1) &^ (pageSize - 1)
}

func (m *MmapBacking) Acquire(size uintptr) (uintptr, error) {
	if size == 0 {
		return 0, fmt.Errorf("mmap backing: cannot acquire a zero-length region")
	}

	length := int(roundUpToPage(size))

	buf, err := unix.Mmap(-1, 0, length, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return 0, fmt.Errorf("mmap backing: mmap %d bytes: %w", length, err)
	}

	addr := uintptr(unsafe.Pointer(&buf[0]))

	m.mu.Lock()
	m.regions[addr] = buf
	m.mu.Unlock()

	return addr, nil
}

func (m *MmapBacking) Release(addr uintptr) error {
	m.mu.Lock()
	buf, ok := m.regions[addr]
	if ok {
		delete(m.regions, addr)
	}
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("mmap backing: release of unknown region %#x", addr)
	}

	return unix.Munmap(buf)
}

// Version reports a fixed compatibility version, exercised by
// WithMinBackingVersion in config.go.
func (m *MmapBacking) Version() string { return "1.1.0" }
