//go:build linux || darwin || freebsd

package main

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// mapBlob maps path read-only. The mapping stays valid until release, which
// covers the lifetime of any fdt.Handle built on it.
func mapBlob(path string) ([]byte, func(), error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		return nil, nil, err
	}
	if st.Size() == 0 {
		return nil, nil, fmt.Errorf("%s: empty file", path)
	}
	b, err := unix.Mmap(int(f.Fd()), 0, int(st.Size()), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, nil, fmt.Errorf("mmap %s: %w", path, err)
	}
	return b, func() { _ = unix.Munmap(b) }, nil
}
