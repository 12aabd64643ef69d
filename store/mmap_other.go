//go:build !(linux || darwin || freebsd || netbsd || openbsd || dragonfly)

package store

// Platforms without anonymous mmap fall back to heap-backed columns.
func mapAnon(size int) ([]byte, error) {
	return make([]byte, size), nil
}

func unmap([]byte) error {
	return nil
}

// Mapped reports whether columns are backed by anonymous mappings.
const Mapped = false
