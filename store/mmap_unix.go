//go:build linux || darwin || freebsd || netbsd || openbsd || dragonfly

package store

import "golang.org/x/sys/unix"

func mapAnon(size int) ([]byte, error) {
	return unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, mapFlags)
}

func unmap(b []byte) error {
	return unix.Munmap(b)
}

// Mapped reports whether columns are backed by anonymous mappings.
const Mapped = true
