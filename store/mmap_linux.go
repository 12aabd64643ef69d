package store

import "golang.org/x/sys/unix"

// Private, anonymous and without swap reservation so that a large capacity
// costs address space only until pages are touched.
const mapFlags = unix.MAP_ANON | unix.MAP_PRIVATE | unix.MAP_NORESERVE
