// Package store provides fixed-capacity columns backed by anonymous mapped
// memory and the agent pool built from them.
package store

import (
	"fmt"
	"log/slog"
	"os"
	"reflect"
	"unsafe"

	"github.com/pthm-cable/swarm/workers"
)

// Fatal reports an unrecoverable storage failure and terminates the process.
// Tests replace it to observe failures.
var Fatal = func(msg string, args ...any) {
	slog.Error(msg, args...)
	os.Exit(2)
}

// Column is a fixed-length array of T in its own mapping. T must hold no
// pointers: the garbage collector does not scan mapped memory.
type Column[T any] struct {
	data   []T
	mapped []byte // nil when heap-backed
}

// Allocate maps a zero-filled column of n elements. Pages are committed
// lazily by the kernel on first write.
func Allocate[T any](n int) *Column[T] {
	var zero T
	typ := reflect.TypeFor[T]()
	if hasPointers(typ) {
		panic(fmt.Sprintf("store: column element %v contains pointers", typ))
	}
	if n < 0 {
		panic(fmt.Sprintf("store: negative column length %d", n))
	}

	elem := int(unsafe.Sizeof(zero))
	if n == 0 || elem == 0 {
		return &Column[T]{data: make([]T, n)}
	}

	size := n * elem
	if size/elem != n {
		Fatal("column size overflows", "elements", n, "elem_bytes", elem)
		return &Column[T]{}
	}

	mapped, err := mapAnon(size)
	if err != nil {
		Fatal("mapping column failed", "type", typ.String(), "elements", n, "bytes", size, "error", err)
		return &Column[T]{}
	}

	return &Column[T]{
		data:   unsafe.Slice((*T)(unsafe.Pointer(&mapped[0])), n),
		mapped: mapped,
	}
}

// Len returns the column length.
func (c *Column[T]) Len() int {
	return len(c.data)
}

// Slice returns the full column. The slice is invalid after Free.
func (c *Column[T]) Slice() []T {
	return c.data
}

// Head returns the first n elements.
func (c *Column[T]) Head(n int) []T {
	return c.data[:n]
}

// At returns element i.
func (c *Column[T]) At(i int) T {
	return c.data[i]
}

// Set stores v at element i.
func (c *Column[T]) Set(i int, v T) {
	c.data[i] = v
}

// Fill stores v in every element.
func (c *Column[T]) Fill(v T) {
	for i := range c.data {
		c.data[i] = v
	}
}

// ParallelFill stores v in every element using r.
func (c *Column[T]) ParallelFill(v T, r workers.Runner) {
	data := c.data
	r.Run(len(data), func(lo, hi, _ int) {
		for i := lo; i < hi; i++ {
			data[i] = v
		}
	})
}

// Bytes returns the virtual size of the column.
func (c *Column[T]) Bytes() int64 {
	var zero T
	return int64(len(c.data)) * int64(unsafe.Sizeof(zero))
}

// Free releases the mapping. The column is empty afterwards.
func (c *Column[T]) Free() {
	if c == nil {
		return
	}
	if c.mapped != nil {
		if err := unmap(c.mapped); err != nil {
			slog.Warn("unmapping column failed", "bytes", len(c.mapped), "error", err)
		}
	}
	c.data = nil
	c.mapped = nil
}

// hasPointers reports whether values of t contain any pointer the garbage
// collector would need to see.
func hasPointers(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Pointer, reflect.Slice, reflect.Map, reflect.String,
		reflect.Interface, reflect.Chan, reflect.Func, reflect.UnsafePointer:
		return true
	case reflect.Array:
		return t.Len() > 0 && hasPointers(t.Elem())
	case reflect.Struct:
		for i := 0; i < t.NumField(); i++ {
			if hasPointers(t.Field(i).Type) {
				return true
			}
		}
	}
	return false
}
