// Package iterable provides lazy sequences that own an OS resource.
package iterable

import (
	"iter"
	"sync"
)

// CloseableIterable is a lazy sequence backed by a handle that must be released.
// Callers defer Close; breaking out of All early is safe.
type CloseableIterable[T any] interface {
	All() iter.Seq[T]
	Close() error
}

type closeable[T any] struct {
	seq   iter.Seq[T]
	once  sync.Once
	close func() error
	err   error
}

// New wraps seq; closeFn runs at most once, either on Close or when seq is
// exhausted.
func New[T any](seq iter.Seq[T], closeFn func() error) CloseableIterable[T] {
	return &closeable[T]{seq: seq, close: closeFn}
}

func (c *closeable[T]) All() iter.Seq[T] {
	return func(yield func(T) bool) {
		done := true
		c.seq(func(v T) bool {
			if !yield(v) {
				done = false
				return false
			}
			return true
		})
		if done {
			c.Close()
		}
	}
}

func (c *closeable[T]) Close() error {
	c.once.Do(func() {
		if c.close != nil {
			c.err = c.close()
		}
	})
	return c.err
}

// Empty yields nothing.
func Empty[T any]() CloseableIterable[T] {
	return New[T](func(func(T) bool) {}, nil)
}

// FromSlice yields the elements of s.
func FromSlice[T any](s []T) CloseableIterable[T] {
	return New[T](func(yield func(T) bool) {
		for _, v := range s {
			if !yield(v) {
				return
			}
		}
	}, nil)
}

// Collect drains it and closes it.
func Collect[T any](it CloseableIterable[T]) ([]T, error) {
	var out []T
	for v := range it.All() {
		out = append(out, v)
	}
	return out, it.Close()
}
