// Package scanlist provides a multi-consumer list that favours optimistic
// scans over locks. Writers publish a new immutable snapshot with a higher
// version; every consumer cursor remembers the version it started on and
// reports StatusModified on its next read once the list has moved on.
package scanlist

import (
	"sync"
	"sync/atomic"

	ierr "github.com/smallbiznis/fedbill/internal/errors"
)

// Status is the outcome of a single scan step.
type Status int

const (
	// StatusOK means an item was returned.
	StatusOK Status = iota
	// StatusEnd means the scan reached the end of its snapshot.
	StatusEnd
	// StatusModified means the list changed since the scan started; the
	// consumer must stop and start over.
	StatusModified
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusEnd:
		return "end"
	case StatusModified:
		return "modified"
	default:
		return "unknown"
	}
}

// Token identifies one consumer. A Token must not be shared between goroutines.
type Token uint64

type snapshot[T any] struct {
	version uint64
	items   []T
}

type cursor struct {
	version uint64
	pos     int
}

// List is safe for concurrent use. Add and Remove never block readers or
// other writers.
type List[T comparable] struct {
	snap      atomic.Pointer[snapshot[T]]
	nextToken atomic.Uint64
	cursors   sync.Map
}

// New returns a list holding items in order.
func New[T comparable](items ...T) *List[T] {
	l := &List[T]{}
	cp := make([]T, len(items))
	copy(cp, items)
	l.snap.Store(&snapshot[T]{items: cp})
	return l
}

// StartIterating opens a cursor at the head of the current snapshot.
func (l *List[T]) StartIterating() Token {
	tok := Token(l.nextToken.Add(1))
	l.cursors.Store(tok, &cursor{version: l.snap.Load().version})
	return tok
}

// Next advances the cursor identified by tok.
func (l *List[T]) Next(tok Token) (T, Status, error) {
	var zero T

	v, ok := l.cursors.Load(tok)
	if !ok {
		return zero, StatusEnd, ierr.NewErrorf("unknown consumer token %d", tok).
			Mark(ierr.ErrInternal)
	}
	c := v.(*cursor)

	snap := l.snap.Load()
	if snap.version != c.version {
		return zero, StatusModified, nil
	}
	if c.pos >= len(snap.items) {
		return zero, StatusEnd, nil
	}

	item := snap.items[c.pos]
	c.pos++
	return item, StatusOK, nil
}

// StopIterating releases tok. Stopping an unknown token is a no-op.
func (l *List[T]) StopIterating(tok Token) {
	l.cursors.Delete(tok)
}

// Add appends item.
func (l *List[T]) Add(item T) {
	for {
		old := l.snap.Load()
		items := make([]T, len(old.items), len(old.items)+1)
		copy(items, old.items)
		items = append(items, item)
		if l.snap.CompareAndSwap(old, &snapshot[T]{version: old.version + 1, items: items}) {
			return
		}
	}
}

// Remove deletes the first occurrence of item and reports whether it was present.
func (l *List[T]) Remove(item T) bool {
	for {
		old := l.snap.Load()
		idx := -1
		for i, it := range old.items {
			if it == item {
				idx = i
				break
			}
		}
		if idx < 0 {
			return false
		}

		items := make([]T, 0, len(old.items)-1)
		items = append(items, old.items[:idx]...)
		items = append(items, old.items[idx+1:]...)
		if l.snap.CompareAndSwap(old, &snapshot[T]{version: old.version + 1, items: items}) {
			return true
		}
	}
}

// IsEmpty reports whether the current snapshot holds no items.
func (l *List[T]) IsEmpty() bool {
	return len(l.snap.Load().items) == 0
}

// Len returns the size of the current snapshot.
func (l *List[T]) Len() int {
	return len(l.snap.Load().items)
}

// Items returns a copy of the current snapshot.
func (l *List[T]) Items() []T {
	snap := l.snap.Load()
	cp := make([]T, len(snap.items))
	copy(cp, snap.items)
	return cp
}

// Version returns the version of the current snapshot.
func (l *List[T]) Version() uint64 {
	return l.snap.Load().version
}

// ActiveConsumers returns the number of open tokens.
func (l *List[T]) ActiveConsumers() int {
	n := 0
	l.cursors.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}
