// Package iter implements a small mutable ordered collection over a singly
// linked list, the Go counterpart of os_iter: O(1) prepend/append via
// head/tail pointers, O(n) access by index, and Python-style negative
// indices counting back from the tail.
package iter

import "math"

// Length is the special index meaning "one past the end", accepted by
// Insert to append. It is math.MinInt for the same reason OS_ITER_LENGTH is
// INT32_MIN: no negative index can ever resolve to it, since the largest
// magnitude a valid negative index can have is -Len(), and -math.MinInt is
// not representable.
const Length = math.MinInt

type node[T any] struct {
	next  *node[T]
	value T
}

// Iter is a mutable ordered collection. The zero value is an empty,
// ready-to-use Iter.
type Iter[T any] struct {
	head, tail *node[T]
	length     int
}

// Len returns the number of elements.
func (it *Iter[T]) Len() int { return it.length }

// index resolves a caller index to an absolute position, mirroring
// os__iterIndex: Length maps to it.length, a negative index counts back
// from the tail (resolving to -1 if it reaches past the head), and a
// positive index is clamped to it.length.
func (it *Iter[T]) index(index int) int {
	switch {
	case index == Length:
		return it.length
	case index < 0:
		if -index > it.length {
			return -1
		}
		return it.length + index
	case index > it.length:
		return it.length
	default:
		return index
	}
}

// Insert places v at index and returns the resolved position. An index of
// Length (or anything past the end) appends; zero or any unresolvable
// negative index prepends, matching os_iterInsert.
func (it *Iter[T]) Insert(v T, index int) int {
	n := &node[T]{value: v}
	idx := it.index(index)
	if idx > 0 {
		if idx == it.length {
			it.tail.next = n
			it.tail = n
		} else {
			prev := it.head
			for cnt := 1; cnt < idx; cnt++ {
				prev = prev.next
			}
			n.next = prev.next
			prev.next = n
		}
	} else {
		idx = 0
		n.next = it.head
		it.head = n
		if it.tail == nil {
			it.tail = n
		}
	}
	it.length++
	return idx
}

// Prepend inserts v at the front in O(1).
func (it *Iter[T]) Prepend(v T) { it.Insert(v, 0) }

// Append inserts v at the back in O(1).
func (it *Iter[T]) Append(v T) { it.Insert(v, Length) }

// At returns the element at index without removing it; ok is false if the
// index does not resolve to an existing element (in particular, At(Length)
// is always out of range, matching os_iterObject).
func (it *Iter[T]) At(index int) (v T, ok bool) {
	idx := it.index(index)
	if idx < 0 || idx >= it.length {
		return v, false
	}
	if idx == it.length-1 {
		return it.tail.value, true
	}
	n := it.head
	for cnt := 0; cnt < idx; cnt++ {
		n = n.next
	}
	return n.value, true
}

// Take removes and returns the element at index; ok is false, and the
// collection is unmodified, if the index does not resolve: Take(Length) and
// Take(-Len()-1) both return nothing, matching os_iterTake.
func (it *Iter[T]) Take(index int) (v T, ok bool) {
	idx := it.index(index)
	if idx < 0 || idx >= it.length {
		return v, false
	}
	var prev *node[T]
	n := it.head
	for cnt := 0; cnt < idx; cnt++ {
		prev = n
		n = n.next
	}
	if n == it.head {
		it.head = n.next
	} else {
		prev.next = n.next
	}
	if n == it.tail {
		it.tail = prev
	}
	it.length--
	return n.value, true
}

// Walk calls f on every element in order.
func (it *Iter[T]) Walk(f func(v T)) {
	for n := it.head; n != nil; n = n.next {
		f(n.value)
	}
}
