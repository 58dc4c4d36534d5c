// Package freelist implements a partitioned, magazine-based object pool,
// the Go analogue of q_freelist.c's nn_freelist. Rather than an intrusive
// singly-linked free chain through the pooled objects themselves (as the C
// implementation does via a caller-supplied link offset), the Go version
// owns its storage directly: each partition holds a slice-backed magazine of
// values, sized and rotated exactly the way the C magazines are.
package freelist

import (
	"sync"
	"sync/atomic"
)

const (
	// numPartitions matches NN_FREELIST_NPAR: a small, fixed fan-out used to
	// reduce contention between producers/consumers on different CPUs.
	numPartitions = 4
	// magazineSize matches NN_FREELIST_MAGSIZE.
	magazineSize = 256
)

// magazine is a fixed-capacity LIFO stack of pooled values, the equivalent
// of struct nn_freelistM.
type magazine[T any] struct {
	items [magazineSize]T
	n     int
	next  *magazine[T]
}

func (m *magazine[T]) full() bool  { return m.n == magazineSize }
func (m *magazine[T]) empty() bool { return m.n == 0 }

func (m *magazine[T]) push(v T) {
	m.items[m.n] = v
	m.n++
}

func (m *magazine[T]) pop() T {
	m.n--
	v := m.items[m.n]
	var zero T
	m.items[m.n] = zero
	return v
}

// partition is one of the NN_FREELIST_NPAR striped sub-lists, each with its
// own lock, mirroring struct nn_freelist1.
type partition[T any] struct {
	mu    sync.Mutex
	count int
	mag   *magazine[T]
}

// Freelist is a concurrent-safe pool of values of type T, partitioned across
// a small fixed number of stripes plus one global overflow list, the same
// two-tier design as nn_freelist: fast path hits a thread-local-ish
// partition's current magazine, slow path exchanges full/empty magazines
// with a shared list under a second lock.
type Freelist[T any] struct {
	new func() T

	inner [numPartitions]partition[T]

	globalMu  sync.Mutex
	fullMags  *magazine[T] // mlist: magazines with spare capacity to pop from
	emptyMags *magazine[T] // emlist: empty magazines to recycle as new buffers

	count int64 // total pooled items, for diagnostics/tests
	max   int64 // optional cap on pooled items; 0 means unbounded

	partHint atomic.Uint32 // round-robins which partition a goroutine prefers
}

// New creates a Freelist. newFn, if non-nil, is called by Pop when the pool
// is empty, so Pop never returns a zero value silently; max, if positive,
// caps how many spare items Push will retain (further pushes are dropped),
// the Go equivalent of nn_freelist_init's max parameter.
func New[T any](newFn func() T, max int) *Freelist[T] {
	return &Freelist[T]{new: newFn, max: int64(max)}
}

func (f *Freelist[T]) partitionIndex() int {
	// the C implementation hashes a thread-local address to pick a
	// partition and spins a small number of times before rerolling to
	// another partition on lock contention; goroutines have no stable
	// identity to hash, so this simply round-robins, which gives the same
	// amortized fan-out without needing TLS.
	return int(f.partHint.Add(1)) % numPartitions
}

// Push returns v to the pool, reporting false (caller retains ownership
// and remains responsible for the object) when max is positive and the
// pool is already at capacity. The capacity check and the admission itself
// happen under one compare-and-swap loop on f.count, so concurrent pushers
// racing against a full pool can never admit more than max total.
// A successful reservation always completes into the fast path (append to
// the current partition's magazine if it has room) or the slow path
// (the full magazine is moved whole to the global full-magazine list and a
// fresh/recycled empty magazine takes its place), exactly mirroring
// nn_freelist_push.
func (f *Freelist[T]) Push(v T) bool {
	if f.max > 0 {
		for {
			cur := atomic.LoadInt64(&f.count)
			if cur >= f.max {
				return false
			}
			if atomic.CompareAndSwapInt64(&f.count, cur, cur+1) {
				break
			}
		}
	} else {
		atomic.AddInt64(&f.count, 1)
	}

	idx := f.partitionIndex()
	p := &f.inner[idx]
	p.mu.Lock()
	if p.mag == nil {
		p.mag = f.takeEmptyMagazine()
	}
	if p.mag.full() {
		f.stashFullMagazine(p.mag)
		p.mag = f.takeEmptyMagazine()
	}
	p.mag.push(v)
	p.count = p.mag.n
	p.mu.Unlock()

	return true
}

// Pop removes and returns a value from the pool, or calls New (if set) and
// returns its result. Pop never blocks. The preferred partition is tried
// first, then the remaining partitions in order: the C implementation's
// stable thread-to-partition hash guarantees a thread pops where it pushed,
// but round-robin does not, so items resting in another partition's current
// magazine must stay reachable.
func (f *Freelist[T]) Pop() T {
	idx := f.partitionIndex()
	for i := 0; i < numPartitions; i++ {
		p := &f.inner[(idx+i)%numPartitions]
		p.mu.Lock()
		if p.mag != nil && !p.mag.empty() {
			v := p.mag.pop()
			p.count = p.mag.n
			p.mu.Unlock()
			atomic.AddInt64(&f.count, -1)
			return v
		}
		p.mu.Unlock()
	}

	// slow path: steal a full magazine from the global list, the same as
	// nn_freelist_pop falling through to the shared mlist.
	if m := f.takeFullMagazine(); m != nil {
		v := m.pop()
		atomic.AddInt64(&f.count, -1)
		p := &f.inner[idx]
		p.mu.Lock()
		if p.mag == nil || p.mag.empty() {
			f.stashEmptyMagazine(p.mag)
			p.mag = m
			p.count = m.n
		} else if m.empty() {
			f.stashEmptyMagazine(m)
		} else {
			f.stashFullMagazine(m)
		}
		p.mu.Unlock()
		return v
	}

	var zero T
	if f.new != nil {
		zero = f.new()
	}
	return zero
}

// PushMany pushes elements of vs in order, stopping at (and returning,
// as residual) the first one that does not fit; a nil residual means every
// element fit. The Go slice plays the role of the caller-supplied linked
// chain nn_freelist_pushmany walks.
func (f *Freelist[T]) PushMany(vs []T) (residual []T) {
	for i, v := range vs {
		if !f.Push(v) {
			return vs[i:]
		}
	}
	return nil
}

// Len reports the approximate number of pooled items. It is intended for
// diagnostics and tests, not for making allocation decisions (another
// goroutine may change it immediately after it is read).
func (f *Freelist[T]) Len() int64 {
	return atomic.LoadInt64(&f.count)
}

// Drain empties the pool, calling free (if non-nil) on every pooled value,
// the equivalent of nn_freelist_fini's drain-with-free-callback. The
// Freelist remains usable (empty) afterward; concurrent Push/Pop during a
// drain simply race for the items.
func (f *Freelist[T]) Drain(free func(T)) {
	for i := range f.inner {
		p := &f.inner[i]
		p.mu.Lock()
		for p.mag != nil && !p.mag.empty() {
			v := p.mag.pop()
			atomic.AddInt64(&f.count, -1)
			if free != nil {
				free(v)
			}
		}
		p.count = 0
		p.mu.Unlock()
	}
	for {
		m := f.takeFullMagazine()
		if m == nil {
			break
		}
		for !m.empty() {
			v := m.pop()
			atomic.AddInt64(&f.count, -1)
			if free != nil {
				free(v)
			}
		}
		f.stashEmptyMagazine(m)
	}
}

func (f *Freelist[T]) takeEmptyMagazine() *magazine[T] {
	f.globalMu.Lock()
	defer f.globalMu.Unlock()
	if f.emptyMags != nil {
		m := f.emptyMags
		f.emptyMags = m.next
		m.next = nil
		m.n = 0
		return m
	}
	return new(magazine[T])
}

func (f *Freelist[T]) stashEmptyMagazine(m *magazine[T]) {
	if m == nil {
		return
	}
	f.globalMu.Lock()
	m.next = f.emptyMags
	f.emptyMags = m
	f.globalMu.Unlock()
}

func (f *Freelist[T]) stashFullMagazine(m *magazine[T]) {
	f.globalMu.Lock()
	m.next = f.fullMags
	f.fullMags = m
	f.globalMu.Unlock()
}

func (f *Freelist[T]) takeFullMagazine() *magazine[T] {
	f.globalMu.Lock()
	defer f.globalMu.Unlock()
	if f.fullMags == nil {
		return nil
	}
	m := f.fullMags
	f.fullMags = m.next
	m.next = nil
	return m
}
