// Package history implements the reader- and writer-side instance/history
// caches: per-key instance state machines, duplicate/out-of-order sequence
// tracking, and resource-limit enforcement (KEEP_LAST eviction vs.
// KEEP_ALL push-back). It is the Go counterpart of the DDS instance cache
// contract (on_sample/on_dispose/take_n/return_loan), built on avltree for
// ordered instance lookup the same way addrset builds its locator subtrees.
package history

import (
	"sync"

	"github.com/ddsfabric/ddscore/avltree"
	"github.com/ddsfabric/ddscore/ddserror"
)

// InstanceKey identifies an instance by its topic key hash.
type InstanceKey string

// PublicationHandle identifies the writer a sequence number is scoped to;
// duplicate/out-of-order tracking is per PublicationHandle, across instances.
type PublicationHandle uint64

// State is the per-instance lifecycle state.
type State int

const (
	StateAlive State = iota
	StateNotAliveDisposed
	StateNotAliveNoWriters
)

// HistoryKind selects the resource-limit overflow policy.
type HistoryKind int

const (
	KeepLast HistoryKind = iota
	KeepAll
)

// Unlimited marks a resource limit field as having no cap.
const Unlimited = -1

// ResourceLimits bounds a reader cache's memory, matching the
// (max_samples, max_samples_per_instance, max_instances) triple; any field
// set to Unlimited is not enforced.
type ResourceLimits struct {
	MaxSamples            int
	MaxSamplesPerInstance int
	MaxInstances          int
}

// Sample is one filed, in-order-or-out-of-order data item. Disposed and
// Unregistered mark key-only frames; a Sample with either set carries no
// payload (the wire-level valid-data flag, inverted).
type Sample struct {
	SeqNum       uint64
	Data         any
	Disposed     bool
	Unregistered bool
}

// maxGapTrack bounds how many missing sequence numbers are remembered per
// publication after a forward jump; a late sample filling a tracked gap is
// delivered, one beyond the window is treated as a duplicate. Tunable;
// bounds memory against an arbitrarily large jump.
const maxGapTrack = 1024

// pubState is the per-publication sequence tracking: the next expected
// number plus the set of numbers skipped over by forward jumps, so a late
// retransmission filling a gap can be told apart from a true duplicate of
// something already delivered. Sequence numbers are scoped to the
// publication, not the instance: one writer interleaving keys emits a
// single consecutive sequence, so keying this per instance would misread
// every key switch as a jump.
type pubState struct {
	expected   uint64
	missing    map[uint64]struct{}
	outOfOrder uint64
}

// Instance is one key's lane within a history cache.
type Instance struct {
	Key             InstanceKey
	State           State
	OutOfOrderCount uint64

	samples []Sample
	loaned  int
}

func newInstance(key InstanceKey) *Instance {
	return &Instance{Key: key, State: StateAlive}
}

// ReaderCache is the reader-side instance/history cache.
type ReaderCache struct {
	mu     sync.Mutex
	kind   HistoryKind
	limits ResourceLimits
	tree   *avltree.Tree[InstanceKey, *Instance]
	total  int
	pubs   map[PublicationHandle]*pubState
}

// NewReaderCache constructs an empty reader cache.
func NewReaderCache(kind HistoryKind, limits ResourceLimits) *ReaderCache {
	return &ReaderCache{
		kind:   kind,
		limits: limits,
		tree:   avltree.NewOrdered[InstanceKey, *Instance](avltree.Counted()),
		pubs:   make(map[PublicationHandle]*pubState),
	}
}

func (c *ReaderCache) instanceLocked(key InstanceKey) (*Instance, bool) {
	return c.tree.Lookup(key)
}

// OnSample files a sample into the instance for key, creating the instance
// if it doesn't exist yet. Sequence tracking is per publication, across
// instances: seq == expected advances the counter; seq > expected is
// delivered but counted out-of-order (recording the skipped numbers as a
// gap); seq < expected is delivered only if it fills a recorded gap, and
// silently dropped as a duplicate otherwise: a retransmission of something
// already delivered must never be delivered twice, but a late sample the
// reader has not yet seen must not be lost.
func (c *ReaderCache) OnSample(pub PublicationHandle, key InstanceKey, seq uint64, data any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	inst, ok := c.instanceLocked(key)
	if !ok {
		if c.limits.MaxInstances != Unlimited && c.tree.Len() >= c.limits.MaxInstances {
			return ddserror.New(ddserror.CodeOutOfResources, "max_instances exceeded")
		}
		inst = newInstance(key)
		c.tree.Insert(key, inst)
	}

	ps, seen := c.pubs[pub]
	if seen && seq < ps.expected {
		if _, gap := ps.missing[seq]; !gap {
			return nil // duplicate, dropped
		}
	}

	// admit before committing any tracking state: a refused write (KEEP_ALL
	// overflow) must leave the counters untouched, so the reliable retry of
	// the same sequence number is not misread as a duplicate.
	if err := c.admit(inst, Sample{SeqNum: seq, Data: data}); err != nil {
		return err
	}
	inst.State = StateAlive

	switch {
	case !seen:
		c.pubs[pub] = &pubState{expected: seq + 1}
	case seq == ps.expected:
		ps.expected = seq + 1
	case seq > ps.expected:
		ps.outOfOrder++
		inst.OutOfOrderCount++
		if seq-ps.expected <= maxGapTrack {
			if ps.missing == nil {
				ps.missing = make(map[uint64]struct{})
			}
			for s := ps.expected; s < seq; s++ {
				ps.missing[s] = struct{}{}
			}
		}
		ps.expected = seq + 1
	default:
		delete(ps.missing, seq)
	}
	return nil
}

// admit appends s to inst, enforcing resource limits: on a KeepLast
// overflow the oldest sample in the offending instance is evicted; on a
// KeepAll overflow the write is refused (reliability will retry).
func (c *ReaderCache) admit(inst *Instance, s Sample) error {
	if c.limits.MaxSamplesPerInstance != Unlimited && len(inst.samples) >= c.limits.MaxSamplesPerInstance {
		if c.kind == KeepAll {
			return ddserror.New(ddserror.CodePreconditionNotMet, "max_samples_per_instance exceeded (KEEP_ALL)")
		}
		c.evictOldest(inst)
	}
	if c.limits.MaxSamples != Unlimited && c.total >= c.limits.MaxSamples {
		if c.kind == KeepAll {
			return ddserror.New(ddserror.CodePreconditionNotMet, "max_samples exceeded (KEEP_ALL)")
		}
		c.evictOldest(inst)
	}
	inst.samples = append(inst.samples, s)
	c.total++
	return nil
}

func (c *ReaderCache) evictOldest(inst *Instance) {
	if len(inst.samples) == 0 {
		return
	}
	inst.samples = inst.samples[1:]
	c.total--
}

// OnDispose transitions the instance for key to NOT_ALIVE_DISPOSED
// without discarding its payload. It is a no-op if the instance doesn't
// exist.
func (c *ReaderCache) OnDispose(key InstanceKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if inst, ok := c.instanceLocked(key); ok {
		inst.State = StateNotAliveDisposed
	}
}

// OnUnregister transitions the instance to NOT_ALIVE_NO_WRITERS, and
// destroys it immediately if no samples remain and no loans are
// outstanding, the "writer unregister" and "last sample taken & no
// writers" edges of the instance state machine.
func (c *ReaderCache) OnUnregister(key InstanceKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	inst, ok := c.instanceLocked(key)
	if !ok {
		return
	}
	inst.State = StateNotAliveNoWriters
	c.destroyIfDone(inst)
}

func (c *ReaderCache) destroyIfDone(inst *Instance) {
	if inst.State == StateNotAliveNoWriters && len(inst.samples) == 0 && inst.loaned == 0 {
		c.tree.Delete(inst.Key)
	}
}

// Loan is a batch of samples handed to the application; it must be
// released exactly once via ReturnLoan.
type Loan struct {
	samples  []takenSample
	returned bool
}

type takenSample struct {
	inst *Instance
	s    Sample
}

// TakeN hands up to n samples as a Loan, matching take_n's loan semantics:
// the returned data remains conceptually owned by the cache until
// ReturnLoan. Instances are visited in ascending key order and each is
// drained oldest-first before the next; arrival order across instances is
// not preserved (every sample of key "a" precedes every sample of key "b").
func (c *ReaderCache) TakeN(n int) (*Loan, []Sample) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var taken []takenSample
	var out []Sample

	it := c.tree.Iterate()
	for len(taken) < n {
		_, inst, ok := it.Next()
		if !ok {
			break
		}
		for len(inst.samples) > 0 && len(taken) < n {
			s := inst.samples[0]
			inst.samples = inst.samples[1:]
			c.total--
			inst.loaned++
			taken = append(taken, takenSample{inst: inst, s: s})
			out = append(out, s)
		}
	}
	return &Loan{samples: taken}, out
}

// ReturnLoan releases a Loan previously obtained from TakeN, matching
// return_loan. Calling ReturnLoan with a nil loan is a no-op; passing a
// loan more than once, or one not produced by this cache, is a caller
// error analogous to BAD_PARAMETER and is rejected.
func (c *ReaderCache) ReturnLoan(loan *Loan) error {
	if loan == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if loan.returned {
		return ddserror.New(ddserror.CodeBadParameter, "return_loan: already returned")
	}
	for _, ts := range loan.samples {
		if inst, ok := c.tree.Lookup(ts.inst.Key); !ok || inst != ts.inst {
			return ddserror.New(ddserror.CodeBadParameter, "return_loan: loan not produced by this cache")
		}
	}
	for _, ts := range loan.samples {
		ts.inst.loaned--
		c.destroyIfDone(ts.inst)
	}
	loan.samples = nil
	loan.returned = true
	return nil
}

// OutOfOrder returns the number of out-of-order samples observed from pub;
// this is the application-visible counter, kept per publication
// (Instance.OutOfOrderCount attributes the same events to the instance the
// jumping sample was filed under, for diagnostics).
func (c *ReaderCache) OutOfOrder(pub PublicationHandle) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ps, ok := c.pubs[pub]; ok {
		return ps.outOfOrder
	}
	return 0
}

// InstanceState returns the current state of key's instance, if it exists.
func (c *ReaderCache) InstanceState(key InstanceKey) (State, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	inst, ok := c.instanceLocked(key)
	if !ok {
		return 0, false
	}
	return inst.State, true
}

// InstanceCount returns the number of live instances.
func (c *ReaderCache) InstanceCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tree.Len()
}

// TotalSamples returns the number of samples currently retained across all
// instances (not counting outstanding loans, which have already been
// removed from the cache).
func (c *ReaderCache) TotalSamples() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.total
}

// WriterCache is the writer-side history cache: an ordered sample sequence
// plus a monotonic per-key sequence-number assignment, retaining enough
// samples to satisfy a RELIABLE retransmission window and KEEP_LAST
// depth.
type WriterCache struct {
	mu      sync.Mutex
	kind    HistoryKind
	depth   int // KEEP_LAST depth per instance; ignored for KeepAll
	nextSeq map[InstanceKey]uint64
	samples map[InstanceKey][]Sample
}

// NewWriterCache constructs an empty writer cache. depth is the KEEP_LAST
// retention depth per instance; it is ignored when kind is KeepAll.
func NewWriterCache(kind HistoryKind, depth int) *WriterCache {
	return &WriterCache{
		kind:    kind,
		depth:   depth,
		nextSeq: make(map[InstanceKey]uint64),
		samples: make(map[InstanceKey][]Sample),
	}
}

// Write assigns the next sequence number for key and appends data,
// evicting the oldest retained sample for key if KEEP_LAST depth is
// exceeded.
func (w *WriterCache) Write(key InstanceKey, data any) uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	seq := w.nextSeq[key]
	w.nextSeq[key] = seq + 1
	w.samples[key] = append(w.samples[key], Sample{SeqNum: seq, Data: data})
	if w.kind == KeepLast && w.depth > 0 && len(w.samples[key]) > w.depth {
		w.samples[key] = w.samples[key][len(w.samples[key])-w.depth:]
	}
	return seq
}

// Dispose writes a key-only, disposed frame for key: a dispose is just a
// write carrying no payload.
func (w *WriterCache) Dispose(key InstanceKey) uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	seq := w.nextSeq[key]
	w.nextSeq[key] = seq + 1
	w.samples[key] = append(w.samples[key], Sample{SeqNum: seq, Disposed: true})
	return seq
}

// Unregister writes a key-only, unregistered frame for key: this writer is
// done with the instance but is not declaring it deleted.
func (w *WriterCache) Unregister(key InstanceKey) uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	seq := w.nextSeq[key]
	w.nextSeq[key] = seq + 1
	w.samples[key] = append(w.samples[key], Sample{SeqNum: seq, Unregistered: true})
	return seq
}

// Retained returns the samples currently retained for key.
func (w *WriterCache) Retained(key InstanceKey) []Sample {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]Sample, len(w.samples[key]))
	copy(out, w.samples[key])
	return out
}
