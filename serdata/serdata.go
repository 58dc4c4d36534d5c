// Package serdata implements the serialized-data and topic-descriptor
// types the rest of the data plane exchanges: a Type (the Go analogue of
// ddsi_sertopic) carries an Ops vtable describing how to allocate, zero,
// grow, and free sample storage, plus a basehash computed from the vtable's
// identity, the direct equivalent of ddsi_sertopic_compute_serdata_basehash.
package serdata

import (
	"crypto/md5"
	"encoding/binary"
	"reflect"
	"sync/atomic"
)

// Ops is the vtable a Type is built from, the Go equivalent of
// ddsi_serdata_ops: how to create, zero, grow/shrink, and release a block
// of samples of the type's underlying Go type.
type Ops struct {
	// Alloc returns a new, zeroed sample.
	Alloc func() any
	// Zero resets an existing sample in place to its zero value.
	Zero func(sample any)
	// Realloc grows or shrinks a slice of samples, analogous to
	// sertopic_builtin_realloc_samples: it must preserve existing elements
	// and zero any newly added tail elements.
	Realloc func(samples []any, newCount int) []any
	// Free releases any resources owned by sample (e.g. nested
	// allocations); it does not need to zero the sample afterward.
	Free func(sample any)
}

// Type is a topic descriptor: a name, a type name, and the Ops vtable used
// to manage samples of this topic, the equivalent of struct ddsi_sertopic.
type Type struct {
	Name         string
	TypeName     string
	NameTypeName string

	Ops Ops

	basehash uint32
	refc     int32
}

// New constructs a Type with a refcount of 1 and a basehash computed from
// ops, matching new_sertopic_builtintopic's construction sequence (name,
// typename, name/typename concatenation, ops, basehash, refc=1).
func New(name, typeName string, ops Ops) *Type {
	t := &Type{
		Name:         name,
		TypeName:     typeName,
		NameTypeName: name + "/" + typeName,
		Ops:          ops,
		refc:         1,
	}
	t.basehash = computeBasehash(ops)
	return t
}

// BaseHash returns the hash computed at construction time.
func (t *Type) BaseHash() uint32 { return t.basehash }

// Ref increments the reference count and returns t, matching
// ddsi_sertopic_ref.
func Ref(t *Type) *Type {
	if t != nil {
		atomic.AddInt32(&t.refc, 1)
	}
	return t
}

// Unref decrements the reference count; callers must not use t after the
// count reaches zero, matching ddsi_sertopic_unref (the Go version has no
// explicit deinit hook beyond Ops, since there is no separate heap block to
// free: the GC reclaims t once nothing references it).
func Unref(t *Type) {
	if t != nil {
		atomic.AddInt32(&t.refc, -1)
	}
}

// RefCount returns the current reference count, for diagnostics/tests.
func (t *Type) RefCount() int32 {
	return atomic.LoadInt32(&t.refc)
}

// computeBasehash hashes the identity of every function in ops (their code
// pointers, the closest Go analogue of hashing a C vtable's function
// pointers); nothing else about the Ops value enters the hash, and a nil
// field hashes as pointer 0. It stands in for
// ddsi_sertopic_compute_serdata_basehash's "hash the ops pointer, then hash
// its contents" two-step: here, reflect.ValueOf(fn).Pointer() on each
// field plays the role of hashing raw function-pointer bytes.
func computeBasehash(ops Ops) uint32 {
	h := md5.New()
	for _, fn := range []any{ops.Alloc, ops.Zero, ops.Realloc, ops.Free} {
		v := reflect.ValueOf(fn)
		var ptr uint64
		if v.IsValid() && !v.IsNil() {
			ptr = uint64(v.Pointer())
		}
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], ptr)
		h.Write(b[:])
	}
	digest := h.Sum(nil)
	return binary.LittleEndian.Uint32(digest[:4])
}

// Samples is a contiguous, typed sample block managed through a Type's Ops,
// the equivalent of the ptrs[]/count pairing sertopic_builtin_*_samples
// operates on.
type Samples struct {
	typ     *Type
	samples []any
}

// NewSamples allocates count fresh, zeroed samples.
func NewSamples(t *Type, count int) *Samples {
	s := &Samples{typ: t}
	s.samples = make([]any, count)
	for i := range s.samples {
		s.samples[i] = t.Ops.Alloc()
	}
	return s
}

// Len returns the number of samples currently held.
func (s *Samples) Len() int { return len(s.samples) }

// At returns the sample at index i.
func (s *Samples) At(i int) any { return s.samples[i] }

// Realloc grows or shrinks the block to newCount, delegating to the Type's
// Ops.Realloc, matching sertopic_builtin_realloc_samples's realloc-whole-
// block-then-zero-the-tail behavior.
func (s *Samples) Realloc(newCount int) {
	s.samples = s.typ.Ops.Realloc(s.samples, newCount)
}

// Free releases every sample via Ops.Free, matching
// sertopic_builtin_free_samples's DDS_FREE_CONTENTS_BIT pass (the
// DDS_FREE_ALL_BIT pass that frees the whole backing block has no Go
// analogue: the GC reclaims the slice once Samples is unreachable).
func (s *Samples) Free() {
	for _, sample := range s.samples {
		if s.typ.Ops.Free != nil {
			s.typ.Ops.Free(sample)
		}
	}
	s.samples = nil
}
