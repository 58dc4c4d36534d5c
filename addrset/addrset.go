// Package addrset implements a refcounted, mutex-guarded set of network
// locators split into unicast and multicast subtrees, the Go equivalent of
// q_addrset.c's struct addrset. It is built directly on avltree rather than
// a second hand-rolled tree, using the package's Counted() option in place
// of maintaining the C library's separate "C" (counted) treedef variant.
package addrset

import (
	"sync"
	"sync/atomic"

	"github.com/ddsfabric/ddscore/avltree"
	"github.com/ddsfabric/ddscore/locator"
)

// AddrSet is a refcounted unicast/multicast locator set. The zero value is
// not usable; construct with New.
type AddrSet struct {
	refc int32

	mu      sync.Mutex
	ucaddrs *avltree.Tree[locator.Locator, struct{}]
	mcaddrs *avltree.Tree[locator.Locator, struct{}]
}

// New creates an AddrSet with an initial reference count of 1, matching
// new_addrset.
func New() *AddrSet {
	return &AddrSet{
		refc:    1,
		ucaddrs: avltree.New[locator.Locator, struct{}](locator.Compare, avltree.Counted()),
		mcaddrs: avltree.New[locator.Locator, struct{}](locator.Compare, avltree.Counted()),
	}
}

// Ref increments the reference count and returns as, matching ref_addrset's
// pass-through-the-pointer convenience.
func Ref(as *AddrSet) *AddrSet {
	if as != nil {
		atomic.AddInt32(&as.refc, 1)
	}
	return as
}

// Unref decrements the reference count; the set's internal trees are
// cleared once it reaches zero, matching unref_addrset. Go's GC reclaims
// the AddrSet itself once nothing references it; Unref's only effect
// beyond the count is clearing the trees when the count reaches zero.
func Unref(as *AddrSet) {
	if as == nil {
		return
	}
	if atomic.AddInt32(&as.refc, -1) == 0 {
		as.mu.Lock()
		as.ucaddrs = avltree.New[locator.Locator, struct{}](locator.Compare, avltree.Counted())
		as.mcaddrs = avltree.New[locator.Locator, struct{}](locator.Compare, avltree.Counted())
		as.mu.Unlock()
	}
}

// Purge empties both subtrees under a single lock acquisition, matching
// addrset_purge.
func (as *AddrSet) Purge() {
	as.mu.Lock()
	as.ucaddrs = avltree.New[locator.Locator, struct{}](locator.Compare, avltree.Counted())
	as.mcaddrs = avltree.New[locator.Locator, struct{}](locator.Compare, avltree.Counted())
	as.mu.Unlock()
}

func (as *AddrSet) treeFor(loc locator.Locator) *avltree.Tree[locator.Locator, struct{}] {
	if loc.IsMulticast() {
		return as.mcaddrs
	}
	return as.ucaddrs
}

// Add inserts loc, a no-op if loc is the unspecified/wildcard locator,
// matching add_to_addrset.
func (as *AddrSet) Add(loc locator.Locator) {
	if loc.IsUnspecified() {
		return
	}
	as.mu.Lock()
	as.treeFor(loc).Insert(loc, struct{}{})
	as.mu.Unlock()
}

// Remove deletes loc if present, matching remove_from_addrset.
func (as *AddrSet) Remove(loc locator.Locator) {
	as.mu.Lock()
	as.treeFor(loc).Delete(loc)
	as.mu.Unlock()
}

// Contains reports whether loc is a member.
func (as *AddrSet) Contains(loc locator.Locator) bool {
	as.mu.Lock()
	defer as.mu.Unlock()
	_, ok := as.treeFor(loc).Lookup(loc)
	return ok
}

// ForallFunc is called once per locator by Forall, in multicast-then-unicast
// order, matching addrset_forall's walk order.
type ForallFunc func(loc locator.Locator)

// Forall visits every locator in the set.
func (as *AddrSet) Forall(f ForallFunc) {
	as.ForallCount(f)
}

// ForallCount is Forall, additionally returning the number of locators
// visited, matching addrset_forall_count.
func (as *AddrSet) ForallCount(f ForallFunc) int {
	as.mu.Lock()
	defer as.mu.Unlock()
	n := 0
	as.mcaddrs.Walk(func(k locator.Locator, _ struct{}) { f(k); n++ })
	as.ucaddrs.Walk(func(k locator.Locator, _ struct{}) { f(k); n++ })
	return n
}

// ForOne visits locators until f returns true, reporting whether any did,
// matching addrset_forone's short-circuit contract.
func (as *AddrSet) ForOne(f func(loc locator.Locator) bool) bool {
	as.mu.Lock()
	defer as.mu.Unlock()
	hit := false
	visit := func(k locator.Locator, _ struct{}) {
		if !hit && f(k) {
			hit = true
		}
	}
	as.mcaddrs.Walk(visit)
	if !hit {
		as.ucaddrs.Walk(visit)
	}
	return hit
}

// Count returns the total number of locators in the set.
func (as *AddrSet) Count() int {
	as.mu.Lock()
	defer as.mu.Unlock()
	return as.ucaddrs.Count() + as.mcaddrs.Count()
}

// CountUnicast returns the number of unicast members.
func (as *AddrSet) CountUnicast() int {
	as.mu.Lock()
	defer as.mu.Unlock()
	return as.ucaddrs.Count()
}

// CountMulticast returns the number of multicast members.
func (as *AddrSet) CountMulticast() int {
	as.mu.Lock()
	defer as.mu.Unlock()
	return as.mcaddrs.Count()
}

// snapshot copies the set's members out under its lock, so merge can add
// them to the destination without holding two instance locks at once (two
// concurrent opposite-direction merges would otherwise deadlock).
func (as *AddrSet) snapshot() []locator.Locator {
	var out []locator.Locator
	as.mu.Lock()
	as.mcaddrs.Walk(func(k locator.Locator, _ struct{}) { out = append(out, k) })
	as.ucaddrs.Walk(func(k locator.Locator, _ struct{}) { out = append(out, k) })
	as.mu.Unlock()
	return out
}

// Merge adds every member of src to as, matching
// copy_addrset_into_addrset (unicast and multicast both).
func (as *AddrSet) Merge(src *AddrSet) {
	for _, loc := range src.snapshot() {
		as.Add(loc)
	}
}

// MergeNonSSM is Merge excluding source-specific multicast groups,
// matching copy_addrset_into_addrset_no_ssm: an SSM group subscription is
// only meaningful against its original source, so blindly copying one
// between sets would advertise reachability the destination doesn't have.
func (as *AddrSet) MergeNonSSM(src *AddrSet) {
	for _, loc := range src.snapshot() {
		if loc.IsSSM() {
			continue
		}
		as.Add(loc)
	}
}

// AnyUnicast returns an arbitrary unicast member, matching addrset_any_uc.
func (as *AddrSet) AnyUnicast() (locator.Locator, bool) {
	as.mu.Lock()
	defer as.mu.Unlock()
	k, _, ok := as.ucaddrs.FindMin()
	return k, ok
}

// AnyMulticast returns an arbitrary multicast member, matching
// addrset_any_mc.
func (as *AddrSet) AnyMulticast() (locator.Locator, bool) {
	as.mu.Lock()
	defer as.mu.Unlock()
	k, _, ok := as.mcaddrs.FindMin()
	return k, ok
}

// Empty reports whether the set has no members.
func (as *AddrSet) Empty() bool {
	as.mu.Lock()
	defer as.mu.Unlock()
	return as.ucaddrs.IsEmpty() && as.mcaddrs.IsEmpty()
}

// EqOneSidedErr is a deliberately approximate, wait-free-leaning equality
// check: it locks a, then TRY-locks b, and if that fails it reports "not
// equal" outright rather than blocking or retrying. Even when both locks
// are obtained, it only compares the two subtrees' roots: both empty, or
// both singleton-and-equal. Any other shape (including two distinct,
// larger, but element-wise-identical trees) is reported as NOT equal. This
// mirrors addrset_eq_onesidederr/addrset_eq_onesidederr1 exactly and is
// intentionally never "fixed" to be a precise equality test: the
// upstream comment is explicit that an exact check isn't worth the
// trouble for this caller, and a caller treating a false negative as
// equivalent to false-or-unknown is required here too.
func EqOneSidedErr(a, b *AddrSet) bool {
	if a == b {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if !b.mu.TryLock() {
		return false
	}
	defer b.mu.Unlock()
	return treeEqOneSided(a.ucaddrs, b.ucaddrs) && treeEqOneSided(a.mcaddrs, b.mcaddrs)
}

func treeEqOneSided(at, bt *avltree.Tree[locator.Locator, struct{}]) bool {
	switch {
	case at.IsEmpty() && bt.IsEmpty():
		return true
	case at.IsSingleton() && bt.IsSingleton():
		ak, _, _ := at.FindMin()
		bk, _, _ := bt.FindMin()
		return locator.Compare(ak, bk) == 0
	default:
		return false
	}
}
