// Package avltree implements a generic, comparator-driven balanced binary
// search tree, the Go counterpart of ut_avl.c's height-balanced AVL tree.
// Where the C library is intrusive (the caller embeds ut_avlNode_t in its
// own struct and the library only ever touches raw pointers via configured
// offsets), the Go version owns its own nodes and stores a value of type V
// keyed by K, which is the idiomatic equivalent for a language without
// pointer-offset arithmetic.
package avltree

import "golang.org/x/exp/constraints"

// node is the tree-internal node, the equivalent of ut_avlNode_t plus the
// embedded key/value a caller's struct would otherwise carry.
type node[K, V any] struct {
	left, right, parent *node[K, V]
	height              int
	key                 K
	value               V
	aug                 any
}

func height[K, V any](n *node[K, V]) int {
	if n == nil {
		return 0
	}
	return n.height
}

func balanceFactor[K, V any](n *node[K, V]) int {
	return height(n.left) - height(n.right)
}

func fixHeight[K, V any](n *node[K, V]) {
	lh, rh := height(n.left), height(n.right)
	if lh > rh {
		n.height = lh + 1
	} else {
		n.height = rh + 1
	}
}

// Tree is a balanced binary search tree ordered by a user-supplied
// comparator, optionally allowing duplicate keys (forward scans then visit
// duplicates in insertion order, same as UT_AVL_TREEDEF_FLAG_ALLOWDUPS) and
// optionally tracking its size in O(1) (the "C" / counted variant).
type Tree[K, V any] struct {
	root      *node[K, V]
	cmp       func(a, b K) int
	allowDups bool
	counted   bool
	count     int
	augment   func(value V, left, right any) any
}

// Option configures a Tree at construction time.
type Option func(*treeOptions)

type treeOptions struct {
	allowDups bool
	counted   bool
}

// AllowDuplicates permits multiple entries with equal keys, mirroring
// UT_AVL_TREEDEF_FLAG_ALLOWDUPS.
func AllowDuplicates() Option {
	return func(o *treeOptions) { o.allowDups = true }
}

// Counted marks the tree as the Go equivalent of the "C" (counted) treedef
// variant (ut_avlCTree_t) rather than maintaining a second, near-duplicate
// implementation as the C library does. Every Tree keeps its size, so
// Count and Len are O(1) with or without this option.
func Counted() Option {
	return func(o *treeOptions) { o.counted = true }
}

// New creates a Tree ordered by cmp (same contract as a C comparator:
// negative if a<b, zero if equal, positive if a>b).
func New[K, V any](cmp func(a, b K) int, opts ...Option) *Tree[K, V] {
	var o treeOptions
	for _, opt := range opts {
		opt(&o)
	}
	return &Tree[K, V]{cmp: cmp, allowDups: o.allowDups, counted: o.counted}
}

// NewOrdered is New for key types with a natural ordering, sparing callers
// the boilerplate three-way comparator for plain string/integer keys.
func NewOrdered[K constraints.Ordered, V any](opts ...Option) *Tree[K, V] {
	return New[K, V](func(a, b K) int {
		switch {
		case a < b:
			return -1
		case a > b:
			return 1
		default:
			return 0
		}
	}, opts...)
}

// IsEmpty reports whether the tree has no nodes.
func (t *Tree[K, V]) IsEmpty() bool { return t.root == nil }

// IsSingleton reports whether the tree has exactly one node, the same
// constant-time check as ut_avlIsSingleton (root with no children).
func (t *Tree[K, V]) IsSingleton() bool {
	return t.root != nil && t.root.left == nil && t.root.right == nil
}

// SetAugment installs a subtree-augmentation callback, the Go equivalent of
// the augment function pointer ut_avlAugment.c-style trees pass through the
// treedef: f is called bottom-up with the current node's value and the
// already-recomputed augment of its left and right children (nil when a
// child is absent), and its result is stored against the node. It is invoked
// again for every node on the path to the root after every Insert, Delete,
// SwapNode and rotation, so an aggregate such as a subtree sum or count stays
// consistent without the caller re-walking the tree. Call AugmentOf to read
// the stored value back.
func (t *Tree[K, V]) SetAugment(f func(value V, left, right any) any) {
	t.augment = f
}

// AugmentOf returns the augment value stored for key's node, as last computed
// by the SetAugment callback, or (nil, false) if key is absent or no
// callback is installed.
func (t *Tree[K, V]) AugmentOf(key K) (any, bool) {
	if t.augment == nil {
		return nil, false
	}
	n := t.find(key)
	if n == nil {
		return nil, false
	}
	return n.aug, true
}

// AugmentUpdate recomputes the augment value for key's node and every
// ancestor up to the root, the operation a caller runs after mutating an
// already-inserted node's payload in a way that changes its contribution to
// the augmentation without changing its key (a key or structural change
// already triggers this automatically). It reports false if key is absent.
func (t *Tree[K, V]) AugmentUpdate(key K) bool {
	n := t.find(key)
	if n == nil {
		return false
	}
	t.augmentPath(n)
	return true
}

func augOf[K, V any](n *node[K, V]) any {
	if n == nil {
		return nil
	}
	return n.aug
}

func (t *Tree[K, V]) augmentNode(n *node[K, V]) {
	if t.augment == nil || n == nil {
		return
	}
	n.aug = t.augment(n.value, augOf(n.left), augOf(n.right))
}

// augmentPath recomputes n's augment and every ancestor's, bottom-up.
func (t *Tree[K, V]) augmentPath(n *node[K, V]) {
	if t.augment == nil {
		return
	}
	for ; n != nil; n = n.parent {
		t.augmentNode(n)
	}
}

// Count returns the number of entries in O(1); it is the same value as Len,
// for a Tree constructed with or without Counted().
func (t *Tree[K, V]) Count() int { return t.count }

// Len is an O(1) size for any Tree (counted or not); Count exists for
// parity with the upstream's distinct counted-variant name.
func (t *Tree[K, V]) Len() int { return t.count }

// Lookup returns the value and true if key is present; if duplicates are
// allowed, it returns an arbitrary matching entry, matching ut_avlLookup's
// documented behavior.
func (t *Tree[K, V]) Lookup(key K) (V, bool) {
	n := t.find(key)
	if n == nil {
		var zero V
		return zero, false
	}
	return n.value, true
}

func (t *Tree[K, V]) find(key K) *node[K, V] {
	n := t.root
	for n != nil {
		c := t.cmp(key, n.key)
		switch {
		case c < 0:
			n = n.left
		case c > 0:
			n = n.right
		default:
			return n
		}
	}
	return nil
}

// Insert adds key/value. If duplicates are disallowed and key already
// exists, its value is overwritten (the Go-idiomatic choice; the C library
// instead crashes on a duplicate-key insert when allowdups isn't set,
// which has no sensible Go analogue).
func (t *Tree[K, V]) Insert(key K, value V) {
	parent := (*node[K, V])(nil)
	cur := t.root
	dir := 0
	for cur != nil {
		c := t.cmp(key, cur.key)
		switch {
		case c < 0:
			parent, cur, dir = cur, cur.left, 0
		case c > 0, t.allowDups && c == 0:
			parent, cur, dir = cur, cur.right, 1
		default:
			cur.value = value
			t.augmentPath(cur)
			return
		}
	}
	n := &node[K, V]{key: key, value: value, parent: parent}
	if parent == nil {
		t.root = n
	} else if dir == 0 {
		parent.left = n
	} else {
		parent.right = n
	}
	t.count++
	t.augmentPath(n)
	t.rebalanceFrom(parent)
}

// Delete removes key (an arbitrary matching entry, if duplicates are
// allowed) and reports whether anything was removed.
func (t *Tree[K, V]) Delete(key K) bool {
	n := t.find(key)
	if n == nil {
		return false
	}
	t.deleteNode(n)
	t.count--
	return true
}

func (t *Tree[K, V]) deleteNode(n *node[K, V]) {
	if n.left != nil && n.right != nil {
		// swap with the in-order successor (leftmost of the right
		// subtree), then delete the (now-leaf-or-single-child) successor
		// node instead, same classic BST-deletion reduction ut_avl.c uses.
		succ := n.right
		for succ.left != nil {
			succ = succ.left
		}
		n.key, succ.key = succ.key, n.key
		n.value, succ.value = succ.value, n.value
		n = succ
	}

	child := n.left
	if child == nil {
		child = n.right
	}
	parent := n.parent
	t.replaceChild(parent, n, child)
	if child != nil {
		child.parent = parent
	}
	t.augmentPath(parent)
	t.rebalanceFrom(parent)
}

func (t *Tree[K, V]) replaceChild(parent, old, replacement *node[K, V]) {
	if parent == nil {
		t.root = replacement
		return
	}
	if parent.left == old {
		parent.left = replacement
	} else {
		parent.right = replacement
	}
}

// rebalanceFrom walks from n to the root, fixing heights and rotating as
// needed, the equivalent of the rebalancing loop performed after
// InsertIPath/DeleteDPath in ut_avl.c. The augment callback, if any, is
// re-run for every node visited, so it observes the tree bottom-up and after
// any rotation at that level, matching the documented augment_update
// contract.
func (t *Tree[K, V]) rebalanceFrom(n *node[K, V]) {
	for n != nil {
		fixHeight(n)
		bf := balanceFactor(n)
		switch {
		case bf > 1:
			if balanceFactor(n.left) < 0 {
				t.rotateLeft(n.left)
			}
			n = t.rotateRight(n)
		case bf < -1:
			if balanceFactor(n.right) > 0 {
				t.rotateRight(n.right)
			}
			n = t.rotateLeft(n)
		}
		t.augmentNode(n)
		n = n.parent
	}
}

func (t *Tree[K, V]) rotateLeft(n *node[K, V]) *node[K, V] {
	r := n.right
	n.right = r.left
	if r.left != nil {
		r.left.parent = n
	}
	r.parent = n.parent
	t.replaceChild(n.parent, n, r)
	r.left = n
	n.parent = r
	fixHeight(n)
	fixHeight(r)
	t.augmentNode(n)
	t.augmentNode(r)
	return r
}

func (t *Tree[K, V]) rotateRight(n *node[K, V]) *node[K, V] {
	l := n.left
	n.left = l.right
	if l.right != nil {
		l.right.parent = n
	}
	l.parent = n.parent
	t.replaceChild(n.parent, n, l)
	l.right = n
	n.parent = l
	fixHeight(n)
	fixHeight(l)
	t.augmentNode(n)
	t.augmentNode(l)
	return l
}

func min[K, V any](n *node[K, V]) *node[K, V] {
	if n == nil {
		return nil
	}
	for n.left != nil {
		n = n.left
	}
	return n
}

func max[K, V any](n *node[K, V]) *node[K, V] {
	if n == nil {
		return nil
	}
	for n.right != nil {
		n = n.right
	}
	return n
}

func succ[K, V any](n *node[K, V]) *node[K, V] {
	if n.right != nil {
		return min(n.right)
	}
	p := n.parent
	for p != nil && n == p.right {
		n, p = p, p.parent
	}
	return p
}

func pred[K, V any](n *node[K, V]) *node[K, V] {
	if n.left != nil {
		return max(n.left)
	}
	p := n.parent
	for p != nil && n == p.left {
		n, p = p, p.parent
	}
	return p
}

// FindMin returns the smallest key/value pair in the tree.
func (t *Tree[K, V]) FindMin() (k K, v V, ok bool) {
	if n := min(t.root); n != nil {
		return n.key, n.value, true
	}
	return
}

// FindMax returns the largest key/value pair in the tree.
func (t *Tree[K, V]) FindMax() (k K, v V, ok bool) {
	if n := max(t.root); n != nil {
		return n.key, n.value, true
	}
	return
}

// Walk calls f for every entry in ascending key order. f must not mutate
// the tree, the same restriction ut_avlWalk documents.
func (t *Tree[K, V]) Walk(f func(key K, value V)) {
	for n := min(t.root); n != nil; n = succ(n) {
		f(n.key, n.value)
	}
}

// WalkRange calls f for every entry with key in [lo,hi] (inclusive),
// ascending, the equivalent of ut_avlWalkRange.
func (t *Tree[K, V]) WalkRange(lo, hi K, f func(key K, value V)) {
	n := t.ceilingNode(lo)
	for n != nil && t.cmp(n.key, hi) <= 0 {
		f(n.key, n.value)
		n = succ(n)
	}
}

func (t *Tree[K, V]) ceilingNode(key K) *node[K, V] {
	cur := t.root
	var best *node[K, V]
	for cur != nil {
		c := t.cmp(key, cur.key)
		if c <= 0 {
			best = cur
			cur = cur.left
		} else {
			cur = cur.right
		}
	}
	return best
}

// LookupPred returns the entry with the largest key strictly less than key.
func (t *Tree[K, V]) LookupPred(key K) (k K, v V, ok bool) {
	return result(t.predNode(key, false))
}

// LookupSucc returns the entry with the smallest key strictly greater than
// key.
func (t *Tree[K, V]) LookupSucc(key K) (k K, v V, ok bool) {
	return result(t.succNode(key, false))
}

// LookupPredEq returns the entry with the largest key less than or equal to
// key.
func (t *Tree[K, V]) LookupPredEq(key K) (k K, v V, ok bool) {
	return result(t.predNode(key, true))
}

// LookupSuccEq returns the entry with the smallest key greater than or equal
// to key; on max(tree) it returns max, and on anything larger than max(tree)
// it returns ok=false.
func (t *Tree[K, V]) LookupSuccEq(key K) (k K, v V, ok bool) {
	return result(t.succNode(key, true))
}

func result[K, V any](n *node[K, V]) (k K, v V, ok bool) {
	if n == nil {
		return
	}
	return n.key, n.value, true
}

// predNode finds the node holding the largest key < key (or <= key if orEq),
// descending the tree once like find, remembering the last branch taken
// right (the candidate predecessor) and falling back to the in-order
// predecessor of an exact match when orEq is false.
func (t *Tree[K, V]) predNode(key K, orEq bool) *node[K, V] {
	cur := t.root
	var best *node[K, V]
	for cur != nil {
		c := t.cmp(key, cur.key)
		switch {
		case c < 0:
			cur = cur.left
		case c > 0:
			best = cur
			cur = cur.right
		default:
			if orEq {
				return cur
			}
			return pred(cur)
		}
	}
	return best
}

// succNode is predNode's mirror image for the smallest key > key (or >= key
// if orEq).
func (t *Tree[K, V]) succNode(key K, orEq bool) *node[K, V] {
	cur := t.root
	var best *node[K, V]
	for cur != nil {
		c := t.cmp(key, cur.key)
		switch {
		case c > 0:
			cur = cur.right
		case c < 0:
			best = cur
			cur = cur.left
		default:
			if orEq {
				return cur
			}
			return succ(cur)
		}
	}
	return best
}

// SwapNode replaces the key and value stored at oldKey with newKey/newValue
// in place, without restructuring the tree, provided doing so preserves
// ordering: pred(oldKey).key < newKey < succ(oldKey).key, or <= on either
// side when the tree allows duplicates. It reports false, leaving the tree
// untouched, if oldKey is absent or the precondition would be violated.
func (t *Tree[K, V]) SwapNode(oldKey, newKey K, newValue V) bool {
	n := t.find(oldKey)
	if n == nil {
		return false
	}
	if p := pred(n); p != nil {
		c := t.cmp(p.key, newKey)
		if c > 0 || (!t.allowDups && c == 0) {
			return false
		}
	}
	if s := succ(n); s != nil {
		c := t.cmp(newKey, s.key)
		if c > 0 || (!t.allowDups && c == 0) {
			return false
		}
	}
	n.key = newKey
	n.value = newValue
	t.augmentPath(n)
	return true
}

// Iterator walks a Tree in ascending key order using an explicit stack
// (rather than parent pointers) so that the zero-allocation-per-step
// property ut_avlIter_t provides for forward-only scans is preserved.
type Iterator[K, V any] struct {
	stack []*node[K, V]
}

// Iterate returns a fresh Iterator positioned before the first entry, the
// equivalent of ut_avlIterFirst's setup (IterFirst itself is Next called
// once on a fresh Iterator here).
func (t *Tree[K, V]) Iterate() *Iterator[K, V] {
	it := &Iterator[K, V]{}
	it.pushLeftSpine(t.root)
	return it
}

func (it *Iterator[K, V]) pushLeftSpine(n *node[K, V]) {
	for n != nil {
		it.stack = append(it.stack, n)
		n = n.left
	}
}

// Next advances the iterator and reports whether an entry was produced.
func (it *Iterator[K, V]) Next() (k K, v V, ok bool) {
	if len(it.stack) == 0 {
		return
	}
	n := it.stack[len(it.stack)-1]
	it.stack = it.stack[:len(it.stack)-1]
	it.pushLeftSpine(n.right)
	return n.key, n.value, true
}
