package avltree

import (
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intCmp(a, b int) int { return a - b }

func TestInsertLookupDelete(t *testing.T) {
	tr := New[int, string](intCmp)
	tr.Insert(5, "five")
	tr.Insert(3, "three")
	tr.Insert(8, "eight")

	v, ok := tr.Lookup(3)
	require.True(t, ok)
	assert.Equal(t, "three", v)

	assert.True(t, tr.Delete(3))
	_, ok = tr.Lookup(3)
	assert.False(t, ok)
	assert.False(t, tr.Delete(3))
}

func TestInsertOverwritesWithoutDuplicates(t *testing.T) {
	tr := New[int, string](intCmp)
	tr.Insert(1, "a")
	tr.Insert(1, "b")
	v, ok := tr.Lookup(1)
	require.True(t, ok)
	assert.Equal(t, "b", v)
	assert.Equal(t, 1, tr.Len())
}

func TestWalkIsAscending(t *testing.T) {
	tr := New[int, int](intCmp)
	values := []int{9, 1, 8, 2, 7, 3, 6, 4, 5, 0}
	for _, v := range values {
		tr.Insert(v, v*10)
	}
	var got []int
	tr.Walk(func(k, v int) { got = append(got, k) })
	want := append([]int(nil), values...)
	sort.Ints(want)
	assert.Equal(t, want, got)
}

func TestIteratorMatchesWalk(t *testing.T) {
	tr := New[int, int](intCmp)
	for _, v := range []int{4, 2, 6, 1, 3, 5, 7} {
		tr.Insert(v, v)
	}
	var walked []int
	tr.Walk(func(k, v int) { walked = append(walked, k) })

	var iterated []int
	it := tr.Iterate()
	for {
		k, _, ok := it.Next()
		if !ok {
			break
		}
		iterated = append(iterated, k)
	}
	assert.Equal(t, walked, iterated)
}

func TestWalkRange(t *testing.T) {
	tr := New[int, int](intCmp)
	for i := 0; i < 20; i++ {
		tr.Insert(i, i)
	}
	var got []int
	tr.WalkRange(5, 10, func(k, v int) { got = append(got, k) })
	assert.Equal(t, []int{5, 6, 7, 8, 9, 10}, got)
}

func TestFindMinMax(t *testing.T) {
	tr := New[int, int](intCmp)
	for _, v := range []int{5, 1, 9, 3, 7} {
		tr.Insert(v, v)
	}
	minK, _, ok := tr.FindMin()
	require.True(t, ok)
	assert.Equal(t, 1, minK)

	maxK, _, ok := tr.FindMax()
	require.True(t, ok)
	assert.Equal(t, 9, maxK)
}

func TestIsEmptyAndSingleton(t *testing.T) {
	tr := New[int, int](intCmp)
	assert.True(t, tr.IsEmpty())
	tr.Insert(1, 1)
	assert.True(t, tr.IsSingleton())
	tr.Insert(2, 2)
	assert.False(t, tr.IsSingleton())
}

func TestCountedVariant(t *testing.T) {
	tr := New[int, int](intCmp, Counted())
	for i := 0; i < 10; i++ {
		tr.Insert(i, i)
	}
	assert.Equal(t, 10, tr.Count())
	tr.Delete(3)
	assert.Equal(t, 9, tr.Count())
}

func TestAllowDuplicatesKeepsAllEntries(t *testing.T) {
	tr := New[int, int](intCmp, AllowDuplicates())
	tr.Insert(1, 10)
	tr.Insert(1, 20)
	tr.Insert(1, 30)
	assert.Equal(t, 3, tr.Len())
	var got []int
	tr.Walk(func(k, v int) { got = append(got, v) })
	assert.Equal(t, []int{10, 20, 30}, got)
}

// TestBalanceStaysLogarithmic inserts a large ascending run (the classic
// unbalanced-BST pathological case) and asserts the resulting height stays
// within the AVL O(log n) bound, the structural invariant the rotation
// logic exists to uphold.
func TestBalanceStaysLogarithmic(t *testing.T) {
	tr := New[int, int](intCmp)
	const n = 10000
	for i := 0; i < n; i++ {
		tr.Insert(i, i)
	}
	h := treeHeight(tr.root)
	// AVL worst-case height is below 1.44*log2(n+2); allow generous slack.
	assert.LessOrEqual(t, h, 2*log2(n+2))
}

func treeHeight[K, V any](n *node[K, V]) int {
	if n == nil {
		return 0
	}
	lh, rh := treeHeight(n.left), treeHeight(n.right)
	if lh > rh {
		return lh + 1
	}
	return rh + 1
}

func log2(n int) int {
	r := 0
	for n > 1 {
		n >>= 1
		r++
	}
	return r
}

func TestLookupPredSucc(t *testing.T) {
	tr := New[int, int](intCmp)
	for _, v := range []int{10, 20, 30, 40} {
		tr.Insert(v, v*100)
	}

	k, v, ok := tr.LookupPred(25)
	require.True(t, ok)
	assert.Equal(t, 20, k)
	assert.Equal(t, 2000, v)

	k, _, ok = tr.LookupSucc(25)
	require.True(t, ok)
	assert.Equal(t, 30, k)

	k, _, ok = tr.LookupPredEq(20)
	require.True(t, ok)
	assert.Equal(t, 20, k)

	_, _, ok = tr.LookupPred(10)
	assert.False(t, ok)

	_, _, ok = tr.LookupSucc(40)
	assert.False(t, ok)
}

// TestLookupSuccEqMaxBoundary exercises the documented boundary property:
// lookup_succ_eq on max(tree) returns max, and on anything larger returns
// none.
func TestLookupSuccEqMaxBoundary(t *testing.T) {
	tr := New[int, int](intCmp)
	for _, v := range []int{5, 1, 9, 3, 7} {
		tr.Insert(v, v)
	}

	k, v, ok := tr.LookupSuccEq(9)
	require.True(t, ok)
	assert.Equal(t, 9, k)
	assert.Equal(t, 9, v)

	_, _, ok = tr.LookupSuccEq(10)
	assert.False(t, ok)

	k, _, ok = tr.LookupSuccEq(4)
	require.True(t, ok)
	assert.Equal(t, 5, k)
}

func TestSwapNodeWithinGapSucceeds(t *testing.T) {
	tr := New[int, string](intCmp)
	tr.Insert(10, "ten")
	tr.Insert(20, "twenty")
	tr.Insert(30, "thirty")

	assert.True(t, tr.SwapNode(20, 25, "twenty-five"))
	_, ok := tr.Lookup(20)
	assert.False(t, ok)
	v, ok := tr.Lookup(25)
	require.True(t, ok)
	assert.Equal(t, "twenty-five", v)

	var got []int
	tr.Walk(func(k int, _ string) { got = append(got, k) })
	assert.Equal(t, []int{10, 25, 30}, got)
}

func TestSwapNodeRejectsOrderViolation(t *testing.T) {
	tr := New[int, string](intCmp)
	tr.Insert(10, "ten")
	tr.Insert(20, "twenty")
	tr.Insert(30, "thirty")

	assert.False(t, tr.SwapNode(20, 30, "oops")) // not < succ(20)
	assert.False(t, tr.SwapNode(20, 10, "oops")) // not > pred(20)
	assert.False(t, tr.SwapNode(999, 15, "missing"))

	v, ok := tr.Lookup(20)
	require.True(t, ok)
	assert.Equal(t, "twenty", v)
}

// TestAugmentTracksSubtreeSum installs a subtree-sum augmentation and checks
// it stays consistent through inserts, deletes and the rotations a large
// ascending run forces.
func TestAugmentTracksSubtreeSum(t *testing.T) {
	tr := New[int, int](intCmp)
	tr.SetAugment(func(value int, left, right any) any {
		sum := value
		if left != nil {
			sum += left.(int)
		}
		if right != nil {
			sum += right.(int)
		}
		return sum
	})

	total := 0
	for i := 1; i <= 50; i++ {
		tr.Insert(i, i)
		total += i
	}
	// the root's augment is always the whole-tree sum, regardless of which
	// key rotations leave sitting at the root.
	aug, ok := tr.AugmentOf(tr.root.key)
	require.True(t, ok)
	assert.Equal(t, total, aug.(int))

	require.True(t, tr.Delete(25))
	total -= 25
	aug, ok = tr.AugmentOf(tr.root.key)
	require.True(t, ok)
	assert.Equal(t, total, aug.(int))
}

func TestRandomInsertDeleteKeepsConsistentOrder(t *testing.T) {
	tr := New[int, int](intCmp)
	present := map[int]bool{}
	rnd := rand.New(rand.NewSource(1))
	for i := 0; i < 5000; i++ {
		k := rnd.Intn(500)
		if present[k] {
			assert.True(t, tr.Delete(k))
			delete(present, k)
		} else {
			tr.Insert(k, k)
			present[k] = true
		}
	}
	var want []int
	for k := range present {
		want = append(want, k)
	}
	sort.Ints(want)
	var got []int
	tr.Walk(func(k, v int) { got = append(got, k) })
	assert.Equal(t, want, got)
	assert.Equal(t, len(want), tr.Len())
}
