package repository

import "sort"

// Order-statistic treap keyed by (rating ASC, id ASC). Every node carries
// its subtree size so rank, range-count and k-th queries run in O(log n).

type node struct {
	id    string
	key   float64
	prio  uint64
	left  *node
	right *node
	size  int
}

func nsize(n *node) int {
	if n == nil {
		return 0
	}
	return n.size
}

func fix(n *node) {
	if n != nil {
		n.size = 1 + nsize(n.left) + nsize(n.right)
	}
}

// less reports whether (aKey, aID) orders before (bKey, bID).
func less(aKey float64, aID string, bKey float64, bID string) bool {
	if aKey != bKey {
		return aKey < bKey
	}
	return aID < bID
}

func rotateRight(y *node) *node {
	x := y.left
	y.left = x.right
	x.right = y
	fix(y)
	fix(x)
	return x
}

func rotateLeft(x *node) *node {
	y := x.right
	x.right = y.left
	y.left = x
	fix(x)
	fix(y)
	return y
}

func insert(n *node, id string, key float64, prio uint64) *node {
	if n == nil {
		return &node{id: id, key: key, prio: prio, size: 1}
	}
	if less(key, id, n.key, n.id) {
		n.left = insert(n.left, id, key, prio)
		if n.left.prio > n.prio {
			n = rotateRight(n)
		}
	} else {
		n.right = insert(n.right, id, key, prio)
		if n.right.prio > n.prio {
			n = rotateLeft(n)
		}
	}
	fix(n)
	return n
}

func deleteNode(n *node, id string, key float64) *node {
	if n == nil {
		return nil
	}
	switch {
	case key == n.key && id == n.id:
		if n.left == nil {
			return n.right
		}
		if n.right == nil {
			return n.left
		}
		if n.left.prio > n.right.prio {
			n = rotateRight(n)
			n.right = deleteNode(n.right, id, key)
		} else {
			n = rotateLeft(n)
			n.left = deleteNode(n.left, id, key)
		}
	case less(key, id, n.key, n.id):
		n.left = deleteNode(n.left, id, key)
	default:
		n.right = deleteNode(n.right, id, key)
	}
	fix(n)
	return n
}

// countLess returns the number of keys strictly below x.
func countLess(n *node, x float64) int {
	c := 0
	for n != nil {
		if n.key < x {
			c += nsize(n.left) + 1
			n = n.right
		} else {
			n = n.left
		}
	}
	return c
}

// countLessEq returns the number of keys at or below x.
func countLessEq(n *node, x float64) int {
	c := 0
	for n != nil {
		if n.key <= x {
			c += nsize(n.left) + 1
			n = n.right
		} else {
			n = n.left
		}
	}
	return c
}

// indexOf returns the in-order position of (key, id).
func indexOf(n *node, id string, key float64) int {
	c := 0
	for n != nil {
		if less(n.key, n.id, key, id) {
			c += nsize(n.left) + 1
			n = n.right
		} else {
			n = n.left
		}
	}
	return c
}

// kth returns the node at in-order position k (0-based).
func kth(n *node, k int) *node {
	for n != nil {
		ls := nsize(n.left)
		switch {
		case k < ls:
			n = n.left
		case k == ls:
			return n
		default:
			k -= ls + 1
			n = n.right
		}
	}
	return nil
}

// entry is a (key, id) pair used to rebuild a treap.
type entry struct {
	id  string
	key float64
}

// build creates a balanced treap from entries. Priorities are assigned by
// depth so the heap order holds without rotations.
func build(entries []entry) *node {
	sort.Slice(entries, func(i, j int) bool {
		return less(entries[i].key, entries[i].id, entries[j].key, entries[j].id)
	})
	return buildRange(entries, 0)
}

func buildRange(entries []entry, depth uint) *node {
	if len(entries) == 0 {
		return nil
	}
	mid := len(entries) / 2
	n := &node{
		id:   entries[mid].id,
		key:  entries[mid].key,
		prio: ^uint64(0) >> depth,
	}
	n.left = buildRange(entries[:mid], depth+1)
	n.right = buildRange(entries[mid+1:], depth+1)
	fix(n)
	return n
}
