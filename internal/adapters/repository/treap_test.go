package repository

import (
	"fmt"
	"math/rand"
	"sort"
	"testing"
)

func TestTreapOrderStatistics(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	var root *node
	keys := make(map[string]float64)
	for i := 0; i < 500; i++ {
		id := fmt.Sprintf("id-%03d", i)
		k := float64(rng.Intn(100))
		keys[id] = k
		root = insert(root, id, k, rng.Uint64())
	}
	// Remove a third to exercise deletes.
	for i := 0; i < 500; i += 3 {
		id := fmt.Sprintf("id-%03d", i)
		root = deleteNode(root, id, keys[id])
		delete(keys, id)
	}

	if nsize(root) != len(keys) {
		t.Fatalf("size: want %d got %d", len(keys), nsize(root))
	}

	sorted := make([]entry, 0, len(keys))
	for id, k := range keys {
		sorted = append(sorted, entry{id: id, key: k})
	}
	sort.Slice(sorted, func(i, j int) bool {
		return less(sorted[i].key, sorted[i].id, sorted[j].key, sorted[j].id)
	})

	for i, e := range sorted {
		if n := kth(root, i); n == nil || n.id != e.id {
			t.Fatalf("kth(%d): want %s", i, e.id)
		}
		if got := indexOf(root, e.id, e.key); got != i {
			t.Fatalf("indexOf(%s): want %d got %d", e.id, i, got)
		}
	}

	for x := -1.0; x <= 101; x += 0.5 {
		wantLess, wantLessEq := 0, 0
		for _, e := range sorted {
			if e.key < x {
				wantLess++
			}
			if e.key <= x {
				wantLessEq++
			}
		}
		if got := countLess(root, x); got != wantLess {
			t.Fatalf("countLess(%v): want %d got %d", x, wantLess, got)
		}
		if got := countLessEq(root, x); got != wantLessEq {
			t.Fatalf("countLessEq(%v): want %d got %d", x, wantLessEq, got)
		}
	}
}

func TestTreapBuildMatchesInserts(t *testing.T) {
	entries := []entry{{"c", 3}, {"a", 1}, {"b", 1}, {"d", 7}, {"e", 5}}
	root := build(entries)
	want := []string{"a", "b", "c", "e", "d"}
	for i, id := range want {
		if n := kth(root, i); n.id != id {
			t.Fatalf("position %d: want %s got %s", i, id, n.id)
		}
	}
	// Random-priority inserts on top of a built tree keep ordering intact.
	root = insert(root, "f", 2, ^uint64(0))
	if n := kth(root, 2); n.id != "f" {
		t.Fatalf("expected f at position 2, got %s", n.id)
	}
	if kth(root, 6) != nil {
		t.Fatal("expected nil beyond the end")
	}
}

func BenchmarkTreapInsert(b *testing.B) {
	rng := rand.New(rand.NewSource(1))
	var root *node
	for i := 0; i < b.N; i++ {
		root = insert(root, fmt.Sprintf("id-%d", i), rng.Float64()*2400, rng.Uint64())
	}
}
