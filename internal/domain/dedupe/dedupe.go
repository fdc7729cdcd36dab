// Package dedupe tracks ballot identifiers so a replayed vote is applied at
// most once.
package dedupe

import (
	"context"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// defaultMaxSize bounds the ledger when no size is configured.
const defaultMaxSize = 50_000

// Ledger records claimed ballot IDs.
type Ledger interface {
	// Claim marks id as used. It returns true only for the first claim of id;
	// every later claim of the same id returns false until it is released or
	// evicted.
	Claim(ctx context.Context, id string) bool

	// Release forgets id so the ballot can be submitted again. Used when a
	// claimed vote failed before it was committed.
	Release(ctx context.Context, id string)

	Size() int
}

// inMemoryLedger keeps the most recently claimed IDs. Bounded mode evicts
// the least recently claimed ID first; unbounded mode keeps a plain set.
type inMemoryLedger struct {
	maxSize int

	bounded *lru.Cache[string, struct{}]

	mu        sync.Mutex
	unbounded map[string]struct{}
}

// NewInMemoryLedger creates a ledger with configuration options.
func NewInMemoryLedger(opts ...Option) Ledger {
	l := &inMemoryLedger{maxSize: defaultMaxSize}
	for _, opt := range opts {
		opt(l)
	}

	if l.maxSize > 0 {
		// lru.New only fails for a non-positive size.
		cache, _ := lru.New[string, struct{}](l.maxSize)
		l.bounded = cache
	} else {
		l.unbounded = make(map[string]struct{})
	}
	return l
}

func (l *inMemoryLedger) Claim(_ context.Context, id string) bool {
	if l.bounded != nil {
		found, _ := l.bounded.ContainsOrAdd(id, struct{}{})
		return !found
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.unbounded[id]; ok {
		return false
	}
	l.unbounded[id] = struct{}{}
	return true
}

func (l *inMemoryLedger) Release(_ context.Context, id string) {
	if l.bounded != nil {
		l.bounded.Remove(id)
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.unbounded, id)
}

func (l *inMemoryLedger) Size() int {
	if l.bounded != nil {
		return l.bounded.Len()
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.unbounded)
}
