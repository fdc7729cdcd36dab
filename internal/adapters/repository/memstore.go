package repository

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/okian/arena/internal/domain/model"
	"github.com/okian/arena/pkg/metrics"
)

// Default memory store configuration constants.
const (
	defaultMetricsUpdateInterval = 5 * time.Second
	millisecondsPerSecond        = 1000.0
)

// MemoryStore is an in-memory Store. Each dimension is indexed by its own
// order-statistic treap, so rank counts, range picks and uniform picks are
// logarithmic. A single RWMutex makes every write atomic.
type MemoryStore struct {
	mu    sync.RWMutex
	byID  map[string]model.Item
	roots [model.DimensionCount]*node

	rngMu sync.Mutex
	rng   *rand.Rand

	metricsUpdateInterval time.Duration
	wg                    sync.WaitGroup
	stopChan              chan struct{}
	stopOnce              sync.Once
}

// NewMemoryStore constructs an empty memory store. A background goroutine
// publishes population metrics until ctx ends or Close is called.
func NewMemoryStore(ctx context.Context, opts ...Option) *MemoryStore {
	s := &MemoryStore{
		byID:                  make(map[string]model.Item),
		rng:                   rand.New(rand.NewSource(time.Now().UnixNano())), //nolint:gosec // matchmaking randomness
		metricsUpdateInterval: defaultMetricsUpdateInterval,
		stopChan:              make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.startMetricsUpdater(ctx)
	return s
}

// Close stops the metrics goroutine.
func (s *MemoryStore) Close() error {
	s.stopOnce.Do(func() { close(s.stopChan) })
	s.wg.Wait()
	return nil
}

func (s *MemoryStore) startMetricsUpdater(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.metricsUpdateInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopChan:
				return
			case <-ticker.C:
				s.mu.RLock()
				n := len(s.byID)
				s.mu.RUnlock()
				metrics.UpdateItemsTotal(n)
			}
		}
	}()
}

func observe(op string, start time.Time) {
	metrics.RecordStoreLatency(op, float64(time.Since(start).Microseconds())/millisecondsPerSecond)
}

func (s *MemoryStore) randIntn(n int) int {
	s.rngMu.Lock()
	defer s.rngMu.Unlock()
	return s.rng.Intn(n)
}

func (s *MemoryStore) randPrio() uint64 {
	s.rngMu.Lock()
	defer s.rngMu.Unlock()
	return s.rng.Uint64()
}

// GetByID implements Store.
func (s *MemoryStore) GetByID(_ context.Context, id string) (model.Item, error) {
	defer observe("get", time.Now())
	s.mu.RLock()
	defer s.mu.RUnlock()
	it, ok := s.byID[id]
	if !ok {
		return model.Item{}, fmt.Errorf("get %q: %w", id, ErrNotFound)
	}
	return it, nil
}

// RandomSample implements Store using a partial Fisher-Yates shuffle over
// in-order positions of the first dimension's treap.
func (s *MemoryStore) RandomSample(_ context.Context, n int) ([]model.Item, error) {
	defer observe("random_sample", time.Now())
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := len(s.byID)
	if n > total {
		n = total
	}
	if n <= 0 {
		return nil, nil
	}
	idx := make([]int, total)
	for i := range idx {
		idx[i] = i
	}
	out := make([]model.Item, 0, n)
	for i := 0; i < n; i++ {
		j := i + s.randIntn(total-i)
		idx[i], idx[j] = idx[j], idx[i]
		nd := kth(s.roots[0], idx[i])
		out = append(out, s.byID[nd.id])
	}
	return out, nil
}

// pickExcluding chooses uniformly among positions [lo, hi) of root, skipping
// the position held by exclude when it falls inside the window.
func (s *MemoryStore) pickExcluding(root *node, lo, hi int, exclude *model.Item, d model.Dimension) (model.Item, bool) {
	count := hi - lo
	skip := -1
	if exclude != nil {
		if e := indexOf(root, exclude.ID, exclude.Rating(d)); e >= lo && e < hi {
			skip = e
			count--
		}
	}
	if count <= 0 {
		return model.Item{}, false
	}
	pos := lo + s.randIntn(count)
	if skip >= 0 && pos >= skip {
		pos++
	}
	nd := kth(root, pos)
	return s.byID[nd.id], true
}

// RandomInRange implements Store.
func (s *MemoryStore) RandomInRange(_ context.Context, d model.Dimension, excludeID string, min, max float64) (model.Item, bool, error) {
	defer observe("random_in_range", time.Now())
	if !d.Valid() {
		return model.Item{}, false, model.ErrUnknownDimension
	}
	if min > max {
		return model.Item{}, false, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	root := s.roots[d]
	lo := countLess(root, min)
	hi := countLessEq(root, max)
	var exclude *model.Item
	if it, ok := s.byID[excludeID]; ok {
		exclude = &it
	}
	it, ok := s.pickExcluding(root, lo, hi, exclude, d)
	return it, ok, nil
}

// RandomExcluding implements Store.
func (s *MemoryStore) RandomExcluding(_ context.Context, excludeID string) (model.Item, bool, error) {
	defer observe("random_excluding", time.Now())
	s.mu.RLock()
	defer s.mu.RUnlock()

	var exclude *model.Item
	if it, ok := s.byID[excludeID]; ok {
		exclude = &it
	}
	it, ok := s.pickExcluding(s.roots[0], 0, len(s.byID), exclude, model.Dimensions[0])
	return it, ok, nil
}

// CountWhereGreater implements Store.
func (s *MemoryStore) CountWhereGreater(_ context.Context, d model.Dimension, threshold float64) (int, error) {
	defer observe("count_greater", time.Now())
	if !d.Valid() {
		return 0, model.ErrUnknownDimension
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID) - countLessEq(s.roots[d], threshold), nil
}

// TotalCount implements Store.
func (s *MemoryStore) TotalCount(context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID), nil
}

// Mean implements Store.
func (s *MemoryStore) Mean(_ context.Context, d model.Dimension) (float64, int, error) {
	defer observe("mean", time.Now())
	if !d.Valid() {
		return 0, 0, model.ErrUnknownDimension
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.byID) == 0 {
		return 0, 0, nil
	}
	var sum float64
	for _, it := range s.byID {
		sum += it.Rating(d)
	}
	return sum / float64(len(s.byID)), len(s.byID), nil
}

// BulkShift implements Store. The shift is applied under the write lock,
// on top of whatever values are current at that moment.
func (s *MemoryStore) BulkShift(_ context.Context, d model.Dimension, delta float64) (bool, error) {
	defer observe("bulk_shift", time.Now())
	if !d.Valid() {
		return false, model.ErrUnknownDimension
	}
	if math.IsNaN(delta) || math.IsInf(delta, 0) {
		return false, fmt.Errorf("%w: shift %g", ErrInvalidChange, delta)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.byID) == 0 {
		return false, nil
	}
	entries := make([]entry, 0, len(s.byID))
	for id, it := range s.byID {
		it.Ratings[d] += delta
		s.byID[id] = it
		entries = append(entries, entry{id: id, key: it.Ratings[d]})
	}
	// Rounding can merge neighbouring keys, so rebuild rather than patch in place.
	s.roots[d] = build(entries)
	return true, nil
}

// Commit implements Store.
func (s *MemoryStore) Commit(_ context.Context, changes ...model.RatingChange) error {
	defer observe("commit", time.Now())
	for _, c := range changes {
		if !c.Dimension.Valid() || math.IsNaN(c.Delta) || math.IsInf(c.Delta, 0) {
			return fmt.Errorf("%w: %+v", ErrInvalidChange, c)
		}
	}
	ids := participants(changes)

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		if _, ok := s.byID[id]; !ok {
			return fmt.Errorf("commit %q: %w", id, ErrConflict)
		}
	}
	for _, c := range changes {
		it := s.byID[c.ItemID]
		old := it.Rating(c.Dimension)
		it.SetRating(c.Dimension, old+c.Delta)
		s.roots[c.Dimension] = deleteNode(s.roots[c.Dimension], it.ID, old)
		s.roots[c.Dimension] = insert(s.roots[c.Dimension], it.ID, it.Rating(c.Dimension), s.randPrio())
		s.byID[c.ItemID] = it
	}
	for _, id := range ids {
		it := s.byID[id]
		it.MatchesPlayed++
		s.byID[id] = it
	}
	return nil
}

// Create implements Store.
func (s *MemoryStore) Create(_ context.Context, it model.Item) error {
	defer observe("create", time.Now())
	if it.ID == "" {
		return fmt.Errorf("create: empty id: %w", ErrInvalidChange)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[it.ID]; ok {
		return fmt.Errorf("create %q: %w", it.ID, ErrDuplicateID)
	}
	s.byID[it.ID] = it
	for _, d := range model.Dimensions {
		s.roots[d] = insert(s.roots[d], it.ID, it.Rating(d), s.randPrio())
	}
	metrics.UpdateItemsTotal(len(s.byID))
	return nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(_ context.Context, id string) error {
	defer observe("delete", time.Now())
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.byID[id]
	if !ok {
		return fmt.Errorf("delete %q: %w", id, ErrNotFound)
	}
	for _, d := range model.Dimensions {
		s.roots[d] = deleteNode(s.roots[d], id, it.Rating(d))
	}
	delete(s.byID, id)
	metrics.UpdateItemsTotal(len(s.byID))
	return nil
}

// List implements Store.
func (s *MemoryStore) List(context.Context) ([]model.Item, error) {
	defer observe("list", time.Now())
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Item, 0, len(s.byID))
	for _, it := range s.byID {
		out = append(out, it)
	}
	return out, nil
}
