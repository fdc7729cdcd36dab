// Package service wires the rating engine, matchmaking, ranking and the
// background normalizer into the operations the HTTP API exposes.
package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/okian/arena/internal/adapters/mq/queue"
	"github.com/okian/arena/internal/adapters/mq/worker"
	"github.com/okian/arena/internal/adapters/repository"
	"github.com/okian/arena/internal/domain/dedupe"
	"github.com/okian/arena/internal/domain/matchmaking"
	"github.com/okian/arena/internal/domain/model"
	"github.com/okian/arena/internal/domain/normalize"
	"github.com/okian/arena/internal/domain/ranking"
	"github.com/okian/arena/internal/domain/rating"
	"github.com/okian/arena/internal/domain/scoring"
	"github.com/okian/arena/pkg/logger"
	"github.com/okian/arena/pkg/metrics"
)

// Default service configuration constants.
const (
	defaultQueueSize       = 1024
	defaultBallotCacheSize = 100_000
	shutdownTimeout        = 10 * time.Second
)

// Service implements the API dependencies for the rating arena.
type Service struct {
	mu sync.RWMutex

	// Core components
	store      repository.Store
	ownsStore  bool
	engine     *rating.Engine
	selector   *matchmaking.Selector
	ranker     *ranking.Calculator
	scorer     *scoring.Scorer
	normalizer *normalize.Normalizer
	gate       *passGate
	ledger     dedupe.Ledger
	queue      *queue.InMemoryQueue
	pool       *worker.Pool

	// Configuration
	params          rating.Params
	smartRate       float64
	scoreRange      float64
	proxy           model.Dimension
	baseline        float64
	threshold       float64
	weights         map[string]float64
	workerCount     int
	queueSize       int
	ballotCacheSize int
	seed            *int64

	started bool
	logger  logger.Logger
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		params:          rating.DefaultParams(),
		smartRate:       matchmaking.DefaultSmartRate,
		scoreRange:      matchmaking.DefaultScoreRange,
		proxy:           model.Fun,
		baseline:        model.DefaultBaseline,
		threshold:       normalize.DefaultThreshold,
		workerCount:     max(1, runtime.NumCPU()/2),
		queueSize:       defaultQueueSize,
		ballotCacheSize: defaultBallotCacheSize,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Start initializes and starts the service components.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}

	engine, err := rating.NewEngine(s.params)
	if err != nil {
		return fmt.Errorf("rating engine: %w", err)
	}
	s.engine = engine

	if s.store == nil || s.ownsStore {
		var storeOpts []repository.Option
		if s.seed != nil {
			storeOpts = append(storeOpts, repository.WithSeed(*s.seed))
		}
		s.store = repository.NewMemoryStore(ctx, storeOpts...)
		s.ownsStore = true
		s.logger.Info(ctx, "using in-memory store")
	}

	selOpts := []matchmaking.Option{
		matchmaking.WithSmartRate(s.smartRate),
		matchmaking.WithScoreRange(s.scoreRange),
		matchmaking.WithProxyDimension(s.proxy),
		matchmaking.WithLogger(s.logger.Named("matchmaking")),
	}
	if s.seed != nil {
		selOpts = append(selOpts, matchmaking.WithRand(rand.New(rand.NewSource(*s.seed+1)))) //nolint:gosec // reproducible pairing
	}
	s.selector = matchmaking.NewSelector(s.store, selOpts...)
	s.ranker = ranking.NewCalculator(s.store)
	s.scorer = scoring.NewScorer(scoring.WithWeightsFromConfig(s.weights))
	s.normalizer = normalize.New(s.store,
		normalize.WithBaseline(s.baseline),
		normalize.WithThreshold(s.threshold),
		normalize.WithLogger(s.logger.Named("normalize")),
	)
	s.ledger = dedupe.NewInMemoryLedger(dedupe.WithMaxSize(s.ballotCacheSize))

	s.queue = queue.NewInMemoryQueue(queue.WithCapacity(s.queueSize))
	s.gate = &passGate{next: s.normalizer}
	s.pool = worker.NewPool(s.workerCount, s.queue, s.gate, worker.WithLogger(s.logger))
	s.pool.Start(context.WithoutCancel(ctx))

	s.started = true
	s.logger.Info(ctx, "arena service started",
		logger.Int("workers", s.workerCount),
		logger.Int("queue_size", s.queueSize),
		logger.Int("ballot_cache_size", s.ballotCacheSize),
		logger.String("proxy_dimension", s.proxy.String()),
	)
	return nil
}

// Stop drains pending normalization and releases owned resources.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	s.logger.Info(ctx, "stopping arena service...")
	if err := s.pool.Shutdown(ctx); err != nil {
		s.logger.Warn(ctx, "worker pool shutdown incomplete", logger.Error(err))
	}
	// An owned store is closed but kept so in-flight calls still see it;
	// the next Start replaces it.
	if s.ownsStore {
		if closer, ok := s.store.(interface{ Close() error }); ok {
			_ = closer.Close()
		}
	}

	s.started = false
	s.logger.Info(ctx, "arena service stopped")
}

func (s *Service) running() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return ErrNotStarted
	}
	return nil
}

// Contender is one side of a matchup as shown to the voter.
type Contender struct {
	ID       string           `json:"id"`
	Name     string           `json:"name"`
	Rating   float64          `json:"rating"`
	Matches  int              `json:"matches"`
	Position ranking.Position `json:"position"`
}

// Matchup is a pair offered for a vote.
type Matchup struct {
	BallotID      string               `json:"ballot_id"`
	Dimension     model.Dimension      `json:"dimension"`
	Mode          string               `json:"mode"`
	A             Contender            `json:"a"`
	B             Contender            `json:"b"`
	Probabilities rating.Probabilities `json:"probabilities"`
}

// Matchup selects a pair, draws the dimension and attaches display data.
// An empty focusID picks both items.
func (s *Service) Matchup(ctx context.Context, focusID string) (Matchup, error) {
	if err := s.running(); err != nil {
		return Matchup{}, err
	}
	pair, err := s.selector.SelectPair(ctx, focusID)
	if err != nil {
		return Matchup{}, err
	}

	d := pair.Dimension
	a, err := s.contender(ctx, pair.A, d)
	if err != nil {
		return Matchup{}, err
	}
	b, err := s.contender(ctx, pair.B, d)
	if err != nil {
		return Matchup{}, err
	}

	return Matchup{
		BallotID:      uuid.NewString(),
		Dimension:     d,
		Mode:          pair.Mode,
		A:             a,
		B:             b,
		Probabilities: s.engine.Probabilities(a.Rating, b.Rating).Rounded(),
	}, nil
}

func (s *Service) contender(ctx context.Context, it model.Item, d model.Dimension) (Contender, error) {
	pos, err := s.ranker.RankOf(ctx, d, it.Rating(d))
	if err != nil {
		return Contender{}, err
	}
	return Contender{
		ID:       it.ID,
		Name:     it.Name,
		Rating:   it.Rating(d),
		Matches:  it.MatchesPlayed,
		Position: pos,
	}, nil
}

// VoteInput is a submitted ballot.
type VoteInput struct {
	BallotID  string
	ItemA     string
	ItemB     string
	Dimension string
	Winner    string
}

// Change describes how one participant moved.
type Change struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	OldRating float64 `json:"old_rating"`
	NewRating float64 `json:"new_rating"`
	Diff      float64 `json:"diff"`
	OldRank   int     `json:"old_rank"`
	NewRank   int     `json:"new_rank"`
}

// VoteResult is returned after a ballot is applied.
type VoteResult struct {
	Duplicate bool            `json:"duplicate"`
	Dimension model.Dimension `json:"dimension"`
	Outcome   string          `json:"outcome"`
	A         Change          `json:"a"`
	B         Change          `json:"b"`
	Total     int             `json:"total"`
}

// Vote applies one ballot: both ratings in the chosen dimension are updated
// and committed atomically together with each participant's match counter.
// A replayed ballot ID returns a result with Duplicate set and changes
// nothing. A normalization pass is requested afterwards and never awaited.
func (s *Service) Vote(ctx context.Context, in VoteInput) (res VoteResult, err error) {
	start := time.Now()
	defer func() {
		metrics.RecordVoteLatency(float64(time.Since(start).Microseconds()) / 1000.0)
		if err != nil {
			metrics.RecordVoteError(voteErrorReason(err))
		}
	}()

	if err := s.running(); err != nil {
		return VoteResult{}, err
	}
	outcome, err := rating.ParseWinner(in.Winner)
	if err != nil {
		return VoteResult{}, err
	}
	d, err := model.ParseDimension(in.Dimension)
	if err != nil {
		return VoteResult{}, err
	}
	if in.ItemA == in.ItemB {
		return VoteResult{}, fmt.Errorf("%w: %s", ErrSameItem, in.ItemA)
	}

	if in.BallotID != "" && !s.ledger.Claim(ctx, in.BallotID) {
		metrics.RecordVoteDuplicate()
		s.logger.Debug(ctx, "duplicate ballot ignored", logger.String("ballot_id", in.BallotID))
		return VoteResult{Duplicate: true, Dimension: d, Outcome: outcome.String()}, nil
	}
	release := func() {
		if in.BallotID != "" {
			s.ledger.Release(ctx, in.BallotID)
		}
	}

	res, err = s.apply(ctx, in.ItemA, in.ItemB, d, outcome)
	if err != nil {
		release()
		s.logger.Warn(ctx, "vote aborted",
			logger.String("item_a", in.ItemA),
			logger.String("item_b", in.ItemB),
			logger.String("dimension", d.String()),
			logger.Error(err),
		)
		return VoteResult{}, err
	}

	metrics.RecordVote(d.String(), outcome.String())
	metrics.RecordRatingDelta(res.A.Diff)
	s.requestNormalization(ctx, d)
	return res, nil
}

func (s *Service) apply(ctx context.Context, idA, idB string, d model.Dimension, o rating.Outcome) (VoteResult, error) {
	a, err := s.store.GetByID(ctx, idA)
	if err != nil {
		return VoteResult{}, err
	}
	b, err := s.store.GetByID(ctx, idB)
	if err != nil {
		return VoteResult{}, err
	}

	oldA, oldB := a.Rating(d), b.Rating(d)
	beforeA, err := s.ranker.RankOf(ctx, d, oldA)
	if err != nil {
		return VoteResult{}, err
	}
	beforeB, err := s.ranker.RankOf(ctx, d, oldB)
	if err != nil {
		return VoteResult{}, err
	}

	newA, newB, err := s.engine.Update(oldA, oldB, o, a.MatchesPlayed, b.MatchesPlayed)
	if err != nil {
		return VoteResult{}, err
	}

	err = s.store.Commit(ctx,
		model.RatingChange{ItemID: a.ID, Dimension: d, Delta: newA - oldA},
		model.RatingChange{ItemID: b.ID, Dimension: d, Delta: newB - oldB},
	)
	if err != nil {
		return VoteResult{}, err
	}

	afterA, err := s.ranker.RankOf(ctx, d, newA)
	if err != nil {
		return VoteResult{}, err
	}
	afterB, err := s.ranker.RankOf(ctx, d, newB)
	if err != nil {
		return VoteResult{}, err
	}

	return VoteResult{
		Dimension: d,
		Outcome:   o.String(),
		A:         change(a, oldA, newA, beforeA, afterA),
		B:         change(b, oldB, newB, beforeB, afterB),
		Total:     afterA.Total,
	}, nil
}

func change(it model.Item, oldR, newR float64, before, after ranking.Position) Change {
	return Change{
		ID:        it.ID,
		Name:      it.Name,
		OldRating: oldR,
		NewRating: newR,
		Diff:      newR - oldR,
		OldRank:   before.Rank,
		NewRank:   after.Rank,
	}
}

// requestNormalization hands a pass to the worker pool. Requests made while
// a pass is queued or running are coalesced into it. A full or closed queue
// drops the request; the next vote asks again.
func (s *Service) requestNormalization(ctx context.Context, d model.Dimension) {
	if !s.gate.acquire() {
		return
	}
	req := model.NewNormalizeRequest("vote", d)
	if err := s.queue.Enqueue(context.WithoutCancel(ctx), req); err != nil {
		s.gate.release()
		metrics.RecordNormalizeDropped()
		s.logger.Warn(ctx, "normalization request dropped",
			logger.String("request_id", req.ID),
			logger.Error(err),
		)
	}
}

// passGate admits one queued or running normalization pass at a time.
// Overlapping passes would each subtract the same drift.
type passGate struct {
	next    worker.Normalizer
	pending atomic.Bool
}

func (g *passGate) acquire() bool { return g.pending.CompareAndSwap(false, true) }

func (g *passGate) release() { g.pending.Store(false) }

// Normalize runs the pass and reopens the gate once it finishes.
func (g *passGate) Normalize(ctx context.Context) (normalize.Report, error) {
	defer g.release()
	return g.next.Normalize(ctx)
}

func voteErrorReason(err error) string {
	switch {
	case errors.Is(err, rating.ErrInvalidOutcome):
		return "invalid_outcome"
	case errors.Is(err, model.ErrUnknownDimension):
		return "unknown_dimension"
	case errors.Is(err, ErrSameItem):
		return "same_item"
	case errors.Is(err, repository.ErrNotFound):
		return "not_found"
	case errors.Is(err, repository.ErrConflict):
		return "conflict"
	case errors.Is(err, ErrNotStarted):
		return "not_started"
	default:
		return "internal"
	}
}

// StandingsView is the ranking table with its score distribution.
type StandingsView struct {
	SortBy    string             `json:"sort_by"`
	Rows      []ranking.Standing `json:"rows"`
	Histogram []ranking.Bucket   `json:"histogram"`
}

// Standings returns every item ordered by sortBy ("total" or a dimension).
func (s *Service) Standings(ctx context.Context, sortBy string) (StandingsView, error) {
	if err := s.running(); err != nil {
		return StandingsView{}, err
	}
	key, err := ranking.ParseSortKey(sortBy)
	if err != nil {
		return StandingsView{}, err
	}
	items, err := s.store.List(ctx)
	if err != nil {
		return StandingsView{}, err
	}
	rows := ranking.Standings(items, key, s.scorer)
	return StandingsView{
		SortBy:    key.String(),
		Rows:      rows,
		Histogram: ranking.Histogram(ranking.Keys(rows), ranking.DefaultBucketWidth),
	}, nil
}

// RankOf returns an item's current position in a dimension.
func (s *Service) RankOf(ctx context.Context, id, dimension string) (ranking.Position, error) {
	if err := s.running(); err != nil {
		return ranking.Position{}, err
	}
	d, err := model.ParseDimension(dimension)
	if err != nil {
		return ranking.Position{}, err
	}
	it, err := s.store.GetByID(ctx, id)
	if err != nil {
		return ranking.Position{}, err
	}
	return s.ranker.RankOf(ctx, d, it.Rating(d))
}

// Seed creates baseline items when the store is empty. It returns how many
// items were created; a non-empty store is left untouched.
func (s *Service) Seed(ctx context.Context, names []string) (int, error) {
	if err := s.running(); err != nil {
		return 0, err
	}
	n, err := s.store.TotalCount(ctx)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		return 0, nil
	}

	created := 0
	for i, name := range names {
		it, err := model.NewItem(name, s.baseline)
		if errors.Is(err, model.ErrEmptyName) {
			continue
		}
		if err != nil {
			return created, err
		}
		rank := i + 1
		it.OriginalRank = &rank
		if err := s.store.Create(ctx, it); err != nil {
			return created, fmt.Errorf("seed %q: %w", name, err)
		}
		created++
	}
	s.logger.Info(ctx, "store seeded", logger.Int("items", created))
	return created, nil
}

// Normalize runs a pass synchronously. Used by maintenance tooling and tests.
func (s *Service) Normalize(ctx context.Context) (normalize.Report, error) {
	if err := s.running(); err != nil {
		return normalize.Report{}, err
	}
	return s.normalizer.Normalize(ctx)
}

// Stats is a monitoring snapshot.
type Stats struct {
	Started           bool                        `json:"started"`
	Items             int                         `json:"items"`
	Workers           int                         `json:"workers"`
	QueueCapacity     int                         `json:"queue_capacity"`
	QueueLength       int                         `json:"queue_length"`
	BallotsTracked    int                         `json:"ballots_tracked"`
	NormalizePasses   int64                       `json:"normalize_passes"`
	NormalizeFailures int64                       `json:"normalize_failures"`
	Means             map[model.Dimension]float64 `json:"means,omitempty"`
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats(ctx context.Context) (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Stats{
		Started:       s.started,
		Workers:       s.workerCount,
		QueueCapacity: s.queueSize,
	}
	if !s.started {
		return st, nil
	}

	n, err := s.store.TotalCount(ctx)
	if err != nil {
		return st, err
	}
	st.Items = n
	st.QueueLength = s.queue.Len(ctx)
	st.BallotsTracked = s.ledger.Size()
	st.NormalizePasses = s.pool.Processed()
	st.NormalizeFailures = s.pool.Failed()
	st.Means = make(map[model.Dimension]float64, model.DimensionCount)
	for _, d := range model.Dimensions {
		mean, _, err := s.store.Mean(ctx, d)
		if err != nil {
			return st, err
		}
		st.Means[d] = mean
	}
	metrics.UpdateItemsTotal(n)
	return st, nil
}
