package repository

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/okian/arena/internal/domain/model"
	"github.com/okian/arena/pkg/metrics"
)

// Supported SQL drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// itemRecord is the persisted row of an item.
type itemRecord struct {
	ID              string  `gorm:"primaryKey;size:64"`
	Name            string  `gorm:"not null"`
	RatingStory     float64 `gorm:"column:rating_story;not null;index"`
	RatingVisual    float64 `gorm:"column:rating_visual;not null;index"`
	RatingAudio     float64 `gorm:"column:rating_audio;not null;index"`
	RatingVoice     float64 `gorm:"column:rating_voice;not null;index"`
	RatingCharacter float64 `gorm:"column:rating_character;not null;index"`
	RatingFun       float64 `gorm:"column:rating_fun;not null;index"`
	MatchesPlayed   int     `gorm:"column:matches_played;not null;default:0"`
	OriginalRank    *int    `gorm:"column:original_rank"`
}

// TableName implements gorm's tabler.
func (itemRecord) TableName() string { return "items" }

func (r *itemRecord) ratings() [model.DimensionCount]*float64 {
	return [model.DimensionCount]*float64{
		model.Story:     &r.RatingStory,
		model.Visual:    &r.RatingVisual,
		model.Audio:     &r.RatingAudio,
		model.Voice:     &r.RatingVoice,
		model.Character: &r.RatingCharacter,
		model.Fun:       &r.RatingFun,
	}
}

func toRecord(it model.Item) itemRecord {
	r := itemRecord{ID: it.ID, Name: it.Name, MatchesPlayed: it.MatchesPlayed, OriginalRank: it.OriginalRank}
	for d, p := range r.ratings() {
		*p = it.Ratings[d]
	}
	return r
}

func (r *itemRecord) toItem() model.Item {
	it := model.Item{ID: r.ID, Name: r.Name, MatchesPlayed: r.MatchesPlayed, OriginalRank: r.OriginalRank}
	for d, p := range r.ratings() {
		it.Ratings[d] = *p
	}
	return it
}

func toItems(recs []itemRecord) []model.Item {
	out := make([]model.Item, len(recs))
	for i := range recs {
		out[i] = recs[i].toItem()
	}
	return out
}

// GormStore is a Store backed by a SQL database through gorm. Every write
// is a single relative UPDATE so concurrent voters and the normalizer never
// overwrite each other.
type GormStore struct {
	db *gorm.DB
}

// Open connects to driver/dsn and migrates the items table.
func Open(ctx context.Context, driver, dsn string) (*GormStore, error) {
	var dialector gorm.Dialector
	switch driver {
	case DriverSQLite:
		dialector = sqlite.Open(dsn)
	case DriverPostgres:
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, driver)
	}

	gormLog := gormLogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormLogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormLogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         gormLog,
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", driver, err)
	}
	if driver == DriverSQLite {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		// SQLite serialises writers; one connection avoids "database is locked".
		sqlDB.SetMaxOpenConns(1)
	}
	return NewGormStore(ctx, db)
}

// NewGormStore wraps an open connection and migrates the schema.
func NewGormStore(ctx context.Context, db *gorm.DB) (*GormStore, error) {
	if err := db.WithContext(ctx).AutoMigrate(&itemRecord{}); err != nil {
		return nil, fmt.Errorf("migrate items: %w", err)
	}
	return &GormStore{db: db}, nil
}

// Close releases the underlying connection pool.
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *GormStore) track(op string, start time.Time, err error) {
	metrics.RecordStoreLatency(op, float64(time.Since(start).Microseconds())/millisecondsPerSecond)
	if err != nil {
		metrics.RecordStoreError(op)
	}
}

// GetByID implements Store.
func (s *GormStore) GetByID(ctx context.Context, id string) (_ model.Item, err error) {
	defer func(start time.Time) { s.track("get", start, err) }(time.Now())
	var rec itemRecord
	err = s.db.WithContext(ctx).Where("id = ?", id).Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Item{}, fmt.Errorf("get %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return model.Item{}, err
	}
	return rec.toItem(), nil
}

// RandomSample implements Store.
func (s *GormStore) RandomSample(ctx context.Context, n int) (_ []model.Item, err error) {
	defer func(start time.Time) { s.track("random_sample", start, err) }(time.Now())
	if n <= 0 {
		return nil, nil
	}
	var recs []itemRecord
	if err = s.db.WithContext(ctx).Order("RANDOM()").Limit(n).Find(&recs).Error; err != nil {
		return nil, err
	}
	return toItems(recs), nil
}

func (s *GormStore) pickOne(q *gorm.DB) (model.Item, bool, error) {
	var recs []itemRecord
	if err := q.Order("RANDOM()").Limit(1).Find(&recs).Error; err != nil {
		return model.Item{}, false, err
	}
	if len(recs) == 0 {
		return model.Item{}, false, nil
	}
	return recs[0].toItem(), true, nil
}

// RandomInRange implements Store.
func (s *GormStore) RandomInRange(ctx context.Context, d model.Dimension, excludeID string, min, max float64) (_ model.Item, _ bool, err error) {
	defer func(start time.Time) { s.track("random_in_range", start, err) }(time.Now())
	if !d.Valid() {
		return model.Item{}, false, model.ErrUnknownDimension
	}
	col := d.Column()
	q := s.db.WithContext(ctx).Where(col+" >= ? AND "+col+" <= ? AND id <> ?", min, max, excludeID)
	return s.pickOne(q)
}

// RandomExcluding implements Store.
func (s *GormStore) RandomExcluding(ctx context.Context, excludeID string) (_ model.Item, _ bool, err error) {
	defer func(start time.Time) { s.track("random_excluding", start, err) }(time.Now())
	return s.pickOne(s.db.WithContext(ctx).Where("id <> ?", excludeID))
}

// CountWhereGreater implements Store.
func (s *GormStore) CountWhereGreater(ctx context.Context, d model.Dimension, threshold float64) (_ int, err error) {
	defer func(start time.Time) { s.track("count_greater", start, err) }(time.Now())
	if !d.Valid() {
		return 0, model.ErrUnknownDimension
	}
	var n int64
	err = s.db.WithContext(ctx).Model(&itemRecord{}).Where(d.Column()+" > ?", threshold).Count(&n).Error
	return int(n), err
}

// TotalCount implements Store.
func (s *GormStore) TotalCount(ctx context.Context) (_ int, err error) {
	defer func(start time.Time) { s.track("count_total", start, err) }(time.Now())
	var n int64
	err = s.db.WithContext(ctx).Model(&itemRecord{}).Count(&n).Error
	return int(n), err
}

// Mean implements Store.
func (s *GormStore) Mean(ctx context.Context, d model.Dimension) (_ float64, _ int, err error) {
	defer func(start time.Time) { s.track("mean", start, err) }(time.Now())
	if !d.Valid() {
		return 0, 0, model.ErrUnknownDimension
	}
	var row struct {
		Mean float64
		N    int64
	}
	err = s.db.WithContext(ctx).Model(&itemRecord{}).
		Select("COALESCE(AVG(" + d.Column() + "), 0) AS mean, COUNT(*) AS n").
		Scan(&row).Error
	if err != nil {
		return 0, 0, err
	}
	return row.Mean, int(row.N), nil
}

// BulkShift implements Store.
func (s *GormStore) BulkShift(ctx context.Context, d model.Dimension, delta float64) (_ bool, err error) {
	defer func(start time.Time) { s.track("bulk_shift", start, err) }(time.Now())
	if !d.Valid() {
		return false, model.ErrUnknownDimension
	}
	if math.IsNaN(delta) || math.IsInf(delta, 0) {
		return false, fmt.Errorf("%w: shift %g", ErrInvalidChange, delta)
	}
	col := d.Column()
	res := s.db.WithContext(ctx).Model(&itemRecord{}).
		Where("1 = 1").
		UpdateColumn(col, gorm.Expr(col+" + ?", delta))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// Commit implements Store.
func (s *GormStore) Commit(ctx context.Context, changes ...model.RatingChange) (err error) {
	defer func(start time.Time) { s.track("commit", start, err) }(time.Now())

	// Fold changes into one UPDATE per participant.
	sums := make(map[string]map[model.Dimension]float64, 2)
	for _, c := range changes {
		if !c.Dimension.Valid() || math.IsNaN(c.Delta) || math.IsInf(c.Delta, 0) {
			return fmt.Errorf("%w: %+v", ErrInvalidChange, c)
		}
		if sums[c.ItemID] == nil {
			sums[c.ItemID] = make(map[model.Dimension]float64, 1)
		}
		sums[c.ItemID][c.Dimension] += c.Delta
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, id := range participants(changes) {
			updates := map[string]interface{}{
				"matches_played": gorm.Expr("matches_played + 1"),
			}
			for d, delta := range sums[id] {
				col := d.Column()
				updates[col] = gorm.Expr(col+" + ?", delta)
			}
			res := tx.Model(&itemRecord{}).Where("id = ?", id).UpdateColumns(updates)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return fmt.Errorf("commit %q: %w", id, ErrConflict)
			}
		}
		return nil
	})
}

// Create implements Store.
func (s *GormStore) Create(ctx context.Context, it model.Item) (err error) {
	defer func(start time.Time) { s.track("create", start, err) }(time.Now())
	if it.ID == "" {
		return fmt.Errorf("create: empty id: %w", ErrInvalidChange)
	}
	rec := toRecord(it)
	err = s.db.WithContext(ctx).Create(&rec).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("create %q: %w", it.ID, ErrDuplicateID)
	}
	return err
}

// Delete implements Store.
func (s *GormStore) Delete(ctx context.Context, id string) (err error) {
	defer func(start time.Time) { s.track("delete", start, err) }(time.Now())
	res := s.db.WithContext(ctx).Where("id = ?", id).Delete(&itemRecord{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("delete %q: %w", id, ErrNotFound)
	}
	return nil
}

// List implements Store.
func (s *GormStore) List(ctx context.Context) (_ []model.Item, err error) {
	defer func(start time.Time) { s.track("list", start, err) }(time.Now())
	var recs []itemRecord
	if err = s.db.WithContext(ctx).Find(&recs).Error; err != nil {
		return nil, err
	}
	return toItems(recs), nil
}
