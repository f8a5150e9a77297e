package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// cacheRow is the GORM model backing SQLStore. Value is stored as JSON
// so the store can hold any of the cache manager's record types without
// per-tier schemas; callers unmarshal Entry.Value (a json.RawMessage)
// into the concrete type they expect.
type cacheRow struct {
	Key        string `gorm:"primaryKey"`
	Value      []byte
	StoredAt   time.Time
	TTLSeconds int64
}

func (cacheRow) TableName() string { return "cache_entries" }

// SQLStore is a Store backed by a GORM connection, used when a caller
// wants the cache to survive process restarts. Values are stored as
// JSON and Get returns them as json.RawMessage.
type SQLStore struct {
	db      *gorm.DB
	metrics *Metrics
}

// NewSQLStore opens db (already connected by the caller, matching the
// reference DatabaseService.Connect pattern) and migrates the
// cache_entries table.
func NewSQLStore(db *gorm.DB, metrics *Metrics) (*SQLStore, error) {
	if err := db.AutoMigrate(&cacheRow{}); err != nil {
		return nil, fmt.Errorf("store: failed to migrate cache_entries: %w", err)
	}
	if metrics == nil {
		metrics = NewMetrics("")
	}
	return &SQLStore{db: db, metrics: metrics}, nil
}

func (s *SQLStore) toEntry(row cacheRow) Entry {
	return Entry{
		Value:    json.RawMessage(row.Value),
		StoredAt: row.StoredAt,
		TTL:      time.Duration(row.TTLSeconds) * time.Second,
	}
}

func (s *SQLStore) Get(ctx context.Context, key string) (Entry, bool, error) {
	start := time.Now()
	defer func() { s.metrics.RecordOperation("get", time.Since(start)) }()

	var row cacheRow
	err := s.db.WithContext(ctx).Where("key = ?", key).First(&row).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			s.metrics.RecordMiss()
			return Entry{}, false, nil
		}
		return Entry{}, false, fmt.Errorf("store: get %q: %w", key, err)
	}

	entry := s.toEntry(row)
	if entry.Expired(time.Now()) {
		s.metrics.RecordMiss()
		_ = s.Delete(ctx, key)
		return Entry{}, false, nil
	}
	s.metrics.RecordHit()
	return entry, true, nil
}

func (s *SQLStore) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	start := time.Now()
	defer func() { s.metrics.RecordOperation("set", time.Since(start)) }()

	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("store: marshal value for %q: %w", key, err)
	}

	row := cacheRow{
		Key:        key,
		Value:      raw,
		StoredAt:   time.Now(),
		TTLSeconds: int64(ttl.Seconds()),
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		UpdateAll: true,
	}).Create(&row).Error
}

func (s *SQLStore) Has(ctx context.Context, key string) (bool, error) {
	_, ok, err := s.Get(ctx, key)
	return ok, err
}

func (s *SQLStore) Delete(ctx context.Context, key string) error {
	return s.db.WithContext(ctx).Where("key = ?", key).Delete(&cacheRow{}).Error
}

func (s *SQLStore) DeletePattern(ctx context.Context, pattern string) error {
	likePattern := toSQLLike(pattern)
	return s.db.WithContext(ctx).Where("key LIKE ?", likePattern).Delete(&cacheRow{}).Error
}

func toSQLLike(pattern string) string {
	out := make([]byte, 0, len(pattern))
	for i := 0; i < len(pattern); i++ {
		switch pattern[i] {
		case '*':
			out = append(out, '%')
		case '%', '_':
			out = append(out, '\\', pattern[i])
		default:
			out = append(out, pattern[i])
		}
	}
	return string(out)
}

func (s *SQLStore) Size(ctx context.Context) (int, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&cacheRow{}).Count(&count).Error; err != nil {
		return 0, err
	}
	return int(count), nil
}

func (s *SQLStore) Clear(ctx context.Context) error {
	return s.db.WithContext(ctx).Where("1 = 1").Delete(&cacheRow{}).Error
}

func (s *SQLStore) Export(ctx context.Context) (map[string]Entry, error) {
	var rows []cacheRow
	if err := s.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[string]Entry, len(rows))
	now := time.Now()
	for _, row := range rows {
		entry := s.toEntry(row)
		if !entry.Expired(now) {
			out[row.Key] = entry
		}
	}
	return out, nil
}

func (s *SQLStore) Import(ctx context.Context, entries map[string]Entry) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&cacheRow{}).Error; err != nil {
			return err
		}
		for key, entry := range entries {
			raw, err := json.Marshal(entry.Value)
			if err != nil {
				return fmt.Errorf("store: marshal value for %q: %w", key, err)
			}
			row := cacheRow{
				Key:        key,
				Value:      raw,
				StoredAt:   entry.StoredAt,
				TTLSeconds: int64(entry.TTL.Seconds()),
			}
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "key"}},
				UpdateAll: true,
			}).Create(&row).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *SQLStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
