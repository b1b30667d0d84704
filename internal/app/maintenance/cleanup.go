package maintenance

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/hectorgon/coderwall/internal/models"
	"github.com/hectorgon/coderwall/pkg/logger"
)

const (
	defaultVisitorRetentionDays = 365
	defaultNotificationDays     = 30
	defaultCacheSpec            = "@hourly"
	defaultDataSpec             = "@daily"
)

// Cleaner coordinates background maintenance: purging expired cache entries,
// pruning aged visitor records, and removing read notifications.
type Cleaner struct {
	db   *gorm.DB
	cron *cron.Cron
	now  func() time.Time
	log  *zap.Logger

	visitorRetention int
	notificationDays int
	cacheSchedule    string
	dataSchedule     string
}

// Option customises the Cleaner.
type Option func(*Cleaner)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) Option {
	return func(cleaner *Cleaner) {
		if c != nil {
			cleaner.cron = c
		}
	}
}

// WithNow overrides the clock used for cleanup comparisons.
func WithNow(now func() time.Time) Option {
	return func(cleaner *Cleaner) {
		if now != nil {
			cleaner.now = now
		}
	}
}

// WithVisitorRetentionDays adjusts how long visitor records are kept.
func WithVisitorRetentionDays(days int) Option {
	return func(cleaner *Cleaner) {
		if days > 0 {
			cleaner.visitorRetention = days
		}
	}
}

// WithCacheSchedule overrides the cron specification for cache sweeps.
func WithCacheSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.cacheSchedule = spec
		}
	}
}

// WithDataSchedule overrides the cron specification for data retention sweeps.
func WithDataSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.dataSchedule = spec
		}
	}
}

// NewCleaner constructs a Cleaner with sensible defaults.
func NewCleaner(db *gorm.DB, opts ...Option) *Cleaner {
	cleaner := &Cleaner{
		db:               db,
		now:              time.Now,
		visitorRetention: defaultVisitorRetentionDays,
		notificationDays: defaultNotificationDays,
		cacheSchedule:    defaultCacheSpec,
		dataSchedule:     defaultDataSpec,
		log:              logger.WithModule("maintenance"),
	}

	for _, opt := range opts {
		opt(cleaner)
	}

	if cleaner.cron == nil {
		cleaner.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}

	return cleaner
}

// Start registers cleanup jobs with the cron scheduler and launches it.
func (c *Cleaner) Start() error {
	if c.db == nil {
		return nil
	}

	if _, err := c.cron.AddFunc(c.cacheSchedule, func() {
		if _, err := CleanupCache(context.Background(), c.db, c.now()); err != nil {
			c.log.Warn("cache cleanup failed", zap.Error(err))
		}
	}); err != nil {
		return err
	}

	if _, err := c.cron.AddFunc(c.dataSchedule, func() {
		if _, err := CleanupData(context.Background(), c.db, c.now(), c.visitorRetention, c.notificationDays); err != nil {
			c.log.Warn("data cleanup failed", zap.Error(err))
		}
	}); err != nil {
		return err
	}

	c.cron.Start()
	return nil
}

// Stop halts the underlying scheduler, waiting for any running jobs to complete.
func (c *Cleaner) Stop() context.Context {
	if c.cron == nil {
		return context.Background()
	}
	return c.cron.Stop()
}

// RunOnce executes all cleanup routines sequentially. Primarily used in tests
// and during graceful shutdown.
func (c *Cleaner) RunOnce(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if c.db == nil {
		return nil
	}

	var errs error
	if _, err := CleanupCache(ctx, c.db, c.now()); err != nil {
		errs = multierr.Append(errs, err)
	}
	if _, err := CleanupData(ctx, c.db, c.now(), c.visitorRetention, c.notificationDays); err != nil {
		errs = multierr.Append(errs, err)
	}
	return errs
}

// CleanupCache removes expired entries from the database cache store.
func CleanupCache(ctx context.Context, db *gorm.DB, now time.Time) (int64, error) {
	res := db.WithContext(ctx).
		Where("expires_at <= ?", now).
		Delete(&models.CacheEntry{})
	return res.RowsAffected, res.Error
}

// DataCleanupStats captures the number of records removed per table.
type DataCleanupStats struct {
	VisitorRecords int64
	Notifications  int64
}

// CleanupData prunes visitor records beyond the retention window and read
// notifications older than the notification horizon.
func CleanupData(ctx context.Context, db *gorm.DB, now time.Time, visitorDays, notificationDays int) (DataCleanupStats, error) {
	var (
		stats DataCleanupStats
		errs  error
	)

	if visitorDays > 0 {
		horizon := now.AddDate(0, 0, -visitorDays)
		res := db.WithContext(ctx).
			Where("visited_at < ?", horizon).
			Delete(&models.VisitorRecord{})
		stats.VisitorRecords = res.RowsAffected
		errs = multierr.Append(errs, res.Error)
	}

	if notificationDays > 0 {
		horizon := now.AddDate(0, 0, -notificationDays)
		res := db.WithContext(ctx).
			Where("read_at IS NOT NULL AND created_at < ?", horizon).
			Delete(&models.Notification{})
		stats.Notifications = res.RowsAffected
		errs = multierr.Append(errs, res.Error)
	}

	return stats, errs
}
