// Package history persists scan records through gorm on sqlite or mysql.
package history

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/skinscan/skinscan/internal/conf"
	"github.com/skinscan/skinscan/internal/errors"
	"github.com/skinscan/skinscan/internal/logger"
	"github.com/skinscan/skinscan/internal/observability/metrics"
)

const (
	DefaultListLimit = 50
	MaxListLimit     = 500

	slowQueryThreshold = 200 * time.Millisecond
)

var (
	ErrNotFound = errors.NewStd("scan record not found")
	ErrNotOpen  = errors.NewStd("history store is not open")
)

// ListOptions filters and pages List.
type ListOptions struct {
	Owner  string // empty matches every owner
	Limit  int    // <= 0 means DefaultListLimit, capped at MaxListLimit
	Offset int
}

func (o ListOptions) normalized() ListOptions {
	switch {
	case o.Limit <= 0:
		o.Limit = DefaultListLimit
	case o.Limit > MaxListLimit:
		o.Limit = MaxListLimit
	}
	o.Offset = max(o.Offset, 0)
	return o
}

// Page is one page of List results, newest first.
type Page struct {
	Records []ScanRecord `json:"records"`
	Total   int64        `json:"total"`
	Limit   int          `json:"limit"`
	Offset  int          `json:"offset"`
}

// Interface abstracts the history backend.
type Interface interface {
	Open() error
	Save(ctx context.Context, record *ScanRecord) error
	List(ctx context.Context, opts ListOptions) (*Page, error)
	Get(ctx context.Context, id string) (*ScanRecord, error)
	Delete(ctx context.Context, id string) error
	Ping(ctx context.Context) error
	Close() error
}

// DataStore implements the queries shared by every gorm backend.
type DataStore struct {
	DB       *gorm.DB
	recorder metrics.Recorder
}

// New returns the backend selected in settings, or nil when history is
// disabled. MySQL wins when both backends are enabled.
func New(settings *conf.Settings, recorder metrics.Recorder) Interface {
	if !settings.History.Enabled {
		return nil
	}
	if recorder == nil {
		recorder = metrics.NoOpRecorder{}
	}
	switch {
	case settings.History.MySQL.Enabled:
		return &MySQLStore{DataStore: DataStore{recorder: recorder}, Settings: settings}
	case settings.History.SQLite.Enabled:
		return &SQLiteStore{DataStore: DataStore{recorder: recorder}, Settings: settings}
	default:
		return nil
	}
}

func gormConfig() *gorm.Config {
	return &gorm.Config{
		Logger:         logger.NewGormAdapter(GetLogger().Module("gorm"), slowQueryThreshold),
		TranslateError: true,
	}
}

func (ds *DataStore) migrate() error {
	if err := ds.DB.AutoMigrate(&ScanRecord{}); err != nil {
		return dbError(err, "auto_migrate")
	}
	return nil
}

func (ds *DataStore) rec() metrics.Recorder {
	if ds.recorder == nil {
		return metrics.NoOpRecorder{}
	}
	return ds.recorder
}

// observe records the operation outcome and duration.
func (ds *DataStore) observe(op string, start time.Time, err error) {
	r := ds.rec()
	r.RecordDuration(op, time.Since(start).Seconds())
	if err != nil && !errors.Is(err, ErrNotFound) {
		r.RecordOperation(op, metrics.StatusError)
		r.RecordError(op, string(errors.CategoryDatabase))
		return
	}
	r.RecordOperation(op, metrics.StatusSuccess)
}

// Save inserts record. An empty ID or CreatedAt is filled in by NewRecord
// callers; Save rejects an empty ID.
func (ds *DataStore) Save(ctx context.Context, record *ScanRecord) (err error) {
	defer func(start time.Time) { ds.observe(metrics.OpHistorySave, start, err) }(time.Now())
	if ds.DB == nil {
		return ErrNotOpen
	}
	if record == nil || record.ID == "" {
		return errors.ValidationError("scan record must have an ID")
	}
	if err := ds.DB.WithContext(ctx).Create(record).Error; err != nil {
		return dbError(err, "save")
	}
	return nil
}

// List returns records newest first.
func (ds *DataStore) List(ctx context.Context, opts ListOptions) (page *Page, err error) {
	defer func(start time.Time) { ds.observe(metrics.OpHistoryList, start, err) }(time.Now())
	if ds.DB == nil {
		return nil, ErrNotOpen
	}
	opts = opts.normalized()

	query := ds.DB.WithContext(ctx).Model(&ScanRecord{})
	if opts.Owner != "" {
		query = query.Where("owner = ?", opts.Owner)
	}

	page = &Page{Limit: opts.Limit, Offset: opts.Offset, Records: []ScanRecord{}}
	if err := query.Count(&page.Total).Error; err != nil {
		return nil, dbError(err, "count")
	}
	if err := query.Order("created_at DESC").Order("id").
		Limit(opts.Limit).Offset(opts.Offset).
		Find(&page.Records).Error; err != nil {
		return nil, dbError(err, "list")
	}
	return page, nil
}

// Get returns the record with id or an error wrapping ErrNotFound.
func (ds *DataStore) Get(ctx context.Context, id string) (record *ScanRecord, err error) {
	defer func(start time.Time) { ds.observe(metrics.OpHistoryGet, start, err) }(time.Now())
	if ds.DB == nil {
		return nil, ErrNotOpen
	}

	var r ScanRecord
	if err := ds.DB.WithContext(ctx).Where("id = ?", id).First(&r).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound(id)
		}
		return nil, dbError(err, "get")
	}
	return &r, nil
}

// Delete removes the record with id. Deleting a missing record is an error
// wrapping ErrNotFound.
func (ds *DataStore) Delete(ctx context.Context, id string) (err error) {
	defer func(start time.Time) { ds.observe(metrics.OpHistoryDel, start, err) }(time.Now())
	if ds.DB == nil {
		return ErrNotOpen
	}

	result := ds.DB.WithContext(ctx).Where("id = ?", id).Delete(&ScanRecord{})
	if result.Error != nil {
		return dbError(result.Error, "delete")
	}
	if result.RowsAffected == 0 {
		return notFound(id)
	}
	return nil
}

// Ping checks the underlying connection.
func (ds *DataStore) Ping(ctx context.Context) error {
	if ds.DB == nil {
		return ErrNotOpen
	}
	sqlDB, err := ds.DB.DB()
	if err != nil {
		return dbError(err, "ping")
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return dbError(err, "ping")
	}
	return nil
}

// Close closes the connection pool. Closing a store that was never opened
// is a no-op.
func (ds *DataStore) Close() error {
	if ds.DB == nil {
		return nil
	}
	sqlDB, err := ds.DB.DB()
	if err != nil {
		return dbError(err, "close")
	}
	ds.DB = nil
	if err := sqlDB.Close(); err != nil {
		return dbError(err, "close")
	}
	return nil
}

func dbError(err error, operation string) error {
	return errors.New(err).
		Component("history").
		Category(errors.CategoryDatabase).
		Context("operation", operation).
		Build()
}

func notFound(id string) error {
	return errors.New(fmt.Errorf("%w: %s", ErrNotFound, id)).
		Component("history").
		Category(errors.CategoryNotFound).
		Build()
}
