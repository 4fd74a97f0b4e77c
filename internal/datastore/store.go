package datastore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/pagd-project/pagd-go/internal/conf"
	"github.com/pagd-project/pagd-go/internal/errors"
	"github.com/pagd-project/pagd-go/internal/logger"
	"github.com/pagd-project/pagd-go/internal/observability/metrics"
	"github.com/pagd-project/pagd-go/internal/report"
)

// DefaultRecentLimit caps Recent when limit is not positive.
const DefaultRecentLimit = 100

// Store is the detection history. It implements report.Sink.
type Store struct {
	db      *gorm.DB
	path    string
	metrics *metrics.DatastoreMetrics
}

var _ report.Sink = (*Store)(nil)

// Open opens or creates the sqlite database at path and migrates the schema.
func Open(path string, m *metrics.DatastoreMetrics) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, dbError(err, "create_directory", "path", path)
		}
	}

	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=5000", path)
	return open(sqlite.Open(dsn), path, m)
}

// OpenMySQL connects to a MySQL server and migrates the schema. The DSN
// must set parseTime=true.
func OpenMySQL(dsn string, m *metrics.DatastoreMetrics) (*Store, error) {
	cfg, err := mysqldriver.ParseDSN(dsn)
	if err != nil {
		return nil, dbError(err, "parse_dsn")
	}
	if !cfg.ParseTime {
		return nil, errors.Newf("mysql DSN must set parseTime=true").
			Component("datastore").
			Category(errors.CategoryConfiguration).
			Build()
	}
	return open(mysql.Open(dsn), cfg.Addr+"/"+cfg.DBName, m)
}

// OpenSettings opens the history described by settings.
func OpenSettings(settings conf.DatastoreSettings, m *metrics.DatastoreMetrics) (*Store, error) {
	if settings.Driver == conf.DriverMySQL {
		return OpenMySQL(settings.DSN, m)
	}
	return Open(settings.Path, m)
}

func open(dialector gorm.Dialector, location string, m *metrics.DatastoreMetrics) (*Store, error) {
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: NewGormLogger(200 * time.Millisecond),
	})
	if err != nil {
		return nil, dbError(err, "open", "location", location)
	}

	if err := db.AutoMigrate(&Detection{}); err != nil {
		return nil, dbError(err, "auto_migrate", "location", location)
	}

	GetLogger().Info("detection history opened",
		logger.String("driver", dialector.Name()),
		logger.String("location", location))
	return &Store{db: db, path: location, metrics: m}, nil
}

// Name implements report.Sink.
func (s *Store) Name() string { return "datastore" }

// Publish implements report.Sink by saving the report.
func (s *Store) Publish(ctx context.Context, r report.Report) error {
	return s.Save(ctx, r)
}

// Save stores one report.
func (s *Store) Save(ctx context.Context, r report.Report) (err error) {
	start := time.Now()
	defer func() { s.metrics.RecordOperation(metrics.OpDbInsert, start, err) }()

	d := FromReport(r)
	if err := s.db.WithContext(ctx).Create(&d).Error; err != nil {
		return dbError(err, "save_detection", "report_id", d.ReportID)
	}
	return nil
}

// Recent returns up to limit detections, newest first.
func (s *Store) Recent(ctx context.Context, limit int) (out []Detection, err error) {
	start := time.Now()
	defer func() { s.metrics.RecordOperation(metrics.OpDbQuery, start, err) }()

	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	if err := s.db.WithContext(ctx).Order("timestamp DESC, id DESC").Limit(limit).Find(&out).Error; err != nil {
		return nil, dbError(err, "recent_detections")
	}
	return out, nil
}

// Between returns detections with from <= timestamp < to, oldest first.
func (s *Store) Between(ctx context.Context, from, to time.Time) (out []Detection, err error) {
	start := time.Now()
	defer func() { s.metrics.RecordOperation(metrics.OpDbQuery, start, err) }()

	if !from.Before(to) {
		return nil, errors.Newf("empty time window %s to %s", from.Format(time.RFC3339), to.Format(time.RFC3339)).
			Component("datastore").
			Category(errors.CategoryValidation).
			Build()
	}
	if err := s.db.WithContext(ctx).
		Where("timestamp >= ? AND timestamp < ?", from, to).
		Order("timestamp ASC, id ASC").
		Find(&out).Error; err != nil {
		return nil, dbError(err, "detections_between")
	}
	return out, nil
}

// Close closes the database.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return dbError(err, "close")
	}
	if err := sqlDB.Close(); err != nil {
		return dbError(err, "close")
	}
	return nil
}

func dbError(err error, operation string, context ...any) error {
	builder := errors.New(err).
		Component("datastore").
		Category(errors.CategoryDatabase).
		Context("operation", operation)

	for i := 0; i+1 < len(context); i += 2 {
		if key, ok := context[i].(string); ok {
			builder = builder.Context(key, context[i+1])
		}
	}
	return builder.Build()
}
