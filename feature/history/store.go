package history

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"stock-sync/core/database"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ErrSchemaMismatch is returned when the report table lacks expected columns.
var ErrSchemaMismatch = errors.New("history: schema mismatch")

// DefaultLimit is used by List when limit is not positive.
const DefaultLimit = 20

// Store persists sync reports through gorm.
type Store struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewStore creates a report store.
func NewStore(db *gorm.DB, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{db: db, logger: logger}
}

// Migrate creates or updates the report table and checks its columns.
func (s *Store) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&SyncReport{}); err != nil {
		return fmt.Errorf("migrate sync reports: %w", err)
	}
	return s.Verify(ctx)
}

// Verify checks that the report table has every column the store writes.
func (s *Store) Verify(ctx context.Context) error {
	missing, err := database.MissingColumns(s.db.WithContext(ctx), SyncReport{}.TableName(), Columns)
	if err != nil {
		return err
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s lacks %s", ErrSchemaMismatch, SyncReport{}.TableName(), strings.Join(missing, ", "))
	}
	return nil
}

// Record inserts a report.
func (s *Store) Record(ctx context.Context, r SyncReport) error {
	if err := s.db.WithContext(ctx).Create(&r).Error; err != nil {
		s.logger.Warn("Failed to record sync report", zap.String("service", r.Service), zap.Error(err))
		return fmt.Errorf("record sync report: %w", err)
	}
	return nil
}

// List returns the most recent reports, newest first. An empty service
// lists every service.
func (s *Store) List(ctx context.Context, service string, limit int) ([]SyncReport, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	q := s.db.WithContext(ctx).Model(&SyncReport{})
	if service != "" {
		q = q.Where("service = ?", service)
	}
	var rows []SyncReport
	if err := q.Order("created_at desc").Order("id desc").Limit(limit).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list sync reports: %w", err)
	}
	return rows, nil
}
