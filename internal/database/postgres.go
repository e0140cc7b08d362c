package database

import (
	"context"
	"fmt"
	"sync"

	"botvac-bridge/internal/config"
	"botvac-bridge/internal/models"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func NewPostgresDB(cfg *config.Config) (*gorm.DB, error) {
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable",
		cfg.DBHost, cfg.DBUser, cfg.DBPassword, cfg.DBName, cfg.DBPort)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, err
	}

	// migrate the audit table
	if err := db.AutoMigrate(&models.CommandLog{}); err != nil {
		return nil, err
	}

	return db, nil
}

// Recorder stores and reads the command audit log.
type Recorder interface {
	Record(ctx context.Context, entry *models.CommandLog) error
	Recent(ctx context.Context, serial string, limit int) ([]models.CommandLog, error)
}

const defaultRecentLimit = 50

func clampLimit(limit int) int {
	if limit <= 0 || limit > 500 {
		return defaultRecentLimit
	}
	return limit
}

type GormRecorder struct {
	db *gorm.DB
}

func NewGormRecorder(db *gorm.DB) *GormRecorder {
	return &GormRecorder{db: db}
}

func (r *GormRecorder) Record(ctx context.Context, entry *models.CommandLog) error {
	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("failed to record command %s: %w", entry.ExecutionID, err)
	}
	return nil
}

// Recent returns the newest entries first.
func (r *GormRecorder) Recent(ctx context.Context, serial string, limit int) ([]models.CommandLog, error) {
	var logs []models.CommandLog
	err := r.db.WithContext(ctx).
		Where("serial = ?", serial).
		Order("created_at DESC").
		Order("id DESC").
		Limit(clampLimit(limit)).
		Find(&logs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load history of %s: %w", serial, err)
	}
	return logs, nil
}

// MemoryRecorder keeps entries in process; used when no database is configured.
type MemoryRecorder struct {
	mu     sync.Mutex
	nextID uint
	logs   []models.CommandLog
}

func NewMemoryRecorder() *MemoryRecorder {
	return &MemoryRecorder{}
}

func (r *MemoryRecorder) Record(ctx context.Context, entry *models.CommandLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	entry.ID = r.nextID
	r.logs = append(r.logs, *entry)
	return nil
}

func (r *MemoryRecorder) Recent(ctx context.Context, serial string, limit int) ([]models.CommandLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	limit = clampLimit(limit)
	out := []models.CommandLog{}
	for i := len(r.logs) - 1; i >= 0 && len(out) < limit; i-- {
		if r.logs[i].Serial == serial {
			out = append(out, r.logs[i])
		}
	}
	return out, nil
}

// All returns every entry in insertion order.
func (r *MemoryRecorder) All() []models.CommandLog {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.CommandLog(nil), r.logs...)
}
