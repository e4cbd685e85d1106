package db

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/ah-its-andy/sparkconvert/internal/job"
)

// Open opens (or creates) the sqlite database at path and migrates it.
func Open(path string) (*gorm.DB, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}
	g, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	sqlDB, err := g.DB()
	if err != nil {
		return nil, err
	}
	// SQLite only supports one writer
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := g.AutoMigrate(&UsageStats{}, &TaskHistory{}); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}
	return g, nil
}

func Close(g *gorm.DB) error {
	sqlDB, err := g.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// RecordUsage adds one conversion of size bytes to the usage row.
func RecordUsage(g *gorm.DB, size int64, at time.Time) error {
	row := UsageStats{Name: StatsKey, TotalConversions: 1, TotalSize: size, LastConversion: &at}
	return g.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "name"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"total_conversions": gorm.Expr("total_conversions + 1"),
			"total_size":        gorm.Expr("total_size + ?", size),
			"last_conversion":   at,
		}),
	}).Create(&row).Error
}

// CurrentStats reads the usage row. A store that never recorded anything
// reports zero counts and no timestamp.
func CurrentStats(g *gorm.DB) (Stats, error) {
	var row UsageStats
	err := g.Where("name = ?", StatsKey).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Stats{}, nil
	}
	if err != nil {
		return Stats{}, err
	}
	return Stats{Count: row.TotalConversions, TotalBytes: row.TotalSize, LastTimestamp: row.LastConversion}, nil
}

func ResetStats(g *gorm.DB) error {
	return g.Where("name = ?", StatsKey).Delete(&UsageStats{}).Error
}

func InsertTaskHistory(g *gorm.DB, h *TaskHistory) error {
	return g.Create(h).Error
}

// ListTasks returns history rows, newest first, with the unpaged total.
func ListTasks(g *gorm.DB, status string, limit, offset int) ([]TaskHistory, int64, error) {
	query := func() *gorm.DB {
		q := g.Model(&TaskHistory{})
		if status != "" {
			q = q.Where("status = ?", status)
		}
		return q
	}
	var count int64
	if err := query().Count(&count).Error; err != nil {
		return nil, 0, err
	}
	rows := []TaskHistory{}
	err := query().Order("end_time desc").Order("id desc").Limit(limit).Offset(offset).Find(&rows).Error
	return rows, count, err
}

// TasksBySourceMD5 returns the history of every job whose source had the
// given digest, newest first.
func TasksBySourceMD5(g *gorm.DB, sum string) ([]TaskHistory, error) {
	rows := []TaskHistory{}
	err := g.Where("source_md5 = ?", sum).Order("end_time desc").Find(&rows).Error
	return rows, err
}

// Store adapts the database to the job manager's usage and history hooks.
type Store struct {
	DB *gorm.DB
}

func NewStore(g *gorm.DB) *Store { return &Store{DB: g} }

func (s *Store) Record(ctx context.Context, size int64) error {
	return RecordUsage(s.DB.WithContext(ctx), size, time.Now())
}

func (s *Store) CurrentStats(ctx context.Context) (Stats, error) {
	return CurrentStats(s.DB.WithContext(ctx))
}

func (s *Store) RecordTask(ctx context.Context, rec job.TaskRecord) error {
	status := TaskCompleted
	if rec.Status != job.StatusCompleted {
		status = TaskFailed
	}
	h := &TaskHistory{
		JobID:        rec.JobID,
		FileName:     rec.Name,
		SourceType:   string(rec.MediaType),
		Target:       rec.Target,
		Strategy:     rec.Strategy,
		Status:       status,
		ErrorMessage: rec.Error,
		SourceSize:   rec.Size,
		OutputSize:   rec.OutputSize,
		OutputPath:   rec.OutputPath,
		SourceMD5:    rec.SourceMD5,
		StartTime:    rec.Started,
		EndTime:      rec.Finished,
		DurationMs:   rec.Finished.Sub(rec.Started).Milliseconds(),
	}
	return InsertTaskHistory(s.DB.WithContext(ctx), h)
}

func (s *Store) ListTasks(ctx context.Context, status string, limit, offset int) ([]TaskHistory, int64, error) {
	return ListTasks(s.DB.WithContext(ctx), status, limit, offset)
}

func (s *Store) TasksBySourceMD5(ctx context.Context, sum string) ([]TaskHistory, error) {
	return TasksBySourceMD5(s.DB.WithContext(ctx), sum)
}

var (
	_ job.UsageRecorder   = (*Store)(nil)
	_ job.HistoryRecorder = (*Store)(nil)
)
