// Package store archives finished runs and their briefs in Postgres. The
// archive is optional: only the archive command opens a pool.
package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"horse.fit/avdigest/internal/config"
	"horse.fit/avdigest/internal/digest"
	"horse.fit/avdigest/internal/report"
)

// DigestRun is one archived pipeline run.
type DigestRun struct {
	ID             int64     `gorm:"primaryKey;autoIncrement"`
	RunID          string    `gorm:"column:run_id;size:64;uniqueIndex"`
	RunDate        string    `gorm:"column:run_date;size:16;index"`
	GeneratedAtUTC string    `gorm:"column:generated_at_utc;size:40"`
	BriefCount     int       `gorm:"column:brief_count"`
	DedupeDrops    int       `gorm:"column:dedupe_drop_count"`
	RelevanceKept  int       `gorm:"column:relevance_kept"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (DigestRun) TableName() string { return "digest_runs" }

// BriefRecord is one archived brief item belonging to a run.
type BriefRecord struct {
	ID          int64      `gorm:"primaryKey;autoIncrement"`
	RunID       string     `gorm:"column:run_id;size:64;index"`
	ItemID      string     `gorm:"column:item_id;size:64;index"`
	SourceID    string     `gorm:"column:source_id;size:128"`
	SourceName  string     `gorm:"column:source_name;size:256"`
	Region      string     `gorm:"column:region;size:16"`
	CompanyID   string     `gorm:"column:company_id;size:128"`
	TitleZH     string     `gorm:"column:title_zh;type:text"`
	SummaryZH   string     `gorm:"column:summary_zh;type:text"`
	URL         string     `gorm:"column:url;type:text"`
	PublishedAt *time.Time `gorm:"column:published_at"`
	Tags        string     `gorm:"column:tags;size:256"`
	Confidence  float64    `gorm:"column:confidence"`
	CreatedAt   time.Time  `gorm:"column:created_at;autoCreateTime"`
}

func (BriefRecord) TableName() string { return "brief_records" }

type Pool struct {
	gdb *gorm.DB
}

func NewPool(ctx context.Context, cfg *config.Config) (*Pool, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	gdb, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{
		Logger: logger.Default.LogMode(resolveGormLogLevel(cfg.LogLevel, cfg.Environment)),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("open gorm database: %w", err)
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, fmt.Errorf("get gorm sql db: %w", err)
	}
	maxOpen := cfg.DBMaxConns
	if maxOpen <= 0 {
		maxOpen = 4
	}
	sqlDB.SetMaxOpenConns(maxOpen)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxIdleTime(5 * time.Minute)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := gdb.WithContext(ctx).AutoMigrate(&DigestRun{}, &BriefRecord{}); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("auto-migrate schema: %w", err)
	}

	return &Pool{gdb: gdb}, nil
}

func (p *Pool) Close() error {
	if p == nil || p.gdb == nil {
		return nil
	}
	sqlDB, err := p.gdb.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// SaveRun archives a run report with its briefs in one transaction,
// replacing any prior archive of the same run id.
func (p *Pool) SaveRun(ctx context.Context, date string, r *report.Report, briefs []digest.Brief) error {
	run := DigestRun{
		RunID:          r.RunID,
		RunDate:        date,
		GeneratedAtUTC: r.GeneratedAtUTC,
		BriefCount:     r.BriefCount,
		DedupeDrops:    r.DedupeDropCount,
		RelevanceKept:  r.RelevanceKept,
	}

	records := make([]BriefRecord, 0, len(briefs))
	for _, brief := range briefs {
		records = append(records, BriefRecord{
			RunID:       r.RunID,
			ItemID:      brief.ID,
			SourceID:    brief.SourceID,
			SourceName:  brief.SourceName,
			Region:      brief.Region,
			CompanyID:   brief.CompanyID,
			TitleZH:     brief.TitleZH,
			SummaryZH:   brief.SummaryZH,
			URL:         brief.URL,
			PublishedAt: brief.PublishedAt,
			Tags:        strings.Join(brief.Tags, ","),
			Confidence:  brief.Confidence,
		})
	}

	return p.gdb.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("run_id = ?", run.RunID).Delete(&BriefRecord{}).Error; err != nil {
			return err
		}
		if err := tx.Where("run_id = ?", run.RunID).Delete(&DigestRun{}).Error; err != nil {
			return err
		}
		if err := tx.Create(&run).Error; err != nil {
			return err
		}
		if len(records) > 0 {
			if err := tx.CreateInBatches(records, 100).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// ListRuns returns the most recent archived runs, newest first.
func (p *Pool) ListRuns(ctx context.Context, limit int) ([]DigestRun, error) {
	if limit <= 0 {
		limit = 30
	}
	var runs []DigestRun
	err := p.gdb.WithContext(ctx).
		Order("run_date DESC, id DESC").
		Limit(limit).
		Find(&runs).Error
	return runs, err
}

func resolveGormLogLevel(appLogLevel, environment string) logger.LogLevel {
	switch strings.ToLower(strings.TrimSpace(appLogLevel)) {
	case "trace", "debug":
		return logger.Info
	case "warn", "warning", "info", "":
		return logger.Warn
	case "error":
		return logger.Error
	case "silent":
		return logger.Silent
	default:
		if strings.EqualFold(strings.TrimSpace(environment), "local") {
			return logger.Warn
		}
		return logger.Error
	}
}
