// Package cleanup は保持期間を超過したリード情報の自動削除ジョブを提供する。
// ジョブはcron式のスケジュールで実行し、起動直後にも1回実行する。
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultRetentionDays はリードの保持日数のデフォルト値。
const DefaultRetentionDays = 365

// LeadPurger は指定日時より前のリードを削除する。
type LeadPurger interface {
	DeleteOlderThan(ctx context.Context, before time.Time) (int64, error)
}

// CleanupJob は保持期間を超過したリードの削除ジョブ。
// 削除対象がない場合もエラーにならない。
type CleanupJob struct {
	leads         LeadPurger
	logger        *slog.Logger
	RetentionDays int
	now           func() time.Time
}

// NewCleanupJob は新しいCleanupJobを生成する。
// retentionDaysが0以下の場合はDefaultRetentionDaysを使う。
func NewCleanupJob(leads LeadPurger, logger *slog.Logger, retentionDays int) *CleanupJob {
	if retentionDays <= 0 {
		retentionDays = DefaultRetentionDays
	}
	return &CleanupJob{
		leads:         leads,
		logger:        logger,
		RetentionDays: retentionDays,
		now:           time.Now,
	}
}

// Run は作成日時がRetentionDays日より前のリードを削除する。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := j.now()
	cutoff := start.UTC().AddDate(0, 0, -j.RetentionDays)

	deleted, err := j.leads.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		j.logger.Error("lead cleanup failed",
			slog.String("error", err.Error()),
			slog.Int("retention_days", j.RetentionDays),
		)
		return fmt.Errorf("failed to delete expired leads: %w", err)
	}

	j.logger.Info("lead cleanup completed",
		slog.Int64("deleted_count", deleted),
		slog.Int("retention_days", j.RetentionDays),
		slog.Time("cutoff", cutoff),
		slog.Float64("duration_ms", float64(j.now().Sub(start).Milliseconds())),
	)
	return nil
}

// Scheduler はCleanupJobをcron式のスケジュールで実行する。
type Scheduler struct {
	job      *CleanupJob
	logger   *slog.Logger
	schedule string
}

// NewScheduler はScheduler を生成する。scheduleは5フィールドのcron式。
func NewScheduler(job *CleanupJob, logger *slog.Logger, schedule string) (*Scheduler, error) {
	if _, err := cron.ParseStandard(schedule); err != nil {
		return nil, fmt.Errorf("invalid cleanup schedule %q: %w", schedule, err)
	}
	return &Scheduler{
		job:      job,
		logger:   logger,
		schedule: schedule,
	}, nil
}

// Start は起動直後に1回ジョブを実行し、その後はスケジュールに従って実行する。
// コンテキストがキャンセルされると実行中のジョブの完了を待って戻る。
func (s *Scheduler) Start(ctx context.Context) error {
	c := cron.New()
	if _, err := c.AddFunc(s.schedule, func() {
		// エラーはRun内でログ出力済み
		_ = s.job.Run(ctx)
	}); err != nil {
		return fmt.Errorf("failed to register cleanup job: %w", err)
	}

	s.logger.Info("cleanup scheduler started",
		slog.String("schedule", s.schedule),
		slog.Int("retention_days", s.job.RetentionDays),
	)

	_ = s.job.Run(ctx)

	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()

	s.logger.Info("cleanup scheduler stopped")
	return nil
}
