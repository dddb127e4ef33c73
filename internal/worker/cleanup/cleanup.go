// Package cleanup は保持期間を過ぎた記事の削除ジョブを提供する。
// pruneコマンドからの1回実行と、serve中の定期実行の両方で使われる。
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/insighthub/internal/metrics"
)

// DefaultRetentionDays は記事の既定の保持日数。
const DefaultRetentionDays = 30

// ArticleDeleter は公開日時で記事を削除するインターフェース。
// repository.ArticleRepositoryが満たす。
type ArticleDeleter interface {
	DeleteOlderThan(ctx context.Context, before time.Time) (int64, error)
}

// PruneRecorder は削除結果を記録する。metrics.Collectorが満たす。
type PruneRecorder interface {
	RecordPrune(deleted int64)
}

// CleanupJob は保持期間を超過した記事の削除ジョブ。
// 削除対象がなくてもエラーにならず、何度実行しても結果は同じ。
type CleanupJob struct {
	repo          ArticleDeleter
	logger        *slog.Logger
	recorder      PruneRecorder
	RetentionDays int // 記事の保持日数（デフォルト: 30）
	now           func() time.Time
}

// NewCleanupJob は新しいCleanupJobを生成する。
// recorderがnilの場合はメトリクスを記録しない。
func NewCleanupJob(repo ArticleDeleter, logger *slog.Logger, recorder PruneRecorder) *CleanupJob {
	if logger == nil {
		logger = slog.Default()
	}
	if recorder == nil {
		recorder = metrics.Nop{}
	}
	return &CleanupJob{
		repo:          repo,
		logger:        logger,
		recorder:      recorder,
		RetentionDays: DefaultRetentionDays,
		now:           time.Now,
	}
}

// Run はpublished_atがRetentionDays日前より古い記事を削除し、削除件数を返す。
func (j *CleanupJob) Run(ctx context.Context) (int64, error) {
	if j.RetentionDays <= 0 {
		return 0, fmt.Errorf("保持日数は1以上である必要があります: %d", j.RetentionDays)
	}

	start := j.now()
	before := start.AddDate(0, 0, -j.RetentionDays)

	deleted, err := j.repo.DeleteOlderThan(ctx, before)
	if err != nil {
		j.logger.Error("記事クリーンアップジョブの実行に失敗しました",
			slog.String("error", err.Error()),
			slog.Int("retention_days", j.RetentionDays),
		)
		return 0, fmt.Errorf("記事クリーンアップの実行に失敗: %w", err)
	}

	j.recorder.RecordPrune(deleted)
	j.logger.Info("記事クリーンアップジョブが完了しました",
		slog.Int64("deleted_count", deleted),
		slog.Int("retention_days", j.RetentionDays),
		slog.Time("before", before),
		slog.Float64("duration_ms", float64(j.now().Sub(start).Milliseconds())),
	)

	return deleted, nil
}

// Start はinterval間隔でRunを繰り返す。起動直後にも1回実行する。
// コンテキストがキャンセルされるまで実行を継続する。
func (j *CleanupJob) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	j.logger.Info("記事クリーンアップを開始しました",
		slog.Duration("interval", interval),
		slog.Int("retention_days", j.RetentionDays),
	)

	// Runのエラーはログ済みのため、ここでは継続のみ行う
	_, _ = j.Run(ctx)

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("記事クリーンアップを停止しました")
			return
		case <-ticker.C:
			_, _ = j.Run(ctx)
		}
	}
}
