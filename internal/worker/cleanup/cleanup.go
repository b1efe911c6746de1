// Package cleanup はPostgreSQLセッションストアの期限切れ値を削除するジョブを提供する。
// 最終更新からセッション最大有効期間を超過したsession_valuesの行を日次バッチで削除する。
package cleanup

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

// DefaultInterval はクリーンアップジョブの実行間隔。
const DefaultInterval = 24 * time.Hour

// Executor はSQLのExecContextを抽象化するインターフェース。
// *sql.DB や *sql.Tx を受け付けることができる。
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// CleanupJob は期限切れセッション値の削除ジョブ。
// 冪等であり、削除対象がない場合もエラーにならない。
type CleanupJob struct {
	db     Executor
	logger *slog.Logger
	MaxAge time.Duration // セッションの最大有効期間
}

// NewCleanupJob は新しいCleanupJobを生成する。
func NewCleanupJob(db Executor, logger *slog.Logger, maxAge time.Duration) *CleanupJob {
	return &CleanupJob{
		db:     db,
		logger: logger,
		MaxAge: maxAge,
	}
}

// Run はupdated_atがMaxAgeより古いセッション値を削除する。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := time.Now()
	maxAgeSeconds := int64(j.MaxAge.Seconds())

	query := `DELETE FROM session_values WHERE updated_at < now() - ($1 * interval '1 second')`
	result, err := j.db.ExecContext(ctx, query, maxAgeSeconds)
	if err != nil {
		j.logger.Error("セッションクリーンアップジョブの実行に失敗しました",
			slog.String("error", err.Error()),
			slog.Int64("max_age_seconds", maxAgeSeconds),
		)
		return fmt.Errorf("セッションクリーンアップの実行に失敗: %w", err)
	}

	deletedCount, err := result.RowsAffected()
	if err != nil {
		j.logger.Error("削除件数の取得に失敗しました",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("削除件数の取得に失敗: %w", err)
	}

	duration := time.Since(start)
	j.logger.Info("セッションクリーンアップジョブが完了しました",
		slog.Int64("deleted_count", deletedCount),
		slog.Int64("max_age_seconds", maxAgeSeconds),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return nil
}

// Start は起動直後に1回、以降interval毎にRunを実行する。
// ctxがキャンセルされるまでブロックする。失敗はログに記録して次回に持ち越す。
func (j *CleanupJob) Start(ctx context.Context, interval time.Duration) {
	j.runLogged(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.runLogged(ctx)
		}
	}
}

func (j *CleanupJob) runLogged(ctx context.Context) {
	if err := j.Run(ctx); err != nil && ctx.Err() == nil {
		j.logger.Warn("cleanup will be retried on the next tick", slog.String("error", err.Error()))
	}
}
