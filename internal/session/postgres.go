package session

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// PostgresBackend はPostgreSQLのsession_valuesテーブルにセッションを保持するBackend。
// 最終更新からttlを超えた値は読み取り対象外とし、物理削除はクリーンアップジョブが行う。
type PostgresBackend struct {
	db  *sql.DB
	ttl time.Duration
}

// NewPostgresBackend はPostgresBackendを生成する。
func NewPostgresBackend(db *sql.DB, ttl time.Duration) *PostgresBackend {
	return &PostgresBackend{db: db, ttl: ttl}
}

// Get は値を取得する。期限切れの場合は未保存として扱う。
func (b *PostgresBackend) Get(ctx context.Context, sessionID, key string) (string, bool, error) {
	var value string
	err := b.db.QueryRowContext(ctx,
		`SELECT value
		 FROM session_values
		 WHERE session_id = $1 AND key = $2
		   AND updated_at > now() - ($3 * interval '1 second')`,
		sessionID, key, int64(b.ttl.Seconds()),
	).Scan(&value)

	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to find session value: %w", err)
	}
	return value, true, nil
}

// Set は値をUPSERTし、同一セッションの全値の更新日時を延長する。
func (b *PostgresBackend) Set(ctx context.Context, sessionID, key, value string) error {
	_, err := b.db.ExecContext(ctx,
		`INSERT INTO session_values (session_id, key, value, updated_at)
		 VALUES ($1, $2, $3, now())
		 ON CONFLICT (session_id, key)
		 DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`,
		sessionID, key, value,
	)
	if err != nil {
		return fmt.Errorf("failed to save session value: %w", err)
	}

	_, err = b.db.ExecContext(ctx,
		`UPDATE session_values SET updated_at = now() WHERE session_id = $1`,
		sessionID,
	)
	if err != nil {
		return fmt.Errorf("failed to touch session: %w", err)
	}
	return nil
}

// Delete は指定キーを削除する。
func (b *PostgresBackend) Delete(ctx context.Context, sessionID string, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	_, err := b.db.ExecContext(ctx,
		`DELETE FROM session_values WHERE session_id = $1 AND key = ANY($2)`,
		sessionID, pq.Array(keys),
	)
	if err != nil {
		return fmt.Errorf("failed to delete session values: %w", err)
	}
	return nil
}

// compile-time interface check
var _ Backend = (*PostgresBackend)(nil)
