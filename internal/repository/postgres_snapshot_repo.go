package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hitoshi/livebid/internal/model"
)

// PostgresSnapshotRepo はPostgreSQLの単一行JSONBにスナップショットを保存するリポジトリ。
type PostgresSnapshotRepo struct {
	db Executor
}

// NewPostgresSnapshotRepo はPostgresSnapshotRepoを生成する。
func NewPostgresSnapshotRepo(db Executor) *PostgresSnapshotRepo {
	return &PostgresSnapshotRepo{db: db}
}

// Load は保存済みのスナップショットを返す。行が存在しない場合はnilを返す。
func (r *PostgresSnapshotRepo) Load(ctx context.Context) (*model.Snapshot, error) {
	var data []byte
	err := r.db.QueryRowContext(ctx,
		`SELECT state FROM auction_snapshots WHERE id = 1`,
	).Scan(&data)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}
	return decodeSnapshot(data)
}

// Save はスナップショット行をUPSERTで上書きする。
func (r *PostgresSnapshotRepo) Save(ctx context.Context, data []byte) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO auction_snapshots (id, state, updated_at)
		 VALUES (1, $1, now())
		 ON CONFLICT (id) DO UPDATE SET state = EXCLUDED.state, updated_at = EXCLUDED.updated_at`,
		data,
	)
	if err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}

// compile-time interface check
var _ SnapshotRepository = (*PostgresSnapshotRepo)(nil)
