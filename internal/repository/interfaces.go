// Package repository はオークション状態と監査イベントの永続化を提供する。
package repository

import (
	"context"
	"database/sql"

	"github.com/hitoshi/livebid/internal/audit"
	"github.com/hitoshi/livebid/internal/model"
)

// SnapshotRepository はオークション状態全体のスナップショットを扱う。
// 外部のバージョン管理は行わず、最後の書き込みが勝つ。
type SnapshotRepository interface {
	// Load は保存済みのスナップショットを返す。存在しない場合はnilを返す。
	Load(ctx context.Context) (*model.Snapshot, error)
	// Save はシリアライズ済みのスナップショットで全体を上書きする。
	Save(ctx context.Context, data []byte) error
}

// AuditRepository は監査イベントを追記専用で保存する。
type AuditRepository interface {
	Append(ctx context.Context, rec audit.Record) error
}

// Executor はSQLの実行を抽象化するインターフェース。
// *sql.DB や *sql.Tx を受け付けることができる。
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}
