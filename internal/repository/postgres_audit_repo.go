package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/hitoshi/livebid/internal/audit"
)

// PostgresAuditRepo はPostgreSQLに監査イベントを追記するリポジトリ。
// 同じIDのイベントは1度だけ保存される。
type PostgresAuditRepo struct {
	db Executor
}

// NewPostgresAuditRepo はPostgresAuditRepoを生成する。
func NewPostgresAuditRepo(db Executor) *PostgresAuditRepo {
	return &PostgresAuditRepo{db: db}
}

// Append は監査イベントを追記する。
func (r *PostgresAuditRepo) Append(ctx context.Context, rec audit.Record) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal audit record: %w", err)
	}

	identity := rec.BidderKey
	if identity == "" {
		identity = rec.WinnerKey
	}
	if identity == "" {
		identity = rec.AdminKey
	}
	var amount int64
	switch rec.Kind {
	case audit.KindBid:
		amount = rec.Amount
	case audit.KindClose:
		amount = rec.FinalAmount
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO audit_events (id, kind, item_id, identity_key, amount, payload, occurred_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (id) DO NOTHING`,
		rec.ID.String(), string(rec.Kind), nullString(rec.ItemID), nullString(identity),
		nullInt64(amount, rec.Kind == audit.KindBid || rec.Kind == audit.KindClose),
		payload, rec.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to append audit event: %w", err)
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt64(v int64, valid bool) sql.NullInt64 {
	return sql.NullInt64{Int64: v, Valid: valid}
}

// compile-time interface check
var _ AuditRepository = (*PostgresAuditRepo)(nil)
var _ audit.Sink = (*PostgresAuditRepo)(nil)
