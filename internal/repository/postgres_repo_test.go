package repository

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"github.com/hitoshi/livebid/internal/audit"
	"github.com/hitoshi/livebid/internal/database"
	"github.com/hitoshi/livebid/internal/model"
)

// mockExecutor はExecutorのテスト用モック。
type mockExecutor struct {
	execFunc  func(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	lastQuery string
	lastArgs  []interface{}
}

func (m *mockExecutor) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	m.lastQuery = query
	m.lastArgs = args
	if m.execFunc != nil {
		return m.execFunc(ctx, query, args...)
	}
	return driver.RowsAffected(1), nil
}

func (m *mockExecutor) QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row {
	return nil
}

func TestPostgresRepos_ImplementInterfaces(t *testing.T) {
	var _ SnapshotRepository = (*PostgresSnapshotRepo)(nil)
	var _ AuditRepository = (*PostgresAuditRepo)(nil)
	var _ audit.Sink = (*PostgresAuditRepo)(nil)
}

func TestPostgresSnapshotRepo_SaveUpserts(t *testing.T) {
	exec := &mockExecutor{}
	repo := NewPostgresSnapshotRepo(exec)

	if err := repo.Save(context.Background(), []byte(`{"users":{}}`)); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if !strings.Contains(exec.lastQuery, "ON CONFLICT (id) DO UPDATE") {
		t.Errorf("query should upsert, got %s", exec.lastQuery)
	}
	if len(exec.lastArgs) != 1 || string(exec.lastArgs[0].([]byte)) != `{"users":{}}` {
		t.Errorf("args = %v", exec.lastArgs)
	}
}

func TestPostgresSnapshotRepo_SaveWrapsError(t *testing.T) {
	dbErr := errors.New("connection reset")
	exec := &mockExecutor{execFunc: func(context.Context, string, ...interface{}) (sql.Result, error) {
		return nil, dbErr
	}}

	err := NewPostgresSnapshotRepo(exec).Save(context.Background(), []byte("{}"))
	if !errors.Is(err, dbErr) {
		t.Errorf("expected wrapped error, got %v", err)
	}
}

func TestPostgresAuditRepo_AppendBid(t *testing.T) {
	exec := &mockExecutor{}
	repo := NewPostgresAuditRepo(exec)
	ts := time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)
	rec := audit.Record{
		ID: uuid.New(), Kind: audit.KindBid, Timestamp: ts,
		ItemID: "7", BidderKey: "10.0.0.1", BidderName: "Alice", Amount: 25,
	}

	if err := repo.Append(context.Background(), rec); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if !strings.Contains(exec.lastQuery, "ON CONFLICT (id) DO NOTHING") {
		t.Errorf("query should be idempotent, got %s", exec.lastQuery)
	}

	args := exec.lastArgs
	if len(args) != 7 {
		t.Fatalf("args = %d, want 7", len(args))
	}
	if args[0] != rec.ID.String() || args[1] != "bid" {
		t.Errorf("id/kind args = %v %v", args[0], args[1])
	}
	if got := args[3].(sql.NullString); !got.Valid || got.String != "10.0.0.1" {
		t.Errorf("identity arg = %+v", got)
	}
	if got := args[4].(sql.NullInt64); !got.Valid || got.Int64 != 25 {
		t.Errorf("amount arg = %+v", got)
	}
	var payload map[string]any
	if err := json.Unmarshal(args[5].([]byte), &payload); err != nil {
		t.Fatalf("payload is not JSON: %v", err)
	}
	if payload["bidder_name"] != "Alice" {
		t.Errorf("payload = %v", payload)
	}
}

func TestPostgresAuditRepo_AppendAdminHasNoAmount(t *testing.T) {
	exec := &mockExecutor{}
	rec := audit.NewAdminSettingsRecord("10.0.0.9", model.AuctionSettings{}, time.Now())

	if err := NewPostgresAuditRepo(exec).Append(context.Background(), rec); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if got := exec.lastArgs[2].(sql.NullString); got.Valid {
		t.Errorf("item_id should be NULL, got %+v", got)
	}
	if got := exec.lastArgs[3].(sql.NullString); got.String != "10.0.0.9" {
		t.Errorf("identity should fall back to admin key, got %+v", got)
	}
	if got := exec.lastArgs[4].(sql.NullInt64); got.Valid {
		t.Errorf("amount should be NULL, got %+v", got)
	}
}

// TestPostgresSnapshotRepo_Integration は実データベースでの保存と読み込みを検証する。
// TEST_DATABASE_URL が未設定または接続できない場合はスキップする。
func TestPostgresSnapshotRepo_Integration(t *testing.T) {
	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL が未設定のためスキップ")
	}
	db, err := database.Open(dbURL)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		t.Skipf("テスト用データベースに接続できません（スキップ）: %v", err)
	}
	if _, err := database.RunMigrations(dbURL); err != nil {
		t.Fatalf("RunMigrations failed: %v", err)
	}
	if _, err := db.Exec(`DELETE FROM auction_snapshots`); err != nil {
		t.Fatalf("cleanup failed: %v", err)
	}

	repo := NewPostgresSnapshotRepo(db)
	ctx := context.Background()

	snap, err := repo.Load(ctx)
	if err != nil || snap != nil {
		t.Fatalf("empty Load = %v, %v; want nil, nil", snap, err)
	}

	data, _ := json.Marshal(sampleSnapshot())
	if err := repo.Save(ctx, data); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := repo.Save(ctx, data); err != nil {
		t.Fatalf("second Save failed: %v", err)
	}

	snap, err = repo.Load(ctx)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if snap.Items["7"].CurrentBid != 10 {
		t.Errorf("loaded item = %+v", snap.Items["7"])
	}
}
