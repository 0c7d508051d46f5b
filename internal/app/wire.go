package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"

	"github.com/hitoshi/livebid/internal/auction"
	"github.com/hitoshi/livebid/internal/audit"
	"github.com/hitoshi/livebid/internal/catalog"
	"github.com/hitoshi/livebid/internal/config"
	"github.com/hitoshi/livebid/internal/database"
	"github.com/hitoshi/livebid/internal/handler"
	"github.com/hitoshi/livebid/internal/registry"
	"github.com/hitoshi/livebid/internal/repository"
	"github.com/hitoshi/livebid/internal/security"
)

// resources は外部サービスへの接続をまとめて保持する。
// 設定で有効なものだけを開く。
type resources struct {
	db    *sql.DB
	nats  *nats.Conn
	redis *redis.Client
}

// openResources は設定に応じてPostgreSQL、NATS、Redisへ接続する。
// 途中で失敗した場合は開いた接続を閉じてからエラーを返す。
func openResources(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*resources, error) {
	res := &resources{}

	if cfg.NeedsDatabase() {
		db, err := database.OpenAndPing(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		res.db = db
		logger.Info("database connection established")
	}

	if cfg.HasSink(config.SinkNATS) {
		nc, err := nats.Connect(cfg.NATSURL, nats.Name("livebid"), nats.MaxReconnects(-1))
		if err != nil {
			res.Close()
			return nil, fmt.Errorf("failed to connect to nats: %w", err)
		}
		res.nats = nc
		logger.Info("nats connection established", slog.String("url", nc.ConnectedUrl()))
	}

	if cfg.HasSink(config.SinkRedis) {
		rdb, err := audit.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			res.Close()
			return nil, err
		}
		res.redis = rdb
		logger.Info("redis connection established", slog.String("addr", cfg.RedisAddr))
	}

	return res, nil
}

// healthChecker はDB接続がある場合のみヘルスチェック対象として返す。
func (r *resources) healthChecker() handler.HealthChecker {
	if r.db == nil {
		return nil
	}
	return r.db
}

// Close は開いている接続をすべて閉じる。
func (r *resources) Close() {
	if r.nats != nil {
		r.nats.Drain()
	}
	if r.redis != nil {
		r.redis.Close()
	}
	if r.db != nil {
		r.db.Close()
	}
}

// newSnapshotRepo は設定されたドライバのスナップショットリポジトリを返す。
func newSnapshotRepo(cfg *config.Config, res *resources) repository.SnapshotRepository {
	if cfg.StoreDriver == config.StorePostgres {
		return repository.NewPostgresSnapshotRepo(res.db)
	}
	return repository.NewFileSnapshotRepo(cfg.StateFile)
}

// auditMetrics はネットワーク越しの監査シンクが使うメトリクス。
type auditMetrics interface {
	RecordAuditFailure()
	RecordAuditDropped(sink string)
}

// newAuditLog は有効な監査シンクをファンアウトにまとめる。
// ネットワーク越しのシンクは有界キューを介して非同期に配送し、一時的な失敗を再試行する。
// キューが満杯の場合はレコードを破棄してメトリクスに記録する。
func newAuditLog(ctx context.Context, cfg *config.Config, res *resources, logger *slog.Logger, m auditMetrics) (*audit.Fanout, error) {
	remote := func(name string, sink audit.Sink) audit.Sink {
		return audit.NewAsync(name, audit.WithRetry(sink, audit.DefaultRetryPolicy()), audit.AsyncOptions{
			Logger:    logger,
			OnDrop:    func() { m.RecordAuditDropped(name) },
			OnFailure: m.RecordAuditFailure,
		})
	}

	fanout := audit.NewFanout()
	for _, sink := range cfg.AuditSinks {
		switch sink {
		case config.SinkFile:
			fl, err := audit.NewFileLog(cfg.LogDir)
			if err != nil {
				return nil, err
			}
			fanout.Add(sink, fl)
		case config.SinkPostgres:
			fanout.Add(sink, repository.NewPostgresAuditRepo(res.db))
		case config.SinkNATS:
			js, err := audit.NewJetStreamLog(ctx, res.nats)
			if err != nil {
				return nil, err
			}
			fanout.Add(sink, remote(sink, js))
		case config.SinkRedis:
			fanout.Add(sink, remote(sink, audit.NewRedisLog(res.redis)))
		}
	}
	return fanout, nil
}

// loadState は保存済みのスナップショットがあればそこから、なければカタログから初期状態を構築する。
func loadState(ctx context.Context, cfg *config.Config, store repository.SnapshotRepository, logger *slog.Logger) (*auction.State, error) {
	snap, err := store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}
	if snap != nil {
		logger.Info("スナップショットから状態を復元しました",
			slog.Int("users", len(snap.Users)),
			slog.Int("players", len(snap.Items)),
		)
		return auction.RestoreState(snap), nil
	}

	sanitizer := security.NewDisplaySanitizer()

	users, err := catalog.LoadUsers(cfg.UsersFile)
	if err != nil {
		return nil, err
	}
	players, err := catalog.LoadPlayers(cfg.PlayersFile)
	if err != nil {
		return nil, err
	}
	items, err := catalog.Items(players, sanitizer)
	if err != nil {
		return nil, err
	}
	reg := registry.New(catalog.Identities(users, sanitizer))

	logger.Info("カタログから初期状態を構築しました",
		slog.Int("users", reg.Len()),
		slog.Int("players", len(items)),
	)
	return auction.NewState(reg, items), nil
}
