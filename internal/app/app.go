package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/net/netutil"
	"golang.org/x/time/rate"

	"github.com/hitoshi/livebid/internal/auction"
	"github.com/hitoshi/livebid/internal/config"
	"github.com/hitoshi/livebid/internal/database"
	"github.com/hitoshi/livebid/internal/handler"
	"github.com/hitoshi/livebid/internal/logger"
	"github.com/hitoshi/livebid/internal/metrics"
	"github.com/hitoshi/livebid/internal/middleware"
	"github.com/hitoshi/livebid/internal/transport"
	"github.com/hitoshi/livebid/internal/worker/closer"
)

// shutdownTimeout はグレースフルシャットダウンの待ち時間。
const shutdownTimeout = 30 * time.Second

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, *slog.Logger, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, os.Getenv("LOG_LEVEL"))

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, logger.SetupDefault(w, cfg.LogLevel), nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "3000"
		}
		return runHealthcheck(port)
	}

	cfg, log, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	log.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("store", cfg.StoreDriver),
	)

	switch cmd {
	case CommandMigrate:
		return runMigrate(cfg, ParseMigrateDirection(args), log)
	default:
		return runServe(cfg, log)
	}
}

// runServe はオークションサーバーとして起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ln, err := net.Listen("tcp", ":"+cfg.ServerPort)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	return Serve(ctx, cfg, ln, log)
}

// Serve は依存関係をワイヤリングし、lnでHTTPとWebSocketを受け付ける。
// ctxがキャンセルされるとサーバーを停止し、コミットキューを排出してから戻る。
func Serve(ctx context.Context, cfg *config.Config, ln net.Listener, log *slog.Logger) error {
	// 1. 外部接続
	res, err := openResources(ctx, cfg, log)
	if err != nil {
		ln.Close()
		return err
	}
	defer res.Close()

	// 2. メトリクス
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(registry)

	// 3. 永続化と監査ログ
	store := newSnapshotRepo(cfg, res)
	auditLog, err := newAuditLog(ctx, cfg, res, log, collector)
	if err != nil {
		ln.Close()
		return fmt.Errorf("failed to set up audit log: %w", err)
	}

	state, err := loadState(ctx, cfg, store, log)
	if err != nil {
		auditLog.Close(context.Background())
		ln.Close()
		return err
	}

	// 4. エンジンと配信
	hub := transport.NewHub(log, collector)
	engine := auction.New(state, auction.Options{
		Store:       store,
		Audit:       auditLog,
		Broadcaster: hub,
		Metrics:     collector,
		Logger:      log,
	})

	limiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		Rate:            rate.Limit(cfg.RateLimitIntents),
		Burst:           cfg.RateLimitIntents,
		CleanupInterval: 5 * time.Minute,
	})
	defer limiter.Stop()

	resolver := middleware.AddrResolver{
		AllowOverride:     cfg.AllowIdentityOverride,
		TrustForwardedFor: cfg.TrustForwardedFor,
	}
	wsServer := transport.NewServer(engine, hub, transport.ServerOptions{
		Resolver: resolver,
		Limiter:  limiter,
		Logger:   log,
		Metrics:  collector,
	})

	// 5. ルーター
	router := handler.NewRouter(&handler.RouterDeps{
		Resolver:          resolver,
		RateLimiter:       limiter,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		Auction:           engine,
		WebSocket:         wsServer,
		HealthChecker:     res.healthChecker(),
		MetricsHandler:    metrics.Handler(registry),
		StaticDir:         cfg.StaticDir,
		Logger:            log,
	})

	// 6. 締切スケジューラ
	var wg sync.WaitGroup
	schedCtx, cancelSched := context.WithCancel(ctx)
	defer cancelSched()
	scheduler := closer.NewScheduler(engine, log)
	wg.Add(1)
	go func() {
		defer wg.Done()
		scheduler.Start(schedCtx, cfg.CloseInterval)
	}()

	// 7. HTTPサーバーの起動
	// WebSocketは長時間接続のため、WriteTimeoutは設定しない
	server := &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("auction server starting",
			slog.String("addr", ln.Addr().String()),
			slog.Int("max_connections", cfg.MaxConnections),
		)
		errCh <- server.Serve(netutil.LimitListener(ln, cfg.MaxConnections))
	}()

	var serveErr error
	select {
	case <-ctx.Done():
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			serveErr = fmt.Errorf("server listen error: %w", err)
		}
	}

	log.Info("shutting down auction server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil && serveErr == nil {
		serveErr = fmt.Errorf("server shutdown failed: %w", err)
	}

	hub.CloseAll()
	cancelSched()
	wg.Wait()
	engine.Close()
	if err := auditLog.Close(shutdownCtx); err != nil {
		log.Warn("未配送の監査イベントを破棄しました", slog.String("error", err.Error()))
	}

	log.Info("auction server stopped gracefully")
	return serveErr
}

// runMigrate はデータベースマイグレーションを実行する。
func runMigrate(cfg *config.Config, dir MigrateDirection, log *slog.Logger) error {
	if cfg.DatabaseURL == "" {
		return errors.New("DATABASE_URL is required for migrate")
	}

	log.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
		slog.String("direction", string(dir)),
	)

	if dir == MigrateDown {
		if err := database.RollbackMigrations(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("migration rollback failed: %w", err)
		}
		log.Info("database migration rolled back")
		return nil
	}

	version, err := database.RunMigrations(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	log.Info("database migrations completed successfully", slog.Uint64("version", uint64(version)))
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
