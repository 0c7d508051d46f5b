// Package closer は締切を迎えた商品を定期的にクローズするスイープ処理を提供する。
package closer

import (
	"context"
	"log/slog"
	"time"
)

// ExpiryCloser は締切処理の実行インターフェース。
type ExpiryCloser interface {
	// CloseExpired はnow時点で締切を迎えた商品をクローズし、件数を返す。
	CloseExpired(now time.Time) int
}

// Scheduler は一定間隔で締切スイープを実行する。
type Scheduler struct {
	engine ExpiryCloser
	logger *slog.Logger
	now    func() time.Time
}

// NewScheduler はSchedulerの新しいインスタンスを生成する。
func NewScheduler(engine ExpiryCloser, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		engine: engine,
		logger: logger,
		now:    time.Now,
	}
}

// Start は指定間隔のティッカーでスイープを起動する。
// コンテキストがキャンセルされるまで実行を継続する。
func (s *Scheduler) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("締切スケジューラを開始しました",
		slog.Duration("interval", interval),
	)

	// 起動直後に1回実行（停止中に締切を迎えた商品を即座にクローズする）
	s.RunOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("締切スケジューラを停止しました")
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce はスイープを1回実行し、クローズした件数を返す。
func (s *Scheduler) RunOnce(ctx context.Context) int {
	if ctx.Err() != nil {
		return 0
	}
	start := time.Now()
	n := s.engine.CloseExpired(s.now())
	if n > 0 {
		s.logger.Info("締切スイープが完了しました",
			slog.Int("closed_count", n),
			slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
		)
	}
	return n
}
