package audit

import (
	"context"
	"fmt"
	"time"
)

const (
	// defaultRetryAttempts はネットワーク越しのSinkへの追記の最大試行回数。
	defaultRetryAttempts = 3
	// defaultInitialBackoff は再試行の初回遅延。
	defaultInitialBackoff = 50 * time.Millisecond
	// defaultMaxBackoff は再試行の最大遅延。
	defaultMaxBackoff = time.Second
)

// RetryPolicy は追記失敗時の再試行方針。
type RetryPolicy struct {
	Attempts       int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultRetryPolicy はネットワーク越しのSink向けの既定の再試行方針を返す。
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Attempts:       defaultRetryAttempts,
		InitialBackoff: defaultInitialBackoff,
		MaxBackoff:     defaultMaxBackoff,
	}
}

// Backoff は失敗回数に基づく指数バックオフの遅延を返す。
// 初回はInitialBackoff、以降2倍ずつ増加し、MaxBackoffで頭打ちになる。
func (p RetryPolicy) Backoff(failures int) time.Duration {
	delay := p.InitialBackoff
	for i := 1; i < failures; i++ {
		delay *= 2
		if delay > p.MaxBackoff {
			return p.MaxBackoff
		}
	}
	return delay
}

// retryingSink は一時的な失敗を指数バックオフで再試行するSink。
type retryingSink struct {
	sink   Sink
	policy RetryPolicy
	sleep  func(ctx context.Context, d time.Duration) error
}

// WithRetry はsinkを再試行付きのSinkで包む。
// 再試行はctxの期限内でのみ行い、期限切れの場合は最後のエラーを返す。
func WithRetry(sink Sink, policy RetryPolicy) Sink {
	if policy.Attempts < 1 {
		policy.Attempts = 1
	}
	return &retryingSink{sink: sink, policy: policy, sleep: sleepContext}
}

// Append はSinkインターフェースを実装する。
func (s *retryingSink) Append(ctx context.Context, rec Record) error {
	var err error
	for attempt := 1; attempt <= s.policy.Attempts; attempt++ {
		if err = s.sink.Append(ctx, rec); err == nil {
			return nil
		}
		if attempt == s.policy.Attempts {
			break
		}
		if serr := s.sleep(ctx, s.policy.Backoff(attempt)); serr != nil {
			break
		}
	}
	return fmt.Errorf("giving up after retries: %w", err)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
