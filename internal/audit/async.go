package audit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

const (
	// defaultAsyncDepth は非同期Sinkのキュー長。
	defaultAsyncDepth = 1024
	// defaultAsyncTimeout は非同期Sinkが1レコードの配送に使う時間の上限。
	defaultAsyncTimeout = 5 * time.Second
)

// ErrQueueFull は非同期Sinkのキューが満杯でレコードを破棄したことを表す。
var ErrQueueFull = errors.New("audit queue full")

// AsyncOptions はAsyncSinkの設定。
type AsyncOptions struct {
	// Depth はキュー長。0の場合は1024。
	Depth int
	// Timeout は1レコードの配送タイムアウト。0の場合は5秒。
	Timeout time.Duration
	Logger  *slog.Logger
	// OnDrop はキュー満杯でレコードを破棄したときに呼ばれる。
	OnDrop func()
	// OnFailure は配送に失敗したときに呼ばれる。
	OnFailure func()
}

// AsyncSink はレコードを有界キューに積み、専用のゴルーチンから配下のSinkへ配送する。
// Appendはブロックしない。キューが満杯の場合はレコードを破棄してErrQueueFullを返す。
type AsyncSink struct {
	name    string
	sink    Sink
	timeout time.Duration
	logger  *slog.Logger
	onDrop  func()
	onFail  func()

	mu     sync.RWMutex
	closed bool
	queue  chan Record
	done   chan struct{}
}

// NewAsync はsinkを非同期配送で包み、配送ゴルーチンを起動する。Closeで停止する。
func NewAsync(name string, sink Sink, opts AsyncOptions) *AsyncSink {
	depth := opts.Depth
	if depth <= 0 {
		depth = defaultAsyncDepth
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultAsyncTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &AsyncSink{
		name:    name,
		sink:    sink,
		timeout: timeout,
		logger:  logger,
		onDrop:  opts.OnDrop,
		onFail:  opts.OnFailure,
		queue:   make(chan Record, depth),
		done:    make(chan struct{}),
	}
	go s.run()
	return s
}

// Append はSinkインターフェースを実装する。
func (s *AsyncSink) Append(_ context.Context, rec Record) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return fmt.Errorf("%s: sink closed", s.name)
	}
	select {
	case s.queue <- rec:
		return nil
	default:
		if s.onDrop != nil {
			s.onDrop()
		}
		return fmt.Errorf("%s: %w", s.name, ErrQueueFull)
	}
}

// Pending はキューに残っているレコード数を返す。
func (s *AsyncSink) Pending() int {
	return len(s.queue)
}

// Close は新規の受け付けを止め、キューに残ったレコードを配送してから戻る。
// ctxが先に終了した場合は残りを待たずにctx.Err()を返す。
func (s *AsyncSink) Close(ctx context.Context) error {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.queue)
	}
	s.mu.Unlock()

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *AsyncSink) run() {
	defer close(s.done)
	for rec := range s.queue {
		s.deliver(rec)
	}
}

func (s *AsyncSink) deliver(rec Record) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if err := s.sink.Append(ctx, rec); err != nil {
		if s.onFail != nil {
			s.onFail()
		}
		s.logger.Warn("監査イベントの配送に失敗しました（縮退運転）",
			slog.String("sink", s.name),
			slog.String("event", string(rec.Kind)),
			slog.String("item_id", rec.ItemID),
			slog.String("error", err.Error()),
		)
	}
}
