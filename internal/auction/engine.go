package auction

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/hitoshi/livebid/internal/audit"
	"github.com/hitoshi/livebid/internal/model"
)

const (
	defaultIOTimeout  = 5 * time.Second
	defaultQueueDepth = 256
)

// SnapshotStore はスナップショット全体を上書き保存する永続化ストア。
type SnapshotStore interface {
	Save(ctx context.Context, data []byte) error
}

// AuditLog は追記専用の監査ログ。
type AuditLog interface {
	Append(ctx context.Context, rec audit.Record) error
}

// Broadcaster は接続中の全観測者へイベントを配信する。配信はベストエフォート。
type Broadcaster interface {
	Broadcast(ev model.Event)
}

// MetricsCollector はエンジンのメトリクス記録インターフェース。
type MetricsCollector interface {
	RecordBidAccepted()
	RecordBidRejected(reason string)
	RecordItemsClosed(n int)
	RecordPersistFailure()
	RecordAuditFailure()
	ObserveCommit(d time.Duration)
}

// Options はEngineの協調者。nilのフィールドは何もしない実装で置き換えられる。
type Options struct {
	Store       SnapshotStore
	Audit       AuditLog
	Broadcaster Broadcaster
	Metrics     MetricsCollector
	Logger      *slog.Logger
	// IOTimeout はスナップショット保存と監査レコード1件ごとのタイムアウト。0の場合は5秒。
	IOTimeout time.Duration
	// QueueDepth はコミットキューの長さ。0の場合は256。
	QueueDepth int
}

// BidResult は受理された入札の結果。
type BidResult struct {
	Item      model.Item
	Remaining int64
}

// commit は1回の状態遷移に伴う副作用。
// スナップショットはロック中にシリアライズ済みで、コミッターが順番に適用する。
type commit struct {
	snapshot []byte
	records  []audit.Record
	events   []model.Event
	state    model.StateView
	enqueued time.Time
	done     chan struct{}
}

// Engine はオークション状態の唯一の所有者。
// すべての読み取りと変更は1つのミューテックスの下で直列に実行される。
// 変更はスナップショット保存 → 監査ログ追記 → 配信の順でコミッターにより適用され、
// 変更系の呼び出しは自身のコミットが完了してから戻る。
type Engine struct {
	mu     sync.Mutex
	state  *State
	closed bool

	store       SnapshotStore
	audit       AuditLog
	broadcaster Broadcaster
	metrics     MetricsCollector
	logger      *slog.Logger
	ioTimeout   time.Duration

	queue chan *commit
	wg    sync.WaitGroup
}

// New はEngineを生成し、コミッターを起動する。Closeで停止する。
func New(state *State, opts Options) *Engine {
	e := &Engine{
		state:       state,
		store:       opts.Store,
		audit:       opts.Audit,
		broadcaster: opts.Broadcaster,
		metrics:     opts.Metrics,
		logger:      opts.Logger,
		ioTimeout:   opts.IOTimeout,
	}
	if e.store == nil {
		e.store = noopStore{}
	}
	if e.audit == nil {
		e.audit = noopAudit{}
	}
	if e.broadcaster == nil {
		e.broadcaster = noopBroadcaster{}
	}
	if e.metrics == nil {
		e.metrics = noopMetrics{}
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	if e.ioTimeout <= 0 {
		e.ioTimeout = defaultIOTimeout
	}
	depth := opts.QueueDepth
	if depth <= 0 {
		depth = defaultQueueDepth
	}
	e.queue = make(chan *commit, depth)

	e.wg.Add(1)
	go e.runCommitter()
	return e
}

// SubmitBid は入札を検証し、受理された場合は状態を更新する。
// 締切を過ぎた商品への入札は、その商品をクローズしたうえでAuctionClosedを返す。
func (e *Engine) SubmitBid(identityKey, itemID string, amount float64, now time.Time) (*BidResult, error) {
	e.mu.Lock()
	d, err := e.state.validateBid(identityKey, itemID, amount, now)
	if err != nil {
		var c *commit
		if d.expired {
			if rec, ok := e.state.tryClose(d.item, now); ok {
				c = e.enqueueLocked(now, []audit.Record{rec})
			}
		}
		e.mu.Unlock()
		e.await(c)
		if c != nil {
			e.metrics.RecordItemsClosed(1)
		}
		e.metrics.RecordBidRejected(rejectReason(err))
		return nil, err
	}

	bid := e.state.applyBid(d, now)
	result := &BidResult{
		Item:      d.item.Clone(),
		Remaining: e.state.remaining(identityKey),
	}
	c := e.enqueueLocked(now, []audit.Record{audit.NewBidRecord(d.item, bid)}, model.Event{
		Type: model.EventBid,
		Data: model.BidEvent{
			PlayerID:   d.item.ID,
			PlayerName: d.item.Name,
			Amount:     bid.Amount,
			BidderIP:   bid.BidderID,
			BidderName: bid.BidderName,
			Timestamp:  bid.Timestamp,
		},
	})
	e.mu.Unlock()

	e.await(c)
	e.metrics.RecordBidAccepted()
	return result, nil
}

// SetGlobalTimes は全体の時刻設定を置き換える。管理者のみ実行できる。
func (e *Engine) SetGlobalTimes(actor string, t GlobalTimes, now time.Time) error {
	e.mu.Lock()
	if err := e.state.applyGlobalTimes(actor, t); err != nil {
		e.mu.Unlock()
		return err
	}
	ext := e.state.settings.ExtendOnBidSeconds
	c := e.enqueueLocked(now, []audit.Record{audit.NewAdminSettingsRecord(actor, e.state.settings, now)})
	e.mu.Unlock()

	e.await(c)
	e.logger.Info("オークション設定を更新しました",
		slog.String("admin", actor),
		slog.Int64("extend_on_bid_seconds", ext),
	)
	return nil
}

// SetItemTimes は商品ごとの締切と延長設定を置き換える。管理者のみ実行できる。
func (e *Engine) SetItemTimes(actor, itemID string, t ItemTimes, now time.Time) error {
	e.mu.Lock()
	it, err := e.state.applyItemTimes(actor, itemID, t)
	if err != nil {
		e.mu.Unlock()
		return err
	}
	c := e.enqueueLocked(now, []audit.Record{audit.NewAdminItemTimesRecord(actor, it, now)})
	e.mu.Unlock()

	e.await(c)
	e.logger.Info("商品の時刻設定を更新しました",
		slog.String("admin", actor),
		slog.String("item_id", itemID),
	)
	return nil
}

// CloseExpired は締切を迎えたすべてのオープン中の商品をクローズし、クローズした件数を返す。
// 1件以上クローズした場合でも、スナップショット保存と状態配信はそれぞれ1回にまとめられる。
func (e *Engine) CloseExpired(now time.Time) int {
	e.mu.Lock()
	records := e.state.closeExpired(now)
	if len(records) == 0 {
		e.mu.Unlock()
		return 0
	}
	c := e.enqueueLocked(now, records)
	e.mu.Unlock()

	e.await(c)
	e.metrics.RecordItemsClosed(len(records))
	for _, rec := range records {
		e.logger.Info("商品をクローズしました",
			slog.String("item_id", rec.ItemID),
			slog.String("winner", rec.WinnerKey),
			slog.Int64("final_amount", rec.FinalAmount),
		)
	}
	return len(records)
}

// State は全観測者向けの状態ビューを返す。
func (e *Engine) State(now time.Time) model.StateView {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.project(now)
}

// Hello は接続者本人向けのビューを返す。
func (e *Engine) Hello(identityKey string) model.HelloView {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.hello(identityKey)
}

// Committed は参加者の拘束中クレジットを返す。
func (e *Engine) Committed(identityKey string) int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.committed(identityKey)
}

// Remaining は参加者の残りクレジットを返す。
func (e *Engine) Remaining(identityKey string) int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.remaining(identityKey)
}

// Item は商品のコピーを返す。
func (e *Engine) Item(id string) (model.Item, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	it, ok := e.state.items[id]
	if !ok {
		return model.Item{}, false
	}
	return it.Clone(), true
}

// Settings は全体設定のコピーを返す。
func (e *Engine) Settings() model.AuctionSettings {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Settings()
}

// Snapshot は状態全体のディープコピーを返す。
func (e *Engine) Snapshot() *model.Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Snapshot()
}

// Close はキューに残ったコミットを適用してからコミッターを停止する。
// Close後の変更はロックを保持したまま同期的に適用される。
func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	close(e.queue)
	e.mu.Unlock()
	e.wg.Wait()
}

// enqueueLocked はロック中に状態をシリアライズしてコミットをキューへ積む。
// 状態配信はeventsの後に必ず付与される。
func (e *Engine) enqueueLocked(now time.Time, records []audit.Record, events ...model.Event) *commit {
	c := &commit{
		records:  records,
		events:   events,
		state:    e.state.project(now),
		enqueued: time.Now(),
		done:     make(chan struct{}),
	}
	data, err := json.MarshalIndent(e.state.Snapshot(), "", "  ")
	if err != nil {
		e.logger.Warn("スナップショットのシリアライズに失敗しました（縮退運転）",
			slog.String("error", err.Error()),
		)
	} else {
		c.snapshot = data
	}

	if e.closed {
		// コミッター停止後はロック中に適用し、変更順とスナップショットの書き込み順を一致させる。
		e.apply(c)
		return c
	}
	e.queue <- c
	return c
}

// await はコミットの完了を待つ。
func (e *Engine) await(c *commit) {
	if c == nil {
		return
	}
	<-c.done
}

func (e *Engine) runCommitter() {
	defer e.wg.Done()
	for c := range e.queue {
		e.apply(c)
	}
}

// apply はコミットの副作用を順に実行する。
// スナップショット保存が先で、監査ログ追記はその後に行う。
// 保存と追記はそれぞれ独立したタイムアウトを持つ。
// I/Oの失敗は縮退運転として警告ログとメトリクスに記録し、状態遷移は取り消さない。
func (e *Engine) apply(c *commit) {
	defer close(c.done)

	e.save(c.snapshot)
	for _, rec := range c.records {
		e.appendAudit(rec)
	}

	for _, ev := range c.events {
		e.broadcaster.Broadcast(ev)
	}
	e.broadcaster.Broadcast(model.Event{Type: model.EventState, Data: c.state})

	e.metrics.ObserveCommit(time.Since(c.enqueued))
}

func (e *Engine) save(snapshot []byte) {
	if snapshot == nil {
		e.metrics.RecordPersistFailure()
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), e.ioTimeout)
	defer cancel()
	if err := e.store.Save(ctx, snapshot); err != nil {
		e.metrics.RecordPersistFailure()
		e.logger.Warn("スナップショットの保存に失敗しました（縮退運転）",
			slog.String("error", err.Error()),
		)
	}
}

func (e *Engine) appendAudit(rec audit.Record) {
	ctx, cancel := context.WithTimeout(context.Background(), e.ioTimeout)
	defer cancel()
	if err := e.audit.Append(ctx, rec); err != nil {
		e.metrics.RecordAuditFailure()
		e.logger.Warn("監査ログの追記に失敗しました（縮退運転）",
			slog.String("event", string(rec.Kind)),
			slog.String("item_id", rec.ItemID),
			slog.String("error", err.Error()),
		)
	}
}

// rejectReason はメトリクスのラベルに使う拒否理由を返す。
func rejectReason(err error) string {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		return strings.ToLower(apiErr.Code)
	}
	return "internal"
}

type noopStore struct{}

func (noopStore) Save(context.Context, []byte) error { return nil }

type noopAudit struct{}

func (noopAudit) Append(context.Context, audit.Record) error { return nil }

type noopBroadcaster struct{}

func (noopBroadcaster) Broadcast(model.Event) {}

type noopMetrics struct{}

func (noopMetrics) RecordBidAccepted()          {}
func (noopMetrics) RecordBidRejected(string)    {}
func (noopMetrics) RecordItemsClosed(int)       {}
func (noopMetrics) RecordPersistFailure()       {}
func (noopMetrics) RecordAuditFailure()         {}
func (noopMetrics) ObserveCommit(time.Duration) {}
