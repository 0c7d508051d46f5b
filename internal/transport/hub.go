// Package transport はWebSocketによる観測者との双方向通信を提供する。
package transport

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/hitoshi/livebid/internal/auction"
	"github.com/hitoshi/livebid/internal/model"
)

// Metrics はトランスポート層で記録するメトリクスのインターフェース。
type Metrics interface {
	ConnectionOpened()
	ConnectionClosed()
	RecordIntent(intentType string)
	RecordRateLimited()
	RecordSlowClientDropped()
}

// Hub は接続中のクライアントを管理し、イベントを全員に配信する。
// 配信はベストエフォートで、送信バッファが溢れたクライアントは切断する。
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}

	logger  *slog.Logger
	metrics Metrics
}

// コンパイル時にインターフェースの実装を検証する。
var _ auction.Broadcaster = (*Hub)(nil)

// NewHub は新しいHubを生成する。
func NewHub(logger *slog.Logger, metrics Metrics) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &Hub{
		clients: make(map[*Client]struct{}),
		logger:  logger,
		metrics: metrics,
	}
}

// Broadcast はイベントを全クライアントへ配信する。
// エンジンのコミッターから呼ばれるため、ブロックしてはならない。
func (h *Hub) Broadcast(ev model.Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error("イベントのエンコードに失敗しました",
			slog.String("type", string(ev.Type)),
			slog.String("error", err.Error()),
		)
		return
	}

	var slow []*Client
	h.mu.RLock()
	for c := range h.clients {
		if !c.enqueue(payload) {
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		if h.remove(c) {
			h.metrics.RecordSlowClientDropped()
			h.logger.Warn("送信が追いつかないクライアントを切断しました",
				slog.String("client_id", c.ID.String()),
				slog.String("identity", c.Identity),
			)
		}
	}
}

// Len は接続中のクライアント数を返す。
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// CloseAll はすべてのクライアントを切断する。シャットダウン時に使用する。
func (h *Hub) CloseAll() {
	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[*Client]struct{})
	h.mu.Unlock()

	for c := range clients {
		c.shutdown()
		h.metrics.ConnectionClosed()
	}
}

// register はクライアントを登録し、最初のフレームを配信より先に積む。
func (h *Hub) register(c *Client, first []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if first != nil {
		c.enqueue(first)
	}
	h.clients[c] = struct{}{}
	h.metrics.ConnectionOpened()
}

// remove はクライアントを登録解除して送信キューを閉じる。
// 既に解除済みの場合はfalseを返す。
func (h *Hub) remove(c *Client) bool {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	h.mu.Unlock()

	if ok {
		c.shutdown()
		h.metrics.ConnectionClosed()
	}
	return ok
}

type noopMetrics struct{}

func (noopMetrics) ConnectionOpened()        {}
func (noopMetrics) ConnectionClosed()        {}
func (noopMetrics) RecordIntent(string)      {}
func (noopMetrics) RecordRateLimited()       {}
func (noopMetrics) RecordSlowClientDropped() {}
