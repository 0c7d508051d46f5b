package transport

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hitoshi/livebid/internal/auction"
	"github.com/hitoshi/livebid/internal/middleware"
	"github.com/hitoshi/livebid/internal/model"
)

// Engine はトランスポート層が利用するオークションエンジンの操作。
type Engine interface {
	SubmitBid(identityKey, itemID string, amount float64, now time.Time) (*auction.BidResult, error)
	SetGlobalTimes(actor string, t auction.GlobalTimes, now time.Time) error
	SetItemTimes(actor, itemID string, t auction.ItemTimes, now time.Time) error
	State(now time.Time) model.StateView
	Hello(identityKey string) model.HelloView
}

// IntentLimiter は識別キーごとのインテント流量を制限する。
type IntentLimiter interface {
	Allow(key string) bool
}

// コンパイル時にインターフェースの実装を検証する。
var (
	_ Engine        = (*auction.Engine)(nil)
	_ IntentLimiter = (*middleware.RateLimiter)(nil)
)

// ServerOptions はServerの依存関係を保持する。
type ServerOptions struct {
	Resolver middleware.IdentityResolver
	Limiter  IntentLimiter
	Logger   *slog.Logger
	Metrics  Metrics
	// CheckOrigin はnilの場合すべてのオリジンを許可する。
	CheckOrigin func(r *http.Request) bool
	// Now はテストで時刻を差し替えるために使用する。
	Now func() time.Time
}

// Server はWebSocket接続を受け付け、インテントをエンジンへ中継する。
type Server struct {
	engine   Engine
	hub      *Hub
	resolver middleware.IdentityResolver
	limiter  IntentLimiter
	logger   *slog.Logger
	metrics  Metrics
	upgrader websocket.Upgrader
	now      func() time.Time
}

// NewServer は新しいServerを生成する。
func NewServer(engine Engine, hub *Hub, opts ServerOptions) *Server {
	s := &Server{
		engine:   engine,
		hub:      hub,
		resolver: opts.Resolver,
		limiter:  opts.Limiter,
		logger:   opts.Logger,
		metrics:  opts.Metrics,
		now:      opts.Now,
	}
	if s.resolver == nil {
		s.resolver = middleware.AddrResolver{}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.metrics == nil {
		s.metrics = noopMetrics{}
	}
	if s.now == nil {
		s.now = time.Now
	}
	checkOrigin := opts.CheckOrigin
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     checkOrigin,
	}
	return s
}

// ServeHTTP はHTTP接続をWebSocketにアップグレードする。
// 接続直後にhelloとstateを送り、以降はインテントを逐次処理する。
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		identity = s.resolver.Resolve(r)
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("WebSocketへのアップグレードに失敗しました",
			slog.String("identity", identity),
			slog.String("error", err.Error()),
		)
		return
	}

	c := newClient(conn, identity)
	go c.writePump(s.logger)

	hello, err := json.Marshal(model.Event{Type: model.EventHello, Data: s.engine.Hello(identity)})
	if err != nil {
		s.logger.Error("helloのエンコードに失敗しました", slog.String("error", err.Error()))
	}
	s.hub.register(c, hello)
	s.reply(c, model.Event{Type: model.EventState, Data: s.engine.State(s.now())})

	s.logger.Info("クライアントが接続しました",
		slog.String("client_id", c.ID.String()),
		slog.String("identity", identity),
	)

	c.readPump(s.logger, func(raw []byte) { s.handleFrame(c, raw) })

	s.hub.remove(c)
	s.logger.Info("クライアントが切断しました",
		slog.String("client_id", c.ID.String()),
		slog.String("identity", identity),
	)
}

// handleFrame は1つの受信フレームを処理する。
// 拒否はすべて送信元にerror-msgとして返し、接続は維持する。
func (s *Server) handleFrame(c *Client, raw []byte) {
	env, err := decodeEnvelope(raw)
	if err != nil {
		s.replyError(c, err)
		return
	}
	s.metrics.RecordIntent(env.Type)

	if s.limiter != nil && !s.limiter.Allow(c.Identity) {
		s.metrics.RecordRateLimited()
		s.replyError(c, newRateLimitedError())
		return
	}

	switch env.Type {
	case IntentBid:
		err = s.handleBid(c, env.Data)
	case IntentAdminSetTimes:
		err = s.handleSetTimes(c, env.Data)
	case IntentAdminSetPlayerTime:
		err = s.handleSetPlayerTimes(c, env.Data)
	default:
		err = newUnknownIntentError(env.Type)
	}
	if err != nil {
		s.replyError(c, err)
	}
}

func (s *Server) handleBid(c *Client, data json.RawMessage) error {
	var in bidIntent
	if err := decodeData(data, &in); err != nil {
		return err
	}

	res, err := s.engine.SubmitBid(c.Identity, string(in.PlayerID), in.Amount.float(nan()), s.now())
	if err != nil {
		return err
	}

	s.reply(c, model.Event{Type: model.EventBidOK, Data: model.BidAck{
		PlayerID:      res.Item.ID,
		PlayerName:    res.Item.Name,
		Amount:        res.Item.CurrentBid,
		YourRemaining: res.Remaining,
	}})
	return nil
}

func (s *Server) handleSetTimes(c *Client, data json.RawMessage) error {
	var in setTimesIntent
	if err := decodeData(data, &in); err != nil {
		return err
	}
	t, err := in.toGlobalTimes()
	if err != nil {
		return err
	}
	if err := s.engine.SetGlobalTimes(c.Identity, t, s.now()); err != nil {
		return err
	}
	s.reply(c, model.Event{Type: model.EventAdminOK, Data: map[string]string{"action": IntentAdminSetTimes}})
	return nil
}

func (s *Server) handleSetPlayerTimes(c *Client, data json.RawMessage) error {
	var in setPlayerTimesIntent
	if err := decodeData(data, &in); err != nil {
		return err
	}
	t, err := in.toItemTimes()
	if err != nil {
		return err
	}
	if err := s.engine.SetItemTimes(c.Identity, string(in.PlayerID), t, s.now()); err != nil {
		return err
	}
	s.reply(c, model.Event{Type: model.EventAdminOK, Data: map[string]string{
		"action":   IntentAdminSetPlayerTime,
		"playerId": string(in.PlayerID),
	}})
	return nil
}

// reply は送信元のクライアントにのみイベントを送る。
func (s *Server) reply(c *Client, ev model.Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		s.logger.Error("イベントのエンコードに失敗しました",
			slog.String("type", string(ev.Type)),
			slog.String("error", err.Error()),
		)
		return
	}
	if !c.enqueue(payload) && s.hub.remove(c) {
		s.metrics.RecordSlowClientDropped()
	}
}

// replyError は拒否理由をerror-msgとして送信元に返す。
func (s *Server) replyError(c *Client, err error) {
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		s.logger.Error("インテントの処理に失敗しました",
			slog.String("identity", c.Identity),
			slog.String("error", err.Error()),
		)
		apiErr = &model.APIError{
			Code:     "INTERNAL_ERROR",
			Message:  "内部エラーが発生しました。",
			Category: "system",
			Action:   "しばらく待ってから再度お試しください。",
		}
	}
	s.logger.Debug("インテントを拒否しました",
		slog.String("identity", c.Identity),
		slog.String("code", apiErr.Code),
	)
	s.reply(c, model.Event{Type: model.EventErrorMsg, Data: middleware.NewErrorResponseBody(apiErr)})
}
