package transport

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// writeWait は1フレームの書き込み期限。
	writeWait = 10 * time.Second
	// pongWait はpong受信の期限。
	pongWait = 60 * time.Second
	// pingPeriod はpingの送信間隔。pongWaitより短くなければならない。
	pingPeriod = (pongWait * 9) / 10
	// maxMessageSize は受信フレームの最大サイズ。
	maxMessageSize = 4096
	// sendBufferSize はクライアントごとの送信バッファ長。
	sendBufferSize = 256
)

// Client は1本のWebSocket接続を表す。
type Client struct {
	ID       uuid.UUID
	Identity string

	conn *websocket.Conn

	mu     sync.Mutex
	send   chan []byte
	closed bool
}

func newClient(conn *websocket.Conn, identity string) *Client {
	return &Client{
		ID:       uuid.New(),
		Identity: identity,
		conn:     conn,
		send:     make(chan []byte, sendBufferSize),
	}
}

// enqueue はフレームを送信キューに積む。キューが満杯または閉じている場合はfalseを返す。
func (c *Client) enqueue(payload []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// shutdown は送信キューを閉じる。writePumpがクローズフレームを送って接続を終了する。
func (c *Client) shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// writePump は送信キューのフレームを接続に書き出す。
// 接続ごとに1つのゴルーチンで実行する。
func (c *Client) writePump(logger *slog.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				logger.Debug("フレームの書き込みに失敗しました",
					slog.String("client_id", c.ID.String()),
					slog.String("error", err.Error()),
				)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump は受信フレームを読み取り、handleに渡す。
// 接続が切れた時点で戻る。
func (c *Client) readPump(logger *slog.Logger, handle func([]byte)) {
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				logger.Warn("WebSocket接続が異常終了しました",
					slog.String("client_id", c.ID.String()),
					slog.String("error", err.Error()),
				)
			}
			return
		}
		handle(message)
	}
}
