package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// ChannelPrefix はRedis Pub/Subのチャンネル接頭辞。
const ChannelPrefix = "auction_events"

// redisPublisher はRedisLogが利用するRedisの操作。
type redisPublisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// RedisLog は監査レコードをRedis Pub/Subへ発行するSink。
// 購読者がいない場合メッセージは失われるため、外部への一方向のミラーとしてのみ使う。
type RedisLog struct {
	client redisPublisher
}

// NewRedisClient は接続確認済みのRedisクライアントを返す。
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return rdb, nil
}

// NewRedisLog はRedisLogを返す。
func NewRedisLog(client *redis.Client) *RedisLog {
	return &RedisLog{client: client}
}

// Append はSinkインターフェースを実装する。
func (l *RedisLog) Append(ctx context.Context, rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal audit record: %w", err)
	}
	if err := l.client.Publish(ctx, Channel(rec), data).Err(); err != nil {
		return fmt.Errorf("failed to publish audit record: %w", err)
	}
	return nil
}

// Channel はレコードの発行先チャンネルを返す。
func Channel(rec Record) string {
	return ChannelPrefix + ":" + subjectSuffix(rec)
}
