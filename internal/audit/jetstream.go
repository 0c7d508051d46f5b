package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

const (
	// StreamName は監査イベントを保持するJetStreamストリーム名。
	StreamName = "AUCTION_EVENTS"
	// SubjectPrefix は監査イベントのサブジェクト接頭辞。
	SubjectPrefix = "auction.events"
)

var subjectToken = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// jsPublisher はJetStreamLogが利用するJetStreamの操作。
type jsPublisher interface {
	Publish(ctx context.Context, subject string, data []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

// JetStreamLog は監査レコードをNATS JetStreamへ発行するSink。
// サブジェクトは auction.events.<商品ID> で、管理操作は auction.events.admin となる。
type JetStreamLog struct {
	js jsPublisher
}

// NewJetStreamLog はストリームを作成（または更新）してJetStreamLogを返す。
func NewJetStreamLog(ctx context.Context, nc *nats.Conn) (*JetStreamLog, error) {
	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Description: "Append-only auction audit events",
		Subjects:    []string{SubjectPrefix + ".>"},
		Storage:     jetstream.FileStorage,
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      30 * 24 * time.Hour,
		Replicas:    1,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create/update stream: %w", err)
	}

	return &JetStreamLog{js: js}, nil
}

// Append はSinkインターフェースを実装する。
// レコードIDをメッセージIDとして使い、再送時の重複を抑止する。
func (l *JetStreamLog) Append(ctx context.Context, rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal audit record: %w", err)
	}
	if _, err := l.js.Publish(ctx, Subject(rec), data, jetstream.WithMsgID(rec.ID.String())); err != nil {
		return fmt.Errorf("failed to publish audit record: %w", err)
	}
	return nil
}

// Subject はレコードの発行先サブジェクトを返す。
func Subject(rec Record) string {
	return SubjectPrefix + "." + subjectSuffix(rec)
}

func subjectSuffix(rec Record) string {
	if rec.ItemID == "" || rec.Kind == KindAdminSettings {
		return "admin"
	}
	return "item-" + subjectToken.ReplaceAllString(rec.ItemID, "_")
}
