// Package audit は追記専用の監査ログ（入札・締切・管理操作）を提供する。
// エンジンは記録を書き換えたり圧縮したりしない。
package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/livebid/internal/model"
)

// Kind は監査レコードの種別。
type Kind string

const (
	KindBid            Kind = "bid"
	KindClose          Kind = "close"
	KindAdminSettings  Kind = "admin_settings"
	KindAdminItemTimes Kind = "admin_item_times"
)

// Record は1件の監査レコード。
// 種別ごとに使用するフィールドが異なり、未使用のフィールドは出力されない。
type Record struct {
	ID        uuid.UUID `json:"id"`
	Kind      Kind      `json:"event"`
	Timestamp time.Time `json:"ts_iso"`

	ItemID   string `json:"player_id,omitempty"`
	ItemName string `json:"player_name,omitempty"`
	ItemTeam string `json:"player_team,omitempty"`

	// bid
	BidderKey  string `json:"bidder_ip,omitempty"`
	BidderName string `json:"bidder_name,omitempty"`
	Amount     int64  `json:"amount,omitempty"`
	CurrentBid int64  `json:"currentBid,omitempty"`

	// close
	WinnerKey   string `json:"winner_ip,omitempty"`
	WinnerName  string `json:"winner_name,omitempty"`
	FinalAmount int64  `json:"final_amount,omitempty"`

	// admin_settings / admin_item_times
	AdminKey           string     `json:"admin_ip,omitempty"`
	StartAt            *time.Time `json:"startAt,omitempty"`
	EndAt              *time.Time `json:"endAt,omitempty"`
	ExtendOnBidSeconds *int64     `json:"extendOnBidSeconds,omitempty"`
}

// MarshalJSON はエポックミリ秒の"ts"を付与してエンコードする。
func (r Record) MarshalJSON() ([]byte, error) {
	type alias Record
	return json.Marshal(struct {
		alias
		TS int64 `json:"ts"`
	}{alias: alias(r), TS: r.Timestamp.UnixMilli()})
}

// NewBidRecord は受理された入札の監査レコードを生成する。
func NewBidRecord(item *model.Item, bid model.BidRecord) Record {
	return Record{
		ID:         uuid.New(),
		Kind:       KindBid,
		Timestamp:  bid.Timestamp,
		ItemID:     item.ID,
		ItemName:   item.Name,
		ItemTeam:   item.Team,
		BidderKey:  bid.BidderID,
		BidderName: bid.BidderName,
		Amount:     bid.Amount,
		CurrentBid: item.CurrentBid,
	}
}

// NewCloseRecord は商品の締切レコードを生成する。
// 入札者がいない場合は落札者フィールドが空になる。
func NewCloseRecord(item *model.Item, winnerName string, now time.Time) Record {
	return Record{
		ID:          uuid.New(),
		Kind:        KindClose,
		Timestamp:   now,
		ItemID:      item.ID,
		ItemName:    item.Name,
		ItemTeam:    item.Team,
		WinnerKey:   item.CurrentBidderID,
		WinnerName:  winnerName,
		FinalAmount: item.CurrentBid,
	}
}

// NewAdminSettingsRecord はグローバル時刻設定の変更レコードを生成する。
func NewAdminSettingsRecord(adminKey string, s model.AuctionSettings, now time.Time) Record {
	s = s.Clone()
	ext := s.ExtendOnBidSeconds
	return Record{
		ID:                 uuid.New(),
		Kind:               KindAdminSettings,
		Timestamp:          now,
		AdminKey:           adminKey,
		StartAt:            s.StartAt,
		EndAt:              s.EndAt,
		ExtendOnBidSeconds: &ext,
	}
}

// NewAdminItemTimesRecord は商品ごとの時刻設定の変更レコードを生成する。
func NewAdminItemTimesRecord(adminKey string, item *model.Item, now time.Time) Record {
	c := item.Clone()
	return Record{
		ID:                 uuid.New(),
		Kind:               KindAdminItemTimes,
		Timestamp:          now,
		ItemID:             c.ID,
		ItemName:           c.Name,
		ItemTeam:           c.Team,
		AdminKey:           adminKey,
		EndAt:              c.Deadline,
		ExtendOnBidSeconds: c.ExtendOnBidSeconds,
	}
}

// Sink は監査レコードの追記先。
type Sink interface {
	Append(ctx context.Context, rec Record) error
}

// SinkFunc は関数をSinkとして扱うアダプタ。
type SinkFunc func(ctx context.Context, rec Record) error

// Append はSinkインターフェースを実装する。
func (f SinkFunc) Append(ctx context.Context, rec Record) error {
	return f(ctx, rec)
}
