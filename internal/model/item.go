package model

import "time"

// BidRecord は受理された1件の入札を表す。追記後は変更しない。
type BidRecord struct {
	Timestamp  time.Time `json:"ts"`
	BidderID   string    `json:"ip"`
	BidderName string    `json:"name"`
	Amount     int64     `json:"amount"`
}

// Item はオークション対象の商品（選手）を表す。
//
// CurrentBidderIDは入札が1件もない場合は空文字列で、
// それ以外は常にHistoryの最後のエントリの入札者と一致する。
type Item struct {
	ID              string      `json:"id"`
	Name            string      `json:"name"`
	Team            string      `json:"team"`
	BasePrice       int64       `json:"base"`
	CurrentBid      int64       `json:"currentBid"`
	CurrentBidderID string      `json:"currentBidderIp,omitempty"`
	History         []BidRecord `json:"history"`

	// Deadline は商品ごとの締切。nilでない場合はグローバルのEndAtより優先される。
	Deadline *time.Time `json:"endAt"`
	// ExtendOnBidSeconds は商品ごとの延長秒数の上書き。nilはグローバル設定を継承する。
	ExtendOnBidSeconds *int64 `json:"extendOnBidSeconds"`
	// DeadlineOverride は管理者が商品ごとに締切を指定したことを表す。
	// trueの間はグローバルの終了時刻で上書きされない。
	DeadlineOverride bool `json:"deadlineOverride,omitempty"`

	Closed bool `json:"closed"`
}

// NewItem はカタログ定義から入札前の商品を生成する。
func NewItem(id, name, team string, basePrice int64) *Item {
	if basePrice < 1 {
		basePrice = 1
	}
	return &Item{
		ID:         id,
		Name:       name,
		Team:       team,
		BasePrice:  basePrice,
		CurrentBid: basePrice,
		History:    []BidRecord{},
	}
}

// HasBidder は入札者が存在するかを返す。
func (it *Item) HasBidder() bool {
	return it.CurrentBidderID != ""
}

// HasExtendOverride は商品ごとの延長設定を持つかを返す。
func (it *Item) HasExtendOverride() bool {
	return it.ExtendOnBidSeconds != nil
}

// HasOverride は締切または延長設定のいずれかが商品ごとに指定されているかを返す。
func (it *Item) HasOverride() bool {
	return it.DeadlineOverride || it.HasExtendOverride()
}

// LastBid は最後の入札を返す。入札がない場合はfalseを返す。
func (it *Item) LastBid() (BidRecord, bool) {
	if len(it.History) == 0 {
		return BidRecord{}, false
	}
	return it.History[len(it.History)-1], true
}

// Clone はポインタフィールドと履歴を含めたディープコピーを返す。
func (it *Item) Clone() Item {
	c := *it
	c.History = make([]BidRecord, len(it.History))
	copy(c.History, it.History)
	if it.Deadline != nil {
		d := *it.Deadline
		c.Deadline = &d
	}
	if it.ExtendOnBidSeconds != nil {
		e := *it.ExtendOnBidSeconds
		c.ExtendOnBidSeconds = &e
	}
	return c
}
