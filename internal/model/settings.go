package model

import "time"

// AuctionSettings はオークション全体の時刻設定。
// ExtendOnBidSeconds > 0 のローリングモードではEndAtは常にnilとなる。
type AuctionSettings struct {
	StartAt            *time.Time `json:"startAt"`
	EndAt              *time.Time `json:"endAt"`
	ExtendOnBidSeconds int64      `json:"extendOnBidSeconds"`
}

// IsRolling はグローバル設定がローリングモードかを返す。
func (s AuctionSettings) IsRolling() bool {
	return s.ExtendOnBidSeconds > 0
}

// Clone はポインタフィールドを複製したコピーを返す。
func (s AuctionSettings) Clone() AuctionSettings {
	c := s
	if s.StartAt != nil {
		t := *s.StartAt
		c.StartAt = &t
	}
	if s.EndAt != nil {
		t := *s.EndAt
		c.EndAt = &t
	}
	return c
}

// Snapshot は永続化の単位となるオークション状態全体。
// 起動時にスナップショットが存在する場合はカタログより優先される。
type Snapshot struct {
	Users    map[string]Identity `json:"users"`
	Items    map[string]Item     `json:"players"`
	Settings AuctionSettings     `json:"auctionSettings"`
}
