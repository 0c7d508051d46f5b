package model

import "time"

// EventType は観測者へ送信するイベント種別。
type EventType string

const (
	EventHello    EventType = "hello"
	EventState    EventType = "state"
	EventBidOK    EventType = "bid:ok"
	EventBid      EventType = "event:bid"
	EventAdminOK  EventType = "admin:ok"
	EventErrorMsg EventType = "error-msg"
)

// Event は送信フレームの共通形式。
type Event struct {
	Type EventType `json:"type"`
	Data any       `json:"data"`
}

// UserView は状態ブロードキャストにおける参加者ごとの表示情報。
type UserView struct {
	Name      string `json:"name"`
	Credits   int64  `json:"credits"`
	Role      Role   `json:"role"`
	Remaining int64  `json:"remaining"`
}

// StateView は全観測者に配信する状態スナップショット。
type StateView struct {
	Now      time.Time           `json:"now"`
	Settings AuctionSettings     `json:"settings"`
	Users    map[string]UserView `json:"users"`
	Items    map[string]Item     `json:"players"`
}

// HelloView は接続直後に本人へ送信する識別結果。
type HelloView struct {
	IP         string `json:"ip"`
	Recognized bool   `json:"recognized"`
	Name       string `json:"name,omitempty"`
	Credits    int64  `json:"credits"`
	Remaining  int64  `json:"remaining"`
	IsAdmin    bool   `json:"isAdmin"`
}

// BidEvent は受理された入札の全体通知。
type BidEvent struct {
	PlayerID   string    `json:"playerId"`
	PlayerName string    `json:"playerName"`
	Amount     int64     `json:"amount"`
	BidderIP   string    `json:"bidderIp"`
	BidderName string    `json:"bidderName"`
	Timestamp  time.Time `json:"ts"`
}

// BidAck は入札者本人への受理通知。
type BidAck struct {
	PlayerID      string `json:"playerId"`
	PlayerName    string `json:"playerName"`
	Amount        int64  `json:"amount"`
	YourRemaining int64  `json:"yourRemaining"`
}
