package auction

import (
	"math"
	"time"

	"github.com/hitoshi/livebid/internal/model"
)

// maxAmount は浮動小数点で正確に表現できる整数の上限。
const maxAmount = 1 << 53

// bidDecision は入札検証の結果。
// expiredはAuctionClosedで拒否された商品がまだ締切処理されていないことを示す。
type bidDecision struct {
	identity model.Identity
	item     *model.Item
	amount   int64
	expired  bool
}

// validateBid は状態を変更せずに入札を検証する。
// 検証順序は UnknownIdentity → UnknownItem → InvalidAmount → AuctionNotOpen →
// AuctionClosed → DuplicateBidder → BidTooLow → InsufficientCredits。
func (s *State) validateBid(key, itemID string, amount float64, now time.Time) (bidDecision, error) {
	var d bidDecision

	identity, ok := s.registry.Lookup(key)
	if !ok {
		return d, model.NewUnknownIdentityError(key)
	}
	d.identity = identity

	it, ok := s.items[itemID]
	if !ok {
		return d, model.NewUnknownItemError(itemID)
	}
	d.item = it

	value, ok := wholeNumber(amount)
	if !ok || value <= 0 || value > maxAmount {
		return d, model.NewInvalidAmountError()
	}
	d.amount = value

	if s.settings.StartAt == nil || now.Before(*s.settings.StartAt) {
		return d, model.NewAuctionNotOpenError()
	}

	if it.Closed || s.isExpired(it, now) {
		d.expired = !it.Closed
		return d, model.NewAuctionClosedError(it.ID)
	}

	if it.CurrentBidderID == key {
		return d, model.NewDuplicateBidderError()
	}

	if value <= it.CurrentBid {
		return d, model.NewBidTooLowError(it.CurrentBid)
	}

	if rem := s.remaining(key); value > rem {
		return d, model.NewInsufficientCreditsError(rem)
	}

	return d, nil
}

// wholeNumber は有限の整数値であればint64に変換する。
func wholeNumber(v float64) (int64, bool) {
	if math.IsNaN(v) || math.IsInf(v, 0) || v != math.Trunc(v) {
		return 0, false
	}
	if v > math.MaxInt64/2 || v < math.MinInt64/2 {
		return 0, false
	}
	return int64(v), true
}

// applyBid は検証済みの入札を状態へ反映し、追加した入札記録を返す。
// 有効な延長秒数が正の場合は締切を now + 延長秒数 にリセットする。
func (s *State) applyBid(d bidDecision, now time.Time) model.BidRecord {
	it := d.item
	rec := model.BidRecord{
		Timestamp:  now,
		BidderID:   d.identity.Key,
		BidderName: d.identity.Name,
		Amount:     d.amount,
	}
	it.CurrentBid = d.amount
	it.CurrentBidderID = d.identity.Key
	it.History = append(it.History, rec)

	if ext := s.effectiveExtend(it); ext > 0 {
		deadline := now.Add(time.Duration(ext) * time.Second)
		it.Deadline = &deadline
	}
	return rec
}
