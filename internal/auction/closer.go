package auction

import (
	"time"

	"github.com/hitoshi/livebid/internal/audit"
	"github.com/hitoshi/livebid/internal/model"
)

// tryClose は締切を迎えた商品をクローズ状態へ遷移させる唯一の経路。
// 定期スイープと入札時の遅延クローズの両方から呼ばれる。
// 既にクローズ済み、または締切前の商品に対しては何もせずfalseを返す。
func (s *State) tryClose(it *model.Item, now time.Time) (audit.Record, bool) {
	if it.Closed || !s.isExpired(it, now) {
		return audit.Record{}, false
	}
	it.Closed = true

	var winnerName string
	if it.HasBidder() {
		if winner, ok := s.registry.Lookup(it.CurrentBidderID); ok {
			winnerName = winner.Name
		}
	}
	return audit.NewCloseRecord(it, winnerName, now), true
}

// closeExpired は締切を迎えたすべてのオープン中の商品をクローズし、締切レコードを返す。
func (s *State) closeExpired(now time.Time) []audit.Record {
	var records []audit.Record
	for _, id := range s.order {
		if rec, ok := s.tryClose(s.items[id], now); ok {
			records = append(records, rec)
		}
	}
	return records
}
