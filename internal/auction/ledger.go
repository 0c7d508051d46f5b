package auction

// committed は参加者がオープン中の商品で最高入札者となっている金額の合計。
// 締切済みの商品は含まないため、締切と同時に拘束が解放される。
func (s *State) committed(key string) int64 {
	var sum int64
	for _, it := range s.items {
		if !it.Closed && it.CurrentBidderID == key {
			sum += it.CurrentBid
		}
	}
	return sum
}

// remaining は参加者の残りクレジット。未登録の参加者は0。
func (s *State) remaining(key string) int64 {
	id, ok := s.registry.Lookup(key)
	if !ok {
		return 0
	}
	return id.Credits - s.committed(key)
}
