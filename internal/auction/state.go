// Package auction はオークションの権威ある状態機械を提供する。
//
// 入札の検証、クレジットの拘束計算、商品ごと・全体の締切管理（ローリング延長を含む）、
// 締切処理、観測者向けの状態投影を1つのミューテックスの下で行う。
// 永続化・監査ログ・配信は外部の協調者として注入される。
package auction

import (
	"sort"
	"time"

	"github.com/hitoshi/livebid/internal/model"
	"github.com/hitoshi/livebid/internal/registry"
)

// State はオークションの可変状態。Engineのロックの下でのみ操作される。
type State struct {
	registry *registry.Registry
	items    map[string]*model.Item
	order    []string
	settings model.AuctionSettings
}

// NewState はカタログから初期状態を構築する。
// 全体設定は未設定（開始時刻なし）で始まるため、管理者が時刻を設定するまで入札は受け付けない。
func NewState(reg *registry.Registry, items []*model.Item) *State {
	s := &State{
		registry: reg,
		items:    make(map[string]*model.Item, len(items)),
	}
	for _, it := range items {
		c := it.Clone()
		s.items[c.ID] = &c
	}
	s.reindex()
	return s
}

// RestoreState はスナップショットから状態を復元する。
// スナップショットはカタログの既定値より優先される。
func RestoreState(snap *model.Snapshot) *State {
	s := &State{
		registry: registry.FromSnapshot(snap.Users),
		items:    make(map[string]*model.Item, len(snap.Items)),
		settings: snap.Settings.Clone(),
	}
	for id, it := range snap.Items {
		c := it.Clone()
		if c.ID == "" {
			c.ID = id
		}
		normalizeItem(&c)
		s.items[c.ID] = &c
	}
	if s.settings.ExtendOnBidSeconds < 0 {
		s.settings.ExtendOnBidSeconds = 0
	}
	if s.settings.IsRolling() {
		s.settings.EndAt = nil
	}
	s.reindex()
	return s
}

// normalizeItem は外部から読み込んだ商品の不変条件を回復する。
func normalizeItem(it *model.Item) {
	if it.History == nil {
		it.History = []model.BidRecord{}
	}
	if it.BasePrice < 1 {
		it.BasePrice = 1
	}
	if last, ok := it.LastBid(); ok {
		it.CurrentBid = last.Amount
		it.CurrentBidderID = last.BidderID
	} else {
		it.CurrentBidderID = ""
	}
	if it.CurrentBid < it.BasePrice {
		it.CurrentBid = it.BasePrice
	}
}

func (s *State) reindex() {
	s.order = make([]string, 0, len(s.items))
	for id := range s.items {
		s.order = append(s.order, id)
	}
	sort.Strings(s.order)
}

// Snapshot は永続化用に状態全体のディープコピーを返す。
func (s *State) Snapshot() *model.Snapshot {
	snap := &model.Snapshot{
		Users:    s.registry.Users(),
		Items:    make(map[string]model.Item, len(s.items)),
		Settings: s.settings.Clone(),
	}
	for id, it := range s.items {
		snap.Items[id] = it.Clone()
	}
	return snap
}

// Settings は全体設定のコピーを返す。
func (s *State) Settings() model.AuctionSettings {
	return s.settings.Clone()
}

// effectiveDeadline は商品の締切を返す。商品ごとの締切が優先され、なければ全体のEndAtを継承する。
func (s *State) effectiveDeadline(it *model.Item) *time.Time {
	if it.Deadline != nil {
		return it.Deadline
	}
	return s.settings.EndAt
}

// effectiveExtend は商品の入札延長秒数を返す。商品ごとの上書きが優先される。
func (s *State) effectiveExtend(it *model.Item) int64 {
	if it.ExtendOnBidSeconds != nil {
		return *it.ExtendOnBidSeconds
	}
	return s.settings.ExtendOnBidSeconds
}

// isExpired は商品の締切がnow以前かを返す。
func (s *State) isExpired(it *model.Item, now time.Time) bool {
	d := s.effectiveDeadline(it)
	return d != nil && !d.After(now)
}
