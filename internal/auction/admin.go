package auction

import (
	"time"

	"github.com/hitoshi/livebid/internal/model"
)

// maxExtendSeconds は入札延長秒数の上限（1年）。
const maxExtendSeconds = 365 * 24 * 60 * 60

// GlobalTimes は管理者が設定する全体の時刻設定。
type GlobalTimes struct {
	StartAt            *time.Time
	EndAt              *time.Time
	ExtendOnBidSeconds float64
}

// ItemTimes は管理者が設定する商品ごとの時刻設定。
// ExtendOnBidSecondsがnilの場合は全体設定を継承する。
type ItemTimes struct {
	EndAt              *time.Time
	ExtendOnBidSeconds *float64
}

func (s *State) requireAdmin(actor string) (model.Identity, error) {
	id, ok := s.registry.Lookup(actor)
	if !ok || !id.IsAdmin() {
		return model.Identity{}, model.NewPermissionDeniedError()
	}
	return id, nil
}

func validateExtend(v float64) (int64, error) {
	ext, ok := wholeNumber(v)
	if !ok || ext < 0 || ext > maxExtendSeconds {
		return 0, model.NewInvalidExtendError()
	}
	return ext, nil
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

// applyGlobalTimes は全体設定を置き換える。
// 延長秒数が正の場合はローリングモードとなり、固定の終了時刻を破棄して商品の締切には触れない。
// 延長秒数が0の場合は、商品ごとの締切・延長設定を持たないすべてのオープン中の商品にEndAtを適用する。
func (s *State) applyGlobalTimes(actor string, t GlobalTimes) error {
	if _, err := s.requireAdmin(actor); err != nil {
		return err
	}
	if t.StartAt != nil && t.EndAt != nil && !t.EndAt.After(*t.StartAt) {
		return model.NewInvalidWindowError("終了時刻が開始時刻以前です")
	}
	ext, err := validateExtend(t.ExtendOnBidSeconds)
	if err != nil {
		return err
	}

	s.settings = model.AuctionSettings{
		StartAt:            cloneTime(t.StartAt),
		EndAt:              cloneTime(t.EndAt),
		ExtendOnBidSeconds: ext,
	}
	if ext > 0 {
		s.settings.EndAt = nil
		return nil
	}
	for _, id := range s.order {
		it := s.items[id]
		if it.Closed || it.HasOverride() {
			continue
		}
		it.Deadline = cloneTime(s.settings.EndAt)
	}
	return nil
}

// applyItemTimes は商品ごとの締切と延長設定を置き換える。
// EndAtを指定した場合、その締切は以後のグローバル設定より優先される。
// EndAtと延長秒数の両方をnilにすると全体設定の継承に戻る。
// クローズ済みの商品は値が更新されても再オープンしない。
func (s *State) applyItemTimes(actor, itemID string, t ItemTimes) (*model.Item, error) {
	if _, err := s.requireAdmin(actor); err != nil {
		return nil, err
	}
	it, ok := s.items[itemID]
	if !ok {
		return nil, model.NewUnknownItemError(itemID)
	}
	var override *int64
	if t.ExtendOnBidSeconds != nil {
		ext, err := validateExtend(*t.ExtendOnBidSeconds)
		if err != nil {
			return nil, err
		}
		override = &ext
	}

	it.Deadline = cloneTime(t.EndAt)
	it.DeadlineOverride = t.EndAt != nil
	it.ExtendOnBidSeconds = override
	return it, nil
}
