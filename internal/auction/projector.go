package auction

import (
	"time"

	"github.com/hitoshi/livebid/internal/model"
)

// project は全観測者へ配信する状態ビューを構築する。返す値は内部状態と共有しない。
func (s *State) project(now time.Time) model.StateView {
	view := model.StateView{
		Now:      now,
		Settings: s.settings.Clone(),
		Users:    make(map[string]model.UserView, s.registry.Len()),
		Items:    make(map[string]model.Item, len(s.items)),
	}
	for _, key := range s.registry.Keys() {
		id, _ := s.registry.Lookup(key)
		view.Users[key] = model.UserView{
			Name:      id.Name,
			Credits:   id.Credits,
			Role:      id.Role,
			Remaining: s.remaining(key),
		}
	}
	for id, it := range s.items {
		view.Items[id] = it.Clone()
	}
	return view
}

// hello は接続直後の本人向けビューを構築する。
func (s *State) hello(key string) model.HelloView {
	view := model.HelloView{IP: key}
	id, ok := s.registry.Lookup(key)
	if !ok {
		return view
	}
	view.Recognized = true
	view.Name = id.Name
	view.Credits = id.Credits
	view.Remaining = s.remaining(key)
	view.IsAdmin = id.IsAdmin()
	return view
}
