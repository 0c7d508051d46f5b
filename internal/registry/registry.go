// Package registry はネットワーク由来のキーから参加者を引く静的レジストリを提供する。
// 起動時に1回構築され、以降は読み取り専用として扱う。
package registry

import (
	"sort"

	"github.com/hitoshi/livebid/internal/model"
)

// Registry は参加者の静的マッピング。
type Registry struct {
	byKey map[string]model.Identity
	keys  []string
}

// New はIdentityの一覧からRegistryを構築する。
// 同じキーが複数ある場合は後勝ちとする。
func New(identities []model.Identity) *Registry {
	r := &Registry{byKey: make(map[string]model.Identity, len(identities))}
	for _, id := range identities {
		if id.Key == "" {
			continue
		}
		id.Role = model.ParseRole(string(id.Role))
		if id.Credits < 0 {
			id.Credits = 0
		}
		r.byKey[id.Key] = id
	}
	r.keys = make([]string, 0, len(r.byKey))
	for k := range r.byKey {
		r.keys = append(r.keys, k)
	}
	sort.Strings(r.keys)
	return r
}

// FromSnapshot はスナップショットに保存された参加者からRegistryを復元する。
func FromSnapshot(users map[string]model.Identity) *Registry {
	identities := make([]model.Identity, 0, len(users))
	for key, id := range users {
		id.Key = key
		identities = append(identities, id)
	}
	return New(identities)
}

// Lookup は指定キーの参加者を返す。
func (r *Registry) Lookup(key string) (model.Identity, bool) {
	id, ok := r.byKey[key]
	return id, ok
}

// Keys は登録済みキーを昇順で返す。
func (r *Registry) Keys() []string {
	out := make([]string, len(r.keys))
	copy(out, r.keys)
	return out
}

// Len は登録済み参加者数を返す。
func (r *Registry) Len() int {
	return len(r.byKey)
}

// Users はスナップショット用にキー付きのマップを返す。
func (r *Registry) Users() map[string]model.Identity {
	out := make(map[string]model.Identity, len(r.byKey))
	for k, v := range r.byKey {
		out[k] = v
	}
	return out
}
