package model

// Role は参加者の権限を表す。
type Role string

const (
	// RoleUser は入札のみ可能な一般参加者。
	RoleUser Role = "user"
	// RoleAdmin はオークション時刻の設定が可能な管理者。
	RoleAdmin Role = "admin"
)

// ParseRole はカタログ上の文字列をRoleに変換する。
// "admin"以外の値はすべてRoleUserとして扱う。
func ParseRole(s string) Role {
	if s == string(RoleAdmin) {
		return RoleAdmin
	}
	return RoleUser
}

// Identity は接続元アドレスから解決される参加者を表す。
// Creditsは上限値であり、入札によって直接減算されることはない。
// 拘束中のクレジットは常にオープン中の商品から導出する。
type Identity struct {
	Key     string `json:"-"`
	Name    string `json:"name"`
	Credits int64  `json:"credits"`
	Role    Role   `json:"role"`
}

// IsAdmin は管理者権限を持つかを返す。
func (i Identity) IsAdmin() bool {
	return i.Role == RoleAdmin
}
