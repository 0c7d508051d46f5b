// Package catalog は起動時に1回だけ読み込む参加者カタログと商品カタログを扱う。
// ファイルが存在しない場合は空のカタログとして扱い、起動を継続する。
package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/hitoshi/livebid/internal/model"
	"github.com/hitoshi/livebid/internal/security"
)

// UserEntry は参加者カタログ（users.json）の1エントリ。
type UserEntry struct {
	IP      string      `json:"ip"`
	Name    string      `json:"name"`
	Credits json.Number `json:"credits"`
	Role    string      `json:"role"`
}

// PlayerEntry は商品カタログ（players.json）の1エントリ。
// idは数値・文字列のどちらでも受け付ける。
type PlayerEntry struct {
	ID   json.RawMessage `json:"id"`
	Name string          `json:"name"`
	Team string          `json:"team"`
	Base json.Number     `json:"base"`
}

// LoadUsers は参加者カタログを読み込む。
// ファイルが存在しない場合は空スライスを返す。
func LoadUsers(path string) ([]UserEntry, error) {
	var entries []UserEntry
	if err := readJSON(path, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// LoadPlayers は商品カタログを読み込む。
// ファイルが存在しない場合は空スライスを返す。
func LoadPlayers(path string) ([]PlayerEntry, error) {
	var entries []PlayerEntry
	if err := readJSON(path, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// Identities は参加者カタログをIdentityに変換する。
// ipが空のエントリは無視し、同じipが複数ある場合は後勝ちとする。
// roleが"admin"以外の場合は一般参加者として扱う。
func Identities(entries []UserEntry, sanitizer security.DisplaySanitizer) []model.Identity {
	byKey := make(map[string]int)
	out := make([]model.Identity, 0, len(entries))
	for _, e := range entries {
		key := strings.TrimSpace(e.IP)
		if key == "" {
			continue
		}
		id := model.Identity{
			Key:     key,
			Name:    sanitizer.Sanitize(e.Name),
			Credits: parseNonNegative(e.Credits, 0),
			Role:    model.ParseRole(e.Role),
		}
		if i, ok := byKey[key]; ok {
			out[i] = id
			continue
		}
		byKey[key] = len(out)
		out = append(out, id)
	}
	return out
}

// Items は商品カタログを入札前のItemに変換する。
// baseが未指定または1未満の場合は1とする。
func Items(entries []PlayerEntry, sanitizer security.DisplaySanitizer) ([]*model.Item, error) {
	seen := make(map[string]bool)
	out := make([]*model.Item, 0, len(entries))
	for i, e := range entries {
		id, err := parseID(e.ID)
		if err != nil {
			return nil, fmt.Errorf("players[%d]: %w", i, err)
		}
		if seen[id] {
			return nil, fmt.Errorf("players[%d]: duplicate id %q", i, id)
		}
		seen[id] = true

		base := parseNonNegative(e.Base, 1)
		out = append(out, model.NewItem(id, sanitizer.Sanitize(e.Name), sanitizer.Sanitize(e.Team), base))
	}
	return out, nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read catalog %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to parse catalog %s: %w", path, err)
	}
	return nil
}

// parseID はJSON上の数値・文字列いずれのidも文字列に正規化する。
func parseID(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", errors.New("missing id")
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if s == "" {
			return "", errors.New("empty id")
		}
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", fmt.Errorf("invalid id %s", string(raw))
	}
	return n.String(), nil
}

func parseNonNegative(n json.Number, defaultVal int64) int64 {
	if n == "" {
		return defaultVal
	}
	if i, err := n.Int64(); err == nil {
		if i < 0 {
			return defaultVal
		}
		return i
	}
	f, err := strconv.ParseFloat(n.String(), 64)
	if err != nil || f < 0 {
		return defaultVal
	}
	return int64(f)
}
