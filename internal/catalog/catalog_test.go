package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/hitoshi/livebid/internal/model"
	"github.com/hitoshi/livebid/internal/security"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

func TestLoadUsers_MissingFile_ReturnsEmpty(t *testing.T) {
	entries, err := LoadUsers(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("len(entries) = %d, want 0", len(entries))
	}
}

func TestLoadUsers_InvalidJSON_ReturnsError(t *testing.T) {
	path := writeFile(t, "users.json", "{not json")
	if _, err := LoadUsers(path); err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}

func TestIdentities_ConvertsEntries(t *testing.T) {
	path := writeFile(t, "users.json", `[
		{"ip": "10.0.0.1", "name": "Alice", "credits": 500, "role": "admin"},
		{"ip": "10.0.0.2", "name": "<b>Bob</b>", "credits": "300"},
		{"ip": "10.0.0.3", "name": "Carol", "credits": 100, "role": "superuser"},
		{"ip": "", "name": "NoIP", "credits": 100}
	]`)

	entries, err := LoadUsers(path)
	if err != nil {
		t.Fatalf("LoadUsers failed: %v", err)
	}

	ids := Identities(entries, security.NewDisplaySanitizer())
	if len(ids) != 3 {
		t.Fatalf("len(ids) = %d, want 3", len(ids))
	}

	if ids[0].Key != "10.0.0.1" || ids[0].Role != model.RoleAdmin || ids[0].Credits != 500 {
		t.Errorf("ids[0] = %+v", ids[0])
	}
	if ids[1].Name != "Bob" || ids[1].Credits != 300 || ids[1].Role != model.RoleUser {
		t.Errorf("ids[1] = %+v", ids[1])
	}
	// 未知のroleは一般参加者
	if ids[2].Role != model.RoleUser {
		t.Errorf("ids[2].Role = %q, want %q", ids[2].Role, model.RoleUser)
	}
}

func TestIdentities_DuplicateIPLastWins(t *testing.T) {
	entries := []UserEntry{
		{IP: "10.0.0.1", Name: "First", Credits: "10"},
		{IP: "10.0.0.1", Name: "Second", Credits: "20"},
	}

	ids := Identities(entries, security.NewDisplaySanitizer())
	if len(ids) != 1 {
		t.Fatalf("len(ids) = %d, want 1", len(ids))
	}
	if ids[0].Name != "Second" || ids[0].Credits != 20 {
		t.Errorf("ids[0] = %+v, want Second/20", ids[0])
	}
}

func TestItems_ConvertsEntries(t *testing.T) {
	path := writeFile(t, "players.json", `[
		{"id": 7, "name": "Lautaro", "team": "Inter", "base": 10},
		{"id": "gk-1", "name": "Maignan", "team": "Milan"},
		{"id": 9, "name": "Osimhen", "base": 0}
	]`)

	entries, err := LoadPlayers(path)
	if err != nil {
		t.Fatalf("LoadPlayers failed: %v", err)
	}

	items, err := Items(entries, security.NewDisplaySanitizer())
	if err != nil {
		t.Fatalf("Items failed: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("len(items) = %d, want 3", len(items))
	}

	if items[0].ID != "7" || items[0].BasePrice != 10 || items[0].CurrentBid != 10 {
		t.Errorf("items[0] = %+v", items[0])
	}
	if items[1].ID != "gk-1" || items[1].BasePrice != 1 {
		t.Errorf("items[1] = %+v, want base 1", items[1])
	}
	if items[2].BasePrice != 1 || items[2].Team != "" {
		t.Errorf("items[2] = %+v, want base 1 and empty team", items[2])
	}
	for _, it := range items {
		if it.Closed || it.HasBidder() || len(it.History) != 0 {
			t.Errorf("item %s should start open without bids", it.ID)
		}
	}
}

func TestItems_DuplicateID_ReturnsError(t *testing.T) {
	entries := []PlayerEntry{
		{ID: []byte(`1`), Name: "A"},
		{ID: []byte(`"1"`), Name: "B"},
	}
	if _, err := Items(entries, security.NewDisplaySanitizer()); err == nil {
		t.Fatal("expected error for duplicate id")
	}
}

func TestItems_MissingID_ReturnsError(t *testing.T) {
	entries := []PlayerEntry{{Name: "NoID"}}
	if _, err := Items(entries, security.NewDisplaySanitizer()); err == nil {
		t.Fatal("expected error for missing id")
	}
}
