package registry

import (
	"testing"

	"github.com/hitoshi/livebid/internal/model"
)

func TestNew_LookupKnownAndUnknown(t *testing.T) {
	r := New([]model.Identity{
		{Key: "10.0.0.1", Name: "Alice", Credits: 100, Role: model.RoleAdmin},
		{Key: "10.0.0.2", Name: "Bob", Credits: 50, Role: "weird"},
	})

	alice, ok := r.Lookup("10.0.0.1")
	if !ok {
		t.Fatal("expected Alice to be registered")
	}
	if !alice.IsAdmin() {
		t.Error("Alice should be admin")
	}

	bob, ok := r.Lookup("10.0.0.2")
	if !ok {
		t.Fatal("expected Bob to be registered")
	}
	if bob.Role != model.RoleUser {
		t.Errorf("Bob.Role = %q, want %q", bob.Role, model.RoleUser)
	}

	if _, ok := r.Lookup("10.0.0.9"); ok {
		t.Error("unknown key should not be found")
	}
}

func TestNew_IgnoresEmptyKeyAndClampsCredits(t *testing.T) {
	r := New([]model.Identity{
		{Key: "", Name: "Ghost", Credits: 10},
		{Key: "a", Name: "Neg", Credits: -5},
	})

	if r.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", r.Len())
	}
	id, _ := r.Lookup("a")
	if id.Credits != 0 {
		t.Errorf("Credits = %d, want 0", id.Credits)
	}
}

func TestKeys_Sorted(t *testing.T) {
	r := New([]model.Identity{
		{Key: "c"}, {Key: "a"}, {Key: "b"},
	})

	keys := r.Keys()
	want := []string{"a", "b", "c"}
	if len(keys) != len(want) {
		t.Fatalf("len(keys) = %d, want %d", len(keys), len(want))
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Errorf("keys[%d] = %q, want %q", i, keys[i], want[i])
		}
	}
}

func TestFromSnapshot_RestoresKeys(t *testing.T) {
	r := FromSnapshot(map[string]model.Identity{
		"10.0.0.1": {Name: "Alice", Credits: 100, Role: model.RoleAdmin},
	})

	id, ok := r.Lookup("10.0.0.1")
	if !ok {
		t.Fatal("expected identity restored from snapshot")
	}
	if id.Key != "10.0.0.1" || id.Name != "Alice" {
		t.Errorf("restored identity = %+v", id)
	}

	users := r.Users()
	if _, ok := users["10.0.0.1"]; !ok {
		t.Error("Users() should contain restored key")
	}
}
