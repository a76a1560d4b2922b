package activitypub

import (
	"fmt"
	"testing"

	"github.com/deemkeen/fedinbox/domain"
	"github.com/google/uuid"
)

func TestNewActivityKnownTypes(t *testing.T) {
	env := setupTestEnv(t)
	account := &domain.Account{Id: uuid.New(), Domain: testRemoteDomain, URI: "https://remote.example.com/users/bob"}

	for _, kind := range Kinds {
		handler := NewActivity(map[string]any{"type": string(kind)}, account, Options{}, env.deps)
		if handler == nil {
			t.Errorf("Expected a handler for %s", kind)
			continue
		}
		if got := fmt.Sprintf("%T", handler); got != "*activitypub."+string(kind) {
			t.Errorf("Expected *activitypub.%s for %s, got %s", kind, kind, got)
		}
		if !kind.Known() {
			t.Errorf("Expected %s to be known", kind)
		}
	}
	if len(Kinds) != 14 {
		t.Errorf("Expected 14 handled types, got %d", len(Kinds))
	}
}

func TestNewActivityUnknownTypes(t *testing.T) {
	env := setupTestEnv(t)
	account := &domain.Account{Id: uuid.New(), Domain: testRemoteDomain}

	for _, typ := range []any{"View", "EmojiReact", "create", "", nil, 42.0} {
		if handler := NewActivity(map[string]any{"type": typ}, account, Options{}, env.deps); handler != nil {
			t.Errorf("Expected no handler for %v, got %T", typ, handler)
		}
	}
	if Kind("Read").Known() {
		t.Error("Expected Read to be unknown")
	}
}

func TestNewActivityCarriesOptions(t *testing.T) {
	env := setupTestEnv(t)
	account := &domain.Account{Id: uuid.New(), Domain: testRemoteDomain}
	relay := &domain.Account{Id: uuid.New(), Domain: "relay.example.com"}
	recipient := uuid.New()
	opts := Options{RequestID: "req-1", DeliveredToAccountID: &recipient, RelayedThroughAccount: relay, Delivery: true}

	handler := NewActivity(map[string]any{"type": "Like", "object": "https://local.example.com/x"}, account, opts, env.deps)
	like, ok := handler.(*Like)
	if !ok {
		t.Fatalf("Expected *Like, got %T", handler)
	}
	if like.opts.RequestID != "req-1" || *like.opts.DeliveredToAccountID != recipient || like.opts.RelayedThroughAccount != relay || !like.opts.Delivery {
		t.Errorf("Options not carried: %+v", like.opts)
	}
	if like.objectURI() != "https://local.example.com/x" {
		t.Errorf("Expected object uri, got %s", like.objectURI())
	}
}

func TestMarkerKeys(t *testing.T) {
	account := &domain.Account{Id: uuid.MustParse("00000000-0000-0000-0000-000000000001")}
	if got := deleteMarkerKey(account, "https://remote.example.com/notes/1"); got != "delete_upon_arrival:00000000-0000-0000-0000-000000000001:https://remote.example.com/notes/1" {
		t.Errorf("Unexpected delete marker key %s", got)
	}
	if got := moveMarkerKey(account); got != "move_in_progress:00000000-0000-0000-0000-000000000001" {
		t.Errorf("Unexpected move marker key %s", got)
	}
}
