package activitypub

import (
	"context"
	"testing"

	"github.com/deemkeen/fedinbox/domain"
)

func TestLikeLocalStatus(t *testing.T) {
	env := setupTestEnv(t)
	alice := env.localAccount(t, "alice")
	bob := env.remoteAccount(t, "bob", testRemoteDomain)
	s := env.localStatus(t, alice, domain.VisibilityPublic)
	like := map[string]any{"id": "https://remote.example.com/likes/1", "type": "Like", "actor": bob.URI, "object": s.URI}

	env.perform(t, like, bob, Options{})
	env.perform(t, like, bob, Options{})

	if n, _ := env.db.CountFavourites(context.Background(), s.Id); n != 1 {
		t.Errorf("Expected one favourite, got %d", n)
	}
	n := env.notifications(t, alice)
	if len(n) != 1 || n[0].NotificationType != domain.NotificationFavourite {
		t.Errorf("Expected one favourite notification, got %+v", n)
	}
	if n[0].StatusId == nil || *n[0].StatusId != s.Id {
		t.Errorf("Expected notification about %s", s.Id)
	}
}

func TestLikeRemoteStatusIgnored(t *testing.T) {
	env := setupTestEnv(t)
	bob := env.remoteAccount(t, "bob", testRemoteDomain)
	carol := env.remoteAccount(t, "carol", testRemoteDomain)
	s := env.status(t, carol, "https://remote.example.com/notes/1", domain.VisibilityPublic)

	env.perform(t, map[string]any{"id": "https://remote.example.com/likes/1", "type": "Like", "actor": bob.URI, "object": s.URI}, bob, Options{})

	if n, _ := env.db.CountFavourites(context.Background(), s.Id); n != 0 {
		t.Errorf("Expected no favourite of a remote status, got %d", n)
	}
}

func TestLikeUndoneBeforeArrival(t *testing.T) {
	env := setupTestEnv(t)
	alice := env.localAccount(t, "alice")
	bob := env.remoteAccount(t, "bob", testRemoteDomain)
	s := env.localStatus(t, alice, domain.VisibilityPublic)
	likeID := "https://remote.example.com/likes/1"

	env.perform(t, map[string]any{"id": likeID + "/undo", "type": "Undo", "actor": bob.URI, "object": likeID}, bob, Options{})
	env.perform(t, map[string]any{"id": likeID, "type": "Like", "actor": bob.URI, "object": s.URI}, bob, Options{})

	if n, _ := env.db.CountFavourites(context.Background(), s.Id); n != 0 {
		t.Errorf("Expected Like undone before arrival to be suppressed, got %d", n)
	}
}
