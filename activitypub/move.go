package activitypub

import (
	"context"
	"time"

	"github.com/deemkeen/fedinbox/domain"
)

// moveMarkerTTL keeps a migration from being processed twice
const moveMarkerTTL = 7 * 24 * time.Hour

// Move migrates local followers of the actor to its new account
type Move struct {
	activity
}

func (m *Move) Perform(ctx context.Context) error {
	if m.objectURI() != m.account.URI {
		m.reject("object is not the actor")
		return nil
	}
	targetURI := valueOrID(m.json["target"])
	if targetURI == "" {
		m.reject("missing target")
		return nil
	}

	if m.deps.Markers != nil {
		marked, err := m.deps.Markers.SetIfAbsent(ctx, moveMarkerKey(m.account), moveMarkerTTL)
		if err != nil {
			return err
		}
		if !marked {
			m.reject("move in progress")
			return nil
		}
	}

	target, err := m.fetchTarget(ctx, targetURI)
	if err != nil {
		m.unmark(ctx)
		return err
	}
	if target == nil || target.Suspended || !target.KnownAs(m.account.URI) {
		m.unmark(ctx)
		m.reject("target does not acknowledge the move")
		return nil
	}

	if err := m.db().UpdateAccountMovedTo(ctx, m.account.Id, target.Id); err != nil {
		return err
	}
	activitiesProcessed.WithLabelValues(string(KindMove)).Inc()
	return m.moveFollowers(ctx, target)
}

func (m *Move) fetchTarget(ctx context.Context, uri string) (*domain.Account, error) {
	if m.tags().IsLocalURI(uri) {
		return m.tags().AccountFromURI(ctx, uri)
	}
	return m.deps.Actors.FetchActor(ctx, stripFragment(uri), true)
}

func (m *Move) unmark(ctx context.Context) {
	if m.deps.Markers == nil {
		return
	}
	if err := m.deps.Markers.Delete(ctx, moveMarkerKey(m.account)); err != nil {
		m.log.Warn("failed to release move marker", "actor", m.account.URI, "err", err)
	}
}

// moveFollowers points every local follower at the new account
func (m *Move) moveFollowers(ctx context.Context, target *domain.Account) error {
	followers, err := m.db().LocalFollowers(ctx, m.account.Id)
	if err != nil {
		return err
	}
	for i := range followers {
		follower := &followers[i]

		follow, err := m.db().FindFollow(ctx, follower.Id, m.account.Id)
		if err != nil {
			return err
		}
		if follow != nil {
			if err := m.db().DeleteFollow(ctx, follow.Id); err != nil {
				return err
			}
		}

		if err := m.refollow(ctx, follower, target); err != nil {
			return err
		}
		if err := m.notify(ctx, follower, domain.NotificationMove, nil); err != nil {
			return err
		}
	}
	return nil
}

func (m *Move) refollow(ctx context.Context, follower, target *domain.Account) error {
	existing, err := m.db().FindFollow(ctx, follower.Id, target.Id)
	if err != nil || existing != nil {
		return err
	}
	pending, err := m.db().FindFollowRequest(ctx, follower.Id, target.Id)
	if err != nil || pending != nil {
		return err
	}

	if target.IsLocal() {
		if target.Locked {
			_, err := m.db().CreateFollowRequest(ctx, follower.Id, target.Id, m.tags().FollowURI(follower))
			return err
		}
		_, err := m.db().CreateFollow(ctx, follower.Id, target.Id, m.tags().FollowURI(follower))
		return err
	}

	request, err := m.db().CreateFollowRequest(ctx, follower.Id, target.Id, m.tags().FollowURI(follower))
	if err != nil {
		return err
	}
	return m.deps.Outbox.Follow(ctx, request, follower, target)
}
