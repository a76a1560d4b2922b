package activitypub

import (
	"context"

	"github.com/deemkeen/fedinbox/domain"
)

// Accept confirms a follow sent from here, or a relay subscription
type Accept struct {
	activity
}

func (ac *Accept) Perform(ctx context.Context) error {
	relay, err := ac.db().FindRelayByFollowURI(ctx, ac.objectURI())
	if err != nil {
		return err
	}
	if relay != nil {
		if relay.State != domain.RelayPending {
			return nil
		}
		return ac.db().UpdateRelayState(ctx, relay.Id, domain.RelayAccepted)
	}

	request, err := ac.db().FindFollowRequestOfTargetByURI(ctx, ac.account.Id, ac.objectURI())
	if err != nil {
		return err
	}
	if request == nil && Kind(objectType(ac.object)) == KindFollow {
		request, err = embeddedFollowRequest(ctx, &ac.activity)
		if err != nil {
			return err
		}
	}
	if request == nil {
		ac.reject("no matching follow request")
		return nil
	}
	return ac.acceptFollow(ctx, request)
}

func (ac *Accept) acceptFollow(ctx context.Context, request *domain.FollowRequest) error {
	followed, err := ac.db().HasLocalFollowers(ctx, ac.account.Id)
	if err != nil {
		return err
	}
	if _, err := ac.db().AuthorizeFollowRequest(ctx, request); err != nil {
		return err
	}
	activitiesProcessed.WithLabelValues(string(KindAccept)).Inc()

	// statuses only matter from now on, so pick up a fresh profile
	if !followed {
		if _, err := ac.deps.Actors.FetchActor(ctx, ac.account.URI, true); err != nil {
			ac.log.Info("refresh of newly followed account failed", "actor", ac.account.URI, "err", err)
		}
	}
	return nil
}

// embeddedFollowRequest finds the request of a local account named as
// the actor of an embedded Follow
func embeddedFollowRequest(ctx context.Context, a *activity) (*domain.FollowRequest, error) {
	follower, err := a.tags().AccountFromURI(ctx, valueOrID(asObject(a.object)["actor"]))
	if err != nil || follower == nil || !follower.IsLocal() {
		return nil, err
	}
	return a.db().FindFollowRequest(ctx, follower.Id, a.account.Id)
}
