package activitypub

import (
	"context"

	"github.com/deemkeen/fedinbox/domain"
)

// Reject declines a follow sent from here, or ends an existing one
type Reject struct {
	activity
}

func (r *Reject) Perform(ctx context.Context) error {
	relay, err := r.db().FindRelayByFollowURI(ctx, r.objectURI())
	if err != nil {
		return err
	}
	if relay != nil {
		return r.db().UpdateRelayState(ctx, relay.Id, domain.RelayRejected)
	}

	request, err := r.db().FindFollowRequestOfTargetByURI(ctx, r.account.Id, r.objectURI())
	if err != nil {
		return err
	}
	if request != nil {
		return r.db().DeleteFollowRequest(ctx, request.Id)
	}

	follow, err := r.db().FindFollowOfTargetByURI(ctx, r.account.Id, r.objectURI())
	if err != nil {
		return err
	}
	if follow != nil {
		return r.db().DeleteFollow(ctx, follow.Id)
	}

	if Kind(objectType(r.object)) == KindFollow {
		return r.rejectEmbeddedFollow(ctx)
	}
	r.reject("no matching follow")
	return nil
}

func (r *Reject) rejectEmbeddedFollow(ctx context.Context) error {
	follower, err := r.tags().AccountFromURI(ctx, valueOrID(asObject(r.object)["actor"]))
	if err != nil || follower == nil || !follower.IsLocal() {
		return err
	}
	follow, err := r.db().FindFollow(ctx, follower.Id, r.account.Id)
	if err != nil {
		return err
	}
	if follow != nil {
		return r.db().DeleteFollow(ctx, follow.Id)
	}
	request, err := embeddedFollowRequest(ctx, &r.activity)
	if err != nil || request == nil {
		return err
	}
	return r.db().DeleteFollowRequest(ctx, request.Id)
}
