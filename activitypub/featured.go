package activitypub

import (
	"context"

	"github.com/deemkeen/fedinbox/domain"
)

// Add pins a status to the actor's featured collection
type Add struct {
	activity
}

// Remove unpins a status from the actor's featured collection
type Remove struct {
	activity
}

// targetsFeatured reports whether the activity's target is the actor's
// featured collection
func (a *activity) targetsFeatured() bool {
	target := valueOrID(a.json["target"])
	return target != "" && a.account.FeaturedURI != "" && target == a.account.FeaturedURI
}

func (ad *Add) Perform(ctx context.Context) error {
	if !ad.targetsFeatured() {
		ad.reject("target is not the featured collection")
		return nil
	}
	status, err := ad.statusFromObject(ctx)
	if err != nil {
		return err
	}
	if status == nil || status.AccountId != ad.account.Id || status.Visibility == domain.VisibilityDirect {
		ad.reject("status cannot be featured")
		return nil
	}
	if err := ad.db().PinStatus(ctx, ad.account.Id, status.Id); err != nil {
		return err
	}
	activitiesProcessed.WithLabelValues(string(KindAdd)).Inc()
	return nil
}

func (r *Remove) Perform(ctx context.Context) error {
	if !r.targetsFeatured() {
		r.reject("target is not the featured collection")
		return nil
	}
	status, err := r.tags().StatusFromURI(ctx, r.objectURI())
	if err != nil {
		return err
	}
	if status == nil || status.AccountId != r.account.Id {
		return nil
	}
	if err := r.db().UnpinStatus(ctx, r.account.Id, status.Id); err != nil {
		return err
	}
	activitiesProcessed.WithLabelValues(string(KindRemove)).Inc()
	return nil
}
