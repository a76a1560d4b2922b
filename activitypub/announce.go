package activitypub

import (
	"context"

	"github.com/deemkeen/fedinbox/domain"
	"github.com/google/uuid"
)

// Announce records a reblog
type Announce struct {
	activity
}

func (an *Announce) Perform(ctx context.Context) error {
	suppressed, err := an.deleteArrivedFirst(ctx, an.id())
	if err != nil {
		return err
	}
	if suppressed {
		an.reject("undone before arrival")
		return nil
	}

	relevant, err := an.relevant(ctx)
	if err != nil {
		return err
	}
	if !relevant {
		an.reject("not relevant")
		return nil
	}

	original, err := an.statusFromObject(ctx)
	if err != nil {
		return err
	}
	if original == nil {
		an.reject("unresolvable original")
		return nil
	}
	announceable, err := an.announceable(ctx, original)
	if err != nil {
		return err
	}
	if !announceable {
		an.reject("original is not announceable")
		return nil
	}

	existing, err := an.db().FindReblog(ctx, an.account.Id, original.Id)
	if err != nil || existing != nil {
		return err
	}

	originalID := original.Id
	reblog := &domain.Status{
		Id:         uuid.New(),
		AccountId:  an.account.Id,
		URI:        an.id(),
		ReblogOfId: &originalID,
		Visibility: visibilityFromAudience(an.json, an.account, false),
		CreatedAt:  publishedAt(an.json),
	}
	created, err := an.db().InsertStatus(ctx, reblog, nil)
	if err != nil || !created {
		return err
	}
	activitiesProcessed.WithLabelValues(string(KindAnnounce)).Inc()

	author, err := an.db().FindAccountByID(ctx, original.AccountId)
	if err != nil {
		return err
	}
	return an.notify(ctx, author, domain.NotificationReblog, original)
}

// relevant holds when locals follow the actor, a relay brought it or it
// boosts a local status
func (an *Announce) relevant(ctx context.Context) (bool, error) {
	followed, err := an.db().HasLocalFollowers(ctx, an.account.Id)
	if err != nil || followed {
		return followed, err
	}
	relayed, err := an.viaRelay(ctx)
	if err != nil || relayed {
		return relayed, err
	}
	status, err := an.tags().StatusFromURI(ctx, an.objectURI())
	if err != nil {
		return false, err
	}
	return isLocalStatus(status), nil
}

func (an *Announce) announceable(ctx context.Context, original *domain.Status) (bool, error) {
	if original.AccountId == an.account.Id || original.Distributable() {
		return true, nil
	}
	follow, err := an.db().FindFollow(ctx, an.account.Id, original.AccountId)
	return follow != nil, err
}
