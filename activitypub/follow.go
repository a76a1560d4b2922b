package activitypub

import (
	"context"

	"github.com/deemkeen/fedinbox/domain"
)

// Follow handles a remote account following a local one
type Follow struct {
	activity
}

func (f *Follow) Perform(ctx context.Context) error {
	target, err := f.tags().AccountFromURI(ctx, f.objectURI())
	if err != nil {
		return err
	}
	if target == nil || !target.IsLocal() {
		f.reject("target is not local")
		return nil
	}

	suppressed, err := f.deleteArrivedFirst(ctx, f.id())
	if err != nil {
		return err
	}
	if suppressed {
		f.reject("undone before arrival")
		return nil
	}

	request, err := f.db().FindFollowRequest(ctx, f.account.Id, target.Id)
	if err != nil {
		return err
	}
	if request != nil {
		return f.db().UpdateFollowRequestURI(ctx, request.Id, f.id())
	}

	blocked, err := f.db().FindBlock(ctx, target.Id, f.account.Id)
	if err != nil {
		return err
	}
	if blocked != nil || target.Moved() || f.tags().IsInstanceActor(target) {
		return f.deps.Outbox.RejectFollow(ctx, f.json, target, f.account)
	}

	follow, err := f.db().FindFollow(ctx, f.account.Id, target.Id)
	if err != nil {
		return err
	}
	if follow != nil {
		if err := f.db().UpdateFollowURI(ctx, follow.Id, f.id()); err != nil {
			return err
		}
		return f.deps.Outbox.AcceptFollow(ctx, f.json, target, f.account, follow.Id.String())
	}

	request, err = f.db().CreateFollowRequest(ctx, f.account.Id, target.Id, f.id())
	if err != nil {
		return err
	}
	activitiesProcessed.WithLabelValues(string(KindFollow)).Inc()

	if target.Locked || f.account.Silenced {
		return f.notify(ctx, target, domain.NotificationFollowRequest, nil)
	}

	follow, err = f.db().AuthorizeFollowRequest(ctx, request)
	if err != nil {
		return err
	}
	if err := f.deps.Outbox.AcceptFollow(ctx, f.json, target, f.account, follow.Id.String()); err != nil {
		return err
	}
	return f.notify(ctx, target, domain.NotificationFollow, nil)
}
