package activitypub

import (
	"context"

	"github.com/deemkeen/fedinbox/domain"
)

// Like favourites a local status
type Like struct {
	activity
}

func (l *Like) Perform(ctx context.Context) error {
	status, err := l.tags().StatusFromURI(ctx, l.objectURI())
	if err != nil {
		return err
	}
	if !isLocalStatus(status) {
		l.reject("status is not local")
		return nil
	}

	suppressed, err := l.deleteArrivedFirst(ctx, l.id())
	if err != nil {
		return err
	}
	if suppressed {
		l.reject("undone before arrival")
		return nil
	}

	created, err := l.db().CreateFavourite(ctx, &domain.Favourite{
		AccountId: l.account.Id,
		StatusId:  status.Id,
		URI:       l.id(),
	})
	if err != nil || !created {
		return err
	}
	activitiesProcessed.WithLabelValues(string(KindLike)).Inc()

	author, err := l.db().FindAccountByID(ctx, status.AccountId)
	if err != nil {
		return err
	}
	return l.notify(ctx, author, domain.NotificationFavourite, status)
}
