package activitypub

import (
	"context"

	"github.com/deemkeen/fedinbox/domain"
)

// Block records a remote account blocking a local one and severs their
// relationships
type Block struct {
	activity
}

func (b *Block) Perform(ctx context.Context) error {
	target, err := b.tags().AccountFromURI(ctx, b.objectURI())
	if err != nil {
		return err
	}
	if target == nil || !target.IsLocal() {
		b.reject("target is not local")
		return nil
	}

	existing, err := b.db().FindBlock(ctx, b.account.Id, target.Id)
	if err != nil {
		return err
	}
	if existing != nil {
		return b.db().UpdateBlockURI(ctx, existing.Id, b.id())
	}

	// the blocker stops following
	follow, err := b.db().FindFollow(ctx, b.account.Id, target.Id)
	if err != nil {
		return err
	}
	if follow != nil {
		if err := b.db().DeleteFollow(ctx, follow.Id); err != nil {
			return err
		}
	}

	// and loses its local follower, who is told so remotely
	reverse, err := b.db().FindFollow(ctx, target.Id, b.account.Id)
	if err != nil {
		return err
	}
	if reverse != nil {
		if err := b.db().DeleteFollow(ctx, reverse.Id); err != nil {
			return err
		}
		if err := b.deps.Outbox.UndoFollow(ctx, reverse, target, b.account); err != nil {
			return err
		}
	}

	for _, pair := range [][2]*domain.Account{{b.account, target}, {target, b.account}} {
		request, err := b.db().FindFollowRequest(ctx, pair[0].Id, pair[1].Id)
		if err != nil {
			return err
		}
		if request != nil {
			if err := b.db().DeleteFollowRequest(ctx, request.Id); err != nil {
				return err
			}
		}
	}

	suppressed, err := b.deleteArrivedFirst(ctx, b.id())
	if err != nil {
		return err
	}
	if suppressed {
		b.reject("undone before arrival")
		return nil
	}

	if _, err := b.db().CreateBlock(ctx, b.account.Id, target.Id, b.id()); err != nil {
		return err
	}
	activitiesProcessed.WithLabelValues(string(KindBlock)).Inc()
	return nil
}
