package activitypub

import (
	"context"

	"github.com/deemkeen/fedinbox/domain"
	"github.com/google/uuid"
)

// Flag files moderation reports against local accounts
type Flag struct {
	activity
}

func (f *Flag) Perform(ctx context.Context) error {
	uris := uriList(f.object)

	var targets []*domain.Account
	seen := map[uuid.UUID]bool{}
	addTarget := func(account *domain.Account) {
		if !seen[account.Id] {
			seen[account.Id] = true
			targets = append(targets, account)
		}
	}
	statusesByAccount := map[uuid.UUID][]uuid.UUID{}
	for _, uri := range uris {
		status, err := f.tags().StatusFromURI(ctx, uri)
		if err != nil {
			return err
		}
		if isLocalStatus(status) {
			author, err := f.db().FindAccountByID(ctx, status.AccountId)
			if err != nil {
				return err
			}
			if author != nil && author.IsLocal() {
				addTarget(author)
				statusesByAccount[author.Id] = append(statusesByAccount[author.Id], status.Id)
			}
			continue
		}
		account, err := f.tags().AccountFromURI(ctx, uri)
		if err != nil {
			return err
		}
		if account != nil && account.IsLocal() {
			addTarget(account)
		}
	}
	if len(targets) == 0 {
		f.reject("no local target")
		return nil
	}

	reportURI := ""
	if id := f.id(); id != "" && !nonMatchingHosts(id, f.account.URI) {
		reportURI = id
	}
	for _, target := range targets {
		if target.Suspended {
			continue
		}
		err := f.db().CreateReport(ctx, &domain.Report{
			AccountId:       f.account.Id,
			TargetAccountId: target.Id,
			StatusIds:       statusesByAccount[target.Id],
			Comment:         stringField(f.json, "content"),
			URI:             reportURI,
		})
		if err != nil {
			return err
		}
	}
	activitiesProcessed.WithLabelValues(string(KindFlag)).Inc()
	return nil
}
