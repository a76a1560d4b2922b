package activitypub

import (
	"context"
	"log/slog"
	"slices"

	"github.com/deemkeen/fedinbox/domain"
	"github.com/google/uuid"
)

// Forwarder relays signed activities about a status to the followers of
// local accounts that shared it or were replied to
type Forwarder struct {
	database Database
	log      *slog.Logger
}

func NewForwarder(database Database) *Forwarder {
	return &Forwarder{
		database: database,
		log:      slog.Default().With("component", "forwarder"),
	}
}

// Forwardable holds for distributable statuses whose activity carries a
// Linked Data signature. Only a signed payload survives being relayed.
func (f *Forwarder) Forwardable(json map[string]any, s *domain.Status) bool {
	sig := asObject(json["signature"])
	if sig == nil || stringField(sig, "signatureValue") == "" {
		return false
	}
	return s != nil && s.Distributable()
}

// Forward enqueues payload for every interested inbox. Deliveries are
// low priority and independent of each other.
func (f *Forwarder) Forward(ctx context.Context, payload []byte, s *domain.Status, sender *domain.Account) error {
	rebloggers, err := f.database.LocalReblogAndQuoteAccountIDs(ctx, s.Id)
	if err != nil {
		return err
	}

	var replyTarget *domain.Account
	if s.InReplyToAccountId != nil {
		replyTarget, err = f.database.FindAccountByID(ctx, *s.InReplyToAccountId)
		if err != nil {
			return err
		}
		if replyTarget != nil && !replyTarget.IsLocal() {
			replyTarget = nil
		}
	}

	var signer uuid.UUID
	switch {
	case replyTarget != nil:
		signer = replyTarget.Id
	case len(rebloggers) > 0:
		signer = rebloggers[0]
	default:
		return nil
	}

	inboxes, err := f.database.FollowerInboxes(ctx, rebloggers)
	if err != nil {
		return err
	}
	if replyTarget != nil {
		more, err := f.database.FollowerInboxes(ctx, []uuid.UUID{replyTarget.Id})
		if err != nil {
			return err
		}
		inboxes = append(inboxes, more...)
	}

	exclude := []string{sender.PreferredInbox(), sender.InboxURI}
	var items []domain.DeliveryQueueItem
	for _, inbox := range dedupe(inboxes) {
		if slices.Contains(exclude, inbox) {
			continue
		}
		items = append(items, domain.DeliveryQueueItem{
			InboxURI:        inbox,
			ActivityJSON:    string(payload),
			SignerAccountId: signer,
			Priority:        domain.PriorityLow,
		})
	}
	if len(items) == 0 {
		return nil
	}

	if err := f.database.EnqueueDeliveries(ctx, items); err != nil {
		return err
	}
	forwarded.Add(float64(len(items)))
	f.log.Info("forwarded activity", "status", s.URI, "inboxes", len(items))
	return nil
}
