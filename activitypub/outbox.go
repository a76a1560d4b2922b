package activitypub

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/deemkeen/fedinbox/domain"
	"github.com/google/uuid"
)

// Outbox builds the activities sent in reaction to inbound ones and queues
// them for delivery
type Outbox struct {
	database Database
	tags     *TagManager
	log      *slog.Logger
}

func NewOutbox(database Database, tags *TagManager) *Outbox {
	return &Outbox{
		database: database,
		tags:     tags,
		log:      slog.Default().With("component", "outbox"),
	}
}

func marshalActivity(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal activity: %w", err)
	}
	return b, nil
}

// followObject echoes the Follow being answered
func followObject(follow map[string]any) map[string]any {
	return map[string]any{
		"id":     stringField(follow, "id"),
		"type":   string(KindFollow),
		"actor":  valueOrID(follow["actor"]),
		"object": valueOrID(follow["object"]),
	}
}

// AcceptFollow tells follower that target accepted its Follow
func (o *Outbox) AcceptFollow(ctx context.Context, follow map[string]any, target, follower *domain.Account, followID string) error {
	actor := o.tags.AccountURI(target)
	accept := map[string]any{
		"@context": ActivityStreamsContext,
		"id":       actor + "#accepts/follows/" + followID,
		"type":     string(KindAccept),
		"actor":    actor,
		"object":   followObject(follow),
	}
	return o.enqueue(ctx, accept, target, follower)
}

// RejectFollow tells follower that target refuses its Follow
func (o *Outbox) RejectFollow(ctx context.Context, follow map[string]any, target, follower *domain.Account) error {
	actor := o.tags.AccountURI(target)
	reject := map[string]any{
		"@context": ActivityStreamsContext,
		"id":       actor + "#rejects/follows/" + uuid.NewString(),
		"type":     string(KindReject),
		"actor":    actor,
		"object":   followObject(follow),
	}
	return o.enqueue(ctx, reject, target, follower)
}

// Follow asks target to accept a follow request of a local account
func (o *Outbox) Follow(ctx context.Context, request *domain.FollowRequest, follower, target *domain.Account) error {
	follow := map[string]any{
		"@context": ActivityStreamsContext,
		"id":       request.URI,
		"type":     string(KindFollow),
		"actor":    o.tags.AccountURI(follower),
		"object":   o.tags.AccountURI(target),
	}
	return o.enqueue(ctx, follow, follower, target)
}

// UndoFollow withdraws a follow of a local account
func (o *Outbox) UndoFollow(ctx context.Context, follow *domain.Follow, follower, target *domain.Account) error {
	actor := o.tags.AccountURI(follower)
	followURI := follow.URI
	if followURI == "" {
		followURI = actor + "#follows/" + follow.Id.String()
	}
	undo := map[string]any{
		"@context": ActivityStreamsContext,
		"id":       followURI + "/undo",
		"type":     string(KindUndo),
		"actor":    actor,
		"object": map[string]any{
			"id":     followURI,
			"type":   string(KindFollow),
			"actor":  actor,
			"object": o.tags.AccountURI(target),
		},
	}
	return o.enqueue(ctx, undo, follower, target)
}

// FollowRelay subscribes the instance actor to the public stream of relay
func (o *Outbox) FollowRelay(ctx context.Context, relay *domain.Relay, instance *domain.Account) error {
	follow := map[string]any{
		"@context": ActivityStreamsContext,
		"id":       relay.FollowURI,
		"type":     string(KindFollow),
		"actor":    o.tags.AccountURI(instance),
		"object":   PublicCollection,
	}
	return o.enqueueInbox(ctx, follow, instance, relay.InboxURI)
}

// UnfollowRelay ends a relay subscription
func (o *Outbox) UnfollowRelay(ctx context.Context, relay *domain.Relay, instance *domain.Account) error {
	actor := o.tags.AccountURI(instance)
	undo := map[string]any{
		"@context": ActivityStreamsContext,
		"id":       relay.FollowURI + "/undo",
		"type":     string(KindUndo),
		"actor":    actor,
		"object": map[string]any{
			"id":     relay.FollowURI,
			"type":   string(KindFollow),
			"actor":  actor,
			"object": PublicCollection,
		},
	}
	return o.enqueueInbox(ctx, undo, instance, relay.InboxURI)
}

// enqueue serializes payload and queues it for recipient's own inbox,
// signed by signer
func (o *Outbox) enqueue(ctx context.Context, payload map[string]any, signer, recipient *domain.Account) error {
	if recipient.IsLocal() {
		return nil
	}
	if recipient.InboxURI == "" {
		o.log.Info("recipient has no inbox", "recipient", recipient.URI, "type", payload["type"])
		return nil
	}
	return o.enqueueInbox(ctx, payload, signer, recipient.InboxURI)
}

func (o *Outbox) enqueueInbox(ctx context.Context, payload map[string]any, signer *domain.Account, inbox string) error {
	body, err := marshalActivity(CamelLower(payload))
	if err != nil {
		return err
	}
	return o.database.EnqueueDeliveries(ctx, []domain.DeliveryQueueItem{{
		InboxURI:        inbox,
		ActivityJSON:    string(body),
		SignerAccountId: signer.Id,
		Priority:        domain.PriorityNormal,
	}})
}
