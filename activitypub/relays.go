package activitypub

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/deemkeen/fedinbox/domain"
	"github.com/deemkeen/fedinbox/util"
)

var ErrRelayNotFound = errors.New("relay actor could not be fetched")

// NormalizeRelayURL turns a bare relay host into its actor URI. Most relays
// serve their actor at /actor.
func NormalizeRelayURL(input string) string {
	input = strings.TrimSpace(input)
	if strings.HasPrefix(input, "https://") || strings.HasPrefix(input, "http://") {
		return input
	}
	return "https://" + strings.TrimSuffix(input, "/") + "/actor"
}

// SubscribeRelay follows a relay as the instance actor. A rejected
// subscription is replaced by a fresh one, any other existing one is
// returned unchanged.
func SubscribeRelay(ctx context.Context, deps *Deps, input string) (*domain.Relay, error) {
	actorURI := NormalizeRelayURL(input)
	if !util.IsURL(actorURI) {
		return nil, fmt.Errorf("%w: %q", ErrRelayNotFound, input)
	}

	existing, err := deps.Database.FindRelayByActorURI(ctx, actorURI)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if existing.State != domain.RelayRejected {
			return existing, nil
		}
		if err := deps.Database.DeleteRelay(ctx, existing.Id); err != nil {
			return nil, err
		}
	}

	instance, err := EnsureInstanceActor(ctx, deps)
	if err != nil {
		return nil, err
	}
	actor, err := deps.Actors.FetchActor(ctx, actorURI, true)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRelayNotFound, err)
	}
	if actor == nil {
		return nil, ErrRelayNotFound
	}

	relay := &domain.Relay{
		ActorURI:  actorURI,
		InboxURI:  actor.InboxURI,
		FollowURI: deps.Tags.FollowURI(instance),
	}
	if err := deps.Database.CreateRelay(ctx, relay); err != nil {
		return nil, fmt.Errorf("failed to store relay %s: %w", actorURI, err)
	}
	if err := deps.Outbox.FollowRelay(ctx, relay, instance); err != nil {
		return nil, err
	}
	return relay, nil
}

// UnsubscribeRelay sends an Undo to the relay and forgets it
func UnsubscribeRelay(ctx context.Context, deps *Deps, relay *domain.Relay) error {
	instance, err := EnsureInstanceActor(ctx, deps)
	if err != nil {
		return err
	}
	if err := deps.Outbox.UnfollowRelay(ctx, relay, instance); err != nil {
		return err
	}
	return deps.Database.DeleteRelay(ctx, relay.Id)
}
