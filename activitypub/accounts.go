package activitypub

import (
	"context"
	"errors"
	"fmt"

	"github.com/deemkeen/fedinbox/domain"
	"github.com/deemkeen/fedinbox/util"
)

var (
	ErrInvalidUsername = errors.New("invalid username")
	ErrUsernameTaken   = errors.New("username already taken")
)

// EnsureInstanceActor returns the instance actor, creating it with a fresh
// keypair on first start
func EnsureInstanceActor(ctx context.Context, deps *Deps) (*domain.Account, error) {
	actor, err := deps.Tags.InstanceActor(ctx)
	if err != nil || actor != nil {
		return actor, err
	}
	return createLocalAccount(ctx, deps, deps.Tags.LocalDomain(), domain.ActorApplication, true)
}

// CreateLocalAccount registers a local user with a new keypair
func CreateLocalAccount(ctx context.Context, deps *Deps, username string, locked bool) (*domain.Account, error) {
	if ok, reason := util.IsValidWebFingerUsername(username); !ok {
		return nil, fmt.Errorf("%w: %s", ErrInvalidUsername, reason)
	}
	if util.IsReservedUsername(username, deps.Tags.LocalDomain()) {
		return nil, fmt.Errorf("%w: %s is reserved", ErrInvalidUsername, username)
	}
	existing, err := deps.Database.FindLocalAccount(ctx, username)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrUsernameTaken
	}
	return createLocalAccount(ctx, deps, username, domain.ActorPerson, locked)
}

func createLocalAccount(ctx context.Context, deps *Deps, username string, actorType domain.ActorType, locked bool) (*domain.Account, error) {
	keys, err := util.GeneratePemKeypair(util.KeyBits)
	if err != nil {
		return nil, err
	}
	account := &domain.Account{
		Username:      username,
		DisplayName:   username,
		ActorType:     actorType,
		PublicKeyPem:  keys.Public,
		PrivateKeyPem: keys.Private,
		Locked:        locked,
	}
	if err := deps.Database.InsertAccount(ctx, account); err != nil {
		return nil, fmt.Errorf("failed to create account %s: %w", username, err)
	}
	return account, nil
}
