package domain

import (
	"time"

	"github.com/google/uuid"
)

// ActorType mirrors the ActivityStreams actor type of an account
type ActorType string

const (
	ActorPerson       ActorType = "Person"
	ActorService      ActorType = "Service"
	ActorApplication  ActorType = "Application"
	ActorGroup        ActorType = "Group"
	ActorOrganization ActorType = "Organization"
)

// Account is a local or remote actor. Local accounts have an empty Domain
// and no stored URI; their URIs are derived from the local domain.
type Account struct {
	Id             uuid.UUID
	Username       string
	Domain         string
	URI            string
	URL            string
	DisplayName    string
	Summary        string
	ActorType      ActorType
	InboxURI       string
	SharedInboxURI string
	OutboxURI      string
	FollowersURI   string
	FeaturedURI    string
	AlsoKnownAs    []string
	PublicKeyPem   string
	PrivateKeyPem  string // only set for local accounts
	Locked         bool   // manuallyApprovesFollowers
	Silenced       bool
	Suspended      bool
	MovedToId      *uuid.UUID
	LastFetchedAt  time.Time
	CreatedAt      time.Time
}

// IsLocal reports whether the account lives on this server
func (a *Account) IsLocal() bool {
	return a.Domain == ""
}

// Acct returns username for local accounts and username@domain for remote ones
func (a *Account) Acct() string {
	if a.IsLocal() {
		return a.Username
	}
	return a.Username + "@" + a.Domain
}

// PreferredInbox returns the shared inbox if the remote server advertises one
func (a *Account) PreferredInbox() string {
	if a.SharedInboxURI != "" {
		return a.SharedInboxURI
	}
	return a.InboxURI
}

// IsGroup reports whether the actor is a group
func (a *Account) IsGroup() bool {
	return a.ActorType == ActorGroup
}

// Moved reports whether the account has migrated elsewhere
func (a *Account) Moved() bool {
	return a.MovedToId != nil
}

// KnownAs reports whether uri is listed in the account's alsoKnownAs
func (a *Account) KnownAs(uri string) bool {
	for _, aka := range a.AlsoKnownAs {
		if aka == uri {
			return true
		}
	}
	return false
}
