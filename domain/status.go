package domain

import (
	"time"

	"github.com/google/uuid"
)

// Visibility controls who a status is addressed to
type Visibility string

const (
	VisibilityPublic   Visibility = "public"
	VisibilityUnlisted Visibility = "unlisted"
	VisibilityPrivate  Visibility = "private"
	VisibilityDirect   Visibility = "direct"
	VisibilityLimited  Visibility = "limited"
)

// Distributable reports whether a status may be redistributed beyond its
// direct recipients
func (v Visibility) Distributable() bool {
	return v == VisibilityPublic || v == VisibilityUnlisted
}

// Status is a post, either authored locally or ingested from a remote server.
// A reblog is a Status with ReblogOfId set and no content of its own.
type Status struct {
	Id                 uuid.UUID
	AccountId          uuid.UUID
	URI                string
	URL                string
	Text               string
	SpoilerText        string
	Visibility         Visibility
	Sensitive          bool
	InReplyToId        *uuid.UUID
	InReplyToAccountId *uuid.UUID
	InReplyToURI       string // kept when the parent is not known yet
	ReblogOfId         *uuid.UUID
	QuoteOfId          *uuid.UUID
	Local              bool
	CreatedAt          time.Time
	EditedAt           *time.Time
}

// IsReblog reports whether the status is a boost of another status
func (s *Status) IsReblog() bool {
	return s.ReblogOfId != nil
}

// IsReply reports whether the status replies to another one
func (s *Status) IsReply() bool {
	return s.InReplyToId != nil || s.InReplyToURI != ""
}

// Distributable reports whether the status may be forwarded
func (s *Status) Distributable() bool {
	return s.Visibility.Distributable()
}

// Mention links a status to an account it addresses. Silent mentions are
// recipients of a limited status that are not named in its text.
type Mention struct {
	Id        uuid.UUID
	StatusId  uuid.UUID
	AccountId uuid.UUID
	Silent    bool
	CreatedAt time.Time
}

// Tombstone records that a URI once held content that has been deleted
type Tombstone struct {
	Id          uuid.UUID
	AccountId   uuid.UUID
	URI         string
	ByModerator bool
	CreatedAt   time.Time
}

// StatusPin is a status featured on its author's profile
type StatusPin struct {
	Id        uuid.UUID
	AccountId uuid.UUID
	StatusId  uuid.UUID
	CreatedAt time.Time
}
