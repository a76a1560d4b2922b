package domain

import (
	"time"

	"github.com/google/uuid"
)

// Follow represents an accepted follow relationship
type Follow struct {
	Id              uuid.UUID
	AccountId       uuid.UUID // follower, local or remote
	TargetAccountId uuid.UUID // followee, local or remote
	URI             string    // ActivityPub Follow activity URI
	CreatedAt       time.Time
}

// FollowRequest is a follow awaiting approval by the target
type FollowRequest struct {
	Id              uuid.UUID
	AccountId       uuid.UUID
	TargetAccountId uuid.UUID
	URI             string
	CreatedAt       time.Time
}

// Block represents one account blocking another
type Block struct {
	Id              uuid.UUID
	AccountId       uuid.UUID
	TargetAccountId uuid.UUID
	URI             string
	CreatedAt       time.Time
}

// Favourite represents a like on a status
type Favourite struct {
	Id        uuid.UUID
	AccountId uuid.UUID // Who liked (can be local or remote)
	StatusId  uuid.UUID // Which status was liked
	URI       string    // ActivityPub Like activity URI
	CreatedAt time.Time
}

// Report is a moderation report received through a Flag activity
type Report struct {
	Id              uuid.UUID
	AccountId       uuid.UUID // reporting remote account
	TargetAccountId uuid.UUID // reported local account
	StatusIds       []uuid.UUID
	Comment         string
	URI             string
	CreatedAt       time.Time
}

// Activity is the ingestion log entry used for deduplication
type Activity struct {
	Id                   uuid.UUID
	ActivityURI          string
	ActivityType         string // Follow, Create, Like, Announce, Undo, etc.
	ActorURI             string
	DeliveredToAccountId *uuid.UUID
	Processed            bool
	CreatedAt            time.Time
}

// DeliveryPriority orders the delivery queue
type DeliveryPriority int

const (
	PriorityNormal DeliveryPriority = 0
	PriorityLow    DeliveryPriority = 1
)

// DeliveryQueueItem represents an item in the delivery queue
type DeliveryQueueItem struct {
	Id              uuid.UUID
	InboxURI        string
	ActivityJSON    string    // The complete activity to deliver, posted verbatim
	SignerAccountId uuid.UUID // Local account whose key signs the request
	Priority        DeliveryPriority
	Attempts        int
	NextRetryAt     time.Time
	CreatedAt       time.Time
}

// RelayState tracks the lifecycle of a relay subscription
type RelayState string

const (
	RelayPending  RelayState = "pending"
	RelayAccepted RelayState = "accepted"
	RelayRejected RelayState = "rejected"
)

// Relay represents an ActivityPub relay subscription
type Relay struct {
	Id         uuid.UUID
	ActorURI   string // The relay's actor URI (e.g., https://relay.example.com/actor)
	InboxURI   string // The relay's inbox URI for delivering activities
	FollowURI  string // The URI of our Follow activity (needed for Accept/Reject)
	State      RelayState
	CreatedAt  time.Time
	AcceptedAt *time.Time // When the relay accepted our Follow request
}

// Enabled reports whether content arriving through the relay is wanted
func (r *Relay) Enabled() bool {
	return r.State == RelayAccepted
}
