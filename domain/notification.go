package domain

import (
	"time"

	"github.com/google/uuid"
)

// NotificationType represents the type of notification
type NotificationType string

const (
	NotificationFollow        NotificationType = "follow"
	NotificationFollowRequest NotificationType = "follow_request"
	NotificationFavourite     NotificationType = "favourite"
	NotificationReblog        NotificationType = "reblog"
	NotificationReply         NotificationType = "reply"
	NotificationMention       NotificationType = "mention"
	NotificationMove          NotificationType = "move"
)

// Notification tells a local account about a remote interaction
type Notification struct {
	Id               uuid.UUID
	AccountId        uuid.UUID // The local user receiving the notification
	NotificationType NotificationType
	FromAccountId    uuid.UUID  // The account that triggered the notification
	StatusId         *uuid.UUID // Set for favourite/reblog/reply/mention
	Read             bool
	CreatedAt        time.Time
}
