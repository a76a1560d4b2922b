package web

import (
	"net/http"
	"strings"

	"github.com/deemkeen/fedinbox/activitypub"
	"github.com/deemkeen/fedinbox/domain"
	"github.com/gin-gonic/gin"
)

const contentTypeActivity = "application/activity+json; charset=utf-8"

// ActorDocument renders a local account as an ActivityPub actor
func ActorDocument(tags *activitypub.TagManager, a *domain.Account) map[string]any {
	uri := tags.AccountURI(a)

	displayName := a.DisplayName
	if displayName == "" {
		displayName = a.Username
	}
	actorType := a.ActorType
	if actorType == "" {
		actorType = domain.ActorPerson
	}

	doc := map[string]any{
		"@context": []any{
			activitypub.ActivityStreamsContext,
			activitypub.SecurityContext,
		},
		"id":                        uri,
		"type":                      string(actorType),
		"preferredUsername":         a.Username,
		"name":                      displayName,
		"summary":                   a.Summary,
		"inbox":                     tags.InboxURI(a),
		"outbox":                    uri + "/outbox",
		"url":                       uri,
		"manuallyApprovesFollowers": a.Locked,
		"endpoints": map[string]any{
			"sharedInbox": tags.SharedInboxURI(),
		},
		"publicKey": map[string]any{
			"id":           tags.KeyID(a),
			"owner":        uri,
			"publicKeyPem": a.PublicKeyPem,
		},
	}
	if tags.IsInstanceActor(a) {
		return doc
	}

	doc["followers"] = tags.FollowersURI(a)
	doc["following"] = uri + "/following"
	doc["featured"] = tags.FeaturedURI(a)
	doc["discoverable"] = true
	if len(a.AlsoKnownAs) > 0 {
		doc["alsoKnownAs"] = a.AlsoKnownAs
	}
	return doc
}

// WebfingerDocument resolves acct:user@domain for a local account
func WebfingerDocument(tags *activitypub.TagManager, a *domain.Account) map[string]any {
	return map[string]any{
		"subject": "acct:" + a.Username + "@" + tags.LocalDomain(),
		"aliases": []string{tags.AccountURI(a)},
		"links": []any{
			map[string]any{
				"rel":  "self",
				"type": "application/activity+json",
				"href": tags.AccountURI(a),
			},
		},
	}
}

// webfingerUsername extracts the local username from a webfinger resource
// such as acct:alice@example.com or an actor URL
func webfingerUsername(tags *activitypub.TagManager, resource string) string {
	resource = strings.TrimPrefix(resource, "acct:")
	if user, host, ok := strings.Cut(resource, "@"); ok {
		if !tags.IsLocalDomain(host) {
			return ""
		}
		return user
	}
	if !tags.IsLocalURI(resource) {
		return ""
	}
	if strings.HasSuffix(resource, "/actor") {
		return tags.LocalDomain()
	}
	if _, user, ok := strings.Cut(resource, "/users/"); ok && user != "" && !strings.Contains(user, "/") {
		return user
	}
	return ""
}

type actorHandler struct {
	deps            *activitypub.Deps
	inbox           *InboxHandler
	authorizedFetch bool
}

func (h *actorHandler) serveActor(c *gin.Context, username string) {
	ctx := c.Request.Context()
	account, err := h.deps.Database.FindLocalAccount(ctx, username)
	if err != nil {
		c.Status(http.StatusInternalServerError)
		return
	}
	if account == nil || account.Suspended {
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
		return
	}

	// the instance actor must stay fetchable so remote servers can verify
	// our own signed fetches
	if h.authorizedFetch && !h.deps.Tags.IsInstanceActor(account) {
		if _, err := h.inbox.Authenticate(ctx, c.Request, nil); err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Signature required"})
			return
		}
	}

	c.Header("Content-Type", contentTypeActivity)
	c.JSON(http.StatusOK, ActorDocument(h.deps.Tags, account))
}

func (h *actorHandler) user(c *gin.Context) {
	username := c.Param("username")
	if h.deps.Tags.IsInstanceActor(&domain.Account{Username: username}) {
		c.Redirect(http.StatusMovedPermanently, "/actor")
		return
	}
	h.serveActor(c, username)
}

func (h *actorHandler) instance(c *gin.Context) {
	h.serveActor(c, h.deps.Tags.LocalDomain())
}

func (h *actorHandler) webfinger(c *gin.Context) {
	username := webfingerUsername(h.deps.Tags, c.Query("resource"))
	if username == "" {
		c.JSON(http.StatusNotFound, gin.H{"detail": "Not Found"})
		return
	}
	account, err := h.deps.Database.FindLocalAccount(c.Request.Context(), username)
	if err != nil {
		c.Status(http.StatusInternalServerError)
		return
	}
	if account == nil || account.Suspended {
		c.JSON(http.StatusNotFound, gin.H{"detail": "Not Found"})
		return
	}
	c.Header("Content-Type", "application/jrd+json; charset=utf-8")
	c.JSON(http.StatusOK, WebfingerDocument(h.deps.Tags, account))
}
