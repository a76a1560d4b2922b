package web

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/deemkeen/fedinbox/activitypub"
	"github.com/deemkeen/fedinbox/domain"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// signatureClockSkew is how far the Date header may drift from our clock
const signatureClockSkew = 12 * time.Hour

var (
	errUnsigned      = errors.New("request is not signed")
	errUnknownKey    = errors.New("signing key could not be resolved")
	errStaleRequest  = errors.New("date header outside the accepted window")
	errWeakSignature = errors.New("signature does not cover the required headers")
)

// InboxHandler authenticates inbox POSTs and hands them to the processor
type InboxHandler struct {
	deps      *activitypub.Deps
	processor *activitypub.Processor
	log       *slog.Logger
	now       func() time.Time
}

func NewInboxHandler(deps *activitypub.Deps, processor *activitypub.Processor) *InboxHandler {
	return &InboxHandler{
		deps:      deps,
		processor: processor,
		log:       slog.Default().With("component", "inbox"),
		now:       time.Now,
	}
}

// SharedInbox serves POST /inbox
func (h *InboxHandler) SharedInbox(c *gin.Context) {
	h.serve(c, nil)
}

// PersonalInbox serves POST /users/:username/inbox
func (h *InboxHandler) PersonalInbox(c *gin.Context) {
	recipient, err := h.deps.Database.FindLocalAccount(c.Request.Context(), c.Param("username"))
	if err != nil {
		h.log.Error("failed to look up inbox owner", "username", c.Param("username"), "err", err)
		c.Status(http.StatusInternalServerError)
		return
	}
	if recipient == nil || recipient.Suspended {
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
		return
	}
	h.serve(c, recipient)
}

func (h *InboxHandler) serve(c *gin.Context, recipient *domain.Account) {
	ctx := c.Request.Context()

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "Request body too large"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read body"})
		return
	}

	signer, err := h.Authenticate(ctx, c.Request, body)
	if err != nil {
		h.log.Info("signature verification failed", "path", c.Request.URL.Path, "key", activitypub.SignatureKeyID(c.Request), "err", err)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid signature"})
		return
	}

	opts := activitypub.Options{
		RequestID: uuid.NewString(),
		Delivery:  true,
	}
	if recipient != nil {
		opts.DeliveredToAccountID = &recipient.Id
	}

	err = h.processor.ProcessCollection(ctx, body, signer, opts)
	switch {
	case errors.Is(err, activitypub.ErrMalformedActivity):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid activity"})
	case err != nil:
		h.log.Error("failed to process activity", "request_id", opts.RequestID, "signer", signer.URI, "err", err)
		c.Status(http.StatusInternalServerError)
	default:
		c.Status(http.StatusAccepted)
	}
}

// Authenticate returns the account whose key signed req. A failed
// verification against a stored key refetches the actor once, in case the
// key was rotated.
func (h *InboxHandler) Authenticate(ctx context.Context, req *http.Request, body []byte) (*domain.Account, error) {
	keyID := activitypub.SignatureKeyID(req)
	if keyID == "" {
		return nil, errUnsigned
	}
	if err := checkSignedHeaders(req); err != nil {
		return nil, err
	}
	if err := h.checkDate(req); err != nil {
		return nil, err
	}
	if req.Header.Get("Host") == "" {
		req.Header.Set("Host", req.Host)
	}

	account, err := h.deps.Actors.FetchKey(ctx, keyID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errUnknownKey, err)
	}
	if account == nil || account.PublicKeyPem == "" {
		return nil, errUnknownKey
	}

	if _, err := activitypub.VerifyRequest(req, account.PublicKeyPem); err != nil {
		if account.IsLocal() {
			return nil, err
		}
		refreshed, ferr := h.deps.Actors.FetchActor(ctx, account.URI, true)
		if ferr != nil || refreshed == nil || refreshed.PublicKeyPem == account.PublicKeyPem {
			return nil, err
		}
		if _, err := activitypub.VerifyRequest(req, refreshed.PublicKeyPem); err != nil {
			return nil, err
		}
		account = refreshed
	}

	if req.Method == http.MethodPost {
		if err := activitypub.VerifyDigest(req, body); err != nil {
			return nil, err
		}
	}
	return account, nil
}

// checkSignedHeaders requires the signature to cover the request target and
// the date, and the digest when there is a body
func checkSignedHeaders(req *http.Request) error {
	required := []string{"(request-target)", "date"}
	if req.Method == http.MethodPost {
		required = append(required, "digest")
	}
	signed := activitypub.SignedHeaders(req)
	for _, name := range required {
		if !slices.Contains(signed, name) {
			return fmt.Errorf("%w: %s", errWeakSignature, name)
		}
	}
	return nil
}

func (h *InboxHandler) checkDate(req *http.Request) error {
	header := req.Header.Get("Date")
	if header == "" {
		return fmt.Errorf("%w: missing", errStaleRequest)
	}
	date, err := http.ParseTime(header)
	if err != nil {
		return fmt.Errorf("%w: %w", errStaleRequest, err)
	}
	skew := h.now().Sub(date)
	if skew > signatureClockSkew || skew < -signatureClockSkew {
		return errStaleRequest
	}
	return nil
}
