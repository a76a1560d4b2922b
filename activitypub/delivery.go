package activitypub

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/deemkeen/fedinbox/domain"
	"golang.org/x/sync/errgroup"
)

const (
	deliveryInterval    = 10 * time.Second
	deliveryBatchSize   = 50
	maxDeliveryAttempts = 10
)

// deliveryBackoff is the wait after the nth failed attempt, in minutes
var deliveryBackoff = []int{1, 5, 15, 60, 240, 1440}

// DeliveryWorker posts queued activities to remote inboxes
type DeliveryWorker struct {
	deps    *Deps
	workers int
	log     *slog.Logger
	now     func() time.Time
}

func NewDeliveryWorker(deps *Deps, workers int) *DeliveryWorker {
	if workers <= 0 {
		workers = 4
	}
	return &DeliveryWorker{
		deps:    deps,
		workers: workers,
		log:     slog.Default().With("component", "delivery"),
		now:     time.Now,
	}
}

// Run processes the queue until ctx is cancelled
func (w *DeliveryWorker) Run(ctx context.Context) {
	w.log.Info("starting delivery worker", "workers", w.workers)
	ticker := time.NewTicker(deliveryInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.ProcessQueue(ctx); err != nil {
				w.log.Error("failed to process delivery queue", "err", err)
			}
		}
	}
}

// ProcessQueue attempts one batch of due deliveries
func (w *DeliveryWorker) ProcessQueue(ctx context.Context) error {
	items, err := w.deps.Database.ReadPendingDeliveries(ctx, deliveryBatchSize)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		return nil
	}
	w.log.Debug("processing pending deliveries", "count", len(items))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.workers)
	for i := range items {
		item := items[i]
		g.Go(func() error {
			return w.settle(gctx, &item, w.Deliver(gctx, &item))
		})
	}
	return g.Wait()
}

// settle removes a finished delivery or schedules its retry
func (w *DeliveryWorker) settle(ctx context.Context, item *domain.DeliveryQueueItem, err error) error {
	if err == nil {
		deliveries.WithLabelValues("ok").Inc()
		w.log.Debug("delivered", "inbox", item.InboxURI)
		return w.deps.Database.DeleteDelivery(ctx, item.Id)
	}

	item.Attempts++
	if permanent(err) || item.Attempts >= maxDeliveryAttempts {
		deliveries.WithLabelValues("dropped").Inc()
		w.log.Warn("giving up on delivery", "inbox", item.InboxURI, "attempts", item.Attempts, "err", err)
		return w.deps.Database.DeleteDelivery(ctx, item.Id)
	}

	deliveries.WithLabelValues("retry").Inc()
	delay := retryDelay(item.Attempts)
	w.log.Info("delivery failed, will retry", "inbox", item.InboxURI, "attempt", item.Attempts, "retry_in", delay, "err", err)
	return w.deps.Database.UpdateDeliveryAttempt(ctx, item.Id, item.Attempts, w.now().Add(delay))
}

// retryDelay is the wait after the given number of failed attempts
func retryDelay(attempts int) time.Duration {
	i := min(max(attempts-1, 0), len(deliveryBackoff)-1)
	return time.Duration(deliveryBackoff[i]) * time.Minute
}

func permanent(err error) bool {
	resp, ok := err.(*UnexpectedResponseError)
	return ok && IsConfirmedAbsent(resp.StatusCode)
}

// Deliver posts one queued activity, signed by its signer. The signer adds
// the Digest header.
func (w *DeliveryWorker) Deliver(ctx context.Context, item *domain.DeliveryQueueItem) error {
	signer, err := w.deps.Database.FindAccountByID(ctx, item.SignerAccountId)
	if err != nil {
		return err
	}
	if signer == nil || signer.PrivateKeyPem == "" {
		return &UnexpectedResponseError{URI: item.InboxURI, StatusCode: http.StatusGone}
	}
	privateKey, err := ParsePrivateKey(signer.PrivateKeyPem)
	if err != nil {
		return fmt.Errorf("failed to parse private key: %w", err)
	}

	body := []byte(item.ActivityJSON)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, item.InboxURI, bytes.NewReader(body))
	if err != nil {
		return &UnexpectedResponseError{URI: item.InboxURI, StatusCode: http.StatusBadRequest}
	}

	req.Header.Set("Content-Type", ContentTypeActivity)
	req.Header.Set("Accept", ContentTypeActivity)
	req.Header.Set("User-Agent", w.userAgent())
	req.Header.Set("Date", time.Now().UTC().Format(http.TimeFormat))
	req.Header.Set("Host", req.URL.Host)

	if err := SignRequest(req, privateKey, w.deps.Tags.KeyID(signer), body); err != nil {
		return fmt.Errorf("failed to sign request: %w", err)
	}

	resp, err := w.deps.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &UnexpectedResponseError{URI: item.InboxURI, StatusCode: resp.StatusCode}
	}
	return nil
}

func (w *DeliveryWorker) userAgent() string {
	if w.deps.Fetcher != nil {
		return w.deps.Fetcher.userAgent
	}
	return ""
}
