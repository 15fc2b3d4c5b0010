package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/radiusdt/partner-portal/internal/metrics"
	"github.com/radiusdt/partner-portal/internal/models"
	"github.com/radiusdt/partner-portal/internal/storage"
	"go.uber.org/zap"
)

// Event types sent to tenant webhooks.
const (
	EventReportReady  = "report.ready"
	EventReportFailed = "report.failed"
)

// Headers set on every delivery.
const (
	HeaderEvent     = "X-Portal-Event"
	HeaderSignature = "X-Portal-Signature"
	HeaderTimestamp = "X-Portal-Timestamp"
)

// Event is the JSON body POSTed to a tenant's webhook URL.
type Event struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	TenantID  string         `json:"partnerId"`
	Report    *models.Report `json:"report"`
	Timestamp time.Time      `json:"timestamp"`
}

// Notifier delivers report events to the webhook URL configured in a
// tenant's API settings. Tenants without a webhook are skipped. Deliveries
// run in the background; Wait blocks until they finish.
type Notifier struct {
	keys    storage.APIKeyRepo
	client  *resty.Client
	budget  time.Duration
	metrics *metrics.Metrics
	logger  *zap.Logger
	now     func() time.Time
	wg      sync.WaitGroup
}

// NewNotifier creates a Notifier. Failed deliveries are retried twice for
// transport errors and 5xx responses.
func NewNotifier(keys storage.APIKeyRepo, timeout time.Duration, m *metrics.Metrics, logger *zap.Logger) *Notifier {
	client := resty.New().
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(200 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("User-Agent", "partner-portal-webhooks/1.0").
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() >= 500
		})

	return &Notifier{
		keys:    keys,
		client:  client,
		budget:  3*timeout + 5*time.Second,
		metrics: m,
		logger:  logger,
		now:     time.Now,
	}
}

// ReportFinished queues report.ready or report.failed for rep and returns
// immediately. The delivery is not tied to ctx's cancellation and is bounded
// by its own deadline. Delivery problems are logged and recorded, never
// returned.
func (n *Notifier) ReportFinished(ctx context.Context, rep *models.Report) {
	var event string
	switch rep.Status {
	case models.ReportReady:
		event = EventReportReady
	case models.ReportFailed:
		event = EventReportFailed
	default:
		return
	}

	snapshot := *rep
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), n.budget)
		defer cancel()
		n.deliver(ctx, event, &snapshot)
	}()
}

// Wait blocks until every queued delivery has finished.
func (n *Notifier) Wait() {
	n.wg.Wait()
}

func (n *Notifier) deliver(ctx context.Context, event string, rep *models.Report) {
	key, err := n.keys.Get(ctx, rep.TenantID)
	if errors.Is(err, storage.ErrNotFound) {
		return
	}
	if err != nil {
		n.logger.Warn("failed to load webhook settings", zap.String("tenant_id", rep.TenantID), zap.Error(err))
		return
	}
	if key.WebhookURL == nil || *key.WebhookURL == "" {
		return
	}

	err = n.send(ctx, *key.WebhookURL, key.APIKey, &Event{
		ID:        event + ":" + rep.ID,
		Type:      event,
		TenantID:  rep.TenantID,
		Report:    rep,
		Timestamp: n.now().UTC(),
	})

	result := "ok"
	var rejected *RejectedError
	switch {
	case errors.As(err, &rejected):
		result = "rejected"
	case err != nil:
		result = "error"
	}
	n.metrics.RecordWebhook(event, result)

	if err != nil {
		n.logger.Warn("webhook delivery failed",
			zap.String("tenant_id", rep.TenantID),
			zap.String("report_id", rep.ID),
			zap.String("event", event),
			zap.Error(err),
		)
		return
	}
	n.logger.Info("webhook delivered",
		zap.String("tenant_id", rep.TenantID),
		zap.String("report_id", rep.ID),
		zap.String("event", event),
	)
}

// RejectedError is returned when the endpoint answers with a non-2xx status.
type RejectedError struct {
	StatusCode int
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("webhook endpoint returned %d", e.StatusCode)
}

func (n *Notifier) send(ctx context.Context, url, secret string, ev *Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to encode webhook event: %w", err)
	}
	ts := strconv.FormatInt(ev.Timestamp.Unix(), 10)

	resp, err := n.client.R().
		SetContext(ctx).
		SetHeader(HeaderEvent, ev.Type).
		SetHeader(HeaderTimestamp, ts).
		SetHeader(HeaderSignature, Sign(secret, ts, body)).
		SetBody(body).
		Post(url)
	if err != nil {
		return err
	}
	if resp.IsError() {
		return &RejectedError{StatusCode: resp.StatusCode()}
	}
	return nil
}

// Sign returns the hex HMAC-SHA256 of "<timestamp>.<body>" keyed with the
// tenant's partner API key. Receivers recompute it to authenticate a delivery.
func Sign(secret, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
