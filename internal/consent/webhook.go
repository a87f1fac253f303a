package consent

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// EventType identifies a consent-change notification.
type EventType string

const (
	EventConsentGranted EventType = "consent.granted"
	EventConsentRevoked EventType = "consent.revoked"
	EventConsentUpdated EventType = "consent.updated"
)

// Event is the payload delivered to an external application when consent
// state changes. Revocation events are the sovereignty guarantee: platforms
// must remove the story on receipt.
type Event struct {
	Type          EventType  `json:"type"`
	StoryID       string     `json:"story_id"`
	AppID         string     `json:"app_id"`
	StorytellerID string     `json:"storyteller_id"`
	ShareLevel    ShareLevel `json:"share_level,omitempty"`
	Reason        string     `json:"reason,omitempty"`
	OccurredAt    time.Time  `json:"occurred_at"`
}

// Notifier delivers consent-change events to the affected application.
type Notifier interface {
	Notify(ctx context.Context, e Event) error
}

// NoopNotifier discards events; useful for tests and local wiring.
type NoopNotifier struct{}

func (NoopNotifier) Notify(ctx context.Context, e Event) error { return nil }

// AppDirectory resolves application registrations for delivery targets.
type AppDirectory interface {
	GetApplication(ctx context.Context, appID string) (Application, error)
}

// Outbound signature headers. Receivers verify with
// hex(HMAC-SHA256(secret, body)) over the raw request body.
const (
	headerSignature = "X-Empathy-Signature"
	headerEventID   = "X-Empathy-Event-Id"
	headerEventType = "X-Empathy-Event-Type"
)

// HTTPNotifier POSTs signed JSON events to the application's webhook URL.
// Applications without a registered URL are skipped silently.
type HTTPNotifier struct {
	Apps   AppDirectory
	Client *http.Client
	Secret []byte
}

func NewHTTPNotifier(apps AppDirectory, secret string, timeout time.Duration) *HTTPNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPNotifier{
		Apps:   apps,
		Client: &http.Client{Timeout: timeout},
		Secret: []byte(secret),
	}
}

func (n *HTTPNotifier) Notify(ctx context.Context, e Event) error {
	app, err := n.Apps.GetApplication(ctx, e.AppID)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("consent: webhook target %s: %w", e.AppID, err)
	}
	if app.WebhookURL == nil || *app.WebhookURL == "" {
		return nil
	}

	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("consent: marshal event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, *app.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(headerEventID, uuid.NewString())
	req.Header.Set(headerEventType, string(e.Type))
	req.Header.Set(headerSignature, SignPayload(n.Secret, body))

	resp, err := n.Client.Do(req)
	if err != nil {
		return fmt.Errorf("consent: deliver %s to %s: %w", e.Type, e.AppID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("consent: deliver %s to %s: status %d", e.Type, e.AppID, resp.StatusCode)
	}
	return nil
}

// SignPayload computes the hex HMAC-SHA256 signature receivers verify.
func SignPayload(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	_, _ = mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a received signature in constant time. Exposed for
// receiver-side use in application SDKs and for tests.
func VerifySignature(secret, body []byte, sigHex string) bool {
	provided, err := hex.DecodeString(sigHex)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, secret)
	_, _ = mac.Write(body)
	return hmac.Equal(mac.Sum(nil), provided)
}
