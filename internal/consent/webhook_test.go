package consent

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestSignAndVerify(t *testing.T) {
	secret := []byte("shh")
	body := []byte(`{"type":"consent.revoked"}`)

	sig := SignPayload(secret, body)
	if !VerifySignature(secret, body, sig) {
		t.Error("valid signature rejected")
	}
	if VerifySignature(secret, []byte("tampered"), sig) {
		t.Error("tampered body accepted")
	}
	if VerifySignature([]byte("wrong"), body, sig) {
		t.Error("wrong secret accepted")
	}
	if VerifySignature(secret, body, "not-hex!") {
		t.Error("malformed signature accepted")
	}
}

func TestHTTPNotifierDeliversSignedEvent(t *testing.T) {
	var gotBody []byte
	var gotSig, gotType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		gotSig = r.Header.Get("X-Empathy-Signature")
		gotType = r.Header.Get("X-Empathy-Event-Type")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	apps := NewMemoryGrantStore()
	url := srv.URL
	apps.PutApplication(Application{ID: "app-1", Name: "Partner", IsActive: true, WebhookURL: &url})

	n := NewHTTPNotifier(apps, "shh", 5*time.Second)
	err := n.Notify(context.Background(), Event{
		Type:    EventConsentRevoked,
		StoryID: "s1",
		AppID:   "app-1",
	})
	if err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if gotType != "consent.revoked" {
		t.Errorf("event type header = %q", gotType)
	}
	if !VerifySignature([]byte("shh"), gotBody, gotSig) {
		t.Error("delivered signature does not verify")
	}
}

func TestHTTPNotifierSkipsAppsWithoutWebhook(t *testing.T) {
	apps := NewMemoryGrantStore()
	apps.PutApplication(Application{ID: "app-1", Name: "Partner", IsActive: true})

	n := NewHTTPNotifier(apps, "shh", time.Second)
	if err := n.Notify(context.Background(), Event{Type: EventConsentGranted, AppID: "app-1"}); err != nil {
		t.Errorf("Notify without webhook url: %v", err)
	}

	// Unknown app is also a silent skip.
	if err := n.Notify(context.Background(), Event{Type: EventConsentGranted, AppID: "ghost"}); err != nil {
		t.Errorf("Notify unknown app: %v", err)
	}
}

func TestHTTPNotifierReportsNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	apps := NewMemoryGrantStore()
	url := srv.URL
	apps.PutApplication(Application{ID: "app-1", Name: "Partner", IsActive: true, WebhookURL: &url})

	n := NewHTTPNotifier(apps, "shh", time.Second)
	if err := n.Notify(context.Background(), Event{Type: EventConsentUpdated, AppID: "app-1"}); err == nil {
		t.Error("expected error for 500 response")
	}
}
