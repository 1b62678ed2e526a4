package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/kevobebop/kindmind/internal/billing/domain"
	"github.com/kevobebop/kindmind/internal/config"
	"go.uber.org/zap"
)

const testSecret = "whsec_test_secret"

func newTestVerifier() *Verifier {
	return New(Params{
		Cfg: config.Config{StripeWebhookSecret: testSecret},
		Log: zap.NewNop(),
	})
}

func signHeader(payload []byte, secret string, ts time.Time) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", ts.Unix(), payload)
	return fmt.Sprintf("t=%d,v1=%s", ts.Unix(), hex.EncodeToString(mac.Sum(nil)))
}

func eventJSON(eventType, created, object string) []byte {
	return []byte(fmt.Sprintf(`{
		"id": "evt_test_1",
		"object": "event",
		"created": %s,
		"type": %q,
		"data": {"object": %s}
	}`, created, eventType, object))
}

func TestVerifyCheckoutSessionCompleted(t *testing.T) {
	v := newTestVerifier()

	payload := eventJSON("checkout.session.completed", "1700000000", `{
		"id": "cs_1",
		"mode": "subscription",
		"customer": "cus_1",
		"subscription": "sub_1",
		"metadata": {"userId": "user-1"}
	}`)
	event, err := v.Verify(payload, signHeader(payload, testSecret, time.Now()))
	if err != nil {
		t.Fatalf("verify: %v", err)
	}

	completed, ok := event.(*domain.CheckoutCompleted)
	if !ok {
		t.Fatalf("expected CheckoutCompleted, got %T", event)
	}
	if completed.EventID() != "evt_test_1" {
		t.Fatalf("event id = %q", completed.EventID())
	}
	if completed.UserID != "user-1" || completed.CustomerID != "cus_1" || completed.SubscriptionID != "sub_1" {
		t.Fatalf("unexpected fields: %+v", completed)
	}
	if completed.OccurredAt() != time.Unix(1700000000, 0).UTC() {
		t.Fatalf("occurred at = %v", completed.OccurredAt())
	}
}

func TestVerifyRejectsTamperedPayload(t *testing.T) {
	v := newTestVerifier()

	payload := eventJSON("checkout.session.completed", "1700000000", `{"id": "cs_1", "mode": "subscription"}`)
	header := signHeader(payload, testSecret, time.Now())
	tampered := append([]byte{}, payload...)
	tampered[len(tampered)-2] = ' '

	if _, err := v.Verify(tampered, header); !errors.Is(err, domain.ErrSignatureInvalid) {
		t.Fatalf("expected ErrSignatureInvalid, got %v", err)
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	v := newTestVerifier()

	payload := eventJSON("customer.subscription.updated", "1700000000", `{"id": "sub_1", "status": "active"}`)
	header := signHeader(payload, "whsec_other", time.Now())

	if _, err := v.Verify(payload, header); !errors.Is(err, domain.ErrSignatureInvalid) {
		t.Fatalf("expected ErrSignatureInvalid, got %v", err)
	}
}

func TestVerifyRejectsMissingHeader(t *testing.T) {
	v := newTestVerifier()

	payload := eventJSON("customer.subscription.updated", "1700000000", `{"id": "sub_1"}`)
	if _, err := v.Verify(payload, ""); !errors.Is(err, domain.ErrSignatureInvalid) {
		t.Fatalf("expected ErrSignatureInvalid, got %v", err)
	}
}

func TestVerifyRejectsStaleTimestamp(t *testing.T) {
	v := newTestVerifier()

	payload := eventJSON("customer.subscription.updated", "1700000000", `{"id": "sub_1", "status": "active"}`)
	header := signHeader(payload, testSecret, time.Now().Add(-2*time.Hour))

	if _, err := v.Verify(payload, header); !errors.Is(err, domain.ErrSignatureInvalid) {
		t.Fatalf("expected ErrSignatureInvalid, got %v", err)
	}
}

func TestVerifySubscriptionDeleted(t *testing.T) {
	v := newTestVerifier()

	payload := eventJSON("customer.subscription.deleted", "1700000000", `{
		"id": "sub_1",
		"status": "active",
		"metadata": {"userId": "user-1"}
	}`)
	event, err := v.Verify(payload, signHeader(payload, testSecret, time.Now()))
	if err != nil {
		t.Fatalf("verify: %v", err)
	}

	changed, ok := event.(*domain.SubscriptionChanged)
	if !ok {
		t.Fatalf("expected SubscriptionChanged, got %T", event)
	}
	if changed.Status != "canceled" {
		t.Fatalf("status = %q, want canceled", changed.Status)
	}
	if changed.UserID != "user-1" || changed.SubscriptionID != "sub_1" {
		t.Fatalf("unexpected fields: %+v", changed)
	}
}

func TestVerifyTrialWillEnd(t *testing.T) {
	v := newTestVerifier()

	payload := eventJSON("customer.subscription.trial_will_end", "1700000000", `{
		"id": "sub_1",
		"status": "trialing",
		"trial_end": 1700600000,
		"metadata": {"userId": "user-1"}
	}`)
	event, err := v.Verify(payload, signHeader(payload, testSecret, time.Now()))
	if err != nil {
		t.Fatalf("verify: %v", err)
	}

	trial, ok := event.(*domain.TrialWillEnd)
	if !ok {
		t.Fatalf("expected TrialWillEnd, got %T", event)
	}
	if trial.TrialEnd != time.Unix(1700600000, 0).UTC() {
		t.Fatalf("trial end = %v", trial.TrialEnd)
	}
}

func TestVerifyIgnoresPaymentModeSession(t *testing.T) {
	v := newTestVerifier()

	payload := eventJSON("checkout.session.completed", "1700000000", `{"id": "cs_1", "mode": "payment"}`)
	if _, err := v.Verify(payload, signHeader(payload, testSecret, time.Now())); !errors.Is(err, domain.ErrEventIgnored) {
		t.Fatalf("expected ErrEventIgnored, got %v", err)
	}
}

func TestVerifyIgnoresUnhandledType(t *testing.T) {
	v := newTestVerifier()

	payload := eventJSON("customer.created", "1700000000", `{"id": "cus_1"}`)
	if _, err := v.Verify(payload, signHeader(payload, testSecret, time.Now())); !errors.Is(err, domain.ErrEventIgnored) {
		t.Fatalf("expected ErrEventIgnored, got %v", err)
	}
}

func TestVerifyIgnoresStandaloneInvoice(t *testing.T) {
	v := newTestVerifier()

	payload := eventJSON("invoice.payment_failed", "1700000000", `{"id": "in_1", "subscription": ""}`)
	if _, err := v.Verify(payload, signHeader(payload, testSecret, time.Now())); !errors.Is(err, domain.ErrEventIgnored) {
		t.Fatalf("expected ErrEventIgnored, got %v", err)
	}
}

func TestVerifyInvoicePaymentSucceeded(t *testing.T) {
	v := newTestVerifier()

	payload := eventJSON("invoice.payment_succeeded", "1700000000", `{"id": "in_1", "subscription": "sub_1"}`)
	event, err := v.Verify(payload, signHeader(payload, testSecret, time.Now()))
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	succeeded, ok := event.(*domain.InvoicePaymentSucceeded)
	if !ok {
		t.Fatalf("expected InvoicePaymentSucceeded, got %T", event)
	}
	if succeeded.SubscriptionID != "sub_1" {
		t.Fatalf("subscription id = %q", succeeded.SubscriptionID)
	}
}
