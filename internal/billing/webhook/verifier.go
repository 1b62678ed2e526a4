// Package webhook authenticates inbound Stripe notifications and turns them
// into the closed event set in billing/domain. Verification runs over the
// exact raw bytes received; the HTTP layer must not parse the body first.
package webhook

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/kevobebop/kindmind/internal/billing/domain"
	"github.com/kevobebop/kindmind/internal/config"
	stripewebhook "github.com/stripe/stripe-go/v82/webhook"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Verifier struct {
	secret string
	log    *zap.Logger
}

type Params struct {
	fx.In

	Cfg config.Config
	Log *zap.Logger
}

func New(p Params) *Verifier {
	return &Verifier{
		secret: p.Cfg.StripeWebhookSecret,
		log:    p.Log.Named("billing.webhook"),
	}
}

// Verify checks the signature header against the raw payload and maps the
// event into a domain variant. Unhandled event types yield ErrEventIgnored.
func (v *Verifier) Verify(payload []byte, sigHeader string) (domain.Event, error) {
	if strings.TrimSpace(sigHeader) == "" {
		return nil, domain.ErrSignatureInvalid
	}

	event, err := stripewebhook.ConstructEventWithOptions(payload, sigHeader, v.secret, stripewebhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		if isSignatureErr(err) {
			return nil, domain.ErrSignatureInvalid
		}
		return nil, domain.ErrInvalidPayload
	}
	if strings.TrimSpace(event.ID) == "" {
		return nil, domain.ErrInvalidPayload
	}

	header := domain.Header{
		ID:      event.ID,
		Created: time.Unix(event.Created, 0).UTC(),
	}

	switch event.Type {
	case "checkout.session.completed":
		return parseCheckoutSession(header, event.Data.Raw)
	case "customer.subscription.created", "customer.subscription.updated":
		return parseSubscription(header, event.Data.Raw, "")
	case "customer.subscription.deleted":
		return parseSubscription(header, event.Data.Raw, "canceled")
	case "customer.subscription.trial_will_end":
		return parseTrialWillEnd(header, event.Data.Raw)
	case "invoice.payment_succeeded":
		return parseInvoice(header, event.Data.Raw, false)
	case "invoice.payment_failed":
		return parseInvoice(header, event.Data.Raw, true)
	default:
		v.log.Debug("ignoring event type", zap.String("type", string(event.Type)))
		return nil, domain.ErrEventIgnored
	}
}

func isSignatureErr(err error) bool {
	return errors.Is(err, stripewebhook.ErrNotSigned) ||
		errors.Is(err, stripewebhook.ErrInvalidHeader) ||
		errors.Is(err, stripewebhook.ErrTooOld) ||
		errors.Is(err, stripewebhook.ErrNoValidSignature)
}

type sessionPayload struct {
	ID           string            `json:"id"`
	Mode         string            `json:"mode"`
	Customer     string            `json:"customer"`
	Subscription string            `json:"subscription"`
	Metadata     map[string]string `json:"metadata"`
}

type subscriptionPayload struct {
	ID       string            `json:"id"`
	Status   string            `json:"status"`
	Customer string            `json:"customer"`
	TrialEnd int64             `json:"trial_end"`
	Metadata map[string]string `json:"metadata"`
}

type invoicePayload struct {
	ID           string `json:"id"`
	Subscription string `json:"subscription"`
}

func parseCheckoutSession(header domain.Header, raw json.RawMessage) (domain.Event, error) {
	var session sessionPayload
	if err := json.Unmarshal(raw, &session); err != nil {
		return nil, domain.ErrInvalidPayload
	}
	// Payment-mode sessions never carry a subscription; nothing to sync.
	if session.Mode != "" && session.Mode != "subscription" {
		return nil, domain.ErrEventIgnored
	}

	return &domain.CheckoutCompleted{
		Header:         header,
		UserID:         strings.TrimSpace(session.Metadata["userId"]),
		CustomerID:     session.Customer,
		SubscriptionID: session.Subscription,
	}, nil
}

func parseSubscription(header domain.Header, raw json.RawMessage, statusOverride string) (domain.Event, error) {
	var sub subscriptionPayload
	if err := json.Unmarshal(raw, &sub); err != nil {
		return nil, domain.ErrInvalidPayload
	}
	if strings.TrimSpace(sub.ID) == "" {
		return nil, domain.ErrInvalidPayload
	}

	status := sub.Status
	if statusOverride != "" {
		status = statusOverride
	}
	return &domain.SubscriptionChanged{
		Header:         header,
		UserID:         strings.TrimSpace(sub.Metadata["userId"]),
		SubscriptionID: sub.ID,
		Status:         status,
	}, nil
}

func parseTrialWillEnd(header domain.Header, raw json.RawMessage) (domain.Event, error) {
	var sub subscriptionPayload
	if err := json.Unmarshal(raw, &sub); err != nil {
		return nil, domain.ErrInvalidPayload
	}
	if strings.TrimSpace(sub.ID) == "" {
		return nil, domain.ErrInvalidPayload
	}

	event := &domain.TrialWillEnd{
		Header:         header,
		UserID:         strings.TrimSpace(sub.Metadata["userId"]),
		SubscriptionID: sub.ID,
		Status:         sub.Status,
	}
	if sub.TrialEnd > 0 {
		event.TrialEnd = time.Unix(sub.TrialEnd, 0).UTC()
	}
	return event, nil
}

func parseInvoice(header domain.Header, raw json.RawMessage, failed bool) (domain.Event, error) {
	var invoice invoicePayload
	if err := json.Unmarshal(raw, &invoice); err != nil {
		return nil, domain.ErrInvalidPayload
	}
	// Invoices outside a subscription (one-off charges) are not entitlement
	// relevant.
	if strings.TrimSpace(invoice.Subscription) == "" {
		return nil, domain.ErrEventIgnored
	}

	if failed {
		return &domain.InvoicePaymentFailed{Header: header, SubscriptionID: invoice.Subscription}, nil
	}
	return &domain.InvoicePaymentSucceeded{Header: header, SubscriptionID: invoice.Subscription}, nil
}

var Module = fx.Module("billing.webhook",
	fx.Provide(New),
)
