// Package gateway is the typed pass-through to Stripe. It holds no state
// beyond the injected client and maps provider failures onto the two-way
// retryable/caller-error split the rest of the service understands.
package gateway

import (
	"context"
	"errors"
	"time"

	"github.com/kevobebop/kindmind/internal/billing/domain"
	"github.com/kevobebop/kindmind/internal/config"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// MetadataUserIDKey is the metadata key carrying the internal user id on
// sessions and subscriptions.
const MetadataUserIDKey = "userId"

const callTimeout = 5 * time.Second

type Params struct {
	fx.In

	Cfg config.Config
	Log *zap.Logger
}

type Client struct {
	api *client.API
	log *zap.Logger
}

// New constructs the Stripe client once from config; no package-global key.
func New(p Params) domain.Gateway {
	api := &client.API{}
	api.Init(p.Cfg.StripeSecretKey, nil)

	return &Client{
		api: api,
		log: p.Log.Named("billing.gateway"),
	}
}

func (c *Client) CreateCustomer(ctx context.Context, email string, metadata map[string]string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	params := &stripe.CustomerParams{
		Params: stripe.Params{Context: ctx},
		Email:  stripe.String(email),
	}
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}

	customer, err := c.api.Customers.New(params)
	if err != nil {
		return "", c.mapErr("create customer", err)
	}
	return customer.ID, nil
}

func (c *Client) CreateCheckoutSession(ctx context.Context, req domain.CreateCheckoutSessionRequest) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	params := &stripe.CheckoutSessionParams{
		Params:     stripe.Params{Context: ctx},
		Mode:       stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		Customer:   stripe.String(req.CustomerID),
		SuccessURL: stripe.String(req.SuccessURL),
		CancelURL:  stripe.String(req.CancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			Price:    stripe.String(req.PriceID),
			Quantity: stripe.Int64(1),
		}},
	}
	subscriptionData := &stripe.CheckoutSessionSubscriptionDataParams{
		Metadata: req.Metadata,
	}
	if req.TrialDays > 0 {
		subscriptionData.TrialPeriodDays = stripe.Int64(int64(req.TrialDays))
	}
	params.SubscriptionData = subscriptionData
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}

	session, err := c.api.CheckoutSessions.New(params)
	if err != nil {
		return "", c.mapErr("create checkout session", err)
	}
	return session.ID, nil
}

func (c *Client) RetrieveSubscription(ctx context.Context, subscriptionID string) (domain.SubscriptionState, error) {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	params := &stripe.SubscriptionParams{
		Params: stripe.Params{Context: ctx},
	}
	sub, err := c.api.Subscriptions.Get(subscriptionID, params)
	if err != nil {
		return domain.SubscriptionState{}, c.mapErr("retrieve subscription", err)
	}

	state := domain.SubscriptionState{
		ID:     sub.ID,
		Status: string(sub.Status),
		UserID: sub.Metadata[MetadataUserIDKey],
	}
	if sub.Customer != nil {
		state.Customer = sub.Customer.ID
	}
	return state, nil
}

func (c *Client) mapErr(op string, err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		if stripeErr.HTTPStatusCode >= 500 || stripeErr.HTTPStatusCode == 429 {
			c.log.Warn("stripe unavailable", zap.String("op", op), zap.Int("status", stripeErr.HTTPStatusCode))
			return domain.ErrUnavailable
		}
		c.log.Debug("stripe rejected request",
			zap.String("op", op),
			zap.Int("status", stripeErr.HTTPStatusCode),
			zap.String("code", string(stripeErr.Code)),
		)
		return domain.ErrInvalidRequest
	}
	// Network failure or context timeout.
	c.log.Warn("stripe call failed", zap.String("op", op), zap.Error(err))
	return domain.ErrUnavailable
}

var Module = fx.Module("billing.gateway",
	fx.Provide(New),
)
