// Package checkout implements the get-or-create purchase flow: exactly one
// external billing customer per user, then a checkout session carrying the
// user id in metadata so webhook events resolve identity on their own.
package checkout

import (
	"context"
	"errors"
	"strings"
	"sync"

	billingdomain "github.com/kevobebop/kindmind/internal/billing/domain"
	"github.com/kevobebop/kindmind/internal/billing/gateway"
	"github.com/kevobebop/kindmind/internal/checkout/domain"
	"github.com/kevobebop/kindmind/internal/config"
	identitydomain "github.com/kevobebop/kindmind/internal/identity/domain"
	obsmetrics "github.com/kevobebop/kindmind/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Cfg         config.Config
	Plans       *config.PlanConfigHolder
	Log         *zap.Logger
	IdentitySvc identitydomain.Service
	Gateway     billingdomain.Gateway
	ObsMetrics  *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	successURL  string
	cancelURL   string
	plans       *config.PlanConfigHolder
	log         *zap.Logger
	identitySvc identitydomain.Service
	gateway     billingdomain.Gateway
	obsMetrics  *obsmetrics.Metrics

	// One guard per misconfiguration so the first does not suppress the
	// other's only log line.
	logPriceMissing    sync.Once
	logSessionRejected sync.Once
}

func New(p Params) domain.Service {
	return &Service{
		successURL:  p.Cfg.CheckoutSuccessURL,
		cancelURL:   p.Cfg.CheckoutCancelURL,
		plans:       p.Plans,
		log:         p.Log.Named("checkout.service"),
		identitySvc: p.IdentitySvc,
		gateway:     p.Gateway,
		obsMetrics:  p.ObsMetrics,
	}
}

func (s *Service) BeginCheckout(ctx context.Context, req domain.BeginCheckoutRequest) (string, error) {
	userID := strings.TrimSpace(req.UserID)
	email := strings.TrimSpace(req.Email)
	if userID == "" || email == "" {
		return "", domain.ErrInvalidRequest
	}

	plan := s.plans.Get()
	if strings.TrimSpace(plan.PriceID) == "" {
		s.logPriceMissing.Do(func() {
			s.log.Error("checkout price id is not configured")
		})
		return "", domain.ErrConfig
	}

	identity, err := s.identitySvc.Get(ctx, userID)
	if err != nil {
		return "", err
	}

	customerID, err := s.ensureCustomer(ctx, identity, email)
	if err != nil {
		return "", err
	}

	sessionID, err := s.gateway.CreateCheckoutSession(ctx, billingdomain.CreateCheckoutSessionRequest{
		CustomerID: customerID,
		PriceID:    plan.PriceID,
		SuccessURL: s.successURL,
		CancelURL:  s.cancelURL,
		TrialDays:  plan.TrialDays,
		Metadata: map[string]string{
			gateway.MetadataUserIDKey: userID,
		},
	})
	if err != nil {
		if errors.Is(err, billingdomain.ErrInvalidRequest) {
			s.logSessionRejected.Do(func() {
				s.log.Error("checkout session rejected by billing provider",
					zap.String("price_id", plan.PriceID),
				)
			})
			return "", domain.ErrConfig
		}
		return "", err
	}

	s.obsMetrics.RecordCheckoutSession()
	return sessionID, nil
}

// ensureCustomer reads the stored customer id or creates one. The store
// write is set-if-absent: when two concurrent checkouts race, one creation
// is discarded and both proceed with the single persisted id. A customer
// created at the provider but not yet recorded is healed the same way on
// the next attempt.
func (s *Service) ensureCustomer(ctx context.Context, identity identitydomain.UserIdentity, email string) (string, error) {
	if identity.StripeCustomerID != nil && *identity.StripeCustomerID != "" {
		return *identity.StripeCustomerID, nil
	}

	created, err := s.gateway.CreateCustomer(ctx, email, map[string]string{
		gateway.MetadataUserIDKey: identity.UserID,
	})
	if err != nil {
		return "", err
	}

	return s.identitySvc.EnsureCustomerID(ctx, identity.UserID, created)
}

var Module = fx.Module("checkout.service",
	fx.Provide(New),
)
