// Package reconciler routes verified billing events and applies idempotent
// state transitions to the identity store. It must stay safe under arbitrary
// concurrency and arbitrary redelivery.
package reconciler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/kevobebop/kindmind/internal/billing/domain"
	"github.com/kevobebop/kindmind/internal/config"
	identitydomain "github.com/kevobebop/kindmind/internal/identity/domain"
	obsmetrics "github.com/kevobebop/kindmind/internal/observability/metrics"
	"github.com/kevobebop/kindmind/internal/providers/slack"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const notifyWindow = 24 * time.Hour

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Cfg         config.Config
	Repo        domain.EventRepository
	IdentitySvc identitydomain.Service
	Gateway     domain.Gateway
	Slack       slack.Provider
	Guard       *NotifyGuard        `optional:"true"`
	ObsMetrics  *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	opsChannel  string
	repo        domain.EventRepository
	identitySvc identitydomain.Service
	gateway     domain.Gateway
	slack       slack.Provider
	guard       *NotifyGuard
	obsMetrics  *obsmetrics.Metrics
}

func NewService(p Params) *Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("billing.reconciler"),
		genID:       p.GenID,
		opsChannel:  p.Cfg.SlackOpsChannel,
		repo:        p.Repo,
		identitySvc: p.IdentitySvc,
		gateway:     p.Gateway,
		slack:       p.Slack,
		guard:       p.Guard,
		obsMetrics:  p.ObsMetrics,
	}
}

// Handle applies one verified event. A nil return means the delivery is
// acknowledged; ErrEventProcessed is an acknowledgement too. ErrUnavailable
// propagates so the provider's retry mechanism redelivers.
func (s *Service) Handle(ctx context.Context, event domain.Event) error {
	if event == nil {
		return domain.ErrInvalidPayload
	}

	stored, inserted, err := s.recordDelivery(ctx, event)
	if err != nil {
		return err
	}
	if !inserted && stored.ProcessedAt != nil {
		s.record(event, obsmetrics.OutcomeDuplicate)
		return domain.ErrEventProcessed
	}

	outcome, err := s.apply(ctx, event)
	if err != nil {
		s.record(event, obsmetrics.OutcomeError)
		return err
	}

	if err := s.repo.MarkProcessed(ctx, s.db, stored.ID, time.Now().UTC()); err != nil {
		return err
	}

	s.record(event, outcome)
	return nil
}

func (s *Service) apply(ctx context.Context, event domain.Event) (string, error) {
	switch e := event.(type) {
	case *domain.CheckoutCompleted:
		return s.applyCheckoutCompleted(ctx, e)
	case *domain.SubscriptionChanged:
		return s.applyState(ctx, e, e.UserID, e.SubscriptionID, mapStatus(e.Status))
	case *domain.TrialWillEnd:
		return s.applyTrialWillEnd(ctx, e)
	case *domain.InvoicePaymentSucceeded:
		return s.applyInvoiceEvent(ctx, e, e.SubscriptionID)
	case *domain.InvoicePaymentFailed:
		return s.applyInvoiceEvent(ctx, e, e.SubscriptionID)
	default:
		// The verifier is the only producer; a new variant here is a bug.
		return "", fmt.Errorf("unhandled billing event %T", event)
	}
}

// Checkout sessions can carry a stale snapshot of the subscription, so the
// status is re-fetched from the provider rather than trusted verbatim.
func (s *Service) applyCheckoutCompleted(ctx context.Context, e *domain.CheckoutCompleted) (string, error) {
	if e.SubscriptionID == "" {
		s.log.Warn("checkout completed without subscription", zap.String("event_id", e.EventID()))
		return obsmetrics.OutcomeIgnored, nil
	}

	state, err := s.gateway.RetrieveSubscription(ctx, e.SubscriptionID)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidRequest) {
			return s.ackUnknownSubscription(e, e.SubscriptionID), nil
		}
		return "", err
	}

	userID := e.UserID
	if userID == "" {
		userID = state.UserID
	}
	return s.applyState(ctx, e, userID, state.ID, mapStatus(state.Status))
}

func (s *Service) applyTrialWillEnd(ctx context.Context, e *domain.TrialWillEnd) (string, error) {
	outcome, err := s.applyState(ctx, e, e.UserID, e.SubscriptionID, mapStatus(e.Status))
	if err != nil || outcome == obsmetrics.OutcomeOrphaned {
		return outcome, err
	}

	if s.guard.FirstDelivery(ctx, e.EventID(), notifyWindow) {
		message := fmt.Sprintf("trial ending soon for user %s (subscription %s, ends %s)",
			e.UserID, e.SubscriptionID, e.TrialEnd.Format(time.RFC3339))
		if err := s.slack.PostMessage(ctx, s.opsChannel, message); err != nil {
			s.log.Warn("trial-ending notification failed", zap.Error(err))
		}
	}
	return outcome, nil
}

// Invoice events carry no user linkage of their own; the referenced
// subscription is retrieved and its metadata resolves the user.
func (s *Service) applyInvoiceEvent(ctx context.Context, e domain.Event, subscriptionID string) (string, error) {
	state, err := s.gateway.RetrieveSubscription(ctx, subscriptionID)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidRequest) {
			return s.ackUnknownSubscription(e, subscriptionID), nil
		}
		return "", err
	}
	return s.applyState(ctx, e, state.UserID, state.ID, mapStatus(state.Status))
}

// A subscription the provider itself rejects will never resolve, so the
// delivery is acknowledged; failing it would make Stripe redeliver forever.
func (s *Service) ackUnknownSubscription(e domain.Event, subscriptionID string) string {
	s.log.Warn("subscription lookup rejected by provider",
		zap.String("event_id", e.EventID()),
		zap.String("subscription_id", subscriptionID),
	)
	return obsmetrics.OutcomeOrphaned
}

func (s *Service) applyState(ctx context.Context, e domain.Event, userID, subscriptionID string, status identitydomain.SubscriptionStatus) (string, error) {
	if userID == "" {
		// The provider retries failures indefinitely and an event with no
		// user linkage will never become resolvable: acknowledge it.
		s.log.Warn("billing event without user linkage",
			zap.String("event_id", e.EventID()),
			zap.String("subscription_id", subscriptionID),
		)
		return obsmetrics.OutcomeOrphaned, nil
	}

	var subID *string
	if subscriptionID != "" {
		subID = &subscriptionID
	}

	result, err := s.identitySvc.ApplySubscriptionState(ctx, identitydomain.ApplySubscriptionStateRequest{
		UserID:         userID,
		Status:         status,
		SubscriptionID: subID,
		EventTime:      e.OccurredAt(),
	})
	if err != nil {
		if errors.Is(err, identitydomain.ErrNotFound) {
			s.reportOrphan(ctx, e, userID)
			return obsmetrics.OutcomeOrphaned, nil
		}
		return "", err
	}

	if result == identitydomain.ApplyResultStale {
		return obsmetrics.OutcomeStale, nil
	}
	return obsmetrics.OutcomeApplied, nil
}

// A userId that resolves to no identity usually means a deleted account.
// Acknowledged without mutation, but surfaced so operators can see it.
func (s *Service) reportOrphan(ctx context.Context, e domain.Event, userID string) {
	s.log.Warn("billing event for unknown user",
		zap.String("event_id", e.EventID()),
		zap.String("user_id", userID),
	)
	if s.guard.FirstDelivery(ctx, e.EventID(), notifyWindow) {
		message := fmt.Sprintf("billing event %s references unknown user %s", e.EventID(), userID)
		if err := s.slack.PostMessage(ctx, s.opsChannel, message); err != nil {
			s.log.Warn("orphan notification failed", zap.Error(err))
		}
	}
}

func (s *Service) recordDelivery(ctx context.Context, event domain.Event) (*domain.EventRecord, bool, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, false, err
	}

	record := domain.EventRecord{
		ID:              s.genID.Generate(),
		ProviderEventID: event.EventID(),
		EventType:       EventType(event),
		Payload:         datatypes.JSON(payload),
		ReceivedAt:      time.Now().UTC(),
	}

	inserted, err := s.repo.InsertEvent(ctx, s.db, &record)
	if err != nil {
		return nil, false, err
	}
	if inserted {
		return &record, true, nil
	}

	stored, err := s.repo.FindEvent(ctx, s.db, record.ProviderEventID)
	if err != nil {
		return nil, false, err
	}
	if stored == nil {
		return nil, false, domain.ErrInvalidPayload
	}
	return stored, false, nil
}

func (s *Service) record(event domain.Event, outcome string) {
	s.obsMetrics.RecordWebhookEvent(EventType(event), outcome)
}

// EventType names a variant for records, logs and metrics.
func EventType(event domain.Event) string {
	switch event.(type) {
	case *domain.CheckoutCompleted:
		return "checkout.completed"
	case *domain.SubscriptionChanged:
		return "subscription.changed"
	case *domain.TrialWillEnd:
		return "subscription.trial_will_end"
	case *domain.InvoicePaymentSucceeded:
		return "invoice.payment_succeeded"
	case *domain.InvoicePaymentFailed:
		return "invoice.payment_failed"
	default:
		return "unknown"
	}
}

// mapStatus folds the provider's richer status set onto the entitlement
// statuses the application distinguishes.
func mapStatus(providerStatus string) identitydomain.SubscriptionStatus {
	switch providerStatus {
	case "trialing":
		return identitydomain.SubscriptionStatusTrialing
	case "active":
		return identitydomain.SubscriptionStatusActive
	case "past_due":
		return identitydomain.SubscriptionStatusPastDue
	case "canceled", "unpaid", "incomplete_expired":
		return identitydomain.SubscriptionStatusCanceled
	default:
		return identitydomain.SubscriptionStatusInactive
	}
}
