package service

import (
	"context"
	"strings"
	"time"

	dbpkg "github.com/kevobebop/kindmind/pkg/db"

	"github.com/kevobebop/kindmind/internal/identity/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB   *gorm.DB
	Log  *zap.Logger
	Repo domain.Repository
}

type Service struct {
	db   *gorm.DB
	log  *zap.Logger
	repo domain.Repository
}

func New(p Params) domain.Service {
	return &Service{
		db:   p.DB,
		log:  p.Log.Named("identity.service"),
		repo: p.Repo,
	}
}

func (s *Service) Get(ctx context.Context, userID string) (domain.UserIdentity, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.UserIdentity{}, domain.ErrInvalidUser
	}

	identity, err := s.repo.FindByID(ctx, s.db, userID)
	if err != nil {
		return domain.UserIdentity{}, err
	}
	if identity == nil {
		return domain.UserIdentity{}, domain.ErrNotFound
	}
	return *identity, nil
}

func (s *Service) CreateDefault(ctx context.Context, userID string) (domain.UserIdentity, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.UserIdentity{}, domain.ErrInvalidUser
	}

	now := time.Now().UTC()
	identity := domain.UserIdentity{
		UserID:             userID,
		Role:               domain.RoleStudent,
		SubscriptionStatus: domain.SubscriptionStatusInactive,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	if err := s.repo.Insert(ctx, s.db, &identity); err != nil {
		if dbpkg.IsDuplicateKeyErr(err) {
			return domain.UserIdentity{}, domain.ErrAlreadyExists
		}
		return domain.UserIdentity{}, err
	}

	return identity, nil
}

func (s *Service) EnsureCustomerID(ctx context.Context, userID, candidateID string) (string, error) {
	userID = strings.TrimSpace(userID)
	candidateID = strings.TrimSpace(candidateID)
	if userID == "" {
		return "", domain.ErrInvalidUser
	}
	if candidateID == "" {
		return "", domain.ErrInvalidUser
	}

	claimed, err := s.repo.SetCustomerIDIfAbsent(ctx, s.db, userID, candidateID, time.Now().UTC())
	if err != nil {
		return "", err
	}
	if claimed {
		return candidateID, nil
	}

	// A concurrent call won the slot; re-read and use the winning value.
	identity, err := s.repo.FindByID(ctx, s.db, userID)
	if err != nil {
		return "", err
	}
	if identity == nil {
		return "", domain.ErrNotFound
	}
	if identity.StripeCustomerID == nil || *identity.StripeCustomerID == "" {
		return "", domain.ErrNotFound
	}
	if *identity.StripeCustomerID != candidateID {
		s.log.Warn("discarding duplicate billing customer",
			zap.String("user_id", userID),
			zap.String("kept", *identity.StripeCustomerID),
			zap.String("discarded", candidateID),
		)
	}
	return *identity.StripeCustomerID, nil
}

func (s *Service) SetRole(ctx context.Context, userID string, role domain.Role) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.ErrInvalidUser
	}
	if !role.Valid() {
		return domain.ErrInvalidRole
	}

	updated, err := s.repo.UpdateRole(ctx, s.db, userID, role, time.Now().UTC())
	if err != nil {
		return err
	}
	if !updated {
		return domain.ErrNotFound
	}
	return nil
}

func (s *Service) ApplySubscriptionState(ctx context.Context, req domain.ApplySubscriptionStateRequest) (domain.ApplyResult, error) {
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		return "", domain.ErrInvalidUser
	}
	if !req.Status.Valid() {
		return "", domain.ErrInvalidStatus
	}
	eventTime := req.EventTime
	if eventTime.IsZero() {
		eventTime = time.Now().UTC()
	}

	written, err := s.repo.ApplySubscriptionState(ctx, s.db, userID, req.Status, req.SubscriptionID, eventTime)
	if err != nil {
		return "", err
	}
	if written {
		return domain.ApplyResultWritten, nil
	}

	identity, err := s.repo.FindByID(ctx, s.db, userID)
	if err != nil {
		return "", err
	}
	if identity == nil {
		return "", domain.ErrNotFound
	}

	s.log.Debug("skipped stale subscription state",
		zap.String("user_id", userID),
		zap.Time("event_time", eventTime),
		zap.Time("updated_at", identity.UpdatedAt),
	)
	return domain.ApplyResultStale, nil
}
