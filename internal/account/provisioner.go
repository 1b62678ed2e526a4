// Package account handles the identity provider's new-account callback:
// create the default identity record and seed the student role claim.
package account

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kevobebop/kindmind/internal/claims"
	"github.com/kevobebop/kindmind/internal/config"
	identitydomain "github.com/kevobebop/kindmind/internal/identity/domain"
	"github.com/kevobebop/kindmind/internal/providers/slack"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var ErrInvalidRequest = errors.New("invalid_account_request")

type Params struct {
	fx.In

	Log         *zap.Logger
	Cfg         config.Config
	IdentitySvc identitydomain.Service
	Claims      *claims.Manager
	Slack       slack.Provider
}

type Provisioner struct {
	log         *zap.Logger
	opsChannel  string
	identitySvc identitydomain.Service
	claims      *claims.Manager
	slack       slack.Provider
}

func NewProvisioner(p Params) *Provisioner {
	return &Provisioner{
		log:         p.Log.Named("account.provisioner"),
		opsChannel:  p.Cfg.SlackOpsChannel,
		identitySvc: p.IdentitySvc,
		claims:      p.Claims,
		slack:       p.Slack,
	}
}

// Provision creates the default identity and seeds the role claim. The
// identity provider consumes no result, so a claim failure after the store
// write is reported rather than failed: retrying the whole two-step write
// would hit AlreadyExists and never heal the claim.
func (p *Provisioner) Provision(ctx context.Context, userID, email string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return ErrInvalidRequest
	}

	if _, err := p.identitySvc.CreateDefault(ctx, userID); err != nil {
		if errors.Is(err, identitydomain.ErrAlreadyExists) {
			// Redelivered callback; the account is already provisioned.
			p.log.Debug("account already provisioned", zap.String("user_id", userID))
			return nil
		}
		return err
	}

	if err := p.claims.SeedDefault(ctx, userID); err != nil {
		p.log.Error("default role claim failed after identity creation",
			zap.String("user_id", userID),
			zap.Error(err),
		)
		message := fmt.Sprintf("account %s (%s) created without a role claim: %v", userID, email, err)
		if notifyErr := p.slack.PostMessage(ctx, p.opsChannel, message); notifyErr != nil {
			p.log.Warn("claim failure notification failed", zap.Error(notifyErr))
		}
		return nil
	}

	p.log.Info("account provisioned", zap.String("user_id", userID))
	return nil
}

var Module = fx.Module("account.provisioner",
	fx.Provide(NewProvisioner),
)
