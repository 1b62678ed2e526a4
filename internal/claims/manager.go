// Package claims owns the credential-system role claims. Access-control
// decisions read the claim store, never the identity store; the manager
// keeps the two in sync with a deliberate write order (claim first, so a
// crash between the writes leaves the store stale but authorization
// decisions correct).
package claims

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/kevobebop/kindmind/internal/config"
	identitydomain "github.com/kevobebop/kindmind/internal/identity/domain"
	"github.com/kevobebop/kindmind/internal/providers/slack"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

//go:embed model.conf
var modelText string

const (
	ObjectUserRole   = "user_role"
	ActionRoleAssign = "role.assign"
)

var ErrPermissionDenied = errors.New("permission_denied")

type Params struct {
	fx.In

	Log         *zap.Logger
	Cfg         config.Config
	Enforcer    *casbin.SyncedEnforcer
	IdentitySvc identitydomain.Service
	Slack       slack.Provider
}

type Manager struct {
	log         *zap.Logger
	opsChannel  string
	enforcer    *casbin.SyncedEnforcer
	identitySvc identitydomain.Service
	slack       slack.Provider
}

func NewManager(p Params) *Manager {
	return &Manager{
		log:         p.Log.Named("claims.manager"),
		opsChannel:  p.Cfg.SlackOpsChannel,
		enforcer:    p.Enforcer,
		identitySvc: p.IdentitySvc,
		slack:       p.Slack,
	}
}

// RoleOf resolves the effective role claim for a user. A missing claim
// degrades to student, the least privileged role.
func (m *Manager) RoleOf(ctx context.Context, userID string) (identitydomain.Role, error) {
	_ = ctx
	roles, err := m.enforcer.GetRolesForUser(subject(userID))
	if err != nil {
		return "", err
	}
	for _, r := range roles {
		name := strings.TrimPrefix(r, "role:")
		role := identitydomain.Role(name)
		if role.Valid() {
			return role, nil
		}
	}
	m.log.Warn("user has no role claim", zap.String("user_id", userID))
	return identitydomain.RoleStudent, nil
}

// SetRole changes a user's role. Only an actor whose claim is admin may
// call it. The claim is written before the store.
func (m *Manager) SetRole(ctx context.Context, actorID, targetUserID string, newRole identitydomain.Role) error {
	actorID = strings.TrimSpace(actorID)
	targetUserID = strings.TrimSpace(targetUserID)
	if actorID == "" || targetUserID == "" {
		return identitydomain.ErrInvalidUser
	}
	if !newRole.Valid() {
		return identitydomain.ErrInvalidRole
	}

	allowed, err := m.enforcer.Enforce(subject(actorID), ObjectUserRole, ActionRoleAssign)
	if err != nil {
		return err
	}
	if !allowed {
		m.log.Warn("role change denied",
			zap.String("actor_id", actorID),
			zap.String("target_user_id", targetUserID),
			zap.String("requested_role", string(newRole)),
		)
		return ErrPermissionDenied
	}

	if err := m.setClaim(targetUserID, newRole); err != nil {
		return err
	}

	if err := m.identitySvc.SetRole(ctx, targetUserID, newRole); err != nil {
		// Claim already moved; the store is stale until an operator fixes
		// it. Re-running the two-step write blindly risks double
		// application, so report instead of retrying.
		m.reportDivergence(ctx, targetUserID, newRole, err)
		return err
	}

	m.log.Info("role changed",
		zap.String("actor_id", actorID),
		zap.String("target_user_id", targetUserID),
		zap.String("role", string(newRole)),
	)
	return nil
}

// SeedDefault sets the student claim for a newly created account.
func (m *Manager) SeedDefault(ctx context.Context, userID string) error {
	return m.GrantRole(ctx, userID, identitydomain.RoleStudent)
}

// GrantRole writes a role claim without an actor check. It backs account
// provisioning and operator bootstrap, never request handling.
func (m *Manager) GrantRole(ctx context.Context, userID string, role identitydomain.Role) error {
	_ = ctx
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return identitydomain.ErrInvalidUser
	}
	if !role.Valid() {
		return identitydomain.ErrInvalidRole
	}
	return m.setClaim(userID, role)
}

// setClaim replaces the user's grouping policy with a delete then an add.
// The two writes are not atomic; a crash between them leaves the user with
// no claim at all, and RoleOf then resolves them as a student.
func (m *Manager) setClaim(userID string, role identitydomain.Role) error {
	sub := subject(userID)
	if _, err := m.enforcer.DeleteRolesForUser(sub); err != nil {
		return err
	}
	if _, err := m.enforcer.AddRoleForUser(sub, "role:"+string(role)); err != nil {
		return err
	}
	return nil
}

func (m *Manager) reportDivergence(ctx context.Context, userID string, role identitydomain.Role, cause error) {
	m.log.Error("claim updated but identity store write failed",
		zap.String("user_id", userID),
		zap.String("role", string(role)),
		zap.Error(cause),
	)
	message := fmt.Sprintf("role claim/store divergence: user %s has claim %s but the store write failed: %v", userID, role, cause)
	if err := m.slack.PostMessage(ctx, m.opsChannel, message); err != nil {
		m.log.Warn("divergence notification failed", zap.Error(err))
	}
}

func subject(userID string) string {
	return "user:" + userID
}
