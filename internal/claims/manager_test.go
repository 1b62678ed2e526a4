package claims

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/kevobebop/kindmind/internal/config"
	identitydomain "github.com/kevobebop/kindmind/internal/identity/domain"
	identityrepository "github.com/kevobebop/kindmind/internal/identity/repository"
	identityservice "github.com/kevobebop/kindmind/internal/identity/service"
	dbpkg "github.com/kevobebop/kindmind/pkg/db"
	"go.uber.org/zap"
)

type slackSpy struct {
	mu       sync.Mutex
	messages []string
}

func (s *slackSpy) PostMessage(ctx context.Context, channelID string, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, message)
	return nil
}

func (s *slackSpy) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

func setupManager(t *testing.T) (*Manager, identitydomain.Service, *slackSpy) {
	t.Helper()

	conn, err := dbpkg.NewTest()
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := conn.AutoMigrate(&identitydomain.UserIdentity{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	enforcer, err := NewEnforcer(conn)
	if err != nil {
		t.Fatalf("enforcer: %v", err)
	}

	identitySvc := identityservice.New(identityservice.Params{
		DB:   conn,
		Log:  zap.NewNop(),
		Repo: identityrepository.Provide(),
	})
	spy := &slackSpy{}

	manager := NewManager(Params{
		Log:         zap.NewNop(),
		Cfg:         config.Config{SlackOpsChannel: "#ops"},
		Enforcer:    enforcer,
		IdentitySvc: identitySvc,
		Slack:       spy,
	})
	return manager, identitySvc, spy
}

func seedAdmin(t *testing.T, m *Manager, userID string) {
	t.Helper()
	if _, err := m.enforcer.AddRoleForUser(subject(userID), "role:admin"); err != nil {
		t.Fatalf("seed admin claim: %v", err)
	}
}

func TestSetRoleByAdmin(t *testing.T) {
	m, identitySvc, _ := setupManager(t)
	ctx := context.Background()

	for _, id := range []string{"admin-1", "target-1"} {
		if _, err := identitySvc.CreateDefault(ctx, id); err != nil {
			t.Fatalf("create %s: %v", id, err)
		}
	}
	seedAdmin(t, m, "admin-1")

	if err := m.SetRole(ctx, "admin-1", "target-1", identitydomain.RoleParent); err != nil {
		t.Fatalf("set role: %v", err)
	}

	role, err := m.RoleOf(ctx, "target-1")
	if err != nil {
		t.Fatalf("role of: %v", err)
	}
	if role != identitydomain.RoleParent {
		t.Fatalf("claim role = %q, want parent", role)
	}

	stored, err := identitySvc.Get(ctx, "target-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.Role != identitydomain.RoleParent {
		t.Fatalf("stored role = %q, want parent", stored.Role)
	}
}

func TestSetRoleDeniedForNonAdmin(t *testing.T) {
	m, identitySvc, _ := setupManager(t)
	ctx := context.Background()

	for _, id := range []string{"student-1", "target-1"} {
		if _, err := identitySvc.CreateDefault(ctx, id); err != nil {
			t.Fatalf("create %s: %v", id, err)
		}
		if err := m.SeedDefault(ctx, id); err != nil {
			t.Fatalf("seed claim %s: %v", id, err)
		}
	}

	err := m.SetRole(ctx, "student-1", "target-1", identitydomain.RoleAdmin)
	if !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied, got %v", err)
	}

	// Neither the claim nor the store moved.
	role, err := m.RoleOf(ctx, "target-1")
	if err != nil {
		t.Fatalf("role of: %v", err)
	}
	if role != identitydomain.RoleStudent {
		t.Fatalf("claim role = %q, want student", role)
	}
	stored, err := identitySvc.Get(ctx, "target-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.Role != identitydomain.RoleStudent {
		t.Fatalf("stored role = %q, want student", stored.Role)
	}
}

func TestSetRoleInvalidRole(t *testing.T) {
	m, _, _ := setupManager(t)

	err := m.SetRole(context.Background(), "admin-1", "target-1", identitydomain.Role("owner"))
	if !errors.Is(err, identitydomain.ErrInvalidRole) {
		t.Fatalf("expected ErrInvalidRole, got %v", err)
	}
}

func TestSetRoleDivergenceReported(t *testing.T) {
	m, _, spy := setupManager(t)
	ctx := context.Background()
	seedAdmin(t, m, "admin-1")

	// Target has no identity row: the claim write succeeds, the store
	// write fails, and operators get notified.
	err := m.SetRole(ctx, "admin-1", "ghost", identitydomain.RoleParent)
	if !errors.Is(err, identitydomain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if spy.count() != 1 {
		t.Fatalf("divergence notifications = %d, want 1", spy.count())
	}
}

func TestRoleOfDefaultsToStudent(t *testing.T) {
	m, _, _ := setupManager(t)

	role, err := m.RoleOf(context.Background(), "unclaimed")
	if err != nil {
		t.Fatalf("role of: %v", err)
	}
	if role != identitydomain.RoleStudent {
		t.Fatalf("role = %q, want student", role)
	}
}

func TestSeedDefault(t *testing.T) {
	m, _, _ := setupManager(t)
	ctx := context.Background()

	if err := m.SeedDefault(ctx, "user-1"); err != nil {
		t.Fatalf("seed default: %v", err)
	}
	role, err := m.RoleOf(ctx, "user-1")
	if err != nil {
		t.Fatalf("role of: %v", err)
	}
	if role != identitydomain.RoleStudent {
		t.Fatalf("role = %q, want student", role)
	}
}
