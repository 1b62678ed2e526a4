package claims

import (
	"testing"

	identitydomain "github.com/kevobebop/kindmind/internal/identity/domain"
	dbpkg "github.com/kevobebop/kindmind/pkg/db"
)

func TestEnforcerSeedsAdminPolicy(t *testing.T) {
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
	has, err := enforcer.HasPolicy("role:admin", ObjectUserRole, ActionRoleAssign)
	if err != nil {
		t.Fatalf("has policy: %v", err)
	}
	if !has {
		t.Fatal("expected the admin role-assign policy to be seeded")
	}
}

func TestEnforcerSeedIsIdempotent(t *testing.T) {
	conn, err := dbpkg.NewTest()
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}

	if _, err := NewEnforcer(conn); err != nil {
		t.Fatalf("first enforcer: %v", err)
	}
	// A restart reloads an already-seeded store without duplicating rows.
	enforcer, err := NewEnforcer(conn)
	if err != nil {
		t.Fatalf("second enforcer: %v", err)
	}

	policies, err := enforcer.GetFilteredPolicy(0, "role:admin")
	if err != nil {
		t.Fatalf("get policies: %v", err)
	}
	if len(policies) != 1 {
		t.Fatalf("admin policies = %d, want 1", len(policies))
	}
}
