package checkout

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	billingdomain "github.com/kevobebop/kindmind/internal/billing/domain"
	"github.com/kevobebop/kindmind/internal/checkout/domain"
	"github.com/kevobebop/kindmind/internal/config"
	identitydomain "github.com/kevobebop/kindmind/internal/identity/domain"
	identityrepository "github.com/kevobebop/kindmind/internal/identity/repository"
	identityservice "github.com/kevobebop/kindmind/internal/identity/service"
	dbpkg "github.com/kevobebop/kindmind/pkg/db"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type gatewayStub struct {
	mu            sync.Mutex
	customerCalls int
	sessionCalls  []billingdomain.CreateCheckoutSessionRequest
	sessionErr    error
}

func (g *gatewayStub) CreateCustomer(ctx context.Context, email string, metadata map[string]string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.customerCalls++
	return fmt.Sprintf("cus_%d", g.customerCalls), nil
}

func (g *gatewayStub) CreateCheckoutSession(ctx context.Context, req billingdomain.CreateCheckoutSessionRequest) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.sessionErr != nil {
		return "", g.sessionErr
	}
	g.sessionCalls = append(g.sessionCalls, req)
	return fmt.Sprintf("cs_%d", len(g.sessionCalls)), nil
}

func (g *gatewayStub) RetrieveSubscription(ctx context.Context, subscriptionID string) (billingdomain.SubscriptionState, error) {
	return billingdomain.SubscriptionState{}, billingdomain.ErrInvalidRequest
}

func setupCheckout(t *testing.T, priceID string) (domain.Service, identitydomain.Service, *gatewayStub) {
	t.Helper()

	conn, err := dbpkg.NewTest()
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := conn.AutoMigrate(&identitydomain.UserIdentity{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	identitySvc := identityservice.New(identityservice.Params{
		DB:   conn,
		Log:  zap.NewNop(),
		Repo: identityrepository.Provide(),
	})

	holder, err := config.NewPlanConfigHolder(config.Config{
		CheckoutPriceID:   priceID,
		CheckoutTrialDays: 7,
	})
	if err != nil {
		t.Fatalf("plan config: %v", err)
	}

	gw := &gatewayStub{}
	svc := New(Params{
		Cfg: config.Config{
			CheckoutSuccessURL: "https://example.test/success",
			CheckoutCancelURL:  "https://example.test/cancel",
		},
		Plans:       holder,
		Log:         zap.NewNop(),
		IdentitySvc: identitySvc,
		Gateway:     gw,
	})
	return svc, identitySvc, gw
}

func TestBeginCheckoutCreatesCustomerOnce(t *testing.T) {
	svc, identitySvc, gw := setupCheckout(t, "price_basic")
	ctx := context.Background()

	if _, err := identitySvc.CreateDefault(ctx, "user-1"); err != nil {
		t.Fatalf("create user: %v", err)
	}

	req := domain.BeginCheckoutRequest{UserID: "user-1", Email: "user@example.test"}
	sessionID, err := svc.BeginCheckout(ctx, req)
	if err != nil {
		t.Fatalf("begin checkout: %v", err)
	}
	if sessionID == "" {
		t.Fatal("expected a session id")
	}

	if _, err := svc.BeginCheckout(ctx, req); err != nil {
		t.Fatalf("second checkout: %v", err)
	}

	if gw.customerCalls != 1 {
		t.Fatalf("customer creations = %d, want 1", gw.customerCalls)
	}
	if len(gw.sessionCalls) != 2 {
		t.Fatalf("session calls = %d, want 2", len(gw.sessionCalls))
	}
	// Both sessions use the single persisted customer.
	if gw.sessionCalls[0].CustomerID != gw.sessionCalls[1].CustomerID {
		t.Fatalf("sessions used different customers: %q vs %q",
			gw.sessionCalls[0].CustomerID, gw.sessionCalls[1].CustomerID)
	}
}

func TestBeginCheckoutSessionCarriesUserMetadata(t *testing.T) {
	svc, identitySvc, gw := setupCheckout(t, "price_basic")
	ctx := context.Background()

	if _, err := identitySvc.CreateDefault(ctx, "user-1"); err != nil {
		t.Fatalf("create user: %v", err)
	}
	if _, err := svc.BeginCheckout(ctx, domain.BeginCheckoutRequest{UserID: "user-1", Email: "user@example.test"}); err != nil {
		t.Fatalf("begin checkout: %v", err)
	}

	call := gw.sessionCalls[0]
	if call.Metadata["userId"] != "user-1" {
		t.Fatalf("metadata userId = %q, want user-1", call.Metadata["userId"])
	}
	if call.PriceID != "price_basic" {
		t.Fatalf("price id = %q, want price_basic", call.PriceID)
	}
	if call.TrialDays != 7 {
		t.Fatalf("trial days = %d, want 7", call.TrialDays)
	}
}

func TestBeginCheckoutReusesStoredCustomer(t *testing.T) {
	svc, identitySvc, gw := setupCheckout(t, "price_basic")
	ctx := context.Background()

	if _, err := identitySvc.CreateDefault(ctx, "user-1"); err != nil {
		t.Fatalf("create user: %v", err)
	}
	if _, err := identitySvc.EnsureCustomerID(ctx, "user-1", "cus_existing"); err != nil {
		t.Fatalf("seed customer id: %v", err)
	}

	if _, err := svc.BeginCheckout(ctx, domain.BeginCheckoutRequest{UserID: "user-1", Email: "user@example.test"}); err != nil {
		t.Fatalf("begin checkout: %v", err)
	}

	if gw.customerCalls != 0 {
		t.Fatalf("customer creations = %d, want 0", gw.customerCalls)
	}
	if gw.sessionCalls[0].CustomerID != "cus_existing" {
		t.Fatalf("session customer = %q, want cus_existing", gw.sessionCalls[0].CustomerID)
	}
}

func TestBeginCheckoutMisconfiguredPrice(t *testing.T) {
	svc, identitySvc, _ := setupCheckout(t, "")
	ctx := context.Background()

	if _, err := identitySvc.CreateDefault(ctx, "user-1"); err != nil {
		t.Fatalf("create user: %v", err)
	}

	_, err := svc.BeginCheckout(ctx, domain.BeginCheckoutRequest{UserID: "user-1", Email: "user@example.test"})
	if !errors.Is(err, domain.ErrConfig) {
		t.Fatalf("expected ErrConfig, got %v", err)
	}
}

func TestBeginCheckoutRejectedSessionIsConfigError(t *testing.T) {
	svc, identitySvc, gw := setupCheckout(t, "price_gone")
	ctx := context.Background()

	if _, err := identitySvc.CreateDefault(ctx, "user-1"); err != nil {
		t.Fatalf("create user: %v", err)
	}
	gw.sessionErr = billingdomain.ErrInvalidRequest

	_, err := svc.BeginCheckout(ctx, domain.BeginCheckoutRequest{UserID: "user-1", Email: "user@example.test"})
	if !errors.Is(err, domain.ErrConfig) {
		t.Fatalf("expected ErrConfig, got %v", err)
	}
}

func TestConfigErrorsLoggedPerCause(t *testing.T) {
	conn, err := dbpkg.NewTest()
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := conn.AutoMigrate(&identitydomain.UserIdentity{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	identitySvc := identityservice.New(identityservice.Params{
		DB:   conn,
		Log:  zap.NewNop(),
		Repo: identityrepository.Provide(),
	})
	if _, err := identitySvc.CreateDefault(context.Background(), "user-1"); err != nil {
		t.Fatalf("create user: %v", err)
	}

	emptyHolder, err := config.NewPlanConfigHolder(config.Config{})
	if err != nil {
		t.Fatalf("empty plan config: %v", err)
	}
	pricedHolder, err := config.NewPlanConfigHolder(config.Config{CheckoutPriceID: "price_gone"})
	if err != nil {
		t.Fatalf("priced plan config: %v", err)
	}

	core, logs := observer.New(zap.ErrorLevel)
	gw := &gatewayStub{}
	svc := &Service{
		successURL:  "https://example.test/success",
		cancelURL:   "https://example.test/cancel",
		plans:       emptyHolder,
		log:         zap.New(core),
		identitySvc: identitySvc,
		gateway:     gw,
	}
	req := domain.BeginCheckoutRequest{UserID: "user-1", Email: "user@example.test"}

	if _, err := svc.BeginCheckout(context.Background(), req); !errors.Is(err, domain.ErrConfig) {
		t.Fatalf("missing price: expected ErrConfig, got %v", err)
	}

	svc.plans = pricedHolder
	gw.sessionErr = billingdomain.ErrInvalidRequest
	if _, err := svc.BeginCheckout(context.Background(), req); !errors.Is(err, domain.ErrConfig) {
		t.Fatalf("rejected session: expected ErrConfig, got %v", err)
	}

	// Both distinct misconfigurations must have logged; one firing first
	// must not swallow the other.
	var priceMissing, sessionRejected bool
	for _, entry := range logs.All() {
		switch entry.Message {
		case "checkout price id is not configured":
			priceMissing = true
		case "checkout session rejected by billing provider":
			sessionRejected = true
		}
	}
	if !priceMissing || !sessionRejected {
		t.Fatalf("logged: priceMissing=%v sessionRejected=%v, want both", priceMissing, sessionRejected)
	}
}

func TestBeginCheckoutUnknownUser(t *testing.T) {
	svc, _, _ := setupCheckout(t, "price_basic")

	_, err := svc.BeginCheckout(context.Background(), domain.BeginCheckoutRequest{UserID: "ghost", Email: "ghost@example.test"})
	if !errors.Is(err, identitydomain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestBeginCheckoutValidation(t *testing.T) {
	svc, _, _ := setupCheckout(t, "price_basic")

	_, err := svc.BeginCheckout(context.Background(), domain.BeginCheckoutRequest{UserID: "", Email: ""})
	if !errors.Is(err, domain.ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
}
