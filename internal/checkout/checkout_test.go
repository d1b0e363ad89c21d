package checkout

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/tradeyard/tradeyard-backend/internal/cart"
	"github.com/tradeyard/tradeyard-backend/internal/orders"
	"github.com/tradeyard/tradeyard-backend/internal/products"
	"github.com/tradeyard/tradeyard-backend/internal/users"
	"github.com/tradeyard/tradeyard-backend/internal/wallet"
	"github.com/tradeyard/tradeyard-backend/pkg/config"
	"github.com/tradeyard/tradeyard-backend/pkg/db/models"
	"github.com/tradeyard/tradeyard-backend/pkg/gateway"
	"github.com/tradeyard/tradeyard-backend/pkg/outbox"
	"github.com/tradeyard/tradeyard-backend/pkg/types"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type fakeGateway struct {
	mu       sync.Mutex
	captures map[string]*gateway.Capture
	created  []gateway.CaptureCreateParams

	createStatus  gateway.CaptureStatus
	confirmStatus gateway.CaptureStatus
	createErr     error
	confirmErr    error
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		captures:      make(map[string]*gateway.Capture),
		createStatus:  gateway.CaptureStatusPending,
		confirmStatus: gateway.CaptureStatusCompleted,
	}
}

func (g *fakeGateway) CreateCardCapture(_ context.Context, params gateway.CaptureCreateParams) (*gateway.Capture, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.createErr != nil {
		return nil, g.createErr
	}
	if existing, ok := g.captures[params.IdempotencyKey]; ok {
		return existing, nil
	}
	capture := &gateway.Capture{ID: uuid.NewString(), Status: g.createStatus}
	g.captures[params.IdempotencyKey] = capture
	g.created = append(g.created, params)
	return capture, nil
}

func (g *fakeGateway) ConfirmCapture(_ context.Context, captureID string) (*gateway.Capture, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.confirmErr != nil {
		return nil, g.confirmErr
	}
	return &gateway.Capture{ID: captureID, Status: g.confirmStatus}, nil
}

type testEngine struct {
	svc   *service
	db    *gorm.DB
	gw    *fakeGateway
	clock *fakeClock
	cfg   config.CheckoutConfig
}

func newTestEngine(t *testing.T) *testEngine {
	t.Helper()

	db := newTestDB(t)
	clock := &fakeClock{t: time.Now()}
	gw := newFakeGateway()
	cfg := config.CheckoutConfig{
		PlatformFeeRate:   "0.10",
		ReservationWindow: 3 * time.Minute,
		RecoveryInterval:  time.Minute,
		RecoveryBatchSize: 100,
	}

	userRepo := users.NewRepository(db)
	walletSvc, err := wallet.NewService(wallet.NewRepository(db), userRepo)
	if err != nil {
		t.Fatalf("wallet service: %v", err)
	}

	svc, err := newService(Deps{
		DB:           db,
		Reservations: NewRepository(db),
		Orders:       orders.NewRepository(db),
		Cart:         cart.NewRepository(db),
		Products:     products.NewRepository(db),
		Users:        userRepo,
		Wallet:       walletSvc,
		Outbox:       outbox.NewService(outbox.NewRepository(db), nil),
		Gateway:      gw,
		Config:       cfg,
		Now:          clock.Now,
	})
	if err != nil {
		t.Fatalf("checkout service: %v", err)
	}

	return &testEngine{svc: svc, db: db, gw: gw, clock: clock, cfg: cfg}
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:checkout_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	err = db.AutoMigrate(
		&models.User{},
		&models.Product{},
		&models.CartLine{},
		&models.TransientOrder{},
		&models.TransientOrderLine{},
		&models.PurchasedOrder{},
		&models.PurchasedOrderLine{},
		&models.LedgerEvent{},
		&models.PlatformProfit{},
		&models.OutboxEvent{},
	)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func seedUser(t *testing.T, db *gorm.DB, mutate func(*models.User)) *models.User {
	t.Helper()
	user := &models.User{
		FirstName: "Jordan",
		LastName:  "Vale",
		Country:   "US",
		IsActive:  true,
	}
	if mutate != nil {
		mutate(user)
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return user
}

func seedProduct(t *testing.T, db *gorm.DB, sellerID uuid.UUID, mutate func(*models.Product)) *models.Product {
	t.Helper()
	product := &models.Product{
		SellerID:   sellerID,
		Name:       "Maple Bench",
		PriceCents: 1_800,
		Quantity:   10,
		SelfPickup: true,
		Delivery:   true,
		Country:    "US",
		IsActive:   true,
	}
	if mutate != nil {
		mutate(product)
	}
	if err := db.Create(product).Error; err != nil {
		t.Fatalf("seed product: %v", err)
	}
	return product
}

func seedCartLine(t *testing.T, db *gorm.DB, buyerID, productID uuid.UUID, quantity int, mutate func(*models.CartLine)) {
	t.Helper()
	line := &models.CartLine{
		BuyerID:    buyerID,
		ProductID:  productID,
		SelfPickup: true,
		Quantity:   quantity,
	}
	if mutate != nil {
		mutate(line)
	}
	if err := db.Create(line).Error; err != nil {
		t.Fatalf("seed cart line: %v", err)
	}
}

func storedCard(u *models.User) {
	cardID := "ccof:stored-card"
	last4 := "4242"
	customer := "cust-1"
	u.CardID = &cardID
	u.CardLast4 = &last4
	u.GatewayCustomerID = &customer
}

func testAddress() *types.Address {
	return &types.Address{
		Line1:      "18 Pier Road",
		City:       "Portland",
		State:      "ME",
		PostalCode: "04101",
		Country:    "US",
	}
}

func reloadProduct(t *testing.T, db *gorm.DB, id uuid.UUID) *models.Product {
	t.Helper()
	var product models.Product
	if err := db.First(&product, "id = ?", id).Error; err != nil {
		t.Fatalf("reload product: %v", err)
	}
	return &product
}

func reloadUser(t *testing.T, db *gorm.DB, id uuid.UUID) *models.User {
	t.Helper()
	var user models.User
	if err := db.First(&user, "id = ?", id).Error; err != nil {
		t.Fatalf("reload user: %v", err)
	}
	return &user
}

func countRows(t *testing.T, db *gorm.DB, model any) int64 {
	t.Helper()
	var count int64
	if err := db.Model(model).Count(&count).Error; err != nil {
		t.Fatalf("count rows: %v", err)
	}
	return count
}
