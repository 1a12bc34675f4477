package usecase

import (
	"context"
	"sync"
	"testing"
	"time"

	"marketplace/internal/domain/model"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// =====================
// 共通のテスト部品
// =====================

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type stubValidator struct {
	fields map[string]string
}

func (v stubValidator) ValidateDeliveryAddress(model.DeliveryAddress) map[string]string {
	return v.fields
}

type publishedEvent struct {
	Type    string
	OrderID int64
	Payload any
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
}

func (p *recordingPublisher) Publish(_ context.Context, eventType string, orderID int64, payload any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{Type: eventType, OrderID: orderID, Payload: payload})
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type busyLocker struct{}

func (busyLocker) TryLock(context.Context, string, time.Duration) (func(), bool, error) {
	return func() {}, false, nil
}

// =====================
// テストデータ
// =====================

const (
	producerA int64 = 100
	producerB int64 = 200

	productDried    int64 = 1 // producerA, 20.00, 後払い可
	productFresh    int64 = 2 // producerA, 10.00, 最低2, 後払い可
	productWellness int64 = 3 // producerB, 7.50, 最低5, 後払い不可
	productOff      int64 = 4 // 販売停止

	slotSoon    int64 = 10 // productFresh, 2日後, 容量10
	slotPast    int64 = 11 // productFresh, 昨日
	slotNextWk  int64 = 12 // productFresh, 7日後, 容量4
	clientUser  int64 = 1
	clientOther int64 = 2
)

var testNow = time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)

func minQty(n int64) *int64 { return &n }

type testEnv struct {
	store   *memStore
	clock   *fakeClock
	events  *recordingPublisher
	ledger  *CapacityLedger
	sweeper *SweeperUsecase
	cart    *CartUsecase
	orders  *OrderUsecase
	slots   *DeliverySlotUsecase
	admin   *AdminOrderUsecase
	revenue *ProducerRevenueUsecase
}

func newTestEnv(t *testing.T) *testEnv {
	return newTestEnvWith(t, SweeperConfig{AbandonAfter: 24 * time.Hour, Retention: DraftRetentionKeep})
}

func newTestEnvWith(t *testing.T, cfg SweeperConfig) *testEnv {
	t.Helper()

	clock := &fakeClock{now: testNow}
	store := newMemStore(clock)
	seed(store)

	events := &recordingPublisher{}
	ledger := NewCapacityLedger(clock, time.UTC)
	sweeper := NewSweeperUsecase(store, ledger, nil, clock, cfg, zap.NewNop())

	return &testEnv{
		store:   store,
		clock:   clock,
		events:  events,
		ledger:  ledger,
		sweeper: sweeper,
		cart:    NewCartUsecase(store, ledger, clock),
		orders: NewOrderUsecase(OrderUsecaseDeps{
			Tx:             store,
			Ledger:         ledger,
			Sweeper:        sweeper,
			Validator:      stubValidator{},
			Events:         events,
			Clock:          clock,
			InvoiceDueDays: 30,
			Log:            zap.NewNop(),
		}),
		slots:   NewDeliverySlotUsecase(store, ledger, sweeper, events, clock, zap.NewNop()),
		admin:   NewAdminOrderUsecase(store, clock),
		revenue: NewProducerRevenueUsecase(store, clock),
	}
}

func seed(m *memStore) {
	st := m.st
	st.products[productDried] = model.Product{
		ID: productDried, ProducerID: producerA, Name: "Dried shiitake", Unit: "kg",
		Price: decimal.RequireFromString("20"), Type: model.ProductTypeDried,
		IsAvailable: true, AcceptDeferred: true,
	}
	st.products[productFresh] = model.Product{
		ID: productFresh, ProducerID: producerA, Name: "Oyster mushroom", Unit: "kg",
		Price: decimal.RequireFromString("10"), Type: model.ProductTypeFresh,
		IsAvailable: true, AcceptDeferred: true, MinOrderQuantity: minQty(2),
	}
	st.products[productWellness] = model.Product{
		ID: productWellness, ProducerID: producerB, Name: "Lion's mane tincture", Unit: "bottle",
		Price: decimal.RequireFromString("7.50"), Type: model.ProductTypeWellness,
		IsAvailable: true, MinOrderQuantity: minQty(5),
	}
	st.products[productOff] = model.Product{
		ID: productOff, ProducerID: producerA, Name: "Substrate block", Unit: "pcs",
		Price: decimal.RequireFromString("3"), Type: model.ProductTypeSubstrate,
	}

	st.slots[slotSoon] = model.DeliverySlot{
		ID: slotSoon, ProductID: productFresh, Date: time.Date(2025, 3, 12, 0, 0, 0, 0, time.UTC),
		MaxCapacity: 10, IsAvailable: true,
	}
	st.slots[slotPast] = model.DeliverySlot{
		ID: slotPast, ProductID: productFresh, Date: time.Date(2025, 3, 9, 0, 0, 0, 0, time.UTC),
		MaxCapacity: 10, IsAvailable: true,
	}
	st.slots[slotNextWk] = model.DeliverySlot{
		ID: slotNextWk, ProductID: productFresh, Date: time.Date(2025, 3, 17, 0, 0, 0, 0, time.UTC),
		MaxCapacity: 4, IsAvailable: true,
	}
}

func client(id int64) Actor {
	return Actor{UserID: id, Role: model.RoleClient}
}

func producer(userID, producerID int64) Actor {
	return Actor{UserID: userID, Role: model.RoleProducer, ProducerID: &producerID}
}

func admin() Actor {
	return Actor{UserID: 999, Role: model.RoleAdmin}
}

func pickupCard() CheckoutInput {
	return CheckoutInput{DeliveryType: "pickup", PaymentMethod: "card"}
}

func requireKind(t *testing.T, err error, kind ErrorKind) {
	t.Helper()
	require.Error(t, err)
	he, ok := AsHTTPError(err)
	require.True(t, ok, "not an HTTPError: %v", err)
	require.Equal(t, kind, he.Kind, he.Message)
}

func requireDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	require.Truef(t, decimal.RequireFromString(want).Equal(got), "want %s, got %s", want, got.String())
}

// 予約1件（数量qty）を入れたカートを作ってIDを返す
func (e *testEnv) cartWithBooking(t *testing.T, user int64, slotID int64, qty int64) OrderView {
	t.Helper()
	v, err := e.cart.AddBooking(context.Background(), client(user), AddBookingInput{DeliverySlotID: slotID, Quantity: qty})
	require.NoError(t, err)
	return v
}
