package usecase

import (
	"context"
	"sort"
	"sync"
	"time"

	"marketplace/internal/domain/model"
	repo "marketplace/internal/repository"

	"github.com/shopspring/decimal"
)

// =====================
// テスト用のインメモリ実装
// =====================
//
// WithinTxは1本ずつ直列に実行し、fnがエラーなら開始時の状態へ戻す。
// Reserveはgorm実装と同じ「条件を満たすときだけ加算」の約束を守る。

type memState struct {
	orders   map[int64]model.Order
	items    map[int64]model.OrderItem
	bookings map[int64]model.Booking
	slots    map[int64]model.DeliverySlot
	products map[int64]model.Product
	invoices map[int64]model.Invoice // order_id -> invoice
	audits   []model.AuditLog
	nextID   int64
}

func newMemState() *memState {
	return &memState{
		orders:   map[int64]model.Order{},
		items:    map[int64]model.OrderItem{},
		bookings: map[int64]model.Booking{},
		slots:    map[int64]model.DeliverySlot{},
		products: map[int64]model.Product{},
		invoices: map[int64]model.Invoice{},
		nextID:   1000,
	}
}

func (s *memState) clone() *memState {
	c := newMemState()
	for k, v := range s.orders {
		c.orders[k] = v
	}
	for k, v := range s.items {
		c.items[k] = v
	}
	for k, v := range s.bookings {
		c.bookings[k] = v
	}
	for k, v := range s.slots {
		c.slots[k] = v
	}
	for k, v := range s.products {
		c.products[k] = v
	}
	for k, v := range s.invoices {
		c.invoices[k] = v
	}
	c.audits = append([]model.AuditLog(nil), s.audits...)
	c.nextID = s.nextID
	return c
}

func (s *memState) id() int64 {
	s.nextID++
	return s.nextID
}

type memStore struct {
	mu    sync.Mutex
	st    *memState
	clock Clock

	// 他のトランザクションが行ロック中の注文（TryLockForSweepがfalseを返す）
	busy map[int64]bool
}

func newMemStore(clock Clock) *memStore {
	return &memStore{st: newMemState(), clock: clock, busy: map[int64]bool{}}
}

func (m *memStore) WithinTx(ctx context.Context, fn func(r repo.TxRepos) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.st.clone()
	if err := fn(memRepos{m: m}); err != nil {
		m.st = snapshot
		return err
	}
	return nil
}

// テストから直接読む・書く
func (m *memStore) read(fn func(s *memState)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(m.st)
}

func (m *memStore) slot(id int64) model.DeliverySlot {
	var s model.DeliverySlot
	m.read(func(st *memState) { s = st.slots[id] })
	return s
}

func (m *memStore) order(id int64) (model.Order, bool) {
	var o model.Order
	var ok bool
	m.read(func(st *memState) { o, ok = st.orders[id] })
	return o, ok
}

func (m *memStore) auditActions() []model.AuditAction {
	var out []model.AuditAction
	m.read(func(st *memState) {
		for _, a := range st.audits {
			out = append(out, a.Action)
		}
	})
	return out
}

type memRepos struct{ m *memStore }

func (r memRepos) Orders() repo.OrderRepository         { return memOrders{r.m} }
func (r memRepos) OrderItems() repo.OrderItemRepository { return memItems{r.m} }
func (r memRepos) Bookings() repo.BookingRepository     { return memBookings{r.m} }
func (r memRepos) Slots() repo.DeliverySlotRepository   { return memSlots{r.m} }
func (r memRepos) Products() repo.ProductRepository     { return memProducts{r.m} }
func (r memRepos) Invoices() repo.InvoiceRepository     { return memInvoices{r.m} }
func (r memRepos) AuditLogs() repo.AuditLogRepository   { return memAudits{r.m} }

func sortedKeys[V any](m map[int64]V) []int64 {
	keys := make([]int64, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// =====================
// orders
// =====================

type memOrders struct{ m *memStore }

func (r memOrders) FindByID(_ context.Context, orderID int64) (model.Order, error) {
	o, ok := r.m.st.orders[orderID]
	if !ok {
		return model.Order{}, repo.ErrNotFound
	}
	return o, nil
}

func (r memOrders) FindByIDForUpdate(ctx context.Context, orderID int64) (model.Order, error) {
	return r.FindByID(ctx, orderID)
}

func (r memOrders) TryLockForSweep(_ context.Context, orderID int64) (model.Order, bool, error) {
	if r.m.busy[orderID] {
		return model.Order{}, false, nil
	}
	o, ok := r.m.st.orders[orderID]
	if !ok || o.Status != model.OrderStatusDraft {
		return model.Order{}, false, nil
	}
	return o, true, nil
}

func (r memOrders) FindDraftByUserID(_ context.Context, userID int64) (model.Order, error) {
	for _, id := range sortedKeys(r.m.st.orders) {
		o := r.m.st.orders[id]
		if o.UserID == userID && o.Status == model.OrderStatusDraft {
			return o, nil
		}
	}
	return model.Order{}, repo.ErrNotFound
}

func (r memOrders) GetOrCreateDraftByUserID(ctx context.Context, userID int64) (model.Order, error) {
	if o, err := r.FindDraftByUserID(ctx, userID); err == nil {
		return o, nil
	}
	now := r.m.clock.Now()
	o := model.Order{
		ID:        r.m.st.id(),
		UserID:    userID,
		Status:    model.OrderStatusDraft,
		Total:     decimal.Zero,
		CreatedAt: now,
		UpdatedAt: now,
	}
	r.m.st.orders[o.ID] = o
	return o, nil
}

func (r memOrders) UpdateTotal(_ context.Context, orderID int64, total decimal.Decimal) error {
	o, ok := r.m.st.orders[orderID]
	if !ok {
		return repo.ErrNotFound
	}
	o.Total = total
	o.UpdatedAt = r.m.clock.Now()
	r.m.st.orders[orderID] = o
	return nil
}

func (r memOrders) UpdateStatus(_ context.Context, orderID int64, from model.OrderStatus, to model.OrderStatus) error {
	o, ok := r.m.st.orders[orderID]
	if !ok {
		return repo.ErrNotFound
	}
	if o.Status != from {
		return repo.ErrStatusChanged
	}
	o.Status = to
	o.UpdatedAt = r.m.clock.Now()
	r.m.st.orders[orderID] = o
	return nil
}

func (r memOrders) Checkout(_ context.Context, orderID int64, u repo.CheckoutUpdate) error {
	o, ok := r.m.st.orders[orderID]
	if !ok {
		return repo.ErrNotFound
	}
	if o.Status != model.OrderStatusDraft {
		return repo.ErrStatusChanged
	}
	at := u.CheckedOutAt
	o.Status = model.OrderStatusPending
	o.Total = u.Total
	o.Metadata = u.Metadata
	o.CheckedOutAt = &at
	o.UpdatedAt = r.m.clock.Now()
	r.m.st.orders[orderID] = o
	return nil
}

func (r memOrders) DeleteByID(_ context.Context, orderID int64) error {
	if _, ok := r.m.st.orders[orderID]; !ok {
		return repo.ErrNotFound
	}
	delete(r.m.st.orders, orderID)
	return nil
}

// 一覧系はDRAFTを除く（新しい順）
func (r memOrders) visible(match func(o model.Order) bool) []model.Order {
	keys := sortedKeys(r.m.st.orders)
	out := []model.Order{}
	for i := len(keys) - 1; i >= 0; i-- {
		o := r.m.st.orders[keys[i]]
		if o.Status == model.OrderStatusDraft {
			continue
		}
		if match(o) {
			out = append(out, o)
		}
	}
	return out
}

func paginate(orders []model.Order, page, limit int) []model.Order {
	start := (page - 1) * limit
	if start >= len(orders) {
		return []model.Order{}
	}
	end := start + limit
	if end > len(orders) {
		end = len(orders)
	}
	return orders[start:end]
}

func (r memOrders) ListByUserID(_ context.Context, userID int64, page int, limit int) ([]model.Order, int64, error) {
	all := r.visible(func(o model.Order) bool { return o.UserID == userID })
	return paginate(all, page, limit), int64(len(all)), nil
}

func adminMatch(f repo.AdminOrderListFilter) func(o model.Order) bool {
	return func(o model.Order) bool {
		if f.Status != "" && string(o.Status) != f.Status {
			return false
		}
		if f.UserID != nil && o.UserID != *f.UserID {
			return false
		}
		if f.From != nil && o.CreatedAt.Before(*f.From) {
			return false
		}
		if f.To != nil && o.CreatedAt.After(*f.To) {
			return false
		}
		return true
	}
}

func (r memOrders) ListAdmin(_ context.Context, f repo.AdminOrderListFilter) ([]model.Order, int64, error) {
	all := r.visible(adminMatch(f))
	return paginate(all, f.Page, f.Limit), int64(len(all)), nil
}

func (r memOrders) CountByStatus(_ context.Context, f repo.AdminOrderListFilter) (map[model.OrderStatus]int64, error) {
	out := map[model.OrderStatus]int64{}
	for _, o := range r.visible(adminMatch(f)) {
		out[o.Status]++
	}
	return out, nil
}

func (r memOrders) ListByProducer(ctx context.Context, f repo.ProducerOrderFilter) ([]model.Order, error) {
	return r.visible(func(o model.Order) bool {
		if o.Status == model.OrderStatusCancelled {
			return false
		}
		if f.From != nil && (o.CheckedOutAt == nil || o.CheckedOutAt.Before(*f.From)) {
			return false
		}
		if f.To != nil && (o.CheckedOutAt == nil || o.CheckedOutAt.After(*f.To)) {
			return false
		}
		owns, _ := r.ContainsProducer(ctx, o.ID, f.ProducerID)
		return owns
	}), nil
}

func (r memOrders) ContainsProducer(_ context.Context, orderID int64, producerID int64) (bool, error) {
	st := r.m.st
	for _, it := range st.items {
		if it.OrderID == orderID && st.products[it.ProductID].ProducerID == producerID {
			return true, nil
		}
	}
	for _, b := range st.bookings {
		if b.OrderID != orderID {
			continue
		}
		if st.products[st.slots[b.DeliverySlotID].ProductID].ProducerID == producerID {
			return true, nil
		}
	}
	return false, nil
}

func (r memOrders) ListAbandonedDrafts(_ context.Context, f repo.AbandonedDraftFilter) ([]model.Order, error) {
	holding := map[int64]bool{}
	for _, b := range r.m.st.bookings {
		if b.ReleasedAt == nil {
			holding[b.OrderID] = true
		}
	}

	out := []model.Order{}
	for _, id := range sortedKeys(r.m.st.orders) {
		o := r.m.st.orders[id]
		if o.Status != model.OrderStatusDraft || !o.UpdatedAt.Before(f.Before) {
			continue
		}
		if f.HoldingOnly && !holding[o.ID] {
			continue
		}
		out = append(out, o)
		if len(out) == f.Limit {
			break
		}
	}
	return out, nil
}

// =====================
// order items
// =====================

type memItems struct{ m *memStore }

func (r memItems) ListByOrderID(_ context.Context, orderID int64) ([]model.OrderItem, error) {
	out := []model.OrderItem{}
	for _, id := range sortedKeys(r.m.st.items) {
		if it := r.m.st.items[id]; it.OrderID == orderID {
			out = append(out, it)
		}
	}
	return out, nil
}

func (r memItems) UpsertByOrderAndProduct(_ context.Context, orderID int64, productID int64, addQty int64, unitPrice decimal.Decimal) (model.OrderItem, error) {
	now := r.m.clock.Now()
	for id, it := range r.m.st.items {
		if it.OrderID == orderID && it.ProductID == productID {
			it.Quantity += addQty
			it.UpdatedAt = now
			r.m.st.items[id] = it
			return it, nil
		}
	}
	it := model.OrderItem{
		ID:        r.m.st.id(),
		OrderID:   orderID,
		ProductID: productID,
		Quantity:  addQty,
		UnitPrice: unitPrice,
		CreatedAt: now,
		UpdatedAt: now,
	}
	r.m.st.items[it.ID] = it
	return it, nil
}

func (r memItems) FindByID(_ context.Context, itemID int64) (model.OrderItem, error) {
	it, ok := r.m.st.items[itemID]
	if !ok {
		return model.OrderItem{}, repo.ErrNotFound
	}
	return it, nil
}

func (r memItems) DeleteByID(_ context.Context, itemID int64) error {
	if _, ok := r.m.st.items[itemID]; !ok {
		return repo.ErrNotFound
	}
	delete(r.m.st.items, itemID)
	return nil
}

func (r memItems) DeleteByOrderID(_ context.Context, orderID int64) error {
	for id, it := range r.m.st.items {
		if it.OrderID == orderID {
			delete(r.m.st.items, id)
		}
	}
	return nil
}

// =====================
// bookings
// =====================

type memBookings struct{ m *memStore }

// DeliverySlot.Productをpreloadした形にする
func (r memBookings) withSlot(b model.Booking) model.Booking {
	s := memSlots(r).withProduct(r.m.st.slots[b.DeliverySlotID])
	b.DeliverySlot = &s
	return b
}

func (r memBookings) Create(ctx context.Context, b model.Booking) (model.Booking, error) {
	now := r.m.clock.Now()
	b.ID = r.m.st.id()
	b.DeliverySlot = nil
	b.CreatedAt = now
	b.UpdatedAt = now
	r.m.st.bookings[b.ID] = b
	return r.FindByID(ctx, b.ID)
}

func (r memBookings) FindByID(_ context.Context, bookingID int64) (model.Booking, error) {
	b, ok := r.m.st.bookings[bookingID]
	if !ok {
		return model.Booking{}, repo.ErrNotFound
	}
	return r.withSlot(b), nil
}

func (r memBookings) ListByOrderID(_ context.Context, orderID int64) ([]model.Booking, error) {
	out := []model.Booking{}
	for _, id := range sortedKeys(r.m.st.bookings) {
		if b := r.m.st.bookings[id]; b.OrderID == orderID {
			out = append(out, r.withSlot(b))
		}
	}
	return out, nil
}

func (r memBookings) MarkReleased(_ context.Context, bookingID int64, at time.Time) error {
	b, ok := r.m.st.bookings[bookingID]
	if !ok {
		return repo.ErrNotFound
	}
	if b.ReleasedAt == nil {
		b.ReleasedAt = &at
		r.m.st.bookings[bookingID] = b
	}
	return nil
}

func (r memBookings) DeleteByID(_ context.Context, bookingID int64) error {
	if _, ok := r.m.st.bookings[bookingID]; !ok {
		return repo.ErrNotFound
	}
	delete(r.m.st.bookings, bookingID)
	return nil
}

func (r memBookings) ListDraftOnExpiredSlots(_ context.Context, today time.Time, limit int) ([]model.Booking, error) {
	out := []model.Booking{}
	for _, id := range sortedKeys(r.m.st.bookings) {
		b := r.m.st.bookings[id]
		if r.m.st.orders[b.OrderID].Status != model.OrderStatusDraft {
			continue
		}
		if !r.m.st.slots[b.DeliverySlotID].Expired(today) {
			continue
		}
		out = append(out, r.withSlot(b))
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r memBookings) CountBySlotID(_ context.Context, slotID int64) (int64, error) {
	var n int64
	for _, b := range r.m.st.bookings {
		if b.DeliverySlotID == slotID {
			n++
		}
	}
	return n, nil
}

// =====================
// delivery slots
// =====================

type memSlots struct{ m *memStore }

func (r memSlots) withProduct(s model.DeliverySlot) model.DeliverySlot {
	if p, ok := r.m.st.products[s.ProductID]; ok {
		s.Product = &p
	}
	return s
}

func (r memSlots) FindByID(_ context.Context, slotID int64) (model.DeliverySlot, error) {
	s, ok := r.m.st.slots[slotID]
	if !ok {
		return model.DeliverySlot{}, repo.ErrNotFound
	}
	return r.withProduct(s), nil
}

func (r memSlots) Reserve(ctx context.Context, slotID int64, qty int64, today time.Time) (model.DeliverySlot, error) {
	s, ok := r.m.st.slots[slotID]
	if !ok {
		return model.DeliverySlot{}, repo.ErrNotFound
	}
	if s.Reserved+qty > s.MaxCapacity || s.Expired(today) {
		if s.Expired(today) {
			return model.DeliverySlot{}, repo.ErrSlotExpired
		}
		return model.DeliverySlot{}, repo.ErrCapacityExceeded
	}
	s.Reserved += qty
	s.IsAvailable = s.Reserved < s.MaxCapacity
	r.m.st.slots[slotID] = s
	return r.FindByID(ctx, slotID)
}

func (r memSlots) Release(ctx context.Context, slotID int64, qty int64) (model.DeliverySlot, error) {
	s, ok := r.m.st.slots[slotID]
	if !ok {
		return model.DeliverySlot{}, repo.ErrNotFound
	}
	s.Reserved -= qty
	if s.Reserved < 0 {
		s.Reserved = 0
	}
	s.IsAvailable = s.Reserved < s.MaxCapacity
	r.m.st.slots[slotID] = s
	return r.FindByID(ctx, slotID)
}

func (r memSlots) Create(ctx context.Context, slot model.DeliverySlot) (model.DeliverySlot, error) {
	for _, s := range r.m.st.slots {
		if s.ProductID == slot.ProductID && model.DateOf(s.Date).Equal(model.DateOf(slot.Date)) {
			return model.DeliverySlot{}, repo.ErrDuplicate
		}
	}
	slot.ID = r.m.st.id()
	slot.Date = model.DateOf(slot.Date)
	slot.Product = nil
	slot.IsAvailable = slot.Reserved < slot.MaxCapacity
	r.m.st.slots[slot.ID] = slot
	return r.FindByID(ctx, slot.ID)
}

func (r memSlots) UpdateMaxCapacity(ctx context.Context, slotID int64, maxCapacity int64) (model.DeliverySlot, error) {
	s, ok := r.m.st.slots[slotID]
	if !ok {
		return model.DeliverySlot{}, repo.ErrNotFound
	}
	if s.Reserved > maxCapacity {
		return model.DeliverySlot{}, repo.ErrCapacityExceeded
	}
	s.MaxCapacity = maxCapacity
	s.IsAvailable = s.Reserved < s.MaxCapacity
	r.m.st.slots[slotID] = s
	return r.FindByID(ctx, slotID)
}

func (r memSlots) Delete(ctx context.Context, slotID int64) error {
	if _, ok := r.m.st.slots[slotID]; !ok {
		return repo.ErrNotFound
	}
	n, _ := memBookings(r).CountBySlotID(ctx, slotID)
	if n > 0 {
		return repo.ErrSlotInUse
	}
	delete(r.m.st.slots, slotID)
	return nil
}

func (r memSlots) ListAvailableByProduct(_ context.Context, productID int64, today time.Time) ([]model.DeliverySlot, error) {
	out := []model.DeliverySlot{}
	for _, id := range sortedKeys(r.m.st.slots) {
		s := r.m.st.slots[id]
		if s.ProductID == productID && s.Available(today) {
			out = append(out, r.withProduct(s))
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (r memSlots) List(_ context.Context, f repo.DeliverySlotListFilter) ([]model.DeliverySlot, error) {
	out := []model.DeliverySlot{}
	for _, id := range sortedKeys(r.m.st.slots) {
		s := r.withProduct(r.m.st.slots[id])
		if f.ProductID != nil && s.ProductID != *f.ProductID {
			continue
		}
		if f.ProducerID != nil && (s.Product == nil || s.Product.ProducerID != *f.ProducerID) {
			continue
		}
		if f.From != nil && s.Date.Before(model.DateOf(*f.From)) {
			continue
		}
		if f.To != nil && s.Date.After(model.DateOf(*f.To)) {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

// =====================
// products / invoices / audit logs
// =====================

type memProducts struct{ m *memStore }

func (r memProducts) FindByID(_ context.Context, id int64) (model.Product, error) {
	p, ok := r.m.st.products[id]
	if !ok || p.DeletedAt.Valid {
		return model.Product{}, repo.ErrNotFound
	}
	return p, nil
}

func (r memProducts) ListByIDs(_ context.Context, ids []int64) ([]model.Product, error) {
	out := []model.Product{}
	for _, id := range ids {
		if p, ok := r.m.st.products[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

type memInvoices struct{ m *memStore }

func (r memInvoices) Create(_ context.Context, inv model.Invoice) (model.Invoice, error) {
	if _, ok := r.m.st.invoices[inv.OrderID]; ok {
		return model.Invoice{}, repo.ErrDuplicate
	}
	inv.ID = r.m.st.id()
	inv.DueDate = model.DateOf(inv.DueDate)
	inv.CreatedAt = r.m.clock.Now()
	inv.UpdatedAt = inv.CreatedAt
	r.m.st.invoices[inv.OrderID] = inv
	return inv, nil
}

func (r memInvoices) UpdateAmount(_ context.Context, invoiceID int64, amount decimal.Decimal) error {
	for orderID, inv := range r.m.st.invoices {
		if inv.ID == invoiceID {
			inv.Amount = amount
			inv.UpdatedAt = r.m.clock.Now()
			r.m.st.invoices[orderID] = inv
			return nil
		}
	}
	return repo.ErrNotFound
}

func (r memInvoices) FindByOrderID(_ context.Context, orderID int64) (model.Invoice, bool, error) {
	inv, ok := r.m.st.invoices[orderID]
	return inv, ok, nil
}

type memAudits struct{ m *memStore }

func (r memAudits) Create(_ context.Context, log model.AuditLog) error {
	log.ID = r.m.st.id()
	r.m.st.audits = append(r.m.st.audits, log)
	return nil
}

func (r memAudits) ListByResource(_ context.Context, f repo.AuditLogFilter) ([]model.AuditLog, error) {
	out := []model.AuditLog{}
	for i := len(r.m.st.audits) - 1; i >= 0; i-- {
		a := r.m.st.audits[i]
		if a.ResourceType != f.ResourceType || a.ResourceID != f.ResourceID {
			continue
		}
		if f.Action != nil && a.Action != *f.Action {
			continue
		}
		if f.ActorUserID != nil && a.ActorUserID != *f.ActorUserID {
			continue
		}
		if f.From != nil && a.CreatedAt.Before(*f.From) {
			continue
		}
		if f.To != nil && a.CreatedAt.After(*f.To) {
			continue
		}
		out = append(out, a)
	}
	if f.Offset > 0 {
		if f.Offset >= len(out) {
			return []model.AuditLog{}, nil
		}
		out = out[f.Offset:]
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}
