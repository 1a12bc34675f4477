package usecase

import (
	"context"
	"testing"
	"time"

	"marketplace/internal/domain/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSweep_ReleasesAbandonedDraft_Keep(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	cart := e.cartWithBooking(t, clientUser, slotSoon, 3)

	e.clock.Advance(25 * time.Hour)

	res, err := e.sweeper.Sweep(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, res.OrdersSwept)
	assert.Equal(t, 1, res.BookingsReleased)
	assert.Equal(t, int64(3), res.QuantityReleased)
	assert.Equal(t, 0, res.OrdersDeleted)
	assert.Equal(t, int64(0), e.store.slot(slotSoon).Reserved)

	o, ok := e.store.order(cart.ID)
	require.True(t, ok, "keep mode leaves the draft")
	assert.Equal(t, model.OrderStatusDraft, o.Status)
	requireDecimal(t, "0", o.Total)
	assert.Contains(t, e.store.auditActions(), model.AuditActionSweepDraft)

	// 2回目は対象なし
	res, err = e.sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, res.OrdersSwept)
}

func TestSweep_KeepIgnoresDraftsWithoutBookings(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	cart, err := e.cart.AddItem(ctx, client(clientUser), AddItemInput{ProductID: productDried, Quantity: 2})
	require.NoError(t, err)

	e.clock.Advance(25 * time.Hour)

	res, err := e.sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, res.OrdersSwept)
	assert.NotContains(t, e.store.auditActions(), model.AuditActionSweepDraft)

	o, ok := e.store.order(cart.ID)
	require.True(t, ok)
	requireDecimal(t, "40", o.Total)
}

func TestSweep_DeleteRemovesDraftsWithoutBookings(t *testing.T) {
	e := newTestEnvWith(t, SweeperConfig{AbandonAfter: time.Hour, Retention: DraftRetentionDelete})
	ctx := context.Background()
	cart, err := e.cart.AddItem(ctx, client(clientUser), AddItemInput{ProductID: productDried, Quantity: 2})
	require.NoError(t, err)

	e.clock.Advance(2 * time.Hour)

	res, err := e.sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.OrdersDeleted)
	_, ok := e.store.order(cart.ID)
	assert.False(t, ok)
}

func TestSweep_DeletesAbandonedDraft(t *testing.T) {
	e := newTestEnvWith(t, SweeperConfig{AbandonAfter: time.Hour, Retention: DraftRetentionDelete})
	ctx := context.Background()
	cart := e.cartWithBooking(t, clientUser, slotSoon, 2)
	_, err := e.cart.AddItem(ctx, client(clientUser), AddItemInput{ProductID: productDried, Quantity: 1})
	require.NoError(t, err)

	e.clock.Advance(2 * time.Hour)

	res, err := e.sweeper.Sweep(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, res.OrdersDeleted)
	_, ok := e.store.order(cart.ID)
	assert.False(t, ok)
	assert.Equal(t, int64(0), e.store.slot(slotSoon).Reserved)
	e.store.read(func(st *memState) {
		assert.Empty(t, st.items)
		assert.Empty(t, st.bookings)
	})
}

func TestSweep_LeavesRecentDraftsAndCheckedOutOrders(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	e.cartWithBooking(t, clientUser, slotNextWk, 2)
	checkedOut(t, e, clientOther, 3)

	e.clock.Advance(time.Hour)
	res, err := e.sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, res.OrdersSwept)

	// PENDINGは何日経っても回収しない
	e.clock.Advance(24 * time.Hour)
	res, err = e.sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.OrdersSwept)
	assert.Equal(t, int64(0), e.store.slot(slotNextWk).Reserved)
	assert.Equal(t, int64(3), e.store.slot(slotSoon).Reserved)
}

func TestSweep_ReleasesExpiredBookingsOnActiveDraft(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	e.cartWithBooking(t, clientUser, slotSoon, 2)
	e.cartWithBooking(t, clientUser, slotNextWk, 2)

	// 枠の日付（3/12）は過ぎたが、カートは直前に触られている
	e.clock.Advance(3 * 24 * time.Hour)
	cart, err := e.cart.AddItem(ctx, client(clientUser), AddItemInput{ProductID: productDried, Quantity: 1})
	require.NoError(t, err)
	require.Len(t, cart.Items, 3)

	res, err := e.sweeper.Sweep(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, res.BookingsReleased)
	assert.Equal(t, int64(2), res.QuantityReleased)
	assert.Equal(t, int64(0), e.store.slot(slotSoon).Reserved)
	assert.Equal(t, int64(2), e.store.slot(slotNextWk).Reserved)

	after, err := e.cart.Current(ctx, client(clientUser), "")
	require.NoError(t, err)
	assert.Len(t, after.Items, 2)
	requireDecimal(t, "40", after.Totals.Subtotal)
}

func TestSweep_SkipsLockedOrders(t *testing.T) {
	e := newTestEnv(t)
	cart := e.cartWithBooking(t, clientUser, slotSoon, 3)
	e.store.busy[cart.ID] = true

	e.clock.Advance(48 * time.Hour)
	res, err := e.sweeper.Sweep(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0, res.OrdersSwept)
	assert.Equal(t, int64(3), e.store.slot(slotSoon).Reserved)
}

func TestSweep_SkippedWhenAnotherInstanceHoldsLock(t *testing.T) {
	e := newTestEnv(t)
	e.cartWithBooking(t, clientUser, slotSoon, 3)
	sw := NewSweeperUsecase(e.store, e.ledger, busyLocker{}, e.clock, SweeperConfig{}, zap.NewNop())

	e.clock.Advance(48 * time.Hour)
	res, err := sw.Sweep(context.Background())
	require.NoError(t, err)

	assert.True(t, res.Skipped)
	assert.Equal(t, int64(3), e.store.slot(slotSoon).Reserved)
}

func TestCleanup_ReturnsSweepResult(t *testing.T) {
	e := newTestEnv(t)
	e.cartWithBooking(t, clientUser, slotSoon, 3)
	e.clock.Advance(25 * time.Hour)

	res, err := e.slots.Cleanup(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, res.OrdersSwept)
	assert.Equal(t, int64(3), res.QuantityReleased)
}
