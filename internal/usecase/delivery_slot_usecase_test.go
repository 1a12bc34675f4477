package usecase

import (
	"context"
	"testing"
	"time"

	"marketplace/internal/domain/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListAvailable_ExcludesExpiredAndFull(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	e.cartWithBooking(t, clientUser, slotNextWk, 4)

	slots, err := e.slots.ListAvailable(ctx, productFresh)
	require.NoError(t, err)

	require.Len(t, slots, 1)
	assert.Equal(t, slotSoon, slots[0].ID)
	assert.Equal(t, "2025-03-12", slots[0].Date)
	assert.Equal(t, int64(10), slots[0].Remaining)
	assert.Equal(t, "Oyster mushroom", slots[0].ProductName)

	_, err = e.slots.ListAvailable(ctx, 0)
	requireKind(t, err, KindBadRequest)
}

func TestOverview_ShowsHistoryAndTotals(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	e.cartWithBooking(t, clientUser, slotSoon, 9)

	ov, err := e.slots.Overview(ctx, producer(50, producerA), SlotOverviewFilter{})
	require.NoError(t, err)

	assert.Len(t, ov.Slots, 3)
	assert.Equal(t, int64(24), ov.TotalCapacity)
	assert.Equal(t, int64(9), ov.TotalReserved)
	assert.Equal(t, 1, ov.AlmostFull)

	other, err := e.slots.Overview(ctx, producer(60, producerB), SlotOverviewFilter{})
	require.NoError(t, err)
	assert.Empty(t, other.Slots)

	_, err = e.slots.Overview(ctx, client(clientUser), SlotOverviewFilter{})
	requireKind(t, err, KindForbidden)
}

func TestOverview_DateFilter(t *testing.T) {
	e := newTestEnv(t)
	from := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	to := time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC)

	ov, err := e.slots.Overview(context.Background(), admin(), SlotOverviewFilter{From: &from, To: &to})
	require.NoError(t, err)

	require.Len(t, ov.Slots, 1)
	assert.Equal(t, slotSoon, ov.Slots[0].ID)
}

func TestCreateSlot(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	seller := producer(50, producerA)
	date := time.Date(2025, 3, 20, 0, 0, 0, 0, time.UTC)

	v, err := e.slots.Create(ctx, seller, CreateSlotInput{ProductID: productFresh, Date: date, MaxCapacity: 8})
	require.NoError(t, err)
	assert.Equal(t, "2025-03-20", v.Date)
	assert.Equal(t, int64(8), v.Remaining)
	assert.True(t, v.Available)

	_, err = e.slots.Create(ctx, seller, CreateSlotInput{ProductID: productFresh, Date: date, MaxCapacity: 8})
	requireKind(t, err, KindConflict)

	_, err = e.slots.Create(ctx, seller, CreateSlotInput{ProductID: productDried, Date: date, MaxCapacity: 8})
	requireKind(t, err, KindValidationFailed)

	_, err = e.slots.Create(ctx, producer(60, producerB), CreateSlotInput{ProductID: productFresh, Date: date.AddDate(0, 0, 1), MaxCapacity: 8})
	requireKind(t, err, KindForbidden)

	_, err = e.slots.Create(ctx, seller, CreateSlotInput{ProductID: productFresh, Date: date.AddDate(0, -1, 0), MaxCapacity: 0})
	requireKind(t, err, KindValidationFailed)
	he, _ := AsHTTPError(err)
	assert.Contains(t, he.Fields, "date")
	assert.Contains(t, he.Fields, "max_capacity")
}

func TestUpdateCapacity(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	seller := producer(50, producerA)
	e.cartWithBooking(t, clientUser, slotSoon, 6)

	_, err := e.slots.UpdateCapacity(ctx, seller, slotSoon, 5)
	requireKind(t, err, KindCapacityExceeded)
	assert.Equal(t, int64(10), e.store.slot(slotSoon).MaxCapacity)

	v, err := e.slots.UpdateCapacity(ctx, seller, slotSoon, 6)
	require.NoError(t, err)
	assert.Equal(t, int64(0), v.Remaining)
	assert.False(t, v.Available)

	_, err = e.slots.UpdateCapacity(ctx, producer(60, producerB), slotSoon, 20)
	requireKind(t, err, KindForbidden)

	assert.Contains(t, e.store.auditActions(), model.AuditActionUpdateSlotCapacity)
	assert.Contains(t, e.events.types(), EventDeliverySlotChanged)
}

func TestDeleteSlot(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	seller := producer(50, producerA)
	e.cartWithBooking(t, clientUser, slotSoon, 2)

	err := e.slots.Delete(ctx, seller, slotSoon)
	requireKind(t, err, KindConflict)

	require.NoError(t, e.slots.Delete(ctx, seller, slotPast))
	e.store.read(func(st *memState) {
		_, ok := st.slots[slotPast]
		assert.False(t, ok)
	})

	err = e.slots.Delete(ctx, seller, slotPast)
	requireKind(t, err, KindNotFound)
}
