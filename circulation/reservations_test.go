package circulation_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"library_circulation/circulation"
	"library_circulation/db/dbtest"
	"library_circulation/models"
	"library_circulation/tenant"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_Reserve_RequiresNoFreeCopy(t *testing.T) {
	e := newEnv(t)
	e.book(t, "b1", 1)
	e.members(t, "u1")

	_, err := e.svc.Reserve(e.ctx, school, "u1", "b1")
	assert.ErrorIs(t, err, circulation.ErrNotAvailableForReservation)
	assert.Equal(t, 0, dbtest.LoadMember(t, e.gdb, school.ID(), "u1").ActiveReservations)
}

func Test_Reserve_Rejections(t *testing.T) {
	e := newEnv(t)
	e.book(t, "b1", 1)
	e.book(t, "b2", 1)
	e.book(t, "b3", 1)
	e.members(t, "u0", "u1")
	e.borrow(t, "u0", "b1")
	e.borrow(t, "u0", "b2")
	e.borrow(t, "u0", "b3")

	_, err := e.svc.Reserve(e.ctx, school, "u0", "b1")
	assert.ErrorIs(t, err, circulation.ErrDuplicateLoan)

	e.reserve(t, "u1", "b1")
	_, err = e.svc.Reserve(e.ctx, school, "u1", "b1")
	assert.ErrorIs(t, err, circulation.ErrDuplicateReservation)

	e.reserve(t, "u1", "b2")
	_, err = e.svc.Reserve(e.ctx, school, "u1", "b3")
	assert.ErrorIs(t, err, circulation.ErrPolicyLimitExceeded)

	_, err = e.svc.Reserve(e.ctx, school, "stranger", "b3")
	assert.ErrorIs(t, err, circulation.ErrForbidden)

	_, err = e.svc.Reserve(e.ctx, other, "u1", "b3")
	assert.ErrorIs(t, err, circulation.ErrForbidden)
}

func Test_Return_PromotesOldestReservation(t *testing.T) {
	e := newEnv(t)
	e.book(t, "b1", 1)
	e.members(t, "u0", "u1", "u2")
	l := e.borrow(t, "u0", "b1")

	first := e.reserve(t, "u1", "b1")
	e.clock.Advance(time.Minute)
	second := e.reserve(t, "u2", "b1")

	_, err := e.svc.Return(e.ctx, school, "u0", l.ID)
	require.NoError(t, err)

	r1 := e.reservation(t, first.ID)
	assert.Equal(t, models.ReservationReady, r1.Status)
	require.NotNil(t, r1.ExpiresAt)
	assert.WithinDuration(t, e.clock.Now().AddDate(0, 0, 3), *r1.ExpiresAt, 0)
	assert.Equal(t, models.ReservationWaiting, e.reservation(t, second.ID).Status)

	// the returned copy is held for u1
	assert.Equal(t, 0, e.available(t, "b1"))

	inbox := e.inboxOf(t, "u1")
	require.Len(t, inbox, 1)
	assert.Equal(t, models.NotifyReservationReady, inbox[0].Type)
	assert.Empty(t, e.inboxOf(t, "u2"))
}

func Test_Reserve_SameInstantKeepsInsertionOrder(t *testing.T) {
	e := newEnv(t)
	e.book(t, "b1", 1)
	e.members(t, "u0", "u1", "u2", "u3")
	l := e.borrow(t, "u0", "b1")

	a := e.reserve(t, "u1", "b1")
	b := e.reserve(t, "u2", "b1")
	c := e.reserve(t, "u3", "b1")
	assert.Less(t, a.ID, b.ID)
	assert.Less(t, b.ID, c.ID)

	_, err := e.svc.Return(e.ctx, school, "u0", l.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ReservationReady, e.reservation(t, a.ID).Status)
	assert.Equal(t, models.ReservationWaiting, e.reservation(t, b.ID).Status)
}

func Test_PromoteNext_NoopWithoutWaitersOrCopies(t *testing.T) {
	e := newEnv(t)
	e.book(t, "b1", 1)
	e.members(t, "u0", "u1")

	r, err := e.svc.PromoteNext(e.ctx, school, "b1")
	require.NoError(t, err)
	assert.Nil(t, r)
	assert.Equal(t, 1, e.available(t, "b1"))

	e.borrow(t, "u0", "b1")
	res := e.reserve(t, "u1", "b1")
	r, err = e.svc.PromoteNext(e.ctx, school, "b1")
	require.NoError(t, err)
	assert.Nil(t, r)
	assert.Equal(t, models.ReservationWaiting, e.reservation(t, res.ID).Status)
}

func Test_Borrow_WithReadyHoldFulfillsReservation(t *testing.T) {
	e := newEnv(t)
	e.book(t, "b1", 1)
	e.members(t, "u0", "u1", "u2")
	l := e.borrow(t, "u0", "b1")
	res := e.reserve(t, "u1", "b1")
	_, err := e.svc.Return(e.ctx, school, "u0", l.ID)
	require.NoError(t, err)

	// the held copy is not free for others
	_, err = e.svc.Borrow(e.ctx, school, "u2", "b1")
	assert.ErrorIs(t, err, circulation.ErrOutOfStock)

	e.borrow(t, "u1", "b1")
	assert.Equal(t, models.ReservationFulfilled, e.reservation(t, res.ID).Status)
	assert.Equal(t, 0, e.available(t, "b1"))

	m := dbtest.LoadMember(t, e.gdb, school.ID(), "u1")
	assert.Equal(t, 0, m.ActiveReservations)
	assert.Equal(t, 1, m.ActiveLoans)
}

func Test_Borrow_WithWaitingReservationTakesFreeCopy(t *testing.T) {
	e := newEnv(t)
	e.book(t, "b1", 2)
	e.members(t, "u0", "u1", "u2")
	e.borrow(t, "u0", "b1")
	l := e.borrow(t, "u2", "b1")
	res := e.reserve(t, "u1", "b1")

	// a copy comes back while a later promotion is pending; u1 borrows it directly
	require.NoError(t, e.gdb.Model(&models.Loan{}).Where("id = ?", l.ID).Update("status", models.LoanReturned).Error)
	require.NoError(t, e.gdb.Model(&models.Book{}).Where("id = ?", "b1").Update("available", 1).Error)

	e.borrow(t, "u1", "b1")
	assert.Equal(t, models.ReservationFulfilled, e.reservation(t, res.ID).Status)
	assert.Equal(t, 0, e.available(t, "b1"))
}

func Test_Cancel(t *testing.T) {
	e := newEnv(t)
	e.book(t, "b1", 1)
	e.members(t, "u0", "u1", "u2")
	l := e.borrow(t, "u0", "b1")
	r1 := e.reserve(t, "u1", "b1")
	e.clock.Advance(time.Second)
	r2 := e.reserve(t, "u2", "b1")

	err := e.svc.CancelReservation(e.ctx, school, "u2", r1.ID)
	assert.ErrorIs(t, err, circulation.ErrForbidden)
	err = e.svc.CancelReservation(e.ctx, other, "u1", r1.ID)
	assert.ErrorIs(t, err, circulation.ErrNotFound)

	_, err = e.svc.Return(e.ctx, school, "u0", l.ID)
	require.NoError(t, err)
	require.Equal(t, models.ReservationReady, e.reservation(t, r1.ID).Status)

	// cancelling the READY hold passes the copy on to u2
	require.NoError(t, e.svc.CancelReservation(e.ctx, school, "u1", r1.ID))
	assert.Equal(t, models.ReservationCancelled, e.reservation(t, r1.ID).Status)
	assert.Equal(t, models.ReservationReady, e.reservation(t, r2.ID).Status)
	assert.Equal(t, 0, e.available(t, "b1"))
	assert.Equal(t, 0, dbtest.LoadMember(t, e.gdb, school.ID(), "u1").ActiveReservations)

	err = e.svc.CancelReservation(e.ctx, school, "u1", r1.ID)
	assert.ErrorIs(t, err, circulation.ErrInvalidState)

	// last hold cancelled: the copy goes back on the shelf
	require.NoError(t, e.svc.CancelReservation(e.ctx, school, "u2", r2.ID))
	assert.Equal(t, 1, e.available(t, "b1"))
}

func Test_WaitingCount_ExcludesReady(t *testing.T) {
	e := newEnv(t)
	e.book(t, "b1", 1)
	e.members(t, "u0", "u1", "u2")
	l := e.borrow(t, "u0", "b1")
	e.reserve(t, "u1", "b1")
	e.reserve(t, "u2", "b1")

	n, err := e.svc.WaitingCount(e.ctx, school, "b1")
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	_, err = e.svc.Return(e.ctx, school, "u0", l.ID)
	require.NoError(t, err)
	n, err = e.svc.WaitingCount(e.ctx, school, "b1")
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	_, err = e.svc.WaitingCount(e.ctx, other, "b1")
	assert.ErrorIs(t, err, circulation.ErrNotFound)
}

func Test_ListReservations_OwnOnly(t *testing.T) {
	e := newEnv(t)
	e.book(t, "b1", 1)
	e.members(t, "u0", "u1", "u2")
	e.borrow(t, "u0", "b1")
	e.reserve(t, "u1", "b1")
	e.reserve(t, "u2", "b1")

	mine, err := e.svc.ListReservations(e.ctx, school, "u1")
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "u1", mine[0].UserID)
}

// queueWithHoldRace leaves u1 with the only copy of b1 and u2 waiting. The
// returned func arms a Borrow by u3 to run right after the next transaction.
func queueWithHoldRace(t *testing.T, e *env) (*models.Loan, *models.Reservation, func() *error) {
	t.Helper()
	e.book(t, "b1", 1)
	e.members(t, "u1", "u2", "u3")
	l := e.borrow(t, "u1", "b1")
	r := e.reserve(t, "u2", "b1")
	arm := func() *error {
		var raced error
		e.store.afterNextAtomic(func() {
			_, raced = e.svc.Borrow(e.ctx, school, "u3", "b1")
		})
		return &raced
	}
	return l, r, arm
}

func Test_Return_FreedCopyGoesToQueueHead(t *testing.T) {
	e := newEnv(t)
	l, r, arm := queueWithHoldRace(t, e)

	raced := arm()
	_, err := e.svc.Return(e.ctx, school, "u1", l.ID)
	require.NoError(t, err)

	assert.ErrorIs(t, *raced, circulation.ErrOutOfStock)
	assert.Equal(t, models.ReservationReady, e.reservation(t, r.ID).Status)
	assert.Equal(t, 0, e.available(t, "b1"))
}

func Test_CancelReady_FreedCopyGoesToQueueHead(t *testing.T) {
	e := newEnv(t)
	l, r2, _ := queueWithHoldRace(t, e)
	e.members(t, "u4")
	e.clock.Advance(time.Second)
	r4 := e.reserve(t, "u4", "b1")
	_, err := e.svc.Return(e.ctx, school, "u1", l.ID)
	require.NoError(t, err)
	require.Equal(t, models.ReservationReady, e.reservation(t, r2.ID).Status)

	var raced error
	e.store.afterNextAtomic(func() {
		_, raced = e.svc.Borrow(e.ctx, school, "u3", "b1")
	})
	require.NoError(t, e.svc.CancelReservation(e.ctx, school, "u2", r2.ID))

	assert.ErrorIs(t, raced, circulation.ErrOutOfStock)
	assert.Equal(t, models.ReservationReady, e.reservation(t, r4.ID).Status)
	assert.Equal(t, 0, e.available(t, "b1"))
}

func Test_Borrow_RefusesFreeCopyWhileOthersWait(t *testing.T) {
	e := newEnv(t)
	_, r, _ := queueWithHoldRace(t, e)

	// a copy added without a promotion stays reserved for the queue
	require.NoError(t, e.gdb.Model(&models.Book{}).Where("id = ?", "b1").Updates(map[string]any{"quantity": 2, "available": 1}).Error)

	_, err := e.svc.Borrow(e.ctx, school, "u3", "b1")
	assert.ErrorIs(t, err, circulation.ErrOutOfStock)
	assert.Equal(t, 1, e.available(t, "b1"))

	e.borrow(t, "u2", "b1")
	assert.Equal(t, models.ReservationFulfilled, e.reservation(t, r.ID).Status)
}

type failingSink struct{}

func (failingSink) Emit(context.Context, tenant.Scope, string, models.NotificationType, string, string) error {
	return errors.New("inbox down")
}

func Test_Return_PromotesEvenWhenReadyNoticeFails(t *testing.T) {
	e := newEnv(t, circulation.WithNotificationSink(failingSink{}))
	l, r, _ := queueWithHoldRace(t, e)

	_, err := e.svc.Return(e.ctx, school, "u1", l.ID)
	require.NoError(t, err)

	mine, err := e.svc.ListReservations(e.ctx, school, "u2")
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, r.ID, mine[0].ID)
	assert.Equal(t, models.ReservationReady, mine[0].Status)
}
