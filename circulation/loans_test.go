package circulation_test

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"library_circulation/circulation"
	"library_circulation/db/dbtest"
	"library_circulation/models"
	"library_circulation/tenant"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_Borrow_CreatesActiveLoan(t *testing.T) {
	e := newEnv(t)
	e.book(t, "b1", 2)
	e.members(t, "u1")

	l := e.borrow(t, "u1", "b1")
	assert.Equal(t, models.LoanActive, l.Status)
	assert.Equal(t, school.ID(), l.TenantID)
	assert.WithinDuration(t, t0, l.BorrowedAt, 0)
	assert.WithinDuration(t, t0.AddDate(0, 0, 14), l.DueDate, 0)
	assert.Equal(t, 1, e.available(t, "b1"))
	assert.Equal(t, 1, dbtest.LoadMember(t, e.gdb, school.ID(), "u1").ActiveLoans)
}

func Test_Borrow_ConcurrentLastCopy(t *testing.T) {
	e := newEnv(t)
	e.book(t, "b1", 1)
	e.members(t, "u1", "u2")

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, user := range []string{"u1", "u2"} {
		wg.Add(1)
		go func(i int, user string) {
			defer wg.Done()
			_, errs[i] = e.svc.Borrow(e.ctx, school, user, "b1")
		}(i, user)
	}
	wg.Wait()

	var ok, out int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case assert.ErrorIs(t, err, circulation.ErrOutOfStock):
			out++
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, out)
	assert.Equal(t, 0, e.available(t, "b1"))
}

func Test_Borrow_MaxLoansEndToEnd(t *testing.T) {
	e := newEnv(t)
	p := models.DefaultPolicy(school.ID())
	p.MaxLoans = 3
	dbtest.Policy(t, e.gdb, p)
	e.members(t, "u1")
	for i := 1; i <= 4; i++ {
		e.book(t, fmt.Sprintf("b%d", i), 1)
	}

	for i := 1; i <= 3; i++ {
		e.borrow(t, "u1", fmt.Sprintf("b%d", i))
	}
	_, err := e.svc.Borrow(e.ctx, school, "u1", "b4")
	assert.ErrorIs(t, err, circulation.ErrPolicyLimitExceeded)
	assert.Equal(t, 1, e.available(t, "b4"))
}

func Test_Borrow_DuplicateLoanRollsBack(t *testing.T) {
	e := newEnv(t)
	e.book(t, "b1", 2)
	e.members(t, "u1")
	e.borrow(t, "u1", "b1")

	_, err := e.svc.Borrow(e.ctx, school, "u1", "b1")
	assert.ErrorIs(t, err, circulation.ErrDuplicateLoan)
	assert.Equal(t, 1, e.available(t, "b1"))
	assert.Equal(t, 1, dbtest.LoadMember(t, e.gdb, school.ID(), "u1").ActiveLoans)
}

func Test_Borrow_Rejections(t *testing.T) {
	e := newEnv(t)
	e.book(t, "b1", 1)
	e.members(t, "u1")
	dbtest.Book(t, e.gdb, other.ID(), "foreign", 1, 1)

	_, err := e.svc.Borrow(e.ctx, tenant.Scope{}, "u1", "b1")
	assert.ErrorIs(t, err, circulation.ErrInvalidArgument)

	_, err = e.svc.Borrow(e.ctx, school, "stranger", "b1")
	assert.ErrorIs(t, err, circulation.ErrForbidden)

	_, err = e.svc.Borrow(e.ctx, school, "u1", "foreign")
	assert.ErrorIs(t, err, circulation.ErrNotFound)

	_, err = e.svc.Borrow(e.ctx, school, "u1", "missing")
	assert.ErrorIs(t, err, circulation.ErrNotFound)
	assert.Equal(t, 0, dbtest.LoadMember(t, e.gdb, school.ID(), "u1").ActiveLoans)
}

func Test_Return_ComputesFineOnce(t *testing.T) {
	e := newEnv(t)
	e.book(t, "b1", 1)
	e.members(t, "u1")
	l := e.borrow(t, "u1", "b1")

	e.clock.Advance(24 * 24 * time.Hour) // 10 days past the 14-day period
	got, err := e.svc.Return(e.ctx, school, "u1", l.ID)
	require.NoError(t, err)
	assert.Equal(t, models.LoanReturned, got.Status)
	require.NotNil(t, got.ReturnedAt)
	assert.True(t, got.FineAmount.Equal(dbtest.Money(10)), "fine %s", got.FineAmount)
	assert.Equal(t, 1, e.available(t, "b1"))
	assert.Equal(t, 0, dbtest.LoadMember(t, e.gdb, school.ID(), "u1").ActiveLoans)

	_, err = e.svc.Return(e.ctx, school, "u1", l.ID)
	assert.ErrorIs(t, err, circulation.ErrNotFound)
	assert.Equal(t, 1, e.available(t, "b1"))
}

func Test_Return_OwnershipAndTenant(t *testing.T) {
	e := newEnv(t)
	e.book(t, "b1", 1)
	e.members(t, "u1", "u2")
	l := e.borrow(t, "u1", "b1")

	_, err := e.svc.Return(e.ctx, school, "u2", l.ID)
	assert.ErrorIs(t, err, circulation.ErrNotFound)

	_, err = e.svc.Return(e.ctx, other, "u1", l.ID)
	assert.ErrorIs(t, err, circulation.ErrNotFound)

	assert.Equal(t, 0, e.available(t, "b1"))
}

func Test_Renew_ExtendsDueDate(t *testing.T) {
	e := newEnv(t)
	e.book(t, "b1", 1)
	e.members(t, "u1")
	l := e.borrow(t, "u1", "b1")

	got, err := e.svc.Renew(e.ctx, school, "u1", l.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.RenewCount)
	assert.WithinDuration(t, l.DueDate.AddDate(0, 0, 14), got.DueDate, 0)
}

func Test_Renew_LimitWinsOverEverything(t *testing.T) {
	e := newEnv(t)
	e.book(t, "b1", 1)
	e.members(t, "u1", "u2")
	l := e.borrow(t, "u1", "b1")

	for i := 0; i < 2; i++ {
		_, err := e.svc.Renew(e.ctx, school, "u1", l.ID)
		require.NoError(t, err)
	}
	_, err := e.svc.Renew(e.ctx, school, "u1", l.ID)
	assert.ErrorIs(t, err, circulation.ErrRenewalLimitExceeded)

	// overdue and with a waiter, the cap is still what is reported
	e.reserve(t, "u2", "b1")
	e.clock.Advance(60 * 24 * time.Hour)
	_, err = e.svc.Renew(e.ctx, school, "u1", l.ID)
	assert.ErrorIs(t, err, circulation.ErrRenewalLimitExceeded)
}

func Test_Renew_BlockedByWaiters(t *testing.T) {
	e := newEnv(t)
	e.book(t, "b1", 1)
	e.members(t, "u1", "u2")
	l := e.borrow(t, "u1", "b1")
	e.reserve(t, "u2", "b1")

	_, err := e.svc.Renew(e.ctx, school, "u1", l.ID)
	assert.ErrorIs(t, err, circulation.ErrReservationConflict)
}

func Test_Renew_Overdue(t *testing.T) {
	e := newEnv(t)
	e.book(t, "b1", 1)
	e.members(t, "u1")
	l := e.borrow(t, "u1", "b1")

	e.clock.Advance(15 * 24 * time.Hour)
	_, err := e.svc.Renew(e.ctx, school, "u1", l.ID)
	assert.ErrorIs(t, err, circulation.ErrOverdue)
}

func Test_MarkFinePaid(t *testing.T) {
	e := newEnv(t)
	e.book(t, "b1", 2)
	e.members(t, "u1", "u2")
	late := e.borrow(t, "u1", "b1")
	onTime := e.borrow(t, "u2", "b1")

	_, err := e.svc.Return(e.ctx, school, "u2", onTime.ID)
	require.NoError(t, err)
	e.clock.Advance(16 * 24 * time.Hour)
	_, err = e.svc.Return(e.ctx, school, "u1", late.ID)
	require.NoError(t, err)

	_, err = e.svc.MarkFinePaid(e.ctx, school, onTime.ID)
	assert.ErrorIs(t, err, circulation.ErrNoFine)

	_, err = e.svc.MarkFinePaid(e.ctx, other, late.ID)
	assert.ErrorIs(t, err, circulation.ErrNotFound)

	paid, err := e.svc.MarkFinePaid(e.ctx, school, late.ID)
	require.NoError(t, err)
	assert.True(t, paid.FinePaid)
	assert.True(t, paid.FineAmount.Equal(dbtest.Money(2)))

	again, err := e.svc.MarkFinePaid(e.ctx, school, late.ID)
	require.NoError(t, err)
	assert.True(t, again.FinePaid)
}

func Test_ListLoans_FiltersByUserAndStatus(t *testing.T) {
	e := newEnv(t)
	e.book(t, "b1", 2)
	e.book(t, "b2", 1)
	e.members(t, "u1", "u2")
	l := e.borrow(t, "u1", "b1")
	e.borrow(t, "u1", "b2")
	e.borrow(t, "u2", "b1")
	_, err := e.svc.Return(e.ctx, school, "u1", l.ID)
	require.NoError(t, err)

	all, err := e.svc.ListLoans(e.ctx, school, circulation.LoanFilter{UserID: "u1"})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	active, err := e.svc.ListLoans(e.ctx, school, circulation.LoanFilter{UserID: "u1", Status: models.LoanActive})
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "b2", active[0].BookID)

	foreign, err := e.svc.ListLoans(e.ctx, other, circulation.LoanFilter{})
	require.NoError(t, err)
	assert.Empty(t, foreign)
}
