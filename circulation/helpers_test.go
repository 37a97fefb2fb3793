package circulation_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"library_circulation/circulation"
	"library_circulation/db"
	"library_circulation/db/dbtest"
	"library_circulation/models"
	"library_circulation/tenant"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var (
	school = tenant.MustNew("school-a")
	other  = tenant.MustNew("school-b")
	t0     = time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)
)

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
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type sentMail struct{ to, subject string }

type fakeMailer struct {
	mu   sync.Mutex
	sent []sentMail
}

func (m *fakeMailer) Send(_ context.Context, to, subject, _ string) error {
	m.mu.Lock()
	m.sent = append(m.sent, sentMail{to, subject})
	m.mu.Unlock()
	return nil
}

// racingStore runs a one-shot hook right after the next Atomic call returns,
// to slip a competing request in between two transactions.
type racingStore struct {
	circulation.Store
	mu   sync.Mutex
	hook func()
}

func (s *racingStore) afterNextAtomic(f func()) {
	s.mu.Lock()
	s.hook = f
	s.mu.Unlock()
}

func (s *racingStore) Atomic(ctx context.Context, fn circulation.TxFunc) error {
	err := s.Store.Atomic(ctx, fn)
	s.mu.Lock()
	hook := s.hook
	s.hook = nil
	s.mu.Unlock()
	if hook != nil {
		hook()
	}
	return err
}

type env struct {
	gdb   *gorm.DB
	svc   *circulation.Service
	store *racingStore
	clock *fakeClock
	inbox *db.Notifications
	ctx   context.Context
}

func newEnv(t *testing.T, opts ...circulation.Option) *env {
	t.Helper()
	gdb := dbtest.Open(t)
	clock := &fakeClock{now: t0}
	inbox := db.NewNotifications(gdb)
	base := []circulation.Option{
		circulation.WithClock(clock),
		circulation.WithNotificationSink(inbox),
		circulation.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}
	store := &racingStore{Store: db.NewStore(gdb, db.WithBaseDelay(time.Millisecond))}
	svc, err := circulation.New(store, append(base, opts...)...)
	require.NoError(t, err)
	return &env{gdb: gdb, svc: svc, store: store, clock: clock, inbox: inbox, ctx: context.Background()}
}

func (e *env) book(t *testing.T, id string, quantity int) {
	t.Helper()
	dbtest.Book(t, e.gdb, school.ID(), id, quantity, quantity)
}

func (e *env) members(t *testing.T, ids ...string) {
	t.Helper()
	for _, id := range ids {
		dbtest.Member(t, e.gdb, school.ID(), id, models.RoleMember)
	}
}

func (e *env) available(t *testing.T, bookID string) int {
	t.Helper()
	return dbtest.Available(t, e.gdb, school.ID(), bookID)
}

func (e *env) reservation(t *testing.T, id string) models.Reservation {
	t.Helper()
	var r models.Reservation
	require.NoError(t, e.gdb.First(&r, "id = ?", id).Error)
	return r
}

func (e *env) inboxOf(t *testing.T, userID string) []models.Notification {
	t.Helper()
	list, err := e.inbox.List(e.ctx, school, userID, false, 0)
	require.NoError(t, err)
	return list
}

func (e *env) borrow(t *testing.T, userID, bookID string) *models.Loan {
	t.Helper()
	l, err := e.svc.Borrow(e.ctx, school, userID, bookID)
	require.NoError(t, err)
	return l
}

func (e *env) reserve(t *testing.T, userID, bookID string) *models.Reservation {
	t.Helper()
	r, err := e.svc.Reserve(e.ctx, school, userID, bookID)
	require.NoError(t, err)
	return r
}
