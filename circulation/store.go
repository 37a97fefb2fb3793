package circulation

import (
	"context"
	"time"

	"library_circulation/models"
	"library_circulation/tenant"

	"github.com/shopspring/decimal"
)

// InventoryLedger is the only mutator of Book.available. Both calls are
// single conditional updates; callers check nothing beforehand.
type InventoryLedger interface {
	// Decrement takes one copy, ErrOutOfStock when available is 0.
	Decrement(ctx context.Context, scope tenant.Scope, bookID string) error
	// Increment returns one copy, ErrStockCeiling when available == quantity.
	Increment(ctx context.Context, scope tenant.Scope, bookID string) error
}

// PolicyConfig reads or atomically creates the school's settings row.
type PolicyConfig interface {
	GetOrCreateDefaults(ctx context.Context, scope tenant.Scope) (models.PolicySettings, error)
}

type CatalogRepo interface {
	Book(ctx context.Context, scope tenant.Scope, bookID string) (*models.Book, error)
}

// MemberRepo owns membership lookups and the per-member slot counters.
type MemberRepo interface {
	Member(ctx context.Context, scope tenant.Scope, userID string) (*models.Member, error)
	AcquireLoanSlot(ctx context.Context, scope tenant.Scope, userID string, max int) (bool, error)
	ReleaseLoanSlot(ctx context.Context, scope tenant.Scope, userID string) error
	AcquireReservationSlot(ctx context.Context, scope tenant.Scope, userID string, max int) (bool, error)
	ReleaseReservationSlot(ctx context.Context, scope tenant.Scope, userID string) error
}

type LoanFilter struct {
	UserID string
	BookID string
	Status models.LoanStatus // empty = all
	Limit  int
}

type LoanRepo interface {
	CreateLoan(ctx context.Context, loan *models.Loan) error
	Loan(ctx context.Context, scope tenant.Scope, loanID string) (*models.Loan, error)
	HasActiveLoan(ctx context.Context, scope tenant.Scope, userID, bookID string) (bool, error)
	// CloseLoan moves ACTIVE -> RETURNED; false when the loan was no longer ACTIVE.
	CloseLoan(ctx context.Context, scope tenant.Scope, loanID string, returnedAt time.Time, fine decimal.Decimal) (bool, error)
	// ExtendLoan applies a renewal only if renew_count still equals fromCount.
	ExtendLoan(ctx context.Context, scope tenant.Scope, loanID string, fromCount int, dueDate time.Time) (bool, error)
	SetFinePaid(ctx context.Context, scope tenant.Scope, loanID string) (bool, error)
	ListLoans(ctx context.Context, scope tenant.Scope, f LoanFilter) ([]models.Loan, error)
	// ActiveLoansDueBefore pages ACTIVE loans of every school by id.
	ActiveLoansDueBefore(ctx context.Context, before time.Time, afterID string, limit int) ([]models.Loan, error)
}

// BookKey names one queue: a book inside a school.
type BookKey struct {
	TenantID string
	BookID   string
}

type ReservationRepo interface {
	CreateReservation(ctx context.Context, r *models.Reservation) error
	Reservation(ctx context.Context, scope tenant.Scope, id string) (*models.Reservation, error)
	// ActiveReservation returns the user's WAITING/READY reservation, nil if none.
	ActiveReservation(ctx context.Context, scope tenant.Scope, userID, bookID string) (*models.Reservation, error)
	// OldestWaiting returns the head of the queue by (created_at, id), nil if empty.
	OldestWaiting(ctx context.Context, scope tenant.Scope, bookID string) (*models.Reservation, error)
	CountWaiting(ctx context.Context, scope tenant.Scope, bookID string) (int64, error)
	// PromoteReservation moves WAITING -> READY; false when it was not WAITING.
	PromoteReservation(ctx context.Context, scope tenant.Scope, id string, expiresAt time.Time) (bool, error)
	// SetReservationStatus moves the record to `to` only from one of `from`.
	SetReservationStatus(ctx context.Context, scope tenant.Scope, id string, to models.ReservationStatus, from ...models.ReservationStatus) (bool, error)
	ListReservations(ctx context.Context, scope tenant.Scope, userID string) ([]models.Reservation, error)
	// ReadyExpiredBefore pages READY reservations of every school whose hold ended.
	ReadyExpiredBefore(ctx context.Context, now time.Time, afterID string, limit int) ([]models.Reservation, error)
	// StrandedQueues lists books with free copies and WAITING readers.
	StrandedQueues(ctx context.Context, limit int) ([]BookKey, error)
}

// Tx is the transactional store surface the engine runs against.
type Tx interface {
	InventoryLedger
	PolicyConfig
	CatalogRepo
	MemberRepo
	LoanRepo
	ReservationRepo
}

type TxFunc func(ctx context.Context, tx Tx) error

type Store interface {
	// Atomic runs fn in one transaction, retrying transient faults.
	Atomic(ctx context.Context, fn TxFunc) error
	// View runs fn for reads outside a transaction.
	View(ctx context.Context, fn TxFunc) error
}

// NotificationSink receives fire-and-forget events for the polled inbox.
type NotificationSink interface {
	Emit(ctx context.Context, scope tenant.Scope, userID string, typ models.NotificationType, title, message string) error
}

type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// NoticeGuard claims a key once per ttl; false means someone already did.
// Release gives a claim back after the notice could not be delivered.
type NoticeGuard interface {
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}
