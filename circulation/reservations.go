package circulation

import (
	"context"
	"errors"
	"fmt"

	"library_circulation/models"
	"library_circulation/tenant"
)

// Reserve queues userID for a book that has no free copy.
func (s *Service) Reserve(ctx context.Context, scope tenant.Scope, userID, bookID string) (*models.Reservation, error) {
	if err := requireScope(scope); err != nil {
		return nil, err
	}
	if err := requireIDs(userID, bookID); err != nil {
		return nil, err
	}

	var res *models.Reservation
	err := s.store.Atomic(ctx, func(ctx context.Context, tx Tx) error {
		res = nil
		if _, err := memberOf(ctx, tx, scope, userID); err != nil {
			return err
		}
		policy, err := tx.GetOrCreateDefaults(ctx, scope)
		if err != nil {
			return err
		}
		book, err := tx.Book(ctx, scope, bookID)
		if err != nil {
			return err
		}
		if book.Available > 0 {
			return ErrNotAvailableForReservation
		}

		onLoan, err := tx.HasActiveLoan(ctx, scope, userID, bookID)
		if err != nil {
			return err
		}
		if onLoan {
			return ErrDuplicateLoan
		}
		existing, err := tx.ActiveReservation(ctx, scope, userID, bookID)
		if err != nil {
			return err
		}
		if existing != nil {
			return ErrDuplicateReservation
		}

		ok, err := tx.AcquireReservationSlot(ctx, scope, userID, policy.MaxReservations)
		if err != nil {
			return err
		}
		if !ok {
			return newError(CodePolicyLimitExceeded, "user already holds %d active reservations", policy.MaxReservations)
		}

		now := s.clock.Now()
		id, err := s.ids.reservationID(now)
		if err != nil {
			return err
		}
		r := &models.Reservation{
			ID:        id,
			TenantID:  scope.ID(),
			BookID:    bookID,
			UserID:    userID,
			Status:    models.ReservationWaiting,
			CreatedAt: now,
		}
		if err := tx.CreateReservation(ctx, r); err != nil {
			return err
		}
		res = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "reservation queued", "tenant", scope.ID(), "user", userID, "book", bookID, "reservation", res.ID)
	return res, nil
}

// PromoteNext moves the oldest WAITING reservation of the book to READY and
// holds one copy for it. It returns nil when the queue is empty or no copy is
// free; in that case nothing changes.
func (s *Service) PromoteNext(ctx context.Context, scope tenant.Scope, bookID string) (*models.Reservation, error) {
	if err := requireScope(scope); err != nil {
		return nil, err
	}
	if err := requireIDs(bookID); err != nil {
		return nil, err
	}

	var p *promotion
	err := s.store.Atomic(ctx, func(ctx context.Context, tx Tx) error {
		policy, err := tx.GetOrCreateDefaults(ctx, scope)
		if err != nil {
			return err
		}
		p, err = s.promoteHeadTx(ctx, tx, scope, policy, bookID)
		return err
	})
	if err != nil || p == nil {
		return nil, err
	}
	s.notifyReady(ctx, scope, p)
	return p.res, nil
}

type promotion struct {
	res   *models.Reservation
	title string
}

// promoteHeadTx promotes the queue head inside the caller's transaction, so a
// copy freed in that transaction is never visible as available to others while
// someone is waiting. It returns nil when nobody waits or no copy is free.
func (s *Service) promoteHeadTx(ctx context.Context, tx Tx, scope tenant.Scope, policy models.PolicySettings, bookID string) (*promotion, error) {
	head, err := tx.OldestWaiting(ctx, scope, bookID)
	if err != nil || head == nil {
		return nil, err
	}
	book, err := tx.Book(ctx, scope, bookID)
	if err != nil {
		return nil, err
	}
	if err := tx.Decrement(ctx, scope, bookID); err != nil {
		if errors.Is(err, ErrOutOfStock) {
			return nil, nil
		}
		return nil, err
	}

	expires := s.clock.Now().Add(policy.HoldPeriod())
	ok, err := tx.PromoteReservation(ctx, scope, head.ID, expires)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrConcurrencyConflict
	}
	head.Status = models.ReservationReady
	head.ExpiresAt = &expires
	return &promotion{res: head, title: book.Title}, nil
}

// notifyReady runs after commit. The notice is fire-and-forget: a failed emit
// is logged and not retried, the reader still sees the READY reservation in
// ListReservations.
func (s *Service) notifyReady(ctx context.Context, scope tenant.Scope, p *promotion) {
	if p == nil {
		return
	}
	s.logger.InfoContext(ctx, "reservation ready", "tenant", scope.ID(), "book", p.res.BookID, "reservation", p.res.ID)
	s.emit(ctx, scope, p.res.UserID, models.NotifyReservationReady,
		"Reservation ready",
		fmt.Sprintf("%q is waiting for you until %s.", p.title, p.res.ExpiresAt.Format("2006-01-02 15:04 MST")))
}

// promoteWhileFree keeps promoting until the queue or the free copies run out.
func (s *Service) promoteWhileFree(ctx context.Context, scope tenant.Scope, bookID string) (int, error) {
	n := 0
	for {
		r, err := s.PromoteNext(ctx, scope, bookID)
		if err != nil {
			return n, err
		}
		if r == nil {
			return n, nil
		}
		n++
	}
}

// CancelReservation cancels a WAITING or READY reservation of the caller. A
// READY one gives its held copy back, which goes straight to the next reader.
func (s *Service) CancelReservation(ctx context.Context, scope tenant.Scope, userID, reservationID string) error {
	if err := requireScope(scope); err != nil {
		return err
	}
	if err := requireIDs(userID, reservationID); err != nil {
		return err
	}

	var next *promotion
	err := s.store.Atomic(ctx, func(ctx context.Context, tx Tx) error {
		next = nil
		r, err := tx.Reservation(ctx, scope, reservationID)
		if err != nil {
			return err
		}
		if !scope.Owns(r.TenantID) {
			return newError(CodeNotFound, "reservation %s not found", reservationID)
		}
		if r.UserID != userID {
			return newError(CodeForbidden, "reservation %s belongs to another user", reservationID)
		}
		if !r.Cancellable() {
			return newError(CodeInvalidState, "reservation is %s", r.Status)
		}

		ok, err := tx.SetReservationStatus(ctx, scope, r.ID, models.ReservationCancelled, r.Status)
		if err != nil {
			return err
		}
		if !ok {
			return ErrConcurrencyConflict
		}
		if err := tx.ReleaseReservationSlot(ctx, scope, userID); err != nil {
			return err
		}
		if r.Status != models.ReservationReady {
			return nil
		}

		if err := tx.Increment(ctx, scope, r.BookID); err != nil {
			if !errors.Is(err, ErrStockCeiling) {
				return err
			}
			s.logger.WarnContext(ctx, "cancel found stock at ceiling", "tenant", scope.ID(), "book", r.BookID, "reservation", r.ID)
		}
		policy, err := tx.GetOrCreateDefaults(ctx, scope)
		if err != nil {
			return err
		}
		next, err = s.promoteHeadTx(ctx, tx, scope, policy, r.BookID)
		return err
	})
	if err != nil {
		return err
	}
	s.notifyReady(ctx, scope, next)
	return nil
}

// WaitingCount counts WAITING reservations only; READY holds are excluded.
func (s *Service) WaitingCount(ctx context.Context, scope tenant.Scope, bookID string) (int64, error) {
	if err := requireScope(scope); err != nil {
		return 0, err
	}
	if err := requireIDs(bookID); err != nil {
		return 0, err
	}
	var n int64
	err := s.store.View(ctx, func(ctx context.Context, tx Tx) error {
		if _, err := tx.Book(ctx, scope, bookID); err != nil {
			return err
		}
		var err error
		n, err = tx.CountWaiting(ctx, scope, bookID)
		return err
	})
	return n, err
}

func (s *Service) ListReservations(ctx context.Context, scope tenant.Scope, userID string) ([]models.Reservation, error) {
	if err := requireScope(scope); err != nil {
		return nil, err
	}
	var out []models.Reservation
	err := s.store.View(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		out, err = tx.ListReservations(ctx, scope, userID)
		return err
	})
	return out, err
}
