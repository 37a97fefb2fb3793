package circulation

import (
	"context"
	"errors"

	"library_circulation/models"
	"library_circulation/tenant"
)

// Borrow lends one copy of bookID to userID. A WAITING or READY reservation the
// user holds for the book is closed as FULFILLED; a READY one already holds a
// copy, so no inventory is taken for it. Without a reservation a reader
// cannot take a copy while others are waiting for the book.
func (s *Service) Borrow(ctx context.Context, scope tenant.Scope, userID, bookID string) (*models.Loan, error) {
	if err := requireScope(scope); err != nil {
		return nil, err
	}
	if err := requireIDs(userID, bookID); err != nil {
		return nil, err
	}

	var loan *models.Loan
	err := s.store.Atomic(ctx, func(ctx context.Context, tx Tx) error {
		loan = nil
		if _, err := memberOf(ctx, tx, scope, userID); err != nil {
			return err
		}
		policy, err := tx.GetOrCreateDefaults(ctx, scope)
		if err != nil {
			return err
		}

		ok, err := tx.AcquireLoanSlot(ctx, scope, userID, policy.MaxLoans)
		if err != nil {
			return err
		}
		if !ok {
			return newError(CodePolicyLimitExceeded, "user already holds %d active loans", policy.MaxLoans)
		}

		if _, err := tx.Book(ctx, scope, bookID); err != nil {
			return err
		}
		dup, err := tx.HasActiveLoan(ctx, scope, userID, bookID)
		if err != nil {
			return err
		}
		if dup {
			return ErrDuplicateLoan
		}

		hold, err := tx.ActiveReservation(ctx, scope, userID, bookID)
		if err != nil {
			return err
		}
		if hold == nil {
			// free copies belong to the queue while anyone is waiting
			waiting, err := tx.CountWaiting(ctx, scope, bookID)
			if err != nil {
				return err
			}
			if waiting > 0 {
				return newError(CodeOutOfStock, "copies are held for %d waiting readers", waiting)
			}
		}
		if hold == nil || hold.Status != models.ReservationReady {
			if err := tx.Decrement(ctx, scope, bookID); err != nil {
				return err
			}
		}
		if hold != nil {
			ok, err := tx.SetReservationStatus(ctx, scope, hold.ID, models.ReservationFulfilled, hold.Status)
			if err != nil {
				return err
			}
			if !ok {
				return ErrConcurrencyConflict
			}
			if err := tx.ReleaseReservationSlot(ctx, scope, userID); err != nil {
				return err
			}
		}

		now := s.clock.Now()
		l := &models.Loan{
			ID:         s.ids.loanID(),
			TenantID:   scope.ID(),
			UserID:     userID,
			BookID:     bookID,
			BorrowedAt: now,
			DueDate:    now.Add(policy.LoanPeriod()),
			Status:     models.LoanActive,
		}
		if err := tx.CreateLoan(ctx, l); err != nil {
			return err
		}
		loan = l
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "book borrowed", "tenant", scope.ID(), "user", userID, "book", bookID, "loan", loan.ID)
	return loan, nil
}

// Return closes an ACTIVE loan, fixes its fine and puts the copy back. In the
// same transaction the copy is held for the head of the reservation queue.
func (s *Service) Return(ctx context.Context, scope tenant.Scope, userID, loanID string) (*models.Loan, error) {
	if err := requireScope(scope); err != nil {
		return nil, err
	}
	if err := requireIDs(userID, loanID); err != nil {
		return nil, err
	}

	var (
		loan *models.Loan
		next *promotion
	)
	err := s.store.Atomic(ctx, func(ctx context.Context, tx Tx) error {
		loan, next = nil, nil
		l, err := s.ownActiveLoan(ctx, tx, scope, userID, loanID)
		if err != nil {
			return err
		}
		policy, err := tx.GetOrCreateDefaults(ctx, scope)
		if err != nil {
			return err
		}

		now := s.clock.Now()
		fine := fineAt(now, l.DueDate, policy.FinePerDay, policy.MaxFine)
		ok, err := tx.CloseLoan(ctx, scope, l.ID, now, fine)
		if err != nil {
			return err
		}
		if !ok {
			return ErrConcurrencyConflict
		}
		if err := tx.Increment(ctx, scope, l.BookID); err != nil {
			if !errors.Is(err, ErrStockCeiling) {
				return err
			}
			s.logger.WarnContext(ctx, "return found stock at ceiling", "tenant", scope.ID(), "book", l.BookID, "loan", l.ID)
		}
		if err := tx.ReleaseLoanSlot(ctx, scope, userID); err != nil {
			return err
		}
		if next, err = s.promoteHeadTx(ctx, tx, scope, policy, l.BookID); err != nil {
			return err
		}

		l.Status = models.LoanReturned
		l.ReturnedAt = &now
		l.FineAmount = fine
		loan = l
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "book returned", "tenant", scope.ID(), "loan", loan.ID, "fine", loan.FineAmount.String())
	s.notifyReady(ctx, scope, next)
	return loan, nil
}

// Renew pushes the due date out by one loan period.
func (s *Service) Renew(ctx context.Context, scope tenant.Scope, userID, loanID string) (*models.Loan, error) {
	if err := requireScope(scope); err != nil {
		return nil, err
	}
	if err := requireIDs(userID, loanID); err != nil {
		return nil, err
	}

	var loan *models.Loan
	err := s.store.Atomic(ctx, func(ctx context.Context, tx Tx) error {
		loan = nil
		l, err := s.ownActiveLoan(ctx, tx, scope, userID, loanID)
		if err != nil {
			return err
		}
		policy, err := tx.GetOrCreateDefaults(ctx, scope)
		if err != nil {
			return err
		}

		// The renewal cap wins over every other refusal reason.
		if l.RenewCount >= policy.MaxRenewals {
			return newError(CodeRenewalLimitExceeded, "loan renewed %d of %d times", l.RenewCount, policy.MaxRenewals)
		}
		if l.Overdue(s.clock.Now()) {
			return ErrOverdue
		}
		waiting, err := tx.CountWaiting(ctx, scope, l.BookID)
		if err != nil {
			return err
		}
		if waiting > 0 {
			return newError(CodeReservationConflict, "%d readers are waiting for this book", waiting)
		}

		due := l.DueDate.Add(policy.LoanPeriod())
		ok, err := tx.ExtendLoan(ctx, scope, l.ID, l.RenewCount, due)
		if err != nil {
			return err
		}
		if !ok {
			return ErrConcurrencyConflict
		}
		l.DueDate = due
		l.RenewCount++
		loan = l
		return nil
	})
	if err != nil {
		return nil, err
	}
	return loan, nil
}

// MarkFinePaid records that the fine of a returned loan was settled.
func (s *Service) MarkFinePaid(ctx context.Context, scope tenant.Scope, loanID string) (*models.Loan, error) {
	if err := requireScope(scope); err != nil {
		return nil, err
	}
	if err := requireIDs(loanID); err != nil {
		return nil, err
	}

	var loan *models.Loan
	err := s.store.Atomic(ctx, func(ctx context.Context, tx Tx) error {
		loan = nil
		l, err := tx.Loan(ctx, scope, loanID)
		if err != nil {
			return err
		}
		if !l.FineAmount.IsPositive() {
			return ErrNoFine
		}
		if !l.FinePaid {
			if _, err := tx.SetFinePaid(ctx, scope, l.ID); err != nil {
				return err
			}
			l.FinePaid = true
		}
		loan = l
		return nil
	})
	if err != nil {
		return nil, err
	}
	return loan, nil
}

func (s *Service) ListLoans(ctx context.Context, scope tenant.Scope, f LoanFilter) ([]models.Loan, error) {
	if err := requireScope(scope); err != nil {
		return nil, err
	}
	var out []models.Loan
	err := s.store.View(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		out, err = tx.ListLoans(ctx, scope, f)
		return err
	})
	return out, err
}

// ownActiveLoan hides loans of other users and closed loans behind NOT_FOUND.
func (s *Service) ownActiveLoan(ctx context.Context, tx Tx, scope tenant.Scope, userID, loanID string) (*models.Loan, error) {
	l, err := tx.Loan(ctx, scope, loanID)
	if err != nil {
		return nil, err
	}
	if !scope.Owns(l.TenantID) || l.UserID != userID || !l.IsActive() {
		return nil, newError(CodeNotFound, "active loan %s not found", loanID)
	}
	return l, nil
}
