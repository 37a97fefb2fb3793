package db

import (
	"context"
	"time"

	"library_circulation/circulation"
	"library_circulation/models"
	"library_circulation/tenant"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

func (r *txRepo) CreateLoan(ctx context.Context, l *models.Loan) error {
	err := r.db.WithContext(ctx).Create(l).Error
	if isUniqueViolation(err) {
		return circulation.ErrDuplicateLoan
	}
	return err
}

func (r *txRepo) Loan(ctx context.Context, scope tenant.Scope, loanID string) (*models.Loan, error) {
	var l models.Loan
	if err := r.db.WithContext(ctx).
		First(&l, "tenant_id = ? AND id = ?", scope.ID(), loanID).Error; err != nil {
		return nil, lookupErr(err, "loan", loanID)
	}
	return &l, nil
}

func (r *txRepo) HasActiveLoan(ctx context.Context, scope tenant.Scope, userID, bookID string) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.Loan{}).
		Where("tenant_id = ? AND user_id = ? AND book_id = ? AND status = ?", scope.ID(), userID, bookID, models.LoanActive).
		Count(&n).Error
	return n > 0, err
}

func (r *txRepo) CloseLoan(ctx context.Context, scope tenant.Scope, loanID string, returnedAt time.Time, fine decimal.Decimal) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.Loan{}).
		Where("tenant_id = ? AND id = ? AND status = ?", scope.ID(), loanID, models.LoanActive).
		Updates(map[string]any{
			"status":      models.LoanReturned,
			"returned_at": returnedAt.UTC(),
			"fine_amount": fine,
		})
	return res.RowsAffected == 1, res.Error
}

func (r *txRepo) ExtendLoan(ctx context.Context, scope tenant.Scope, loanID string, fromCount int, dueDate time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.Loan{}).
		Where("tenant_id = ? AND id = ? AND status = ? AND renew_count = ?", scope.ID(), loanID, models.LoanActive, fromCount).
		Updates(map[string]any{
			"due_date":    dueDate.UTC(),
			"renew_count": gorm.Expr("renew_count + 1"),
		})
	return res.RowsAffected == 1, res.Error
}

func (r *txRepo) SetFinePaid(ctx context.Context, scope tenant.Scope, loanID string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.Loan{}).
		Where("tenant_id = ? AND id = ? AND fine_paid = ?", scope.ID(), loanID, false).
		Update("fine_paid", true)
	return res.RowsAffected == 1, res.Error
}

func (r *txRepo) ListLoans(ctx context.Context, scope tenant.Scope, f circulation.LoanFilter) ([]models.Loan, error) {
	q := r.db.WithContext(ctx).Model(&models.Loan{}).
		Where("tenant_id = ?", scope.ID()).
		Order("borrowed_at DESC")
	if f.UserID != "" {
		q = q.Where("user_id = ?", f.UserID)
	}
	if f.BookID != "" {
		q = q.Where("book_id = ?", f.BookID)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	var ls []models.Loan
	if err := q.Find(&ls).Error; err != nil {
		return nil, err
	}
	return ls, nil
}

func (r *txRepo) ActiveLoansDueBefore(ctx context.Context, before time.Time, afterID string, limit int) ([]models.Loan, error) {
	q := r.db.WithContext(ctx).
		Where("status = ? AND due_date < ?", models.LoanActive, before.UTC())
	// id is a uuid column in postgres, so an empty cursor must not reach it
	if afterID != "" {
		q = q.Where("id > ?", afterID)
	}
	var ls []models.Loan
	err := q.Order("id ASC").Limit(limit).Find(&ls).Error
	return ls, err
}
