// models/loan.go
package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const LoanTable = "lib_loans"

type LoanStatus string

const (
	LoanActive   LoanStatus = "ACTIVE"
	LoanReturned LoanStatus = "RETURNED"
)

// Loan is never deleted; Renew and Return are its only mutations.
type Loan struct {
	ID         string          `gorm:"type:uuid;primaryKey" json:"id"`
	TenantID   string          `gorm:"size:64;not null;index:idx_lib_loans_tenant_user" json:"tenantId"`
	UserID     string          `gorm:"size:64;not null;index:idx_lib_loans_tenant_user" json:"userId"`
	BookID     string          `gorm:"size:64;not null;index" json:"bookId"`
	BorrowedAt time.Time       `gorm:"not null" json:"borrowedAt"`
	DueDate    time.Time       `gorm:"not null;index" json:"dueDate"`
	ReturnedAt *time.Time      `json:"returnedAt,omitempty"`
	Status     LoanStatus      `gorm:"size:20;not null;index" json:"status"`
	RenewCount int             `gorm:"not null;default:0" json:"renewCount"`
	FineAmount decimal.Decimal `gorm:"type:numeric(10,2);not null;default:0" json:"fineAmount"`
	FinePaid   bool            `gorm:"not null;default:false" json:"finePaid"`
	CreatedAt  time.Time       `json:"createdAt"`
	UpdatedAt  time.Time       `json:"updatedAt"`
}

func (Loan) TableName() string { return LoanTable }

func (l Loan) IsActive() bool { return l.Status == LoanActive }

// Overdue reports whether the loan is past due at now.
func (l Loan) Overdue(now time.Time) bool { return l.IsActive() && now.After(l.DueDate) }
