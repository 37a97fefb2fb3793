// models/policy.go
package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const PolicyTable = "lib_policy_settings"

// PolicySettings is one row per school, created lazily with the defaults below.
type PolicySettings struct {
	TenantID        string          `gorm:"size:64;primaryKey" json:"tenantId"`
	LoanDays        int             `gorm:"not null" json:"loanDays"`
	MaxLoans        int             `gorm:"not null" json:"maxLoans"`
	MaxRenewals     int             `gorm:"not null" json:"maxRenewals"`
	FinePerDay      decimal.Decimal `gorm:"type:numeric(10,2);not null" json:"finePerDay"`
	MaxFine         decimal.Decimal `gorm:"type:numeric(10,2);not null" json:"maxFine"`
	ReservationDays int             `gorm:"not null" json:"reservationDays"`
	MaxReservations int             `gorm:"not null" json:"maxReservations"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

func (PolicySettings) TableName() string { return PolicyTable }

func DefaultPolicy(tenantID string) PolicySettings {
	return PolicySettings{
		TenantID:        tenantID,
		LoanDays:        14,
		MaxLoans:        3,
		MaxRenewals:     2,
		FinePerDay:      decimal.NewFromInt(1),
		MaxFine:         decimal.NewFromInt(50),
		ReservationDays: 3,
		MaxReservations: 2,
	}
}

func (p PolicySettings) LoanPeriod() time.Duration {
	return time.Duration(p.LoanDays) * 24 * time.Hour
}

func (p PolicySettings) HoldPeriod() time.Duration {
	return time.Duration(p.ReservationDays) * 24 * time.Hour
}
