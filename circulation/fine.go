package circulation

import (
	"time"

	"github.com/shopspring/decimal"
)

const day = 24 * time.Hour

// CalculateFine charges finePerDay for every started day past dueDate, capped
// at maxFine. Nothing is owed while clock.Now() <= dueDate.
func CalculateFine(clock Clock, dueDate time.Time, finePerDay, maxFine decimal.Decimal) decimal.Decimal {
	return fineAt(clock.Now(), dueDate, finePerDay, maxFine)
}

func fineAt(now, dueDate time.Time, finePerDay, maxFine decimal.Decimal) decimal.Decimal {
	if !now.After(dueDate) {
		return decimal.Zero
	}
	return capFine(finePerDay.Mul(decimal.NewFromInt(DaysLate(now, dueDate))), maxFine)
}

// DaysLate is ceil((now - dueDate) / 24h), 0 when not late.
func DaysLate(now, dueDate time.Time) int64 {
	if !now.After(dueDate) {
		return 0
	}
	late := now.Sub(dueDate)
	days := int64(late / day)
	if late%day != 0 {
		days++
	}
	return days
}

func capFine(fine, maxFine decimal.Decimal) decimal.Decimal {
	if maxFine.IsNegative() {
		maxFine = decimal.Zero
	}
	if fine.GreaterThan(maxFine) {
		return maxFine
	}
	return fine
}
