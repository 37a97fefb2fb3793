package circulation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"library_circulation/models"
	"library_circulation/tenant"

	"golang.org/x/sync/errgroup"
)

const (
	dueSoonWindow = 24 * time.Hour
	noticeTTL     = 48 * time.Hour
)

type noticeKind string

const (
	noticeOverdue noticeKind = "overdue"
	noticeDueSoon noticeKind = "due_soon"
)

// OverdueReport summarises one SweepOverdueNotifications run.
type OverdueReport struct {
	Warnings   int `json:"warnings"`
	Reminders  int `json:"reminders"`
	EmailsSent int `json:"emailsSent"`
}

// ExpireStale expires READY reservations whose hold ended, returning each
// held copy to the pool and promoting the next waiter. Each record runs in
// its own transaction; a failure is logged and the sweep moves on.
// Re-running over an already EXPIRED record does nothing.
func (s *Service) ExpireStale(ctx context.Context) (int, error) {
	now := s.clock.Now()
	var expired atomic.Int64

	after := ""
	for {
		var page []models.Reservation
		err := s.store.View(ctx, func(ctx context.Context, tx Tx) error {
			var err error
			page, err = tx.ReadyExpiredBefore(ctx, now, after, s.batch)
			return err
		})
		if err != nil {
			return int(expired.Load()), err
		}
		if len(page) == 0 {
			break
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(s.workers)
		for i := range page {
			r := page[i]
			g.Go(func() error {
				ok, err := s.expireOne(gctx, r)
				if err != nil {
					s.logger.ErrorContext(gctx, "expire reservation failed", "tenant", r.TenantID, "reservation", r.ID, "error", err)
					return nil
				}
				if ok {
					expired.Add(1)
				}
				return nil
			})
		}
		_ = g.Wait()

		after = page[len(page)-1].ID
		if len(page) < s.batch {
			break
		}
	}

	if err := s.rebalance(ctx); err != nil {
		s.logger.ErrorContext(ctx, "queue rebalance failed", "error", err)
	}

	n := int(expired.Load())
	if n > 0 {
		s.logger.InfoContext(ctx, "expired stale reservations", "count", n)
	}
	return n, nil
}

func (s *Service) expireOne(ctx context.Context, r models.Reservation) (bool, error) {
	scope, err := tenant.New(r.TenantID)
	if err != nil {
		return false, err
	}

	var (
		expired bool
		title   string
		next    *promotion
	)
	err = s.store.Atomic(ctx, func(ctx context.Context, tx Tx) error {
		expired, next = false, nil
		ok, err := tx.SetReservationStatus(ctx, scope, r.ID, models.ReservationExpired, models.ReservationReady)
		if err != nil || !ok {
			return err
		}
		if err := tx.Increment(ctx, scope, r.BookID); err != nil {
			if !errors.Is(err, ErrStockCeiling) {
				return err
			}
			s.logger.WarnContext(ctx, "expiry found stock at ceiling", "tenant", r.TenantID, "book", r.BookID, "reservation", r.ID)
		}
		if err := tx.ReleaseReservationSlot(ctx, scope, r.UserID); err != nil {
			return err
		}
		if b, err := tx.Book(ctx, scope, r.BookID); err == nil {
			title = b.Title
		}
		policy, err := tx.GetOrCreateDefaults(ctx, scope)
		if err != nil {
			return err
		}
		if next, err = s.promoteHeadTx(ctx, tx, scope, policy, r.BookID); err != nil {
			return err
		}
		expired = true
		return nil
	})
	if err != nil || !expired {
		return false, err
	}

	// fire-and-forget like the ready notice
	s.emit(ctx, scope, r.UserID, models.NotifyReservationExpired,
		"Reservation expired",
		fmt.Sprintf("Your hold on %q ended before it was collected.", title))
	s.notifyReady(ctx, scope, next)
	return true, nil
}

// rebalance promotes waiters on books that have free copies, e.g. copies
// added outside the engine while readers were waiting.
func (s *Service) rebalance(ctx context.Context) error {
	var keys []BookKey
	err := s.store.View(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		keys, err = tx.StrandedQueues(ctx, s.batch)
		return err
	})
	if err != nil {
		return err
	}
	for _, k := range keys {
		scope, err := tenant.New(k.TenantID)
		if err != nil {
			continue
		}
		n, err := s.promoteWhileFree(ctx, scope, k.BookID)
		if err != nil {
			s.logger.ErrorContext(ctx, "rebalance promote failed", "tenant", k.TenantID, "book", k.BookID, "error", err)
			continue
		}
		if n > 0 {
			s.logger.InfoContext(ctx, "rebalanced queue", "tenant", k.TenantID, "book", k.BookID, "promoted", n)
		}
	}
	return nil
}

// SweepOverdueNotifications warns readers with overdue loans and reminds those
// whose loan is due within a day, at most once per loan per UTC day.
func (s *Service) SweepOverdueNotifications(ctx context.Context) (OverdueReport, error) {
	now := s.clock.Now()
	var warnings, reminders, mails atomic.Int64
	policies := &policyCache{svc: s, byTenant: map[string]models.PolicySettings{}}

	after := ""
	for {
		var page []models.Loan
		err := s.store.View(ctx, func(ctx context.Context, tx Tx) error {
			var err error
			page, err = tx.ActiveLoansDueBefore(ctx, now.Add(dueSoonWindow), after, s.batch)
			return err
		})
		if err != nil {
			return s.report(&warnings, &reminders, &mails), err
		}
		if len(page) == 0 {
			break
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(s.workers)
		for i := range page {
			l := page[i]
			g.Go(func() error {
				kind, sent, mailed, err := s.noticeOne(gctx, now, l, policies)
				if err != nil {
					s.logger.ErrorContext(gctx, "loan notice failed", "tenant", l.TenantID, "loan", l.ID, "error", err)
					return nil
				}
				if !sent {
					return nil
				}
				if kind == noticeOverdue {
					warnings.Add(1)
				} else {
					reminders.Add(1)
				}
				if mailed {
					mails.Add(1)
				}
				return nil
			})
		}
		_ = g.Wait()

		after = page[len(page)-1].ID
		if len(page) < s.batch {
			break
		}
	}

	rep := s.report(&warnings, &reminders, &mails)
	s.logger.InfoContext(ctx, "overdue sweep done", "warnings", rep.Warnings, "reminders", rep.Reminders, "emails", rep.EmailsSent)
	return rep, nil
}

func (s *Service) report(w, r, m *atomic.Int64) OverdueReport {
	return OverdueReport{Warnings: int(w.Load()), Reminders: int(r.Load()), EmailsSent: int(m.Load())}
}

func (s *Service) noticeOne(ctx context.Context, now time.Time, l models.Loan, policies *policyCache) (noticeKind, bool, bool, error) {
	scope, err := tenant.New(l.TenantID)
	if err != nil {
		return "", false, false, err
	}

	kind := noticeDueSoon
	if l.Overdue(now) {
		kind = noticeOverdue
	}
	key := noticeKey(kind, l.ID, now)
	claimed, err := s.guard.Claim(ctx, key, noticeTTL)
	if err != nil || !claimed {
		return kind, false, false, err
	}

	var typ models.NotificationType
	var title, msg string
	switch kind {
	case noticeOverdue:
		policy, err := policies.get(ctx, scope)
		if err != nil {
			s.release(ctx, key)
			return kind, false, false, err
		}
		fine := fineAt(now, l.DueDate, policy.FinePerDay, policy.MaxFine)
		typ = models.NotifyLoanOverdue
		title = "Loan overdue"
		msg = fmt.Sprintf("Your loan was due on %s. %d day(s) late, current fine %s.",
			l.DueDate.Format("2006-01-02"), DaysLate(now, l.DueDate), fine.StringFixed(2))
	default:
		typ = models.NotifyLoanDueSoon
		title = "Loan due soon"
		msg = fmt.Sprintf("Your loan is due on %s.", l.DueDate.Format("2006-01-02 15:04 MST"))
	}

	if !s.emit(ctx, scope, l.UserID, typ, title, msg) {
		s.release(ctx, key)
		return kind, false, false, nil
	}
	return kind, true, s.mail(ctx, scope, l.UserID, title, msg), nil
}

func (s *Service) mail(ctx context.Context, scope tenant.Scope, userID, subject, body string) bool {
	if s.mailer == nil {
		return false
	}
	var m *models.Member
	err := s.store.View(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		m, err = tx.Member(ctx, scope, userID)
		return err
	})
	if err != nil {
		s.logger.WarnContext(ctx, "member lookup for mail failed", "tenant", scope.ID(), "user", userID, "error", err)
		return false
	}
	if m.Email == "" {
		return false
	}
	if err := s.mailer.Send(ctx, m.Email, subject, body); err != nil {
		s.logger.WarnContext(ctx, "notice mail failed", "tenant", scope.ID(), "user", userID, "error", err)
		return false
	}
	return true
}

func (s *Service) release(ctx context.Context, key string) {
	if err := s.guard.Release(ctx, key); err != nil {
		s.logger.WarnContext(ctx, "notice claim release failed", "key", key, "error", err)
	}
}

func noticeKey(kind noticeKind, loanID string, now time.Time) string {
	return fmt.Sprintf("circulation:notice:%s:%s:%s", kind, loanID, now.UTC().Format("2006-01-02"))
}

// policyCache avoids one policy read per loan within a single sweep.
type policyCache struct {
	svc      *Service
	mu       sync.Mutex
	byTenant map[string]models.PolicySettings
}

func (c *policyCache) get(ctx context.Context, scope tenant.Scope) (models.PolicySettings, error) {
	c.mu.Lock()
	p, ok := c.byTenant[scope.ID()]
	c.mu.Unlock()
	if ok {
		return p, nil
	}
	p, err := c.svc.Policy(ctx, scope)
	if err != nil {
		return p, err
	}
	c.mu.Lock()
	c.byTenant[scope.ID()] = p
	c.mu.Unlock()
	return p, nil
}
