// Package circulation is the lending core: inventory allocation, the loan
// lifecycle, fines, and the FIFO reservation queue with its time-driven sweeps.
//
// Every operation that pairs an inventory change with a record write runs in a
// single Store.Atomic call; notifications go out only after that commits.
package circulation

import (
	"context"
	"errors"
	"log/slog"

	"library_circulation/models"
	"library_circulation/notify"
	"library_circulation/tenant"
)

const (
	defaultSweepWorkers = 4
	defaultBatchSize    = 200
)

var (
	ErrNilStore         = errors.New("store must not be nil")
	ErrInvalidWorkers   = errors.New("sweep workers must be positive")
	ErrInvalidBatchSize = errors.New("batch size must be positive")
)

type Service struct {
	store   Store
	clock   Clock
	ids     *idSource
	sink    NotificationSink
	mailer  Mailer
	guard   NoticeGuard
	logger  *slog.Logger
	workers int
	batch   int
}

type Option func(*Service) error

func WithClock(c Clock) Option {
	return func(s *Service) error {
		if c != nil {
			s.clock = c
		}
		return nil
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) error {
		if l != nil {
			s.logger = l
		}
		return nil
	}
}

func WithNotificationSink(sink NotificationSink) Option {
	return func(s *Service) error {
		s.sink = sink
		return nil
	}
}

// WithMailer enables e-mail copies of overdue and due-soon notices.
func WithMailer(m Mailer) Option {
	return func(s *Service) error {
		s.mailer = m
		return nil
	}
}

func WithNoticeGuard(g NoticeGuard) Option {
	return func(s *Service) error {
		if g != nil {
			s.guard = g
		}
		return nil
	}
}

// WithSweepWorkers bounds how many records a sweep processes concurrently.
func WithSweepWorkers(n int) Option {
	return func(s *Service) error {
		if n <= 0 {
			return ErrInvalidWorkers
		}
		s.workers = n
		return nil
	}
}

func WithBatchSize(n int) Option {
	return func(s *Service) error {
		if n <= 0 {
			return ErrInvalidBatchSize
		}
		s.batch = n
		return nil
	}
}

func New(store Store, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, ErrNilStore
	}
	s := &Service{
		store:   store,
		clock:   realClock{},
		ids:     newIDSource(),
		guard:   notify.NewMemoryGuard(),
		logger:  slog.Default(),
		workers: defaultSweepWorkers,
		batch:   defaultBatchSize,
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Policy returns the school's settings, creating the default row on first use.
func (s *Service) Policy(ctx context.Context, scope tenant.Scope) (models.PolicySettings, error) {
	var p models.PolicySettings
	if err := requireScope(scope); err != nil {
		return p, err
	}
	err := s.store.Atomic(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		p, err = tx.GetOrCreateDefaults(ctx, scope)
		return err
	})
	return p, err
}

func (s *Service) emit(ctx context.Context, scope tenant.Scope, userID string, typ models.NotificationType, title, msg string) bool {
	if s.sink == nil {
		s.logger.DebugContext(ctx, "notification dropped, no sink", "tenant", scope.ID(), "user", userID, "type", typ)
		return false
	}
	if err := s.sink.Emit(ctx, scope, userID, typ, title, msg); err != nil {
		s.logger.WarnContext(ctx, "notification emit failed", "tenant", scope.ID(), "user", userID, "type", typ, "error", err)
		return false
	}
	return true
}

func requireScope(scope tenant.Scope) error {
	if !scope.Valid() {
		return newError(CodeInvalidArgument, "tenant scope is required")
	}
	return nil
}

func requireIDs(ids ...string) error {
	for _, id := range ids {
		if id == "" {
			return newError(CodeInvalidArgument, "id is required")
		}
	}
	return nil
}

// memberOf turns a missing membership into FORBIDDEN: the user exists only
// in some other school.
func memberOf(ctx context.Context, tx Tx, scope tenant.Scope, userID string) (*models.Member, error) {
	m, err := tx.Member(ctx, scope, userID)
	if errors.Is(err, ErrNotFound) {
		return nil, newError(CodeForbidden, "user %s is not a member of %s", userID, scope.ID())
	}
	return m, err
}

// Member resolves userID's membership in scope. Unknown users are FORBIDDEN.
func (s *Service) Member(ctx context.Context, scope tenant.Scope, userID string) (*models.Member, error) {
	if err := requireScope(scope); err != nil {
		return nil, err
	}
	if err := requireIDs(userID); err != nil {
		return nil, err
	}
	var m *models.Member
	err := s.store.View(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		m, err = memberOf(ctx, tx, scope, userID)
		return err
	})
	return m, err
}
