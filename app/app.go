package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"library_circulation/circulation"
	"library_circulation/config"
	"library_circulation/db"
	"library_circulation/notify"
	"library_circulation/session"
	"library_circulation/workers"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// short aliases for handlers
type Ctx = gin.Context
type H = gin.H

// App holds every long-lived dependency of the service.
type App struct {
	Router *gin.Engine
	DB     *gorm.DB
	RDB    *redis.Client
	Config config.Config
	Logger *slog.Logger

	Circulation *circulation.Service
	Inbox       *db.Notifications
	Sweeper     *workers.Sweeper

	appSess *session.AppSessionStore
}

func (a *App) AppSessions() *session.AppSessionStore { return a.appSess }

// MustNew is New for main: any failure ends the process.
func MustNew(cfg config.Config) *App {
	a, err := New(cfg)
	if err != nil {
		slog.Error("startup failed", "error", err)
		os.Exit(1)
	}
	return a
}

// New connects postgres and redis and assembles the App.
func New(cfg config.Config) (*App, error) {
	logger := NewLogger(cfg)
	slog.SetDefault(logger)

	gdb, err := db.ConnectDB(cfg.DSN())
	if err != nil {
		return nil, err
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: 0})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}

	return Assemble(cfg, gdb, rdb, logger)
}

// Assemble wires the engine over already opened connections. Tests call it
// with the sqlite twin and miniredis.
func Assemble(cfg config.Config, gdb *gorm.DB, rdb *redis.Client, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	inbox := db.NewNotifications(gdb)
	store := db.NewStore(gdb, db.WithMaxAttempts(cfg.TxMaxAttempts))

	opts := []circulation.Option{
		circulation.WithLogger(logger),
		circulation.WithNotificationSink(inbox),
		circulation.WithNoticeGuard(notify.NewRedisGuard(rdb)),
		circulation.WithSweepWorkers(cfg.SweepWorkers),
	}
	if m := notify.NewSMTPMailer(notify.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		User:     cfg.SMTPUser,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
	}); m != nil {
		opts = append(opts, circulation.WithMailer(m))
	}
	svc, err := circulation.New(store, opts...)
	if err != nil {
		return nil, fmt.Errorf("circulation: %w", err)
	}

	r := gin.Default()
	useCORS(r, cfg.WebOrigin)

	return &App{
		Router:      r,
		DB:          gdb,
		RDB:         rdb,
		Config:      cfg,
		Logger:      logger,
		Circulation: svc,
		Inbox:       inbox,
		Sweeper:     workers.NewSweeper(circulation.NewScheduler(svc), cfg.SweepInterval, logger),
		appSess:     session.NewAppSessionStore(rdb, cfg.SessionTTL),
	}, nil
}

func NewLogger(cfg config.Config) *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
}

// Close stops the sweeper before closing redis so an in-flight run can finish.
func (a *App) Close() {
	a.Sweeper.Stop()
	_ = a.RDB.Close()
}
