package db

import (
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"library_circulation/models"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ConnectDB opens postgres and migrates the circulation tables.
func ConnectDB(dsn string) (*gorm.DB, error) {
	gdb, err := gorm.Open(postgres.Open(dsn), Config())
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	if err := Migrate(gdb); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	slog.Info("database connected")
	return gdb, nil
}

// Config is shared by the postgres connection and the sqlite test twin.
// TranslateError lets unique violations surface as gorm.ErrDuplicatedKey.
func Config() *gorm.Config {
	return &gorm.Config{
		TranslateError: true,
		Logger: logger.New(log.New(os.Stdout, "\r\n", log.LstdFlags), logger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
		NowFunc: func() time.Time { return time.Now().UTC() },
	}
}

func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.Book{},
		&models.Member{},
		&models.PolicySettings{},
		&models.Loan{},
		&models.Reservation{},
		&models.Notification{},
	); err != nil {
		return err
	}

	// one ACTIVE loan per reader and book
	if err := db.Exec(fmt.Sprintf(`
	  CREATE UNIQUE INDEX IF NOT EXISTS %s_one_active_per_reader
	  ON %s (tenant_id, user_id, book_id)
	  WHERE status = 'ACTIVE';
	`, models.LoanTable, models.LoanTable)).Error; err != nil {
		return err
	}

	// one WAITING/READY reservation per reader and book
	if err := db.Exec(fmt.Sprintf(`
	  CREATE UNIQUE INDEX IF NOT EXISTS %s_one_active_per_reader
	  ON %s (tenant_id, user_id, book_id)
	  WHERE status IN ('WAITING', 'READY');
	`, models.ReservationTable, models.ReservationTable)).Error; err != nil {
		return err
	}

	// sweep scans
	if err := db.Exec(fmt.Sprintf(`
	  CREATE INDEX IF NOT EXISTS %s_ready_expires
	  ON %s (expires_at)
	  WHERE status = 'READY';
	`, models.ReservationTable, models.ReservationTable)).Error; err != nil {
		return err
	}
	return db.Exec(fmt.Sprintf(`
	  CREATE INDEX IF NOT EXISTS %s_active_due
	  ON %s (due_date)
	  WHERE status = 'ACTIVE';
	`, models.LoanTable, models.LoanTable)).Error
}
