package repository

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"

	"github.com/cradoe/lumenbank/assets"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"

	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/lib/pq"
)

const defaultTimeout = 3 * time.Second

// Database interface defines available repositories
type Database interface {
	User() UserRepository
	Application() ApplicationRepository
	Account() AccountRepository
	Transaction() TransactionRepository
	JointRequest() JointRequestRepository
	AuditLog() AuditLogRepository
	Notification() NotificationRepository

	Close() error
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
}

// DatabaseImpl implements the Database interface
type DatabaseImpl struct {
	db               *sqlx.DB
	userRepo         UserRepository
	applicationRepo  ApplicationRepository
	accountRepo      AccountRepository
	transactionRepo  TransactionRepository
	jointRequestRepo JointRequestRepository
	auditLogRepo     AuditLogRepository
	notificationRepo NotificationRepository

	mu sync.Mutex
}

// New initializes a database connection and runs migrations if enabled
func New(dsn string, automigrate bool) (Database, error) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	db, err := sqlx.ConnectContext(ctx, "postgres", "postgres://"+dsn)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxIdleTime(5 * time.Minute)
	db.SetConnMaxLifetime(2 * time.Hour)

	if automigrate {
		iofsDriver, err := iofs.New(assets.EmbeddedFiles, "migrations")
		if err != nil {
			return nil, err
		}

		migrator, err := migrate.NewWithSourceInstance("iofs", iofsDriver, "postgres://"+dsn)
		if err != nil {
			return nil, err
		}

		if err := migrator.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return nil, err
		}
	}

	return &DatabaseImpl{db: db}, nil
}

func (d *DatabaseImpl) Close() error {
	return d.db.Close()
}

func (d *DatabaseImpl) BeginTx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error) {
	tx, err := d.db.BeginTxx(ctx, opts)
	if err != nil {
		return nil, err
	}
	return tx, nil
}

func (d *DatabaseImpl) User() UserRepository {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.userRepo == nil {
		d.userRepo = NewUserRepository(d.db)
	}
	return d.userRepo
}

func (d *DatabaseImpl) Application() ApplicationRepository {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.applicationRepo == nil {
		d.applicationRepo = NewApplicationRepository(d.db)
	}
	return d.applicationRepo
}

func (d *DatabaseImpl) Account() AccountRepository {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.accountRepo == nil {
		d.accountRepo = NewAccountRepository(d.db)
	}
	return d.accountRepo
}

func (d *DatabaseImpl) Transaction() TransactionRepository {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.transactionRepo == nil {
		d.transactionRepo = NewTransactionRepository(d.db)
	}
	return d.transactionRepo
}

func (d *DatabaseImpl) JointRequest() JointRequestRepository {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.jointRequestRepo == nil {
		d.jointRequestRepo = NewJointRequestRepository(d.db)
	}
	return d.jointRequestRepo
}

func (d *DatabaseImpl) AuditLog() AuditLogRepository {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.auditLogRepo == nil {
		d.auditLogRepo = NewAuditLogRepository(d.db)
	}
	return d.auditLogRepo
}

func (d *DatabaseImpl) Notification() NotificationRepository {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.notificationRepo == nil {
		d.notificationRepo = NewNotificationRepository(d.db)
	}
	return d.notificationRepo
}
