package repository

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	auth "github.com/neuronurture/go-auth"
	"github.com/neuronurture/go-auth/migrations"
	"github.com/neuronurture/go-auth/social"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Manager vends the bun backed stores sharing one connection pool
type Manager struct {
	db      *bun.DB
	dialect string
}

// NewManager wraps an existing bun database
func NewManager(db *bun.DB, dialect string) *Manager {
	return &Manager{db: db, dialect: dialect}
}

// Open connects to postgres through pgx or to sqlite through sqliteshim
func Open(driver, dsn string) (*Manager, error) {
	switch driver {
	case DriverPostgres:
		sqldb, err := sql.Open("pgx", dsn)
		if err != nil {
			return nil, err
		}
		return NewManager(bun.NewDB(sqldb, pgdialect.New()), migrations.DialectPostgres), nil
	case DriverSQLite:
		sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
		if err != nil {
			return nil, err
		}
		sqldb.SetMaxOpenConns(1)
		return NewManager(bun.NewDB(sqldb, sqlitedialect.New()), migrations.DialectSQLite), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}

// DB returns the bun handle
func (m *Manager) DB() *bun.DB {
	return m.db
}

// Migrate applies the embedded schema migrations
func (m *Manager) Migrate(ctx context.Context) error {
	return migrations.Up(ctx, m.db.DB, m.dialect)
}

func (m *Manager) Users() auth.UserStore {
	return NewUsers(m.db)
}

func (m *Manager) RefreshTokens() auth.RefreshTokenStore {
	return NewRefreshTokens(m.db)
}

func (m *Manager) SocialAccounts() social.SocialAccountRepository {
	return NewSocialAccountRepository(m.db)
}

// Ping checks the connection
func (m *Manager) Ping(ctx context.Context) error {
	return m.db.PingContext(ctx)
}

func (m *Manager) Close() error {
	return m.db.Close()
}
