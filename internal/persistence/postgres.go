// Package persistence provides database implementations
package persistence

import (
	"context"
	"fmt"
	"time"

	"database/sql"

	_ "github.com/lib/pq" // Postgres driver
)

// PostgresDB implements the Database interface for PostgreSQL
type PostgresDB struct {
	db          *sql.DB
	communities CommunityRepository
	tips        TipRepository
	dispatches  DispatchRepository
}

// NewPostgresDB creates a new PostgreSQL database connection. Pool sizes
// of zero or below fall back to the standard 25/5.
func NewPostgresDB(connectionString string, maxOpenConns, maxIdleConns int) (*PostgresDB, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if maxOpenConns <= 0 {
		maxOpenConns = 25
	}
	if maxIdleConns <= 0 {
		maxIdleConns = 5
	}
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(5 * time.Minute)

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	pgDB := &PostgresDB{db: db}
	pgDB.communities = &postgresCommunityRepo{db: db}
	pgDB.tips = &postgresTipRepo{db: db}
	pgDB.dispatches = &postgresDispatchRepo{db: db}

	return pgDB, nil
}

func (p *PostgresDB) Communities() CommunityRepository { return p.communities }
func (p *PostgresDB) Tips() TipRepository              { return p.tips }
func (p *PostgresDB) Dispatches() DispatchRepository   { return p.dispatches }

func (p *PostgresDB) Close() error {
	return p.db.Close()
}

func (p *PostgresDB) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// DB exposes the raw connection for the migration manager and the vector store
func (p *PostgresDB) DB() *sql.DB {
	return p.db
}
