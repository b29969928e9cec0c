package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"sengine/internal/config"
)

const (
	maxOpenConns    = 20
	maxIdleConns    = 2
	connMaxIdleTime = 30 * time.Second
	connMaxLifetime = 60 * time.Minute
	pingTimeout     = 60 * time.Second
)

// Pools holds the writer and reader connection pools. Both point at the same
// primary; the split keeps long read queries from starving writes.
type Pools struct {
	Writer *sql.DB
	Reader *sql.DB
}

// Open creates and verifies both pools.
func Open(cfg *config.Config) (*Pools, error) {
	dsn := cfg.GetDatabaseDSN()

	writer, err := open(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open writer pool: %w", err)
	}

	reader, err := open(dsn)
	if err != nil {
		writer.Close()
		return nil, fmt.Errorf("failed to open reader pool: %w", err)
	}

	return &Pools{Writer: writer, Reader: reader}, nil
}

func open(dsn string) (*sql.DB, error) {
	pool, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pool.SetMaxOpenConns(maxOpenConns)
	pool.SetMaxIdleConns(maxIdleConns)
	pool.SetConnMaxIdleTime(connMaxIdleTime)
	pool.SetConnMaxLifetime(connMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := pool.PingContext(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return pool, nil
}

// Close closes both pools.
func (p *Pools) Close() error {
	var errs []error
	if err := p.Writer.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := p.Reader.Close(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("errors closing pools: %v", errs)
	}
	return nil
}

// Healthy pings the writer pool with a short deadline.
func (p *Pools) Healthy(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return p.Writer.PingContext(pingCtx)
}
