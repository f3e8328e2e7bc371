// Package dbprobe verifies issued database credentials against a live
// PostgreSQL server. A successful probe proves the whole chain works: the
// credentials Vault handed out actually open a connection.
package dbprobe

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"vault-refresh-agent/pkg/config"
	"vault-refresh-agent/pkg/logger"
	"vault-refresh-agent/pkg/vault"

	_ "github.com/lib/pq"
)

// Internal variable for testing
var sqlOpen = sql.Open

// Result is the outcome of a successful probe.
type Result struct {
	ServerVersion string
	Elapsed       time.Duration
}

// Prober opens short-lived PostgreSQL connections with issued credentials.
type Prober struct {
	cfg config.ProbeConfig
}

// New creates a Prober for the given target database.
func New(cfg config.ProbeConfig) *Prober {
	return &Prober{cfg: cfg}
}

// Check connects with the given credentials, pings, and reads the server
// version. The connection is closed before returning.
func (p *Prober) Check(ctx context.Context, creds *vault.Credentials) (*Result, error) {
	port := p.cfg.Port
	if port == "" {
		port = "5432"
	}
	dsn := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=disable timezone=UTC",
		p.cfg.Host, port, creds.Username, creds.Password, p.cfg.DBName,
	)

	db, err := sqlOpen("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres connection: %w", err)
	}
	defer db.Close()

	start := time.Now()
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	var version string
	if err := db.QueryRowContext(ctx, "SELECT version()").Scan(&version); err != nil {
		return nil, fmt.Errorf("failed to read server version: %w", err)
	}

	result := &Result{ServerVersion: version, Elapsed: time.Since(start)}
	logger.Info("database probe ok",
		"username", creds.Username, "elapsed_ms", result.Elapsed.Milliseconds())
	return result, nil
}
