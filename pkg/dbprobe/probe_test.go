package dbprobe

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"vault-refresh-agent/pkg/config"
	"vault-refresh-agent/pkg/vault"
)

func withMockOpen(t *testing.T) (sqlmock.Sqlmock, *[]string) {
	t.Helper()

	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}

	var dsns []string
	original := sqlOpen
	sqlOpen = func(driverName, dsn string) (*sql.DB, error) {
		dsns = append(dsns, dsn)
		return db, nil
	}
	t.Cleanup(func() { sqlOpen = original })

	return mock, &dsns
}

func testProber() *Prober {
	return New(config.ProbeConfig{
		Enabled: true,
		Host:    "db.internal",
		Port:    "5433",
		DBName:  "appdb",
	})
}

func TestProber_Check(t *testing.T) {
	creds := &vault.Credentials{Username: "v-approle-readonly-x1", Password: "pw"}

	t.Run("Success", func(t *testing.T) {
		mock, dsns := withMockOpen(t)
		mock.ExpectPing()
		mock.ExpectQuery("SELECT version").
			WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow("PostgreSQL 16.3"))
		mock.ExpectClose()

		result, err := testProber().Check(context.Background(), creds)
		if err != nil {
			t.Fatalf("Check failed: %v", err)
		}
		if result.ServerVersion != "PostgreSQL 16.3" {
			t.Errorf("version = %q, want PostgreSQL 16.3", result.ServerVersion)
		}

		if len(*dsns) != 1 {
			t.Fatalf("open calls = %d, want 1", len(*dsns))
		}
		dsn := (*dsns)[0]
		for _, part := range []string{"host=db.internal", "port=5433", "user=v-approle-readonly-x1", "dbname=appdb"} {
			if !strings.Contains(dsn, part) {
				t.Errorf("dsn %q missing %q", dsn, part)
			}
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet expectations: %v", err)
		}
	})

	t.Run("Ping failure", func(t *testing.T) {
		mock, _ := withMockOpen(t)
		mock.ExpectPing().WillReturnError(errors.New("password authentication failed"))
		mock.ExpectClose()

		if _, err := testProber().Check(context.Background(), creds); err == nil {
			t.Error("Expected ping error")
		}
	})

	t.Run("Version query failure", func(t *testing.T) {
		mock, _ := withMockOpen(t)
		mock.ExpectPing()
		mock.ExpectQuery("SELECT version").WillReturnError(errors.New("db error"))
		mock.ExpectClose()

		if _, err := testProber().Check(context.Background(), creds); err == nil {
			t.Error("Expected query error")
		}
	})

	t.Run("Default port", func(t *testing.T) {
		mock, dsns := withMockOpen(t)
		mock.ExpectPing()
		mock.ExpectQuery("SELECT version").
			WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow("PostgreSQL 16.3"))
		mock.ExpectClose()

		p := New(config.ProbeConfig{Host: "db.internal", DBName: "appdb"})
		if _, err := p.Check(context.Background(), creds); err != nil {
			t.Fatalf("Check failed: %v", err)
		}
		if !strings.Contains((*dsns)[0], "port=5432") {
			t.Errorf("dsn %q missing default port", (*dsns)[0])
		}
	})
}
