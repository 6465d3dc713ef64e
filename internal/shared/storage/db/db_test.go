package db

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

// withMockOpen routes openDB to fresh sqlmock databases; failFirst makes
// the first open fail.
func withMockOpen(t *testing.T, failFirst bool) *int {
	t.Helper()
	calls := 0
	prev := openDB
	openDB = func(name, dsn string) (*sql.DB, error) {
		calls++
		if failFirst && calls == 1 {
			return nil, errors.New("connection refused")
		}
		db, _, err := sqlmock.New()
		return db, err
	}
	t.Cleanup(func() { openDB = prev })
	return &calls
}

func withEnv(t *testing.T, env map[string]string) {
	t.Helper()
	prev := lookupEnv
	lookupEnv = func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
	t.Cleanup(func() { lookupEnv = prev })
}

func resetSingleton(t *testing.T) {
	t.Helper()
	singletonMu.Lock()
	singletonDB = nil
	singletonMu.Unlock()
	t.Cleanup(func() {
		singletonMu.Lock()
		singletonDB = nil
		singletonMu.Unlock()
	})
}

func TestGetSingletonReturnsSamePointer(t *testing.T) {
	calls := withMockOpen(t, false)
	resetSingleton(t)

	db1, err := GetSingleton(context.Background(), "postgres://ignored", DefaultOptions(ProfileLambda))
	if err != nil {
		t.Fatalf("GetSingleton first: %v", err)
	}
	db2, err := GetSingleton(context.Background(), "postgres://ignored", DefaultOptions(ProfileLambda))
	if err != nil {
		t.Fatalf("GetSingleton second: %v", err)
	}
	if db1 != db2 {
		t.Fatalf("expected singleton pointers to match")
	}
	if *calls != 1 {
		t.Fatalf("expected one open, got %d", *calls)
	}
}

func TestGetSingletonRetriesAfterFailure(t *testing.T) {
	withMockOpen(t, true)
	resetSingleton(t)

	if _, err := GetSingleton(context.Background(), "postgres://ignored", DefaultOptions(ProfileLambda)); err == nil {
		t.Fatalf("expected first call to fail")
	}
	db, err := GetSingleton(context.Background(), "postgres://ignored", DefaultOptions(ProfileLambda))
	if err != nil {
		t.Fatalf("expected second call to succeed: %v", err)
	}
	if db == nil {
		t.Fatalf("expected db after retry")
	}
}

func TestOptionsFromEnvAppliesOverrides(t *testing.T) {
	withEnv(t, map[string]string{
		"DB_MAX_OPEN_CONNS":     "7",
		"DB_MAX_IDLE_CONNS":     "3",
		"DB_CONN_MAX_LIFETIME":  "20m",
		"DB_CONN_MAX_IDLE_TIME": "45s",
		"DB_PING_TIMEOUT":       "1s",
	})
	withMockOpen(t, false)

	opts := OptionsFromEnv(DefaultOptions(ProfileServer))
	db, err := Connect(context.Background(), "postgres://ignored", opts)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer db.Close()

	if got := db.Stats().MaxOpenConnections; got != 7 {
		t.Fatalf("expected MaxOpenConnections=7, got %d", got)
	}
	want := Options{
		MaxOpenConns:    7,
		MaxIdleConns:    3,
		ConnMaxLifetime: 20 * time.Minute,
		ConnMaxIdleTime: 45 * time.Second,
		PingTimeout:     time.Second,
	}
	if opts != want {
		t.Fatalf("expected %+v, got %+v", want, opts)
	}
}

func TestOptionsFromEnvIgnoresInvalidValues(t *testing.T) {
	withEnv(t, map[string]string{
		"DB_MAX_OPEN_CONNS":    "many",
		"DB_CONN_MAX_LIFETIME": "forever",
	})

	defaults := DefaultOptions(ProfileMigrate)
	if got := OptionsFromEnv(defaults); got != defaults {
		t.Fatalf("expected defaults %+v, got %+v", defaults, got)
	}
}

func TestRuntimeProfile(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want Profile
	}{
		{name: "server", env: map[string]string{}, want: ProfileServer},
		{name: "lambda", env: map[string]string{"AWS_LAMBDA_FUNCTION_NAME": "stackdocs-worker"}, want: ProfileLambda},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			withEnv(t, tc.env)
			if got := RuntimeProfile(); got != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, got)
			}
		})
	}
}

func TestPingRequiresDatabase(t *testing.T) {
	if err := Ping(context.Background(), nil, time.Second); err == nil {
		t.Fatalf("expected error for nil database")
	}
}

func TestConnectRejectsEmptyURL(t *testing.T) {
	if _, err := Connect(context.Background(), "  ", DefaultOptions(ProfileServer)); err == nil {
		t.Fatalf("expected error for empty url")
	}
}

func TestMigrationsAreEmbedded(t *testing.T) {
	entries, err := migrationFiles.ReadDir("migrations")
	if err != nil {
		t.Fatalf("read embedded migrations: %v", err)
	}
	if len(entries) < 3 {
		t.Fatalf("expected schema and function migrations, got %d", len(entries))
	}
	strict, err := migrationFiles.ReadFile("migrations/00003_strict_field_update.sql")
	if err != nil {
		t.Fatalf("read strict field migration: %v", err)
	}
	if !strings.Contains(string(strict), "ERRCODE = '22023'") {
		t.Fatalf("update_extraction_field must raise 22023 for unwritable paths")
	}
}
