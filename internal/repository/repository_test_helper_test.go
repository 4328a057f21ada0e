package repository

import (
	"context"
	"database/sql"
	"testing"

	"github.com/checkfox/go_lead_adapter/internal/database"
)

// setupTestDB connects to the local test database and applies migrations.
// Tests skip when no database is available.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := database.New(context.Background(), database.Config{
		Host:     "localhost",
		Port:     "5432",
		User:     "postgres",
		Password: "postgres",
		DBName:   "lead_adapter_test",
		SSLMode:  "disable",
	})
	if err != nil {
		t.Skipf("Skipping test - test database not available: %v", err)
	}

	if err := database.RunMigrations(context.Background(), db); err != nil {
		db.Close()
		t.Fatalf("Failed to run migrations: %v", err)
	}

	t.Cleanup(func() {
		cleanupTestData(t, db.DB)
		db.Close()
	})
	return db.DB
}

// cleanupTestData removes test data from the database
func cleanupTestData(t *testing.T, db *sql.DB) {
	for _, table := range []string{"message_status", "delivery_attempt", "inbound_lead"} {
		if _, err := db.Exec("DELETE FROM " + table); err != nil {
			t.Logf("Warning: failed to clean %s table: %v", table, err)
		}
	}
}
