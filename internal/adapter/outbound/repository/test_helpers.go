package repository

import (
	"context"
	"encoding/json"
	"os"
	"strconv"
	"testing"
	"time"

	"billevents/internal/domain/entity"

	"github.com/jackc/pgx/v5/pgxpool"
)

// setupTestDB creates a test database connection, skipping the test when no
// database is reachable.
func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()

	config := DatabaseConfig{
		Host:     "localhost",
		Port:     5432,
		Database: "billevents",
		Username: "dev",
		Password: "dev",
		Schema:   "billevents",
	}
	if host := os.Getenv("BILLEVENTS_TEST_DB_HOST"); host != "" {
		config.Host = host
	}
	if port := os.Getenv("BILLEVENTS_TEST_DB_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Port = p
		}
	}

	pool, err := NewDatabaseConnection(config)
	if err != nil {
		t.Skipf("test database not available: %v", err)
	}
	t.Cleanup(pool.Close)
	return pool
}

// cleanupTestData removes all rows from the module's tables.
func cleanupTestData(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()

	ctx := context.Background()
	queries := []string{
		"DELETE FROM billevents.processed_batches WHERE 1=1",
		"DELETE FROM billevents.batch_jobs WHERE 1=1",
		"DELETE FROM billevents.policy_events WHERE 1=1",
		"DELETE FROM billevents.bills WHERE 1=1",
	}
	for _, query := range queries {
		if _, err := pool.Exec(ctx, query); err != nil {
			t.Logf("Warning: Failed to clean up with query %s: %v", query, err)
		}
	}
}

// seedBill inserts a bill row directly, bypassing the repository under test.
func seedBill(t *testing.T, pool *pgxpool.Pool, key, title, body string, status *string, actions []entity.BillAction) {
	t.Helper()

	actionsData, err := json.Marshal(actions)
	if err != nil {
		t.Fatalf("Failed to encode test actions: %v", err)
	}

	_, err = pool.Exec(context.Background(), `
		INSERT INTO billevents.bills (key, title, body, status, actions, event_ids, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, '{}', $6, $6)`,
		key, title, body, status, actionsData, time.Now(),
	)
	if err != nil {
		t.Fatalf("Failed to seed test bill %s: %v", key, err)
	}
}
