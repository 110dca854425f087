//go:build integration

package audit

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

const auditIntegrationPrefix = "audit:integration_test"

// testDBEnv returns the database URL for integration tests; skips the test if not set.
func testDBEnv(t *testing.T) string {
	t.Helper()
	url := os.Getenv("DATABASE_URL")
	if url == "" {
		t.Skip("audit:integration_test - DATABASE_URL not set, skipping")
	}
	return url
}

func setupRepository(t *testing.T) (context.Context, *Repository, func()) {
	t.Helper()
	ctx := context.Background()
	url := testDBEnv(t)

	if _, err := EnsureDatabase(ctx, url); err != nil {
		t.Fatalf("%s - EnsureDatabase failed: %v", auditIntegrationPrefix, err)
	}
	pool, err := NewPool(ctx, url)
	if err != nil {
		t.Fatalf("%s - NewPool failed: %v", auditIntegrationPrefix, err)
	}
	migrations, err := LoadMigrations(filepath.Join("..", "..", "migrations"))
	if err != nil {
		pool.Close()
		t.Fatalf("%s - LoadMigrations failed: %v", auditIntegrationPrefix, err)
	}
	if err := RunMigrations(ctx, pool, migrations); err != nil {
		pool.Close()
		t.Fatalf("%s - RunMigrations failed: %v", auditIntegrationPrefix, err)
	}
	present, err := SchemaPresent(ctx, pool)
	if err != nil || !present {
		pool.Close()
		t.Fatalf("%s - SchemaPresent = %v, %v", auditIntegrationPrefix, present, err)
	}

	repo := NewRepository(pool)
	if _, err := repo.ClearOutcomes(ctx); err != nil {
		pool.Close()
		t.Fatalf("%s - ClearOutcomes failed: %v", auditIntegrationPrefix, err)
	}
	return ctx, repo, pool.Close
}

func TestIntegration_InsertAndRecent(t *testing.T) {
	ctx, repo, cleanup := setupRepository(t)
	defer cleanup()

	base := time.Now().UTC().Truncate(time.Millisecond)
	batch := []Outcome{
		{ConnID: "c1", RequestID: "r1", Command: "blueprint.compile", Context: "main", Status: StatusOK,
			SubmittedAt: base, CompletedAt: base.Add(10 * time.Millisecond)},
		{ConnID: "c1", RequestID: "r2", Command: "level.query_assets", Context: "any", Status: StatusError,
			ErrorCode: "BACKPRESSURE", SubmittedAt: base, CompletedAt: base.Add(20 * time.Millisecond)},
	}
	n, err := repo.InsertOutcomes(ctx, batch)
	if err != nil {
		t.Fatalf("%s - InsertOutcomes failed: %v", auditIntegrationPrefix, err)
	}
	if n != 2 {
		t.Errorf("%s - inserted %d, want 2", auditIntegrationPrefix, n)
	}

	recent, err := repo.RecentOutcomes(ctx, "", 10)
	if err != nil {
		t.Fatalf("%s - RecentOutcomes failed: %v", auditIntegrationPrefix, err)
	}
	if len(recent) != 2 || recent[0].RequestID != "r2" {
		t.Fatalf("%s - recent = %+v", auditIntegrationPrefix, recent)
	}
	if recent[0].ErrorCode != "BACKPRESSURE" {
		t.Errorf("%s - ErrorCode = %q", auditIntegrationPrefix, recent[0].ErrorCode)
	}

	filtered, err := repo.RecentOutcomes(ctx, "blueprint.compile", 10)
	if err != nil {
		t.Fatalf("%s - RecentOutcomes(filter) failed: %v", auditIntegrationPrefix, err)
	}
	if len(filtered) != 1 || filtered[0].ErrorCode != "" {
		t.Errorf("%s - filtered = %+v", auditIntegrationPrefix, filtered)
	}
}
