//go:build integration

package store_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/testcontainers/testcontainers-go"
	tcPostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/mohammad-safakhou/climarisk/internal/pipeline"
	"github.com/mohammad-safakhou/climarisk/internal/store"
)

func findMigrationsDir(t *testing.T) string {
	t.Helper()
	cwd, _ := os.Getwd()
	for i := 0; i < 6; i++ {
		candidate := filepath.Join(cwd, "migrations")
		if st, err := os.Stat(candidate); err == nil && st.IsDir() {
			return "file://" + candidate
		}
		cwd = filepath.Dir(cwd)
	}
	t.Fatalf("could not locate migrations directory from test cwd")
	return ""
}

func TestReportsRoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx := context.Background()

	pgC, err := tcPostgres.RunContainer(ctx,
		tcPostgres.WithDatabase("climarisk"),
		tcPostgres.WithUsername("climarisk"),
		tcPostgres.WithPassword("climarisk"),
		testcontainers.WithWaitStrategy(wait.ForListeningPort("5432/tcp")),
	)
	if err != nil {
		t.Fatalf("postgres container: %v", err)
	}
	defer func() { _ = pgC.Terminate(ctx) }()

	host, err := pgC.Host(ctx)
	if err != nil {
		t.Fatalf("postgres host: %v", err)
	}
	port, err := pgC.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("postgres port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://climarisk:climarisk@%s:%s/climarisk?sslmode=disable", host, port.Port())

	dir := findMigrationsDir(t)
	var migErr error
	for i := 0; i < 6; i++ {
		if migErr = store.Migrate(dir, dsn, "up", 0); migErr == nil {
			break
		}
		time.Sleep(300 * time.Millisecond)
	}
	if migErr != nil {
		t.Fatalf("migrate up failed after retries: %v", migErr)
	}
	if err := store.Migrate(dir, dsn, "up", 0); err != nil {
		t.Fatalf("second migrate up should be a no-op: %v", err)
	}

	st, err := store.NewWithDSN(ctx, dsn)
	if err != nil {
		t.Fatalf("store init: %v", err)
	}
	defer st.Close()

	base := time.Now().UTC().Truncate(time.Second)
	older := pipeline.Report{ID: uuid.NewString(), Request: "Lyon", Synthesis: "canicule", CreatedAt: base.Add(-time.Hour)}
	newer := pipeline.Report{ID: uuid.NewString(), Request: "Paris", Synthesis: "crues", CreatedAt: base}
	for _, r := range []pipeline.Report{older, newer} {
		if err := st.SaveReport(ctx, r); err != nil {
			t.Fatalf("SaveReport: %v", err)
		}
	}
	newer.Synthesis = "crues de la Seine"
	if err := st.SaveReport(ctx, newer); err != nil {
		t.Fatalf("SaveReport overwrite: %v", err)
	}

	got, err := st.GetReport(ctx, newer.ID)
	if err != nil || got.Synthesis != "crues de la Seine" {
		t.Fatalf("GetReport: %+v, %v", got, err)
	}
	list, err := st.ListReports(ctx, 10)
	if err != nil {
		t.Fatalf("ListReports: %v", err)
	}
	if len(list) != 2 || list[0].ID != newer.ID || list[1].Synthesis != "canicule" {
		t.Fatalf("unexpected list %+v", list)
	}
}
