package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/geofence-relay/internal/api"
	"github.com/nerrad567/geofence-relay/internal/audit"
	"github.com/nerrad567/geofence-relay/internal/auth"
	"github.com/nerrad567/geofence-relay/internal/infrastructure/database"
	"github.com/nerrad567/geofence-relay/internal/infrastructure/logging"
	"github.com/nerrad567/geofence-relay/migrations"
)

const testSecret = "test-secret-key-at-least-32-characters-long"

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test-config.yaml")
	if err := os.WriteFile(path, []byte(body), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func baseConfig(dbPath string) string {
	return `
relay:
  id: relay-test

database:
  path: "` + dbPath + `"
  wal_mode: true
  busy_timeout: 5

mqtt:
  broker:
    host: "127.0.0.1"
    port: 1
    client_id: "relay-test"
  qos: 1

logging:
  level: error
  format: text
  output: stdout

host:
  process_name: com.example.app

security:
  jwt:
    secret: "` + testSecret + `"
    access_token_ttl: 5
`
}

// TestRun_InvalidConfig verifies run fails with invalid config path.
func TestRun_InvalidConfig(t *testing.T) {
	t.Setenv("GEOFENCE_CONFIG", "/nonexistent/path/config.yaml")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx); err == nil {
		t.Fatal("run() should fail with invalid config path")
	}
}

// TestRun_MissingProcessName verifies validation stops start-up before any
// connection is attempted.
func TestRun_MissingProcessName(t *testing.T) {
	body := strings.Replace(baseConfig(filepath.Join(t.TempDir(), "test.db")), "process_name: com.example.app", "process_name: \"\"", 1)
	t.Setenv("GEOFENCE_CONFIG", writeConfig(t, body))

	err := run(context.Background())
	if err == nil || !strings.Contains(err.Error(), "host.process_name") {
		t.Fatalf("run() error = %v, want process_name validation failure", err)
	}
}

// TestRun_BrokerUnreachable verifies run fails cleanly when the broker
// cannot be reached.
func TestRun_BrokerUnreachable(t *testing.T) {
	t.Setenv("GEOFENCE_CONFIG", writeConfig(t, baseConfig(filepath.Join(t.TempDir(), "test.db"))))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := run(ctx); err == nil {
		t.Fatal("run() should fail without a broker")
	}
}

func TestGetConfigPath(t *testing.T) {
	t.Setenv("GEOFENCE_CONFIG", "")
	if got := getConfigPath(); got != defaultConfigPath {
		t.Errorf("getConfigPath() = %q, want %q", got, defaultConfigPath)
	}

	t.Setenv("GEOFENCE_CONFIG", "/custom/path/config.yaml")
	if got := getConfigPath(); got != "/custom/path/config.yaml" {
		t.Errorf("getConfigPath() = %q", got)
	}
}

func TestHealthCheck(t *testing.T) {
	ok := func(context.Context) error { return nil }
	down := errors.New("down")

	if err := healthCheck(context.Background(), map[string]api.HealthCheck{"database": ok, "mqtt": ok}); err != nil {
		t.Errorf("healthCheck() = %v, want nil", err)
	}

	err := healthCheck(context.Background(), map[string]api.HealthCheck{
		"database": ok,
		"mqtt":     func(context.Context) error { return down },
	})
	if !errors.Is(err, down) || !strings.HasPrefix(err.Error(), "mqtt:") {
		t.Errorf("healthCheck() = %v, want mqtt failure", err)
	}
}

func TestIssueToken(t *testing.T) {
	path := writeConfig(t, baseConfig(filepath.Join(t.TempDir(), "test.db")))

	var out bytes.Buffer
	if err := issueToken(path, "app", string(auth.RoleOperator), &out); err != nil {
		t.Fatalf("issueToken() error: %v", err)
	}

	claims, err := auth.ParseToken(strings.TrimSpace(out.String()), testSecret)
	if err != nil {
		t.Fatalf("ParseToken() error: %v", err)
	}
	if claims.Subject != "app" || claims.Role != auth.RoleOperator {
		t.Errorf("claims = %+v", claims)
	}
}

func TestIssueToken_Errors(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	tests := []struct {
		name   string
		config string
		role   string
		want   error
	}{
		{"invalid role", baseConfig(dbPath), "root", auth.ErrInvalidRole},
		{"no secret", strings.Replace(baseConfig(dbPath), testSecret, "", 1), "client", auth.ErrNoSecret},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			err := issueToken(writeConfig(t, tt.config), "app", tt.role, &out)
			if !errors.Is(err, tt.want) {
				t.Errorf("issueToken() error = %v, want %v", err, tt.want)
			}
			if out.Len() != 0 {
				t.Errorf("output = %q, want empty", out.String())
			}
		})
	}
}

func TestPruneAuditLog_StopsOnCancel(t *testing.T) {
	ctx := context.Background()
	db, err := database.Open(ctx, database.Config{Path: filepath.Join(t.TempDir(), "prune.db")})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup
	if err := db.Migrate(ctx, migrations.FS); err != nil {
		t.Fatal(err)
	}
	repo := audit.NewSQLiteRepository(db.DB)
	old := &audit.Entry{Action: audit.ActionClear, EntityType: audit.EntityGeofence, Source: "api", CreatedAt: time.Now().Add(-48 * time.Hour)}
	if err := repo.Create(ctx, old); err != nil {
		t.Fatal(err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		pruneAuditLog(runCtx, repo, 24*time.Hour, logging.Discard())
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for {
		result, err := repo.List(ctx, audit.Filter{})
		if err != nil {
			t.Fatal(err)
		}
		if result.Total == 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("old entry not pruned")
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("pruneAuditLog did not stop")
	}
}
