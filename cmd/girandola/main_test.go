package main

import (
	"bytes"
	"context"
	"errors"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mmynk/girandola/internal/api"
	"github.com/mmynk/girandola/internal/auth"
	"github.com/mmynk/girandola/internal/export"
	"github.com/mmynk/girandola/internal/middleware"
	"github.com/mmynk/girandola/internal/models"
	"github.com/mmynk/girandola/internal/service"
	"github.com/mmynk/girandola/internal/storage/sqlite"
)

func startServer(t *testing.T) (string, string) {
	t.Helper()

	store, err := sqlite.New(filepath.Join(t.TempDir(), "cli.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	jwtManager := auth.NewJWTManager([]byte("cli-test-session-key-0123456789ab"), time.Hour)
	states := auth.NewStateManager([]byte("cli-test-state-key-0123456789abcd"), time.Minute)
	server := httptest.NewServer(api.NewRouter(api.Deps{
		Store:      store,
		Markers:    service.NewMarkerService(store),
		Auth:       service.NewAuthService(store, nil, jwtManager, states),
		JWTManager: jwtManager,
		CookieName: "girandola_session",
		StaticDir:  t.TempDir(),
		Edge:       middleware.EdgeConfig{RateLimitDisabled: true},
	}))
	t.Cleanup(server.Close)

	user, err := store.UpsertUser(context.Background(), models.NewUser("cli@example.com", "Cli", ""))
	if err != nil {
		t.Fatalf("UpsertUser failed: %v", err)
	}
	token, err := jwtManager.Generate(user)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	return server.URL, token
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestDropListTopExport(t *testing.T) {
	serverURL, token := startServer(t)
	base := []string{"--server", serverURL, "--token", token}

	out, err := execute(t, append([]string{"drop", "--lat", "45.07", "--lng", "7.68", "--accuracy", "15"}, base...)...)
	if err == nil {
		t.Fatalf("inaccurate drop should fail, output: %s", out)
	}

	if out, err := execute(t, append([]string{"drop", "--lat", "45.07", "--lng", "7.68", "--accuracy", "8"}, base...)...); err != nil {
		t.Fatalf("drop failed: %v\n%s", err, out)
	}
	if out, err := execute(t, append([]string{"drop", "--pick", "--lat", "41.9", "--lng", "12.5"}, base...)...); err != nil {
		t.Fatalf("pick drop failed: %v\n%s", err, out)
	}

	out, err = execute(t, append([]string{"list"}, base...)...)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 3 || !strings.Contains(lines[1], "41.9") {
		t.Errorf("list output:\n%s", out)
	}

	out, err = execute(t, append([]string{"top"}, base...)...)
	if err != nil {
		t.Fatalf("top failed: %v", err)
	}
	if !strings.Contains(out, "Cli") || !strings.Contains(out, "2") {
		t.Errorf("top output:\n%s", out)
	}

	file := filepath.Join(t.TempDir(), export.DefaultFilename)
	if out, err := execute(t, append([]string{"export", "--out", file}, base...)...); err != nil {
		t.Fatalf("export failed: %v\n%s", err, out)
	}
	data, err := os.ReadFile(file)
	if err != nil {
		t.Fatalf("read export: %v", err)
	}
	csvLines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(csvLines) != 3 {
		t.Errorf("CSV has %d lines, want header + 2:\n%s", len(csvLines), data)
	}
}

func TestExportWithoutMarkers(t *testing.T) {
	serverURL, token := startServer(t)
	out, err := execute(t, "export", "--out", "-", "--server", serverURL, "--token", token)
	if err != nil {
		t.Fatalf("export failed: %v", err)
	}
	if !strings.Contains(out, "No data to export.") {
		t.Errorf("output = %q", out)
	}
}

func TestDropRequiresSession(t *testing.T) {
	serverURL, _ := startServer(t)
	out, err := execute(t, "drop", "--pick", "--lat", "1", "--lng", "2", "--server", serverURL)
	if err == nil || !strings.Contains(err.Error(), "sign in first") {
		t.Errorf("err = %v, output = %s", err, out)
	}
}

func TestDropRequiresAccuracyForGPS(t *testing.T) {
	_, err := execute(t, "drop", "--lat", "1", "--lng", "2", "--server", "http://127.0.0.1:1")
	if err == nil || !strings.Contains(err.Error(), "--accuracy") {
		t.Errorf("err = %v", err)
	}
}

func TestWhoami(t *testing.T) {
	serverURL, token := startServer(t)

	out, err := execute(t, "whoami", "--server", serverURL)
	if err != nil || !strings.Contains(out, "Not signed in.") {
		t.Errorf("anonymous whoami: err=%v out=%q", err, out)
	}
	out, err = execute(t, "whoami", "--server", serverURL, "--token", token)
	if err != nil || !strings.Contains(out, "cli@example.com") {
		t.Errorf("whoami: err=%v out=%q", err, out)
	}
}

func TestDropRejectsNonPositiveThreshold(t *testing.T) {
	for _, threshold := range []string{"0", "-3"} {
		_, err := execute(t, "drop", "--pick", "--lat", "1", "--lng", "2", "--threshold", threshold, "--server", "http://127.0.0.1:1")
		if err == nil || !strings.Contains(err.Error(), "--threshold") {
			t.Errorf("threshold %s: err = %v", threshold, err)
		}
	}
}

func TestWriteCSVFileRemovesFileOnFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), export.DefaultFilename)

	if err := writeCSVFile(path, nil); !errors.Is(err, export.ErrNoData) {
		t.Fatalf("writeCSVFile error = %v, want ErrNoData", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("partial export left on disk: stat err = %v", err)
	}

	markers := []models.Marker{{ID: "m1", Lat: 1, Lng: 2, OwnerEmail: "cli@example.com", CreatedAt: time.Now()}}
	if err := writeCSVFile(path, markers); err != nil {
		t.Fatalf("writeCSVFile failed: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("export missing: %v", err)
	}
}
