package internal

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/starford/quire/internal/testutil"
	"github.com/starford/quire/internal/userdb"
)

func TestRun_RequiresConfig(t *testing.T) {
	if err := Run(context.Background()); err == nil {
		t.Fatal("expected error without config")
	}
	if err := RunMCP(context.Background()); err == nil {
		t.Fatal("expected error without config")
	}
}

func TestOpenPages_SeedsWelcome(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Storage.Path = filepath.Join(t.TempDir(), "nested", "data")

	store, err := openPages(context.Background(), cfg, testutil.Logger())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(cfg.Storage.Path, "welcome.md")); err != nil {
		t.Fatalf("welcome page missing: %v", err)
	}
	if _, err := store.Read(context.Background(), "welcome"); err != nil {
		t.Fatal(err)
	}

	cfg.Storage.Path = t.TempDir()
	cfg.Storage.SeedWelcome = false
	if _, err := openPages(context.Background(), cfg, testutil.Logger()); err != nil {
		t.Fatal(err)
	}
	entries, _ := os.ReadDir(cfg.Storage.Path)
	if len(entries) != 0 {
		t.Errorf("seed disabled but found %d entries", len(entries))
	}
}

func TestNewAuthService(t *testing.T) {
	ctx := context.Background()
	db, err := userdb.Open(filepath.Join(t.TempDir(), "users.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	cfg := NewDefaultConfig().Auth
	cfg.Mode = AuthModeJWT
	cfg.Password = "hunter22"

	svc, err := newAuthService(ctx, cfg, db, testutil.Logger())
	if err != nil {
		t.Fatal(err)
	}
	sess, err := svc.Login(ctx, "admin", "hunter22")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	user, err := svc.Verify(sess.Token)
	if err != nil || user != "admin" {
		t.Fatalf("verify = %q, %v", user, err)
	}
	if _, err := svc.Login(ctx, "admin", "wrong"); err == nil {
		t.Error("wrong password accepted")
	}
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

func TestRun_ServesAndStopsOnCancel(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.App.HTTP.Port = freePort(t)
	cfg.App.Version = "test"
	cfg.Storage.Path = t.TempDir()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, WithConfig(cfg), WithLogger(testutil.Logger()))
	}()

	url := fmt.Sprintf("http://127.0.0.1:%d/api/health", cfg.App.HTTP.Port)
	var resp *http.Response
	deadline := time.Now().Add(5 * time.Second)
	for {
		var err error
		resp, err = http.Get(url)
		if err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("server did not start: %v", err)
		}
		time.Sleep(20 * time.Millisecond)
	}
	var health struct {
		Status  string `json:"status"`
		Version string `json:"version"`
	}
	err := json.NewDecoder(resp.Body).Decode(&health)
	resp.Body.Close()
	if err != nil {
		t.Fatal(err)
	}
	if health.Version != "test" {
		t.Errorf("health = %+v", health)
	}
	if resp.Header.Get("X-Content-Type-Options") != "nosniff" {
		t.Error("security headers missing")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(15 * time.Second):
		t.Fatal("Run did not stop")
	}
}
