package preflight

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"murmur/internal/testsupport"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckBridge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/health" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := testsupport.NewConfig(t, testsupport.WithBridgeURL(srv.URL))
	if result := CheckBridge(context.Background(), cfg); !result.Passed {
		t.Fatalf("expected pass, got: %s", result.Detail)
	}

	cfg.Bridge.URL = ""
	if result := CheckBridge(context.Background(), cfg); result.Passed || result.Detail != "missing url" {
		t.Fatalf("expected missing url failure, got %+v", result)
	}
}

func TestCheckBridge_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	cfg := testsupport.NewConfig(t, testsupport.WithBridgeURL(srv.URL))
	if result := CheckBridge(context.Background(), cfg); result.Passed {
		t.Fatal("expected failure on 502")
	}
}

func TestCheckTemplates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "templates.yaml")
	testsupport.WriteTemplates(t, path, "")
	if result := CheckTemplates(path); !result.Passed {
		t.Fatalf("expected pass, got %s", result.Detail)
	}

	testsupport.WriteFile(t, path, "templates: [")
	if result := CheckTemplates(path); result.Passed {
		t.Fatal("expected parse failure")
	}
}

type stubChecker struct{ err error }

func (s stubChecker) HealthCheck(context.Context) error { return s.err }

func TestCheckHealth(t *testing.T) {
	if result := CheckHealth(context.Background(), "ai", stubChecker{}); !result.Passed {
		t.Fatalf("expected pass, got %+v", result)
	}
	result := CheckHealth(context.Background(), "ai", stubChecker{err: context.DeadlineExceeded})
	if result.Passed || result.Detail != "health check timed out (service unresponsive)" {
		t.Fatalf("unexpected timeout result %+v", result)
	}
	result = CheckHealth(context.Background(), "ai", stubChecker{err: errors.New("401 unauthorized")})
	if result.Passed || result.Detail != "401 unauthorized" {
		t.Fatalf("unexpected error result %+v", result)
	}
}

func TestRunAll_NilConfig(t *testing.T) {
	if results := RunAll(context.Background(), nil); results != nil {
		t.Fatalf("expected nil results, got %v", results)
	}
}

func TestRunAll_SkipsComposerWhenDisabled(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	results := RunAll(context.Background(), cfg)
	if len(results) != 4 {
		t.Fatalf("expected 4 results, got %d", len(results))
	}
	for _, r := range results[:2] {
		if !r.Passed {
			t.Fatalf("expected %s to pass: %s", r.Name, r.Detail)
		}
	}
}
