package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jmylchreest/sitesift/internal/config"
	"github.com/jmylchreest/sitesift/internal/extract"
	"github.com/jmylchreest/sitesift/internal/http/mw"
	"github.com/jmylchreest/sitesift/internal/service"
)

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	root := newRootCmd()
	root.SetArgs(append([]string{"--env-file", ""}, args...))
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	err := root.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func TestRootCmd_Subcommands(t *testing.T) {
	root := newRootCmd()
	want := []string{"scrape", "extract", "cache", "runs", "check", "serve", "token", "version"}
	for _, name := range want {
		cmd, _, err := root.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Errorf("subcommand %q not registered", name)
		}
	}
}

func TestVersionCmd(t *testing.T) {
	out, _, err := execute(t, "version")
	if err != nil {
		t.Fatalf("version error = %v", err)
	}
	if !strings.HasPrefix(out, "sitesift ") {
		t.Errorf("output = %q, want sitesift prefix", out)
	}
}

func TestExtractCmd_Validation(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"no source", []string{"extract", "--instruction", "x"}, "a URL or --file is required"},
		{"no instruction", []string{"extract", "https://example.com"}, "--instruction is required"},
		{"blank instruction", []string{"extract", "https://example.com", "-i", "   "}, "--instruction is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := execute(t, tt.args...)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %v, want %q", err, tt.want)
			}
		})
	}
}

func TestExtractCmd_EmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.txt")
	if err := os.WriteFile(path, []byte("  \n"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, _, err := execute(t, "extract", "--file", path, "-i", "emails")
	if err == nil || !strings.Contains(err.Error(), "is empty") {
		t.Errorf("error = %v, want empty file error", err)
	}
}

func TestTokenCmd(t *testing.T) {
	t.Setenv("API_SECRET", "cli-test-secret")

	out, _, err := execute(t, "token", "--subject", "tester", "--ttl", "1h")
	if err != nil {
		t.Fatalf("token error = %v", err)
	}

	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("config.Load() error = %v", err)
	}
	claims, err := mw.ParseToken(cfg.JWTSigningKey, strings.TrimSpace(out))
	if err != nil {
		t.Fatalf("ParseToken() error = %v", err)
	}
	if claims.Subject != "tester" {
		t.Errorf("Subject = %q, want %q", claims.Subject, "tester")
	}
}

func TestTokenCmd_RequiresSecret(t *testing.T) {
	t.Setenv("API_SECRET", "")
	_, _, err := execute(t, "token")
	if err == nil || !strings.Contains(err.Error(), "API_SECRET") {
		t.Errorf("error = %v, want API_SECRET error", err)
	}
}

func TestCacheCmd(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("CACHE_DIR", dir)
	if err := os.WriteFile(filepath.Join(dir, strings.Repeat("a", 64)+".json"), []byte(`{"timestamp":"2000-01-01T00:00:00Z","cache_key":"`+strings.Repeat("a", 64)+`","result":"x"}`), 0o644); err != nil {
		t.Fatal(err)
	}

	out, _, err := execute(t, "cache", "stats")
	if err != nil {
		t.Fatalf("cache stats error = %v", err)
	}
	if !strings.Contains(out, "Entries:   1") {
		t.Errorf("stats output = %q", out)
	}

	out, _, err = execute(t, "cache", "purge")
	if err != nil {
		t.Fatalf("cache purge error = %v", err)
	}
	if !strings.Contains(out, "Removed 1 cache entries.") {
		t.Errorf("purge output = %q", out)
	}
}

func TestRunsCmd_EmptyHistory(t *testing.T) {
	t.Setenv("DATABASE_URL", ":memory:")
	out, _, err := execute(t, "runs", "list")
	if err != nil {
		t.Fatalf("runs list error = %v", err)
	}
	if !strings.Contains(out, "No runs recorded.") {
		t.Errorf("output = %q", out)
	}

	_, _, err = execute(t, "runs", "show", "01MISSING")
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Errorf("runs show error = %v, want not found", err)
	}
}

func TestLoadEnvFile(t *testing.T) {
	if err := loadEnvFile(filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Errorf("missing file error = %v, want nil", err)
	}

	path := filepath.Join(t.TempDir(), "test.env")
	if err := os.WriteFile(path, []byte("SITESIFT_TEST_VAR=from-file\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("SITESIFT_TEST_VAR", "")
	os.Unsetenv("SITESIFT_TEST_VAR")
	if err := loadEnvFile(path); err != nil {
		t.Fatalf("loadEnvFile() error = %v", err)
	}
	if got := os.Getenv("SITESIFT_TEST_VAR"); got != "from-file" {
		t.Errorf("SITESIFT_TEST_VAR = %q, want %q", got, "from-file")
	}
}

func TestPrintSummary(t *testing.T) {
	var buf bytes.Buffer
	printSummary(&buf, &service.ExtractOutput{
		RunID: "01RUN",
		Report: &extract.Report{
			Total:     3,
			Processed: 2,
			StoppedAt: 2,
			Elapsed:   time.Second,
		},
		ExportLocation: "/tmp/out.txt",
	})
	out := buf.String()
	for _, want := range []string{"Run 01RUN: 2/3 chunks", "Stopped at section 2", noResultsHint, "Exported to /tmp/out.txt"} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
}

func TestThousands(t *testing.T) {
	tests := []struct {
		n    int
		want string
	}{
		{0, "0"},
		{999, "999"},
		{1000, "1,000"},
		{1234567, "1,234,567"},
		{-12345, "-12,345"},
	}
	for _, tt := range tests {
		if got := thousands(tt.n); got != tt.want {
			t.Errorf("thousands(%d) = %q, want %q", tt.n, got, tt.want)
		}
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Errorf("truncate(short) = %q", got)
	}
	if got := truncate("héllo wörld", 6); got != "héllo…" {
		t.Errorf("truncate = %q, want %q", got, "héllo…")
	}
}
