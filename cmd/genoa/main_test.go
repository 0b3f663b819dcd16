package main

import (
	"bytes"
	"context"
	"encoding/csv"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"github.com/talgya/gossip-market/internal/config"
	"github.com/talgya/gossip-market/internal/persistence"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func smallPopulation(t *testing.T) {
	t.Setenv("GENOA_AGENT_COUNT", "40")
	t.Setenv("GENOA_FUNDAMENTALIST_COUNT", "4")
	t.Setenv("GENOA_MARKET_COUNT", "2")
}

func TestWriteConfigRoundTrip(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"genoa.yaml", "genoa.toml"} {
		path := filepath.Join(dir, name)
		if _, err := execute(t, "write-config", path); err != nil {
			t.Fatalf("write-config %s: %v", name, err)
		}
		cfg, err := config.Load(path)
		if err != nil {
			t.Fatalf("load %s: %v", name, err)
		}
		if cfg.Agent.AgentCount != config.Default().Agent.AgentCount {
			t.Errorf("%s: agent count %d", name, cfg.Agent.AgentCount)
		}
	}
}

func TestRunWritesResults(t *testing.T) {
	smallPopulation(t)
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "out", "series.csv")
	parquetPath := filepath.Join(dir, "series.parquet")
	dbPath := filepath.Join(dir, "results.db")

	out, err := execute(t, "--log-level", "warn", "run",
		"-n", "15", "-r", "2", "--seed", "7", "--report-every", "5",
		"--csv", csvPath, "--parquet", parquetPath, "--db", dbPath)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if strings.Count(out, "traded volume") != 2 {
		t.Errorf("expected one summary per repetition:\n%s", out)
	}

	for rep := 0; rep < 2; rep++ {
		f, err := os.Open(outputPath(csvPath, rep, 2))
		if err != nil {
			t.Fatalf("open csv: %v", err)
		}
		rows, err := csv.NewReader(f).ReadAll()
		f.Close()
		if err != nil {
			t.Fatalf("read csv: %v", err)
		}
		if len(rows) != 16 || rows[0][0] != "step" || rows[0][1] != "price[0]" {
			t.Errorf("rep %d: %d rows, header %v", rep, len(rows), rows[0])
		}

		info, err := os.Stat(outputPath(parquetPath, rep, 2))
		if err != nil || info.Size() == 0 {
			t.Errorf("rep %d: parquet missing: %v", rep, err)
		}
	}

	db, err := persistence.Open(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	runs, err := db.Runs()
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 2 {
		t.Fatalf("stored %d runs, want 2", len(runs))
	}
	seeds := map[int64]bool{}
	for _, r := range runs {
		seeds[r.Seed] = true
		if r.Steps != 15 || r.Halted != "" || r.FinishedAt.IsZero() {
			t.Errorf("run %+v", r)
		}
		pts, err := db.LoadSeries(r.ID, "total_cash")
		if err != nil || len(pts) != 15 {
			t.Errorf("run %s: %d total_cash points, %v", r.ID, len(pts), err)
		}
	}
	if !seeds[7] || !seeds[8] {
		t.Errorf("seeds = %v, want 7 and 8", seeds)
	}
}

func TestRunRejectsBadConfig(t *testing.T) {
	t.Setenv("GENOA_MARKET_COUNT", "0")
	if _, err := execute(t, "run", "-n", "1"); err == nil {
		t.Fatal("run accepted zero markets")
	}
}

func TestInvalidLogFlags(t *testing.T) {
	if _, err := execute(t, "--log-level", "loud", "write-config", filepath.Join(t.TempDir(), "x.yaml")); err == nil {
		t.Error("accepted an invalid log level")
	}
	if _, err := execute(t, "--log-format", "xml", "write-config", filepath.Join(t.TempDir(), "x.yaml")); err == nil {
		t.Error("accepted an invalid log format")
	}
}

func TestOutputPath(t *testing.T) {
	cases := []struct {
		path      string
		rep, reps int
		want      string
	}{
		{"out.csv", 0, 1, "out.csv"},
		{"out.csv", 2, 3, "out_2.csv"},
		{"dir/series", 1, 2, "dir/series_1"},
	}
	for _, c := range cases {
		if got := outputPath(c.path, c.rep, c.reps); got != c.want {
			t.Errorf("outputPath(%q, %d, %d) = %q, want %q", c.path, c.rep, c.reps, got, c.want)
		}
	}
}

func TestAPIRateLimitFlag(t *testing.T) {
	var opts runOptions
	cmd := &cobra.Command{}
	opts.bind(cmd)
	if err := cmd.ParseFlags([]string{"--listen", ":0", "--api-rate-limit", "1"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}

	s := newAPIServer(opts, nil)
	if s.RateLimit != 1 || s.Addr != ":0" {
		t.Fatalf("server = %+v", s)
	}
	h := s.Handler()
	limited := 0
	for i := 0; i < 5; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/status", nil))
		if rec.Code == http.StatusTooManyRequests {
			limited++
		}
	}
	if limited == 0 {
		t.Error("--api-rate-limit did not limit requests")
	}

	if _, err := execute(t, "run", "-n", "1", "--api-rate-limit", "-1"); err == nil {
		t.Error("accepted a negative API rate limit")
	}
}
