package persistence

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/talgya/gossip-market/internal/report"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "results.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestRunLifecycle(t *testing.T) {
	db := openTestDB(t)
	started := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	if err := db.SaveRun(Run{ID: "a", Seed: 7, Repetition: 0, Config: `{"x":1}`, StartedAt: started}); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}
	if err := db.SaveRun(Run{ID: "b", Seed: 8, Repetition: 1, Config: `{}`, StartedAt: started.Add(time.Minute)}); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}
	if err := db.FinishRun("a", 500, "", started.Add(time.Second)); err != nil {
		t.Fatalf("FinishRun: %v", err)
	}
	if err := db.FinishRun("missing", 1, "", started); err == nil {
		t.Error("FinishRun accepted an unknown run")
	}

	runs, err := db.Runs()
	if err != nil {
		t.Fatalf("Runs: %v", err)
	}
	if len(runs) != 2 || runs[0].ID != "b" || runs[1].ID != "a" {
		t.Fatalf("runs = %+v", runs)
	}
	a := runs[1]
	if a.Seed != 7 || a.Steps != 500 || a.Config != `{"x":1}` || !a.StartedAt.Equal(started) {
		t.Errorf("run a = %+v", a)
	}
	if !a.FinishedAt.Equal(started.Add(time.Second)) {
		t.Errorf("finished at %v", a.FinishedAt)
	}
	if !runs[0].FinishedAt.IsZero() {
		t.Errorf("unfinished run has finish time %v", runs[0].FinishedAt)
	}
}

func TestSeriesRoundTrip(t *testing.T) {
	db := openTestDB(t)
	if err := db.SaveRun(Run{ID: "r", Config: "{}", StartedAt: time.Now()}); err != nil {
		t.Fatal(err)
	}

	s := report.NewSeries()
	for step := 0; step < 50; step++ {
		s.Report(step, "price[0]", 100+float64(step)/10)
		s.Report(step, "total_cash", 3000)
	}
	if err := db.SaveSeries("r", s); err != nil {
		t.Fatalf("SaveSeries: %v", err)
	}
	// Saving again replaces rather than duplicates.
	if err := db.SaveSeries("r", s); err != nil {
		t.Fatalf("SaveSeries again: %v", err)
	}

	pts, err := db.LoadSeries("r", "price[0]")
	if err != nil {
		t.Fatalf("LoadSeries: %v", err)
	}
	if len(pts) != 50 || pts[0].Step != 0 || pts[49].Step != 49 || pts[49].Value != s.Points("price[0]")[49].Value {
		t.Fatalf("loaded %d points, last %+v", len(pts), pts[len(pts)-1])
	}

	names, err := db.SeriesNames("r")
	if err != nil {
		t.Fatal(err)
	}
	if len(names) != 2 || names[0] != "price[0]" || names[1] != "total_cash" {
		t.Errorf("names = %v", names)
	}

	none, err := db.LoadSeries("r", "nope")
	if err != nil || len(none) != 0 {
		t.Errorf("missing series = %v, %v", none, err)
	}
}
