package stats

import (
	"math"
	"testing"
)

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestMeanAndStdDev(t *testing.T) {
	xs := []float64{2, 4, 4, 4, 5, 5, 7, 9}
	m, ok := Mean(xs)
	if !ok || m != 5 {
		t.Fatalf("Mean = %v ok=%v, want 5", m, ok)
	}
	sd, ok := StdDev(xs)
	want := math.Sqrt(32.0 / 7.0)
	if !ok || !approx(sd, want) {
		t.Fatalf("StdDev = %v, want %v", sd, want)
	}

	if _, ok := Mean([]int{}); ok {
		t.Fatal("Mean of empty slice reported ok")
	}
	if _, ok := StdDev([]int{3}); ok {
		t.Fatal("StdDev of one sample reported ok")
	}
	if m, _ := Mean([]int{1, 2}); m != 1.5 {
		t.Fatalf("integer Mean = %v, want 1.5", m)
	}
}

func TestPearson(t *testing.T) {
	r, ok := Pearson([]float64{1, 2, 3}, []float64{2, 4, 6})
	if !ok || r != 1 {
		t.Fatalf("Pearson = %v ok=%v, want 1", r, ok)
	}
	r, ok = Pearson([]float64{1, 2, 3}, []float64{3, 2, 1})
	if !ok || !approx(r, -1) {
		t.Fatalf("Pearson = %v, want -1", r)
	}
	if _, ok := Pearson([]float64{1, 1, 1}, []float64{1, 2, 3}); ok {
		t.Fatal("zero-variance input reported ok")
	}
	if _, ok := Pearson([]float64{1, 2}, []float64{1}); ok {
		t.Fatal("length mismatch reported ok")
	}
}

func TestMedian(t *testing.T) {
	m, ok := Median([]float64{5, 1, 3, 2})
	if !ok || m != 3 {
		t.Fatalf("Median = %v, want 3", m)
	}
	if _, ok := Median(nil); ok {
		t.Fatal("Median of nil reported ok")
	}
}

func TestLogReturns(t *testing.T) {
	got := LogReturns([]float64{110, 100, 100})
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if !approx(got[0], math.Log(1.1)) || got[1] != 0 {
		t.Fatalf("LogReturns = %v", got)
	}
	if LogReturns([]float64{1}) != nil {
		t.Fatal("expected nil for a single price")
	}
}
