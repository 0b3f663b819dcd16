// Package report collects named numeric series keyed by simulation step and
// writes them out as CSV or Parquet.
package report

import (
	"fmt"
	"sort"
	"sync"
)

// Series names recorded by the simulation. Per-market series are built with
// Indexed, e.g. Indexed(Price, 2) == "price[2]".
const (
	Price        = "price"
	Volatility   = "volatility"
	Volume       = "volume"
	TotalAssets  = "total_assets"
	MeanBelief   = "mean_belief"
	MedianWealth = "median_wealth"
	TotalCash    = "total_cash"
	FriendsMean  = "friends_mean"
)

// Indexed returns the per-market name of a series.
func Indexed(base string, market int) string {
	return fmt.Sprintf("%s[%d]", base, market)
}

// Reporter receives one value of a named series at a step.
type Reporter interface {
	Report(step int, name string, value float64)
}

// Point is one observation of a series.
type Point struct {
	Step  int     `json:"step"`
	Value float64 `json:"value"`
}

// Series is an in-memory Reporter. It is safe for concurrent use, so a
// query surface may read it while the simulation writes.
type Series struct {
	mu     sync.RWMutex
	names  []string // first-report order
	points map[string][]Point
}

// NewSeries returns an empty recorder.
func NewSeries() *Series {
	return &Series{points: make(map[string][]Point)}
}

// Report implements Reporter.
func (s *Series) Report(step int, name string, value float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.points[name]; !ok {
		s.names = append(s.names, name)
	}
	s.points[name] = append(s.points[name], Point{Step: step, Value: value})
}

// Names returns series names in the order they were first reported.
func (s *Series) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.names))
	copy(out, s.names)
	return out
}

// Points returns a copy of the named series, or nil if it does not exist.
func (s *Series) Points(name string) []Point {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pts, ok := s.points[name]
	if !ok {
		return nil
	}
	out := make([]Point, len(pts))
	copy(out, pts)
	return out
}

// Last returns the most recent point of the named series.
func (s *Series) Last(name string) (Point, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pts := s.points[name]
	if len(pts) == 0 {
		return Point{}, false
	}
	return pts[len(pts)-1], true
}

// Len returns the number of distinct series.
func (s *Series) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.names)
}

// steps returns every step seen in any series, ascending.
func (s *Series) steps() []int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[int]struct{})
	for _, pts := range s.points {
		for _, p := range pts {
			seen[p.Step] = struct{}{}
		}
	}
	out := make([]int, 0, len(seen))
	for st := range seen {
		out = append(out, st)
	}
	sort.Ints(out)
	return out
}

// Multi fans every report out to each of its reporters in order.
type Multi []Reporter

// Report implements Reporter.
func (m Multi) Report(step int, name string, value float64) {
	for _, r := range m {
		r.Report(step, name, value)
	}
}

// Discard drops every report.
var Discard Reporter = discard{}

type discard struct{}

func (discard) Report(int, string, float64) {}
