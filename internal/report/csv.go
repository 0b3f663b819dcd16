package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
)

// WriteCSV writes s in wide format: a header row "step,<names...>" followed by
// one row per step. A series without a value at a step leaves its cell empty.
func WriteCSV(w io.Writer, s *Series) error {
	names := s.Names()
	cols := make([]map[int]float64, len(names))
	for i, name := range names {
		pts := s.Points(name)
		col := make(map[int]float64, len(pts))
		for _, p := range pts {
			col[p.Step] = p.Value
		}
		cols[i] = col
	}

	cw := csv.NewWriter(w)
	header := append([]string{"step"}, names...)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}

	row := make([]string, len(header))
	for _, step := range s.steps() {
		row[0] = strconv.Itoa(step)
		for i, col := range cols {
			if v, ok := col[step]; ok {
				row[i+1] = strconv.FormatFloat(v, 'g', -1, 64)
			} else {
				row[i+1] = ""
			}
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write csv row %d: %w", step, err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}
