package report

import (
	"bytes"
	"fmt"
	"io"

	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/source"
	"github.com/xitongsys/parquet-go/writer"
)

// seriesRecord is one long-format row of a Parquet export.
type seriesRecord struct {
	RunID string  `parquet:"name=run_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	Step  int64   `parquet:"name=step, type=INT64"`
	Name  string  `parquet:"name=name, type=BYTE_ARRAY, convertedtype=UTF8"`
	Value float64 `parquet:"name=value, type=DOUBLE"`
}

type memFile struct {
	buffer *bytes.Buffer
}

func newMemFile() *memFile {
	return &memFile{buffer: &bytes.Buffer{}}
}

func (m *memFile) Create(string) (source.ParquetFile, error) { return m, nil }
func (m *memFile) Open(string) (source.ParquetFile, error)   { return m, nil }
func (m *memFile) Seek(int64, int) (int64, error)            { return int64(m.buffer.Len()), nil }
func (m *memFile) Read([]byte) (int, error)                  { return 0, io.EOF }
func (m *memFile) Write(b []byte) (int, error)               { return m.buffer.Write(b) }
func (m *memFile) Close() error                              { return nil }

// WriteParquet writes s to w as snappy-compressed Parquet, one row per
// (run, step, series) observation.
func WriteParquet(w io.Writer, runID string, s *Series) error {
	mf := newMemFile()
	pw, err := writer.NewParquetWriter(mf, new(seriesRecord), 1)
	if err != nil {
		return fmt.Errorf("create parquet writer: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for _, name := range s.Names() {
		for _, p := range s.Points(name) {
			rec := seriesRecord{RunID: runID, Step: int64(p.Step), Name: name, Value: p.Value}
			if err := pw.Write(rec); err != nil {
				return fmt.Errorf("write parquet row %s@%d: %w", name, p.Step, err)
			}
		}
	}
	if err := pw.WriteStop(); err != nil {
		return fmt.Errorf("finish parquet: %w", err)
	}

	if _, err := w.Write(mf.buffer.Bytes()); err != nil {
		return fmt.Errorf("write parquet output: %w", err)
	}
	return nil
}
