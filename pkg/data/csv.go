package data

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/algomatic/go-backtest/pkg/types"
)

var csvHeader = []string{"timestamp", "open", "high", "low", "close", "volume"}

// WriteCSV writes bars with a header row, timestamps in RFC3339.
func WriteCSV(w io.Writer, bars []types.Bar) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("writing csv header: %w", err)
	}
	for _, b := range bars {
		row := []string{
			b.Timestamp.Format(time.RFC3339),
			strconv.FormatFloat(b.Open, 'f', -1, 64),
			strconv.FormatFloat(b.High, 'f', -1, 64),
			strconv.FormatFloat(b.Low, 'f', -1, 64),
			strconv.FormatFloat(b.Close, 'f', -1, 64),
			strconv.FormatFloat(b.Volume, 'f', -1, 64),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("writing csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadCSV parses bars written by WriteCSV and validates their integrity.
func ReadCSV(r io.Reader) ([]types.Bar, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(csvHeader)
	rows, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading csv: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: empty csv", types.ErrDataIntegrity)
	}
	bars := make([]types.Bar, 0, len(rows)-1)
	for i, row := range rows[1:] {
		ts, err := time.Parse(time.RFC3339, row[0])
		if err != nil {
			return nil, fmt.Errorf("%w: row %d timestamp %q", types.ErrDataIntegrity, i+1, row[0])
		}
		vals := make([]float64, 5)
		for k := 0; k < 5; k++ {
			v, err := strconv.ParseFloat(row[k+1], 64)
			if err != nil {
				return nil, fmt.Errorf("%w: row %d field %s: %v", types.ErrDataIntegrity, i+1, csvHeader[k+1], err)
			}
			vals[k] = v
		}
		bars = append(bars, types.Bar{
			Timestamp: ts,
			Open:      vals[0],
			High:      vals[1],
			Low:       vals[2],
			Close:     vals[3],
			Volume:    vals[4],
		})
	}
	if err := types.ValidateBars(bars); err != nil {
		return nil, err
	}
	return bars, nil
}

// SaveCSVFile writes bars to path atomically via a temp file rename.
func SaveCSVFile(path string, bars []types.Bar) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".bars-*.csv")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if err := WriteCSV(tmp, bars); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// LoadCSVFile reads a bar file written by SaveCSVFile.
func LoadCSVFile(path string) ([]types.Bar, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadCSV(f)
}
