package file

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"

	"github.com/couchcryptid/climate-stats-etl/internal/domain"
)

// csvHeader is the column layout of the monthly report CSV.
var csvHeader = []string{
	"Country", "Year", "Month", "Avg_Temp", "Min_Temp", "Max_Temp", "Std_Dev",
	"Median_Temp", "Count", "Percentile_25", "Percentile_75", "Percentile_90", "Percentile_95",
}

// Writer writes each run as <dir>/<name>/<name>.csv and <name>.json.
// It implements pipeline.RunLoader.
type Writer struct {
	dir  string
	name string
}

// NewWriter creates a file sink rooted at dir. Only the last path element of
// name is used for the file names.
func NewWriter(dir, name string) *Writer {
	return &Writer{dir: dir, name: name}
}

// OutputDir returns the directory the writer creates.
func (w *Writer) OutputDir() string {
	return filepath.Join(w.dir, w.name)
}

// LoadRun writes the run's records as CSV and JSON.
func (w *Writer) LoadRun(_ context.Context, run domain.Run) error {
	dir := w.OutputDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	base := filepath.Base(w.name)

	if err := writeFile(filepath.Join(dir, base+".csv"), func(f io.Writer) error {
		return WriteCSV(f, run.Records)
	}); err != nil {
		return err
	}
	return writeFile(filepath.Join(dir, base+".json"), func(f io.Writer) error {
		return WriteJSON(f, run.Records)
	})
}

func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", filepath.Base(path), err)
	}
	if err := write(f); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return f.Close()
}

// WriteCSV writes records with a header row and temperatures to two decimals.
func WriteCSV(w io.Writer, records []domain.SummaryRecord) error {
	rows := make([][]string, 0, len(records)+1)
	rows = append(rows, csvHeader)
	for _, r := range records {
		rows = append(rows, []string{
			r.Country,
			strconv.Itoa(r.Year),
			strconv.Itoa(r.Month),
			formatTemp(r.AvgTemp),
			formatTemp(r.MinTemp),
			formatTemp(r.MaxTemp),
			formatTemp(r.StdDev),
			formatTemp(r.MedianTemp),
			strconv.Itoa(r.Count),
			formatTemp(r.Percentile25),
			formatTemp(r.Percentile75),
			formatTemp(r.Percentile90),
			formatTemp(r.Percentile95),
		})
	}

	if len(records) == 0 {
		// gota cannot build a frame without rows; emit the header alone.
		_, err := fmt.Fprintln(w, strings.Join(csvHeader, ","))
		return err
	}

	df := dataframe.LoadRecords(rows,
		dataframe.DetectTypes(false),
		dataframe.DefaultType(series.String),
		dataframe.NaNValues([]string{}),
	)
	if df.Err != nil {
		return df.Err
	}
	return df.WriteCSV(w)
}

// WriteJSON writes records as an indented JSON array.
func WriteJSON(w io.Writer, records []domain.SummaryRecord) error {
	if records == nil {
		records = []domain.SummaryRecord{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(records)
}

func formatTemp(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
