package file

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"

	"github.com/couchcryptid/climate-stats-etl/internal/domain"
)

// Required observation columns.
const (
	ColumnDate    = "date"
	ColumnCountry = "country_alpha2"
	ColumnTemp    = "temp_mean_c_approx"
)

// ErrSchema reports a source that lacks a required column.
var ErrSchema = errors.New("observation schema mismatch")

// Format is the on-disk encoding of an observation extract.
type Format int

const (
	FormatCSV Format = iota
	FormatJSON
)

// FormatFromPath infers the format from the file extension; anything that is
// not .json is read as CSV.
func FormatFromPath(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return FormatJSON
	}
	return FormatCSV
}

// Source serves a columnar observation extract held in memory.
// It implements pipeline.ObservationSource.
type Source struct {
	dates     []string
	countries []string
	temps     []float64
	pos       int
}

// OpenSource reads the extract at path.
func OpenSource(path string) (*Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open source: %w", err)
	}
	defer f.Close()

	return ReadSource(f, FormatFromPath(path))
}

// ReadSource loads an extract and checks that the required columns exist.
// Unparseable temperatures load as NaN and are dropped later by validation.
func ReadSource(r io.Reader, format Format) (*Source, error) {
	opts := []dataframe.LoadOption{
		dataframe.WithTypes(map[string]series.Type{
			ColumnDate:    series.String,
			ColumnCountry: series.String,
			ColumnTemp:    series.Float,
		}),
		// "NA" is Namibia, not a missing value.
		dataframe.NaNValues([]string{"", "NaN", "nan", "<nil>"}),
	}

	var df dataframe.DataFrame
	switch format {
	case FormatJSON:
		df = dataframe.ReadJSON(r, opts...)
	default:
		df = dataframe.ReadCSV(r, opts...)
	}
	if df.Err != nil {
		return nil, fmt.Errorf("read source: %w", df.Err)
	}

	names := df.Names()
	for _, col := range []string{ColumnDate, ColumnCountry, ColumnTemp} {
		if !slices.Contains(names, col) {
			return nil, fmt.Errorf("%w: missing column %q", ErrSchema, col)
		}
	}

	return &Source{
		dates:     df.Col(ColumnDate).Records(),
		countries: df.Col(ColumnCountry).Records(),
		temps:     df.Col(ColumnTemp).Float(),
	}, nil
}

// Len returns the number of rows in the extract.
func (s *Source) Len() int { return len(s.dates) }

// ExtractBatch returns the next batchSize rows, or an empty batch once all
// rows have been served.
func (s *Source) ExtractBatch(ctx context.Context, batchSize int) ([]domain.Observation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	end := min(s.pos+batchSize, len(s.dates))
	batch := make([]domain.Observation, 0, end-s.pos)
	for i := s.pos; i < end; i++ {
		batch = append(batch, domain.Observation{
			Date:    s.dates[i],
			Country: s.countries[i],
			TempC:   s.temps[i],
		})
	}
	s.pos = end
	return batch, nil
}
