package datasets

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// This file provides the drought observation table that feeds the feature
// engineering stage. The CSV is read eagerly: the whole run is a single
// pass over an in-memory table, so there is nothing to gain from lazy
// row access here.
//
// Expected columns (case-insensitive): HUC8, Year, Month, PPT, TMAX, USDM.
// HUC8 is the watershed grouping key; USDM is the regression target.

// RequiredColumns lists the columns every input file must carry.
var RequiredColumns = []string{"huc8", "year", "month", "ppt", "tmax", "usdm"}

// Observation is one row of the drought table: the drivers and the USDM
// severity index for a single watershed and calendar month.
type Observation struct {
	HUC8  string
	Year  int
	Month int
	PPT   float64
	TMAX  float64
	USDM  float64
}

// SchemaError reports required columns missing from the input header.
// It is returned before any row is parsed.
type SchemaError struct {
	Missing []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("input schema missing required columns: %s", strings.Join(e.Missing, ", "))
}

// DroughtDataset holds the retained observations, sorted by
// (HUC8, Year, Month) ascending. The sort order is load-bearing: lag and
// rolling features downstream are order-dependent within each watershed.
type DroughtDataset struct {
	Path    string
	YearMin int
	YearMax int

	// Column indices discovered from the header
	colIndex map[string]int

	obs []Observation
}

// Load reads the CSV at path, keeps rows with Year in the closed interval
// [yearMin, yearMax], and sorts them by (HUC8, Year, Month).
func Load(path string, yearMin, yearMax int) (*DroughtDataset, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open input CSV %s", path)
	}
	defer file.Close()

	ds := &DroughtDataset{
		Path:    path,
		YearMin: yearMin,
		YearMax: yearMax,
	}
	if err := ds.readAll(file); err != nil {
		return nil, err
	}

	sort.Slice(ds.obs, func(i, j int) bool {
		a, b := ds.obs[i], ds.obs[j]
		if a.HUC8 != b.HUC8 {
			return a.HUC8 < b.HUC8
		}
		if a.Year != b.Year {
			return a.Year < b.Year
		}
		return a.Month < b.Month
	})

	return ds, nil
}

// readAll parses the header, validates the schema and loads the year-filtered rows.
func (d *DroughtDataset) readAll(r io.Reader) error {
	reader := csv.NewReader(r)
	header, err := reader.Read()
	if err != nil {
		return errors.Wrap(err, "read header")
	}

	d.colIndex = make(map[string]int)
	for i, col := range header {
		d.colIndex[strings.TrimSpace(strings.ToLower(col))] = i
	}

	var missing []string
	for _, col := range RequiredColumns {
		if _, ok := d.colIndex[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return &SchemaError{Missing: missing}
	}

	rowIdx := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return errors.Wrapf(err, "read row %d", rowIdx)
		}

		obs, err := d.parseRow(record)
		if err != nil {
			return errors.Wrapf(err, "parse row %d", rowIdx)
		}
		rowIdx++

		if obs.Year < d.YearMin || obs.Year > d.YearMax {
			continue
		}
		d.obs = append(d.obs, obs)
	}

	return nil
}

func (d *DroughtDataset) parseRow(record []string) (Observation, error) {
	var obs Observation
	obs.HUC8 = strings.TrimSpace(record[d.colIndex["huc8"]])

	year, err := parseInt(record[d.colIndex["year"]])
	if err != nil {
		return obs, errors.Wrap(err, "parse year")
	}
	obs.Year = year

	month, err := parseInt(record[d.colIndex["month"]])
	if err != nil {
		return obs, errors.Wrap(err, "parse month")
	}
	obs.Month = month

	for _, f := range []struct {
		col string
		dst *float64
	}{
		{"ppt", &obs.PPT},
		{"tmax", &obs.TMAX},
		{"usdm", &obs.USDM},
	} {
		v, err := parseFloat(record[d.colIndex[f.col]])
		if err != nil {
			return obs, errors.Wrapf(err, "parse %s", f.col)
		}
		*f.dst = v
	}

	return obs, nil
}

// Len returns the number of retained observations.
func (d *DroughtDataset) Len() int {
	return len(d.obs)
}

// Row returns the observation at index i in sorted order.
func (d *DroughtDataset) Row(i int) (Observation, error) {
	if i < 0 || i >= len(d.obs) {
		return Observation{}, fmt.Errorf("index %d out of range [0, %d)", i, len(d.obs))
	}
	return d.obs[i], nil
}

// Observations returns the full retained, sorted table.
func (d *DroughtDataset) Observations() []Observation {
	return d.obs
}

// Watersheds returns the distinct HUC8 keys in sorted order.
func (d *DroughtDataset) Watersheds() []string {
	var keys []string
	for i, o := range d.obs {
		if i == 0 || o.HUC8 != d.obs[i-1].HUC8 {
			keys = append(keys, o.HUC8)
		}
	}
	return keys
}
