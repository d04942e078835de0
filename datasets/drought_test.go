package datasets

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

// writeCSV writes a CSV file with the given header and rows to path.
func writeCSV(t *testing.T, path, header string, rows []string) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create csv %s: %v", path, err)
	}
	defer f.Close()

	if _, err := f.WriteString(header + "\n"); err != nil {
		t.Fatalf("failed to write header: %v", err)
	}
	for _, r := range rows {
		if _, err := f.WriteString(r + "\n"); err != nil {
			t.Fatalf("failed to write row: %v", err)
		}
	}
}

const droughtHeader = "HUC8,Year,Month,PPT,TMAX,USDM"

func TestLoad_FilterAndSort(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, "drought.csv")
	// Rows deliberately out of order and with one row outside the year range.
	rows := []string{
		"10190005,2013,2,30.0,9.5,1.0",
		"10190004,2012,1,55.1,10.2,0.0",
		"10190005,2012,12,20.5,2.0,2.0",
		"10190004,2011,6,80.0,25.0,0.0", // filtered out
		"10190004,2012,2,48.9,12.6,1.0",
	}
	writeCSV(t, path, droughtHeader, rows)

	ds, err := Load(path, 2012, 2019)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got := ds.Len(); got != 4 {
		t.Fatalf("expected 4 retained rows, got %d", got)
	}

	// Sorted by (HUC8, Year, Month) ascending.
	want := []struct {
		huc8  string
		year  int
		month int
	}{
		{"10190004", 2012, 1},
		{"10190004", 2012, 2},
		{"10190005", 2012, 12},
		{"10190005", 2013, 2},
	}
	for i, w := range want {
		obs, err := ds.Row(i)
		if err != nil {
			t.Fatalf("Row(%d) error: %v", i, err)
		}
		if obs.HUC8 != w.huc8 || obs.Year != w.year || obs.Month != w.month {
			t.Fatalf("row %d: got (%s, %d, %d), want (%s, %d, %d)",
				i, obs.HUC8, obs.Year, obs.Month, w.huc8, w.year, w.month)
		}
	}

	first, _ := ds.Row(0)
	if first.PPT != 55.1 || first.TMAX != 10.2 || first.USDM != 0.0 {
		t.Fatalf("row 0 values wrong: %+v", first)
	}

	sheds := ds.Watersheds()
	if len(sheds) != 2 || sheds[0] != "10190004" || sheds[1] != "10190005" {
		t.Fatalf("unexpected watersheds: %v", sheds)
	}
}

func TestLoad_MissingColumns(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, "bad.csv")
	// Header missing Month and USDM.
	writeCSV(t, path, "HUC8,Year,PPT,TMAX", []string{"10190004,2012,55.1,10.2"})

	_, err := Load(path, 2012, 2019)
	if err == nil {
		t.Fatalf("expected error for missing columns, got nil")
	}
	var schemaErr *SchemaError
	if !errors.As(err, &schemaErr) {
		t.Fatalf("expected *SchemaError, got %T: %v", err, err)
	}
	if len(schemaErr.Missing) != 2 {
		t.Fatalf("expected 2 missing columns, got %v", schemaErr.Missing)
	}
}

func TestLoad_EmptyYearRange(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, "drought.csv")
	writeCSV(t, path, droughtHeader, []string{
		"10190004,2012,1,55.1,10.2,0.0",
		"10190004,2012,2,48.9,12.6,1.0",
	})

	ds, err := Load(path, 2030, 2031)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if ds.Len() != 0 {
		t.Fatalf("expected no rows for an empty year range, got %d", ds.Len())
	}
}

func TestLoad_NonNumericDriver(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, "drought.csv")
	writeCSV(t, path, droughtHeader, []string{
		"10190004,2012,1,not-a-number,10.2,0.0",
	})

	if _, err := Load(path, 2012, 2019); err == nil {
		t.Fatalf("expected parse error for non-numeric driver, got nil")
	}
}

func TestLoad_HeaderCaseInsensitive(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, "drought.csv")
	writeCSV(t, path, "huc8,year,month,ppt,tmax,usdm", []string{
		"10190004,2012,1,55.1,10.2,0.0",
	})

	ds, err := Load(path, 2012, 2019)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if ds.Len() != 1 {
		t.Fatalf("expected 1 row, got %d", ds.Len())
	}
}
