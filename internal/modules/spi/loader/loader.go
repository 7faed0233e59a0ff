// Package loader reads the SPI station dataset from CSV.
package loader

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"spi-dashboard/internal/modules/spi/types"
)

var requiredColumns = []string{
	types.ColCode, types.ColStationID, types.ColStationName, types.ColAltitude,
	types.ColLatitude, types.ColLongitude, types.ColTime, types.ColSPI,
}

// LoadFile opens path and parses it with Parse.
func LoadFile(path string) ([]types.Reading, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()

	readings, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return readings, nil
}

// Parse reads a CSV with a header row. Columns are matched by name,
// case-insensitively; JMD_code is optional and unknown columns are ignored.
// Empty SPI and Altitude_m cells become nil.
func Parse(r io.Reader) ([]types.Reading, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, errors.New("missing header row")
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	idx, err := indexHeader(header)
	if err != nil {
		return nil, err
	}
	cr.FieldsPerRecord = len(header)

	var out []types.Reading
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		line, _ := cr.FieldPos(0)
		reading, err := parseRecord(rec, idx)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		out = append(out, reading)
	}
	return out, nil
}

func indexHeader(header []string) (map[string]int, error) {
	idx := make(map[string]int, len(header))
	for i, h := range header {
		if i == 0 {
			h = strings.TrimPrefix(h, "\ufeff")
		}
		for _, col := range types.Columns {
			if strings.EqualFold(strings.TrimSpace(h), col) {
				idx[col] = i
			}
		}
	}
	var missing []string
	for _, col := range requiredColumns {
		if _, ok := idx[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required columns: %s", strings.Join(missing, ", "))
	}
	return idx, nil
}

func parseRecord(rec []string, idx map[string]int) (types.Reading, error) {
	get := func(col string) string {
		i, ok := idx[col]
		if !ok {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	r := types.Reading{
		Code:        get(types.ColCode),
		StationID:   get(types.ColStationID),
		JMDCode:     get(types.ColJMDCode),
		StationName: get(types.ColStationName),
		Time:        get(types.ColTime),
	}

	var err error
	if r.Latitude, err = parseFloat(types.ColLatitude, get(types.ColLatitude)); err != nil {
		return r, err
	}
	if r.Longitude, err = parseFloat(types.ColLongitude, get(types.ColLongitude)); err != nil {
		return r, err
	}
	if r.AltitudeM, err = parseOptionalFloat(types.ColAltitude, get(types.ColAltitude)); err != nil {
		return r, err
	}
	if r.SPI, err = parseOptionalFloat(types.ColSPI, get(types.ColSPI)); err != nil {
		return r, err
	}
	return r, nil
}

func parseFloat(col, s string) (float64, error) {
	if s == "" {
		return 0, fmt.Errorf("%s is empty", col)
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q", col, s)
	}
	return v, nil
}

func parseOptionalFloat(col, s string) (*float64, error) {
	if s == "" || strings.EqualFold(s, "nan") {
		return nil, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s %q", col, s)
	}
	return &v, nil
}
