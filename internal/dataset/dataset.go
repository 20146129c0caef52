// internal/dataset/dataset.go
package dataset

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"github.com/apex/log"

	"meal-footprint/internal/metrics"
	"meal-footprint/internal/models"
)

const maxLineBytes = 1 << 20

var (
	// ErrDatasetUnreadable is returned when the dataset source cannot be opened or read.
	ErrDatasetUnreadable = errors.New("dataset unreadable")
	ErrInvalidLayout     = errors.New("invalid dataset layout")
)

// Layout describes where the metrics live in a dataset row.
type Layout struct {
	MinFields     int
	NameField     int
	CarbonField   int
	LandField     int
	NitrogenField int
	WaterField    int
}

// DefaultLayout matches the Clark et al. (2022) "Environmental impacts of food" export:
// kg CO2e, m2 land, g N and L water per kg of food.
var DefaultLayout = Layout{
	MinFields:     19,
	NameField:     0,
	CarbonField:   2,
	LandField:     6,
	NitrogenField: 10,
	WaterField:    18,
}

func (l Layout) Validate() error {
	fields := []int{l.NameField, l.CarbonField, l.LandField, l.NitrogenField, l.WaterField}
	for _, f := range fields {
		if f < 0 {
			return fmt.Errorf("%w: negative field index %d", ErrInvalidLayout, f)
		}
		if f >= l.MinFields {
			return fmt.Errorf("%w: field index %d outside minimum width %d", ErrInvalidLayout, f, l.MinFields)
		}
	}
	return nil
}

// Dataset maps food names to their reference entries. It is not modified
// after Load returns and may be read from multiple goroutines.
type Dataset struct {
	entries  map[string]*models.ReferenceEntry
	warnings []models.Warning
}

// Load reads a dataset file using DefaultLayout.
func Load(path string) (*Dataset, error) {
	return LoadWithLayout(path, DefaultLayout)
}

func LoadWithLayout(path string, layout Layout) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDatasetUnreadable, err)
	}
	defer f.Close()

	ds, err := Read(f, layout)
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"path":    path,
		"entries": ds.Len(),
		"skipped": len(ds.warnings),
	}).Info("Loaded reference dataset")
	return ds, nil
}

// Read parses comma-delimited rows from r, one physical line per row. The
// first line is a header and is always skipped. Malformed rows are skipped
// with a warning; only a read failure of the source itself is returned as an
// error.
func Read(r io.Reader, layout Layout) (*Dataset, error) {
	if err := layout.Validate(); err != nil {
		return nil, err
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	ds := &Dataset{entries: make(map[string]*models.ReferenceEntry)}
	line := 0

	for scanner.Scan() {
		line++
		text := scanner.Text()
		if line == 1 || strings.TrimSpace(text) == "" {
			continue
		}

		record, err := splitLine(text)
		if err != nil {
			ds.warn(line, "", fmt.Sprintf("unparseable row: %v", err))
			continue
		}
		if isBlank(record) {
			continue
		}
		if len(record) < layout.MinFields {
			ds.warn(line, record[0], fmt.Sprintf("row has %d fields, need at least %d", len(record), layout.MinFields))
			continue
		}

		entry, err := parseRow(record, layout)
		if err != nil {
			ds.warn(line, record[layout.NameField], err.Error())
			continue
		}
		ds.entries[entry.Name] = entry
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDatasetUnreadable, err)
	}

	metrics.DatasetEntries.Set(float64(len(ds.entries)))
	return ds, nil
}

// splitLine parses a single line as one CSV record. A quote left open
// cannot run past the end of the line.
func splitLine(text string) ([]string, error) {
	reader := csv.NewReader(strings.NewReader(text))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	record, err := reader.Read()
	if err != nil {
		var parseErr *csv.ParseError
		if errors.As(err, &parseErr) {
			return nil, parseErr.Err
		}
		return nil, err
	}
	return record, nil
}

// parseRow builds an entry from a record. Only leading whitespace is removed
// from the name; the rest of the field is the lookup key.
func parseRow(record []string, layout Layout) (*models.ReferenceEntry, error) {
	name := strings.TrimLeftFunc(record[layout.NameField], unicode.IsSpace)
	if strings.TrimSpace(name) == "" {
		return nil, errors.New("empty food name")
	}

	var values [4]float64
	for i, idx := range []int{layout.CarbonField, layout.WaterField, layout.LandField, layout.NitrogenField} {
		v, err := parseMetric(record[idx])
		if err != nil {
			return nil, fmt.Errorf("field %d: %w", idx, err)
		}
		values[i] = v
	}

	return models.NewReferenceEntry(name, values[0], values[1], values[2], values[3]), nil
}

func parseMetric(s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q", s)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("non-finite number %q", s)
	}
	return v, nil
}

func isBlank(record []string) bool {
	for _, field := range record {
		if strings.TrimSpace(field) != "" {
			return false
		}
	}
	return true
}

func (d *Dataset) warn(line int, subject, msg string) {
	w := models.Warning{
		Kind:    models.WarnMalformedRow,
		Subject: subject,
		Message: fmt.Sprintf("line %d: %s", line, msg),
	}
	d.warnings = append(d.warnings, w)
	metrics.DatasetRowsSkipped.Inc()
	log.WithFields(log.Fields{"line": line, "name": subject}).Warnf("Skipping dataset row: %s", msg)
}

// Lookup returns the entry stored under name. Matching is exact and case-sensitive.
func (d *Dataset) Lookup(name string) (*models.ReferenceEntry, bool) {
	e, ok := d.entries[name]
	return e, ok
}

func (d *Dataset) Len() int {
	return len(d.entries)
}

// Names returns the food names in sorted order.
func (d *Dataset) Names() []string {
	names := make([]string, 0, len(d.entries))
	for name := range d.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Warnings returns the rows skipped during load.
func (d *Dataset) Warnings() []models.Warning {
	return append([]models.Warning(nil), d.warnings...)
}
