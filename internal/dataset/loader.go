package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/ttc-bus-delays/busdelay/internal/logging"
)

// RequiredColumns are the CSV columns the loader needs
var RequiredColumns = []string{"incident", "day", "min_gap", "min_delay"}

// LoadError reports a dataset that could not be loaded
type LoadError struct {
	Path   string
	Reason string
	Err    error
}

func (e *LoadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("load %s: %s: %v", e.Path, e.Reason, e.Err)
	}
	return fmt.Sprintf("load %s: %s", e.Path, e.Reason)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// Load reads the cleaned delay CSV at path
func Load(path string) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &LoadError{Path: path, Reason: "failed to open file", Err: err}
	}
	defer f.Close()

	ds, err := Read(f)
	if err != nil {
		var le *LoadError
		if errors.As(err, &le) {
			le.Path = path
			return nil, le
		}
		return nil, &LoadError{Path: path, Reason: "failed to read file", Err: err}
	}
	ds.source = path

	logging.L().Infof("Loader: %d records from %s (%d rows skipped)", ds.Len(), path, ds.Skipped())
	return ds, nil
}

// Read parses delay records from CSV. The first row must be a header naming
// at least the required columns; other columns are ignored.
func Read(r io.Reader) (*Dataset, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, &LoadError{Reason: "file is empty"}
	}
	if err != nil {
		return nil, &LoadError{Reason: "failed to read header", Err: err}
	}

	idx := makeIndex(header)
	var missing []string
	for _, col := range RequiredColumns {
		if _, ok := idx[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, &LoadError{Reason: "missing required columns: " + strings.Join(missing, ", ")}
	}

	var records []DelayRecord
	skipped := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				skipped++
				continue
			}
			return nil, &LoadError{Reason: "failed to read row", Err: err}
		}

		rec, ok := parseRecord(record, idx)
		if !ok {
			skipped++
			continue
		}
		records = append(records, rec)
	}

	if skipped > 0 {
		logging.L().Warnf("Loader: skipped %d rows with missing or invalid fields", skipped)
	}
	if len(records) == 0 {
		return nil, &LoadError{Reason: "no valid records"}
	}

	return &Dataset{records: records, skipped: skipped}, nil
}

func parseRecord(record []string, idx map[string]int) (DelayRecord, bool) {
	incident := getField(record, idx, "incident")
	if incident == "" || strings.EqualFold(incident, "NA") {
		return DelayRecord{}, false
	}

	day, ok := ParseDay(getField(record, idx, "day"))
	if !ok {
		return DelayRecord{}, false
	}

	gap, err := strconv.ParseFloat(getField(record, idx, "min_gap"), 64)
	if err != nil || gap < 0 || !isFinite(gap) {
		return DelayRecord{}, false
	}

	delay, err := strconv.ParseFloat(getField(record, idx, "min_delay"), 64)
	if err != nil || !isFinite(delay) {
		return DelayRecord{}, false
	}

	return DelayRecord{
		Incident: incident,
		Day:      day,
		MinGap:   gap,
		MinDelay: delay,
	}, true
}

func makeIndex(header []string) map[string]int {
	idx := make(map[string]int)
	for i, h := range header {
		// Strip a UTF-8 BOM left by spreadsheet exports
		h = strings.TrimPrefix(h, "\ufeff")
		idx[strings.ToLower(strings.TrimSpace(h))] = i
	}
	return idx
}

func getField(record []string, idx map[string]int, field string) string {
	if i, ok := idx[field]; ok && i < len(record) {
		return strings.TrimSpace(record[i])
	}
	return ""
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
