package dataset

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"math"
	"math/rand/v2"
	"sort"
)

// Dataset is an immutable, ordered collection of delay records.
// Accessors hand out copies so no caller can mutate the loaded data.
type Dataset struct {
	records []DelayRecord
	source  string
	skipped int
}

// New builds a Dataset from records. The slice is copied.
func New(records []DelayRecord) *Dataset {
	cp := make([]DelayRecord, len(records))
	copy(cp, records)
	return &Dataset{records: cp}
}

// Len returns the number of records
func (d *Dataset) Len() int {
	return len(d.records)
}

// At returns the i-th record
func (d *Dataset) At(i int) DelayRecord {
	return d.records[i]
}

// Records returns a copy of all records
func (d *Dataset) Records() []DelayRecord {
	cp := make([]DelayRecord, len(d.records))
	copy(cp, d.records)
	return cp
}

// Source is the path the dataset was loaded from ("" for in-memory data)
func (d *Dataset) Source() string {
	return d.source
}

// Fingerprint is a SHA-256 over the ordered records. Two datasets with the
// same fingerprint hold the same records in the same order.
func (d *Dataset) Fingerprint() string {
	h := sha256.New()
	var buf [8]byte
	for _, r := range d.records {
		h.Write([]byte(r.Incident))
		h.Write([]byte{0, byte(r.Day)})
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(r.MinGap))
		h.Write(buf[:])
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(r.MinDelay))
		h.Write(buf[:])
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Skipped is the number of input rows dropped while loading
func (d *Dataset) Skipped() int {
	return d.skipped
}

// Delays returns the response column
func (d *Dataset) Delays() []float64 {
	out := make([]float64, len(d.records))
	for i, r := range d.records {
		out[i] = r.MinDelay
	}
	return out
}

// Gaps returns the min_gap column
func (d *Dataset) Gaps() []float64 {
	out := make([]float64, len(d.records))
	for i, r := range d.records {
		out[i] = r.MinGap
	}
	return out
}

// Incidents returns the distinct incident categories present, sorted
func (d *Dataset) Incidents() []string {
	seen := make(map[string]bool)
	for _, r := range d.records {
		seen[r.Incident] = true
	}
	out := make([]string, 0, len(seen))
	for inc := range seen {
		out = append(out, inc)
	}
	sort.Strings(out)
	return out
}

// Days returns the distinct days present in Monday…Sunday order
func (d *Dataset) Days() []Day {
	var seen [7]bool
	for _, r := range d.records {
		seen[r.Day] = true
	}
	var out []Day
	for _, day := range AllDays() {
		if seen[day] {
			out = append(out, day)
		}
	}
	return out
}

// Subsample draws n records without replacement using a PCG source seeded
// with seed. Record order in the result follows the original order.
// A dataset with n or fewer records is returned as is.
func (d *Dataset) Subsample(n int, seed uint64) *Dataset {
	if n <= 0 || n >= len(d.records) {
		return d
	}

	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	picked := rng.Perm(len(d.records))[:n]
	sort.Ints(picked)

	records := make([]DelayRecord, n)
	for i, idx := range picked {
		records[i] = d.records[idx]
	}
	return &Dataset{records: records, source: d.source, skipped: d.skipped}
}
