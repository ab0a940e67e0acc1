// Package importer parses external open-access datasets into records the
// engine can process.
package importer

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"github.com/openaccesstools/oar/internal/engine"
	"github.com/openaccesstools/oar/internal/match"
	"github.com/openaccesstools/oar/internal/registry"
)

// FlexibleNumber can unmarshal from string, number or null JSON values.
// External datasets are inconsistent about quoting numeric fields.
type FlexibleNumber string

func (f *FlexibleNumber) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*f = ""
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = FlexibleNumber(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err == nil {
		*f = FlexibleNumber(n.String())
		return nil
	}

	return fmt.Errorf("cannot unmarshal %s into FlexibleNumber", string(data))
}

func (f FlexibleNumber) String() string {
	return string(f)
}

// Float parses the value as a float pointer, nil when absent.
func (f FlexibleNumber) Float() (*float64, error) {
	if f == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(string(f), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid number: %s", string(f))
	}
	return &v, nil
}

// Int parses the value as an int pointer, nil when absent. Values such as
// "12.0" are accepted when they carry no fractional part.
func (f FlexibleNumber) Int() (*int, error) {
	if f == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(string(f), 64)
	if err != nil || v != math.Trunc(v) {
		return nil, fmt.Errorf("invalid integer: %s", string(f))
	}
	i := int(v)
	return &i, nil
}

// Entry is one row of an external dataset: an entity description plus the
// policies the dataset states for it.
type Entry struct {
	Name      string `json:"name"`
	Type      string `json:"type"`
	ISSN      string `json:"issn"`
	EISSN     string `json:"eissn"`
	Publisher string `json:"publisher"`
	URL       string `json:"url"`
	Source    int64  `json:"source"`

	OaStatus string       `json:"oa_status"`
	Gold     *GoldEntry   `json:"gold"`
	Green    []GreenEntry `json:"green"`
}

// GoldEntry carries article-processing-charge terms.
type GoldEntry struct {
	ApcCurrency    string         `json:"apc_currency"`
	ApcValueMin    FlexibleNumber `json:"apc_value_min"`
	ApcValueMax    FlexibleNumber `json:"apc_value_max"`
	LicenceOptions []string       `json:"licence_options"`
	DefaultLicence string         `json:"default_licence"`
	Verbatim       string         `json:"verbatim"`
}

// GreenEntry carries self-archiving terms for one version/outlet
// combination.
type GreenEntry struct {
	Outlets        []string       `json:"outlet"`
	Versions       []string       `json:"version"`
	DepositAllowed bool           `json:"deposit_allowed"`
	EmbargoMonths  FlexibleNumber `json:"embargo_months"`
	Licence        string         `json:"licence"`
	Verbatim       string         `json:"verbatim"`
}

// ParseRecords parses a dataset export and returns engine records. The
// input is either a JSON array of entries or JSON Lines with one entry per
// line. Entries that cannot be converted are reported as errors without
// aborting the rest of the file.
func ParseRecords(data []byte) ([]engine.ImportRecord, []error) {
	entries, err := decode(data)
	if err != nil {
		return nil, []error{err}
	}

	var recs []engine.ImportRecord
	var errs []error

	for i, entry := range entries {
		rec, err := entryToRecord(entry)
		if err != nil {
			errs = append(errs, fmt.Errorf("entry %d (%s): %w", i+1, entry.Name, err))
			continue
		}
		recs = append(recs, rec)
	}

	return recs, errs
}

// decode handles both supported layouts.
func decode(data []byte) ([]Entry, error) {
	trimmed := bytes.TrimLeft(data, " \t\r\n")
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var entries []Entry
		if err := json.Unmarshal(data, &entries); err != nil {
			return nil, fmt.Errorf("parsing dataset JSON: %w", err)
		}
		return entries, nil
	}

	var entries []Entry
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		var entry Entry
		if err := json.Unmarshal(raw, &entry); err != nil {
			return nil, fmt.Errorf("parsing dataset line %d: %w", line, err)
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading dataset: %w", err)
	}
	return entries, nil
}

// entryToRecord converts one dataset entry to an engine record. The
// candidate constructor drops malformed identifiers and URLs; an empty
// name fails the entry.
func entryToRecord(entry Entry) (engine.ImportRecord, error) {
	typ := registry.NodeType(entry.Type)
	if entry.Type == "" {
		typ = registry.Journal
	}
	cand, err := match.NewCandidate(entry.Name, typ, entry.ISSN, entry.EISSN, entry.Publisher, entry.URL, entry.Source)
	if err != nil {
		return engine.ImportRecord{}, err
	}

	rec := engine.ImportRecord{Candidate: cand}

	if entry.OaStatus != "" {
		status := registry.OaStatusValue(entry.OaStatus)
		switch status {
		case registry.FullyOA, registry.Hybrid, registry.Subscription:
		default:
			return engine.ImportRecord{}, fmt.Errorf("unknown oa_status %q", entry.OaStatus)
		}
		rec.OaStatus = &registry.PolicyRecord{
			Kind:     registry.OaStatusKind,
			SourceID: entry.Source,
			OaStatus: status,
		}
	}

	if entry.Gold != nil {
		min, err := entry.Gold.ApcValueMin.Float()
		if err != nil {
			return engine.ImportRecord{}, fmt.Errorf("apc_value_min: %w", err)
		}
		max, err := entry.Gold.ApcValueMax.Float()
		if err != nil {
			return engine.ImportRecord{}, fmt.Errorf("apc_value_max: %w", err)
		}
		rec.Gold = &registry.PolicyRecord{
			Kind:           registry.GoldKind,
			SourceID:       entry.Source,
			Verbatim:       entry.Gold.Verbatim,
			ApcCurrency:    entry.Gold.ApcCurrency,
			ApcValueMin:    min,
			ApcValueMax:    max,
			LicenceOptions: entry.Gold.LicenceOptions,
			DefaultLicence: entry.Gold.DefaultLicence,
		}
	}

	for i, g := range entry.Green {
		embargo, err := g.EmbargoMonths.Int()
		if err != nil {
			return engine.ImportRecord{}, fmt.Errorf("green %d embargo_months: %w", i+1, err)
		}
		rec.Green = append(rec.Green, registry.PolicyRecord{
			Kind:           registry.GreenKind,
			SourceID:       entry.Source,
			Verbatim:       g.Verbatim,
			Outlets:        g.Outlets,
			Versions:       g.Versions,
			DepositAllowed: g.DepositAllowed,
			EmbargoMonths:  embargo,
			Licence:        g.Licence,
		})
	}

	return rec, nil
}
