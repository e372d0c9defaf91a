// Package ingest reads voter files into validated model.Voter records.
package ingest

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Veraticus/redistrict-impact/internal/classification"
	"github.com/Veraticus/redistrict-impact/internal/common"
	"github.com/Veraticus/redistrict-impact/internal/model"
)

// Ingestion errors.
var (
	ErrMissingColumn = errors.New("missing required column")
	ErrInvalidRow    = errors.New("invalid voter row")
)

// DefaultChunkSize is the number of voters handed to the callback at once.
const DefaultChunkSize = 200_000

// Column names on the voter file.
const (
	ColVoterID    = "VUID"
	ColDOB        = "DOB"
	ColCounty     = "COUNTY"
	ColCity       = "RCITY"
	ColZip        = "RZIP"
	ColPrecinct   = "PCT"
	ColVotedEarly = "VOTED_EARLY"
)

// RequiredColumns must be present in every voter file header.
var RequiredColumns = []string{ColVoterID, ColCounty, ColPrecinct}

// districtColumns maps voter file district columns to their system.
// NEWCD/NEWSD/NEWHD carry the boundaries currently in force.
var districtColumns = map[string]model.DistrictKey{
	"NEWCD":   {Type: model.Congressional, Map: model.OldMap},
	"NEWSD":   {Type: model.UpperChamber, Map: model.OldMap},
	"NEWHD":   {Type: model.LowerChamber, Map: model.OldMap},
	"2026_CD": {Type: model.Congressional, Map: model.NewMap},
	"2026_SD": {Type: model.UpperChamber, Map: model.NewMap},
	"2026_HD": {Type: model.LowerChamber, Map: model.NewMap},
}

// Options configures a scan.
type Options struct {
	AgeReference time.Time
	ChunkSize    int
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() Options {
	return Options{
		AgeReference: model.DefaultAgeReference,
		ChunkSize:    DefaultChunkSize,
	}
}

// Stats summarizes a scan.
type Stats struct {
	Rejections map[string]int
	Rows       int
	Accepted   int
	Rejected   int
}

func (s *Stats) reject(reason string) {
	s.Rejected++
	if s.Rejections == nil {
		s.Rejections = make(map[string]int)
	}
	s.Rejections[reason]++
}

// ScanFile opens path and scans it.
func ScanFile(ctx context.Context, path string, opts Options, fn func([]model.Voter) error) (*Stats, error) {
	// #nosec G304 - voter file path comes from operator configuration
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open voter file: %w", err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil {
			slog.Warn("failed to close voter file", "error", closeErr)
		}
	}()

	return Scan(ctx, f, opts, fn)
}

// Scan reads a voter CSV and hands validated voters to fn in chunks.
// Rows that violate the schema are counted and dropped here so later
// stages only ever see typed records.
func Scan(ctx context.Context, r io.Reader, opts Options, fn func([]model.Voter) error) (*Stats, error) {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	if opts.AgeReference.IsZero() {
		opts.AgeReference = model.DefaultAgeReference
	}

	reader := csv.NewReader(bufio.NewReaderSize(r, 1<<20))
	reader.FieldsPerRecord = -1
	reader.ReuseRecord = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read header: %v", common.ErrSchema, err)
	}

	schema, err := newSchema(header)
	if err != nil {
		return nil, err
	}

	stats := &Stats{}
	seen := make(map[string]struct{})
	chunk := make([]model.Voter, 0, opts.ChunkSize)

	flush := func() error {
		if len(chunk) == 0 {
			return nil
		}
		if err := fn(chunk); err != nil {
			return err
		}
		chunk = make([]model.Voter, 0, opts.ChunkSize)
		return nil
	}

	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		stats.Rows++
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				stats.reject("malformed csv")
				continue
			}
			return stats, fmt.Errorf("failed to read voter file: %w", err)
		}

		voter, err := schema.parse(record, opts.AgeReference)
		if err != nil {
			stats.reject(rejectionReason(err))
			slog.Debug("Rejected voter row", "row", stats.Rows+1, "error", err)
			continue
		}
		if _, dup := seen[voter.ID]; dup {
			stats.reject("duplicate voter id")
			continue
		}
		seen[voter.ID] = struct{}{}

		chunk = append(chunk, voter)
		stats.Accepted++

		if len(chunk) >= opts.ChunkSize {
			if err := ctx.Err(); err != nil {
				return stats, err
			}
			if err := flush(); err != nil {
				return stats, err
			}
		}
	}

	if err := flush(); err != nil {
		return stats, err
	}

	if stats.Accepted == 0 {
		return stats, common.ErrNoVoters
	}

	return stats, nil
}

type schema struct {
	col       map[string]int
	districts map[model.DistrictKey]int
	primaries [4]int
	generals  []int
}

func newSchema(header []string) (*schema, error) {
	s := &schema{
		col:       make(map[string]int, len(header)),
		districts: make(map[model.DistrictKey]int),
	}

	for i, h := range header {
		name := strings.ToUpper(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		s.col[name] = i
		if key, ok := districtColumns[name]; ok {
			s.districts[key] = i
		}
		if strings.HasPrefix(name, "GEN") {
			s.generals = append(s.generals, i)
		}
	}

	var missing []string
	for _, req := range RequiredColumns {
		if _, ok := s.col[req]; !ok {
			missing = append(missing, req)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %w: %s", common.ErrSchema, ErrMissingColumn, strings.Join(missing, ", "))
	}

	for i, name := range model.PrimaryElections {
		if idx, ok := s.col[name]; ok {
			s.primaries[i] = idx
		} else {
			s.primaries[i] = -1
		}
	}

	return s, nil
}

func (s *schema) get(record []string, name string) string {
	i, ok := s.col[name]
	if !ok {
		return ""
	}
	return field(record, i)
}

func field(record []string, i int) string {
	if i < 0 || i >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[i])
}

func (s *schema) parse(record []string, ref time.Time) (model.Voter, error) {
	v := model.Voter{
		ID:       s.get(record, ColVoterID),
		County:   strings.ToUpper(s.get(record, ColCounty)),
		City:     strings.ToUpper(s.get(record, ColCity)),
		Zip:      normalizeZip(s.get(record, ColZip)),
		Precinct: s.get(record, ColPrecinct),
	}

	if v.ID == "" {
		return v, fmt.Errorf("%w: missing voter id", ErrInvalidRow)
	}
	if v.County == "" {
		return v, fmt.Errorf("%w: %s missing county", ErrInvalidRow, v.ID)
	}

	dob, err := parseDOB(s.get(record, ColDOB))
	if err != nil {
		return v, fmt.Errorf("%w: %s: %v", ErrInvalidRow, v.ID, err)
	}
	v.DOB = dob
	v.Age = model.AgeOn(dob, ref)
	v.AgeBracket = model.BracketFor(v.Age)

	for key, idx := range s.districts {
		raw := field(record, idx)
		if raw == "" {
			continue
		}
		id, err := strconv.Atoi(raw)
		if err != nil || id < 0 {
			return v, fmt.Errorf("%w: %s: district %s is %q", ErrInvalidRow, v.ID, key, raw)
		}
		v.SetRecordDistrict(key, id)
	}

	for i, idx := range s.primaries {
		v.Primaries[i] = classification.ParsePartyCode(field(record, idx))
	}

	for _, idx := range s.generals {
		if field(record, idx) != "" {
			v.GeneralVotes++
		}
	}

	v.VotedEarly = parseBool(s.get(record, ColVotedEarly))

	return v, nil
}

func parseDOB(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	for _, layout := range []string{"20060102", "2006-01-02", "01/02/2006"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable date of birth %q", raw)
}

func normalizeZip(raw string) string {
	if len(raw) > 5 {
		return raw[:5]
	}
	return raw
}

func parseBool(raw string) bool {
	switch strings.ToUpper(raw) {
	case "1", "TRUE", "T", "Y", "YES":
		return true
	default:
		return false
	}
}

func rejectionReason(err error) string {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "missing voter id"):
		return "missing voter id"
	case strings.Contains(msg, "missing county"):
		return "missing county"
	case strings.Contains(msg, "date of birth"):
		return "invalid date of birth"
	case strings.Contains(msg, "district"):
		return "invalid district id"
	default:
		return "invalid row"
	}
}
