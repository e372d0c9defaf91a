package geo

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/Veraticus/redistrict-impact/internal/model"
)

// ErrCrosswalk reports a malformed county crosswalk file.
var ErrCrosswalk = errors.New("invalid county crosswalk")

// CountyCrosswalk maps the county codes used by a precinct layer to the
// county names used by the voter file.
type CountyCrosswalk map[string]string

// NormalizeCountyCode uppercases a county value and strips leading zeros
// from numeric codes so "0453" and 453 compare equal.
func NormalizeCountyCode(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" || strings.TrimLeft(code, "0123456789") != "" {
		return code
	}
	if trimmed := strings.TrimLeft(code, "0"); trimmed != "" {
		return trimmed
	}
	return "0"
}

// LoadCountyCrosswalk reads a CSV with "code" and "name" header columns.
func LoadCountyCrosswalk(path string) (CountyCrosswalk, error) {
	// #nosec G304 - crosswalk path comes from operator configuration
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open county crosswalk: %w", err)
	}
	defer func() { _ = f.Close() }()
	return ParseCountyCrosswalk(f)
}

// ParseCountyCrosswalk reads crosswalk rows. A code listed twice with
// different names is an error.
func ParseCountyCrosswalk(r io.Reader) (CountyCrosswalk, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: missing header: %v", ErrCrosswalk, err)
	}
	codeCol, nameCol := -1, -1
	for i, h := range header {
		switch strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))) {
		case "code":
			codeCol = i
		case "name":
			nameCol = i
		}
	}
	if codeCol < 0 || nameCol < 0 {
		return nil, fmt.Errorf("%w: header needs code and name columns", ErrCrosswalk)
	}

	cw := make(CountyCrosswalk)
	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrCrosswalk, line, err)
		}
		code := NormalizeCountyCode(record[codeCol])
		name := model.NewPrecinctKey(record[nameCol], "").County
		if code == "" || name == "" {
			return nil, fmt.Errorf("%w: line %d: empty code or name", ErrCrosswalk, line)
		}
		if prev, ok := cw[code]; ok && prev != name {
			return nil, fmt.Errorf("%w: line %d: code %s maps to both %s and %s", ErrCrosswalk, line, code, prev, name)
		}
		cw[code] = name
	}
	return cw, nil
}

// SharesCounties reports whether any precinct in the layer already uses a
// county spelling found among the voter precinct keys.
func SharesCounties(layer *Layer, voters []model.PrecinctKey) bool {
	names := make(map[string]struct{}, len(voters))
	for _, k := range voters {
		names[k.County] = struct{}{}
	}
	for i := range layer.Features {
		if _, ok := names[layer.Features[i].Precinct.County]; ok {
			return true
		}
	}
	return false
}

// DeriveCountyCrosswalk infers a crosswalk from precinct codes shared by the
// layer and the voter file. Each voter county takes the layer code that its
// precinct codes match most often; ties go to the lower code. When two names
// claim one code, the name with more matches keeps it.
func DeriveCountyCrosswalk(layer *Layer, voters []model.PrecinctKey) CountyCrosswalk {
	codesByPrecinct := make(map[string]map[string]struct{})
	for i := range layer.Features {
		key := layer.Features[i].Precinct
		codes, ok := codesByPrecinct[key.Precinct]
		if !ok {
			codes = make(map[string]struct{})
			codesByPrecinct[key.Precinct] = codes
		}
		codes[NormalizeCountyCode(key.County)] = struct{}{}
	}

	seen := make(map[model.PrecinctKey]struct{}, len(voters))
	matches := make(map[string]map[string]int)
	for _, k := range voters {
		if _, dup := seen[k]; dup || k.Empty() {
			continue
		}
		seen[k] = struct{}{}
		for code := range codesByPrecinct[k.Precinct] {
			if matches[k.County] == nil {
				matches[k.County] = make(map[string]int)
			}
			matches[k.County][code]++
		}
	}

	type claim struct {
		name  string
		count int
	}
	claims := make(map[string]claim)
	names := make([]string, 0, len(matches))
	for name := range matches {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		best, bestCount := "", 0
		for code, n := range matches[name] {
			if n > bestCount || (n == bestCount && code < best) {
				best, bestCount = code, n
			}
		}
		if prev, ok := claims[best]; !ok || bestCount > prev.count {
			claims[best] = claim{name: name, count: bestCount}
		}
	}

	cw := make(CountyCrosswalk, len(claims))
	for code, c := range claims {
		cw[code] = c.name
	}
	return cw
}

// RekeyCounties rewrites precinct keys from layer county codes to voter county
// names. Precincts whose code has no entry keep their key and are returned,
// so voters there fall through to Missing rather than a guessed district.
func (l *Layer) RekeyCounties(cw CountyCrosswalk) []string {
	unmapped := make(map[string]struct{})
	for i := range l.Features {
		f := &l.Features[i]
		code := NormalizeCountyCode(f.Precinct.County)
		name, ok := cw[code]
		if !ok {
			unmapped[code] = struct{}{}
			continue
		}
		f.Precinct = model.NewPrecinctKey(name, f.Precinct.Precinct)
		f.ID = f.Precinct.String()
	}

	out := make([]string, 0, len(unmapped))
	for code := range unmapped {
		out = append(out, code)
	}
	sort.Strings(out)
	return out
}
