package model

import (
	"fmt"
	"strings"
)

// DistrictType identifies one of the three district systems a voter belongs to.
type DistrictType string

const (
	// Congressional districts (U.S. House).
	Congressional DistrictType = "CD"
	// UpperChamber districts (state senate).
	UpperChamber DistrictType = "SD"
	// LowerChamber districts (state house).
	LowerChamber DistrictType = "HD"
)

// DistrictTypes lists every district type in reporting order.
var DistrictTypes = []DistrictType{Congressional, UpperChamber, LowerChamber}

// Index returns the position of the type in DistrictTypes, or -1.
func (t DistrictType) Index() int {
	switch t {
	case Congressional:
		return 0
	case UpperChamber:
		return 1
	case LowerChamber:
		return 2
	default:
		return -1
	}
}

// Label returns a human readable name.
func (t DistrictType) Label() string {
	switch t {
	case Congressional:
		return "Congressional"
	case UpperChamber:
		return "State Senate"
	case LowerChamber:
		return "State House"
	default:
		return string(t)
	}
}

// ParseDistrictType accepts the short code or the MTFCC code of a district layer.
func ParseDistrictType(s string) (DistrictType, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "CD", "CONGRESSIONAL", "G5200":
		return Congressional, nil
	case "SD", "UPPER", "SENATE", "G5210":
		return UpperChamber, nil
	case "HD", "LOWER", "HOUSE", "G5220":
		return LowerChamber, nil
	default:
		return "", fmt.Errorf("unknown district type %q", s)
	}
}

// MapYear identifies which boundary definition a district id refers to.
type MapYear string

const (
	// OldMap is the boundary set currently in force.
	OldMap MapYear = "2022"
	// NewMap is the proposed boundary set.
	NewMap MapYear = "2026"
)

// MapYears lists both boundary sets, old first.
var MapYears = []MapYear{OldMap, NewMap}

// Index returns 0 for the old map and 1 for the new map.
func (m MapYear) Index() int {
	switch m {
	case OldMap:
		return 0
	case NewMap:
		return 1
	default:
		return -1
	}
}

// DistrictKey addresses one (type, map) district system.
type DistrictKey struct {
	Type DistrictType
	Map  MapYear
}

// AllDistrictKeys returns the six (type, map) combinations in stable order.
func AllDistrictKeys() []DistrictKey {
	keys := make([]DistrictKey, 0, len(DistrictTypes)*len(MapYears))
	for _, t := range DistrictTypes {
		for _, m := range MapYears {
			keys = append(keys, DistrictKey{Type: t, Map: m})
		}
	}
	return keys
}

func (k DistrictKey) String() string {
	return fmt.Sprintf("%s_%s", k.Map, k.Type)
}

// AssignmentSource records how a voter's district id was determined.
type AssignmentSource string

const (
	// SourceMissing means no district could be determined.
	SourceMissing AssignmentSource = ""
	// SourceRecord means the id was present on the voter record.
	SourceRecord AssignmentSource = "record"
	// SourcePrecinct means the id came from the resolved precinct table.
	SourcePrecinct AssignmentSource = "precinct"
)

// Assignment is a voter's district for one DistrictKey.
// The zero value is an explicit missing assignment.
type Assignment struct {
	Source AssignmentSource
	ID     int
}

// Missing reports whether no district was determined.
func (a Assignment) Missing() bool {
	return a.Source == SourceMissing || a.ID <= 0
}

// PrecinctKey identifies a precinct. Precinct codes are only unique within a county.
type PrecinctKey struct {
	County   string
	Precinct string
}

// NewPrecinctKey normalizes county and precinct codes.
func NewPrecinctKey(county, precinct string) PrecinctKey {
	return PrecinctKey{
		County:   strings.ToUpper(strings.TrimSpace(county)),
		Precinct: strings.TrimSpace(precinct),
	}
}

// Empty reports whether the key carries no precinct code.
func (k PrecinctKey) Empty() bool {
	return k.Precinct == ""
}

func (k PrecinctKey) String() string {
	return k.County + "|" + k.Precinct
}
