package model

import "time"

// Voter is one registered voter, as ingested and as enriched by later stages.
type Voter struct {
	DOB        time.Time
	Prediction *PartyPrediction
	ID         string
	County     string
	City       string
	Zip        string
	Precinct   string
	AgeBracket AgeBracket
	Primary    Party
	Final      FinalLabel

	// RecordDistricts holds district ids printed on the voter file, indexed by
	// DistrictType.Index then MapYear.Index. Zero means absent.
	RecordDistricts [3][2]int
	Assignments     [3][2]Assignment
	Primaries       [4]PrimaryVote

	Age          int
	GeneralVotes int
	VotedEarly   bool
}

// PrecinctKey returns the voter's precinct identifier.
func (v *Voter) PrecinctKey() PrecinctKey {
	return NewPrecinctKey(v.County, v.Precinct)
}

// HasAge reports whether the voter's age is known.
func (v *Voter) HasAge() bool {
	return v.AgeBracket != BracketUnknown && v.AgeBracket != ""
}

// RecordDistrict returns the id from the voter file for key, or 0.
func (v *Voter) RecordDistrict(key DistrictKey) int {
	t, m := key.Type.Index(), key.Map.Index()
	if t < 0 || m < 0 {
		return 0
	}
	return v.RecordDistricts[t][m]
}

// SetRecordDistrict stores a district id read from the voter file.
func (v *Voter) SetRecordDistrict(key DistrictKey, id int) {
	t, m := key.Type.Index(), key.Map.Index()
	if t < 0 || m < 0 {
		return
	}
	v.RecordDistricts[t][m] = id
}

// Assignment returns the resolved district for key.
func (v *Voter) Assignment(key DistrictKey) Assignment {
	t, m := key.Type.Index(), key.Map.Index()
	if t < 0 || m < 0 {
		return Assignment{}
	}
	return v.Assignments[t][m]
}

// SetAssignment stores the resolved district for key.
func (v *Voter) SetAssignment(key DistrictKey, a Assignment) {
	t, m := key.Type.Index(), key.Map.Index()
	if t < 0 || m < 0 {
		return
	}
	v.Assignments[t][m] = a
}

// AgeBracket buckets voter age.
type AgeBracket string

// Age brackets.
const (
	BracketUnder18 AgeBracket = "Under 18"
	Bracket18to24  AgeBracket = "18-24"
	Bracket25to34  AgeBracket = "25-34"
	Bracket35to44  AgeBracket = "35-44"
	Bracket45to54  AgeBracket = "45-54"
	Bracket55to64  AgeBracket = "55-64"
	Bracket65to74  AgeBracket = "65-74"
	Bracket75Plus  AgeBracket = "75+"
	BracketUnknown AgeBracket = "Unknown"
)

// DefaultAgeReference is the date ages are computed against (the 2024 general election).
var DefaultAgeReference = time.Date(2024, time.November, 1, 0, 0, 0, 0, time.UTC)

// AgeOn returns whole years between dob and ref. A zero dob returns -1.
func AgeOn(dob, ref time.Time) int {
	if dob.IsZero() {
		return -1
	}
	age := ref.Year() - dob.Year()
	if ref.Month() < dob.Month() || (ref.Month() == dob.Month() && ref.Day() < dob.Day()) {
		age--
	}
	return age
}

// BracketFor maps an age to its bracket. Negative ages are Unknown.
func BracketFor(age int) AgeBracket {
	switch {
	case age < 0:
		return BracketUnknown
	case age < 18:
		return BracketUnder18
	case age < 25:
		return Bracket18to24
	case age < 35:
		return Bracket25to34
	case age < 45:
		return Bracket35to44
	case age < 55:
		return Bracket45to54
	case age < 65:
		return Bracket55to64
	case age < 75:
		return Bracket65to74
	default:
		return Bracket75Plus
	}
}
