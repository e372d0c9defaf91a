package model

// Overlap is the area one precinct shares with one district.
type Overlap struct {
	Precinct PrecinctKey
	Key      DistrictKey
	District int
	Area     float64
}

// PrecinctAssignment is the resolved district of a precinct for one district system.
// Unassigned precincts have District 0 and keep their area for reporting.
// Overcovered marks a negative residual: the layer's own features overlap
// inside the precinct.
type PrecinctAssignment struct {
	Precinct     PrecinctKey
	Key          DistrictKey
	District     int
	PrecinctArea float64
	OverlapArea  float64
	ResidualArea float64
	OverlapCount int
	Unassigned   bool
	TieBroken    bool
	Overcovered  bool
}

// Share returns the fraction of the precinct covered by its winning district.
func (a PrecinctAssignment) Share() float64 {
	if a.PrecinctArea <= 0 {
		return 0
	}
	return a.OverlapArea / a.PrecinctArea
}
