package geo

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/Veraticus/redistrict-impact/internal/model"
	"github.com/paulmach/orb/geojson"
)

// LoadOptions tells the loader how to read identifiers from feature properties.
type LoadOptions struct {
	// Name labels the layer in logs and reports.
	Name string
	// CRS overrides the reference system declared by the file.
	CRS string
	// IDProperty holds the district number or precinct code.
	IDProperty string
	// CountyProperty holds the county for precinct layers.
	CountyProperty string
	Kind           LayerKind
}

// InvalidFeature records a unit excluded from a layer.
type InvalidFeature struct {
	Err   error
	ID    string
	Index int
}

// LoadReport lists what the loader excluded.
type LoadReport struct {
	Invalid []InvalidFeature
	Loaded  int
}

// LoadLayer reads a GeoJSON FeatureCollection from disk.
func LoadLayer(path string, opts LoadOptions) (*Layer, *LoadReport, error) {
	// #nosec G304 - layer paths come from operator configuration
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read layer %s: %w", path, err)
	}
	if opts.Name == "" {
		opts.Name = path
	}
	return ParseLayer(data, opts)
}

// ParseLayer decodes a FeatureCollection and validates every feature.
// Invalid features are excluded and reported, never fatal on their own.
func ParseLayer(data []byte, opts LoadOptions) (*Layer, *LoadReport, error) {
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to decode layer %s: %w", opts.Name, err)
	}

	layer := &Layer{
		Name: opts.Name,
		Kind: opts.Kind,
		CRS:  opts.CRS,
	}
	if layer.CRS == "" {
		layer.CRS = declaredCRS(fc)
	}

	report := &LoadReport{}
	for i, f := range fc.Features {
		feature, err := featureFrom(f, opts)
		if err != nil {
			report.Invalid = append(report.Invalid, InvalidFeature{Index: i, ID: feature.ID, Err: err})
			slog.Warn("Excluding feature from layer",
				"layer", opts.Name,
				"index", i,
				"id", feature.ID,
				"error", err)
			continue
		}
		layer.Features = append(layer.Features, feature)
	}
	report.Loaded = len(layer.Features)

	if len(layer.Features) == 0 {
		return nil, report, fmt.Errorf("%w: %s", ErrEmptyLayer, opts.Name)
	}

	return layer, report, nil
}

func featureFrom(f *geojson.Feature, opts LoadOptions) (Feature, error) {
	idProp := opts.IDProperty
	if idProp == "" {
		idProp = defaultIDProperty(opts.Kind)
	}

	id := propertyString(f.Properties, idProp)
	if id == "" && f.ID != nil {
		id = strings.TrimSpace(fmt.Sprint(f.ID))
	}
	if id == "" {
		return Feature{}, fmt.Errorf("%w: missing %q property", ErrInvalidGeometry, idProp)
	}

	var (
		precinct model.PrecinctKey
		district int
	)
	switch opts.Kind {
	case PrecinctLayer:
		countyProp := opts.CountyProperty
		if countyProp == "" {
			countyProp = "COUNTY"
		}
		precinct = model.NewPrecinctKey(propertyString(f.Properties, countyProp), id)
		id = precinct.String()
	case DistrictLayer:
		n, err := strconv.Atoi(strings.TrimLeft(id, "0"))
		if err != nil || n <= 0 {
			return Feature{ID: id}, fmt.Errorf("%w: district id %q is not a positive number", ErrInvalidGeometry, id)
		}
		district = n
	}

	feature, err := NewFeature(id, f.Geometry)
	if err != nil {
		return Feature{ID: id}, err
	}
	feature.Precinct = precinct
	feature.District = district
	return feature, nil
}

func defaultIDProperty(kind LayerKind) string {
	if kind == PrecinctLayer {
		return "PCT"
	}
	return "DISTRICT"
}

// propertyString reads string or numeric properties without the panics of Must*.
func propertyString(p geojson.Properties, key string) string {
	switch v := p[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	default:
		return ""
	}
}

// declaredCRS reads the legacy "crs" member, defaulting to WGS84.
func declaredCRS(fc *geojson.FeatureCollection) string {
	raw, ok := fc.ExtraMembers["crs"].(map[string]interface{})
	if !ok {
		return DefaultCRS
	}
	props, ok := raw["properties"].(map[string]interface{})
	if !ok {
		return DefaultCRS
	}
	name, ok := props["name"].(string)
	if !ok || name == "" {
		return DefaultCRS
	}
	return NormalizeCRS(name)
}

// NormalizeCRS maps the common spellings of a reference system to EPSG:n form.
func NormalizeCRS(name string) string {
	n := strings.ToUpper(strings.TrimSpace(name))
	switch {
	case n == "":
		return DefaultCRS
	case strings.HasSuffix(n, "CRS84"):
		return DefaultCRS
	case strings.HasPrefix(n, "URN:OGC:DEF:CRS:EPSG:"):
		parts := strings.Split(n, ":")
		return "EPSG:" + parts[len(parts)-1]
	default:
		return n
	}
}

// CheckReferenceFrames verifies every layer shares the reference layer's CRS.
func CheckReferenceFrames(reference *Layer, others ...*Layer) error {
	var errs []error
	for _, l := range others {
		if l == nil {
			continue
		}
		if NormalizeCRS(l.CRS) != NormalizeCRS(reference.CRS) {
			errs = append(errs, fmt.Errorf("%w: %s is %s, %s is %s",
				ErrReferenceFrameMismatch, reference.Name, reference.CRS, l.Name, l.CRS))
		}
	}
	return errors.Join(errs...)
}
