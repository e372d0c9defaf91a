package geo

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const districtCollection = `{
  "type": "FeatureCollection",
  "crs": {"type": "name", "properties": {"name": "urn:ogc:def:crs:EPSG::3083"}},
  "features": [
    {"type": "Feature", "properties": {"DISTRICT": "07"},
     "geometry": {"type": "Polygon", "coordinates": [[[0,0],[10,0],[10,10],[0,10],[0,0]]]}},
    {"type": "Feature", "properties": {"DISTRICT": 12},
     "geometry": {"type": "MultiPolygon", "coordinates": [[[[20,0],[30,0],[30,10],[20,10],[20,0]]]]}},
    {"type": "Feature", "properties": {"DISTRICT": "13"},
     "geometry": {"type": "Polygon", "coordinates": [[[0,0],[1,0],[1,1],[0,1]]]}},
    {"type": "Feature", "properties": {"DISTRICT": "14"},
     "geometry": {"type": "LineString", "coordinates": [[0,0],[1,1]]}},
    {"type": "Feature", "properties": {"DISTRICT": "15"},
     "geometry": {"type": "Polygon", "coordinates": [[[0,0],[2,2],[2,0],[0,1],[0,0]]]}}
  ]
}`

func TestParseLayerExcludesInvalidFeatures(t *testing.T) {
	layer, report, err := ParseLayer([]byte(districtCollection), LoadOptions{Name: "cd-2026", Kind: DistrictLayer})
	require.NoError(t, err)

	assert.Equal(t, "EPSG:3083", layer.CRS)
	require.Len(t, layer.Features, 2)
	assert.Equal(t, 7, layer.Features[0].District)
	assert.Equal(t, 12, layer.Features[1].District)
	assert.InDelta(t, 100.0, layer.Features[0].Area, 1e-9)

	assert.Equal(t, 2, report.Loaded)
	require.Len(t, report.Invalid, 3)
	for _, inv := range report.Invalid {
		assert.ErrorIs(t, inv.Err, ErrInvalidGeometry)
	}
	assert.Equal(t, "15", report.Invalid[2].ID)
	assert.Contains(t, report.Invalid[2].Err.Error(), "crosses itself")
}

func TestParseLayerPrecinctKeys(t *testing.T) {
	data := `{"type":"FeatureCollection","features":[
	  {"type":"Feature","properties":{"CNTY":"travis","PREC":"0101"},
	   "geometry":{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,1],[0,0]]]}}]}`

	layer, _, err := ParseLayer([]byte(data), LoadOptions{
		Name:           "precincts",
		Kind:           PrecinctLayer,
		IDProperty:     "PREC",
		CountyProperty: "CNTY",
	})
	require.NoError(t, err)

	assert.Equal(t, DefaultCRS, layer.CRS)
	require.Len(t, layer.Features, 1)
	assert.Equal(t, "TRAVIS", layer.Features[0].Precinct.County)
	assert.Equal(t, "0101", layer.Features[0].Precinct.Precinct)
}

func TestParseLayerAllInvalidIsAnError(t *testing.T) {
	data := `{"type":"FeatureCollection","features":[
	  {"type":"Feature","properties":{"DISTRICT":"1"},"geometry":null}]}`

	_, report, err := ParseLayer([]byte(data), LoadOptions{Name: "empty", Kind: DistrictLayer})
	assert.ErrorIs(t, err, ErrEmptyLayer)
	require.NotNil(t, report)
	assert.Len(t, report.Invalid, 1)
}

func TestLoadLayerFromDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cd.geojson")
	require.NoError(t, os.WriteFile(path, []byte(districtCollection), 0600))

	layer, _, err := LoadLayer(path, LoadOptions{Kind: DistrictLayer, CRS: "EPSG:4326"})
	require.NoError(t, err)
	assert.Equal(t, "EPSG:4326", layer.CRS)
	assert.Equal(t, path, layer.Name)
}

func TestNormalizeCRS(t *testing.T) {
	assert.Equal(t, "EPSG:4326", NormalizeCRS("urn:ogc:def:crs:OGC:1.3:CRS84"))
	assert.Equal(t, "EPSG:4269", NormalizeCRS("urn:ogc:def:crs:EPSG::4269"))
	assert.Equal(t, "EPSG:3083", NormalizeCRS("epsg:3083"))
	assert.Equal(t, DefaultCRS, NormalizeCRS(""))
}
