package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/redistrict-impact/internal/model"
)

func square(x0, x1 float64) string {
	return fmt.Sprintf(`{"type":"Polygon","coordinates":[[[%g,0],[%g,0],[%g,1],[%g,1],[%g,0]]]}`, x0, x1, x1, x0, x0)
}

func writeFile(t *testing.T, path, body string) string {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(body), 0600))
	return path
}

func district(id int, geometry string) string {
	return fmt.Sprintf(`{"type":"Feature","properties":{"DISTRICT":%d},"geometry":%s}`, id, geometry)
}

func collection(features ...string) string {
	return `{"type":"FeatureCollection","features":[` + strings.Join(features, ",") + `]}`
}

// writeProject lays out a two-precinct project and returns its config path.
func writeProject(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	var voters strings.Builder
	voters.WriteString("VUID,DOB,COUNTY,RCITY,RZIP,PCT,NEWCD,NEWSD,NEWHD,PRI24,PRI22,GEN24,VOTED_EARLY\n")
	id := 0
	for _, row := range []struct {
		pct   string
		code  string
		count int
	}{
		{"101", "RE", 10}, {"101", "DE", 2}, {"101", "", 3},
		{"102", "DE", 9}, {"102", "RE", 3}, {"102", "", 4},
	} {
		for i := 0; i < row.count; i++ {
			id++
			fmt.Fprintf(&voters, "%d,19700101,Travis,Austin,78701,%s,10,14,49,%s,,Y,0\n", id, row.pct, row.code)
		}
	}

	left, right, both := square(0, 1), square(1, 2), square(0, 2)
	layers := map[model.DistrictKey]string{
		{Type: model.Congressional, Map: model.OldMap}: collection(district(10, both)),
		{Type: model.Congressional, Map: model.NewMap}: collection(district(37, left), district(35, right)),
		{Type: model.UpperChamber, Map: model.OldMap}:  collection(district(14, both)),
		{Type: model.UpperChamber, Map: model.NewMap}:  collection(district(14, both)),
		{Type: model.LowerChamber, Map: model.OldMap}:  collection(district(49, both)),
		{Type: model.LowerChamber, Map: model.NewMap}:  collection(district(49, both)),
	}

	var cfg strings.Builder
	fmt.Fprintf(&cfg, "database:\n  path: %s\n", filepath.Join(dir, "redistrict.db"))
	fmt.Fprintf(&cfg, "voters:\n  path: %s\n  chunk_size: 6\n", writeFile(t, filepath.Join(dir, "voters.csv"), voters.String()))
	fmt.Fprintf(&cfg, "model:\n  artifact_path: %s\n", filepath.Join(dir, "model.json"))
	fmt.Fprintf(&cfg, "geography:\n  precincts:\n    path: %s\n  districts:\n", writeFile(t, filepath.Join(dir, "precincts.geojson"), collection(
		`{"type":"Feature","properties":{"PCT":"101","COUNTY":"Travis"},"geometry":`+left+`}`,
		`{"type":"Feature","properties":{"PCT":"102","COUNTY":"Travis"},"geometry":`+right+`}`,
	)))
	for key, body := range layers {
		name := strings.ToLower(key.String())
		fmt.Fprintf(&cfg, "    %q:\n      path: %s\n", name, writeFile(t, filepath.Join(dir, name+".geojson"), body))
	}

	return writeFile(t, filepath.Join(dir, "config.yaml"), cfg.String())
}

func execute(t *testing.T, args ...string) string {
	t.Helper()
	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(append(args, "--log-level", "error"))
	err := rootCmd.Execute()
	require.NoError(t, err, "stderr: %s", errOut.String())
	return out.String()
}

func TestCommandsEndToEnd(t *testing.T) {
	cfg := writeProject(t)

	out := execute(t, "run", "--quiet", "--config", cfg)
	for _, stage := range model.Stages {
		assert.Contains(t, out, string(stage))
	}
	assert.Contains(t, out, "accepted=31")
	assert.Regexp(t, `train\s+skipped`, out)

	out = execute(t, "run", "--quiet", "--config", cfg)
	assert.Equal(t, len(model.Stages), strings.Count(out, "skipped:"))

	out = execute(t, "status", "--config", cfg)
	assert.Contains(t, out, "completed")
	assert.NotContains(t, out, "pending")

	out = execute(t, "report", "--type", "CD", "--section", "competitiveness,composition", "--config", cfg)
	assert.Contains(t, out, "Congressional: competitiveness")
	assert.Contains(t, out, "Competitive")
	assert.NotContains(t, out, "State House")

	out = execute(t, "checkpoint", "create", "--tag", "manual-1", "--config", cfg)
	assert.Contains(t, out, "manual-1")
	assert.Contains(t, out, "31 voters")

	out = execute(t, "checkpoint", "list", "--config", cfg)
	assert.Contains(t, out, "manual-1")
	assert.Contains(t, out, "manual")

	out = execute(t, "migrate", "--status", "--config", cfg)
	assert.Contains(t, out, "Current version: 4")

	out = execute(t, "version")
	assert.Contains(t, out, "redistrict dev")
}

func TestStageRange(t *testing.T) {
	stages, err := stageRange("train", "aggregate")
	require.NoError(t, err)
	assert.Equal(t, []model.Stage{model.StageTrain, model.StagePredict, model.StageAggregate}, stages)

	_, err = stageRange("aggregate", "ingest")
	assert.Error(t, err)

	_, err = stageRange("export", "aggregate")
	assert.Error(t, err)
}

func TestParseTypes(t *testing.T) {
	types, err := parseTypes(nil)
	require.NoError(t, err)
	assert.Equal(t, model.DistrictTypes, types)

	types, err = parseTypes([]string{"hd", "CD"})
	require.NoError(t, err)
	assert.Equal(t, []model.DistrictType{model.LowerChamber, model.Congressional}, types)

	_, err = parseTypes([]string{"county"})
	assert.Error(t, err)
}

func TestFormatFileSize(t *testing.T) {
	assert.Equal(t, "512 B", formatFileSize(512))
	assert.Equal(t, "1.5 KB", formatFileSize(1536))
	assert.Equal(t, "2.0 MB", formatFileSize(2*1024*1024))
}

func TestFormatRelativeTime(t *testing.T) {
	assert.Equal(t, "just now", formatRelativeTime(time.Now()))
	assert.Equal(t, "1 hour ago", formatRelativeTime(time.Now().Add(-90*time.Minute)))
	assert.Equal(t, "yesterday", formatRelativeTime(time.Now().Add(-30*time.Hour)))
}
