package storage

import (
	"context"
	"database/sql"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/redistrict-impact/internal/aggregate"
	"github.com/Veraticus/redistrict-impact/internal/common"
	"github.com/Veraticus/redistrict-impact/internal/model"
)

func reportVoter(id string, party model.Party, source model.LabelSource, oldCD, newCD int) model.Voter {
	v := model.Voter{ID: id, County: "TRAVIS", Precinct: "101", Final: model.FinalLabel{Party: party, Source: source}}
	if oldCD > 0 {
		v.SetAssignment(cdOld, model.Assignment{Source: model.SourceRecord, ID: oldCD})
	}
	if newCD > 0 {
		v.SetAssignment(cdNew, model.Assignment{Source: model.SourcePrecinct, ID: newCD})
	}
	return v
}

func reportVoters() []model.Voter {
	return []model.Voter{
		reportVoter("a", model.Republican, model.SourceKnown, 1, 1),
		reportVoter("b", model.Republican, model.SourceKnown, 1, 2),
		reportVoter("c", model.Democrat, model.SourceKnown, 2, 2),
		reportVoter("d", model.Democrat, model.SourceModeled, 2, 1),
		reportVoter("e", model.Republican, model.SourceModeled, 2, 3),
		reportVoter("f", model.Swing, model.SourceKnown, 3, 3),
		reportVoter("g", model.Unknown, model.SourceUnmodeled, 0, 3),
		reportVoter("h", model.Democrat, model.SourceKnown, 1, 0),
	}
}

func TestSQLiteStorage_ReportRoundTrip(t *testing.T) {
	for _, modeled := range []bool{true, false} {
		t.Run(map[bool]string{true: "modeled", false: "known only"}[modeled], func(t *testing.T) {
			store, cleanup := createTestStorage(t)
			defer cleanup()
			ctx := context.Background()

			want, err := aggregate.Build(reportVoters(), aggregate.Options{IncludeModeled: modeled})
			require.NoError(t, err)
			require.NoError(t, store.SaveReport(ctx, "run-1", want))

			got, err := store.GetLatestReport(ctx)
			require.NoError(t, err)
			if diff := cmp.Diff(want, got, cmpopts.EquateEmpty()); diff != "" {
				t.Errorf("report mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSQLiteStorage_ReportNullsUnmodeledColumns(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	report, err := aggregate.Build(reportVoters(), aggregate.Options{})
	require.NoError(t, err)
	require.NoError(t, store.SaveReport(ctx, "run-1", report))

	var repModeled sql.NullInt64
	require.NoError(t, store.db.QueryRowContext(ctx, `
		SELECT rep_modeled FROM district_compositions
		WHERE district_type = ? AND map_year = ? AND district = 1
	`, string(model.Congressional), string(model.NewMap)).Scan(&repModeled))
	assert.False(t, repModeled.Valid)

	var category string
	require.NoError(t, store.db.QueryRowContext(ctx, `
		SELECT category FROM district_compositions
		WHERE district_type = ? AND map_year = ? AND district = 3
	`, string(model.Congressional), string(model.NewMap)).Scan(&category))
	assert.Equal(t, string(aggregate.NoKnownVoters), category)
}

func TestSQLiteStorage_ReportReplacesPrevious(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	_, err := store.GetLatestReport(ctx)
	require.ErrorIs(t, err, common.ErrNotFound)

	first, err := aggregate.Build(reportVoters(), aggregate.Options{IncludeModeled: true})
	require.NoError(t, err)
	require.NoError(t, store.SaveReport(ctx, "run-1", first))

	second, err := aggregate.Build(reportVoters()[:3], aggregate.Options{IncludeModeled: true})
	require.NoError(t, err)
	require.NoError(t, store.SaveReport(ctx, "run-2", second))

	got, err := store.GetLatestReport(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, got.Voters)

	var runs int
	require.NoError(t, store.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM report_runs").Scan(&runs))
	assert.Equal(t, 1, runs)

	cd, ok := got.Type(model.Congressional)
	require.True(t, ok)
	assert.Len(t, cd.New.Districts, 2)
}

func TestSQLiteStorage_SaveReportValidation(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	assert.ErrorIs(t, store.SaveReport(ctx, "run-1", nil), ErrNilParameter)
	assert.ErrorIs(t, store.SaveReport(ctx, "", &aggregate.Report{}), ErrEmptyString)
	assert.ErrorIs(t, store.SaveReport(ctx, "run-1", &aggregate.Report{
		Types: []aggregate.TypeReport{{Type: model.Congressional}},
	}), ErrNilParameter)
}
