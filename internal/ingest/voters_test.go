package ingest

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/Veraticus/redistrict-impact/internal/common"
	"github.com/Veraticus/redistrict-impact/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const voterFile = `VUID,DOB,COUNTY,RCITY,RZIP,PCT,NEWCD,NEWSD,NEWHD,2026_CD,PRI24,PRI22,PRI20,PRI18,GEN24,GEN22,VOTED_EARLY
1001,19800305,travis,austin,78701-1234,101,10,14,49,37,RE,,RE,,Y,Y,1
1002,20061102,Travis,Austin,78702,102,25,14,50,,,DE,,,Y,,0
1003,,Harris,Houston,77002,0301,7,,,,,,,,,,
1004,notadate,Harris,Houston,77002,0301,7,,,,,,,,,,
1005,19500101,,Houston,77002,0301,7,,,,,,,,,,
1001,19800305,Travis,Austin,78701,101,10,14,49,,,,,,,,
1006,19700101,Harris,Houston,77002,0302,X7,,,,,,,,,,
`

func TestScanValidatesAndTypesRows(t *testing.T) {
	var got []model.Voter
	stats, err := Scan(context.Background(), strings.NewReader(voterFile), DefaultOptions(), func(chunk []model.Voter) error {
		got = append(got, chunk...)
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, 7, stats.Rows)
	assert.Equal(t, 3, stats.Accepted)
	assert.Equal(t, 4, stats.Rejected)
	assert.Equal(t, 1, stats.Rejections["invalid date of birth"])
	assert.Equal(t, 1, stats.Rejections["missing county"])
	assert.Equal(t, 1, stats.Rejections["duplicate voter id"])
	assert.Equal(t, 1, stats.Rejections["invalid district id"])

	require.Len(t, got, 3)

	first := got[0]
	assert.Equal(t, "1001", first.ID)
	assert.Equal(t, "TRAVIS", first.County)
	assert.Equal(t, "AUSTIN", first.City)
	assert.Equal(t, "78701", first.Zip)
	assert.Equal(t, 44, first.Age)
	assert.Equal(t, model.Bracket35to44, first.AgeBracket)
	assert.Equal(t, 10, first.RecordDistrict(model.DistrictKey{Type: model.Congressional, Map: model.OldMap}))
	assert.Equal(t, 37, first.RecordDistrict(model.DistrictKey{Type: model.Congressional, Map: model.NewMap}))
	assert.Equal(t, 0, first.RecordDistrict(model.DistrictKey{Type: model.LowerChamber, Map: model.NewMap}))
	assert.Equal(t, [4]model.PrimaryVote{model.RepublicanPrimary, model.NoPrimaryVote, model.RepublicanPrimary, model.NoPrimaryVote}, first.Primaries)
	assert.Equal(t, 2, first.GeneralVotes)
	assert.True(t, first.VotedEarly)

	assert.Equal(t, model.BracketUnder18, got[1].AgeBracket)
	assert.False(t, got[1].VotedEarly)

	assert.Equal(t, model.BracketUnknown, got[2].AgeBracket)
	assert.Equal(t, "0301", got[2].Precinct)
}

func TestScanChunks(t *testing.T) {
	var sizes []int
	opts := DefaultOptions()
	opts.ChunkSize = 2

	_, err := Scan(context.Background(), strings.NewReader(voterFile), opts, func(chunk []model.Voter) error {
		sizes = append(sizes, len(chunk))
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int{2, 1}, sizes)
}

func TestScanRejectsMissingColumns(t *testing.T) {
	_, err := Scan(context.Background(), strings.NewReader("VUID,DOB\n1,19800101\n"), DefaultOptions(), func([]model.Voter) error {
		return nil
	})
	assert.ErrorIs(t, err, common.ErrSchema)
	assert.ErrorIs(t, err, ErrMissingColumn)
	assert.Contains(t, err.Error(), "COUNTY")
}

func TestScanWithNoValidRows(t *testing.T) {
	_, err := Scan(context.Background(), strings.NewReader("VUID,COUNTY,PCT\n,Travis,101\n"), DefaultOptions(), func([]model.Voter) error {
		return nil
	})
	assert.ErrorIs(t, err, common.ErrNoVoters)
}

func TestScanPropagatesCallbackErrors(t *testing.T) {
	boom := errors.New("boom")
	_, err := Scan(context.Background(), strings.NewReader(voterFile), DefaultOptions(), func([]model.Voter) error {
		return boom
	})
	assert.ErrorIs(t, err, boom)
}
