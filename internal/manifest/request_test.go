package manifest

import (
	"testing"

	"github.com/splicevod/splicevod/internal/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAppliesDefaults(t *testing.T) {
	req, err := Parse([]byte(`{"video":{"tracks":[{"bucket":"b","key":"A","meta_key":"A.m","start":0,"duration":10000}]}}`))
	require.NoError(t, err)

	assert.Equal(t, DefaultType, req.Type)
	assert.Equal(t, DefaultTimeoutSec, req.TimeoutSec)
	assert.Equal(t, DefaultChunkDurationSec, req.ChunkDurationSec)
	require.Len(t, req.Video.Tracks, 1)
	assert.Equal(t, DefaultTrackNumber, req.Video.Tracks[0].Number)
}

func TestParseRejectsNoActiveRepresentations(t *testing.T) {
	_, err := Parse([]byte(`{"type":"dash"}`))
	kind, ok := apperr.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, apperr.KindBadRequest, kind)
}

func TestParseRejectsSkippedOnlyRepresentations(t *testing.T) {
	_, err := Parse([]byte(`{"video":{"skip":true,"tracks":[{"bucket":"b","key":"A","meta_key":"A.m"}]}}`))
	kind, ok := apperr.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, apperr.KindBadRequest, kind)
}

func TestParseRejectsMissingFields(t *testing.T) {
	_, err := Parse([]byte(`{"video":{"tracks":[{"bucket":"b","start":0,"duration":1000}]}}`))
	kind, ok := apperr.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, apperr.KindBadRequest, kind)
}

func TestParseRejectsNegativeStartOrDuration(t *testing.T) {
	_, err := Parse([]byte(`{"video":{"tracks":[{"bucket":"b","key":"A","meta_key":"A.m","start":-1,"duration":1000}]}}`))
	kind, ok := apperr.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, apperr.KindBadRequest, kind)

	_, err = Parse([]byte(`{"video":{"tracks":[{"bucket":"b","key":"A","meta_key":"A.m","start":0,"duration":-1}]}}`))
	kind, ok = apperr.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, apperr.KindBadRequest, kind)
}

func TestParseRejectsMalformedJSON(t *testing.T) {
	_, err := Parse([]byte(`{not json`))
	kind, ok := apperr.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, apperr.KindBadRequest, kind)
}

func TestParseRejectsUnknownType(t *testing.T) {
	_, err := Parse([]byte(`{"type":"rtmp","video":{"tracks":[{"bucket":"b","key":"A","meta_key":"A.m"}]}}`))
	kind, ok := apperr.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, apperr.KindBadRequest, kind)
}

func TestTotalTrackRequestsCountsBothRepresentations(t *testing.T) {
	req, err := Parse([]byte(`{
		"audio":{"tracks":[{"bucket":"b","key":"A","meta_key":"A.m"}]},
		"video":{"tracks":[{"bucket":"b","key":"A","meta_key":"A.m"},{"bucket":"b","key":"B","meta_key":"B.m","skip":true}]}
	}`))
	require.NoError(t, err)
	assert.Equal(t, 2, req.TotalTrackRequests())
}
