package playlist

import (
	"strings"
	"testing"

	"github.com/splicevod/splicevod/internal/planner"
	"github.com/splicevod/splicevod/internal/sampleindex"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixtureSession() *planner.Session {
	videoTrack := &sampleindex.Track{
		Kind:      sampleindex.MediaVideo,
		Timescale: 24000,
		Bandwidth: 2_000_000,
		MimeType:  "video/mp4",
		Codecs:    "avc3.640028",
		Video:     sampleindex.VideoParams{Width: 1920, Height: 1080, FPSNum: 24000, FPSDenum: 1000, SARWidth: 1, SARHeight: 1},
	}
	audioTrack := &sampleindex.Track{
		Kind:      sampleindex.MediaAudio,
		Timescale: 48000,
		Bandwidth: 128_000,
		MimeType:  "audio/mp4",
		Codecs:    "mp4a.40.2",
		Audio:     sampleindex.AudioParams{SampleRate: 48000, Channels: 2},
	}

	return &planner.Session{
		ID:               "sess1",
		Type:             "dash",
		BaseURL:          "http://example.test",
		ChunkDurationSec: 5,
		DurationMS:       10000,
		RepresentationOrder: []string{"video", "audio"},
		Representations: map[string]*planner.Representation{
			"video": {
				ID:         "video",
				DurationMS: 10000,
				Tracks:     []*planner.TrackRequest{{DurationMS: 10000, Track: videoTrack}},
			},
			"audio": {
				ID:         "audio",
				DurationMS: 10000,
				Tracks:     []*planner.TrackRequest{{DurationMS: 10000, Track: audioTrack}},
			},
		},
		CachedVariants: map[string][]byte{},
	}
}

func TestRenderMPDContainsExpectedAttributes(t *testing.T) {
	sess := fixtureSession()
	body, err := RenderMPD(sess)
	require.NoError(t, err)

	xmlStr := string(body)
	assert.Contains(t, xmlStr, `profiles="urn:mpeg:dash:profile:full:2011"`)
	assert.Contains(t, xmlStr, `type="static"`)
	assert.Contains(t, xmlStr, `minBufferTime="PT1.5S"`)
	assert.Contains(t, xmlStr, `mediaPresentationDuration="PT10S"`)
	assert.Contains(t, xmlStr, `width="1920"`)
	assert.Contains(t, xmlStr, `audioSamplingRate="48000"`)
}

func TestRenderHLSMasterAndVariants(t *testing.T) {
	sess := fixtureSession()
	master, err := RenderHLSMaster(sess)
	require.NoError(t, err)

	masterStr := string(master)
	assert.Contains(t, masterStr, "#EXT-X-STREAM-INF")
	assert.Contains(t, masterStr, `CODECS="avc1.640028"`) // avc3 normalized to avc1
	assert.Contains(t, masterStr, "RESOLUTION=1920x1080")
	assert.Contains(t, masterStr, "/playlist/video")
	assert.Contains(t, masterStr, "/playlist/audio")

	variant, ok := sess.CachedVariants["video"]
	require.True(t, ok)
	variantStr := string(variant)
	assert.Contains(t, variantStr, "#EXT-X-PLAYLIST-TYPE:VOD")
	assert.Contains(t, variantStr, "#EXT-X-ENDLIST")
	assert.Equal(t, 2, strings.Count(variantStr, "#EXTINF")) // 10s / 5s chunks = 2
}

func TestVariantLookupUsesCache(t *testing.T) {
	sess := fixtureSession()
	_, err := RenderHLSMaster(sess)
	require.NoError(t, err)

	body, err := Variant(sess, "audio")
	require.NoError(t, err)
	assert.Equal(t, sess.CachedVariants["audio"], body)
}
