package assembler

import (
	"testing"

	"github.com/splicevod/splicevod/internal/planner"
	"github.com/splicevod/splicevod/internal/sampleindex"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lengthPrefixed(blobs ...[]byte) []byte {
	var out []byte
	for _, b := range blobs {
		n := len(b)
		out = append(out, byte(n>>24), byte(n>>16), byte(n>>8), byte(n))
		out = append(out, b...)
	}
	return out
}

func avccSample(nalus ...[]byte) []byte {
	return lengthPrefixed(nalus...)
}

func videoTrackRequest() *planner.TrackRequest {
	sps := []byte{0x67, 0x42, 0x00, 0x28}
	pps := []byte{0x68, 0xCE, 0x3C, 0x80}

	track := &sampleindex.Track{
		Kind:      sampleindex.MediaVideo,
		Timescale: 24000,
		Codecs:    "avc1.640028",
		MimeType:  "video/mp4",
		Video:     sampleindex.VideoParams{Width: 1920, Height: 1080},
		ESD:       sampleindex.ElementaryStreamDescriptor{DecoderSpecificInfo: lengthPrefixed(sps, pps)},
	}

	firstSample := avccSample([]byte{0x65, 0x01, 0x02})
	secondSample := avccSample([]byte{0x41, 0x03, 0x04})
	samples := []sampleindex.Sample{
		{Length: uint32(len(firstSample)), ByteOffset: 0, DTS: 0, IsRAP: true},
		{Length: uint32(len(secondSample)), ByteOffset: uint64(len(firstSample)), DTS: 1000, IsRAP: false},
	}

	return &planner.TrackRequest{
		Track:   track,
		Samples: samples,
	}
}

func TestRenderInitProducesNonEmptyBytes(t *testing.T) {
	tr := videoTrackRequest()
	repr := &planner.Representation{Tracks: []*planner.TrackRequest{tr}}

	body, err := RenderInit(repr)
	require.NoError(t, err)
	assert.NotEmpty(t, body)
}

func TestRenderInitIsIdempotent(t *testing.T) {
	tr := videoTrackRequest()
	repr := &planner.Representation{Tracks: []*planner.TrackRequest{tr}}

	first, err := RenderInit(repr)
	require.NoError(t, err)
	second, err := RenderInit(repr)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestRenderMediaSegmentCoversExactByteRange(t *testing.T) {
	tr := videoTrackRequest()
	rawBytes := append(avccSample([]byte{0x65, 0x01, 0x02}), avccSample([]byte{0x41, 0x03, 0x04})...)

	body, err := RenderMediaSegment(tr, 0, 1, rawBytes)
	require.NoError(t, err)
	assert.NotEmpty(t, body)
}

func TestSplitAVCCAccessUnit(t *testing.T) {
	payload := avccSample([]byte{0x67, 0x01}, []byte{0x68, 0x02})
	au := splitAVCCAccessUnit(payload)
	require.Len(t, au, 2)
	assert.Equal(t, []byte{0x67, 0x01}, au[0])
	assert.Equal(t, []byte{0x68, 0x02}, au[1])
}

func TestRenderTSSegment(t *testing.T) {
	tr := videoTrackRequest()
	rawBytes := append(avccSample([]byte{0x65, 0x01, 0x02}), avccSample([]byte{0x41, 0x03, 0x04})...)

	body, err := RenderTSSegment(tr, 0, 1, rawBytes)
	require.NoError(t, err)
	assert.NotEmpty(t, body)
}
