package sampleindex

import (
	"testing"

	"github.com/splicevod/splicevod/internal/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleIndexFixture() *MediaIndex {
	return &MediaIndex{
		Version: CurrentVersion,
		Tracks: []Track{
			{
				Number:    1,
				ID:        1,
				Kind:      MediaVideo,
				Subtype:   0x61766331, // "avc1"
				Timescale: 24000,
				Duration:  240000,
				MimeType:  "video/mp4",
				Codecs:    "avc1.640028",
				Video:     VideoParams{Width: 1920, Height: 1080, FPSNum: 24000, FPSDenum: 1000, SARWidth: 1, SARHeight: 1},
				ESD:       ElementaryStreamDescriptor{DecoderSpecificInfo: []byte{0x01, 0x02, 0x03}},
				Samples: []Sample{
					{Length: 1000, ByteOffset: 0, DTS: 0, IsRAP: true},
					{Length: 500, ByteOffset: 1000, DTS: 1000, CTSOffset: 200},
				},
			},
			{
				Number:    2,
				ID:        2,
				Kind:      MediaAudio,
				Subtype:   0x6d703461, // "mp4a"
				Timescale: 48000,
				Duration:  480000,
				MimeType:  "audio/mp4",
				Codecs:    "mp4a.40.2",
				Audio:     AudioParams{SampleRate: 48000, Channels: 2, BitsPerSample: 16},
				Samples: []Sample{
					{Length: 200, ByteOffset: 1500, DTS: 0, IsRAP: true},
				},
			},
		},
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	m := sampleIndexFixture()
	decoded, err := Decode(Encode(m))
	require.NoError(t, err)

	require.Len(t, decoded.Tracks, len(m.Tracks))
	for i := range m.Tracks {
		assert.Equal(t, m.Tracks[i].Number, decoded.Tracks[i].Number)
		assert.Equal(t, m.Tracks[i].Codecs, decoded.Tracks[i].Codecs)
		assert.Equal(t, m.Tracks[i].Samples, decoded.Tracks[i].Samples)
		assert.Equal(t, m.Tracks[i].Video, decoded.Tracks[i].Video)
		assert.Equal(t, m.Tracks[i].Audio, decoded.Tracks[i].Audio)
		assert.Equal(t, m.Tracks[i].ESD, decoded.Tracks[i].ESD)
	}
	assert.Equal(t, CurrentVersion, decoded.Version)
}

func TestDecodeRejectsUnsupportedVersion(t *testing.T) {
	_, err := Decode([]byte{0, 0, 0, 99, 0, 0, 0, 0})
	kind, ok := apperr.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, apperr.KindUnsupportedMetadataVersion, kind)
}

func TestDecodeRejectsTruncatedPayload(t *testing.T) {
	full := Encode(sampleIndexFixture())
	_, err := Decode(full[:len(full)-3])
	kind, ok := apperr.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, apperr.KindCorruptMetadata, kind)
}

func TestDecodeRejectsTrailingBytes(t *testing.T) {
	full := Encode(sampleIndexFixture())
	full = append(full, 0xFF, 0xFF)
	_, err := Decode(full)
	kind, ok := apperr.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, apperr.KindCorruptMetadata, kind)
}
