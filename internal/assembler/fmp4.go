// Package assembler turns a resolved sample range plus the raw bytes
// read for it into a finished fragmented MP4 or MPEG-TS segment. It
// never re-encodes a sample; it only repackages byte-identical payloads
// with the timing metadata the target container needs.
package assembler

import (
	"bytes"
	"fmt"
	"io"

	"github.com/bluenviron/mediacommon/v2/pkg/codecs/mpeg4audio"
	"github.com/bluenviron/mediacommon/v2/pkg/formats/fmp4"
	"github.com/bluenviron/mediacommon/v2/pkg/formats/mp4"

	"github.com/splicevod/splicevod/internal/apperr"
	"github.com/splicevod/splicevod/internal/planner"
)

const (
	videoTrackID = 1
	audioTrackID = 2
)

// seekableBuffer adapts bytes.Buffer to io.WriteSeeker, which
// fmp4.Init.Marshal and fmp4.Part.Marshal require even though segments
// are always written linearly here.
type seekableBuffer struct {
	buf *bytes.Buffer
	pos int64
}

func newSeekableBuffer() *seekableBuffer { return &seekableBuffer{buf: &bytes.Buffer{}} }

func (s *seekableBuffer) Write(p []byte) (int, error) {
	if int(s.pos) == s.buf.Len() {
		n, err := s.buf.Write(p)
		s.pos += int64(n)
		return n, err
	}
	b := s.buf.Bytes()
	n := copy(b[s.pos:], p)
	if n < len(p) {
		m, err := s.buf.Write(p[n:])
		n += m
		if err != nil {
			return n, err
		}
	}
	s.pos += int64(n)
	return n, nil
}

func (s *seekableBuffer) Seek(offset int64, whence int) (int64, error) {
	var newPos int64
	switch whence {
	case io.SeekStart:
		newPos = offset
	case io.SeekCurrent:
		newPos = s.pos + offset
	case io.SeekEnd:
		newPos = int64(s.buf.Len()) + offset
	}
	if newPos < 0 {
		return 0, fmt.Errorf("assembler: negative seek position")
	}
	s.pos = newPos
	return newPos, nil
}

// buildCodec translates a planned TrackRequest's resolved source track
// into an mp4.Codec, using the track's RFC 6381 codec string to pick
// the family and the ESD's decoder-specific info as the raw
// SPS/PPS/VPS/sequence-header payload the reader packed it with.
func buildCodec(tr *planner.TrackRequest) (mp4.Codec, error) {
	track := tr.Track
	info := track.ESD.DecoderSpecificInfo

	switch {
	case hasPrefix(track.Codecs, "avc1") || hasPrefix(track.Codecs, "avc3"):
		sps, pps, err := splitTwoLengthPrefixed(info)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindAssemblerFailed, "splitting avcC SPS/PPS", err)
		}
		return &mp4.CodecH264{SPS: sps, PPS: pps}, nil

	case hasPrefix(track.Codecs, "hvc1") || hasPrefix(track.Codecs, "hev1"):
		vps, sps, pps, err := splitThreeLengthPrefixed(info)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindAssemblerFailed, "splitting hvcC VPS/SPS/PPS", err)
		}
		return &mp4.CodecH265{VPS: vps, SPS: sps, PPS: pps}, nil

	case hasPrefix(track.Codecs, "av01"):
		return &mp4.CodecAV1{SequenceHeader: info}, nil

	case hasPrefix(track.Codecs, "vp09"):
		return &mp4.CodecVP9{Width: int(track.Video.Width), Height: int(track.Video.Height)}, nil

	case hasPrefix(track.Codecs, "mp4a"):
		var cfg mpeg4audio.AudioSpecificConfig
		if len(info) > 0 {
			if err := cfg.Unmarshal(info); err != nil {
				return nil, apperr.Wrap(apperr.KindAssemblerFailed, "parsing AudioSpecificConfig", err)
			}
		} else {
			cfg = mpeg4audio.AudioSpecificConfig{
				Type:         mpeg4audio.ObjectTypeAACLC,
				SampleRate:   int(track.Audio.SampleRate),
				ChannelCount: int(track.Audio.Channels),
			}
		}
		return &mp4.CodecMPEG4Audio{Config: cfg}, nil

	case hasPrefix(track.Codecs, "opus"):
		return &mp4.CodecOpus{ChannelCount: int(track.Audio.Channels)}, nil

	case hasPrefix(track.Codecs, "ac-3"):
		return &mp4.CodecAC3{SampleRate: int(track.Audio.SampleRate), ChannelCount: int(track.Audio.Channels)}, nil

	default:
		return nil, apperr.New(apperr.KindAssemblerFailed, fmt.Sprintf("unsupported codec %q for fMP4 mux", track.Codecs))
	}
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

// splitTwoLengthPrefixed reads two uint32-length-prefixed blobs (SPS
// then PPS) from b.
func splitTwoLengthPrefixed(b []byte) (first, second []byte, err error) {
	first, rest, err := readLengthPrefixed(b)
	if err != nil {
		return nil, nil, err
	}
	second, _, err = readLengthPrefixed(rest)
	return first, second, err
}

func splitThreeLengthPrefixed(b []byte) (first, second, third []byte, err error) {
	first, rest, err := readLengthPrefixed(b)
	if err != nil {
		return nil, nil, nil, err
	}
	second, rest, err = readLengthPrefixed(rest)
	if err != nil {
		return nil, nil, nil, err
	}
	third, _, err = readLengthPrefixed(rest)
	return first, second, third, err
}

func readLengthPrefixed(b []byte) (value, rest []byte, err error) {
	if len(b) < 4 {
		return nil, nil, fmt.Errorf("truncated length-prefixed blob")
	}
	n := int(b[0])<<24 | int(b[1])<<16 | int(b[2])<<8 | int(b[3])
	if len(b) < 4+n {
		return nil, nil, fmt.Errorf("length-prefixed blob exceeds buffer")
	}
	return b[4 : 4+n], b[4+n:], nil
}

// RenderInit builds the fMP4 initialization segment (moov prefix, no
// media) for repr's first TrackRequest's resolved source track.
func RenderInit(repr *planner.Representation) ([]byte, error) {
	if len(repr.Tracks) == 0 {
		return nil, apperr.New(apperr.KindAssemblerFailed, "representation has no track requests")
	}
	tr := repr.Tracks[0]
	codec, err := buildCodec(tr)
	if err != nil {
		return nil, err
	}

	init := &fmp4.Init{
		Tracks: []*fmp4.InitTrack{
			{ID: trackIDFor(tr.Track.Kind.String()), TimeScale: tr.Track.Timescale, Codec: codec},
		},
	}

	buf := newSeekableBuffer()
	if err := init.Marshal(buf); err != nil {
		return nil, apperr.Wrap(apperr.KindAssemblerFailed, "marshaling fMP4 init segment", err)
	}
	return buf.buf.Bytes(), nil
}

func trackIDFor(kind string) int {
	if kind == "video" {
		return videoTrackID
	}
	return audioTrackID
}

// RenderMediaSegment remuxes the samples in [posStart, posEnd] of tr,
// whose raw bytes were read into rawBytes (covering exactly
// [samples[posStart].ByteOffset, samples[posEnd].ByteOffset+Length)),
// into one or more fMP4 fragments following the init segment's track
// layout, returning only the fragment bytes (the init prefix is served
// separately, by the init route).
func RenderMediaSegment(tr *planner.TrackRequest, posStart, posEnd int, rawBytes []byte) ([]byte, error) {
	samples := tr.Samples
	if posStart < 0 || posEnd >= len(samples) || posStart > posEnd {
		return nil, apperr.New(apperr.KindAssemblerFailed, "invalid sample range for media segment")
	}

	trackID := trackIDFor(tr.Track.Kind.String())
	baseByteOffset := samples[posStart].ByteOffset

	var buf bytes.Buffer
	sequenceNumber := uint32(1)
	fragDurationLimit := uint64(tr.Track.Timescale) // ~1s per spec's fragment_duration=1s

	var fragSamples []*fmp4.Sample
	fragBaseTime := tr.DTSFirstSampleOffset + samples[posStart].DTS
	var fragAccumulated uint64

	flush := func() error {
		if len(fragSamples) == 0 {
			return nil
		}
		part := &fmp4.Part{
			SequenceNumber: sequenceNumber,
			Tracks: []*fmp4.PartTrack{
				{ID: trackID, BaseTime: fragBaseTime, Samples: fragSamples},
			},
		}
		w := newSeekableBuffer()
		if err := part.Marshal(w); err != nil {
			return apperr.Wrap(apperr.KindAssemblerFailed, "marshaling fMP4 fragment", err)
		}
		buf.Write(w.buf.Bytes())
		sequenceNumber++
		fragSamples = nil
		fragAccumulated = 0
		return nil
	}

	for i := posStart; i <= posEnd; i++ {
		s := samples[i]
		var duration uint64
		if i < posEnd {
			duration = samples[i+1].DTS - s.DTS
		} else if i > posStart {
			duration = s.DTS - samples[i-1].DTS
		}

		if len(fragSamples) > 0 && fragAccumulated > fragDurationLimit && s.IsRAP {
			if err := flush(); err != nil {
				return nil, err
			}
			fragBaseTime = tr.DTSFirstSampleOffset + s.DTS
		}

		relStart := s.ByteOffset - baseByteOffset
		if relStart+uint64(s.Length) > uint64(len(rawBytes)) {
			return nil, apperr.New(apperr.KindAssemblerFailed, "sample payload exceeds fetched byte range")
		}
		payload := rawBytes[relStart : relStart+uint64(s.Length)]

		fragSamples = append(fragSamples, &fmp4.Sample{
			Duration:        uint32(duration),
			PTSOffset:       int32(s.CTSOffset),
			IsNonSyncSample: !s.IsRAP,
			Payload:         payload,
		})
		fragAccumulated += duration
	}

	if err := flush(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
