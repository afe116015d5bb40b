package assembler

import (
	"bytes"
	"fmt"

	"github.com/bluenviron/mediacommon/v2/pkg/codecs/mpeg4audio"
	"github.com/bluenviron/mediacommon/v2/pkg/formats/mpegts"

	"github.com/splicevod/splicevod/internal/apperr"
	"github.com/splicevod/splicevod/internal/planner"
)

const (
	tsVideoPID = 0x0100
	tsAudioPID = 0x0101
)

// buildMPEGTSCodec selects the mpegts.Codec for a track and, for AAC,
// parses the decoder-specific info into an AudioSpecificConfig so the
// written ADTS headers carry the right sample rate/channel count.
func buildMPEGTSCodec(track *planner.TrackRequest) (mpegts.Codec, error) {
	t := track.Track
	switch {
	case hasPrefix(t.Codecs, "avc1") || hasPrefix(t.Codecs, "avc3"):
		return &mpegts.CodecH264{}, nil
	case hasPrefix(t.Codecs, "hvc1") || hasPrefix(t.Codecs, "hev1"):
		return &mpegts.CodecH265{}, nil
	case hasPrefix(t.Codecs, "mp4a"):
		var cfg mpeg4audio.AudioSpecificConfig
		if len(t.ESD.DecoderSpecificInfo) > 0 {
			if err := cfg.Unmarshal(t.ESD.DecoderSpecificInfo); err != nil {
				cfg = mpeg4audio.AudioSpecificConfig{Type: mpeg4audio.ObjectTypeAACLC, SampleRate: int(t.Audio.SampleRate), ChannelCount: int(t.Audio.Channels)}
			}
		} else {
			cfg = mpeg4audio.AudioSpecificConfig{Type: mpeg4audio.ObjectTypeAACLC, SampleRate: int(t.Audio.SampleRate), ChannelCount: int(t.Audio.Channels)}
		}
		return &mpegts.CodecMPEG4Audio{Config: cfg}, nil
	case hasPrefix(t.Codecs, "ac-3"):
		return &mpegts.CodecAC3{SampleRate: int(t.Audio.SampleRate), ChannelCount: int(t.Audio.Channels)}, nil
	case hasPrefix(t.Codecs, "ec-3"):
		return &mpegts.CodecEAC3{SampleRate: int(t.Audio.SampleRate), ChannelCount: int(t.Audio.Channels)}, nil
	case hasPrefix(t.Codecs, "opus"):
		return &mpegts.CodecOpus{ChannelCount: int(t.Audio.Channels)}, nil
	default:
		return nil, apperr.New(apperr.KindAssemblerFailed, fmt.Sprintf("unsupported codec %q for TS mux", t.Codecs))
	}
}

// rescaleTo90kHz converts a timestamp from a track's native timescale
// to MPEG-TS's fixed 90kHz clock, mirroring rescale_ts() in the ground
// truth muxer, which applies this only to video timestamps — audio
// passes through unscaled.
func rescaleTo90kHz(value int64, timescale uint32) int64 {
	if timescale == 0 || timescale == 90000 {
		return value
	}
	return value * 90000 / int64(timescale)
}

// splitAVCCAccessUnit splits one MP4 sample's AVCC payload (a run of
// 4-byte-length-prefixed NAL units, as stored by the ingest reader and
// the object store) into the bare NALU slice mediacommon's WriteH264 /
// WriteH265 expect. This plays the role h264_mp4toannexb plays in a
// conventional muxer pipeline: mediacommon's high-level Write* methods
// perform the actual Annex B start-code conversion internally once
// handed this slice.
func splitAVCCAccessUnit(data []byte) [][]byte {
	var au [][]byte
	for len(data) >= 4 {
		n := int(data[0])<<24 | int(data[1])<<16 | int(data[2])<<8 | int(data[3])
		data = data[4:]
		if n < 0 || n > len(data) {
			break
		}
		au = append(au, data[:n])
		data = data[n:]
	}
	if len(au) == 0 && len(data) > 0 {
		au = [][]byte{data}
	}
	return au
}

// RenderTSSegment remuxes samples [posStart, posEnd] of tr into an
// MPEG-TS segment, writing PAT/PMT once up front followed by one PES
// packet per sample via mediacommon's per-codec Write* helpers.
func RenderTSSegment(tr *planner.TrackRequest, posStart, posEnd int, rawBytes []byte) ([]byte, error) {
	samples := tr.Samples
	if posStart < 0 || posEnd >= len(samples) || posStart > posEnd {
		return nil, apperr.New(apperr.KindAssemblerFailed, "invalid sample range for TS segment")
	}

	codec, err := buildMPEGTSCodec(tr)
	if err != nil {
		return nil, err
	}

	pid := uint16(tsVideoPID)
	if tr.Track.Kind.String() == "audio" {
		pid = tsAudioPID
	}
	track := &mpegts.Track{PID: pid, Codec: codec}

	var out bytes.Buffer
	w := &mpegts.Writer{W: &out, Tracks: []*mpegts.Track{track}}
	if err := w.Initialize(); err != nil {
		return nil, apperr.Wrap(apperr.KindAssemblerFailed, "initializing TS writer", err)
	}
	if _, err := w.WriteTables(); err != nil {
		return nil, apperr.Wrap(apperr.KindAssemblerFailed, "writing PAT/PMT", err)
	}

	baseByteOffset := samples[posStart].ByteOffset
	isVideo := tr.Track.Kind.String() == "video"

	for i := posStart; i <= posEnd; i++ {
		s := samples[i]
		relStart := s.ByteOffset - baseByteOffset
		if relStart+uint64(s.Length) > uint64(len(rawBytes)) {
			return nil, apperr.New(apperr.KindAssemblerFailed, "sample payload exceeds fetched byte range")
		}
		payload := rawBytes[relStart : relStart+uint64(s.Length)]

		dts := int64(s.DTS)
		pts := dts + s.CTSOffset
		if isVideo {
			dts = rescaleTo90kHz(dts, tr.Track.Timescale)
			pts = rescaleTo90kHz(pts, tr.Track.Timescale)
		}

		var writeErr error
		if isVideo {
			au := splitAVCCAccessUnit(payload)
			switch codec.(type) {
			case *mpegts.CodecH265:
				writeErr = w.WriteH265(track, pts, dts, au)
			default:
				writeErr = w.WriteH264(track, pts, dts, au)
			}
		} else {
			switch codec.(type) {
			case *mpegts.CodecAC3:
				writeErr = w.WriteAC3(track, pts, payload)
			case *mpegts.CodecEAC3:
				writeErr = w.WriteEAC3(track, pts, payload)
			case *mpegts.CodecOpus:
				writeErr = w.WriteOpus(track, pts, [][]byte{payload})
			default:
				writeErr = w.WriteMPEG4Audio(track, pts, [][]byte{payload})
			}
		}
		if writeErr != nil {
			return nil, apperr.Wrap(apperr.KindAssemblerFailed, "writing TS sample", writeErr)
		}
	}

	return out.Bytes(), nil
}
