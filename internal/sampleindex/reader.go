package sampleindex

import (
	"fmt"
	"io"

	gomp4 "github.com/abema/go-mp4"
	"github.com/splicevod/splicevod/internal/apperr"
)

// ReadFromFMP4 builds a MediaIndex by walking the moov box tables of a
// source MP4 file: one Track per "trak", with samples reconstructed from
// stts (DTS deltas), ctts (CTS offsets), stsz (sizes), stco/co64 (chunk
// offsets) and stss (RAP flags). Movie fragments (moof/traf/trun) are not
// read, so a file whose samples live only in fragments fails with a
// corrupt-metadata error. The media kind, width/height and sample
// rate/channel count come from the track's first stsd sample entry; the
// codec string is a fixed value per sample-entry type, and the avcC,
// hvcC and esds configuration boxes are not read, so the track's
// ElementaryStreamDescriptor stays empty. This plays the role the
// teacher's live relay demuxer plays for a continuous stream, but offline
// and against a seekable whole-file reader, as an ingest tool would use
// it.
func ReadFromFMP4(r io.ReadSeeker) (*MediaIndex, error) {
	trakBoxes, err := gomp4.ExtractBox(r, nil, gomp4.BoxPath{gomp4.BoxTypeMoov(), gomp4.BoxTypeTrak()})
	if err != nil {
		return nil, apperr.Wrap(apperr.KindCorruptMetadata, "reading moov/trak boxes", err)
	}
	if len(trakBoxes) == 0 {
		return nil, apperr.New(apperr.KindCorruptMetadata, "asset has no tracks")
	}

	m := &MediaIndex{Version: CurrentVersion}
	for i, trak := range trakBoxes {
		t, err := readTrack(r, trak, uint32(i+1))
		if err != nil {
			return nil, apperr.Wrap(apperr.KindCorruptMetadata, fmt.Sprintf("reading track %d", i+1), err)
		}
		m.Tracks = append(m.Tracks, *t)
	}
	return m, nil
}

func readTrack(r io.ReadSeeker, trak *gomp4.BoxInfo, number uint32) (*Track, error) {
	t := &Track{Number: number}

	tkhdBoxes, err := gomp4.ExtractBoxWithPayload(r, trak, gomp4.BoxPath{gomp4.BoxTypeTkhd()})
	if err != nil {
		return nil, fmt.Errorf("reading tkhd: %w", err)
	}
	if len(tkhdBoxes) > 0 {
		if tkhd, ok := tkhdBoxes[0].Payload.(*gomp4.Tkhd); ok {
			t.ID = tkhd.TrackID
		}
	}

	mdhdBoxes, err := gomp4.ExtractBoxWithPayload(r, trak, gomp4.BoxPath{gomp4.BoxTypeMdia(), gomp4.BoxTypeMdhd()})
	if err != nil {
		return nil, fmt.Errorf("reading mdhd: %w", err)
	}
	if len(mdhdBoxes) > 0 {
		if mdhd, ok := mdhdBoxes[0].Payload.(*gomp4.Mdhd); ok {
			t.MediaTimescale = mdhd.Timescale
			t.MediaDuration = uint64(mdhd.DurationV0)
			if mdhd.GetVersion() == 1 {
				t.MediaDuration = mdhd.DurationV1
			}
		}
	}
	t.Timescale = t.MediaTimescale

	stsdPath := gomp4.BoxPath{gomp4.BoxTypeMdia(), gomp4.BoxTypeMinf(), gomp4.BoxTypeStbl(), gomp4.BoxTypeStsd()}
	if err := readSampleDescription(r, trak, stsdPath, t); err != nil {
		return nil, fmt.Errorf("reading stsd: %w", err)
	}

	sttsBoxes, err := gomp4.ExtractBoxWithPayload(r, trak, gomp4.BoxPath{gomp4.BoxTypeMdia(), gomp4.BoxTypeMinf(), gomp4.BoxTypeStbl(), gomp4.BoxTypeStts()})
	if err != nil {
		return nil, fmt.Errorf("reading stts: %w", err)
	}
	if len(sttsBoxes) == 0 {
		return nil, fmt.Errorf("track has no stts box")
	}
	stts, ok := sttsBoxes[0].Payload.(*gomp4.Stts)
	if !ok {
		return nil, fmt.Errorf("unexpected stts payload type")
	}

	cttsOffsets := readCTTS(r, trak)
	sizes := readSTSZ(r, trak)
	offsets := readChunkOffsets(r, trak)
	rapSet := readSTSS(r, trak)

	dtsDeltas := expandSTTS(stts)
	t.Samples = make([]Sample, len(dtsDeltas))
	var runningDTS uint64
	var totalDur uint64
	for i, delta := range dtsDeltas {
		s := Sample{DTS: runningDTS}
		if i < len(sizes) {
			s.Length = sizes[i]
		}
		if i < len(offsets) {
			s.ByteOffset = offsets[i]
		}
		if i < len(cttsOffsets) {
			s.CTSOffset = cttsOffsets[i]
		}
		if len(rapSet) == 0 {
			s.IsRAP = i == 0
		} else {
			s.IsRAP = rapSet[uint32(i+1)]
		}
		s.DescriptionIndex = 1
		t.Samples[i] = s
		runningDTS += uint64(delta)
		totalDur += uint64(delta)
	}
	t.Duration = totalDur

	if len(t.Samples) < 2 {
		return nil, apperr.New(apperr.KindDegenerateTrack, "track has fewer than two samples")
	}
	if !t.Samples[0].IsRAP {
		t.Samples[0].IsRAP = true
	}

	return t, nil
}

func readSampleDescription(r io.ReadSeeker, trak *gomp4.BoxInfo, path gomp4.BoxPath, t *Track) error {
	boxes, err := gomp4.ExtractBoxWithPayload(r, trak, path)
	if err != nil || len(boxes) == 0 {
		return err
	}
	stsd, ok := boxes[0].Payload.(*gomp4.Stsd)
	if !ok || len(stsd.Entries) == 0 {
		return nil
	}

	switch entry := stsd.Entries[0].(type) {
	case *gomp4.VisualSampleEntry:
		t.Kind = MediaVideo
		t.Subtype = fourCC(entry.GetType())
		t.Video.Width = uint32(entry.Width)
		t.Video.Height = uint32(entry.Height)
		t.MimeType = "video/mp4"
		t.Codecs = codecStringForVisual(entry)
	case *gomp4.AudioSampleEntry:
		t.Kind = MediaAudio
		t.Subtype = fourCC(entry.GetType())
		t.Audio.SampleRate = entry.SampleRate >> 16
		t.Audio.Channels = entry.ChannelCount
		t.MimeType = "audio/mp4"
		t.Codecs = codecStringForAudio(entry)
	default:
		t.Kind = MediaOther
	}
	return nil
}

func fourCC(bt gomp4.BoxType) uint32 {
	b := bt.String()
	if len(b) != 4 {
		return 0
	}
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

func codecStringForVisual(entry *gomp4.VisualSampleEntry) string {
	switch entry.GetType().String() {
	case "avc1", "avc3":
		return "avc1.640028"
	case "hvc1", "hev1":
		return "hvc1.1.6.L93.B0"
	default:
		return entry.GetType().String()
	}
}

func codecStringForAudio(entry *gomp4.AudioSampleEntry) string {
	switch entry.GetType().String() {
	case "mp4a":
		return "mp4a.40.2"
	case "ac-3":
		return "ac-3"
	case "ec-3":
		return "ec-3"
	case "Opus":
		return "opus"
	default:
		return entry.GetType().String()
	}
}

func expandSTTS(stts *gomp4.Stts) []uint32 {
	var deltas []uint32
	for _, e := range stts.Entries {
		for i := uint32(0); i < e.SampleCount; i++ {
			deltas = append(deltas, e.SampleDelta)
		}
	}
	return deltas
}

func readCTTS(r io.ReadSeeker, trak *gomp4.BoxInfo) []int64 {
	boxes, err := gomp4.ExtractBoxWithPayload(r, trak, gomp4.BoxPath{gomp4.BoxTypeMdia(), gomp4.BoxTypeMinf(), gomp4.BoxTypeStbl(), gomp4.BoxTypeCtts()})
	if err != nil || len(boxes) == 0 {
		return nil
	}
	ctts, ok := boxes[0].Payload.(*gomp4.Ctts)
	if !ok {
		return nil
	}
	var offsets []int64
	for _, e := range ctts.Entries {
		for i := uint32(0); i < e.SampleCount; i++ {
			offsets = append(offsets, int64(e.SampleOffsetV1))
		}
	}
	return offsets
}

func readSTSZ(r io.ReadSeeker, trak *gomp4.BoxInfo) []uint32 {
	boxes, err := gomp4.ExtractBoxWithPayload(r, trak, gomp4.BoxPath{gomp4.BoxTypeMdia(), gomp4.BoxTypeMinf(), gomp4.BoxTypeStbl(), gomp4.BoxTypeStsz()})
	if err != nil || len(boxes) == 0 {
		return nil
	}
	stsz, ok := boxes[0].Payload.(*gomp4.Stsz)
	if !ok {
		return nil
	}
	if stsz.SampleSize != 0 {
		sizes := make([]uint32, stsz.SampleCount)
		for i := range sizes {
			sizes[i] = stsz.SampleSize
		}
		return sizes
	}
	return stsz.EntrySize
}

func readChunkOffsets(r io.ReadSeeker, trak *gomp4.BoxInfo) []uint64 {
	stcoBoxes, err := gomp4.ExtractBoxWithPayload(r, trak, gomp4.BoxPath{gomp4.BoxTypeMdia(), gomp4.BoxTypeMinf(), gomp4.BoxTypeStbl(), gomp4.BoxTypeStco()})
	if err == nil && len(stcoBoxes) > 0 {
		if stco, ok := stcoBoxes[0].Payload.(*gomp4.Stco); ok {
			offsets := make([]uint64, len(stco.ChunkOffset))
			for i, o := range stco.ChunkOffset {
				offsets[i] = uint64(o)
			}
			return expandChunkOffsetsToSamples(r, trak, offsets)
		}
	}
	co64Boxes, err := gomp4.ExtractBoxWithPayload(r, trak, gomp4.BoxPath{gomp4.BoxTypeMdia(), gomp4.BoxTypeMinf(), gomp4.BoxTypeStbl(), gomp4.BoxTypeCo64()})
	if err == nil && len(co64Boxes) > 0 {
		if co64, ok := co64Boxes[0].Payload.(*gomp4.Co64); ok {
			return expandChunkOffsetsToSamples(r, trak, co64.ChunkOffset)
		}
	}
	return nil
}

// expandChunkOffsetsToSamples turns per-chunk base offsets into
// per-sample absolute offsets using stsc (sample-to-chunk) and stsz
// (per-sample sizes), matching the ISO/IEC 14496-12 interleaving.
func expandChunkOffsetsToSamples(r io.ReadSeeker, trak *gomp4.BoxInfo, chunkOffsets []uint64) []uint64 {
	stscBoxes, err := gomp4.ExtractBoxWithPayload(r, trak, gomp4.BoxPath{gomp4.BoxTypeMdia(), gomp4.BoxTypeMinf(), gomp4.BoxTypeStbl(), gomp4.BoxTypeStsc()})
	if err != nil || len(stscBoxes) == 0 {
		return chunkOffsets
	}
	stsc, ok := stscBoxes[0].Payload.(*gomp4.Stsc)
	if !ok || len(stsc.Entries) == 0 {
		return chunkOffsets
	}
	sizes := readSTSZ(r, trak)

	var offsets []uint64
	sampleIdx := 0
	for entryIdx, entry := range stsc.Entries {
		firstChunk := int(entry.FirstChunk)
		lastChunk := len(chunkOffsets)
		if entryIdx+1 < len(stsc.Entries) {
			lastChunk = int(stsc.Entries[entryIdx+1].FirstChunk) - 1
		}
		for chunk := firstChunk; chunk <= lastChunk && chunk <= len(chunkOffsets); chunk++ {
			pos := chunkOffsets[chunk-1]
			for s := uint32(0); s < entry.SamplesPerChunk; s++ {
				offsets = append(offsets, pos)
				if sampleIdx < len(sizes) {
					pos += uint64(sizes[sampleIdx])
				}
				sampleIdx++
			}
		}
	}
	return offsets
}

func readSTSS(r io.ReadSeeker, trak *gomp4.BoxInfo) map[uint32]bool {
	boxes, err := gomp4.ExtractBoxWithPayload(r, trak, gomp4.BoxPath{gomp4.BoxTypeMdia(), gomp4.BoxTypeMinf(), gomp4.BoxTypeStbl(), gomp4.BoxTypeStss()})
	if err != nil || len(boxes) == 0 {
		return nil
	}
	stss, ok := boxes[0].Payload.(*gomp4.Stss)
	if !ok {
		return nil
	}
	set := make(map[uint32]bool, len(stss.SampleNumber))
	for _, n := range stss.SampleNumber {
		set[n] = true
	}
	return set
}
