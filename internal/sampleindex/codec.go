package sampleindex

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/splicevod/splicevod/internal/apperr"
)

// Encode serializes m as a length-prefixed, versioned binary record.
// The top-level shape is: version (uint32) | track count (uint32) |
// tracks. Encode always writes CurrentVersion regardless of m.Version,
// mirroring the source format's "decoder accepts old versions, encoder
// always emits the current one" policy.
func Encode(m *MediaIndex) []byte {
	var buf bytes.Buffer
	writeU32(&buf, CurrentVersion)
	writeU32(&buf, uint32(len(m.Tracks)))
	for i := range m.Tracks {
		encodeTrack(&buf, &m.Tracks[i], CurrentVersion)
	}
	return buf.Bytes()
}

// Decode parses a MediaIndex previously produced by Encode (or by an
// older supported version). It validates the version tag and the
// overall shape before trusting any nested data.
func Decode(data []byte) (*MediaIndex, error) {
	r := bytes.NewReader(data)

	version, err := readU32(r)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindCorruptMetadata, "reading version tag", err)
	}
	if version != 1 && version != 2 {
		return nil, apperr.New(apperr.KindUnsupportedMetadataVersion, fmt.Sprintf("version %d not supported", version))
	}

	trackCount, err := readU32(r)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindCorruptMetadata, "reading track count", err)
	}

	m := &MediaIndex{Version: int(version), Tracks: make([]Track, trackCount)}
	for i := uint32(0); i < trackCount; i++ {
		t, err := decodeTrack(r, version)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindCorruptMetadata, fmt.Sprintf("decoding track %d", i), err)
		}
		m.Tracks[i] = *t
	}

	if r.Len() != 0 {
		return nil, apperr.New(apperr.KindCorruptMetadata, "trailing bytes after last track")
	}

	return m, nil
}

func encodeTrack(buf *bytes.Buffer, t *Track, version int) {
	writeU32(buf, t.Number)
	writeU32(buf, t.ID)
	writeU8(buf, uint8(t.Kind))
	writeU32(buf, t.Subtype)
	writeU32(buf, t.MPEG4Subtype)
	writeU32(buf, 0) // reserved (was stream_type in the original, folded into ESD below)
	writeU32(buf, t.Timescale)
	writeU64(buf, t.Duration)
	writeU32(buf, t.MediaTimescale)
	writeU64(buf, t.MediaDuration)
	writeU64(buf, t.DataSize)
	writeU64(buf, t.Bandwidth)
	writeString(buf, t.MimeType)
	writeString(buf, t.Codecs)

	writeU32(buf, t.Audio.SampleRate)
	writeU16(buf, t.Audio.Channels)
	if version >= 2 {
		writeU16(buf, t.Audio.BitsPerSample)
	}

	writeU32(buf, t.Video.Width)
	writeU32(buf, t.Video.Height)
	writeU32(buf, t.Video.FPSNum)
	writeU32(buf, t.Video.FPSDenum)
	if version >= 2 {
		writeU32(buf, t.Video.SARWidth)
		writeU32(buf, t.Video.SARHeight)
	}

	writeU8(buf, t.ESD.ObjectTypeIndication)
	writeU8(buf, t.ESD.StreamType)
	writeU32(buf, t.ESD.MaxBitrate)
	writeU32(buf, t.ESD.AvgBitrate)
	writeBytes(buf, t.ESD.DecoderSpecificInfo)

	writeU32(buf, uint32(len(t.Samples)))
	for i := range t.Samples {
		s := &t.Samples[i]
		writeU32(buf, s.Length)
		writeU64(buf, s.ByteOffset)
		writeU64(buf, s.DTS)
		writeI64(buf, s.CTSOffset)
		writeU32(buf, s.DescriptionIndex)
		writeBool(buf, s.IsRAP)
	}
}

func decodeTrack(r *bytes.Reader, version uint32) (*Track, error) {
	t := &Track{}

	var err error
	if t.Number, err = readU32(r); err != nil {
		return nil, err
	}
	if t.ID, err = readU32(r); err != nil {
		return nil, err
	}
	kind, err := readU8(r)
	if err != nil {
		return nil, err
	}
	t.Kind = MediaKind(kind)
	if t.Subtype, err = readU32(r); err != nil {
		return nil, err
	}
	if t.MPEG4Subtype, err = readU32(r); err != nil {
		return nil, err
	}
	if _, err = readU32(r); err != nil { // reserved
		return nil, err
	}
	if t.Timescale, err = readU32(r); err != nil {
		return nil, err
	}
	if t.Duration, err = readU64(r); err != nil {
		return nil, err
	}
	if t.MediaTimescale, err = readU32(r); err != nil {
		return nil, err
	}
	if t.MediaDuration, err = readU64(r); err != nil {
		return nil, err
	}
	if t.DataSize, err = readU64(r); err != nil {
		return nil, err
	}
	if t.Bandwidth, err = readU64(r); err != nil {
		return nil, err
	}
	if t.MimeType, err = readString(r); err != nil {
		return nil, err
	}
	if t.Codecs, err = readString(r); err != nil {
		return nil, err
	}

	if t.Audio.SampleRate, err = readU32(r); err != nil {
		return nil, err
	}
	if t.Audio.Channels, err = readU16(r); err != nil {
		return nil, err
	}
	if version >= 2 {
		if t.Audio.BitsPerSample, err = readU16(r); err != nil {
			return nil, err
		}
	}

	if t.Video.Width, err = readU32(r); err != nil {
		return nil, err
	}
	if t.Video.Height, err = readU32(r); err != nil {
		return nil, err
	}
	if t.Video.FPSNum, err = readU32(r); err != nil {
		return nil, err
	}
	if t.Video.FPSDenum, err = readU32(r); err != nil {
		return nil, err
	}
	if version >= 2 {
		if t.Video.SARWidth, err = readU32(r); err != nil {
			return nil, err
		}
		if t.Video.SARHeight, err = readU32(r); err != nil {
			return nil, err
		}
	}

	if t.ESD.ObjectTypeIndication, err = readU8(r); err != nil {
		return nil, err
	}
	if t.ESD.StreamType, err = readU8(r); err != nil {
		return nil, err
	}
	if t.ESD.MaxBitrate, err = readU32(r); err != nil {
		return nil, err
	}
	if t.ESD.AvgBitrate, err = readU32(r); err != nil {
		return nil, err
	}
	if t.ESD.DecoderSpecificInfo, err = readBytes(r); err != nil {
		return nil, err
	}

	sampleCount, err := readU32(r)
	if err != nil {
		return nil, err
	}
	t.Samples = make([]Sample, sampleCount)
	for i := uint32(0); i < sampleCount; i++ {
		s := &t.Samples[i]
		if s.Length, err = readU32(r); err != nil {
			return nil, err
		}
		if s.ByteOffset, err = readU64(r); err != nil {
			return nil, err
		}
		if s.DTS, err = readU64(r); err != nil {
			return nil, err
		}
		if s.CTSOffset, err = readI64(r); err != nil {
			return nil, err
		}
		if s.DescriptionIndex, err = readU32(r); err != nil {
			return nil, err
		}
		if s.IsRAP, err = readBool(r); err != nil {
			return nil, err
		}
	}

	return t, nil
}

// --- primitive wire helpers ---

func writeU8(buf *bytes.Buffer, v uint8)   { buf.WriteByte(v) }
func writeU16(buf *bytes.Buffer, v uint16) { _ = binary.Write(buf, binary.BigEndian, v) }
func writeU32(buf *bytes.Buffer, v uint32) { _ = binary.Write(buf, binary.BigEndian, v) }
func writeU64(buf *bytes.Buffer, v uint64) { _ = binary.Write(buf, binary.BigEndian, v) }
func writeI64(buf *bytes.Buffer, v int64)  { _ = binary.Write(buf, binary.BigEndian, v) }
func writeBool(buf *bytes.Buffer, v bool) {
	if v {
		buf.WriteByte(1)
	} else {
		buf.WriteByte(0)
	}
}
func writeBytes(buf *bytes.Buffer, b []byte) {
	writeU32(buf, uint32(len(b)))
	buf.Write(b)
}
func writeString(buf *bytes.Buffer, s string) {
	writeBytes(buf, []byte(s))
}

func readU8(r *bytes.Reader) (uint8, error)   { return r.ReadByte() }
func readU16(r *bytes.Reader) (uint16, error) {
	var v uint16
	err := binary.Read(r, binary.BigEndian, &v)
	return v, err
}
func readU32(r *bytes.Reader) (uint32, error) {
	var v uint32
	err := binary.Read(r, binary.BigEndian, &v)
	return v, err
}
func readU64(r *bytes.Reader) (uint64, error) {
	var v uint64
	err := binary.Read(r, binary.BigEndian, &v)
	return v, err
}
func readI64(r *bytes.Reader) (int64, error) {
	var v int64
	err := binary.Read(r, binary.BigEndian, &v)
	return v, err
}
func readBool(r *bytes.Reader) (bool, error) {
	b, err := r.ReadByte()
	return b != 0, err
}
func readBytes(r *bytes.Reader) ([]byte, error) {
	n, err := readU32(r)
	if err != nil {
		return nil, err
	}
	if int64(n) > int64(r.Len()) {
		return nil, io.ErrUnexpectedEOF
	}
	if n == 0 {
		// Encode writes nil and empty slices alike as length 0; decode
		// them as nil so an index with unset byte fields round-trips.
		return nil, nil
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	return b, nil
}
func readString(r *bytes.Reader) (string, error) {
	b, err := readBytes(r)
	return string(b), err
}
