package handlers

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/splicevod/splicevod/internal/apperr"
	"github.com/splicevod/splicevod/internal/assembler"
	"github.com/splicevod/splicevod/internal/planner"
	"github.com/splicevod/splicevod/internal/sampleindex"
)

// GetSegmentInput addresses one fixed-duration chunk of a
// representation.
type GetSegmentInput struct {
	ID    string `path:"id" doc:"Session id"`
	Repr  string `path:"repr" doc:"Representation id"`
	Chunk string `path:"chunk" doc:"Chunk number"`
}

// GetSegmentOutput carries the remuxed chunk.
type GetSegmentOutput struct {
	ContentType string `header:"Content-Type"`
	Body        []byte
}

// GetSegment resolves chunk to its owning TrackRequest, reads exactly
// the byte range its retained samples span, remuxes it into the
// session's container (fMP4 for dash, MPEG-TS for hls), and returns it.
//
// Unlike playlist/init handlers, this one does not fail a session
// purely for being past expires_at: §5 grants an extension of
// chunk_number * chunk_duration_sec beyond expires_at, since a client
// already mid-playback may still be fetching late chunks while the
// session's removal is scheduled.
func (h *Handlers) GetSegment(ctx context.Context, input *GetSegmentInput) (*GetSegmentOutput, error) {
	sess := h.Registry.Lookup(input.ID)
	if sess == nil {
		return nil, toHumaError(apperr.New(apperr.KindUnknownSession, fmt.Sprintf("no session %q", input.ID)))
	}
	repr, ok := sess.Representations[input.Repr]
	if !ok {
		return nil, toHumaError(apperr.New(apperr.KindUnknownRepresentation, fmt.Sprintf("no representation %q", input.Repr)))
	}

	chunk, err := strconv.ParseInt(input.Chunk, 10, 64)
	if err != nil || chunk < 0 {
		return nil, toHumaError(apperr.New(apperr.KindBadRequest, "chunk must be a non-negative integer"))
	}

	tr := repr.FindTrackRequest(chunk, sess.ChunkDurationSec)
	if tr == nil {
		return nil, toHumaError(apperr.New(apperr.KindOutOfRangeHigh, fmt.Sprintf("chunk %d out of range", chunk)))
	}

	extension := time.Duration(chunk*int64(sess.ChunkDurationSec)) * time.Second
	if time.Now().After(sess.ExpiresAt.Add(extension)) {
		return nil, toHumaError(apperr.New(apperr.KindExpired, fmt.Sprintf("session %q has expired", input.ID)))
	}

	posStart, posEnd, err := chunkSampleRange(tr, chunk, sess.ChunkDurationSec)
	if err != nil {
		return nil, toHumaError(err)
	}

	byteStart := tr.Samples[posStart].ByteOffset
	last := tr.Samples[posEnd]
	byteEnd := last.ByteOffset + uint64(last.Length)

	rawBytes, err := h.Store.Read(ctx, tr.Bucket, tr.DataKey, int64(byteStart), int64(byteEnd-byteStart))
	if err != nil {
		return nil, toHumaError(err)
	}

	var body []byte
	var contentType string
	if sess.Type == "hls" {
		body, err = assembler.RenderTSSegment(tr, posStart, posEnd, rawBytes)
		contentType = contentTypeTS
	} else {
		body, err = assembler.RenderMediaSegment(tr, posStart, posEnd, rawBytes)
		contentType = contentTypeMP4
	}
	if err != nil {
		return nil, toHumaError(err)
	}

	return &GetSegmentOutput{ContentType: contentType, Body: body}, nil
}

// chunkSampleRange resolves chunk's position within tr.StartChunkNumber
// to [posStart, posEnd] indices into tr.Samples, RAP-snapping the entry
// point and GOP-closing the exit point exactly as the planner's splice
// pass did when it first resolved the representation.
func chunkSampleRange(tr *planner.TrackRequest, chunk int64, chunkDurationSec int) (int, int, error) {
	local := chunk - tr.StartChunkNumber
	timescale := uint64(tr.Track.Timescale)
	chunkMS := int64(chunkDurationSec) * 1000

	dtsStart := uint64(local*chunkMS) * timescale / 1000
	dtsEnd := uint64((local+1)*chunkMS) * timescale / 1000

	posStart, err := sampleindex.SamplePositionFromDTS(tr.Samples, dtsStart, true)
	if err != nil {
		// §4.8 carves this resolution failure out from the general
		// out-of-range 400 bucket: a chunk addressed by a valid,
		// in-range chunk number whose entry point can't be resolved
		// means the retained sample range is internally inconsistent,
		// not a bad request — report it as a server-side failure.
		return 0, 0, apperr.Wrap(apperr.KindAssemblerFailed, "resolving chunk entry point", err)
	}
	posEnd, err := sampleindex.SamplePositionFromDTS(tr.Samples, dtsEnd, false)
	if err != nil {
		if kind, ok := apperr.KindOf(err); ok && kind == apperr.KindOutOfRangeHigh {
			posEnd = len(tr.Samples) - 1
		} else {
			return 0, 0, err
		}
	}
	return posStart, posEnd, nil
}
