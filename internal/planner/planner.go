package planner

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/splicevod/splicevod/internal/apperr"
	"github.com/splicevod/splicevod/internal/manifest"
	"github.com/splicevod/splicevod/internal/sampleindex"
)

// MetadataReader is the narrow slice of the object store the planner
// needs: a whole-object read of a meta_key's MediaIndex blob.
type MetadataReader interface {
	Read(ctx context.Context, bucket, key string) ([]byte, error)
}

// IDMinter produces a fresh, opaque session id.
type IDMinter interface {
	Mint() string
}

// Planner drives the fan-out/fan-in described in the session-planner
// component: one metadata read per TrackRequest, joined by a barrier
// that fires exactly once, followed by the single-threaded splice and
// truncation pass.
type Planner struct {
	Store MetadataReader
	IDs   IDMinter
}

func New(store MetadataReader, ids IDMinter) *Planner {
	return &Planner{Store: store, IDs: ids}
}

// resolvedTrack is what a single metadata-fetch callback produces for
// its TrackRequest slot.
type resolvedTrack struct {
	tr  *TrackRequest
	err error
}

// Plan builds a Session from a parsed manifest request. It fans out one
// metadata read per non-skipped TrackSpec, waits for all of them (the
// fan-in barrier), and then runs the splice/truncate pass. Any single
// metadata failure fails the whole session; the partially built session
// is discarded and never reaches the registry.
func (p *Planner) Plan(ctx context.Context, req *manifest.Request, baseURL string) (*Session, error) {
	sess := &Session{
		Type:             req.Type,
		BaseURL:          baseURL,
		ChunkDurationSec: req.ChunkDurationSec,
		ExpiresAt:        time.Now().Add(time.Duration(req.TimeoutSec) * time.Second),
		Representations:  make(map[string]*Representation),
		CachedVariants:   make(map[string][]byte),
	}

	type pending struct {
		name string
		spec manifest.RepresentationSpec
	}
	var reps []pending
	for _, name := range []string{"audio", "video"} {
		var spec *manifest.RepresentationSpec
		if name == "audio" {
			spec = req.Audio
		} else {
			spec = req.Video
		}
		if spec == nil || spec.Skip {
			continue
		}
		reps = append(reps, pending{name: name, spec: *spec})
	}

	// expected is N in the fan-in barrier; completed is the shared
	// atomic counter of finished metadata reads. Finalization runs once,
	// after wg.Wait, and first checks that completed reached expected,
	// regardless of completion order.
	expected := int64(req.TotalTrackRequests())
	if expected == 0 {
		return nil, apperr.New(apperr.KindBadRequest, "no track requests to plan")
	}

	results := make([][]resolvedTrack, len(reps))
	for i, rp := range reps {
		results[i] = make([]resolvedTrack, len(rp.spec.Tracks))
	}

	var completed atomic.Int64
	var wg sync.WaitGroup
	var failOnce sync.Once
	var firstErr error
	var mu sync.Mutex

	setErr := func(err error) {
		failOnce.Do(func() {
			mu.Lock()
			firstErr = err
			mu.Unlock()
		})
	}

	for repIdx, rp := range reps {
		for trackIdx, spec := range rp.spec.Tracks {
			if spec.Skip {
				continue
			}
			wg.Add(1)
			go func(repIdx, trackIdx int, spec manifest.TrackSpec) {
				defer wg.Done()
				tr, err := p.resolveTrackRequest(ctx, spec)
				// Each goroutine writes only to its own disjoint slot
				// (repIdx, trackIdx), so this assignment never races
				// with any other goroutine's write.
				results[repIdx][trackIdx] = resolvedTrack{tr: tr, err: err}
				if err != nil {
					setErr(err)
				}
				completed.Add(1)
			}(repIdx, trackIdx, spec)
		}
	}

	wg.Wait()

	if completed.Load() != expected {
		// Can only happen if TotalTrackRequests() and the loop above
		// disagree on what counts as "active" — a programming error,
		// not a runtime condition a client can trigger.
		return nil, apperr.New(apperr.KindBadRequest, "fan-in barrier did not reach expected completion count")
	}
	if firstErr != nil {
		return nil, firstErr
	}

	for repIdx, rp := range reps {
		var trs []*TrackRequest
		for _, r := range results[repIdx] {
			if r.tr != nil {
				trs = append(trs, r.tr)
			}
		}
		repr := &Representation{ID: rp.name, Tracks: trs}
		if err := planRepresentation(repr, sess.ChunkDurationSec, &sess.ChunkDurationSec); err != nil {
			return nil, err
		}
		sess.Representations[rp.name] = repr
		sess.RepresentationOrder = append(sess.RepresentationOrder, rp.name)
	}

	truncateToShortest(sess)

	sess.ID = p.IDs.Mint()
	return sess, nil
}

// resolveTrackRequest performs the single metadata read and per-track
// resolution steps of §4.5's "per TrackRequest metadata arrival" list,
// steps 1-4 and 6 (step 5, the session-wide chunk-duration reduction,
// is folded into planRepresentation since it mutates shared state).
func (p *Planner) resolveTrackRequest(ctx context.Context, spec manifest.TrackSpec) (*TrackRequest, error) {
	blob, err := p.Store.Read(ctx, spec.Bucket, spec.MetaKey)
	if err != nil {
		return nil, err
	}
	index, err := sampleindex.Decode(blob)
	if err != nil {
		return nil, err
	}

	track := index.TrackByNumber(uint32(spec.Number))
	if track == nil {
		return nil, apperr.New(apperr.KindNoSuchTrack, fmt.Sprintf("asset has no track number %d", spec.Number))
	}
	if len(track.Samples) < 2 {
		return nil, apperr.New(apperr.KindDegenerateTrack, "track has fewer than two samples")
	}

	assetDurationMS := int64(track.DurationMS())

	startMS := spec.StartMS
	if startMS >= assetDurationMS {
		return nil, apperr.New(apperr.KindBadRequest, "start_ms at or beyond asset duration")
	}
	durationMS := spec.Duration
	remaining := assetDurationMS - startMS
	if durationMS == 0 || durationMS > remaining {
		durationMS = remaining
	}

	tr := &TrackRequest{
		Bucket:               spec.Bucket,
		DataKey:              spec.Key,
		MetaKey:              spec.MetaKey,
		StartMS:              startMS,
		DurationMS:           durationMS,
		RequestedTrackNumber: spec.Number,
		RequestedTrackIndex:  indexOfTrack(index, track),
		Track:                track,
	}
	return tr, nil
}

func indexOfTrack(index *sampleindex.MediaIndex, track *sampleindex.Track) int {
	for i := range index.Tracks {
		if &index.Tracks[i] == track {
			return i
		}
	}
	return -1
}

// planRepresentation runs the splice pass of §4.5 ("When completed ==
// N, enter planning") for one representation: RAP-snap each track
// request's entry point, resolve its GOP-closed exit point, rebase DTS
// to 0, and assign chunk numbering and DTS offsets across the
// concatenation. It also folds in step 5 (shrinking the session-wide
// chunk duration if any constituent track request is shorter than it).
func planRepresentation(repr *Representation, sessionChunkDurationSec int, chunkDurationSec *int) error {
	var accumulatedDTS uint64
	var accumulatedChunks int64

	for _, tr := range repr.Tracks {
		if int(tr.DurationMS/1000) < *chunkDurationSec && tr.DurationMS > 0 {
			*chunkDurationSec = int(tr.DurationMS / 1000)
			if *chunkDurationSec == 0 {
				*chunkDurationSec = 1
			}
		}

		timescale := uint64(tr.Track.Timescale)
		samples := tr.Track.Samples

		dtsStart := tr.StartMS * int64(timescale) / 1000
		startPos, err := sampleindex.SamplePositionFromDTS(samples, uint64(dtsStart), true)
		if err != nil {
			return err
		}

		dtsEnd := dtsStart + tr.DurationMS*int64(timescale)/1000
		endPos, err := sampleindex.SamplePositionFromDTS(samples, uint64(dtsEnd), false)
		if err != nil {
			if kind, ok := apperr.KindOf(err); ok && kind == apperr.KindOutOfRangeHigh {
				endPos = len(samples) - 1
			} else {
				return err
			}
		}

		retained := make([]sampleindex.Sample, endPos-startPos+1)
		base := samples[startPos].DTS
		for i := startPos; i <= endPos; i++ {
			s := samples[i]
			s.DTS -= base
			retained[i-startPos] = s
		}
		tr.DTSStart = base
		tr.Samples = retained

		lastDelta := uint64(0)
		if len(retained) >= 2 {
			lastDelta = retained[len(retained)-1].DTS - retained[len(retained)-2].DTS
		}
		lastSampleDTS := uint64(0)
		if len(retained) > 0 {
			lastSampleDTS = retained[len(retained)-1].DTS
		}

		tr.DTSFirstSampleOffset = accumulatedDTS
		tr.StartChunkNumber = accumulatedChunks

		accumulatedChunks += tr.ChunkCount(*chunkDurationSec)
		accumulatedDTS += lastSampleDTS + lastDelta
	}

	var total int64
	for _, tr := range repr.Tracks {
		total += tr.DurationMS
	}
	repr.DurationMS = total
	return nil
}

// truncateToShortest sets session.DurationMS to the minimum
// representation duration, then prunes trailing TrackRequests from
// every representation so every representation ends at the same
// wall-clock time — a DASH requirement, and one HLS also benefits from
// for a synchronized master playlist.
func truncateToShortest(sess *Session) {
	if len(sess.Representations) == 0 {
		return
	}
	min := int64(-1)
	for _, repr := range sess.Representations {
		if min < 0 || repr.DurationMS < min {
			min = repr.DurationMS
		}
	}
	sess.DurationMS = min

	for _, repr := range sess.Representations {
		var kept []*TrackRequest
		var acc int64
		for _, tr := range repr.Tracks {
			if acc >= sess.DurationMS {
				break
			}
			kept = append(kept, tr)
			acc += tr.DurationMS
		}
		repr.Tracks = kept
		repr.DurationMS = sess.DurationMS
	}
}
