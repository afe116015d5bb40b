// Package planner drives the fan-out/fan-in of per-asset metadata reads
// for a session under construction, splices the resolved sample ranges
// into representations, and truncates them to a common duration.
package planner

import (
	"time"

	"github.com/splicevod/splicevod/internal/sampleindex"
)

// TrackRequest is one contiguous span of one source asset contributing
// to a representation.
type TrackRequest struct {
	Bucket     string
	DataKey    string
	MetaKey    string
	StartMS    int64
	DurationMS int64

	RequestedTrackNumber int

	// Fields below are filled in during planning, once metadata for
	// this track request has arrived and been resolved.
	RequestedTrackIndex  int
	Track                *sampleindex.Track
	Samples              []sampleindex.Sample // the retained, DTS-rebased slice
	DTSStart             uint64
	DTSFirstSampleOffset uint64
	StartChunkNumber     int64
}

// ChunkCount returns how many fixed-duration chunks this track request
// contributes, given the session's chunk duration.
func (tr *TrackRequest) ChunkCount(chunkDurationSec int) int64 {
	if chunkDurationSec <= 0 {
		return 0
	}
	ms := int64(chunkDurationSec) * 1000
	return (tr.DurationMS + ms - 1) / ms
}

// Representation is an ordered concatenation of TrackRequests forming
// one ABR ladder rung.
type Representation struct {
	ID         string
	DurationMS int64
	Tracks     []*TrackRequest
}

// FindTrackRequest returns the unique TrackRequest owning chunk c, or
// nil if c is out of range.
func (r *Representation) FindTrackRequest(chunk int64, chunkDurationSec int) *TrackRequest {
	for _, tr := range r.Tracks {
		n := tr.ChunkCount(chunkDurationSec)
		if chunk >= tr.StartChunkNumber && chunk < tr.StartChunkNumber+n {
			return tr
		}
	}
	return nil
}

// SessionState is the construction state machine of §4.5.
type SessionState string

const (
	StateParsed           SessionState = "parsed"
	StateAwaitingMetadata SessionState = "awaiting_metadata"
	StatePlanning         SessionState = "planning"
	StateReady            SessionState = "ready"
	StateFailed           SessionState = "failed"
)

// Session is the planner's output: the playlist/session object
// persisted in the registry until expiry.
type Session struct {
	ID               string
	Type             string // "dash" | "hls"
	BaseURL          string
	ChunkDurationSec int
	ExpiresAt        time.Time
	DurationMS       int64

	// RepresentationOrder preserves the "audio"/"video" naming used in
	// the manifest request, since map iteration order is undefined.
	RepresentationOrder []string
	Representations     map[string]*Representation

	// CachedVariants holds pre-rendered HLS variant playlist bodies,
	// keyed by representation id, written each time the master playlist
	// is rendered so later variant fetches are map lookups.
	CachedVariants map[string][]byte
}
