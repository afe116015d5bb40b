// Package manifest validates incoming session-creation requests (the
// JSON body of POST /manifest) and turns them into an in-memory skeleton
// the planner can fan out metadata reads against.
package manifest

import (
	"encoding/json"

	"github.com/splicevod/splicevod/internal/apperr"
)

const (
	DefaultType             = "dash"
	DefaultTimeoutSec       = 10
	DefaultChunkDurationSec = 5
	DefaultTrackNumber      = 1
)

// TrackSpec is one source-asset contribution to a representation, as
// given by the client.
type TrackSpec struct {
	Bucket   string `json:"bucket"`
	Key      string `json:"key"`
	MetaKey  string `json:"meta_key"`
	StartMS  int64  `json:"start"`
	Duration int64  `json:"duration"`
	Number   int    `json:"number"`
	Skip     bool   `json:"skip"`
}

// RepresentationSpec is the client's description of one ABR ladder rung.
type RepresentationSpec struct {
	Skip   bool        `json:"skip"`
	Tracks []TrackSpec `json:"tracks"`
}

// Request is the parsed, defaulted, but not yet planned manifest
// request.
type Request struct {
	Type             string              `json:"type"`
	TimeoutSec       int                 `json:"timeout_sec"`
	ChunkDurationSec int                 `json:"chunk_duration_sec"`
	Audio            *RepresentationSpec `json:"audio,omitempty"`
	Video            *RepresentationSpec `json:"video,omitempty"`
}

// Parse decodes and validates raw JSON into a Request, applying
// defaults for every omitted optional field.
func Parse(raw []byte) (*Request, error) {
	var req Request
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, apperr.Wrap(apperr.KindBadRequest, "malformed manifest request", err)
	}

	if req.Type == "" {
		req.Type = DefaultType
	}
	if req.Type != "dash" && req.Type != "hls" {
		return nil, apperr.New(apperr.KindBadRequest, "type must be \"dash\" or \"hls\"")
	}
	if req.TimeoutSec == 0 {
		req.TimeoutSec = DefaultTimeoutSec
	}
	if req.TimeoutSec < 0 {
		return nil, apperr.New(apperr.KindBadRequest, "timeout_sec must be >= 0")
	}
	if req.ChunkDurationSec == 0 {
		req.ChunkDurationSec = DefaultChunkDurationSec
	}
	if req.ChunkDurationSec < 0 {
		return nil, apperr.New(apperr.KindBadRequest, "chunk_duration_sec must be >= 0")
	}

	activeCount := 0
	for _, rep := range []*RepresentationSpec{req.Audio, req.Video} {
		if rep == nil || rep.Skip {
			continue
		}
		if err := validateRepresentation(rep); err != nil {
			return nil, err
		}
		activeCount++
	}
	if activeCount == 0 {
		return nil, apperr.New(apperr.KindBadRequest, "request has no non-skipped representations")
	}

	return &req, nil
}

func validateRepresentation(rep *RepresentationSpec) error {
	if len(rep.Tracks) == 0 {
		return apperr.New(apperr.KindBadRequest, "representation has no tracks")
	}
	for i := range rep.Tracks {
		ts := &rep.Tracks[i]
		if ts.Skip {
			continue
		}
		if ts.Bucket == "" || ts.Key == "" || ts.MetaKey == "" {
			return apperr.New(apperr.KindBadRequest, "track spec missing bucket, key or meta_key")
		}
		if ts.StartMS < 0 {
			return apperr.New(apperr.KindBadRequest, "start must be >= 0")
		}
		if ts.Duration < 0 {
			return apperr.New(apperr.KindBadRequest, "duration must be >= 0")
		}
		if ts.Number == 0 {
			ts.Number = DefaultTrackNumber
		}
	}
	return nil
}

// ActiveTracks returns the non-skipped TrackSpecs of rep, or nil if rep
// itself is nil or skipped.
func (r *Request) ActiveTracks(rep *RepresentationSpec) []TrackSpec {
	if rep == nil || rep.Skip {
		return nil
	}
	var out []TrackSpec
	for _, ts := range rep.Tracks {
		if !ts.Skip {
			out = append(out, ts)
		}
	}
	return out
}

// TotalTrackRequests counts every non-skipped TrackSpec across both
// representations — the planner's fan-in barrier target N.
func (r *Request) TotalTrackRequests() int {
	n := 0
	for _, rep := range []*RepresentationSpec{r.Audio, r.Video} {
		n += len(r.ActiveTracks(rep))
	}
	return n
}
