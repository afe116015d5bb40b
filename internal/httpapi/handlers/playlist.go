package handlers

import (
	"context"
	"fmt"
	"time"

	"github.com/splicevod/splicevod/internal/apperr"
	"github.com/splicevod/splicevod/internal/planner"
	"github.com/splicevod/splicevod/internal/playlist"
)

const (
	contentTypeMPD = "application/dash+xml"
	contentTypeHLS = "application/vnd.apple.mpegurl"
	contentTypeMP4 = "video/mp4"
	contentTypeTS  = "video/MP2T"
)

// lookupLive returns sess if id names a session that hasn't passed its
// nominal deadline, per §5's "now > expires_at is treated as gone by
// playlist and init handlers (408)" rule. A registry miss (unknown or
// already-evicted id) is reported as 400, per §6's combined
// bad-request/unknown-session mapping.
func (h *Handlers) lookupLive(id string) (*planner.Session, error) {
	sess := h.Registry.Lookup(id)
	if sess == nil {
		return nil, apperr.New(apperr.KindUnknownSession, fmt.Sprintf("no session %q", id))
	}
	if time.Now().After(sess.ExpiresAt) {
		return nil, apperr.New(apperr.KindExpired, fmt.Sprintf("session %q has expired", id))
	}
	return sess, nil
}

// GetPlaylistInput addresses the master playlist route.
type GetPlaylistInput struct {
	ID string `path:"id" doc:"Session id"`
}

// GetPlaylistOutput carries the rendered playlist body.
type GetPlaylistOutput struct {
	ContentType string `header:"Content-Type"`
	Body        []byte
}

// GetPlaylist renders the DASH MPD or HLS master playlist for a
// session, depending on its type.
func (h *Handlers) GetPlaylist(ctx context.Context, input *GetPlaylistInput) (*GetPlaylistOutput, error) {
	sess, err := h.lookupLive(input.ID)
	if err != nil {
		return nil, toHumaError(err)
	}

	var body []byte
	var contentType string
	switch sess.Type {
	case "hls":
		body, err = playlist.RenderHLSMaster(sess)
		contentType = contentTypeHLS
	default:
		body, err = playlist.RenderMPD(sess)
		contentType = contentTypeMPD
	}
	if err != nil {
		return nil, toHumaError(err)
	}

	return &GetPlaylistOutput{ContentType: contentType, Body: body}, nil
}

// GetVariantPlaylistInput addresses one HLS variant playlist.
type GetVariantPlaylistInput struct {
	ID      string `path:"id" doc:"Session id"`
	Variant string `path:"variant" doc:"Representation id (e.g. \"audio\", \"video\")"`
}

// GetVariantPlaylistOutput carries the rendered variant body.
type GetVariantPlaylistOutput struct {
	ContentType string `header:"Content-Type"`
	Body        []byte
}

// GetVariantPlaylist returns the cached variant playlist body a prior
// GetPlaylist call on the same session pre-rendered.
func (h *Handlers) GetVariantPlaylist(ctx context.Context, input *GetVariantPlaylistInput) (*GetVariantPlaylistOutput, error) {
	sess, err := h.lookupLive(input.ID)
	if err != nil {
		return nil, toHumaError(err)
	}
	if _, ok := sess.Representations[input.Variant]; !ok {
		return nil, toHumaError(apperr.New(apperr.KindUnknownRepresentation, fmt.Sprintf("no representation %q", input.Variant)))
	}

	body, err := playlist.Variant(sess, input.Variant)
	if err != nil {
		return nil, toHumaError(err)
	}
	return &GetVariantPlaylistOutput{ContentType: contentTypeHLS, Body: body}, nil
}
