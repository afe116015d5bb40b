package handlers

import (
	"context"
	"fmt"

	"github.com/splicevod/splicevod/internal/audit"
	"github.com/splicevod/splicevod/internal/manifest"
)

// CreateManifestInput carries the raw manifest request body; Parse
// applies its own JSON decoding and validation, so Huma's job here is
// only to hand the bytes across.
type CreateManifestInput struct {
	RawBody []byte
}

// CreateManifestOutput is the session-creation response of §6.
type CreateManifestOutput struct {
	Body struct {
		ID          string `json:"id"`
		BaseURL     string `json:"base_url"`
		PlaylistURL string `json:"playlist_url"`
	}
}

// CreateManifest parses the request, plans the session (blocking on the
// fan-in barrier across every track's metadata read), registers it, and
// returns its playback URLs. A failure at either step discards the
// partially built session without registering it.
func (h *Handlers) CreateManifest(ctx context.Context, input *CreateManifestInput) (*CreateManifestOutput, error) {
	req, err := manifest.Parse(input.RawBody)
	if err != nil {
		h.Recorder.Record(ctx, audit.KindManifestFailed, "", err.Error())
		return nil, toHumaError(err)
	}

	sess, err := h.Planner.Plan(ctx, req, h.BaseURL)
	if err != nil {
		h.Recorder.Record(ctx, audit.KindManifestFailed, "", err.Error())
		return nil, toHumaError(err)
	}

	h.Registry.Insert(sess)
	h.Recorder.Record(ctx, audit.KindManifestCreated, sess.ID, fmt.Sprintf("type=%s duration_ms=%d", sess.Type, sess.DurationMS))

	out := &CreateManifestOutput{}
	out.Body.ID = sess.ID
	out.Body.BaseURL = h.BaseURL
	out.Body.PlaylistURL = fmt.Sprintf("%s/stream/%s/playlist", h.BaseURL, sess.ID)
	return out, nil
}
