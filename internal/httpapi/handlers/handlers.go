// Package handlers implements the HTTP surface of §4.9/§6: one Huma
// operation per route, dispatching into the manifest parser, session
// planner, registry, playlist renderers, assembler and object store.
package handlers

import (
	"log/slog"

	"github.com/danielgtaylor/huma/v2"

	"github.com/splicevod/splicevod/internal/audit"
	"github.com/splicevod/splicevod/internal/objectstore"
	"github.com/splicevod/splicevod/internal/planner"
	"github.com/splicevod/splicevod/internal/registry"
)

// Handlers holds the shared dependencies every route dispatches
// through. One instance is constructed at startup and registered
// against the Huma API.
type Handlers struct {
	Planner  *planner.Planner
	Registry *registry.Registry
	Store    objectstore.Store
	Recorder *audit.Recorder
	BaseURL  string
	Logger   *slog.Logger
}

// New builds a Handlers, defaulting Logger to slog.Default() and
// Recorder to nil (Record is a no-op on a nil *audit.Recorder).
func New(p *planner.Planner, reg *registry.Registry, store objectstore.Store, rec *audit.Recorder, baseURL string, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{
		Planner:  p,
		Registry: reg,
		Store:    store,
		Recorder: rec,
		BaseURL:  baseURL,
		Logger:   logger,
	}
}

// Register wires every route of §6 onto api.
func (h *Handlers) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "createManifest",
		Method:      "POST",
		Path:        "/manifest",
		Summary:     "Plan a session",
		Description: "Parses a manifest request, fans out metadata reads for every track, and registers the resulting session for playback",
		Tags:        []string{"Session"},
	}, h.CreateManifest)

	huma.Register(api, huma.Operation{
		OperationID: "getPlaylist",
		Method:      "GET",
		Path:        "/stream/{id}/playlist",
		Summary:     "Get the master playlist",
		Description: "Returns the DASH MPD or HLS master playlist for a session",
		Tags:        []string{"Playback"},
	}, h.GetPlaylist)

	huma.Register(api, huma.Operation{
		OperationID: "getVariantPlaylist",
		Method:      "GET",
		Path:        "/stream/{id}/playlist/{variant}",
		Summary:     "Get an HLS variant playlist",
		Tags:        []string{"Playback"},
	}, h.GetVariantPlaylist)

	huma.Register(api, huma.Operation{
		OperationID: "getInit",
		Method:      "GET",
		Path:        "/stream/{id}/init/{repr}",
		Summary:     "Get a representation's fMP4 init segment",
		Tags:        []string{"Playback"},
	}, h.GetInit)

	huma.Register(api, huma.Operation{
		OperationID: "getSegment",
		Method:      "GET",
		Path:        "/stream/{id}/play/{repr}/{chunk}",
		Summary:     "Get a media chunk",
		Description: "Remuxes and returns one fixed-duration chunk, fMP4 or MPEG-TS depending on the session type",
		Tags:        []string{"Playback"},
	}, h.GetSegment)

	huma.Register(api, huma.Operation{
		OperationID: "uploadAsset",
		Method:      "POST",
		Path:        "/upload/{bucket}/{key}",
		Summary:     "Ingest an asset",
		Description: "Stores the raw asset bytes and writes its derived MediaIndex to bucket/key + the metadata suffix",
		Tags:        []string{"Ingest"},
	}, h.UploadAsset)

	huma.Register(api, huma.Operation{
		OperationID: "putAsset",
		Method:      "PUT",
		Path:        "/upload/{bucket}/{key}",
		Summary:     "Ingest an asset",
		Tags:        []string{"Ingest"},
	}, h.UploadAsset)
}

// metaKeyFor derives the meta_key an upload writes its MediaIndex
// under from the data key it ingested, for clients that want to
// reference the asset in a manifest request without tracking a
// separate meta_key themselves.
func metaKeyFor(key string) string {
	return key + ".meta"
}
