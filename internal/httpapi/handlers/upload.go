package handlers

import (
	"bytes"
	"context"

	"github.com/splicevod/splicevod/internal/sampleindex"
)

// UploadAssetInput carries the raw asset bytes and its destination
// bucket/key.
type UploadAssetInput struct {
	Bucket  string `path:"bucket" doc:"Destination bucket"`
	Key     string `path:"key" doc:"Destination key"`
	RawBody []byte
}

// UploadAssetOutput reports where the asset and its derived metadata
// landed.
type UploadAssetOutput struct {
	Body struct {
		Bucket  string `json:"bucket"`
		Key     string `json:"key"`
		MetaKey string `json:"meta_key"`
	}
}

// UploadAsset stores the raw asset bytes under bucket/key and writes
// its derived MediaIndex to a meta-key sibling, so a subsequent
// manifest request can reference the same bucket/key/meta_key triple.
func (h *Handlers) UploadAsset(ctx context.Context, input *UploadAssetInput) (*UploadAssetOutput, error) {
	if err := h.Store.Write(ctx, input.Bucket, input.Key, input.RawBody); err != nil {
		return nil, toHumaError(err)
	}

	index, err := sampleindex.ReadFromFMP4(bytes.NewReader(input.RawBody))
	if err != nil {
		return nil, toHumaError(err)
	}

	metaKey := metaKeyFor(input.Key)
	if err := h.Store.Write(ctx, input.Bucket, metaKey, sampleindex.Encode(index)); err != nil {
		return nil, toHumaError(err)
	}

	out := &UploadAssetOutput{}
	out.Body.Bucket = input.Bucket
	out.Body.Key = input.Key
	out.Body.MetaKey = metaKey
	return out, nil
}
