package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/splicevod/splicevod/internal/httpapi/handlers"
	"github.com/splicevod/splicevod/internal/idtoken"
	"github.com/splicevod/splicevod/internal/objectstore"
	"github.com/splicevod/splicevod/internal/planner"
	"github.com/splicevod/splicevod/internal/registry"
	"github.com/splicevod/splicevod/internal/sampleindex"
)

func lengthPrefixed(blobs ...[]byte) []byte {
	var out []byte
	for _, b := range blobs {
		n := len(b)
		out = append(out, byte(n>>24), byte(n>>16), byte(n>>8), byte(n))
		out = append(out, b...)
	}
	return out
}

func avccSample(nalus ...[]byte) []byte { return lengthPrefixed(nalus...) }

// seedVideoAsset builds a 10 s, 10-sample video asset (1 sample/s,
// RAP every 5th sample) and stores both its raw bytes and its encoded
// MediaIndex in store, returning the bucket/key/meta_key triple a
// manifest request would reference.
func seedVideoAsset(t *testing.T, store objectstore.Store) (bucket, key, metaKey string) {
	t.Helper()
	sps := []byte{0x67, 0x42, 0x00, 0x28}
	pps := []byte{0x68, 0xCE, 0x3C, 0x80}

	const sampleCount = 10
	samples := make([]sampleindex.Sample, sampleCount)
	var raw []byte
	var offset uint64
	for i := 0; i < sampleCount; i++ {
		payload := avccSample([]byte{0x65, byte(i)})
		samples[i] = sampleindex.Sample{
			Length:     uint32(len(payload)),
			ByteOffset: offset,
			DTS:        uint64(i) * 1000,
			IsRAP:      i%5 == 0,
		}
		raw = append(raw, payload...)
		offset += uint64(len(payload))
	}

	idx := &sampleindex.MediaIndex{
		Version: sampleindex.CurrentVersion,
		Tracks: []sampleindex.Track{
			{
				Number:    1,
				ID:        1,
				Kind:      sampleindex.MediaVideo,
				Timescale: 1000,
				Duration:  sampleCount * 1000,
				Codecs:    "avc1.640028",
				MimeType:  "video/mp4",
				Bandwidth: 500000,
				Video:     sampleindex.VideoParams{Width: 1920, Height: 1080},
				ESD:       sampleindex.ElementaryStreamDescriptor{DecoderSpecificInfo: lengthPrefixed(sps, pps)},
				Samples:   samples,
			},
		},
	}

	bucket, key, metaKey = "b", "A", "A.m"
	require.NoError(t, store.Write(context.Background(), bucket, key, raw))
	require.NoError(t, store.Write(context.Background(), bucket, metaKey, sampleindex.Encode(idx)))
	return bucket, key, metaKey
}

func newTestRouter(t *testing.T) (*chi.Mux, *objectstore.MemoryStore) {
	t.Helper()
	store := objectstore.NewMemoryStore()
	p := planner.New(objectstore.MetadataReaderAdapter{Store: store}, idtoken.New())
	reg := registry.New()
	t.Cleanup(reg.Stop)

	h := handlers.New(p, reg, store, nil, "http://example.test", nil)

	router := chi.NewRouter()
	api := humachi.New(router, huma.DefaultConfig("test", "0.0.0"))
	h.Register(api)
	return router, store
}

func postManifest(t *testing.T, router *chi.Mux, body string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/manifest", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var decoded map[string]any
	if rec.Body.Len() > 0 {
		_ = json.Unmarshal(rec.Body.Bytes(), &decoded)
	}
	return rec.Code, decoded
}

func TestCreateManifestAndServePlaylist(t *testing.T) {
	router, store := newTestRouter(t)
	bucket, key, metaKey := seedVideoAsset(t, store)

	body := `{"type":"dash","chunk_duration_sec":5,"video":{"tracks":[{"bucket":"` + bucket + `","key":"` + key + `","meta_key":"` + metaKey + `","start":0,"duration":10000,"number":1}]}}`
	code, resp := postManifest(t, router, body)
	require.Equal(t, http.StatusOK, code)

	id, ok := resp["id"].(string)
	require.True(t, ok)
	require.NotEmpty(t, id)
	assert.Contains(t, resp["playlist_url"], id)

	req := httptest.NewRequest(http.MethodGet, "/stream/"+id+"/playlist", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/dash+xml", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "<MPD")

	req = httptest.NewRequest(http.MethodGet, "/stream/"+id+"/init/video", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "video/mp4", rec.Header().Get("Content-Type"))
	assert.NotEmpty(t, rec.Body.Bytes())

	req = httptest.NewRequest(http.MethodGet, "/stream/"+id+"/play/video/0", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "video/mp4", rec.Header().Get("Content-Type"))
	assert.NotEmpty(t, rec.Body.Bytes())
}

func TestGetSegmentOutOfRangeIs400(t *testing.T) {
	router, store := newTestRouter(t)
	bucket, key, metaKey := seedVideoAsset(t, store)

	body := `{"type":"dash","chunk_duration_sec":5,"video":{"tracks":[{"bucket":"` + bucket + `","key":"` + key + `","meta_key":"` + metaKey + `","start":0,"duration":10000,"number":1}]}}`
	_, resp := postManifest(t, router, body)
	id := resp["id"].(string)

	req := httptest.NewRequest(http.MethodGet, "/stream/"+id+"/play/video/99", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetPlaylistUnknownSessionIs400(t *testing.T) {
	router, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/stream/does-not-exist/playlist", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestManifestWithBogusMetaKeyIs404(t *testing.T) {
	router, _ := newTestRouter(t)

	body := `{"video":{"tracks":[{"bucket":"b","key":"A","meta_key":"missing.m","start":0,"duration":1000,"number":1}]}}`
	code, _ := postManifest(t, router, body)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestPlaylistExpiresAfterTimeout(t *testing.T) {
	router, store := newTestRouter(t)
	bucket, key, metaKey := seedVideoAsset(t, store)

	body := `{"type":"dash","timeout_sec":1,"chunk_duration_sec":5,"video":{"tracks":[{"bucket":"` + bucket + `","key":"` + key + `","meta_key":"` + metaKey + `","start":0,"duration":10000,"number":1}]}}`
	_, resp := postManifest(t, router, body)
	id := resp["id"].(string)

	time.Sleep(1100 * time.Millisecond)

	req := httptest.NewRequest(http.MethodGet, "/stream/"+id+"/playlist", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusRequestTimeout, rec.Code)
}

func TestUploadAssetRejectsNonMP4Body(t *testing.T) {
	router, store := newTestRouter(t)
	_, rawKey, _ := seedVideoAsset(t, store)
	raw, err := objectstore.ReadAll(context.Background(), store, "b", rawKey)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/upload/up-bucket/clip.mp4", bytes.NewReader(raw))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	// The synthetic asset above has no moov/trak boxes (it's not a real
	// MP4 container), so ingestion is expected to fail with a
	// corrupt-metadata 400 here; this still exercises the write-then-read
	// path up to that failure.
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
