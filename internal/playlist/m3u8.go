package playlist

import (
	"fmt"
	"strings"

	"github.com/splicevod/splicevod/internal/planner"
)

// RenderHLSMaster builds the master playlist and, as a side effect,
// pre-renders and caches every variant's body onto sess.CachedVariants
// so later variant fetches are lock-free lookups (§5's "generated
// eagerly at master-playlist generation time" ordering guarantee).
func RenderHLSMaster(sess *planner.Session) ([]byte, error) {
	var b strings.Builder
	b.WriteString("#EXTM3U\n")

	for _, name := range sess.RepresentationOrder {
		repr := sess.Representations[name]
		if len(repr.Tracks) == 0 {
			continue
		}
		track := repr.Tracks[0].Track

		variant, err := renderVariant(sess, repr)
		if err != nil {
			return nil, err
		}
		sess.CachedVariants[name] = variant

		codecs := normalizeCodec(track.Codecs)
		fmt.Fprintf(&b, "#EXT-X-STREAM-INF:PROGRAM-ID=1,BANDWIDTH=%d,CODECS=\"%s\"", track.Bandwidth, codecs)
		if track.Kind.String() == "video" && track.Video.Width > 0 {
			fmt.Fprintf(&b, ",RESOLUTION=%dx%d", track.Video.Width, track.Video.Height)
		}
		b.WriteString("\n")
		fmt.Fprintf(&b, "%s/stream/%s/playlist/%s\n", sess.BaseURL, sess.ID, name)
	}

	return []byte(b.String()), nil
}

// Variant returns the cached variant playlist body for repr, rendering
// it on demand if the session predates this field (defensive; in
// practice RenderHLSMaster always populates it first).
func Variant(sess *planner.Session, reprName string) ([]byte, error) {
	if body, ok := sess.CachedVariants[reprName]; ok {
		return body, nil
	}
	repr, ok := sess.Representations[reprName]
	if !ok {
		return nil, nil
	}
	return renderVariant(sess, repr)
}

func renderVariant(sess *planner.Session, repr *planner.Representation) ([]byte, error) {
	var b strings.Builder
	b.WriteString("#EXT-X-VERSION:3\n")
	b.WriteString("#EXT-X-PLAYLIST-TYPE:VOD\n")
	fmt.Fprintf(&b, "#EXT-X-TARGETDURATION:%d\n", sess.ChunkDurationSec)
	b.WriteString("#EXT-X-MEDIA-SEQUENCE:0\n")

	chunk := 0
	for _, tr := range repr.Tracks {
		n := tr.ChunkCount(sess.ChunkDurationSec)
		remainingMS := tr.DurationMS
		chunkMS := int64(sess.ChunkDurationSec) * 1000
		for i := int64(0); i < n; i++ {
			durMS := chunkMS
			if i == n-1 {
				durMS = remainingMS - i*chunkMS
			}
			fmt.Fprintf(&b, "#EXTINF:%.3f,\n", float64(durMS)/1000)
			fmt.Fprintf(&b, "%s/stream/%s/play/%s/%d\n", sess.BaseURL, sess.ID, repr.ID, chunk)
			chunk++
		}
	}
	b.WriteString("#EXT-X-ENDLIST\n")
	return []byte(b.String()), nil
}

// normalizeCodec rewrites avc3 (in-band parameter sets) to avc1 for the
// CODECS attribute, since HLS clients key profile support off avc1.
func normalizeCodec(codec string) string {
	if strings.HasPrefix(codec, "avc3") {
		return "avc1" + codec[len("avc3"):]
	}
	return codec
}
