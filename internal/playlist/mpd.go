// Package playlist renders a planned session into a DASH MPD or an HLS
// master/variant playlist pair.
package playlist

import (
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/splicevod/splicevod/internal/planner"
)

type mpdRoot struct {
	XMLName                   xml.Name `xml:"MPD"`
	Xmlns                     string   `xml:"xmlns,attr"`
	Profiles                  string   `xml:"profiles,attr"`
	Type                      string   `xml:"type,attr"`
	MinBufferTime             string   `xml:"minBufferTime,attr"`
	MediaPresentationDuration string   `xml:"mediaPresentationDuration,attr"`
	MaxSegmentDuration        string    `xml:"maxSegmentDuration,attr"`
	Period                    mpdPeriod `xml:"Period"`
}

type mpdPeriod struct {
	AdaptationSets []mpdAdaptationSet `xml:"AdaptationSet"`
}

type mpdAdaptationSet struct {
	ID              string              `xml:"id,attr"`
	MimeType        string              `xml:"mimeType,attr,omitempty"`
	Representations []mpdRepresentation `xml:"Representation"`
}

type mpdRepresentation struct {
	ID                 string                 `xml:"id,attr"`
	MimeType           string                 `xml:"mimeType,attr"`
	Codecs             string                 `xml:"codecs,attr"`
	Bandwidth          uint64                 `xml:"bandwidth,attr"`
	StartWithSAP       int                    `xml:"startWithSAP,attr"`
	AudioSamplingRate  string                 `xml:"audioSamplingRate,attr,omitempty"`
	Width              uint32                 `xml:"width,attr,omitempty"`
	Height             uint32                 `xml:"height,attr,omitempty"`
	FrameRate          string                 `xml:"frameRate,attr,omitempty"`
	SAR                string                 `xml:"sar,attr,omitempty"`
	AudioChannelConfig *mpdAudioChannelConfig `xml:"AudioChannelConfiguration,omitempty"`
}

type mpdAudioChannelConfig struct {
	SchemeIDURI string `xml:"schemeIdUri,attr"`
	Value       uint16 `xml:"value,attr"`
}

// RenderMPD builds the DASH MPD XML document for sess. The planner only
// ever emits one Period per session (the single-Period open question is
// resolved that way), so one <Period> is written.
func RenderMPD(sess *planner.Session) ([]byte, error) {
	root := mpdRoot{
		Xmlns:                     "urn:mpeg:dash:schema:mpd:2011",
		Profiles:                  "urn:mpeg:dash:profile:full:2011",
		Type:                      "static",
		MinBufferTime:             "PT1.5S",
		MediaPresentationDuration: isoDuration(sess.DurationMS),
		MaxSegmentDuration:        isoDuration(int64(sess.ChunkDurationSec) * 1000),
	}

	for _, name := range sess.RepresentationOrder {
		repr := sess.Representations[name]
		if len(repr.Tracks) == 0 {
			continue
		}
		track := repr.Tracks[0].Track

		mr := mpdRepresentation{
			ID:           repr.ID,
			MimeType:     track.MimeType,
			Codecs:       track.Codecs,
			Bandwidth:    track.Bandwidth,
			StartWithSAP: 1,
		}
		switch track.Kind.String() {
		case "audio":
			mr.AudioSamplingRate = fmt.Sprintf("%d", track.Audio.SampleRate)
			mr.AudioChannelConfig = &mpdAudioChannelConfig{
				SchemeIDURI: "urn:mpeg:dash:23003:3:audio_channel_configuration:2011",
				Value:       track.Audio.Channels,
			}
		case "video":
			mr.Width = track.Video.Width
			mr.Height = track.Video.Height
			mr.FrameRate = frameRateString(track.Video.FPSNum, track.Video.FPSDenum)
			if track.Video.SARWidth > 0 && track.Video.SARHeight > 0 {
				mr.SAR = fmt.Sprintf("%d:%d", track.Video.SARWidth, track.Video.SARHeight)
			}
		}

		as := mpdAdaptationSet{
			ID:              name,
			MimeType:        track.MimeType,
			Representations: []mpdRepresentation{mr},
		}
		root.Period.AdaptationSets = append(root.Period.AdaptationSets, as)
	}

	body, err := xml.MarshalIndent(root, "", "  ")
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), body...), nil
}

func frameRateString(num, denum uint32) string {
	if denum == 0 {
		denum = 1
	}
	if denum == 1 {
		return fmt.Sprintf("%d", num)
	}
	return fmt.Sprintf("%d/%d", num, denum)
}

// isoDuration renders a millisecond count as an ISO 8601 PT…H…M…S
// duration string.
func isoDuration(ms int64) string {
	totalSeconds := ms / 1000
	fracMS := ms % 1000

	hours := totalSeconds / 3600
	minutes := (totalSeconds % 3600) / 60
	seconds := totalSeconds % 60

	var b strings.Builder
	b.WriteString("PT")
	if hours > 0 {
		fmt.Fprintf(&b, "%dH", hours)
	}
	if minutes > 0 {
		fmt.Fprintf(&b, "%dM", minutes)
	}
	if fracMS > 0 {
		fmt.Fprintf(&b, "%d.%03dS", seconds, fracMS)
	} else {
		fmt.Fprintf(&b, "%dS", seconds)
	}
	return b.String()
}
