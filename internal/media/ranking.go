package media

import (
	"fmt"
	"sort"
)

// MaxRankedFormats caps the number of video quality options shown to a user.
const MaxRankedFormats = 10

// defaultFPS is assumed when a provider omits the frame rate.
const defaultFPS = 30

// Rank filters, orders, and deduplicates raw provider formats into the
// user-facing list. Only entries carrying a video stream participate; they are
// sorted by height descending then fps descending (stable, so ties keep the
// provider's order), collapsed to one entry per visually distinct quality
// tier, and capped at MaxRankedFormats. A synthetic best-quality audio-only
// descriptor is always prepended. Rank is pure and deterministic for a given
// input order.
func Rank(raw []RawFormat) []FormatDescriptor {
	video := make([]RawFormat, 0, len(raw))
	for _, f := range raw {
		if hasVideoStream(f) {
			if f.FPS <= 0 {
				f.FPS = defaultFPS
			}
			video = append(video, f)
		}
	}

	sort.SliceStable(video, func(i, j int) bool {
		if video[i].Height != video[j].Height {
			return video[i].Height > video[j].Height
		}
		return video[i].FPS > video[j].FPS
	})

	seen := make(map[string]bool)
	ranked := make([]FormatDescriptor, 0, MaxRankedFormats+1)
	ranked = append(ranked, audioDescriptor())

	for _, f := range video {
		key := qualityKey(f.Height, f.FPS)
		if seen[key] {
			continue
		}
		seen[key] = true

		hasAudio := f.ACodec != "" && f.ACodec != "none"
		quality := key
		if hasAudio {
			quality += " (Audio)"
		}

		ranked = append(ranked, FormatDescriptor{
			FormatID:   f.FormatID,
			Quality:    quality,
			Ext:        f.Ext,
			Resolution: resolutionOf(f),
			FPS:        f.FPS,
			Filesize:   f.Filesize,
			HasAudio:   hasAudio,
			Type:       TypeVideo,
		})
		if len(ranked) == MaxRankedFormats+1 {
			break
		}
	}

	return ranked
}

// qualityKey is the dedup key: "1080p" for standard frame rates, "1080p60"
// above 30fps. Multiple codecs at the same tier collapse to the first entry.
func qualityKey(height int, fps float64) string {
	if fps > defaultFPS {
		return fmt.Sprintf("%dp%d", height, int(fps))
	}
	return fmt.Sprintf("%dp", height)
}

func hasVideoStream(f RawFormat) bool {
	return f.VCodec != "" && f.VCodec != "none"
}

func resolutionOf(f RawFormat) string {
	if f.Resolution != "" {
		return f.Resolution
	}
	return fmt.Sprintf("%dx%d", f.Width, f.Height)
}

// audioDescriptor is the synthetic audio-extraction option. It does not
// compete with video ranking and always sits at index 0.
func audioDescriptor() FormatDescriptor {
	return FormatDescriptor{
		FormatID:   FormatIDAudio,
		Quality:    "MP3 Audio Only (Best Quality)",
		Ext:        "mp3",
		Resolution: "Audio",
	}
}
