package download

import "mediagrab/internal/media"

// Selection is the yt-dlp invocation shape derived from a requested format:
// the -f selector string, the post-processing flags, and the nominal output
// extension (the tool may still change it when merging).
type Selection struct {
	Selector string
	Args     []string
	Ext      string
}

// BuildSelector maps a job's format id onto the extraction tool's selector
// grammar. The audio option extracts best audio to mp3; a concrete id is
// paired with the best audio track (best overall as fallback) and merged into
// mp4; no selection means best video plus best audio.
func BuildSelector(formatID string) Selection {
	switch {
	case formatID == media.FormatIDAudio:
		return Selection{
			Selector: "bestaudio",
			Args:     []string{"--extract-audio", "--audio-format", "mp3", "--audio-quality", "0"},
			Ext:      "mp3",
		}
	case formatID != "" && formatID != "best":
		return Selection{
			Selector: formatID + "+bestaudio/best",
			Args:     []string{"--merge-output-format", "mp4"},
			Ext:      "mp4",
		}
	default:
		return Selection{
			Selector: "bestvideo+bestaudio/best",
			Args:     []string{"--merge-output-format", "mp4"},
			Ext:      "mp4",
		}
	}
}
