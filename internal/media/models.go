package media

import "encoding/json"

// MediaType distinguishes a selectable video variant from a photo carousel.
type MediaType string

const (
	TypeVideo  MediaType = "video"
	TypeImages MediaType = "images"
)

// FormatIDAudio is the synthetic audio-only option prepended to every ranked
// format list. It never comes from a provider.
const FormatIDAudio = "audio-mp3"

// MediaRequest is the body of a resolution request.
type MediaRequest struct {
	URL string `json:"url"`
}

// RawFormat is the subset of a yt-dlp format entry the ranking engine needs.
type RawFormat struct {
	FormatID     string  `json:"format_id"`
	FormatNote   string  `json:"format_note"`
	QualityLabel string  `json:"quality_label"`
	Ext          string  `json:"ext"`
	Resolution   string  `json:"resolution"`
	Width        int     `json:"width"`
	Height       int     `json:"height"`
	FPS          float64 `json:"fps"`
	Filesize     int64   `json:"filesize"`
	VCodec       string  `json:"vcodec"`
	ACodec       string  `json:"acodec"`
}

// FormatDescriptor is one user-selectable quality/output variant.
type FormatDescriptor struct {
	FormatID        string    `json:"formatId"`
	Quality         string    `json:"quality"`
	Ext             string    `json:"ext"`
	Resolution      string    `json:"resolution,omitempty"`
	FPS             float64   `json:"fps,omitempty"`
	Filesize        int64     `json:"filesize,omitempty"`
	HasAudio        bool      `json:"hasAudio,omitempty"`
	Type            MediaType `json:"type,omitempty"`
	IsPhotoCarousel bool      `json:"isPhotoCarousel,omitempty"`
	SourceURL       string    `json:"url,omitempty"`
}

// ResolvedMedia is the result of a successful resolution. ProviderPayload is
// an opaque provider-specific bag the client must echo back unmodified in the
// download call; the service keeps no state between resolve and download.
type ResolvedMedia struct {
	Title           string             `json:"title"`
	Thumbnail       string             `json:"thumbnail"`
	Duration        float64            `json:"duration,omitempty"`
	Uploader        string             `json:"uploader"`
	Platform        string             `json:"platform"`
	Formats         []FormatDescriptor `json:"formats"`
	IsPhotoCarousel bool               `json:"isPhotoCarousel,omitempty"`
	IsTikTok        bool               `json:"isTikTok,omitempty"`
	ProviderPayload json.RawMessage    `json:"providerPayload,omitempty"`
}

// DownloadJob drives the download executor. If IsTikTok is true,
// ProviderPayload must be present and non-empty.
type DownloadJob struct {
	URL             string          `json:"url"`
	FormatID        string          `json:"formatId"`
	Quality         string          `json:"quality"`
	IsPhotoCarousel bool            `json:"isPhotoCarousel"`
	IsTikTok        bool            `json:"isTikTok"`
	ProviderPayload json.RawMessage `json:"providerPayload"`
}

// TikTokPayload is the concrete shape both short-form providers emit as
// ProviderPayload and the executor reads back.
type TikTokPayload struct {
	ID     string   `json:"id"`
	Images []string `json:"images,omitempty"`
	HDPlay string   `json:"hdplay,omitempty"`
	Play   string   `json:"play,omitempty"`
}
