package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"mediagrab/internal/media"
)

const tikwmBaseURL = "https://www.tikwm.com"

// browserUserAgent is sent on scraping requests; the upstream APIs reject
// default Go agents.
const browserUserAgent = "Mozilla/5.0"

// Tikwm is the public-API fallback for the short-form platform. It normalizes
// the tikwm.com photo/video response shape into the common ResolvedMedia
// contract.
type Tikwm struct {
	client  *http.Client
	baseURL string
	log     *slog.Logger
}

// NewTikwm returns a Tikwm resolver using the given client (which should
// carry the outbound fetch timeout).
func NewTikwm(client *http.Client, log *slog.Logger) *Tikwm {
	return &Tikwm{client: client, baseURL: tikwmBaseURL, log: log}
}

func (t *Tikwm) Name() string { return "tikwm" }

type tikwmResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data struct {
		ID       string   `json:"id"`
		Title    string   `json:"title"`
		Cover    string   `json:"cover"`
		Duration float64  `json:"duration"`
		Play     string   `json:"play"`
		HDPlay   string   `json:"hdplay"`
		Images   []string `json:"images"`
		Author   struct {
			Nickname string `json:"nickname"`
		} `json:"author"`
	} `json:"data"`
}

// Resolve queries the tikwm API and maps its response into ResolvedMedia.
func (t *Tikwm) Resolve(ctx context.Context, rawURL string) (*media.ResolvedMedia, error) {
	endpoint := fmt.Sprintf("%s/api/?url=%s", t.baseURL, url.QueryEscape(rawURL))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", browserUserAgent)

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tikwm request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tikwm status %d", resp.StatusCode)
	}

	var body tikwmResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&body); err != nil {
		return nil, fmt.Errorf("tikwm decode: %w", err)
	}
	if body.Code != 0 {
		t.log.Debug("tikwm rejected url", slog.Int("code", body.Code), slog.String("msg", body.Msg))
		return nil, fmt.Errorf("tikwm error code %d: %s", body.Code, body.Msg)
	}

	data := body.Data
	isCarousel := len(data.Images) > 0

	var formats []media.FormatDescriptor
	if isCarousel {
		formats = append(formats, media.FormatDescriptor{
			FormatID:        "images",
			Quality:         "Original",
			Ext:             "jpg",
			Resolution:      fmt.Sprintf("%d images", len(data.Images)),
			Type:            media.TypeImages,
			IsPhotoCarousel: true,
		})
	} else {
		if data.HDPlay != "" {
			formats = append(formats, media.FormatDescriptor{
				FormatID: "hd", Quality: "HD (No Watermark)", Ext: "mp4",
				Type: media.TypeVideo, SourceURL: data.HDPlay,
			})
		}
		if data.Play != "" {
			formats = append(formats, media.FormatDescriptor{
				FormatID: "sd", Quality: "SD", Ext: "mp4",
				Type: media.TypeVideo, SourceURL: data.Play,
			})
		}
	}

	payload, err := json.Marshal(media.TikTokPayload{
		ID:     data.ID,
		Images: data.Images,
		HDPlay: data.HDPlay,
		Play:   data.Play,
	})
	if err != nil {
		return nil, err
	}

	title := data.Title
	if title == "" {
		title = "TikTok Content"
	}
	uploader := data.Author.Nickname
	if uploader == "" {
		uploader = "TikTok User"
	}

	return &media.ResolvedMedia{
		Title:           title,
		Thumbnail:       data.Cover,
		Duration:        data.Duration,
		Uploader:        uploader,
		Platform:        "TikTok (tikwm.com)",
		Formats:         formats,
		IsPhotoCarousel: isCarousel,
		IsTikTok:        true,
		ProviderPayload: payload,
	}, nil
}
