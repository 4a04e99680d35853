package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"mediagrab/internal/media"
)

const snaptikBaseURL = "https://snaptik.app"

var (
	snaptikTokenRe  = regexp.MustCompile(`name="token"\s+value="([^"]+)"`)
	snaptikSourceRe = regexp.MustCompile(`<a[^>]+href="(https?://[^"]+)"[^>]*class="[^"]*download-file`)
	snaptikPhotoRe  = regexp.MustCompile(`<img[^>]+class="[^"]*photo[^"]*"[^>]+src="(https?://[^"]+)"`)
)

// SnapTik is the primary short-form resolver: a locally-embedded scraping
// client. It is attempted first for its quality (watermark-free sources) and
// proxy support; every failure here is expected and falls through to the
// secondary resolver.
type SnapTik struct {
	client  *http.Client
	baseURL string
	log     *slog.Logger
}

// NewSnapTik builds a SnapTik resolver. proxyURL, when non-empty, routes the
// scraping traffic through the given HTTP proxy; the passed client's timeout
// is kept either way.
func NewSnapTik(client *http.Client, proxyURL string, log *slog.Logger) *SnapTik {
	if proxyURL != "" {
		if proxy, err := url.Parse(proxyURL); err == nil {
			proxied := *client
			proxied.Transport = &http.Transport{Proxy: http.ProxyURL(proxy)}
			client = &proxied
		} else {
			log.Warn("invalid proxy url, scraping without proxy", slog.String("proxy", proxyURL))
		}
	}
	return &SnapTik{client: client, baseURL: snaptikBaseURL, log: log}
}

func (s *SnapTik) Name() string { return "snaptik" }

// Resolve scrapes the SnapTik form flow: fetch the page for a session token,
// submit the target URL, and pull video source or slideshow photo links out
// of the result markup.
func (s *SnapTik) Resolve(ctx context.Context, rawURL string) (*media.ResolvedMedia, error) {
	token, err := s.fetchToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("snaptik token: %w", err)
	}

	page, err := s.submit(ctx, rawURL, token)
	if err != nil {
		return nil, fmt.Errorf("snaptik submit: %w", err)
	}

	sources := matchAll(snaptikSourceRe, page)
	photos := matchAll(snaptikPhotoRe, page)

	switch {
	case len(photos) > 0:
		return s.slideshowMedia(photos)
	case len(sources) > 0:
		return s.videoMedia(sources)
	default:
		return nil, fmt.Errorf("snaptik: no sources in response")
	}
}

func (s *SnapTik) fetchToken(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", browserUserAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", err
	}
	m := snaptikTokenRe.FindSubmatch(body)
	if m == nil {
		return "", fmt.Errorf("token not found in page")
	}
	return string(m[1]), nil
}

func (s *SnapTik) submit(ctx context.Context, rawURL, token string) ([]byte, error) {
	form := url.Values{"url": {rawURL}, "token": {token}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/abc2.php", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", browserUserAgent)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, 4<<20))
}

// videoMedia maps scraped source links into formats. The first source is
// conventionally the watermark-free HD encode.
func (s *SnapTik) videoMedia(sources []string) (*media.ResolvedMedia, error) {
	formats := make([]media.FormatDescriptor, 0, len(sources))
	for i, src := range sources {
		quality := "SD"
		switch i {
		case 0:
			quality = "HD (No Watermark)"
		case 1:
			quality = "HD Alt"
		}
		formats = append(formats, media.FormatDescriptor{
			FormatID:  fmt.Sprintf("snaptik-%d", i),
			Quality:   quality,
			Ext:       "mp4",
			Type:      media.TypeVideo,
			SourceURL: src,
		})
	}

	payload, err := json.Marshal(media.TikTokPayload{
		HDPlay: sources[0],
		Play:   sources[len(sources)-1],
	})
	if err != nil {
		return nil, err
	}

	return &media.ResolvedMedia{
		Title:           "TikTok Video",
		Uploader:        "TikTok User",
		Platform:        "TikTok (SnapTik Local)",
		Formats:         formats,
		IsTikTok:        true,
		ProviderPayload: payload,
	}, nil
}

func (s *SnapTik) slideshowMedia(photos []string) (*media.ResolvedMedia, error) {
	payload, err := json.Marshal(media.TikTokPayload{Images: photos})
	if err != nil {
		return nil, err
	}

	return &media.ResolvedMedia{
		Title:    "TikTok Video",
		Uploader: "TikTok User",
		Platform: "TikTok (SnapTik Local)",
		Formats: []media.FormatDescriptor{{
			FormatID:        "images",
			Quality:         "Original",
			Ext:             "jpg",
			Resolution:      fmt.Sprintf("%d images", len(photos)),
			Type:            media.TypeImages,
			IsPhotoCarousel: true,
		}},
		IsPhotoCarousel: true,
		IsTikTok:        true,
		ProviderPayload: payload,
	}, nil
}

func matchAll(re *regexp.Regexp, page []byte) []string {
	var out []string
	for _, m := range re.FindAllSubmatch(page, -1) {
		out = append(out, string(m[1]))
	}
	return out
}
