// Package provider resolves media URLs into downloadable descriptors through
// an ordered chain of independent, unreliable backends.
package provider

import (
	"context"
	"log/slog"
	"net/url"
	"strings"

	"mediagrab/internal/media"
)

// Resolver turns a URL into resolved media. Implementations are expected to
// fail often; a failure only means the next resolver in the chain is tried.
type Resolver interface {
	Name() string
	Resolve(ctx context.Context, rawURL string) (*media.ResolvedMedia, error)
}

// Chain attempts resolvers in order until one returns at least one format.
// Intermediate failures are logged and collected, never surfaced individually;
// exhausting the chain yields a single terminal ResolutionError carrying every
// attempt's reason.
type Chain struct {
	resolvers []Resolver
	log       *slog.Logger

	// OnFallback is invoked each time control passes from a failed resolver
	// to the next one. Optional; used for metrics.
	OnFallback func(provider string)
}

// NewChain builds a fallback chain over the given resolvers, in order.
func NewChain(log *slog.Logger, resolvers ...Resolver) *Chain {
	return &Chain{resolvers: resolvers, log: log}
}

// Resolve runs the chain. A resolver succeeds only if it returns a non-nil
// result with at least one format; anything else falls through. There is no
// racing or merging across resolvers.
func (c *Chain) Resolve(ctx context.Context, rawURL string) (*media.ResolvedMedia, error) {
	var attempts []media.Attempt

	for i, r := range c.resolvers {
		res, err := r.Resolve(ctx, rawURL)
		if err == nil && res != nil && len(res.Formats) > 0 {
			return res, nil
		}

		reason := "no formats found"
		if err != nil {
			reason = err.Error()
		}
		attempts = append(attempts, media.Attempt{Provider: r.Name(), Reason: reason})
		c.log.Warn("provider failed",
			slog.String("provider", r.Name()),
			slog.String("url", rawURL),
			slog.String("reason", reason),
		)
		if i < len(c.resolvers)-1 && c.OnFallback != nil {
			c.OnFallback(r.Name())
		}

		// Keep the first typed subprocess failure if it is the only resolver:
		// its command/stderr context matters more than a generic wrapper.
		if len(c.resolvers) == 1 {
			if subErr, ok := err.(*media.SubprocessError); ok {
				return nil, subErr
			}
		}
	}

	return nil, &media.ResolutionError{URL: rawURL, Attempts: attempts}
}

// IsShortForm reports whether the URL points at the short-form video platform
// served by the scraping providers rather than the generic extractor.
func IsShortForm(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	return host == "tiktok.com" || strings.HasSuffix(host, ".tiktok.com")
}
