// Package fetch downloads contributor pages, live or archived.
package fetch

import (
	"bytes"
	"context"
	"fmt"
	"time"
	"topcontributors/internal/components/assert"
	"topcontributors/internal/components/telemetry"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("topcontributors/fetch")

const (
	report_client_fetch = "client.fetch"
	report_client_cache = "client.cache"
)

// DefaultUserAgent is sent with every request unless overridden.
const DefaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/63.0.3239.132 Safari/537.36"

type Options struct {
	UserAgent string
	Timeout   time.Duration
	// Dump receives a transcript of every request, it may be nil.
	Dump telemetry.DumpOutput
	// Cache may be nil.
	Cache *PageCache
	// Cacheable decides which URLs go through Cache, defaults to IsArchiveURL.
	Cacheable func(url string) bool
}

type Client struct {
	http      *resty.Client
	cache     *PageCache
	cacheable func(url string) bool
	tel       telemetry.API
}

func NewClient(opts Options, tel telemetry.API) *Client {
	assert.NotNil(tel)
	tel = telemetry.NewScopedAPI("fetch", tel)

	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.Timeout == 0 {
		opts.Timeout = time.Second * 30
	}
	if opts.Cacheable == nil {
		opts.Cacheable = IsArchiveURL
	}

	httpClient := resty.New()
	httpClient.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(httpClient.GetClient().Transport)
	httpClient.SetHeader("user-agent", opts.UserAgent)
	httpClient.SetTimeout(opts.Timeout)
	// a failed request fails the run
	httpClient.SetRetryCount(0)

	telemetry.InstrumentResty(httpClient, tel, opts.Dump)

	return &Client{
		http:      httpClient,
		cache:     opts.Cache,
		cacheable: opts.Cacheable,
		tel:       tel,
	}
}

// Fetch returns the body of url. Any transport failure or non-2xx status is an error.
func (c *Client) Fetch(ctx context.Context, url string) ([]byte, error) {
	ctx, span := tracer.Start(ctx, "Fetch")
	defer span.End()

	useCache := c.cache != nil && c.cacheable(url)
	if useCache {
		body, ok, err := c.cache.Get(ctx, url)
		if err != nil {
			c.tel.ReportWarning(report_client_cache, fmt.Errorf("get: %w", err), url)
		}
		if ok {
			c.tel.ReportDebug("cache hit", url)
			return body, nil
		}
	}

	res, err := c.http.R().
		SetContext(ctx).
		Get(url)
	if err != nil {
		c.tel.ReportBroken(report_client_fetch, err, url)
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	if !res.IsSuccess() {
		err = fmt.Errorf("fetch %s: unexpected status %s", url, res.Status())
		c.tel.ReportBroken(report_client_fetch, err)
		return nil, err
	}

	body := res.Body()
	if useCache {
		err = c.cache.Put(ctx, url, body)
		if err != nil {
			c.tel.ReportWarning(report_client_cache, fmt.Errorf("put: %w", err), url)
		}
	}
	return body, nil
}

func (c *Client) Document(ctx context.Context, url string) (*goquery.Document, error) {
	body, err := c.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewBuffer(body))
	if err != nil {
		c.tel.ReportBroken(report_client_fetch, fmt.Errorf("parse html: %w", err), url)
		return nil, err
	}
	return doc, nil
}
