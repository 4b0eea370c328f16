// Package fetch implements C1: fetch_html and fetch_then_extract against
// two selectable engines — a lightweight HTTP+HTML-parser path and a
// headless-browser path — behind a normalized-URL content cache,
// grounded on the internal/tools/web/fetch.go (lightweight
// engine) and internal/web/web.go (headless engine).
package fetch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	readability "github.com/go-shiori/go-readability"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/net/html/charset"

	"agenttic-rag/internal/archive"
	"agenttic-rag/internal/rediscache"
)

// Engine selects which fetch path is used.
type Engine string

const (
	EngineLightweight Engine = "lightweight"
	EngineHeadless Engine = "headless"
)

// Result is the outcome of a fetch; Extracted holds the main-content text
// for fetch_then_extract, HTML the raw page for fetch_html.
type Result struct {
	URL string
	Title string
	HTML string
	Extracted string
	FetchedAt time.Time
}

// Fetcher implements both C1 operations. A failed fetch returns a zero
// Result and an error; the caller decides what to do with it (the
// ingestion pipeline aborts that ingest with a network error).
type Fetcher struct {
	Engine Engine
	HTTPClient *http.Client
	Timeout time.Duration
	cache *contentCache
}

// New builds a Fetcher. cacheMaxEntries/cacheTTL/cacheMaxContentSize wire
// the result-caching policy below.
func New(engine Engine, timeout time.Duration, cacheMaxEntries int, cacheTTL time.Duration, cacheMaxContentSize int64) *Fetcher {
	if engine == "" {
		engine = EngineLightweight
	}
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{Timeout: 7 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		ForceAttemptHTTP2: true,
		TLSHandshakeTimeout: 7 * time.Second,
		MaxIdleConns: 100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout: 90 * time.Second,
		ResponseHeaderTimeout: 10 * time.Second,
	}
	return &Fetcher{
		Engine: engine,
		HTTPClient: &http.Client{
			Transport: otelhttp.NewTransport(transport, otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				return "fetch " + r.Method
			})),
			Timeout: timeout,
		},
		Timeout: timeout,
		cache: newContentCache(cacheMaxEntries, cacheTTL, cacheMaxContentSize),
	}
}

// WithRedis attaches a shared cache store backing the content cache; a nil
// store leaves the Fetcher running in-memory-only.
func (f *Fetcher) WithRedis(store *rediscache.Store) *Fetcher {
	f.cache.redis = store
	return f
}

// WithArchiver attaches the store that receives content evicted from the
// cache for exceeding cacheMaxContentSize; a nil archiver leaves oversized
// fetches dropped, as before.
func (f *Fetcher) WithArchiver(a archive.Archiver) *Fetcher {
	f.cache.archiver = a
	return f
}

// FetchHTML returns the raw HTML of url, using whichever engine is
// configured. Results are cached by the normalized URL.
func (f *Fetcher) FetchHTML(ctx context.Context, rawURL string) (string, error) {
	key := normalizeURL(rawURL)
	if cached, ok := f.cache.get(ctx, key); ok {
		return cached.HTML, nil
	}
	var html string
	var err error
	switch f.Engine {
	case EngineHeadless:
		html, err = f.fetchHTMLHeadless(ctx, rawURL)
	default:
		html, err = f.fetchHTMLLightweight(ctx, rawURL)
	}
	if err != nil {
		return "", err
	}
	f.cache.put(ctx, key, Result{URL: rawURL, HTML: html, FetchedAt: time.Now()})
	return html, nil
}

// FetchThenExtract fetches rawURL and returns its main-content plain text
// plus title. HTML from either engine goes through the same readability
// pass, with whole-document markdown conversion as the fallback; there is
// no selector parameter.
func (f *Fetcher) FetchThenExtract(ctx context.Context, rawURL string) (title, text string, err error) {
	key := normalizeURL(rawURL)
	if cached, ok := f.cache.get(ctx, key); ok && cached.Extracted != "" {
		return cached.Title, cached.Extracted, nil
	}

	html, err := f.FetchHTML(ctx, rawURL)
	if err != nil {
		return "", "", err
	}

	base, _ := url.Parse(rawURL)
	art, rerr := readability.FromReader(strings.NewReader(html), base)
	var extracted, title2 string
	if rerr == nil && strings.TrimSpace(art.Content) != "" {
		md, mdErr := htmltomarkdown.ConvertString(art.Content, converter.WithDomain(baseOrigin(rawURL)))
		if mdErr == nil {
			extracted = strings.TrimSpace(md)
		} else {
			extracted = strings.TrimSpace(art.TextContent)
		}
		title2 = strings.TrimSpace(art.Title)
	} else {
		md, mdErr := htmltomarkdown.ConvertString(html, converter.WithDomain(baseOrigin(rawURL)))
		if mdErr == nil {
			extracted = strings.TrimSpace(md)
		}
	}

	f.cache.update(ctx, key, func(r *Result) {
		r.Title = title2
		r.Extracted = extracted
	})
	return title2, extracted, nil
}

func (f *Fetcher) fetchHTMLLightweight(ctx context.Context, rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; agenttic-rag/1.0)")
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := f.HTTPClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	ct, cs := parseContentType(resp.Header.Get("Content-Type"))
	body, err := io.ReadAll(io.LimitReader(resp.Body, 16*1000*1000))
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}
	utf8Body, err := toUTF8(body, cs)
	if err != nil {
		return "", fmt.Errorf("decode charset: %w", err)
	}
	if !isHTML(ct) && ct != "" {
		return string(utf8Body), nil
	}
	return string(utf8Body), nil
}

func (f *Fetcher) fetchHTMLHeadless(parent context.Context, rawURL string) (string, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:], chromedp.Flag("headless", true))
	allocCtx, cancel := chromedp.NewExecAllocator(parent, opts...)
	defer cancel()
	ctx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()
	ctx, cancel = context.WithTimeout(ctx, f.Timeout)
	defer cancel()

	var html string
	err := chromedp.Run(ctx,
		chromedp.Navigate(rawURL),
		chromedp.ActionFunc(func(ctx context.Context) error {
			headers := map[string]interface{}{
				"User-Agent": "Mozilla/5.0 (compatible; agenttic-rag/1.0)",
				"Accept-Language": "en-US,en;q=0.9",
			}
			return network.SetExtraHTTPHeaders(network.Headers(headers)).Do(ctx)
		}),
		chromedp.WaitReady("body"),
		chromedp.OuterHTML("html", &html),
	)
	if err != nil {
		return "", fmt.Errorf("headless fetch: %w", err)
	}
	return html, nil
}

func parseContentType(h string) (ctype, charsetLabel string) {
	if h == "" {
		return "", ""
	}
	mt, params, err := mime.ParseMediaType(h)
	if err != nil {
		return h, ""
	}
	return strings.ToLower(mt), strings.ToLower(params["charset"])
}

func isHTML(ct string) bool {
	return ct == "text/html" || ct == "application/xhtml+xml" || strings.HasSuffix(ct, "html")
}

func toUTF8(b []byte, charsetLabel string) ([]byte, error) {
	if charsetLabel == "" || strings.EqualFold(charsetLabel, "utf-8") || strings.EqualFold(charsetLabel, "utf8") {
		return b, nil
	}
	r, err := charset.NewReaderLabel(charsetLabel, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	return io.ReadAll(r)
}

func baseOrigin(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}

// normalizeURL lowercases scheme+host, strips the default port, and drops
// the fragment.
func normalizeURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	u.Scheme = strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Host)
	if (u.Scheme == "http" && strings.HasSuffix(host, ":80")) ||
		(u.Scheme == "https" && strings.HasSuffix(host, ":443")) {
		host = host[:strings.LastIndex(host, ":")]
	}
	u.Host = host
	u.Fragment = ""
	return u.String()
}
