package connector

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/chromedp/chromedp"
	colly "github.com/gocolly/colly/v2"
	"golang.org/x/net/html/charset"

	"knowledge-platform/internal/config"
	"knowledge-platform/models"
)

var httpTransport = &http.Transport{
	DisableCompression: false, // enables gzip decompression
}

// pageCap bounds how many pages one crawl may emit, shared between the
// collector callbacks and the JS render path.
type pageCap struct {
	mu        sync.Mutex
	remaining int
}

func newPageCap(n int) *pageCap { return &pageCap{remaining: n} }

// take consumes one page slot, reporting false once the cap is spent.
func (p *pageCap) take() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.remaining <= 0 {
		return false
	}
	p.remaining--
	return true
}

func (p *pageCap) spent() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.remaining <= 0
}

// WebConnector fetches one or more web pages and extracts readable text.
// A url source crawls from a single start page, optionally following links
// within the allowed domains; url_list fetches an explicit page set.
type WebConnector struct {
	cfg *config.Config
}

func NewWebConnector(cfg *config.Config) *WebConnector {
	return &WebConnector{cfg: cfg}
}

func (c *WebConnector) Type() string { return models.SourceTypeURL }

func (c *WebConnector) Validate(_ context.Context, spec FetchSpec) error {
	return validateURL(spec.Source.Location)
}

func validateURL(raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" && parsed.Scheme != "" {
		return fmt.Errorf("unsupported URL scheme %q", parsed.Scheme)
	}
	if parsed.Host == "" && parsed.Scheme != "" {
		return fmt.Errorf("URL has no host")
	}
	return nil
}

func (c *WebConnector) Fetch(ctx context.Context, spec FetchSpec) (<-chan Item, <-chan ItemError) {
	items := make(chan Item)
	errs := make(chan ItemError)

	go func() {
		defer close(items)
		defer close(errs)
		c.crawl(ctx, spec, []string{spec.Source.Location}, spec.Source.Params.FollowLinks, items, errs)
	}()

	return items, errs
}

// urlListConnector reuses the web crawler for an explicit list of pages,
// never following links.
type urlListConnector struct {
	web *WebConnector
}

func (c *urlListConnector) Type() string { return models.SourceTypeURLList }

func (c *urlListConnector) Validate(_ context.Context, spec FetchSpec) error {
	if len(spec.Source.Params.URLs) == 0 {
		return fmt.Errorf("url_list source has no urls configured")
	}
	for _, u := range spec.Source.Params.URLs {
		if err := validateURL(u); err != nil {
			return fmt.Errorf("url %q: %w", u, err)
		}
	}
	return nil
}

func (c *urlListConnector) Fetch(ctx context.Context, spec FetchSpec) (<-chan Item, <-chan ItemError) {
	items := make(chan Item)
	errs := make(chan ItemError)

	go func() {
		defer close(items)
		defer close(errs)
		c.web.crawl(ctx, spec, spec.Source.Params.URLs, false, items, errs)
	}()

	return items, errs
}

// crawl drives a fresh colly collector over the start URLs. Each crawl gets
// its own collector with fresh state.
func (c *WebConnector) crawl(ctx context.Context, spec FetchSpec, startURLs []string, followLinks bool, items chan<- Item, errs chan<- ItemError) {
	maxPages := spec.Source.Params.MaxPages
	if maxPages <= 0 {
		maxPages = 50
	}

	allowedDomains := spec.Source.Params.AllowedDomains
	if len(allowedDomains) == 0 {
		for _, raw := range startURLs {
			if parsed, err := url.Parse(raw); err == nil && parsed.Hostname() != "" {
				host := strings.TrimPrefix(strings.ToLower(parsed.Hostname()), "www.")
				allowedDomains = append(allowedDomains, host, "www."+host)
			}
		}
	}

	options := []colly.CollectorOption{}
	if followLinks {
		options = append(options, colly.MaxDepth(2))
	} else {
		options = append(options, colly.MaxDepth(1))
	}
	if len(allowedDomains) > 0 {
		options = append(options, colly.AllowedDomains(allowedDomains...))
	}

	collector := colly.NewCollector(options...)
	collector.WithTransport(httpTransport)
	collector.SetRequestTimeout(60 * time.Second)
	collector.UserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

	collector.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: 1,
		Delay:       500 * time.Millisecond,
	})

	pages := newPageCap(maxPages)

	collector.OnRequest(func(r *colly.Request) {
		if ctx.Err() != nil {
			r.Abort()
			return
		}
		r.Headers.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
		r.Headers.Set("Accept-Language", "en-US,en;q=0.9")
		r.Headers.Set("Accept-Encoding", "gzip, deflate, br")
	})

	collector.OnResponse(func(r *colly.Response) {
		contentType := r.Headers.Get("Content-Type")
		if contentType != "" && !strings.Contains(contentType, "text/html") && !strings.Contains(contentType, "application/xhtml+xml") {
			return // skip binary content
		}

		var bodyReader io.Reader = bytes.NewReader(r.Body)

		// gzip is handled by the transport; brotli is not
		if strings.Contains(r.Headers.Get("Content-Encoding"), "br") {
			if decompressed, err := io.ReadAll(brotli.NewReader(bodyReader)); err == nil {
				r.Body = decompressed
				bodyReader = bytes.NewReader(decompressed)
			}
		}

		// Decode charset to UTF-8
		if len(r.Body) > 0 {
			if utf8Reader, err := charset.NewReader(bodyReader, contentType); err == nil {
				if decoded, readErr := io.ReadAll(utf8Reader); readErr == nil && len(decoded) > 0 {
					r.Body = decoded
				}
			}
		}

		pageURL := r.Request.URL.String()
		text, err := ReadableText(bytes.NewReader(r.Body))
		if err != nil {
			emitErr(ctx, errs, pageURL, err)
			return
		}
		if text == "" {
			emitErr(ctx, errs, pageURL, fmt.Errorf("no readable text"))
			return
		}

		if !pages.take() {
			return
		}

		emit(ctx, items, Item{
			ID:        pageURL,
			Path:      pageURL,
			Text:      text,
			PageCount: 1,
			Meta:      map[string]string{"url": pageURL, "status": fmt.Sprintf("%d", r.StatusCode)},
		})
	})

	if followLinks {
		collector.OnHTML("a[href]", func(e *colly.HTMLElement) {
			if pages.spent() {
				return
			}
			e.Request.Visit(e.Attr("href"))
		})
	}

	collector.OnError(func(r *colly.Response, err error) {
		emitErr(ctx, errs, r.Request.URL.String(), err)
	})

	for _, start := range startURLs {
		if ctx.Err() != nil {
			return
		}
		if spec.Source.Params.RenderJS {
			// Render the page in headless Chrome first; pages behind client
			// side rendering return empty bodies to a plain fetch.
			if html, err := renderJS(ctx, start); err == nil && html != "" {
				text, terr := ReadableText(bytes.NewReader([]byte(html)))
				if terr == nil && text != "" {
					if !pages.take() {
						return
					}
					if !emit(ctx, items, Item{
						ID:        start,
						Path:      start,
						Text:      text,
						PageCount: 1,
						Meta:      map[string]string{"url": start, "rendered": "js"},
					}) {
						return
					}
					continue
				}
			}
		}
		if err := collector.Visit(start); err != nil {
			emitErr(ctx, errs, start, err)
		}
	}

	collector.Wait()
}

// renderJS loads a page in headless Chrome and returns the rendered HTML.
func renderJS(ctx context.Context, pageURL string) (string, error) {
	renderCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	browserCtx, browserCancel := chromedp.NewContext(renderCtx)
	defer browserCancel()

	var html string
	err := chromedp.Run(browserCtx,
		chromedp.Navigate(pageURL),
		chromedp.WaitReady("body"),
		chromedp.Sleep(300*time.Millisecond),
		chromedp.OuterHTML("html", &html),
	)
	if err != nil {
		return "", fmt.Errorf("js render failed: %w", err)
	}
	return html, nil
}
