package crawler

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"

	"github.com/kmercer/salewatch/internal/config"
)

const defaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// SiteAdapter crawls one county site described entirely by configuration:
// which URL, which pagination parameter, which selectors yield which raw
// fields. All per-source variation lives in the config, not in code.
type SiteAdapter struct {
	src     *config.SourceConfig
	crawl   config.CrawlConfig
	delay   time.Duration
	retries int
	agent   string
	domains []string
}

// NewSiteAdapter builds an adapter for one source config.
func NewSiteAdapter(src *config.SourceConfig, crawl config.CrawlConfig) (*SiteAdapter, error) {
	u, err := url.Parse(src.IndexURL)
	if err != nil {
		return nil, fmt.Errorf("invalid index url %q: %w", src.IndexURL, err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("index url %q has no host", src.IndexURL)
	}

	agent := crawl.UserAgent
	if agent == "" {
		agent = defaultUserAgent
	}
	retries := crawl.MaxRetries
	if retries <= 0 {
		retries = 3
	}

	return &SiteAdapter{
		src:     src,
		crawl:   crawl,
		delay:   time.Duration(crawl.RequestDelayMs) * time.Millisecond,
		retries: retries,
		agent:   agent,
		// colly matches allowed domains against the hostname, without port.
		domains: []string{u.Hostname(), strings.TrimPrefix(u.Hostname(), "www.")},
	}, nil
}

// SourceID returns the id of the source this adapter crawls.
func (a *SiteAdapter) SourceID() string { return a.src.ID }

// HasDetail reports whether the source has per-listing detail pages.
func (a *SiteAdapter) HasDetail() bool { return a.src.Detail != nil }

func (a *SiteAdapter) newCollector() *colly.Collector {
	c := colly.NewCollector(
		colly.AllowedDomains(a.domains...),
		colly.UserAgent(a.agent),
		colly.MaxDepth(1),
	)
	c.SetRequestTimeout(30 * time.Second)
	c.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Delay:       a.delay,
		RandomDelay: a.delay / 2,
	})
	return c
}

// FetchIndex walks the paginated index in page order and extracts one raw
// record per row. Pagination stops at an empty page or the configured
// maximum. A page that stays unreachable after retries fails the whole
// index fetch: partial coverage must never look like a complete run.
func (a *SiteAdapter) FetchIndex(ctx context.Context) ([]RawRecord, error) {
	var all []RawRecord

	if a.src.PageParam == "" {
		rows, err := a.fetchIndexPage(ctx, a.src.IndexURL)
		if err != nil {
			return nil, fmt.Errorf("index fetch failed for %s: %w", a.src.ID, err)
		}
		return rows, nil
	}

	for page := a.src.PageStart; page < a.src.PageStart+a.src.MaxPages; page++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		rows, err := a.fetchIndexPage(ctx, a.pageURL(page))
		if err != nil {
			return nil, fmt.Errorf("index page %d failed for %s: %w", page, a.src.ID, err)
		}
		if len(rows) == 0 {
			break
		}
		all = append(all, rows...)
	}

	return all, nil
}

func (a *SiteAdapter) pageURL(page int) string {
	u, err := url.Parse(a.src.IndexURL)
	if err != nil {
		return a.src.IndexURL
	}
	q := u.Query()
	q.Set(a.src.PageParam, strconv.Itoa(page))
	u.RawQuery = q.Encode()
	return u.String()
}

func (a *SiteAdapter) fetchIndexPage(ctx context.Context, pageURL string) ([]RawRecord, error) {
	var rows []RawRecord

	collect := func() error {
		rows = rows[:0]
		c := a.newCollector()

		c.OnHTML(a.src.RowSel, func(e *colly.HTMLElement) {
			rec := RawRecord{
				SourceID: a.src.ID,
				Fields:   make(map[string]string, len(a.src.Fields)),
			}

			for rawField, sel := range a.src.Fields {
				// Layout drift on one field yields an empty value for that
				// field, never a dropped row.
				if v := extractText(e.DOM, sel); v != "" {
					rec.Fields[rawField] = v
				}
			}

			rec.NativeID = a.extractNativeID(e)
			if a.src.Detail != nil && a.src.Detail.LinkSel != "" {
				if href, ok := e.DOM.Find(a.src.Detail.LinkSel).First().Attr("href"); ok {
					rec.DetailURL = e.Request.AbsoluteURL(href)
				}
			}

			rows = append(rows, rec)
		})

		var visitErr error
		c.OnError(func(r *colly.Response, err error) {
			visitErr = fmt.Errorf("request %s failed (status %d): %w", pageURL, r.StatusCode, err)
		})

		if err := c.Visit(pageURL); err != nil {
			return err
		}
		c.Wait()
		return visitErr
	}

	if err := a.withRetry(ctx, collect); err != nil {
		return nil, err
	}
	return rows, nil
}

func (a *SiteAdapter) extractNativeID(e *colly.HTMLElement) string {
	sel := a.src.NativeID
	switch {
	case sel.Selector != "" && sel.Attr != "":
		v, _ := e.DOM.Find(sel.Selector).First().Attr(sel.Attr)
		return strings.TrimSpace(v)
	case sel.Selector != "":
		return extractText(e.DOM, sel.Selector)
	case sel.Attr != "":
		return strings.TrimSpace(e.Attr(sel.Attr))
	default:
		return ""
	}
}

// FetchDetail fetches one listing's detail page and extracts the detail
// fields. Transient failures are retried with backoff; a listing whose
// detail page stays unreachable is the caller's to skip, not a run killer.
func (a *SiteAdapter) FetchDetail(ctx context.Context, rec *RawRecord) (map[string]string, error) {
	if a.src.Detail == nil {
		return nil, nil
	}
	if rec.DetailURL == "" {
		return nil, fmt.Errorf("record %s has no detail url", rec.NativeID)
	}

	fields := make(map[string]string, len(a.src.Detail.Fields))

	collect := func() error {
		c := a.newCollector()

		c.OnHTML("body", func(e *colly.HTMLElement) {
			for rawField, sel := range a.src.Detail.Fields {
				if v := extractText(e.DOM, sel); v != "" {
					fields[rawField] = v
				}
			}
		})

		var visitErr error
		c.OnError(func(r *colly.Response, err error) {
			visitErr = fmt.Errorf("request %s failed (status %d): %w", rec.DetailURL, r.StatusCode, err)
		})

		if err := c.Visit(rec.DetailURL); err != nil {
			return err
		}
		c.Wait()
		return visitErr
	}

	if err := a.withRetry(ctx, collect); err != nil {
		return nil, err
	}
	return fields, nil
}

// withRetry runs fn up to the configured attempt count with exponential
// backoff between attempts.
func (a *SiteAdapter) withRetry(ctx context.Context, fn func() error) error {
	var lastErr error
	backoff := 2 * time.Second

	for attempt := 0; attempt < a.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
				backoff *= 2
			}
		}
		if err := fn(); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	return fmt.Errorf("failed after %d attempts: %w", a.retries, lastErr)
}

func extractText(dom *goquery.Selection, selector string) string {
	text := dom.Find(selector).First().Text()
	return strings.Join(strings.Fields(text), " ")
}
