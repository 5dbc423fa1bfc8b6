// Package crawl acquires memo documents from the exchange's search feed and
// persists them into the document store, one directory per memo.
package crawl

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	pdf "github.com/ledongthuc/pdf"

	"github.com/echoma/occ-info-memo/internal/record"
)

const (
	bucketDateLayout = "20060102"
	crawlDateLayout  = "2 Jan 2006"
	feedDateLayout   = "2006-01-02"

	defaultLookback = 30 * 24 * time.Hour
	defaultLimit    = 20
)

// Indexer receives every acquired document. Optional.
type Indexer interface {
	UpsertDocument(ctx context.Context, doc *record.Document) error
}

// Crawler fetches the search feed and downloads new memo PDFs.
type Crawler struct {
	httpClient *http.Client
	baseURL    string
	storeDir   string
	indexer    Indexer // may be nil
	logger     *slog.Logger

	now func() time.Time
}

// New builds a Crawler writing into storeDir.
func New(baseURL, storeDir string, indexer Indexer, logger *slog.Logger) *Crawler {
	return &Crawler{
		httpClient: &http.Client{Timeout: 60 * time.Second},
		baseURL:    baseURL,
		storeDir:   storeDir,
		indexer:    indexer,
		logger:     logger,
		now:        time.Now,
	}
}

// SearchURL assembles the memo-search feed URL for a created-day range. Zero
// start/end default to the trailing 30 days ending today.
func (c *Crawler) SearchURL(category string, start, end time.Time, page, startIdx, limit int) string {
	if end.IsZero() {
		end = c.now()
	}
	if start.IsZero() {
		start = end.Add(-defaultLookback)
	}
	if limit <= 0 {
		limit = defaultLimit
	}
	var query strings.Builder
	query.WriteString(" inmeta:MEMOMETA=true")
	if category != "" {
		query.WriteString(" inmeta:MEMOCATEGORY=" + category)
	}
	fmt.Fprintf(&query, " inmeta:MEMOCREATEDONDAY:%s..%s",
		start.Format(feedDateLayout), end.Format(feedDateLayout))

	params := url.Values{}
	params.Set("orderBy", "created_desc")
	params.Set("query", query.String())
	params.Set("_dc", strconv.FormatInt(c.now().UnixMilli(), 10))
	params.Set("page", strconv.Itoa(page))
	params.Set("start", strconv.Itoa(startIdx))
	params.Set("limit", strconv.Itoa(limit))
	params.Set("sort", `[{"property":"created","direction":"DESC"}]`)
	return c.baseURL + "?" + params.Encode()
}

// feed XML, GSA result format: /GSP/RES/R rows.
type searchFeed struct {
	XMLName xml.Name    `xml:"GSP"`
	Rows    []searchRow `xml:"RES>R"`
}

type searchRow struct {
	Position  int        `xml:"N,attr"`
	URL       string     `xml:"U"`
	Title     string     `xml:"T"`
	CrawlDate string     `xml:"CRAWLDATE"`
	Meta      []metaAttr `xml:"MT"`
}

type metaAttr struct {
	Name  string `xml:"N,attr"`
	Value string `xml:"V,attr"`
}

func (r searchRow) meta(name string) string {
	for _, m := range r.Meta {
		if strings.EqualFold(m.Name, name) {
			return m.Value
		}
	}
	return ""
}

// resolveNumber picks the document number once the full row is known: an
// explicit MEMONUMBER meta field wins, else the trailing '='-delimited
// component of the document URL.
func (r searchRow) resolveNumber() (int, error) {
	if v := r.meta("MEMONUMBER"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("memo number meta %q: %w", v, err)
		}
		return n, nil
	}
	i := strings.LastIndex(r.URL, "=")
	if i < 0 || i == len(r.URL)-1 {
		return 0, fmt.Errorf("no document number in url %q", r.URL)
	}
	n, err := strconv.Atoi(r.URL[i+1:])
	if err != nil {
		return 0, fmt.Errorf("document number in url %q: %w", r.URL, err)
	}
	return n, nil
}

// Crawl fetches one feed page and downloads every listed memo. Individual
// row failures are logged and skipped; only feed-level failures are fatal.
func (c *Crawler) Crawl(ctx context.Context, category string) error {
	feedURL := c.SearchURL(category, time.Time{}, time.Time{}, 1, 0, defaultLimit)
	feed, err := c.fetchFeed(ctx, feedURL)
	if err != nil {
		return err
	}
	c.logger.Info("feed fetched", "results", len(feed.Rows))
	for _, row := range feed.Rows {
		if err := c.fetchDocument(ctx, row, category); err != nil {
			c.logger.Warn("skipping feed row", "position", row.Position, "url", row.URL, "error", err)
		}
	}
	return nil
}

func (c *Crawler) fetchFeed(ctx context.Context, feedURL string) (*searchFeed, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build feed request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch feed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed returned %d", resp.StatusCode)
	}
	var feed searchFeed
	if err := xml.NewDecoder(resp.Body).Decode(&feed); err != nil {
		return nil, fmt.Errorf("decode feed: %w", err)
	}
	return &feed, nil
}

func (c *Crawler) fetchDocument(ctx context.Context, row searchRow, category string) error {
	number, err := row.resolveNumber()
	if err != nil {
		return err
	}
	crawled, err := time.Parse(crawlDateLayout, row.CrawlDate)
	if err != nil {
		return fmt.Errorf("parse crawl date %q: %w", row.CrawlDate, err)
	}
	date := crawled.Format(bucketDateLayout)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, row.URL, nil)
	if err != nil {
		return fmt.Errorf("build document request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("fetch document: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("document fetch returned %d", resp.StatusCode)
	}
	if !strings.Contains(resp.Header.Get("Content-Type"), "application/pdf") {
		return fmt.Errorf("document is not a pdf (%s)", resp.Header.Get("Content-Type"))
	}
	lastModified := c.now()
	if raw := resp.Header.Get("Last-Modified"); raw != "" {
		if parsed, err := http.ParseTime(raw); err == nil {
			lastModified = parsed
		}
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read document: %w", err)
	}

	// Page count is advisory; a PDF the parser chokes on is still saved,
	// rasterization works from the bytes either way.
	pageCount := countPages(data)
	if pageCount == 0 {
		c.logger.Warn("could not determine page count", "number", number)
	}

	doc := &record.Document{
		Number:       number,
		CreatedDate:  date,
		LastModified: lastModified,
		Category:     firstNonEmpty(row.meta("MEMOCATEGORY"), category),
		Title:        row.Title,
		PageCount:    pageCount,
	}
	dir := record.DirFor(c.storeDir, date, number)
	if err := os.MkdirAll(dir.Path, 0o755); err != nil {
		return fmt.Errorf("create document dir: %w", err)
	}
	if err := os.WriteFile(dir.PDFPath(), data, 0o644); err != nil {
		return fmt.Errorf("write pdf: %w", err)
	}
	if err := dir.Save(doc); err != nil {
		return err
	}
	c.logger.Info("document saved", "number", number, "date", date, "pages", pageCount)

	if c.indexer != nil {
		if err := c.indexer.UpsertDocument(ctx, doc); err != nil {
			c.logger.Warn("catalog upsert failed", "number", number, "error", err)
		}
	}
	return nil
}

func countPages(data []byte) (n int) {
	// The parser panics on some malformed files.
	defer func() {
		if recover() != nil {
			n = 0
		}
	}()
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return 0
	}
	return reader.NumPage()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
