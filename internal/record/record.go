// Package record describes the on-disk document store: one directory per
// acquired memo at root/<createdDateYYYYMMDD>/<number>/ holding the source
// PDF, its key/value record, rasterized page images and per-page OCR output.
package record

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/ini.v1"
)

const (
	recordSection = "crawl"

	// LastModifiedLayout matches the Last-Modified header format the record
	// stores, e.g. "Mon, 02 Jan 2006 15:04:05 +0000".
	LastModifiedLayout = time.RFC1123Z

	// PageImageSuffix marks rasterized page artifacts inside a document dir.
	PageImageSuffix = ".png"

	// ResultSuffix is appended to a page image name for its OCR output.
	ResultSuffix = ".ocr.json"
)

// Document is the persisted record for one acquired memo. It is written once
// by the crawler and read-only to the re-processing pipeline.
type Document struct {
	Number        int
	CreatedDate   string // YYYYMMDD, the storage bucket
	LastModified  time.Time
	Category      string
	Title         string
	PageCount     int
	EffectiveDate string
}

// Dir is a handle to one document directory inside the store.
type Dir struct {
	Path        string
	Number      int
	CreatedDate string
}

// DirFor returns the handle for a document under the store root.
func DirFor(root, createdDate string, number int) Dir {
	return Dir{
		Path:        filepath.Join(root, createdDate, strconv.Itoa(number)),
		Number:      number,
		CreatedDate: createdDate,
	}
}

// PDFPath is the source document location.
func (d Dir) PDFPath() string {
	return filepath.Join(d.Path, strconv.Itoa(d.Number)+".pdf")
}

// RecordPath is the metadata record location.
func (d Dir) RecordPath() string {
	return filepath.Join(d.Path, strconv.Itoa(d.Number)+".ini")
}

// TextPath is the structured text artifact location.
func (d Dir) TextPath() string {
	return filepath.Join(d.Path, strconv.Itoa(d.Number)+".txt")
}

// MarkupPath is the marked-up text artifact location.
func (d Dir) MarkupPath() string {
	return filepath.Join(d.Path, strconv.Itoa(d.Number)+".html")
}

// Load reads the document record from the directory. The timezone of the
// parsed timestamps is carried by the record itself (RFC1123Z), so no
// location parameter is needed here.
func (d Dir) Load() (*Document, error) {
	cfg, err := ini.Load(d.RecordPath())
	if err != nil {
		return nil, fmt.Errorf("load record %s: %w", d.RecordPath(), err)
	}
	sec := cfg.Section(recordSection)
	raw := sec.Key("last_modified").String()
	if raw == "" {
		return nil, fmt.Errorf("record %s: missing last_modified", d.RecordPath())
	}
	lastMod, err := time.Parse(LastModifiedLayout, raw)
	if err != nil {
		return nil, fmt.Errorf("record %s: parse last_modified: %w", d.RecordPath(), err)
	}
	doc := &Document{
		Number:        d.Number,
		CreatedDate:   d.CreatedDate,
		LastModified:  lastMod,
		Category:      sec.Key("category").String(),
		Title:         sec.Key("title").String(),
		EffectiveDate: sec.Key("effective_date").String(),
	}
	doc.PageCount, _ = sec.Key("page_count").Int()
	return doc, nil
}

// Save writes the document record, creating the directory tree as needed.
func (d Dir) Save(doc *Document) error {
	if err := os.MkdirAll(d.Path, 0o755); err != nil {
		return fmt.Errorf("create document dir: %w", err)
	}
	cfg := ini.Empty()
	sec, err := cfg.NewSection(recordSection)
	if err != nil {
		return fmt.Errorf("record section: %w", err)
	}
	sec.Key("last_modified").SetValue(doc.LastModified.UTC().Format(LastModifiedLayout))
	if doc.Category != "" {
		sec.Key("category").SetValue(doc.Category)
	}
	if doc.Title != "" {
		sec.Key("title").SetValue(doc.Title)
	}
	if doc.PageCount > 0 {
		sec.Key("page_count").SetValue(strconv.Itoa(doc.PageCount))
	}
	if doc.EffectiveDate != "" {
		sec.Key("effective_date").SetValue(doc.EffectiveDate)
	}
	if err := cfg.SaveTo(d.RecordPath()); err != nil {
		return fmt.Errorf("save record %s: %w", d.RecordPath(), err)
	}
	return nil
}

// PageIndex extracts the numeric ordering key embedded in a page artifact
// name: the component after the last '-' and before the extension.
// Names without a parsable key sort first with index -1; legacy single-page
// outputs have no suffix at all.
func PageIndex(name string) int {
	i := strings.LastIndex(name, "-")
	if i < 0 {
		return -1
	}
	j := strings.LastIndex(name, ".")
	if j <= i+1 {
		return -1
	}
	n, err := strconv.Atoi(name[i+1 : j])
	if err != nil {
		return -1
	}
	return n
}

// Pages lists the page-image artifacts of the directory ordered by their
// embedded page index. The sort is stable so equal keys keep directory order.
func (d Dir) Pages() ([]string, error) {
	entries, err := os.ReadDir(d.Path)
	if err != nil {
		return nil, fmt.Errorf("list pages in %s: %w", d.Path, err)
	}
	var pages []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.Contains(e.Name(), PageImageSuffix) && !strings.HasSuffix(e.Name(), ResultSuffix) {
			pages = append(pages, e.Name())
		}
	}
	sort.SliceStable(pages, func(i, j int) bool {
		return PageIndex(pages[i]) < PageIndex(pages[j])
	})
	return pages, nil
}

// ResultPath returns the OCR output location for a page image name.
func (d Dir) ResultPath(pageName string) string {
	return filepath.Join(d.Path, pageName+ResultSuffix)
}
