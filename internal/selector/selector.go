// Package selector walks the document store and picks the documents whose
// records were modified inside the re-processing window.
package selector

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/echoma/occ-info-memo/internal/record"
)

// BucketSlack widens the date-bucket check beyond the window so that a
// late-arriving modification inside an already-closed bucket is still seen.
const BucketSlack = 5 * 24 * time.Hour

// Selector scans root/<YYYYMMDD>/<number>/ directories. The location is an
// explicit dependency: bucket dates are interpreted in it, never in
// process-global timezone state.
type Selector struct {
	root   string
	loc    *time.Location
	logger *slog.Logger

	now func() time.Time
}

// New builds a Selector over the store root.
func New(root string, loc *time.Location, logger *slog.Logger) *Selector {
	return &Selector{root: root, loc: loc, logger: logger, now: time.Now}
}

// FindDue returns the documents due for re-processing, ordered by
// (created date, number) ascending. A date bucket is inspected when its
// end-of-day lies within window+BucketSlack of now; a document is included
// when its record's last-modified time lies within the window proper.
//
// Directories with unparsable names and documents with missing or broken
// records are skipped with a log line, never failing the scan.
func (s *Selector) FindDue(window time.Duration) ([]record.Dir, error) {
	buckets, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("read store root %s: %w", s.root, err)
	}
	now := s.now()
	var due []record.Dir
	for _, bucket := range buckets {
		if !bucket.IsDir() {
			continue
		}
		endOfDay, err := bucketEndOfDay(bucket.Name(), s.loc)
		if err != nil {
			s.logger.Warn("skipping non-bucket directory", "name", bucket.Name(), "error", err)
			continue
		}
		if now.Sub(endOfDay) >= window+BucketSlack {
			continue
		}
		docs, err := s.scanBucket(bucket.Name(), now, window)
		if err != nil {
			return nil, err
		}
		due = append(due, docs...)
	}
	sort.Slice(due, func(i, j int) bool { return due[i].Path < due[j].Path })
	return due, nil
}

func (s *Selector) scanBucket(bucketName string, now time.Time, window time.Duration) ([]record.Dir, error) {
	bucketPath := filepath.Join(s.root, bucketName)
	entries, err := os.ReadDir(bucketPath)
	if err != nil {
		return nil, fmt.Errorf("read bucket %s: %w", bucketPath, err)
	}
	var due []record.Dir
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		number, err := strconv.Atoi(entry.Name())
		if err != nil {
			s.logger.Warn("skipping non-document directory", "bucket", bucketName, "name", entry.Name())
			continue
		}
		dir := record.DirFor(s.root, bucketName, number)
		doc, err := dir.Load()
		if err != nil {
			s.logger.Warn("skipping document with unreadable record", "path", dir.Path, "error", err)
			continue
		}
		if now.Sub(doc.LastModified) < window {
			due = append(due, dir)
		}
	}
	return due, nil
}

// bucketEndOfDay interprets a YYYYMMDD bucket name as 23:59:59 of that day
// in the given location.
func bucketEndOfDay(name string, loc *time.Location) (time.Time, error) {
	if len(name) != 8 {
		return time.Time{}, fmt.Errorf("bucket name %q is not YYYYMMDD", name)
	}
	n, err := strconv.Atoi(name)
	if err != nil {
		return time.Time{}, fmt.Errorf("bucket name %q is not numeric", name)
	}
	year, month, day := n/10000, (n%10000)/100, n%100
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, fmt.Errorf("bucket name %q has no valid date", name)
	}
	return time.Date(year, time.Month(month), day, 23, 59, 59, 0, loc), nil
}
