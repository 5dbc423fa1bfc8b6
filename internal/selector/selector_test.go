package selector

import (
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/echoma/occ-info-memo/internal/record"
)

var testNow = time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)

const window = 10 * 24 * time.Hour

func newTestSelector(t *testing.T) (*Selector, string) {
	t.Helper()
	root := t.TempDir()
	s := New(root, time.UTC, slog.New(slog.NewTextHandler(io.Discard, nil)))
	s.now = func() time.Time { return testNow }
	return s, root
}

func addDoc(t *testing.T, root, date string, number int, lastModified time.Time) {
	t.Helper()
	dir := record.DirFor(root, date, number)
	doc := &record.Document{Number: number, CreatedDate: date, LastModified: lastModified}
	if err := dir.Save(doc); err != nil {
		t.Fatalf("save %s/%d: %v", date, number, err)
	}
}

func TestWindowBoundary(t *testing.T) {
	s, root := newTestSelector(t)
	// One second inside the window and one second outside it.
	addDoc(t, root, "20260815", 100, testNow.Add(-window+time.Second))
	addDoc(t, root, "20260815", 200, testNow.Add(-window-time.Second))

	due, err := s.FindDue(window)
	if err != nil {
		t.Fatalf("FindDue: %v", err)
	}
	if len(due) != 1 || due[0].Number != 100 {
		t.Fatalf("due = %+v, want only document 100", due)
	}
}

func TestClosedBucketWithLateModification(t *testing.T) {
	s, root := newTestSelector(t)
	// Bucket day ended ~12.5 days ago: outside the window but inside
	// window+slack, so the bucket is still scanned and the recently
	// modified record inside it is picked up.
	addDoc(t, root, "20260807", 300, testNow.Add(-time.Hour))
	// Bucket day ended ~18.5 days ago: beyond window+slack, never scanned.
	addDoc(t, root, "20260801", 400, testNow.Add(-time.Hour))

	due, err := s.FindDue(window)
	if err != nil {
		t.Fatalf("FindDue: %v", err)
	}
	if len(due) != 1 || due[0].Number != 300 {
		t.Fatalf("due = %+v, want only document 300", due)
	}
}

func TestMissingRecordSkipped(t *testing.T) {
	s, root := newTestSelector(t)
	addDoc(t, root, "20260815", 100, testNow.Add(-time.Hour))
	// A directory without a record must not fail the scan.
	if err := os.MkdirAll(root+"/20260815/999", 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	// Stray non-numeric entries are tolerated too.
	if err := os.MkdirAll(root+"/notes", 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	due, err := s.FindDue(window)
	if err != nil {
		t.Fatalf("FindDue: %v", err)
	}
	if len(due) != 1 || due[0].Number != 100 {
		t.Fatalf("due = %+v, want only document 100", due)
	}
}

func TestOrderingIsDeterministic(t *testing.T) {
	s, root := newTestSelector(t)
	recent := testNow.Add(-time.Hour)
	addDoc(t, root, "20260816", 50, recent)
	addDoc(t, root, "20260815", 900, recent)
	addDoc(t, root, "20260815", 800, recent)

	due, err := s.FindDue(window)
	if err != nil {
		t.Fatalf("FindDue: %v", err)
	}
	if len(due) != 3 {
		t.Fatalf("due = %+v, want 3 documents", due)
	}
	wantDates := []string{"20260815", "20260815", "20260816"}
	wantNumbers := []int{800, 900, 50}
	for i := range due {
		if due[i].CreatedDate != wantDates[i] || due[i].Number != wantNumbers[i] {
			t.Fatalf("due[%d] = %s/%d, want %s/%d", i, due[i].CreatedDate, due[i].Number, wantDates[i], wantNumbers[i])
		}
	}
}
