package rasterize

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/echoma/occ-info-memo/internal/record"
)

func testDir(t *testing.T) record.Dir {
	t.Helper()
	dir := record.DirFor(t.TempDir(), "20260815", 99)
	if err := os.MkdirAll(dir.Path, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	return dir
}

func TestRasterizePurgesOldPagesAndInvokesConvert(t *testing.T) {
	dir := testDir(t)
	stale := filepath.Join(dir.Path, "99-1.png")
	if err := os.WriteFile(stale, []byte("old"), 0o644); err != nil {
		t.Fatalf("write stale page: %v", err)
	}

	var gotName string
	var gotArgs []string
	r := New()
	r.run = func(ctx context.Context, name string, args []string) ([]byte, error) {
		gotName = name
		gotArgs = args
		return nil, nil
	}
	if err := r.Rasterize(context.Background(), dir); err != nil {
		t.Fatalf("Rasterize: %v", err)
	}
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Error("stale page image survived the purge")
	}
	if gotName != "convert" {
		t.Errorf("tool = %q, want convert", gotName)
	}
	want := []string{
		"-density", "100", "-resize", "200%", "-quality", "100", "-sharpen", "0x1.0",
		dir.PDFPath(), filepath.Join(dir.Path, "99.png"),
	}
	if len(gotArgs) != len(want) {
		t.Fatalf("args = %v, want %v", gotArgs, want)
	}
	for i := range want {
		if gotArgs[i] != want[i] {
			t.Fatalf("args = %v, want %v", gotArgs, want)
		}
	}
}

func TestRasterizeSurfacesToolFailure(t *testing.T) {
	dir := testDir(t)
	r := New()
	r.run = func(ctx context.Context, name string, args []string) ([]byte, error) {
		return []byte("convert: no images defined"), errors.New("boom")
	}
	err := r.Rasterize(context.Background(), dir)
	var toolErr *ToolError
	if !errors.As(err, &toolErr) {
		t.Fatalf("error = %v, want *ToolError", err)
	}
	if toolErr.Stderr != "convert: no images defined" {
		t.Errorf("stderr = %q", toolErr.Stderr)
	}
	if toolErr.ExitCode != -1 {
		t.Errorf("exit code = %d, want -1 for non-exit error", toolErr.ExitCode)
	}
}

func TestRasterizeCapturesExitCode(t *testing.T) {
	dir := testDir(t)
	r := New()
	r.run = func(ctx context.Context, name string, args []string) ([]byte, error) {
		// A real failed process gives us a genuine *exec.ExitError.
		cmd := exec.Command("sh", "-c", "exit 3")
		return nil, cmd.Run()
	}
	err := r.Rasterize(context.Background(), dir)
	var toolErr *ToolError
	if !errors.As(err, &toolErr) {
		t.Fatalf("error = %v, want *ToolError", err)
	}
	if toolErr.ExitCode != 3 {
		t.Errorf("exit code = %d, want 3", toolErr.ExitCode)
	}
}
