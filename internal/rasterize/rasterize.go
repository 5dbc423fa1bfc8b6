// Package rasterize regenerates the page-image artifacts of a document by
// invoking the external ImageMagick convert tool.
package rasterize

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/echoma/occ-info-memo/internal/record"
)

// Fixed conversion parameters. The OCR service copes best with this density
// and sharpening; they are deliberately not configurable.
const (
	density = "100"
	resize  = "200%"
	quality = "100"
	sharpen = "0x1.0"
)

// ToolError reports an external tool run that exited non-zero.
type ToolError struct {
	Tool     string
	ExitCode int
	Stderr   string
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("%s exited with code %d: %s", e.Tool, e.ExitCode, strings.TrimSpace(e.Stderr))
}

type runFunc func(ctx context.Context, name string, args []string) (stderr []byte, err error)

// Rasterizer converts a source PDF into one image per page. Multi-page
// sources yield <number>-<index>.png files, single-page sources a bare
// <number>.png, both produced by convert itself.
type Rasterizer struct {
	bin string
	run runFunc
}

// New builds a Rasterizer using the convert binary on PATH.
func New() *Rasterizer {
	return &Rasterizer{bin: "convert", run: runCommand}
}

// Rasterize purges every existing page image in the directory, then renders
// the source PDF. The purge is unconditional: a re-processing pass must never
// leave stale pages from an earlier run behind.
//
// No timeout is applied beyond ctx; conversion time scales with the document.
func (r *Rasterizer) Rasterize(ctx context.Context, dir record.Dir) error {
	if err := purgePages(dir); err != nil {
		return err
	}
	args := []string{
		"-density", density,
		"-resize", resize,
		"-quality", quality,
		"-sharpen", sharpen,
		dir.PDFPath(),
		strings.TrimSuffix(dir.PDFPath(), ".pdf") + record.PageImageSuffix,
	}
	stderr, err := r.run(ctx, r.bin, args)
	if err != nil {
		exitCode := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		}
		return &ToolError{Tool: r.bin, ExitCode: exitCode, Stderr: string(stderr)}
	}
	return nil
}

func purgePages(dir record.Dir) error {
	pages, err := dir.Pages()
	if err != nil {
		return err
	}
	for _, page := range pages {
		if err := os.Remove(filepath.Join(dir.Path, page)); err != nil {
			return fmt.Errorf("purge page %s: %w", page, err)
		}
	}
	return nil
}

func runCommand(ctx context.Context, name string, args []string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stderr.Bytes(), err
}
