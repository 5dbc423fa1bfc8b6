// Package archive mirrors processed document artifacts into S3-compatible
// object storage. Strictly best-effort: the local directory tree remains the
// system of record.
package archive

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/echoma/occ-info-memo/internal/record"
)

// Archive uploads artifacts to a single bucket keyed by date/number/name.
type Archive struct {
	client *minio.Client
	bucket string
}

// New creates the object storage client.
func New(endpoint, accessKey, secretKey, bucket string, useSSL bool) (*Archive, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("init archive client: %w", err)
	}
	return &Archive{client: client, bucket: bucket}, nil
}

// EnsureBucket creates the archive bucket when missing.
func (a *Archive) EnsureBucket(ctx context.Context) error {
	exists, err := a.client.BucketExists(ctx, a.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", a.bucket, err)
	}
	if !exists {
		if err := a.client.MakeBucket(ctx, a.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("make bucket %s: %w", a.bucket, err)
		}
	}
	return nil
}

// ArchiveDocument uploads the OCR results and text artifacts of a document.
// Page images and the source PDF are deliberately not mirrored; they are
// regenerated or re-fetched, the extracted text is the valuable output.
func (a *Archive) ArchiveDocument(ctx context.Context, dir record.Dir) error {
	entries, err := os.ReadDir(dir.Path)
	if err != nil {
		return fmt.Errorf("list artifacts in %s: %w", dir.Path, err)
	}
	for _, e := range entries {
		if e.IsDir() || !isArtifact(e.Name()) {
			continue
		}
		local := filepath.Join(dir.Path, e.Name())
		key := dir.CreatedDate + "/" + strconv.Itoa(dir.Number) + "/" + e.Name()
		if _, err := a.client.FPutObject(ctx, a.bucket, key, local, minio.PutObjectOptions{
			ContentType: contentTypeFor(e.Name()),
		}); err != nil {
			return fmt.Errorf("upload %s: %w", key, err)
		}
	}
	return nil
}

func isArtifact(name string) bool {
	return strings.HasSuffix(name, record.ResultSuffix) ||
		strings.HasSuffix(name, ".txt") ||
		strings.HasSuffix(name, ".html")
}

func contentTypeFor(name string) string {
	switch {
	case strings.HasSuffix(name, record.ResultSuffix):
		return "application/json"
	case strings.HasSuffix(name, ".html"):
		return "text/html; charset=utf-8"
	default:
		return "text/plain; charset=utf-8"
	}
}
