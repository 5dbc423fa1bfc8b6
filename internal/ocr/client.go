// Package ocr uploads rasterized pages to the image OCR service and persists
// each structured text result next to its page image.
package ocr

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/echoma/occ-info-memo/internal/record"
	"github.com/echoma/occ-info-memo/internal/signature"
)

// StatusError reports a non-200 response from the OCR service. It usually
// means an exhausted quota or a broken credential, both of which will recur
// for every following page, so callers treat it as fatal for the batch.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("ocr service returned %d: %s", e.StatusCode, e.Body)
}

// Client calls the OCR service page by page.
type Client struct {
	httpClient *http.Client
	endpoint   string
	appID      string
	bucket     string
	signer     *signature.Provider
	logger     *slog.Logger
}

// New builds a Client. timeout bounds each upload end to end; the service
// occasionally stalls on large pages and the pipeline must not hang on it.
func New(endpoint, appID, bucket string, signer *signature.Provider, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		endpoint:   endpoint,
		appID:      appID,
		bucket:     bucket,
		signer:     signer,
		logger:     logger,
	}
}

// RecognizeAll processes every page image of the document in page order.
// Each successful page writes its response body verbatim to
// <image>.ocr.json, truncating any artifact from an earlier run, so re-runs
// are safe. The first failing page aborts the remaining pages and returns
// the error.
func (c *Client) RecognizeAll(ctx context.Context, dir record.Dir) error {
	pages, err := dir.Pages()
	if err != nil {
		return err
	}
	for _, page := range pages {
		logger := c.logger.With("document", dir.Path, "page", page)
		logger.Info("recognizing page")
		if err := c.recognizePage(ctx, dir, page); err != nil {
			logger.Error("page recognition failed", "error", err)
			return err
		}
	}
	return nil
}

func (c *Client) recognizePage(ctx context.Context, dir record.Dir, page string) error {
	token, err := c.signer.Token(c.bucket)
	if err != nil {
		return err
	}
	image, err := os.ReadFile(filepath.Join(dir.Path, page))
	if err != nil {
		return fmt.Errorf("read page image: %w", err)
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	if err := writer.WriteField("appid", c.appID); err != nil {
		return fmt.Errorf("build upload: %w", err)
	}
	if err := writer.WriteField("bucket", c.bucket); err != nil {
		return fmt.Errorf("build upload: %w", err)
	}
	part, err := writer.CreateFormFile("image", page)
	if err != nil {
		return fmt.Errorf("build upload: %w", err)
	}
	if _, err := part.Write(image); err != nil {
		return fmt.Errorf("build upload: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("build upload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, &body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", token)
	req.Header.Set("User-Agent", "User("+c.appID+")")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("upload page %s: %w", page, err)
	}
	defer resp.Body.Close()
	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response for page %s: %w", page, err)
	}
	if resp.StatusCode != http.StatusOK {
		return &StatusError{StatusCode: resp.StatusCode, Body: string(payload)}
	}
	if err := os.WriteFile(dir.ResultPath(page), payload, 0o644); err != nil {
		return fmt.Errorf("write result for page %s: %w", page, err)
	}
	return nil
}
