package main

import (
	"context"
	"log/slog"

	"github.com/echoma/occ-info-memo/internal/archive"
	"github.com/echoma/occ-info-memo/internal/catalog"
	"github.com/echoma/occ-info-memo/internal/config"
	"github.com/echoma/occ-info-memo/internal/crawl"
	"github.com/echoma/occ-info-memo/internal/ocr"
	"github.com/echoma/occ-info-memo/internal/pipeline"
	"github.com/echoma/occ-info-memo/internal/rasterize"
	"github.com/echoma/occ-info-memo/internal/selector"
	"github.com/echoma/occ-info-memo/internal/signature"
	"github.com/echoma/occ-info-memo/internal/textextract"
)

// openCatalog returns a nil catalog when no database is configured; callers
// treat nil as "indexing disabled".
func openCatalog(ctx context.Context, cfg *config.Config) (*catalog.Catalog, error) {
	if cfg.DatabaseURL == "" {
		return nil, nil
	}
	return catalog.Open(ctx, cfg.DatabaseURL)
}

func buildCrawler(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*crawl.Crawler, func(), error) {
	cat, err := openCatalog(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		if cat != nil {
			cat.Close()
		}
	}
	var indexer crawl.Indexer
	if cat != nil {
		indexer = cat
	}
	return crawl.New(cfg.SearchBaseURL, cfg.StoreDir, indexer, logger), cleanup, nil
}

func buildPipeline(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*pipeline.Pipeline, func(), error) {
	if err := cfg.RequireOCRCredentials(); err != nil {
		return nil, nil, err
	}
	cat, err := openCatalog(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		if cat != nil {
			cat.Close()
		}
	}

	var archiver pipeline.Archiver
	if cfg.S3Endpoint != "" {
		arc, err := archive.New(cfg.S3Endpoint, cfg.S3AccessKey, cfg.S3SecretKey, cfg.S3Bucket, cfg.S3UseSSL)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		if err := arc.EnsureBucket(ctx); err != nil {
			cleanup()
			return nil, nil, err
		}
		archiver = arc
	}
	var runs pipeline.RunRecorder
	if cat != nil {
		runs = cat
	}

	signer := signature.New(cfg.AppID, cfg.SecretID, cfg.SecretKey, cfg.SignValidity, cfg.SignCacheTTL)
	p := pipeline.New(
		selector.New(cfg.StoreDir, cfg.Timezone, logger),
		textextract.New(),
		rasterize.New(),
		ocr.New(cfg.OCREndpoint, cfg.AppID, cfg.OCRBucket, signer, cfg.OCRTimeout, logger),
		archiver,
		runs,
		cfg.Pace,
		logger,
	)
	return p, cleanup, nil
}
