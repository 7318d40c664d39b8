// Package storage exports extraction results to a local directory or an
// S3-compatible bucket.
package storage

import (
	"context"
	"log/slog"
	"strings"

	appconfig "github.com/jmylchreest/sitesift/internal/config"
)

// Exporter writes a named result document and returns where it went.
type Exporter interface {
	Export(ctx context.Context, name, content string) (string, error)
}

// ExportName derives the download file name for a page URL:
// "scraped_data_" + the URL without its scheme, with "/" replaced by "_",
// + ".txt". Characters that are unsafe in file names are also replaced.
func ExportName(pageURL string) string {
	rest := pageURL
	if i := strings.Index(rest, "://"); i >= 0 {
		rest = rest[i+3:]
	}
	return "scraped_data_" + unsafeChars.Replace(rest) + ".txt"
}

var unsafeChars = strings.NewReplacer(
	"/", "_",
	`\`, "_",
	":", "_",
	"*", "_",
	"?", "_",
	`"`, "_",
	"<", "_",
	">", "_",
	"|", "_",
)

// New returns the S3 exporter when object storage is enabled and a local
// exporter rooted at cfg.ExportDir otherwise.
func New(ctx context.Context, cfg *appconfig.Config, logger *slog.Logger) (Exporter, error) {
	if cfg.StorageEnabled {
		return NewS3Exporter(ctx, S3Options{
			Endpoint:  cfg.StorageEndpoint,
			Region:    cfg.StorageRegion,
			AccessKey: cfg.StorageAccessKey,
			SecretKey: cfg.StorageSecretKey,
			Bucket:    cfg.StorageBucket,
		}, logger)
	}
	dir := cfg.ExportDir
	if dir == "" {
		dir = "."
	}
	return NewLocalExporter(dir), nil
}
