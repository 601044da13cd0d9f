// Package importer pulls datasets from an S3-compatible data catalog.
package importer

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/jupark12/go-plot-queue/models"
)

// maxObjectSize caps how much of a catalog object is read into memory.
const maxObjectSize = 64 << 20

// CatalogConfig holds the catalog connection settings.
type CatalogConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
}

// Catalog fetches dataset files from buckets on an S3-compatible endpoint.
// A bucket plays the role of a data source.
type Catalog struct {
	client *minio.Client
	logger *slog.Logger
}

// NewCatalog creates a catalog client. No request is made until Fetch.
func NewCatalog(cfg CatalogConfig, logger *slog.Logger) (*Catalog, error) {
	if logger == nil {
		logger = slog.Default()
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create catalog client: %w", err)
	}
	return &Catalog{client: client, logger: logger}, nil
}

// Fetch downloads file from source and decodes it into records.
func (c *Catalog) Fetch(ctx context.Context, source, file string) ([]models.Record, error) {
	obj, err := c.client.GetObject(ctx, source, file, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("%w: catalog get %s/%s: %v", models.ErrDependency, source, file, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(io.LimitReader(obj, maxObjectSize+1))
	if err != nil {
		return nil, fmt.Errorf("%w: catalog read %s/%s: %v", models.ErrDependency, source, file, err)
	}
	if len(data) > maxObjectSize {
		return nil, fmt.Errorf("%w: %s/%s is larger than %d bytes", models.ErrDependency, source, file, maxObjectSize)
	}

	c.logger.Info("fetched catalog object", "source", source, "file", file, "bytes", len(data))
	return Decode(file, data)
}
