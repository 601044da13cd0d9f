// Package dataset holds the single uploaded dataset as one JSON blob in the store.
package dataset

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jupark12/go-plot-queue/models"
	"github.com/jupark12/go-plot-queue/store"
)

// DefaultIDField is the record field used for point lookups.
const DefaultIDField = "PatientID"

// Cache wraps the store key holding the current dataset. Uploads replace the
// whole dataset; concurrent uploads are last-write-wins.
type Cache struct {
	store   store.Store
	key     string
	idField string
}

// NewCache creates a dataset cache on key, looking records up by idField.
func NewCache(s store.Store, key, idField string) *Cache {
	if idField == "" {
		idField = DefaultIDField
	}
	return &Cache{store: s, key: key, idField: idField}
}

// IDField returns the identifier field used by FindByID.
func (c *Cache) IDField() string {
	return c.idField
}

// Replace stores records as the current dataset and returns how many were stored.
func (c *Cache) Replace(ctx context.Context, records []models.Record) (int, error) {
	if records == nil {
		records = []models.Record{}
	}
	data, err := json.Marshal(records)
	if err != nil {
		return 0, fmt.Errorf("%w: encode dataset: %v", models.ErrValidation, err)
	}
	if err := c.store.Set(ctx, c.key, string(data)); err != nil {
		return 0, fmt.Errorf("%w: store dataset: %v", models.ErrDependency, err)
	}
	return len(records), nil
}

// ReplaceJSON validates raw JSON as a list of records and stores it.
func (c *Cache) ReplaceJSON(ctx context.Context, raw []byte) (int, error) {
	records, err := models.DecodeRecords(raw)
	if err != nil {
		return 0, err
	}
	return c.Replace(ctx, records)
}

// All returns the current dataset, or an empty slice when none is loaded.
func (c *Cache) All(ctx context.Context) ([]models.Record, error) {
	raw, err := c.store.Get(ctx, c.key)
	if errors.Is(err, store.ErrNil) {
		return []models.Record{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: load dataset: %v", models.ErrDependency, err)
	}
	if raw == "" {
		return []models.Record{}, nil
	}
	records, err := models.DecodeRecords([]byte(raw))
	if err != nil {
		return nil, fmt.Errorf("stored dataset is corrupt: %w", err)
	}
	return records, nil
}

// FindByID returns the first record whose identifier field string-equals id.
func (c *Cache) FindByID(ctx context.Context, id string) (models.Record, error) {
	records, err := c.All(ctx)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: no data found", models.ErrNotFound)
	}
	for _, record := range records {
		v, ok := record[c.idField]
		if !ok {
			continue
		}
		if models.FormatValue(v) == id {
			return record, nil
		}
	}
	return nil, fmt.Errorf("%w: record %s=%s", models.ErrNotFound, c.idField, id)
}

// Clear removes the dataset. Clearing an empty cache is not an error.
func (c *Cache) Clear(ctx context.Context) error {
	if err := c.store.Del(ctx, c.key); err != nil {
		return fmt.Errorf("%w: delete dataset: %v", models.ErrDependency, err)
	}
	return nil
}
