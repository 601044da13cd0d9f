package dataset

import (
	"context"
	"testing"

	"github.com/jupark12/go-plot-queue/models"
	"github.com/jupark12/go-plot-queue/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const patients = `[
	{"PatientID": 1, "BMI": "24", "TumorSize": "2.5"},
	{"PatientID": 2, "BMI": "bad", "TumorSize": 4.2},
	{"PatientID": "P-3", "BMI": null, "Smoker": true}
]`

func newCache() *Cache {
	return NewCache(store.NewMemory("", nil), "raw_data", "")
}

func TestReplaceAndAllRoundTrip(t *testing.T) {
	ctx := context.Background()
	c := newCache()

	n, err := c.ReplaceJSON(ctx, []byte(patients))
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	want, err := models.DecodeRecords([]byte(patients))
	require.NoError(t, err)

	got, err := c.All(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestReplaceOverwrites(t *testing.T) {
	ctx := context.Background()
	c := newCache()

	_, err := c.ReplaceJSON(ctx, []byte(patients))
	require.NoError(t, err)
	n, err := c.ReplaceJSON(ctx, []byte(`[{"PatientID": 9}]`))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := c.All(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "9", models.FormatValue(got[0]["PatientID"]))
}

func TestReplaceRejectsNonList(t *testing.T) {
	ctx := context.Background()
	c := newCache()

	for _, body := range []string{`{"PatientID": 1}`, `"text"`, `[1, 2]`, `not json`} {
		_, err := c.ReplaceJSON(ctx, []byte(body))
		assert.ErrorIs(t, err, models.ErrValidation, body)
	}

	got, err := c.All(ctx)
	require.NoError(t, err)
	assert.Empty(t, got, "rejected uploads must not store anything")
}

func TestAllWhenUnset(t *testing.T) {
	got, err := newCache().All(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestFindByID(t *testing.T) {
	ctx := context.Background()
	c := newCache()
	_, err := c.ReplaceJSON(ctx, []byte(patients))
	require.NoError(t, err)

	tests := []struct {
		name    string
		id      string
		wantBMI any
		wantErr error
	}{
		{"numeric id", "2", "bad", nil},
		{"string id", "P-3", nil, nil},
		{"missing", "42", nil, models.ErrNotFound},
		{"numeric formatting differs", "1.0", nil, models.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := c.FindByID(ctx, tt.id)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantBMI, rec["BMI"])
		})
	}
}

func TestFindByIDWithoutDataset(t *testing.T) {
	_, err := newCache().FindByID(context.Background(), "1")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestFindByIDCustomField(t *testing.T) {
	ctx := context.Background()
	c := NewCache(store.NewMemory("", nil), "raw_data", "sku")
	_, err := c.ReplaceJSON(ctx, []byte(`[{"sku": "A1", "price": 3}]`))
	require.NoError(t, err)

	rec, err := c.FindByID(ctx, "A1")
	require.NoError(t, err)
	assert.Equal(t, "3", models.FormatValue(rec["price"]))
	assert.Equal(t, "sku", c.IDField())
}

func TestClearIsIdempotent(t *testing.T) {
	ctx := context.Background()
	c := newCache()
	_, err := c.ReplaceJSON(ctx, []byte(patients))
	require.NoError(t, err)

	require.NoError(t, c.Clear(ctx))
	require.NoError(t, c.Clear(ctx))

	got, err := c.All(ctx)
	require.NoError(t, err)
	assert.Empty(t, got)
}
