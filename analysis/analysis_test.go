package analysis

import (
	"bytes"
	"image/png"
	"testing"

	"github.com/jupark12/go-plot-queue/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func records(t *testing.T, raw string) []models.Record {
	t.Helper()
	recs, err := models.DecodeRecords([]byte(raw))
	require.NoError(t, err)
	return recs
}

func TestCoerce(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want float64
		ok   bool
	}{
		{"json number", records(t, `[{"v": 2.5}]`)[0]["v"], 2.5, true},
		{"float", 3.0, 3, true},
		{"int", 7, 7, true},
		{"numeric string", "24", 24, true},
		{"padded string", " 1.5 ", 1.5, true},
		{"bool", true, 1, true},
		{"word", "bad", 0, false},
		{"empty string", "", 0, false},
		{"nil", nil, 0, false},
		{"nan string", "NaN", 0, false},
		{"inf string", "inf", 0, false},
		{"slice", []any{1}, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Coerce(tt.in)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestExtractAllNumeric(t *testing.T) {
	recs := records(t, `[
		{"x": 1, "y": 2},
		{"x": "3", "y": 4.5},
		{"x": 5, "y": "6"},
		{"x": -1, "y": 0}
	]`)

	points, err := Extract(recs, "x", "y")
	require.NoError(t, err)
	assert.Len(t, points, len(recs))
	assert.Equal(t, Point{X: 3, Y: 4.5}, points[1])
}

func TestExtractDropsNonCoercibleRows(t *testing.T) {
	recs := records(t, `[
		{"x": 1, "y": 2},
		{"x": "bad", "y": 4},
		{"x": 5, "y": null},
		{"x": 6},
		{"x": 7, "y": 8}
	]`)

	points, err := Extract(recs, "x", "y")
	require.NoError(t, err)
	assert.Equal(t, []Point{{1, 2}, {7, 8}}, points)
}

func TestExtractPatientScenario(t *testing.T) {
	recs := records(t, `[{"PatientID":1,"BMI":"24","TumorSize":"2.5"},{"PatientID":2,"BMI":"bad","TumorSize":"4.2"}]`)

	points, err := Extract(recs, "BMI", "TumorSize")
	require.NoError(t, err)
	assert.Equal(t, []Point{{X: 24, Y: 2.5}}, points)
}

func TestExtractErrors(t *testing.T) {
	recs := records(t, `[{"x": "a", "y": "b"}, {"x": null, "y": 1}]`)

	_, err := Extract(recs, "x", "y")
	assert.ErrorIs(t, err, ErrInsufficientData)

	_, err = Extract(recs, "x", "nope")
	assert.ErrorIs(t, err, ErrFieldNotFound)
	assert.Contains(t, err.Error(), "nope")

	_, err = Extract(nil, "x", "y")
	assert.ErrorIs(t, err, ErrInsufficientData)
	assert.True(t, IsRenderError(err))
}

func TestDetectPlotType(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want models.PlotType
	}{
		{"numeric pairs", `[{"x":1,"y":2},{"x":"3","y":"4"}]`, models.PlotScatter},
		{"categorical x", `[{"x":"red","y":2},{"x":"blue","y":4},{"x":"red","y":3}]`, models.PlotBar},
		{"one bad row in three", `[{"x":1,"y":2},{"x":2,"y":3},{"x":"n/a","y":4}]`, models.PlotScatter},
		{"tie goes to scatter", `[{"x":1,"y":2},{"x":"a","y":3}]`, models.PlotScatter},
		{"mostly categorical", `[{"x":1,"y":2},{"x":"a","y":3},{"x":"b","y":4}]`, models.PlotBar},
		{"nulls not sampled", `[{"x":null,"y":1},{"x":"a","y":null},{"x":1,"y":1}]`, models.PlotScatter},
		{"nothing to sample", `[{"x":null,"y":null}]`, models.PlotScatter},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectPlotType(records(t, tt.raw), "x", "y"))
		})
	}
}

func TestAggregate(t *testing.T) {
	recs := records(t, `[
		{"Stage": "I", "Size": 1},
		{"Stage": "II", "Size": 3},
		{"Stage": "I", "Size": "2"},
		{"Stage": "III", "Size": 10},
		{"Stage": "II", "Size": "oops"},
		{"Stage": null, "Size": 100}
	]`)

	bars, err := Aggregate(recs, "Stage", "Size")
	require.NoError(t, err)
	assert.Equal(t, []Bar{
		{Label: "III", Mean: 10, Count: 1},
		{Label: "II", Mean: 3, Count: 1},
		{Label: "I", Mean: 1.5, Count: 2},
	}, bars)
}

func TestAggregateTiesSortByLabel(t *testing.T) {
	recs := records(t, `[{"k":"b","v":1},{"k":"a","v":1},{"k":1,"v":1}]`)

	bars, err := Aggregate(recs, "k", "v")
	require.NoError(t, err)
	require.Len(t, bars, 3)
	assert.Equal(t, []string{"1", "a", "b"}, []string{bars[0].Label, bars[1].Label, bars[2].Label})
}

func TestAggregateInvalid(t *testing.T) {
	recs := records(t, `[{"k":"a","v":"x"},{"k":"b","v":"y"},{"k":"c","v":3}]`)

	_, err := Aggregate(recs, "k", "v")
	assert.ErrorIs(t, err, ErrInvalidAggregation)

	_, err = Aggregate(records(t, `[{"k":"a","v":null}]`), "k", "v")
	assert.ErrorIs(t, err, ErrInsufficientData)
}

func assertPNG(t *testing.T, data []byte) {
	t.Helper()
	require.NotEmpty(t, data)
	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err, "output should be a valid PNG")
	assert.Greater(t, img.Bounds().Dx(), 0)
}

func TestRenderScatter(t *testing.T) {
	recs := records(t, `[{"PatientID":1,"BMI":"24","TumorSize":"2.5"},{"PatientID":2,"BMI":"bad","TumorSize":"4.2"}]`)

	assert.Equal(t, models.PlotScatter, DetectPlotType(recs, "BMI", "TumorSize"))

	img, err := Render(recs, "BMI", "TumorSize", models.PlotAuto)
	require.NoError(t, err)
	assertPNG(t, img)
}

func TestRenderBar(t *testing.T) {
	recs := records(t, `[{"g":"a","v":1},{"g":"b","v":2},{"g":"a","v":5}]`)

	img, err := Render(recs, "g", "v", models.PlotAuto)
	require.NoError(t, err)
	assertPNG(t, img)

	img, err = Render(recs, "v", "v", models.PlotBar)
	require.NoError(t, err)
	assertPNG(t, img)
}

func TestRenderFailures(t *testing.T) {
	recs := records(t, `[{"x":"a","y":"b"},{"x":"c","y":"d"}]`)

	_, err := Render(recs, "x", "y", models.PlotScatter)
	assert.ErrorIs(t, err, ErrInsufficientData)

	_, err = Render(recs, "x", "y", models.PlotAuto)
	assert.ErrorIs(t, err, ErrInvalidAggregation, "categorical y cannot be averaged")

	_, err = Render(recs, "x", "missing", models.PlotAuto)
	assert.ErrorIs(t, err, ErrFieldNotFound)

	_, err = Render(recs, "x", "y", models.PlotType("pie"))
	assert.ErrorIs(t, err, models.ErrValidation)
}
