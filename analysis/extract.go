// Package analysis turns a dataset and two field names into a rendered chart.
//
// Cleaning follows coercion-and-drop: a record whose x or y value cannot be
// read as a finite number is skipped without error. Only an empty result is
// reported, as ErrInsufficientData.
package analysis

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/jupark12/go-plot-queue/models"
)

// Render failures. They are recorded as the job's failure reason and never
// escape the worker.
var (
	ErrFieldNotFound      = errors.New("field not found")
	ErrInsufficientData   = errors.New("insufficient data")
	ErrInvalidAggregation = errors.New("invalid aggregation")
)

// IsRenderError reports whether err is one of the render failures.
func IsRenderError(err error) bool {
	return errors.Is(err, ErrFieldNotFound) ||
		errors.Is(err, ErrInsufficientData) ||
		errors.Is(err, ErrInvalidAggregation)
}

// Point is one cleaned (x, y) pair.
type Point struct {
	X, Y float64
}

// Extract returns one point per record where both fields coerce to finite numbers.
func Extract(records []models.Record, xField, yField string) ([]Point, error) {
	if err := checkFields(records, xField, yField); err != nil {
		return nil, err
	}

	points := make([]Point, 0, len(records))
	for _, record := range records {
		x, ok := Coerce(record[xField])
		if !ok {
			continue
		}
		y, ok := Coerce(record[yField])
		if !ok {
			continue
		}
		points = append(points, Point{X: x, Y: y})
	}

	if len(points) == 0 {
		return nil, fmt.Errorf("%w: no valid %s/%s data points to plot", ErrInsufficientData, xField, yField)
	}
	return points, nil
}

// Coerce reads v as a finite float. Numeric strings are trimmed first and
// booleans count as 1 and 0. Null, missing and non-finite values fail.
func Coerce(v any) (float64, bool) {
	var f float64
	switch t := v.(type) {
	case json.Number:
		parsed, err := strconv.ParseFloat(t.String(), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	case float64:
		f = t
	case float32:
		f = float64(t)
	case int:
		f = float64(t)
	case int64:
		f = float64(t)
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	case bool:
		if t {
			f = 1
		}
	default:
		return 0, false
	}

	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// checkFields fails with ErrFieldNotFound when a field appears in no record.
func checkFields(records []models.Record, fields ...string) error {
	if len(records) == 0 {
		return fmt.Errorf("%w: dataset is empty", ErrInsufficientData)
	}
	for _, field := range fields {
		found := false
		for _, record := range records {
			if _, ok := record[field]; ok {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("%w: %q is not a field of the dataset", ErrFieldNotFound, field)
		}
	}
	return nil
}
