package analysis

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/jupark12/go-plot-queue/models"
)

// Bar is the mean of the y field for one distinct x value.
type Bar struct {
	Label string
	Mean  float64
	Count int
}

// Aggregate averages yField per distinct xField value, sorted by descending mean.
// The y field must be numeric in a strict majority of the records carrying it.
func Aggregate(records []models.Record, xField, yField string) ([]Bar, error) {
	if err := checkFields(records, xField, yField); err != nil {
		return nil, err
	}

	carrying, numeric := 0, 0
	for _, record := range records {
		v, ok := record[yField]
		if !ok || v == nil {
			continue
		}
		carrying++
		if _, ok := Coerce(v); ok {
			numeric++
		}
	}
	if carrying == 0 {
		return nil, fmt.Errorf("%w: %q has no values", ErrInsufficientData, yField)
	}
	if numeric*2 <= carrying {
		return nil, fmt.Errorf("%w: %q is not numeric and cannot be averaged per %q", ErrInvalidAggregation, yField, xField)
	}

	type acc struct {
		sum   float64
		count int
	}
	groups := make(map[string]*acc)
	for _, record := range records {
		xv, ok := record[xField]
		if !ok || xv == nil {
			continue
		}
		y, ok := Coerce(record[yField])
		if !ok {
			continue
		}
		label := models.FormatValue(xv)
		g, ok := groups[label]
		if !ok {
			g = &acc{}
			groups[label] = g
		}
		g.sum += y
		g.count++
	}

	if len(groups) == 0 {
		return nil, fmt.Errorf("%w: no valid %s/%s data points to aggregate", ErrInsufficientData, xField, yField)
	}

	bars := make([]Bar, 0, len(groups))
	for label, g := range groups {
		bars = append(bars, Bar{Label: label, Mean: g.sum / float64(g.count), Count: g.count})
	}
	slices.SortFunc(bars, func(a, b Bar) int {
		if c := cmp.Compare(b.Mean, a.Mean); c != 0 {
			return c
		}
		return cmp.Compare(a.Label, b.Label)
	})
	return bars, nil
}
