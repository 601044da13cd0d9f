package analysis

import "github.com/jupark12/go-plot-queue/models"

// detectSampleSize bounds how many records the plot type heuristic looks at.
const detectSampleSize = 50

// DetectPlotType picks scatter when at least half of the first records
// carrying both fields coerce to numbers on both axes, bar otherwise.
// This is a heuristic; callers wanting a specific chart pass a plot type.
func DetectPlotType(records []models.Record, xField, yField string) models.PlotType {
	sampled, numeric := 0, 0
	for _, record := range records {
		if sampled == detectSampleSize {
			break
		}
		xv, xok := record[xField]
		yv, yok := record[yField]
		if !xok || !yok || xv == nil || yv == nil {
			continue
		}
		sampled++

		_, xnum := Coerce(xv)
		_, ynum := Coerce(yv)
		if xnum && ynum {
			numeric++
		}
	}

	if sampled == 0 || numeric*2 >= sampled {
		return models.PlotScatter
	}
	return models.PlotBar
}
