package analysis

import (
	"bytes"
	"fmt"
	"image/color"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/text"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/jupark12/go-plot-queue/models"
)

const (
	imageWidth  = 6.4 * vg.Inch
	imageHeight = 4.8 * vg.Inch
)

var (
	markerColor = color.RGBA{R: 31, G: 119, B: 180, A: 178}
	barColor    = color.RGBA{R: 31, G: 119, B: 180, A: 255}
)

// Render draws the chart for xField against yField and returns PNG bytes.
// An empty plotType auto-detects between scatter and bar.
func Render(records []models.Record, xField, yField string, plotType models.PlotType) ([]byte, error) {
	if err := checkFields(records, xField, yField); err != nil {
		return nil, err
	}

	if plotType == models.PlotAuto {
		plotType = DetectPlotType(records, xField, yField)
	}

	switch plotType {
	case models.PlotScatter:
		points, err := Extract(records, xField, yField)
		if err != nil {
			return nil, err
		}
		return renderScatter(points, xField, yField)
	case models.PlotBar:
		bars, err := Aggregate(records, xField, yField)
		if err != nil {
			return nil, err
		}
		return renderBar(bars, xField, yField)
	default:
		return nil, fmt.Errorf("%w: unknown plot type %q", models.ErrValidation, plotType)
	}
}

func renderScatter(points []Point, xLabel, yLabel string) ([]byte, error) {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s vs %s", yLabel, xLabel)
	p.X.Label.Text = xLabel
	p.Y.Label.Text = yLabel

	xys := make(plotter.XYs, len(points))
	for i, pt := range points {
		xys[i].X = pt.X
		xys[i].Y = pt.Y
	}

	scatter, err := plotter.NewScatter(xys)
	if err != nil {
		return nil, fmt.Errorf("build scatter: %w", err)
	}
	scatter.GlyphStyle.Shape = draw.CircleGlyph{}
	scatter.GlyphStyle.Color = markerColor
	scatter.GlyphStyle.Radius = vg.Points(3)

	p.Add(plotter.NewGrid(), scatter)
	return encodePNG(p)
}

func renderBar(bars []Bar, xLabel, yLabel string) ([]byte, error) {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("Mean %s by %s", yLabel, xLabel)
	p.X.Label.Text = xLabel
	p.Y.Label.Text = fmt.Sprintf("mean %s", yLabel)

	values := make(plotter.Values, len(bars))
	names := make([]string, len(bars))
	annotations := plotter.XYLabels{
		XYs:    make(plotter.XYs, len(bars)),
		Labels: make([]string, len(bars)),
	}
	for i, b := range bars {
		values[i] = b.Mean
		names[i] = b.Label
		annotations.XYs[i] = plotter.XY{X: float64(i), Y: b.Mean}
		annotations.Labels[i] = fmt.Sprintf("%.2f", b.Mean)
	}

	chart, err := plotter.NewBarChart(values, vg.Points(20))
	if err != nil {
		return nil, fmt.Errorf("build bar chart: %w", err)
	}
	chart.Color = barColor
	chart.LineStyle.Width = vg.Length(0)

	labels, err := plotter.NewLabels(annotations)
	if err != nil {
		return nil, fmt.Errorf("build bar labels: %w", err)
	}
	for i := range labels.TextStyle {
		labels.TextStyle[i].XAlign = text.XCenter
	}
	labels.Offset = vg.Point{Y: vg.Points(3)}

	p.Add(chart, labels)
	p.NominalX(names...)
	return encodePNG(p)
}

func encodePNG(p *plot.Plot) ([]byte, error) {
	wt, err := p.WriterTo(imageWidth, imageHeight, "png")
	if err != nil {
		return nil, fmt.Errorf("create png writer: %w", err)
	}
	var buf bytes.Buffer
	if _, err := wt.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}
