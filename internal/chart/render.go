package chart

import (
	"bytes"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	gochart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
)

// RenderPNG draws the aggregated series inside the computed axis window as a
// PNG: a close-price line, a shaded high/low band, and a dashed horizontal
// line at the average open cost when one is supplied. Returns raw PNG bytes.
func RenderPNG(title string, bars []OHLCBar, window AxisWindow, averageOpenCost decimal.Decimal) ([]byte, error) {
	if len(bars) < 2 {
		return nil, fmt.Errorf("need at least 2 bars to render, got %d", len(bars))
	}

	xValues := make([]time.Time, len(bars))
	closeY := make([]float64, len(bars))
	highY := make([]float64, len(bars))
	lowY := make([]float64, len(bars))
	for i, b := range bars {
		xValues[i] = b.Start
		closeY[i] = b.Close.InexactFloat64()
		highY[i] = b.High.InexactFloat64()
		lowY[i] = b.Low.InexactFloat64()
	}

	closeSeries := gochart.TimeSeries{
		Name: "Close",
		Style: gochart.Style{
			StrokeColor: drawing.ColorFromHex("3b82f6"), // blue-500
			StrokeWidth: 1.8,
		},
		XValues: xValues,
		YValues: closeY,
	}

	highSeries := gochart.TimeSeries{
		Name: "High",
		Style: gochart.Style{
			StrokeColor: drawing.ColorFromHex("9ca3af"), // gray-400
			StrokeWidth: 1.0,
		},
		XValues: xValues,
		YValues: highY,
	}

	lowSeries := gochart.TimeSeries{
		Name: "Low",
		Style: gochart.Style{
			StrokeColor: drawing.ColorFromHex("9ca3af"),
			StrokeWidth: 1.0,
		},
		XValues: xValues,
		YValues: lowY,
	}

	series := []gochart.Series{highSeries, lowSeries, closeSeries}

	if averageOpenCost.IsPositive() {
		cost := averageOpenCost.InexactFloat64()
		series = append(series, gochart.TimeSeries{
			Name: "Avg cost",
			Style: gochart.Style{
				StrokeColor:     drawing.ColorFromHex("22c55e"), // green-500
				StrokeWidth:     1.2,
				StrokeDashArray: []float64{5.0, 3.0},
			},
			XValues: []time.Time{xValues[0], xValues[len(xValues)-1]},
			YValues: []float64{cost, cost},
		})
	}

	graph := gochart.Chart{
		Title:  title,
		Width:  900,
		Height: 400,
		Background: gochart.Style{
			Padding: gochart.Box{Top: 40, Left: 10, Right: 20, Bottom: 10},
		},
		XAxis: gochart.XAxis{
			ValueFormatter: gochart.TimeValueFormatterWithFormat("Jan 02 15:04"),
		},
		YAxis: gochart.YAxis{
			ValueFormatter: func(v interface{}) string {
				if f, ok := v.(float64); ok {
					return fmt.Sprintf("$%.2f", f)
				}
				return ""
			},
		},
		Series: series,
	}

	if !window.XMin.IsZero() && window.XMax.After(window.XMin) {
		graph.XAxis.Range = &gochart.ContinuousRange{
			Min: gochart.TimeToFloat64(window.XMin),
			Max: gochart.TimeToFloat64(window.XMax),
		}
	}
	if window.YMax > window.YMin {
		graph.YAxis.Range = &gochart.ContinuousRange{
			Min: window.YMin,
			Max: window.YMax,
		}
	}

	graph.Elements = []gochart.Renderable{
		gochart.LegendLeft(&graph),
	}

	var buf bytes.Buffer
	if err := graph.Render(gochart.PNG, &buf); err != nil {
		return nil, fmt.Errorf("chart render failed: %w", err)
	}

	return buf.Bytes(), nil
}
