package chart

import (
	"time"

	"invertrack-go/internal/models"

	"github.com/shopspring/decimal"
)

// AxisWindow is the visible chart viewport: X bounds in time, Y bounds in
// price. The zero value means "not yet established".
type AxisWindow struct {
	XMin time.Time `json:"x_min"`
	XMax time.Time `json:"x_max"`
	YMin float64   `json:"y_min"`
	YMax float64   `json:"y_max"`
}

// hasY reports whether a Y range has been established.
func (w AxisWindow) hasY() bool {
	return w.YMin != 0 || w.YMax != 0
}

// WindowOptions carries the per-call inputs that affect the Y range.
type WindowOptions struct {
	// AverageOpenCost, when positive, is included in the live view's Y range
	// so the cost-basis reference line stays visible.
	AverageOpenCost decimal.Decimal
	// Now anchors the months view's six-month lookback. Zero means time.Now().
	Now time.Time
}

// WindowPolicy computes axis bounds for successive chart updates. The X
// range for the months/years views is computed once per activation and then
// frozen; the Y range only ever widens until the next activation.
type WindowPolicy struct {
	recomputeX bool
}

// NewWindowPolicy returns a policy in activated state.
func NewWindowPolicy() *WindowPolicy {
	return &WindowPolicy{recomputeX: true}
}

// Activate signals that the symbol or view changed: the next Compute call
// re-derives the frozen X range and the Y range starts fresh.
func (wp *WindowPolicy) Activate() {
	wp.recomputeX = true
}

// Compute derives the axis window for the given points and view mode.
// prev carries the previously established window; with no points the
// previous window is returned unchanged.
func (wp *WindowPolicy) Compute(points []models.PricePoint, mode ViewMode, prev AxisWindow, opts WindowOptions) AxisWindow {
	if len(points) == 0 {
		return prev
	}

	next := prev

	first := points[0]
	last := points[len(points)-1]

	switch mode {
	case ViewLive:
		// Always slides forward with the latest point.
		next.XMin = last.Timestamp.Add(-time.Minute)
		next.XMax = last.Timestamp.Add(10 * time.Second)
	case ViewMonths:
		if wp.recomputeX {
			now := opts.Now
			if now.IsZero() {
				now = time.Now()
			}
			from := now.AddDate(0, -6, 0)
			start := first.Timestamp
			for _, p := range points {
				if !p.Timestamp.Before(from) {
					start = p.Timestamp
					break
				}
			}
			next.XMin = start
			next.XMax = last.Timestamp.Add(time.Duration(0.2 * 24 * float64(time.Hour)))
		}
	case ViewYears:
		if wp.recomputeX {
			minT := first.Timestamp
			maxT := last.Timestamp
			next.XMin = time.Date(minT.Year(), minT.Month(), 1, 0, 0, 0, 0, minT.Location())
			next.XMax = time.Date(maxT.Year(), maxT.Month(), 1, 0, 0, 0, 0, maxT.Location()).AddDate(0, 1, 0)
		}
	}
	if mode != ViewLive {
		wp.recomputeX = false
	}

	// Y range: points inside the X window, or the full series in the years
	// view so the long-range chart is never vertically clipped.
	visible := points
	if mode != ViewYears {
		visible = visible[:0:0]
		for _, p := range points {
			if p.Timestamp.Before(next.XMin) || p.Timestamp.After(next.XMax) {
				continue
			}
			visible = append(visible, p)
		}
		if len(visible) == 0 {
			visible = points
		}
	}

	minPrice := visible[0].Close.InexactFloat64()
	maxPrice := minPrice
	for _, p := range visible {
		v := p.Close.InexactFloat64()
		if v < minPrice {
			minPrice = v
		}
		if v > maxPrice {
			maxPrice = v
		}
	}

	if mode == ViewLive && opts.AverageOpenCost.IsPositive() {
		cost := opts.AverageOpenCost.InexactFloat64()
		if cost < minPrice {
			minPrice = cost
		}
		if cost > maxPrice {
			maxPrice = cost
		}
	}

	// Keep a single historical outlier from distorting the long views.
	if mode == ViewMonths || mode == ViewYears {
		lastPrice := last.Close.InexactFloat64()
		if lastPrice > 0 {
			if floor := lastPrice * 0.5; minPrice < floor {
				minPrice = floor
			}
			if ceil := lastPrice * 1.5; maxPrice > ceil {
				maxPrice = ceil
			}
		}
	}

	if minPrice == maxPrice {
		minPrice *= 0.95
		maxPrice *= 1.05
	}

	margin := (maxPrice - minPrice) * 0.1
	if margin <= 0 {
		margin = maxPrice * 0.05
		if margin < 1 {
			margin = 1
		}
	}
	targetMin := minPrice - margin
	targetMax := maxPrice + margin

	if !prev.hasY() {
		next.YMin = targetMin
		next.YMax = targetMax
	} else {
		// Monotonic widening: never shrink an established range.
		next.YMin = prev.YMin
		next.YMax = prev.YMax
		if targetMin < next.YMin {
			next.YMin = targetMin
		}
		if targetMax > next.YMax {
			next.YMax = targetMax
		}
	}

	return next
}
