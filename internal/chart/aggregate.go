package chart

import (
	"time"

	"invertrack-go/internal/models"

	"github.com/shopspring/decimal"
)

// ViewMode selects the chart time scale.
type ViewMode string

const (
	ViewLive   ViewMode = "live"
	ViewMonths ViewMode = "months"
	ViewYears  ViewMode = "years"
)

// Interval is the bucketing resolution used when aggregating a series.
type Interval string

const (
	IntervalFine   Interval = "fine"   // 30-second buckets for the live view
	IntervalDaily  Interval = "daily"  // one bar per (already daily) point
	IntervalWeekly Interval = "weekly" // calendar-week buckets for the long view
)

// IntervalFor maps a view mode to its bucketing resolution.
func IntervalFor(mode ViewMode) Interval {
	switch mode {
	case ViewLive:
		return IntervalFine
	case ViewYears:
		return IntervalWeekly
	default:
		return IntervalDaily
	}
}

// OHLCBar is an open/high/low/close aggregate over one time bucket.
type OHLCBar struct {
	Start time.Time       `json:"start"`
	Open  decimal.Decimal `json:"open"`
	High  decimal.Decimal `json:"high"`
	Low   decimal.Decimal `json:"low"`
	Close decimal.Decimal `json:"close"`
}

// Aggregate regroups an ordered point sequence into OHLC bars at the given
// resolution. It is a pure function: empty buckets are skipped and bars come
// out in chronological order of their first contained point.
func Aggregate(points []models.PricePoint, interval Interval) []OHLCBar {
	if len(points) == 0 {
		return nil
	}

	if interval == IntervalDaily {
		// Source points are already daily resolution, one bar each.
		bars := make([]OHLCBar, 0, len(points))
		for _, p := range points {
			bars = append(bars, OHLCBar{
				Start: p.Timestamp,
				Open:  p.OpenOrClose(),
				High:  p.HighOrClose(),
				Low:   p.LowOrClose(),
				Close: p.Close,
			})
		}
		return bars
	}

	var keyFn func(t time.Time) time.Time
	switch interval {
	case IntervalFine:
		keyFn = halfMinuteFloor
	case IntervalWeekly:
		keyFn = weekKey
	default:
		return nil
	}

	var (
		order   []time.Time
		buckets = make(map[time.Time][]models.PricePoint)
	)
	for _, p := range points {
		k := keyFn(p.Timestamp)
		if _, seen := buckets[k]; !seen {
			order = append(order, k)
		}
		buckets[k] = append(buckets[k], p)
	}

	bars := make([]OHLCBar, 0, len(order))
	for _, k := range order {
		group := buckets[k]
		bar := OHLCBar{
			Start: group[0].Timestamp,
			Open:  group[0].OpenOrClose(),
			High:  group[0].HighOrClose(),
			Low:   group[0].LowOrClose(),
			Close: group[len(group)-1].Close,
		}
		for _, p := range group[1:] {
			if h := p.HighOrClose(); h.GreaterThan(bar.High) {
				bar.High = h
			}
			if l := p.LowOrClose(); l.LessThan(bar.Low) {
				bar.Low = l
			}
		}
		bars = append(bars, bar)
	}
	return bars
}

// halfMinuteFloor floors a timestamp to :00 or :30 within its minute.
func halfMinuteFloor(t time.Time) time.Time {
	sec := 0
	if t.Second() >= 30 {
		sec = 30
	}
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), sec, 0, t.Location())
}

// weekKey collapses a timestamp to its ISO (year, week) pair, encoded as a
// reference instant inside the ISO year for map keying.
func weekKey(t time.Time) time.Time {
	year, week := t.ISOWeek()
	return time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, (week-1)*7)
}
