package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wcharczuk/go-chart/v2"
)

var errNothingToChart = errors.New("nothing to chart")

// renderStandingsChart draws a bar per participant, highest first.
func renderStandingsChart(title string, standings []Standing) ([]byte, error) {
	if len(standings) == 0 {
		return nil, errNothingToChart
	}
	maxPoints := 0
	bars := make([]chart.Value, 0, len(standings))
	for _, s := range standings {
		if s.Points > maxPoints {
			maxPoints = s.Points
		}
		bars = append(bars, chart.Value{
			Value: float64(s.Points),
			Label: shorten(standingName(s), 12),
		})
	}

	graph := chart.BarChart{
		Title:      title,
		Background: chart.Style{Padding: chart.Box{Top: 40, Left: 20, Right: 20, Bottom: 20}},
		Height:     500,
		Width:      900,
		BarWidth:   60,
		YAxis: chart.YAxis{
			// Equal bars would otherwise produce an empty range.
			Range:          &chart.ContinuousRange{Min: 0, Max: float64(maxPoints) + 1},
			ValueFormatter: func(v interface{}) string { return fmt.Sprintf("%.0f", v.(float64)) },
		},
		Bars: bars,
	}

	buffer := bytes.NewBuffer([]byte{})
	if err := graph.Render(chart.PNG, buffer); err != nil {
		return nil, err
	}
	return buffer.Bytes(), nil
}

// dailySubmissions counts submissions per day over the last days days, oldest first.
func dailySubmissions(ctx context.Context, lm *LeaderboardManager, days int, now time.Time) ([]time.Time, []float64, error) {
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location()).AddDate(0, 0, -(days - 1))

	var stamps []time.Time
	if err := lm.DB.WithContext(ctx).Model(&Submission{}).
		Where("created_at >= ?", start).
		Pluck("created_at", &stamps).Error; err != nil {
		return nil, nil, err
	}

	counts := make(map[string]int, days)
	for _, ts := range stamps {
		counts[ts.In(now.Location()).Format("2006-01-02")]++
	}

	dates := make([]time.Time, 0, days)
	values := make([]float64, 0, days)
	for i := 0; i < days; i++ {
		d := start.AddDate(0, 0, i)
		dates = append(dates, d)
		values = append(values, float64(counts[d.Format("2006-01-02")]))
	}
	return dates, values, nil
}

func renderActivityChart(dates []time.Time, values []float64) ([]byte, error) {
	if len(dates) < 2 {
		return nil, errNothingToChart
	}
	graph := chart.Chart{
		Background: chart.Style{Padding: chart.Box{Top: 20, Left: 20, Right: 20, Bottom: 20}},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    "Submissions",
				XValues: dates,
				YValues: values,
				Style:   chart.Style{StrokeColor: chart.ColorBlue, StrokeWidth: 5.0, DotColor: chart.ColorWhite, DotWidth: 4.0},
			},
		},
		XAxis:  chart.XAxis{Name: "Day", ValueFormatter: chart.TimeValueFormatterWithFormat("02 Jan")},
		YAxis:  chart.YAxis{Name: "Submissions", ValueFormatter: func(v interface{}) string { return fmt.Sprintf("%.0f", v.(float64)) }},
		Height: 400,
		Width:  800,
	}

	buffer := bytes.NewBuffer([]byte{})
	err := graph.Render(chart.PNG, buffer)
	return buffer.Bytes(), err
}
