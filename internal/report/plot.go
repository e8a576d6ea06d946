package report

import (
	"fmt"
	"io"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/Sumatoshi-tech/sensorstats/internal/engine"
)

const (
	chartWidth  = "1200px"
	chartHeight = "500px"
	xAxisRotate = 45
)

// WriteCharts renders an HTML page with bar charts for the ranked groups.
func WriteCharts(w io.Writer, topMean, topStd []engine.GroupStats) error {
	page := components.NewPage()
	page.PageTitle = "sensorstats report"
	page.AddCharts(
		rankingBarChart("Top groups by mean", topMean, func(g engine.GroupStats) float64 { return g.Mean }),
		rankingBarChart("Top groups by standard deviation", topStd, func(g engine.GroupStats) float64 { return g.Std }),
	)

	if err := page.Render(w); err != nil {
		return fmt.Errorf("render charts: %w", err)
	}

	return nil
}

func rankingBarChart(title string, groups []engine.GroupStats, value func(engine.GroupStats) float64) *charts.Bar {
	labels := make([]string, len(groups))
	data := make([]opts.BarData, len(groups))

	for i, g := range groups {
		labels[i] = g.Key.String()
		data[i] = opts.BarData{Value: value(g)}
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: chartWidth, Height: chartHeight}),
		charts.WithTitleOpts(opts.Title{Title: title}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithXAxisOpts(opts.XAxis{
			AxisLabel: &opts.AxisLabel{Rotate: xAxisRotate, Interval: "0"},
		}),
	)
	bar.SetXAxis(labels)
	bar.AddSeries(title, data)

	return bar
}
