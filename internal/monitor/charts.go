package monitor

import (
	"fmt"
	"io"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// Render writes an HTML page with one line chart per agent's counters and
// shared reward and exploration charts.
func (m *Monitor) Render(w io.Writer) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	page := components.NewPage()
	page.PageTitle = "clipwright"

	for _, agent := range Agents {
		var names []string
		for _, s := range m.order[agent] {
			if s != SeriesReward && s != SeriesExploration {
				names = append(names, s)
			}
		}
		page.AddCharts(m.lineChart(agent+" agent", func(add func(string, *Window)) {
			for _, s := range names {
				add(s, m.series[agent][s])
			}
		}))
	}

	for _, s := range []string{SeriesReward, SeriesExploration} {
		series := s
		page.AddCharts(m.lineChart(series, func(add func(string, *Window)) {
			for _, agent := range Agents {
				if w, ok := m.series[agent][series]; ok {
					add(agent, w)
				}
			}
		}))
	}

	if err := page.Render(w); err != nil {
		return fmt.Errorf("render charts: %w", err)
	}
	return nil
}

// lineChart builds a chart whose x-axis is the iteration numbers of the
// longest window added to it.
func (m *Monitor) lineChart(title string, fill func(add func(name string, w *Window))) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: title}),
		charts.WithInitializationOpts(opts.Initialization{Theme: "shine"}),
	)

	var axis []string
	type series struct {
		name  string
		items []opts.LineData
	}
	var all []series
	fill(func(name string, w *Window) {
		points := w.Points()
		if len(points) > len(axis) {
			axis = axis[:0]
			for _, p := range points {
				axis = append(axis, strconv.FormatUint(p.Iteration, 10))
			}
		}
		items := make([]opts.LineData, 0, len(points))
		for _, p := range points {
			items = append(items, opts.LineData{Value: p.Value})
		}
		all = append(all, series{name, items})
	})

	line.SetXAxis(axis)
	for _, s := range all {
		line.AddSeries(s.name, s.items)
	}
	return line
}
