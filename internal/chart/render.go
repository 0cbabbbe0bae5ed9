package chart

import (
	"io"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// RenderHTML writes a standalone HTML page with one smoothed line per dataset.
func RenderHTML(w io.Writer, s Series, title string) error {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title:    title,
			Subtitle: "0 means no data",
		}),
		charts.WithTooltipOpts(opts.Tooltip{
			Show:    opts.Bool(true),
			Trigger: "axis",
		}),
		charts.WithLegendOpts(opts.Legend{
			Show: opts.Bool(len(s.Datasets) > 1),
		}),
	)

	line.SetXAxis(s.Labels)
	for _, ds := range s.Datasets {
		data := make([]opts.LineData, 0, len(ds.Data))
		for _, v := range ds.Data {
			data = append(data, opts.LineData{Value: v})
		}
		color := ds.Color.RGBA(1)
		line.AddSeries(ds.Label, data,
			charts.WithLineChartOpts(opts.LineChart{
				Smooth:     opts.Bool(true),
				ShowSymbol: opts.Bool(true),
			}),
			charts.WithLineStyleOpts(opts.LineStyle{
				Color: color,
				Width: DefaultStrokeWidth,
			}),
			charts.WithItemStyleOpts(opts.ItemStyle{
				Color: color,
			}),
		)
	}

	return line.Render(w)
}
