package dataviz

import (
	"bytes"
	"fmt"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// Render draws the series as a standalone HTML page.
func Render(res Result) (string, error) {
	var buf bytes.Buffer
	title := opts.Title{Title: res.Description}
	switch res.Kind {
	case KindHistogram:
		bar := charts.NewBar()
		bar.SetGlobalOptions(charts.WithTitleOpts(title))
		labels := make([]string, len(res.Series))
		data := make([]opts.BarData, len(res.Series))
		for i, p := range res.Series {
			labels[i] = p.Label
			data[i] = opts.BarData{Value: p.Value}
		}
		bar.SetXAxis(labels).AddSeries(res.Column, data)
		if err := bar.Render(&buf); err != nil {
			return "", err
		}
	case KindMap:
		m := charts.NewMap()
		m.RegisterMapType("france")
		m.SetGlobalOptions(charts.WithTitleOpts(title))
		data := make([]opts.MapData, len(res.Series))
		for i, p := range res.Series {
			data[i] = opts.MapData{Name: p.Label, Value: p.Value}
		}
		m.AddSeries(res.Column, data)
		if err := m.Render(&buf); err != nil {
			return "", err
		}
	default:
		return "", fmt.Errorf("render: unsupported kind %q", res.Kind)
	}
	return buf.String(), nil
}
