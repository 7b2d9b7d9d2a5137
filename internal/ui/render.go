package ui

import (
	"bytes"

	"github.com/guptarohit/asciigraph"
	"github.com/mgutz/ansi"
	"github.com/tomlazar/table"
)

// RenderTable renders the given rows as a table with alternating row colors
func RenderTable(headers []string, rows [][]string, color bool) (string, error) {
	tab := table.Table{
		Headers: headers,
		Rows:    rows,
	}
	var buf bytes.Buffer
	err := tab.WriteTable(&buf, &table.Config{
		ShowIndex:       false,
		Color:           color,
		AlternateColors: true,
		TitleColorCode:  ansi.ColorCode("white+buf"),
		AltColorCodes: []string{
			ansi.ColorCode("white"),
			ansi.ColorCode("white:236"),
		},
	})
	if err != nil {
		return "", err
	}
	return buf.String(), nil
}

// RenderDepthPlot renders the depth of a run together with its target depth
func RenderDepthPlot(depth []float64, target []float64) string {
	if len(depth) <= 0 {
		return ""
	}
	return asciigraph.PlotMany(
		[][]float64{depth, target},
		asciigraph.Height(15),
		asciigraph.Width(100),
		asciigraph.Precision(2),
		asciigraph.SeriesColors(asciigraph.Blue, asciigraph.Red),
		asciigraph.SeriesLegends("Depth", "Target"),
		asciigraph.Caption("Depth (m) / cycle"),
	)
}

// RenderThrustPlot renders the thrust commands of a run
func RenderThrustPlot(thrust []float64) string {
	if len(thrust) <= 0 {
		return ""
	}
	return asciigraph.Plot(
		thrust,
		asciigraph.Height(10),
		asciigraph.Width(100),
		asciigraph.Precision(2),
		asciigraph.SeriesColors(asciigraph.Green),
		asciigraph.Caption("Thrust / cycle"),
	)
}
