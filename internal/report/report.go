// Package report renders summaries of a reconciliation: a PNG histogram of
// the per-pair expansions and an HTML dashboard of the classification.
package report

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/colm-brandon-ul/cellmaps/internal/reconcile"
	"github.com/colm-brandon-ul/cellmaps/internal/runstore"
)

// AssetsHost is where the dashboard loads the echarts scripts from.
var AssetsHost = "https://go-echarts.github.io/go-echarts-assets/assets/"

// WriteHistogram saves a PNG histogram of the matched-pair expansions to
// path, with the chosen growth distance drawn as a vertical line.
func WriteHistogram(path string, res *reconcile.Result) error {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("Membrane expansion over %d matched pairs", len(res.Expansions))
	p.X.Label.Text = "expansion (px)"
	p.Y.Label.Text = "pairs"

	if len(res.Expansions) > 0 {
		vals := make(plotter.Values, len(res.Expansions))
		for i, x := range res.Expansions {
			vals[i] = x.Value
		}
		hist, err := plotter.NewHist(vals, histBins(len(vals)))
		if err != nil {
			return fmt.Errorf("build histogram: %w", err)
		}
		p.Add(hist)

		line, err := plotter.NewLine(plotter.XYs{
			{X: res.Distance, Y: 0},
			{X: res.Distance, Y: maxBin(hist)},
		})
		if err != nil {
			return fmt.Errorf("build distance marker: %w", err)
		}
		line.Width = vg.Points(1)
		line.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}
		p.Add(line)
		p.Legend.Add(fmt.Sprintf("growth distance %.2f", res.Distance), line)
	}

	if err := p.Save(8*vg.Inch, 5*vg.Inch, path); err != nil {
		return fmt.Errorf("save histogram %s: %w", path, err)
	}
	return nil
}

func histBins(n int) int {
	switch {
	case n < 8:
		return max(n, 1)
	case n > 400:
		return 40
	default:
		return n / 8
	}
}

func maxBin(h *plotter.Histogram) float64 {
	m := 0.0
	for _, b := range h.Bins {
		m = max(m, b.Weight)
	}
	return m
}

// RenderDashboard writes an HTML page with the classification counts of a
// run and the expansion of every matched pair.
func RenderDashboard(w io.Writer, run *runstore.Run, res *reconcile.Result) error {
	subtitle := fmt.Sprintf("%dx%d, distance %.2f px, %v", run.Cols, run.Rows, run.Distance, run.Elapsed.Round(time.Millisecond))
	if run.RunID != "" {
		subtitle = "run " + run.RunID + ", " + subtitle
	}

	counts := charts.NewBar()
	counts.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Reconciliation", Width: "900px", Height: "480px", AssetsHost: AssetsHost}),
		charts.WithTitleOpts(opts.Title{Title: "Nucleus classification", Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	counts.SetXAxis([]string{"Matched", "Contested", "No overlap", "Faulted", "Skipped"}).
		AddSeries("nuclei", []opts.BarData{
			{Value: run.Matched},
			{Value: run.Contested},
			{Value: run.NoOverlap},
			{Value: run.Faulted},
			{Value: run.Skipped},
		}, charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}))

	page := components.NewPage()
	page.SetAssetsHost(AssetsHost)
	page.PageTitle = "Reconciliation"
	page.AddCharts(counts)

	if res != nil && len(res.Expansions) > 0 {
		ids := make([]string, len(res.Expansions))
		data := make([]opts.BarData, len(res.Expansions))
		for i, x := range res.Expansions {
			ids[i] = strconv.FormatUint(uint64(x.NucleusID), 10)
			data[i] = opts.BarData{Value: x.Value}
		}
		exp := charts.NewBar()
		exp.SetGlobalOptions(
			charts.WithInitializationOpts(opts.Initialization{Width: "900px", Height: "480px", AssetsHost: AssetsHost}),
			charts.WithTitleOpts(opts.Title{Title: "Expansion per matched nucleus"}),
			charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
			charts.WithXAxisOpts(opts.XAxis{Name: "nucleus id"}),
			charts.WithYAxisOpts(opts.YAxis{Name: "px"}),
			charts.WithDataZoomOpts(opts.DataZoom{Type: "slider", Start: 0, End: 100}),
		)
		exp.SetXAxis(ids).AddSeries("expansion", data)
		page.AddCharts(exp)
	}

	if err := page.Render(w); err != nil {
		return fmt.Errorf("render dashboard: %w", err)
	}
	return nil
}
