// Package report renders run statistics as images.
package report

import (
	"context"
	"errors"
	"fmt"
	"image/color"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"ebsdrecon/pkg/reconstruction"
)

// ErrNoGrains is returned for a result without grains.
var ErrNoGrains = errors.New("report: no grains to plot")

// Histogram writes the grain size distribution of a run, with the fitted
// log-normal density on top. The image format follows the file extension.
// It implements reconstruction.Sink.
type Histogram struct {
	Path string

	// Bins is the number of bars; 0 lets the plot package choose.
	Bins int

	Width, Height vg.Length
}

// NewHistogram returns a 6x4 inch histogram sink writing to path.
func NewHistogram(path string) *Histogram {
	return &Histogram{Path: path, Width: 6 * vg.Inch, Height: 4 * vg.Inch}
}

// Name implements reconstruction.Sink.
func (h *Histogram) Name() string { return "histogram" }

// Consume implements reconstruction.Sink.
func (h *Histogram) Consume(_ context.Context, r *reconstruction.Result) error {
	p, err := h.Plot(r.Stats)
	if err != nil {
		return err
	}
	p.Title.Text = fmt.Sprintf("Grain size distribution (run %s)", r.RunID.String()[:8])

	if err := os.MkdirAll(filepath.Dir(h.Path), 0755); err != nil {
		return fmt.Errorf("report: create directory: %w", err)
	}
	if err := p.Save(h.Width, h.Height, h.Path); err != nil {
		return fmt.Errorf("report: save %s: %w", h.Path, err)
	}
	return nil
}

// Plot builds the histogram of s.ESDs normalised to unit area.
func (h *Histogram) Plot(s reconstruction.Stats) (*plot.Plot, error) {
	if len(s.ESDs) == 0 {
		return nil, ErrNoGrains
	}

	p := plot.New()
	p.Title.Text = "Grain size distribution"
	p.X.Label.Text = "Equivalent sphere diameter"
	p.Y.Label.Text = "Density"

	hist, err := plotter.NewHist(plotter.Values(s.ESDs), h.Bins)
	if err != nil {
		return nil, fmt.Errorf("report: histogram: %w", err)
	}
	hist.Normalize(1)
	hist.FillColor = color.RGBA{R: 90, G: 140, B: 200, A: 255}
	p.Add(hist)
	p.Legend.Add(fmt.Sprintf("%d grains", len(s.ESDs)), hist)

	if s.LogSigma > 0 {
		fit := plotter.NewFunction(s.ESDDistribution().Prob)
		fit.Samples = 200
		fit.Color = color.RGBA{R: 200, G: 40, B: 40, A: 255}
		fit.Width = vg.Points(1.5)
		p.Add(fit)
		p.Legend.Add(fmt.Sprintf("log-normal μ=%.3f σ=%.3f", s.LogMu, s.LogSigma), fit)
	}

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10
	return p, nil
}
