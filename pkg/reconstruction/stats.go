package reconstruction

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"ebsdrecon/pkg/grain"
)

// Stats summarises the grains of a finished run.
//
// Size and shape averages are taken over the unbiased grains, those that do
// not touch the grid boundary, because surface grains are truncated. When
// every grain touches the boundary all grains are used.
type Stats struct {
	GrainCount    int
	UnbiasedCount int

	// ESDs holds the equivalent sphere diameter of every grain, ascending.
	ESDs []float64

	MeanESD float64
	StdESD  float64

	// LogMu and LogSigma are the log-normal parameters fitted to the ESDs.
	LogMu    float64
	LogSigma float64

	MeanNeighbors    float64
	MeanAspectRatios [2]float64
	MeanOmega3       float64

	// PhaseFractions maps each phase to its share of the grain volume.
	PhaseFractions map[int]float64
}

// ESDDistribution returns the fitted log-normal distribution.
func (s Stats) ESDDistribution() distuv.LogNormal {
	return distuv.LogNormal{Mu: s.LogMu, Sigma: s.LogSigma}
}

// ComputeStats gathers run statistics from an up to date graph.
func ComputeStats(g *grain.Graph) Stats {
	active := g.Active()
	s := Stats{
		GrainCount:     len(active),
		PhaseFractions: make(map[int]float64),
	}
	if len(active) == 0 {
		return s
	}

	var sample []*grain.Grain
	for _, gr := range active {
		s.ESDs = append(s.ESDs, gr.EquivDiameter)
		if !gr.SurfaceGrain {
			sample = append(sample, gr)
		}
	}
	sort.Float64s(s.ESDs)
	s.UnbiasedCount = len(sample)
	if len(sample) == 0 {
		sample = active
	}

	n := len(sample)
	esd := make([]float64, n)
	logESD := make([]float64, n)
	neighbors := make([]float64, n)
	bOverA := make([]float64, n)
	cOverA := make([]float64, n)
	omega3 := make([]float64, n)
	for i, gr := range sample {
		esd[i] = gr.EquivDiameter
		logESD[i] = math.Log(gr.EquivDiameter)
		neighbors[i] = float64(len(gr.Neighbors))
		bOverA[i] = gr.AspectRatios[0]
		cOverA[i] = gr.AspectRatios[1]
		omega3[i] = gr.Omega3
	}
	s.MeanESD, s.StdESD = meanStdDev(esd)
	s.LogMu, s.LogSigma = meanStdDev(logESD)
	s.MeanNeighbors = stat.Mean(neighbors, nil)
	s.MeanAspectRatios = [2]float64{stat.Mean(bOverA, nil), stat.Mean(cOverA, nil)}
	s.MeanOmega3 = stat.Mean(omega3, nil)

	phases := make(map[int][]float64)
	volumes := make([]float64, len(active))
	for i, gr := range active {
		volumes[i] = gr.Volume
		phases[gr.Phase] = append(phases[gr.Phase], gr.Volume)
	}
	total := floats.Sum(volumes)
	for phase, v := range phases {
		s.PhaseFractions[phase] = floats.Sum(v) / total
	}
	return s
}

// meanStdDev is stat.MeanStdDev with a zero deviation for a single sample.
func meanStdDev(x []float64) (mean, std float64) {
	if len(x) == 1 {
		return x[0], 0
	}
	return stat.MeanStdDev(x, nil)
}
