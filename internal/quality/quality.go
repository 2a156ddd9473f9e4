// Package quality scores how usable a face region is for fingerprinting.
//
// The score is the sum of two sub-scores in [0, 50]: one for exposure
// (average luma) and one for contrast (luma standard deviation).
package quality

import (
	"math"

	"github.com/saturnino-fabrica-de-software/facegate/internal/frame"
)

type Level string

const (
	TooDark    Level = "too_dark"
	Acceptable Level = "acceptable"
	TooBright  Level = "too_bright"
)

const (
	DefaultDarkBelow   = 70
	DefaultBrightAbove = 200

	maxSubScore    = 50.0
	exposureLow    = 50.0
	exposureHigh   = 200.0
	exposureCenter = 125.0
)

// Report holds every statistic derived from one region in one pass.
type Report struct {
	Score      int     `json:"score"`
	Brightness int     `json:"brightness"`
	Mean       float64 `json:"mean"`
	Contrast   float64 `json:"contrast"`
	Level      Level   `json:"level"`
	Pixels     int     `json:"pixels"`
}

// Analyzer computes quality reports. The zero value uses the default
// lighting thresholds.
type Analyzer struct {
	DarkBelow   int
	BrightAbove int
}

func NewAnalyzer() *Analyzer {
	return &Analyzer{DarkBelow: DefaultDarkBelow, BrightAbove: DefaultBrightAbove}
}

func (a *Analyzer) Analyze(r frame.Region) Report {
	s := Measure(r)
	if s.N == 0 {
		return Report{Level: a.Classify(0)}
	}
	b := int(math.Round(s.Mean))
	return Report{
		Score:      score(s.Mean, s.StdDev),
		Brightness: b,
		Mean:       s.Mean,
		Contrast:   s.StdDev,
		Level:      a.Classify(b),
		Pixels:     s.N,
	}
}

func (a *Analyzer) Classify(brightness int) Level {
	dark, bright := a.DarkBelow, a.BrightAbove
	if dark == 0 && bright == 0 {
		dark, bright = DefaultDarkBelow, DefaultBrightAbove
	}
	switch {
	case brightness < dark:
		return TooDark
	case brightness > bright:
		return TooBright
	default:
		return Acceptable
	}
}

// Score returns the 0-100 quality of r. An empty region scores 0.
func Score(r frame.Region) int {
	s := Measure(r)
	if s.N == 0 {
		return 0
	}
	return score(s.Mean, s.StdDev)
}

// Brightness returns the rounded average luma of r, 0 for an empty region.
func Brightness(r frame.Region) int {
	return int(math.Round(Measure(r).Mean))
}

// Classify uses the default thresholds.
func Classify(brightness int) Level {
	return (&Analyzer{}).Classify(brightness)
}

func score(mean, stddev float64) int {
	var exposure float64
	if mean > exposureLow && mean < exposureHigh {
		exposure = maxSubScore
	} else {
		exposure = math.Max(0, maxSubScore-math.Abs(mean-exposureCenter))
	}
	contrast := math.Min(maxSubScore, stddev)

	total := int(math.Round(exposure + contrast))
	if total < 0 {
		return 0
	}
	if total > 100 {
		return 100
	}
	return total
}

// Stats are luma statistics over a region.
type Stats struct {
	N      int
	Mean   float64
	StdDev float64
}

// Measure computes mean and population standard deviation of luma.
func Measure(r frame.Region) Stats {
	var n int
	var sum, sumSq float64
	r.Each(func(red, green, blue uint8) {
		l := frame.Luma(red, green, blue)
		sum += l
		sumSq += l * l
		n++
	})
	if n == 0 {
		return Stats{}
	}
	mean := sum / float64(n)
	variance := sumSq/float64(n) - mean*mean
	if variance < 0 {
		variance = 0
	}
	return Stats{N: n, Mean: mean, StdDev: math.Sqrt(variance)}
}
