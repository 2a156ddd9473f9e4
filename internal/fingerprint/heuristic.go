package fingerprint

import (
	"context"
	"errors"
	"image"
	"math"
	"time"

	"golang.org/x/image/draw"

	"github.com/saturnino-fabrica-de-software/facegate/internal/detector"
	"github.com/saturnino-fabrica-de-software/facegate/internal/domain"
	"github.com/saturnino-fabrica-de-software/facegate/internal/frame"
)

const (
	sampleSize = 32
	gridSize   = 4
	blockSize  = sampleSize / gridSize

	// HeuristicLength is the number of values in a heuristic fingerprint:
	// one normalised mean and one normalised spread per grid block.
	HeuristicLength = gridSize * gridSize * 2

	minRegionSide = 16
	minSpread     = 1e-6
	zRange        = 3.0
)

var (
	errNotPlausible  = errors.New("region failed the face pattern test")
	errRegionTooTiny = errors.New("region too small to fingerprint")
	errUniform       = errors.New("region has no luma variation")
)

// Heuristic builds a block-statistics signature of the face region. The
// region is scaled to a fixed grid and every value is normalised against
// the region's own mean and spread, which makes the signature insensitive
// to uniform lighting changes.
type Heuristic struct {
	Pattern *detector.Heuristic
	Now     Clock
}

func NewHeuristic(pattern *detector.Heuristic) *Heuristic {
	if pattern == nil {
		pattern = detector.NewHeuristic()
	}
	return &Heuristic{Pattern: pattern, Now: time.Now}
}

func (h *Heuristic) Strategy() domain.Strategy { return domain.StrategyHeuristic }

func (h *Heuristic) Extract(ctx context.Context, d detector.Detection) (*domain.Fingerprint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !d.Plausible || d.Region.Empty() {
		return nil, domain.ErrNoValidFace.WithError(errNotPlausible)
	}
	if d.Region.Width() < minRegionSide || d.Region.Height() < minRegionSide {
		return nil, domain.ErrNoValidFace.WithError(errRegionTooTiny)
	}
	if !h.Pattern.Plausible(d.Region) {
		return nil, domain.ErrNoValidFace.WithError(errNotPlausible)
	}

	luma := sample(d.Region)
	mean, spread := meanStd(luma[:])
	if spread < minSpread {
		return nil, domain.ErrNoValidFace.WithError(errUniform)
	}

	vector := make([]float64, 0, HeuristicLength)
	var block [blockSize * blockSize]float64
	for by := 0; by < gridSize; by++ {
		for bx := 0; bx < gridSize; bx++ {
			i := 0
			for y := by * blockSize; y < (by+1)*blockSize; y++ {
				for x := bx * blockSize; x < (bx+1)*blockSize; x++ {
					block[i] = luma[y*sampleSize+x]
					i++
				}
			}
			m, s := meanStd(block[:])
			z := (m - mean) / spread
			vector = append(vector,
				clamp01((z+zRange)/(2*zRange)),
				clamp01(s/(2*spread)),
			)
		}
	}

	fp, err := domain.NewFingerprint(domain.StrategyHeuristic, vector, h.now())
	if err != nil {
		return nil, domain.ErrNoValidFace.WithError(err)
	}
	return fp, nil
}

func (h *Heuristic) now() time.Time {
	if h.Now == nil {
		return time.Now()
	}
	return h.Now()
}

// sample scales r onto the fixed grid and returns its luma values.
func sample(r frame.Region) [sampleSize * sampleSize]float64 {
	dst := image.NewRGBA(image.Rect(0, 0, sampleSize, sampleSize))
	draw.BiLinear.Scale(dst, dst.Bounds(), r.SubImage(), r.Rect, draw.Src, nil)

	var out [sampleSize * sampleSize]float64
	for i := range out {
		p := dst.Pix[i*4 : i*4+3]
		out[i] = frame.Luma(p[0], p[1], p[2])
	}
	return out
}

func meanStd(values []float64) (float64, float64) {
	var sum, sumSq float64
	for _, v := range values {
		sum += v
		sumSq += v * v
	}
	n := float64(len(values))
	mean := sum / n
	variance := sumSq/n - mean*mean
	if variance < 0 {
		variance = 0
	}
	return mean, math.Sqrt(variance)
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
