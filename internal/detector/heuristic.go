package detector

import (
	"context"
	"image"

	"github.com/saturnino-fabrica-de-software/facegate/internal/domain"
	"github.com/saturnino-fabrica-de-software/facegate/internal/frame"
	"github.com/saturnino-fabrica-de-software/facegate/internal/quality"
)

// Heuristic assumes the user frames their face inside the on-screen guide
// and checks the guide window for face-like pixel statistics. It needs no
// external resources.
type Heuristic struct {
	// Guide window size as a fraction of the frame.
	WidthRatio  float64
	HeightRatio float64

	// Pattern test thresholds.
	MinMeanLuma  float64
	MaxMeanLuma  float64
	MinStdDev    float64
	MinSkinRatio float64
}

func NewHeuristic() *Heuristic {
	return &Heuristic{
		WidthRatio:   0.4,
		HeightRatio:  0.6,
		MinMeanLuma:  40,
		MaxMeanLuma:  235,
		MinStdDev:    10,
		MinSkinRatio: 0.25,
	}
}

func (h *Heuristic) Strategy() domain.Strategy { return domain.StrategyHeuristic }

// GuideRegion returns the centred guide window of f.
func (h *Heuristic) GuideRegion(f *frame.Frame) frame.Region {
	w := int(float64(f.Width()) * h.WidthRatio)
	ht := int(float64(f.Height()) * h.HeightRatio)
	x0 := (f.Width() - w) / 2
	y0 := (f.Height() - ht) / 2
	return f.Region(image.Rect(x0, y0, x0+w, y0+ht))
}

func (h *Heuristic) Detect(ctx context.Context, f *frame.Frame) (Detection, error) {
	if err := ctx.Err(); err != nil {
		return Detection{}, err
	}
	region := h.GuideRegion(f)
	ok := h.Plausible(region)
	count := 0
	if ok {
		count = 1
	}
	return Detection{
		Region:    region,
		Plausible: ok,
		FaceCount: count,
		Strategy:  domain.StrategyHeuristic,
	}, nil
}

// Plausible runs the face pattern test over r: exposure within bounds, some
// texture, and enough skin-toned pixels.
func (h *Heuristic) Plausible(r frame.Region) bool {
	if r.Empty() {
		return false
	}
	stats := quality.Measure(r)
	if stats.Mean < h.MinMeanLuma || stats.Mean > h.MaxMeanLuma {
		return false
	}
	if stats.StdDev < h.MinStdDev {
		return false
	}
	return SkinRatio(r) >= h.MinSkinRatio
}

// SkinRatio is the fraction of pixels in r that pass IsSkin.
func SkinRatio(r frame.Region) float64 {
	var skin, total int
	r.Each(func(red, green, blue uint8) {
		total++
		if IsSkin(red, green, blue) {
			skin++
		}
	})
	if total == 0 {
		return 0
	}
	return float64(skin) / float64(total)
}

// IsSkin is the uniform-daylight RGB skin rule (Kovac et al.).
func IsSkin(red, green, blue uint8) bool {
	r, g, b := int(red), int(green), int(blue)
	if r <= 95 || g <= 40 || b <= 20 {
		return false
	}
	maxC := max(r, g, b)
	minC := min(r, g, b)
	if maxC-minC <= 15 {
		return false
	}
	d := r - g
	if d < 0 {
		d = -d
	}
	return d > 15 && r > g && r > b
}
