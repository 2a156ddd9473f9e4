// Package frametest builds synthetic frames for tests.
package frametest

import (
	"bytes"
	"image"
	"image/color"
	"image/png"

	"github.com/saturnino-fabrica-de-software/facegate/internal/frame"
)

var (
	Black = color.RGBA{0, 0, 0, 255}
	White = color.RGBA{255, 255, 255, 255}
	Gray  = color.RGBA{125, 125, 125, 255}
	Skin  = color.RGBA{205, 145, 115, 255}
	Shade = color.RGBA{120, 80, 60, 255}
	Wall  = color.RGBA{40, 60, 90, 255}
)

// Solid returns a w*h frame filled with c.
func Solid(w, h int, c color.RGBA) *frame.Frame {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	fill(img, img.Bounds(), c)
	return frame.New(img)
}

// Stripes alternates columns of a and b, which gives a population standard
// deviation of |luma(a)-luma(b)|/2 when the column count is even.
func Stripes(w, h int, a, b color.RGBA) *frame.Frame {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		c := a
		if x%2 == 1 {
			c = b
		}
		fill(img, image.Rect(x, 0, x+1, h), c)
	}
	return frame.New(img)
}

// Face paints a skin-toned oval with darker eye and mouth patches on a cool
// background, centred on the capture guide.
func Face(w, h int) *frame.Frame {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	fill(img, img.Bounds(), Wall)

	cx, cy := w/2, h/2
	rx, ry := w/4, h*7/20
	for y := cy - ry; y < cy+ry; y++ {
		for x := cx - rx; x < cx+rx; x++ {
			dx := float64(x-cx) / float64(rx)
			dy := float64(y-cy) / float64(ry)
			if dx*dx+dy*dy <= 1 {
				// slight vertical shading keeps block statistics distinct
				shade := uint8((y - (cy - ry)) * 20 / (2 * ry))
				img.SetRGBA(x, y, color.RGBA{Skin.R - shade, Skin.G - shade, Skin.B - shade, 255})
			}
		}
	}

	ew, eh := w/14, h/24
	fill(img, image.Rect(cx-rx/2-ew/2, cy-ry/3, cx-rx/2+ew/2, cy-ry/3+eh), Shade)
	fill(img, image.Rect(cx+rx/2-ew/2, cy-ry/3, cx+rx/2+ew/2, cy-ry/3+eh), Shade)
	fill(img, image.Rect(cx-rx/3, cy+ry/2, cx+rx/3, cy+ry/2+eh), Shade)
	return frame.New(img)
}

// PNG encodes f losslessly.
func PNG(f *frame.Frame) []byte {
	var buf bytes.Buffer
	if err := png.Encode(&buf, f.Image()); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

func fill(img *image.RGBA, r image.Rectangle, c color.RGBA) {
	r = r.Intersect(img.Bounds())
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			img.SetRGBA(x, y, c)
		}
	}
}
