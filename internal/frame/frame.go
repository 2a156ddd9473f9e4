// Package frame holds the pixel containers shared by the capture pipeline:
// decoded camera frames, rectangular regions over them, and the sources
// that hand frames to a capture session.
package frame

import (
	"errors"
	"image"
	"time"

	"golang.org/x/image/draw"
)

var ErrInvalidDimensions = errors.New("frame: pixel buffer does not match dimensions")

// Frame is an RGBA pixel grid. It is read-only once constructed, so a single
// Frame may be handed to several workers of the same tick.
type Frame struct {
	Seq        uint64
	CapturedAt time.Time

	img *image.RGBA
}

// New copies img into an RGBA frame.
func New(img image.Image) *Frame {
	if rgba, ok := img.(*image.RGBA); ok && rgba.Rect.Min == (image.Point{}) {
		return &Frame{img: rgba, CapturedAt: time.Now()}
	}
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return &Frame{img: dst, CapturedAt: time.Now()}
}

// FromRGBA wraps a raw width*height*4 buffer.
func FromRGBA(width, height int, pix []byte) (*Frame, error) {
	if width < 0 || height < 0 || len(pix) != width*height*4 {
		return nil, ErrInvalidDimensions
	}
	img := &image.RGBA{
		Pix:    pix,
		Stride: width * 4,
		Rect:   image.Rect(0, 0, width, height),
	}
	return &Frame{img: img, CapturedAt: time.Now()}, nil
}

func (f *Frame) Width() int { return f.img.Rect.Dx() }
func (f *Frame) Height() int { return f.img.Rect.Dy() }
func (f *Frame) Bounds() image.Rectangle { return f.img.Rect }
func (f *Frame) Image() *image.RGBA { return f.img }
func (f *Frame) Full() Region { return Region{frame: f, Rect: f.img.Rect} }

// Region returns the part of r that lies inside the frame. The result may be
// empty.
func (f *Frame) Region(r image.Rectangle) Region {
	return Region{frame: f, Rect: r.Intersect(f.img.Rect)}
}

// Region is a rectangular view over a Frame.
type Region struct {
	frame *Frame
	Rect  image.Rectangle
}

func (r Region) Frame() *Frame { return r.frame }
func (r Region) Width() int { return r.Rect.Dx() }
func (r Region) Height() int { return r.Rect.Dy() }
func (r Region) Area() int { return r.Rect.Dx() * r.Rect.Dy() }

func (r Region) Empty() bool {
	return r.frame == nil || r.Rect.Empty()
}

// Each calls fn for every pixel of the region in row-major order.
func (r Region) Each(fn func(red, green, blue uint8)) {
	if r.Empty() {
		return
	}
	img := r.frame.img
	for y := r.Rect.Min.Y; y < r.Rect.Max.Y; y++ {
		off := img.PixOffset(r.Rect.Min.X, y)
		for x := r.Rect.Min.X; x < r.Rect.Max.X; x++ {
			fn(img.Pix[off], img.Pix[off+1], img.Pix[off+2])
			off += 4
		}
	}
}

// SubImage returns the region as an image sharing the frame's pixels.
func (r Region) SubImage() image.Image {
	if r.Empty() {
		return image.NewRGBA(image.Rectangle{})
	}
	return r.frame.img.SubImage(r.Rect)
}

// Luma is the unweighted channel average used throughout the pipeline.
func Luma(red, green, blue uint8) float64 {
	return (float64(red) + float64(green) + float64(blue)) / 3
}
