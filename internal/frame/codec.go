package frame

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

const jpegQuality = 90

// Decode parses any registered image format (jpeg, png, gif, bmp, webp).
func Decode(data []byte) (*Frame, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("decode frame: empty payload")
	}
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	f := New(img)
	if f.Width() == 0 || f.Height() == 0 {
		return nil, fmt.Errorf("decode frame: empty %s image", format)
	}
	return f, nil
}

// EncodeJPEG serialises a region for model backends that take image bytes.
func EncodeJPEG(r Region) ([]byte, error) {
	if r.Empty() {
		return nil, fmt.Errorf("encode region: empty region")
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, r.SubImage(), &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("encode region: %w", err)
	}
	return buf.Bytes(), nil
}
