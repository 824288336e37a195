// Package imaging encodes a pixel store's raw RGB bytes into a standard
// image format for the HTTP canvas endpoint and the time-lapse engine.
//
// spec.md §6 calls for WEBP encoding, but no WEBP *encoder* exists anywhere
// in the reference corpus (golang.org/x/image/webp only decodes); rather
// than fabricate a dependency the corpus never uses, this package encodes
// PNG via the standard library and documents the gap in DESIGN.md.
package imaging

import (
	"bytes"
	"image"
	"image/png"
)

// EncodePNG renders tightly-packed RGB bytes (width*height*3, row-major)
// as a PNG image.
func EncodePNG(rgb []byte, width, height int) ([]byte, error) {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		rowStart := y * width * 3
		for x := 0; x < width; x++ {
			off := rowStart + x*3
			i := img.PixOffset(x, y)
			img.Pix[i] = rgb[off]
			img.Pix[i+1] = rgb[off+1]
			img.Pix[i+2] = rgb[off+2]
			img.Pix[i+3] = 0xff
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
