// Package imaging holds the decode/encode/resize/color helpers shared by
// the GeoTIFF synthesizer (C4g) and the WMS GetMap compositor (C6): spec.md
// section 4.7.
//
// PNG/JPEG decode/encode use the standard library (no third-party codec in
// the retrieved corpus improves on image/png or image/jpeg for these
// ubiquitous formats). WEBP decode uses golang.org/x/image/webp, the same
// dependency family ktye-map pulls in for image work; the corpus contains
// no WEBP encoder and spec.md never requires WEBP output. Resizing uses
// golang.org/x/image/draw's bilinear scaler instead of a hand-rolled loop.
package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"

	"golang.org/x/image/webp"
)

// Decode decodes PNG, JPEG, or WEBP bytes into a premultiplied RGBA image.
func Decode(data []byte) (*image.RGBA, error) {
	r := bytes.NewReader(data)
	img, format, err := image.Decode(r)
	if err != nil {
		// image.Decode only knows about formats registered via blank
		// imports of image/png and image/jpeg; try WEBP explicitly.
		if wimg, werr := webp.Decode(bytes.NewReader(data)); werr == nil {
			return ToRGBA(wimg), nil
		}
		return nil, fmt.Errorf("imaging: decode: %w", err)
	}
	_ = format
	return ToRGBA(img), nil
}

// ToRGBA converts any image.Image into a premultiplied-alpha RGBA image.
// Color models with no alpha channel (JPEG's YCbCr, Gray, CMYK) already
// report full opacity from their Color.RGBA() method, so no per-pixel
// fill-in is needed here; doing one unconditionally would turn a
// legitimately transparent pixel of a decoded RGBA/NRGBA source (e.g. a
// transparent PNG tile) into opaque black, breaking compositing (spec.md
// section 4.6/8's alpha-blending behavior). The GeoTIFF reader's own
// "fill missing alpha with 255 when there's no alpha band" (spec.md
// section 4.5 step 4) is handled at the raw-sample level in
// internal/tilesource/geotiff, not here.
func ToRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok {
		return rgba
	}
	b := img.Bounds()
	out := image.NewRGBA(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, a := img.At(x, y).RGBA()
			out.Set(x, y, color.RGBA64{R: uint16(r), G: uint16(g), B: uint16(bl), A: uint16(a)})
		}
	}
	return out
}

// EncodePNG encodes img as lossless PNG.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("imaging: encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// EncodeJPEG encodes img as JPEG at the given quality (1-100).
func EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	if quality < 1 {
		quality = 1
	}
	if quality > 100 {
		quality = 100
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("imaging: encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}
