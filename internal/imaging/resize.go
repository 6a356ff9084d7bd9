package imaging

import (
	"image"
	"image/draw"

	xdraw "golang.org/x/image/draw"
)

// Resize scales src into an image of size (w, h) using bilinear filtering.
func Resize(src image.Image, w, h int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), xdraw.Over, nil)
	return dst
}

// ResizeFromRect scales the sub-rectangle srcRect of src into a w x h
// image, as used by the GeoTIFF synthesizer (spec.md section 4.5 step 5)
// when cropping a scratch canvas down to a single output tile.
func ResizeFromRect(src image.Image, srcRect image.Rectangle, w, h int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, srcRect, xdraw.Over, nil)
	return dst
}

// Paste draws src onto dst at the given offset, using normal alpha-over
// compositing (src drawn on top of dst), matching draw.Draw's default Over
// operator semantics used throughout the WMS compositor (C6).
func Paste(dst *image.RGBA, src image.Image, x, y int) {
	r := image.Rect(x, y, x+src.Bounds().Dx(), y+src.Bounds().Dy())
	draw.Draw(dst, r, src, src.Bounds().Min, draw.Over)
}

// Blend alpha-composites src over dst at the full size of dst (used when
// src has already been scaled/positioned to exactly match dst's bounds).
func Blend(dst *image.RGBA, src image.Image) {
	draw.Draw(dst, dst.Bounds(), src, src.Bounds().Min, draw.Over)
}

// Fill clears dst to a single solid color.
func Fill(dst *image.RGBA, c image.Image) {
	draw.Draw(dst, dst.Bounds(), c, image.Point{}, draw.Src)
}
