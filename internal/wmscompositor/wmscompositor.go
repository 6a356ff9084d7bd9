// Package wmscompositor implements the WMS GetMap compositor (spec.md
// section 4.6, C6): turns a (bbox, size, layers) request into a single
// composited raster image by stitching together whichever tile sources
// back the requested layers.
//
// Named separately from internal/tilesource/wms (the single-backend
// remote-WMS tile source, C4e) because the two are different things: that
// package speaks GetMap to an upstream server per tile; this package
// answers GetMap requests for this server's own layers.
//
// Back-to-front blending and per-layer tile-cover fetching are grounded in
// the teacher's internal/tiler/gotiler.go composition loop, generalized
// from "one MBTiles source, one zoom" to "N heterogeneous sources, a
// chosen zoom per raster layer".
package wmscompositor

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/joeblew999/tileserver/internal/imaging"
	"github.com/joeblew999/tileserver/internal/mercator"
	"github.com/joeblew999/tileserver/internal/tilesource"
	"github.com/joeblew999/tileserver/internal/tilesource/geotiff"
)

// MaxDimension bounds width/height per spec.md section 4.6's validation
// rule.
const MaxDimension = 32768

// Request is a validated GetMap request.
type Request struct {
	Width, Height int
	Bbox          mercator.Bounds
	LayerNames    []string
	Format        string // "image/png", "image/jpeg", or "image/tiff"
	Transparent   bool
	BgColor       color.RGBA
	JpegQuality   int
}

// Validate checks the GetMap parameters per spec.md section 4.6.
func (r Request) Validate() error {
	if r.Width < 1 || r.Width > MaxDimension || r.Height < 1 || r.Height > MaxDimension {
		return tilesource.ProtocolError("wmscompositor.Validate", fmt.Errorf("width/height must be in [1, %d]", MaxDimension))
	}
	switch r.Format {
	case "image/png", "image/jpeg", "image/tiff":
	default:
		return tilesource.ProtocolError("wmscompositor.Validate", fmt.Errorf("unsupported format %q", r.Format))
	}
	b := r.Bbox
	if !finite(b.Left) || !finite(b.Bottom) || !finite(b.Right) || !finite(b.Top) {
		return tilesource.ProtocolError("wmscompositor.Validate", fmt.Errorf("bbox must be finite"))
	}
	if b.Left >= b.Right || b.Bottom >= b.Top {
		return tilesource.ProtocolError("wmscompositor.Validate", fmt.Errorf("bbox requires minX<maxX and minY<maxY"))
	}
	if len(r.LayerNames) == 0 {
		return tilesource.ProtocolError("wmscompositor.Validate", fmt.Errorf("layers must be non-empty"))
	}
	return nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// Registry is the subset of tilesource.Registry the compositor needs.
type Registry interface {
	Get(id string) (tilesource.Source, bool)
}

// Compose renders req against the given registry. Unknown layer names are
// silently skipped, per spec.md section 9's Open Question resolution.
// A BackendError from any layer aborts the whole GetMap.
func Compose(ctx context.Context, reg Registry, req Request) (*image.RGBA, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	canvas := image.NewRGBA(image.Rect(0, 0, req.Width, req.Height))
	bg := req.BgColor
	if req.Transparent && formatSupportsAlpha(req.Format) {
		bg = color.RGBA{}
	}
	imaging.Fill(canvas, &image.Uniform{C: bg})

	for _, name := range req.LayerNames {
		src, ok := reg.Get(name)
		if !ok {
			continue
		}
		if err := compositeLayer(ctx, canvas, src, req); err != nil {
			return nil, err
		}
	}
	return canvas, nil
}

func formatSupportsAlpha(format string) bool {
	return format == "image/png" || format == "image/tiff"
}

func compositeLayer(ctx context.Context, canvas *image.RGBA, src tilesource.Source, req Request) error {
	if gt, ok := src.(*geotiff.Source); ok {
		img, err := gt.GetImagePart(ctx, req.Width, req.Height, req.Bbox, req.BgColor)
		if err != nil {
			return tilesource.BackendError("wmscompositor.compositeLayer", err)
		}
		imaging.Blend(canvas, img)
		return nil
	}

	cfg := src.Configuration()
	minZoom, maxZoom := cfg.ZoomRange()
	zoom := mercator.ZoomForWidth(req.Width, req.Bbox.Right-req.Bbox.Left, minZoom, maxZoom)
	tiles := mercator.MercatorTileCoordinates(req.Bbox, zoom)
	for _, t := range tiles {
		// x mod 2^z addresses the source tile even when the bbox's own
		// math put t.X outside [0, 2^z), giving antimeridian-wrapped
		// fetches continuous coverage (spec.md section 4.6 step 2).
		wrappedX := mercator.WrapX(int64(t.X), zoom)
		data, ok, err := src.GetTile(ctx, wrappedX, t.Y, zoom)
		if err != nil {
			return tilesource.BackendError("wmscompositor.compositeLayer", err)
		}
		if !ok {
			continue
		}
		img, err := imaging.Decode(data)
		if err != nil {
			return tilesource.FormatError("wmscompositor.compositeLayer", err)
		}

		tb := mercator.TileBounds(t.X, t.Y, zoom)
		px0, py0, px1, py1 := projectToOutput(tb, req.Bbox, req.Width, req.Height)
		if px1 <= px0 || py1 <= py0 {
			continue
		}
		resized := imaging.Resize(img, px1-px0, py1-py0)
		imaging.Paste(canvas, resized, px0, py0)
	}
	return nil
}

// projectToOutput maps a tile's projected bounds into output pixel space
// given the requested bbox and output size.
func projectToOutput(tileBounds, reqBbox mercator.Bounds, width, height int) (x0, y0, x1, y1 int) {
	sx := float64(width) / (reqBbox.Right - reqBbox.Left)
	sy := float64(height) / (reqBbox.Top - reqBbox.Bottom)

	x0 = int(math.Round((tileBounds.Left - reqBbox.Left) * sx))
	x1 = int(math.Round((tileBounds.Right - reqBbox.Left) * sx))
	y0 = int(math.Round((reqBbox.Top - tileBounds.Top) * sy))
	y1 = int(math.Round((reqBbox.Top - tileBounds.Bottom) * sy))
	return x0, y0, x1, y1
}

// Encode serializes canvas into the requested format.
func Encode(canvas *image.RGBA, format string, jpegQuality int) ([]byte, error) {
	switch format {
	case "image/png":
		return imaging.EncodePNG(canvas)
	case "image/jpeg":
		return imaging.EncodeJPEG(canvas, jpegQuality)
	case "image/tiff":
		return imaging.EncodeTIFF(canvas), nil
	default:
		return nil, fmt.Errorf("wmscompositor: unsupported encode format %q", format)
	}
}
