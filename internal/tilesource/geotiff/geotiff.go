package geotiff

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"
	"os"
	"sync"

	"github.com/joeblew999/tileserver/internal/imaging"
	"github.com/joeblew999/tileserver/internal/mercator"
	"github.com/joeblew999/tileserver/internal/sourcecfg"
	"github.com/joeblew999/tileserver/internal/tilesource"
)

// compressionNone is the only TIFF Compression value this reader
// understands: LZW/Deflate/PackBits predictors are a Non-goal (spec.md
// names no GeoTIFF test fixture that needs them, and nothing in the
// retrieved corpus implements a TIFF decompressor).
const compressionNone = 1

// Source serves a single tiled, uncompressed GeoTIFF as a zoom-agnostic
// EPSG:3857 (or EPSG:4326) raster, per spec.md section 4.5.
//
// Tile synthesis composites the GeoTIFF's own internal tiles -- which
// rarely align to the requested Web Mercator tile grid -- onto a scratch
// canvas and resamples down to the output size, following the same
// "read covering tiles, composite, resample" shape as
// pspoerri-geotiff2pmtiles's reader.go/resample.go.
type Source struct {
	mu   sync.Mutex
	cfg  sourcecfg.SourceConfig
	file *os.File
	hdr  Header
}

// New constructs an uninitialized GeoTIFF source for cfg.
func New(cfg sourcecfg.SourceConfig) *Source {
	return &Source{cfg: cfg}
}

// Init opens the file and parses its TIFF/GeoKey header.
func (s *Source) Init(ctx context.Context) error {
	f, err := os.Open(s.cfg.Location)
	if err != nil {
		return tilesource.BackendInitError("geotiff.Init", err)
	}
	hdr, err := readHeader(f)
	if err != nil {
		f.Close()
		return tilesource.BackendInitError("geotiff.Init", err)
	}
	if hdr.SamplesPerPix < 3 || hdr.SamplesPerPix > 4 {
		f.Close()
		return tilesource.BackendInitError("geotiff.Init", fmt.Errorf("unsupported SamplesPerPixel %d (want 3 or 4)", hdr.SamplesPerPix))
	}
	for _, bps := range hdr.BitsPerSample {
		if bps != 8 {
			f.Close()
			return tilesource.BackendInitError("geotiff.Init", fmt.Errorf("unsupported BitsPerSample %d (want 8)", bps))
		}
	}

	s.file = f
	s.hdr = hdr

	if s.cfg.Format == "" {
		s.cfg.Format = "png"
	}
	if s.cfg.ContentType == "" {
		s.cfg.ContentType = "image/png"
	}

	gb := s.geographicalBounds()
	s.cfg.Bounds = &gb

	if s.cfg.MinZoom == nil {
		min := int(s.nativeMinZoom())
		s.cfg.MinZoom = &min
	}
	if s.cfg.MaxZoom == nil {
		max := int(s.nativeMaxZoom())
		s.cfg.MaxZoom = &max
	}
	return nil
}

// nativeMaxZoom is the Web Mercator zoom whose tile resolution first
// matches or exceeds the raster's own per-pixel resolution: past this
// zoom, resampling the raster produces no additional detail. Grounded in
// pspoerri-geotiff2pmtiles's MaxZoomForResolution.
func (s *Source) nativeMaxZoom() uint32 {
	return zoomForGroundResolution(s.pixelSizeMeters())
}

// nativeMinZoom is the zoom at which a single Web Mercator tile covers
// roughly the raster's full width: below this zoom the raster occupies
// only a small, blurry fraction of the requested tile (spec.md section
// 4.5 step 2 / scenario S5).
func (s *Source) nativeMinZoom() uint32 {
	gb := s.geographicalBounds()
	widthMeters := mercator.LonToX(gb.MaxLon) - mercator.LonToX(gb.MinLon)
	if widthMeters <= 0 {
		return mercator.MinZoom
	}
	z := math.Log2(mercator.EarthCircumference / widthMeters)
	if z < float64(mercator.MinZoom) {
		return mercator.MinZoom
	}
	if z > float64(mercator.MaxZoom) {
		return mercator.MaxZoom
	}
	return uint32(z)
}

// pixelSizeMeters approximates the raster's ground resolution in meters,
// converting degrees-per-pixel to meters at the raster's center latitude
// for an EPSG:4326 source.
func (s *Source) pixelSizeMeters() float64 {
	if s.hdr.SRID == 3857 {
		return s.hdr.PixelWidth
	}
	gb := s.geographicalBounds()
	centerLat := (gb.MinLat + gb.MaxLat) / 2
	metersPerDegree := mercator.EarthCircumference / 360 * math.Cos(centerLat*math.Pi/180)
	return s.hdr.PixelWidth * metersPerDegree
}

func zoomForGroundResolution(pixelSizeMeters float64) uint32 {
	if pixelSizeMeters <= 0 {
		return mercator.MaxZoom
	}
	z := math.Log2(mercator.EarthCircumference / (pixelSizeMeters * mercator.TileSize))
	if z < float64(mercator.MinZoom) {
		return mercator.MinZoom
	}
	if z > float64(mercator.MaxZoom) {
		return mercator.MaxZoom
	}
	return uint32(z)
}

// nativeBounds returns the raster's own bounding rectangle in its native
// coordinate units: projected meters for EPSG:3857, degrees for
// EPSG:4326.
func (s *Source) nativeBounds() mercator.Bounds {
	minX := s.hdr.OriginX
	maxY := s.hdr.OriginY
	maxX := minX + float64(s.hdr.ImageWidth)*s.hdr.PixelWidth
	minY := maxY - float64(s.hdr.ImageHeight)*s.hdr.PixelHeight
	return mercator.Bounds{Left: minX, Bottom: minY, Right: maxX, Top: maxY}
}

// geographicalBounds reports the raster's extent in WGS84 degrees for
// capabilities/config purposes (spec.md section 3's "Raster properties").
func (s *Source) geographicalBounds() mercator.GeographicalBounds {
	nb := s.nativeBounds()
	if s.hdr.SRID == 4326 {
		return mercator.GeographicalBounds{MinLon: nb.Left, MinLat: nb.Bottom, MaxLon: nb.Right, MaxLat: nb.Top}
	}
	return mercator.GeographicalBoundsOf(nb)
}

// toNative converts a requested EPSG:3857 bound into the raster's native
// coordinate units. For a geographic (EPSG:4326) raster this treats the
// degree grid as locally linear, a standard simplification for resampling
// at a single output tile's resolution; it is not a general-purpose
// reprojection.
func (s *Source) toNative(b mercator.Bounds) mercator.Bounds {
	if s.hdr.SRID == 3857 {
		return b
	}
	return mercator.Bounds{
		Left:   mercator.XToLon(b.Left),
		Bottom: mercator.YToLat(b.Bottom),
		Right:  mercator.XToLon(b.Right),
		Top:    mercator.YToLat(b.Top),
	}
}

// GetTile synthesizes a single 256x256 output tile from the requested
// Web Mercator tile's bounds, per spec.md section 4.5's "requestedBounds,
// intersect, composite, resample" pipeline.
func (s *Source) GetTile(ctx context.Context, x, y, z uint32) ([]byte, bool, error) {
	min, max := s.Configuration().ZoomRange()
	if z < min || z > max {
		return nil, false, nil
	}

	requested := mercator.TileBounds(x, y, z)
	native := s.toNative(requested)
	raster := s.nativeBounds()

	if native.Right <= raster.Left || native.Left >= raster.Right ||
		native.Top <= raster.Bottom || native.Bottom >= raster.Top {
		return nil, false, nil
	}

	img, err := s.GetImagePart(ctx, mercator.TileSize, mercator.TileSize, requested, color.RGBA{})
	if err != nil {
		return nil, false, err
	}

	// JPEG output uses a fixed quality of 85; Service.JpegQuality is not
	// passed to this source.
	var data []byte
	if s.cfg.Format == "jpeg" || s.cfg.Format == "jpg" {
		data, err = imaging.EncodeJPEG(img, 85)
	} else {
		data, err = imaging.EncodePNG(img)
	}
	if err != nil {
		return nil, false, tilesource.FormatError("geotiff.GetTile", err)
	}
	return data, true, nil
}

// GetImagePart renders an arbitrary-size crop of the raster for the
// requested EPSG:3857 bbox, clipped against the raster's own extent and
// padded with bgColor where the request falls outside it. This is the
// entry point the WMS compositor (C6) calls per spec.md section 4.6 step
// 2 for a GeoTIFF layer.
func (s *Source) GetImagePart(ctx context.Context, width, height int, bbox mercator.Bounds, bgColor color.RGBA) (*image.RGBA, error) {
	native := s.toNative(bbox)
	raster := s.nativeBounds()

	out := image.NewRGBA(image.Rect(0, 0, width, height))
	imaging.Fill(out, &image.Uniform{C: bgColor})

	clipped := mercator.Bounds{
		Left:   maxF(native.Left, raster.Left),
		Right:  minF(native.Right, raster.Right),
		Bottom: maxF(native.Bottom, raster.Bottom),
		Top:    minF(native.Top, raster.Top),
	}
	if clipped.Right <= clipped.Left || clipped.Top <= clipped.Bottom {
		return out, nil
	}

	canvas, canvasBounds, err := s.compositeRegion(clipped)
	if err != nil {
		return nil, tilesource.BackendError("geotiff.GetImagePart", err)
	}

	// Map the clipped native bounds back into output pixel space so the
	// resampled crop lands at the right offset within out.
	px0 := int((clipped.Left - native.Left) / (native.Right - native.Left) * float64(width))
	px1 := int((clipped.Right - native.Left) / (native.Right - native.Left) * float64(width))
	py0 := int((native.Top - clipped.Top) / (native.Top - native.Bottom) * float64(height))
	py1 := int((native.Top - clipped.Bottom) / (native.Top - native.Bottom) * float64(height))
	if px1 <= px0 || py1 <= py0 {
		return out, nil
	}

	resampled := imaging.ResizeFromRect(canvas, canvasBounds, px1-px0, py1-py0)
	draw.Draw(out, image.Rect(px0, py0, px1, py1), resampled, image.Point{}, draw.Over)
	return out, nil
}

func maxF(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func minF(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

// compositeRegion reads every raster tile covering the native-unit bounds
// region and composites them onto a single scratch canvas sized to the
// covering pixel rectangle.
func (s *Source) compositeRegion(region mercator.Bounds) (*image.RGBA, image.Rectangle, error) {
	raster := s.nativeBounds()
	pxPerUnitX := float64(s.hdr.ImageWidth) / (raster.Right - raster.Left)
	pxPerUnitY := float64(s.hdr.ImageHeight) / (raster.Top - raster.Bottom)

	minPxX := int((region.Left - raster.Left) * pxPerUnitX)
	maxPxX := int((region.Right - raster.Left) * pxPerUnitX)
	minPxY := int((raster.Top - region.Top) * pxPerUnitY)
	maxPxY := int((raster.Top - region.Bottom) * pxPerUnitY)

	minPxX = clampInt(minPxX, 0, int(s.hdr.ImageWidth))
	maxPxX = clampInt(maxPxX, 0, int(s.hdr.ImageWidth))
	minPxY = clampInt(minPxY, 0, int(s.hdr.ImageHeight))
	maxPxY = clampInt(maxPxY, 0, int(s.hdr.ImageHeight))

	tileMinX := minPxX / int(s.hdr.TileWidth)
	tileMaxX := (maxPxX - 1) / int(s.hdr.TileWidth)
	tileMinY := minPxY / int(s.hdr.TileHeight)
	tileMaxY := (maxPxY - 1) / int(s.hdr.TileHeight)

	canvasW := (tileMaxX - tileMinX + 1) * int(s.hdr.TileWidth)
	canvasH := (tileMaxY - tileMinY + 1) * int(s.hdr.TileHeight)
	canvas := image.NewRGBA(image.Rect(0, 0, canvasW, canvasH))

	for ty := tileMinY; ty <= tileMaxY; ty++ {
		for tx := tileMinX; tx <= tileMaxX; tx++ {
			tileImg, err := s.readTile(tx, ty)
			if err != nil {
				return nil, image.Rectangle{}, err
			}
			ox := (tx - tileMinX) * int(s.hdr.TileWidth)
			oy := (ty - tileMinY) * int(s.hdr.TileHeight)
			imaging.Paste(canvas, tileImg, ox, oy)
		}
	}

	sub := image.Rect(
		minPxX-tileMinX*int(s.hdr.TileWidth),
		minPxY-tileMinY*int(s.hdr.TileHeight),
		maxPxX-tileMinX*int(s.hdr.TileWidth),
		maxPxY-tileMinY*int(s.hdr.TileHeight),
	)
	return canvas, sub, nil
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// readTile decodes the raw internal GeoTIFF tile at (tx, ty) into an RGBA
// image.
func (s *Source) readTile(tx, ty int) (*image.RGBA, error) {
	idx := ty*int(s.hdr.TilesAcross) + tx
	if idx < 0 || idx >= len(s.hdr.TileOffsets) {
		// A partial edge tile past the raster's tile grid: treat as blank.
		return image.NewRGBA(image.Rect(0, 0, int(s.hdr.TileWidth), int(s.hdr.TileHeight))), nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	n := int(s.hdr.TileByteCounts[idx])
	buf := make([]byte, n)
	if _, err := s.file.Seek(int64(s.hdr.TileOffsets[idx]), 0); err != nil {
		return nil, fmt.Errorf("geotiff: seek tile %d: %w", idx, err)
	}
	if _, err := readFull(s.file, buf); err != nil {
		return nil, fmt.Errorf("geotiff: read tile %d: %w", idx, err)
	}

	w, h := int(s.hdr.TileWidth), int(s.hdr.TileHeight)
	samples := int(s.hdr.SamplesPerPix)
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	expected := w * h * samples
	if len(buf) < expected {
		return img, nil
	}
	for py := 0; py < h; py++ {
		for px := 0; px < w; px++ {
			o := (py*w + px) * samples
			r, g, b := buf[o], buf[o+1], buf[o+2]
			a := byte(0xff)
			if samples == 4 {
				a = buf[o+3]
			}
			img.SetRGBA(px, py, color.RGBA{R: r, G: g, B: b, A: a})
		}
	}
	return img, nil
}

func readFull(f *os.File, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := f.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// Configuration returns the source record.
func (s *Source) Configuration() sourcecfg.SourceConfig {
	return s.cfg
}

var _ tilesource.Source = (*Source)(nil)
