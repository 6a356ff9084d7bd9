// Package mercator implements the Web Mercator (EPSG:3857) tile arithmetic
// the rest of the server is built on: lon/lat <-> projected meters, tile
// bounds, the XYZ/TMS row-flip relationship, and the tile-cover query used
// by the WMS compositor.
//
// Tile math itself is delegated to paulmach/orb/maptile, the same
// geometry dependency the teacher repo already uses for its own tile
// pipeline (internal/tiler/gotiler); the pieces orb/maptile does not expose
// directly (the inverse projection formulas, tile-cover-of-a-bbox) are
// implemented here against orb's types.
package mercator

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
)

// TileSize is the fixed pixel size of a Web Mercator tile.
const TileSize = 256

// EarthRadius is the spherical radius (meters) used by the Web Mercator
// projection, matching the WGS84 semi-major axis.
const EarthRadius = 6378137.0

// EarthCircumference is the circumference of the EarthRadius sphere.
const EarthCircumference = 2 * math.Pi * EarthRadius

// MaxLatitude is the Web Mercator latitude clamp: beyond this the
// projection would produce infinite Y.
const MaxLatitude = 85.05112878

// MinZoom and MaxZoom bound the valid zoom range for the server.
const (
	MinZoom = 0
	MaxZoom = 24
)

// Bounds is a projected (or geographic, depending on context) rectangle.
type Bounds struct {
	Left, Bottom, Right, Top float64
}

// GeographicalBounds is a WGS84 degrees rectangle.
type GeographicalBounds struct {
	MinLon, MinLat, MaxLon, MaxLat float64
}

// LonToX projects a longitude in degrees to Web Mercator meters.
func LonToX(lon float64) float64 {
	return EarthRadius * lon * math.Pi / 180
}

// LatToY projects a latitude in degrees to Web Mercator meters.
func LatToY(lat float64) float64 {
	return EarthRadius * math.Log(math.Tan(math.Pi/4+lat*math.Pi/360))
}

// XToLon is the inverse of LonToX.
func XToLon(x float64) float64 {
	return x / EarthRadius * 180 / math.Pi
}

// YToLat is the inverse of LatToY.
func YToLat(y float64) float64 {
	return (2*math.Atan(math.Exp(y/EarthRadius)) - math.Pi/2) * 180 / math.Pi
}

// TileCount returns the number of tiles per axis at zoom z: 2^z.
func TileCount(z uint32) uint32 {
	return uint32(1) << z
}

// FlipY converts between the XYZ (0 = north) and TMS (0 = south) row
// conventions at zoom z. It is its own inverse.
func FlipY(y, z uint32) uint32 {
	return TileCount(z) - 1 - y
}

// TileBounds returns the projected (EPSG:3857) bounds of the XYZ tile
// (x, y, z).
func TileBounds(x, y, z uint32) Bounds {
	b := maptile.New(x, y, maptile.Zoom(z)).Bound()
	return Bounds{
		Left:   LonToX(b.Min[0]),
		Bottom: LatToY(b.Min[1]),
		Right:  LonToX(b.Max[0]),
		Top:    LatToY(b.Max[1]),
	}
}

// GeographicalBoundsOf converts projected bounds to a geographical
// (WGS84 degrees) rectangle using the standard inverse Web Mercator
// formulas.
func GeographicalBoundsOf(b Bounds) GeographicalBounds {
	return GeographicalBounds{
		MinLon: XToLon(b.Left),
		MinLat: YToLat(b.Bottom),
		MaxLon: XToLon(b.Right),
		MaxLat: YToLat(b.Top),
	}
}

// MercatorTileCoordinates returns every XYZ tile at zoom whose extent
// intersects bbox (projected EPSG:3857 meters). A point exactly on a tile
// boundary is treated as belonging to the tile to its east (vertical
// boundary) or south (horizontal boundary), following orb/maptile.At's
// floor-based convention.
func MercatorTileCoordinates(bbox Bounds, zoom uint32) []maptile.Tile {
	minLon, minLat := XToLon(bbox.Left), YToLat(bbox.Bottom)
	maxLon, maxLat := XToLon(bbox.Right), YToLat(bbox.Top)

	minTile := maptile.At(orb.Point{minLon, maxLat}, maptile.Zoom(zoom))
	maxTile := maptile.At(orb.Point{maxLon, minLat}, maptile.Zoom(zoom))

	minX, maxX := minTile.X, maxTile.X
	if minX > maxX {
		minX, maxX = maxX, minX
	}
	minY, maxY := minTile.Y, maxTile.Y
	if minY > maxY {
		minY, maxY = maxY, minY
	}

	n := TileCount(zoom)
	var tiles []maptile.Tile
	for x := minX; x <= maxX; x++ {
		for y := minY; y <= maxY; y++ {
			if x >= n || y >= n {
				continue
			}
			tiles = append(tiles, maptile.New(x, y, maptile.Zoom(zoom)))
		}
	}
	return tiles
}

// WrapX wraps a tile column into [0, 2^z) to support antimeridian
// addressing in the WMS compositor.
func WrapX(x int64, z uint32) uint32 {
	n := int64(TileCount(z))
	x %= n
	if x < 0 {
		x += n
	}
	return uint32(x)
}

// ZoomForWidth picks the zoom level at which one source tile maps to
// approximately one output pixel along the longer axis of a GetMap
// request, per spec.md section 4.6's proposed heuristic.
func ZoomForWidth(width int, bboxWidth float64, minZoom, maxZoom uint32) uint32 {
	if bboxWidth <= 0 || width <= 0 {
		return minZoom
	}
	raw := math.Log2(float64(width) / (bboxWidth * TileSize / EarthCircumference))
	z := int(math.Round(raw))
	if z < int(minZoom) {
		z = int(minZoom)
	}
	if z > int(maxZoom) {
		z = int(maxZoom)
	}
	return uint32(z)
}
