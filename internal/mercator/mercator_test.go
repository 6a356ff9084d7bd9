package mercator

import (
	"math"
	"testing"
)

func TestFlipYInvolution(t *testing.T) {
	for z := uint32(0); z <= 10; z++ {
		n := TileCount(z)
		for y := uint32(0); y < n; y++ {
			if got := FlipY(FlipY(y, z), z); got != y {
				t.Fatalf("FlipY(FlipY(%d,%d),%d)=%d, want %d", y, z, z, got, y)
			}
		}
	}
}

func TestProjectionRoundTrip(t *testing.T) {
	lons := []float64{-179.9, -90, -45, 0, 45, 90, 179.9}
	lats := []float64{-85.0, -60, -30, 0, 30, 60, 85.0}

	for _, lon := range lons {
		if got := XToLon(LonToX(lon)); math.Abs(got-lon) > 1e-9 {
			t.Errorf("XToLon(LonToX(%v)) = %v, want %v", lon, got, lon)
		}
	}
	for _, lat := range lats {
		if got := YToLat(LatToY(lat)); math.Abs(got-lat) > 1e-9 {
			t.Errorf("YToLat(LatToY(%v)) = %v, want %v", lat, got, lat)
		}
	}
}

func TestTileCountAndWorldTile(t *testing.T) {
	if TileCount(0) != 1 {
		t.Fatalf("TileCount(0) = %d, want 1", TileCount(0))
	}
	if TileCount(3) != 8 {
		t.Fatalf("TileCount(3) = %d, want 8", TileCount(3))
	}
	b := TileBounds(0, 0, 0)
	if math.Abs(b.Left+EarthCircumference/2) > 1 {
		t.Errorf("tile(0,0,0) left = %v, want ~%v", b.Left, -EarthCircumference/2)
	}
}

func TestMercatorTileCoordinatesWorld(t *testing.T) {
	world := Bounds{
		Left:   -EarthCircumference / 2,
		Bottom: -EarthCircumference / 2,
		Right:  EarthCircumference / 2,
		Top:    EarthCircumference / 2,
	}
	tiles := MercatorTileCoordinates(world, 0)
	if len(tiles) != 1 {
		t.Fatalf("len(tiles) = %d, want 1", len(tiles))
	}
	if tiles[0].X != 0 || tiles[0].Y != 0 {
		t.Fatalf("tiles[0] = %+v, want (0,0,0)", tiles[0])
	}
}

func TestWrapX(t *testing.T) {
	cases := []struct {
		x    int64
		z    uint32
		want uint32
	}{
		{0, 2, 0},
		{4, 2, 0},
		{-1, 2, 3},
		{5, 2, 1},
	}
	for _, c := range cases {
		if got := WrapX(c.x, c.z); got != c.want {
			t.Errorf("WrapX(%d,%d) = %d, want %d", c.x, c.z, got, c.want)
		}
	}
}

func TestZoomForWidthClamped(t *testing.T) {
	z := ZoomForWidth(256, EarthCircumference, 0, 20)
	if z != 0 {
		t.Errorf("ZoomForWidth(256, world) = %d, want 0", z)
	}
	z = ZoomForWidth(256, EarthCircumference, 5, 20)
	if z != 5 {
		t.Errorf("ZoomForWidth(256, world) clamped = %d, want 5", z)
	}
}
