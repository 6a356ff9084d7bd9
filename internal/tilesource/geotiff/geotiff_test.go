package geotiff

import (
	"context"
	"math"
	"testing"

	"github.com/joeblew999/tileserver/internal/mercator"
	"github.com/joeblew999/tileserver/internal/sourcecfg"
)

func testSource(hdr Header) *Source {
	return &Source{hdr: hdr}
}

func TestNativeBoundsProjected(t *testing.T) {
	s := testSource(Header{
		SRID: 3857, ImageWidth: 1000, ImageHeight: 1000,
		OriginX: 0, OriginY: 1000, PixelWidth: 1, PixelHeight: 1,
	})
	b := s.nativeBounds()
	want := mercator.Bounds{Left: 0, Bottom: 0, Right: 1000, Top: 1000}
	if b != want {
		t.Errorf("nativeBounds() = %+v, want %+v", b, want)
	}
}

func TestToNativePassthroughForProjected(t *testing.T) {
	s := testSource(Header{SRID: 3857})
	b := mercator.Bounds{Left: 1, Bottom: 2, Right: 3, Top: 4}
	if got := s.toNative(b); got != b {
		t.Errorf("toNative() = %+v, want passthrough %+v", got, b)
	}
}

func TestToNativeConvertsGeographic(t *testing.T) {
	s := testSource(Header{SRID: 4326})
	b := mercator.Bounds{
		Left: mercator.LonToX(10), Right: mercator.LonToX(20),
		Bottom: mercator.LatToY(10), Top: mercator.LatToY(20),
	}
	got := s.toNative(b)
	if math.Abs(got.Left-10) > 1e-6 || math.Abs(got.Right-20) > 1e-6 {
		t.Errorf("toNative() lon = [%f, %f], want [10, 20]", got.Left, got.Right)
	}
	if math.Abs(got.Bottom-10) > 1e-6 || math.Abs(got.Top-20) > 1e-6 {
		t.Errorf("toNative() lat = [%f, %f], want [10, 20]", got.Bottom, got.Top)
	}
}

func TestGetTileOutsideZoomRangeReturnsNone(t *testing.T) {
	min, max := 12, 18
	s := testSource(Header{
		SRID: 3857, ImageWidth: 1000, ImageHeight: 1000,
		OriginX: 0, OriginY: 1000, PixelWidth: 1, PixelHeight: 1,
	})
	s.cfg = sourcecfg.SourceConfig{MinZoom: &min, MaxZoom: &max}

	data, ok, err := s.GetTile(context.Background(), 0, 0, 10)
	if err != nil || ok || data != nil {
		t.Fatalf("GetTile at z=10 outside [%d,%d] = (%v,%v,%v), want (nil,false,nil)", min, max, data, ok, err)
	}
}

func TestNativeMaxZoomFinerResolutionGivesHigherZoom(t *testing.T) {
	coarse := testSource(Header{SRID: 3857, PixelWidth: 100})
	fine := testSource(Header{SRID: 3857, PixelWidth: 1})
	if fine.nativeMaxZoom() <= coarse.nativeMaxZoom() {
		t.Errorf("nativeMaxZoom(pixel=1) = %d, want > nativeMaxZoom(pixel=100) = %d",
			fine.nativeMaxZoom(), coarse.nativeMaxZoom())
	}
}

func TestNativeMinZoomExcludesLowZoomForSmallRaster(t *testing.T) {
	// A city-scale raster: a few kilometers wide, nowhere near the size of
	// a single world tile until well into double-digit zoom.
	s := testSource(Header{
		SRID: 3857, ImageWidth: 1000, ImageHeight: 1000,
		OriginX: 0, OriginY: 5000, PixelWidth: 5, PixelHeight: 5,
	})
	if min := s.nativeMinZoom(); min < 10 {
		t.Errorf("nativeMinZoom() = %d, want >= 10 for a 5km-wide raster", min)
	}
}

func TestCeilDiv(t *testing.T) {
	cases := []struct{ a, b, want uint32 }{
		{256, 256, 1}, {257, 256, 2}, {0, 256, 0}, {512, 256, 2},
	}
	for _, c := range cases {
		if got := ceilDiv(c.a, c.b); got != c.want {
			t.Errorf("ceilDiv(%d, %d) = %d, want %d", c.a, c.b, got, c.want)
		}
	}
}
