package server

import (
	"testing"

	"github.com/joeblew999/tileserver/internal/mercator"
)

func TestIsGeographicAxisSwappedCRS(t *testing.T) {
	cases := []struct {
		crs  string
		want bool
	}{
		{"EPSG:4326", true},
		{"epsg:4326", true},
		{" EPSG:4326 ", true},
		{"CRS:84", false},
		{"EPSG:3857", false},
		{"", false},
	}
	for _, c := range cases {
		if got := isGeographicAxisSwappedCRS(c.crs); got != c.want {
			t.Errorf("isGeographicAxisSwappedCRS(%q) = %v, want %v", c.crs, got, c.want)
		}
	}
}

func TestSwapBoundsAxes(t *testing.T) {
	// A 1.3.0 EPSG:4326 request supplies miny,minx,maxy,maxx; parseBBox
	// naively reads it as Left,Bottom,Right,Top, so swapping must recover
	// the correct lon/lat bounds.
	parsed := mercator.Bounds{Left: 10, Bottom: 20, Right: 30, Top: 40}
	got := swapBoundsAxes(parsed)
	want := mercator.Bounds{Left: 20, Bottom: 10, Right: 40, Top: 30}
	if got != want {
		t.Errorf("swapBoundsAxes(%+v) = %+v, want %+v", parsed, got, want)
	}
}
