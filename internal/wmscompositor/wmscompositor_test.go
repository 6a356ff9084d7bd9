package wmscompositor

import (
	"image/color"
	"testing"

	"github.com/joeblew999/tileserver/internal/mercator"
)

func validRequest() Request {
	return Request{
		Width: 256, Height: 256,
		Bbox:       mercator.Bounds{Left: -1, Bottom: -1, Right: 1, Top: 1},
		LayerNames: []string{"base"},
		Format:     "image/png",
	}
}

func TestValidateAccepts(t *testing.T) {
	if err := validRequest().Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
}

func TestValidateRejectsBadDimensions(t *testing.T) {
	r := validRequest()
	r.Width = 0
	if err := r.Validate(); err == nil {
		t.Fatalf("Validate() = nil, want error for width=0")
	}
}

func TestValidateRejectsBadFormat(t *testing.T) {
	r := validRequest()
	r.Format = "image/gif"
	if err := r.Validate(); err == nil {
		t.Fatalf("Validate() = nil, want error for unsupported format")
	}
}

func TestValidateRejectsInvertedBbox(t *testing.T) {
	r := validRequest()
	r.Bbox = mercator.Bounds{Left: 1, Bottom: 1, Right: -1, Top: -1}
	if err := r.Validate(); err == nil {
		t.Fatalf("Validate() = nil, want error for inverted bbox")
	}
}

func TestValidateRejectsEmptyLayers(t *testing.T) {
	r := validRequest()
	r.LayerNames = nil
	if err := r.Validate(); err == nil {
		t.Fatalf("Validate() = nil, want error for empty layers")
	}
}

func TestFormatSupportsAlpha(t *testing.T) {
	if !formatSupportsAlpha("image/png") {
		t.Errorf("image/png should support alpha")
	}
	if formatSupportsAlpha("image/jpeg") {
		t.Errorf("image/jpeg should not support alpha")
	}
}

func TestProjectToOutputWholeBbox(t *testing.T) {
	req := mercator.Bounds{Left: 0, Bottom: 0, Right: 100, Top: 100}
	x0, y0, x1, y1 := projectToOutput(req, req, 256, 256)
	if x0 != 0 || y0 != 0 || x1 != 256 || y1 != 256 {
		t.Errorf("projectToOutput() = (%d,%d,%d,%d), want full canvas", x0, y0, x1, y1)
	}
}

func TestBgColorDefault(t *testing.T) {
	var c color.RGBA
	if c.A != 0 {
		t.Errorf("zero-value RGBA should be fully transparent")
	}
}
