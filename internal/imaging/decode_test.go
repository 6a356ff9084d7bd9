package imaging

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"
)

func TestToRGBAPreservesTransparency(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	src.Set(0, 0, color.NRGBA{R: 10, G: 20, B: 30, A: 0})
	src.Set(1, 0, color.NRGBA{R: 255, G: 0, B: 0, A: 255})

	out := ToRGBA(src)
	if a := out.RGBAAt(0, 0).A; a != 0 {
		t.Errorf("transparent source pixel got alpha %d, want 0", a)
	}
	if a := out.RGBAAt(1, 0).A; a != 255 {
		t.Errorf("opaque source pixel got alpha %d, want 255", a)
	}
}

func TestDecodeFullyTransparentPNGStaysTransparent(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	var buf bytes.Buffer
	if err := png.Encode(&buf, src); err != nil {
		t.Fatalf("encode fixture: %v", err)
	}

	out, err := Decode(buf.Bytes())
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if a := out.RGBAAt(0, 0).A; a != 0 {
		t.Errorf("decoded fully-transparent PNG got alpha %d, want 0", a)
	}
}
