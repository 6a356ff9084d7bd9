package imaging

import (
	"fmt"
	"image/color"
	"strconv"
	"strings"
)

var namedColors = map[string]color.RGBA{
	"white": {R: 255, G: 255, B: 255, A: 255},
	"black": {R: 0, G: 0, B: 0, A: 255},
}

// ParseBackgroundColor parses a background color spec in one of three
// forms: "#RRGGBB", "0xAARRGGBB", or a named color ("white"/"black"), per
// spec.md section 4.7. When transparent is true and the spec carries no
// explicit alpha (the "#RRGGBB" and named forms), alpha defaults to 0;
// otherwise it defaults to 255.
func ParseBackgroundColor(spec string, transparent bool) (color.RGBA, error) {
	defaultAlpha := uint8(255)
	if transparent {
		defaultAlpha = 0
	}

	if spec == "" {
		return color.RGBA{A: defaultAlpha}, nil
	}

	switch {
	case strings.HasPrefix(spec, "#"):
		hex := strings.TrimPrefix(spec, "#")
		if len(hex) != 6 {
			return color.RGBA{}, fmt.Errorf("imaging: bad #RRGGBB color %q", spec)
		}
		v, err := strconv.ParseUint(hex, 16, 32)
		if err != nil {
			return color.RGBA{}, fmt.Errorf("imaging: bad #RRGGBB color %q: %w", spec, err)
		}
		return color.RGBA{
			R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v),
			A: defaultAlpha,
		}, nil

	case strings.HasPrefix(spec, "0x") || strings.HasPrefix(spec, "0X"):
		hex := spec[2:]
		if len(hex) != 8 {
			return color.RGBA{}, fmt.Errorf("imaging: bad 0xAARRGGBB color %q", spec)
		}
		v, err := strconv.ParseUint(hex, 16, 32)
		if err != nil {
			return color.RGBA{}, fmt.Errorf("imaging: bad 0xAARRGGBB color %q: %w", spec, err)
		}
		return color.RGBA{
			A: uint8(v >> 24), R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v),
		}, nil

	default:
		c, ok := namedColors[strings.ToLower(spec)]
		if !ok {
			return color.RGBA{}, fmt.Errorf("imaging: unknown named color %q", spec)
		}
		c.A = defaultAlpha
		return c, nil
	}
}
