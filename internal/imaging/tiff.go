package imaging

import (
	"bytes"
	"encoding/binary"
	"image"
)

// tiff tag IDs used by the minimal single-strip RGBA writer below.
const (
	tagImageWidth                = 256
	tagImageLength                = 257
	tagBitsPerSample              = 258
	tagCompression                = 259
	tagPhotometricInterpretation  = 262
	tagStripOffsets                = 273
	tagSamplesPerPixel             = 277
	tagRowsPerStrip                 = 278
	tagStripByteCounts               = 279
	tagPlanarConfig                   = 284
	tagExtraSamples                    = 338
)

const (
	typeShort uint16 = 3
	typeLong  uint16 = 4
)

type ifdEntry struct {
	tag      uint16
	typ      uint16
	count    uint32
	valueOff uint32 // either the inline value (left-justified for SHORT) or an offset
}

// EncodeTIFF writes img as a single-strip, uncompressed, little-endian RGBA
// TIFF: PhotometricInterpretation=RGB, ExtraSamples=1 (associated alpha),
// BitsPerSample=8,8,8,8 -- per spec.md section 4.6 step 3 and section 4.7.
//
// Hand-rolled over encoding/binary rather than a library, matching the
// corpus's own idiom for raw binary container formats (the teacher's
// internal/pmtiles header writer, pspoerri-geotiff2pmtiles's header.go).
func EncodeTIFF(img *image.RGBA) []byte {
	b := img.Bounds()
	w, h := uint32(b.Dx()), uint32(b.Dy())

	var buf bytes.Buffer
	order := binary.LittleEndian

	// Header: byte order, magic 42, offset to first IFD.
	buf.WriteString("II")
	binary.Write(&buf, order, uint16(42))
	ifdOffsetPos := buf.Len()
	binary.Write(&buf, order, uint32(0)) // placeholder, patched below

	// Pixel data follows the header immediately.
	pixOffset := uint32(buf.Len())
	rowBytes := int(w) * 4
	for y := 0; y < int(h); y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+rowBytes]
		buf.Write(row)
	}

	// BitsPerSample needs 4 SHORT values; TIFF only inlines a value
	// when it fits in 4 bytes, so an array of 4 SHORTs (8 bytes) needs an
	// out-of-line offset.
	bitsPerSampleOffset := uint32(buf.Len())
	for i := 0; i < 4; i++ {
		binary.Write(&buf, order, uint16(8))
	}

	ifdOffset := uint32(buf.Len())

	entries := []ifdEntry{
		{tagImageWidth, typeLong, 1, w},
		{tagImageLength, typeLong, 1, h},
		{tagBitsPerSample, typeShort, 4, bitsPerSampleOffset},
		{tagCompression, typeShort, 1, 1}, // none
		{tagPhotometricInterpretation, typeShort, 1, 2}, // RGB
		{tagStripOffsets, typeLong, 1, pixOffset},
		{tagSamplesPerPixel, typeShort, 1, 4},
		{tagRowsPerStrip, typeLong, 1, h},
		{tagStripByteCounts, typeLong, 1, uint32(rowBytes) * h},
		{tagPlanarConfig, typeShort, 1, 1}, // chunky
		{tagExtraSamples, typeShort, 1, 1}, // associated alpha
	}

	binary.Write(&buf, order, uint16(len(entries)))
	for _, e := range entries {
		binary.Write(&buf, order, e.tag)
		binary.Write(&buf, order, e.typ)
		binary.Write(&buf, order, e.count)
		// SHORT values that fit in 4 bytes are left-justified within the
		// 4-byte value field; LONG values fill it exactly.
		if e.typ == typeShort && e.count == 1 {
			binary.Write(&buf, order, uint16(e.valueOff))
			binary.Write(&buf, order, uint16(0))
		} else {
			binary.Write(&buf, order, e.valueOff)
		}
	}
	binary.Write(&buf, order, uint32(0)) // no next IFD

	out := buf.Bytes()
	order.PutUint32(out[ifdOffsetPos:ifdOffsetPos+4], ifdOffset)
	return out
}
