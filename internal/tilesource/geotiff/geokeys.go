package geotiff

import (
	"encoding/binary"
	"fmt"
	"os"
)

// GeoKey IDs this reader cares about (GeoTIFF spec section 6.2/6.3).
const (
	keyGTModelType    = 1024
	keyGeographicType = 2048
	keyProjectedCS    = 3072
)

const (
	gtModelTypeGeographic = 2
	gtModelTypeProjected  = 1
)

// geoKeys is the decoded GeoKeyDirectory: key ID -> raw unsigned value.
// Only SHORT-valued keys (location 0) matter for SRID resolution; this
// reader does not need the ASCII or DOUBLE GeoKey params arrays.
type geoKeys map[uint16]uint32

func readGeoKeys(f *os.File, order binary.ByteOrder, tags rawTags) (geoKeys, error) {
	dirVals, err := readLongArray(f, order, tags, tagGeoKeyDirectory)
	if err != nil {
		return nil, fmt.Errorf("geotiff: read GeoKeyDirectory: %w", err)
	}
	if len(dirVals) < 4 {
		return nil, fmt.Errorf("geotiff: missing GeoKeyDirectory")
	}
	// Header: KeyDirectoryVersion, KeyRevision, MinorRevision, NumberOfKeys.
	numKeys := dirVals[3]
	gk := make(geoKeys, numKeys)
	for i := uint64(0); i < numKeys; i++ {
		base := 4 + i*4
		if base+3 >= uint64(len(dirVals)) {
			break
		}
		keyID := uint16(dirVals[base])
		tiffTagLocation := dirVals[base+1]
		valueOffset := dirVals[base+2]
		if tiffTagLocation == 0 {
			// Value is inline in the directory itself (a SHORT).
			gk[keyID] = uint32(valueOffset)
		}
		// Keys stored in GeoDoubleParams/GeoAsciiParams (tiffTagLocation != 0)
		// are not needed for SRID resolution and are skipped.
	}
	return gk, nil
}

// srid resolves the model's EPSG code from GTModelTypeGeoKey plus the
// matching Geographic/Projected CS type key. Only EPSG:4326 (geographic)
// and EPSG:3857 (pseudo-Mercator, the one projected CS this server
// composites against) are supported -- anything else is a configuration
// error surfaced at Init, per spec.md section 4.5's "unsupported
// projection -> BackendInitError".
func (gk geoKeys) srid() (int, error) {
	modelType, ok := gk[keyGTModelType]
	if !ok {
		return 0, fmt.Errorf("geotiff: missing GTModelTypeGeoKey")
	}
	switch modelType {
	case gtModelTypeGeographic:
		cs, ok := gk[keyGeographicType]
		if !ok {
			return 0, fmt.Errorf("geotiff: missing GeographicTypeGeoKey")
		}
		if cs != 4326 {
			return 0, fmt.Errorf("geotiff: unsupported geographic CS %d (only EPSG:4326)", cs)
		}
		return 4326, nil
	case gtModelTypeProjected:
		cs, ok := gk[keyProjectedCS]
		if !ok {
			return 0, fmt.Errorf("geotiff: missing ProjectedCSTypeGeoKey")
		}
		if cs != 3857 && cs != 900913 {
			return 0, fmt.Errorf("geotiff: unsupported projected CS %d (only EPSG:3857)", cs)
		}
		return 3857, nil
	default:
		return 0, fmt.Errorf("geotiff: unsupported GTModelTypeGeoKey %d", modelType)
	}
}
