package geotiff

import "testing"

func TestGeoKeysSRID(t *testing.T) {
	tests := []struct {
		name    string
		gk      geoKeys
		want    int
		wantErr bool
	}{
		{"projected 3857", geoKeys{keyGTModelType: gtModelTypeProjected, keyProjectedCS: 3857}, 3857, false},
		{"projected web mercator alias", geoKeys{keyGTModelType: gtModelTypeProjected, keyProjectedCS: 900913}, 3857, false},
		{"geographic 4326", geoKeys{keyGTModelType: gtModelTypeGeographic, keyGeographicType: 4326}, 4326, false},
		{"unsupported projected", geoKeys{keyGTModelType: gtModelTypeProjected, keyProjectedCS: 32633}, 0, true},
		{"unsupported geographic", geoKeys{keyGTModelType: gtModelTypeGeographic, keyGeographicType: 4269}, 0, true},
		{"missing model type", geoKeys{}, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.gk.srid()
			if (err != nil) != tt.wantErr {
				t.Fatalf("srid() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("srid() = %d, want %d", got, tt.want)
			}
		})
	}
}
