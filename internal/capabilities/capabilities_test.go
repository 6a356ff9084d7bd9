package capabilities

import (
	"context"
	"testing"

	"github.com/joeblew999/tileserver/internal/sourcecfg"
	"github.com/joeblew999/tileserver/internal/tilesource"
)

type stubSource struct{ cfg sourcecfg.SourceConfig }

func (s *stubSource) Init(ctx context.Context) error { return nil }
func (s *stubSource) GetTile(ctx context.Context, x, y, z uint32) ([]byte, bool, error) {
	return nil, false, nil
}
func (s *stubSource) Configuration() sourcecfg.SourceConfig { return s.cfg }

func buildRegistry(t *testing.T, cfgs ...sourcecfg.SourceConfig) *tilesource.Registry {
	sources := make(map[string]tilesource.Source, len(cfgs))
	for _, c := range cfgs {
		sources[c.ID] = &stubSource{cfg: c}
	}
	reg, errs := tilesource.NewRegistry(context.Background(), sources, true)
	if len(errs) != 0 {
		t.Fatalf("NewRegistry() errs = %v", errs)
	}
	return reg
}

func TestBuildSortsLayersByID(t *testing.T) {
	reg := buildRegistry(t,
		sourcecfg.SourceConfig{ID: "zzz", Title: "Last"},
		sourcecfg.SourceConfig{ID: "aaa", Title: "First"},
	)
	m := Build(reg, "title", "abstract", nil)
	if len(m.Layers) != 2 {
		t.Fatalf("Build() layers = %d, want 2", len(m.Layers))
	}
	if m.Layers[0].ID != "aaa" || m.Layers[1].ID != "zzz" {
		t.Errorf("Build() order = [%s, %s], want [aaa, zzz]", m.Layers[0].ID, m.Layers[1].ID)
	}
}

func TestLayerFromConfigDefaultsTitleToID(t *testing.T) {
	reg := buildRegistry(t, sourcecfg.SourceConfig{ID: "noTitle"})
	m := Build(reg, "t", "a", nil)
	l, ok := m.Layer("noTitle")
	if !ok {
		t.Fatalf("Layer(%q) not found", "noTitle")
	}
	if l.Title != "noTitle" {
		t.Errorf("Title = %q, want fallback to ID", l.Title)
	}
	if l.SRS != "EPSG:3857" {
		t.Errorf("SRS = %q, want default EPSG:3857", l.SRS)
	}
}

func TestFilterBySRS(t *testing.T) {
	reg := buildRegistry(t,
		sourcecfg.SourceConfig{ID: "merc"},
		sourcecfg.SourceConfig{ID: "geo", SRS: "EPSG:4326"},
	)
	m := Build(reg, "t", "a", nil)
	merc := m.FilterBySRS("EPSG:3857")
	if len(merc) != 1 || merc[0].ID != "merc" {
		t.Errorf("FilterBySRS(EPSG:3857) = %+v, want just 'merc'", merc)
	}
}
