package server

import (
	"encoding/json"
	"encoding/xml"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/joeblew999/tileserver/internal/mercator"
	"github.com/joeblew999/tileserver/internal/wmscompositor"
)

// writeTile fetches (x, y, z) from the named source and writes it, or a
// protocol-appropriate empty/error response, per spec.md section 6's exit
// codes.
func (s *Server) writeTile(w http.ResponseWriter, r *http.Request, layer string, x, y, z uint32) {
	src, ok := s.registry.Get(layer)
	if !ok {
		http.Error(w, "unknown layer", http.StatusNotFound)
		return
	}
	data, ok, err := src.GetTile(r.Context(), x, y, z)
	if err != nil {
		s.log.Warn("GetTile(%s,%d,%d,%d) failed: %v", layer, x, y, z, err)
		http.Error(w, "backend error", http.StatusInternalServerError)
		return
	}
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if ct := src.Configuration().ContentType; ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	w.Write(data)
}

// handleTMSService serves the top-level TMS service document (spec.md
// section 6): the actual XML templating is a mechanical concern the spec
// treats as external to the core; this emits a minimal valid document
// listing every registered layer.
func (s *Server) handleTMSService(w http.ResponseWriter, r *http.Request) {
	type tileMapEntry struct {
		Href, Title, SRS string
	}
	type services struct {
		XMLName  xml.Name `xml:"Services"`
		TileMaps []struct {
			Href  string `xml:"href,attr"`
			Title string `xml:"title,attr"`
			SRS   string `xml:"srs,attr"`
		} `xml:"TileMap"`
	}
	var doc services
	for _, l := range s.caps.Layers {
		doc.TileMaps = append(doc.TileMaps, struct {
			Href  string `xml:"href,attr"`
			Title string `xml:"title,attr"`
			SRS   string `xml:"srs,attr"`
		}{
			Href:  fmt.Sprintf("/tms/1.0.0/%s", l.ID),
			Title: l.Title,
			SRS:   l.SRS,
		})
	}
	writeXML(w, doc)
}

// handleTMS dispatches both the per-layer TMS document
// (/tms/1.0.0/{layer}) and single-tile requests
// (/tms/1.0.0/{layer}/{z}/{x}/{y}.{ext}).
func (s *Server) handleTMS(w http.ResponseWriter, r *http.Request) {
	parts := splitPath(strings.TrimPrefix(r.URL.Path, "/tms/1.0.0/"))
	if len(parts) == 1 {
		s.handleTMSLayer(w, parts[0])
		return
	}
	if len(parts) != 4 {
		http.Error(w, "bad TMS tile path", http.StatusBadRequest)
		return
	}
	layer := parts[0]
	z, x, y, ok := parseZXYExt(parts[1], parts[2], parts[3])
	if !ok {
		http.Error(w, "bad tile coordinates", http.StatusBadRequest)
		return
	}
	// TMS addressing is south-origin; the registry's Source contract is
	// XYZ (north-origin), so flip before calling.
	s.writeTile(w, r, layer, x, mercator.FlipY(y, z), z)
}

func (s *Server) handleTMSLayer(w http.ResponseWriter, layer string) {
	l, ok := s.caps.Layer(layer)
	if !ok {
		http.Error(w, "unknown layer", http.StatusNotFound)
		return
	}
	type tileSet struct {
		Order int    `xml:"order,attr"`
		Href  string `xml:"href,attr"`
	}
	type tileMap struct {
		XMLName  xml.Name  `xml:"TileMap"`
		Title    string    `xml:"Title"`
		SRS      string    `xml:"SRS"`
		TileSets []tileSet `xml:"TileSets>TileSet"`
	}
	doc := tileMap{Title: l.Title, SRS: l.SRS}
	for z := l.MinZoom; z <= l.MaxZoom; z++ {
		doc.TileSets = append(doc.TileSets, tileSet{Order: int(z), Href: fmt.Sprintf("/tms/1.0.0/%s/%d", layer, z)})
	}
	writeXML(w, doc)
}

// handleXYZ serves /xyz/{layer}/{z}/{x}/{y}.{ext}: Y is already slippy
// (north-origin), matching the registry's own convention, so no flip. A
// bare /xyz/{layer}.json instead serves a TileJSON description of the
// layer, the near-universal companion to slippy tile endpoints.
func (s *Server) handleXYZ(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/xyz/")
	if strings.HasSuffix(rest, ".json") && !strings.Contains(rest, "/") {
		s.handleTileJSON(w, strings.TrimSuffix(rest, ".json"))
		return
	}
	parts := splitPath(rest)
	if len(parts) != 4 {
		http.Error(w, "bad XYZ tile path", http.StatusBadRequest)
		return
	}
	layer := parts[0]
	z, x, y, ok := parseZXYExt(parts[1], parts[2], parts[3])
	if !ok {
		http.Error(w, "bad tile coordinates", http.StatusBadRequest)
		return
	}
	s.writeTile(w, r, layer, x, y, z)
}

// handleTileJSON serves a TileJSON 3.0.0-shaped description of layer, the
// self-describing document slippy-map clients fetch before requesting
// tiles.
func (s *Server) handleTileJSON(w http.ResponseWriter, layer string) {
	l, ok := s.caps.Layer(layer)
	if !ok {
		http.Error(w, "unknown layer", http.StatusNotFound)
		return
	}
	doc := struct {
		TileJSON string   `json:"tilejson"`
		Name     string   `json:"name"`
		Tiles    []string `json:"tiles"`
		Scheme   string   `json:"scheme"`
		MinZoom  uint32   `json:"minzoom"`
		MaxZoom  uint32   `json:"maxzoom"`
		Bounds   []float64 `json:"bounds,omitempty"`
	}{
		TileJSON: "3.0.0",
		Name:     l.Title,
		Tiles:    []string{fmt.Sprintf("/xyz/%s/{z}/{x}/{y}.%s", l.ID, extFor(l.Format))},
		Scheme:   "xyz",
		MinZoom:  l.MinZoom,
		MaxZoom:  l.MaxZoom,
	}
	if l.HasBounds {
		doc.Bounds = []float64{l.Bounds.MinLon, l.Bounds.MinLat, l.Bounds.MaxLon, l.Bounds.MaxLat}
	}
	w.Header().Set("Content-Type", "application/json")
	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Write(out)
}

func extFor(format string) string {
	if format == "" {
		return "png"
	}
	return format
}

// handleWMTSRest serves
// /wmts/tile/1.0.0/{layer}/{style}/{tilematrixset}/{z}/{y}/{x}.{ext} --
// note the z/y/x ordering, which differs from TMS/XYZ's z/x/y.
func (s *Server) handleWMTSRest(w http.ResponseWriter, r *http.Request) {
	parts := splitPath(strings.TrimPrefix(r.URL.Path, "/wmts/tile/1.0.0/"))
	if len(parts) != 6 {
		http.Error(w, "bad WMTS REST tile path", http.StatusBadRequest)
		return
	}
	layer := parts[0]
	z, y, x, ok := parseZXYExt(parts[3], parts[4], parts[5])
	if !ok {
		http.Error(w, "bad tile coordinates", http.StatusBadRequest)
		return
	}
	s.writeTile(w, r, layer, x, y, z)
}

// handleWMTSKVP dispatches GetCapabilities/GetTile requests sent as query
// parameters to /wmts.
func (s *Server) handleWMTSKVP(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	switch strings.ToUpper(q.Get("request")) {
	case "GETCAPABILITIES", "":
		writeXML(w, s.wmtsCapabilitiesDoc())
	case "GETTILE":
		layer := q.Get("layer")
		z, err1 := strconv.ParseUint(q.Get("tilematrix"), 10, 32)
		y, err2 := strconv.ParseUint(q.Get("tilerow"), 10, 32)
		x, err3 := strconv.ParseUint(q.Get("tilecol"), 10, 32)
		if layer == "" || err1 != nil || err2 != nil || err3 != nil {
			http.Error(w, "bad GetTile parameters", http.StatusBadRequest)
			return
		}
		s.writeTile(w, r, layer, uint32(x), uint32(y), uint32(z))
	default:
		http.Error(w, "unsupported request", http.StatusBadRequest)
	}
}

func (s *Server) wmtsCapabilitiesDoc() any {
	type layerDoc struct {
		Identifier string `xml:"Identifier"`
		Title      string `xml:"Title"`
	}
	type capabilities struct {
		XMLName xml.Name   `xml:"Capabilities"`
		Layers  []layerDoc `xml:"Contents>Layer"`
	}
	var doc capabilities
	for _, l := range s.caps.Layers {
		doc.Layers = append(doc.Layers, layerDoc{Identifier: l.ID, Title: l.Title})
	}
	return doc
}

// handleWMS dispatches GetCapabilities/GetMap over KVP parameters
// (spec.md section 6's `/wms` surface).
func (s *Server) handleWMS(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	switch strings.ToUpper(q.Get("request")) {
	case "GETCAPABILITIES", "":
		writeXML(w, s.wmsCapabilitiesDoc())
	case "GETMAP":
		s.handleGetMap(w, r, q)
	default:
		s.writeServiceException(w, fmt.Errorf("unsupported request %q", q.Get("request")))
	}
}

func (s *Server) wmsCapabilitiesDoc() any {
	type layerDoc struct {
		Name  string `xml:"Name"`
		Title string `xml:"Title"`
		SRS   string `xml:"SRS"`
	}
	type capability struct {
		Layers []layerDoc `xml:"Layer"`
	}
	type wmsCapabilities struct {
		XMLName    xml.Name   `xml:"WMT_MS_Capabilities"`
		Capability capability `xml:"Capability"`
	}
	var doc wmsCapabilities
	for _, l := range s.caps.Layers {
		doc.Capability.Layers = append(doc.Capability.Layers, layerDoc{Name: l.ID, Title: l.Title, SRS: l.SRS})
	}
	return doc
}

func (s *Server) handleGetMap(w http.ResponseWriter, r *http.Request, q map[string][]string) {
	get := func(key string) string {
		if v, ok := q[key]; ok && len(v) > 0 {
			return v[0]
		}
		return ""
	}

	width, err1 := strconv.Atoi(get("width"))
	height, err2 := strconv.Atoi(get("height"))
	bbox, err3 := parseBBox(get("bbox"))
	format := get("format")
	if format == "" {
		format = "image/png"
	}
	layers := strings.Split(get("layers"), ",")

	if err1 != nil || err2 != nil || err3 != nil {
		s.writeServiceException(w, fmt.Errorf("malformed GetMap parameters"))
		return
	}
	if s.service.StrictLayers {
		for _, name := range layers {
			if _, ok := s.registry.Get(name); !ok {
				s.writeServiceException(w, fmt.Errorf("unknown layer %q", name))
				return
			}
		}
	}

	// WMS 1.3.0 renamed SRS to CRS and, for a geographic CRS, swaps the
	// bbox axis order to (miny,minx,maxy,maxx) -- spec.md section 3/6 and
	// the boundary case in section 8. 1.1.1 keeps (minx,miny,maxx,maxy)
	// regardless of SRS.
	version := get("version")
	crs := get("crs")
	if crs == "" {
		crs = get("srs")
	}
	if version == "1.3.0" && isGeographicAxisSwappedCRS(crs) {
		bbox = swapBoundsAxes(bbox)
		// The compositor works in EPSG:3857 meters; project the degrees.
		bbox = mercator.Bounds{
			Left: mercator.LonToX(bbox.Left), Bottom: mercator.LatToY(bbox.Bottom),
			Right: mercator.LonToX(bbox.Right), Top: mercator.LatToY(bbox.Top),
		}
	}

	req := wmscompositor.Request{
		Width: width, Height: height, Bbox: bbox,
		LayerNames:  layers,
		Format:      format,
		Transparent: strings.EqualFold(get("transparent"), "true"),
		JpegQuality: s.service.JpegQuality,
	}
	canvas, err := wmscompositor.Compose(r.Context(), s.registry, req)
	if err != nil {
		s.writeServiceException(w, err)
		return
	}
	data, err := wmscompositor.Encode(canvas, format, s.service.JpegQuality)
	if err != nil {
		s.writeServiceException(w, err)
		return
	}
	w.Header().Set("Content-Type", format)
	w.Write(data)
}

func (s *Server) writeServiceException(w http.ResponseWriter, err error) {
	type serviceException struct {
		Text string `xml:",chardata"`
	}
	type serviceExceptionReport struct {
		XMLName    xml.Name           `xml:"ServiceExceptionReport"`
		Exceptions []serviceException `xml:"ServiceException"`
	}
	w.Header().Set("Content-Type", "application/vnd.ogc.se_xml")
	w.WriteHeader(http.StatusOK)
	doc := serviceExceptionReport{Exceptions: []serviceException{{Text: err.Error()}}}
	out, _ := xml.MarshalIndent(doc, "", "  ")
	w.Write(out)
}

func writeXML(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "text/xml")
	out, err := xml.MarshalIndent(v, "", "  ")
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Write(out)
}

// isGeographicAxisSwappedCRS reports whether crs is a geographic reference
// system whose WMS 1.3.0 axis order is (lat,lon) rather than (lon,lat).
// EPSG:4326 is the only such CRS this server advertises; CRS:84 (also
// WGS84) keeps (lon,lat) order in 1.3.0 and needs no swap.
func isGeographicAxisSwappedCRS(crs string) bool {
	return strings.EqualFold(strings.TrimSpace(crs), "EPSG:4326")
}

// swapBoundsAxes corrects a bbox that was parsed as (minx,miny,maxx,maxy)
// but was actually supplied in (miny,minx,maxy,maxx) order.
func swapBoundsAxes(b mercator.Bounds) mercator.Bounds {
	return mercator.Bounds{Left: b.Bottom, Bottom: b.Left, Right: b.Top, Top: b.Right}
}

func parseBBox(s string) (mercator.Bounds, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return mercator.Bounds{}, fmt.Errorf("bbox must have 4 components")
	}
	vals := make([]float64, 4)
	for i, p := range parts {
		v, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return mercator.Bounds{}, fmt.Errorf("bad bbox component %q: %w", p, err)
		}
		vals[i] = v
	}
	return mercator.Bounds{Left: vals[0], Bottom: vals[1], Right: vals[2], Top: vals[3]}, nil
}

func splitPath(p string) []string {
	p = strings.Trim(p, "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}

// parseZXYExt parses three path segments as z, a, b and strips a trailing
// .{ext} from the last one.
func parseZXYExt(zStr, aStr, bExt string) (z, a, b uint32, ok bool) {
	bStr := bExt
	if i := strings.LastIndex(bExt, "."); i >= 0 {
		bStr = bExt[:i]
	}
	zv, err1 := strconv.ParseUint(zStr, 10, 32)
	av, err2 := strconv.ParseUint(aStr, 10, 32)
	bv, err3 := strconv.ParseUint(bStr, 10, 32)
	if err1 != nil || err2 != nil || err3 != nil {
		return 0, 0, 0, false
	}
	return uint32(zv), uint32(av), uint32(bv), true
}
