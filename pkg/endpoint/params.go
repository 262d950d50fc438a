// Package endpoint maps URL paths to rendering recipes. A path carries an
// ordered list of parameter variants; the tile handler tries them in order.
package endpoint

import (
	"go.uber.org/zap"

	"github.com/nanoeti/maps-express/pkg/config"
)

// Type selects how an endpoint produces tiles.
type Type int

const (
	StaticFiles Type = iota
	Render
	MVT
)

func (t Type) String() string {
	switch t {
	case StaticFiles:
		return "static"
	case Render:
		return "render"
	case MVT:
		return "mvt"
	}
	return "unknown"
}

const (
	defaultMinZoom = 0
	defaultMaxZoom = 19
)

// Params is one rendering recipe for a URL path.
type Params struct {
	Type Type

	MinZoom    int
	MaxZoom    int
	ZoomOffset int

	ProviderName string
	StyleName    string

	AllowLayersQuery bool

	// UTF-grid, only meaningful for Type == Render.
	AllowUTFGrid bool
	UTFGridKey   string

	MetatileWidth    uint
	MetatileHeight   uint
	AutoMetatileSize bool

	// MVT post-filtering, only meaningful for Type == MVT.
	FilterMapPath string
	FilterTable   *FilterTable
}

// parseParams reads one endpoint-param object. A nil result means the entry
// is invalid and must be dropped.
func parseParams(path string, v *config.Value) *Params {
	p := &Params{
		MinZoom:        v.Child("minzoom").IntOr(defaultMinZoom),
		MaxZoom:        v.Child("maxzoom").IntOr(defaultMaxZoom),
		ZoomOffset:     v.Child("data_zoom_offset").IntOr(0),
		ProviderName:   v.Child("data_provider").StringOr(""),
		StyleName:      v.Child("style").StringOr(""),
		AllowLayersQuery: v.Child("allow_layers_query").BoolOr(false),
		MetatileWidth:  1,
		MetatileHeight: 1,
	}

	switch typ := v.Child("type").StringOr("static"); typ {
	case "static":
		p.Type = StaticFiles
		if p.ProviderName == "" {
			zap.L().Error("no loader name for endpoint provided", zap.String("endpoint", path))
			return nil
		}
	case "render":
		p.Type = Render
		p.AllowUTFGrid = v.Child("allow_utfgrid").BoolOr(false)
		p.UTFGridKey = v.Child("utfgrid_key").StringOr("")
		if p.AllowUTFGrid && p.UTFGridKey == "" {
			zap.L().Error("no utfgrid key for endpoint provided", zap.String("endpoint", path))
			p.AllowUTFGrid = false
		}
		if p.StyleName == "" {
			zap.L().Error("no style name for endpoint provided", zap.String("endpoint", path))
			return nil
		}
	case "mvt":
		p.Type = MVT
		if p.ProviderName == "" {
			zap.L().Error("no loader name for endpoint provided", zap.String("endpoint", path))
			return nil
		}
		p.FilterMapPath = v.Child("filter_map").StringOr("")
		if p.FilterMapPath != "" {
			ft, err := LoadFilterTable(p.FilterMapPath, p.MaxZoom)
			if err != nil {
				zap.L().Error("filter table load failed",
					zap.String("endpoint", path), zap.String("path", p.FilterMapPath), zap.Error(err))
			} else {
				p.FilterTable = ft
			}
		}
	default:
		zap.L().Error("invalid type for endpoint provided",
			zap.String("type", typ), zap.String("endpoint", path))
		return nil
	}

	jsize := v.Child("metatile_size")
	switch {
	case jsize.IsString():
		if jsize.StringOr("") == "auto" {
			if p.ProviderName == "" {
				zap.L().Error("auto metatile size can be used only with data provider",
					zap.String("endpoint", path))
			} else {
				p.AutoMetatileSize = true
			}
		}
	case jsize.IsIntegral():
		size := jsize.UintOr(1)
		p.MetatileWidth = size
		p.MetatileHeight = size
	default:
		p.MetatileHeight = v.Child("metatile_height").UintOr(1)
		p.MetatileWidth = v.Child("metatile_width").UintOr(1)
	}
	return p
}

// serialize renders the params back into canonical config form.
func (p *Params) serialize() map[string]any {
	out := map[string]any{
		"type":    p.Type.String(),
		"minzoom": p.MinZoom,
		"maxzoom": p.MaxZoom,
	}
	if p.ZoomOffset != 0 {
		out["data_zoom_offset"] = p.ZoomOffset
	}
	if p.ProviderName != "" {
		out["data_provider"] = p.ProviderName
	}
	if p.StyleName != "" {
		out["style"] = p.StyleName
	}
	if p.AllowLayersQuery {
		out["allow_layers_query"] = true
	}
	if p.AllowUTFGrid {
		out["allow_utfgrid"] = true
		out["utfgrid_key"] = p.UTFGridKey
	}
	if p.FilterMapPath != "" {
		out["filter_map"] = p.FilterMapPath
	}
	switch {
	case p.AutoMetatileSize:
		out["metatile_size"] = "auto"
	case p.MetatileWidth != 1 || p.MetatileHeight != 1:
		out["metatile_width"] = p.MetatileWidth
		out["metatile_height"] = p.MetatileHeight
	}
	return out
}
