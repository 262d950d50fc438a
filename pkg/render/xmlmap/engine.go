// Package xmlmap is the built-in render engine. It compiles XML map
// definitions (background color plus named layers) and rasterizes tiles to
// PNG. It exists to keep the orchestration core runnable without an external
// rendering toolkit; the Engine interface is where a real one plugs in.
package xmlmap

import (
	"bytes"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"strconv"
	"strings"

	"github.com/nanoeti/maps-express/pkg/render"
	"github.com/nanoeti/maps-express/pkg/style"
	"github.com/nanoeti/maps-express/pkg/tile"
)

const tileSize = 256

type Engine struct{}

func New() *Engine {
	return &Engine{}
}

type mapDef struct {
	XMLName    xml.Name `xml:"Map"`
	Background string   `xml:"background-color,attr"`
	Layers     []struct {
		Name string `xml:"name,attr"`
	} `xml:"Layer"`
}

// Load reads and compiles the map definition at info.Path.
func (e *Engine) Load(info style.Info) (render.Style, error) {
	raw, err := os.ReadFile(info.Path)
	if err != nil {
		return nil, fmt.Errorf("read map %s: %w", info.Path, err)
	}
	var def mapDef
	if err := xml.Unmarshal(raw, &def); err != nil {
		return nil, fmt.Errorf("parse map %s: %w", info.Path, err)
	}
	bg, err := parseColor(def.Background)
	if err != nil {
		return nil, fmt.Errorf("map %s: %w", info.Path, err)
	}
	layers := make([]string, 0, len(def.Layers))
	for _, l := range def.Layers {
		if l.Name != "" {
			layers = append(layers, l.Name)
		}
	}
	return &compiled{name: info.Name, bg: bg, layers: layers}, nil
}

type compiled struct {
	name   string
	bg     color.NRGBA
	layers []string
}

func (c *compiled) Render(req *render.RenderRequest) (render.Result, error) {
	meta := req.Meta
	if meta.Width == 0 || meta.Height == 0 {
		meta = tile.Single()
	}
	img := image.NewNRGBA(image.Rect(0, 0, int(meta.Width)*tileSize, int(meta.Height)*tileSize))
	for i := range img.Pix {
		switch i % 4 {
		case 0:
			img.Pix[i] = c.bg.R
		case 1:
			img.Pix[i] = c.bg.G
		case 2:
			img.Pix[i] = c.bg.B
		case 3:
			img.Pix[i] = c.bg.A
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return render.Result{}, fmt.Errorf("encode tile %s: %w", req.Tile, err)
	}
	return render.Result{Data: buf.Bytes(), ContentType: "image/png"}, nil
}

// RenderGrid produces a UTF-grid for the tile: a 64×64 grid of empty cells.
// No features are rasterized, so req.GridKey does not affect the output.
func (c *compiled) RenderGrid(req *render.RenderRequest) (render.Result, error) {
	const gridSide = tileSize / 4
	rows := make([]string, gridSide)
	row := strings.Repeat(" ", gridSide)
	for i := range rows {
		rows[i] = row
	}
	grid := map[string]any{
		"grid": rows,
		"keys": []string{""},
		"data": map[string]any{},
	}
	out, err := json.Marshal(grid)
	if err != nil {
		return render.Result{}, fmt.Errorf("encode grid %s: %w", req.Tile, err)
	}
	return render.Result{Data: out, ContentType: "application/json"}, nil
}

func parseColor(s string) (color.NRGBA, error) {
	if s == "" {
		return color.NRGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}, nil
	}
	h := strings.TrimPrefix(s, "#")
	if len(h) != 6 && len(h) != 8 {
		return color.NRGBA{}, fmt.Errorf("bad background-color %q", s)
	}
	n, err := strconv.ParseUint(h, 16, 64)
	if err != nil {
		return color.NRGBA{}, fmt.Errorf("bad background-color %q", s)
	}
	c := color.NRGBA{A: 0xff}
	if len(h) == 8 {
		c.A = uint8(n)
		n >>= 8
	}
	c.B = uint8(n)
	c.G = uint8(n >> 8)
	c.R = uint8(n >> 16)
	return c, nil
}
