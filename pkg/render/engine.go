package render

import (
	"github.com/nanoeti/maps-express/pkg/style"
	"github.com/nanoeti/maps-express/pkg/tile"
)

// Engine compiles map definitions into executable styles. Load may take
// arbitrarily long; it is only ever called on a worker goroutine.
type Engine interface {
	Load(info style.Info) (Style, error)
}

// Style is a compiled map definition, owned by a single worker.
type Style interface {
	Render(req *RenderRequest) (Result, error)
	RenderGrid(req *RenderRequest) (Result, error)
}

// Subtiler derives a child tile from a parent MVT blob.
type Subtiler interface {
	Subtile(parent []byte, src, dst tile.ID) ([]byte, error)
}
