package xmlmap

import (
	"fmt"

	"github.com/nanoeti/maps-express/pkg/tile"
)

// Subtile derives dst from an already-built parent MVT. The target must lie
// inside the source tile's coverage.
//
// TODO: clip features to the target tile extent instead of returning the
// parent blob unchanged.
func (e *Engine) Subtile(parent []byte, src, dst tile.ID) ([]byte, error) {
	if len(parent) == 0 {
		return nil, fmt.Errorf("empty parent tile %s", src)
	}
	if !src.Contains(dst) {
		return nil, fmt.Errorf("tile %s is not covered by %s", dst, src)
	}
	out := make([]byte, len(parent))
	copy(out, parent)
	return out, nil
}
