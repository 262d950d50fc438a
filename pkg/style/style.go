// Package style describes map styles as configured under render.styles.
// Compiling a style is the render engine's business; this package only parses
// the metadata.
package style

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/nanoeti/maps-express/pkg/config"
)

// Info identifies one style: a name and the on-disk map definition it is
// compiled from. Version is a monotonic integer bumped by config pushes.
type Info struct {
	Name            string
	Path            string
	AllowGridRender bool
	Version         uint
}

var errNotObject = errors.New("styles config is not an object")

// ParseInfo reads a single style entry. Name and map path are mandatory.
func ParseInfo(name string, v *config.Value) (Info, error) {
	info := Info{Name: name}
	if info.Name == "" {
		return info, fmt.Errorf("invalid style node name: %q", name)
	}

	jpath := v.Child("map")
	if !jpath.IsString() {
		if jpath.IsNil() {
			return info, fmt.Errorf("no map path for style %s provided", info.Name)
		}
		return info, errors.New("map path should have string type")
	}
	info.Path = jpath.StringOr("")

	jgrid := v.Child("allow_utfgrid")
	if jgrid.IsBool() {
		info.AllowGridRender = jgrid.BoolOr(false)
	} else if !jgrid.IsNil() {
		zap.L().Warn("allow_utfgrid should have bool type", zap.String("style", info.Name))
	}

	jversion := v.Child("version")
	if jversion.IsIntegral() {
		info.Version = jversion.UintOr(0)
	}
	return info, nil
}

// ParseSet reads a whole render.styles object. Any invalid entry fails the
// parse; style updates are all-or-nothing.
func ParseSet(v *config.Value) ([]Info, error) {
	obj, ok := v.Object()
	if !ok {
		return nil, errNotObject
	}
	styles := make([]Info, 0, len(obj))
	for name, raw := range obj {
		info, err := ParseInfo(name, config.NewValue(raw))
		if err != nil {
			return nil, err
		}
		styles = append(styles, info)
	}
	return styles, nil
}
