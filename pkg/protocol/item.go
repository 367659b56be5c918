// Package protocol defines the contracts item implementations and plugins
// must satisfy.
package protocol

import (
	"log/slog"

	"github.com/weaveflow/weft/pkg/engine"
)

// ItemFactory builds executable items of one type. Implementations are
// registered in the registry under their ID, which matches the type tag
// workflow nodes carry.
type ItemFactory interface {
	Create(name string, config map[string]any, logger *slog.Logger) (engine.Item, error)
	ID() string
}
