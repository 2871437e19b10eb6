package world

import (
	"github.com/zeusync/cubenav/internal/core/connectivity"
	"github.com/zeusync/cubenav/internal/core/obstruction"
	"github.com/zeusync/cubenav/internal/core/orientation"
	"github.com/zeusync/cubenav/internal/core/tiles"
)

// Event types published on the bus.
const (
	EventGravityChanged   = "world.gravity_changed"
	EventTicked           = "world.ticked"
	EventTileDestroyed    = "tile.destroyed"
	EventObstructionBegan = "obstruction.began"
	EventObstructionEnded = "obstruction.ended"
)

const eventSource = "world"

// GravityChanged is the payload of EventGravityChanged.
type GravityChanged struct {
	From orientation.Orientation `json:"from"`
	To   orientation.Orientation `json:"to"`
}

// Ticked is the payload of EventTicked.
type Ticked struct {
	Tick  uint64                 `json:"tick"`
	Stats connectivity.TickStats `json:"stats"`
}

// TileDestroyed is the payload of EventTileDestroyed.
type TileDestroyed struct {
	Tile  tiles.Handle  `json:"tile"`
	Group tiles.GroupID `json:"group"`
}

// ObstructionChanged is the payload of both obstruction events. Tiles lists
// the tiles held after a begin and the tiles restored after an end.
type ObstructionChanged struct {
	Source obstruction.SourceID `json:"source"`
	Tiles  []tiles.Handle       `json:"tiles"`
}
