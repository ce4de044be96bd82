package game

import "github.com/zeusync/worldcore/internal/core/spatial"

// Name labels an entity in logs.
type Name string

func (n Name) String() string { return string(n) }

// ViewDistance is the radius a participant asked for. UpdateViews
// rebuilds the View when either this or the entity's cell changes.
type ViewDistance int32

// lastChunk remembers the cell an entity was seen in on the previous tick.
type lastChunk spatial.ChunkPosition
