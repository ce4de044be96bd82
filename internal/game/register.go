package game

import (
	"github.com/zeusync/worldcore/internal/core/ecs"
	"github.com/zeusync/worldcore/internal/core/systems"
)

// Register adds the spatial systems to exec. When source is non-nil a
// ChunkMap resource backed by it is inserted and chunk loading runs right
// after view updates.
func Register(g *Game, exec *systems.Executor[*Game], source ChunkSource) {
	exec.
		AddSystem("detect_chunk_crossings", DetectChunkCrossings).
		AddSystem("update_views", UpdateViews)

	if source == nil {
		return
	}
	ecs.InsertResource(g.Resources(), NewChunkMap(source))
	systems.Group[*ChunkMap](exec).AddSystem("load_chunks", LoadChunks)
}
