package ecs

import "fmt"

// Entity encodes a 32-bit slot index in the lower bits and a 32-bit
// generation in the upper bits. Destroying an entity bumps the generation
// of its slot, so stale copies of the id stop resolving.
type Entity uint64

func newEntity(index, generation uint32) Entity {
	return Entity(uint64(generation)<<32 | uint64(index))
}

func (e Entity) Index() uint32      { return uint32(e) }
func (e Entity) Generation() uint32 { return uint32(e >> 32) }

func (e Entity) String() string {
	return fmt.Sprintf("%dv%d", e.Index(), e.Generation())
}

// entityPool hands out slot indices with a free list.
type entityPool struct {
	generations []uint32
	alive       []bool
	freeList    []uint32
	count       int
}

func (p *entityPool) create() Entity {
	var idx uint32
	if n := len(p.freeList); n > 0 {
		idx = p.freeList[n-1]
		p.freeList = p.freeList[:n-1]
	} else {
		idx = uint32(len(p.generations))
		p.generations = append(p.generations, 0)
		p.alive = append(p.alive, false)
	}
	p.alive[idx] = true
	p.count++
	return newEntity(idx, p.generations[idx])
}

func (p *entityPool) contains(e Entity) bool {
	idx := e.Index()
	if int(idx) >= len(p.generations) {
		return false
	}
	return p.alive[idx] && p.generations[idx] == e.Generation()
}

func (p *entityPool) destroy(e Entity) {
	if !p.contains(e) {
		return
	}
	idx := e.Index()
	p.alive[idx] = false
	p.generations[idx]++
	p.freeList = append(p.freeList, idx)
	p.count--
}
