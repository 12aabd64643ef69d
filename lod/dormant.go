package lod

import (
	"github.com/mlange-42/ark/ecs"

	"github.com/pthm-cable/swarm/components"
)

// dormantWorld stores dormant agents as single-component entities.
type dormantWorld struct {
	world  *ecs.World
	agents *ecs.Map1[components.Dormant]
	filter *ecs.Filter1[components.Dormant]

	entities []ecs.Entity // By agent ID, valid while the agent is dormant
	count    int

	// Wake scratch
	woken    []components.Dormant
	toRemove []ecs.Entity
}

func newDormantWorld(maxID int) *dormantWorld {
	world := ecs.NewWorld()
	return &dormantWorld{
		world:    world,
		agents:   ecs.NewMap1[components.Dormant](world),
		filter:   ecs.NewFilter1[components.Dormant](world),
		entities: make([]ecs.Entity, maxID),
	}
}

// add stores a copy of d.
func (dw *dormantWorld) add(d components.Dormant) {
	dw.entities[d.ID] = dw.agents.NewEntity(&d)
	dw.count++
}

// get returns a copy of dormant agent id. The caller must know id is dormant.
func (dw *dormantWorld) get(id uint32) components.Dormant {
	return *dw.agents.Get(dw.entities[id])
}

// setMask replaces the wake mask of dormant agent id.
func (dw *dormantWorld) setMask(id uint32, mask uint64) {
	dw.agents.Get(dw.entities[id]).WakeMask = mask
}

// remove deletes dormant agent id and returns its record.
func (dw *dormantWorld) remove(id uint32) components.Dormant {
	e := dw.entities[id]
	d := *dw.agents.Get(e)
	dw.world.RemoveEntity(e)
	dw.entities[id] = ecs.Entity{}
	dw.count--
	return d
}

// wake removes up to limit agents whose mask shares a bit with triggers and
// returns them. The returned slice is reused by the next call.
func (dw *dormantWorld) wake(triggers uint64, limit int) []components.Dormant {
	dw.woken = dw.woken[:0]
	dw.toRemove = dw.toRemove[:0]
	if triggers == 0 || limit <= 0 || dw.count == 0 {
		return dw.woken
	}

	// First pass: collect matches (must complete before modifying)
	query := dw.filter.Query()
	for query.Next() {
		d := query.Get()
		if d.WakeMask&triggers == 0 {
			continue
		}
		dw.woken = append(dw.woken, *d)
		dw.toRemove = append(dw.toRemove, query.Entity())
		if len(dw.woken) >= limit {
			query.Close()
			break
		}
	}

	// Second pass: remove entities (query iteration complete)
	for i, e := range dw.toRemove {
		dw.world.RemoveEntity(e)
		dw.entities[dw.woken[i].ID] = ecs.Entity{}
	}
	dw.count -= len(dw.toRemove)
	return dw.woken
}
