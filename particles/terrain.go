package particles

import (
	"fmt"
	"time"

	"github.com/gogpu/landscape/elevation"
	"github.com/gogpu/landscape/graph"
	"github.com/gogpu/landscape/hydro"
)

// Terrain is a flow producer particles can move on.
type Terrain struct {
	Flow *hydro.Producer
	// Elevation gives the z of world positions. It is optional.
	Elevation *elevation.Producer
	// Level is the finest level at which flow tiles are looked up.
	Level int
}

func (t *Terrain) contains(p Vec2) bool {
	h := t.Flow.RootQuadSize() / 2
	return p.X >= -h && p.X < h && p.Y >= -h && p.Y < h
}

// noTerrain marks particles not associated with a terrain.
const noTerrain = -1

// TerrainLayer moves particles along the flow of their terrain. A particle
// is associated with the first terrain containing its world position; its
// terrain state is cleared when it leaves the terrain.
//
// It needs a LifeCycleLayer and a WorldLayer. With a ScreenLayer
// registered before it, particles that leave the flow while a neighbor is
// still inside are killed.
type TerrainLayer struct {
	BaseLayer
	Terrains    []Terrain
	SpeedFactor float64

	p      *Producer
	life   *LifeCycleLayer
	world  *WorldLayer
	screen *ScreenLayer

	pos     []Vec2
	vel     []Vec2
	status  []hydro.Status
	terrain []int
	first   []bool
	nbuf    []ID
}

// NewTerrainLayer creates a terrain layer over terrains.
func NewTerrainLayer(speedFactor float64, terrains ...Terrain) *TerrainLayer {
	return &TerrainLayer{Terrains: terrains, SpeedFactor: speedFactor}
}

func (l *TerrainLayer) Name() string    { return "terrain" }
func (l *TerrainLayer) RecordSize() int { return 2*16 + 1 + 4 + 1 }

// Init looks up the other layers.
func (l *TerrainLayer) Init(p *Producer, capacity int) error {
	life, ok := LayerOf[*LifeCycleLayer](p)
	if !ok {
		return fmt.Errorf("%w: terrain layer needs a lifecycle layer", ErrMissingLayer)
	}
	world, ok := LayerOf[*WorldLayer](p)
	if !ok {
		return fmt.Errorf("%w: terrain layer needs a world layer", ErrMissingLayer)
	}
	l.p, l.life, l.world = p, life, world
	l.screen, _ = LayerOf[*ScreenLayer](p)
	l.pos = make([]Vec2, capacity)
	l.vel = make([]Vec2, capacity)
	l.status = make([]hydro.Status, capacity)
	l.terrain = make([]int, capacity)
	l.first = make([]bool, capacity)
	return nil
}

// InitParticle clears the terrain state of a new particle.
func (l *TerrainLayer) InitParticle(id ID) { l.reset(id) }

func (l *TerrainLayer) reset(id ID) {
	l.pos[id], l.vel[id] = Vec2{}, Vec2{}
	l.status[id] = hydro.Outside
	l.terrain[id] = noTerrain
	l.first[id] = true
}

// FlowProducer returns the flow producer of the terrain of id,
// associating the particle with the terrain containing its world
// position if it has none. Returns nil if no terrain contains it.
func (l *TerrainLayer) FlowProducer(id ID) *hydro.Producer {
	if t := l.terrainOf(id); t != noTerrain {
		return l.Terrains[t].Flow
	}
	return nil
}

func (l *TerrainLayer) terrainOf(id ID) int {
	if l.terrain[id] != noTerrain {
		return l.terrain[id]
	}
	wp, ok := l.world.Position(id)
	if !ok {
		return noTerrain
	}
	for i := range l.Terrains {
		if l.Terrains[i].contains(wp.XY()) {
			l.terrain[id] = i
			l.pos[id] = wp.XY()
			return i
		}
	}
	return noTerrain
}

// Position returns the terrain position of id.
func (l *TerrainLayer) Position(id ID) Vec2 { return l.pos[id] }

// Velocity returns the last terrain velocity of id.
func (l *TerrainLayer) Velocity(id ID) Vec2 { return l.vel[id] }

// Status returns the flow status of id at its last velocity query.
func (l *TerrainLayer) Status(id ID) hydro.Status { return l.status[id] }

// Move advances every particle along the flow. A particle whose first
// velocity query is outside the flow is killed; later outside queries
// keep the previous velocity.
func (l *TerrainLayer) Move(dt time.Duration) {
	s := dt.Seconds() * l.SpeedFactor
	for id := range l.p.Storage().All() {
		ti := l.terrainOf(id)
		if ti == noTerrain {
			continue
		}
		t := &l.Terrains[ti]
		p := l.pos[id]
		v, status := graph.Point{}, hydro.Outside
		if ft := t.Flow.FindFlow(t.Level, p.X, p.Y); ft != nil {
			v, status = ft.Velocity(graph.Pt(p.X, p.Y))
		}
		if status == hydro.Outside {
			if l.first[id] {
				l.life.Kill(id)
				continue
			}
			v = graph.Pt(l.vel[id].X, l.vel[id].Y)
		}
		l.first[id] = false
		l.status[id] = status
		l.vel[id] = Vec2{v.X, v.Y}
		p = p.Add(l.vel[id].Mul(s))
		if !t.contains(p) {
			// Off the terrain: keep the last height, no elevation there.
			wp, _ := l.world.Position(id)
			l.world.SetPosition(id, Vec3{p.X, p.Y, wp.Z})
			l.reset(id)
			continue
		}
		l.pos[id] = p
		z := 0.0
		if t.Elevation != nil {
			z = elevation.Height(t.Elevation, t.Level, p.X, p.Y)
		}
		l.world.SetPosition(id, Vec3{p.X, p.Y, z})
	}
}

// RemoveOld turns outside particles near and kills those with a neighbor
// still inside the flow.
func (l *TerrainLayer) RemoveOld() {
	if l.screen == nil {
		return
	}
	for id := range l.p.Storage().All() {
		if l.terrain[id] == noTerrain || l.status[id] != hydro.Outside {
			continue
		}
		l.status[id] = hydro.Near
		l.nbuf = l.screen.Neighbors(id, l.nbuf[:0])
		for _, q := range l.nbuf {
			if q != id && l.terrain[q] != noTerrain && l.status[q] == hydro.Inside {
				l.life.Kill(id)
				break
			}
		}
	}
}
