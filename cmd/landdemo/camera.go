package main

import (
	"github.com/gogpu/landscape/elevation"
	"github.com/gogpu/landscape/graph"
	"github.com/gogpu/landscape/particles"
)

// topDown is an orthographic camera looking down at the terrain. Screen
// depth is the terrain height.
type topDown struct {
	cx, cy float64
	scale  float64 // world units per pixel
	w, h   int
}

func (c *topDown) Viewport() (int, int) { return c.w, c.h }

func (c *topDown) WorldToScreen(p particles.Vec3) (particles.Vec3, bool) {
	return particles.Vec3{
		X: (p.X-c.cx)/c.scale + float64(c.w)/2,
		Y: (p.Y-c.cy)/c.scale + float64(c.h)/2,
		Z: p.Z,
	}, true
}

func (c *topDown) ScreenToWorld(s particles.Vec3) particles.Vec3 {
	return particles.Vec3{
		X: c.cx + (s.X-float64(c.w)/2)*c.scale,
		Y: c.cy + (s.Y-float64(c.h)/2)*c.scale,
		Z: s.Z,
	}
}

// Bounds returns the world box seen by the camera.
func (c *topDown) Bounds() graph.Box {
	hw, hh := float64(c.w)/2*c.scale, float64(c.h)/2*c.scale
	return graph.NewBox(c.cx-hw, c.cy-hh, c.cx+hw, c.cy+hh)
}

// terrainDepth reads depths from the elevation tiles held by the frame.
type terrainDepth struct {
	cam   *topDown
	elev  *elevation.Producer
	level int
}

func (d *terrainDepth) height(x, y float64) float32 {
	p := d.cam.ScreenToWorld(particles.Vec3{X: x, Y: y})
	return float32(elevation.Height(d.elev, d.level, p.X, p.Y))
}

func (d *terrainDepth) ReadAll() ([]float32, error) {
	buf := make([]float32, d.cam.w*d.cam.h)
	for j := 0; j < d.cam.h; j++ {
		for i := 0; i < d.cam.w; i++ {
			buf[j*d.cam.w+i] = d.height(float64(i)+0.5, float64(j)+0.5)
		}
	}
	return buf, nil
}

func (d *terrainDepth) Sample(pts []particles.Vec2) ([]float32, error) {
	out := make([]float32, len(pts))
	for i, p := range pts {
		out[i] = d.height(p.X, p.Y)
	}
	return out, nil
}
