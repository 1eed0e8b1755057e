package preprocess

import (
	"bytes"
	"context"
	"errors"
	"image"
	stdcolor "image/color"
	"math"
	"testing"

	"github.com/gogpu/landscape/elevation"
	"github.com/gogpu/landscape/internal/color"
	"github.com/gogpu/landscape/sched"
	"github.com/gogpu/landscape/tile"
	"github.com/gogpu/landscape/tilefile"
)

func demReader(t *testing.T, w *tilefile.DEMWriter) *tilefile.DEMReader {
	t.Helper()
	var buf bytes.Buffer
	if err := w.Write(&buf); err != nil {
		t.Fatal(err)
	}
	r, err := tilefile.NewDEMReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatal(err)
	}
	return r
}

func colorReader(t *testing.T, w *tilefile.ColorWriter) *tilefile.ColorReader {
	t.Helper()
	var buf bytes.Buffer
	if err := w.Write(&buf); err != nil {
		t.Fatal(err)
	}
	r, err := tilefile.NewColorReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatal(err)
	}
	return r
}

// =============================================================================
// Heights
// =============================================================================

func TestBuildHeights_RoundTrip(t *testing.T) {
	const (
		n        = 1025
		tileSize = 192
	)
	values := make([]float32, n*n)
	for j := 0; j < n; j++ {
		for i := 0; i < n; i++ {
			values[j*n+i] = float32(300*math.Sin(float64(i)/97)*math.Cos(float64(j)/53) +
				0.25*float64((7*i+13*j)%17))
		}
	}
	src := NewGridSampler(values, n, n)
	w, stats, err := BuildHeights(src, HeightConfig{TileSize: tileSize, MinLevel: 3, MaxLevel: 2, ResidualScale: 1})
	if err != nil {
		t.Fatal(err)
	}
	h := w.Header()
	if got := h.TileCount() - int(h.MinLevel); got != 21 {
		t.Errorf("quadtree tiles = %d, want 21", got)
	}
	if stats.Tiles != 24 || stats.Overflows != 0 {
		t.Errorf("stats = %+v, want 24 tiles and no overflow", stats)
	}
	r := demReader(t, w)
	for l := 0; l < 3; l++ {
		if !r.HasTile(l, 0, 0) {
			t.Errorf("HasTile(%d, 0, 0) = false, want chain tile", l)
		}
	}

	chain := make([]float32, 29*29)
	if err := r.ChainTile(0, chain); err != nil {
		t.Fatal(err)
	}
	if got, want := chain[2*29+2], float32(math.Round(src.Sample(0, 0, 24))); got != want {
		t.Errorf("chain sample = %g, want %g", got, want)
	}

	s := sched.New(1)
	defer s.Close()
	size := tileSize + 2*tilefile.Border + 1
	res, err := elevation.NewResidualProducer(tile.NewCache("residual", tile.NewFloatStorage(size, 1, 16), s), r, 1)
	if err != nil {
		t.Fatal(err)
	}
	elev, err := elevation.NewProducer(elevation.Config{TileSize: tileSize, RootQuadSize: 768},
		tile.NewCache("elevation", tile.NewFloatStorage(size, 1, 16), s), res)
	if err != nil {
		t.Fatal(err)
	}
	worst := 0.0
	for ty := 0; ty < 4; ty++ {
		for tx := 0; tx < 4; tx++ {
			tl, err := elev.GetTile(tile.C(2, tx, ty), 1)
			if err != nil {
				t.Fatal(err)
			}
			s.Run(context.Background())
			if !tl.IsDone() {
				t.Fatalf("tile (2, %d, %d) not built", tx, ty)
			}
			got := tl.Slot().Floats()
			for k := 0; k < size; k++ {
				for m := 0; m < size; m++ {
					want := src.Sample(tx*tileSize+m-2, ty*tileSize+k-2, 4*tileSize)
					worst = math.Max(worst, math.Abs(float64(got[k*size+m])-float64(float32(want))))
				}
			}
			elev.PutTile(tl)
		}
	}
	if worst > 0.5+1e-3 {
		t.Errorf("reconstruction error = %g, want <= 0.5", worst)
	}
}

func TestBuildHeights_ConstantTiles(t *testing.T) {
	flat := HeightFunction(func(x, y float64) float64 { return 12 })
	w, stats, err := BuildHeights(flat, HeightConfig{TileSize: 8, MaxLevel: 2, ResidualScale: 0.5})
	if err != nil {
		t.Fatal(err)
	}
	if stats.ConstantTiles != 20 || stats.MaxResidual != 0 {
		t.Errorf("stats = %+v, want 20 constant tiles and no residual", stats)
	}
	r := demReader(t, w)
	root := make([]float32, 13*13)
	if err := r.ReadTile(0, 0, 0, root); err != nil {
		t.Fatal(err)
	}
	if root[0] != 12 {
		t.Errorf("root sample = %g, want 12", root[0])
	}
}

func TestBuildHeights_OverflowClamped(t *testing.T) {
	steep := HeightFunction(func(x, y float64) float64 { return 1e6 * x })
	w, stats, err := BuildHeights(steep, HeightConfig{TileSize: 4, MaxLevel: 1, ResidualScale: 1})
	if err != nil {
		t.Fatal(err)
	}
	if stats.Overflows == 0 || w.Overflows != stats.Overflows {
		t.Errorf("Overflows = %d (writer %d), want clamped samples counted", stats.Overflows, w.Overflows)
	}
	if r := demReader(t, w); !r.HasTile(1, 1, 1) {
		t.Error("tile with clamped samples not written")
	}
}

func TestBuildHeights_InvalidConfig(t *testing.T) {
	if _, _, err := BuildHeights(HeightFunction(func(x, y float64) float64 { return 0 }),
		HeightConfig{TileSize: 4, MaxLevel: -1}); !errors.Is(err, ErrConfig) {
		t.Errorf("BuildHeights() error = %v, want ErrConfig", err)
	}
}

// =============================================================================
// Cube
// =============================================================================

func newCube() *Cube {
	var c Cube
	for f := range c.Faces {
		c.Faces[f] = HeightFunction(func(x, y float64) float64 {
			return float64(100*f) + 10*x + 20*y
		})
	}
	return &c
}

func TestCube_BorderFromNeighbor(t *testing.T) {
	c := newCube()
	const n = 64
	for d := 1; d <= 2; d++ {
		for j := 0; j <= n; j++ {
			got := c.Face(FacePosZ).Sample(-d, j, n)
			want := c.Faces[FaceNegX].Sample(n-j, n-d, n)
			if got != want {
				t.Fatalf("Sample(-%d, %d) = %g, want %g", d, j, got, want)
			}
		}
	}
	if got, want := c.Face(FacePosZ).Sample(3, 4, n), c.Faces[FacePosZ].Sample(3, 4, n); got != want {
		t.Errorf("interior Sample() = %g, want %g", got, want)
	}
}

func TestCubeNeighbor_Symmetric(t *testing.T) {
	seen := map[int]bool{}
	for f := 0; f < 6; f++ {
		for s := SideLeft; s <= SideTop; s++ {
			g, turns := CubeNeighbor(f, s)
			if g == f || turns < 0 || turns > 3 {
				t.Fatalf("CubeNeighbor(%d, %d) = %d, %d", f, s, g, turns)
			}
			seen[turns] = true
			back := -1
			for s2 := SideLeft; s2 <= SideTop; s2++ {
				if g2, t2 := CubeNeighbor(g, s2); g2 == f {
					back = t2
				}
			}
			if back < 0 || (turns+back)%4 != 0 {
				t.Errorf("CubeNeighbor(%d, %d) turns %d, way back %d, want inverse rotations", f, s, turns, back)
			}
		}
	}
	if len(seen) < 2 {
		t.Errorf("quarter turns used = %v, want several", seen)
	}
	if g, turns := CubeNeighbor(FacePosZ, SideLeft); g != FaceNegX || turns != 1 {
		t.Errorf("CubeNeighbor(+Z, left) = %d, %d, want -X, 1", g, turns)
	}
}

func TestCube_TileBorders(t *testing.T) {
	c := newCube()
	const tileSize = 8
	cfg := HeightConfig{TileSize: tileSize, ResidualScale: 1}
	pz, _, err := BuildHeights(c.Face(FacePosZ), cfg)
	if err != nil {
		t.Fatal(err)
	}
	nx, _, err := BuildHeights(c.Face(FaceNegX), cfg)
	if err != nil {
		t.Fatal(err)
	}
	size := tileSize + 5
	a, b := make([]int16, size*size), make([]int16, size*size)
	if err := demReader(t, pz).ReadQuantized(0, 0, 0, a); err != nil {
		t.Fatal(err)
	}
	if err := demReader(t, nx).ReadQuantized(0, 0, 0, b); err != nil {
		t.Fatal(err)
	}
	// +Z sample (-d, j) is -X sample (n-j, n-d); samples are offset by
	// the border.
	for d := 1; d <= 2; d++ {
		for j := 0; j <= tileSize; j++ {
			got := a[(j+2)*size+2-d]
			want := b[(tileSize-d+2)*size+tileSize-j+2]
			if got != want {
				t.Fatalf("border sample (-%d, %d) = %d, want %d", d, j, got, want)
			}
		}
	}
}

// =============================================================================
// Colors
// =============================================================================

func gradient(n int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, n, n))
	for y := 0; y < n; y++ {
		for x := 0; x < n; x++ {
			img.SetNRGBA(x, y, stdcolor.NRGBA{R: uint8(4 * x), G: uint8(4 * y), B: 128, A: 255})
		}
	}
	return img
}

func uniform(n int, c stdcolor.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, n, n))
	for i := 0; i < n*n; i++ {
		img.Pix[4*i], img.Pix[4*i+1], img.Pix[4*i+2], img.Pix[4*i+3] = c.R, c.G, c.B, c.A
	}
	return img
}

func absDiff(a, b byte) int {
	if a > b {
		return int(a - b)
	}
	return int(b - a)
}

func TestBuildColors_Uniform(t *testing.T) {
	w, err := BuildColors(uniform(64, stdcolor.NRGBA{200, 100, 50, 255}), ColorConfig{
		TileSize: 16, MaxLevel: 2, Channels: 3, Space: color.Linear, Encoding: tilefile.EncodingDeflate,
	})
	if err != nil {
		t.Fatal(err)
	}
	r := colorReader(t, w)
	size := r.Header().StoredSize()
	pix := make([]byte, size*size*3)
	for l := 0; l <= 2; l++ {
		for ty := 0; ty < 1<<l; ty++ {
			for tx := 0; tx < 1<<l; tx++ {
				if err := r.ReadTile(l, tx, ty, pix); err != nil {
					t.Fatal(err)
				}
				for i := 0; i < size*size; i++ {
					if absDiff(pix[3*i], 200) > 1 || absDiff(pix[3*i+1], 100) > 1 || absDiff(pix[3*i+2], 50) > 1 {
						t.Fatalf("tile (%d, %d, %d) texel %d = %v, want (200, 100, 50)", l, tx, ty, i, pix[3*i:3*i+3])
					}
				}
			}
		}
	}
}

func TestBuildColors_DXT(t *testing.T) {
	w, err := BuildColors(uniform(32, stdcolor.NRGBA{255, 0, 0, 255}), ColorConfig{
		TileSize: 16, MaxLevel: 1, Channels: 3, Space: color.SRGB, DXT: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	r := colorReader(t, w)
	if r.Header().Flags&tilefile.FlagDXT == 0 {
		t.Fatal("header lacks FlagDXT")
	}
	size := r.Header().StoredSize()
	pix := make([]byte, size*size*3)
	if err := r.ReadTile(1, 1, 0, pix); err != nil {
		t.Fatal(err)
	}
	if absDiff(pix[0], 255) > 8 || pix[1] > 8 || pix[2] > 8 {
		t.Errorf("texel = %v, want red", pix[:3])
	}

	if _, err := BuildColors(uniform(32, stdcolor.NRGBA{}), ColorConfig{
		TileSize: 16, Channels: 3, DXT: true, ResidualStep: 1,
	}); !errors.Is(err, ErrConfig) {
		t.Errorf("DXT residual error = %v, want ErrConfig", err)
	}
}

func TestBuildColors_Residual(t *testing.T) {
	cfg := ColorConfig{TileSize: 16, MaxLevel: 2, Channels: 3, Space: color.Linear, Encoding: tilefile.EncodingDeflate}
	plain, err := BuildColors(gradient(64), cfg)
	if err != nil {
		t.Fatal(err)
	}
	cfg.ResidualStep = 1
	resid, err := BuildColors(gradient(64), cfg)
	if err != nil {
		t.Fatal(err)
	}
	pr, rr := colorReader(t, plain), colorReader(t, resid)
	h := rr.Header()
	size, border := h.StoredSize(), h.Border()
	n := size * size * 3

	root := make([]byte, n)
	if err := rr.ReadTile(0, 0, 0, root); err != nil {
		t.Fatal(err)
	}
	parent := bytesToFloats(root)
	up, rec := make([]float32, n), make([]float32, n)
	residual, want := make([]byte, n), make([]byte, n)
	for q := 0; q < 4; q++ {
		qx, qy := q%2, q/2
		tilefile.UpsampleTexels(parent, size, 3, border, qx, qy, up)
		if err := rr.ReadTile(1, qx, qy, residual); err != nil {
			t.Fatal(err)
		}
		ApplyColorResidual(up, residual, 1, rec)
		if err := pr.ReadTile(1, qx, qy, want); err != nil {
			t.Fatal(err)
		}
		for i := range want {
			if d := math.Abs(float64(rec[i]) - float64(want[i])); d > 0.5+1e-3 {
				t.Fatalf("tile (1, %d, %d) texel %d = %g, want %d", qx, qy, i, rec[i], want[i])
			}
		}
	}
}

// =============================================================================
// Aperture
// =============================================================================

func TestPackNormal(t *testing.T) {
	if got := PackNormal(0); got != 128 {
		t.Errorf("PackNormal(0) = %d, want 128", got)
	}
	if got := PackNormal(1); got != 255 {
		t.Errorf("PackNormal(1) = %d, want 255", got)
	}
	if got := PackNormal(-1); got != 0 {
		t.Errorf("PackNormal(-1) = %d, want 0", got)
	}
}

func TestBuildAperture(t *testing.T) {
	pit := HeightFunction(func(x, y float64) float64 {
		return 10 * math.Min(1, math.Hypot(x-0.5, y-0.5)/0.2)
	})
	w, err := BuildAperture(pit, ApertureConfig{TileSize: 8, MaxLevel: 1, Samples: 3, Size: 100})
	if err != nil {
		t.Fatal(err)
	}
	r := colorReader(t, w)
	if h := r.Header(); h.Channels != 3 {
		t.Fatalf("aperture channels = %d, want 3", h.Channels)
	}
	pix := make([]byte, 8*8*3)
	if err := r.ReadTile(0, 0, 0, pix); err != nil {
		t.Fatal(err)
	}
	texel := func(i, j int) []byte { return pix[(j*8+i)*3 : (j*8+i+1)*3] }
	// Channels are aperture, normal x, normal y.
	if c := texel(0, 0); c[0] != 255 || c[1] != 128 || c[2] != 128 {
		t.Errorf("flat corner texel = %v, want no occlusion and normal up", c)
	}
	if c := texel(4, 4); c[0] >= 255 {
		t.Errorf("pit center aperture = %d, want occluded", c[0])
	}
	// East of the center the slope rises along x, so the normal leans
	// towards -x.
	if c := texel(5, 4); c[1] >= 128 || c[2] != 128 {
		t.Errorf("east slope normal = (%d, %d), want x < 128 and y = 128", c[1], c[2])
	}
	if !r.HasTile(1, 1, 1) {
		t.Error("HasTile(1, 1, 1) = false")
	}
	if _, err := BuildAperture(pit, ApertureConfig{TileSize: 8}); !errors.Is(err, ErrConfig) {
		t.Errorf("BuildAperture() error = %v, want ErrConfig", err)
	}
}
