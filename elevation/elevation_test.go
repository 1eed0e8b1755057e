package elevation

import (
	"bytes"
	"context"
	"math"
	"testing"

	"github.com/gogpu/landscape/sched"
	"github.com/gogpu/landscape/tile"
	"github.com/gogpu/landscape/tilefile"
)

const testTileSize = 4

// buildDEM writes a file whose root holds h(i, j) = i + 2j in sample units
// and whose level 1 residuals are all 1.
func buildDEM(t *testing.T) *tilefile.DEMReader {
	t.Helper()
	h := tilefile.DEMHeader{MinLevel: 0, MaxLevel: 1, TileSize: testTileSize, Scale: 1}
	w, err := tilefile.NewDEMWriter(h)
	if err != nil {
		t.Fatal(err)
	}
	size := testTileSize + 5
	root := make([]int16, size*size)
	for j := 0; j < size; j++ {
		for i := 0; i < size; i++ {
			root[j*size+i] = int16(i + 2*j)
		}
	}
	if err := w.SetTile(0, 0, 0, root); err != nil {
		t.Fatal(err)
	}
	ones := make([]int16, size*size)
	for i := range ones {
		ones[i] = 1
	}
	for tx := 0; tx < 2; tx++ {
		for ty := 0; ty < 2; ty++ {
			if err := w.SetTile(1, tx, ty, ones); err != nil {
				t.Fatal(err)
			}
		}
	}
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

func newProducers(t *testing.T, withResidual bool) (*Producer, *sched.Scheduler) {
	t.Helper()
	s := sched.New(1)
	t.Cleanup(s.Close)
	size := testTileSize + 5
	var res *ResidualProducer
	if withResidual {
		var err error
		res, err = NewResidualProducer(tile.NewCache("residual", tile.NewFloatStorage(size, 1, 8), s), buildDEM(t), 1)
		if err != nil {
			t.Fatal(err)
		}
	}
	p, err := NewProducer(Config{TileSize: testTileSize, RootQuadSize: 8},
		tile.NewCache("elevation", tile.NewFloatStorage(size, 1, 8), s), res)
	if err != nil {
		t.Fatal(err)
	}
	return p, s
}

func TestNewProducer_Validation(t *testing.T) {
	s := sched.New(1)
	defer s.Close()
	if _, err := NewProducer(Config{TileSize: 5}, tile.NewCache("c", tile.NewFloatStorage(10, 1, 1), s), nil); err == nil {
		t.Error("odd tile size should be rejected")
	}
	if _, err := NewProducer(Config{TileSize: 4}, tile.NewCache("c", tile.NewFloatStorage(8, 1, 1), s), nil); err == nil {
		t.Error("storage of the wrong size should be rejected")
	}
}

func TestProducer_FlatWithoutResidual(t *testing.T) {
	p, s := newProducers(t, false)
	tl, err := p.GetTile(tile.C(2, 1, 3), 0)
	if err != nil {
		t.Fatal(err)
	}
	s.Run(context.Background())
	for _, v := range tl.Slot().Floats() {
		if v != 0 {
			t.Fatalf("sample = %v, want 0", v)
		}
	}
}

func TestProducer_HasTileAndPrefetch(t *testing.T) {
	p, s := newProducers(t, true)
	if !p.HasTile(tile.C(0, 0, 0)) || !p.HasTile(tile.C(3, 5, 2)) {
		t.Error("HasTile() = false for a valid coordinate")
	}
	if p.HasTile(tile.C(1, 2, 0)) {
		t.Error("HasTile() = true outside the grid")
	}
	if !p.PrefetchTile(tile.C(1, 0, 1), 0) {
		t.Fatal("PrefetchTile() = false")
	}
	s.Run(context.Background())
	if p.FindTile(tile.C(1, 0, 1), true) == nil {
		t.Error("prefetched tile should be done")
	}
}

func TestProducer_UpsamplePlusResidual(t *testing.T) {
	p, s := newProducers(t, true)
	tl, err := p.GetTile(tile.C(1, 1, 0), 0)
	if err != nil {
		t.Fatal(err)
	}
	s.Run(context.Background())
	if !tl.IsDone() {
		t.Fatal("tile not built")
	}

	root := p.FindTile(tile.C(0, 0, 0), true)
	if root == nil || root.Slot().Floats()[0] != 0 || root.Slot().Floats()[1] != 1 {
		t.Fatal("root should hold the absolute heights of the file")
	}

	size := testTileSize + 5
	got := tl.Slot().Floats()
	for j := 0; j < size; j++ {
		for i := 0; i < size; i++ {
			// The root is linear, so the upsample is exact.
			px := 2 + float64(testTileSize)/2 + float64(i-2)/2
			py := 2 + float64(j-2)/2
			want := px + 2*py + 1
			if math.Abs(float64(got[j*size+i])-want) > 1e-5 {
				t.Fatalf("sample (%d,%d) = %v, want %v", i, j, got[j*size+i], want)
			}
		}
	}
	if refs := p.ReferencedProducers(); len(refs) != 1 {
		t.Errorf("ReferencedProducers() = %v, want the residual producer", refs)
	}
}

func TestHeight(t *testing.T) {
	p, s := newProducers(t, true)
	root, _ := p.GetTile(tile.C(0, 0, 0), 0)
	s.Run(context.Background())
	defer p.PutTile(root)

	// Root sample (i, j) lies at x = -4 + (i-2)·2.
	if got := Height(p, 5, 0, 0); math.Abs(got-12) > 1e-5 {
		t.Errorf("Height(0, 0) = %v, want 12", got)
	}
	if got := Height(p, 5, -3, -4); math.Abs(got-(2.5+4)) > 1e-5 {
		t.Errorf("Height(-3, -4) = %v, want 6.5", got)
	}
	if got := Height(p, 5, 100, 0); got != 0 {
		t.Errorf("Height outside the root quad = %v, want 0", got)
	}

	child, _ := p.GetTile(tile.C(1, 0, 0), 0)
	s.Run(context.Background())
	defer p.PutTile(child)
	// (-2, -2) is child sample (4, 4), which coincides with root sample
	// (3, 3): 3 + 2·3 plus a residual of 1.
	if got := Height(p, 1, -2, -2); math.Abs(got-10) > 1e-5 {
		t.Errorf("Height(-2, -2) at level 1 = %v, want 10", got)
	}
}

func TestResidualProducer_HasTile(t *testing.T) {
	s := sched.New(1)
	defer s.Close()
	res, err := NewResidualProducer(tile.NewCache("r", tile.NewFloatStorage(9, 1, 2), s), buildDEM(t), 2)
	if err != nil {
		t.Fatal(err)
	}
	if !res.HasTile(tile.C(1, 1, 1)) || res.HasTile(tile.C(2, 0, 0)) {
		t.Error("HasTile() should follow the file levels")
	}
	tl, _ := res.GetTile(tile.C(1, 0, 1), 0)
	s.Run(context.Background())
	if tl.Slot().Floats()[0] != 2 {
		t.Errorf("scaled residual = %v, want 2", tl.Slot().Floats()[0])
	}
}
