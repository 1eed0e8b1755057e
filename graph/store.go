package graph

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Header identifies a stored graph: the tile it was clipped for and the
// tile size of the configuration that produced it.
type Header struct {
	Level    int `yaml:"level"`
	Tx       int `yaml:"tx"`
	Ty       int `yaml:"ty"`
	TileSize int `yaml:"tile_size"`
}

type vertexDoc struct {
	X       float64 `yaml:"x"`
	Y       float64 `yaml:"y"`
	Control bool    `yaml:"c,omitempty"`
}

type nodeDoc struct {
	ID       NodeID  `yaml:"id"`
	Ancestor NodeID  `yaml:"ancestor,omitempty"`
	X        float64 `yaml:"x"`
	Y        float64 `yaml:"y"`
}

type curveDoc struct {
	ID       CurveID     `yaml:"id"`
	Ancestor CurveID     `yaml:"ancestor"`
	Start    NodeID      `yaml:"start"`
	End      NodeID      `yaml:"end"`
	Width    float64     `yaml:"width"`
	Type     int         `yaml:"type"`
	Left     AreaID      `yaml:"left,omitempty"`
	Right    AreaID      `yaml:"right,omitempty"`
	Vertices []vertexDoc `yaml:"vertices,flow"`
}

type edgeDoc struct {
	Curve    CurveID `yaml:"curve"`
	Reversed bool    `yaml:"reversed,omitempty"`
}

type areaDoc struct {
	ID       AreaID    `yaml:"id"`
	Ancestor AreaID    `yaml:"ancestor"`
	Info     int       `yaml:"info"`
	Edges    []edgeDoc `yaml:"edges,flow"`
}

type document struct {
	Header  `yaml:",inline"`
	Version uint64     `yaml:"version"`
	Nodes   []nodeDoc  `yaml:"nodes"`
	Curves  []curveDoc `yaml:"curves"`
	Areas   []areaDoc  `yaml:"areas,omitempty"`
}

// Encode writes g as a YAML document.
func Encode(w io.Writer, h Header, g *Graph) error {
	doc := document{Header: h, Version: g.version}
	for _, id := range g.NodeIDs() {
		n := g.nodes[id]
		doc.Nodes = append(doc.Nodes, nodeDoc{ID: id, Ancestor: n.Ancestor, X: n.Pos.X, Y: n.Pos.Y})
	}
	for _, id := range g.CurveIDs() {
		c := g.curves[id]
		cd := curveDoc{
			ID: id, Ancestor: c.Ancestor, Start: c.Start, End: c.End,
			Width: c.Width, Type: c.Type, Left: c.Left, Right: c.Right,
		}
		for _, v := range c.Vertices {
			cd.Vertices = append(cd.Vertices, vertexDoc{X: v.P.X, Y: v.P.Y, Control: v.Control})
		}
		doc.Curves = append(doc.Curves, cd)
	}
	for _, id := range g.AreaIDs() {
		a := g.areas[id]
		ad := areaDoc{ID: id, Ancestor: a.Ancestor, Info: a.Info}
		for _, e := range a.Edges {
			ad.Edges = append(ad.Edges, edgeDoc(e))
		}
		doc.Areas = append(doc.Areas, ad)
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return fmt.Errorf("graph: encode: %w", err)
	}
	return enc.Close()
}

// Decode reads a graph written by Encode. The graph is a derived graph
// whose change record is full.
func Decode(r io.Reader) (Header, *Graph, error) {
	var doc document
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		return Header{}, nil, fmt.Errorf("%w: %w", ErrInvalidGraph, err)
	}
	g := newDerived(doc.Version)
	g.frame = FullChanges(doc.Version)
	for _, nd := range doc.Nodes {
		g.nodes[nd.ID] = &Node{ID: nd.ID, Ancestor: nd.Ancestor, Pos: Pt(nd.X, nd.Y)}
		g.nextNode = max(g.nextNode, nd.ID)
	}
	for _, cd := range doc.Curves {
		s, e := g.nodes[cd.Start], g.nodes[cd.End]
		if s == nil || e == nil || len(cd.Vertices) < 2 {
			return Header{}, nil, fmt.Errorf("%w: curve %d", ErrInvalidGraph, cd.ID)
		}
		c := &Curve{
			ID: cd.ID, Ancestor: cd.Ancestor, Start: cd.Start, End: cd.End,
			Width: cd.Width, Type: cd.Type, Left: cd.Left, Right: cd.Right,
		}
		for _, v := range cd.Vertices {
			c.Vertices = append(c.Vertices, Vertex{P: Pt(v.X, v.Y), Control: v.Control})
		}
		g.curves[c.ID] = c
		s.Curves = append(s.Curves, c.ID)
		e.Curves = append(e.Curves, c.ID)
		g.nextCurve = max(g.nextCurve, c.ID)
	}
	for _, ad := range doc.Areas {
		a := &Area{ID: ad.ID, Ancestor: ad.Ancestor, Info: ad.Info}
		for _, e := range ad.Edges {
			if g.curves[e.Curve] == nil {
				return Header{}, nil, fmt.Errorf("%w: area %d", ErrInvalidGraph, ad.ID)
			}
			a.Edges = append(a.Edges, Edge(e))
		}
		g.areas[a.ID] = a
		g.nextArea = max(g.nextArea, a.ID)
	}
	return doc.Header, g, nil
}

// Store keeps graphs of precomputed tile levels as YAML files in a
// directory.
type Store struct {
	dir string
}

// NewStore creates a store over dir.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Dir returns the store directory.
func (s *Store) Dir() string { return s.dir }

// Path returns the file holding the graph of a tile.
func (s *Store) Path(level, tx, ty int) string {
	return filepath.Join(s.dir, fmt.Sprintf("graph-%d-%d-%d.yaml", level, tx, ty))
}

// Save writes the graph of the tile named by h.
func (s *Store) Save(h Header, g *Graph) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("graph: save: %w", err)
	}
	path := s.Path(h.Level, h.Tx, h.Ty)
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("graph: save: %w", err)
	}
	if err := Encode(f, h, g); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// Load reads the graph of the tile named by want. It fails with
// ErrNoGraphFile when no file exists and with ErrStaleGraph when the file
// was written for another tile or tile size.
func (s *Store) Load(want Header) (*Graph, error) {
	f, err := os.Open(s.Path(want.Level, want.Tx, want.Ty))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %w", ErrNoGraphFile, err)
	}
	if err != nil {
		return nil, fmt.Errorf("graph: load: %w", err)
	}
	defer f.Close()
	got, g, err := Decode(f)
	if err != nil {
		return nil, err
	}
	if got != want {
		return nil, fmt.Errorf("%w: have %+v, want %+v", ErrStaleGraph, got, want)
	}
	return g, nil
}
