// Package field is a reference grid engine for the session core. It keeps
// placed panels in a map, enumerates open slots, matches edges and flood-fills
// path and forest regions.
package field

import (
	"encoding/json"
	"fmt"

	"tilegarden.ai/internal/sim/board"
	"tilegarden.ai/internal/sim/catalogs"
)

type Field struct {
	panels *catalogs.Panels
	tiles  map[board.Pos]board.TileStatus
	order  []board.Pos
}

func New(panels *catalogs.Panels) *Field {
	return &Field{
		panels: panels,
		tiles:  map[board.Pos]board.TileStatus{},
	}
}

var _ board.Field = (*Field)(nil)

func (f *Field) AddTile(tile catalogs.PanelID, pos board.Pos, rotation int, edge uint64) {
	if _, ok := f.tiles[pos]; !ok {
		f.order = append(f.order, pos)
	}
	f.tiles[pos] = board.TileStatus{Tile: tile, Pos: pos, Rotation: rotation, Edge: edge}
}

func (f *Field) HasTile(pos board.Pos) bool {
	_, ok := f.tiles[pos]
	return ok
}

func (f *Field) TileStatus(pos board.Pos) (board.TileStatus, bool) {
	st, ok := f.tiles[pos]
	return st, ok
}

func (f *Field) OpenSlots() []board.Pos {
	seen := map[board.Pos]struct{}{}
	var out []board.Pos
	for _, p := range f.order {
		for _, d := range board.Neighbours4 {
			q := p.Add(d)
			if f.HasTile(q) {
				continue
			}
			if _, dup := seen[q]; dup {
				continue
			}
			seen[q] = struct{}{}
			out = append(out, q)
		}
	}
	board.SortPositions(out)
	return out
}

func (f *Field) CanPlace(panel catalogs.Panel, pos board.Pos, rotation int) bool {
	if f.HasTile(pos) {
		return false
	}
	edges := panel.RotatedEdges(rotation)
	touching := false
	for side, d := range board.Neighbours4 {
		n, ok := f.tiles[pos.Add(d)]
		if !ok {
			continue
		}
		touching = true
		if catalogs.UnpackSignature(n.Edge)[opposite(side)] != edges[side] {
			return false
		}
	}
	return touching
}

func (f *Field) Admits(panel catalogs.Panel, slots []board.Pos) bool {
	for _, pos := range slots {
		for r := 0; r < 4; r++ {
			if f.CanPlace(panel, pos, r) {
				return true
			}
		}
	}
	return false
}

func (f *Field) CompletedRegions(kind board.Kind, pos board.Pos) []board.Region {
	if _, ok := f.tiles[pos]; !ok {
		return nil
	}
	switch kind {
	case board.Path:
		return f.closedEdgeRegion(catalogs.EdgePath, pos)
	case board.Forest:
		return f.closedEdgeRegion(catalogs.EdgeForest, pos)
	case board.Church:
		return f.completedChurches(pos)
	}
	return nil
}

// closedEdgeRegion returns the region of edge e containing pos, if closed.
// All sides of one tile with the same attribute belong to one region, so at
// most one region touches pos.
func (f *Field) closedEdgeRegion(e catalogs.Edge, pos board.Pos) []board.Region {
	if !hasEdge(f.tiles[pos].Edge, e) {
		return nil
	}
	region, closed := f.flood(e, pos)
	if !closed {
		return nil
	}
	return []board.Region{region}
}

func (f *Field) flood(e catalogs.Edge, start board.Pos) (board.Region, bool) {
	visited := map[board.Pos]bool{start: true}
	queue := []board.Pos{start}
	var region board.Region
	closed := true
	for len(queue) > 0 {
		p := queue[0]
		queue = queue[1:]
		region = append(region, p)
		edges := catalogs.UnpackSignature(f.tiles[p].Edge)
		for side, d := range board.Neighbours4 {
			if edges[side] != e {
				continue
			}
			q := p.Add(d)
			if !f.HasTile(q) {
				closed = false
				continue
			}
			if !visited[q] {
				visited[q] = true
				queue = append(queue, q)
			}
		}
	}
	board.SortPositions(region)
	return region, closed
}

func (f *Field) completedChurches(pos board.Pos) []board.Region {
	var out []board.Region
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			c := board.Pos{X: pos.X + dx, Y: pos.Y + dy}
			st, ok := f.tiles[c]
			if !ok {
				continue
			}
			p, ok := f.panels.Get(st.Tile)
			if !ok || !p.Has(catalogs.AttrChurch) {
				continue
			}
			if f.surrounded(c) {
				out = append(out, board.Region{c})
			}
		}
	}
	return out
}

func (f *Field) surrounded(c board.Pos) bool {
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			if dx == 0 && dy == 0 {
				continue
			}
			if !f.HasTile(board.Pos{X: c.X + dx, Y: c.Y + dy}) {
				return false
			}
		}
	}
	return true
}

// DeepMetric counts forest tiles in region whose four sides are all forest.
func (f *Field) DeepMetric(region board.Region, kind board.Kind) int {
	if kind != board.Forest {
		return 0
	}
	n := 0
	for _, p := range region {
		st, ok := f.tiles[p]
		if !ok {
			continue
		}
		deep := true
		for _, e := range catalogs.UnpackSignature(st.Edge) {
			if e != catalogs.EdgeForest {
				deep = false
				break
			}
		}
		if deep {
			n++
		}
	}
	return n
}

func (f *Field) TotalAttribute(regions []board.Region) int {
	seen := map[board.Pos]struct{}{}
	for _, r := range regions {
		for _, p := range r {
			seen[p] = struct{}{}
		}
	}
	return len(seen)
}

func (f *Field) TownCount(paths []board.Region) int {
	seen := map[board.Pos]struct{}{}
	for _, r := range paths {
		for _, p := range r {
			st, ok := f.tiles[p]
			if !ok {
				continue
			}
			if panel, ok := f.panels.Get(st.Tile); ok && panel.Has(catalogs.AttrTown) {
				seen[p] = struct{}{}
			}
		}
	}
	return len(seen)
}

func (f *Field) Tiles() []board.TileStatus {
	out := make([]board.TileStatus, 0, len(f.order))
	for _, p := range f.order {
		out = append(out, f.tiles[p])
	}
	return out
}

type serialized struct {
	Panels []board.TileStatus `json:"panels"`
}

func (f *Field) Serialize() (json.RawMessage, error) {
	return json.Marshal(serialized{Panels: f.Tiles()})
}

// Codec builds fields over one panel catalog.
type Codec struct {
	Panels *catalogs.Panels
}

func (c Codec) NewField() board.Field { return New(c.Panels) }

func (c Codec) Decode(raw json.RawMessage) (board.Field, error) {
	var s serialized
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("field: %w", err)
	}
	f := New(c.Panels)
	for _, st := range s.Panels {
		p, ok := c.Panels.Get(st.Tile)
		if !ok {
			return nil, fmt.Errorf("field: unknown panel %d at %v", st.Tile, st.Pos)
		}
		if st.Rotation < 0 || st.Rotation > 3 {
			return nil, fmt.Errorf("field: bad rotation %d at %v", st.Rotation, st.Pos)
		}
		if f.HasTile(st.Pos) {
			return nil, fmt.Errorf("field: duplicate tile at %v", st.Pos)
		}
		if st.Edge != p.EdgeSignature(st.Rotation) {
			return nil, fmt.Errorf("field: edge mismatch at %v", st.Pos)
		}
		f.AddTile(st.Tile, st.Pos, st.Rotation, st.Edge)
	}
	return f, nil
}

func opposite(side int) int { return (side + 2) % 4 }

func hasEdge(sig uint64, e catalogs.Edge) bool {
	for _, x := range catalogs.UnpackSignature(sig) {
		if x == e {
			return true
		}
	}
	return false
}
