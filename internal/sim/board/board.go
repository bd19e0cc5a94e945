// Package board defines the contract between the session core and the grid
// engine that owns tile placement, edge matching and region enumeration.
package board

import (
	"encoding/json"
	"fmt"
	"sort"

	"tilegarden.ai/internal/sim/catalogs"
)

// Pos is a grid cell. It encodes as a two element JSON array.
type Pos struct {
	X int
	Y int
}

func (p Pos) Add(o Pos) Pos { return Pos{X: p.X + o.X, Y: p.Y + o.Y} }

// Dist2 is the squared euclidean distance between p and o.
func (p Pos) Dist2(o Pos) int {
	dx, dy := p.X-o.X, p.Y-o.Y
	return dx*dx + dy*dy
}

func (p Pos) String() string { return fmt.Sprintf("(%d,%d)", p.X, p.Y) }

func (p Pos) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]int{p.X, p.Y})
}

func (p *Pos) UnmarshalJSON(b []byte) error {
	var v [2]int
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	p.X, p.Y = v[0], v[1]
	return nil
}

// Less orders positions row-major (y, then x).
func Less(a, b Pos) bool {
	if a.Y != b.Y {
		return a.Y < b.Y
	}
	return a.X < b.X
}

// SortPositions sorts in place using Less.
func SortPositions(ps []Pos) {
	sort.Slice(ps, func(i, j int) bool { return Less(ps[i], ps[j]) })
}

// Neighbours4 are the side offsets, clockwise from +Y. Side i of a tile faces
// Neighbours4[i].
var Neighbours4 = [4]Pos{
	{X: 0, Y: 1},
	{X: 1, Y: 0},
	{X: 0, Y: -1},
	{X: -1, Y: 0},
}

// Kind is a completion attribute.
type Kind int

const (
	Path Kind = iota
	Forest
	Church
)

func (k Kind) String() string {
	switch k {
	case Path:
		return "PATH"
	case Forest:
		return "FOREST"
	case Church:
		return "CHURCH"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

func (k Kind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

func (k *Kind) UnmarshalText(b []byte) error {
	switch string(b) {
	case "PATH":
		*k = Path
	case "FOREST":
		*k = Forest
	case "CHURCH":
		*k = Church
	default:
		return fmt.Errorf("unknown kind %q", b)
	}
	return nil
}

// Region is a set of positions; order is the order the field reports them in.
type Region []Pos

// TileStatus describes one placed tile.
type TileStatus struct {
	Tile     catalogs.PanelID `json:"panel"`
	Pos      Pos              `json:"pos"`
	Rotation int              `json:"rotation"`
	Edge     uint64           `json:"edge"`
}

// Field is the grid engine consumed by the session core. All calls are
// synchronous and their effects are visible immediately.
type Field interface {
	AddTile(tile catalogs.PanelID, pos Pos, rotation int, edge uint64)
	HasTile(pos Pos) bool
	TileStatus(pos Pos) (TileStatus, bool)

	// OpenSlots is every empty position that touches a placed tile.
	OpenSlots() []Pos
	// CanPlace reports whether panel fits at pos with the given rotation.
	CanPlace(panel catalogs.Panel, pos Pos, rotation int) bool
	// Admits reports whether panel fits in any of slots in any rotation.
	Admits(panel catalogs.Panel, slots []Pos) bool

	// CompletedRegions lists regions of kind touching pos that are closed. A
	// church region holds exactly one position, the church tile.
	CompletedRegions(kind Kind, pos Pos) []Region
	DeepMetric(region Region, kind Kind) int
	TotalAttribute(regions []Region) int
	TownCount(paths []Region) int

	Serialize() (json.RawMessage, error)
	// Tiles enumerates placed tiles in the field's internal order.
	Tiles() []TileStatus
}

// Codec creates fields, fresh or from Serialize output.
type Codec interface {
	NewField() Field
	Decode(raw json.RawMessage) (Field, error)
}
