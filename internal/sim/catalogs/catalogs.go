package catalogs

import (
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

//go:embed panels.json
var builtinPanels []byte

// PanelID indexes Panels.ByID.
type PanelID int

// Attr is a bit set of whole-panel attributes.
type Attr uint32

const (
	AttrStart Attr = 1 << iota
	AttrChurch
	AttrTown
)

var attrNames = map[string]Attr{
	"START":  AttrStart,
	"CHURCH": AttrChurch,
	"TOWN":   AttrTown,
}

// Edge is the attribute of one panel side.
type Edge uint16

const (
	EdgeGrass  Edge = 1
	EdgePath   Edge = 2
	EdgeForest Edge = 4
)

var edgeNames = map[string]Edge{
	"GRASS":  EdgeGrass,
	"PATH":   EdgePath,
	"FOREST": EdgeForest,
}

type Panel struct {
	ID   PanelID
	Attr Attr
	// Edges are clockwise from +Y at rotation 0.
	Edges [4]Edge
}

func (p Panel) Has(a Attr) bool { return p.Attr&a != 0 }

// RotatedEdges returns the sides after rotating clockwise r quarter turns.
func (p Panel) RotatedEdges(r int) [4]Edge {
	r = ((r % 4) + 4) % 4
	var out [4]Edge
	for i := 0; i < 4; i++ {
		out[(i+r)%4] = p.Edges[i]
	}
	return out
}

// EdgeSignature packs the rotated sides into 16 bit lanes, side 0 lowest.
func (p Panel) EdgeSignature(r int) uint64 {
	e := p.RotatedEdges(r)
	var sig uint64
	for i := 0; i < 4; i++ {
		sig |= uint64(e[i]) << (16 * i)
	}
	return sig
}

// UnpackSignature is the inverse of EdgeSignature.
func UnpackSignature(sig uint64) [4]Edge {
	var out [4]Edge
	for i := 0; i < 4; i++ {
		out[i] = Edge(sig >> (16 * i) & 0xffff)
	}
	return out
}

type Panels struct {
	ByID   []Panel
	Digest string
}

func (c *Panels) Len() int { return len(c.ByID) }

func (c *Panels) Get(id PanelID) (Panel, bool) {
	if id < 0 || int(id) >= len(c.ByID) {
		return Panel{}, false
	}
	return c.ByID[id], true
}

// StartPanels lists panels carrying the START attribute, in id order.
func (c *Panels) StartPanels() []PanelID {
	var out []PanelID
	for _, p := range c.ByID {
		if p.Has(AttrStart) {
			out = append(out, p.ID)
		}
	}
	return out
}

type panelDef struct {
	ID    int      `json:"id"`
	Attr  []string `json:"attr,omitempty"`
	Edges []string `json:"edges"`
}

// Load reads a panel catalog from a JSON file.
func Load(path string) (*Panels, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(raw)
}

// Builtin returns the embedded default panel set.
func Builtin() *Panels {
	c, err := Parse(builtinPanels)
	if err != nil {
		panic(fmt.Sprintf("builtin panels: %v", err))
	}
	return c
}

// Parse decodes a catalog. Ids must be dense and start at 0.
func Parse(raw []byte) (*Panels, error) {
	var defs []panelDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return nil, fmt.Errorf("panels.json: %w", err)
	}
	out := &Panels{
		ByID:   make([]Panel, len(defs)),
		Digest: sha256Hex(raw),
	}
	seen := make([]bool, len(defs))
	for _, d := range defs {
		if d.ID < 0 || d.ID >= len(defs) {
			return nil, fmt.Errorf("panels.json: id %d out of range", d.ID)
		}
		if seen[d.ID] {
			return nil, fmt.Errorf("panels.json: duplicate id %d", d.ID)
		}
		seen[d.ID] = true
		if len(d.Edges) != 4 {
			return nil, fmt.Errorf("panels.json: panel %d: want 4 edges, got %d", d.ID, len(d.Edges))
		}
		p := Panel{ID: PanelID(d.ID)}
		for i, name := range d.Edges {
			e, ok := edgeNames[strings.ToUpper(name)]
			if !ok {
				return nil, fmt.Errorf("panels.json: panel %d: unknown edge %q", d.ID, name)
			}
			p.Edges[i] = e
		}
		for _, name := range d.Attr {
			a, ok := attrNames[strings.ToUpper(name)]
			if !ok {
				return nil, fmt.Errorf("panels.json: panel %d: unknown attr %q", d.ID, name)
			}
			p.Attr |= a
		}
		out.ByID[d.ID] = p
	}
	if len(out.StartPanels()) == 0 {
		return nil, fmt.Errorf("panels.json: no START panel")
	}
	return out, nil
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
