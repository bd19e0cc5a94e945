package field

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tilegarden.ai/internal/sim/board"
	"tilegarden.ai/internal/sim/catalogs"
)

const (
	startPanel   catalogs.PanelID = 0
	deadEndTown  catalogs.PanelID = 13
	forestEnd    catalogs.PanelID = 30
	fullForest   catalogs.PanelID = 17
	forestEdge   catalogs.PanelID = 23
	churchPanel  catalogs.PanelID = 32
	plainGrass   catalogs.PanelID = 35
	straightRoad catalogs.PanelID = 1
)

func put(t *testing.T, f *Field, id catalogs.PanelID, x, y, rot int) {
	t.Helper()
	p, ok := f.panels.Get(id)
	require.True(t, ok)
	f.AddTile(id, board.Pos{X: x, Y: y}, rot, p.EdgeSignature(rot))
}

func panel(t *testing.T, f *Field, id catalogs.PanelID) catalogs.Panel {
	t.Helper()
	p, ok := f.panels.Get(id)
	require.True(t, ok)
	return p
}

func TestOpenSlots_SortedAroundStart(t *testing.T) {
	f := New(catalogs.Builtin())
	put(t, f, startPanel, 0, 0, 0)

	assert.Equal(t, []board.Pos{{X: 0, Y: -1}, {X: -1, Y: 0}, {X: 1, Y: 0}, {X: 0, Y: 1}}, f.OpenSlots())
}

func TestCanPlace_MatchesEdges(t *testing.T) {
	f := New(catalogs.Builtin())
	put(t, f, startPanel, 0, 0, 0)
	town := panel(t, f, deadEndTown)

	assert.True(t, f.CanPlace(town, board.Pos{X: 0, Y: 1}, 2), "path side facing the start path")
	assert.False(t, f.CanPlace(town, board.Pos{X: 0, Y: 1}, 0), "grass facing path")
	assert.False(t, f.CanPlace(town, board.Pos{X: 0, Y: 0}, 2), "occupied")
	assert.False(t, f.CanPlace(town, board.Pos{X: 3, Y: 3}, 0), "not touching")
	assert.True(t, f.Admits(town, f.OpenSlots()))
	assert.False(t, f.Admits(town, nil))
}

func TestCompletedRegions_ClosedPath(t *testing.T) {
	f := New(catalogs.Builtin())
	put(t, f, startPanel, 0, 0, 0)
	put(t, f, deadEndTown, 0, 1, 2)

	assert.Empty(t, f.CompletedRegions(board.Path, board.Pos{X: 0, Y: 1}))

	put(t, f, deadEndTown, 0, -1, 0)
	got := f.CompletedRegions(board.Path, board.Pos{X: 0, Y: -1})
	require.Len(t, got, 1)
	assert.Equal(t, board.Region{{X: 0, Y: -1}, {X: 0, Y: 0}, {X: 0, Y: 1}}, got[0])
	assert.Equal(t, 2, f.TownCount(got))
	assert.Equal(t, 3, f.TotalAttribute(got))
	assert.Empty(t, f.CompletedRegions(board.Forest, board.Pos{X: 0, Y: -1}))
}

func TestCompletedRegions_ForestAndDeepMetric(t *testing.T) {
	f := New(catalogs.Builtin())
	put(t, f, forestEnd, 0, 0, 1)
	assert.Empty(t, f.CompletedRegions(board.Forest, board.Pos{X: 0, Y: 0}))

	put(t, f, forestEnd, 1, 0, 3)
	got := f.CompletedRegions(board.Forest, board.Pos{X: 1, Y: 0})
	require.Len(t, got, 1)
	assert.Equal(t, board.Region{{X: 0, Y: 0}, {X: 1, Y: 0}}, got[0])
	assert.Equal(t, 0, f.DeepMetric(got[0], board.Forest))

	g := New(catalogs.Builtin())
	put(t, g, fullForest, 0, 0, 0)
	put(t, g, forestEdge, 1, 0, 0)
	region := board.Region{{X: 0, Y: 0}, {X: 1, Y: 0}}
	assert.Equal(t, 1, g.DeepMetric(region, board.Forest))
	assert.Equal(t, 0, g.DeepMetric(region, board.Path))
}

func TestCompletedRegions_Church(t *testing.T) {
	f := New(catalogs.Builtin())
	put(t, f, churchPanel, 5, 5, 0)
	var last board.Pos
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			if dx == 0 && dy == 0 {
				continue
			}
			last = board.Pos{X: 5 + dx, Y: 5 + dy}
			assert.Empty(t, f.CompletedRegions(board.Church, last))
			put(t, f, plainGrass, last.X, last.Y, 0)
		}
	}
	got := f.CompletedRegions(board.Church, last)
	require.Len(t, got, 1)
	assert.Equal(t, board.Region{{X: 5, Y: 5}}, got[0])
}

func TestSerialize_DecodeRoundTrip(t *testing.T) {
	cat := catalogs.Builtin()
	f := New(cat)
	put(t, f, startPanel, 0, 0, 1)
	put(t, f, straightRoad, 1, 0, 1)
	put(t, f, plainGrass, 0, 1, 0)

	raw, err := f.Serialize()
	require.NoError(t, err)

	codec := Codec{Panels: cat}
	g, err := codec.Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, f.Tiles(), g.Tiles())
	assert.Equal(t, f.OpenSlots(), g.OpenSlots())

	raw2, err := g.Serialize()
	require.NoError(t, err)
	assert.JSONEq(t, string(raw), string(raw2))
}

func TestDecode_RejectsInconsistentTiles(t *testing.T) {
	codec := Codec{Panels: catalogs.Builtin()}
	bad := []any{
		map[string]any{"panels": []any{map[string]any{"panel": 99, "pos": []int{0, 0}, "rotation": 0, "edge": 0}}},
		map[string]any{"panels": []any{map[string]any{"panel": 0, "pos": []int{0, 0}, "rotation": 7, "edge": 0}}},
		map[string]any{"panels": []any{map[string]any{"panel": 0, "pos": []int{0, 0}, "rotation": 0, "edge": 12345}}},
	}
	for i, v := range bad {
		raw, err := json.Marshal(v)
		require.NoError(t, err)
		_, err = codec.Decode(raw)
		assert.Error(t, err, "case %d", i)
	}
	_, err := codec.Decode(json.RawMessage(`[1,2]`))
	assert.Error(t, err)
}
