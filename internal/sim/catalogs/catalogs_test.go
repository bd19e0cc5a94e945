package catalogs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuiltin_HasStartPanel(t *testing.T) {
	c := Builtin()
	require.Equal(t, 40, c.Len())
	assert.Equal(t, []PanelID{0}, c.StartPanels())
	assert.Len(t, c.Digest, 64)

	church, ok := c.Get(32)
	require.True(t, ok)
	assert.True(t, church.Has(AttrChurch))
	assert.False(t, church.Has(AttrTown))

	_, ok = c.Get(40)
	assert.False(t, ok)
}

func TestPanel_RotatedEdgesClockwise(t *testing.T) {
	p := Panel{Edges: [4]Edge{EdgePath, EdgeForest, EdgeGrass, EdgeGrass}}

	assert.Equal(t, p.Edges, p.RotatedEdges(0))
	assert.Equal(t, [4]Edge{EdgeGrass, EdgePath, EdgeForest, EdgeGrass}, p.RotatedEdges(1))
	assert.Equal(t, p.RotatedEdges(1), p.RotatedEdges(5))
	assert.Equal(t, p.RotatedEdges(3), p.RotatedEdges(-1))
}

func TestPanel_EdgeSignatureRoundTrip(t *testing.T) {
	p := Panel{Edges: [4]Edge{EdgePath, EdgeForest, EdgeGrass, EdgePath}}
	for r := 0; r < 4; r++ {
		assert.Equal(t, p.RotatedEdges(r), UnpackSignature(p.EdgeSignature(r)), "rotation %d", r)
	}
	assert.Equal(t, uint64(EdgePath), p.EdgeSignature(0)&0xffff)
}

func TestLoad_RejectsBadCatalogs(t *testing.T) {
	cases := map[string]string{
		"not json":     `{`,
		"sparse ids":   `[{"id": 3, "attr": ["START"], "edges": ["PATH","GRASS","PATH","GRASS"]}]`,
		"three edges":  `[{"id": 0, "attr": ["START"], "edges": ["PATH","GRASS","PATH"]}]`,
		"unknown edge": `[{"id": 0, "attr": ["START"], "edges": ["PATH","GRASS","PATH","LAVA"]}]`,
		"no start":     `[{"id": 0, "edges": ["PATH","GRASS","PATH","GRASS"]}]`,
	}
	dir := t.TempDir()
	for name, body := range cases {
		path := filepath.Join(dir, "panels.json")
		require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
		_, err := Load(path)
		assert.Error(t, err, name)
	}
}
