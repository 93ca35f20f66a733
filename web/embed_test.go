package web

import (
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDistFS(t *testing.T) {
	assets, err := DistFS()
	require.NoError(t, err)

	index, err := fs.ReadFile(assets, "index.html")
	require.NoError(t, err)
	assert.Contains(t, string(index), "<html")
	assert.Contains(t, string(index), "/api/encode")
	assert.Contains(t, string(index), "clx.wasm")
}
