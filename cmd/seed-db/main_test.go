package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-faster/jx"
	pgzip "github.com/klauspost/pgzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeItems(t *testing.T) {
	items, err := decodeItems(jx.DecodeStr(`[
		{"name":"Desk","description":"Standing desk","price":199.99,"stock":3,"color":"oak"},
		{"id":"lamp","name":"Lamp","price":25,"stock":0}
	]`))
	require.NoError(t, err)
	require.Len(t, items, 2)

	assert.Equal(t, "Desk", items[0].Name)
	assert.Equal(t, "199.99", items[0].Price.String())
	assert.Equal(t, 3, items[0].Stock)
	assert.Equal(t, "lamp", items[1].ID)
	assert.Equal(t, "25", items[1].Price.String())
}

func TestDecodeItems_Malformed(t *testing.T) {
	_, err := decodeItems(jx.DecodeStr(`{"name":"Desk"}`))
	require.Error(t, err)
}

func TestReadItems(t *testing.T) {
	var buf bytes.Buffer
	gz := pgzip.NewWriter(&buf)
	_, err := gz.Write([]byte(`[{"name":"Chair","price":80,"stock":12}]`))
	require.NoError(t, err)
	require.NoError(t, gz.Close())

	path := filepath.Join(t.TempDir(), "items.json.gz")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o600))

	items, err := readItems(path)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Chair", items[0].Name)
	assert.Equal(t, 12, items[0].Stock)
}

func TestDefaultSeedIsValid(t *testing.T) {
	for _, it := range defaultItems {
		require.NoError(t, it.Validate(), it.Name)
	}
}
