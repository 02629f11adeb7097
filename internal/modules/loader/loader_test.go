package loader

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testManifest = `
name: honeyswap
version: 1.0.0
context:
  minimumLiquidityThresholdNative: "10"
dataSources:
  - name: Factory
    source:
      address: "0xA818b4F111Ccac7AA31D0BCc0806d64F2E0737D7"
      abi: Factory
      startBlock: 14155943
    mapping:
      entities: [Pair, Token]
      eventHandlers:
        - event: PairCreated(indexed address,indexed address,address,uint256)
          handler: handleNewPair
templates:
  - name: Pair
    source:
      abi: Pair
    mapping:
      entities: [Pair]
      eventHandlers:
        - event: Sync(uint112,uint112)
          handler: handleSync
`

func TestParseManifestAppliesDefaults(t *testing.T) {
	l := NewManifestLoader(zerolog.Nop())

	manifest, err := l.ParseManifest([]byte(testManifest))
	require.NoError(t, err)

	assert.Equal(t, "honeyswap", manifest.Name)
	require.Len(t, manifest.DataSources, 1)
	ds := manifest.DataSources[0]
	assert.Equal(t, "ethereum/contract", ds.Kind)
	assert.Equal(t, DefaultNetwork, ds.Network)
	assert.Equal(t, "ethereum/events", ds.Mapping.Kind)
	require.NotNil(t, ds.Source.StartBlock)
	assert.Equal(t, uint64(14155943), *ds.Source.StartBlock)

	require.Len(t, manifest.Templates, 1)
	assert.Equal(t, DefaultNetwork, manifest.Templates[0].Network)
	assert.Equal(t, uint64(0), *manifest.Templates[0].Source.StartBlock)

	v, ok := manifest.ContextString("minimumLiquidityThresholdNative")
	assert.True(t, ok)
	assert.Equal(t, "10", v)
}

func TestParseManifestRejectsMissingAddress(t *testing.T) {
	l := NewManifestLoader(zerolog.Nop())

	_, err := l.ParseManifest([]byte(`
name: broken
version: 1.0.0
dataSources:
  - name: Factory
    source:
      abi: Factory
    mapping:
      eventHandlers:
        - event: PairCreated(indexed address,indexed address,address,uint256)
          handler: handleNewPair
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dataSources[0].source.address")
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "honeyswap.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testManifest), 0o644))

	l := NewManifestLoader(zerolog.Nop())
	manifest, err := l.LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", manifest.Version)

	_, err = l.LoadFromFile(filepath.Join(dir, "honeyswap.json"))
	assert.Error(t, err)
}
