package network

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveKnownNetworks(t *testing.T) {
	mainnet, err := Resolve("mainnet")
	require.NoError(t, err)
	assert.True(t, mainnet.Known())
	assert.False(t, mainnet.FixedPeg)
	assert.Equal(t, common.HexToAddress("0xd34971bab6e5e356fd250715f5de0492bb070452"), mainnet.Factory)
	require.Len(t, mainnet.Whitelist, 21)
	assert.Equal(t, common.HexToAddress("0xa1d65e8fb6e87b60feccbc582f7f97804b725521"), mainnet.Whitelist[0], "whitelist order is kept")
	assert.Len(t, mainnet.StablePairAddresses(), 3)
	assert.Equal(t, int32(18), mainnet.Tokens[common.HexToAddress("0x9f8f72aa9304c8b593d555f12ef6589cc3a579a2")].Decimals)

	xdai, err := Resolve("xdai")
	require.NoError(t, err)
	assert.True(t, xdai.FixedPeg)
	assert.Empty(t, xdai.StablePairAddresses())
	assert.True(t, xdai.MinimumUSDThresholdNewPairs.Equal(decimal.NewFromInt(1000)))

	gnosis, err := Resolve("Gnosis")
	require.NoError(t, err)
	assert.Same(t, xdai, gnosis)
}

func TestWhitelistIgnoresLetterCase(t *testing.T) {
	xdai, err := Resolve("xdai")
	require.NoError(t, err)

	// Listed in mixed case, looked up from a lowercase id.
	hny := common.HexToAddress("0x71850b7e9ee3f13ab46d67167341e4bdc905eef9")
	assert.True(t, xdai.IsWhitelisted(hny))
	assert.False(t, xdai.IsWhitelisted(common.HexToAddress("0x01")))
}

func TestResolveUnknownNetwork(t *testing.T) {
	n, err := Resolve("ropsten")
	require.ErrorIs(t, err, ErrUnknownNetwork)
	require.NotNil(t, n)
	assert.False(t, n.Known())
	assert.Equal(t, common.Address{}, n.Factory)
	assert.Empty(t, n.Whitelist)
	assert.False(t, n.IsWhitelisted(common.Address{}))
}

func TestWithThresholds(t *testing.T) {
	matic, err := Resolve("matic")
	require.NoError(t, err)

	custom, err := matic.WithThresholds("", "250")
	require.NoError(t, err)
	assert.True(t, custom.MinimumUSDThresholdNewPairs.Equal(decimal.NewFromInt(250)))
	assert.True(t, custom.MinimumLiquidityThresholdNative.Equal(matic.MinimumLiquidityThresholdNative))
	assert.True(t, matic.MinimumUSDThresholdNewPairs.Equal(decimal.NewFromInt(1000)), "original untouched")

	_, err = matic.WithThresholds("lots", "")
	assert.Error(t, err)
}

func TestParseRejectsBadAddresses(t *testing.T) {
	_, err := Parse([]byte("networks:\n  test:\n    factory: \"0x123\"\n"))
	assert.Error(t, err)
}

func TestNames(t *testing.T) {
	assert.Equal(t, []string{"gnosis", "mainnet", "matic", "polygon", "xdai"}, Names())
}
