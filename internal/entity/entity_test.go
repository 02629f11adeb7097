package entity

import (
	"encoding/json"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIDs(t *testing.T) {
	addr := common.HexToAddress("0xA818b4F111Ccac7AA31D0BCc0806d64F2E0737D7")
	assert.Equal(t, "0xa818b4f111ccac7aa31d0bcc0806d64f2e0737d7", AddressID(addr))
	assert.Equal(t, "0xabc-3", ChildID("0xabc", 3))
	assert.Equal(t, int64(19000), DayID(19000*86400+86399))
	assert.Equal(t, int64(2), HourIndex(7199))
}

func TestIndexerStateCovers(t *testing.T) {
	var empty *IndexerState
	assert.False(t, empty.Covers(0, 0))

	s := &IndexerState{BlockNumber: 10, LogIndex: 4}
	assert.True(t, s.Covers(9, 100))
	assert.True(t, s.Covers(10, 4))
	assert.False(t, s.Covers(10, 5))
	assert.False(t, s.Covers(11, 0))
}

func TestIncompleteMintKeepsNullFields(t *testing.T) {
	m := &Mint{ID: "0x1-0", Liquidity: decimal.NewFromInt(100)}
	raw, err := json.Marshal(m)
	require.NoError(t, err)

	var back Mint
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.False(t, back.Complete())
	assert.False(t, back.Amount0.Valid)
	assert.Nil(t, back.LogIndex)

	back.Sender = StringPtr("0xsender")
	assert.True(t, back.Complete())
}
