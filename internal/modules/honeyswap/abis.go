package honeyswap

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

const factoryABIJSON = `[
	{"anonymous":false,"inputs":[
		{"indexed":true,"name":"token0","type":"address"},
		{"indexed":true,"name":"token1","type":"address"},
		{"indexed":false,"name":"pair","type":"address"},
		{"indexed":false,"name":"pairIndex","type":"uint256"}
	],"name":"PairCreated","type":"event"}
]`

const pairABIJSON = `[
	{"anonymous":false,"inputs":[
		{"indexed":true,"name":"from","type":"address"},
		{"indexed":true,"name":"to","type":"address"},
		{"indexed":false,"name":"value","type":"uint256"}
	],"name":"Transfer","type":"event"},
	{"anonymous":false,"inputs":[
		{"indexed":false,"name":"reserve0","type":"uint112"},
		{"indexed":false,"name":"reserve1","type":"uint112"}
	],"name":"Sync","type":"event"},
	{"anonymous":false,"inputs":[
		{"indexed":true,"name":"sender","type":"address"},
		{"indexed":false,"name":"amount0","type":"uint256"},
		{"indexed":false,"name":"amount1","type":"uint256"}
	],"name":"Mint","type":"event"},
	{"anonymous":false,"inputs":[
		{"indexed":true,"name":"sender","type":"address"},
		{"indexed":false,"name":"amount0","type":"uint256"},
		{"indexed":false,"name":"amount1","type":"uint256"},
		{"indexed":true,"name":"to","type":"address"}
	],"name":"Burn","type":"event"},
	{"anonymous":false,"inputs":[
		{"indexed":true,"name":"sender","type":"address"},
		{"indexed":false,"name":"amount0In","type":"uint256"},
		{"indexed":false,"name":"amount1In","type":"uint256"},
		{"indexed":false,"name":"amount0Out","type":"uint256"},
		{"indexed":false,"name":"amount1Out","type":"uint256"},
		{"indexed":true,"name":"to","type":"address"}
	],"name":"Swap","type":"event"}
]`

var (
	// FactoryABI holds the factory events.
	FactoryABI = mustParseABI(factoryABIJSON)
	// PairABI holds the pair events.
	PairABI = mustParseABI(pairABIJSON)
)

func mustParseABI(s string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(s))
	if err != nil {
		panic(fmt.Sprintf("invalid event ABI: %v", err))
	}
	return parsed
}

var pairEventNames = []string{"Transfer", "Sync", "Mint", "Burn", "Swap"}

// PairCreatedTopic is topic0 of the factory's PairCreated event.
func PairCreatedTopic() common.Hash {
	return FactoryABI.Events["PairCreated"].ID
}

// PairTopics lists topic0 of every pair event the module handles.
func PairTopics() []common.Hash {
	topics := make([]common.Hash, 0, len(pairEventNames))
	for _, name := range pairEventNames {
		topics = append(topics, PairABI.Events[name].ID)
	}
	return topics
}

// DiscoverPair returns the pair announced by a PairCreated log.
func DiscoverPair(log types.Log) (common.Address, bool) {
	event := FactoryABI.Events["PairCreated"]
	if len(log.Topics) == 0 || log.Topics[0] != event.ID {
		return common.Address{}, false
	}
	values, err := event.Inputs.NonIndexed().Unpack(log.Data)
	if err != nil || len(values) == 0 {
		return common.Address{}, false
	}
	pair, ok := values[0].(common.Address)
	return pair, ok
}
