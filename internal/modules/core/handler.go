package core

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// RawEvent is one log as delivered by a feed, with the block and transaction
// context the handlers need.
type RawEvent struct {
	Log       types.Log      `json:"log"`
	Timestamp uint64         `json:"timestamp"`
	TxFrom    common.Address `json:"txFrom"`
}

// Position is the (block, log index) ordering key.
func (e *RawEvent) Position() (uint64, uint64) {
	return e.Log.BlockNumber, uint64(e.Log.Index)
}

// ParsedEvent represents a decoded event log
type ParsedEvent struct {
	Log *types.Log

	EventName string
	Address   common.Address

	Args map[string]interface{}

	TransactionHash  common.Hash
	TransactionIndex uint
	TransactionFrom  common.Address
	BlockNumber      uint64
	BlockHash        common.Hash
	LogIndex         uint
	Timestamp        uint64
}

// AddressArg returns an address argument.
func (e *ParsedEvent) AddressArg(name string) (common.Address, error) {
	v, ok := e.Args[name]
	if !ok {
		return common.Address{}, ErrInvalidEvent{Reason: fmt.Sprintf("%s: missing argument %s", e.EventName, name)}
	}
	addr, ok := v.(common.Address)
	if !ok {
		return common.Address{}, ErrInvalidEvent{Reason: fmt.Sprintf("%s: argument %s is %T, not an address", e.EventName, name, v)}
	}
	return addr, nil
}

// BigArg returns an integer argument.
func (e *ParsedEvent) BigArg(name string) (*big.Int, error) {
	v, ok := e.Args[name]
	if !ok {
		return nil, ErrInvalidEvent{Reason: fmt.Sprintf("%s: missing argument %s", e.EventName, name)}
	}
	n, ok := v.(*big.Int)
	if !ok || n == nil {
		return nil, ErrInvalidEvent{Reason: fmt.Sprintf("%s: argument %s is %T, not an integer", e.EventName, name, v)}
	}
	return n, nil
}

// EventParser decodes logs using ABI event definitions, keyed by topic0.
type EventParser struct {
	events map[common.Hash]abi.Event
}

func NewEventParser() *EventParser {
	return &EventParser{events: make(map[common.Hash]abi.Event)}
}

// AddABI indexes every event of a contract ABI.
func (p *EventParser) AddABI(contractABI *abi.ABI) {
	for _, event := range contractABI.Events {
		p.events[event.ID] = event
	}
}

// Knows reports whether topic0 belongs to a registered event.
func (p *EventParser) Knows(topic common.Hash) bool {
	_, ok := p.events[topic]
	return ok
}

// ParseEvent decodes a raw event.
func (p *EventParser) ParseEvent(raw *RawEvent) (*ParsedEvent, error) {
	log := &raw.Log
	if len(log.Topics) == 0 {
		return nil, ErrInvalidEvent{Reason: "no topics in log"}
	}

	eventABI, exists := p.events[log.Topics[0]]
	if !exists {
		return nil, ErrUnknownEvent{Topic: log.Topics[0].Hex()}
	}

	var indexed, data abi.Arguments
	for _, input := range eventABI.Inputs {
		if input.Indexed {
			indexed = append(indexed, input)
		} else {
			data = append(data, input)
		}
	}
	if len(log.Topics)-1 != len(indexed) {
		return nil, ErrInvalidEvent{Reason: fmt.Sprintf("%s expects %d indexed arguments, got %d topics",
			eventABI.Name, len(indexed), len(log.Topics)-1)}
	}

	args := make(map[string]interface{}, len(eventABI.Inputs))
	for i, input := range indexed {
		args[input.Name] = parseIndexedArg(log.Topics[i+1], input.Type)
	}

	if len(data) > 0 {
		values, err := data.Unpack(log.Data)
		if err != nil {
			return nil, ErrEventParsing{Event: eventABI.Name, Err: err}
		}
		for i, input := range data {
			args[input.Name] = values[i]
		}
	}

	return &ParsedEvent{
		Log:              log,
		EventName:        eventABI.Name,
		Address:          log.Address,
		Args:             args,
		TransactionHash:  log.TxHash,
		TransactionIndex: log.TxIndex,
		TransactionFrom:  raw.TxFrom,
		BlockNumber:      log.BlockNumber,
		BlockHash:        log.BlockHash,
		LogIndex:         log.Index,
		Timestamp:        raw.Timestamp,
	}, nil
}

// parseIndexedArg converts a topic hash to the appropriate Go type
func parseIndexedArg(topic common.Hash, argType abi.Type) interface{} {
	switch argType.T {
	case abi.AddressTy:
		return common.BytesToAddress(topic.Bytes())
	case abi.IntTy, abi.UintTy:
		return new(big.Int).SetBytes(topic.Bytes())
	case abi.BoolTy:
		return topic.Big().Sign() != 0
	default:
		return topic
	}
}

type ErrInvalidEvent struct {
	Reason string
}

func (e ErrInvalidEvent) Error() string {
	return "invalid event: " + e.Reason
}

type ErrUnknownEvent struct {
	Topic string
}

func (e ErrUnknownEvent) Error() string {
	return "unknown event topic: " + e.Topic
}

type ErrEventParsing struct {
	Event string
	Err   error
}

func (e ErrEventParsing) Error() string {
	return "failed to parse event " + e.Event + ": " + e.Err.Error()
}

func (e ErrEventParsing) Unwrap() error { return e.Err }
