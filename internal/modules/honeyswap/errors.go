package honeyswap

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/1hive/honeyswap-indexer/internal/entity"
	"github.com/1hive/honeyswap-indexer/internal/metrics"
)

// MissingEntityError means an entity the event depends on is not stored.
type MissingEntityError struct {
	Kind entity.Kind
	ID   string
}

func (e MissingEntityError) Error() string {
	return fmt.Sprintf("%s %s does not exist", e.Kind, e.ID)
}

// MalformedEventError means the payload could not be decoded into the expected shape.
type MalformedEventError struct {
	Event string
	Err   error
}

func (e MalformedEventError) Error() string {
	return fmt.Sprintf("malformed %s event: %v", e.Event, e.Err)
}

func (e MalformedEventError) Unwrap() error { return e.Err }

// UnresolvableNetworkError means the network has no address book entry.
type UnresolvableNetworkError struct {
	Network string
}

func (e UnresolvableNetworkError) Error() string {
	return fmt.Sprintf("no addresses for network %q", e.Network)
}

// UnresolvedTokenError means a new token's decimals could not be determined.
type UnresolvedTokenError struct {
	Token string
	Err   error
}

func (e UnresolvedTokenError) Error() string {
	return fmt.Sprintf("token %s has no resolvable decimals: %v", e.Token, e.Err)
}

func (e UnresolvedTokenError) Unwrap() error { return e.Err }

// ChainCallError wraps a failed live contract read.
type ChainCallError struct {
	Op  string
	Err error
}

func (e ChainCallError) Error() string {
	return fmt.Sprintf("chain call %s failed: %v", e.Op, e.Err)
}

func (e ChainCallError) Unwrap() error { return e.Err }

// classify maps a skip error to its metrics class and log level.
func classify(err error) (string, zerolog.Level) {
	var (
		missing    MissingEntityError
		malformed  MalformedEventError
		network    UnresolvableNetworkError
		unresolved UnresolvedTokenError
		call       ChainCallError
	)
	switch {
	case errors.As(err, &missing):
		return metrics.SkipMissingEntity, zerolog.WarnLevel
	case errors.As(err, &network):
		return metrics.SkipUnresolvableNetwork, zerolog.WarnLevel
	case errors.As(err, &unresolved):
		return metrics.SkipUnresolvedToken, zerolog.WarnLevel
	case errors.As(err, &call):
		return metrics.SkipChainCall, zerolog.ErrorLevel
	case errors.As(err, &malformed):
		return metrics.SkipMalformedEvent, zerolog.ErrorLevel
	default:
		return metrics.SkipMalformedEvent, zerolog.ErrorLevel
	}
}
