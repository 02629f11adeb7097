package core

import (
	"fmt"
	"strconv"
)

// Manifest defines the structure of a module manifest (inspired by subgraph manifests)
type Manifest struct {
	Name        string                 `yaml:"name"`
	Version     string                 `yaml:"version"`
	Description string                 `yaml:"description,omitempty"`
	Repository  string                 `yaml:"repository,omitempty"`
	DataSources []DataSource           `yaml:"dataSources"`
	Templates   []DataSource           `yaml:"templates,omitempty"`
	Context     map[string]interface{} `yaml:"context,omitempty"` // Module-specific context
}

// DataSource defines a contract or set of contracts to watch
type DataSource struct {
	Kind    string                 `yaml:"kind"`    // "ethereum/contract"
	Name    string                 `yaml:"name"`    // Friendly name
	Network string                 `yaml:"network"` // "xdai"
	Source  DataSourceSource       `yaml:"source"`
	Mapping DataSourceMapping      `yaml:"mapping"`
	Context map[string]interface{} `yaml:"context,omitempty"`
}

// DataSourceSource defines the contract source information
type DataSourceSource struct {
	Address    *string `yaml:"address,omitempty"` // absent for templates
	ABI        string  `yaml:"abi"`
	StartBlock *uint64 `yaml:"startBlock,omitempty"`
}

// DataSourceMapping defines how to handle events from this data source
type DataSourceMapping struct {
	Kind          string         `yaml:"kind"` // "ethereum/events"
	APIVersion    string         `yaml:"apiVersion,omitempty"`
	Entities      []string       `yaml:"entities"`
	EventHandlers []EventHandler `yaml:"eventHandlers"`
}

// EventHandler binds an event signature to a named handler.
type EventHandler struct {
	Event   string `yaml:"event"` // e.g. "Transfer(indexed address,indexed address,uint256)"
	Handler string `yaml:"handler"`
}

// ContextString returns a string value from the manifest context.
func (m *Manifest) ContextString(key string) (string, bool) {
	if m == nil || m.Context == nil {
		return "", false
	}
	v, ok := m.Context[key]
	if !ok || v == nil {
		return "", false
	}
	switch t := v.(type) {
	case string:
		return t, true
	default:
		return fmt.Sprint(t), true
	}
}

// Network returns the network of the first data source.
func (m *Manifest) Network() string {
	if len(m.DataSources) == 0 {
		return ""
	}
	return m.DataSources[0].Network
}

// FindDataSource returns the data source or template with the given name.
func (m *Manifest) FindDataSource(name string) (*DataSource, bool) {
	for i := range m.DataSources {
		if m.DataSources[i].Name == name {
			return &m.DataSources[i], true
		}
	}
	for i := range m.Templates {
		if m.Templates[i].Name == name {
			return &m.Templates[i], true
		}
	}
	return nil, false
}

// ValidateManifest validates a manifest structure
func (m *Manifest) ValidateManifest() error {
	if m.Name == "" {
		return ErrInvalidManifest{Field: "name", Reason: "name is required"}
	}

	if m.Version == "" {
		return ErrInvalidManifest{Field: "version", Reason: "version is required"}
	}

	if len(m.DataSources) == 0 {
		return ErrInvalidManifest{Field: "dataSources", Reason: "at least one data source is required"}
	}

	for i, ds := range m.DataSources {
		if err := ds.validate(); err != nil {
			return ErrInvalidManifest{Field: "dataSources[" + strconv.Itoa(i) + "]", Reason: err.Error()}
		}
		if ds.Source.Address == nil || *ds.Source.Address == "" {
			return ErrInvalidManifest{Field: "dataSources[" + strconv.Itoa(i) + "].source.address", Reason: "address is required"}
		}
	}

	for i, tpl := range m.Templates {
		if err := tpl.validate(); err != nil {
			return ErrInvalidManifest{Field: "templates[" + strconv.Itoa(i) + "]", Reason: err.Error()}
		}
	}

	return nil
}

func (ds *DataSource) validate() error {
	if ds.Kind == "" {
		return ErrInvalidManifest{Field: "kind", Reason: "kind is required"}
	}

	if ds.Name == "" {
		return ErrInvalidManifest{Field: "name", Reason: "name is required"}
	}

	if ds.Source.ABI == "" {
		return ErrInvalidManifest{Field: "source.abi", Reason: "ABI is required"}
	}

	if len(ds.Mapping.EventHandlers) == 0 {
		return ErrInvalidManifest{Field: "mapping.eventHandlers", Reason: "at least one event handler is required"}
	}

	return nil
}

// ErrInvalidManifest is returned when a manifest is invalid
type ErrInvalidManifest struct {
	Field  string
	Reason string
}

func (e ErrInvalidManifest) Error() string {
	return "invalid manifest field " + e.Field + ": " + e.Reason
}
