package loader

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/1hive/honeyswap-indexer/internal/modules/core"
)

// DefaultNetwork is assigned to data sources that do not name one.
const DefaultNetwork = "xdai"

// ManifestLoader handles loading and parsing module manifests
type ManifestLoader struct {
	logger zerolog.Logger
}

func NewManifestLoader(logger zerolog.Logger) *ManifestLoader {
	return &ManifestLoader{
		logger: logger.With().Str("component", "manifest_loader").Logger(),
	}
}

// LoadFromFile loads a single manifest from a file
func (l *ManifestLoader) LoadFromFile(path string) (*core.Manifest, error) {
	if !isManifestFile(path) {
		return nil, fmt.Errorf("%s is not a YAML manifest", path)
	}
	l.logger.Debug().Str("path", path).Msg("Loading manifest from file")

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest file %s: %w", path, err)
	}

	manifest, err := l.ParseManifest(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	l.logger.Info().
		Str("name", manifest.Name).
		Str("version", manifest.Version).
		Str("network", manifest.Network()).
		Int("data_sources", len(manifest.DataSources)).
		Msg("Loaded manifest")
	return manifest, nil
}

// ParseManifest parses a YAML manifest from bytes
func (l *ManifestLoader) ParseManifest(data []byte) (*core.Manifest, error) {
	var manifest core.Manifest

	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("failed to parse YAML manifest: %w", err)
	}

	setDefaults(&manifest)

	if err := manifest.ValidateManifest(); err != nil {
		return nil, fmt.Errorf("invalid manifest: %w", err)
	}

	return &manifest, nil
}

func setDefaults(manifest *core.Manifest) {
	apply := func(ds *core.DataSource) {
		if ds.Kind == "" {
			ds.Kind = "ethereum/contract"
		}
		if ds.Network == "" {
			ds.Network = DefaultNetwork
		}
		if ds.Mapping.Kind == "" {
			ds.Mapping.Kind = "ethereum/events"
		}
		if ds.Mapping.APIVersion == "" {
			ds.Mapping.APIVersion = "0.0.1"
		}
		if ds.Source.StartBlock == nil {
			startBlock := uint64(0)
			ds.Source.StartBlock = &startBlock
		}
	}

	for i := range manifest.DataSources {
		apply(&manifest.DataSources[i])
	}
	for i := range manifest.Templates {
		apply(&manifest.Templates[i])
	}
}

func isManifestFile(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	return ext == ".yaml" || ext == ".yml"
}
