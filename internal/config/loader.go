package config

import (
	"fmt"
	"path/filepath"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/forge/furnace-sub000/internal/repository"
)

// Load reads a YAML configuration file, applies defaults for keys the file
// omits, resolves relative repository paths against the file's directory
// and validates the result.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("failed to load config file %q: %w", path, err)
	}

	cfg := Default()
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "yaml"}); err != nil {
		return nil, fmt.Errorf("failed to parse config file %q: %w", path, err)
	}

	base := filepath.Dir(path)
	for i := range cfg.Repositories {
		if p := cfg.Repositories[i].Path; p != "" && !filepath.IsAbs(p) {
			cfg.Repositories[i].Path = filepath.Join(base, p)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %q: %w", path, err)
	}

	return &cfg, nil
}

// Write validates cfg and replaces path atomically.
func Write(path string, cfg *Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("refusing to write invalid config: %w", err)
	}
	return repository.WriteYAML(path, cfg)
}
