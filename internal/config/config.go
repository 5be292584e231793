// Package config holds the reasoner's small yaml-decoded configuration
// surface: default conflict-resolution strategy, cycle limit override,
// trace output path and OpenAI chat settings. Grounded on the teacher's
// yaml.v3-tagged Config struct, trimmed to only the fields this reasoner
// uses (no shard/memory/campaign sections, which belong to the teacher's
// unrelated agent subsystem).
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the reasoner's top-level configuration.
type Config struct {
	Strategy    string     `yaml:"strategy"`
	CycleLimit  int        `yaml:"cycle_limit"`
	SchemaCheck bool       `yaml:"schema_check"`
	TracePath   string     `yaml:"trace_path"`
	Chat        ChatConfig `yaml:"chat"`
}

// ChatConfig configures the OpenAI-backed chat-assisted query translator.
type ChatConfig struct {
	Model string `yaml:"model"`
}

// Default returns the reasoner's default configuration.
func Default() Config {
	return Config{
		Strategy:    "first-match",
		CycleLimit:  100,
		SchemaCheck: false,
		Chat: ChatConfig{
			Model: "gpt-4o-mini",
		},
	}
}

// Load reads and decodes a yaml config file, overlaying it onto the
// default configuration. A missing file is not an error: Default() is
// returned unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// OpenAIAPIKey resolves the chat collaborator's API key from the
// environment, matching spec §6's OPENAI_API_KEY gate.
func OpenAIAPIKey() (string, bool) {
	key := os.Getenv("OPENAI_API_KEY")
	return key, key != ""
}
