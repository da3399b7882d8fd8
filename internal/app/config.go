package app

import (
	"fmt"

	coreconfig "github.com/aleksashka/quiz-bot/core/config"
	coredatabase "github.com/aleksashka/quiz-bot/core/database"
)

// Storage drivers for the session store.
const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
)

// StorageConfig selects the session store backend.
type StorageConfig struct {
	Driver string `yaml:"driver" envconfig:"STORAGE_DRIVER"`
}

// ContentConfig points at the quiz content sources.
type ContentConfig struct {
	QuestionsFile string `yaml:"questions_file" envconfig:"CONTENT_QUESTIONS_FILE"`
	MessagesFile  string `yaml:"messages_file" envconfig:"CONTENT_MESSAGES_FILE"`
}

// Config is the bot's full configuration: the reusable core sections plus
// the quiz-specific ones.
type Config struct {
	coreconfig.Config `yaml:",inline"`

	Database coredatabase.Config `yaml:"database"`
	Storage  StorageConfig       `yaml:"storage"`
	Content  ContentConfig       `yaml:"content"`
}

// CoreConfig exposes the embedded core configuration.
func (c *Config) CoreConfig() *coreconfig.Config {
	return &c.Config
}

// LoadConfig reads and validates the full configuration.
func LoadConfig(path string) (*Config, error) {
	var cfg Config
	if err := coreconfig.LoadInto(path, &cfg); err != nil {
		return nil, err
	}
	if err := coreconfig.Normalize(&cfg.Config); err != nil {
		return nil, err
	}
	if err := normalize(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func normalize(cfg *Config) error {
	switch cfg.Storage.Driver {
	case "":
		cfg.Storage.Driver = StorageMemory
	case StorageMemory, StoragePostgres:
	default:
		return fmt.Errorf("invalid storage.driver %q; allowed: memory, postgres", cfg.Storage.Driver)
	}
	if cfg.Content.QuestionsFile == "" {
		return fmt.Errorf("content.questions_file is required")
	}
	if cfg.Content.MessagesFile == "" {
		return fmt.Errorf("content.messages_file is required")
	}
	return nil
}
