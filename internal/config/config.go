package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/yungbote/pagenode-backend/internal/ingestion/chunker"
	"github.com/yungbote/pagenode-backend/internal/logger"
	"github.com/yungbote/pagenode-backend/internal/utils"
)

// Config holds the ingestion tunables. Values load from an optional YAML
// file (PAGENODE_CONFIG, default ./pagenode.yaml when present) and are then
// overridden by environment variables.
type Config struct {
	Server struct {
		Port        string   `yaml:"port"`
		CORSOrigins []string `yaml:"cors_origins"`
	} `yaml:"server"`

	Chunker struct {
		TargetChars  int `yaml:"target_chars"`
		OverlapChars int `yaml:"overlap_chars"`
	} `yaml:"chunker"`

	Uploads struct {
		Dir string `yaml:"dir"`
	} `yaml:"uploads"`
}

func defaults() *Config {
	cfg := &Config{}
	cfg.Server.Port = "8080"
	cfg.Server.CORSOrigins = []string{
		"http://localhost:3000",
		"http://localhost:5173",
	}
	cfg.Chunker.TargetChars = chunker.DefaultTargetChars
	cfg.Chunker.OverlapChars = chunker.DefaultOverlapChars
	cfg.Uploads.Dir = "./data/uploads"
	return cfg
}

// Load builds the config from defaults, YAML file and environment, in that
// order of precedence.
func Load(log *logger.Logger) (*Config, error) {
	cfg := defaults()

	path := strings.TrimSpace(os.Getenv("PAGENODE_CONFIG"))
	explicit := path != ""
	if path == "" {
		path = "pagenode.yaml"
	}
	raw, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
		if log != nil {
			log.Info("loaded config file", "path", path)
		}
	case os.IsNotExist(err) && !explicit:
		// No file is fine; env and defaults cover everything.
	default:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg.Server.Port = utils.GetEnv("PORT", cfg.Server.Port, log)
	if origins := strings.TrimSpace(os.Getenv("CORS_ORIGINS")); origins != "" {
		cfg.Server.CORSOrigins = splitCSV(origins)
	}
	cfg.Chunker.TargetChars = utils.GetEnvAsInt("CHUNK_TARGET_CHARS", cfg.Chunker.TargetChars, log)
	cfg.Chunker.OverlapChars = utils.GetEnvAsInt("CHUNK_OVERLAP_CHARS", cfg.Chunker.OverlapChars, log)
	cfg.Uploads.Dir = utils.GetEnv("UPLOAD_DIR", cfg.Uploads.Dir, log)

	if cfg.Chunker.TargetChars <= 0 {
		cfg.Chunker.TargetChars = chunker.DefaultTargetChars
	}
	if cfg.Chunker.OverlapChars < 0 {
		cfg.Chunker.OverlapChars = chunker.DefaultOverlapChars
	}
	if cfg.Chunker.OverlapChars >= cfg.Chunker.TargetChars {
		return nil, fmt.Errorf("chunker overlap (%d) must be smaller than target (%d)",
			cfg.Chunker.OverlapChars, cfg.Chunker.TargetChars)
	}
	return cfg, nil
}

func splitCSV(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
