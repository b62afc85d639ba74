package mapreduce

import (
	"os"

	"gopkg.in/yaml.v2"
)

// Config mirrors the teacher repo's yaml-backed config (config.go), grown
// by the two domain-stack keys described in SPEC_FULL.md's "Domain stack"
// section. Unlike the teacher's package-level init()-loaded global, this is
// loaded explicitly by the CLI entrypoints so it stays testable.
type Config struct {
	Listen       string `yaml:"listen"`
	Workers      int    `yaml:"workers"`
	Masters      int    `yaml:"masters"`
	StorageRoot  string `yaml:"storage_root"`
	MetricsAddr  string `yaml:"metrics_addr"`
}

// DefaultConfig matches the teacher's own example address and a modest pool
// size, used whenever no config file is given.
func DefaultConfig() Config {
	return Config{
		Listen:      "127.0.0.1:7878",
		Workers:     4,
		Masters:     2,
		StorageRoot: "./_hdfs_stub",
		MetricsAddr: "",
	}
}

// LoadConfig reads a yaml config file, overlaying it onto DefaultConfig.
// A missing file is not an error: callers run on defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}
