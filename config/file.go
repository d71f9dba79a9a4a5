package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// FileConfig represents the structure of the configuration file
type FileConfig struct {
	Server struct {
		Addr   string `yaml:"addr"`
		Module string `yaml:"module"`
	} `yaml:"server"`

	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`

	Checkpoints struct {
		Path     string `yaml:"path"`
		InMemory *bool  `yaml:"in_memory"`
	} `yaml:"checkpoints"`

	Relay struct {
		RedisAddr string `yaml:"redis_addr"`
		Channel   string `yaml:"channel"`
	} `yaml:"relay"`

	Client struct {
		Server string `yaml:"server"`
		Level  int    `yaml:"level"`
	} `yaml:"client"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Addr:     ":9000",
		Module:   "whiteboard",
		LogLevel: "info",
		Checkpoints: CheckpointConfig{
			InMemory: true,
		},
		Relay: RelayConfig{
			Channel: "pairboard",
		},
		Client: ClientConfig{
			Server: "ws://localhost:9000/ws",
		},
	}
}

// LoadConfig loads configuration from a YAML file. Values missing from the
// file keep their defaults. An empty path returns the defaults.
func LoadConfig(filePath string) (*Config, error) {
	config := Default()

	if filePath == "" {
		return config, nil
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var fileConfig FileConfig
	if err := yaml.Unmarshal(data, &fileConfig); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	if fileConfig.Server.Addr != "" {
		config.Addr = fileConfig.Server.Addr
	}
	if fileConfig.Server.Module != "" {
		config.Module = fileConfig.Server.Module
	}
	if fileConfig.Log.Level != "" {
		config.LogLevel = fileConfig.Log.Level
	}

	// A path without an explicit in_memory flag means durable checkpoints.
	config.Checkpoints.Path = fileConfig.Checkpoints.Path
	if fileConfig.Checkpoints.InMemory != nil {
		config.Checkpoints.InMemory = *fileConfig.Checkpoints.InMemory
	} else if fileConfig.Checkpoints.Path != "" {
		config.Checkpoints.InMemory = false
	}

	config.Relay.RedisAddr = fileConfig.Relay.RedisAddr
	if fileConfig.Relay.Channel != "" {
		config.Relay.Channel = fileConfig.Relay.Channel
	}

	if fileConfig.Client.Server != "" {
		config.Client.Server = fileConfig.Client.Server
	}
	config.Client.Level = fileConfig.Client.Level

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// SaveDefaultConfig writes the default configuration to filePath.
func SaveDefaultConfig(filePath string) error {
	def := Default()

	var fileConfig FileConfig
	fileConfig.Server.Addr = def.Addr
	fileConfig.Server.Module = def.Module
	fileConfig.Log.Level = def.LogLevel
	fileConfig.Checkpoints.Path = def.Checkpoints.Path
	fileConfig.Checkpoints.InMemory = &def.Checkpoints.InMemory
	fileConfig.Relay.RedisAddr = def.Relay.RedisAddr
	fileConfig.Relay.Channel = def.Relay.Channel
	fileConfig.Client.Server = def.Client.Server
	fileConfig.Client.Level = def.Client.Level

	data, err := yaml.Marshal(fileConfig)
	if err != nil {
		return fmt.Errorf("error creating default config: %w", err)
	}

	yamlWithComments := "# pairboard configuration\n" +
		"# Set checkpoints.path and in_memory: false to keep checkpoints across restarts.\n\n" +
		string(data)

	if err := os.WriteFile(filePath, []byte(yamlWithComments), 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}
	return nil
}
