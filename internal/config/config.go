// Package config loads configuration for the record store server and the
// students client.
//
// The server reads a YAML file located by the CONFIG_PATH environment
// variable or the --config flag. The client works from the environment
// alone and accepts an optional YAML file on top.
package config

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config is the record store server configuration.
// Every field maps to a key in the YAML file and can be overridden by the
// corresponding environment variable.
type Config struct {
	// Env controls log format and verbosity: "dev", "staging" or "prod".
	Env string `yaml:"env" env:"ENV" env-required:"true"`

	// StoragePath is the filesystem path to the SQLite .db file.
	StoragePath string `yaml:"storage_path" env:"STORAGE_PATH" env-required:"true"`

	HTTPServer `yaml:"http_server"`
}

// HTTPServer holds settings specific to the HTTP server.
type HTTPServer struct {
	Addr         string        `yaml:"address" env:"HTTP_SERVER_ADDR" env-required:"true"`
	ReadTimeout  time.Duration `yaml:"read_timeout" env:"HTTP_SERVER_READ_TIMEOUT" env-default:"10s"`
	WriteTimeout time.Duration `yaml:"write_timeout" env:"HTTP_SERVER_WRITE_TIMEOUT" env-default:"10s"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" env:"HTTP_SERVER_IDLE_TIMEOUT" env-default:"60s"`
}

// MustLoad reads and returns the server config, exiting the process when
// it cannot.
func MustLoad() *Config {
	configPath := os.Getenv("CONFIG_PATH")

	if configPath == "" {
		flags := flag.String("config", "", "Path to the configuration YAML file")
		flag.Parse()
		configPath = *flags
	}

	if configPath == "" {
		log.Fatal("config path is not set: use --config flag or CONFIG_PATH env var")
	}

	cfg, err := Load(configPath)
	if err != nil {
		log.Fatalf("cannot read config: %s", err.Error())
	}
	return cfg
}

// Load reads the server config from path and the environment.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file does not exist: %s", path)
	}
	var cfg Config
	if err := cleanenv.ReadConfig(path, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Client is the students client configuration.
type Client struct {
	// Env controls log format and verbosity, as for the server.
	Env string `yaml:"env" env:"ENV" env-default:"dev"`

	// BaseURL is the root of the remote record store; the client talks to
	// BaseURL + "/student".
	BaseURL string `yaml:"base_url" env:"STUDENTS_API_URL" env-default:"http://localhost:8082"`

	// Timeout bounds each HTTP request.
	Timeout time.Duration `yaml:"timeout" env:"HTTP_TIMEOUT" env-default:"10s"`
}

// LoadClient reads the client config. With an empty path only the
// environment and defaults are used.
func LoadClient(path string) (*Client, error) {
	var cfg Client
	if path == "" {
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, fmt.Errorf("read client env: %w", err)
		}
	} else {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return nil, fmt.Errorf("config file does not exist: %s", path)
		}
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, fmt.Errorf("read client config: %w", err)
		}
	}
	if cfg.BaseURL == "" {
		return nil, errors.New("base URL is empty: set STUDENTS_API_URL or base_url")
	}
	return &cfg, nil
}
