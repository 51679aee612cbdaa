package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

const configFileVar = "FLEET_CONFIG"

type Config interface {
	EnvConfig
	IdentityConfig
	SessionConfig
	RealtimeConfig
	PollingConfig
	MediatorConfig
}

type EnvConfig interface {
	GetAppName() string
	GetEnv() string
	GetLogLevel() string
	GetAPIBaseURL() string
	GetCallbackAddr() string
}

type mainConfig struct {
	EnvVars
	Identity
	Session
	Realtime
	Polling
	Mediator
}

// New returns a Config backed by environment variables. If FLEET_CONFIG names
// a YAML file it is loaded as the layer beneath the environment.
func New() (Config, error) {
	path := os.Getenv(configFileVar)
	if path == "" {
		return newMainConfig(&File{}), nil
	}
	return Load(path)
}

// Load reads a YAML config file. Environment variables still take precedence
// over values from the file.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("[config Load] failed to read %s: %w", path, err)
	}
	f, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("[config Load] %s: %w", path, err)
	}
	return newMainConfig(f), nil
}

// Parse decodes YAML config data into a File.
func Parse(data []byte) (*File, error) {
	f := &File{}
	if err := yaml.Unmarshal(data, f); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return f, nil
}

// FromFile builds a Config from an already decoded File.
func FromFile(f *File) Config {
	if f == nil {
		f = &File{}
	}
	return newMainConfig(f)
}

func newMainConfig(f *File) mainConfig {
	return mainConfig{
		EnvVars:  EnvVars{file: f},
		Identity: Identity{file: f},
		Session:  Session{file: f},
		Realtime: Realtime{file: f},
		Polling:  Polling{file: f},
		Mediator: Mediator{file: f},
	}
}
