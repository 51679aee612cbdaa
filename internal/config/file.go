package config

import "time"

// File is the YAML layout of a fleet portal config file. Zero values fall
// through to the built-in defaults.
type File struct {
	Env          string `yaml:"env"`
	AppName      string `yaml:"appName"`
	LogLevel     string `yaml:"logLevel"`
	APIBaseURL   string `yaml:"apiBaseUrl"`
	CallbackAddr string `yaml:"callbackAddr"`

	Identity struct {
		Issuer       string   `yaml:"issuer"`
		ClientID     string   `yaml:"clientId"`
		ClientSecret string   `yaml:"clientSecret"`
		Audience     string   `yaml:"audience"`
		RedirectURI  string   `yaml:"redirectUri"`
		Scopes       []string `yaml:"scopes"`
	} `yaml:"identity"`

	Session struct {
		RefreshSafetyMargin time.Duration `yaml:"refreshSafetyMargin"`
		RefreshMinimumDelay time.Duration `yaml:"refreshMinimumDelay"`
		TokenFetchTimeout   time.Duration `yaml:"tokenFetchTimeout"`
	} `yaml:"session"`

	Realtime struct {
		InitialBackoff  time.Duration `yaml:"initialBackoff"`
		MaxBackoff      time.Duration `yaml:"maxBackoff"`
		ReconnectWindow time.Duration `yaml:"reconnectWindow"`
		FleetHubPath    string        `yaml:"fleetHubPath"`
		VehicleHubPath  string        `yaml:"vehicleHubPath"`
	} `yaml:"realtime"`

	Polling struct {
		TelemetryInterval time.Duration `yaml:"telemetryInterval"`
		FleetInterval     time.Duration `yaml:"fleetInterval"`
	} `yaml:"polling"`

	PublicPaths []string `yaml:"publicPaths"`
}
