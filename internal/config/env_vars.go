package config

import (
	"os"
	"strings"
	"time"
)

const (
	appNameVar      = "APP_NAME"
	envVar          = "ENV"
	logLevelVar     = "LOG_LEVEL"
	apiBaseURLVar   = "API_BASE_URL"
	callbackAddrVar = "CALLBACK_ADDR"
)

type EnvVars struct {
	file *File
}

var _ EnvConfig = EnvVars{}

func (e EnvVars) GetAppName() string {
	return lookup(appNameVar, e.src().AppName, "Fleet Sync")
}

func (e EnvVars) GetEnv() string {
	return lookup(envVar, e.src().Env, "DEV")
}

func (e EnvVars) GetLogLevel() string {
	return lookup(logLevelVar, e.src().LogLevel, "info")
}

// GetAPIBaseURL returns the backend base URL without a trailing slash
// (e.g., "https://fleet-api.example.com"). Every domain API call is matched
// against this prefix.
func (e EnvVars) GetAPIBaseURL() string {
	return strings.TrimRight(lookup(apiBaseURLVar, e.src().APIBaseURL, "http://localhost:5000"), "/")
}

// GetCallbackAddr is the local listen address for the identity provider
// redirect when running headless.
func (e EnvVars) GetCallbackAddr() string {
	return lookup(callbackAddrVar, e.src().CallbackAddr, ":4200")
}

func GetEnv(envVar, defaultValue string) string {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	return value
}

// lookup resolves a setting as environment variable, then file value, then default.
func lookup(envVar, fileValue, defaultValue string) string {
	if fileValue != "" {
		defaultValue = fileValue
	}
	return GetEnv(envVar, defaultValue)
}

func lookupDuration(envVar string, fileValue, defaultValue time.Duration) time.Duration {
	if fileValue > 0 {
		defaultValue = fileValue
	}
	raw := os.Getenv(envVar)
	if raw == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return defaultValue
	}
	return d
}

func lookupList(envVar string, fileValue, defaultValue []string) []string {
	if len(fileValue) > 0 {
		defaultValue = fileValue
	}
	raw := os.Getenv(envVar)
	if raw == "" {
		return defaultValue
	}
	var values []string
	for _, v := range strings.Split(raw, ",") {
		if v = strings.TrimSpace(v); v != "" {
			values = append(values, v)
		}
	}
	return values
}

func (e EnvVars) src() *File { return orEmpty(e.file) }

func orEmpty(f *File) *File {
	if f == nil {
		return &File{}
	}
	return f
}
