package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

const DATABASE_TYPE = "CFLOW_DATABASE_TYPE"
const DATABASE_URL = "CFLOW_DATABASE_URL"
const DATABASE_SQLLITE_FILE_NAME = "CFLOW_DATABASE_SQLLITE_FILE_NAME"
const SERVER_WEB_PORT = "CFLOW_SERVER_WEB_PORT"
const ENGINE_EXECUTOR_SIZE = "CFLOW_ENGINE_EXECUTOR_SIZE" //number of workers, ie how many workflows run in parallel
const ENGINE_QUEUE_SIZE = "CFLOW_ENGINE_QUEUE_SIZE"       //admitted workflows waiting for a worker
const ENGINE_STUCK_WORKFLOWS_INTERVAL = "CFLOW_ENGINE_STUCK_WORKFLOWS_INTERVAL"
const ENGINE_STUCK_WORKFLOWS_REPAIR_AFTER_MINUTES = "CFLOW_ENGINE_STUCK_WORKFLOWS_REPAIR_AFTER_MINUTES"
const EXECUTOR_NAME = "CFLOW_EXECUTOR_NAME"
const RECOVERY_MAX_RETRIES = "CFLOW_RECOVERY_MAX_RETRIES"
const RECOVERY_BACKOFF_BASE = "CFLOW_RECOVERY_BACKOFF_BASE"
const RECOVERY_BACKOFF_MAX = "CFLOW_RECOVERY_BACKOFF_MAX"
const NETWORK_MAX_LATENCY = "CFLOW_NETWORK_MAX_LATENCY"
const API_KEY_HASH = "CFLOW_API_KEY_HASH" //bcrypt hash of the api key, empty disables auth
const LOG_LEVEL = "CFLOW_LOG_LEVEL"

const DATABASE_TYPE_POSTGRES = "POSTGRES"
const DATABASE_TYPE_MYSQL = "MYSQL"
const DATABASE_TYPE_SQLLITE = "SQLLITE"

var settings = newSettings()

var defaults = map[string]any{
	DATABASE_TYPE:              DATABASE_TYPE_SQLLITE,
	DATABASE_SQLLITE_FILE_NAME: "./chainflow.db",
	SERVER_WEB_PORT:            "8080",
	ENGINE_EXECUTOR_SIZE:       5,
	ENGINE_QUEUE_SIZE:          50,

	ENGINE_STUCK_WORKFLOWS_INTERVAL:             "60s",
	ENGINE_STUCK_WORKFLOWS_REPAIR_AFTER_MINUTES: 5,

	RECOVERY_MAX_RETRIES:  3,
	RECOVERY_BACKOFF_BASE: "1s",
	RECOVERY_BACKOFF_MAX:  "30s",
	NETWORK_MAX_LATENCY:   "500ms",
	LOG_LEVEL:             "info",
}

var keys = []string{
	DATABASE_TYPE, DATABASE_URL, DATABASE_SQLLITE_FILE_NAME, SERVER_WEB_PORT,
	ENGINE_EXECUTOR_SIZE, ENGINE_QUEUE_SIZE, ENGINE_STUCK_WORKFLOWS_INTERVAL,
	ENGINE_STUCK_WORKFLOWS_REPAIR_AFTER_MINUTES, EXECUTOR_NAME, RECOVERY_MAX_RETRIES,
	RECOVERY_BACKOFF_BASE, RECOVERY_BACKOFF_MAX, NETWORK_MAX_LATENCY, API_KEY_HASH, LOG_LEVEL,
}

func newSettings() *viper.Viper {
	v := viper.New()
	for _, k := range keys {
		_ = v.BindEnv(k)
	}
	for k, d := range defaults {
		v.SetDefault(k, d)
	}
	return v
}

// LoadFile merges an optional config file (yaml, json, toml or env) over the defaults.
// Environment variables still take precedence.
func LoadFile(path string) error {
	if path == "" {
		return nil
	}
	settings.SetConfigFile(path)
	return settings.ReadInConfig()
}

// Set overrides a setting for the lifetime of the process, used by command line flags.
func Set(settingKey string, value any) {
	settings.Set(settingKey, value)
}

func GetSystemSettingString(settingKey string) string {
	return strings.TrimSpace(settings.GetString(settingKey))
}

func GetSystemSettingInteger(settingKey string) int {
	return settings.GetInt(settingKey)
}

// GetSystemSettingDuration accepts Go duration strings such as "500ms" or "60s".
func GetSystemSettingDuration(settingKey string) time.Duration {
	return settings.GetDuration(settingKey)
}
