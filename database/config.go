/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package database

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// EnvPrefix marks environment variables read by LoadConfig. A double
// underscore separates nesting levels:
// HUMMER_CONNECTION_CONFIG__DBNAME -> connection_config.dbname.
const EnvPrefix = "HUMMER_"

// flagKeys maps command line flags that do not live under
// connection_config to their config keys.
var flagKeys = map[string]string{
	"env":             "data_init_config.environment",
	"data-dir":        "data_init_config.filepath",
	"seed-on-startup": "data_init_config.auto_init_on_startup",
	"schema":          "index_sync_config.schema_file",
	"concurrency":     "index_sync_config.concurrency",
	"sync-on-startup": "index_sync_config.sync_on_startup",
}

var configValidator = validator.New(validator.WithRequiredStructEnabled())

// LoadConfig reads configuration from defaults, an optional YAML file and
// HUMMER_ environment variables, in increasing precedence.
func LoadConfig(path string) (*Config, error) {
	return LoadConfigWithFlags(path, nil)
}

// LoadConfigWithFlags behaves like LoadConfig and then applies the flags
// that were explicitly set, which take precedence over everything else.
func LoadConfigWithFlags(path string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaultConfigMap(), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			if !f.Changed {
				return "", nil
			}
			return flagKey(f.Name), posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	if err := ValidateConfig(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ValidateConfig checks field constraints declared with validate tags.
func ValidateConfig(cfg *Config) error {
	if err := configValidator.Struct(cfg); err != nil {
		return fmt.Errorf("invalid database config: %w", err)
	}
	return nil
}

func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

func flagKey(name string) string {
	if key, ok := flagKeys[name]; ok {
		return key
	}
	return "connection_config." + strings.ReplaceAll(name, "-", "_")
}

func defaultConfigMap() map[string]interface{} {
	d := DefaultConfig()
	c := d.ConnectionConfig
	return map[string]interface{}{
		"connection_config.type":                  c.Type,
		"connection_config.host":                  c.Host,
		"connection_config.port":                  c.Port,
		"connection_config.dbname":                c.DBName,
		"connection_config.max_idle_conns":        c.MaxIdleConns,
		"connection_config.max_open_conns":        c.MaxOpenConns,
		"connection_config.conn_max_lifetime":     c.ConnMaxLifetime.String(),
		"connection_config.conn_max_idle_time":    c.ConnMaxIdleTime.String(),
		"connection_config.connect_timeout":       c.ConnectTimeout.String(),
		"connection_config.read_timeout":          c.ReadTimeout.String(),
		"connection_config.write_timeout":         c.WriteTimeout.String(),
		"connection_config.enable_reconnect":      c.EnableReconnect,
		"connection_config.reconnect_interval":    c.ReconnectInterval.String(),
		"connection_config.max_reconnect_tries":   c.MaxReconnectTries,
		"connection_config.health_check_interval": c.HealthCheckInterval.String(),
		"connection_config.enable_query_log":      c.EnableQueryLog,
		"connection_config.slow_query_time":       c.SlowQueryTime.String(),
		"index_sync_config.concurrency":           d.IndexSyncConfig.Concurrency,
		"data_init_config.filepath":               d.DataInitConfig.Filepath,
		"data_init_config.environment":            d.DataInitConfig.Environment,
	}
}
