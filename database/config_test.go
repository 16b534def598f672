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
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "hummer.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)

	def := DefaultConfig()
	assert.Equal(t, def.ConnectionConfig.Type, cfg.ConnectionConfig.Type)
	assert.Equal(t, def.ConnectionConfig.Port, cfg.ConnectionConfig.Port)
	assert.Equal(t, def.ConnectionConfig.DBName, cfg.ConnectionConfig.DBName)
	assert.Equal(t, def.ConnectionConfig.ConnectTimeout, cfg.ConnectionConfig.ConnectTimeout)
	assert.Equal(t, def.ConnectionConfig.HealthCheckInterval, cfg.ConnectionConfig.HealthCheckInterval)
	assert.Equal(t, 4, cfg.IndexSyncConfig.Concurrency)
	assert.Equal(t, "prod", cfg.DataInitConfig.Environment)
	assert.Equal(t, "configs/data", cfg.DataInitConfig.Filepath)
}

func TestLoadConfigFileAndEnv(t *testing.T) {
	path := writeConfigFile(t, `
connection_config:
  type: postgres
  host: db.internal
  port: 5432
  dbname: blog
  connect_timeout: 3s
index_sync_config:
  sync_on_startup: true
data_init_config:
  environment: dev
`)
	t.Setenv("HUMMER_CONNECTION_CONFIG__DBNAME", "blog_test")
	t.Setenv("HUMMER_CONNECTION_CONFIG__SLOW_QUERY_TIME", "250ms")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, TypePostgres, cfg.ConnectionConfig.Type)
	assert.Equal(t, "db.internal", cfg.ConnectionConfig.Host)
	assert.Equal(t, 5432, cfg.ConnectionConfig.Port)
	assert.Equal(t, "blog_test", cfg.ConnectionConfig.DBName)
	assert.Equal(t, 3*time.Second, cfg.ConnectionConfig.ConnectTimeout)
	assert.Equal(t, 250*time.Millisecond, cfg.ConnectionConfig.SlowQueryTime)
	assert.True(t, cfg.IndexSyncConfig.SyncOnStartup)
	assert.Equal(t, "dev", cfg.DataInitConfig.Environment)
}

func TestLoadConfigWithFlags(t *testing.T) {
	path := writeConfigFile(t, `
connection_config:
  type: mongodb
  dbname: fromfile
`)
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("dbname", "", "")
	flags.String("uri", "", "")
	flags.String("host", "ignored", "")
	flags.String("env", "", "")
	flags.Int("concurrency", 0, "")
	require.NoError(t, flags.Parse([]string{
		"--dbname=fromflag",
		"--uri=mongodb://example:27017",
		"--env=staging",
		"--concurrency=8",
	}))

	cfg, err := LoadConfigWithFlags(path, flags)
	require.NoError(t, err)
	assert.Equal(t, "fromflag", cfg.ConnectionConfig.DBName)
	assert.Equal(t, "mongodb://example:27017", cfg.ConnectionConfig.URI)
	assert.Equal(t, "localhost", cfg.ConnectionConfig.Host, "unchanged flags keep lower layers")
	assert.Equal(t, "staging", cfg.DataInitConfig.Environment)
	assert.Equal(t, 8, cfg.IndexSyncConfig.Concurrency)
}

func TestLoadConfigValidation(t *testing.T) {
	path := writeConfigFile(t, `
connection_config:
  type: oracle
`)
	_, err := LoadConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid database config")

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidateConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.NoError(t, ValidateConfig(cfg))

	cfg.ConnectionConfig.DBName = ""
	assert.Error(t, ValidateConfig(cfg))

	cfg = DefaultConfig()
	cfg.ConnectionConfig.Port = 70000
	assert.Error(t, ValidateConfig(cfg))
}

func TestFlagKey(t *testing.T) {
	assert.Equal(t, "connection_config.max_open_conns", flagKey("max-open-conns"))
	assert.Equal(t, "data_init_config.filepath", flagKey("data-dir"))
	assert.Equal(t, "connection_config.dbname", envKey("HUMMER_CONNECTION_CONFIG__DBNAME"))
}

func TestConnectionConfigIsSQL(t *testing.T) {
	for typ, want := range map[string]bool{
		TypeMongoDB:  false,
		TypeMySQL:    true,
		TypePostgres: true,
		TypeSQLite:   true,
	} {
		c := &ConnectionConfig{Type: typ}
		assert.Equal(t, want, c.IsSQL(), typ)
	}
}
