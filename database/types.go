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
	"context"
	"database/sql"
	"time"

	"github.com/tomoncle/hummer-mongodb/schema"
	"github.com/uptrace/bun"
	"go.mongodb.org/mongo-driver/mongo"
)

// Supported connection types.
const (
	TypeMongoDB  = "mongodb"
	TypeMySQL    = "mysql"
	TypePostgres = "postgres"
	TypeSQLite   = "sqlite"
)

// AbstractDatabaseManager defines the operations for managing a data source
// connection, syncing indexes, seeding data, and reporting health.
type AbstractDatabaseManager interface {
	Connect(ctx context.Context) error
	Disconnect() error
	Reconnect(ctx context.Context) error
	Ping(ctx context.Context) error
	HealthCheck(ctx context.Context) *HealthStatus
	GetConnector() Connector
	GetClient() *mongo.Client
	GetDB() *bun.DB
	GetSQLDB() *sql.DB
	SyncIndexes(ctx context.Context, registry *schema.Registry) error
	InitData(ctx context.Context, registry *schema.Registry) error
	GetStats() *DBStats
	SetLogger(logger Logger)
}

// HealthStatus holds the result of a health check against the data source.
type HealthStatus struct {
	Healthy       bool          `json:"healthy"`
	Connected     bool          `json:"connected"`
	ResponseTime  time.Duration `json:"response_time"`
	ActiveConns   int           `json:"active_conns"`
	IdleConns     int           `json:"idle_conns"`
	MaxOpenConns  int           `json:"max_open_conns"`
	LastError     string        `json:"last_error,omitempty"`
	LastCheckTime time.Time     `json:"last_check_time"`
}

// DBStats reports connection pool statistics. SQL connectors fill it from
// database/sql, the MongoDB connector from driver pool events.
type DBStats struct {
	MaxOpenConns      int           `json:"max_open_conns"`
	OpenConns         int           `json:"open_conns"`
	InUse             int           `json:"in_use"`
	Idle              int           `json:"idle"`
	WaitCount         int64         `json:"wait_count"`
	WaitDuration      time.Duration `json:"wait_duration"`
	MaxIdleClosed     int64         `json:"max_idle_closed"`
	MaxIdleTimeClosed int64         `json:"max_idle_time_closed"`
	MaxLifetimeClosed int64         `json:"max_lifetime_closed"`
	PoolCleared       int64         `json:"pool_cleared,omitempty"`
}

// ConnectionConfig describes how to connect to a data source and tune its
// pool. For MongoDB, URI takes precedence over the discrete host fields and
// MaxOpenConns/MaxIdleConns map to the driver's max/min pool size.
type ConnectionConfig struct {
	Type                string        `json:"type" validate:"required,oneof=mongodb mysql postgres sqlite"`
	URI                 string        `json:"uri"`
	Host                string        `json:"host"`
	Port                int           `json:"port" validate:"gte=0,lte=65535"`
	Username            string        `json:"username"`
	Password            string        `json:"password"`
	DBName              string        `json:"dbname" validate:"required"`
	AuthSource          string        `json:"auth_source"`
	ReplicaSet          string        `json:"replica_set"`
	AppName             string        `json:"app_name"`
	SSLMode             string        `json:"sslmode"`
	MaxIdleConns        int           `json:"max_idle_conns" validate:"gte=0"`
	MaxOpenConns        int           `json:"max_open_conns" validate:"gte=0"`
	ConnMaxLifetime     time.Duration `json:"conn_max_lifetime"`
	ConnMaxIdleTime     time.Duration `json:"conn_max_idle_time"`
	ConnectTimeout      time.Duration `json:"connect_timeout"`
	ReadTimeout         time.Duration `json:"read_timeout"`
	WriteTimeout        time.Duration `json:"write_timeout"`
	EnableReconnect     bool          `json:"enable_reconnect"`
	ReconnectInterval   time.Duration `json:"reconnect_interval"`
	MaxReconnectTries   int           `json:"max_reconnect_tries" validate:"gte=0"`
	HealthCheckInterval time.Duration `json:"health_check_interval"`
	EnableQueryLog      bool          `json:"enable_query_log"`
	SlowQueryTime       time.Duration `json:"slow_query_time"`
	EnableMetrics       bool          `json:"enable_metrics"`
}

// IsSQL reports whether the configured type is served by Bun.
func (c *ConnectionConfig) IsSQL() bool {
	switch c.Type {
	case TypeMySQL, TypePostgres, TypeSQLite:
		return true
	}
	return false
}

// IndexSyncConfig controls index creation for registered models.
type IndexSyncConfig struct {
	SyncOnStartup bool   `json:"sync_on_startup"`
	SchemaFile    string `json:"schema_file"`
	Concurrency   int    `json:"concurrency" validate:"gte=0"`
}

// DataInitConfig controls fixture seeding and environment selection.
type DataInitConfig struct {
	AutoInitOnStartup bool   `json:"auto_init_on_startup"`
	Filepath          string `json:"filepath"`
	Environment       string `json:"environment"`
}

// Config aggregates connection, index sync, and data initialization settings.
type Config struct {
	ConnectionConfig ConnectionConfig `json:"connection_config"`
	IndexSyncConfig  IndexSyncConfig  `json:"index_sync_config"`
	DataInitConfig   DataInitConfig   `json:"data_init_config"`
}

// DefaultConnectionConfig returns a connection config with sensible defaults.
func DefaultConnectionConfig() *ConnectionConfig {
	return &ConnectionConfig{
		Type:                TypeMongoDB,
		Host:                "localhost",
		Port:                27017,
		DBName:              "hummer",
		MaxIdleConns:        0,
		MaxOpenConns:        100,
		ConnMaxLifetime:     time.Hour,
		ConnMaxIdleTime:     time.Minute * 30,
		ConnectTimeout:      time.Second * 10,
		ReadTimeout:         time.Second * 30,
		WriteTimeout:        time.Second * 30,
		EnableReconnect:     true,
		ReconnectInterval:   time.Second * 5,
		MaxReconnectTries:   3,
		HealthCheckInterval: time.Minute * 5,
		EnableQueryLog:      false,
		SlowQueryTime:       time.Second * 2,
	}
}

// DefaultConfig returns a Config with default connection settings, the
// "configs/data" fixture root and the "prod" environment.
func DefaultConfig() *Config {
	return &Config{
		ConnectionConfig: *DefaultConnectionConfig(),
		IndexSyncConfig:  IndexSyncConfig{Concurrency: 4},
		DataInitConfig:   DataInitConfig{Filepath: "configs/data", Environment: "prod"},
	}
}
