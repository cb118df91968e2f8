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
	"fmt"
	"os"
	"time"

	"github.com/uptrace/bun"
	"gopkg.in/yaml.v3"
)

// AbstractDatabaseManager defines the operations for managing a database
// connection, running migrations, and reporting health.
type AbstractDatabaseManager interface {
	Connect(ctx context.Context) error
	Disconnect() error
	Reconnect(ctx context.Context) error
	Ping(ctx context.Context) error
	HealthCheck(ctx context.Context) *HealthStatus
	GetDB() *bun.DB
	GetSQLDB() *sql.DB
	RunMigrations(ctx context.Context) error
	GetStats() *DBStats
	SetLogger(logger Logger)
}

// AbstractDatabaseConfigProvider exposes configuration loading.
type AbstractDatabaseConfigProvider interface {
	ConfigLoader() *Config
}

// HealthStatus holds the result of a health check against the database.
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

// DBStats mirrors database/sql stats returned by the manager.
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
}

// ConnectionConfig describes how to connect to a database and tune its pool.
type ConnectionConfig struct {
	Type                string        `json:"type"` // postgres, mysql, sqlite
	Host                string        `json:"host"`
	Port                int           `json:"port"`
	Username            string        `json:"username"`
	Password            string        `json:"password"`
	DBName              string        `json:"dbname"`
	SSLMode             string        `json:"sslmode"`
	MaxIdleConns        int           `json:"max_idle_conns"`
	MaxOpenConns        int           `json:"max_open_conns"`
	ConnMaxLifetime     time.Duration `json:"conn_max_lifetime"`
	ConnMaxIdleTime     time.Duration `json:"conn_max_idle_time"`
	ConnectTimeout      time.Duration `json:"connect_timeout"`
	ReadTimeout         time.Duration `json:"read_timeout"`
	WriteTimeout        time.Duration `json:"write_timeout"`
	EnableReconnect     bool          `json:"enable_reconnect"`
	ReconnectInterval   time.Duration `json:"reconnect_interval"`
	MaxReconnectTries   int           `json:"max_reconnect_tries"`
	HealthCheckInterval time.Duration `json:"health_check_interval"`
	EnableQueryLog      bool          `json:"enable_query_log"`
	SlowQueryTime       time.Duration `json:"slow_query_time"`
}

// MigrationConfig controls the migration runner created by the manager.
type MigrationConfig struct {
	EnableMigrateOnStartup bool          `json:"enable_migrate_on_startup"`
	Directory              string        `json:"directory"`
	LockWait               bool          `json:"lock_wait"`
	LockTimeout            time.Duration `json:"lock_timeout"`
	ErrorOnEmpty           bool          `json:"error_on_empty"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level string `json:"level"`
}

// Config aggregates connection, migration, and logging settings.
type Config struct {
	ConnectionConfig ConnectionConfig `json:"connection_config"`
	MigrationConfig  MigrationConfig  `json:"migration_config"`
	LoggingConfig    LoggingConfig    `json:"logging_config"`
}

// DefaultConnectionConfig returns a connection config with sensible defaults.
func DefaultConnectionConfig() *ConnectionConfig {
	return &ConnectionConfig{
		Type:                "postgres",
		Host:                "localhost",
		Port:                5432,
		Username:            "postgres",
		DBName:              "postgres",
		MaxIdleConns:        10,
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

// DefaultConfig returns a full configuration with defaults applied.
func DefaultConfig() *Config {
	return &Config{
		ConnectionConfig: *DefaultConnectionConfig(),
		MigrationConfig: MigrationConfig{
			Directory:   "migrations",
			LockTimeout: time.Second * 30,
		},
		LoggingConfig: LoggingConfig{Level: "info"},
	}
}

// fileConfig is the YAML representation of Config. Durations are written as
// Go duration strings ("30s", "5m") and converted on load.
type fileConfig struct {
	Database struct {
		Type                string `yaml:"type"`
		Host                string `yaml:"host"`
		Port                int    `yaml:"port"`
		Username            string `yaml:"username"`
		Password            string `yaml:"password"`
		DBName              string `yaml:"dbname"`
		SSLMode             string `yaml:"sslmode"`
		MaxIdleConns        int    `yaml:"max_idle_conns"`
		MaxOpenConns        int    `yaml:"max_open_conns"`
		ConnMaxLifetime     string `yaml:"conn_max_lifetime"`
		ConnMaxIdleTime     string `yaml:"conn_max_idle_time"`
		ConnectTimeout      string `yaml:"connect_timeout"`
		ReadTimeout         string `yaml:"read_timeout"`
		WriteTimeout        string `yaml:"write_timeout"`
		EnableReconnect     *bool  `yaml:"enable_reconnect"`
		ReconnectInterval   string `yaml:"reconnect_interval"`
		MaxReconnectTries   *int   `yaml:"max_reconnect_tries"`
		HealthCheckInterval string `yaml:"health_check_interval"`
		EnableQueryLog      bool   `yaml:"enable_query_log"`
		SlowQueryTime       string `yaml:"slow_query_time"`
	} `yaml:"database"`
	Migration struct {
		MigrateOnStartup bool   `yaml:"migrate_on_startup"`
		Directory        string `yaml:"directory"`
		LockWait         bool   `yaml:"lock_wait"`
		LockTimeout      string `yaml:"lock_timeout"`
		ErrorOnEmpty     bool   `yaml:"error_on_empty"`
	} `yaml:"migration"`
	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`
}

// LoadConfig reads a YAML configuration file and merges it over defaults.
// Missing values keep their defaults; see BaseDatabaseFactory for the
// environment variable overrides applied afterwards.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg := DefaultConfig()
	cc := &cfg.ConnectionConfig
	if fc.Database.Type != "" {
		cc.Type = fc.Database.Type
	}
	if fc.Database.Host != "" {
		cc.Host = fc.Database.Host
	}
	if fc.Database.Port != 0 {
		cc.Port = fc.Database.Port
	}
	if fc.Database.Username != "" {
		cc.Username = fc.Database.Username
	}
	if fc.Database.Password != "" {
		cc.Password = fc.Database.Password
	}
	if fc.Database.DBName != "" {
		cc.DBName = fc.Database.DBName
	}
	if fc.Database.SSLMode != "" {
		cc.SSLMode = fc.Database.SSLMode
	}
	if fc.Database.MaxIdleConns != 0 {
		cc.MaxIdleConns = fc.Database.MaxIdleConns
	}
	if fc.Database.MaxOpenConns != 0 {
		cc.MaxOpenConns = fc.Database.MaxOpenConns
	}
	if fc.Database.EnableReconnect != nil {
		cc.EnableReconnect = *fc.Database.EnableReconnect
	}
	if fc.Database.MaxReconnectTries != nil {
		cc.MaxReconnectTries = *fc.Database.MaxReconnectTries
	}
	cc.EnableQueryLog = fc.Database.EnableQueryLog

	durations := []struct {
		raw string
		dst *time.Duration
	}{
		{fc.Database.ConnMaxLifetime, &cc.ConnMaxLifetime},
		{fc.Database.ConnMaxIdleTime, &cc.ConnMaxIdleTime},
		{fc.Database.ConnectTimeout, &cc.ConnectTimeout},
		{fc.Database.ReadTimeout, &cc.ReadTimeout},
		{fc.Database.WriteTimeout, &cc.WriteTimeout},
		{fc.Database.ReconnectInterval, &cc.ReconnectInterval},
		{fc.Database.HealthCheckInterval, &cc.HealthCheckInterval},
		{fc.Database.SlowQueryTime, &cc.SlowQueryTime},
		{fc.Migration.LockTimeout, &cfg.MigrationConfig.LockTimeout},
	}
	for _, d := range durations {
		if d.raw == "" {
			continue
		}
		v, err := time.ParseDuration(d.raw)
		if err != nil {
			return nil, fmt.Errorf("invalid duration %q in config file: %w", d.raw, err)
		}
		*d.dst = v
	}

	cfg.MigrationConfig.EnableMigrateOnStartup = fc.Migration.MigrateOnStartup
	if fc.Migration.Directory != "" {
		cfg.MigrationConfig.Directory = fc.Migration.Directory
	}
	cfg.MigrationConfig.LockWait = fc.Migration.LockWait
	cfg.MigrationConfig.ErrorOnEmpty = fc.Migration.ErrorOnEmpty
	if fc.Logging.Level != "" {
		cfg.LoggingConfig.Level = fc.Logging.Level
	}

	return cfg, nil
}
