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

// Package cli implements the hummerctl command tree.
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/tomoncle/hummer-mongodb/database"
	"github.com/tomoncle/hummer-mongodb/schema"
)

// Version is set at build time.
var Version = "0.1.0"

type configKey struct{}

// options holds flags that are not part of database.Config.
type options struct {
	configFile string
	verbose    bool
}

// NewRootCmd builds the hummerctl command tree.
func NewRootCmd() *cobra.Command {
	opts := &options{}
	rootCmd := &cobra.Command{
		Use:     "hummerctl",
		Short:   "hummerctl - manage hummer data sources",
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "help" || cmd.Name() == "completion" || cmd.Name() == "__complete" {
				return nil
			}
			cfg, err := database.LoadConfigWithFlags(opts.configFile, cmd.Root().PersistentFlags())
			if err != nil {
				return err
			}
			if opts.verbose {
				database.GetLogger().SetLevel(database.LogLevelDebug)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), configKey{}, cfg))
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.configFile, "config", "", "config file (YAML)")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "Verbose output")
	flags.String("type", "", "Data source type (mongodb|mysql|postgres|sqlite)")
	flags.String("uri", "", "Connection URI, MongoDB only")
	flags.String("host", "", "Database host")
	flags.Int("port", 0, "Database port")
	flags.String("username", "", "Database user")
	flags.String("password", "", "Database password")
	flags.String("dbname", "", "Database name, or a SQLite file / memory:<name>")
	flags.String("env", "", "Fixture environment")
	flags.String("data-dir", "", "Fixture root directory")
	flags.String("schema", "", "Schema file declaring models and relations")
	flags.Int("concurrency", 0, "Models synced in parallel")

	_ = rootCmd.RegisterFlagCompletionFunc("type", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{database.TypeMongoDB, database.TypeMySQL, database.TypePostgres, database.TypeSQLite}, cobra.ShellCompDirectiveNoFileComp
	})

	rootCmd.AddCommand(newVersionCommand())
	rootCmd.AddCommand(newPingCommand())
	rootCmd.AddCommand(newAutoupdateCommand())
	rootCmd.AddCommand(newSeedCommand())
	rootCmd.AddCommand(newRelationsCommand())
	return rootCmd
}

// Execute runs the root command.
func Execute() error {
	rootCmd := NewRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}

func configFrom(cmd *cobra.Command) *database.Config {
	if cfg, ok := cmd.Context().Value(configKey{}).(*database.Config); ok {
		return cfg
	}
	return database.DefaultConfig()
}

// loadRegistry reads the configured schema file into a fresh registry. The
// file is consumed here, so the manager does not apply it a second time.
func loadRegistry(cfg *database.Config) (*schema.Registry, error) {
	r := schema.NewRegistry()
	path := cfg.IndexSyncConfig.SchemaFile
	if path == "" {
		return r, nil
	}
	f, err := schema.LoadFile(path)
	if err != nil {
		return nil, err
	}
	if err := f.Apply(r); err != nil {
		return nil, err
	}
	cfg.IndexSyncConfig.SchemaFile = ""
	return r, nil
}

// connect opens the configured data source. The caller disconnects.
func connect(cmd *cobra.Command) (database.AbstractDatabaseManager, *schema.Registry, error) {
	cfg := configFrom(cmd)
	registry, err := loadRegistry(cfg)
	if err != nil {
		return nil, nil, err
	}
	cfg.ConnectionConfig.HealthCheckInterval = 0
	m := database.NewDatabaseManagerWithConfig(cfg)
	if err := m.Connect(cmd.Context()); err != nil {
		return nil, nil, err
	}
	return m, registry, nil
}
